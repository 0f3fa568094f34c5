package postgres

import (
	"context"
	"time"

	"github.com/alfredjeanlab/seatcheck/internal/bindings"
)

// SaveBinding records a persistent sensor binding. Any existing binding for
// the sensor or the student is replaced.
func (s *PostgresStore) SaveBinding(ctx context.Context, b bindings.Binding) error {
	var boundAt *time.Time
	if !b.BoundAt.IsZero() {
		boundAt = &b.BoundAt
	}
	return s.inTx(ctx, func(db executor) error {
		if _, err := db.ExecContext(ctx,
			`DELETE FROM sensor_bindings WHERE student_id = $1 AND sensor_id <> $2`,
			b.StudentID, b.SensorID,
		); err != nil {
			return err
		}
		_, err := db.ExecContext(ctx, `
			INSERT INTO sensor_bindings (sensor_id, student_id, bound_at)
			VALUES ($1, $2, COALESCE($3, NOW()))
			ON CONFLICT (sensor_id) DO UPDATE
			SET student_id = EXCLUDED.student_id, bound_at = EXCLUDED.bound_at`,
			b.SensorID, b.StudentID, nullTimePtr(boundAt),
		)
		return err
	})
}

// DeleteBinding removes a persistent binding. Missing rows are not an error.
func (s *PostgresStore) DeleteBinding(ctx context.Context, sensorID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sensor_bindings WHERE sensor_id = $1`, sensorID)
	return err
}

// ListBindings returns every persistent binding, ordered by sensor.
func (s *PostgresStore) ListBindings(ctx context.Context) ([]bindings.Binding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sensor_id, student_id, bound_at
		FROM sensor_bindings
		ORDER BY sensor_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []bindings.Binding
	for rows.Next() {
		var b bindings.Binding
		if err := rows.Scan(&b.SensorID, &b.StudentID, &b.BoundAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// inTx runs fn inside a transaction using the raw executor.
func (s *PostgresStore) inTx(ctx context.Context, fn func(db executor) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
