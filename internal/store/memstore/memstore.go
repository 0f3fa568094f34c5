// Package memstore is an in-memory store.RecordStore. It backs the server
// when no database is configured and stands in for Postgres in tests.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/alfredjeanlab/seatcheck/internal/model"
	"github.com/alfredjeanlab/seatcheck/internal/store"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("memstore: closed")

// Store keeps committed records in a map keyed by record ID.
type Store struct {
	mu      sync.Mutex
	records map[string]*model.AttendanceRecord
	closed  bool

	// FailWrites, when set, is returned by WriteRecords. Tests use it to
	// simulate a store outage part way through a commit.
	FailWrites error
}

var _ store.RecordStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{records: make(map[string]*model.AttendanceRecord)}
}

func (s *Store) QueryExisting(_ context.Context, sessionID, submittedBy, date string) ([]*model.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.queryLocked(sessionID, submittedBy, date), nil
}

func (s *Store) queryLocked(sessionID, submittedBy, date string) []*model.AttendanceRecord {
	var out []*model.AttendanceRecord
	for _, r := range s.records {
		if r.SessionID == sessionID && r.SubmittedBy == submittedBy && r.Date == date {
			out = append(out, clone(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out
}

func (s *Store) DeleteRecords(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(ids)
}

func (s *Store) deleteLocked(ids []string) error {
	if s.closed {
		return ErrClosed
	}
	for _, id := range ids {
		if _, ok := s.records[id]; !ok {
			return fmt.Errorf("record %s not found", id)
		}
	}
	for _, id := range ids {
		delete(s.records, id)
	}
	return nil
}

func (s *Store) WriteRecords(_ context.Context, records []*model.AttendanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(records)
}

func (s *Store) writeLocked(records []*model.AttendanceRecord) error {
	if s.closed {
		return ErrClosed
	}
	if s.FailWrites != nil {
		return s.FailWrites
	}
	for _, r := range records {
		if err := model.ValidateRecord(r); err != nil {
			return fmt.Errorf("insert record for %s: %w", r.StudentID, err)
		}
	}
	for _, r := range records {
		if _, ok := s.records[r.ID]; ok {
			return fmt.Errorf("insert record for %s: duplicate id %s", r.StudentID, r.ID)
		}
		for _, existing := range s.records {
			if existing.SessionID == r.SessionID && existing.Date == r.Date &&
				existing.SubmittedBy == r.SubmittedBy && existing.StudentID == r.StudentID {
				return fmt.Errorf("insert record for %s: already recorded", r.StudentID)
			}
		}
		s.records[r.ID] = clone(r)
	}
	return nil
}

func (s *Store) ListRecords(_ context.Context, filter model.RecordFilter) ([]*model.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	var out []*model.AttendanceRecord
	for _, r := range s.records {
		if filter.SessionID != "" && r.SessionID != filter.SessionID {
			continue
		}
		if filter.Date != "" && r.Date != filter.Date {
			continue
		}
		if filter.SubmittedBy != "" && r.SubmittedBy != filter.SubmittedBy {
			continue
		}
		if filter.Since != nil && r.Timestamp.Before(*filter.Since) {
			continue
		}
		out = append(out, clone(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].StudentID < out[j].StudentID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// RunInTransaction holds the store lock for the whole of fn. Writes made
// through tx are discarded if fn returns an error.
func (s *Store) RunInTransaction(_ context.Context, fn func(tx store.RecordStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	saved := make(map[string]*model.AttendanceRecord, len(s.records))
	for id, r := range s.records {
		saved[id] = r
	}
	if err := fn(&txStore{s: s}); err != nil {
		s.records = saved
		return err
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// txStore runs against the parent store while its lock is held.
type txStore struct {
	s *Store
}

func (t *txStore) QueryExisting(_ context.Context, sessionID, submittedBy, date string) ([]*model.AttendanceRecord, error) {
	return t.s.queryLocked(sessionID, submittedBy, date), nil
}

func (t *txStore) DeleteRecords(_ context.Context, ids []string) error {
	return t.s.deleteLocked(ids)
}

func (t *txStore) WriteRecords(_ context.Context, records []*model.AttendanceRecord) error {
	return t.s.writeLocked(records)
}

func (t *txStore) ListRecords(_ context.Context, _ model.RecordFilter) ([]*model.AttendanceRecord, error) {
	return nil, errors.New("memstore: list inside a transaction is not supported")
}

func (t *txStore) RunInTransaction(_ context.Context, fn func(tx store.RecordStore) error) error {
	return fn(t)
}

func (t *txStore) Close() error { return nil }

func clone(r *model.AttendanceRecord) *model.AttendanceRecord {
	c := *r
	return &c
}
