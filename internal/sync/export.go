package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/alfredjeanlab/seatcheck/internal/model"
	"github.com/alfredjeanlab/seatcheck/internal/stats"
	"github.com/alfredjeanlab/seatcheck/internal/store"
)

// header is the first JSONL line written by ExportJSONL.
type header struct {
	Version      string    `json:"version"`
	Type         string    `json:"type"`
	Timestamp    time.Time `json:"timestamp"`
	RecordCount  int       `json:"record_count"`
	SessionCount int       `json:"session_count"`
}

// line wraps a single JSONL line with a type discriminator.
type line struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// submission summarizes one (session, date, submitter) record set.
type submission struct {
	SessionID   string        `json:"session_id"`
	Date        string        `json:"date"`
	SubjectCode string        `json:"subject_code"`
	Section     string        `json:"section"`
	Room        string        `json:"room"`
	SubmittedBy string        `json:"submitted_by"`
	Stats       stats.Summary `json:"stats"`
}

// ExportJSONL writes every committed record as JSONL to w. Records are
// grouped by submission (date, session, submitter) and each group starts
// with a "submission" line carrying its stats.
func ExportJSONL(ctx context.Context, s store.RecordStore, w io.Writer) error {
	records, err := s.ListRecords(ctx, model.RecordFilter{})
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}

	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.SessionID != b.SessionID {
			return a.SessionID < b.SessionID
		}
		if a.SubmittedBy != b.SubmittedBy {
			return a.SubmittedBy < b.SubmittedBy
		}
		return a.StudentID < b.StudentID
	})

	type groupKey struct{ date, session, by string }
	var (
		groups [][]*model.AttendanceRecord
		prev   groupKey
	)
	sessions := make(map[string]struct{})
	for i, r := range records {
		k := groupKey{r.Date, r.SessionID, r.SubmittedBy}
		if i == 0 || k != prev {
			groups = append(groups, nil)
			prev = k
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], r)
		sessions[r.SessionID] = struct{}{}
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:      "1",
		Type:         "header",
		Timestamp:    time.Now().UTC(),
		RecordCount:  len(records),
		SessionCount: len(sessions),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, g := range groups {
		first := g[0]
		if err := enc.Encode(line{Type: "submission", Data: submission{
			SessionID:   first.SessionID,
			Date:        first.Date,
			SubjectCode: first.SubjectCode,
			Section:     first.Section,
			Room:        first.Room,
			SubmittedBy: first.SubmittedBy,
			Stats:       stats.FromRecords(g),
		}}); err != nil {
			return fmt.Errorf("encode submission %s: %w", first.SessionID, err)
		}
		for _, r := range g {
			if err := enc.Encode(line{Type: "record", Data: r}); err != nil {
				return fmt.Errorf("encode record %s: %w", r.ID, err)
			}
		}
	}

	return nil
}
