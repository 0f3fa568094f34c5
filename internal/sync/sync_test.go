package sync

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alfredjeanlab/seatcheck/internal/model"
	"github.com/alfredjeanlab/seatcheck/internal/store/memstore"
)

type fakeDest struct {
	name   string
	writes atomic.Int64
	last   atomic.Value // []byte
	err    error
}

func (d *fakeDest) Name() string { return d.name }

func (d *fakeDest) Write(_ context.Context, data []byte) error {
	d.writes.Add(1)
	d.last.Store(append([]byte(nil), data...))
	return d.err
}

func (d *fakeDest) lines(t *testing.T) int {
	t.Helper()
	data, _ := d.last.Load().([]byte)
	return len(nonEmptyLines(string(data)))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 2s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestScheduler_SkipsUnchangedExports(t *testing.T) {
	ms := seedStore(t, rec("ar-1", "sess-1", "2026-03-02", "prof-lee", "A", model.StatusPresent))
	dest := &fakeDest{name: "ok"}

	sched := NewScheduler(ms, []Destination{dest}, 10*time.Millisecond, nil)
	sched.Start()
	waitFor(t, func() bool { return dest.writes.Load() == 1 })
	time.Sleep(100 * time.Millisecond) // several ticks, nothing new
	sched.Stop()

	if n := dest.writes.Load(); n != 1 {
		t.Fatalf("writes = %d, want 1 for an unchanged store", n)
	}
	// header, submission, record
	if n := dest.lines(t); n != 3 {
		t.Fatalf("export has %d lines, want 3", n)
	}
}

func TestScheduler_RetriesFailedDestination(t *testing.T) {
	failing := &fakeDest{name: "down", err: errors.New("bucket unreachable")}
	healthy := &fakeDest{name: "up"}

	sched := NewScheduler(memstore.New(), []Destination{failing, healthy}, 10*time.Millisecond, nil)
	sched.Start()
	waitFor(t, func() bool { return failing.writes.Load() >= 3 })
	sched.Stop()

	if n := healthy.writes.Load(); n != 1 {
		t.Fatalf("healthy destination written %d times, want 1", n)
	}
}

func TestScheduler_TriggerPicksUpSubmit(t *testing.T) {
	ms := memstore.New()
	dest := &fakeDest{name: "ok"}

	sched := NewScheduler(ms, []Destination{dest}, time.Hour, nil)
	sched.Start()
	defer sched.Stop()
	waitFor(t, func() bool { return dest.writes.Load() == 1 })

	if err := ms.WriteRecords(context.Background(), []*model.AttendanceRecord{
		rec("ar-1", "sess-1", "2026-03-02", "prof-lee", "A", model.StatusPresent),
	}); err != nil {
		t.Fatalf("write: %v", err)
	}
	sched.Trigger()
	sched.Trigger()

	waitFor(t, func() bool { return dest.writes.Load() == 2 })
	if n := dest.lines(t); n != 3 {
		t.Fatalf("triggered export has %d lines, want 3", n)
	}
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	NewScheduler(memstore.New(), nil, time.Minute, nil).Stop()
}
