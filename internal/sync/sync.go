// Package sync backs up committed attendance records as JSONL to S3 or a
// git repository.
package sync

import (
	"bytes"
	"context"
	"crypto/sha256"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/seatcheck/internal/store"
)

// Destination receives full JSONL exports.
type Destination interface {
	Name() string
	Write(ctx context.Context, data []byte) error
}

// Scheduler exports the record store on an interval and on demand.
//
// Records only change when a session is submitted, so most rounds find
// nothing new. A destination is written only when the exported records
// differ from what it last accepted; the header timestamp is ignored for
// that comparison. A destination that failed is retried every round.
type Scheduler struct {
	store    store.RecordStore
	dests    []Destination
	interval time.Duration
	logger   *slog.Logger

	// accepted holds, per destination, the digest of the last export it
	// took. Only touched from the run goroutine.
	accepted map[Destination][sha256.Size]byte

	wake   chan struct{}
	cancel context.CancelFunc
	done   sync.WaitGroup
}

// NewScheduler returns a scheduler that has not been started.
func NewScheduler(s store.RecordStore, destinations []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:    s,
		dests:    destinations,
		interval: interval,
		logger:   logger,
		accepted: make(map[Destination][sha256.Size]byte),
		wake:     make(chan struct{}, 1),
	}
}

// Start exports once right away and then keeps running until Stop.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done.Add(1)
	go func() {
		defer s.done.Done()
		s.run(ctx)
	}()
}

// Trigger asks for an export soon, typically after a submit. It never
// blocks; requests made while one is pending collapse into it.
func (s *Scheduler) Trigger() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Stop ends the loop and waits for an in-flight export.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.done.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	tick := time.NewTicker(s.interval)
	defer tick.Stop()
	for {
		s.export(ctx)
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		case <-s.wake:
		}
	}
}

func (s *Scheduler) export(ctx context.Context) {
	var buf bytes.Buffer
	if err := ExportJSONL(ctx, s.store, &buf); err != nil {
		s.logger.Error("sync: export failed", "err", err)
		return
	}
	data := buf.Bytes()
	_, body, _ := bytes.Cut(data, []byte("\n"))
	digest := sha256.Sum256(body)

	var wrote, failed int
	for _, d := range s.dests {
		if prev, ok := s.accepted[d]; ok && prev == digest {
			continue
		}
		if err := d.Write(ctx, data); err != nil {
			failed++
			delete(s.accepted, d)
			s.logger.Error("sync: destination write failed", "destination", d.Name(), "err", err)
			continue
		}
		wrote++
		s.accepted[d] = digest
	}
	if wrote > 0 || failed > 0 {
		s.logger.Info("sync: exported records", "written", wrote, "failed", failed, "bytes", len(data))
	}
}
