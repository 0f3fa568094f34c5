package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/seatcheck/internal/client"
	"github.com/alfredjeanlab/seatcheck/internal/events"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Print students as their attendance changes",
	GroupID: "attendance",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, _ := cmd.Flags().GetDuration("interval")
		once, _ := cmd.Flags().GetBool("once")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		w := &stateWatcher{seen: make(map[string]string)}
		if err := w.queryAndPrint(ctx); err != nil {
			return err
		}
		if once {
			return nil
		}

		natsURL := os.Getenv("SEATCHECK_NATS_URL")
		if natsURL == "" {
			natsURL = activeProfile().NATSURL
		}
		if natsURL != "" {
			return w.watchNATS(ctx, natsURL)
		}
		return w.watchPoll(ctx, interval)
	},
}

// stateWatcher remembers the last label printed for each student of the
// current session.
type stateWatcher struct {
	sessionID string
	seen      map[string]string
}

// watchNATS re-queries on engine events, debounced, and immediately after a
// reconnect so nothing missed while disconnected stays hidden.
func (w *stateWatcher) watchNATS(ctx context.Context, natsURL string) error {
	reconnectCh := make(chan struct{}, 1)

	sub, err := events.NewNATSSubscriber(natsURL,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats: disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Printf("nats: reconnected")
			select {
			case reconnectCh <- struct{}{}:
			default:
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe("seatcheck.>")
	if err != nil {
		return fmt.Errorf("subscribing to events: %w", err)
	}
	defer cancel()

	debounce := time.NewTimer(0)
	debounce.Stop()
	select {
	case <-debounce.C:
	default:
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-ch:
			if !ok {
				return nil
			}
			debounce.Reset(200 * time.Millisecond)
		case <-reconnectCh:
			debounce.Reset(0)
		case <-debounce.C:
			if err := w.queryAndPrint(ctx); err != nil {
				return err
			}
		}
	}
}

func (w *stateWatcher) watchPoll(ctx context.Context, interval time.Duration) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
		if err := w.queryAndPrint(ctx); err != nil {
			return err
		}
	}
}

func (w *stateWatcher) queryAndPrint(ctx context.Context) error {
	resp, err := apiClient.GetStates(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
			// No class in progress; keep waiting for one.
			if w.sessionID != "" {
				fmt.Println("Session ended")
				w.sessionID = ""
				clear(w.seen)
			}
			return nil
		}
		return fmt.Errorf("getting states: %w", err)
	}

	if resp.Session != nil && resp.Session.ID != w.sessionID {
		w.sessionID = resp.Session.ID
		clear(w.seen)
		if !jsonOutput {
			fmt.Printf("Session %s\n", sessionLine(resp.Session))
		}
	}

	changed := w.diff(resp.Students)
	if len(changed) == 0 {
		return nil
	}
	if jsonOutput {
		printJSON(changed)
	} else {
		printStates(os.Stdout, changed)
	}
	return nil
}

// diff returns the rows whose label or state kind changed since the last
// call and records the new values.
func (w *stateWatcher) diff(rows []client.StudentRow) []client.StudentRow {
	var changed []client.StudentRow
	for _, r := range rows {
		fp := r.Label + "/" + string(r.State.Kind)
		if w.seen[r.StudentID] != fp {
			changed = append(changed, r)
		}
		w.seen[r.StudentID] = fp
	}
	return changed
}

func init() {
	watchCmd.Flags().Duration("interval", 5*time.Second, "polling interval when NATS is not configured")
	watchCmd.Flags().Bool("once", false, "exit after the first query")
}
