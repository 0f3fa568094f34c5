package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/seatcheck/internal/bindings"
	"github.com/alfredjeanlab/seatcheck/internal/commit"
	"github.com/alfredjeanlab/seatcheck/internal/config"
	"github.com/alfredjeanlab/seatcheck/internal/events"
	"github.com/alfredjeanlab/seatcheck/internal/model"
	"github.com/alfredjeanlab/seatcheck/internal/presence"
	"github.com/alfredjeanlab/seatcheck/internal/reconcile"
	"github.com/alfredjeanlab/seatcheck/internal/roster"
	"github.com/alfredjeanlab/seatcheck/internal/schedule"
	"github.com/alfredjeanlab/seatcheck/internal/server"
	"github.com/alfredjeanlab/seatcheck/internal/store"
	"github.com/alfredjeanlab/seatcheck/internal/store/memstore"
	"github.com/alfredjeanlab/seatcheck/internal/store/postgres"
	attsync "github.com/alfredjeanlab/seatcheck/internal/sync"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the attendance engine and HTTP API",
	GroupID: "system",
	Long: `Runs the attendance engine for one instructor.

Every tick the server resolves the instructor's current class from the
schedule, loads its roster, listens to the room's tap readers and seat
sensors and times out students who never confirm. Settings come from
SEATCHECK_* environment variables (or a .env file).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// Records, and with Postgres also schedules, rosters and bindings.
		var (
			records store.RecordStore
			pg      *postgres.PostgresStore
		)
		if cfg.DatabaseURL != "" {
			pg, err = postgres.New(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			records = pg
		} else {
			records = memstore.New()
			logger.Warn("records kept in memory (SEATCHECK_DATABASE_URL not set)")
		}
		defer records.Close()

		schedules, err := scheduleSource(cfg, pg)
		if err != nil {
			return err
		}
		rosters, err := rosterSource(cfg, pg)
		if err != nil {
			return err
		}

		bus, err := openBus(cfg, logger)
		if err != nil {
			return err
		}
		defer bus.Close()

		reg := bindings.New()
		var bindStore server.BindingStore
		if pg != nil {
			n, err := restoreBindings(ctx, pg, reg)
			if err != nil {
				return err
			}
			bindStore = pg
			logger.Info("bindings restored", "count", n)
		}

		engine := reconcile.NewEngine(reconcile.EngineConfig{
			Grace:    cfg.Grace,
			Channel:  events.NewChannel(bus.sub, logger),
			Bindings: reg,
			Logger:   logger,
		})
		supervisor := reconcile.NewSupervisor(reconcile.SupervisorConfig{
			Engine:       engine,
			Schedules:    schedules,
			Roster:       roster.NewLoader(rosters, logger),
			InstructorID: cfg.InstructorID,
			Publisher:    bus.pub,
			Interval:     cfg.TickInterval,
			Linger:       cfg.SessionLinger,
			Logger:       logger,
		})

		tracker := presence.New(logger)
		if err := tracker.Watch(ctx, bus.sub); err != nil {
			return err
		}
		tracker.StartReaper(&presence.ReaperConfig{
			SilentAfter: cfg.DeviceSilentAfter,
			OnSilent: func(e presence.Entry) {
				ev := events.DeviceSilent{DeviceID: e.DeviceID, Kind: string(e.Kind), Room: e.Room}
				if err := bus.pub.Publish(ctx, events.TopicDeviceSilent, ev); err != nil {
					logger.Warn("presence: publish device silent", "err", err)
				}
			},
		})
		defer tracker.Stop()

		committer := commit.NewService(commit.Config{
			Engine:    engine,
			Store:     records,
			Publisher: bus.pub,
			Logger:    logger,
		})

		srvCfg := server.Config{
			Engine:       engine,
			Commit:       committer,
			Records:      records,
			Bindings:     reg,
			BindingStore: bindStore,
			Publisher:    bus.pub,
			Presence:     tracker,
			Supervisor:   supervisor,
			Logger:       logger,
		}
		scheduler := syncScheduler(ctx, cfg, records, logger)
		if scheduler != nil {
			srvCfg.Sync = scheduler
			scheduler.Start()
			defer scheduler.Stop()
			logger.Info("sync scheduler started", "interval", cfg.SyncInterval)
		}
		srv := server.New(srvCfg)

		// State changes go to the bus and straight to SSE clients; the other
		// engine events reach SSE through the relay.
		stateOut := events.MultiPublisher{bus.pub, srv}
		engine.OnChange(func(c model.StateChange) {
			ev := events.StateChanged{Change: c, Label: c.To.Label()}
			if err := stateOut.Publish(context.Background(), events.TopicStateChanged, ev); err != nil {
				logger.Debug("engine: publish state change", "err", err)
			}
		})
		if err := srv.Relay(ctx, bus.sub, server.RelayTopics...); err != nil {
			return err
		}

		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           srv.NewHTTPHandler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", "err", err)
				stop()
			}
		}()

		supervisorDone := make(chan struct{})
		go func() {
			defer close(supervisorDone)
			_ = supervisor.Run(ctx)
		}()

		logger.Info("seatcheck server started",
			"instructor", cfg.InstructorID,
			"http_addr", cfg.HTTPAddr,
			"tap_only_policy", cfg.Grace.TapOnlyPolicy)

		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		<-supervisorDone
		logger.Info("shutdown complete")
		return nil
	},
}

// eventBus is the publish and subscribe halves of the device event bus. With
// NATS they are separate connections; in process they are the same LocalBus.
type eventBus struct {
	pub    events.Publisher
	sub    events.Subscriber
	shared bool
}

func (b *eventBus) Close() error {
	if b.shared {
		return b.pub.Close()
	}
	return errors.Join(b.pub.Close(), b.sub.Close())
}

func openBus(cfg *config.Config, logger *slog.Logger) (*eventBus, error) {
	if cfg.NATSURL == "" {
		logger.Info("events in process (SEATCHECK_NATS_URL not set)")
		bus := events.NewLocalBus()
		return &eventBus{pub: bus, sub: bus, shared: true}, nil
	}
	opts := events.ConnectionLogging(logger)
	pub, err := events.NewNATSPublisher(cfg.NATSURL, opts...)
	if err != nil {
		return nil, err
	}
	sub, err := events.NewNATSSubscriber(cfg.NATSURL, opts...)
	if err != nil {
		pub.Close()
		return nil, err
	}
	logger.Info("events enabled", "nats_url", cfg.NATSURL)
	return &eventBus{pub: pub, sub: sub}, nil
}

func scheduleSource(cfg *config.Config, pg *postgres.PostgresStore) (schedule.Source, error) {
	switch {
	case cfg.ScheduleFile != "":
		return schedule.NewFileSource(cfg.ScheduleFile)
	case pg != nil:
		return pg, nil
	default:
		return nil, fmt.Errorf("SEATCHECK_SCHEDULE_FILE is required without SEATCHECK_DATABASE_URL")
	}
}

func rosterSource(cfg *config.Config, pg *postgres.PostgresStore) (roster.Source, error) {
	switch {
	case cfg.RosterFile != "":
		return roster.NewFileSource(cfg.RosterFile)
	case pg != nil:
		return pg, nil
	default:
		return nil, fmt.Errorf("SEATCHECK_ROSTER_FILE is required without SEATCHECK_DATABASE_URL")
	}
}

// restoreBindings loads persistent bindings into the registry.
func restoreBindings(ctx context.Context, pg *postgres.PostgresStore, reg *bindings.Registry) (int, error) {
	saved, err := pg.ListBindings(ctx)
	if err != nil {
		return 0, fmt.Errorf("load bindings: %w", err)
	}
	for _, b := range saved {
		if _, err := reg.Bind(b.SensorID, b.StudentID, ""); err != nil {
			return 0, fmt.Errorf("restore binding %s: %w", b.SensorID, err)
		}
	}
	return len(saved), nil
}

// syncScheduler builds the record backup scheduler, or returns nil when
// backups are off or no destination is configured.
func syncScheduler(ctx context.Context, cfg *config.Config, records store.RecordStore, logger *slog.Logger) *attsync.Scheduler {
	if cfg.SyncInterval <= 0 {
		return nil
	}
	var dests []attsync.Destination
	if cfg.SyncS3Bucket != "" {
		s3Dest, err := attsync.NewS3Destination(ctx, attsync.S3Config{
			Bucket:   cfg.SyncS3Bucket,
			Prefix:   cfg.SyncS3Prefix,
			Region:   cfg.SyncS3Region,
			Endpoint: cfg.SyncS3Endpoint,
			Daily:    cfg.SyncS3Daily,
		})
		if err != nil {
			logger.Error("failed to create S3 sync destination", "err", err)
		} else {
			dests = append(dests, s3Dest)
			logger.Info("sync S3 destination enabled", "destination", s3Dest.Name())
		}
	}
	if cfg.SyncGitRepo != "" {
		gitDest := attsync.NewGitDestination(cfg.SyncGitRepo, cfg.SyncGitFile, cfg.SyncGitBranch)
		dests = append(dests, gitDest)
		logger.Info("sync git destination enabled", "destination", gitDest.Name())
	}
	if len(dests) == 0 {
		logger.Warn("SEATCHECK_SYNC_INTERVAL set but no sync destination configured")
		return nil
	}
	return attsync.NewScheduler(records, dests, cfg.SyncInterval, logger)
}
