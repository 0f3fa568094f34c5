// Package config loads server settings from SEATCHECK_* environment
// variables, optionally backed by a dotenv file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/alfredjeanlab/seatcheck/internal/model"
)

type Config struct {
	DatabaseURL  string // SEATCHECK_DATABASE_URL (optional, empty = in-memory records)
	HTTPAddr     string // SEATCHECK_HTTP_ADDR (default ":8080")
	NATSURL      string // SEATCHECK_NATS_URL (optional, empty = in-process bus)
	InstructorID string // SEATCHECK_INSTRUCTOR (required)
	ScheduleFile string // SEATCHECK_SCHEDULE_FILE (TOML; empty = schedules table)
	RosterFile   string // SEATCHECK_ROSTER_FILE (TOML; empty = enrollments table)

	Grace model.GraceConfig // SEATCHECK_GRACE_WINDOW, _ABSENT_TIMEOUT, _PRESENCE_THRESHOLD, _TAP_ONLY_POLICY

	TickInterval      time.Duration // SEATCHECK_TICK_INTERVAL (default 1s)
	SessionLinger     time.Duration // SEATCHECK_SESSION_LINGER (default 30m)
	DeviceSilentAfter time.Duration // SEATCHECK_DEVICE_SILENT_AFTER (default 2m)

	// Sync settings
	SyncInterval   time.Duration // SEATCHECK_SYNC_INTERVAL (default 0 = disabled)
	SyncS3Bucket   string        // SEATCHECK_SYNC_S3_BUCKET (enables S3 when set)
	SyncS3Endpoint string        // SEATCHECK_SYNC_S3_ENDPOINT (custom endpoint for MinIO)
	SyncS3Region   string        // SEATCHECK_SYNC_S3_REGION (default "us-east-1")
	SyncS3Prefix   string        // SEATCHECK_SYNC_S3_PREFIX (default "seatcheck")
	SyncS3Daily    bool          // SEATCHECK_SYNC_S3_DAILY (default false)
	SyncGitRepo    string        // SEATCHECK_SYNC_GIT_REPO (enables git when set; path to clone)
	SyncGitFile    string        // SEATCHECK_SYNC_GIT_FILE (default "attendance.jsonl")
	SyncGitBranch  string        // SEATCHECK_SYNC_GIT_BRANCH (default "main")
}

// Load reads the configuration. Values missing from the environment are
// looked up in the dotenv file named by SEATCHECK_ENV_FILE, or ./.env when
// that is unset. A missing ./.env is not an error; a missing
// SEATCHECK_ENV_FILE is.
func Load() (*Config, error) {
	env, err := newEnv(os.Getenv("SEATCHECK_ENV_FILE"))
	if err != nil {
		return nil, err
	}

	c := &Config{
		DatabaseURL:    env.get("SEATCHECK_DATABASE_URL"),
		HTTPAddr:       env.orDefault("SEATCHECK_HTTP_ADDR", ":8080"),
		NATSURL:        env.get("SEATCHECK_NATS_URL"),
		InstructorID:   env.get("SEATCHECK_INSTRUCTOR"),
		ScheduleFile:   env.get("SEATCHECK_SCHEDULE_FILE"),
		RosterFile:     env.get("SEATCHECK_ROSTER_FILE"),
		SyncS3Bucket:   env.get("SEATCHECK_SYNC_S3_BUCKET"),
		SyncS3Endpoint: env.get("SEATCHECK_SYNC_S3_ENDPOINT"),
		SyncS3Region:   env.orDefault("SEATCHECK_SYNC_S3_REGION", "us-east-1"),
		SyncS3Prefix:   env.orDefault("SEATCHECK_SYNC_S3_PREFIX", "seatcheck"),
		SyncGitRepo:    env.get("SEATCHECK_SYNC_GIT_REPO"),
		SyncGitFile:    env.orDefault("SEATCHECK_SYNC_GIT_FILE", "attendance.jsonl"),
		SyncGitBranch:  env.orDefault("SEATCHECK_SYNC_GIT_BRANCH", "main"),
	}
	if c.InstructorID == "" {
		return nil, fmt.Errorf("SEATCHECK_INSTRUCTOR is required")
	}

	defaults := model.DefaultGraceConfig()
	durations := []struct {
		key      string
		fallback time.Duration
		dst      *time.Duration
	}{
		{"SEATCHECK_GRACE_WINDOW", defaults.GraceWindow, &c.Grace.GraceWindow},
		{"SEATCHECK_ABSENT_TIMEOUT", defaults.AbsentTimeout, &c.Grace.AbsentTimeout},
		{"SEATCHECK_TICK_INTERVAL", time.Second, &c.TickInterval},
		{"SEATCHECK_SESSION_LINGER", 30 * time.Minute, &c.SessionLinger},
		{"SEATCHECK_DEVICE_SILENT_AFTER", 2 * time.Minute, &c.DeviceSilentAfter},
		{"SEATCHECK_SYNC_INTERVAL", 0, &c.SyncInterval},
	}
	for _, d := range durations {
		v, err := env.duration(d.key, d.fallback)
		if err != nil {
			return nil, err
		}
		*d.dst = v
	}

	c.Grace.PresenceThreshold = defaults.PresenceThreshold
	if s := env.get("SEATCHECK_PRESENCE_THRESHOLD"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("SEATCHECK_PRESENCE_THRESHOLD: %w", err)
		}
		c.Grace.PresenceThreshold = v
	}
	c.Grace.TapOnlyPolicy = model.TapOnlyPolicy(env.orDefault("SEATCHECK_TAP_ONLY_POLICY", string(defaults.TapOnlyPolicy)))
	if err := c.Grace.Validate(); err != nil {
		return nil, fmt.Errorf("grace config: %w", err)
	}

	if s := env.get("SEATCHECK_SYNC_S3_DAILY"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("SEATCHECK_SYNC_S3_DAILY: %w", err)
		}
		c.SyncS3Daily = v
	}

	if c.TickInterval <= 0 {
		return nil, fmt.Errorf("SEATCHECK_TICK_INTERVAL must be positive")
	}

	return c, nil
}

// env resolves keys from the process environment first, then the dotenv
// file. It never modifies the process environment.
type env struct {
	file map[string]string
}

func newEnv(path string) (*env, error) {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	vals, err := godotenv.Read(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return &env{}, nil
		}
		return nil, fmt.Errorf("read env file %s: %w", path, err)
	}
	return &env{file: vals}, nil
}

func (e *env) get(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return e.file[key]
}

func (e *env) orDefault(key, fallback string) string {
	if v := e.get(key); v != "" {
		return v
	}
	return fallback
}

func (e *env) duration(key string, fallback time.Duration) (time.Duration, error) {
	s := e.get(key)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
