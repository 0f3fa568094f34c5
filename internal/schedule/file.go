package schedule

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/alfredjeanlab/seatcheck/internal/model"
)

// fileConfig is the on-disk layout of a schedule file:
//
//	[[class]]
//	instructor_id = "prof-lee"
//	day = "monday"
//	start = "09:00"
//	end = "10:30"
//	subject = "CS101"
//	section = "A"
//	room = "R-204"
type fileConfig struct {
	Classes []model.ScheduleEntry `toml:"class"`
}

// FileSource serves schedules from a TOML file. The file is re-read when its
// modification time changes, so edits take effect on the next tick.
type FileSource struct {
	path string

	mu      sync.Mutex
	modTime int64
	entries []model.ScheduleEntry
}

// NewFileSource loads and validates the file at path.
func NewFileSource(path string) (*FileSource, error) {
	fs := &FileSource{path: path}
	if _, err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

// GetSchedules returns the entries belonging to instructorID. Entries with
// no instructor_id apply to every instructor.
func (f *FileSource) GetSchedules(_ context.Context, instructorID string) ([]model.ScheduleEntry, error) {
	entries, err := f.load()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrScheduleUnavailable, err)
	}
	var out []model.ScheduleEntry
	for _, e := range entries {
		if e.InstructorID == "" || e.InstructorID == instructorID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *FileSource) load() ([]model.ScheduleEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	info, err := os.Stat(f.path)
	if err != nil {
		return nil, err
	}
	if f.entries != nil && info.ModTime().UnixNano() == f.modTime {
		return f.entries, nil
	}

	var cfg fileConfig
	if _, err := toml.DecodeFile(f.path, &cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.path, err)
	}
	if err := ValidateEntries(cfg.Classes); err != nil {
		return nil, fmt.Errorf("invalid schedule %s: %w", f.path, err)
	}
	if cfg.Classes == nil {
		cfg.Classes = []model.ScheduleEntry{}
	}

	f.entries = cfg.Classes
	f.modTime = info.ModTime().UnixNano()
	return f.entries, nil
}

// StaticSource serves a fixed list of entries.
type StaticSource []model.ScheduleEntry

// GetSchedules returns the entries belonging to instructorID.
func (s StaticSource) GetSchedules(_ context.Context, instructorID string) ([]model.ScheduleEntry, error) {
	var out []model.ScheduleEntry
	for _, e := range s {
		if e.InstructorID == "" || e.InstructorID == instructorID {
			out = append(out, e)
		}
	}
	return out, nil
}
