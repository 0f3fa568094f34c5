package roster

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/alfredjeanlab/seatcheck/internal/model"
)

// fileConfig is the on-disk layout of a roster file. A class matches any
// session with the same subject, section and room, whatever the date:
//
//	[[class]]
//	subject = "CS101"
//	section = "A"
//	room = "R-204"
//
//	  [[class.student]]
//	  id = "s-1"
//	  name = "Ada Lovelace"
//	  sensor = "seat-01"
type fileConfig struct {
	Classes []fileClass `toml:"class"`
}

type fileClass struct {
	Subject  string        `toml:"subject"`
	Section  string        `toml:"section"`
	Room     string        `toml:"room"`
	Students []fileStudent `toml:"student"`
}

type fileStudent struct {
	ID      string `toml:"id"`
	Name    string `toml:"name"`
	Contact string `toml:"contact"`
	Sensor  string `toml:"sensor"`
}

func (c fileClass) matches(key model.SessionKey) bool {
	return strings.TrimSpace(c.Subject) == key.SubjectCode &&
		strings.TrimSpace(c.Section) == key.Section &&
		strings.TrimSpace(c.Room) == key.Room
}

// FileSource serves rosters from a TOML file, re-read when it changes.
type FileSource struct {
	path string

	mu      sync.Mutex
	modTime int64
	classes []fileClass
}

// NewFileSource loads the file at path.
func NewFileSource(path string) (*FileSource, error) {
	fs := &FileSource{path: path}
	if _, err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

// GetRoster returns the students of the first class matching key. A class
// missing from the file is an empty roster.
func (f *FileSource) GetRoster(_ context.Context, key model.SessionKey) ([]model.StudentIdentity, error) {
	classes, err := f.load()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	for _, c := range classes {
		if !c.matches(key) {
			continue
		}
		out := make([]model.StudentIdentity, 0, len(c.Students))
		for _, s := range c.Students {
			out = append(out, model.StudentIdentity{
				StudentID:     s.ID,
				DisplayName:   s.Name,
				ContactInfo:   s.Contact,
				SensorBinding: s.Sensor,
			})
		}
		return out, nil
	}
	return []model.StudentIdentity{}, nil
}

func (f *FileSource) load() ([]fileClass, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	info, err := os.Stat(f.path)
	if err != nil {
		return nil, err
	}
	if f.classes != nil && info.ModTime().UnixNano() == f.modTime {
		return f.classes, nil
	}

	var cfg fileConfig
	if _, err := toml.DecodeFile(f.path, &cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.path, err)
	}
	if cfg.Classes == nil {
		cfg.Classes = []fileClass{}
	}
	f.classes = cfg.Classes
	f.modTime = info.ModTime().UnixNano()
	return f.classes, nil
}
