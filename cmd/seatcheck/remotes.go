package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/BurntSushi/toml"
)

// profile is a named seatcheck server.
type profile struct {
	URL     string `toml:"url"`
	NATSURL string `toml:"nats_url,omitempty"`
	Actor   string `toml:"actor,omitempty"` // instructor name used against this server
}

// profileFile is the on-disk set of profiles, stored as TOML under the
// user config directory.
type profileFile struct {
	Active   string             `toml:"active,omitempty"`
	Profiles map[string]profile `toml:"remote"`
}

func profilePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "seatcheck", "remotes.toml"), nil
}

// readProfiles loads the profile file. A missing file is an empty set.
func readProfiles() (*profileFile, error) {
	f := &profileFile{Profiles: map[string]profile{}}
	path, err := profilePath()
	if err != nil {
		return nil, err
	}
	if _, err := toml.DecodeFile(path, f); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if f.Profiles == nil {
		f.Profiles = map[string]profile{}
	}
	return f, nil
}

// write replaces the profile file atomically, readable only by the user.
func (f *profileFile) write() error {
	path, err := profilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".remotes-*.toml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := toml.NewEncoder(tmp).Encode(f); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (f *profileFile) names() []string {
	names := make([]string, 0, len(f.Profiles))
	for name := range f.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f *profileFile) lookup(name string) (profile, error) {
	p, ok := f.Profiles[name]
	if !ok {
		return profile{}, fmt.Errorf("no remote named %q", name)
	}
	return p, nil
}

// activeProfile is read once per process; a broken or missing file yields
// the zero profile.
var activeProfile = sync.OnceValue(func() profile {
	f, err := readProfiles()
	if err != nil || f.Active == "" {
		return profile{}
	}
	return f.Profiles[f.Active]
})
