// Package storage keeps downloaded media under per-session directories.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dkeye/VoiceBot/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// Artifacts lays files out as <base>/<room>/<generation>/. Releasing one
// generation never touches another room or another generation.
type Artifacts struct {
	fs       afero.Fs
	basePath string
}

// Config holds configuration for artifact storage.
type Config struct {
	BasePath string `mapstructure:"base_path"`
}

// NewArtifacts creates the base directory on fs. Pass afero.NewOsFs() in
// production; downloads are written by an external process.
func NewArtifacts(fs afero.Fs, cfg Config) (*Artifacts, error) {
	base := cfg.BasePath
	if base == "" {
		base = "downloads"
	}
	if _, ok := fs.(*afero.OsFs); ok {
		abs, err := filepath.Abs(base)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path: %w", err)
		}
		base = abs
	}
	if err := fs.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}
	return &Artifacts{fs: fs, basePath: base}, nil
}

func (a *Artifacts) roomPath(room domain.RoomID) string {
	// Chat ids of groups are negative; keep the sign readable on disk.
	return filepath.Join(a.basePath, "room_"+room.String())
}

func (a *Artifacts) path(room domain.RoomID, generation uint64) string {
	return filepath.Join(a.roomPath(room), strconv.FormatUint(generation, 10))
}

// Dir creates and returns the directory for one play attempt.
func (a *Artifacts) Dir(room domain.RoomID, generation uint64) (string, error) {
	p := a.path(room, generation)
	if err := a.fs.MkdirAll(p, 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact dir: %w", err)
	}
	return p, nil
}

// Release removes the directory of one play attempt. Missing is not an error.
func (a *Artifacts) Release(room domain.RoomID, generation uint64) error {
	p := a.path(room, generation)
	if err := a.fs.RemoveAll(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove artifact dir: %w", err)
	}
	log.Debug().Str("module", "storage").Stringer("room", room).Uint64("generation", generation).Msg("artifacts released")
	return nil
}

// Sweep removes everything left under the base path, e.g. by a crashed run.
// Call only before any session exists.
func (a *Artifacts) Sweep() error {
	entries, err := afero.ReadDir(a.fs, a.basePath)
	if err != nil {
		return fmt.Errorf("failed to list base path: %w", err)
	}
	for _, e := range entries {
		if err := a.fs.RemoveAll(filepath.Join(a.basePath, e.Name())); err != nil {
			return fmt.Errorf("failed to remove %s: %w", e.Name(), err)
		}
	}
	return nil
}

func (a *Artifacts) BasePath() string { return a.basePath }
