package storage

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
)

func newTestArtifacts(t *testing.T) (*Artifacts, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	a, err := NewArtifacts(fs, Config{BasePath: "/data"})
	if err != nil {
		t.Fatalf("NewArtifacts: %v", err)
	}
	return a, fs
}

func TestDirIsScopedPerRoomAndGeneration(t *testing.T) {
	a, _ := newTestArtifacts(t)

	d1, err := a.Dir(-100, 1)
	if err != nil {
		t.Fatalf("Dir: %v", err)
	}
	d2, _ := a.Dir(-100, 2)
	d3, _ := a.Dir(-200, 1)

	if d1 == d2 || d1 == d3 || d2 == d3 {
		t.Fatalf("dirs are not distinct: %q %q %q", d1, d2, d3)
	}
	if want := filepath.Join("/data", "room_-100", "1"); d1 != want {
		t.Errorf("Dir(-100, 1) = %q, want %q", d1, want)
	}
}

func TestReleaseLeavesOtherRoomsAlone(t *testing.T) {
	a, fs := newTestArtifacts(t)

	dirA, _ := a.Dir(1, 1)
	dirB, _ := a.Dir(2, 1)
	fileA := filepath.Join(dirA, "a.mp4")
	fileB := filepath.Join(dirB, "b.mp4")
	if err := afero.WriteFile(fs, fileA, []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fs, fileB, []byte("b"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := a.Release(1, 1); err != nil {
		t.Fatalf("Release: %v", err)
	}

	if ok, _ := afero.Exists(fs, fileA); ok {
		t.Error("room 1 artifact survived release")
	}
	if ok, _ := afero.Exists(fs, fileB); !ok {
		t.Error("room 2 artifact was deleted by room 1 release")
	}
}

func TestReleaseMissingIsNoop(t *testing.T) {
	a, _ := newTestArtifacts(t)
	if err := a.Release(42, 7); err != nil {
		t.Errorf("Release of missing dir: %v", err)
	}
}

func TestSweep(t *testing.T) {
	a, fs := newTestArtifacts(t)
	d, _ := a.Dir(5, 3)
	_ = afero.WriteFile(fs, filepath.Join(d, "x"), []byte("x"), 0o644)

	if err := a.Sweep(); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	entries, _ := afero.ReadDir(fs, a.BasePath())
	if len(entries) != 0 {
		t.Errorf("base path has %d entries after sweep", len(entries))
	}
}
