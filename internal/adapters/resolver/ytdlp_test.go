package resolver

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/VoiceBot/internal/domain"
)

type call struct {
	name string
	args []string
}

// scripted answers each run with the next output in order.
type scripted struct {
	outputs []string
	errs    []error
	calls   []call
}

func (s *scripted) run(_ context.Context, name string, args ...string) ([]byte, error) {
	i := len(s.calls)
	s.calls = append(s.calls, call{name, args})
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if i < len(s.outputs) {
		return []byte(s.outputs[i]), err
	}
	return nil, err
}

func newYTDLP(s *scripted) *YTDLP {
	y := New("")
	y.Run = s.run
	return y
}

func TestFormatSelector(t *testing.T) {
	tests := []struct {
		p    domain.ResolvePolicy
		want string
	}{
		{domain.ResolvePolicy{MaxHeight: 480, Container: "mp4"}, "best[height<=480][ext=mp4]/best[ext=mp4]/best"},
		{domain.ResolvePolicy{MaxHeight: 720}, "best[height<=720]/best"},
		{domain.ResolvePolicy{Container: "webm"}, "best[ext=webm]/best"},
		{domain.ResolvePolicy{}, "best"},
	}
	for _, tt := range tests {
		if got := FormatSelector(tt.p); got != tt.want {
			t.Errorf("FormatSelector(%+v) = %q, want %q", tt.p, got, tt.want)
		}
	}
}

func TestStreamModeProbesOnce(t *testing.T) {
	s := &scripted{outputs: []string{`{"title":"Clip","url":"https://cdn.test/v.mp4","duration":61.5}`}}
	media, err := newYTDLP(s).Resolve(context.Background(), "https://youtu.be/x", domain.ResolvePolicy{MaxHeight: 480, Container: "mp4"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if media.Source != "https://cdn.test/v.mp4" || media.Title != "Clip" || media.Local {
		t.Errorf("media = %+v", media)
	}
	if media.Duration != 61500*time.Millisecond {
		t.Errorf("duration = %v", media.Duration)
	}
	if len(s.calls) != 1 || s.calls[0].name != "yt-dlp" {
		t.Fatalf("calls = %+v", s.calls)
	}
	args := s.calls[0].args
	for _, want := range []string{"-J", "--no-playlist", "best[height<=480][ext=mp4]/best[ext=mp4]/best"} {
		if !slices.Contains(args, want) {
			t.Errorf("args %v missing %q", args, want)
		}
	}
	if args[len(args)-1] != "https://youtu.be/x" || args[len(args)-2] != "--" {
		t.Errorf("link not passed after --: %v", args)
	}
	if slices.Contains(args, "--cookies") {
		t.Error("--cookies passed without a cookies file")
	}
}

func TestCookiesOnlyWhenFileExists(t *testing.T) {
	cookies := filepath.Join(t.TempDir(), "cookies.txt")
	if err := os.WriteFile(cookies, []byte("# Netscape HTTP Cookie File\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	args := probeArgs("https://a.test", domain.ResolvePolicy{CookiesFile: cookies})
	i := slices.Index(args, "--cookies")
	if i < 0 || args[i+1] != cookies {
		t.Errorf("args = %v", args)
	}

	args = probeArgs("https://a.test", domain.ResolvePolicy{CookiesFile: cookies + ".missing"})
	if slices.Contains(args, "--cookies") {
		t.Errorf("missing file still passed: %v", args)
	}
}

func TestStreamURLFallsBackToFormats(t *testing.T) {
	s := &scripted{outputs: []string{`{"title":"x","requested_formats":[{"url":"https://v"},{"url":"https://a"}]}`}}
	media, err := newYTDLP(s).Resolve(context.Background(), "https://a.test", domain.ResolvePolicy{}, "")
	if err != nil || media.Source != "https://v" {
		t.Errorf("media = %+v, err = %v", media, err)
	}
}

func TestDownloadModeWritesIntoDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "room_-1", "3")
	file := filepath.Join(dir, "abc.mp4")
	s := &scripted{outputs: []string{
		`{"title":"Clip","url":"https://cdn.test/v.mp4","duration":30}`,
		`{"title":"Clip","_filename":"` + file + `"}` + "\n",
	}}
	policy := domain.ResolvePolicy{Download: true, MaxDuration: time.Minute}

	media, err := newYTDLP(s).Resolve(context.Background(), "https://a.test", policy, dir)
	if err != nil {
		t.Fatal(err)
	}
	if !media.Local || media.Source != file {
		t.Errorf("media = %+v", media)
	}
	if len(s.calls) != 2 {
		t.Fatalf("calls = %d", len(s.calls))
	}
	args := s.calls[1].args
	i := slices.Index(args, "-o")
	if i < 0 || !strings.HasPrefix(args[i+1], dir) || !slices.Contains(args, "--no-simulate") {
		t.Errorf("download args = %v", args)
	}
}

func TestDownloadSkippedOverCap(t *testing.T) {
	s := &scripted{outputs: []string{`{"title":"Movie","url":"https://cdn.test/v.mp4","duration":7200}`}}
	policy := domain.ResolvePolicy{Download: true, MaxDuration: time.Hour}

	_, err := newYTDLP(s).Resolve(context.Background(), "https://a.test", policy, t.TempDir())
	if !errors.Is(err, ErrTooLong) {
		t.Fatalf("err = %v", err)
	}
	if len(s.calls) != 1 {
		t.Errorf("downloaded despite cap: %d calls", len(s.calls))
	}
}

func TestDownloadOutsideDirRejected(t *testing.T) {
	dir := t.TempDir()
	s := &scripted{outputs: []string{
		`{"title":"x","url":"https://v","duration":1}`,
		`{"filename":"/etc/passwd"}`,
	}}
	_, err := newYTDLP(s).Resolve(context.Background(), "https://a.test", domain.ResolvePolicy{Download: true}, dir)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestRunnerErrorsPropagate(t *testing.T) {
	boom := errors.New("ERROR: Unsupported URL")
	s := &scripted{errs: []error{boom}}
	if _, err := newYTDLP(s).Resolve(context.Background(), "https://a.test", domain.ResolvePolicy{}, ""); !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}

	s = &scripted{outputs: []string{"not json"}}
	if _, err := newYTDLP(s).Resolve(context.Background(), "https://a.test", domain.ResolvePolicy{}, ""); err == nil {
		t.Error("expected parse error")
	}
}

func TestExecRunnerReportsStderr(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("no sh")
	}
	_, err = execRunner(context.Background(), sh, "-c", "echo 'ERROR: nope' >&2; exit 1")
	if err == nil || !strings.Contains(err.Error(), "ERROR: nope") {
		t.Errorf("err = %v", err)
	}

	out, err := execRunner(context.Background(), sh, "-c", "echo '{}'")
	if err != nil || strings.TrimSpace(string(out)) != "{}" {
		t.Errorf("out = %q, err = %v", out, err)
	}
}

func TestHugeDurationStillHitsCap(t *testing.T) {
	if d := seconds(1e12); d <= 0 || d < 1000*time.Hour {
		t.Errorf("seconds(1e12) = %v", d)
	}

	s := &scripted{outputs: []string{`{"title":"Stream","url":"https://cdn.test/live","duration":1e12}`}}
	policy := domain.ResolvePolicy{Download: true, MaxDuration: time.Hour}
	_, err := newYTDLP(s).Resolve(context.Background(), "https://a.test", policy, t.TempDir())
	if !errors.Is(err, ErrTooLong) {
		t.Fatalf("err = %v, want ErrTooLong", err)
	}
	if len(s.calls) != 1 {
		t.Errorf("downloaded despite cap: %d calls", len(s.calls))
	}
}
