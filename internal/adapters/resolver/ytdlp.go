// Package resolver turns links into playable sources with yt-dlp.
package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceBot/internal/domain"
)

// Runner executes name with args and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ErrTooLong is returned before downloading anything over the duration cap.
var ErrTooLong = errors.New("media longer than allowed")

// YTDLP implements core.Resolver. It is stateless; concurrent calls for
// different rooms are independent processes.
type YTDLP struct {
	Binary string
	Run    Runner
}

func New(binary string) *YTDLP {
	if binary == "" {
		binary = "yt-dlp"
	}
	return &YTDLP{Binary: binary, Run: execRunner}
}

type info struct {
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Duration    float64 `json:"duration"`
	Filename    string  `json:"filename"`
	AltFilename string  `json:"_filename"`
	Formats     []struct {
		URL string `json:"url"`
	} `json:"formats"`
	RequestedFormats []struct {
		URL string `json:"url"`
	} `json:"requested_formats"`
}

func (y *YTDLP) Resolve(ctx context.Context, link string, policy domain.ResolvePolicy, dir string) (domain.ResolvedMedia, error) {
	probe, err := y.probe(ctx, link, policy)
	if err != nil {
		return domain.ResolvedMedia{}, err
	}
	media := domain.ResolvedMedia{
		Title:    probe.Title,
		Duration: seconds(probe.Duration),
		Source:   streamURL(probe),
	}
	if !policy.Download {
		return media, nil
	}

	if dir == "" {
		return domain.ResolvedMedia{}, errors.New("download requested without a directory")
	}
	if policy.MaxDuration > 0 && media.Duration > policy.MaxDuration {
		return domain.ResolvedMedia{}, fmt.Errorf("%w: %s > %s", ErrTooLong, media.Duration, policy.MaxDuration)
	}

	file, err := y.download(ctx, link, policy, dir)
	if err != nil {
		return domain.ResolvedMedia{}, err
	}
	media.Source = file
	media.Local = true
	return media, nil
}

func (y *YTDLP) probe(ctx context.Context, link string, policy domain.ResolvePolicy) (info, error) {
	out, err := y.Run(ctx, y.Binary, probeArgs(link, policy)...)
	if err != nil {
		return info{}, err
	}
	var in info
	if err := json.Unmarshal(out, &in); err != nil {
		return info{}, fmt.Errorf("parse yt-dlp output: %w", err)
	}
	return in, nil
}

func (y *YTDLP) download(ctx context.Context, link string, policy domain.ResolvePolicy, dir string) (string, error) {
	out, err := y.Run(ctx, y.Binary, downloadArgs(link, policy, dir)...)
	if err != nil {
		return "", err
	}
	var in info
	if err := json.Unmarshal(lastLine(out), &in); err != nil {
		return "", fmt.Errorf("parse yt-dlp output: %w", err)
	}
	file := in.Filename
	if file == "" {
		file = in.AltFilename
	}
	if file == "" {
		return "", errors.New("yt-dlp reported no output file")
	}
	// The file has to stay inside the session's directory, or releasing it
	// would leave it behind.
	rel, err := filepath.Rel(dir, file)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("yt-dlp wrote outside %s: %s", dir, file)
	}
	return file, nil
}

// FormatSelector mirrors "best[height<=480][ext=mp4]/best[ext=mp4]/best".
func FormatSelector(p domain.ResolvePolicy) string {
	var parts []string
	ext := ""
	if p.Container != "" {
		ext = "[ext=" + p.Container + "]"
	}
	if p.MaxHeight > 0 {
		parts = append(parts, "best[height<="+strconv.Itoa(p.MaxHeight)+"]"+ext)
	}
	if ext != "" {
		parts = append(parts, "best"+ext)
	}
	parts = append(parts, "best")
	return strings.Join(parts, "/")
}

func baseArgs(link string, p domain.ResolvePolicy) []string {
	args := []string{"--no-playlist", "--no-warnings", "--quiet", "-f", FormatSelector(p)}
	if p.CookiesFile != "" {
		if _, err := os.Stat(p.CookiesFile); err == nil {
			args = append(args, "--cookies", p.CookiesFile)
		} else {
			log.Debug().Str("module", "adapters.resolver").Str("file", p.CookiesFile).Msg("cookies file not found, skipping")
		}
	}
	return append(args, "--", link)
}

func probeArgs(link string, p domain.ResolvePolicy) []string {
	return append([]string{"-J"}, baseArgs(link, p)...)
}

func downloadArgs(link string, p domain.ResolvePolicy, dir string) []string {
	return append([]string{"--no-simulate", "-j", "-o", filepath.Join(dir, "%(id)s.%(ext)s")}, baseArgs(link, p)...)
}

func streamURL(in info) string {
	if in.URL != "" {
		return in.URL
	}
	// Merged formats: take the first (video) stream.
	for _, f := range in.RequestedFormats {
		if f.URL != "" {
			return f.URL
		}
	}
	if n := len(in.Formats); n > 0 {
		return in.Formats[n-1].URL
	}
	return ""
}

// seconds saturates instead of overflowing, so absurd durations still hit the cap.
func seconds(s float64) time.Duration {
	if s <= 0 || math.IsNaN(s) {
		return 0
	}
	if s >= math.MaxInt64/float64(time.Second) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(s * float64(time.Second))
}

func lastLine(b []byte) []byte {
	b = bytes.TrimSpace(b)
	if i := bytes.LastIndexByte(b, '\n'); i >= 0 {
		return b[i+1:]
	}
	return b
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = 5 * time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
	}
	return stdout.Bytes(), nil
}
