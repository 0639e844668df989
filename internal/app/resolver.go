package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dkeye/VoiceBot/internal/core"
	"github.com/dkeye/VoiceBot/internal/domain"
	"github.com/rs/zerolog/log"
)

var errNoArtifactStore = errors.New("download requested but no artifact store configured")

// MediaResolver applies the resolve policy around an external core.Resolver.
type MediaResolver struct {
	Resolver  core.Resolver
	Artifacts core.ArtifactStore
	Policy    domain.ResolvePolicy
	Timeout   time.Duration
}

// Resolve returns a playable source for link or a *core.ResolutionError.
// Local files land in the directory scoped to (room, generation).
func (r *MediaResolver) Resolve(ctx context.Context, room domain.RoomID, generation uint64, link string) (domain.ResolvedMedia, error) {
	if err := validateLink(link); err != nil {
		return domain.ResolvedMedia{}, &core.ResolutionError{Link: link, Reason: "invalid link", Err: err}
	}

	var dir string
	if r.Policy.Download {
		if r.Artifacts == nil {
			return domain.ResolvedMedia{}, &core.ResolutionError{Link: link, Reason: "storage unavailable", Err: errNoArtifactStore}
		}
		d, err := r.Artifacts.Dir(room, generation)
		if err != nil {
			return domain.ResolvedMedia{}, &core.ResolutionError{Link: link, Reason: "storage unavailable", Err: err}
		}
		dir = d
	}

	ctx, cancel := WithStageTimeout(ctx, r.Timeout)
	defer cancel()

	media, err := r.Resolver.Resolve(ctx, link, r.Policy, dir)
	if err != nil {
		r.release(room, generation)
		return domain.ResolvedMedia{}, &core.ResolutionError{Link: link, Reason: "extraction failed", Err: err}
	}
	if r.Policy.MaxDuration > 0 && media.Duration > r.Policy.MaxDuration {
		r.release(room, generation)
		return domain.ResolvedMedia{}, &core.ResolutionError{
			Link:   link,
			Reason: fmt.Sprintf("duration %s exceeds limit %s", media.Duration, r.Policy.MaxDuration),
		}
	}
	if media.Source == "" {
		r.release(room, generation)
		return domain.ResolvedMedia{}, &core.ResolutionError{Link: link, Reason: "no playable source"}
	}
	if media.Title == "" {
		media.Title = "Unknown"
	}
	return media, nil
}

func (r *MediaResolver) release(room domain.RoomID, generation uint64) {
	if !r.Policy.Download || r.Artifacts == nil {
		return
	}
	if err := r.Artifacts.Release(room, generation); err != nil {
		log.Warn().Err(err).Str("module", "app.resolver").Stringer("room", room).Uint64("generation", generation).Msg("artifact release failed")
	}
}

func validateLink(link string) error {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
