package orch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/VoiceBot/internal/app"
	"github.com/dkeye/VoiceBot/internal/core"
	"github.com/dkeye/VoiceBot/internal/domain"
)

var errEngine = errors.New("engine says no")

type fakeMembership struct {
	mu    sync.Mutex
	fail  map[domain.RoomID]error
	calls int
}

func (f *fakeMembership) EnsureMember(_ context.Context, room domain.RoomID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.fail[room]; err != nil {
		return &core.JoinError{Room: room, Step: "query", Err: err}
	}
	return nil
}

func (f *fakeMembership) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeMedia struct {
	mu       sync.Mutex
	duration time.Duration
	err      error
	calls    int
	// gate, when set, blocks Resolve until closed or ctx is done.
	gate    chan struct{}
	started chan struct{}
}

func (f *fakeMedia) Resolve(ctx context.Context, room domain.RoomID, gen uint64, link string) (domain.ResolvedMedia, error) {
	f.mu.Lock()
	f.calls++
	gate, started, err := f.gate, f.started, f.err
	f.mu.Unlock()
	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.ResolvedMedia{}, &core.ResolutionError{Link: link, Reason: "extraction failed", Err: ctx.Err()}
		}
	}
	if err != nil {
		return domain.ResolvedMedia{}, err
	}
	return domain.ResolvedMedia{
		Source:   link + "#stream",
		Title:    "title of " + link,
		Duration: f.duration,
	}, nil
}

func (f *fakeMedia) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeEngine struct {
	mu       sync.Mutex
	calls    []string
	playErr  error
	pauseErr error
	leaveErr error

	inPlay  atomic.Int32
	maxPlay atomic.Int32
	delay   time.Duration
	// hang makes Play wait for ctx instead of answering.
	hang bool
}

func (f *fakeEngine) record(op string) {
	f.mu.Lock()
	f.calls = append(f.calls, op)
	f.mu.Unlock()
}

func (f *fakeEngine) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeEngine) Play(ctx context.Context, room domain.RoomID, source string, _ domain.Quality) error {
	n := f.inPlay.Add(1)
	defer f.inPlay.Add(-1)
	for {
		m := f.maxPlay.Load()
		if n <= m || f.maxPlay.CompareAndSwap(m, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.record("play")
	if f.hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.playErr
}

func (f *fakeEngine) Pause(context.Context, domain.RoomID) error {
	f.record("pause")
	return f.pauseErr
}

func (f *fakeEngine) Resume(context.Context, domain.RoomID) error {
	f.record("resume")
	return nil
}

func (f *fakeEngine) Leave(context.Context, domain.RoomID) error {
	f.record("leave")
	return f.leaveErr
}

type fakeArtifacts struct {
	mu       sync.Mutex
	released map[domain.RoomID][]uint64
}

func (f *fakeArtifacts) Dir(domain.RoomID, uint64) (string, error) { return "", nil }

func (f *fakeArtifacts) Release(room domain.RoomID, gen uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released == nil {
		f.released = make(map[domain.RoomID][]uint64)
	}
	f.released[room] = append(f.released[room], gen)
	return nil
}

func (f *fakeArtifacts) Released(room domain.RoomID) []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.released[room]...)
}

type fixture struct {
	orch       *Orchestrator
	membership *fakeMembership
	media      *fakeMedia
	engine     *fakeEngine
	artifacts  *fakeArtifacts
}

func newFixture() *fixture {
	f := &fixture{
		membership: &fakeMembership{},
		media:      &fakeMedia{},
		engine:     &fakeEngine{},
		artifacts:  &fakeArtifacts{},
	}
	f.orch = &Orchestrator{
		Store:         app.NewSessionStore(),
		Membership:    f.membership,
		Media:         f.media,
		Engine:        f.engine,
		Artifacts:     f.artifacts,
		Quality:       domain.Quality{Audio: "high", Video: "sd_480p"},
		EngineTimeout: time.Second,
	}
	return f
}

// hangingResolver never answers before its ctx ends.
type hangingResolver struct{}

func (hangingResolver) Resolve(ctx context.Context, _ string, _ domain.ResolvePolicy, _ string) (domain.ResolvedMedia, error) {
	<-ctx.Done()
	return domain.ResolvedMedia{}, ctx.Err()
}
