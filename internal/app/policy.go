package app

import (
	"context"
	"time"
)

// Timeouts bounds each network stage of a play.
type Timeouts struct {
	Join    time.Duration `mapstructure:"join"`
	Resolve time.Duration `mapstructure:"resolve"`
	Engine  time.Duration `mapstructure:"engine"`
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Join:    30 * time.Second,
		Resolve: 5 * time.Minute,
		Engine:  30 * time.Second,
	}
}

// WithStageTimeout derives a context bounded by d; d <= 0 means unbounded.
func WithStageTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
