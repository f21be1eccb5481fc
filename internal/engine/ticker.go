package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MRamiBalles/colony/server/internal/platform/logger"
)

// Ticker calls a step function at a fixed real-time period, passing the
// time elapsed since the previous call. A step error stops the loop.
type Ticker struct {
	name     string
	period   time.Duration
	step     func(elapsed time.Duration) error
	logger   *logger.Logger
	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
	err      error
}

// NewTicker creates a ticker. Nothing runs until Start.
func NewTicker(name string, period time.Duration, step func(time.Duration) error, log *logger.Logger) *Ticker {
	return &Ticker{
		name:     name,
		period:   period,
		step:     step,
		logger:   log,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the loop. Call in a goroutine.
func (t *Ticker) Start(ctx context.Context) {
	defer close(t.done)
	t.logger.Info("ticker started", zap.String("ticker", t.name), zap.Duration("period", t.period))

	ticker := time.NewTicker(t.period)
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("ticker stopped by context", zap.String("ticker", t.name))
			return
		case <-t.stopChan:
			t.logger.Info("ticker stopped manually", zap.String("ticker", t.name))
			return
		case now := <-ticker.C:
			elapsed := now.Sub(last)
			last = now
			if err := t.step(elapsed); err != nil {
				t.err = err
				t.logger.Error("ticker step failed, stopping", zap.String("ticker", t.name), zap.Error(err))
				return
			}
		}
	}
}

// Stop gracefully stops the ticker. Calling it twice is harmless.
func (t *Ticker) Stop() {
	t.stopOnce.Do(func() { close(t.stopChan) })
}

// Done is closed once the loop has returned.
func (t *Ticker) Done() <-chan struct{} {
	return t.done
}

// Err returns the step error that stopped the loop, if any. Only valid
// after Done is closed.
func (t *Ticker) Err() error {
	return t.err
}
