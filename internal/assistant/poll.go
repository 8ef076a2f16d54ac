package assistant

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sashabaranov/go-openai"
)

// PollConfig shapes the RetrieveRun schedule: exponential from
// InitialInterval up to MaxInterval, giving up after MaxWait.
type PollConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxWait         time.Duration
}

func DefaultPollConfig() PollConfig {
	return PollConfig{
		InitialInterval: 250 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      1.5,
		MaxWait:         90 * time.Second,
	}
}

func (p PollConfig) backOff() *backoff.ExponentialBackOff {
	def := DefaultPollConfig()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = orDefault(p.InitialInterval, def.InitialInterval)
	b.MaxInterval = orDefault(p.MaxInterval, def.MaxInterval)
	b.MaxElapsedTime = orDefault(p.MaxWait, def.MaxWait)
	b.Multiplier = def.Multiplier
	if p.Multiplier >= 1 {
		b.Multiplier = p.Multiplier
	}
	b.RandomizationFactor = 0.2
	b.Reset()
	return b
}

func orDefault(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

// settled reports whether the run stopped moving on its own.
func settled(s openai.RunStatus) bool {
	switch s {
	case openai.RunStatusCompleted,
		openai.RunStatusFailed,
		openai.RunStatusRequiresAction,
		openai.RunStatusExpired,
		openai.RunStatusCancelled,
		runStatusIncomplete:
		return true
	}
	return false
}

const runStatusIncomplete openai.RunStatus = "incomplete"

// wait polls until the run settles. The last observed run is returned
// alongside any error.
func (d *Driver) wait(ctx context.Context, threadID string, run openai.Run) (openai.Run, error) {
	if settled(run.Status) {
		return run, nil
	}
	start := time.Now()
	defer func() { d.metrics.ObserveRunWait(time.Since(start)) }()

	b := d.poll.backOff()
	for !settled(run.Status) {
		delay := b.NextBackOff()
		if delay == backoff.Stop {
			return run, fmt.Errorf("%w: run %s still %s after %s", ErrRunTimedOut, run.ID, run.Status, b.MaxElapsedTime)
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return run, ctx.Err()
		case <-timer.C:
		}

		next, err := d.api.RetrieveRun(ctx, threadID, run.ID)
		if err != nil {
			return run, fmt.Errorf("retrieve run %s: %w", run.ID, err)
		}
		run = next
	}
	return run, nil
}
