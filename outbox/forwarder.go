package outbox

import (
	"context"
	"errors"
	"time"

	"outcomes/logger"
)

// Queue yields pending messages. PGStore implements it.
type Queue interface {
	ClaimPending(ctx context.Context, limit, maxAttempts int, fn func(context.Context, Message) error) (ClaimResult, error)
}

// Publisher delivers one message to the change queue.
type Publisher interface {
	Publish(ctx context.Context, m Message) error
}

type ForwarderOptions struct {
	Interval    time.Duration
	Batch       int
	MaxAttempts int
}

// Forwarder drains the outbox into the change queue on a fixed interval.
type Forwarder struct {
	queue Queue
	pub   Publisher
	log   *logger.Logger
	opts  ForwarderOptions
}

func NewForwarder(queue Queue, pub Publisher, log *logger.Logger, opts ForwarderOptions) *Forwarder {
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Second
	}
	if opts.Batch <= 0 {
		opts.Batch = 25
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 10
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Forwarder{
		queue: queue,
		pub:   pub,
		log:   log.With("component", "OutboxForwarder"),
		opts:  opts,
	}
}

// Run forwards until ctx is cancelled. A full batch that published cleanly is
// followed immediately by another claim. Any publish failure waits for the
// next tick so retries stay spaced by the interval.
func (f *Forwarder) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.opts.Interval)
	defer ticker.Stop()

	for {
		for {
			res, err := f.RunOnce(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return nil
				}
				f.log.Warn("outbox claim failed", "error", err)
				break
			}
			if res.Claimed < f.opts.Batch || res.Failed+res.Dead > 0 {
				break
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce claims and publishes a single batch.
func (f *Forwarder) RunOnce(ctx context.Context) (ClaimResult, error) {
	res, err := f.queue.ClaimPending(ctx, f.opts.Batch, f.opts.MaxAttempts, func(ctx context.Context, m Message) error {
		if err := f.pub.Publish(ctx, m); err != nil {
			f.log.Warn("publish failed", "messageId", m.ID, "topic", m.Topic, "attempt", m.Attempts+1, "error", err)
			return err
		}
		return nil
	})
	if err != nil {
		return res, err
	}
	if res.Claimed > 0 {
		f.log.Debug("outbox batch forwarded", "claimed", res.Claimed, "processed", res.Processed, "failed", res.Failed, "dead", res.Dead)
	}
	if res.Dead > 0 {
		f.log.Error("outbox messages exhausted retries", "dead", res.Dead)
	}
	return res, nil
}
