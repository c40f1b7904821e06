package docfind

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// CheckPoint tracks a checkpoint submitted to a collection's mutation
// queue. The service processes a checkpoint only after every earlier
// submission to the same queue, and before any later one; with commit set,
// all preceding changes become visible to search before the checkpoint is
// reached.
//
// Once a checkpoint is observed reached (or expired) its state is final and
// no further status requests are issued.
type CheckPoint struct {
	client     *Client
	collection string
	id         string
	commit     bool

	// Sticky terminal state. Concurrent polls are idempotent status
	// requests; whichever observes the terminal state first stores it.
	final atomic.Pointer[CheckpointStatus]
}

// ID returns the checkpoint's token, identifying it on the service.
func (cp *CheckPoint) ID() string { return cp.id }

// Commit reports whether the checkpoint forces preceding changes to become
// searchable.
func (cp *CheckPoint) Commit() bool { return cp.commit }

// Status performs a single non-blocking status request. Once the checkpoint
// was observed reached, the cached status is returned without a request.
// An expired checkpoint returns ErrCheckpointExpired.
func (cp *CheckPoint) Status(ctx context.Context) (*CheckpointStatus, error) {
	if final := cp.final.Load(); final != nil {
		if final.Expired {
			return nil, fmt.Errorf("%w: %s", ErrCheckpointExpired, cp.id)
		}
		return final, nil
	}

	start := time.Now()
	status, err := cp.client.proto.CheckpointStatus(ctx, cp.collection, cp.id)
	cp.client.opts.metrics.RecordPoll(time.Since(start), err)
	if err != nil {
		cp.client.opts.logger.LogPoll(ctx, cp.collection, cp.id, false, err)
		return nil, err
	}
	cp.client.opts.logger.LogPoll(ctx, cp.collection, cp.id, status.Reached, nil)

	if status.Expired {
		cp.final.Store(status)
		return nil, fmt.Errorf("%w: %s", ErrCheckpointExpired, cp.id)
	}
	if status.Reached {
		cp.final.Store(status)
	}
	return status, nil
}

// Reached reports whether the checkpoint has been reached, polling once if
// its state is not yet known.
func (cp *CheckPoint) Reached(ctx context.Context) (bool, error) {
	status, err := cp.Status(ctx)
	if err != nil {
		return false, err
	}
	return status.Reached, nil
}

// Wait blocks until the checkpoint is reached, polling the service at the
// client's configured interval (the service offers no push notification).
// The interval grows toward the configured maximum when they differ.
//
// Wait gives up with ErrWaitTimeout when ctx is done or the client's
// WaitTimeout elapses; that says nothing about the checkpoint itself, which
// may still be reached later.
func (cp *CheckPoint) Wait(ctx context.Context) (*CheckpointStatus, error) {
	if timeout := cp.client.opts.waitTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	interval := cp.client.opts.pollInterval
	maxInterval := max(cp.client.opts.maxPollInterval, interval)

	for {
		// Poll first: the checkpoint is often already reached by the
		// time the caller waits on it.
		status, err := cp.Status(ctx)
		if err != nil {
			return nil, err
		}
		if status.Reached {
			return status, nil
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %s: %w", ErrWaitTimeout, cp.id, ctx.Err())
		case <-timer.C:
		}
		if interval < maxInterval {
			interval = min(interval*2, maxInterval)
		}
	}
}
