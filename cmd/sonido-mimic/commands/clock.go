package commands

import (
	"context"
	"sync"
	"time"
)

// replayClock maps wall time to a position in the recording. It can be
// paused while the session trains so no audio or pose is skipped.
type replayClock struct {
	mu       sync.Mutex
	start    time.Time
	speed    float64
	paused   time.Duration
	pausedAt time.Time
	now      func() time.Time
}

func newReplayClock(speed float64) *replayClock {
	c := &replayClock{speed: speed, now: time.Now}
	c.start = c.now()
	return c
}

// Position returns how far into the recording playback is.
func (c *replayClock) Position() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !c.pausedAt.IsZero() {
		now = c.pausedAt
	}
	return time.Duration(float64(now.Sub(c.start)-c.paused) * c.speed)
}

func (c *replayClock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pausedAt.IsZero() {
		c.pausedAt = c.now()
	}
}

func (c *replayClock) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.pausedAt.IsZero() {
		c.paused += c.now().Sub(c.pausedAt)
		c.pausedAt = time.Time{}
	}
}

// WaitUntil blocks until playback reaches pos.
func (c *replayClock) WaitUntil(ctx context.Context, pos time.Duration) error {
	const maxSleep = 50 * time.Millisecond

	for {
		cur := c.Position()
		if cur >= pos {
			return nil
		}
		sleep := min(time.Duration(float64(pos-cur)/c.speed), maxSleep)

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
