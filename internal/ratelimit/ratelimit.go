package ratelimit

import (
	"context"
	"sync"
	"time"
)

// CourtesyLimiter enforces a fixed pause between requests to the order
// history UI. The pause is a courtesy, not a correctness requirement,
// but skipping it measurably increases CAPTCHA challenge frequency.
// Every recorded challenge escalates the pause up to maxDelay; a run of
// unchallenged requests walks it back down.
type CourtesyLimiter struct {
	mu         sync.Mutex
	baseDelay  time.Duration
	delay      time.Duration
	step       time.Duration
	maxDelay   time.Duration
	lastAction time.Time
	calmStreak int
}

func NewCourtesyLimiter(baseDelay, step, maxDelay time.Duration) *CourtesyLimiter {
	return &CourtesyLimiter{
		baseDelay: baseDelay,
		delay:     baseDelay,
		step:      step,
		maxDelay:  maxDelay,
	}
}

// Wait blocks until the current inter-request delay has elapsed since
// the previous call, or until ctx is cancelled.
func (l *CourtesyLimiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	delay := l.delay
	elapsed := time.Since(l.lastAction)
	l.mu.Unlock()

	if elapsed < delay {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay - elapsed):
		}
	}

	l.mu.Lock()
	l.lastAction = time.Now()
	l.mu.Unlock()
	return nil
}

// RecordChallenge escalates the delay after a CAPTCHA challenge.
func (l *CourtesyLimiter) RecordChallenge() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calmStreak = 0
	l.delay += l.step
	if l.delay > l.maxDelay {
		l.delay = l.maxDelay
	}
}

// RecordSuccess walks the delay back toward the base after ten
// consecutive unchallenged requests.
func (l *CourtesyLimiter) RecordSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calmStreak++
	if l.calmStreak < 10 || l.delay <= l.baseDelay {
		return
	}

	l.calmStreak = 0
	l.delay -= l.step
	if l.delay < l.baseDelay {
		l.delay = l.baseDelay
	}
}

// Delay returns the current inter-request delay.
func (l *CourtesyLimiter) Delay() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.delay
}
