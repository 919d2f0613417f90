package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChallengeEscalatesDelay(t *testing.T) {
	l := NewCourtesyLimiter(5*time.Second, 10*time.Second, 30*time.Second)

	l.RecordChallenge()
	assert.Equal(t, 15*time.Second, l.Delay())

	l.RecordChallenge()
	assert.Equal(t, 25*time.Second, l.Delay())

	l.RecordChallenge()
	assert.Equal(t, 30*time.Second, l.Delay(), "delay is capped at the maximum")
}

func TestSuccessStreakWalksDelayBack(t *testing.T) {
	l := NewCourtesyLimiter(5*time.Second, 10*time.Second, 60*time.Second)
	l.RecordChallenge()
	assert.Equal(t, 15*time.Second, l.Delay())

	for i := 0; i < 9; i++ {
		l.RecordSuccess()
	}
	assert.Equal(t, 15*time.Second, l.Delay(), "nine calm pages are not enough")

	l.RecordSuccess()
	assert.Equal(t, 5*time.Second, l.Delay())

	for i := 0; i < 10; i++ {
		l.RecordSuccess()
	}
	assert.Equal(t, 5*time.Second, l.Delay(), "never drops below the base delay")
}

func TestWaitRespectsCancellation(t *testing.T) {
	l := NewCourtesyLimiter(time.Hour, time.Hour, 2*time.Hour)
	// Prime lastAction so the next wait would block for an hour.
	assert.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitIsImmediateWithZeroDelay(t *testing.T) {
	l := NewCourtesyLimiter(0, time.Second, time.Minute)

	start := time.Now()
	assert.NoError(t, l.Wait(context.Background()))
	assert.NoError(t, l.Wait(context.Background()))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}
