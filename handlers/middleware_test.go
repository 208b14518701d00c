package handlers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func limiterCount(l *merchantLimiter) int {
	n := 0
	l.limiters.Range(func(_, _ any) bool { n++; return true })
	return n
}

func TestMerchantLimiterDropsIdleEntries(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	l := newMerchantLimiter(10, 20)
	l.now = func() time.Time { return now }
	l.lastSweep.Store(now.UnixNano())

	busy := l.get("busy")
	l.get("idle")
	assert.Equal(t, 2, limiterCount(l))

	now = now.Add(20 * time.Minute)
	assert.Same(t, busy, l.get("busy"))

	now = now.Add(15 * time.Minute)
	l.get("busy")
	assert.Equal(t, 1, limiterCount(l), "idle merchant is dropped after %s", limiterIdle)
	_, ok := l.limiters.Load("idle")
	assert.False(t, ok)
	assert.Same(t, busy, l.get("busy"), "active merchants keep their bucket")
}

func TestMerchantLimiterIdleCoversRefill(t *testing.T) {
	l := newMerchantLimiter(0.001, 10)
	assert.Equal(t, 10000*time.Second, l.idle)
	assert.Equal(t, limiterIdle, newMerchantLimiter(20, 40).idle)
}
