// Package ratelimit implements per-chat token buckets so one chat cannot push
// the bot into channel-side throttling.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/pinfetch/internal/metrics"
)

const defaultMaxChats = 4096

// Limiter manages per-chat rate limits.
type Limiter struct {
	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
	rate     rate.Limit
	burst    int
	maxChats int
}

// Config holds rate limiter configuration.
type Config struct {
	RPS   float64
	Burst int
	// MaxChats bounds how many idle buckets are retained before pruning.
	MaxChats int
}

// New creates a new Limiter. A non-positive RPS disables limiting.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	maxChats := cfg.MaxChats
	if maxChats <= 0 {
		maxChats = defaultMaxChats
	}
	return &Limiter{
		limiters: make(map[int64]*rate.Limiter),
		rate:     r,
		burst:    burst,
		maxChats: maxChats,
	}
}

// Wait blocks until a token is available for the chat, respecting the context.
func (l *Limiter) Wait(ctx context.Context, chatID int64) error {
	limiter := l.forChat(chatID)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(waited)
	}
	return nil
}

// Len reports the number of tracked chats.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func (l *Limiter) forChat(chatID int64) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, ok := l.limiters[chatID]; ok {
		return limiter
	}
	if len(l.limiters) >= l.maxChats {
		l.pruneLocked()
	}
	limiter := rate.NewLimiter(l.rate, l.burst)
	l.limiters[chatID] = limiter
	return limiter
}

// pruneLocked drops buckets that have refilled, since a fresh bucket behaves
// the same.
func (l *Limiter) pruneLocked() {
	now := time.Now()
	for id, limiter := range l.limiters {
		if limiter.TokensAt(now) >= float64(l.burst) {
			delete(l.limiters, id)
		}
	}
}
