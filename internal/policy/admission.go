// Package policy decides whether an inbound chat request may enter the
// pipeline.
package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/pinfetch/internal/metrics"
)

var (
	// ErrBlocked means the chat is on the blocked-caller list.
	ErrBlocked = errors.New("chat is blocked")
	// ErrThrottled means the chat's rate limit wait did not complete.
	ErrThrottled = errors.New("chat is throttled")
)

// Waiter blocks until the chat may proceed.
type Waiter interface {
	Wait(ctx context.Context, chatID int64) error
}

// Admission combines the blocked list with an optional rate limiter.
type Admission struct {
	blocked map[int64]struct{}
	limiter Waiter
}

// NewAdmission builds an Admission. limiter may be nil.
func NewAdmission(blocked []int64, limiter Waiter) *Admission {
	set := make(map[int64]struct{}, len(blocked))
	for _, id := range blocked {
		set[id] = struct{}{}
	}
	return &Admission{blocked: set, limiter: limiter}
}

// Admit returns nil when the request may proceed.
func (a *Admission) Admit(ctx context.Context, chatID int64) error {
	if _, ok := a.blocked[chatID]; ok {
		metrics.ObserveAdmissionRejection("blocked")
		return ErrBlocked
	}
	if a.limiter == nil {
		return nil
	}
	if err := a.limiter.Wait(ctx, chatID); err != nil {
		metrics.ObserveAdmissionRejection("throttled")
		return fmt.Errorf("%w: %w", ErrThrottled, err)
	}
	return nil
}
