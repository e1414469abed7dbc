// Package retry classifies generator errors and runs bounded retries with
// exponential backoff. Only transient classes are retried; permanent ones
// surface immediately.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Class categorizes a generator error for retry decisions.
type Class string

const (
	// ClassRateLimit indicates the provider is rate limiting requests.
	ClassRateLimit Class = "rate_limit"

	// ClassTimeout indicates the call exceeded its deadline.
	ClassTimeout Class = "timeout"

	// ClassServer indicates a 5xx-style provider failure.
	ClassServer Class = "server_error"

	// ClassNetwork indicates a connectivity issue.
	ClassNetwork Class = "network_error"

	// ClassAuth indicates authentication or authorization failure.
	ClassAuth Class = "auth_error"

	// ClassNotFound indicates the requested model or endpoint is missing.
	ClassNotFound Class = "not_found"

	// ClassBadRequest indicates the request itself was rejected.
	ClassBadRequest Class = "bad_request"

	// ClassCanceled indicates the caller gave up.
	ClassCanceled Class = "canceled"

	// ClassUnknown indicates the error pattern was not recognized.
	ClassUnknown Class = "unknown"
)

// classPattern maps an error substring to a class. Patterns are checked in
// order; the first match wins.
type classPattern struct {
	substr string
	class  Class
}

var classPatterns = []classPattern{
	{"rate limit", ClassRateLimit},
	{"too many requests", ClassRateLimit},
	{"429", ClassRateLimit},
	{"quota exceeded", ClassRateLimit},
	{"deadline exceeded", ClassTimeout},
	{"timed out", ClassTimeout},
	{"timeout", ClassTimeout},
	{"internal server error", ClassServer},
	{"bad gateway", ClassServer},
	{"service unavailable", ClassServer},
	{"overloaded", ClassServer},
	{"500", ClassServer},
	{"502", ClassServer},
	{"503", ClassServer},
	{"504", ClassServer},
	{"connection refused", ClassNetwork},
	{"connection reset", ClassNetwork},
	{"no such host", ClassNetwork},
	{"broken pipe", ClassNetwork},
	{"unauthorized", ClassAuth},
	{"forbidden", ClassAuth},
	{"invalid api key", ClassAuth},
	{"authentication", ClassAuth},
	{"401", ClassAuth},
	{"403", ClassAuth},
	{"not found", ClassNotFound},
	{"404", ClassNotFound},
	{"bad request", ClassBadRequest},
	{"invalid request", ClassBadRequest},
	{"400", ClassBadRequest},
}

// Classify maps an error to a Class. Context sentinels and net timeouts are
// recognized before the substring patterns.
func Classify(err error) Class {
	if err == nil {
		return ClassUnknown
	}
	if errors.Is(err, context.Canceled) {
		return ClassCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ClassTimeout
		}
		return ClassNetwork
	}

	msg := strings.ToLower(err.Error())
	for _, p := range classPatterns {
		if strings.Contains(msg, p.substr) {
			return p.class
		}
	}
	return ClassUnknown
}

// Retryable reports whether a class is worth retrying. Unknown errors are
// treated as permanent.
func Retryable(class Class) bool {
	switch class {
	case ClassRateLimit, ClassTimeout, ClassServer, ClassNetwork:
		return true
	default:
		return false
	}
}

// Policy controls attempt counts and backoff shape.
type Policy struct {
	// MaxAttempts is the total number of calls, first try included.
	MaxAttempts int `json:"max_attempts"`

	// BaseDelay seeds the exponential backoff.
	BaseDelay time.Duration `json:"base_delay"`

	// MaxDelay caps a single backoff wait.
	MaxDelay time.Duration `json:"max_delay"`

	// RateLimitDelay is the fixed wait after a rate limit response.
	RateLimitDelay time.Duration `json:"rate_limit_delay"`

	// JitterFactor spreads backoff by up to this fraction either way.
	JitterFactor float64 `json:"jitter_factor"`
}

// DefaultPolicy returns the retry settings used by the orchestrator.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       8 * time.Second,
		RateLimitDelay: 2 * time.Second,
		JitterFactor:   0.2,
	}
}

// Validate checks the policy for construction-time errors.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry policy: max attempts %d, need at least 1", p.MaxAttempts)
	}
	if p.BaseDelay < 0 || p.MaxDelay < 0 || p.RateLimitDelay < 0 {
		return errors.New("retry policy: negative delay")
	}
	if p.MaxDelay > 0 && p.BaseDelay > p.MaxDelay {
		return fmt.Errorf("retry policy: base delay %s above max %s", p.BaseDelay, p.MaxDelay)
	}
	if p.JitterFactor < 0 || p.JitterFactor > 1 {
		return fmt.Errorf("retry policy: jitter factor %.2f outside [0,1]", p.JitterFactor)
	}
	return nil
}

// Delay returns the wait before the next try. attempt is 1-based and counts
// completed calls. Rate limits wait the fixed RateLimitDelay; everything
// else doubles from BaseDelay up to MaxDelay, spread by JitterFactor.
func (p Policy) Delay(attempt int, class Class) time.Duration {
	if class == ClassRateLimit {
		return p.RateLimitDelay
	}

	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}
	if p.JitterFactor > 0 {
		spread := 1 + p.JitterFactor*(2*rand.Float64()-1)
		delay = time.Duration(float64(delay) * spread)
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

// Executor runs operations under a retry policy.
type Executor struct {
	policy Policy
}

// NewExecutor builds an Executor, rejecting invalid policies.
func NewExecutor(policy Policy) (*Executor, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Executor{policy: policy}, nil
}

// Policy returns the executor's retry policy.
func (e *Executor) Policy() Policy {
	return e.policy
}

// Do runs fn until it succeeds, fails permanently, exhausts attempts, or the
// context ends. op names the operation in logs and wrapped errors.
func (e *Executor) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		class := Classify(lastErr)
		if !Retryable(class) {
			log.Debugf("Not retrying %s after %s: %v", op, class, lastErr)
			return lastErr
		}
		if attempt == e.policy.MaxAttempts {
			break
		}

		delay := e.policy.Delay(attempt, class)
		log.Warnf("Attempt %d/%d for %s failed (%s), retrying in %s: %v",
			attempt, e.policy.MaxAttempts, op, class, delay, lastErr)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, e.policy.MaxAttempts, lastErr)
}

// sleep waits for d or until the context ends, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
