// Package classify runs batched categorization of bundles against an
// external oracle, applying learned rules first.
package classify

import (
	"context"
	"errors"
	"time"

	"github.com/luinbytes/iconic/logbook"
)

var (
	// ErrRateLimited means the oracle asked us to slow down.
	ErrRateLimited = errors.New("oracle rate limit exceeded")

	// ErrMalformedResponse means the oracle answered with something unparsable.
	ErrMalformedResponse = errors.New("oracle returned a malformed response")
)

// Request is one batch for the oracle.
type Request struct {
	Names      []string
	Categories []string
	MultiTag   bool // allow more than one category per name
	Relaxed    bool // accept a best guess instead of skipping uncertain names
}

// Oracle maps bundle names to ordered category lists. Names it cannot
// resolve are left out of the result.
type Oracle interface {
	CategorizeBatch(ctx context.Context, req Request) (map[string][]string, error)
}

// Suggester proposes a revised category list from sample names.
type Suggester interface {
	SuggestCategories(ctx context.Context, samples, current []string) ([]string, error)
}

// Retry policy constants.
const (
	MaxAttempts       = 3
	MalformedDelay    = time.Second
	rateLimitBase     = 2 * time.Second
	rateLimitConstant = time.Second
)

// RateLimitDelay is the wait after the given (zero-based) rate-limited attempt.
func RateLimitDelay(attempt int) time.Duration {
	return (1<<attempt)*rateLimitBase + rateLimitConstant
}

// Retrying wraps an Oracle with the retry policy: rate limits back off
// exponentially, malformed responses are retried after a short pause, and
// anything else fails at once. The last error is returned when attempts
// run out.
type Retrying struct {
	next  Oracle
	log   logbook.Logger
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrying wraps next.
func NewRetrying(next Oracle, log logbook.Logger) *Retrying {
	if log == nil {
		log = logbook.Discard
	}
	return &Retrying{next: next, log: log, sleep: sleepContext}
}

// CategorizeBatch implements Oracle.
func (r *Retrying) CategorizeBatch(ctx context.Context, req Request) (map[string][]string, error) {
	var lastErr error
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		result, err := r.next.CategorizeBatch(ctx, req)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err

		var delay time.Duration
		switch {
		case errors.Is(err, ErrRateLimited):
			delay = RateLimitDelay(attempt)
			r.log.Warn("Rate limit hit. Retrying in %v...", delay)
		case errors.Is(err, ErrMalformedResponse):
			delay = MalformedDelay
			r.log.Warn("Malformed oracle response, retrying...")
		default:
			return nil, err
		}

		if attempt == MaxAttempts-1 {
			break
		}
		if err := r.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ Oracle = (*Retrying)(nil)
