package harvest

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// Poll calls fn until it returns nil, at most budget.Attempts times with
// budget.Interval between calls. It returns nil on success, the last error from
// fn once the budget is spent, or the context error if ctx ends while waiting.
// The attempt number passed to fn starts at 1.
func Poll(ctx context.Context, budget PollBudget, fn func(ctx context.Context, attempt int) error) error {
	attempts := budget.Attempts
	if attempts < 1 {
		attempts = 1
	}
	interval := budget.Interval
	if interval <= 0 {
		// go-retry rejects non-positive constant backoffs.
		interval = time.Nanosecond
	}
	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewConstant(interval))

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := fn(ctx, attempt); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}
