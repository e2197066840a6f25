package research

import (
	"context"
	"time"

	"github.com/zen-systems/nexus/pkg/adapter"
)

const (
	maxTransientRetries = 2
	baseBackoff         = 200 * time.Millisecond
	maxBackoff          = 2 * time.Second
)

// generate calls the bound model, retrying transient failures (rate limits,
// 5xx, timeouts) with exponential backoff. Non-transient errors and budget
// exhaustion return the last error to the caller, which applies its own
// degradation policy.
func generate(ctx context.Context, b adapter.Binding, prompt string) (*adapter.Completion, error) {
	var lastErr error
	for attempt := 0; attempt <= maxTransientRetries; attempt++ {
		resp, err := b.Adapter.Generate(ctx, b.Model, prompt)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !adapter.IsTransient(err) || attempt == maxTransientRetries {
			break
		}
		if serr := sleepBackoff(ctx, attempt); serr != nil {
			return nil, serr
		}
	}
	return nil, lastErr
}

func sleepBackoff(ctx context.Context, attempt int) error {
	d := baseBackoff << attempt
	if d > maxBackoff {
		d = maxBackoff
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
