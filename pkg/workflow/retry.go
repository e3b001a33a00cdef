package workflow

import (
	"time"
)

// Backoff selects how the delay between retry attempts grows.
type Backoff string

const (
	BackoffFixed       Backoff = "fixed"
	BackoffLinear      Backoff = "linear"
	BackoffExponential Backoff = "exponential"
)

// RetryPolicy retries a failed activity with durable timers between
// attempts. Timeout is the overall budget across all attempts; when it
// expires the runtime records ActivityFailed("timeout") for the in-flight
// schedule whether or not the worker has finished.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     Backoff
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	Timeout     time.Duration
}

// Execute schedules the activity under the policy, awaiting each attempt
// and sleeping the backoff delay between failures. Conflict, fatal and
// timeout errors end the sequence immediately; otherwise the last error is
// returned once attempts or budget run out. On success the activity output
// is unmarshaled into out, which may be nil.
func (p RetryPolicy) Execute(ctx *Context, activity string, input, out any) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var deadline time.Time
	if p.Timeout > 0 {
		deadline = ctx.Now().Add(p.Timeout)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		opts := []ActivityOption{WithAttempt(attempt)}
		if p.Timeout > 0 {
			remaining := deadline.Sub(ctx.Now())
			if remaining <= 0 {
				break
			}
			opts = append(opts, WithTimeout(remaining))
		}

		err := ctx.ScheduleActivity(activity, input, opts...).Get(out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsRetryable(err.Error()) {
			return err
		}
		if attempt == attempts {
			break
		}
		if err := ctx.ScheduleTimer(p.delay(attempt)).Get(nil); err != nil {
			return err
		}
	}
	return lastErr
}

// delay computes the sleep after the given failed attempt (1-based).
func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay
	switch p.Backoff {
	case BackoffLinear:
		d = p.BaseDelay * time.Duration(attempt)
	case BackoffExponential:
		mult := p.Multiplier
		if mult <= 0 {
			mult = 2
		}
		d = p.BaseDelay
		for i := 1; i < attempt; i++ {
			d = time.Duration(float64(d) * mult)
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}
