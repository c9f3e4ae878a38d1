// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// ErrInvalidMaxAttempts is returned when RetryWithBackoff is asked for no attempts.
var ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

// RetryAttempt describes a failed attempt that is about to be retried.
type RetryAttempt struct {
	Attempt     int // 1-based
	MaxAttempts int
	Err         error
	Wait        time.Duration // Delay before the next attempt
}

type retryOptions struct {
	jitter   float64
	maxDelay time.Duration
	onRetry  func(RetryAttempt)
}

// RetryOption configures RetryWithBackoff.
type RetryOption func(*retryOptions)

// WithJitter spreads each delay by up to fraction of its length in either
// direction. fraction is clamped to [0, 1].
func WithJitter(fraction float64) RetryOption {
	return func(o *retryOptions) {
		o.jitter = min(max(fraction, 0), 1)
	}
}

// WithMaxDelay caps the delay between attempts.
func WithMaxDelay(d time.Duration) RetryOption {
	return func(o *retryOptions) {
		o.maxDelay = d
	}
}

// WithRetryReport calls fn after every failed attempt that will be retried.
func WithRetryReport(fn func(RetryAttempt)) RetryOption {
	return func(o *retryOptions) {
		o.onRetry = fn
	}
}

// ReportRetries forwards retries to a load progress callback as messages
// on stage.
func ReportRetries(report ProgressFunc, stage Stage) RetryOption {
	return WithRetryReport(func(a RetryAttempt) {
		report.Report(Progress{
			Stage:   stage,
			Message: fmt.Sprintf("attempt %d/%d failed, retrying in %s: %v", a.Attempt, a.MaxAttempts, a.Wait.Round(time.Millisecond), a.Err),
		})
	})
}

// RetryWithBackoff runs operation up to maxAttempts times, doubling the
// delay after each failure. Model loading uses it for downloads and
// endpoint checks; embedding requests are never retried.
// Returns the error from the last attempt if all attempts fail.
func RetryWithBackoff(ctx context.Context, operation func() error, maxAttempts int, baseDelay time.Duration, opts ...RetryOption) error {
	if maxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}
	var o retryOptions
	for _, opt := range opts {
		opt(&o)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation()
		if lastErr == nil {
			if attempt > 1 {
				slog.Debug("operation succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if attempt == maxAttempts {
			break
		}

		wait := o.delay(baseDelay, attempt)
		slog.Debug("operation failed, will retry", "attempt", attempt, "maxAttempts", maxAttempts, "wait", wait, "error", lastErr)
		if o.onRetry != nil {
			o.onRetry(RetryAttempt{Attempt: attempt, MaxAttempts: maxAttempts, Err: lastErr, Wait: wait})
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}

// delay is the wait after the given failed attempt.
func (o retryOptions) delay(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt && d <= math.MaxInt64/2; i++ {
		d *= 2
		if o.maxDelay > 0 && d >= o.maxDelay {
			break
		}
	}
	if o.maxDelay > 0 && d > o.maxDelay {
		d = o.maxDelay
	}
	if o.jitter > 0 && d > 0 {
		spread := float64(d) * o.jitter
		d += time.Duration((rand.Float64()*2 - 1) * spread)
	}
	return d
}
