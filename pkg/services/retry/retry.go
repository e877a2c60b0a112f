// Package retry holds the single retry policy used for every remote call in
// the pipeline: bounded attempts with a delay that doubles after each try.
// Only rate-limit responses are retried; everything else fails fast.
package retry

import (
	"context"
	"time"

	retrygo "github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"

	"github.com/de-tools/sumocost/pkg/store/client"
)

const (
	DefaultMaxAttempts = 10
	DefaultBaseDelay   = 500 * time.Millisecond
)

// Policy describes how a remote operation is retried. The zero value is not
// usable; construct with NewPolicy or fill all fields.
type Policy struct {
	MaxAttempts uint
	BaseDelay   time.Duration
	// Retryable decides whether an error is worth another attempt.
	Retryable func(error) bool
}

// NewPolicy returns the pipeline default: 10 attempts starting at 500ms,
// retrying rate-limit errors only.
func NewPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		Retryable:   client.IsRateLimited,
	}
}

// Run executes op under the policy. A non-retryable error is returned
// immediately; exhausting the attempt budget returns the last error.
func (p Policy) Run(ctx context.Context, op func() error) error {
	logger := zerolog.Ctx(ctx)
	return retrygo.Do(
		op,
		retrygo.Context(ctx),
		retrygo.Attempts(p.MaxAttempts),
		retrygo.Delay(p.BaseDelay),
		retrygo.DelayType(retrygo.BackOffDelay),
		retrygo.RetryIf(p.Retryable),
		retrygo.LastErrorOnly(true),
		retrygo.OnRetry(func(attempt uint, err error) {
			logger.Debug().
				Uint("attempt", attempt+1).
				Err(err).
				Msg("rate limited, backing off")
		}),
	)
}

// Do is Run for operations that produce a value.
func Do[T any](ctx context.Context, p Policy, op func() (T, error)) (T, error) {
	var result T
	err := p.Run(ctx, func() error {
		var opErr error
		result, opErr = op()
		return opErr
	})
	return result, err
}
