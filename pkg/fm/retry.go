package fm

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds how often a transient filesystem failure is retried
type RetryPolicy struct {
	Attempts int           `yaml:"attempts"`
	Delay    time.Duration `yaml:"delay"`
}

var (
	// DefaultCopyPolicy absorbs a font cache service briefly holding the destination
	DefaultCopyPolicy = RetryPolicy{Attempts: 10, Delay: 100 * time.Millisecond}

	// DefaultDeletePolicy waits up to about ten seconds for a rendering
	// service to release an installed font
	DefaultDeletePolicy = RetryPolicy{Attempts: 100, Delay: 100 * time.Millisecond}
)

// Retry runs op until it succeeds, returns a permanent error, or the policy's
// attempts are used up, sleeping the fixed delay in between. The last error is
// returned.
func Retry(p RetryPolicy, op func() error) error {
	return retryNotify(p, op, nil)
}

// retryNotify is Retry with notify called for each failure that is followed
// by another attempt
func retryNotify(p RetryPolicy, op func() error, notify func(error)) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), uint64(attempts-1))
	if notify == nil {
		return backoff.Retry(op, b)
	}
	return backoff.RetryNotify(op, b, func(err error, _ time.Duration) {
		notify(err)
	})
}

// permanent stops Retry immediately with err
func permanent(err error) error {
	return backoff.Permanent(err)
}
