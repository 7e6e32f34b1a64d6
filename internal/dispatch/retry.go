package dispatch

import "time"

// DefaultMaxRetries bounds how many delayed retries a delivery gets after
// its first resolution failure.
const DefaultMaxRetries = 3

// RetryPolicy decides whether a transiently-failed delivery is retried and
// with what delay. The backoff is deliberately coarse (10s, 100s, 1000s):
// the failure class it targets is "project directory temporarily
// unavailable", not a hot retry loop.
type RetryPolicy struct {
	MaxRetries int
}

// DefaultRetryPolicy returns the standard 3-attempt policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: DefaultMaxRetries}
}

// Decide is a pure function of the current retry counter. The counter is 0
// on first delivery and carried on each re-published retry.
func (p RetryPolicy) Decide(retryCount int) RetryDecision {
	limit := p.MaxRetries
	if limit <= 0 {
		limit = DefaultMaxRetries
	}

	next := retryCount + 1
	if next > limit {
		return RetryDecision{GiveUp: true}
	}

	secs := 1
	for i := 0; i < next; i++ {
		secs *= 10
	}
	return RetryDecision{
		Delay: time.Duration(secs) * time.Second,
		Count: next,
	}
}
