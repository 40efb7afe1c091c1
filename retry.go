package relcut

import "time"

// ExponentialPushRetry returns a RetryPolicy for PlanBuilder.PushRetry that
// doubles the delay after every failed push, starting at initial and capped
// at max (max <= 0 means uncapped).
//
// maxAttempts <= 0 is treated as 1, meaning a single push with no retries.
func ExponentialPushRetry(maxAttempts int, initial, max time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       clampAttempts(maxAttempts),
		InitialBackoff:    initial,
		MaxBackoff:        max,
		BackoffMultiplier: 2.0,
	}
}

// ConstantPushRetry returns a RetryPolicy that waits the same delay between
// every push attempt.
func ConstantPushRetry(maxAttempts int, delay time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       clampAttempts(maxAttempts),
		InitialBackoff:    delay,
		BackoffMultiplier: 1.0,
	}
}

// ImmediatePushRetry returns a RetryPolicy that retries failed pushes
// without sleeping in between.
func ImmediatePushRetry(maxAttempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: clampAttempts(maxAttempts)}
}

func clampAttempts(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}
