// Package retry provides exponential backoff and retry logic for transient
// Flickr API failures.
//
// Only remote-service errors with a retryable status (network failure, 429,
// 5xx) are retried by default; authentication and configuration errors
// return immediately. The Throttled backoff built by FromSettings waits longer
// after a 429.
//
// Basic usage:
//
//	cfg := retry.FromSettings(appConfig.Retry, log)
//	resp, err := retry.DoWithResult(ctx, cfg, func(ctx context.Context) (*Response, error) {
//		return client.call(ctx, method, params)
//	})
package retry
