// Package ratelimit paces calls to the Flickr API.
//
// Two implementations of Limiter are available:
//
// Token Bucket (default):
//   - holds up to burst_size tokens
//   - refills continuously at requests_per_minute
//
// Sliding Window:
//   - allows at most requests_per_minute calls in any trailing minute
//
// Wait honours context cancellation, so an interrupted run stops promptly
// even while throttled.
package ratelimit
