package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net/http"
	"time"

	errs "flickrbackup/pkg/errors"
)

// Backoff decides how long to wait before retry attempt n (1-based) after
// the failure err
type Backoff interface {
	Delay(attempt int, err error) time.Duration
}

// Exponential multiplies Base by Factor per attempt up to Max. Jitter is the
// fraction of the delay that is randomised in both directions.
type Exponential struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64
}

func (e Exponential) Delay(attempt int, _ error) time.Duration {
	if attempt <= 0 {
		return 0
	}
	factor := e.Factor
	if factor < 1 {
		factor = 1
	}

	d := float64(e.Base) * math.Pow(factor, float64(attempt-1))
	if e.Max > 0 && d > float64(e.Max) {
		d = float64(e.Max)
	}
	if e.Jitter > 0 {
		d += d * e.Jitter * (2*rand.Float64() - 1)
	}
	return time.Duration(math.Max(d, 0))
}

// Fixed waits the same time before every retry
type Fixed time.Duration

func (f Fixed) Delay(attempt int, _ error) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return time.Duration(f)
}

// Throttled backs off with Slow once Flickr answered 429 Too Many Requests
// and with Normal for every other failure. A nil Slow uses Normal.
type Throttled struct {
	Normal Backoff
	Slow   Backoff
}

func (t Throttled) Delay(attempt int, err error) time.Duration {
	if t.Slow != nil && isTooManyRequests(err) {
		return t.Slow.Delay(attempt, err)
	}
	return t.Normal.Delay(attempt, err)
}

func isTooManyRequests(err error) bool {
	var e *errs.Error
	return errors.As(err, &e) && e.Code == http.StatusTooManyRequests
}

// Wait sleeps for delay or until ctx is done
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
