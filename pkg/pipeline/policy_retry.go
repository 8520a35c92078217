package pipeline

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Alwanly/cloud-sdk-go/pkg/logger"
	"github.com/Alwanly/cloud-sdk-go/pkg/retry"
)

// RetryOptions configures the pipeline retry policy.
type RetryOptions struct {
	// MaxRetries is the number of retries after the initial attempt.
	// Default 3. Negative disables retrying.
	MaxRetries int

	// InitialBackoff is the delay before the first retry. Default 800ms.
	InitialBackoff time.Duration

	// MaxBackoff caps the delay between retries. Default 60s.
	MaxBackoff time.Duration

	// StatusCodes overrides the set of retriable status codes.
	// Default: 408, 429, 500, 502, 503, 504.
	StatusCodes []int
}

var defaultRetryStatusCodes = []int{
	http.StatusRequestTimeout,
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

func (o *RetryOptions) fill() {
	if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}
	if o.InitialBackoff == 0 {
		o.InitialBackoff = 800 * time.Millisecond
	}
	if o.MaxBackoff == 0 {
		o.MaxBackoff = 60 * time.Second
	}
	if o.StatusCodes == nil {
		o.StatusCodes = defaultRetryStatusCodes
	}
}

type retryPolicy struct {
	opts    RetryOptions
	backoff retry.Config
	log     *logger.CanonicalLogger
	metrics *Metrics
}

func newRetryPolicy(opts RetryOptions, log *logger.CanonicalLogger, metrics *Metrics) *retryPolicy {
	opts.fill()
	return &retryPolicy{
		opts: opts,
		backoff: retry.Config{
			MaxRetries:     opts.MaxRetries,
			InitialBackoff: opts.InitialBackoff,
			MaxBackoff:     opts.MaxBackoff,
			Multiplier:     2.0,
			Jitter:         true,
		},
		log:     log,
		metrics: metrics,
	}
}

func (p *retryPolicy) Do(req *Request) (*http.Response, error) {
	var (
		resp    *http.Response
		err     error
		chain   = req.remaining()
		ctx     = req.Raw().Context()
		retries = p.opts.MaxRetries
	)
	if retries < 0 {
		retries = 0
	}

	for attempt := 0; ; attempt++ {
		// Reusing the request requires rewinding the body back to a
		// working state
		req.setRemaining(chain)
		if err = req.RewindBody(); err != nil {
			return nil, err
		}

		resp, err = req.Next()
		if err == nil && !HasStatusCode(resp, p.opts.StatusCodes...) {
			return resp, nil
		}

		if attempt >= retries {
			break
		}
		if ctx.Err() != nil {
			break
		}

		delay := retry.Delay(attempt+1, p.backoff)
		if resp != nil {
			// Retry-After wins over computed backoff
			if ra, ok := retryAfter(resp); ok {
				delay = ra
			}
			Drain(resp)
		}

		if p.metrics != nil {
			p.metrics.retries.Inc()
		}
		p.log.Debug("retrying request",
			logger.String("method", req.Raw().Method),
			logger.String("url", req.Raw().URL.Redacted()),
			logger.Int(logger.FieldRetryCount, attempt+1),
			logger.Duration("delay", delay),
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("request canceled after %d attempts: %w", attempt+1, ctx.Err())
		case <-time.After(delay):
		}
	}

	if err != nil {
		return nil, fmt.Errorf("request failed after %d attempts: %w", retries+1, err)
	}
	return resp, nil
}

// retryAfter parses the Retry-After header as delta-seconds or an HTTP date.
func retryAfter(resp *http.Response) (time.Duration, bool) {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}
