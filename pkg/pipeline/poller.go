package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// OperationStatus is the state of a long-running operation.
type OperationStatus string

const (
	StatusInProgress OperationStatus = "InProgress"
	StatusSucceeded  OperationStatus = "Succeeded"
	StatusFailed     OperationStatus = "Failed"
	StatusCanceled   OperationStatus = "Canceled"
)

// Terminal reports whether the status will no longer change.
func (s OperationStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCanceled
}

// operationDoc is the status document served at the Operation-Location URL.
type operationDoc struct {
	ID     string          `json:"id"`
	Status OperationStatus `json:"status"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Result json.RawMessage `json:"result"`
}

// Poller tracks a long-running operation via its Operation-Location URL
// until a terminal status is reached.
type Poller[T any] struct {
	pl           Pipeline
	operationURL string
	status       OperationStatus
	result       json.RawMessage
	retryAfter   time.Duration
	failure      error
}

// NewPoller builds a poller from the service response that started the
// operation. The response must carry an Operation-Location (or Location)
// header.
func NewPoller[T any](pl Pipeline, resp *http.Response) (*Poller[T], error) {
	loc := resp.Header.Get("Operation-Location")
	if loc == "" {
		loc = resp.Header.Get("Location")
	}
	if loc == "" {
		return nil, fmt.Errorf("response has no Operation-Location header to poll")
	}
	if u, err := url.Parse(loc); err == nil && !u.IsAbs() && resp.Request != nil {
		loc = resp.Request.URL.ResolveReference(u).String()
	}
	return &Poller[T]{
		pl:           pl,
		operationURL: loc,
		status:       StatusInProgress,
	}, nil
}

// Done reports whether the operation reached a terminal status.
func (p *Poller[T]) Done() bool {
	return p.status.Terminal()
}

// Status returns the last observed status.
func (p *Poller[T]) Status() OperationStatus {
	return p.status
}

// Poll fetches the status document once.
func (p *Poller[T]) Poll(ctx context.Context) (OperationStatus, error) {
	if p.Done() {
		return p.status, nil
	}

	req, err := NewRequest(ctx, http.MethodGet, p.operationURL)
	if err != nil {
		return "", err
	}
	resp, err := p.pl.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if !HasStatusCode(resp, http.StatusOK, http.StatusAccepted) {
		return "", NewResponseError(resp)
	}
	if ra, ok := retryAfter(resp); ok {
		p.retryAfter = ra
	}

	var doc operationDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", fmt.Errorf("failed to decode operation status: %w", err)
	}
	if doc.Status == "" {
		return "", fmt.Errorf("operation status document has no status field")
	}

	p.status = doc.Status
	p.result = doc.Result
	if doc.Status == StatusFailed || doc.Status == StatusCanceled {
		code, message := "OperationFailed", string(doc.Status)
		if doc.Error != nil {
			code, message = doc.Error.Code, doc.Error.Message
		}
		p.failure = fmt.Errorf("operation %s ended as %s (%s): %s", doc.ID, doc.Status, code, message)
	}
	return p.status, nil
}

// Result returns the operation outcome. It errors unless the operation
// succeeded.
func (p *Poller[T]) Result() (T, error) {
	var zero T
	if !p.Done() {
		return zero, fmt.Errorf("operation is still in progress")
	}
	if p.failure != nil {
		return zero, p.failure
	}
	if len(p.result) == 0 {
		return zero, nil
	}
	var out T
	if err := json.Unmarshal(p.result, &out); err != nil {
		return zero, fmt.Errorf("failed to decode operation result: %w", err)
	}
	return out, nil
}

// PollUntilDone polls at the given frequency until the operation reaches a
// terminal status, honoring server Retry-After hints when they are longer.
func (p *Poller[T]) PollUntilDone(ctx context.Context, freq time.Duration) (T, error) {
	if freq <= 0 {
		freq = 5 * time.Second
	}
	for {
		if _, err := p.Poll(ctx); err != nil {
			var zero T
			return zero, err
		}
		if p.Done() {
			return p.Result()
		}

		delay := freq
		if p.retryAfter > delay {
			delay = p.retryAfter
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
}
