package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Request wraps an *http.Request with a rewindable body so the retry policy
// can replay it.
type Request struct {
	req      *http.Request
	body     []byte
	policies []Policy
}

// NewRequest builds a request for the pipeline. The body, if any, is attached
// with SetBody.
func NewRequest(ctx context.Context, method, endpoint string) (*Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return &Request{req: req}, nil
}

// Raw returns the underlying *http.Request.
func (r *Request) Raw() *http.Request {
	return r.req
}

// SetBody marshals v to JSON and installs it as a rewindable request body.
func (r *Request) SetBody(v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	return r.SetBodyBytes(body, "application/json")
}

// SetBodyBytes installs raw bytes as a rewindable request body.
func (r *Request) SetBodyBytes(body []byte, contentType string) error {
	r.body = body
	r.req.Header.Set("Content-Type", contentType)
	r.req.ContentLength = int64(len(body))
	// Set GetBody for potential retries
	buf := body
	r.req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(buf)), nil
	}
	return r.RewindBody()
}

// RewindBody resets the body reader to its start. Called by the retry policy
// before every attempt.
func (r *Request) RewindBody() error {
	if r.body == nil {
		return nil
	}
	r.req.Body = io.NopCloser(bytes.NewReader(r.body))
	return nil
}

// Next hands the request to the next policy in the chain.
func (r *Request) Next() (*http.Response, error) {
	if len(r.policies) == 0 {
		return nil, fmt.Errorf("pipeline exhausted with no transport")
	}
	next := r.policies[0]
	r.policies = r.policies[1:]
	return next.Do(r)
}

// remaining snapshots the unconsumed chain so the retry policy can replay it.
func (r *Request) remaining() []Policy {
	return r.policies
}

func (r *Request) setRemaining(p []Policy) {
	r.policies = p
}
