package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Sentinel refinements of ResponseError, matched with errors.Is.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrResourceExists = errors.New("resource already exists or was modified")
	ErrUnauthorized   = errors.New("authentication or authorization failed")
)

// ResponseError is the uniform error for non-2xx service responses. The
// response body is consumed and retained in Body; RawResponse.Body is
// replaced with a fresh reader over the same bytes.
type ResponseError struct {
	StatusCode  int
	ErrorCode   string
	Message     string
	RawResponse *http.Response
	Body        []byte
}

func (e *ResponseError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("request failed with status %d (%s): %s", e.StatusCode, e.ErrorCode, e.Message)
	}
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

// Is maps status classes onto the sentinel errors so callers can write
// errors.Is(err, ErrNotFound) without inspecting codes.
func (e *ResponseError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrResourceExists:
		return e.StatusCode == http.StatusConflict || e.StatusCode == http.StatusPreconditionFailed
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	}
	return false
}

// serviceError is the wire error envelope: {"error": {"code": ..., "message": ...}}.
type serviceError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewResponseError consumes the response body and builds a *ResponseError.
// The body remains readable on RawResponse for callers that need it.
func NewResponseError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		body = nil
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	re := &ResponseError{
		StatusCode:  resp.StatusCode,
		RawResponse: resp,
		Body:        body,
	}
	var se serviceError
	if len(body) > 0 && json.Unmarshal(body, &se) == nil {
		re.ErrorCode = se.Error.Code
		re.Message = se.Error.Message
	}
	return re
}

// HasStatusCode reports whether the response carries one of the given codes.
func HasStatusCode(resp *http.Response, codes ...int) bool {
	if resp == nil {
		return false
	}
	for _, c := range codes {
		if resp.StatusCode == c {
			return true
		}
	}
	return false
}

// Drain discards and closes the response body so the underlying connection
// can be reused.
func Drain(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}
