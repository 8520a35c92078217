package pipeline

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Alwanly/cloud-sdk-go/pkg/logger"
	"github.com/google/uuid"
)

// HeaderClientRequestID is set on every outgoing request and echoed by
// conforming services for correlation.
const HeaderClientRequestID = "x-ms-client-request-id"

type requestIDPolicy struct{}

func (requestIDPolicy) Do(req *Request) (*http.Response, error) {
	if req.Raw().Header.Get(HeaderClientRequestID) == "" {
		req.Raw().Header.Set(HeaderClientRequestID, uuid.NewString())
	}
	return req.Next()
}

type telemetryPolicy struct {
	product string
}

func (t *telemetryPolicy) Do(req *Request) (*http.Response, error) {
	ua := fmt.Sprintf("cloud-sdk-go/%s", Version)
	if t.product != "" {
		ua = t.product + " " + ua
	}
	if existing := req.Raw().Header.Get("User-Agent"); existing != "" {
		ua = ua + " " + existing
	}
	req.Raw().Header.Set("User-Agent", ua)
	return req.Next()
}

type loggingPolicy struct {
	log *logger.CanonicalLogger
}

func (l *loggingPolicy) Do(req *Request) (*http.Response, error) {
	start := time.Now()
	resp, err := req.Next()
	duration := time.Since(start)

	log := l.log.WithRequestID(req.Raw().Header.Get(HeaderClientRequestID))
	if err != nil {
		log.WithError(err).Error("request_failed",
			logger.String("method", req.Raw().Method),
			logger.String("url", req.Raw().URL.Redacted()),
			logger.Duration("duration", duration),
		)
		return nil, err
	}
	log.Debug("request",
		logger.String("method", req.Raw().Method),
		logger.String("url", req.Raw().URL.Redacted()),
		logger.Int(logger.FieldStatusCode, resp.StatusCode),
		logger.Duration("duration", duration),
	)
	return resp, nil
}
