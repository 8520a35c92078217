// Package pipeline implements the HTTP core shared by every client in this
// module: a linear chain of policies ending in a transport. Policies see each
// outgoing request, may mutate it, call the rest of the chain, and observe
// the response on the way back.
package pipeline

import (
	"net/http"

	"github.com/Alwanly/cloud-sdk-go/pkg/identity"
	"github.com/Alwanly/cloud-sdk-go/pkg/logger"
)

// Version is reported by the telemetry policy.
const Version = "0.3.0"

// Policy is one stage of the pipeline. Implementations call req.Next() to
// hand the request to the remaining chain.
type Policy interface {
	Do(req *Request) (*http.Response, error)
}

// PolicyFunc adapts a function to the Policy interface.
type PolicyFunc func(req *Request) (*http.Response, error)

func (f PolicyFunc) Do(req *Request) (*http.Response, error) {
	return f(req)
}

// Transporter sends the fully-built request. *http.Client satisfies it.
type Transporter interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures a pipeline.
type Options struct {
	// Retry configures the retry policy. Zero value uses defaults.
	Retry RetryOptions

	// Credential, when set, enables the bearer-token policy with the given
	// scopes.
	Credential identity.TokenCredential
	Scopes     []string

	// Telemetry is prepended to the User-Agent product string.
	Telemetry string

	// Logger receives per-try request logs. Defaults to a nop logger.
	Logger *logger.CanonicalLogger

	// Metrics, when set, records per-try counters and latencies.
	Metrics *Metrics

	// PerCall policies run once per request, before the retry policy.
	PerCall []Policy
	// PerTry policies run on every attempt, after the retry policy.
	PerTry []Policy
}

// Pipeline is an immutable policy chain. The zero value is not usable; build
// one with New.
type Pipeline struct {
	policies []Policy
}

// New assembles the standard chain:
//
//	request-id -> telemetry -> per-call -> retry -> bearer -> per-try -> logging -> metrics -> transport
//
// A nil transport falls back to http.DefaultClient.
func New(transport Transporter, opts Options) Pipeline {
	if transport == nil {
		transport = http.DefaultClient
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	policies := make([]Policy, 0, len(opts.PerCall)+len(opts.PerTry)+8)
	policies = append(policies, &requestIDPolicy{})
	policies = append(policies, &telemetryPolicy{product: opts.Telemetry})
	policies = append(policies, opts.PerCall...)
	policies = append(policies, newRetryPolicy(opts.Retry, log, opts.Metrics))
	if opts.Credential != nil {
		policies = append(policies, NewBearerTokenPolicy(opts.Credential, opts.Scopes))
	}
	policies = append(policies, opts.PerTry...)
	policies = append(policies, &loggingPolicy{log: log})
	if opts.Metrics != nil {
		policies = append(policies, &metricsPolicy{metrics: opts.Metrics})
	}
	policies = append(policies, transportPolicy{transport: transport})

	return Pipeline{policies: policies}
}

// Do runs the request through the policy chain.
func (p Pipeline) Do(req *Request) (*http.Response, error) {
	req.policies = p.policies
	return req.Next()
}

type transportPolicy struct {
	transport Transporter
}

func (t transportPolicy) Do(req *Request) (*http.Response, error) {
	return t.transport.Do(req.Raw())
}
