package svix

import (
	"context"
	"net/http"
	"time"
)

// Option configures the Svix client.
type Option func(*options)

type options struct {
	token      string
	httpClient *http.Client
	timeout    time.Duration
	headers    map[string]string
}

func defaultOptions() *options {
	return &options{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		timeout: 30 * time.Second,
		headers: make(map[string]string),
	}
}

// WithToken sets the API token for authentication.
func WithToken(token string) Option {
	return func(o *options) {
		o.token = token
	}
}

// WithHTTPClient allows providing a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithTimeout sets the default timeout for HTTP requests.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
		if o.httpClient != nil {
			o.httpClient.Timeout = d
		}
	}
}

// WithHeader adds a custom header to all requests.
func WithHeader(key, value string) Option {
	return func(o *options) {
		o.headers[key] = value
	}
}

// applyHeaders returns a RequestEditorFn that adds configured headers.
func (o *options) applyHeaders() RequestEditorFn {
	return func(ctx context.Context, req *http.Request) error {
		if o.token != "" {
			req.Header.Set("Authorization", "Bearer "+o.token)
		}
		for k, v := range o.headers {
			req.Header.Set(k, v)
		}
		return nil
	}
}

// PostOptions are per-call request overrides. The zero value (or nil)
// means no overrides; the client applies them without modifying the
// struct, so a caller may reuse one value across calls.
type PostOptions struct {
	// IdempotencyKey deduplicates retried calls server-side.
	IdempotencyKey string
	// Headers are extra request headers for this call only.
	Headers map[string]string
}

// apply adds the per-call overrides to a request.
func (p *PostOptions) apply(req *http.Request) {
	if p == nil {
		return
	}
	if p.IdempotencyKey != "" {
		req.Header.Set("idempotency-key", p.IdempotencyKey)
	}
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}
}
