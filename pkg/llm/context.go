package llm

import (
	"context"
	"net/http"
)

type contextKey string

const (
	requestIDKey    contextKey = "llm_request_id"
	requestIDHeader            = "X-Request-Id"
)

// WithRequestID attaches the answer request ID to ctx so outgoing oracle
// calls can be correlated with server logs on the provider side.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request ID attached by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// requestIDTransport copies the request ID from the request context into
// the X-Request-Id header.
type requestIDTransport struct {
	base http.RoundTripper
}

func (t *requestIDTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if id := RequestIDFromContext(req.Context()); id != "" {
		req = req.Clone(req.Context())
		req.Header.Set(requestIDHeader, id)
	}
	return t.base.RoundTrip(req)
}
