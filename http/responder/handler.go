package responder

import (
	"net/http"

	"github.com/leeforge/billing/http/middleware"
)

type Option func(*Meta)

func WithTraceID(id string) Option {
	return func(m *Meta) {
		m.TraceId = id
	}
}

func WithTook(ms int64) Option {
	return func(m *Meta) {
		m.Took = ms
	}
}

// WithCount records the number of items in a list payload.
func WithCount(n int) Option {
	return func(m *Meta) {
		m.Count = &n
	}
}

// NewMeta starts from the trace id and timing the middleware stored on r,
// then applies opts.
func NewMeta(r *http.Request, opts ...Option) *Meta {
	meta := Meta{}
	if r != nil {
		meta.TraceId = middleware.GetTraceIDFromRequest(r)
		meta.Took = middleware.GetRequestDurationFromRequest(r)
	}
	for _, opt := range opts {
		opt(&meta)
	}
	return &meta
}
