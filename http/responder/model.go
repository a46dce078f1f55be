package responder

// Response is the envelope every endpoint writes.
type Response struct {
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
	Meta  Meta   `json:"meta"`
}

// Error is the error part of the envelope.
type Error struct {
	Code    int    `json:"code"`
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Meta carries request metadata.
type Meta struct {
	TraceId string `json:"traceId,omitempty"`
	Took    int64  `json:"took,omitempty"`
	Count   *int   `json:"count,omitempty"`
}
