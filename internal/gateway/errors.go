package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// RequestError is returned when the gateway answers with a non-2xx
// status. Detail carries the human-readable explanation from the JSON
// {"detail": ...} body when present, otherwise the HTTP status text.
type RequestError struct {
	StatusCode int
	Detail     string
}

func (e *RequestError) Error() string { return e.Detail }

func newRequestError(statusCode int, body []byte) *RequestError {
	var payload struct {
		Detail string `json:"detail"`
	}
	detail := ""
	if err := json.Unmarshal(body, &payload); err == nil {
		detail = payload.Detail
	}
	if detail == "" {
		detail = http.StatusText(statusCode)
	}
	if detail == "" {
		detail = fmt.Sprintf("HTTP %d", statusCode)
	}
	return &RequestError{StatusCode: statusCode, Detail: detail}
}

// StreamError is an error frame delivered inside an otherwise healthy
// event stream, e.g. when the gateway loses its model backend mid-reply.
type StreamError struct {
	Type    string
	Message string
}

func (e *StreamError) Error() string { return e.Message }
