package classes

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Request is the transport-independent view of an inbound request handed to methods
type Request struct {
	ID      string
	Method  string
	Path    string
	IP      string
	Query   map[string]string
	Headers map[string]string
	Body    []byte
}

// Header returns the value of the named header, case-insensitively
func (r *Request) Header(name string) string {
	if v, ok := r.Headers[name]; ok {
		return v
	}
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Response collects what a method sends. It is written by one method invocation
// and read by the dispatcher after the invocation returns.
type Response struct {
	status  int
	headers map[string]string
	body    []byte
	sent    bool
}

// NewResponse creates an empty 200 response
func NewResponse() *Response {
	return &Response{status: http.StatusOK, headers: make(map[string]string)}
}

// Status sets the status code
func (r *Response) Status(code int) *Response {
	r.status = code
	return r
}

// Set sets a response header
func (r *Response) Set(name, value string) *Response {
	r.headers[http.CanonicalHeaderKey(name)] = value
	return r
}

// Get returns a response header
func (r *Response) Get(name string) string {
	return r.headers[http.CanonicalHeaderKey(name)]
}

// Send sets the body and marks the response sent. Strings are sent as HTML,
// byte slices as-is, nil as an empty body and anything else as JSON.
func (r *Response) Send(v interface{}) error {
	switch body := v.(type) {
	case nil:
		r.body = nil
	case string:
		r.defaultType("text/html; charset=utf-8")
		r.body = []byte(body)
	case []byte:
		r.defaultType("application/octet-stream")
		r.body = body
	default:
		return r.JSON(v)
	}
	r.sent = true
	return nil
}

// JSON sends v encoded as JSON
func (r *Response) JSON(v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	r.defaultType("application/json")
	r.body = raw
	r.sent = true
	return nil
}

// SendStatus sets the status and sends its text as the body
func (r *Response) SendStatus(code int) {
	r.status = code
	r.defaultType("text/plain; charset=utf-8")
	r.body = []byte(http.StatusText(code))
	r.sent = true
}

// Fail turns the response into a plain-text server error carrying err's detail
func (r *Response) Fail(err error) {
	r.status = http.StatusInternalServerError
	r.headers = map[string]string{"Content-Type": "text/plain; charset=utf-8"}
	r.body = []byte(err.Error())
	r.sent = true
}

// Sent reports whether a body was sent
func (r *Response) Sent() bool { return r.sent }

// StatusCode returns the status code
func (r *Response) StatusCode() int { return r.status }

// Headers returns the response headers
func (r *Response) Headers() map[string]string { return r.headers }

// Body returns the response body
func (r *Response) Body() []byte { return r.body }

func (r *Response) defaultType(contentType string) {
	if _, ok := r.headers["Content-Type"]; !ok {
		r.headers["Content-Type"] = contentType
	}
}
