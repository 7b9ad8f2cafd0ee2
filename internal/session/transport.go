package session

import (
	"context"
	"net/http"
	"time"
)

// BasicAuth carries HTTP basic credentials for a single request.
type BasicAuth struct {
	Username string
	Password string
}

// Request describes one outbound call to the array's management API.
// Path is relative to the transport's base URL.
type Request struct {
	Method    string
	Path      string
	Body      interface{} // JSON encoded when non-nil
	Header    map[string]string
	BasicAuth *BasicAuth
	Timeout   time.Duration
}

func (r *Request) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return r.Method
}

// Response is the raw reply of the array.
type Response struct {
	StatusCode int
	Body       []byte
}

// Text returns the body as a string for logging and error messages.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return string(r.Body)
}

// Transport performs exactly one HTTP exchange. It never retries;
// failures that produce no status code are reported as *UnreachableError.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
	Close() error
}

// DialFunc opens a fresh transport handle for a session.
type DialFunc func() (Transport, error)
