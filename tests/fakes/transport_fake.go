package fakes

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/systmms/sanbridge/internal/session"
)

// HandlerFunc answers one request sent through a FakeTransport.
type HandlerFunc func(req *session.Request) (*session.Response, error)

// FakeTransport is a scriptable, counting session.Transport.
//
// Every request is recorded with the headers it carried on the wire so
// tests can check both routing and which secrets were opened.
//
// Example usage:
//
//	ft := fakes.NewFakeTransport(func(req *session.Request) (*session.Response, error) {
//	    return fakes.JSONResponse(200, map[string]string{"ok": "yes"}), nil
//	})
//	mgr, _ := session.New(proto, session.Config{Dial: ft.Dialer(), Vault: fakes.NewFakeVault()})
type FakeTransport struct {
	handler HandlerFunc

	mu       sync.Mutex
	requests []session.Request
	closed   int
	dials    int
}

// NewFakeTransport creates a transport that routes every request to h.
func NewFakeTransport(h HandlerFunc) *FakeTransport {
	return &FakeTransport{handler: h}
}

// Do records req and returns the handler's answer.
func (f *FakeTransport) Do(ctx context.Context, req *session.Request) (*session.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, &session.UnreachableError{Method: req.Method, URL: req.Path, Err: err}
	}

	cp := *req
	cp.Header = make(map[string]string, len(req.Header))
	for k, v := range req.Header {
		cp.Header[k] = v
	}

	f.mu.Lock()
	f.requests = append(f.requests, cp)
	f.mu.Unlock()

	if f.handler == nil {
		return &session.Response{StatusCode: 200, Body: []byte("{}")}, nil
	}
	return f.handler(&cp)
}

// Close counts closes.
func (f *FakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

// Dialer returns a session.DialFunc that hands out this transport.
func (f *FakeTransport) Dialer() session.DialFunc {
	return func() (session.Transport, error) {
		f.mu.Lock()
		f.dials++
		f.mu.Unlock()
		return f, nil
	}
}

// Requests returns a copy of every recorded request.
func (f *FakeTransport) Requests() []session.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]session.Request, len(f.requests))
	copy(out, f.requests)
	return out
}

// Count returns how many requests matched method and path.
func (f *FakeTransport) Count(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// Total returns the number of recorded requests.
func (f *FakeTransport) Total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// Closed returns how many times Close was called.
func (f *FakeTransport) Closed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Dials returns how many transports were handed out.
func (f *FakeTransport) Dials() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

// JSONResponse builds a response whose body is v encoded as JSON.
func JSONResponse(status int, v interface{}) *session.Response {
	body, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("fakes: cannot encode response: %v", err))
	}
	return &session.Response{StatusCode: status, Body: body}
}

// TextResponse builds a response with a plain body.
func TextResponse(status int, body string) *session.Response {
	return &session.Response{StatusCode: status, Body: []byte(body)}
}
