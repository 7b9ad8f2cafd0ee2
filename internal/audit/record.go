// Package audit keeps a journal of session lifecycle events: logins, token
// refreshes, retries, faults and logouts. Records never carry credentials
// or tokens, only what happened, to which array, and how it ended.
package audit

import (
	"context"
	"time"

	"github.com/systmms/sanbridge/internal/session"
)

// maxErrorLen caps the stored error text.
const maxErrorLen = 512

// Record is one journal entry.
type Record struct {
	Time     time.Time
	Array    string
	Protocol string
	Kind     string
	Method   string
	Path     string
	Status   int
	Error    string
	Duration time.Duration
}

// FromEvent converts a session event into a record.
func FromEvent(e session.Event) Record {
	r := Record{
		Time:     e.Time,
		Array:    e.Array,
		Protocol: e.Protocol,
		Kind:     string(e.Kind),
		Method:   e.Method,
		Path:     e.Path,
		Status:   e.Status,
		Duration: e.Duration,
	}
	if r.Time.IsZero() {
		r.Time = time.Now()
	}
	if e.Err != nil {
		r.Error = e.Err.Error()
		if len(r.Error) > maxErrorLen {
			r.Error = r.Error[:maxErrorLen]
		}
	}
	return r
}

// Store persists records.
type Store interface {
	Append(ctx context.Context, r Record) error
	// Recent returns up to limit records for array, newest first.
	Recent(ctx context.Context, array string, limit int) ([]Record, error)
	Close() error
}
