package audit

import (
	"context"
	"sync"
	"time"

	"github.com/systmms/sanbridge/internal/logging"
	"github.com/systmms/sanbridge/internal/session"
)

const (
	// DefaultQueueSize is the maximum number of records that can be queued.
	DefaultQueueSize = 256

	drainTimeout = 5 * time.Second
)

// Journal is a session.Observer that writes records to a Store from a
// background worker. Observe never blocks; when the queue is full the
// record is dropped and counted.
type Journal struct {
	store  Store
	logger *logging.Logger
	queue  chan Record

	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
	done    chan struct{}

	droppedMu    sync.Mutex
	droppedCount int64
}

// NewJournal creates a journal writing to store. If queueSize is 0,
// DefaultQueueSize is used.
func NewJournal(store Store, queueSize int, logger *logging.Logger) *Journal {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Journal{
		store:  store,
		logger: logger,
		queue:  make(chan Record, queueSize),
		done:   make(chan struct{}),
	}
}

// Start begins the background writer.
func (j *Journal) Start(ctx context.Context) {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return
	}
	j.running = true
	j.mu.Unlock()

	j.wg.Add(1)
	go j.worker(ctx)
}

// Stop waits for queued records to be written.
func (j *Journal) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	j.running = false
	j.mu.Unlock()

	close(j.done)
	j.wg.Wait()
}

// Observe implements session.Observer.
func (j *Journal) Observe(e session.Event) {
	j.Send(FromEvent(e))
}

// Send queues a record. Records sent before Start or after Stop are ignored.
func (j *Journal) Send(r Record) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if !j.running {
		return
	}

	select {
	case j.queue <- r:
	default:
		j.droppedMu.Lock()
		j.droppedCount++
		j.droppedMu.Unlock()
	}
}

// DroppedCount returns the number of records dropped on a full queue.
func (j *Journal) DroppedCount() int64 {
	j.droppedMu.Lock()
	defer j.droppedMu.Unlock()
	return j.droppedCount
}

// Store returns the backing store.
func (j *Journal) Store() Store {
	return j.store
}

func (j *Journal) worker(ctx context.Context) {
	defer j.wg.Done()

	for {
		select {
		case <-ctx.Done():
			j.drain()
			return
		case <-j.done:
			j.drain()
			return
		case r := <-j.queue:
			j.write(ctx, r)
		}
	}
}

func (j *Journal) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	for {
		select {
		case r := <-j.queue:
			j.write(ctx, r)
		default:
			return
		}
	}
}

func (j *Journal) write(ctx context.Context, r Record) {
	if err := j.store.Append(ctx, r); err != nil {
		j.logger.Warn("audit: %v", err)
	}
}
