package queue

import (
	"context"
	"sync"
	"time"
)

// Handler processes one ingestion task.
type Handler func(ctx context.Context, task *IngestTask) error

// MemoryQueue runs ingestion tasks on in-process goroutines. It implements
// Queue and Lock for tests and single-binary deployments without Redis.
type MemoryQueue struct {
	handler Handler

	mu      sync.Mutex
	pending map[string]bool
	locks   map[string]time.Time
	wg      sync.WaitGroup
	closed  bool
}

func NewMemoryQueue(handler Handler) *MemoryQueue {
	return &MemoryQueue{
		handler: handler,
		pending: make(map[string]bool),
		locks:   make(map[string]time.Time),
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, task *IngestTask) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return context.Canceled
	}
	if q.pending[task.DocumentID] {
		q.mu.Unlock()
		return ErrDuplicateTask
	}
	q.pending[task.DocumentID] = true
	q.wg.Add(1)
	q.mu.Unlock()

	go func() {
		defer q.wg.Done()
		_ = q.handler(context.Background(), task)
		q.mu.Lock()
		delete(q.pending, task.DocumentID)
		q.mu.Unlock()
	}()
	return nil
}

func (q *MemoryQueue) Acquire(_ context.Context, documentID string, ttl time.Duration) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if expiry, held := q.locks[documentID]; held && time.Now().Before(expiry) {
		return false, nil
	}
	q.locks[documentID] = time.Now().Add(ttl)
	return true, nil
}

func (q *MemoryQueue) Release(_ context.Context, documentID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.locks, documentID)
	return nil
}

// Close waits for in-flight tasks to finish.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wg.Wait()
	return nil
}
