package audit

import (
	"sync"

	"github.com/HFI-UC/UtiOpia-sub001/internal/models"
)

// retryQueue is a bounded FIFO of records whose first write failed. When
// full, the oldest record is dropped to make room.
type retryQueue struct {
	mu       sync.Mutex
	records  []models.AuditRecord
	head     int
	tail     int
	count    int
	capacity int
}

func newRetryQueue(capacity int) *retryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &retryQueue{
		records:  make([]models.AuditRecord, capacity),
		capacity: capacity,
	}
}

// push enqueues rec and reports whether an older record was dropped.
func (q *retryQueue) push(rec models.AuditRecord) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := false
	if q.count >= q.capacity {
		q.tail = (q.tail + 1) % q.capacity
		q.count--
		dropped = true
	}

	q.records[q.head] = rec
	q.head = (q.head + 1) % q.capacity
	q.count++
	return dropped
}

func (q *retryQueue) popBatch(n int) []models.AuditRecord {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return nil
	}
	if n > q.count {
		n = q.count
	}

	out := make([]models.AuditRecord, n)
	for i := 0; i < n; i++ {
		out[i] = q.records[q.tail]
		q.records[q.tail] = models.AuditRecord{}
		q.tail = (q.tail + 1) % q.capacity
	}
	q.count -= n
	return out
}

func (q *retryQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}
