package webhooks

import (
	"sync"
	"time"
)

// DefaultDeliveryHistory is how many delivery attempts the log retains.
const DefaultDeliveryHistory = 256

// Repository keeps the most recent delivery attempts in a ring buffer.
type Repository struct {
	mu    sync.Mutex
	buf   []WebhookDelivery
	next  int
	total int
}

// NewRepository creates a Repository retaining up to size attempts.
func NewRepository(size int) *Repository {
	if size <= 0 {
		size = DefaultDeliveryHistory
	}
	return &Repository{buf: make([]WebhookDelivery, size)}
}

// RecordDelivery stores one attempt, evicting the oldest when full.
func (r *Repository) RecordDelivery(d WebhookDelivery) {
	if d.DeliveredAt.IsZero() {
		d.DeliveredAt = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = d
	r.next = (r.next + 1) % len(r.buf)
	r.total++
}

// Recent returns up to limit attempts, newest first.
func (r *Repository) Recent(limit int) []WebhookDelivery {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := min(r.total, len(r.buf))
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]WebhookDelivery, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, r.buf[(r.next-i+len(r.buf))%len(r.buf)])
	}
	return out
}
