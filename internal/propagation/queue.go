package propagation

import (
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var jobsDropped = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "propagation_jobs_dropped_total",
	Help: "Total number of propagation jobs dropped because the queue was full.",
})

func init() {
	prometheus.MustRegister(jobsDropped)
}

// Queue is a bounded, non-blocking hand-off between webhook handlers
// (producers) and the single propagation worker (consumer).
type Queue struct {
	ch chan Job
}

// NewQueue creates a Queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 10000
	}
	return &Queue{ch: make(chan Job, capacity)}
}

// Enqueue attempts a non-blocking send. If the queue is full the job is
// dropped, logged and counted: propagation is best-effort by design, never a
// reason to block or fail the webhook response.
func (q *Queue) Enqueue(sku string, stockQuantity int) {
	job := Job{SKU: sku, StockQuantity: stockQuantity, EnqueuedAt: time.Now().UTC()}
	select {
	case q.ch <- job:
	default:
		jobsDropped.Inc()
		log.Printf("propagation queue full; dropping job sku=%s stock_quantity=%d", sku, stockQuantity)
	}
}

// Jobs exposes the receive-only channel for the worker to range over.
func (q *Queue) Jobs() <-chan Job {
	return q.ch
}

// Close closes the channel, so the worker's range over Jobs ends once the
// buffered jobs are drained; draining them is the worker's responsibility.
// Enqueue after Close panics (send on a closed channel).
func (q *Queue) Close() {
	close(q.ch)
}
