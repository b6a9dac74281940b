// Package analytics is a best-effort, fire-and-forget side channel that
// mirrors committed inventory events to a message broker for downstream
// reporting. It never blocks or fails the webhook path it is called from.
package analytics

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/proyuen/invsync/internal/model"
	"github.com/proyuen/invsync/pkg/mq"
)

// Event is the analytics-facing shape of one committed delta, intentionally
// smaller than model.InventoryEvent.
type Event struct {
	SiteID    string          `json:"site_id"`
	OrderID   string          `json:"order_id"`
	SKU       string          `json:"sku"`
	Delta     int             `json:"delta"`
	EventType model.EventType `json:"event_type"`
	NewOnHand int             `json:"new_on_hand"`
	EmittedAt time.Time       `json:"emitted_at"`
}

// Sink accepts committed ledger events for best-effort publication.
// Send never blocks: callers that exceed the sink's bounded queue simply
// drop the event, with a log line, exactly like the propagation queue.
type Sink interface {
	Send(event Event)
	Close()
}

// noopSink is selected when no broker URL is configured.
type noopSink struct{}

// NewNoopSink returns a Sink that discards every event.
func NewNoopSink() Sink { return noopSink{} }

func (noopSink) Send(Event) {}
func (noopSink) Close()     {}

const exchangeRoutingKey = "inventory.event"

type brokerSink struct {
	mq       mq.RabbitMQ
	exchange string
	jobs     chan Event
	wg       sync.WaitGroup
}

// NewBrokerSink starts workerCount goroutines draining a bounded channel of
// Events, each publishing to exchange via mq. queueDepth bounds how many
// events may be buffered before Send starts dropping them.
func NewBrokerSink(client mq.RabbitMQ, exchange string, workerCount, queueDepth int) Sink {
	if workerCount <= 0 {
		workerCount = 4
	}
	if queueDepth <= 0 {
		queueDepth = 1000
	}

	s := &brokerSink{
		mq:       client,
		exchange: exchange,
		jobs:     make(chan Event, queueDepth),
	}

	s.wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go s.worker()
	}

	return s
}

func (s *brokerSink) Send(event Event) {
	select {
	case s.jobs <- event:
	default:
		log.Printf("analytics sink queue full; dropping event sku=%s site=%s", event.SKU, event.SiteID)
	}
}

func (s *brokerSink) worker() {
	defer s.wg.Done()
	for event := range s.jobs {
		body, err := json.Marshal(event)
		if err != nil {
			log.Printf("analytics sink: failed to marshal event: %v", err)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = s.mq.Publish(ctx, s.exchange, exchangeRoutingKey, body)
		cancel()
		if err != nil {
			log.Printf("analytics sink: publish failed sku=%s site=%s: %v", event.SKU, event.SiteID, err)
		}
	}
}

// Close stops accepting new events and waits up to 5s for the worker pool to
// drain the backlog, mirroring the propagation queue's bounded-wait shutdown.
func (s *brokerSink) Close() {
	close(s.jobs)

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(5 * time.Second):
		log.Println("analytics sink did not drain within 5s; abandoning")
	}
}
