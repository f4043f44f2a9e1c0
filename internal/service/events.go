package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"evcentral/internal/clients"
)

const eventQueueSize = 256

// eventQueue delivers lifecycle events in order on a single worker so that a
// slow receiver never blocks a charger session. A nil queue drops everything.
type eventQueue struct {
	publisher EventPublisher
	logger    *zap.Logger

	mu       sync.Mutex
	drained  *sync.Cond
	inflight int
	closed   bool
	ch       chan clients.TransactionEvent
	done     chan struct{}
}

func newEventQueue(publisher EventPublisher, logger *zap.Logger) *eventQueue {
	if publisher == nil {
		return nil
	}
	q := &eventQueue{
		publisher: publisher,
		logger:    logger,
		ch:        make(chan clients.TransactionEvent, eventQueueSize),
		done:      make(chan struct{}),
	}
	q.drained = sync.NewCond(&q.mu)
	go q.run()
	return q
}

func (q *eventQueue) enqueue(event clients.TransactionEvent) {
	if q == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	select {
	case q.ch <- event:
		q.inflight++
	default:
		q.logger.Warn("event queue full, dropping notification",
			zap.String("type", event.Type),
			zap.Int64("transaction_id", event.TransactionID),
		)
	}
}

func (q *eventQueue) run() {
	defer close(q.done)
	for event := range q.ch {
		if err := q.publisher.Publish(context.Background(), event); err != nil {
			q.logger.Warn("transaction notification failed",
				zap.String("type", event.Type),
				zap.Int64("transaction_id", event.TransactionID),
				zap.Error(err),
			)
		}
		q.mu.Lock()
		q.inflight--
		if q.inflight == 0 {
			q.drained.Broadcast()
		}
		q.mu.Unlock()
	}
}

func (q *eventQueue) flush() {
	if q == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.inflight > 0 {
		q.drained.Wait()
	}
}

func (q *eventQueue) close() {
	if q == nil {
		return
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()
	<-q.done
}
