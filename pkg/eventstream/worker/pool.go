// Package worker provides an asynchronous worker pool that publishes turn
// events through a wrapped eventstream.Publisher.
//
// The pool decouples slow transports (a Kafka round trip) from the chat
// controller so finishing a submission never waits on the broker.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/papercomputeco/ragchat/pkg/eventstream"
	"github.com/papercomputeco/ragchat/pkg/logger"
)

var (
	defaultNumWorkers     uint = 2
	defaultJobQueueSize   uint = 256
	defaultPublishTimeout      = 10 * time.Second
)

// ErrQueueFull is returned when an event is dropped because the queue is full.
var ErrQueueFull = errors.New("turn event queue full, event dropped")

// ErrPoolClosed is returned when publishing to a closed pool.
var ErrPoolClosed = errors.New("turn event pool closed")

// Config is the configuration options for the worker pool.
type Config struct {
	// Publisher delivers each event. It is closed when the pool closes.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// PublishTimeout bounds a single delivery (defaults to 10s).
	PublishTimeout time.Duration

	Logger *slog.Logger
}

// Pool publishes turn events asynchronously via a worker pool. It is itself
// an eventstream.Publisher.
type Pool struct {
	config *Config
	queue  chan eventstream.TurnCompletedEvent
	wg     sync.WaitGroup
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Publisher == nil {
		return nil, errors.New("worker pool requires a publisher")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.PublishTimeout == 0 {
		c.PublishTimeout = defaultPublishTimeout
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	if c.Logger == nil {
		c.Logger = logger.Nop()
	}

	wp := &Pool{
		config: c,
		queue:  make(chan eventstream.TurnCompletedEvent, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// PublishTurn queues a copy of event for delivery. It never blocks: when
// the queue is full the event is dropped and ErrQueueFull returned.
func (p *Pool) PublishTurn(_ context.Context, event *eventstream.TurnCompletedEvent) error {
	if event == nil {
		return eventstream.ErrNilTurnEvent
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.queue <- *event:
		p.logger.Debug("turn event queued",
			"event_id", event.EventID,
			"outcome", event.Outcome,
		)
		return nil
	default:
		p.logger.Error("turn event not queued, queue full, event dropped",
			"event_id", event.EventID,
			"conversation_id", event.ConversationID,
		)
		return ErrQueueFull
	}
}

// Close stops accepting events, waits for queued ones to be delivered and
// closes the wrapped publisher.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	return p.config.Publisher.Close()
}

// worker is the inner worker thread that continuously pulls events off the queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("turn event worker started", "worker_id", id)

	for event := range p.queue {
		p.publish(event)
	}

	p.logger.Debug("turn event worker stopped", "worker_id", id)
}

func (p *Pool) publish(event eventstream.TurnCompletedEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.PublishTimeout)
	defer cancel()

	if err := p.config.Publisher.PublishTurn(ctx, &event); err != nil {
		p.logger.Warn("async turn event publish failed",
			"event_id", event.EventID,
			"error", err,
		)
		return
	}

	p.logger.Debug("turn event delivered", "event_id", event.EventID)
}
