package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/auralis-audio/auralis/internal/logging"
)

// EventBus provides asynchronous event processing with non-blocking
// publishing. Events are delivered to every registered consumer by a small
// worker pool; a full buffer drops the event and bumps a counter rather than
// stalling the pipeline.
type EventBus struct {
	eventChan chan Event

	bufferSize int
	workers    int

	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	running     atomic.Bool
	mu          sync.Mutex

	consumers []EventConsumer

	published atomic.Uint64
	dropped   atomic.Uint64
	consumed  atomic.Uint64

	logger *slog.Logger
}

// Config holds event bus configuration
type Config struct {
	BufferSize int
	Workers    int
}

// DefaultConfig returns the default event bus configuration
func DefaultConfig() *Config {
	return &Config{
		BufferSize: 4096,
		Workers:    2,
	}
}

// Global event bus instance (lazily initialized)
var (
	globalEventBus *EventBus
	globalMutex    sync.Mutex
)

// Initialize creates or returns the global event bus instance
func Initialize(config *Config) *EventBus {
	globalMutex.Lock()
	defer globalMutex.Unlock()

	if globalEventBus != nil {
		return globalEventBus
	}
	if config == nil {
		config = DefaultConfig()
	}

	globalEventBus = NewEventBus(config)
	return globalEventBus
}

// GetEventBus returns the global event bus instance, or nil before Initialize.
func GetEventBus() *EventBus {
	globalMutex.Lock()
	defer globalMutex.Unlock()
	return globalEventBus
}

// ResetForTesting tears down the global instance so tests can start clean.
func ResetForTesting() {
	globalMutex.Lock()
	defer globalMutex.Unlock()
	if globalEventBus != nil {
		globalEventBus.Shutdown(time.Second)
		globalEventBus = nil
	}
}

// NewEventBus creates an independent bus instance.
func NewEventBus(config *Config) *EventBus {
	if config == nil {
		config = DefaultConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &EventBus{
		eventChan:  make(chan Event, config.BufferSize),
		bufferSize: config.BufferSize,
		workers:    config.Workers,
		ctx:        ctx,
		cancel:     cancel,
		consumers:  make([]EventConsumer, 0),
		logger:     logging.ForService("events"),
	}
}

// RegisterConsumer adds a consumer and starts the worker pool on first use.
func (eb *EventBus) RegisterConsumer(consumer EventConsumer) {
	eb.mu.Lock()
	eb.consumers = append(eb.consumers, consumer)
	eb.mu.Unlock()

	eb.start()
}

func (eb *EventBus) start() {
	if !eb.running.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < eb.workers; i++ {
		eb.wg.Add(1)
		go eb.worker(i)
	}
}

func (eb *EventBus) worker(id int) {
	defer eb.wg.Done()
	for {
		select {
		case <-eb.ctx.Done():
			return
		case event, ok := <-eb.eventChan:
			if !ok {
				return
			}
			eb.dispatch(event)
		}
	}
}

func (eb *EventBus) dispatch(event Event) {
	eb.mu.Lock()
	consumers := make([]EventConsumer, len(eb.consumers))
	copy(consumers, eb.consumers)
	eb.mu.Unlock()

	for _, consumer := range consumers {
		if err := consumer.ProcessEvent(event); err != nil {
			eb.logger.Warn("event consumer failed",
				"consumer", consumer.Name(),
				"event_type", event.EventType(),
				"error", err)
		}
	}
	eb.consumed.Add(1)
}

// Publish enqueues an event without blocking. Returns false when the buffer
// is full or the bus is not running and the event was dropped.
func (eb *EventBus) Publish(event Event) bool {
	if !eb.running.Load() {
		eb.dropped.Add(1)
		return false
	}
	select {
	case eb.eventChan <- event:
		eb.published.Add(1)
		return true
	default:
		eb.dropped.Add(1)
		return false
	}
}

// Stats reports bus counters.
func (eb *EventBus) Stats() (published, consumed, dropped uint64) {
	return eb.published.Load(), eb.consumed.Load(), eb.dropped.Load()
}

// Shutdown drains in-flight events within the deadline, then stops workers.
func (eb *EventBus) Shutdown(deadline time.Duration) {
	if !eb.running.CompareAndSwap(true, false) {
		eb.cancel()
		return
	}

	done := make(chan struct{})
	go func() {
		// Give workers a chance to drain the channel before cancelling.
		for len(eb.eventChan) > 0 {
			select {
			case <-time.After(10 * time.Millisecond):
			case <-eb.ctx.Done():
				close(done)
				return
			}
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(deadline):
	}

	eb.cancel()
	eb.wg.Wait()
}
