package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/lunarbank/funds/backoff"
	"github.com/lunarbank/funds/ledger"
	"github.com/lunarbank/funds/log"
)

// Queue names consumed by downstream services.
const (
	QueueNotifications     = "notifications"
	QueueTransactionErrors = "transaction_errors"
)

const (
	defaultQueueSize      = 1024
	defaultPublishTimeout = 5 * time.Second
	defaultMaxAttempts    = 3
	defaultRetryBase      = 200 * time.Millisecond
)

// ErrNilPublisher is returned when a dispatcher is built without a publisher.
var ErrNilPublisher = errors.New("publisher is required")

// Publisher delivers a raw message body to a named queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, body []byte) error
	Close() error
}

// DispatcherConfig defines queueing and retry behavior.
type DispatcherConfig struct {
	Publisher Publisher
	Logger    log.Logger

	// QueueSize bounds the in-memory event buffer. When full, new events
	// are dropped rather than blocking the committing movement.
	QueueSize int
	// PublishTimeout bounds a single publish attempt.
	PublishTimeout time.Duration
	// MaxAttempts bounds publish retries before an event is dropped.
	MaxAttempts int
	// RetryBase is the base delay for exponential retry backoff.
	RetryBase time.Duration
}

func (cfg DispatcherConfig) withDefaults() DispatcherConfig {
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}

	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}

	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}

	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}

	if cfg.RetryBase <= 0 {
		cfg.RetryBase = defaultRetryBase
	}

	return cfg
}

type event struct {
	queue string
	body  []byte
}

// Dispatcher queues events in memory and publishes them from a background
// worker. It satisfies the engine's dispatcher contract: neither Notify nor
// ReportError ever blocks or returns an error.
type Dispatcher struct {
	cfg    DispatcherConfig
	logger log.Logger

	events chan event
	wg     sync.WaitGroup

	// closeMu serializes enqueues against Close so no send can race the
	// channel close.
	closeMu sync.RWMutex
	closed  bool
}

// NewDispatcher starts the background worker and returns a ready dispatcher.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Publisher == nil {
		return nil, ErrNilPublisher
	}

	cfg = cfg.withDefaults()

	d := &Dispatcher{
		cfg:    cfg,
		logger: cfg.Logger,
		events: make(chan event, cfg.QueueSize),
	}

	d.wg.Add(1)

	go d.worker()

	return d, nil
}

// Notify enqueues a notification event for the owner of a moved balance.
func (d *Dispatcher) Notify(ctx context.Context, n ledger.NotificationEvent) {
	d.enqueue(ctx, QueueNotifications, n)
}

// ReportError enqueues a transaction error event for operational follow-up.
func (d *Dispatcher) ReportError(ctx context.Context, e ledger.ErrorEvent) {
	d.enqueue(ctx, QueueTransactionErrors, e)
}

func (d *Dispatcher) enqueue(ctx context.Context, queue string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		d.logger.Log(ctx, log.LevelWarn, "event dropped: encode failed",
			log.String("queue", queue), log.Err(err))

		return
	}

	d.closeMu.RLock()
	defer d.closeMu.RUnlock()

	if d.closed {
		d.logger.Log(ctx, log.LevelWarn, "event dropped: dispatcher closed", log.String("queue", queue))

		return
	}

	select {
	case d.events <- event{queue: queue, body: body}:
	default:
		d.logger.Log(ctx, log.LevelWarn, "event dropped: queue full", log.String("queue", queue))
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for ev := range d.events {
		d.publishWithRetry(ev)
	}
}

func (d *Dispatcher) publishWithRetry(ev event) {
	ctx := context.Background()

	var lastErr error

	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		publishCtx, cancel := context.WithTimeout(ctx, d.cfg.PublishTimeout)
		err := d.cfg.Publisher.Publish(publishCtx, ev.queue, ev.body)

		cancel()

		if err == nil {
			if attempt > 1 {
				d.logger.Log(ctx, log.LevelInfo, "event published after retry",
					log.String("queue", ev.queue), log.Int("attempt", attempt))
			}

			return
		}

		lastErr = err

		if attempt < d.cfg.MaxAttempts {
			delay := backoff.ExponentialWithJitter(d.cfg.RetryBase, attempt)
			if err := backoff.SleepWithContext(ctx, delay); err != nil {
				break
			}
		}
	}

	d.logger.Log(ctx, log.LevelWarn, "event dropped: publish retries exhausted",
		log.String("queue", ev.queue),
		log.Int("attempts", d.cfg.MaxAttempts),
		log.Err(lastErr))
}

// Close stops accepting events, drains the queue, and closes the publisher.
// Events still in flight when ctx expires are abandoned.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.closeMu.Lock()

	if d.closed {
		d.closeMu.Unlock()

		return nil
	}

	d.closed = true
	close(d.events)
	d.closeMu.Unlock()

	drained := make(chan struct{})

	go func() {
		d.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		d.logger.Log(ctx, log.LevelWarn, "dispatcher close abandoned in-flight events", log.Err(ctx.Err()))
	}

	return d.cfg.Publisher.Close()
}
