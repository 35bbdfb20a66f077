package messaging

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrQueueFull is returned by Enqueue when the dispatcher buffer is full.
var ErrQueueFull = errors.New("event queue full")

// RetryConfig holds configuration for retry behavior.
type RetryConfig struct {
	MaxRetries    int           // Maximum number of retries
	InitialDelay  time.Duration // Initial delay before first retry
	MaxDelay      time.Duration // Maximum delay between retries
	Multiplier    float64       // Delay multiplier for exponential backoff
	Randomization float64       // Randomization factor (0-1)
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		Multiplier:    2.0,
		Randomization: 0.2,
	}
}

// NextDelay returns the backoff before retry number attempt (0-based).
func (c RetryConfig) NextDelay(attempt int) time.Duration {
	delay := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))
	if delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}
	jitter := 1 - c.Randomization + 2*c.Randomization*rand.Float64()
	return time.Duration(delay * jitter)
}

type envelope struct {
	routingKey string
	event      Event
}

// Dispatcher publishes events on a background goroutine so request
// handlers never block on a broker. Events leave in the order they were
// enqueued.
type Dispatcher struct {
	pub      Publisher
	retry    RetryConfig
	queue    chan envelope
	logger   *zap.Logger
	onResult func(sink, routingKey string, err error)

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup

	// abort is cancelled when Close gives up on the drain.
	abort       context.Context
	cancelAbort context.CancelFunc
}

// NewDispatcher starts a dispatcher with a buffer of size events.
// onResult, when set, is called after every final publish attempt.
func NewDispatcher(pub Publisher, size int, retry RetryConfig, logger *zap.Logger, onResult func(sink, routingKey string, err error)) *Dispatcher {
	d := &Dispatcher{
		pub:      pub,
		retry:    retry,
		queue:    make(chan envelope, size),
		logger:   logger.Named("dispatcher"),
		onResult: onResult,
		done:     make(chan struct{}),
	}
	d.abort, d.cancelAbort = context.WithCancel(context.Background())
	d.wg.Add(1)
	go d.run()
	return d
}

// Enqueue hands an event to the background worker without blocking.
func (d *Dispatcher) Enqueue(routingKey string, event Event) error {
	select {
	case <-d.done:
		return errors.New("dispatcher stopped")
	default:
	}

	select {
	case d.queue <- envelope{routingKey: routingKey, event: event}:
		return nil
	default:
		if d.onResult != nil {
			d.onResult(d.pub.Name(), routingKey, ErrQueueFull)
		}
		return ErrQueueFull
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case env := <-d.queue:
			d.deliver(env)
		case <-d.done:
			// Drain what was already accepted, retries included.
			for d.abort.Err() == nil {
				select {
				case env := <-d.queue:
					d.deliver(env)
				default:
					return
				}
			}
			return
		}
	}
}

func (d *Dispatcher) deliver(env envelope) {
	err := d.publishOnce(env, 5*time.Second)
	for attempt := 0; err != nil && attempt < d.retry.MaxRetries; attempt++ {
		delay := d.retry.NextDelay(attempt)
		d.logger.Warn("publish failed, retrying",
			zap.String("routing_key", env.routingKey),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-time.After(delay):
		case <-d.abort.Done():
			attempt = d.retry.MaxRetries
			continue
		}
		err = d.publishOnce(env, 5*time.Second)
	}

	if err != nil {
		d.logger.Error("event dropped",
			zap.String("routing_key", env.routingKey),
			zap.String("event_id", env.event.ID),
			zap.Error(err))
	}
	if d.onResult != nil {
		d.onResult(d.pub.Name(), env.routingKey, err)
	}
}

func (d *Dispatcher) publishOnce(env envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(d.abort, timeout)
	defer cancel()
	return d.pub.Publish(ctx, env.routingKey, env.event)
}

// Close stops accepting events and waits for the worker to deliver what is
// queued, retries included, then closes the underlying publisher. When ctx
// expires first, in-flight publishes are cancelled and the rest of the
// queue is dropped.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.stopOnce.Do(func() { close(d.done) })

	drained := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		d.cancelAbort()
		return ctx.Err()
	}
	d.cancelAbort()
	return d.pub.Close()
}
