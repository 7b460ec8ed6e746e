package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"alertgateway/internal/broker"
	"alertgateway/internal/config"
	"alertgateway/internal/domain"
	"alertgateway/internal/failure"
	"alertgateway/internal/metrics"

	"github.com/nats-io/nats.go"
)

// Handler processes one message body with its destination service ids.
// Any returned error requeues the message.
type Handler interface {
	Route(ctx context.Context, body []byte, serviceIDs []int) error
}

// Consumer binds one durable JetStream consumer per configured queue and settles each message.
// Params: connection pool, handler, broker config, logger, and metrics.
// Returns: consumer lifecycle handle.
type Consumer struct {
	pool    *broker.Pool
	handler Handler
	cfg     config.BrokerConfig
	logger  *slog.Logger
	metrics *metrics.Registry

	mu     sync.Mutex
	ctx    context.Context
	lease  *broker.Lease
	subs   []*nats.Subscription
	closed bool
}

// NewConsumer creates idle consumer.
// Params: pool, handler, broker config, logger, and optional metrics.
// Returns: consumer; call Start to bind queues.
func NewConsumer(pool *broker.Pool, handler Handler, cfg config.BrokerConfig, logger *slog.Logger, registry *metrics.Registry) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{pool: pool, handler: handler, cfg: cfg, logger: logger, metrics: registry}
}

// Start declares every queue and subscribes its handler; returns once all are bound.
// Params: ctx that also bounds in-flight handling, and queue records.
// Returns: setup error (already-bound subscriptions are drained on failure).
func (c *Consumer) Start(ctx context.Context, queues []domain.QueueRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("consumer is closed")
	}
	if c.lease != nil {
		return errors.New("consumer already started")
	}

	lease, err := c.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire broker connection: %w", err)
	}
	js, err := lease.JetStream()
	if err != nil {
		lease.Release()
		return err
	}
	c.lease = lease
	c.ctx = ctx

	for _, queue := range queues {
		sub, err := c.bind(js, queue)
		if err != nil {
			c.unbindLocked()
			return err
		}
		c.subs = append(c.subs, sub)
		c.logger.Info("queue consumer started",
			"queue", queue.Name,
			"stream", broker.StreamName(c.cfg, queue.Name),
			"subject", broker.Subject(c.cfg, queue.Name),
		)
	}
	return nil
}

// bind declares one queue stream, its durable consumer, and the push subscription.
func (c *Consumer) bind(js nats.JetStreamContext, queue domain.QueueRecord) (*nats.Subscription, error) {
	if err := broker.EnsureStream(js, c.cfg, queue.Name); err != nil {
		return nil, fmt.Errorf("declare queue %q: %w", queue.Name, err)
	}
	stream := broker.StreamName(c.cfg, queue.Name)
	durable := broker.ConsumerName(c.cfg, queue.Name)
	subject := broker.Subject(c.cfg, queue.Name)
	if err := c.ensureConsumer(js, stream, durable, subject); err != nil {
		return nil, fmt.Errorf("declare consumer for queue %q: %w", queue.Name, err)
	}

	name := queue.Name
	sub, err := js.Subscribe(subject, func(message *nats.Msg) {
		c.handle(name, message)
	}, nats.Bind(stream, durable), nats.ManualAck())
	if err != nil {
		return nil, fmt.Errorf("subscribe queue %q: %w", queue.Name, err)
	}
	return sub, nil
}

// ensureConsumer creates durable push consumer when absent.
// Consumers created here outlive subscriptions, so draining never deletes them.
func (c *Consumer) ensureConsumer(js nats.JetStreamContext, stream, durable, subject string) error {
	if _, err := js.ConsumerInfo(stream, durable); err == nil {
		return nil
	} else if !errors.Is(err, nats.ErrConsumerNotFound) {
		return fmt.Errorf("consumer info %q: %w", durable, err)
	}
	_, err := js.AddConsumer(stream, &nats.ConsumerConfig{
		Durable:        durable,
		DeliverSubject: nats.NewInbox(),
		DeliverPolicy:  nats.DeliverAllPolicy,
		AckPolicy:      nats.AckExplicitPolicy,
		AckWait:        time.Duration(c.cfg.AckWaitSec) * time.Second,
		MaxDeliver:     -1,
		MaxAckPending:  c.cfg.MaxAckPending,
		FilterSubject:  subject,
	})
	if err != nil {
		return fmt.Errorf("add consumer %q: %w", durable, err)
	}
	return nil
}

// handle runs one message through the handler then acks or naks it.
// Params: queue name and delivered message.
// Returns: none; settlement is reported through logs and metrics.
func (c *Consumer) handle(queue string, message *nats.Msg) {
	if message == nil {
		return
	}
	started := time.Now()
	c.logger.Info("received message", "queue", queue)

	ctx, cancel := context.WithTimeout(c.ctx, time.Duration(c.cfg.HandleTimeoutSec)*time.Second)
	defer cancel()

	err := c.process(ctx, message)
	if err != nil {
		c.logger.Error("message processing failed; requeueing", "queue", queue, "attempt", deliveryAttempt(message), "error", err)
		if nakErr := message.Nak(); nakErr != nil {
			c.logger.Error("nak failed", "queue", queue, "error", nakErr)
		}
		c.metrics.MessageSettled(queue, metrics.OutcomeNak, time.Since(started))
		return
	}
	if ackErr := message.Ack(); ackErr != nil {
		c.logger.Error("ack failed", "queue", queue, "error", ackErr)
	}
	c.metrics.MessageSettled(queue, metrics.OutcomeAck, time.Since(started))
}

func (c *Consumer) process(ctx context.Context, message *nats.Msg) error {
	serviceIDs, err := domain.DecodeServiceIDs(message.Header.Values(domain.HeaderServiceIDs))
	if err != nil {
		return failure.DecodeError{Err: err}
	}
	return c.handler.Route(ctx, message.Data, serviceIDs)
}

// Close drains subscriptions and returns the connection lease. Safe to call repeatedly.
// Params: none.
// Returns: joined drain errors.
func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.unbindLocked()
}

func (c *Consumer) unbindLocked() error {
	var errs []error
	for _, sub := range c.subs {
		if err := sub.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			errs = append(errs, err)
		}
	}
	c.subs = nil
	if c.lease != nil {
		c.lease.Release()
		c.lease = nil
	}
	return errors.Join(errs...)
}

// deliveryAttempt returns delivery count from JetStream metadata.
func deliveryAttempt(message *nats.Msg) uint64 {
	metadata, err := message.Metadata()
	if err != nil || metadata == nil || metadata.NumDelivered == 0 {
		return 1
	}
	return metadata.NumDelivered
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, body []byte, serviceIDs []int) error

// Route calls f.
func (f HandlerFunc) Route(ctx context.Context, body []byte, serviceIDs []int) error {
	return f(ctx, body, serviceIDs)
}
