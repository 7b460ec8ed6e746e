package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"alertgateway/internal/broker"
	"alertgateway/internal/config"
	"alertgateway/internal/domain"
	"alertgateway/internal/metrics"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Publisher enqueues alerts onto queue streams.
// Params: pool, broker config, and metrics.
// Returns: publish helper for the HTTP API.
type Publisher struct {
	pool    *broker.Pool
	cfg     config.BrokerConfig
	metrics *metrics.Registry

	mu       sync.Mutex
	declared map[string]struct{}
}

// NewPublisher creates publisher.
func NewPublisher(pool *broker.Pool, cfg config.BrokerConfig, registry *metrics.Registry) *Publisher {
	return &Publisher{pool: pool, cfg: cfg, metrics: registry, declared: make(map[string]struct{})}
}

// Publish sends one alert to queue with service ids in the envelope header.
// Params: ctx, queue name, alert body, and destination service ids.
// Returns: message id or publish error.
func (p *Publisher) Publish(ctx context.Context, queue string, event domain.AlertEvent, serviceIDs []int) (string, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("encode alert: %w", err)
	}

	lease, err := p.pool.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire broker connection: %w", err)
	}
	defer lease.Release()

	js, err := lease.JetStream()
	if err != nil {
		return "", err
	}
	if err := p.declare(js, queue); err != nil {
		return "", err
	}

	id := uuid.NewString()
	message := nats.NewMsg(broker.Subject(p.cfg, queue))
	message.Data = body
	message.Header.Set(domain.HeaderServiceIDs, domain.EncodeServiceIDs(serviceIDs))
	message.Header.Set(nats.MsgIdHdr, id)
	if _, err := js.PublishMsg(message, nats.Context(ctx)); err != nil {
		return "", fmt.Errorf("publish to queue %q: %w", queue, err)
	}
	p.metrics.Published(queue)
	return id, nil
}

// declare ensures queue stream once per process.
func (p *Publisher) declare(js nats.JetStreamContext, queue string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.declared[queue]; ok {
		return nil
	}
	if err := broker.EnsureStream(js, p.cfg, queue); err != nil {
		return fmt.Errorf("declare queue %q: %w", queue, err)
	}
	p.declared[queue] = struct{}{}
	return nil
}
