package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"alertgateway/internal/config"
	"alertgateway/internal/failure"
	"alertgateway/internal/metrics"

	"github.com/nats-io/nats.go"
)

// ErrPoolClosed is returned by Acquire after Shutdown.
var ErrPoolClosed = errors.New("broker pool is closed")

// ErrPoolNotInitialized is returned by Acquire before Initialize.
var ErrPoolNotInitialized = errors.New("broker pool is not initialized")

// Pool is a bounded set of reusable NATS connections.
// Connections reconnect on their own; a lease only pins a connection for one user at a time.
type Pool struct {
	cfg     config.BrokerConfig
	name    string
	logger  *slog.Logger
	metrics *metrics.Registry
	dial    func() (*nats.Conn, error)

	slots chan struct{}

	mu          sync.Mutex
	idle        []*nats.Conn
	all         []*nats.Conn
	initialized bool
	closed      bool
}

// NewPool builds an empty pool; nothing is dialed until Initialize.
// Params: broker config (URLs, pool_size, connect timeout), client name, logger, and metrics.
// Returns: pool handle.
func NewPool(cfg config.BrokerConfig, name string, logger *slog.Logger, registry *metrics.Registry) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	size := cfg.PoolSize
	if size <= 0 {
		size = 1
	}
	p := &Pool{
		cfg:     cfg,
		name:    name,
		logger:  logger,
		metrics: registry,
		slots:   make(chan struct{}, size),
	}
	p.dial = p.connect
	return p
}

// Initialize dials the first connection so unreachable brokers fail startup.
// Params: ctx checked before dialing.
// Returns: nil or failure.PoolInitFailed.
func (p *Pool) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return failure.PoolInitFailed{Err: err}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return failure.PoolInitFailed{Err: ErrPoolClosed}
	}
	if p.initialized {
		return nil
	}

	conn, err := p.dial()
	if err != nil {
		return failure.PoolInitFailed{Err: err}
	}
	p.idle = append(p.idle, conn)
	p.all = append(p.all, conn)
	p.initialized = true
	p.logger.Info("broker pool initialized", "url", conn.ConnectedUrlRedacted(), "max_size", cap(p.slots))
	return nil
}

// Acquire leases one connection, waiting while all slots are taken.
// Params: ctx bounding the wait.
// Returns: lease or ctx/pool/dial error.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	conn, err := p.take()
	if err != nil {
		<-p.slots
		return nil, err
	}
	p.metrics.LeaseAcquired()
	return &Lease{pool: p, conn: conn}, nil
}

// take returns an idle live connection or dials a new one.
func (p *Pool) take() (*nats.Conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if !p.initialized {
		p.mu.Unlock()
		return nil, ErrPoolNotInitialized
	}
	for len(p.idle) > 0 {
		conn := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		if conn.IsClosed() {
			p.forget(conn)
			continue
		}
		p.mu.Unlock()
		return conn, nil
	}
	p.mu.Unlock()

	conn, err := p.dial()
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		conn.Close()
		return nil, ErrPoolClosed
	}
	p.all = append(p.all, conn)
	return conn, nil
}

// release returns a connection to the idle list and frees its slot.
func (p *Pool) release(conn *nats.Conn) {
	p.mu.Lock()
	if !p.closed && !conn.IsClosed() {
		p.idle = append(p.idle, conn)
	} else if !p.closed {
		p.forget(conn)
	}
	p.mu.Unlock()
	p.metrics.LeaseReleased()
	<-p.slots
}

// forget drops conn from the tracked set. Caller holds p.mu.
func (p *Pool) forget(conn *nats.Conn) {
	for i, tracked := range p.all {
		if tracked == conn {
			p.all = append(p.all[:i], p.all[i+1:]...)
			return
		}
	}
}

// Shutdown drains every pooled connection. Safe to call repeatedly and before Initialize.
// Params: none.
// Returns: nil or failure.PoolShutdownFailed joining per-connection errors.
func (p *Pool) Shutdown() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	conns := p.all
	p.all, p.idle = nil, nil
	p.mu.Unlock()

	var errs []error
	for _, conn := range conns {
		if conn.IsClosed() {
			continue
		}
		if err := conn.Drain(); err != nil {
			conn.Close()
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		err := failure.PoolShutdownFailed{Err: errors.Join(errs...)}
		p.logger.Error("broker pool shutdown failed", "error", err)
		return err
	}
	p.logger.Info("broker pool closed", "connections", len(conns))
	return nil
}

// Size reports configured maximum number of concurrent leases.
func (p *Pool) Size() int {
	return cap(p.slots)
}

// connect dials one NATS connection with unlimited reconnects.
func (p *Pool) connect() (*nats.Conn, error) {
	timeout := time.Duration(p.cfg.ConnectTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	opts := []nats.Option{
		nats.Name(p.name),
		nats.Timeout(timeout),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(conn *nats.Conn, err error) {
			if err != nil {
				p.logger.Warn("broker disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			p.logger.Info("broker reconnected", "url", conn.ConnectedUrlRedacted())
		}),
	}
	conn, err := nats.Connect(strings.Join(p.cfg.URL, ","), opts...)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", strings.Join(p.cfg.URL, ","), err)
	}
	return conn, nil
}

// Lease pins one pooled connection until Release.
type Lease struct {
	pool *Pool
	conn *nats.Conn
	once sync.Once
}

// Conn returns leased connection.
func (l *Lease) Conn() *nats.Conn {
	return l.conn
}

// JetStream returns JetStream context bound to leased connection.
// Params: none.
// Returns: context or setup error.
func (l *Lease) JetStream() (nats.JetStreamContext, error) {
	js, err := l.conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream init: %w", err)
	}
	return js, nil
}

// Release returns connection to pool. Extra calls are no-ops.
func (l *Lease) Release() {
	if l == nil {
		return
	}
	l.once.Do(func() {
		l.pool.release(l.conn)
	})
}
