package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-agent/internal/device"
	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/config"
)

// eventBufferSize is the capacity of the transport event channel.
const eventBufferSize = 64

// Client is the device's single MQTT session.
//
// It owns the transport handle and the connection state. The state is
// changed only by the Dispatcher reacting to transport events, and by Stop.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Publish, Subscribe and Unsubscribe never wait for the broker.
type Client struct {
	identity device.Identity
	topics   TopicSet
	opts     TransportOptions
	logger   Logger
	now      func() time.Time

	mu        sync.RWMutex
	transport Transport // nil once stopped
	started   bool
	connected bool

	events chan Event
	done   chan struct{}
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Option customises a Client.
type Option func(*clientOptions)

type clientOptions struct {
	factory TransportFactory
	logger  Logger
	now     func() time.Time
}

// WithTransportFactory replaces the paho transport. Used by tests.
func WithTransportFactory(f TransportFactory) Option {
	return func(o *clientOptions) { o.factory = f }
}

// WithLogger sets the logger used by the Client and its Dispatcher.
func WithLogger(l Logger) Option {
	return func(o *clientOptions) { o.logger = l }
}

// WithClock overrides the timestamp source for outbound envelopes.
func WithClock(now func() time.Time) Option {
	return func(o *clientOptions) { o.now = now }
}

// New configures a session for the device.
//
// It derives the device topics, builds the connection parameters (client ID,
// protocol version, credentials, TLS, offline last will) and constructs the
// transport. No network activity happens until Start.
//
// Parameters:
//   - cfg: MQTT configuration from agent.yaml
//   - identity: The device this session represents
//
// Returns:
//   - *Client: Configured, disconnected client
//   - error: ErrConfig wrapping the cause
func New(cfg config.MQTTConfig, identity device.Identity, opts ...Option) (*Client, error) {
	o := clientOptions{
		factory: DefaultTransportFactory,
		logger:  noopLogger{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if err := identity.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	topics, err := TopicsFor(identity.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	transportOpts, err := buildTransportOptions(cfg, identity, topics)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	c := &Client{
		identity: identity,
		topics:   topics,
		opts:     transportOpts,
		logger:   o.logger,
		now:      o.now,
		events:   make(chan Event, eventBufferSize),
		done:     make(chan struct{}),
	}

	transport, err := o.factory(transportOpts, c.emit)
	if err != nil {
		return nil, fmt.Errorf("%w: creating transport: %w", ErrConfig, err)
	}
	c.transport = transport

	return c, nil
}

// Start begins connecting to the broker.
//
// It returns as soon as the transport has accepted the request; the
// Connected event arrives later. A stopped Client cannot be restarted.
func (c *Client) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transport == nil {
		return fmt.Errorf("%w: client has been stopped", ErrStart)
	}
	if c.started {
		return fmt.Errorf("%w: already started", ErrStart)
	}

	if err := c.transport.Connect(); err != nil {
		return fmt.Errorf("%w: %w", ErrStart, err)
	}
	c.started = true

	c.logger.Info("mqtt session starting",
		"broker", c.opts.BrokerURL.Redacted(),
		"client_id", c.opts.ClientID,
		"protocol_version", c.opts.ProtocolVersion,
	)
	return nil
}

// Stop disconnects from the broker and releases the transport.
//
// If the session is connected a graceful offline status is published first
// (retained, so it replaces any earlier status). Stop is idempotent; after
// it returns every operation fails fast.
//
// Returns:
//   - error: ErrStop if the transport reported a failure while disconnecting
func (c *Client) Stop() error {
	c.mu.Lock()
	transport := c.transport
	if transport == nil {
		c.mu.Unlock()
		return nil
	}

	if c.connected {
		if _, err := c.publishStatus(transport, StatusOffline, true); err != nil {
			c.logger.Warn("publishing offline status", "error", err)
		}
	}

	c.transport = nil
	c.connected = false
	c.started = false
	close(c.done)
	c.mu.Unlock()

	if err := transport.Disconnect(); err != nil {
		return fmt.Errorf("%w: %w", ErrStop, err)
	}

	c.logger.Info("mqtt session stopped")
	return nil
}

// HealthCheck verifies the MQTT session is connected.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected returns the connection state as last reported by the transport.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.transport != nil && c.connected
}

// Identity returns the device identity the session was configured with.
func (c *Client) Identity() device.Identity {
	return c.identity
}

// Topics returns the device topic set.
func (c *Client) Topics() TopicSet {
	return c.topics
}

// Events returns the transport event stream consumed by the Dispatcher.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Done is closed when the client is stopped.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// emit delivers a transport event, or drops it once the client is stopped.
func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// markConnected records a Connected event. It returns false if the client
// has been stopped, in which case the event must be ignored.
func (c *Client) markConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transport == nil {
		return false
	}
	c.connected = true
	return true
}

// markDisconnected records a Disconnected event.
func (c *Client) markDisconnected() {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

// noopLogger discards log output when no logger is configured.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
