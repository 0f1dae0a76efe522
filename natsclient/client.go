// Package natsclient wraps a NATS JetStream connection with the small
// surface the ingest engine actually drives: connect, subscribe to the
// command subject, publish status documents, and hand JetStream streams to
// natsbroker for partition-style consumption.
package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/umithardal/kafka-to-nexus/errors"
)

// ConnectionStatus is the state of the NATS connection.
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// ErrNotConnected is returned by operations attempted before Connect
// succeeds or after Close.
var ErrNotConnected = stderrors.New("not connected to NATS")

// Logger is the small logging surface the client needs; slog.Logger does
// not satisfy it directly, so defaultLogger adapts the standard logger.
type Logger interface {
	Printf(format string, v ...any)
	Errorf(format string, v ...any)
	Debugf(format string, v ...any)
}

type defaultLogger struct{}

func (l *defaultLogger) Printf(format string, v ...any) { log.Printf("[NATS] "+format, v...) }
func (l *defaultLogger) Errorf(format string, v ...any) { log.Printf("[NATS ERROR] "+format, v...) }
func (l *defaultLogger) Debugf(_ string, _ ...any)      {}

const (
	defaultReconnectWait = 2 * time.Second
	defaultPingInterval  = 30 * time.Second
	defaultTimeout       = 5 * time.Second
	defaultDrainTimeout  = 30 * time.Second
)

// Client manages one NATS connection and its JetStream context.
type Client struct {
	url    string
	status atomic.Value // ConnectionStatus
	logger Logger

	mu   sync.RWMutex
	conn *nats.Conn
	js   jetstream.JetStream
	subs []*nats.Subscription

	closeMu sync.Mutex
	closed  atomic.Bool
}

// NewClient creates a NATS client bound to url. It does not connect until
// Connect is called.
func NewClient(url string) (*Client, error) {
	c := &Client{
		url:    url,
		logger: &defaultLogger{},
	}
	c.status.Store(StatusDisconnected)
	c.logger.Debugf("Created NATS client for %s", url)
	return c, nil
}

// URL returns the NATS server URL.
func (m *Client) URL() string { return m.url }

// Status returns the current connection status.
func (m *Client) Status() ConnectionStatus {
	val := m.status.Load()
	if val == nil {
		return StatusDisconnected
	}
	return val.(ConnectionStatus)
}

func (m *Client) setStatus(status ConnectionStatus) { m.status.Store(status) }

// IsHealthy reports whether the connection is currently established.
func (m *Client) IsHealthy() bool { return m.Status() == StatusConnected }

// WaitForConnection blocks until the connection is healthy or ctx expires.
func (m *Client) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("connection timeout: %w", ctx.Err())
		case <-ticker.C:
			if m.IsHealthy() {
				return nil
			}
		}
	}
}

// Connect establishes the connection and JetStream context.
func (m *Client) Connect(ctx context.Context) error {
	m.setStatus(StatusConnecting)
	m.logger.Printf("Connecting to NATS at %s", m.url)

	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(defaultReconnectWait),
		nats.PingInterval(defaultPingInterval),
		nats.Timeout(defaultTimeout),
		nats.DrainTimeout(defaultDrainTimeout),
		nats.DisconnectErrHandler(m.handleDisconnect),
		nats.ReconnectHandler(m.handleReconnect),
		nats.ClosedHandler(m.handleClosed),
		nats.ErrorHandler(m.handleError),
	}

	connectDone := make(chan error, 1)
	go func() {
		conn, err := nats.Connect(m.url, opts...)
		if err != nil {
			connectDone <- err
			return
		}

		m.mu.Lock()
		m.conn = conn
		m.mu.Unlock()

		if js, err := jetstream.New(conn); err == nil {
			m.mu.Lock()
			m.js = js
			m.mu.Unlock()
		}

		connectDone <- nil
	}()

	select {
	case err := <-connectDone:
		if err != nil {
			m.setStatus(StatusDisconnected)
			return errors.WrapTransient(err, "Client", "Connect", "establish connection")
		}
	case <-ctx.Done():
		m.setStatus(StatusDisconnected)
		return errors.WrapTransient(ctx.Err(), "Client", "Connect", "connection cancelled")
	}

	m.setStatus(StatusConnected)
	m.logger.Printf("Successfully connected to NATS at %s", m.url)
	return nil
}

// Close drains subscriptions and closes the connection. Safe to call more
// than once.
func (m *Client) Close(ctx context.Context) error {
	m.closeMu.Lock()
	defer m.closeMu.Unlock()

	if m.closed.Load() {
		return nil
	}
	m.closed.Store(true)

	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error

	for _, sub := range m.subs {
		if err := sub.Unsubscribe(); err != nil {
			errs = append(errs, errors.Wrap(err, "Client", "Close", "unsubscribe"))
			m.logger.Errorf("Failed to unsubscribe: %v", err)
		}
	}
	m.subs = nil

	if m.conn != nil {
		drainTimeout := defaultDrainTimeout
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining > 0 && remaining < drainTimeout {
				drainTimeout = remaining
			}
		}

		drainDone := make(chan error, 1)
		go func() { drainDone <- m.conn.Drain() }()

		select {
		case err := <-drainDone:
			if err != nil {
				errs = append(errs, errors.Wrap(err, "Client", "Close", "drain connection"))
				m.logger.Errorf("Drain error: %v", err)
			}
		case <-time.After(drainTimeout):
			errs = append(errs, errors.WrapTransient(
				fmt.Errorf("drain timeout after %v", drainTimeout), "Client", "Close", "drain timeout"))
			m.logger.Errorf("Drain timeout after %v, force closing", drainTimeout)
		case <-ctx.Done():
			errs = append(errs, errors.Wrap(ctx.Err(), "Client", "Close", "context cancelled during drain"))
			m.logger.Errorf("Context cancelled during drain, force closing")
		}

		m.conn.Close()
		m.conn = nil
	}

	m.setStatus(StatusDisconnected)

	if len(errs) > 0 {
		errMsg := "cleanup errors:"
		for i, err := range errs {
			errMsg += fmt.Sprintf("\n  [%d] %v", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}
	return nil
}

// Subscribe subscribes to subject; each message is handed to handler on a
// context derived from ctx with a 30-second processing timeout.
func (m *Client) Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil || !m.conn.IsConnected() {
		return ErrNotConnected
	}

	sub, err := m.conn.Subscribe(subject, func(msg *nats.Msg) {
		msgCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		handler(msgCtx, msg.Data)
	})
	if err != nil {
		return err
	}

	m.subs = append(m.subs, sub)
	return nil
}

// Publish publishes data to subject.
func (m *Client) Publish(_ context.Context, subject string, data []byte) error {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return ErrNotConnected
	}
	return conn.Publish(subject, data)
}

// JetStream returns the JetStream context, once connected.
func (m *Client) JetStream() (jetstream.JetStream, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.js == nil {
		return nil, errors.WrapTransient(
			fmt.Errorf("JetStream not initialized"), "Client", "JetStream", "get JetStream context")
	}
	return m.js, nil
}

// GetStream gets an existing JetStream stream by name, the sole primitive
// natsbroker needs to resolve partitions, offsets, and consumers.
func (m *Client) GetStream(ctx context.Context, name string) (jetstream.Stream, error) {
	js, err := m.JetStream()
	if err != nil {
		return nil, err
	}

	stream, err := js.Stream(ctx, name)
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "GetStream", "get stream")
	}
	return stream, nil
}

func (m *Client) handleDisconnect(_ *nats.Conn, err error) {
	m.setStatus(StatusReconnecting)
	m.logger.Errorf("NATS disconnected: %v", err)
}

func (m *Client) handleReconnect(_ *nats.Conn) {
	m.setStatus(StatusConnected)
	m.logger.Printf("NATS reconnected")
}

func (m *Client) handleClosed(_ *nats.Conn) {
	m.setStatus(StatusDisconnected)
}

func (m *Client) handleError(_ *nats.Conn, _ *nats.Subscription, err error) {
	m.logger.Errorf("NATS error: %v", err)
}
