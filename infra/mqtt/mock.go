package mqtt

import (
	"context"
	"sync"

	coremqtt "github.com/kilianp07/teslamqtt/core/mqtt"
)

// MockClient is an in-memory Client used in tests. It records every
// subscription and publish and lets tests inject messages and reconnects.
type MockClient struct {
	mu             sync.Mutex
	published      []coremqtt.Message
	subscribed     []string
	disconnects    []coremqtt.DisconnectOptions
	connected      bool
	onConnect      coremqtt.OnConnect
	cbCtx          context.Context
	msgs           chan coremqtt.Message
	session        bool
	PublishErr     error
	ConnectErr     error
	SessionPresent bool
}

var _ coremqtt.Client = (*MockClient)(nil)

// NewMockClient creates a MockClient.
func NewMockClient() *MockClient {
	return &MockClient{msgs: make(chan coremqtt.Message, 16)}
}

// Connect records the callback and fires it once, like a first connection.
// The session is reported present when SessionPresent is set or a previous
// connection left its session on the broker.
func (m *MockClient) Connect(ctx context.Context, onConnect coremqtt.OnConnect) error {
	m.mu.Lock()
	if m.ConnectErr != nil {
		m.mu.Unlock()
		return m.ConnectErr
	}
	m.connected = true
	m.onConnect = onConnect
	m.cbCtx = ctx
	session := m.SessionPresent || m.session
	m.session = true
	m.mu.Unlock()

	m.Reconnect(session)
	return nil
}

// Reconnect simulates a new connection with the given session flag.
func (m *MockClient) Reconnect(sessionPresent bool) {
	m.mu.Lock()
	cb, ctx := m.onConnect, m.cbCtx
	m.mu.Unlock()
	if cb == nil || ctx.Err() != nil {
		return
	}
	go cb(ctx, coremqtt.ConnectInfo{SessionPresent: sessionPresent})
}

func (m *MockClient) Subscribe(_ context.Context, filter string, _ byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return coremqtt.ErrNotConnected
	}
	m.subscribed = append(m.subscribed, filter)
	return nil
}

func (m *MockClient) Publish(_ context.Context, msg coremqtt.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return coremqtt.ErrNotConnected
	}
	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.published = append(m.published, msg)
	return nil
}

func (m *MockClient) Messages() <-chan coremqtt.Message { return m.msgs }

// Deliver injects a received message.
func (m *MockClient) Deliver(msg coremqtt.Message) { m.msgs <- msg }

func (m *MockClient) Disconnect(_ context.Context, opts coremqtt.DisconnectOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if opts.Status != nil && m.connected {
		m.published = append(m.published, *opts.Status)
	}
	m.disconnects = append(m.disconnects, opts)
	if opts.ExpireSession {
		m.session = false
		m.SessionPresent = false
	}
	m.connected = false
	m.onConnect = nil
	return nil
}

// SetPublishErr changes the error returned by Publish.
func (m *MockClient) SetPublishErr(err error) {
	m.mu.Lock()
	m.PublishErr = err
	m.mu.Unlock()
}

// Published returns the messages published to topic, or all when topic is
// empty.
func (m *MockClient) Published(topic string) []coremqtt.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []coremqtt.Message
	for _, msg := range m.published {
		if topic == "" || msg.Topic == topic {
			out = append(out, msg)
		}
	}
	return out
}

// Subscribed returns the filters subscribed so far.
func (m *MockClient) Subscribed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.subscribed...)
}

// Disconnects returns the options of every Disconnect call.
func (m *MockClient) Disconnects() []coremqtt.DisconnectOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]coremqtt.DisconnectOptions(nil), m.disconnects...)
}
