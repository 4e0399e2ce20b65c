package mqtt

import "context"

// Message is an MQTT v5 application message with the request/response
// properties the bridge relies on.
type Message struct {
	Topic           string
	Payload         []byte
	QoS             byte
	Retain          bool
	ContentType     string
	ResponseTopic   string
	CorrelationData []byte
}

// ConnectInfo describes an established connection.
type ConnectInfo struct {
	// SessionPresent is true when the broker resumed a previous session,
	// including its subscriptions.
	SessionPresent bool
}

// OnConnect runs after every successful connection, reconnections included.
type OnConnect func(ctx context.Context, info ConnectInfo)

// DisconnectOptions controls a graceful disconnect.
type DisconnectOptions struct {
	// Status is published before the connection closes when set.
	Status *Message
	// ExpireSession ends the broker session with the connection, dropping
	// its subscriptions and queued messages.
	ExpireSession bool
}

// Client is a pub/sub connection to an MQTT v5 broker.
type Client interface {
	// Connect starts connecting in the background. onConnect is invoked on
	// every connection until ctx is done.
	Connect(ctx context.Context, onConnect OnConnect) error
	Subscribe(ctx context.Context, filter string, qos byte) error
	Publish(ctx context.Context, msg Message) error
	// Messages delivers received messages. The channel is never closed.
	Messages() <-chan Message
	Disconnect(ctx context.Context, opts DisconnectOptions) error
}
