package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/packets"
	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"

	coremqtt "github.com/kilianp07/teslamqtt/core/mqtt"
	"github.com/kilianp07/teslamqtt/infra/logger"
)

// Config defines the connection parameters for the MQTT v5 client.
type Config struct {
	Broker             string        `json:"broker"`
	ClientID           string        `json:"client_id"`
	Username           string        `json:"username"`
	Password           string        `json:"password"`
	UseTLS             bool          `json:"use_tls"`
	ClientCert         string        `json:"client_cert"`
	ClientKey          string        `json:"client_key"`
	CABundle           string        `json:"ca_bundle"`
	InsecureSkipVerify bool          `json:"insecure_skip_verify"`
	KeepAlive          uint16        `json:"keep_alive"`
	ConnectTimeout     time.Duration `json:"connect_timeout"`
	ReconnectDelay     time.Duration `json:"reconnect_delay"`
	CleanStart         bool          `json:"clean_start"`
	SessionExpiry      time.Duration `json:"session_expiry"`
	BufferSize         int           `json:"buffer_size"`
	WillTopic          string        `json:"will_topic"`
	WillPayload        string        `json:"will_payload"`
	WillQoS            byte          `json:"will_qos"`
	WillRetain         bool          `json:"will_retain"`
	TLSConfig          *tls.Config   `json:"-"`
}

// SetDefaults applies the defaults of a persistent bridge session.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "tesla-mqtt-" + uuid.NewString()[:8]
	}
	if c.KeepAlive == 0 {
		c.KeepAlive = 60
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 3 * time.Second
	}
	if c.SessionExpiry <= 0 {
		c.SessionExpiry = 24 * time.Hour
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 64
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("broker is required")
	}
	u, err := url.Parse(c.Broker)
	if err != nil {
		return fmt.Errorf("invalid broker url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid broker url %q", c.Broker)
	}
	return nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
// Without files it returns a default client configuration.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	cfg := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: c.InsecureSkipVerify} // #nosec G402 -- opt-in
	if c.ClientCert != "" || c.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("load cert: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	if c.CABundle != "" {
		caBytes, err := os.ReadFile(c.CABundle)
		if err != nil {
			return nil, fmt.Errorf("read ca: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caBytes) {
			return nil, fmt.Errorf("no certificates in %s", c.CABundle)
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

type connectionManager interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
	Subscribe(ctx context.Context, s *paho.Subscribe) (*paho.Suback, error)
	Disconnect(ctx context.Context) error
}

var newConnection = func(ctx context.Context, cfg autopaho.ClientConfig) (connectionManager, error) {
	cm, err := autopaho.NewConnection(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return cm, nil
}

// PahoClient implements core/mqtt.Client on the autopaho connection manager.
type PahoClient struct {
	cfg    Config
	logger logger.Logger
	msgs   chan coremqtt.Message
	done   chan struct{}
	once   sync.Once

	mu        sync.RWMutex
	cm        connectionManager
	cancel    context.CancelFunc
	cbCtx     context.Context
	onConnect coremqtt.OnConnect
	closing   coremqtt.DisconnectOptions
}

var _ coremqtt.Client = (*PahoClient)(nil)

// NewPahoClient validates cfg. The connection is opened by Connect.
func NewPahoClient(cfg Config) (*PahoClient, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mqtt config: %w", err)
	}
	return &PahoClient{
		cfg:    cfg,
		logger: logger.New("mqtt_client"),
		msgs:   make(chan coremqtt.Message, cfg.BufferSize),
		done:   make(chan struct{}),
	}, nil
}

// ClientConfig builds the autopaho configuration from Config.
func (p *PahoClient) ClientConfig() (autopaho.ClientConfig, error) {
	u, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return autopaho.ClientConfig{}, err
	}
	cc := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{u},
		KeepAlive:                     p.cfg.KeepAlive,
		CleanStartOnInitialConnection: p.cfg.CleanStart,
		SessionExpiryInterval:         uint32(p.cfg.SessionExpiry / time.Second),
		ReconnectBackoff:              autopaho.NewConstantBackoff(p.cfg.ReconnectDelay),
		ConnectTimeout:                p.cfg.ConnectTimeout,
		ConnectUsername:               p.cfg.Username,
		ConnectPassword:               []byte(p.cfg.Password),
		WillMessage:                   p.willMessage(),
		OnConnectionUp:                p.onConnectionUp,
		OnConnectError:                p.onConnectError,
		DisconnectPacketBuilder:       p.disconnectPacket,
		ClientConfig: paho.ClientConfig{
			ClientID:           p.cfg.ClientID,
			OnClientError:      p.onClientError,
			OnServerDisconnect: p.onServerDisconnect,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				p.router,
			},
		},
	}
	if p.cfg.UseTLS || u.Scheme == "ssl" || u.Scheme == "tls" || u.Scheme == "mqtts" {
		tlsCfg, err := p.cfg.LoadTLSConfig()
		if err != nil {
			return autopaho.ClientConfig{}, err
		}
		cc.TlsCfg = tlsCfg
	}
	return cc, nil
}

func (p *PahoClient) willMessage() *paho.WillMessage {
	if p.cfg.WillTopic == "" {
		return nil
	}
	return &paho.WillMessage{
		Topic:   p.cfg.WillTopic,
		Payload: []byte(p.cfg.WillPayload),
		QoS:     p.cfg.WillQoS,
		Retain:  p.cfg.WillRetain,
	}
}

// disconnectPacket builds the DISCONNECT sent by Disconnect. An expiry of
// zero ends the session opened with SessionExpiry.
func (p *PahoClient) disconnectPacket() *paho.Disconnect {
	p.mu.RLock()
	opts := p.closing
	p.mu.RUnlock()
	d := &paho.Disconnect{ReasonCode: packets.DisconnectNormalDisconnection}
	if opts.ExpireSession {
		expiry := uint32(0)
		d.Properties = &paho.DisconnectProperties{SessionExpiryInterval: &expiry}
	}
	return d
}

// Connect starts the connection manager, which keeps reconnecting until
// Disconnect. onConnect runs after each connection while ctx is live.
func (p *PahoClient) Connect(ctx context.Context, onConnect coremqtt.OnConnect) error {
	cc, err := p.ClientConfig()
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cm != nil {
		return fmt.Errorf("mqtt client already connected")
	}
	p.cbCtx = ctx
	p.onConnect = onConnect
	select {
	case <-p.done:
		p.done = make(chan struct{})
		p.once = sync.Once{}
	default:
	}
	p.closing = coremqtt.DisconnectOptions{}
	p.drain()

	// the manager outlives ctx; Disconnect stops it.
	mctx, cancel := context.WithCancel(context.Background())
	cm, err := newConnection(mctx, cc)
	if err != nil {
		cancel()
		return fmt.Errorf("connect %s: %w", p.cfg.Broker, err)
	}
	p.cm = cm
	p.cancel = cancel
	p.logger.Infof("connecting to %s as %s", p.cfg.Broker, p.cfg.ClientID)
	return nil
}

func (p *PahoClient) manager() (connectionManager, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.cm == nil {
		return nil, coremqtt.ErrNotConnected
	}
	return p.cm, nil
}

// Subscribe sends a SUBSCRIBE for filter.
func (p *PahoClient) Subscribe(ctx context.Context, filter string, qos byte) error {
	cm, err := p.manager()
	if err != nil {
		return err
	}
	if _, err := cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: filter, QoS: qos}},
	}); err != nil {
		return fmt.Errorf("subscribe %s: %w", filter, err)
	}
	p.logger.Infof("subscribed to %s", filter)
	return nil
}

// Publish sends msg, waiting for a connection if needed.
func (p *PahoClient) Publish(ctx context.Context, msg coremqtt.Message) error {
	cm, err := p.manager()
	if err != nil {
		return err
	}
	if _, err := cm.Publish(ctx, toPublish(msg)); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Topic, err)
	}
	return nil
}

// Messages returns the channel of received messages.
func (p *PahoClient) Messages() <-chan coremqtt.Message { return p.msgs }

// Disconnect publishes the optional status message and closes the
// connection. Unless opts.ExpireSession is set the broker keeps the session
// until its expiry interval.
func (p *PahoClient) Disconnect(ctx context.Context, opts coremqtt.DisconnectOptions) error {
	cm, err := p.manager()
	if err != nil {
		return err
	}
	if opts.Status != nil {
		if err := p.Publish(ctx, *opts.Status); err != nil {
			p.logger.Warnf("publish status before disconnect: %v", err)
		}
	}

	p.mu.Lock()
	p.onConnect = nil
	p.closing = opts
	cancel := p.cancel
	p.cm = nil
	p.cancel = nil
	p.once.Do(func() { close(p.done) })
	p.mu.Unlock()

	err = cm.Disconnect(ctx)
	cancel()
	if err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	p.logger.Infof("disconnected")
	return nil
}

func (p *PahoClient) onConnectionUp(_ *autopaho.ConnectionManager, ack *paho.Connack) {
	p.mu.RLock()
	cb, ctx := p.onConnect, p.cbCtx
	p.mu.RUnlock()

	info := coremqtt.ConnectInfo{SessionPresent: ack != nil && ack.SessionPresent}
	p.logger.Infof("MQTT connected (session present: %t)", info.SessionPresent)
	if cb == nil || ctx == nil || ctx.Err() != nil {
		return
	}
	// the callback may publish, which must not block the connection manager.
	go cb(ctx, info)
}

func (p *PahoClient) onConnectError(err error) {
	p.logger.Errorf("connection error: %v", err)
}

func (p *PahoClient) onClientError(err error) {
	p.logger.Errorf("client error: %v", err)
}

func (p *PahoClient) onServerDisconnect(d *paho.Disconnect) {
	reason := ""
	if d.Properties != nil {
		reason = d.Properties.ReasonString
	}
	p.logger.Warnf("server requested disconnect (code %d): %s", d.ReasonCode, reason)
}

func (p *PahoClient) router(pr paho.PublishReceived) (bool, error) {
	msg := fromPublish(pr.Packet)
	p.mu.RLock()
	done := p.done
	p.mu.RUnlock()
	select {
	case <-done:
		p.logger.Debugf("dropping message on %s after disconnect", msg.Topic)
		return true, nil
	default:
	}
	select {
	case p.msgs <- msg:
	case <-done:
		p.logger.Debugf("dropping message on %s after disconnect", msg.Topic)
	}
	return true, nil
}

// drain discards messages left over from a previous connection.
func (p *PahoClient) drain() {
	for {
		select {
		case msg := <-p.msgs:
			p.logger.Debugf("discarding stale message on %s", msg.Topic)
		default:
			return
		}
	}
}

func toPublish(msg coremqtt.Message) *paho.Publish {
	pub := &paho.Publish{
		Topic:   msg.Topic,
		QoS:     msg.QoS,
		Retain:  msg.Retain,
		Payload: msg.Payload,
	}
	if msg.ContentType != "" || msg.ResponseTopic != "" || msg.CorrelationData != nil {
		pub.Properties = &paho.PublishProperties{
			ContentType:     msg.ContentType,
			ResponseTopic:   msg.ResponseTopic,
			CorrelationData: msg.CorrelationData,
		}
	}
	return pub
}

func fromPublish(pub *paho.Publish) coremqtt.Message {
	msg := coremqtt.Message{
		Topic:   pub.Topic,
		Payload: pub.Payload,
		QoS:     pub.QoS,
		Retain:  pub.Retain,
	}
	if pub.Properties != nil {
		msg.ContentType = pub.Properties.ContentType
		msg.ResponseTopic = pub.Properties.ResponseTopic
		msg.CorrelationData = pub.Properties.CorrelationData
	}
	return msg
}
