package mqtt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremqtt "github.com/kilianp07/teslamqtt/core/mqtt"
)

// helper to generate self-signed cert
func generateCert(t *testing.T) (certFile, keyFile, caFile string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := x509.Certificate{SerialNumber: big.NewInt(1), Subject: pkix.Name{CommonName: "test"}, NotBefore: time.Now(), NotAfter: time.Now().Add(time.Hour)}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

	dir := t.TempDir()
	certFile = dir + "/cert.pem"
	keyFile = dir + "/key.pem"
	caFile = dir + "/ca.pem"
	require.NoError(t, os.WriteFile(certFile, certPEM, 0o600))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0o600))
	require.NoError(t, os.WriteFile(caFile, certPEM, 0o600))
	return
}

type fakeManager struct {
	mu           sync.Mutex
	published    []*paho.Publish
	subscribed   []paho.SubscribeOptions
	disconnected bool
	builder      func() *paho.Disconnect
	disconnect   *paho.Disconnect
}

func (f *fakeManager) Publish(_ context.Context, p *paho.Publish) (*paho.PublishResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, p)
	return &paho.PublishResponse{}, nil
}

func (f *fakeManager) Subscribe(_ context.Context, s *paho.Subscribe) (*paho.Suback, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, s.Subscriptions...)
	return &paho.Suback{}, nil
}

func (f *fakeManager) Disconnect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = true
	if f.builder != nil {
		f.disconnect = f.builder()
	}
	return nil
}

func withFakeManager(t *testing.T) (*fakeManager, *autopaho.ClientConfig) {
	t.Helper()
	fm := &fakeManager{}
	var captured autopaho.ClientConfig
	orig := newConnection
	newConnection = func(_ context.Context, cfg autopaho.ClientConfig) (connectionManager, error) {
		captured = cfg
		fm.builder = cfg.DisconnectPacketBuilder
		return fm, nil
	}
	t.Cleanup(func() { newConnection = orig })
	return fm, &captured
}

func testConfig() Config {
	return Config{
		Broker:      "mqtt://localhost:1883",
		ClientID:    "bridge",
		Username:    "u",
		Password:    "p",
		WillTopic:   "tesla-api/connected",
		WillPayload: "false",
		WillRetain:  true,
	}
}

func TestLoadTLSConfig(t *testing.T) {
	cert, key, ca := generateCert(t)
	cfg := Config{UseTLS: true, ClientCert: cert, ClientKey: key, CABundle: ca}
	tlsCfg, err := cfg.LoadTLSConfig()
	require.NoError(t, err)
	assert.Len(t, tlsCfg.Certificates, 1)
	assert.NotNil(t, tlsCfg.RootCAs)
}

func TestLoadTLSConfigMissingFile(t *testing.T) {
	_, err := Config{CABundle: "/does/not/exist.pem"}.LoadTLSConfig()
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	assert.Error(t, Config{}.Validate())
	assert.Error(t, Config{Broker: "localhost"}.Validate())
	assert.NoError(t, Config{Broker: "mqtt://localhost:1883"}.Validate())
}

func TestClientConfigSession(t *testing.T) {
	cli, err := NewPahoClient(testConfig())
	require.NoError(t, err)
	cc, err := cli.ClientConfig()
	require.NoError(t, err)

	assert.False(t, cc.CleanStartOnInitialConnection)
	assert.Equal(t, uint32(24*60*60), cc.SessionExpiryInterval)
	assert.Equal(t, "u", cc.ConnectUsername)
	assert.Equal(t, []byte("p"), cc.ConnectPassword)
	assert.Equal(t, "bridge", cc.ClientConfig.ClientID)
	require.NotNil(t, cc.WillMessage)
	assert.Equal(t, "tesla-api/connected", cc.WillMessage.Topic)
	assert.Equal(t, []byte("false"), cc.WillMessage.Payload)
	assert.True(t, cc.WillMessage.Retain)
	assert.Nil(t, cc.TlsCfg)
}

func TestConnectCallbackAndSubscribe(t *testing.T) {
	fm, cc := withFakeManager(t)
	cli, err := NewPahoClient(testConfig())
	require.NoError(t, err)

	infos := make(chan coremqtt.ConnectInfo, 2)
	require.NoError(t, cli.Connect(context.Background(), func(ctx context.Context, info coremqtt.ConnectInfo) {
		infos <- info
	}))
	assert.Error(t, cli.Connect(context.Background(), nil))

	cc.OnConnectionUp(nil, &paho.Connack{SessionPresent: true})
	select {
	case info := <-infos:
		assert.True(t, info.SessionPresent)
	case <-time.After(time.Second):
		t.Fatal("connect callback not invoked")
	}

	require.NoError(t, cli.Subscribe(context.Background(), "tesla-api/+/command", 1))
	require.Len(t, fm.subscribed, 1)
	assert.Equal(t, "tesla-api/+/command", fm.subscribed[0].Topic)
	assert.Equal(t, byte(1), fm.subscribed[0].QoS)
}

func TestConnectCallbackStopsWithContext(t *testing.T) {
	_, cc := withFakeManager(t)
	cli, err := NewPahoClient(testConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	called := make(chan struct{}, 1)
	require.NoError(t, cli.Connect(ctx, func(context.Context, coremqtt.ConnectInfo) { called <- struct{}{} }))
	cancel()
	cc.OnConnectionUp(nil, &paho.Connack{})
	select {
	case <-called:
		t.Fatal("callback invoked after cancellation")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishMapsProperties(t *testing.T) {
	fm, _ := withFakeManager(t)
	cli, err := NewPahoClient(testConfig())
	require.NoError(t, err)
	assert.ErrorIs(t, cli.Publish(context.Background(), coremqtt.Message{Topic: "x"}), coremqtt.ErrNotConnected)
	require.NoError(t, cli.Connect(context.Background(), nil))

	require.NoError(t, cli.Publish(context.Background(), coremqtt.Message{
		Topic:           "reply/1",
		Payload:         []byte(`{"success":true}`),
		QoS:             1,
		ContentType:     "application/json",
		CorrelationData: []byte{1, 2, 3},
	}))
	require.NoError(t, cli.Publish(context.Background(), coremqtt.Message{Topic: "plain", Retain: true}))

	require.Len(t, fm.published, 2)
	p := fm.published[0]
	assert.Equal(t, "reply/1", p.Topic)
	assert.Equal(t, byte(1), p.QoS)
	require.NotNil(t, p.Properties)
	assert.Equal(t, "application/json", p.Properties.ContentType)
	assert.Equal(t, []byte{1, 2, 3}, p.Properties.CorrelationData)
	assert.Nil(t, fm.published[1].Properties)
	assert.True(t, fm.published[1].Retain)
}

func TestRouterDeliversMessages(t *testing.T) {
	_, cc := withFakeManager(t)
	cli, err := NewPahoClient(testConfig())
	require.NoError(t, err)
	require.NoError(t, cli.Connect(context.Background(), nil))

	handled, err := cc.ClientConfig.OnPublishReceived[0](paho.PublishReceived{Packet: &paho.Publish{
		Topic:   "tesla-api/42/command",
		Payload: []byte(`{"command":"wake-up"}`),
		Properties: &paho.PublishProperties{
			ResponseTopic:   "reply/42",
			CorrelationData: []byte("abc"),
		},
	}})
	require.NoError(t, err)
	assert.True(t, handled)

	msg := <-cli.Messages()
	assert.Equal(t, "tesla-api/42/command", msg.Topic)
	assert.Equal(t, "reply/42", msg.ResponseTopic)
	assert.Equal(t, []byte("abc"), msg.CorrelationData)
}

func TestDisconnectPublishesStatus(t *testing.T) {
	fm, cc := withFakeManager(t)
	cli, err := NewPahoClient(testConfig())
	require.NoError(t, err)
	require.NoError(t, cli.Connect(context.Background(), nil))

	status := coremqtt.Message{Topic: "tesla-api/connected", Payload: []byte("false"), Retain: true}
	require.NoError(t, cli.Disconnect(context.Background(), coremqtt.DisconnectOptions{Status: &status}))
	require.Len(t, fm.published, 1)
	assert.Equal(t, "tesla-api/connected", fm.published[0].Topic)
	assert.True(t, fm.disconnected)

	// a late message does not block once disconnected
	done := make(chan struct{})
	go func() {
		for i := 0; i < cap(cli.msgs)+1; i++ {
			_, _ = cc.ClientConfig.OnPublishReceived[0](paho.PublishReceived{Packet: &paho.Publish{Topic: "t"}})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("router blocked after disconnect")
	}
	assert.ErrorIs(t, cli.Disconnect(context.Background(), coremqtt.DisconnectOptions{}), coremqtt.ErrNotConnected)
}

func TestDisconnectExpiresSession(t *testing.T) {
	fm, _ := withFakeManager(t)
	cli, err := NewPahoClient(testConfig())
	require.NoError(t, err)
	require.NoError(t, cli.Connect(context.Background(), nil))

	require.NoError(t, cli.Disconnect(context.Background(), coremqtt.DisconnectOptions{ExpireSession: true}))
	require.NotNil(t, fm.disconnect)
	assert.Equal(t, byte(0), fm.disconnect.ReasonCode)
	require.NotNil(t, fm.disconnect.Properties)
	require.NotNil(t, fm.disconnect.Properties.SessionExpiryInterval)
	assert.Equal(t, uint32(0), *fm.disconnect.Properties.SessionExpiryInterval)

	// reconnecting resets the options; a plain disconnect keeps the session
	require.NoError(t, cli.Connect(context.Background(), nil))
	require.NoError(t, cli.Disconnect(context.Background(), coremqtt.DisconnectOptions{}))
	require.NotNil(t, fm.disconnect)
	assert.Nil(t, fm.disconnect.Properties)
}

func TestReconnectDiscardsStaleMessages(t *testing.T) {
	_, cc := withFakeManager(t)
	cli, err := NewPahoClient(testConfig())
	require.NoError(t, err)
	require.NoError(t, cli.Connect(context.Background(), nil))

	_, _ = cc.ClientConfig.OnPublishReceived[0](paho.PublishReceived{Packet: &paho.Publish{Topic: "before"}})
	require.NoError(t, cli.Disconnect(context.Background(), coremqtt.DisconnectOptions{}))
	_, _ = cc.ClientConfig.OnPublishReceived[0](paho.PublishReceived{Packet: &paho.Publish{Topic: "after"}})
	assert.Len(t, cli.msgs, 1)

	require.NoError(t, cli.Connect(context.Background(), nil))
	assert.Empty(t, cli.msgs)
	_, _ = cc.ClientConfig.OnPublishReceived[0](paho.PublishReceived{Packet: &paho.Publish{Topic: "fresh"}})
	msg := <-cli.Messages()
	assert.Equal(t, "fresh", msg.Topic)
}

func TestMockClientKeepsSessionUntilExpired(t *testing.T) {
	m := NewMockClient()
	infos := make(chan coremqtt.ConnectInfo, 3)
	onConnect := func(_ context.Context, info coremqtt.ConnectInfo) { infos <- info }

	require.NoError(t, m.Connect(context.Background(), onConnect))
	assert.False(t, (<-infos).SessionPresent)
	require.NoError(t, m.Disconnect(context.Background(), coremqtt.DisconnectOptions{}))

	require.NoError(t, m.Connect(context.Background(), onConnect))
	assert.True(t, (<-infos).SessionPresent)
	require.NoError(t, m.Disconnect(context.Background(), coremqtt.DisconnectOptions{ExpireSession: true}))

	require.NoError(t, m.Connect(context.Background(), onConnect))
	assert.False(t, (<-infos).SessionPresent)
}
