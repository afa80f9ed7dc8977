package mqtt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetcore/core/commands"
	"github.com/kilianp07/fleetcore/core/notify"
	"github.com/kilianp07/fleetcore/core/router"
	"github.com/kilianp07/fleetcore/core/trip"
)

// writeSelfSigned writes a self-signed certificate, its key and a CA bundle
// holding the same certificate.
func writeSelfSigned(t *testing.T) (cert, key, ca string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "fleetcore-test"},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)

	dir := t.TempDir()
	cert, key, ca = filepath.Join(dir, "cert.pem"), filepath.Join(dir, "key.pem"), filepath.Join(dir, "ca.pem")
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	files := map[string][]byte{
		cert: certPEM,
		key:  pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)}),
		ca:   certPEM,
	}
	for path, data := range files {
		require.NoError(t, os.WriteFile(path, data, 0o600))
	}
	return cert, key, ca
}

func TestLoadTLSConfig(t *testing.T) {
	cert, key, ca := writeSelfSigned(t)
	tlsCfg, err := Config{UseTLS: true, ClientCert: cert, ClientKey: key, CABundle: ca}.LoadTLSConfig()
	require.NoError(t, err)
	assert.NotEmpty(t, tlsCfg.Certificates)
	assert.NotNil(t, tlsCfg.RootCAs)

	_, err = Config{UseTLS: true}.LoadTLSConfig()
	assert.Error(t, err)
}

func TestNewClientOptionsAuth(t *testing.T) {
	opts, err := NewClientOptions(Config{Broker: "tcp://localhost:1883", ClientID: "id", Username: "u", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, "u", opts.Username)
	assert.Equal(t, "p", opts.Password)
}

func withMock(t *testing.T, mc *mockClient) {
	t.Helper()
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	t.Cleanup(func() { newMQTTClient = func(opts *paho.ClientOptions) pahoClient { return paho.NewClient(opts) } })
}

type inbox struct {
	mu   sync.Mutex
	msgs []router.Message
}

func (i *inbox) Submit(_ context.Context, m router.Message) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.msgs = append(i.msgs, m)
	return nil
}

func (i *inbox) Handles(k router.Kind) bool { return k != router.KindHealthCheck }

func serve(t *testing.T, cli *PahoClient, in Inbound) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, cli.Serve(ctx, in))
}

func TestServeSubscribesHandledKinds(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	cli, err := NewPahoClient(Config{Broker: "tcp://localhost:1883", QoS: map[string]byte{"inbound": 1}})
	require.NoError(t, err)
	assert.Empty(t, mc.subscribed, "nothing to route before Serve")

	serve(t, cli, &inbox{})
	topics := mc.topics()
	assert.Contains(t, topics, "fleet/carrier/+/reached")
	assert.Contains(t, topics, "fleet/client/book")
	assert.NotContains(t, topics, "fleet/carrier/+/health_check")
	for _, s := range mc.subscribed {
		assert.Equal(t, byte(1), s.qos)
	}

	n := len(mc.subscribed)
	mc.opts.OnConnect(mc)
	assert.Len(t, mc.subscribed, 2*n, "reconnect subscribes again")
}

func TestInboundMessagesReachRouter(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	cli, err := NewPahoClient(Config{Broker: "tcp://localhost:1883"})
	require.NoError(t, err)
	in := &inbox{}
	serve(t, cli, in)

	mc.deliver("fleet/carrier/+/reached", "fleet/carrier/c1/reached", `{"trip_id":4,"trip_leg_id":9,"destination_name":"B"}`)
	mc.deliver("fleet/client/book", "fleet/client/book", `{"route":["A","B"]}`)
	mc.deliver("fleet/client/book", "fleet/client/book", `{"route":`)
	mc.deliver("fleet/carrier/+/reached", "fleet/carrier//reached", `{}`)

	require.Len(t, in.msgs, 2)
	assert.Equal(t, router.KindReached, in.msgs[0].Kind)
	assert.Equal(t, "c1", in.msgs[0].Carrier)
	assert.Equal(t, "c1", in.msgs[0].Source)
	assert.Equal(t, int64(9), in.msgs[0].Payload.(trip.Reached).TripLegID)
	assert.Equal(t, router.KindBook, in.msgs[1].Kind)
	assert.Equal(t, "client", in.msgs[1].Source)
}

func TestSendPublishesCommand(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	cli, err := NewPahoClient(Config{Broker: "tcp://localhost:1883", QoS: map[string]byte{"command": 2}})
	require.NoError(t, err)

	cmd := commands.Command{ID: "req-1", Carrier: "c1", Kind: commands.KindMove, Payload: commands.Move{TripID: 1, Destination: "B"}}
	require.NoError(t, cli.Send(context.Background(), cmd))
	require.Len(t, mc.published, 1)
	assert.Equal(t, "fleet/carrier/c1/command", mc.published[0].topic)
	assert.Equal(t, byte(2), mc.published[0].qos)
	var got map[string]any
	require.NoError(t, json.Unmarshal(mc.published[0].payload, &got))
	assert.Equal(t, "req-1", got["command_id"])
	assert.Equal(t, "move", got["kind"])
}

func TestNotifyPublishesPerModule(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	cli, err := NewPahoClient(Config{Broker: "tcp://localhost:1883", TopicPrefix: "site1"})
	require.NoError(t, err)
	cli.Notify(context.Background(), notify.Notification{Module: "trip", Message: "trip 1 SUCCEEDED", Level: notify.LevelInfo})
	require.Len(t, mc.published, 1)
	assert.Equal(t, "site1/notification/trip", mc.published[0].topic)
}

func TestRequestPublishesOnClientTopic(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	cli, err := NewPahoClient(Config{Broker: "tcp://localhost:1883"})
	require.NoError(t, err)
	require.NoError(t, cli.Request(context.Background(), router.KindTriggerOptimalDispatch, router.TriggerOptimalDispatch{Fleet: "f1"}))
	require.Len(t, mc.published, 1)
	assert.Equal(t, "fleet/client/trigger_optimal_dispatch", mc.published[0].topic)
	assert.JSONEq(t, `{"fleet_name":"f1"}`, string(mc.published[0].payload))
}

func TestLWTConfigured(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	cli, err := NewPahoClient(Config{Broker: "tcp://localhost:1883", ClientID: "id", LWTTopic: "lwt", LWTPayload: "bye", LWTQoS: 1})
	require.NoError(t, err)
	assert.True(t, mc.opts.WillEnabled)
	assert.Equal(t, "lwt", mc.opts.WillTopic)
	assert.Equal(t, "bye", string(mc.opts.WillPayload))

	cli.Disconnect()
	assert.Empty(t, mc.published, "disconnect must not publish")
}

func TestSendRetriesFailedPublish(t *testing.T) {
	mc := &mockClient{publishErrs: []error{errors.New("net fail"), nil}}
	withMock(t, mc)
	cli, err := NewPahoClient(Config{Broker: "tcp://localhost:1883", ClientID: "id", MaxRetries: 1, BackoffMS: 1})
	require.NoError(t, err)
	require.NoError(t, cli.Send(context.Background(), commands.Command{ID: "x", Carrier: "c1", Kind: commands.KindTerminate}))
	assert.Len(t, mc.published, 2)
}
