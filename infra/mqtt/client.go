// Package mqtt connects the control plane to the message broker. Carrier and
// client messages are decoded into router messages; commands and
// notifications are published back.
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/fleetcore/core/commands"
	"github.com/kilianp07/fleetcore/core/monitoring"
	"github.com/kilianp07/fleetcore/core/notify"
	"github.com/kilianp07/fleetcore/core/router"
	"github.com/kilianp07/fleetcore/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker      string          `json:"broker"`
	ClientID    string          `json:"client_id"`
	Username    string          `json:"username"`
	Password    string          `json:"password"`
	TopicPrefix string          `json:"topic_prefix"`
	UseTLS      bool            `json:"use_tls"`
	ClientCert  string          `json:"client_cert"`
	ClientKey   string          `json:"client_key"`
	CABundle    string          `json:"ca_bundle"`
	AuthMethod  string          `json:"auth_method"`
	QoS         map[string]byte `json:"qos"` // keys: inbound, command, notification
	LWTTopic    string          `json:"lwt_topic"`
	LWTPayload  string          `json:"lwt_payload"`
	LWTQoS      byte            `json:"lwt_qos"`
	LWTRetain   bool            `json:"lwt_retain"`
	MaxRetries  int             `json:"max_retries"`
	BackoffMS   int             `json:"backoff_ms"`
	TLSConfig   *tls.Config     `json:"-"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.TopicPrefix == "" {
		c.TopicPrefix = DefaultPrefix
	}
	if c.ClientID == "" {
		c.ClientID = "fleetcore"
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = 100
	}
}

// Inbound receives decoded messages.
type Inbound interface {
	Submit(ctx context.Context, m router.Message) error
	Handles(k router.Kind) bool
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// PahoClient is the broker adapter. It sends carrier commands, publishes
// notifications and feeds inbound messages to the router.
type PahoClient struct {
	cli        pahoClient
	prefix     string
	qos        map[string]byte
	logger     logger.Logger
	maxRetries int
	backoff    time.Duration

	mu      sync.Mutex
	ctx     context.Context
	inbound Inbound
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPahoClient connects to the broker. Subscriptions start with Serve and
// are renewed on every reconnect.
func NewPahoClient(cfg Config) (*PahoClient, error) {
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt_client")
	pc := &PahoClient{
		prefix:     cfg.TopicPrefix,
		qos:        cfg.QoS,
		logger:     log,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
	}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		if err := pc.subscribe(c); err != nil {
			log.Errorf("subscribe error: %v", err)
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	pc.mu.Lock()
	pc.cli = c
	pc.mu.Unlock()
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return pc, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}
	return cfg, nil
}

func (p *PahoClient) qosFor(key string) byte {
	if q, ok := p.qos[key]; ok {
		return q
	}
	return 0
}

// Serve subscribes to the topics of every kind that in handles and feeds the
// decoded messages to it until ctx is done.
func (p *PahoClient) Serve(ctx context.Context, in Inbound) error {
	p.mu.Lock()
	p.ctx, p.inbound = ctx, in
	cli := p.cli
	p.mu.Unlock()
	if err := p.subscribe(cli); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func (p *PahoClient) subscribe(c pahoClient) error {
	p.mu.Lock()
	in := p.inbound
	p.mu.Unlock()
	if in == nil || c == nil {
		return nil
	}
	qos := p.qosFor("inbound")
	var errs []error
	for _, k := range router.Kinds() {
		if !in.Handles(k) {
			continue
		}
		topics := map[string]paho.MessageHandler{
			CarrierTopic(p.prefix, k.String()): p.onCarrier(k),
			ClientTopic(p.prefix, k.String()):  p.onClient(k),
		}
		for topic, h := range topics {
			if token := c.Subscribe(topic, qos, h); token.Wait() && token.Error() != nil {
				errs = append(errs, fmt.Errorf("subscribe %s: %w", topic, token.Error()))
			}
		}
	}
	return errors.Join(errs...)
}

func (p *PahoClient) onCarrier(k router.Kind) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		carrier, ok := carrierOf(p.prefix, msg.Topic())
		if !ok {
			p.logger.Warnf("ignoring %s on malformed topic %s", k, msg.Topic())
			return
		}
		p.deliver(k, carrier, carrier, msg.Payload())
	}
}

func (p *PahoClient) onClient(k router.Kind) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		p.deliver(k, "client", "", msg.Payload())
	}
}

func (p *PahoClient) deliver(k router.Kind, source, carrier string, data []byte) {
	m, err := router.Decode(k, source, carrier, data)
	if err != nil {
		p.logger.Warnf("drop %s from %s: %v", k, source, err)
		return
	}
	p.mu.Lock()
	ctx, in := p.ctx, p.inbound
	p.mu.Unlock()
	if in == nil {
		return
	}
	if err := in.Submit(ctx, m); err != nil {
		p.logger.Errorf("submit %s from %s: %v", k, source, err)
	}
}

// Send publishes cmd on the carrier's command topic, retrying with
// exponential backoff.
func (p *PahoClient) Send(ctx context.Context, cmd commands.Command) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	topic := CommandTopic(p.prefix, cmd.Carrier)
	if err := p.publish(ctx, topic, p.qosFor("command"), payload); err != nil {
		monitoring.CaptureException(err, monitoring.Tags("module", "mqtt", "carrier", cmd.Carrier, "kind", string(cmd.Kind)))
		return err
	}
	p.logger.Infof("sent %s %s to %s", cmd.Kind, cmd.ID, topic)
	return nil
}

// Notify publishes n on the notification topic of its module. Delivery is
// best effort.
func (p *PahoClient) Notify(ctx context.Context, n notify.Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		p.logger.Errorf("encode notification: %v", err)
		return
	}
	if err := p.publish(ctx, NotificationTopic(p.prefix, n.Module), p.qosFor("notification"), payload); err != nil {
		p.logger.Warnf("notification dropped: %v", err)
	}
}

func (p *PahoClient) publish(ctx context.Context, topic string, qos byte, payload []byte) error {
	var publishErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		token := p.cli.Publish(topic, qos, false, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			return nil
		}
		p.logger.Errorf("publish attempt %d failed: %v", attempt+1, publishErr)
		if attempt == p.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.backoff * time.Duration(1<<attempt)):
		}
	}
	return fmt.Errorf("publish %s: %w", topic, publishErr)
}

// Request publishes payload on the client topic of kind, the way an
// operator tool submits bookings and dispatch triggers.
func (p *PahoClient) Request(ctx context.Context, kind router.Kind, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.publish(ctx, ClientTopic(p.prefix, kind.String()), p.qosFor("inbound"), data)
}

// Disconnect gracefully closes the MQTT connection.
func (p *PahoClient) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}
