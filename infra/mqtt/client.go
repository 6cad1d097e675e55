// Package mqtt publishes dispatch lifecycle events to an MQTT broker and
// receives player commands from it.
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/regiondispatch/core/logger"
	coremon "github.com/kilianp07/regiondispatch/core/monitoring"
	"github.com/kilianp07/regiondispatch/core/notify"
	infralogger "github.com/kilianp07/regiondispatch/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker       string          `json:"broker"`
	ClientID     string          `json:"client_id"`
	Username     string          `json:"username"`
	Password     string          `json:"password"`
	TopicPrefix  string          `json:"topic_prefix"`
	CommandTopic string          `json:"command_topic"`
	UseTLS       bool            `json:"use_tls"`
	ClientCert   string          `json:"client_cert"`
	ClientKey    string          `json:"client_key"`
	CABundle     string          `json:"ca_bundle"`
	AuthMethod   string          `json:"auth_method"`
	QoS          map[string]byte `json:"qos"`
	Retain       bool            `json:"retain"`
	LWTTopic     string          `json:"lwt_topic"`
	LWTPayload   string          `json:"lwt_payload"`
	LWTQoS       byte            `json:"lwt_qos"`
	LWTRetain    bool            `json:"lwt_retain"`
	MaxRetries   int             `json:"max_retries"`
	BackoffMS    int             `json:"backoff_ms"`
	TLSConfig    *tls.Config     `json:"-"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "regiondispatch"
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "regiondispatch/events"
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = 100
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}
	for k, q := range c.QoS {
		if q > 2 {
			return fmt.Errorf("mqtt.qos.%s must be 0, 1 or 2", k)
		}
	}
	return nil
}

// Command is a player instruction received on the command topic.
type Command struct {
	Command string `json:"command"`
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// PahoClient implements notify.Publisher using Eclipse Paho.
type PahoClient struct {
	cli         pahoClient
	topicPrefix string
	cmdTopic    string
	qos         map[string]byte
	retain      bool
	logger      logger.Logger
	mon         coremon.Monitor
	maxRetries  int
	backoff     time.Duration

	mu      sync.Mutex
	handler func(Command)
}

var _ notify.Publisher = (*PahoClient)(nil)

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPahoClient connects to the MQTT broker and subscribes to the command
// topic when one is configured.
func NewPahoClient(cfg Config, mon coremon.Monitor) (*PahoClient, error) {
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := infralogger.New("mqtt_client")
	pc := &PahoClient{
		topicPrefix: strings.TrimSuffix(cfg.TopicPrefix, "/"),
		cmdTopic:    cfg.CommandTopic,
		qos:         cfg.QoS,
		retain:      cfg.Retain,
		logger:      log,
		mon:         coremon.OrNop(mon),
		maxRetries:  cfg.MaxRetries,
		backoff:     time.Duration(cfg.BackoffMS) * time.Millisecond,
	}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		if pc.cmdTopic == "" {
			return
		}
		if token := c.Subscribe(pc.cmdTopic, pc.qosFor("command"), pc.onCommand); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	pc.cli = c
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

func (p *PahoClient) qosFor(name string) byte {
	if q, ok := p.qos[name]; ok {
		return q
	}
	return p.qos["default"]
}

// OnCommand installs the handler for messages on the command topic.
func (p *PahoClient) OnCommand(h func(Command)) {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
}

func (p *PahoClient) onCommand(_ paho.Client, msg paho.Message) {
	var cmd Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		p.logger.Errorf("failed to decode command: %v", err)
		return
	}
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	if h == nil {
		p.logger.Warnf("command %q dropped: no handler", cmd.Command)
		return
	}
	p.logger.Infof("received command %s", cmd.Command)
	h(cmd)
}

// Topic returns the topic an event is published on.
func (p *PahoClient) Topic(event string) string {
	return p.topicPrefix + "/" + event
}

// Publish sends env to <prefix>/<event>, retrying with exponential backoff.
func (p *PahoClient) Publish(ctx context.Context, env notify.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	topic := p.Topic(env.Event)
	qos := p.qosFor(env.Event)
	var publishErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		token := p.cli.Publish(topic, qos, p.retain, payload)
		select {
		case <-token.Done():
			publishErr = token.Error()
		case <-ctx.Done():
			publishErr = ctx.Err()
		}
		if publishErr == nil {
			p.logger.Debugf("published %s to %s", env.ID, topic)
			return nil
		}
		p.logger.Errorf("publish attempt %d failed: %v", attempt+1, publishErr)
		if ctx.Err() != nil {
			break
		}
		select {
		case <-time.After(p.backoff * time.Duration(1<<attempt)):
		case <-ctx.Done():
		}
	}
	p.mon.CaptureException(publishErr, map[string]string{"module": "mqtt", "event": env.Event, "key": env.Key})
	return publishErr
}

// Close gracefully closes the MQTT connection.
func (p *PahoClient) Close() error {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
	return nil
}
