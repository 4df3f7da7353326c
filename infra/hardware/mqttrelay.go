package hardware

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/redhouse-home/heatctl/core/logger"
	"github.com/redhouse-home/heatctl/core/model"
	"github.com/redhouse-home/heatctl/core/pump"
)

// MQTTConfig defines the connection parameters for the relay bridge.
type MQTTConfig struct {
	Broker         string          `json:"broker"`
	ClientID       string          `json:"client_id"`
	Username       string          `json:"username"`
	Password       string          `json:"password"`
	CommandTopic   string          `json:"command_topic"`
	AckTopic       string          `json:"ack_topic"`
	UseTLS         bool            `json:"use_tls"`
	ClientCert     string          `json:"client_cert"`
	ClientKey      string          `json:"client_key"`
	CABundle       string          `json:"ca_bundle"`
	QoS            map[string]byte `json:"qos"`
	LWTTopic       string          `json:"lwt_topic"`
	LWTPayload     string          `json:"lwt_payload"`
	LWTQoS         byte            `json:"lwt_qos"`
	LWTRetain      bool            `json:"lwt_retain"`
	AckTimeoutSecs int             `json:"ack_timeout_seconds"`
	TLSConfig      *tls.Config     `json:"-"`
}

// ErrAckTimeout is returned when the relay bridge does not confirm a
// command in time.
var ErrAckTimeout = fmt.Errorf("relay ack timeout")

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// MQTTRelay drives the pump through an MQTT relay bridge: each command is
// published with a uuid and the bridge confirms it on the ack topic.
type MQTTRelay struct {
	cli          pahoClient
	commandTopic string
	ackTopic     string
	qos          map[string]byte
	ackTimeout   time.Duration
	log          logger.Logger

	mu       sync.Mutex
	ackChans map[string]chan struct{}
	lastMode model.Mode
	hasLast  bool
}

type relayCommand struct {
	CommandID string `json:"command_id"`
	Target    string `json:"target"` // "primary" | "auxiliary"
	Command   string `json:"command"`
	Timestamp int64  `json:"timestamp"`
}

// NewMQTTRelay connects to the broker and subscribes to the ack topic.
func NewMQTTRelay(cfg MQTTConfig, log logger.Logger) (*MQTTRelay, error) {
	opts, err := newClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	timeout := time.Duration(cfg.AckTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	r := &MQTTRelay{
		commandTopic: cfg.CommandTopic,
		ackTopic:     cfg.AckTopic,
		qos:          cfg.QoS,
		ackTimeout:   timeout,
		log:          log,
		ackChans:     make(map[string]chan struct{}),
	}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		if token := c.Subscribe(r.ackTopic, r.qosFor("ack"), r.onAck); token.Wait() && token.Error() != nil {
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
	r.cli = c
	return r, nil
}

func newClientOptions(cfg MQTTConfig) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.loadTLSConfig()
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

func (c MQTTConfig) loadTLSConfig() (*tls.Config, error) {
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
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

func (r *MQTTRelay) qosFor(kind string) byte {
	if q, ok := r.qos[kind]; ok {
		return q
	}
	return 0
}

func (r *MQTTRelay) onAck(_ paho.Client, msg paho.Message) {
	var m struct {
		CommandID string `json:"command_id"`
	}
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		r.log.Errorf("failed to decode ack: %v", err)
		return
	}
	r.mu.Lock()
	if ch, ok := r.ackChans[m.CommandID]; ok {
		select {
		case ch <- struct{}{}:
		default:
		}
		r.log.Debugf("received ack %s", m.CommandID)
	}
	r.mu.Unlock()
}

func (r *MQTTRelay) SetPrimaryMode(ctx context.Context, m model.Mode) error {
	if !m.Valid() {
		return fmt.Errorf("%w: %d", model.ErrUnknownMode, m)
	}
	if err := r.send(ctx, "primary", m.String()); err != nil {
		return err
	}
	r.mu.Lock()
	r.lastMode = m
	r.hasLast = true
	r.mu.Unlock()
	return nil
}

func (r *MQTTRelay) SetAuxiliaryPump(ctx context.Context, on bool) error {
	cmd := "off"
	if on {
		cmd = "on"
	}
	return r.send(ctx, "auxiliary", cmd)
}

func (r *MQTTRelay) Status(context.Context) (*pump.Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hasLast {
		return nil, nil
	}
	return &pump.Status{Mode: r.lastMode.String()}, nil
}

// send publishes one command and waits for the bridge's ack.
func (r *MQTTRelay) send(ctx context.Context, target, command string) error {
	cmd := relayCommand{
		CommandID: uuid.NewString(),
		Target:    target,
		Command:   command,
		Timestamp: time.Now().UnixMilli(),
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}

	ch := make(chan struct{}, 1)
	r.mu.Lock()
	r.ackChans[cmd.CommandID] = ch
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.ackChans, cmd.CommandID)
		r.mu.Unlock()
	}()

	token := r.cli.Publish(r.commandTopic, r.qosFor("command"), false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s command: %w", target, err)
	}
	r.log.Infof("sent %s command %s (%s)", target, command, cmd.CommandID)

	timer := time.NewTimer(r.ackTimeout)
	defer timer.Stop()
	select {
	case <-ch:
		return nil
	case <-timer.C:
		return fmt.Errorf("%s command %s: %w", target, command, ErrAckTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect gracefully closes the MQTT connection.
func (r *MQTTRelay) Disconnect() {
	if r.cli != nil && r.cli.IsConnected() {
		r.cli.Disconnect(250)
	}
}
