// Package mqtt wraps an autopaho connection behind a small channel
// adapter: publish by topic, receive every subscribed message on one
// bounded queue.
package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"

	"chatty/internal/config"
)

const (
	// QueueSize bounds the number of received messages waiting for the
	// main loop. Delivery blocks when it is full.
	QueueSize = 10

	keepAlive      = 5
	connectTimeout = 30 * time.Second
)

// Message is one received publication.
type Message struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// TransportError is returned when a publish does not reach the broker.
type TransportError struct {
	Topic string
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("mqtt publish to %s: %v", e.Topic, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Client is a connected MQTT channel. Publish is safe for concurrent use;
// Messages is meant to be consumed by a single loop.
type Client struct {
	cm     *autopaho.ConnectionManager
	queue  chan Message
	topics []string
	done   <-chan struct{}
	logger *slog.Logger
}

// Connect dials the broker and keeps the connection alive in the
// background. topics are subscribed at QoS 1 on every connection-up so
// they survive reconnects. Connect does not fail when the broker is
// unreachable; autopaho keeps retrying and the first attempt is only
// waited on for a bounded time.
func Connect(ctx context.Context, cfg config.MQTTConfig, topics []string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	brokerURL, err := BrokerURL(cfg)
	if err != nil {
		return nil, err
	}

	c := &Client{
		queue:  make(chan Message, QueueSize),
		topics: append([]string(nil), topics...),
		done:   ctx.Done(),
		logger: logger,
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "chatty-" + uuid.NewString()
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{brokerURL},
		KeepAlive:                     keepAlive,
		CleanStartOnInitialConnection: true,
		ConnectUsername:               cfg.Username,
		ConnectPassword:               []byte(cfg.Password),
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			logger.Info("mqtt connected to broker", "broker", brokerURL.String())
			c.subscribe(ctx, cm)
		},
		OnConnectError: func(err error) {
			logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: clientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					c.route(pr.Packet)
					return true, nil
				},
			},
			OnClientError: func(err error) {
				logger.Warn("mqtt client error", "error", err)
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				logger.Warn("mqtt server requested disconnect", "reason", d.ReasonCode)
			},
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	c.cm = cm

	connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	return c, nil
}

// BrokerURL builds the server URL from the configured host and port. A
// host that already carries a scheme is used as is.
func BrokerURL(cfg config.MQTTConfig) (*url.URL, error) {
	port := cfg.BrokerPort
	if port == 0 {
		port = config.DefaultMQTTPort
	}

	raw := cfg.BrokerHost
	if !strings.Contains(raw, "://") {
		raw = "mqtt://" + raw + ":" + strconv.Itoa(port)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse mqtt broker URL: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse mqtt broker URL: missing host in %q", raw)
	}
	return u, nil
}

func (c *Client) subscribe(ctx context.Context, cm *autopaho.ConnectionManager) {
	if len(c.topics) == 0 {
		return
	}
	subs := make([]paho.SubscribeOptions, 0, len(c.topics))
	for _, t := range c.topics {
		subs = append(subs, paho.SubscribeOptions{Topic: t, QoS: 1})
	}
	if _, err := cm.Subscribe(ctx, &paho.Subscribe{Subscriptions: subs}); err != nil {
		c.logger.Warn("mqtt subscribe failed", "topics", c.topics, "error", err)
		return
	}
	c.logger.Debug("mqtt subscribed", "topics", c.topics)
}

// route hands a received packet to the queue. It blocks while the queue
// is full and gives up when the connection context ends.
func (c *Client) route(p *paho.Publish) {
	if p == nil {
		return
	}
	msg := Message{Topic: p.Topic, Payload: p.Payload, Retained: p.Retain}
	select {
	case c.queue <- msg:
	case <-c.done:
		c.logger.Debug("mqtt message dropped on shutdown", "topic", p.Topic)
	}
}

// Messages returns the receive queue.
func (c *Client) Messages() <-chan Message {
	return c.queue
}

// Publish sends payload to topic.
func (c *Client) Publish(ctx context.Context, topic string, qos byte, retain bool, payload []byte) error {
	if _, err := c.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     qos,
		Retain:  retain,
	}); err != nil {
		return &TransportError{Topic: topic, Err: err}
	}
	c.logger.Debug("mqtt published", "topic", topic, "bytes", len(payload), "retain", retain)
	return nil
}

// Disconnect closes the connection. The provided context bounds how long
// to wait for the broker to acknowledge.
func (c *Client) Disconnect(ctx context.Context) error {
	if c.cm == nil {
		return nil
	}
	return c.cm.Disconnect(ctx)
}
