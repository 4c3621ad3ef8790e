// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package mqtt adapts the Eclipse Paho client to ingest.Subscriber.
//
// The client keeps a persistent session, reconnects on its own at a
// fixed interval after any connection loss, and delivers messages in
// order on a single goroutine. Handlers may block: a blocked handler
// stalls delivery from the broker, which is how the bridge pushes back
// when its queue is full.
package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/bureau-foundation/mqtt2loki/lib/ingest"
)

// Delivery guarantee for every subscription: at most once.
const qosAtMostOnce byte = 0

// subscriptionFailure is the SUBACK return code for a refused topic.
const subscriptionFailure byte = 0x80

// disconnectQuiesce is how long Disconnect lets in-flight work finish,
// in milliseconds.
const disconnectQuiesce = 250

// Defaults applied by New for zero Config fields.
const (
	DefaultPort              = 1883
	DefaultKeepAlive         = 5 * time.Second
	DefaultReconnectInterval = 1 * time.Second
	DefaultSubscribeTimeout  = 10 * time.Second
)

// Config holds the broker connection parameters.
type Config struct {
	Address  string
	Port     int
	UseTLS   bool
	Username string
	Password string
	ClientID string

	// KeepAlive is the MQTT keep-alive period.
	KeepAlive time.Duration

	// ReconnectInterval is the fixed wait between connection
	// attempts, both before the first connection and after a loss.
	ReconnectInterval time.Duration

	// SubscribeTimeout bounds the wait for each SUBACK.
	SubscribeTimeout time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Client is a Paho-backed ingest.Subscriber.
type Client struct {
	client           paho.Client
	subscribeTimeout time.Duration
	logger           *slog.Logger
}

var _ ingest.Subscriber = (*Client)(nil)

// New builds a client. It does not connect.
func New(config Config) (*Client, error) {
	options, err := newOptions(&config)
	if err != nil {
		return nil, err
	}
	return &Client{
		client:           paho.NewClient(options),
		subscribeTimeout: config.SubscribeTimeout,
		logger:           config.Logger,
	}, nil
}

// newOptions fills config defaults in place and translates it to
// Paho options.
func newOptions(config *Config) (*paho.ClientOptions, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("mqtt: Address is required")
	}
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.Port < 0 || config.Port > 65535 {
		return nil, fmt.Errorf("mqtt: port %d out of range", config.Port)
	}
	if config.KeepAlive <= 0 {
		config.KeepAlive = DefaultKeepAlive
	}
	if config.ReconnectInterval <= 0 {
		config.ReconnectInterval = DefaultReconnectInterval
	}
	if config.SubscribeTimeout <= 0 {
		config.SubscribeTimeout = DefaultSubscribeTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	logger := config.Logger

	scheme := "tcp"
	if config.UseTLS {
		scheme = "tls"
	}
	broker := scheme + "://" + net.JoinHostPort(config.Address, strconv.Itoa(config.Port))

	options := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(config.ClientID).
		SetUsername(config.Username).
		SetPassword(config.Password).
		SetKeepAlive(config.KeepAlive).
		SetCleanSession(false).
		SetResumeSubs(true).
		SetOrderMatters(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(config.ReconnectInterval).
		SetMaxReconnectInterval(config.ReconnectInterval).
		SetOnConnectHandler(func(paho.Client) {
			logger.Info("connected to MQTT broker", "broker", broker)
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Error("MQTT connection lost", "broker", broker, "error", err)
		}).
		SetReconnectingHandler(func(paho.Client, *paho.ClientOptions) {
			logger.Debug("reconnecting to MQTT broker", "broker", broker)
		})

	if config.UseTLS {
		// Nil RootCAs selects the system certificate pool.
		options.SetTLSConfig(&tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: config.Address,
		})
	}
	return options, nil
}

// Connect waits until the broker connection is up. Connection attempts
// repeat at the reconnect interval until they succeed or ctx is
// cancelled.
func (c *Client) Connect(ctx context.Context) error {
	token := c.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt: connect: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe subscribes to topic at QoS 0 and waits for the broker's
// acknowledgement.
func (c *Client) Subscribe(ctx context.Context, topic string, handler ingest.Handler) error {
	token := c.client.Subscribe(topic, qosAtMostOnce, func(_ paho.Client, message paho.Message) {
		handler(message.Topic(), message.Payload())
	})

	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.subscribeTimeout):
		return fmt.Errorf("mqtt: subscribe %q: no acknowledgement within %v", topic, c.subscribeTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: subscribe %q: %w", topic, err)
	}
	if subscribeToken, ok := token.(*paho.SubscribeToken); ok {
		if code, found := subscribeToken.Result()[topic]; found && code == subscriptionFailure {
			return fmt.Errorf("mqtt: subscribe %q: refused by broker", topic)
		}
	}
	return nil
}

// Disconnect closes the connection after a short quiesce period.
func (c *Client) Disconnect() {
	c.client.Disconnect(disconnectQuiesce)
	c.logger.Info("disconnected from MQTT broker")
}
