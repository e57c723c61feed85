// Package mqtt provides the broker session transport used by the agent.
package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"siapsuhu/internal/config"
)

// QoS levels
const (
	AtMostOnce  byte = 0
	AtLeastOnce byte = 1
)

// Connect failure codes. Positive values are CONNACK return codes from the
// broker (5 = not authorized).
const (
	CodeTimeout = -1
	CodeRefused = -2
)

// paho reports transport failures with this CONNACK code
const pahoNetworkError = 0xFE

// ErrNotConnected is returned by Publish without a live session.
var ErrNotConnected = errors.New("MQTT client is not connected")

// Message is an outbound publication.
type Message struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// ConnectError describes a failed connect attempt.
type ConnectError struct {
	Code int
	Err  error
}

func (e *ConnectError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("MQTT connect failed, code %d", e.Code)
	}
	return fmt.Sprintf("MQTT connect failed, code %d: %v", e.Code, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Options holds transport settings that do not change between sessions.
type Options struct {
	UseTLS         bool
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
	KeepAlive      time.Duration
}

// Client is a single-session MQTT transport. Session settings are staged
// with the Set* methods and applied by the next Connect. The agent owns
// reconnection, so paho's auto-reconnect stays off.
type Client struct {
	mu      sync.Mutex
	client  mqtt.Client
	opts    Options
	logger  *log.Logger
	inbound chan mqtt.Message

	clientID     string
	creds        *config.Credentials
	cleanSession bool
	will         *Message

	newClient func(*mqtt.ClientOptions) mqtt.Client
}

// New creates a Client. Nothing is dialed until Connect.
func New(opts Options, logger *log.Logger) *Client {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 5 * time.Second
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = 30 * time.Second
	}

	return &Client{
		opts:      opts,
		logger:    logger,
		inbound:   make(chan mqtt.Message, 16),
		newClient: mqtt.NewClient,
	}
}

// Stop closes the current session, if any.
func (c *Client) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return
	}
	c.client.Disconnect(250) // Wait up to 250ms for graceful disconnect
	c.client = nil
}

// abandon drops an unfinished connect attempt so a late CONNACK never
// surfaces as a live session. Caller holds c.mu.
func (c *Client) abandon() {
	if c.client == nil {
		return
	}
	c.client.Disconnect(0)
	c.client = nil
}

// SetID stages the client identifier.
func (c *Client) SetID(id string) {
	c.mu.Lock()
	c.clientID = id
	c.mu.Unlock()
}

// SetCredentials stages broker credentials; nil connects without a username.
func (c *Client) SetCredentials(creds *config.Credentials) {
	c.mu.Lock()
	c.creds = creds
	c.mu.Unlock()
}

// SetCleanSession stages the clean-session flag.
func (c *Client) SetCleanSession(clean bool) {
	c.mu.Lock()
	c.cleanSession = clean
	c.mu.Unlock()
}

// SetWill stages the last-will message sent in the next CONNECT.
func (c *Client) SetWill(will Message) {
	c.mu.Lock()
	c.will = &will
	c.mu.Unlock()
}

// Connect dials the broker with the staged session settings.
func (c *Client) Connect(ctx context.Context, host string, port int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	broker := c.brokerURL(host, port)
	client := c.newClient(c.clientOptions(broker))
	c.client = client

	token := client.Connect()

	timer := time.NewTimer(c.opts.ConnectTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-timer.C:
		c.abandon()
		return &ConnectError{Code: CodeTimeout, Err: fmt.Errorf("no CONNACK from %s within %v", broker, c.opts.ConnectTimeout)}
	case <-ctx.Done():
		c.abandon()
		return &ConnectError{Code: CodeTimeout, Err: ctx.Err()}
	}

	if err := token.Error(); err != nil {
		c.abandon()
		return &ConnectError{Code: connectCode(token), Err: err}
	}

	if c.logger != nil {
		c.logger.Printf("[MQTT] Session open with %s as %s", broker, c.clientID)
	}
	return nil
}

// clientOptions builds paho options from the staged settings.
func (c *Client) clientOptions(broker string) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(c.clientID)

	if c.creds != nil {
		opts.SetUsername(c.creds.Username)
		opts.SetPassword(c.creds.Password)
	}

	if c.opts.UseTLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tls.VersionTLS12,
		})
	}

	// Registered before CONNECT so the broker holds it for the whole session
	if c.will != nil {
		opts.SetBinaryWill(c.will.Topic, c.will.Payload, c.will.QoS, c.will.Retained)
	}

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		if c.logger != nil {
			c.logger.Printf("[MQTT] Connection lost: %v", err)
		}
	})

	opts.SetDefaultPublishHandler(func(client mqtt.Client, msg mqtt.Message) {
		select {
		case c.inbound <- msg:
		default:
			// Poll is not keeping up; drop
		}
	})

	// Reconnects are driven by the agent's tick
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(c.opts.ConnectTimeout)

	// Keep alive settings
	opts.SetKeepAlive(c.opts.KeepAlive)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetCleanSession(c.cleanSession)
	return opts
}

// Publish sends msg and waits up to the publish timeout for the broker ack.
func (c *Client) Publish(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil || !c.client.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(msg.Topic, msg.QoS, msg.Retained, msg.Payload)
	if !token.WaitTimeout(c.opts.PublishTimeout) {
		return fmt.Errorf("publish to %s timed out after %v", msg.Topic, c.opts.PublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Poll drains inbound messages without blocking and returns how many were
// seen. Keepalive runs inside paho.
func (c *Client) Poll() int {
	n := 0
	for {
		select {
		case msg := <-c.inbound:
			n++
			if c.logger != nil {
				c.logger.Printf("[MQTT] Ignoring inbound message on %s (%d bytes)", msg.Topic(), len(msg.Payload()))
			}
		default:
			return n
		}
	}
}

// Connected reports whether the session is live.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client != nil && c.client.IsConnected()
}

// brokerURL constructs the paho broker address.
func (c *Client) brokerURL(host string, port int) string {
	scheme := "tcp"
	if c.opts.UseTLS {
		scheme = "ssl"
	}
	return scheme + "://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// connectCode maps a failed connect token to a failure code.
func connectCode(token mqtt.Token) int {
	ct, ok := token.(*mqtt.ConnectToken)
	if !ok {
		return CodeRefused
	}
	rc := ct.ReturnCode()
	if rc == 0 || rc == pahoNetworkError {
		return CodeRefused
	}
	return int(rc)
}
