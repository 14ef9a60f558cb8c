package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/doorgate/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang for the door gateway.
//
// It provides connection management, message publishing, subscription handling,
// and automatic reconnection with exponential backoff.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are automatically restored on reconnection.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig
	topics  Topics

	// subscriptions tracks active subscriptions for re-subscription on reconnect.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	// connected tracks current connection state.
	connected bool
	connMu    sync.RWMutex

	// Callbacks for connection events (optional, set via SetOnConnect/SetOnDisconnect).
	onConnect    func()
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	// logger for error/panic logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// subscription holds subscription details for re-subscription on reconnect.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked by the paho library's delivery goroutine and should
// not block for extended periods.
//
// Returns:
//   - error: Logged but does not affect message acknowledgment
type MessageHandler func(topic string, payload []byte) error

// Connect creates a client and starts connecting to the broker.
//
// It performs the following setup:
//  1. Builds connection options from config (broker URL, auth, TLS files)
//  2. Configures Last Will on the client's status topic
//  3. Sets up auto-reconnect with exponential backoff
//  4. Waits up to the configured connect timeout for the first connection
//  5. Publishes retained online status once connected
//
// If the broker is not reachable in time, Connect returns the client and
// paho keeps retrying in the background, unless
// cfg.Reconnect.RequireInitialConnect is set, in which case it returns
// ErrConnectionFailed.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	opts, err := buildClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:           cfg,
		options:       opts,
		topics:        Topics{Config: cfg.Topics},
		subscriptions: make(map[string]subscription),
	}
	configureLWT(opts, c.StatusTopic(), cfg.Broker.ClientID)

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})

	// With a persistent session the broker may deliver queued messages
	// before the subscription is re-registered locally.
	opts.SetDefaultPublishHandler(func(cl pahomqtt.Client, msg pahomqtt.Message) {
		c.dispatchUnrouted(cl, msg)
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	timeout := connectTimeout(cfg)
	if !token.WaitTimeout(timeout) {
		if cfg.Reconnect.RequireInitialConnect {
			c.client.Disconnect(0)
			return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, timeout)
		}
		// paho keeps retrying; handleConnect runs when it succeeds.
		return c, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnectHandler runs asynchronously and may not have executed
	// yet, so mark the state here for IsConnected.
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	return c, nil
}

// StatusTopic returns this client's retained status topic.
func (c *Client) StatusTopic() string {
	return c.topics.Status(c.cfg.Broker.ClientID)
}

// Topics returns the configured topic names.
func (c *Client) Topics() Topics {
	return c.topics
}

// handleConnect is called when the connection is established.
func (c *Client) handleConnect() {
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	c.restoreSubscriptions()
	c.publishStatus("online", "")

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// handleDisconnect is called when the connection is lost.
func (c *Client) handleDisconnect(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	if logger := c.getLogger(); logger != nil {
		logger.Warn("MQTT connection lost", "error", err)
	}

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// restoreSubscriptions re-subscribes to all tracked topics after (re)connect.
// Tokens are not awaited: this runs on paho's connect goroutine.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, sub := range c.subscriptions {
		c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
	}
}

// dispatchUnrouted delivers a message that arrived without a registered
// paho route to the tracked handler for its exact topic.
func (c *Client) dispatchUnrouted(cl pahomqtt.Client, msg pahomqtt.Message) {
	c.subMu.RLock()
	sub, ok := c.subscriptions[msg.Topic()]
	c.subMu.RUnlock()

	if !ok {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("MQTT message on untracked topic dropped", "topic", msg.Topic())
		}
		return
	}
	c.wrapHandler(sub.handler)(cl, msg)
}

func (c *Client) publishStatus(status, reason string) pahomqtt.Token {
	payload := buildStatusPayload(status, c.cfg.Broker.ClientID, reason)
	return c.client.Publish(c.StatusTopic(), statusQoS, true, payload)
}

// Close gracefully disconnects from the MQTT broker.
//
// It performs:
//  1. Publishes graceful offline status (different from LWT crash status)
//  2. Waits for pending publish operations
//  3. Disconnects from broker
//
// Returns:
//   - error: If disconnect fails (connection already closed is not an error)
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		token := c.publishStatus("offline", "graceful_shutdown")
		token.WaitTimeout(defaultSubscribeTimeout)
	}

	// Also stops background connect retries.
	c.client.Disconnect(defaultDisconnectQuiesce)

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	return nil
}

// HealthCheck verifies the MQTT connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	if c.client == nil {
		return false
	}
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client.IsConnectionOpen()
}

// SetOnConnect sets a callback to be invoked when connection is established.
// This is called on initial connect and on every reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback to be invoked when connection is lost.
// The error parameter describes why the connection was lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for error and panic logging.
// If not set, errors in handlers are silently ignored.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler wraps a MessageHandler with panic recovery and optional logging.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error",
					"topic", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}
