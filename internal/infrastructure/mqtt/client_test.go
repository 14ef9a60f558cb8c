package mqtt

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/doorgate/internal/infrastructure/config"
)

// testConfig returns an MQTT configuration for a local Mosquitto broker
// at 127.0.0.1:1883. Tests that need it call skipIfNoBroker.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:         "127.0.0.1",
			Port:         1883,
			ClientID:     "doorgate-test",
			CleanSession: true,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay:          1,
			MaxDelay:              5,
			ConnectTimeout:        3,
			RequireInitialConnect: true,
		},
	}
}

func skipIfNoBroker(t *testing.T) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", "127.0.0.1:1883", 500*time.Millisecond)
	if err != nil {
		t.Skip("MQTT broker not available at 127.0.0.1:1883")
	}
	conn.Close() //nolint:errcheck // Probe only
}

// newDetachedClient builds a Client that was never connected.
func newDetachedClient() *Client {
	return &Client{
		cfg:           testConfig(),
		subscriptions: make(map[string]subscription),
	}
}

// mockLogger implements Logger interface for testing.
type mockLogger struct {
	errors []string
	warns  []string
	mu     sync.Mutex
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func (l *mockLogger) counts() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors), len(l.warns)
}

// fakeMessage implements pahomqtt.Message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

var _ pahomqtt.Message = fakeMessage{}

// =============================================================================
// Offline behaviour (no broker needed)
// =============================================================================

func TestConnect_RequiredButRefused(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 1 // nothing listens here
	cfg.Reconnect.ConnectTimeout = 1

	_, err := Connect(cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_OptionalKeepsRetrying(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 1
	cfg.Reconnect.ConnectTimeout = 1
	cfg.Reconnect.RequireInitialConnect = false

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v, want nil while retrying", err)
	}
	defer client.Close() //nolint:errcheck // Test cleanup

	if client.IsConnected() {
		t.Error("IsConnected() = true, want false")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
	if err := client.Publish("/topic/commands", []byte("x"), 0, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
	if err := client.SubscribeOnConnect("/topic/logs", 1, func(string, []byte) error { return nil }); err != nil {
		t.Errorf("SubscribeOnConnect() error = %v", err)
	}
	if !client.HasSubscription("/topic/logs") {
		t.Error("subscription should be tracked for the next connect")
	}
}

func TestConnect_BadTLSFiles(t *testing.T) {
	cfg := testConfig()
	cfg.TLS = config.MQTTTLSConfig{Enabled: true, CAFile: "/nonexistent/ca.crt"}

	if _, err := Connect(cfg); !errors.Is(err, ErrTLSConfig) {
		t.Errorf("Connect() error = %v, want ErrTLSConfig", err)
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	if (&Client{}).IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

func TestPublish_Validation(t *testing.T) {
	client := newDetachedClient()

	tests := []struct {
		name  string
		topic string
		qos   byte
		want  error
	}{
		{"empty topic", "", 0, ErrInvalidTopic},
		{"invalid qos", "/topic/commands", 3, ErrInvalidQoS},
		{"disconnected", "/topic/commands", 0, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := client.Publish(tt.topic, []byte("x"), tt.qos, false); !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSubscribe_Validation(t *testing.T) {
	client := newDetachedClient()
	handler := func(string, []byte) error { return nil }

	if err := client.Subscribe("", 1, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(empty) error = %v", err)
	}
	if err := client.Subscribe("t", 3, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe(qos 3) error = %v", err)
	}
	if err := client.Subscribe("t", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe(nil handler) error = %v", err)
	}
	if err := client.Subscribe("t", 1, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe(disconnected) error = %v", err)
	}
	if client.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", client.SubscriptionCount())
	}
}

func TestSubscribeOnConnect_Offline(t *testing.T) {
	client := newDetachedClient()
	handler := func(string, []byte) error { return nil }

	if err := client.SubscribeOnConnect("", 1, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("SubscribeOnConnect(empty) error = %v", err)
	}
	if err := client.SubscribeOnConnect("/topic/logs", 1, handler); err != nil {
		t.Fatalf("SubscribeOnConnect() error = %v", err)
	}
	// Re-registering replaces rather than duplicates.
	if err := client.SubscribeOnConnect("/topic/logs", 1, handler); err != nil {
		t.Fatalf("SubscribeOnConnect() error = %v", err)
	}
	if client.SubscriptionCount() != 1 {
		t.Errorf("SubscriptionCount() = %d, want 1", client.SubscriptionCount())
	}
}

func TestUnsubscribe_Offline(t *testing.T) {
	client := newDetachedClient()

	if err := client.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(empty) error = %v", err)
	}
	if err := client.Unsubscribe("t"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe() error = %v, want ErrNotConnected", err)
	}
}

func TestWrapHandler_RecoversPanic(t *testing.T) {
	client := newDetachedClient()
	logger := &mockLogger{}
	client.SetLogger(logger)

	wrapped := client.wrapHandler(func(string, []byte) error {
		panic("bad payload")
	})
	wrapped(nil, fakeMessage{topic: "/topic/logs"})

	if errs, _ := logger.counts(); errs != 1 {
		t.Errorf("error logs = %d, want 1", errs)
	}
}

func TestWrapHandler_LogsReturnedError(t *testing.T) {
	client := newDetachedClient()
	logger := &mockLogger{}
	client.SetLogger(logger)

	var gotTopic string
	var gotPayload []byte
	wrapped := client.wrapHandler(func(topic string, payload []byte) error {
		gotTopic, gotPayload = topic, payload
		return errors.New("handler error")
	})
	wrapped(nil, fakeMessage{topic: "/topic/logs", payload: []byte("line")})

	if gotTopic != "/topic/logs" || string(gotPayload) != "line" {
		t.Errorf("handler got %q %q", gotTopic, gotPayload)
	}
	if _, warns := logger.counts(); warns != 1 {
		t.Errorf("warn logs = %d, want 1", warns)
	}
}

func TestDispatchUnrouted(t *testing.T) {
	client := newDetachedClient()
	logger := &mockLogger{}
	client.SetLogger(logger)

	delivered := 0
	client.track("/topic/logs", 1, func(string, []byte) error {
		delivered++
		return nil
	})

	client.dispatchUnrouted(nil, fakeMessage{topic: "/topic/logs"})
	client.dispatchUnrouted(nil, fakeMessage{topic: "/topic/other"})

	if delivered != 1 {
		t.Errorf("delivered = %d, want 1", delivered)
	}
	if _, warns := logger.counts(); warns != 1 {
		t.Errorf("warn logs = %d, want 1 for the untracked topic", warns)
	}
}

func TestSetLogger(t *testing.T) {
	client := newDetachedClient()
	client.SetLogger(&mockLogger{})
	if client.getLogger() == nil {
		t.Error("getLogger() = nil after SetLogger()")
	}
	client.SetLogger(nil)
	if client.getLogger() != nil {
		t.Error("getLogger() should be nil after SetLogger(nil)")
	}
}

// =============================================================================
// Broker tests
// =============================================================================

func TestConnect(t *testing.T) {
	skipIfNoBroker(t)

	client, err := Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close() //nolint:errcheck // Test cleanup

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() expected error for cancelled context")
	}
}

func TestClose(t *testing.T) {
	skipIfNoBroker(t)

	client, err := Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close(), want false")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestPublishSubscribeRoundtrip(t *testing.T) {
	skipIfNoBroker(t)

	cfg := testConfig()
	cfg.Broker.ClientID = "doorgate-test-pub"
	pubClient, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() publisher error = %v", err)
	}
	defer pubClient.Close() //nolint:errcheck // Test cleanup

	cfg.Broker.ClientID = "doorgate-test-sub"
	subClient, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() subscriber error = %v", err)
	}
	defer subClient.Close() //nolint:errcheck // Test cleanup

	topic := "/doorgate-test/logs"
	expected := "2024-01-01T00:00:00 (ACCESS/BOOT#3): 5 2 authorized 99\x00"
	received := make(chan string, 1)

	err = subClient.Subscribe(topic, 1, func(_ string, payload []byte) error {
		received <- string(payload)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !subClient.HasSubscription(topic) {
		t.Error("HasSubscription() = false after Subscribe")
	}

	if err := pubClient.Publish(topic, []byte(expected), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case payload := <-received:
		if payload != expected {
			t.Errorf("Received payload = %q, want %q", payload, expected)
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for message")
	}

	if err := subClient.Unsubscribe(topic); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
	if subClient.HasSubscription(topic) {
		t.Error("HasSubscription() = true after Unsubscribe")
	}
}

func TestStatusTopicRetained(t *testing.T) {
	skipIfNoBroker(t)

	cfg := testConfig()
	cfg.Broker.ClientID = "doorgate-test-status"
	gw, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer gw.Close() //nolint:errcheck // Test cleanup

	cfg.Broker.ClientID = "doorgate-test-status-watch"
	watcher, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() watcher error = %v", err)
	}
	defer watcher.Close() //nolint:errcheck // Test cleanup

	got := make(chan []byte, 4)
	err = watcher.Subscribe(gw.StatusTopic(), 1, func(_ string, p []byte) error {
		got <- p
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	select {
	case p := <-got:
		if len(p) == 0 {
			t.Error("empty status payload")
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for retained status")
	}
}
