package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/doorgate/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is used when the config leaves it unset.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	// Firmware images can be several megabytes, hence the generous bound.
	defaultPublishTimeout = 30 * time.Second

	// defaultSubscribeTimeout bounds SUBACK and UNSUBACK waits.
	defaultSubscribeTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is used when the config leaves it unset.
	defaultKeepAlive = 60 * time.Second

	// statusQoS is used for the online/offline status and the will.
	statusQoS = 1

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// buildClientOptions creates paho MQTT options from doorgate config.
//
// This configures:
//   - Broker URL (tcp:// or ssl:// based on TLS setting)
//   - Client ID and session persistence
//   - Authentication credentials (if provided)
//   - Auto-reconnect with exponential backoff
//   - TLS from CA, certificate and key files (if enabled)
func buildClientOptions(cfg config.MQTTConfig) (*pahomqtt.ClientOptions, error) {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.TLS.Enabled {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))

	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// A persistent session lets the broker queue QoS 1 log messages while
	// the gateway is offline.
	opts.SetCleanSession(cfg.Broker.CleanSession)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(secondsOr(cfg.Reconnect.InitialDelay, time.Second))
	opts.SetMaxReconnectInterval(secondsOr(cfg.Reconnect.MaxDelay, time.Minute))
	opts.SetConnectTimeout(connectTimeout(cfg))
	opts.SetKeepAlive(secondsOr(cfg.Broker.KeepAlive, defaultKeepAlive))

	if cfg.TLS.Enabled {
		tlsConfig, err := buildTLSConfig(cfg.TLS)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}

	return opts, nil
}

func secondsOr(n int, fallback time.Duration) time.Duration {
	if n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}

func connectTimeout(cfg config.MQTTConfig) time.Duration {
	return secondsOr(cfg.Reconnect.ConnectTimeout, defaultConnectTimeout)
}

// buildTLSConfig loads the CA pool and client key pair named in cfg.
//
// With SkipHostnameVerify the standard verification is replaced by one that
// still checks the chain against the CA pool but ignores the host name.
func buildTLSConfig(cfg config.MQTTTLSConfig) (*tls.Config, error) {
	tc := &tls.Config{MinVersion: tlsMinVersion}

	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("%w: reading CA file: %w", ErrTLSConfig, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("%w: no certificates in %s", ErrTLSConfig, cfg.CAFile)
		}
		tc.RootCAs = pool
	}

	if cfg.CertFile != "" || cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("%w: loading client key pair: %w", ErrTLSConfig, err)
		}
		tc.Certificates = []tls.Certificate{cert}
	}

	if cfg.SkipHostnameVerify {
		tc.InsecureSkipVerify = true //nolint:gosec // Chain is verified in VerifyPeerCertificate
		tc.VerifyPeerCertificate = verifyChainOnly(tc.RootCAs)
	}

	return tc, nil
}

// verifyChainOnly verifies the presented chain against roots (the system
// pool when nil) without checking the server name.
func verifyChainOnly(roots *x509.CertPool) func([][]byte, [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return errors.New("mqtt: broker presented no certificate")
		}

		certs := make([]*x509.Certificate, 0, len(rawCerts))
		for _, raw := range rawCerts {
			cert, err := x509.ParseCertificate(raw)
			if err != nil {
				return fmt.Errorf("mqtt: parsing broker certificate: %w", err)
			}
			certs = append(certs, cert)
		}

		intermediates := x509.NewCertPool()
		for _, cert := range certs[1:] {
			intermediates.AddCert(cert)
		}

		_, err := certs[0].Verify(x509.VerifyOptions{
			Roots:         roots,
			Intermediates: intermediates,
		})
		if err != nil {
			return fmt.Errorf("mqtt: verifying broker certificate: %w", err)
		}
		return nil
	}
}

// statusPayload is published retained on the client's status topic.
type statusPayload struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

func buildStatusPayload(status, clientID, reason string) []byte {
	b, _ := json.Marshal(statusPayload{ //nolint:errcheck // Plain struct of strings
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return b
}

// configureLWT sets up the Last Will so the broker marks the gateway
// offline if it vanishes without a clean disconnect.
//
// QoS: 1
// Retained: true (new subscribers see last status)
func configureLWT(opts *pahomqtt.ClientOptions, topic, clientID string) {
	payload := buildStatusPayload("offline", clientID, "unexpected_disconnect")
	opts.SetBinaryWill(topic, payload, statusQoS, true)
}
