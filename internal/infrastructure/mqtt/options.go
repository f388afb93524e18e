package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-agent/internal/device"
	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is used when the configuration leaves it unset.
	defaultConnectTimeout = 10 * time.Second

	// defaultKeepAlive is used when the configuration leaves it unset.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// QoSAtLeastOnce is used for every device-protocol message.
	QoSAtLeastOnce byte = 1

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// MaxPayloadSize is the largest payload Publish accepts, in bytes.
// Status and reply envelopes are a few hundred bytes.
const MaxPayloadSize = 4096

// secureSchemes select TLS; the rest are plaintext.
var secureSchemes = map[string]bool{
	"mqtts": true,
	"ssl":   true,
	"tls":   true,
	"wss":   true,
}

var plainSchemes = map[string]bool{
	"mqtt": true,
	"tcp":  true,
	"ws":   true,
}

// buildTransportOptions derives connection parameters from configuration.
//
// It configures:
//   - Broker URL (scheme selects TLS)
//   - Client ID = device ID
//   - Protocol version (3.1.1 or 5)
//   - Authentication credentials (if provided)
//   - Reconnect behaviour
//   - Last will: offline status on the status topic, QoS 1, retained
func buildTransportOptions(cfg config.MQTTConfig, identity device.Identity, topics TopicSet) (TransportOptions, error) {
	brokerURL, err := parseBrokerURI(cfg.Broker.URI)
	if err != nil {
		return TransportOptions{}, err
	}

	version, err := protocolVersion(cfg.Broker.ProtocolVersion)
	if err != nil {
		return TransportOptions{}, err
	}

	opts := TransportOptions{
		BrokerURL:            brokerURL,
		ClientID:             identity.ID,
		ProtocolVersion:      version,
		Username:             cfg.Auth.Username,
		Password:             cfg.Auth.Password,
		KeepAlive:            secondsOr(cfg.Broker.KeepAlive, defaultKeepAlive),
		ConnectTimeout:       secondsOr(cfg.Broker.ConnectTimeout, defaultConnectTimeout),
		ConnectRetryInterval: time.Duration(cfg.Reconnect.InitialDelay) * time.Second,
		MaxReconnectInterval: time.Duration(cfg.Reconnect.MaxDelay) * time.Second,
		AutoReconnect:        cfg.Reconnect.AutoReconnect,
	}

	if secureSchemes[brokerURL.Scheme] {
		tlsCfg, err := buildTLSConfig(cfg.Broker.TLS, brokerURL.Hostname())
		if err != nil {
			return TransportOptions{}, err
		}
		opts.TLSConfig = tlsCfg
	}

	willPayload, err := json.Marshal(StatusEnvelope{DeviceID: identity.ID, Status: StatusOffline})
	if err != nil {
		return TransportOptions{}, fmt.Errorf("encoding last will: %w", err)
	}
	opts.Will = Will{
		Topic:    topics.Status,
		Payload:  willPayload,
		QoS:      QoSAtLeastOnce,
		Retained: true,
	}

	return opts, nil
}

// parseBrokerURI validates the broker address.
func parseBrokerURI(uri string) (*url.URL, error) {
	if uri == "" {
		return nil, fmt.Errorf("broker uri is required")
	}
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parsing broker uri: %w", err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if !secureSchemes[u.Scheme] && !plainSchemes[u.Scheme] {
		return nil, fmt.Errorf("unsupported broker scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("broker uri %q has no host", uri)
	}
	return u, nil
}

// protocolVersion maps the configured version string to its CONNECT number.
func protocolVersion(v string) (uint, error) {
	switch v {
	case "", config.ProtocolV311:
		return protocolVersion311, nil
	case config.ProtocolV5:
		return protocolVersion5, nil
	default:
		return 0, fmt.Errorf("unsupported protocol version %q", v)
	}
}

// buildTLSConfig creates the client TLS configuration.
//
// Without a CA file the system roots are used.
func buildTLSConfig(cfg config.MQTTTLSConfig, serverName string) (*tls.Config, error) {
	tlsCfg := &tls.Config{
		MinVersion:         tlsMinVersion,
		ServerName:         serverName,
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in for bench brokers with self-signed certs
	}

	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.CAFile)
		}
		tlsCfg.RootCAs = pool
	}

	return tlsCfg, nil
}

func secondsOr(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
