package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
	"time"
)

// MessageID identifies an operation handed to the transport.
//
// IDs are assigned by the transport and are only meaningful for correlating
// the acknowledgement events that follow.
type MessageID uint32

// EventType enumerates the transport lifecycle events.
type EventType int

// Transport event types.
const (
	EventConnected EventType = iota + 1
	EventDisconnected
	EventSubscribed
	EventUnsubscribed
	EventPublished
	EventData
	EventError
)

// String returns the event name used in logs.
func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventSubscribed:
		return "subscribed"
	case EventUnsubscribed:
		return "unsubscribed"
	case EventPublished:
		return "published"
	case EventData:
		return "data"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is a notification from the transport.
//
// Only the fields relevant to Type are set: MessageID for acknowledgements,
// Topic and Payload for EventData, Err for EventError and (optionally)
// EventDisconnected.
type Event struct {
	Type      EventType
	MessageID MessageID
	Topic     string
	Payload   []byte
	Err       error
}

// Transport is the MQTT wire implementation seen by the Client.
//
// Every method returns without waiting for the broker. Outcomes arrive later
// as Events through the emit function given to the TransportFactory.
type Transport interface {
	// Connect begins connecting in the background. Reconnection after a lost
	// connection is the transport's responsibility.
	Connect() error

	// Disconnect closes the connection and stops reconnecting.
	Disconnect() error

	Publish(topic string, qos byte, retained bool, payload []byte) (MessageID, error)
	Subscribe(filter string, qos byte) (MessageID, error)
	Unsubscribe(filter string) (MessageID, error)
}

// Will is the last-will message registered with the broker at connect time.
type Will struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// TransportOptions are the connection parameters handed to a TransportFactory.
type TransportOptions struct {
	BrokerURL *url.URL

	// ClientID is the device ID.
	ClientID string

	// ProtocolVersion is 4 for MQTT 3.1.1 or 5 for MQTT 5.
	ProtocolVersion uint

	Username string
	Password string

	// TLSConfig is nil for plaintext schemes.
	TLSConfig *tls.Config

	KeepAlive            time.Duration
	ConnectTimeout       time.Duration
	ConnectRetryInterval time.Duration
	MaxReconnectInterval time.Duration
	AutoReconnect        bool

	Will Will
}

// TransportFactory constructs a Transport. The transport must deliver every
// event through emit; emit may block until the event is consumed.
type TransportFactory func(opts TransportOptions, emit func(Event)) (Transport, error)

// DefaultTransportFactory selects the paho client matching the protocol version.
func DefaultTransportFactory(opts TransportOptions, emit func(Event)) (Transport, error) {
	switch opts.ProtocolVersion {
	case protocolVersion5:
		return newPaho5Transport(opts, emit)
	case protocolVersion311:
		return newPahoTransport(opts, emit)
	default:
		return nil, fmt.Errorf("unsupported protocol version %d", opts.ProtocolVersion)
	}
}

// Error kinds assigned by classifyError.
const (
	KindTransport = "transport"
	KindTLS       = "tls"
	KindSocket    = "socket"
	KindProtocol  = "protocol"
)

// TransportError is an asynchronous transport failure with its category.
type TransportError struct {
	Kind string
	Err  error

	// Errno is set for socket-level failures.
	Errno syscall.Errno
}

func (e *TransportError) Error() string {
	if e.Errno != 0 {
		return fmt.Sprintf("%s error (errno %d): %v", e.Kind, int(e.Errno), e.Err)
	}
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

// Unwrap exposes both ErrTransport and the underlying cause to errors.Is.
func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

// classifyError assigns a Kind to a transport failure.
func classifyError(err error) *TransportError {
	var te *TransportError
	if errors.As(err, &te) {
		return te
	}

	var (
		recordErr  tls.RecordHeaderError
		alertErr   tls.AlertError
		certErr    *tls.CertificateVerificationError
		unknownCA  x509.UnknownAuthorityError
		hostErr    x509.HostnameError
		invalidErr x509.CertificateInvalidError
	)
	switch {
	case errors.As(err, &recordErr), errors.As(err, &alertErr), errors.As(err, &certErr),
		errors.As(err, &unknownCA), errors.As(err, &hostErr), errors.As(err, &invalidErr):
		return &TransportError{Kind: KindTLS, Err: err}
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return &TransportError{Kind: KindSocket, Err: err, Errno: errno}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &TransportError{Kind: KindSocket, Err: err}
	}

	var protoErr *protocolError
	if errors.As(err, &protoErr) {
		return &TransportError{Kind: KindProtocol, Err: err}
	}

	return &TransportError{Kind: KindTransport, Err: err}
}

// protocolError is a broker-side refusal (bad CONNACK/SUBACK reason code).
type protocolError struct {
	Op     string
	Reason byte
}

func (e *protocolError) Error() string {
	return fmt.Sprintf("%s refused by broker (reason code %d)", e.Op, e.Reason)
}
