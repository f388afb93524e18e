package mqtt

import (
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Protocol version numbers as carried in CONNECT.
const (
	protocolVersion311 = 4
	protocolVersion5   = 5
)

// disconnectQuiesce is the time paho waits for in-flight work on disconnect, in milliseconds.
const disconnectQuiesce = 1000

// subackFailure is the SUBACK return code for a rejected subscription.
const subackFailure = 0x80

// pahoTransport adapts paho.mqtt.golang (MQTT 3.1.1) to Transport.
//
// paho tokens complete asynchronously; each operation gets a goroutine that
// waits on the token and turns the outcome into an Event.
type pahoTransport struct {
	client pahomqtt.Client
	emit   func(Event)
	seq    atomic.Uint32
}

func newPahoTransport(opts TransportOptions, emit func(Event)) (Transport, error) {
	t := &pahoTransport{emit: emit}
	t.client = pahomqtt.NewClient(t.clientOptions(opts))
	return t, nil
}

// clientOptions maps TransportOptions onto paho options.
func (t *pahoTransport) clientOptions(opts TransportOptions) *pahomqtt.ClientOptions {
	o := pahomqtt.NewClientOptions()
	o.AddBroker(opts.BrokerURL.String())
	o.SetClientID(opts.ClientID)
	o.SetProtocolVersion(protocolVersion311)

	if opts.Username != "" {
		o.SetUsername(opts.Username)
		o.SetPassword(opts.Password)
	}
	if opts.TLSConfig != nil {
		o.SetTLSConfig(opts.TLSConfig)
	}

	// Clean session: the command topic is re-subscribed on every connect.
	o.SetCleanSession(true)
	o.SetResumeSubs(false)

	o.SetAutoReconnect(opts.AutoReconnect)
	o.SetConnectRetry(opts.AutoReconnect)
	o.SetConnectRetryInterval(opts.ConnectRetryInterval)
	o.SetMaxReconnectInterval(opts.MaxReconnectInterval)
	o.SetConnectTimeout(opts.ConnectTimeout)
	o.SetKeepAlive(opts.KeepAlive)

	if opts.Will.Topic != "" {
		o.SetBinaryWill(opts.Will.Topic, opts.Will.Payload, opts.Will.QoS, opts.Will.Retained)
	}

	o.SetOnConnectHandler(func(_ pahomqtt.Client) {
		t.emit(Event{Type: EventConnected})
	})
	o.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		t.emit(Event{Type: EventDisconnected, Err: err})
	})

	// Subscriptions are made with a nil callback so every message lands here.
	o.SetDefaultPublishHandler(func(_ pahomqtt.Client, msg pahomqtt.Message) {
		payload := make([]byte, len(msg.Payload()))
		copy(payload, msg.Payload())
		t.emit(Event{Type: EventData, Topic: msg.Topic(), Payload: payload})
	})

	return o
}

func (t *pahoTransport) Connect() error {
	token := t.client.Connect()
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			t.emit(Event{Type: EventError, Err: err})
			return
		}
		if ct, ok := token.(*pahomqtt.ConnectToken); ok && ct.ReturnCode() != 0 {
			t.emit(Event{Type: EventError, Err: &protocolError{Op: "connect", Reason: ct.ReturnCode()}})
		}
	}()
	return nil
}

func (t *pahoTransport) Disconnect() error {
	t.client.Disconnect(disconnectQuiesce)
	return nil
}

func (t *pahoTransport) Publish(topic string, qos byte, retained bool, payload []byte) (MessageID, error) {
	return t.track(EventPublished, t.client.Publish(topic, qos, retained, payload))
}

func (t *pahoTransport) Subscribe(filter string, qos byte) (MessageID, error) {
	return t.track(EventSubscribed, t.client.Subscribe(filter, qos, nil))
}

func (t *pahoTransport) Unsubscribe(filter string) (MessageID, error) {
	return t.track(EventUnsubscribed, t.client.Unsubscribe(filter))
}

// track assigns an ID to the operation and reports its outcome as an event.
//
// A token that has already failed (paho fails fast when offline) is
// returned as an error instead.
func (t *pahoTransport) track(ack EventType, token pahomqtt.Token) (MessageID, error) {
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return 0, err
		}
	default:
	}

	id := MessageID(t.seq.Add(1))
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			t.emit(Event{Type: EventError, MessageID: id, Err: err})
			return
		}
		if st, ok := token.(*pahomqtt.SubscribeToken); ok {
			for _, code := range st.Result() {
				if code == subackFailure {
					t.emit(Event{Type: EventError, MessageID: id, Err: &protocolError{Op: "subscribe", Reason: code}})
					return
				}
			}
		}
		t.emit(Event{Type: ack, MessageID: id})
	}()
	return id, nil
}
