package mqtt

import (
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-agent/internal/device"
	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/config"
)

// fixedTime is the clock used by test clients.
var fixedTime = time.UnixMilli(1700000000123)

// transportCall is one operation handed to fakeTransport.
type transportCall struct {
	op       string
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeTransport records operations instead of talking to a broker.
type fakeTransport struct {
	mu          sync.Mutex
	opts        TransportOptions
	emit        func(Event)
	calls       []transportCall
	connects    int
	disconnects int
	seq         MessageID

	connectErr    error
	disconnectErr error
	publishErr    error
}

func (f *fakeTransport) factory(opts TransportOptions, emit func(Event)) (Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opts = opts
	f.emit = emit
	return f, nil
}

func (f *fakeTransport) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return f.connectErr
}

func (f *fakeTransport) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	return f.disconnectErr
}

func (f *fakeTransport) Publish(topic string, qos byte, retained bool, payload []byte) (MessageID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return 0, f.publishErr
	}
	return f.record(transportCall{op: "publish", topic: topic, qos: qos, retained: retained, payload: payload}), nil
}

func (f *fakeTransport) Subscribe(filter string, qos byte) (MessageID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record(transportCall{op: "subscribe", topic: filter, qos: qos}), nil
}

func (f *fakeTransport) Unsubscribe(filter string) (MessageID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record(transportCall{op: "unsubscribe", topic: filter}), nil
}

func (f *fakeTransport) record(c transportCall) MessageID {
	f.calls = append(f.calls, c)
	f.seq++
	return f.seq
}

// Calls returns a copy of the recorded operations.
func (f *fakeTransport) Calls() []transportCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]transportCall, len(f.calls))
	copy(out, f.calls)
	return out
}

func testMQTTConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			URI:             "mqtt://127.0.0.1:1883",
			ProtocolVersion: config.ProtocolV311,
			KeepAlive:       30,
		},
		Reconnect: config.MQTTReconnectConfig{
			AutoReconnect: true,
			InitialDelay:  1,
			MaxDelay:      5,
		},
	}
}

func testIdentity() device.Identity {
	return device.Identity{ID: "ESP32_001", Name: "Hall sensor", Type: "sensor"}
}

// newTestClient returns a client wired to a fake transport.
func newTestClient(t *testing.T) (*Client, *fakeTransport) {
	t.Helper()
	fake := &fakeTransport{}
	client, err := New(testMQTTConfig(), testIdentity(),
		WithTransportFactory(fake.factory),
		WithClock(func() time.Time { return fixedTime }),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client, fake
}

// newConnectedClient returns a started client that has seen one Connected event,
// with the recorded setup calls cleared.
func newConnectedClient(t *testing.T) (*Client, *fakeTransport) {
	t.Helper()
	client, fake := newTestClient(t)
	if err := client.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !client.markConnected() {
		t.Fatal("markConnected() = false, want true")
	}
	return client, fake
}
