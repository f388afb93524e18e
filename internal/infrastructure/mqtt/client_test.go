package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-agent/internal/device"
	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/config"
)

// =============================================================================
// Configuration Tests
// =============================================================================

func TestNew_TransportOptions(t *testing.T) {
	_, fake := newTestClient(t)

	opts := fake.opts
	if opts.ClientID != "ESP32_001" {
		t.Errorf("ClientID = %q, want %q", opts.ClientID, "ESP32_001")
	}
	if opts.ProtocolVersion != protocolVersion311 {
		t.Errorf("ProtocolVersion = %d, want %d", opts.ProtocolVersion, protocolVersion311)
	}
	if opts.TLSConfig != nil {
		t.Error("TLSConfig set for mqtt:// scheme")
	}
	if opts.Will.Topic != "device/ESP32_001/status" {
		t.Errorf("Will.Topic = %q, want status topic", opts.Will.Topic)
	}
	if string(opts.Will.Payload) != `{"device_id":"ESP32_001","status":"offline"}` {
		t.Errorf("Will.Payload = %s", opts.Will.Payload)
	}
	if opts.Will.QoS != 1 || !opts.Will.Retained {
		t.Errorf("Will QoS/Retained = %d/%v, want 1/true", opts.Will.QoS, opts.Will.Retained)
	}
}

func TestNew_SecureSchemeEnablesTLS(t *testing.T) {
	cfg := testMQTTConfig()
	cfg.Broker.URI = "mqtts://broker.example.com:8883"
	cfg.Broker.ProtocolVersion = config.ProtocolV5

	fake := &fakeTransport{}
	if _, err := New(cfg, testIdentity(), WithTransportFactory(fake.factory)); err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if fake.opts.TLSConfig == nil {
		t.Fatal("TLSConfig = nil, want TLS for mqtts://")
	}
	if fake.opts.TLSConfig.ServerName != "broker.example.com" {
		t.Errorf("ServerName = %q, want broker.example.com", fake.opts.TLSConfig.ServerName)
	}
	if fake.opts.ProtocolVersion != protocolVersion5 {
		t.Errorf("ProtocolVersion = %d, want 5", fake.opts.ProtocolVersion)
	}
}

func TestNew_ConfigErrors(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*config.MQTTConfig)
		identity device.Identity
	}{
		{name: "empty device id", identity: device.Identity{}},
		{name: "wildcard device id", identity: device.Identity{ID: "dev/#"}},
		{name: "missing uri", identity: testIdentity(), mutate: func(c *config.MQTTConfig) { c.Broker.URI = "" }},
		{name: "unsupported scheme", identity: testIdentity(), mutate: func(c *config.MQTTConfig) { c.Broker.URI = "http://broker:80" }},
		{name: "unsupported protocol", identity: testIdentity(), mutate: func(c *config.MQTTConfig) { c.Broker.ProtocolVersion = "3.1" }},
		{name: "missing CA file", identity: testIdentity(), mutate: func(c *config.MQTTConfig) {
			c.Broker.URI = "mqtts://broker:8883"
			c.Broker.TLS.CAFile = "/nonexistent/ca.pem"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testMQTTConfig()
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			fake := &fakeTransport{}

			_, err := New(cfg, tt.identity, WithTransportFactory(fake.factory))
			if !errors.Is(err, ErrConfig) {
				t.Errorf("New() error = %v, want ErrConfig", err)
			}
		})
	}
}

func TestNew_FactoryError(t *testing.T) {
	boom := errors.New("boom")
	_, err := New(testMQTTConfig(), testIdentity(), WithTransportFactory(
		func(TransportOptions, func(Event)) (Transport, error) { return nil, boom },
	))
	if !errors.Is(err, ErrConfig) || !errors.Is(err, boom) {
		t.Errorf("New() error = %v, want ErrConfig wrapping cause", err)
	}
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func TestStart(t *testing.T) {
	client, fake := newTestClient(t)

	if err := client.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if fake.connects != 1 {
		t.Errorf("transport connects = %d, want 1", fake.connects)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true before Connected event")
	}

	if err := client.Start(); !errors.Is(err, ErrStart) {
		t.Errorf("second Start() error = %v, want ErrStart", err)
	}
}

func TestStart_TransportRefuses(t *testing.T) {
	client, fake := newTestClient(t)
	fake.connectErr = errors.New("no route")

	if err := client.Start(); !errors.Is(err, ErrStart) {
		t.Errorf("Start() error = %v, want ErrStart", err)
	}
}

func TestStart_AfterStop(t *testing.T) {
	client, _ := newTestClient(t)

	if err := client.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := client.Start(); !errors.Is(err, ErrStart) {
		t.Errorf("Start() after Stop error = %v, want ErrStart", err)
	}
}

func TestStop_PublishesRetainedOffline(t *testing.T) {
	client, fake := newConnectedClient(t)

	if err := client.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	calls := fake.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %+v, want one offline publish", calls)
	}
	if calls[0].topic != "device/ESP32_001/status" || !calls[0].retained || calls[0].qos != 1 {
		t.Errorf("offline publish = %+v, want retained QoS 1 on status topic", calls[0])
	}

	var env StatusEnvelope
	if err := json.Unmarshal(calls[0].payload, &env); err != nil {
		t.Fatalf("offline payload: %v", err)
	}
	if env.Status != StatusOffline || env.DeviceID != "ESP32_001" {
		t.Errorf("offline envelope = %+v", env)
	}
	if fake.disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", fake.disconnects)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Stop")
	}
}

func TestStop_Idempotent(t *testing.T) {
	client, fake := newConnectedClient(t)

	for i := 0; i < 3; i++ {
		if err := client.Stop(); err != nil {
			t.Fatalf("Stop() #%d error = %v", i+1, err)
		}
	}
	if fake.disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", fake.disconnects)
	}

	select {
	case <-client.Done():
	default:
		t.Error("Done() not closed after Stop")
	}
}

// Stop races with in-flight publishes; afterwards every publish must fail
// fast and nothing may reach the transport after the offline status.
func TestStop_ConcurrentWithPublish(t *testing.T) {
	const (
		rounds     = 200
		publishers = 4
	)

	for round := 0; round < rounds; round++ {
		client, fake := newConnectedClient(t)

		var (
			wg      sync.WaitGroup
			start   = make(chan struct{})
			errsMu  sync.Mutex
			badErrs []error
		)
		for i := 0; i < publishers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for j := 0; j < 20; j++ {
					_, err := client.ReportProperties([]byte(`{"temp":21.5}`))
					if err != nil && !errors.Is(err, ErrNotConnected) {
						errsMu.Lock()
						badErrs = append(badErrs, err)
						errsMu.Unlock()
					}
				}
			}()
		}

		close(start)
		if err := client.Stop(); err != nil {
			t.Fatalf("round %d: Stop() error = %v", round, err)
		}
		wg.Wait()

		if len(badErrs) > 0 {
			t.Fatalf("round %d: ReportProperties() errors = %v, want nil or ErrNotConnected", round, badErrs)
		}
		if _, err := client.ReportProperties([]byte(`{}`)); !errors.Is(err, ErrNotConnected) {
			t.Fatalf("round %d: ReportProperties() after Stop error = %v, want ErrNotConnected", round, err)
		}
		if _, err := client.Subscribe("device/ESP32_001/command", 1); !errors.Is(err, ErrNotConnected) {
			t.Fatalf("round %d: Subscribe() after Stop error = %v, want ErrNotConnected", round, err)
		}

		calls := fake.Calls()
		if len(calls) == 0 {
			t.Fatalf("round %d: no calls recorded, want offline status", round)
		}
		last := calls[len(calls)-1]
		if last.topic != "device/ESP32_001/status" || !last.retained {
			t.Fatalf("round %d: last call = %+v, want retained offline status", round, last)
		}
	}
}

func TestStop_DisconnectedSkipsOffline(t *testing.T) {
	client, fake := newTestClient(t)
	_ = client.Start()

	if err := client.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if calls := fake.Calls(); len(calls) != 0 {
		t.Errorf("calls = %+v, want none while disconnected", calls)
	}
}

func TestStop_TransportFailure(t *testing.T) {
	client, fake := newConnectedClient(t)
	fake.disconnectErr = errors.New("socket closed")

	if err := client.Stop(); !errors.Is(err, ErrStop) {
		t.Errorf("Stop() error = %v, want ErrStop", err)
	}
	if _, err := client.Publish("device/ESP32_001/status", nil, 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() after failed Stop error = %v, want ErrNotConnected", err)
	}
}

func TestHealthCheck(t *testing.T) {
	client, _ := newTestClient(t)

	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() disconnected error = %v, want ErrNotConnected", err)
	}

	client.markConnected()
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() connected error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() cancelled error = %v, want context.Canceled", err)
	}
}

// =============================================================================
// Publish / Subscribe Tests
// =============================================================================

func TestPublish_NotConnected(t *testing.T) {
	client, fake := newTestClient(t)
	_ = client.Start()

	if _, err := client.Publish("device/ESP32_001/status", []byte(`{}`), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
	if _, err := client.Subscribe("device/ESP32_001/command", 1); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}
	if _, err := client.ReportStatus([]byte(`{}`)); !errors.Is(err, ErrNotConnected) {
		t.Errorf("ReportStatus() error = %v, want ErrNotConnected", err)
	}
	if _, err := client.ReportProperties([]byte(`{}`)); !errors.Is(err, ErrNotConnected) {
		t.Errorf("ReportProperties() error = %v, want ErrNotConnected", err)
	}
	if _, err := client.ReplyCommand("c1", 0, "ok"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("ReplyCommand() error = %v, want ErrNotConnected", err)
	}
	if calls := fake.Calls(); len(calls) != 0 {
		t.Errorf("transport saw %d calls while disconnected, want 0", len(calls))
	}
}

func TestPublish_Validation(t *testing.T) {
	client, _ := newConnectedClient(t)

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{name: "empty topic", topic: "", qos: 1, wantErr: ErrInvalidTopic},
		{name: "wildcard topic", topic: "device/+/status", qos: 1, wantErr: ErrInvalidTopic},
		{name: "qos 3", topic: "a/b", qos: 3, wantErr: ErrInvalidQoS},
		{name: "too large", topic: "a/b", qos: 1, payload: make([]byte, MaxPayloadSize+1), wantErr: ErrPayloadTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := client.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if _, err := client.Publish("a/b", make([]byte, MaxPayloadSize), 1, false); err != nil {
		t.Errorf("Publish() at max size error = %v, want nil", err)
	}
}

func TestPublish_ReturnsTransportID(t *testing.T) {
	client, fake := newConnectedClient(t)

	first, err := client.ReportStatus([]byte(`{"status":"online"}`))
	if err != nil {
		t.Fatalf("ReportStatus() error = %v", err)
	}
	second, err := client.ReportProperties([]byte(`{"temp":21.5}`))
	if err != nil {
		t.Fatalf("ReportProperties() error = %v", err)
	}
	if first == second {
		t.Errorf("message ids = %d, %d, want distinct", first, second)
	}

	calls := fake.Calls()
	if calls[0].topic != "device/ESP32_001/status" || calls[0].retained || calls[0].qos != 1 {
		t.Errorf("ReportStatus call = %+v", calls[0])
	}
	if calls[1].topic != "device/ESP32_001/properties" || calls[1].retained || calls[1].qos != 1 {
		t.Errorf("ReportProperties call = %+v", calls[1])
	}
}

func TestPublish_CopiesPayload(t *testing.T) {
	client, fake := newConnectedClient(t)

	buf := []byte("first")
	if _, err := client.Publish("a/b", buf, 0, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	copy(buf, "XXXXX")

	if got := string(fake.Calls()[0].payload); got != "first" {
		t.Errorf("transport payload = %q, want %q", got, "first")
	}
}

func TestPublish_TransportRejects(t *testing.T) {
	client, fake := newConnectedClient(t)
	fake.publishErr = errors.New("queue full")

	if _, err := client.Publish("a/b", nil, 1, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish() error = %v, want ErrPublishFailed", err)
	}
}

func TestReplyCommand_Envelope(t *testing.T) {
	client, fake := newConnectedClient(t)

	if _, err := client.ReplyCommand("cmd-42", 1, `bad "params"`); err != nil {
		t.Fatalf("ReplyCommand() error = %v", err)
	}

	call := fake.Calls()[0]
	if call.topic != "device/ESP32_001/reply" || call.qos != 1 || call.retained {
		t.Errorf("reply call = %+v", call)
	}

	var got map[string]any
	if err := json.Unmarshal(call.payload, &got); err != nil {
		t.Fatalf("reply payload is not JSON: %v (%s)", err, call.payload)
	}
	want := map[string]any{
		"command_id": "cmd-42",
		"result":     float64(1),
		"message":    `bad "params"`,
		"timestamp":  float64(fixedTime.UnixMilli()),
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("reply[%q] = %v, want %v", k, got[k], v)
		}
	}
	if len(got) != len(want) {
		t.Errorf("reply has %d fields, want %d: %s", len(got), len(want), call.payload)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	client, _ := newConnectedClient(t)

	if _, err := client.Subscribe("", 1); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(\"\") error = %v, want ErrInvalidTopic", err)
	}
	if _, err := client.Subscribe("a/#/b", 1); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(a/#/b) error = %v, want ErrInvalidTopic", err)
	}
	if _, err := client.Subscribe("a/b", 5); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe(qos 5) error = %v, want ErrInvalidQoS", err)
	}
	if _, err := client.Subscribe("device/+/command", 1); err != nil {
		t.Errorf("Subscribe(wildcard) error = %v", err)
	}
}

func TestUnsubscribe_WhileDisconnected(t *testing.T) {
	client, fake := newTestClient(t)

	if _, err := client.Unsubscribe("device/ESP32_001/command"); err != nil {
		t.Errorf("Unsubscribe() disconnected error = %v, want nil", err)
	}
	if calls := fake.Calls(); len(calls) != 1 || calls[0].op != "unsubscribe" {
		t.Errorf("calls = %+v, want one unsubscribe", calls)
	}

	_ = client.Stop()
	if _, err := client.Unsubscribe("device/ESP32_001/command"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe() after Stop error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Transport Tests
// =============================================================================

func TestDefaultTransportFactory(t *testing.T) {
	client, err := New(testMQTTConfig(), testIdentity())
	if err != nil {
		t.Fatalf("New() with paho v3 error = %v", err)
	}
	if _, ok := client.transport.(*pahoTransport); !ok {
		t.Errorf("transport = %T, want *pahoTransport", client.transport)
	}

	cfg := testMQTTConfig()
	cfg.Broker.ProtocolVersion = config.ProtocolV5
	client, err = New(cfg, testIdentity())
	if err != nil {
		t.Fatalf("New() with paho v5 error = %v", err)
	}
	if _, ok := client.transport.(*paho5Transport); !ok {
		t.Errorf("transport = %T, want *paho5Transport", client.transport)
	}

	if _, err := DefaultTransportFactory(TransportOptions{ProtocolVersion: 3}, func(Event) {}); err == nil {
		t.Error("DefaultTransportFactory(version 3) error = nil, want error")
	}
}

func TestPahoTransport_PublishOffline(t *testing.T) {
	opts, err := buildTransportOptions(testMQTTConfig(), testIdentity(), TopicSet{Status: "device/ESP32_001/status"})
	if err != nil {
		t.Fatalf("buildTransportOptions() error = %v", err)
	}
	tr, err := newPahoTransport(opts, func(Event) {})
	if err != nil {
		t.Fatalf("newPahoTransport() error = %v", err)
	}

	// paho completes the token immediately with an error when never connected.
	if _, err := tr.Publish("a/b", 1, false, []byte("x")); err == nil {
		t.Error("Publish() on unconnected paho client error = nil, want error")
	}
}

func TestPaho5Transport_NotStarted(t *testing.T) {
	opts, err := buildTransportOptions(testMQTTConfig(), testIdentity(), TopicSet{Status: "device/ESP32_001/status"})
	if err != nil {
		t.Fatalf("buildTransportOptions() error = %v", err)
	}
	tr, err := newPaho5Transport(opts, func(Event) {})
	if err != nil {
		t.Fatalf("newPaho5Transport() error = %v", err)
	}

	if _, err := tr.Publish("a/b", 1, false, nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() before Connect error = %v, want ErrNotConnected", err)
	}
	if err := tr.Disconnect(); err != nil {
		t.Errorf("Disconnect() before Connect error = %v, want nil", err)
	}
}

func TestParseBrokerURI(t *testing.T) {
	tests := []struct {
		uri     string
		wantErr bool
	}{
		{"mqtt://localhost:1883", false},
		{"tcp://10.0.0.1:1883", false},
		{"MQTTS://broker:8883", false},
		{"wss://broker/mqtt", false},
		{"http://broker", true},
		{"localhost:1883", true},
		{"", true},
	}
	for _, tt := range tests {
		_, err := parseBrokerURI(tt.uri)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseBrokerURI(%q) error = %v, wantErr %v", tt.uri, err, tt.wantErr)
		}
	}
}

func TestBuildTransportOptions_Credentials(t *testing.T) {
	cfg := testMQTTConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "device", Password: "secret"}

	opts, err := buildTransportOptions(cfg, testIdentity(), TopicSet{})
	if err != nil {
		t.Fatalf("buildTransportOptions() error = %v", err)
	}
	if opts.Username != "device" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if strings.Contains(opts.BrokerURL.Redacted(), "secret") {
		t.Error("broker URL leaks password")
	}
}
