package mqtt

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
)

const (
	// paho5QueueSize bounds operations waiting for the v5 worker.
	paho5QueueSize = 64

	// paho5OpTimeout bounds a single publish/subscribe round trip.
	paho5OpTimeout = 10 * time.Second

	// paho5DisconnectTimeout bounds the DISCONNECT handshake.
	paho5DisconnectTimeout = 3 * time.Second
)

type paho5OpKind int

const (
	paho5Publish paho5OpKind = iota
	paho5Subscribe
	paho5Unsubscribe
)

type paho5Op struct {
	kind     paho5OpKind
	id       MessageID
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// paho5Transport adapts paho.golang autopaho (MQTT 5) to Transport.
//
// autopaho calls block until the broker acknowledges, so operations are
// queued to a single worker which preserves submission order and reports
// outcomes as events.
type paho5Transport struct {
	cfg  autopaho.ClientConfig
	emit func(Event)
	seq  atomic.Uint32

	mu     sync.Mutex
	cm     *autopaho.ConnectionManager
	cancel context.CancelFunc
	ops    chan paho5Op
	quit   chan struct{}
	wg     sync.WaitGroup
}

func newPaho5Transport(opts TransportOptions, emit func(Event)) (Transport, error) {
	if opts.KeepAlive > time.Duration(^uint16(0))*time.Second {
		return nil, fmt.Errorf("keepalive %v exceeds protocol maximum", opts.KeepAlive)
	}

	t := &paho5Transport{emit: emit}

	t.cfg = autopaho.ClientConfig{
		BrokerUrls:        []*url.URL{opts.BrokerURL},
		TlsCfg:            opts.TLSConfig,
		KeepAlive:         uint16(opts.KeepAlive / time.Second),
		ConnectRetryDelay: opts.ConnectRetryInterval,
		ConnectTimeout:    opts.ConnectTimeout,
		OnConnectionUp: func(_ *autopaho.ConnectionManager, _ *paho.Connack) {
			t.emit(Event{Type: EventConnected})
		},
		OnConnectError: func(err error) {
			t.emit(Event{Type: EventError, Err: err})
		},
		ClientConfig: paho.ClientConfig{
			ClientID: opts.ClientID,
			Router: paho.NewSingleHandlerRouter(func(p *paho.Publish) {
				payload := make([]byte, len(p.Payload))
				copy(payload, p.Payload)
				t.emit(Event{Type: EventData, Topic: p.Topic, Payload: payload})
			}),
			OnServerDisconnect: func(d *paho.Disconnect) {
				t.emit(Event{Type: EventDisconnected, Err: &protocolError{Op: "server disconnect", Reason: d.ReasonCode}})
			},
			OnClientError: func(err error) {
				t.emit(Event{Type: EventDisconnected, Err: err})
			},
		},
	}
	if opts.Username != "" {
		t.cfg.SetUsernamePassword(opts.Username, []byte(opts.Password))
	}
	if opts.Will.Topic != "" {
		t.cfg.SetWillMessage(opts.Will.Topic, opts.Will.Payload, opts.Will.QoS, opts.Will.Retained)
	}

	return t, nil
}

// Connect starts the autopaho connection manager, which keeps reconnecting
// until Disconnect.
func (t *paho5Transport) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cm != nil {
		return errors.New("already connected")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cm, err := autopaho.NewConnection(ctx, t.cfg)
	if err != nil {
		cancel()
		return err
	}

	t.cm = cm
	t.cancel = cancel
	t.ops = make(chan paho5Op, paho5QueueSize)
	t.quit = make(chan struct{})

	t.wg.Add(1)
	go t.worker(cm, t.ops, t.quit)
	return nil
}

// Disconnect flushes queued operations, then sends DISCONNECT.
func (t *paho5Transport) Disconnect() error {
	t.mu.Lock()
	cm, cancel, quit := t.cm, t.cancel, t.quit
	t.cm, t.cancel, t.ops, t.quit = nil, nil, nil, nil
	t.mu.Unlock()

	if cm == nil {
		return nil
	}

	close(quit)
	t.wg.Wait()

	ctx, done := context.WithTimeout(context.Background(), paho5DisconnectTimeout)
	defer done()
	err := cm.Disconnect(ctx)
	cancel()
	return err
}

func (t *paho5Transport) Publish(topic string, qos byte, retained bool, payload []byte) (MessageID, error) {
	return t.enqueue(paho5Op{kind: paho5Publish, topic: topic, qos: qos, retained: retained, payload: payload})
}

func (t *paho5Transport) Subscribe(filter string, qos byte) (MessageID, error) {
	return t.enqueue(paho5Op{kind: paho5Subscribe, topic: filter, qos: qos})
}

func (t *paho5Transport) Unsubscribe(filter string) (MessageID, error) {
	return t.enqueue(paho5Op{kind: paho5Unsubscribe, topic: filter})
}

func (t *paho5Transport) enqueue(op paho5Op) (MessageID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ops == nil {
		return 0, ErrNotConnected
	}

	op.id = MessageID(t.seq.Add(1))
	select {
	case t.ops <- op:
		return op.id, nil
	default:
		return 0, ErrQueueFull
	}
}

// worker executes queued operations in order until quit is closed, then
// drains whatever is still queued.
func (t *paho5Transport) worker(cm *autopaho.ConnectionManager, ops <-chan paho5Op, quit <-chan struct{}) {
	defer t.wg.Done()

	for {
		select {
		case op := <-ops:
			t.exec(cm, op)
		case <-quit:
			for {
				select {
				case op := <-ops:
					t.exec(cm, op)
				default:
					return
				}
			}
		}
	}
}

func (t *paho5Transport) exec(cm *autopaho.ConnectionManager, op paho5Op) {
	ctx, cancel := context.WithTimeout(context.Background(), paho5OpTimeout)
	defer cancel()

	var (
		ack EventType
		err error
	)
	switch op.kind {
	case paho5Publish:
		ack = EventPublished
		_, err = cm.Publish(ctx, &paho.Publish{
			Topic:   op.topic,
			QoS:     op.qos,
			Retain:  op.retained,
			Payload: op.payload,
		})
	case paho5Subscribe:
		ack = EventSubscribed
		var suback *paho.Suback
		suback, err = cm.Subscribe(ctx, &paho.Subscribe{
			Subscriptions: map[string]paho.SubscribeOptions{
				op.topic: {QoS: op.qos},
			},
		})
		if err == nil && suback != nil {
			for _, reason := range suback.Reasons {
				if reason >= subackFailure {
					err = &protocolError{Op: "subscribe", Reason: reason}
					break
				}
			}
		}
	case paho5Unsubscribe:
		ack = EventUnsubscribed
		_, err = cm.Unsubscribe(ctx, &paho.Unsubscribe{Topics: []string{op.topic}})
	}

	if err != nil {
		t.emit(Event{Type: EventError, MessageID: op.id, Err: err})
		return
	}
	t.emit(Event{Type: ack, MessageID: op.id})
}
