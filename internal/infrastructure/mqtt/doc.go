// Package mqtt manages the device's MQTT session.
//
// This package manages:
//   - The single broker connection (MQTT 3.1.1 via paho.mqtt.golang, MQTT 5 via paho.golang autopaho)
//   - Per-device topic naming (device/{id}/status|properties|command|reply)
//   - Last Will and Testament: a retained "offline" status on the status topic
//   - Auto-subscription to the command topic on every (re)connect
//   - Status, property and reply publishing
//
// # Architecture
//
// The transport reports everything asynchronously as Events. The Dispatcher
// is the only consumer of that stream: it updates the Client's connection
// state, performs the per-connection setup, and forwards inbound messages
// to a channel for the command router.
//
//	Transport -> Client.Events() -> Dispatcher -> Inbound() -> command.Router
//	                                    |
//	                                    +-> Subscribe(command), PublishOnline()
//
// Publish, Subscribe and Unsubscribe return a MessageID without waiting for
// the broker. QoS retransmission and reconnection belong to the transport.
//
// # Security Considerations
//
//   - Use an mqtts:// or wss:// broker URI in production
//   - Credentials are validated against the broker ACL
//   - A device should only be granted its own device/{id}/# subtree
//
// # Usage
//
//	client, err := mqtt.New(cfg.MQTT, identity, mqtt.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	dispatcher := mqtt.NewDispatcher(client, log)
//	go dispatcher.Run(ctx)
//
//	if err := client.Start(); err != nil {
//	    return err
//	}
//	defer client.Stop()
//
//	for msg := range dispatcher.Inbound() {
//	    router.Handle(ctx, msg.Topic, msg.Payload)
//	}
package mqtt
