package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"siapsuhu/internal/events"
	"siapsuhu/internal/mqtt"
)

const (
	statusOnline  = "online"
	statusOffline = "offline"
)

// ensureSession opens a broker session when the network is up and none is
// live. The will is staged before every connect so an unclean drop of any
// session is announced as "offline".
func (a *Agent) ensureSession(ctx context.Context, now time.Duration) {
	if a.transport.Connected() {
		if a.session != Connected {
			// Session completed outside our own connect call
			a.sessionUp()
		}
		return
	}

	if a.session == Connected {
		a.session = Disconnected
		a.logf("[MQTT] Session lost")
		a.record(events.EventMQTTFailed, false, "session lost")
	}

	if a.network != Connected {
		return
	}

	a.session = Connecting
	a.counters.SessionAttempts++
	a.logf("[MQTT] Connecting to broker %s:%d", a.host, a.port)

	a.transport.Stop()
	a.transport.SetID(a.id.ClientID())
	a.transport.SetCredentials(a.creds)
	a.transport.SetCleanSession(true)
	a.transport.SetWill(mqtt.Message{
		Topic:   a.topics.Status(),
		Payload: []byte(statusOffline),
		QoS:     mqtt.AtLeastOnce,
	})

	if err := a.transport.Connect(ctx, a.host, a.port); err != nil {
		code := mqtt.CodeRefused
		var ce *mqtt.ConnectError
		if errors.As(err, &ce) {
			code = ce.Code
		}
		a.session = Disconnected
		a.logf("[MQTT] Connect failed, code %d: %v", code, err)
		a.record(events.EventMQTTFailed, false, fmt.Sprintf("code %d", code))
		a.clock.Sleep(a.policy.SessionRetryDelay)
		return
	}

	a.sessionUp()
}

// sessionUp marks the session live and announces presence, then discovery.
func (a *Agent) sessionUp() {
	a.session = Connected
	a.logf("[MQTT] Connected")
	a.record(events.EventMQTTConnected, true, a.id.ClientID())

	online := mqtt.Message{
		Topic:   a.topics.Status(),
		Payload: []byte(statusOnline),
		QoS:     mqtt.AtLeastOnce,
	}
	if err := a.transport.Publish(online); err != nil {
		a.logf("[MQTT] Failed to publish online status: %v", err)
	}

	for _, msg := range a.discovery {
		if err := a.transport.Publish(msg); err != nil {
			a.logf("[MQTT] Failed to publish discovery config %s: %v", msg.Topic, err)
		}
	}
}
