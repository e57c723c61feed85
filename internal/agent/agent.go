// Package agent keeps the network association, the broker session and the
// wall clock alive, and publishes telemetry on a fixed interval.
//
// All state is owned by the goroutine that calls Tick. Drivers may run their
// own goroutines but never touch agent state.
package agent

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"siapsuhu/internal/config"
	"siapsuhu/internal/events"
	"siapsuhu/internal/identity"
	"siapsuhu/internal/mqtt"
)

// Policy holds the retry and staleness bounds.
type Policy struct {
	AssociationRetry  time.Duration // minimum spacing of association attempts
	AssociationPoll   time.Duration // sleep between link checks during an attempt
	AssociationPolls  int           // link checks per attempt
	SessionRetryDelay time.Duration // blocking delay after a failed broker connect
	SyncMaxAge        time.Duration // resync once the last sync is this old
	SyncTimeout       time.Duration // bound on one time sync
}

// DefaultPolicy returns the bounds the agent was designed around.
func DefaultPolicy() Policy {
	return Policy{
		AssociationRetry:  2 * time.Second,
		AssociationPoll:   500 * time.Millisecond,
		AssociationPolls:  20,
		SessionRetryDelay: 2 * time.Second,
		SyncMaxAge:        time.Hour,
		SyncTimeout:       5 * time.Second,
	}
}

// Options configures an Agent.
type Options struct {
	DeviceID identity.DeviceID
	Firmware string

	WiFiSSID     string
	WiFiPassword string

	MQTTHost    string
	MQTTPort    int
	Credentials *config.Credentials // nil connects without credentials

	TelemetryInterval time.Duration

	Link       NetworkLink
	Transport  Transport
	Sensor     Sensor
	TimeSource TimeSource
	Clock      Clock

	// Discovery messages are published after "online" on every new session.
	Discovery []mqtt.Message

	Logger *log.Logger
	Events EventRecorder

	// Policy overrides DefaultPolicy when non-zero.
	Policy Policy
}

// Agent is one telemetry device. Several agents can share a process as long
// as each has its own collaborators.
type Agent struct {
	id          identity.DeviceID
	topics      identity.Topics
	firmware    string
	ssid        string
	password    string
	host        string
	port        int
	creds       *config.Credentials
	interval    time.Duration
	policy      Policy
	discovery   []mqtt.Message
	link        NetworkLink
	transport   Transport
	sensor      Sensor
	timeSource  TimeSource
	clock       Clock
	logger      *log.Logger
	events      EventRecorder
	network     ConnectionState
	session     ConnectionState
	association retryTimer
	timeSync    timeSyncState
	lastPublish time.Duration
	counters    Counters
	status      atomic.Pointer[Status]
}

// New validates opts and creates an Agent. Nothing is touched until Setup.
func New(opts Options) (*Agent, error) {
	if opts.DeviceID == "" {
		return nil, errors.New("device ID is required")
	}
	if opts.Link == nil || opts.Transport == nil || opts.Sensor == nil || opts.TimeSource == nil || opts.Clock == nil {
		return nil, errors.New("link, transport, sensor, time source and clock are required")
	}
	if opts.TelemetryInterval <= 0 {
		return nil, errors.New("telemetry interval must be positive")
	}

	policy := opts.Policy
	if policy == (Policy{}) {
		policy = DefaultPolicy()
	}

	a := &Agent{
		id:         opts.DeviceID,
		topics:     identity.NewTopics(opts.DeviceID),
		firmware:   opts.Firmware,
		ssid:       opts.WiFiSSID,
		password:   opts.WiFiPassword,
		host:       opts.MQTTHost,
		port:       opts.MQTTPort,
		creds:      opts.Credentials,
		interval:   opts.TelemetryInterval,
		policy:     policy,
		discovery:  opts.Discovery,
		link:       opts.Link,
		transport:  opts.Transport,
		sensor:     opts.Sensor,
		timeSource: opts.TimeSource,
		clock:      opts.Clock,
		logger:     opts.Logger,
		events:     opts.Events,
	}
	a.association.minInterval = policy.AssociationRetry
	a.publishStatus(0)
	return a, nil
}

// Topics returns the per-device topics.
func (a *Agent) Topics() identity.Topics {
	return a.topics
}

// Setup prepares the drivers and makes one pass at association, time sync
// and session, in that order. Failures are logged; Setup never aborts.
func (a *Agent) Setup(ctx context.Context) {
	a.logf("[Agent] Device %s, firmware %s", a.id, a.firmware)
	a.logf("[Agent] Telemetry topic %s, status topic %s", a.topics.Telemetry(), a.topics.Status())

	if err := a.link.SetStationMode(); err != nil {
		a.logf("[WiFi] Failed to enable station mode: %v", err)
	}
	if err := a.link.DisablePowerSave(); err != nil {
		a.logf("[WiFi] Failed to disable power save: %v", err)
	}
	if err := a.sensor.Begin(); err != nil {
		a.logf("[Sensor] Init failed, reads will retry: %v", err)
	}

	now := a.clock.Now()
	a.ensureAssociation(ctx, now)
	a.syncIfNeeded(ctx, now)
	a.ensureSession(ctx, now)
	a.publishStatus(now)
}

// Tick services every tracker once against a single clock reading. It never
// fails; every error is logged and retried on a later tick.
func (a *Agent) Tick(ctx context.Context) {
	now := a.clock.Now()

	a.ensureAssociation(ctx, now)
	a.ensureSession(ctx, now)
	a.transport.Poll()
	a.syncIfNeeded(ctx, now)
	a.publishIfDue(ctx, now)

	a.publishStatus(now)
}

// Shutdown announces "offline" on the status topic if the session is up and
// closes the transport.
func (a *Agent) Shutdown(ctx context.Context) {
	if a.transport.Connected() {
		msg := mqtt.Message{
			Topic:   a.topics.Status(),
			Payload: []byte(statusOffline),
			QoS:     mqtt.AtLeastOnce,
		}
		if err := a.transport.Publish(msg); err != nil {
			a.logf("[MQTT] Failed to publish offline status: %v", err)
		} else {
			a.record(events.EventMQTTOffline, true, "shutdown")
		}
	}

	a.transport.Stop()
	a.session = Disconnected
	a.publishStatus(a.clock.Now())
	a.logf("[Agent] Stopped")
}

func (a *Agent) logf(format string, args ...interface{}) {
	if a.logger != nil {
		a.logger.Printf(format, args...)
	}
}

// record journals an event; journal failures are only logged.
func (a *Agent) record(eventType events.EventType, success bool, details string) {
	if a.events == nil {
		return
	}
	if err := a.events.Add(eventType, success, details); err != nil {
		a.logf("[Journal] Failed to record %s: %v", eventType, err)
	}
}
