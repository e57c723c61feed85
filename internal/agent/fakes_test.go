package agent

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"time"

	"siapsuhu/internal/config"
	"siapsuhu/internal/events"
	"siapsuhu/internal/identity"
	"siapsuhu/internal/mqtt"
	"siapsuhu/internal/sensor"
)

// trace records calls across all fakes in order.
type trace struct {
	calls []string
}

func (t *trace) add(format string, args ...interface{}) {
	t.calls = append(t.calls, fmt.Sprintf(format, args...))
}

// index returns the position of the first call equal to name, or -1.
func (t *trace) index(name string) int {
	for i, c := range t.calls {
		if c == name {
			return i
		}
	}
	return -1
}

func (t *trace) count(name string) int {
	n := 0
	for _, c := range t.calls {
		if c == name {
			n++
		}
	}
	return n
}

type fakeClock struct {
	now     time.Duration
	advance bool // Sleep moves now forward
	sleeps  []time.Duration
}

func (c *fakeClock) Now() time.Duration { return c.now }

func (c *fakeClock) Sleep(d time.Duration) {
	c.sleeps = append(c.sleeps, d)
	if c.advance {
		c.now += d
	}
}

type fakeLink struct {
	tr          *trace
	connected   bool
	joinAfter   int // Connected() checks after Begin before joining; -1 never joins
	joining     bool
	checks      int
	rssi        int
	ip          string
	stationMode bool
	powerSave   bool
}

func (l *fakeLink) SetStationMode() error {
	l.tr.add("SetStationMode")
	l.stationMode = true
	return nil
}

func (l *fakeLink) DisablePowerSave() error {
	l.tr.add("DisablePowerSave")
	l.powerSave = false
	return nil
}

func (l *fakeLink) Begin(ssid, password string) error {
	l.tr.add("Begin:%s", ssid)
	l.joining = l.joinAfter >= 0
	l.checks = 0
	return nil
}

func (l *fakeLink) Disconnect() error {
	l.tr.add("Disconnect")
	l.joining = false
	return nil
}

func (l *fakeLink) Connected() bool {
	if !l.connected && l.joining {
		if l.checks >= l.joinAfter {
			l.connected = true
			l.joining = false
		}
		l.checks++
	}
	return l.connected
}

func (l *fakeLink) RSSI() int       { return l.rssi }
func (l *fakeLink) LocalIP() string { return l.ip }

type fakeTransport struct {
	tr         *trace
	connected  bool
	connectErr error
	publishErr error
	creds      *config.Credentials
	credsSet   bool
	clean      bool
	will       *mqtt.Message
	published  []mqtt.Message
	polls      int
}

func (f *fakeTransport) Stop() {
	f.tr.add("Stop")
	f.connected = false
}

func (f *fakeTransport) SetID(id string) { f.tr.add("SetID:%s", id) }

func (f *fakeTransport) SetCredentials(creds *config.Credentials) {
	f.tr.add("SetCredentials")
	f.creds = creds
	f.credsSet = true
}

func (f *fakeTransport) SetCleanSession(clean bool) {
	f.tr.add("SetCleanSession")
	f.clean = clean
}

func (f *fakeTransport) SetWill(will mqtt.Message) {
	f.tr.add("SetWill")
	f.will = &will
}

func (f *fakeTransport) Connect(ctx context.Context, host string, port int) error {
	f.tr.add("Connect:%s:%d", host, port)
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) Publish(msg mqtt.Message) error {
	f.tr.add("Publish:%s", msg.Topic)
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeTransport) Poll() int {
	f.polls++
	return 0
}

func (f *fakeTransport) Connected() bool { return f.connected }

// payloads returns the payloads published on topic.
func (f *fakeTransport) payloads(topic string) []string {
	var out []string
	for _, m := range f.published {
		if m.Topic == topic {
			out = append(out, string(m.Payload))
		}
	}
	return out
}

type fakeSensor struct {
	tr      *trace
	reading sensor.Reading
	err     error
	reads   int
}

func (s *fakeSensor) Begin() error {
	s.tr.add("SensorBegin")
	return nil
}

func (s *fakeSensor) Read() (sensor.Reading, error) {
	s.reads++
	return s.reading, s.err
}

type fakeTimeSource struct {
	tr           *trace
	syncErr      error
	syncs        int
	synced       bool
	wall         time.Time
	server       string
	lastDeadline time.Duration
}

func (f *fakeTimeSource) Sync(ctx context.Context) error {
	f.tr.add("Sync")
	f.syncs++
	if deadline, ok := ctx.Deadline(); ok {
		f.lastDeadline = time.Until(deadline)
	}
	if f.syncErr != nil {
		return f.syncErr
	}
	f.synced = true
	return nil
}

func (f *fakeTimeSource) Now() (time.Time, bool) {
	return f.wall, f.synced
}

func (f *fakeTimeSource) Server() string {
	if !f.synced {
		return ""
	}
	return f.server
}

type fakeRecorder struct {
	types []events.EventType
}

func (r *fakeRecorder) Add(eventType events.EventType, success bool, details string) error {
	r.types = append(r.types, eventType)
	return nil
}

func (r *fakeRecorder) has(eventType events.EventType) bool {
	for _, t := range r.types {
		if t == eventType {
			return true
		}
	}
	return false
}

type harness struct {
	tr        *trace
	clock     *fakeClock
	link      *fakeLink
	transport *fakeTransport
	sensor    *fakeSensor
	time      *fakeTimeSource
	events    *fakeRecorder
	agent     *Agent
}

const testDeviceID = identity.DeviceID("24A160C3F1E8")

func newHarness(modify func(*Options)) *harness {
	tr := &trace{}
	h := &harness{
		tr:        tr,
		clock:     &fakeClock{},
		link:      &fakeLink{tr: tr, joinAfter: 0, rssi: -61, ip: "192.168.1.20"},
		transport: &fakeTransport{tr: tr},
		sensor:    &fakeSensor{tr: tr, reading: sensor.Reading{TempC: 27.456, Humidity: 61.2}},
		time: &fakeTimeSource{
			tr:     tr,
			wall:   time.Date(2024, 5, 1, 8, 30, 15, 0, time.UTC),
			server: "pool.ntp.org",
		},
		events: &fakeRecorder{},
	}

	opts := Options{
		DeviceID:          testDeviceID,
		Firmware:          "siap-suhu-1.0.0",
		WiFiSSID:          "Wokwi-GUEST",
		MQTTHost:          "mqtt",
		MQTTPort:          1883,
		TelemetryInterval: 5 * time.Second,
		Link:              h.link,
		Transport:         h.transport,
		Sensor:            h.sensor,
		TimeSource:        h.time,
		Clock:             h.clock,
		Events:            h.events,
	}
	if modify != nil {
		modify(&opts)
	}

	a, err := New(opts)
	if err != nil {
		panic(err)
	}
	h.agent = a
	return h
}

// tickAt runs one tick at the given monotonic time.
func (h *harness) tickAt(now time.Duration) {
	h.clock.now = now
	h.agent.Tick(context.Background())
}

var nan = math.NaN()

func newTestLogger(w io.Writer) *log.Logger {
	return log.New(w, "", 0)
}
