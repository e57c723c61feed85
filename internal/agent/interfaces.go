package agent

import (
	"context"
	"time"

	"siapsuhu/internal/config"
	"siapsuhu/internal/events"
	"siapsuhu/internal/mqtt"
	"siapsuhu/internal/sensor"
)

// Sensor is a temperature/humidity source. Read returns an error (or NaN
// values) when the sensor has no valid data.
type Sensor interface {
	Begin() error
	Read() (sensor.Reading, error)
}

// NetworkLink drives the wireless station. Begin only starts an
// association; Connected reports the outcome.
type NetworkLink interface {
	SetStationMode() error
	DisablePowerSave() error
	Begin(ssid, password string) error
	Disconnect() error
	Connected() bool
	RSSI() int
	LocalIP() string
}

// Transport is a single broker session. Session settings are staged with
// the Set* methods and take effect on the next Connect.
type Transport interface {
	Stop()
	SetID(id string)
	SetCredentials(creds *config.Credentials)
	SetCleanSession(clean bool)
	SetWill(will mqtt.Message)
	Connect(ctx context.Context, host string, port int) error
	Publish(msg mqtt.Message) error
	Poll() int
	Connected() bool
}

// TimeSource provides wall-clock time once synchronized.
type TimeSource interface {
	Sync(ctx context.Context) error
	Now() (time.Time, bool)
	// Server names the authority of the last successful sync, "" before one.
	Server() string
}

// Clock is the monotonic time base of the control loop.
type Clock interface {
	Now() time.Duration
	Sleep(d time.Duration)
}

// EventRecorder journals connectivity events. *events.Store implements it.
type EventRecorder interface {
	Add(eventType events.EventType, success bool, details string) error
}
