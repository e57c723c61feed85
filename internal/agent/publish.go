package agent

import (
	"context"
	"errors"
	"math"
	"time"

	"siapsuhu/internal/events"
	"siapsuhu/internal/mqtt"
	"siapsuhu/internal/sensor"
	"siapsuhu/internal/telemetry"
)

// publishIfDue publishes one reading per interval. The interval restarts
// whenever the gate passes, even if the cycle is then skipped.
func (a *Agent) publishIfDue(ctx context.Context, now time.Duration) {
	if now-a.lastPublish < a.interval {
		return
	}
	a.lastPublish = now

	if !a.transport.Connected() {
		a.counters.Skipped++
		return
	}

	reading, err := a.sensor.Read()
	if err == nil && (math.IsNaN(reading.TempC) || math.IsNaN(reading.Humidity)) {
		err = sensor.ErrInvalidReading
	}
	if err != nil {
		a.counters.Invalid++
		a.logf("[Sensor] Invalid DHT reading, skipped: %v", err)
		a.record(events.EventSensorInvalid, false, err.Error())
		return
	}

	wall, synced := a.timeSource.Now()
	msg := telemetry.Message{
		DeviceID:    a.id.String(),
		Timestamp:   telemetry.Timestamp(wall, synced, now),
		TempC:       telemetry.Fixed2(reading.TempC),
		Humidity:    telemetry.Fixed2(reading.Humidity),
		RSSI:        a.link.RSSI(),
		FirmwareVer: a.firmware,
	}

	payload, err := telemetry.Encode(msg)
	if err != nil {
		a.publishFailed(err)
		return
	}

	a.logf("[MQTT] Publish %s: %s", a.topics.Telemetry(), payload)
	err = a.transport.Publish(mqtt.Message{
		Topic:   a.topics.Telemetry(),
		Payload: payload,
		QoS:     mqtt.AtLeastOnce,
	})
	if err != nil {
		a.publishFailed(err)
		return
	}
	a.counters.Published++
}

func (a *Agent) publishFailed(err error) {
	a.counters.Failed++
	a.logf("[MQTT] Telemetry publish failed: %v", err)
	if !errors.Is(err, mqtt.ErrNotConnected) {
		a.record(events.EventTelemetryFailed, false, err.Error())
	}
}
