// Package telemetry defines the telemetry message and its wire encoding.
package telemetry

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// ISO8601 is the timestamp layout used on the wire.
const ISO8601 = "2006-01-02T15:04:05Z"

// Fixed2 is a float rendered with exactly two decimals.
type Fixed2 float64

// MarshalJSON implements json.Marshaler.
func (f Fixed2) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("telemetry: cannot encode %v", v)
	}
	return strconv.AppendFloat(nil, v, 'f', 2, 64), nil
}

// Message is one telemetry reading. Field order is the wire key order.
type Message struct {
	DeviceID    string `json:"device_id"`
	Timestamp   string `json:"ts"`
	TempC       Fixed2 `json:"temp_c"`
	Humidity    Fixed2 `json:"humidity"`
	RSSI        int    `json:"rssi"`
	FirmwareVer string `json:"fw"`
}

// Encode serializes m as a single-line JSON object.
func Encode(m Message) ([]byte, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode telemetry: %w", err)
	}
	return payload, nil
}

// Timestamp renders wall as UTC ISO-8601 when ok, otherwise the degraded
// placeholder derived from uptime.
func Timestamp(wall time.Time, ok bool, uptime time.Duration) string {
	if ok {
		return wall.UTC().Format(ISO8601)
	}
	return DegradedTimestamp(uptime)
}

// DegradedTimestamp returns "1970-01-01T00:00:<ss>Z" where ss is whole
// seconds of uptime modulo 60. The year marks it as not a real clock.
func DegradedTimestamp(uptime time.Duration) string {
	secs := int64(uptime/time.Second) % 60
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("1970-01-01T00:00:%02dZ", secs)
}
