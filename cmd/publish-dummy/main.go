// Command publish-dummy sends simulated telemetry for one device id, for
// exercising a broker and its consumers without hardware.
package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"siapsuhu/internal/identity"
	"siapsuhu/internal/mqtt"
	"siapsuhu/internal/telemetry"
)

const simFirmware = "siap-suhu-sim"

func main() {
	host := flag.String("host", "127.0.0.1", "MQTT broker address")
	port := flag.Int("port", 1883, "MQTT broker port")
	device := flag.String("device", "SIM-001", "Device ID to publish as")
	interval := flag.Duration("interval", 5*time.Second, "Publish interval")
	flag.Parse()

	logger := log.New(os.Stdout, "", log.LstdFlags)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	id := identity.DeviceID(*device)
	topics := identity.NewTopics(id)

	client := mqtt.New(mqtt.Options{KeepAlive: 30 * time.Second}, logger)
	// Several simulators may run under one device id.
	client.SetID(id.ClientID() + "-" + uuid.NewString()[:8])
	client.SetCleanSession(true)
	if err := client.Connect(ctx, *host, *port); err != nil {
		logger.Fatalf("Failed to connect to %s:%d: %v", *host, *port, err)
	}
	defer client.Stop()

	logger.Printf("Publishing to %s -> %s:%d", topics.Telemetry(), *host, *port)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		payload, err := telemetry.Encode(dummyMessage(rng, id, time.Now()))
		if err != nil {
			logger.Fatalf("Failed to encode telemetry: %v", err)
		}

		if err := client.Publish(mqtt.Message{Topic: topics.Telemetry(), Payload: payload, QoS: mqtt.AtLeastOnce}); err != nil {
			logger.Printf("Publish failed: %v", err)
		} else {
			logger.Printf("%s", payload)
		}

		select {
		case <-ctx.Done():
			logger.Printf("Stopped")
			return
		case <-ticker.C:
		}
	}
}

// dummyMessage draws a plausible tropical indoor reading.
func dummyMessage(rng *rand.Rand, id identity.DeviceID, now time.Time) telemetry.Message {
	baseTemp := 24.0 + rng.Float64()*5.0
	temp := baseTemp - 1.5 + rng.Float64()*6.0
	humidity := 40.0 + rng.Float64()*30.0

	return telemetry.Message{
		DeviceID:    id.String(),
		Timestamp:   telemetry.Timestamp(now, true, 0),
		TempC:       telemetry.Fixed2(temp),
		Humidity:    telemetry.Fixed2(humidity),
		RSSI:        -70 + rng.Intn(31),
		FirmwareVer: simFirmware,
	}
}
