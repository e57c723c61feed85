package mqtt

import (
	"encoding/json"
	"fmt"
	"log"

	"siapsuhu/internal/identity"
)

// SensorType defines the type of sensor for Home Assistant
type SensorType string

const (
	SensorTypeTemperature    SensorType = "temperature"
	SensorTypeHumidity       SensorType = "humidity"
	SensorTypeSignalStrength SensorType = "signal_strength"
)

// SensorConfig contains sensor configuration for Home Assistant Discovery
type SensorConfig struct {
	SensorID      string     // Suffix of the unique ID
	Name          string     // Display name
	SensorType    SensorType // Also used as device_class
	Unit          string     // °C, %, dBm
	ValueTemplate string     // Extracts the value from the telemetry JSON
	Diagnostic    bool       // entity_category: diagnostic
}

// DeviceInfo contains device information for grouping in Home Assistant
type DeviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// DefaultSensors are the entities derived from one telemetry message.
var DefaultSensors = []SensorConfig{
	{
		SensorID:      "temperature",
		Name:          "Temperature",
		SensorType:    SensorTypeTemperature,
		Unit:          "°C",
		ValueTemplate: "{{ value_json.temp_c }}",
	},
	{
		SensorID:      "humidity",
		Name:          "Humidity",
		SensorType:    SensorTypeHumidity,
		Unit:          "%",
		ValueTemplate: "{{ value_json.humidity }}",
	},
	{
		SensorID:      "rssi",
		Name:          "WiFi Signal",
		SensorType:    SensorTypeSignalStrength,
		Unit:          "dBm",
		ValueTemplate: "{{ value_json.rssi }}",
		Diagnostic:    true,
	},
}

// Discovery builds retained Home Assistant discovery configs. The state
// topic is the telemetry topic and availability follows the status topic,
// so the will message marks every entity unavailable.
type Discovery struct {
	prefix   string
	id       identity.DeviceID
	topics   identity.Topics
	device   DeviceInfo
	sensors  []SensorConfig
	logger   *log.Logger
	messages []Message
}

// NewDiscovery creates a Discovery for one device. Configs are generated
// lazily and cached.
func NewDiscovery(id identity.DeviceID, topics identity.Topics, model, firmware string, logger *log.Logger) *Discovery {
	return &Discovery{
		prefix: "homeassistant",
		id:     id,
		topics: topics,
		device: DeviceInfo{
			Identifiers:  []string{id.ClientID()},
			Name:         "Siap Suhu " + string(id),
			Model:        model,
			Manufacturer: "Siap Suhu",
			SWVersion:    firmware,
		},
		sensors: DefaultSensors,
		logger:  logger,
	}
}

// Messages returns the discovery configs, one per sensor.
func (d *Discovery) Messages() []Message {
	if d.messages != nil {
		return d.messages
	}

	messages := make([]Message, 0, len(d.sensors))
	for _, cfg := range d.sensors {
		payload, err := d.generateConfig(cfg)
		if err != nil {
			if d.logger != nil {
				d.logger.Printf("[MQTT] Failed to marshal discovery config for %s: %v", cfg.SensorID, err)
			}
			continue
		}
		messages = append(messages, Message{
			Topic:    d.configTopic(cfg),
			Payload:  payload,
			QoS:      AtLeastOnce,
			Retained: true,
		})
	}

	d.messages = messages
	return messages
}

// configTopic: {prefix}/sensor/{node_id}/{object_id}/config
func (d *Discovery) configTopic(cfg SensorConfig) string {
	return fmt.Sprintf("%s/sensor/%s/%s/config", d.prefix, d.id.ClientID(), cfg.SensorID)
}

func (d *Discovery) generateConfig(cfg SensorConfig) ([]byte, error) {
	discoveryConfig := map[string]interface{}{
		"name":                  cfg.Name,
		"unique_id":             d.id.ClientID() + "_" + cfg.SensorID,
		"state_topic":           d.topics.Telemetry(),
		"value_template":        cfg.ValueTemplate,
		"unit_of_measurement":   cfg.Unit,
		"device_class":          string(cfg.SensorType),
		"state_class":           "measurement",
		"availability_topic":    d.topics.Status(),
		"payload_available":     "online",
		"payload_not_available": "offline",
		"device":                d.device,
	}

	if cfg.Diagnostic {
		discoveryConfig["entity_category"] = "diagnostic"
	}

	return json.Marshal(discoveryConfig)
}
