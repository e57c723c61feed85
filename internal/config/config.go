package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Configuration keys. The same names are used in the .env file and in the
// process environment.
const (
	EnvWiFiSSID            = "WIFI_SSID"
	EnvWiFiPass            = "WIFI_PASS"
	EnvMQTTHost            = "MQTT_HOST"
	EnvMQTTPort            = "MQTT_PORT"
	EnvMQTTUser            = "MQTT_USER"
	EnvMQTTPass            = "MQTT_PASS"
	EnvDHTPin              = "DHT_PIN"
	EnvDHTType             = "DHT_TYPE"
	EnvTelemetryIntervalMS = "TELEMETRY_INTERVAL_MS"
	// Host settings
	EnvWiFiIface          = "WIFI_IFACE"
	EnvNTPServers         = "NTP_SERVERS"
	EnvMQTTUseTLS         = "MQTT_USE_TLS"
	EnvMQTTConnectTimeout = "MQTT_CONNECT_TIMEOUT_MS"
	EnvHADiscovery        = "HA_DISCOVERY"
	EnvStatusAddr         = "STATUS_ADDR"
	EnvDiagDB             = "DIAG_DB"
	EnvDiagMaxEvents      = "DIAG_MAX_EVENTS"
	EnvLoopIntervalMS     = "LOOP_INTERVAL_MS"
)

// Build-time defaults. These are variables so a firmware image can bake its
// own values in with:
//
//	go build -ldflags "-X siapsuhu/internal/config.DefaultWiFiSSID=home -X siapsuhu/internal/config.DefaultMQTTHost=10.0.0.2"
var (
	DefaultWiFiSSID            = "Wokwi-GUEST"
	DefaultWiFiPass            = ""
	DefaultMQTTHost            = "mqtt"
	DefaultMQTTPort            = "1883"
	DefaultMQTTUser            = ""
	DefaultMQTTPass            = ""
	DefaultDHTPin              = "15"
	DefaultDHTType             = "DHT22"
	DefaultTelemetryIntervalMS = "5000"
)

// Host defaults
const (
	DefaultWiFiIface          = "wlan0"
	DefaultNTPServers         = "pool.ntp.org,time.google.com,id.pool.ntp.org"
	DefaultMQTTUseTLS         = false
	DefaultMQTTConnectTimeout = 10 * time.Second
	DefaultHADiscovery        = false
	DefaultStatusAddr         = "" // disabled
	DefaultDiagDB             = "" // disabled
	DefaultDiagMaxEvents      = 500
	DefaultLoopInterval       = 100 * time.Millisecond
)

// MinTelemetryInterval is the shortest accepted publish interval.
const MinTelemetryInterval = time.Second

var supportedDHTTypes = map[string]bool{
	"DHT11":  true,
	"DHT12":  true,
	"DHT21":  true,
	"DHT22":  true,
	"AM2301": true,
}

// Credentials are static broker credentials. A nil *Credentials means the
// broker is contacted without a username.
type Credentials struct {
	Username string
	Password string
}

// String hides the password.
func (c *Credentials) String() string {
	if c == nil {
		return "[none]"
	}
	return fmt.Sprintf("%s:[set]", c.Username)
}

// Config holds the agent configuration. It is resolved once at startup and
// never changes afterwards; getters are safe for concurrent use.
type Config struct {
	mu       sync.RWMutex
	filePath string

	// Network settings
	wifiSSID  string
	wifiPass  string
	wifiIface string

	// Broker settings
	mqttHost           string
	mqttPort           int
	mqttUser           string
	mqttPass           string
	mqttUseTLS         bool
	mqttConnectTimeout time.Duration
	haDiscovery        bool

	// Sensor settings
	dhtPin            int
	dhtType           string
	telemetryInterval time.Duration

	// Time settings
	ntpServers []string

	// Diagnostics
	statusAddr    string
	diagDB        string
	diagMaxEvents int
	loopInterval  time.Duration
}

// Load resolves configuration from the build-time defaults, then the .env
// file at filePath (optional), then the process environment.
func Load(filePath string) (*Config, error) {
	cfg := &Config{
		filePath: filePath,
	}

	cfg.setDefaults()

	if filePath != "" {
		if err := cfg.loadFromFile(); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	cfg.applyValues(environValues())

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// FromValues builds a Config from defaults overlaid with values only.
func FromValues(values map[string]string) (*Config, error) {
	cfg := &Config{}
	cfg.setDefaults()
	cfg.applyValues(values)
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setDefaults initializes all fields with default values.
func (c *Config) setDefaults() {
	c.wifiIface = DefaultWiFiIface
	c.mqttUseTLS = DefaultMQTTUseTLS
	c.mqttConnectTimeout = DefaultMQTTConnectTimeout
	c.haDiscovery = DefaultHADiscovery
	c.statusAddr = DefaultStatusAddr
	c.diagDB = DefaultDiagDB
	c.diagMaxEvents = DefaultDiagMaxEvents
	c.loopInterval = DefaultLoopInterval
	c.ntpServers = splitList(DefaultNTPServers)

	// Build-time defaults go through the same parser as runtime values
	c.applyValues(map[string]string{
		EnvWiFiSSID:            DefaultWiFiSSID,
		EnvWiFiPass:            DefaultWiFiPass,
		EnvMQTTHost:            DefaultMQTTHost,
		EnvMQTTPort:            DefaultMQTTPort,
		EnvMQTTUser:            DefaultMQTTUser,
		EnvMQTTPass:            DefaultMQTTPass,
		EnvDHTPin:              DefaultDHTPin,
		EnvDHTType:             DefaultDHTType,
		EnvTelemetryIntervalMS: DefaultTelemetryIntervalMS,
	})
}

// loadFromFile reads configuration from the .env file.
func (c *Config) loadFromFile() error {
	file, err := os.Open(c.filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	values, err := ParseEnvFile(file)
	if err != nil {
		return err
	}

	c.applyValues(values)
	return nil
}

// environValues collects known keys from the process environment.
func environValues() map[string]string {
	keys := []string{
		EnvWiFiSSID, EnvWiFiPass, EnvMQTTHost, EnvMQTTPort, EnvMQTTUser, EnvMQTTPass,
		EnvDHTPin, EnvDHTType, EnvTelemetryIntervalMS, EnvWiFiIface, EnvNTPServers,
		EnvMQTTUseTLS, EnvMQTTConnectTimeout, EnvHADiscovery, EnvStatusAddr,
		EnvDiagDB, EnvDiagMaxEvents, EnvLoopIntervalMS,
	}

	values := make(map[string]string)
	for _, key := range keys {
		if v, ok := os.LookupEnv(key); ok {
			values[key] = v
		}
	}
	return values
}

// applyValues applies parsed key-value pairs to config. Unparseable numbers
// are stored as zero so validate reports them.
func (c *Config) applyValues(values map[string]string) {
	if v, ok := values[EnvWiFiSSID]; ok {
		c.wifiSSID = v
	}
	if v, ok := values[EnvWiFiPass]; ok {
		c.wifiPass = v
	}
	if v, ok := values[EnvWiFiIface]; ok && v != "" {
		c.wifiIface = v
	}

	// Broker settings
	if v, ok := values[EnvMQTTHost]; ok {
		c.mqttHost = strings.TrimSpace(v)
	}
	if v, ok := values[EnvMQTTPort]; ok {
		c.mqttPort = parseInt(v)
	}
	if v, ok := values[EnvMQTTUser]; ok {
		c.mqttUser = v
	}
	if v, ok := values[EnvMQTTPass]; ok {
		c.mqttPass = v
	}
	if v, ok := values[EnvMQTTUseTLS]; ok {
		c.mqttUseTLS = parseBool(v)
	}
	if v, ok := values[EnvMQTTConnectTimeout]; ok && v != "" {
		c.mqttConnectTimeout = time.Duration(parseInt(v)) * time.Millisecond
	}
	if v, ok := values[EnvHADiscovery]; ok {
		c.haDiscovery = parseBool(v)
	}

	// Sensor settings
	if v, ok := values[EnvDHTPin]; ok {
		c.dhtPin = parseInt(v)
	}
	if v, ok := values[EnvDHTType]; ok {
		c.dhtType = strings.ToUpper(strings.TrimSpace(v))
	}
	if v, ok := values[EnvTelemetryIntervalMS]; ok {
		c.telemetryInterval = time.Duration(parseInt(v)) * time.Millisecond
	}

	if v, ok := values[EnvNTPServers]; ok {
		c.ntpServers = splitList(v)
	}

	// Diagnostics
	if v, ok := values[EnvStatusAddr]; ok {
		c.statusAddr = v
	}
	if v, ok := values[EnvDiagDB]; ok {
		c.diagDB = v
	}
	if v, ok := values[EnvDiagMaxEvents]; ok && v != "" {
		c.diagMaxEvents = parseInt(v)
	}
	if v, ok := values[EnvLoopIntervalMS]; ok && v != "" {
		c.loopInterval = time.Duration(parseInt(v)) * time.Millisecond
	}
}

// validate checks if configuration is valid.
func (c *Config) validate() error {
	if c.wifiSSID == "" {
		return errors.New("WiFi SSID cannot be empty")
	}

	if c.mqttHost == "" {
		return errors.New("MQTT host cannot be empty")
	}
	if c.mqttPort < 1 || c.mqttPort > 65535 {
		return fmt.Errorf("invalid MQTT port: %d", c.mqttPort)
	}
	if c.mqttConnectTimeout < time.Second {
		return errors.New("MQTT connect timeout must be at least 1 second")
	}

	if c.dhtPin < 0 {
		return fmt.Errorf("invalid DHT pin: %d", c.dhtPin)
	}
	if !supportedDHTTypes[c.dhtType] {
		return fmt.Errorf("unsupported DHT type: %q", c.dhtType)
	}
	if c.telemetryInterval < MinTelemetryInterval {
		return fmt.Errorf("telemetry interval must be at least %v", MinTelemetryInterval)
	}

	if len(c.ntpServers) == 0 {
		return errors.New("at least one NTP server is required")
	}

	if c.statusAddr != "" {
		if _, port, err := net.SplitHostPort(c.statusAddr); err != nil || port == "" {
			return fmt.Errorf("invalid status server address: %s", c.statusAddr)
		}
	}
	if c.diagMaxEvents < 1 {
		return errors.New("diagnostic journal size must be positive")
	}
	if c.loopInterval < 10*time.Millisecond {
		return errors.New("loop interval must be at least 10ms")
	}

	return nil
}

// Getters (thread-safe)

// WiFiSSID returns the network name to associate with.
func (c *Config) WiFiSSID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.wifiSSID
}

// WiFiPassword returns the network passphrase (empty for open networks).
func (c *Config) WiFiPassword() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.wifiPass
}

// WiFiIface returns the host wireless interface name.
func (c *Config) WiFiIface() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.wifiIface
}

// MQTTHost returns the broker host.
func (c *Config) MQTTHost() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mqttHost
}

// MQTTPort returns the broker port.
func (c *Config) MQTTPort() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mqttPort
}

// MQTTCredentials returns the broker credentials, or nil when no user is
// configured.
func (c *Config) MQTTCredentials() *Credentials {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.mqttUser == "" {
		return nil
	}
	return &Credentials{Username: c.mqttUser, Password: c.mqttPass}
}

// MQTTUseTLS returns whether TLS is enabled for MQTT.
func (c *Config) MQTTUseTLS() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mqttUseTLS
}

// MQTTConnectTimeout bounds a single broker connect attempt.
func (c *Config) MQTTConnectTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mqttConnectTimeout
}

// HADiscovery returns whether Home Assistant discovery configs are published.
func (c *Config) HADiscovery() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.haDiscovery
}

// DHTPin returns the GPIO line of the sensor.
func (c *Config) DHTPin() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dhtPin
}

// DHTType returns the sensor model variant (upper case).
func (c *Config) DHTType() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dhtType
}

// TelemetryInterval returns the publish interval.
func (c *Config) TelemetryInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.telemetryInterval
}

// NTPServers returns a copy of the time authority list.
func (c *Config) NTPServers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.ntpServers...)
}

// StatusAddr returns the status server listen address; empty means disabled.
func (c *Config) StatusAddr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.statusAddr
}

// DiagDB returns the diagnostic journal path; empty means disabled.
func (c *Config) DiagDB() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.diagDB
}

// DiagMaxEvents returns how many journal entries are kept.
func (c *Config) DiagMaxEvents() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.diagMaxEvents
}

// LoopInterval returns the run-loop tick period.
func (c *Config) LoopInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loopInterval
}

// FilePath returns the path to the .env file.
func (c *Config) FilePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filePath
}

// Helper functions

// parseInt parses a decimal integer, returning 0 on error.
func parseInt(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

// parseBool parses a boolean string value.
// Accepts: true, false, 1, 0, yes, no, on, off (case-insensitive)
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}

// splitList splits a comma-separated list, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// String returns a string representation of the config (without secrets).
func (c *Config) String() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	passDisplay := "[not set]"
	if c.wifiPass != "" {
		passDisplay = "[set]"
	}
	var creds *Credentials
	if c.mqttUser != "" {
		creds = &Credentials{Username: c.mqttUser}
	}

	return fmt.Sprintf(
		"Config{WiFi: %q/%s via %s, MQTT: %s:%d (TLS %v, creds %s), DHT: %s@%d, Interval: %v, NTP: %v}",
		c.wifiSSID, passDisplay, c.wifiIface, c.mqttHost, c.mqttPort, c.mqttUseTLS, creds,
		c.dhtType, c.dhtPin, c.telemetryInterval, c.ntpServers,
	)
}
