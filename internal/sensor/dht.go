// Package sensor reads DHT-family temperature/humidity sensors through the
// Linux IIO dht11 driver.
package sensor

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultIIORoot is where the kernel exposes IIO devices.
const DefaultIIORoot = "/sys/bus/iio/devices"

// iioDriverName is the name the dht11 driver reports for every DHT model.
const iioDriverName = "dht11"

var (
	// ErrInvalidReading is returned when the sensor produced no usable data.
	ErrInvalidReading = errors.New("invalid sensor reading")
	// ErrNoDevice is returned when no dht11 IIO device is present.
	ErrNoDevice = errors.New("no DHT IIO device found")
)

// Model is a DHT sensor variant.
type Model string

const (
	DHT11  Model = "DHT11"
	DHT12  Model = "DHT12"
	DHT21  Model = "DHT21"
	DHT22  Model = "DHT22"
	AM2301 Model = "AM2301"
)

// ParseModel accepts the DHT_TYPE spellings, case-insensitively.
func ParseModel(s string) (Model, error) {
	m := Model(strings.ToUpper(strings.TrimSpace(s)))
	switch m {
	case DHT11, DHT12, DHT21, DHT22, AM2301:
		return m, nil
	}
	return "", fmt.Errorf("unknown DHT model %q", s)
}

// MinInterval is the shortest time between two conversions the sensor
// supports. Reads inside the window return the previous result.
func (m Model) MinInterval() time.Duration {
	if m == DHT11 {
		return time.Second
	}
	return 2 * time.Second
}

// Reading is one temperature/humidity sample.
type Reading struct {
	TempC    float64
	Humidity float64
}

// DHT is a sensor bound to one GPIO line.
type DHT struct {
	mu     sync.Mutex
	model  Model
	pin    int
	root   string
	logger *log.Logger
	now    func() time.Time

	device   string
	last     Reading
	lastErr  error
	lastRead time.Time
}

// NewDHT creates a sensor for model on the given GPIO pin.
func NewDHT(model Model, pin int, logger *log.Logger) *DHT {
	return &DHT{
		model:  model,
		pin:    pin,
		root:   DefaultIIORoot,
		logger: logger,
		now:    time.Now,
	}
}

// Begin locates the IIO device. A missing device is not fatal: Read retries
// the lookup on every call.
func (d *DHT) Begin() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	dev, err := d.findDevice()
	if err != nil {
		if d.logger != nil {
			d.logger.Printf("[Sensor] %s on GPIO %d not available: %v", d.model, d.pin, err)
		}
		return err
	}

	d.device = dev
	if d.logger != nil {
		d.logger.Printf("[Sensor] %s on GPIO %d at %s", d.model, d.pin, dev)
	}
	return nil
}

// Read returns the current sample. Any driver failure is reported as
// ErrInvalidReading.
func (d *DHT) Read() (Reading, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if !d.lastRead.IsZero() && now.Sub(d.lastRead) < d.model.MinInterval() {
		return d.last, d.lastErr
	}
	d.lastRead = now

	d.last, d.lastErr = d.sample()
	return d.last, d.lastErr
}

func (d *DHT) sample() (Reading, error) {
	if d.device == "" {
		dev, err := d.findDevice()
		if err != nil {
			return Reading{}, fmt.Errorf("%w: %v", ErrInvalidReading, err)
		}
		d.device = dev
	}

	// Values are in milli-units
	temp, err := readMilli(filepath.Join(d.device, "in_temp_input"))
	if err != nil {
		return Reading{}, fmt.Errorf("%w: temperature: %v", ErrInvalidReading, err)
	}
	hum, err := readMilli(filepath.Join(d.device, "in_humidityrelative_input"))
	if err != nil {
		return Reading{}, fmt.Errorf("%w: humidity: %v", ErrInvalidReading, err)
	}

	if hum < 0 || hum > 100 {
		return Reading{}, fmt.Errorf("%w: humidity %.1f%% out of range", ErrInvalidReading, hum)
	}

	return Reading{TempC: temp, Humidity: hum}, nil
}

// findDevice returns the dht11 device whose device-tree node is bound to
// d.pin, falling back to the first dht11 device.
func (d *DHT) findDevice() (string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return "", fmt.Errorf("failed to list %s: %w", d.root, err)
	}

	var candidates []string
	for _, entry := range entries {
		devicePath := filepath.Join(d.root, entry.Name())

		nameBytes, err := os.ReadFile(filepath.Join(devicePath, "name"))
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(nameBytes)) != iioDriverName {
			continue
		}
		candidates = append(candidates, devicePath)
	}

	if len(candidates) == 0 {
		return "", ErrNoDevice
	}
	sort.Strings(candidates)

	// Overlay nodes are named dht11@<gpio in hex>
	want := fmt.Sprintf("%s@%x", iioDriverName, d.pin)
	for _, c := range candidates {
		target, err := os.Readlink(filepath.Join(c, "of_node"))
		if err != nil {
			continue
		}
		if filepath.Base(target) == want {
			return c, nil
		}
	}

	return candidates[0], nil
}

func readMilli(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, err
	}
	return float64(v) / 1000.0, nil
}
