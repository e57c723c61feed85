// Package identity derives the device identifier and the MQTT topics that
// are namespaced by it.
package identity

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"

	psnet "github.com/shirou/gopsutil/v3/net"
)

const (
	// ClientIDPrefix prefixes the broker client identifier.
	ClientIDPrefix = "siapsuhu-"

	telemetryTopicPrefix = "siapsuhu/telemetry/"
	statusTopicPrefix    = "siapsuhu/status/"

	mask48 = 1<<48 - 1
)

// ErrNoHardwareAddr is returned when no interface exposes a 48-bit address.
var ErrNoHardwareAddr = errors.New("no hardware address found")

// DeviceID is the 12 uppercase hex digit encoding of a 48-bit hardware value.
type DeviceID string

// FromUint64 encodes the low 48 bits of v, zero-padded.
func FromUint64(v uint64) DeviceID {
	return DeviceID(fmt.Sprintf("%012X", v&mask48))
}

// FromHardwareAddr encodes a 6-byte MAC address, first byte most significant.
func FromHardwareAddr(mac net.HardwareAddr) (DeviceID, error) {
	if len(mac) != 6 {
		return "", fmt.Errorf("hardware address %q is not 48 bits", mac.String())
	}

	var v uint64
	for _, b := range mac {
		v = v<<8 | uint64(b)
	}
	return FromUint64(v), nil
}

// String implements fmt.Stringer.
func (id DeviceID) String() string {
	return string(id)
}

// ClientID returns the broker client identifier for this device.
func (id DeviceID) ClientID() string {
	return ClientIDPrefix + string(id)
}

// Topics holds the two per-device topics. They are computed once and have
// no setters.
type Topics struct {
	telemetry string
	status    string
}

// NewTopics derives the telemetry and status topics for id.
func NewTopics(id DeviceID) Topics {
	return Topics{
		telemetry: telemetryTopicPrefix + string(id),
		status:    statusTopicPrefix + string(id),
	}
}

// Telemetry returns the publish-only telemetry topic.
func (t Topics) Telemetry() string {
	return t.telemetry
}

// Status returns the presence topic ("online" / will "offline").
func (t Topics) Status() string {
	return t.status
}

// HostDeviceID derives the identifier from the hardware address of the
// preferred interface, falling back to the first non-loopback interface in
// name order so the result is stable across reboots.
func HostDeviceID(preferred string) (DeviceID, error) {
	ifaces, err := psnet.Interfaces()
	if err != nil {
		return "", fmt.Errorf("failed to list interfaces: %w", err)
	}
	return pickDeviceID(ifaces, preferred)
}

func pickDeviceID(ifaces psnet.InterfaceStatList, preferred string) (DeviceID, error) {
	candidates := make([]psnet.InterfaceStat, 0, len(ifaces))
	for _, iface := range ifaces {
		if isLoopback(iface) || iface.HardwareAddr == "" {
			continue
		}
		if iface.Name == preferred {
			return parseDeviceID(iface.HardwareAddr)
		}
		candidates = append(candidates, iface)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Name < candidates[j].Name
	})

	for _, iface := range candidates {
		if id, err := parseDeviceID(iface.HardwareAddr); err == nil {
			return id, nil
		}
	}
	return "", ErrNoHardwareAddr
}

func parseDeviceID(addr string) (DeviceID, error) {
	mac, err := net.ParseMAC(addr)
	if err != nil {
		return "", fmt.Errorf("invalid hardware address %q: %w", addr, err)
	}
	return FromHardwareAddr(mac)
}

func isLoopback(iface psnet.InterfaceStat) bool {
	for _, flag := range iface.Flags {
		if strings.EqualFold(flag, "loopback") {
			return true
		}
	}
	return false
}
