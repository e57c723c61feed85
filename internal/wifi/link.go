// Package wifi drives the host's wireless station through NetworkManager
// and reports link state from the kernel.
package wifi

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	psnet "github.com/shirou/gopsutil/v3/net"
)

const (
	// DefaultWirelessPath is the kernel's per-interface signal table.
	DefaultWirelessPath = "/proc/net/wireless"

	// nmcli gives up on an association after this many seconds
	nmcliWaitSeconds = 10

	commandTimeout = 5 * time.Second
)

// Runner executes an external command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Link is one wireless interface.
type Link struct {
	iface        string
	logger       *log.Logger
	run          Runner
	interfaces   func() (psnet.InterfaceStatList, error)
	wirelessPath string

	mu      sync.Mutex
	cancel  context.CancelFunc // pending association
	pending sync.WaitGroup
}

// New creates a Link for iface.
func New(iface string, logger *log.Logger) *Link {
	return &Link{
		iface:        iface,
		logger:       logger,
		run:          execRunner,
		interfaces:   psnet.Interfaces,
		wirelessPath: DefaultWirelessPath,
	}
}

// SetStationMode turns the wireless radio on.
func (l *Link) SetStationMode() error {
	return l.command("nmcli", "radio", "wifi", "on")
}

// DisablePowerSave keeps the radio awake between packets.
func (l *Link) DisablePowerSave() error {
	return l.command("iw", "dev", l.iface, "set", "power_save", "off")
}

// Begin starts an association in the background and returns immediately.
// A pending association is abandoned first.
func (l *Link) Begin(ssid, password string) error {
	if ssid == "" {
		return fmt.Errorf("empty SSID")
	}

	l.abandon()

	args := []string{"--wait", strconv.Itoa(nmcliWaitSeconds), "device", "wifi", "connect", ssid}
	if password != "" {
		args = append(args, "password", password)
	}
	args = append(args, "ifname", l.iface)

	ctx, cancel := context.WithTimeout(context.Background(), (nmcliWaitSeconds+5)*time.Second)

	l.mu.Lock()
	l.cancel = cancel
	l.mu.Unlock()

	l.pending.Add(1)
	go func() {
		defer l.pending.Done()
		defer cancel()

		out, err := l.run(ctx, "nmcli", args...)
		if err != nil && ctx.Err() != context.Canceled && l.logger != nil {
			l.logger.Printf("[WiFi] nmcli connect %s failed: %v: %s", ssid, err, strings.TrimSpace(string(out)))
		}
	}()

	return nil
}

// Disconnect abandons a pending association and drops the link.
func (l *Link) Disconnect() error {
	l.abandon()
	return l.command("nmcli", "device", "disconnect", l.iface)
}

// abandon cancels a pending association and waits for it to exit.
func (l *Link) abandon() {
	l.mu.Lock()
	cancel := l.cancel
	l.cancel = nil
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	l.pending.Wait()
}

// Connected reports whether the interface is up with a routable IPv4
// address.
func (l *Link) Connected() bool {
	return l.LocalIP() != ""
}

// LocalIP returns the interface's first non-link-local IPv4 address, or ""
// when it has none.
func (l *Link) LocalIP() string {
	ifaces, err := l.interfaces()
	if err != nil {
		return ""
	}

	for _, iface := range ifaces {
		if iface.Name != l.iface || !hasFlag(iface.Flags, "up") {
			continue
		}
		for _, addr := range iface.Addrs {
			ip, _, err := net.ParseCIDR(addr.Addr)
			if err != nil {
				ip = net.ParseIP(addr.Addr)
			}
			if ip == nil || ip.To4() == nil || ip.IsLinkLocalUnicast() || ip.IsLoopback() {
				continue
			}
			return ip.String()
		}
	}
	return ""
}

// RSSI returns the signal level in dBm, or 0 when the kernel reports none.
func (l *Link) RSSI() int {
	f, err := os.Open(l.wirelessPath)
	if err != nil {
		return 0
	}
	defer f.Close()

	rssi, _ := parseWireless(f, l.iface)
	return rssi
}

func (l *Link) command(name string, args ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	out, err := l.run(ctx, name, args...)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// parseWireless reads the signal level of iface from /proc/net/wireless:
//
//	Inter-| sta-|   Quality        |   Discarded packets
//	 face | tus | link level noise |  nwid  crypt   frag
//	wlan0: 0000   54.  -56.  -256        0      0      0
func parseWireless(r io.Reader, iface string) (int, bool) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		name, rest, ok := strings.Cut(scanner.Text(), ":")
		if !ok || strings.TrimSpace(name) != iface {
			continue
		}

		fields := strings.Fields(rest)
		if len(fields) < 3 {
			return 0, false
		}
		level, err := strconv.ParseFloat(strings.TrimSuffix(fields[2], "."), 64)
		if err != nil {
			return 0, false
		}
		return int(level), true
	}
	return 0, false
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if strings.EqualFold(f, want) {
			return true
		}
	}
	return false
}
