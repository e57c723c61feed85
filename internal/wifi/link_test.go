package wifi

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	psnet "github.com/shirou/gopsutil/v3/net"
)

type recordingRunner struct {
	mu    sync.Mutex
	calls []string
	err   error
	block bool
}

func (r *recordingRunner) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	r.mu.Lock()
	r.calls = append(r.calls, name+" "+strings.Join(args, " "))
	block, err := r.block, r.err
	r.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return []byte("error detail"), err
}

func (r *recordingRunner) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func newTestLink(runner *recordingRunner, ifaces psnet.InterfaceStatList) *Link {
	l := New("wlan0", nil)
	l.run = runner.run
	l.interfaces = func() (psnet.InterfaceStatList, error) { return ifaces, nil }
	return l
}

func TestSetupCommands(t *testing.T) {
	runner := &recordingRunner{}
	l := newTestLink(runner, nil)

	if err := l.SetStationMode(); err != nil {
		t.Fatalf("SetStationMode failed: %v", err)
	}
	if err := l.DisablePowerSave(); err != nil {
		t.Fatalf("DisablePowerSave failed: %v", err)
	}

	want := []string{
		"nmcli radio wifi on",
		"iw dev wlan0 set power_save off",
	}
	if got := runner.snapshot(); !reflect.DeepEqual(got, want) {
		t.Errorf("commands = %v; want %v", got, want)
	}
}

func TestCommandError(t *testing.T) {
	runner := &recordingRunner{err: errors.New("exit status 8")}
	l := newTestLink(runner, nil)

	err := l.DisablePowerSave()
	if err == nil || !strings.Contains(err.Error(), "error detail") {
		t.Errorf("DisablePowerSave() error = %v; want command output included", err)
	}
}

func TestBeginArguments(t *testing.T) {
	tests := []struct {
		name     string
		password string
		want     string
	}{
		{"open network", "", "nmcli --wait 10 device wifi connect Wokwi-GUEST ifname wlan0"},
		{"with password", "hunter2", "nmcli --wait 10 device wifi connect Wokwi-GUEST password hunter2 ifname wlan0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &recordingRunner{}
			l := newTestLink(runner, nil)

			if err := l.Begin("Wokwi-GUEST", tt.password); err != nil {
				t.Fatalf("Begin failed: %v", err)
			}
			l.abandon()

			got := runner.snapshot()
			if len(got) != 1 || got[0] != tt.want {
				t.Errorf("commands = %v; want [%s]", got, tt.want)
			}
		})
	}
}

func TestBeginRejectsEmptySSID(t *testing.T) {
	l := newTestLink(&recordingRunner{}, nil)
	if err := l.Begin("", ""); err == nil {
		t.Error("expected an error for an empty SSID")
	}
}

func TestDisconnectAbandonsPendingAssociation(t *testing.T) {
	runner := &recordingRunner{block: true}
	l := newTestLink(runner, nil)

	if err := l.Begin("Wokwi-GUEST", ""); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	runner.mu.Lock()
	runner.block = false
	runner.mu.Unlock()

	// Returns only once the blocked nmcli call has been cancelled
	if err := l.Disconnect(); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}

	got := runner.snapshot()
	if len(got) != 2 || got[1] != "nmcli device disconnect wlan0" {
		t.Errorf("commands = %v", got)
	}
}

func TestConnectedAndLocalIP(t *testing.T) {
	tests := []struct {
		name   string
		ifaces psnet.InterfaceStatList
		want   string
	}{
		{
			name: "routable address",
			ifaces: psnet.InterfaceStatList{
				{Name: "lo", Flags: []string{"up", "loopback"}, Addrs: psnet.InterfaceAddrList{{Addr: "127.0.0.1/8"}}},
				{Name: "wlan0", Flags: []string{"up", "broadcast"}, Addrs: psnet.InterfaceAddrList{
					{Addr: "fe80::1/64"},
					{Addr: "169.254.10.1/16"},
					{Addr: "192.168.1.20/24"},
				}},
			},
			want: "192.168.1.20",
		},
		{
			name: "interface down",
			ifaces: psnet.InterfaceStatList{
				{Name: "wlan0", Flags: []string{"broadcast"}, Addrs: psnet.InterfaceAddrList{{Addr: "192.168.1.20/24"}}},
			},
			want: "",
		},
		{
			name: "link-local only",
			ifaces: psnet.InterfaceStatList{
				{Name: "wlan0", Flags: []string{"up"}, Addrs: psnet.InterfaceAddrList{{Addr: "169.254.10.1/16"}}},
			},
			want: "",
		},
		{
			name: "other interface",
			ifaces: psnet.InterfaceStatList{
				{Name: "eth0", Flags: []string{"up"}, Addrs: psnet.InterfaceAddrList{{Addr: "10.0.0.5/8"}}},
			},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLink(&recordingRunner{}, tt.ifaces)
			if got := l.LocalIP(); got != tt.want {
				t.Errorf("LocalIP() = %q; want %q", got, tt.want)
			}
			if got := l.Connected(); got != (tt.want != "") {
				t.Errorf("Connected() = %v", got)
			}
		})
	}
}

func TestRSSI(t *testing.T) {
	content := `Inter-| sta-|   Quality        |   Discarded packets               | Missed | WE
 face | tus | link level noise |  nwid  crypt   frag  retry   misc | beacon | 22
 wlan0: 0000   54.  -56.  -256        0      0      0      0     12        0
`
	path := filepath.Join(t.TempDir(), "wireless")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	l := newTestLink(&recordingRunner{}, nil)
	l.wirelessPath = path
	if got := l.RSSI(); got != -56 {
		t.Errorf("RSSI() = %d; want -56", got)
	}

	l.iface = "wlan1"
	if got := l.RSSI(); got != 0 {
		t.Errorf("RSSI() for missing interface = %d; want 0", got)
	}

	l.wirelessPath = filepath.Join(t.TempDir(), "missing")
	if got := l.RSSI(); got != 0 {
		t.Errorf("RSSI() without file = %d; want 0", got)
	}
}
