package agent

import (
	"context"
	"time"

	"siapsuhu/internal/events"
)

// ensureAssociation keeps the station associated. An attempt blocks the
// control loop for up to AssociationPolls * AssociationPoll.
func (a *Agent) ensureAssociation(ctx context.Context, now time.Duration) {
	if a.link.Connected() {
		if a.network != Connected {
			// Associated outside an attempt of ours (driver auto-reconnect)
			a.linkUp("[WiFi] Link up")
		}
		return
	}

	if a.network == Connected {
		a.network = Disconnected
		a.logf("[WiFi] Link lost")
		a.record(events.EventWiFiLost, false, a.ssid)
	}

	if !a.association.ready(now) {
		return
	}

	// Abandon whatever the previous attempt left pending
	if a.association.attempted {
		if err := a.link.Disconnect(); err != nil {
			a.logf("[WiFi] Disconnect failed: %v", err)
		}
	}
	a.association.mark(now)
	a.network = Connecting
	a.counters.AssociationAttempts++

	a.logf("[WiFi] Connecting to SSID %s", a.ssid)
	if err := a.link.Begin(a.ssid, a.password); err != nil {
		a.logf("[WiFi] Begin failed: %v", err)
	}

	for i := 0; i < a.policy.AssociationPolls && !a.link.Connected(); i++ {
		if ctx.Err() != nil {
			break
		}
		a.clock.Sleep(a.policy.AssociationPoll)
	}

	if a.link.Connected() {
		a.linkUp("[WiFi] Connected")
		return
	}

	a.network = Disconnected
	a.logf("[WiFi] Failed to connect, will retry")
	a.record(events.EventWiFiFailed, false, a.ssid)
}

// linkUp marks the network connected and forces a fresh time sync.
func (a *Agent) linkUp(prefix string) {
	a.network = Connected
	a.timeSync.reset()

	ip, rssi := a.link.LocalIP(), a.link.RSSI()
	a.logf("%s, IP: %s RSSI: %d", prefix, ip, rssi)
	a.record(events.EventWiFiConnected, true, ip)
}
