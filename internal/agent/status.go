package agent

import "time"

// Counters are cumulative cycle counts since start.
type Counters struct {
	AssociationAttempts int `json:"associationAttempts"`
	SessionAttempts     int `json:"sessionAttempts"`
	Published           int `json:"published"`
	Skipped             int `json:"skipped"`
	Invalid             int `json:"invalid"`
	Failed              int `json:"failed"`
}

// Status is an immutable snapshot of the agent, taken after every tick.
type Status struct {
	DeviceID       string          `json:"deviceId"`
	Firmware       string          `json:"firmware"`
	TelemetryTopic string          `json:"telemetryTopic"`
	StatusTopic    string          `json:"statusTopic"`
	Network        ConnectionState `json:"network"`
	Session        ConnectionState `json:"session"`
	TimeSynced     bool            `json:"timeSynced"`
	TimeServer     string          `json:"timeServer,omitempty"`
	Uptime         time.Duration   `json:"uptimeNs"`
	LastAttempt    time.Duration   `json:"lastAssociationAttemptNs"`
	LastSync       time.Duration   `json:"lastSyncNs"`
	LastPublish    time.Duration   `json:"lastPublishNs"`
	Counters       Counters        `json:"counters"`
}

// Status returns the latest snapshot. Safe to call from any goroutine.
func (a *Agent) Status() Status {
	return *a.status.Load()
}

func (a *Agent) publishStatus(now time.Duration) {
	a.status.Store(&Status{
		DeviceID:       a.id.String(),
		Firmware:       a.firmware,
		TelemetryTopic: a.topics.Telemetry(),
		StatusTopic:    a.topics.Status(),
		Network:        a.network,
		Session:        a.session,
		TimeSynced:     a.timeSync.synced,
		TimeServer:     a.timeSource.Server(),
		Uptime:         now,
		LastAttempt:    a.association.lastAttempt,
		LastSync:       a.timeSync.lastSync,
		LastPublish:    a.lastPublish,
		Counters:       a.counters,
	})
}
