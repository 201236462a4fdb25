package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Detector      string       `json:"detector"`
	LastAction    *ActionJSON  `json:"last_action,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"action_counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// ActionJSON is the JSON representation of the last consumed action.
type ActionJSON struct {
	Timestamp string `json:"timestamp"`
	Pin       int    `json:"pin"`
	Name      string `json:"name,omitempty"`
	Action    string `json:"action"`
	HeldMs    int64  `json:"held_ms"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of action counts.
type CountsJSON struct {
	Pressed     int `json:"pressed"`
	LongPressed int `json:"long_pressed"`
	Abandoned   int `json:"abandoned"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ButtonJSON is the JSON representation of a configured button.
type ButtonJSON struct {
	Pin  int    `json:"pin"`
	Name string `json:"name"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Buttons     []ButtonJSON `json:"buttons"`
	DebounceMs  int64        `json:"debounce_ms"`
	LongPressMs int64        `json:"long_press_ms"`
	PollMs      int64        `json:"poll_ms"`
	HeartbeatMs int64        `json:"heartbeat_ms"`
	Backend     string       `json:"backend"`
	Broker      string       `json:"broker"`
	HTTPAddr    string       `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	detector := string(snap.Detector)
	if detector == "" {
		detector = "UNKNOWN"
	}

	buttons := make([]ButtonJSON, len(snap.Config.Buttons))
	for i, b := range snap.Config.Buttons {
		buttons[i] = ButtonJSON{Pin: b.Pin, Name: b.Name}
	}

	inner := StatusInner{
		Detector:      detector,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Pressed:     snap.Counts.Pressed,
			LongPressed: snap.Counts.LongPressed,
			Abandoned:   snap.Counts.Abandoned,
		},
		Config: ConfigJSON{
			Buttons:     buttons,
			DebounceMs:  snap.Config.DebounceMs,
			LongPressMs: snap.Config.LongPressMs,
			PollMs:      snap.Config.PollMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Backend:     snap.Config.Backend,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}

	if a := snap.LastAction; a != nil {
		inner.LastAction = &ActionJSON{
			Timestamp: a.Timestamp.UTC().Format(time.RFC3339),
			Pin:       a.Pin,
			Name:      a.Name,
			Action:    string(a.Action),
			HeldMs:    a.HeldFor.Milliseconds(),
		}
	}

	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
