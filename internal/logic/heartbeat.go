package logic

import "time"

// Heartbeat paces periodic liveness reports.
type Heartbeat struct {
	interval  time.Duration
	startTime time.Time
	last      time.Time
}

// NewHeartbeat creates a Heartbeat. The startTime is used for calculating
// uptime; an interval <= 0 disables it.
func NewHeartbeat(startTime time.Time, interval time.Duration) *Heartbeat {
	return &Heartbeat{
		interval:  interval,
		startTime: startTime,
		last:      startTime,
	}
}

// Check returns heartbeat data if the interval has elapsed since the last
// heartbeat (or startup). Returns nil if the interval has not elapsed or if
// the heartbeat is disabled.
func (h *Heartbeat) Check(now time.Time, counts ActionCounts) *HeartbeatData {
	if h.interval <= 0 {
		return nil
	}

	if now.Sub(h.last) < h.interval {
		return nil
	}

	h.last = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(h.startTime),
		Counts:    counts,
	}
}
