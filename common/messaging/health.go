package messaging

import (
	"time"
)

// HealthStatus is the broker section of the readiness report.
type HealthStatus struct {
	Connected bool   `json:"connected"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// RoundTripper is implemented by clients that can measure a server round trip.
type RoundTripper interface {
	RTT() (time.Duration, error)
}

// CheckClientHealth reports whether client is connected and, when it can
// measure one, the current round-trip time.
func CheckClientHealth(client Client) HealthStatus {
	var status HealthStatus
	if client == nil {
		status.Error = "client is nil"
		return status
	}

	status.Connected = client.IsConnected()
	if !status.Connected {
		status.Error = "not connected to message broker"
		return status
	}

	if rt, ok := client.(RoundTripper); ok {
		rtt, err := rt.RTT()
		if err != nil {
			status.Error = "round trip failed: " + err.Error()
			return status
		}
		status.LatencyMS = rtt.Milliseconds()
	}
	return status
}
