package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// RecordCall writes one cloud API call outcome to the cloud_call measurement.
//
// Satisfies the dispatcher's telemetry interface. The write is non-blocking;
// the point is batched and sent asynchronously.
//
// Parameters:
//   - kind: "function" or "variable"
//   - name: The endpoint name (e.g. "setDoor")
//   - success: Whether the call delivered a usable result
//   - attempts: Transport attempts made, including retries
//   - duration: Wall time from first attempt to completion
func (c *Client) RecordCall(kind, name string, success bool, attempts int, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"cloud_call",
		map[string]string{
			"kind": kind,
			"name": name,
		},
		map[string]interface{}{
			"success":     success,
			"attempts":    attempts,
			"duration_ms": float64(duration.Milliseconds()),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// RecordDoorState writes a door state transition to the door_state
// measurement. Satisfies the door controller's telemetry interface.
func (c *Client) RecordDoorState(device, state string, obstructed bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"door_state",
		map[string]string{
			"device": device,
		},
		map[string]interface{}{
			"state":      state,
			"obstructed": obstructed,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
// Use for measurements that don't fit the domain helpers.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}
