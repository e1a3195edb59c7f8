// Package influxdb records the bridge's telemetry in InfluxDB v2.
//
// Two measurements are written: cloud_call (one point per cloud API call,
// tagged by endpoint kind and name, carrying success, attempt count, and
// duration) and door_state (one point per state transition). Writes are
// batched and asynchronous; telemetry never blocks the control path, and a
// disabled or disconnected client degrades to a no-op.
package influxdb
