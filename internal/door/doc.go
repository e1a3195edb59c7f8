// Package door implements the garage door state machine on top of the
// particle dispatcher.
//
// The door is a remote actuator: commands go out as asynchronous setDoor
// function calls, and truth comes back only through polled reads of the
// doorState variable. The controller keeps the two apart deliberately - a
// command acknowledgement never changes state, and an unconfirmed command
// eventually surfaces as an obstruction.
//
// The control loop (Run) ticks once per second, polling on an accelerated
// tier while a command is pending and on a slow background tier otherwise.
// Status changes fan out to an optional Publisher (MQTT, WebSocket) and
// Recorder (InfluxDB).
package door
