// Package mqtt provides MQTT connectivity for the cloud bridge.
//
// The bridge publishes door state (retained) and command acknowledgements,
// and subscribes to door command topics, using the flat Gray Logic scheme
// graylogic/{category}/cloud/{device}. An LWT on graylogic/system/status
// lets the rest of the bus distinguish a crashed bridge from a stopped one.
//
// Connections auto-reconnect with exponential backoff, and tracked
// subscriptions are restored after every reconnect.
package mqtt
