package mqtt

import "fmt"

// Topic prefixes per the Gray Logic MQTT scheme.
// Bridge topics use the flat form: graylogic/{category}/{protocol}/{address}.
// The cloud bridge's protocol segment is "cloud".
const (
	// TopicPrefix is the base for all bridge topics.
	TopicPrefix = "graylogic"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "graylogic/system"

	// protocolSegment identifies this bridge on the bus.
	protocolSegment = "cloud"
)

// Topics provides builders for the cloud bridge's MQTT topics.
// Using these helpers keeps topic naming consistent across the codebase.
type Topics struct{}

// DoorState returns the retained state topic for a door.
//
// Example: graylogic/state/cloud/garage-door
func (Topics) DoorState(device string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, protocolSegment, device)
}

// DoorCommand returns the command topic for a door. Payloads are the target
// state name ("open" or "closed"), optionally wrapped in JSON by publishers
// that include metadata.
//
// Example: graylogic/command/cloud/garage-door
func (Topics) DoorCommand(device string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, protocolSegment, device)
}

// DoorAck returns the acknowledgement topic for a door command.
//
// Example: graylogic/ack/cloud/garage-door
func (Topics) DoorAck(device string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, protocolSegment, device)
}

// BridgeHealth returns the bridge health topic.
//
// Example: graylogic/health/cloud
func (Topics) BridgeHealth() string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, protocolSegment)
}

// SystemStatus returns the system status topic used for the bridge's
// online/offline lifecycle, including the LWT.
//
// Example: graylogic/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllDoorCommands returns a pattern matching command topics for every door
// handled by this bridge.
//
// Pattern: graylogic/command/cloud/+
func (Topics) AllDoorCommands() string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefix, protocolSegment)
}

// DeviceFromCommandTopic extracts the device segment from a command topic.
// Returns an empty string if the topic does not match the command scheme.
func DeviceFromCommandTopic(topic string) string {
	prefix := fmt.Sprintf("%s/command/%s/", TopicPrefix, protocolSegment)
	if len(topic) <= len(prefix) || topic[:len(prefix)] != prefix {
		return ""
	}
	return topic[len(prefix):]
}
