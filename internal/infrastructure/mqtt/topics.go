package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every topic this service publishes or consumes.
const TopicPrefix = "virtfoo"

// Topics builds virt-foo topic names.
//
//	t := mqtt.Topics{}
//	t.DeviceCount("vf0") // "virtfoo/device/vf0/count"
type Topics struct{}

// DeviceCount is the retained counter state of one device.
func (Topics) DeviceCount(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/count", TopicPrefix, deviceID)
}

// DeviceEvent carries one message per committed counter mutation.
func (Topics) DeviceEvent(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/event", TopicPrefix, deviceID)
}

// DeviceCommand is subscribed to; its payload is written to the command register.
func (Topics) DeviceCommand(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/cmd", TopicPrefix, deviceID)
}

// AllDeviceCommands matches the command topic of every device.
func (Topics) AllDeviceCommands() string {
	return TopicPrefix + "/device/+/cmd"
}

// SystemStatus carries the online/offline status and the LWT.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// DeviceIDFromTopic extracts the device ID from a virtfoo/device/{id}/... topic.
func DeviceIDFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 4 || parts[0] != TopicPrefix || parts[1] != "device" || parts[2] == "" {
		return "", false
	}
	return parts[2], true
}
