package mqtt

import (
	"fmt"
	"strings"
)

// Topic tree used between the core and device firmware:
//
//	homestate/report/{deviceId}   device → core, partial state JSON
//	homestate/state/{deviceId}    core → device, retained snapshot
//	homestate/system/status       core presence, retained (LWT offline)
const (
	// TopicPrefix is the root of every homestate topic.
	TopicPrefix = "homestate"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = TopicPrefix + "/system"

	// KindReport is the topic level for device reports.
	KindReport = "report"

	// KindState is the topic level for published snapshots.
	KindState = "state"
)

// Topics builds homestate topic names.
//
//	topics := mqtt.Topics{}
//	topics.DeviceState("esp-42") // "homestate/state/esp-42"
type Topics struct{}

// DeviceReport returns the topic a device publishes its readings on.
func (Topics) DeviceReport(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefix, KindReport, deviceID)
}

// DeviceState returns the topic the core publishes a device's snapshot on.
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefix, KindState, deviceID)
}

// SystemStatus returns the core presence topic.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// AllDeviceReports matches every device report: homestate/report/+
func (Topics) AllDeviceReports() string {
	return fmt.Sprintf("%s/%s/+", TopicPrefix, KindReport)
}

// AllDeviceStates matches every published snapshot: homestate/state/+
func (Topics) AllDeviceStates() string {
	return fmt.Sprintf("%s/%s/+", TopicPrefix, KindState)
}

// AllTopics matches the whole homestate tree.
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}

// ParseDeviceTopic splits homestate/{kind}/{deviceId}. ok is false for
// any other shape, including an empty device ID.
func ParseDeviceTopic(topic string) (kind, deviceID string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != TopicPrefix || parts[2] == "" {
		return "", "", false
	}
	switch parts[1] {
	case KindReport, KindState:
		return parts[1], parts[2], true
	default:
		return "", "", false
	}
}
