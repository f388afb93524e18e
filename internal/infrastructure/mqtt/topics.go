package mqtt

import (
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-agent/internal/device"
)

// TopicPrefixDevice is the root of every per-device topic.
//
// Topic scheme: device/{device_id}/{channel}
const TopicPrefixDevice = "device"

// Per-device topic channels.
const (
	ChannelStatus     = "status"
	ChannelProperties = "properties"
	ChannelCommand    = "command"
	ChannelReply      = "reply"
)

// TopicSet holds the four topics derived from a device ID.
//
//	topics, _ := mqtt.TopicsFor("ESP32_001")
//	topics.Command // "device/ESP32_001/command"
type TopicSet struct {
	// Status carries online/offline envelopes and the last will.
	Status string

	// Properties carries periodic telemetry reports.
	Properties string

	// Command is subscribed on every connect; the backend publishes commands here.
	Command string

	// Reply carries command results correlated by command_id.
	Reply string
}

// TopicsFor derives the topic set for a device.
//
// Returns ErrInvalidDeviceID if the ID is empty or contains MQTT separator
// or wildcard characters. Distinct valid IDs always yield distinct topics.
func TopicsFor(deviceID string) (TopicSet, error) {
	if err := (device.Identity{ID: deviceID}).Validate(); err != nil {
		return TopicSet{}, fmt.Errorf("%w: %w", ErrInvalidDeviceID, err)
	}

	return TopicSet{
		Status:     deviceTopic(deviceID, ChannelStatus),
		Properties: deviceTopic(deviceID, ChannelProperties),
		Command:    deviceTopic(deviceID, ChannelCommand),
		Reply:      deviceTopic(deviceID, ChannelReply),
	}, nil
}

// IsCommand reports whether topic is exactly this device's command topic.
func (t TopicSet) IsCommand(topic string) bool {
	return topic != "" && topic == t.Command
}

// deviceTopic builds device/{id}/{channel}.
func deviceTopic(deviceID, channel string) string {
	return TopicPrefixDevice + "/" + deviceID + "/" + channel
}

// validatePublishTopic rejects topic names a broker would refuse for PUBLISH.
func validatePublishTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: topic cannot be empty", ErrInvalidTopic)
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: wildcards not allowed in publish topic %q", ErrInvalidTopic, topic)
	}
	if strings.ContainsRune(topic, 0) {
		return fmt.Errorf("%w: topic contains NUL", ErrInvalidTopic)
	}
	return nil
}

// validateFilter rejects malformed subscription filters.
//
// "+" must occupy a whole level and "#" must be the last level.
func validateFilter(filter string) error {
	if filter == "" {
		return fmt.Errorf("%w: topic filter cannot be empty", ErrInvalidTopic)
	}
	levels := strings.Split(filter, "/")
	for i, level := range levels {
		if strings.Contains(level, "#") && (level != "#" || i != len(levels)-1) {
			return fmt.Errorf("%w: '#' must be the last level in %q", ErrInvalidTopic, filter)
		}
		if strings.Contains(level, "+") && level != "+" {
			return fmt.Errorf("%w: '+' must occupy a whole level in %q", ErrInvalidTopic, filter)
		}
	}
	return nil
}
