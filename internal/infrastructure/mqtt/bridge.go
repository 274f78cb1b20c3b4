package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/virtfoo-core/internal/device"
)

// Publisher is the publishing half of Client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Subscriber is the subscribing half of Client.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler MessageHandler) error
}

// Commander accepts command register writes in text form.
type Commander interface {
	StoreCmd(input string) (uint32, error)
}

// CountPayload is the retained state on the device count topic.
type CountPayload struct {
	DeviceID  string    `json:"device_id"`
	Count     int       `json:"count"`
	Seq       uint64    `json:"seq"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EventPayload is published on the device event topic for every mutation.
type EventPayload struct {
	DeviceID string `json:"device_id"`
	device.Mutation
}

// DeviceBridge mirrors one device onto the broker. It publishes every
// counter mutation and feeds the command topic into the command register.
type DeviceBridge struct {
	pub      Publisher
	deviceID string
	qos      byte
	logger   Logger
	topics   Topics
}

// NewDeviceBridge creates a bridge for deviceID. logger may be nil.
func NewDeviceBridge(pub Publisher, deviceID string, qos byte, logger Logger) *DeviceBridge {
	if logger == nil {
		logger = noopLogger{}
	}
	return &DeviceBridge{pub: pub, deviceID: deviceID, qos: qos, logger: logger}
}

// ObserveMutation publishes the mutation event and the new retained count.
func (b *DeviceBridge) ObserveMutation(m device.Mutation) {
	event, err := json.Marshal(EventPayload{DeviceID: b.deviceID, Mutation: m})
	if err == nil {
		err = b.pub.Publish(b.topics.DeviceEvent(b.deviceID), event, b.qos, false)
	}
	if err != nil {
		b.logger.Warn("publishing counter event failed", "device_id", b.deviceID, "seq", m.Seq, "error", err)
	}

	state, err := json.Marshal(CountPayload{DeviceID: b.deviceID, Count: m.Value, Seq: m.Seq, UpdatedAt: m.At})
	if err == nil {
		err = b.pub.Publish(b.topics.DeviceCount(b.deviceID), state, b.qos, true)
	}
	if err != nil {
		b.logger.Warn("publishing counter state failed", "device_id", b.deviceID, "seq", m.Seq, "error", err)
	}
}

// ServeCommands subscribes to the device command topic and writes each
// payload to cmd.
func (b *DeviceBridge) ServeCommands(sub Subscriber, cmd Commander) error {
	topic := b.topics.DeviceCommand(b.deviceID)
	if err := sub.Subscribe(topic, b.qos, b.commandHandler(cmd)); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	return nil
}

func (b *DeviceBridge) commandHandler(cmd Commander) MessageHandler {
	return func(topic string, payload []byte) error {
		value, err := cmd.StoreCmd(string(payload))
		if err != nil {
			return fmt.Errorf("command on %s: %w", topic, err)
		}
		b.logger.Info("command written", "device_id", b.deviceID, "value", value)
		return nil
	}
}
