package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/virtfoo-core/internal/device"
)

// MeasurementCounter holds one point per committed counter mutation.
const MeasurementCounter = "device_counter"

// counterPoint converts a mutation into a point.
// Tags: device_id, kind, source. Fields: value, seq.
func counterPoint(deviceID string, m device.Mutation) *write.Point {
	at := m.At
	if at.IsZero() {
		at = time.Now()
	}
	return write.NewPoint(
		MeasurementCounter,
		map[string]string{
			"device_id": deviceID,
			"kind":      m.Kind.String(),
			"source":    string(m.Source),
		},
		map[string]any{
			"value": int64(m.Value),
			"seq":   int64(m.Seq), //nolint:gosec // sequence numbers stay far below MaxInt64
		},
		at,
	)
}

// WriteMutation queues a counter point. Non-blocking; dropped when closed.
func (c *Client) WriteMutation(deviceID string, m device.Mutation) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(counterPoint(deviceID, m))
}

// CounterRecorder is a device.Observer that records every mutation.
type CounterRecorder struct {
	client   *Client
	deviceID string
}

// NewCounterRecorder returns an observer writing points for deviceID.
func NewCounterRecorder(client *Client, deviceID string) *CounterRecorder {
	return &CounterRecorder{client: client, deviceID: deviceID}
}

// ObserveMutation implements device.Observer.
func (r *CounterRecorder) ObserveMutation(m device.Mutation) {
	r.client.WriteMutation(r.deviceID, m)
}
