package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementGatewayStatus = "gateway_status"
	MeasurementRawMessages   = "raw_messages"
)

// StatusPoint is one gateway status transition.
type StatusPoint struct {
	GatewayID   int64
	GatewayName string
	NetworkType string
	Status      string
	Message     string
	At          time.Time
}

// MessagePoint is one inbound payload.
type MessagePoint struct {
	MessageID   string
	GatewayID   int64
	NetworkType string
	SubData     string
	Payload     []byte
	At          time.Time
}

// WriteGatewayStatus records a status transition. The "up" field is 1 for
// UP and 0 otherwise so dashboards can graph availability directly.
func (c *Client) WriteGatewayStatus(s StatusPoint) {
	c.writePoint(statusPoint(s))
}

// WriteRawMessage archives an inbound payload.
func (c *Client) WriteRawMessage(m MessagePoint) {
	c.writePoint(messagePoint(m))
}

func statusPoint(s StatusPoint) *write.Point {
	up := 0
	if s.Status == "UP" {
		up = 1
	}
	return write.NewPoint(
		MeasurementGatewayStatus,
		map[string]string{
			"gateway_id": strconv.FormatInt(s.GatewayID, 10),
			"gateway":    s.GatewayName,
			"network":    s.NetworkType,
		},
		map[string]interface{}{
			"status":  s.Status,
			"message": s.Message,
			"up":      up,
		},
		timestampOrNow(s.At),
	)
}

// messagePoint keeps sub_data as a field: topics and channels are
// unbounded and would blow up series cardinality as tags.
func messagePoint(m MessagePoint) *write.Point {
	return write.NewPoint(
		MeasurementRawMessages,
		map[string]string{
			"gateway_id": strconv.FormatInt(m.GatewayID, 10),
			"network":    m.NetworkType,
		},
		map[string]interface{}{
			"message_id": m.MessageID,
			"sub_data":   m.SubData,
			"payload":    string(m.Payload),
			"bytes":      len(m.Payload),
		},
		timestampOrNow(m.At),
	)
}

func timestampOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
