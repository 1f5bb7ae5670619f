package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-notify/internal/subscription"
)

// MeasurementDeliveryOutcomes is the measurement fan-out outcomes are written to.
const MeasurementDeliveryOutcomes = "delivery_outcomes"

// RecordOutcome writes one fan-out outcome. It implements subscription.Recorder.
func (c *Client) RecordOutcome(entityID string, o subscription.Outcome) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(outcomePoint(entityID, o, c.now()))
}

func outcomePoint(entityID string, o subscription.Outcome, ts time.Time) *write.Point {
	fields := map[string]any{
		"entity_id":     entityID,
		"subscriber_id": o.SubscriberID,
	}
	if o.Err != nil {
		fields["error"] = o.Err.Error()
	}

	return write.NewPoint(
		MeasurementDeliveryOutcomes,
		map[string]string{
			"subscriber_type": o.Type,
			"status":          o.Status,
		},
		fields,
		ts,
	)
}

// WritePoint writes a custom point stamped with the current time.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, c.now()))
}
