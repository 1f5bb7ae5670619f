// Package influxdb records delivery telemetry for Gray Logic Notify.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health monitoring. The
// client implements subscription.Recorder, so every fan-out outcome can be
// written as a point:
//
//	measurement: delivery_outcomes
//	tags:        subscriber_type, status
//	fields:      entity_id, subscriber_id, error (failed outcomes only)
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	registry := subscription.NewRegistry(s, ch, subscription.Options{Recorder: client})
//
// Entity and subscriber ids are fields rather than tags to keep series
// cardinality bounded.
package influxdb
