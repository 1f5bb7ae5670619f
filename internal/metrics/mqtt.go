package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// MQTTCounts is a snapshot of inbound MQTT message outcomes.
type MQTTCounts struct {
	Received uint64
	Failed   uint64
	Panicked uint64
}

var mqttSource atomic.Pointer[func() MQTTCounts]

// SetMQTTSource sets the function sampled on every scrape. Passing nil
// stops reporting.
func SetMQTTSource(fn func() MQTTCounts) {
	if fn == nil {
		mqttSource.Store(nil)
		return
	}
	mqttSource.Store(&fn)
}

var mqttMessagesDesc = prometheus.NewDesc(
	prometheus.BuildFQName(namespace, "mqtt", "messages_total"),
	"Inbound MQTT messages by handler outcome",
	[]string{"outcome"}, nil,
)

// mqttCollector reads the MQTT client's own counters at scrape time.
type mqttCollector struct{}

func (mqttCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- mqttMessagesDesc
}

func (mqttCollector) Collect(ch chan<- prometheus.Metric) {
	fn := mqttSource.Load()
	if fn == nil {
		return
	}
	c := (*fn)()
	ch <- prometheus.MustNewConstMetric(mqttMessagesDesc, prometheus.CounterValue, float64(c.Received), "received")
	ch <- prometheus.MustNewConstMetric(mqttMessagesDesc, prometheus.CounterValue, float64(c.Failed), "failed")
	ch <- prometheus.MustNewConstMetric(mqttMessagesDesc, prometheus.CounterValue, float64(c.Panicked), "panicked")
}
