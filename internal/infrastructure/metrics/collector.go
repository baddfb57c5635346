package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "curriculum_hub"

// Collector holds the service's Prometheus metrics.
type Collector struct {
	operations   *prometheus.CounterVec
	bulkItems    *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewCollector creates the metrics and registers them on reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_operations_total",
			Help:      "Audited workflow operations by kind and result",
		}, []string{"operation", "result"}),

		bulkItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bulk_items_total",
			Help:      "Items processed by bulk operations",
		}, []string{"result"}),

		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),

		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"method", "route"}),
	}

	for _, m := range []prometheus.Collector{c.operations, c.bulkItems, c.httpRequests, c.httpDuration} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// ObserveOperation counts one audited operation.
func (c *Collector) ObserveOperation(operation string, success bool) {
	c.operations.WithLabelValues(operation, result(success)).Inc()
}

// ObserveBulkItems counts bulk item outcomes.
func (c *Collector) ObserveBulkItems(succeeded, failed int) {
	c.bulkItems.WithLabelValues("success").Add(float64(succeeded))
	c.bulkItems.WithLabelValues("failure").Add(float64(failed))
}

// ObserveHTTP records one served request.
func (c *Collector) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
