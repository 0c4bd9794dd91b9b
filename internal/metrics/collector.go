// Package metrics exposes run outcomes as Prometheus metrics.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pendsync"

// RunSample is one finished run as seen by the collector.
type RunSample struct {
	Succeeded      bool
	FailedStage    string
	ErrorCode      string
	FinishedAt     time.Time
	Duration       time.Duration
	StageDurations map[string]time.Duration
	Rows           int
}

// Collector owns a private registry so several collectors can coexist in tests.
type Collector struct {
	registry *prometheus.Registry

	runsTotal        *prometheus.CounterVec
	lastRunTimestamp prometheus.Gauge
	lastRunSuccess   prometheus.Gauge
	lastRunDuration  prometheus.Gauge
	stageDuration    *prometheus.GaugeVec
	publishedRows    prometheus.Gauge

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewCollector registers the run metrics. withRuntime adds the Go and
// process collectors, which only make sense for a long-lived server.
func NewCollector(withRuntime bool) *Collector {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		runsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished runs by outcome and error code",
		}, []string{"status", "code"}),
		lastRunTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
		lastRunSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 if the last run published the sheet, 0 otherwise",
		}),
		lastRunDuration: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last run",
		}),
		stageDuration: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_stage_duration_seconds",
			Help:      "Time spent in each stage of the last run",
		}, []string{"stage"}),
		publishedRows: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_published_rows",
			Help:      "Data rows written to the sheet by the last successful run",
		}),
		httpRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Controller API requests",
		}, []string{"method", "status"}),
		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Controller API request duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// RecordRun updates the gauges for a finished run.
func (c *Collector) RecordRun(s RunSample) {
	status := "failed"
	if s.Succeeded {
		status = "succeeded"
	}
	c.runsTotal.WithLabelValues(status, s.ErrorCode).Inc()

	finished := s.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	c.lastRunTimestamp.Set(float64(finished.Unix()))
	c.lastRunDuration.Set(s.Duration.Seconds())
	if s.Succeeded {
		c.lastRunSuccess.Set(1)
		c.publishedRows.Set(float64(s.Rows))
	} else {
		c.lastRunSuccess.Set(0)
	}

	c.stageDuration.Reset()
	for stage, d := range s.StageDurations {
		c.stageDuration.WithLabelValues(stage).Set(d.Seconds())
	}
}

// RecordHTTPRequest counts one controller API request.
func (c *Collector) RecordHTTPRequest(method string, status int, d time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the registry for the node exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("metrics: write textfile: %w", err)
	}
	return nil
}
