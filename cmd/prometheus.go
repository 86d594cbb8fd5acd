package cmd

import (
	"net/http"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/prometheus/common/expfmt"
	log "github.com/sirupsen/logrus"
)

// PrometheusConfig holds configuration for Prometheus metrics reporting
type PrometheusConfig struct {
	Enabled bool
	PushURL string
	JobName string
}

// SummaryMetrics holds the gauges derived from an inspect summary
type SummaryMetrics struct {
	Images        *prometheus.GaugeVec
	Labels        *prometheus.GaugeVec
	Pairs         *prometheus.GaugeVec
	MeanIntensity *prometheus.GaugeVec
	ClassCount    *prometheus.GaugeVec
}

// NewSummaryMetrics creates the summary gauges and registers them on registry
func NewSummaryMetrics(registry prometheus.Registerer, labels prometheus.Labels) *SummaryMetrics {
	metrics := &SummaryMetrics{
		Images: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "mnist_split_images",
			Help:        "Whole image records decoded for a split",
			ConstLabels: labels,
		}, []string{"split"}),
		Labels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "mnist_split_labels",
			Help:        "Labels decoded for a split",
			ConstLabels: labels,
		}, []string{"split"}),
		Pairs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "mnist_split_pairs",
			Help:        "Labeled examples after pairing and bounding",
			ConstLabels: labels,
		}, []string{"split"}),
		MeanIntensity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "mnist_split_mean_intensity",
			Help:        "Mean raw pixel value of the paired images",
			ConstLabels: labels,
		}, []string{"split"}),
		ClassCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "mnist_split_class_examples",
			Help:        "Paired examples per digit class",
			ConstLabels: labels,
		}, []string{"split", "class"}),
	}

	registry.MustRegister(
		metrics.Images,
		metrics.Labels,
		metrics.Pairs,
		metrics.MeanIntensity,
		metrics.ClassCount,
	)

	return metrics
}

func (m *SummaryMetrics) Set(summary *Summary) {
	for _, s := range summary.Splits {
		m.Images.WithLabelValues(s.Split).Set(float64(s.Images))
		m.Labels.WithLabelValues(s.Split).Set(float64(s.Labels))
		m.Pairs.WithLabelValues(s.Split).Set(float64(s.Pairs))
		m.MeanIntensity.WithLabelValues(s.Split).Set(s.MeanIntensity)
		for c, n := range s.Histogram {
			m.ClassCount.WithLabelValues(s.Split, strconv.Itoa(c)).Set(float64(n))
		}
	}
}

// PushMetricsToPrometheus pushes the loader metrics and the summary to a Prometheus pushgateway
func PushMetricsToPrometheus(cfg *Config, registry *prometheus.Registry, summary *Summary) error {
	if !cfg.PrometheusConfig.Enabled || cfg.PrometheusConfig.PushURL == "" {
		return nil
	}

	labels := prometheus.Labels{}

	// Add custom labels from config
	if cfg.LabelMap != nil {
		for key, value := range cfg.LabelMap {
			labels[key] = value
		}
	}

	NewSummaryMetrics(registry, labels).Set(summary)

	pusher := push.New(cfg.PrometheusConfig.PushURL, cfg.PrometheusConfig.JobName).
		Gatherer(registry).
		Grouping("run_id", summary.RunID)

	if err := pusher.Push(); err != nil {
		log.WithError(err).Error("Failed to push metrics to Prometheus")
		return err
	}

	log.WithFields(log.Fields{
		"url":    cfg.PrometheusConfig.PushURL,
		"job":    cfg.PrometheusConfig.JobName,
		"run_id": summary.RunID,
	}).Info("Successfully pushed metrics to Prometheus")

	return nil
}

// writeMetricsFile dumps everything gathered by registry in the text
// exposition format. An empty path writes nothing.
func writeMetricsFile(path string, registry prometheus.Gatherer) error {
	if path == "" {
		return nil
	}

	families, err := registry.Gather()
	if err != nil {
		return errors.Wrap(err, "gather metrics")
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create metrics file")
	}
	defer f.Close()

	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(f, mf); err != nil {
			return errors.Wrapf(err, "write metric %s", mf.GetName())
		}
	}

	log.WithFields(log.Fields{"file": path, "families": len(families)}).Debug("Wrote metrics")
	return nil
}

// serveMetrics exposes registry on addr under /metrics for the lifetime of
// the process. An empty addr serves nothing.
func serveMetrics(addr string, registry *prometheus.Registry) {
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	go func() {
		log.WithField("addr", addr).Info("Serving metrics")
		if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Metrics server stopped")
		}
	}()
}
