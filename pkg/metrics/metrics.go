// Package metrics counts what orchestration passes decide, in Prometheus format.
//
// Orchestration runs are short-lived processes, so metrics are written to a
// textfile (for node_exporter's textfile collector) rather than served.
package metrics

import (
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	io_prometheus_client "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	xe "github.com/roundup-project/roundup/pkg/errors"
)

const namespace = "roundup"

const (
	// metric names, for reading them back.
	TaskDecisions = namespace + "_task_decisions_total"
	PassSeconds   = namespace + "_pass_duration_seconds"
	BatchAllDone  = namespace + "_batch_all_done"
)

// Metrics is a set of collectors in its own registry.
//
// Methods of nil *Metrics do nothing.
type Metrics struct {
	registry  *prometheus.Registry
	decisions *prometheus.CounterVec
	passes    *prometheus.HistogramVec
	allDone   *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_decisions_total",
			Help:      "Decisions of orchestration passes per task.",
		}, []string{"namespace", "decision"}),
		passes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Duration of orchestration passes.",
			Buckets:   []float64{0.1, 1, 10, 60, 600, 3600, 6 * 3600, 24 * 3600},
		}, []string{"namespace"}),
		allDone: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_all_done",
			Help:      "1 if every task of the batch was done at the end of the last pass, 0 otherwise.",
		}, []string{"namespace"}),
	}
	m.registry.MustRegister(m.decisions, m.passes, m.allDone)
	return m
}

// Registry returns the registry of the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Decision counts a decision for a task.
func (m *Metrics) Decision(ns string, decision string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(ns, decision).Inc()
}

// Pass records a finished pass.
func (m *Metrics) Pass(ns string, took time.Duration, allDone bool) {
	if m == nil {
		return
	}
	m.passes.WithLabelValues(ns).Observe(took.Seconds())
	v := 0.0
	if allDone {
		v = 1
	}
	m.allDone.WithLabelValues(ns).Set(v)
}

// WriteTextfile writes the metrics in the text exposition format.
//
// The file is replaced atomically, so collectors never read a partial file.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	mfs, err := m.registry.Gather()
	if err != nil {
		return xe.Wrap(err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return xe.Wrap(err)
	}
	defer os.Remove(tmp.Name())

	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(tmp, mf); err != nil {
			tmp.Close()
			return xe.Wrap(err)
		}
	}
	if err := tmp.Close(); err != nil {
		return xe.Wrap(err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return xe.Wrap(err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return xe.Wrap(err)
	}
	return nil
}

// ReadTextfile parses a file in the text exposition format.
func ReadTextfile(path string) (map[string]*io_prometheus_client.MetricFamily, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	defer f.Close()

	var p expfmt.TextParser
	mfs, err := p.TextToMetricFamilies(f)
	if err != nil {
		return nil, xe.WrapWithNote(path, err)
	}
	return mfs, nil
}
