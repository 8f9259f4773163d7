package metrics

import (
	io_prometheus_client "github.com/prometheus/client_model/go"
)

// Filter visits metrics in families.
//
// # Args
//
// - map[string]*io_prometheus_client.MetricFamily: a map of metric families.
//
// - func(*io_prometheus_client.Metric) error: a callback function for a metric satisfiled the filter.
type Filter func(
	map[string]*io_prometheus_client.MetricFamily,
	func(*io_prometheus_client.Metric) error,
) error

func ForKey(key string, mfilt ...MetricFilter) Filter {
	return func(
		mfs map[string]*io_prometheus_client.MetricFamily,
		callback func(*io_prometheus_client.Metric) error,
	) error {

		mf, ok := mfs[key]
		if !ok {
			return nil
		}
	METRIC:
		for _, m := range mf.Metric {
			for _, f := range mfilt {
				if !f(m) {
					continue METRIC
				}
			}
			if err := callback(m); err != nil {
				return err
			}
		}
		return nil
	}
}

// MetricFilter is a filter for metrics.
type MetricFilter func(*io_prometheus_client.Metric) bool

// WithLabelAndValue matches a metric having a label with given name and value.
func WithLabelAndValue(name string, value string) MetricFilter {
	return func(m *io_prometheus_client.Metric) bool {
		for _, l := range m.Label {
			if l.GetName() == name && l.GetValue() == value {
				return true
			}
		}
		return false
	}
}

// Value of a counter, gauge or untyped metric. Histograms and summaries are their sample count.
func Value(m *io_prometheus_client.Metric) float64 {
	switch {
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	case m.Untyped != nil:
		return m.Untyped.GetValue()
	case m.Histogram != nil:
		return float64(m.Histogram.GetSampleCount())
	case m.Summary != nil:
		return float64(m.Summary.GetSampleCount())
	}
	return 0
}

// Sum adds values of metrics passing the filter.
func Sum(mfs map[string]*io_prometheus_client.MetricFamily, filter Filter) float64 {
	total := 0.0
	filter(mfs, func(m *io_prometheus_client.Metric) error {
		total += Value(m)
		return nil
	})
	return total
}
