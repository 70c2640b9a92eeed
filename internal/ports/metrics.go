package ports

import "time"

// Metrics is the sink components report counters, timings and gauges to.
type Metrics interface {
	IncCounter(name string, labels map[string]string)
	ObserveDuration(name string, d time.Duration, labels map[string]string)
	SetGauge(name string, value float64, labels map[string]string)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) IncCounter(string, map[string]string)                     {}
func (NopMetrics) ObserveDuration(string, time.Duration, map[string]string) {}
func (NopMetrics) SetGauge(string, float64, map[string]string)              {}
