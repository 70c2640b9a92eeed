package metrics

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory records everything in maps. Safe for concurrent use.
type Memory struct {
	mu        sync.Mutex
	counters  map[string]float64
	gauges    map[string]float64
	durations map[string][]time.Duration
}

// NewMemory creates an empty recorder.
func NewMemory() *Memory {
	return &Memory{
		counters:  make(map[string]float64),
		gauges:    make(map[string]float64),
		durations: make(map[string][]time.Duration),
	}
}

func (m *Memory) IncCounter(name string, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[key(name, labels)]++
}

func (m *Memory) ObserveDuration(name string, d time.Duration, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(name, labels)
	m.durations[k] = append(m.durations[k], d)
}

func (m *Memory) SetGauge(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[key(name, labels)] = value
}

// Counter returns the counter value for an exact label set.
func (m *Memory) Counter(name string, labels map[string]string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[key(name, labels)]
}

// Gauge returns the last value set for an exact label set.
func (m *Memory) Gauge(name string, labels map[string]string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.gauges[key(name, labels)]
	return v, ok
}

// Observations returns how many durations were recorded for an exact label set.
func (m *Memory) Observations(name string, labels map[string]string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.durations[key(name, labels)])
}

// key renders name{a=1,b=2} with labels in sorted order.
func key(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	parts := make([]string, 0, len(labels))
	for k, v := range labels {
		parts = append(parts, k+"="+v)
	}
	sort.Strings(parts)
	return name + "{" + strings.Join(parts, ",") + "}"
}
