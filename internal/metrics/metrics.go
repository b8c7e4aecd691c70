// Package metrics tracks transformation filter metrics for
// Prometheus-compatible export.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
)

// Collector tracks transformation counters.
type Collector struct {
	mu sync.RWMutex

	// Applied transformations. key: side|transformation
	transformsTotal map[string]int64

	// Transformation failures. key: side|kind
	errorsTotal map[string]int64

	// Phases that resolved no transformation. key: side
	passthroughTotal map[string]int64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		transformsTotal:  make(map[string]int64),
		errorsTotal:      make(map[string]int64),
		passthroughTotal: make(map[string]int64),
	}
}

// RecordTransform records a successfully applied transformation.
func (c *Collector) RecordTransform(side, transformation string) {
	c.mu.Lock()
	c.transformsTotal[side+"|"+transformation]++
	c.mu.Unlock()
}

// RecordError records a transformation failure by error kind.
func (c *Collector) RecordError(side, kind string) {
	c.mu.Lock()
	c.errorsTotal[side+"|"+kind]++
	c.mu.Unlock()
}

// RecordPassthrough records a phase with no transformation configured.
func (c *Collector) RecordPassthrough(side string) {
	c.mu.Lock()
	c.passthroughTotal[side]++
	c.mu.Unlock()
}

// Snapshot holds a point-in-time copy of all counters.
type Snapshot struct {
	TransformsTotal  map[string]int64 `json:"transforms_total"`
	ErrorsTotal      map[string]int64 `json:"errors_total"`
	PassthroughTotal map[string]int64 `json:"passthrough_total"`
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := &Snapshot{
		TransformsTotal:  make(map[string]int64, len(c.transformsTotal)),
		ErrorsTotal:      make(map[string]int64, len(c.errorsTotal)),
		PassthroughTotal: make(map[string]int64, len(c.passthroughTotal)),
	}
	for k, v := range c.transformsTotal {
		snap.TransformsTotal[k] = v
	}
	for k, v := range c.errorsTotal {
		snap.ErrorsTotal[k] = v
	}
	for k, v := range c.passthroughTotal {
		snap.PassthroughTotal[k] = v
	}
	return snap
}

// WritePrometheus writes metrics in Prometheus text exposition format.
func (c *Collector) WritePrometheus(w http.ResponseWriter) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	writeHelp(w, "transmute_transforms_total", "Total transformations applied", "counter")
	for key, count := range c.transformsTotal {
		parts := splitKey(key, 2)
		if len(parts) == 2 {
			writeMetric(w, "transmute_transforms_total", count,
				"side", parts[0], "transformation", parts[1])
		}
	}

	writeHelp(w, "transmute_transform_errors_total", "Total transformation failures", "counter")
	for key, count := range c.errorsTotal {
		parts := splitKey(key, 2)
		if len(parts) == 2 {
			writeMetric(w, "transmute_transform_errors_total", count,
				"side", parts[0], "kind", parts[1])
		}
	}

	writeHelp(w, "transmute_passthrough_total", "Total phases with no transformation configured", "counter")
	for side, count := range c.passthroughTotal {
		writeMetric(w, "transmute_passthrough_total", count, "side", side)
	}
}

func writeHelp(w http.ResponseWriter, name, help, metricType string) {
	w.Write([]byte("# HELP " + name + " " + help + "\n"))
	w.Write([]byte("# TYPE " + name + " " + metricType + "\n"))
}

func writeMetric(w http.ResponseWriter, name string, value int64, labels ...string) {
	line := name + formatLabels(labels) + " " + strconv.FormatInt(value, 10) + "\n"
	w.Write([]byte(line))
}

func formatLabels(labels []string) string {
	if len(labels) == 0 {
		return ""
	}
	result := "{"
	for i := 0; i < len(labels)-1; i += 2 {
		if i > 0 {
			result += ","
		}
		result += labels[i] + "=\"" + labels[i+1] + "\""
	}
	return result + "}"
}

func splitKey(key string, n int) []string {
	parts := make([]string, 0, n)
	start := 0
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			parts = append(parts, key[start:i])
			start = i + 1
			if len(parts) == n-1 {
				parts = append(parts, key[start:])
				return parts
			}
		}
	}
	if start < len(key) {
		parts = append(parts, key[start:])
	}
	return parts
}
