package observ

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

type registry struct {
	mu       sync.Mutex
	counters map[string]map[string]int64   // name -> labelsKey -> count
	gauges   map[string]map[string]float64 // name -> labelsKey -> value
	hist     map[string]map[string][]float64
}

var reg = &registry{
	counters: map[string]map[string]int64{},
	gauges:   map[string]map[string]float64{},
	hist:     map[string]map[string][]float64{},
}

// canonicalize label map so key order is stable
func canonLabels(lbl map[string]string) string {
	if len(lbl) == 0 {
		return ""
	}
	keys := make([]string, 0, len(lbl))
	for k := range lbl {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(lbl[k])
	}
	return b.String()
}

func IncCounter(name string, labels map[string]string) {
	IncCounterBy(name, labels, 1)
}

func IncCounterBy(name string, labels map[string]string, value int64) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.counters[name]
	if !ok {
		m = map[string]int64{}
		reg.counters[name] = m
	}
	m[canonLabels(labels)] += value
}

func SetGauge(name string, value float64, labels map[string]string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.gauges[name]
	if !ok {
		m = map[string]float64{}
		reg.gauges[name] = m
	}
	m[canonLabels(labels)] = value
}

func Observe(name string, value float64, labels map[string]string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.hist[name]
	if !ok {
		m = map[string][]float64{}
		reg.hist[name] = m
	}
	k := canonLabels(labels)
	m[k] = append(m[k], value)
}

// RecordDuration records a duration observation in milliseconds.
func RecordDuration(name string, d time.Duration, labels map[string]string) {
	Observe(name+"_ms", float64(d.Milliseconds()), labels)
}

// CounterTotal sums a counter across all label sets. Used by tests and the
// health report.
func CounterTotal(name string) int64 {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	var total int64
	for _, v := range reg.counters[name] {
		total += v
	}
	return total
}

// Handler dumps the raw registry as JSON for quick checks
// (not Prometheus format on purpose).
func Handler() http.Handler {
	type dump struct {
		Counters map[string]map[string]int64     `json:"counters"`
		Gauges   map[string]map[string]float64   `json:"gauges"`
		Hist     map[string]map[string][]float64 `json:"histograms"`
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reg.mu.Lock()
		defer reg.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(dump{Counters: reg.counters, Gauges: reg.gauges, Hist: reg.hist})
	})
}

// CycleHealth summarizes the last run for operators: whether cycles are
// completing, how often the broker is rejecting, and whether the circuit
// breaker is tripped.
type CycleHealth struct {
	Status         string  `json:"status"` // "healthy" or "degraded"
	CyclesTotal    int64   `json:"cycles_total"`
	CyclesDegraded int64   `json:"cycles_degraded"`
	BrokerErrors   int64   `json:"broker_errors"`
	CircuitTripped bool    `json:"circuit_tripped"`
	Uptime         string  `json:"uptime"`
	ErrorRate      float64 `json:"broker_error_rate"`
}

var startTime = time.Now()

// HealthHandler reports batch-cycle health derived from the registry.
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := CycleHealth{
			Status:         "healthy",
			CyclesTotal:    CounterTotal("cycles_total"),
			CyclesDegraded: CounterTotal("cycles_degraded_total"),
			BrokerErrors:   CounterTotal("broker_errors_total"),
			Uptime:         time.Since(startTime).String(),
		}
		reg.mu.Lock()
		if g, ok := reg.gauges["circuit_breaker_tripped"]; ok {
			for _, v := range g {
				h.CircuitTripped = v == 1
			}
		}
		reg.mu.Unlock()
		attempts := CounterTotal("broker_requests_total")
		if attempts > 0 {
			h.ErrorRate = float64(h.BrokerErrors) / float64(attempts)
		}
		if h.CircuitTripped || (attempts > 10 && h.ErrorRate > 0.1) {
			h.Status = "degraded"
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(h)
	})
}
