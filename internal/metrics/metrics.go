package metrics

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics keeps in-process counters that back the /stats endpoint. They are
// maintained whether or not Prometheus is initialized.
type Metrics struct {
	Dispatches atomic.Int64
	Executions atomic.Int64
	Exceptions atomic.Int64
	Errors     atomic.Int64

	funcMetrics sync.Map // address or task name -> *FunctionMetrics

	startTime time.Time
}

// FunctionMetrics tracks one function.
type FunctionMetrics struct {
	Dispatches atomic.Int64
	Executions atomic.Int64
	Exceptions atomic.Int64
	Errors     atomic.Int64
	TotalMs    atomic.Int64
}

var global = &Metrics{startTime: time.Now()}

func (m *Metrics) function(name string) *FunctionMetrics {
	if v, ok := m.funcMetrics.Load(name); ok {
		return v.(*FunctionMetrics)
	}
	v, _ := m.funcMetrics.LoadOrStore(name, &FunctionMetrics{})
	return v.(*FunctionMetrics)
}

func (m *Metrics) recordDispatch(name, status string) {
	m.Dispatches.Add(1)
	fm := m.function(name)
	fm.Dispatches.Add(1)
	m.count(fm, status)
}

func (m *Metrics) recordExecution(name, status string, durationMs float64) {
	m.Executions.Add(1)
	fm := m.function(name)
	fm.Executions.Add(1)
	fm.TotalMs.Add(int64(durationMs))
	m.count(fm, status)
}

func (m *Metrics) count(fm *FunctionMetrics, status string) {
	switch status {
	case StatusException:
		m.Exceptions.Add(1)
		fm.Exceptions.Add(1)
	case StatusError:
		m.Errors.Add(1)
		fm.Errors.Add(1)
	}
}

// FunctionSnapshot is the JSON form of FunctionMetrics.
type FunctionSnapshot struct {
	Name       string  `json:"name"`
	Dispatches int64   `json:"dispatches"`
	Executions int64   `json:"executions"`
	Exceptions int64   `json:"exceptions"`
	Errors     int64   `json:"errors"`
	AvgMs      float64 `json:"avg_ms"`
}

// Snapshot is the JSON form of Metrics.
type Snapshot struct {
	UptimeSeconds int64              `json:"uptime_seconds"`
	Dispatches    int64              `json:"dispatches"`
	Executions    int64              `json:"executions"`
	Exceptions    int64              `json:"exceptions"`
	Errors        int64              `json:"errors"`
	Functions     []FunctionSnapshot `json:"functions"`
}

// Snapshot copies the counters. Functions are sorted by name.
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		UptimeSeconds: int64(time.Since(m.startTime).Seconds()),
		Dispatches:    m.Dispatches.Load(),
		Executions:    m.Executions.Load(),
		Exceptions:    m.Exceptions.Load(),
		Errors:        m.Errors.Load(),
		Functions:     []FunctionSnapshot{},
	}
	m.funcMetrics.Range(func(k, v any) bool {
		fm := v.(*FunctionMetrics)
		fs := FunctionSnapshot{
			Name:       k.(string),
			Dispatches: fm.Dispatches.Load(),
			Executions: fm.Executions.Load(),
			Exceptions: fm.Exceptions.Load(),
			Errors:     fm.Errors.Load(),
		}
		if fs.Executions > 0 {
			fs.AvgMs = float64(fm.TotalMs.Load()) / float64(fs.Executions)
		}
		s.Functions = append(s.Functions, fs)
		return true
	})
	sort.Slice(s.Functions, func(i, j int) bool { return s.Functions[i].Name < s.Functions[j].Name })
	return s
}

// FunctionStats returns the counters of one function, or false if it was never
// seen.
func (m *Metrics) FunctionStats(name string) (FunctionSnapshot, bool) {
	for _, fs := range m.Snapshot().Functions {
		if fs.Name == name {
			return fs, true
		}
	}
	return FunctionSnapshot{}, false
}

// JSONHandler serves the global snapshot.
func JSONHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(global.Snapshot())
	})
}
