// Package metrics counts adapter operations with prometheus collectors.
//
// The CLI is a short-lived process, so the counters are written to a node
// exporter textfile at exit rather than served over HTTP.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
)

// Recorder holds the adapter's collectors. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	registry *prometheus.Registry

	Compiles         *prometheus.CounterVec
	Simulations      *prometheus.CounterVec
	SimulateDuration *prometheus.HistogramVec
	LibraryOps       *prometheus.CounterVec
	CoverageMissing  prometheus.Counter
}

// NewRecorder creates a Recorder on its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		Compiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hdlsim",
			Name:      "compiles_total",
			Help:      "Source file compilations by language and outcome.",
		}, []string{"kind", "outcome"}),
		Simulations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hdlsim",
			Name:      "simulations_total",
			Help:      "Test configuration runs by mode and outcome.",
		}, []string{"mode", "outcome"}),
		SimulateDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hdlsim",
			Name:      "simulation_duration_seconds",
			Help:      "Wall time of simulator runs.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"mode"}),
		LibraryOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hdlsim",
			Name:      "library_operations_total",
			Help:      "Library setup calls by operation (ensure, skip).",
		}, []string{"op"}),
		CoverageMissing: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hdlsim",
			Name:      "coverage_missing_files_total",
			Help:      "Coverage databases left out of a merge because they were missing.",
		}),
	}
	r.registry.MustRegister(r.Compiles, r.Simulations, r.SimulateDuration, r.LibraryOps, r.CoverageMissing)
	return r
}

// Outcome maps a (success, error) pair to an outcome label.
func Outcome(ok bool, err error) string {
	switch {
	case err != nil:
		return OutcomeError
	case ok:
		return OutcomeSuccess
	}
	return OutcomeFailure
}

// ObserveCompile counts one compilation.
func (r *Recorder) ObserveCompile(kind, outcome string) {
	if r == nil {
		return
	}
	r.Compiles.WithLabelValues(kind, outcome).Inc()
}

// ObserveSimulation counts one simulator run and its duration.
func (r *Recorder) ObserveSimulation(mode, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.Simulations.WithLabelValues(mode, outcome).Inc()
	r.SimulateDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
}

// ObserveLibrary counts one library setup decision.
func (r *Recorder) ObserveLibrary(op string) {
	if r == nil {
		return
	}
	r.LibraryOps.WithLabelValues(op).Inc()
}

// ObserveCoverageMissing counts databases skipped by a merge.
func (r *Recorder) ObserveCoverageMissing(n int) {
	if r == nil {
		return
	}
	r.CoverageMissing.Add(float64(n))
}

// WriteTextfile writes all collectors in the prometheus text format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
