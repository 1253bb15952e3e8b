package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metric instances for the pipeline.
// All helper methods are safe to call on a nil *Registry.
type Registry struct {
	// Resource pool metrics
	ResourceInUse        *prometheus.GaugeVec
	ResourceWaiting      *prometheus.GaugeVec
	ResourceWaitDuration *prometheus.HistogramVec
	ResourceRollbacks    *prometheus.CounterVec

	// Queue metrics
	QueueDepth *prometheus.GaugeVec

	// Stage metrics
	StageDuration      *prometheus.HistogramVec
	WorkerPoolActive   *prometheus.GaugeVec
	ForcedTerminations prometheus.Counter

	// Patient outcome metrics
	PatientsRegistered *prometheus.CounterVec
	PatientsDischarged prometheus.Counter
	PatientsLost       *prometheus.CounterVec
	SystemTime         prometheus.Histogram
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return NewRegistryWithNamespace(reg, DefaultNamespace)
}

// NewRegistryWithNamespace creates a registry whose metric names use namespace.
func NewRegistryWithNamespace(reg prometheus.Registerer, namespace string) *Registry {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	factory := promauto.With(reg)

	return &Registry{
		ResourceInUse: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "resource",
				Name:      "in_use",
				Help:      "Number of resource units currently acquired",
			},
			[]string{"resource"},
		),

		ResourceWaiting: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "resource",
				Name:      "waiting",
				Help:      "Number of tasks blocked waiting for a resource unit",
			},
			[]string{"resource"},
		),

		ResourceWaitDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "resource",
				Name:      "wait_duration_seconds",
				Help:      "Time spent waiting to acquire a resource unit",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"resource"},
		),

		ResourceRollbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "resource",
				Name:      "rollbacks_total",
				Help:      "Resource units released by allocation rollback",
			},
			[]string{"resource"},
		),

		QueueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "queue",
				Name:      "depth",
				Help:      "Number of items waiting in a stage queue",
			},
			[]string{"queue"},
		),

		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "stage",
				Name:      "duration_seconds",
				Help:      "Time a patient spends inside a pipeline stage",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage"},
		),

		WorkerPoolActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "workerpool",
				Name:      "active_workers",
				Help:      "Number of workers currently executing a task",
			},
			[]string{"pool"},
		),

		ForcedTerminations: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "diagnosis",
				Name:      "forced_terminations_total",
				Help:      "Diagnosis workers terminated after ignoring their stop message",
			},
		),

		PatientsRegistered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "patients",
				Name:      "registered_total",
				Help:      "Patients registered, by assigned priority",
			},
			[]string{"priority"},
		),

		PatientsDischarged: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "patients",
				Name:      "discharged_total",
				Help:      "Patients that completed the pipeline",
			},
		),

		PatientsLost: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "patients",
				Name:      "lost_total",
				Help:      "Patients dropped from the pipeline, by stage",
			},
			[]string{"stage"},
		),

		SystemTime: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "patient_system_time_seconds",
				Help:      "Time from registration to discharge",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
			},
		),
	}
}

// SetResourceInUse records the current usage of a resource pool.
func (r *Registry) SetResourceInUse(resource string, n int) {
	if r == nil {
		return
	}
	r.ResourceInUse.WithLabelValues(resource).Set(float64(n))
}

// ResourceWaitStarted marks a task as blocked on resource.
func (r *Registry) ResourceWaitStarted(resource string) {
	if r == nil {
		return
	}
	r.ResourceWaiting.WithLabelValues(resource).Inc()
}

// ResourceWaitFinished unmarks a blocked task and records how long it waited.
func (r *Registry) ResourceWaitFinished(resource string, waited time.Duration) {
	if r == nil {
		return
	}
	r.ResourceWaiting.WithLabelValues(resource).Dec()
	r.ResourceWaitDuration.WithLabelValues(resource).Observe(waited.Seconds())
}

// ResourceRolledBack counts a unit released by compensation.
func (r *Registry) ResourceRolledBack(resource string) {
	if r == nil {
		return
	}
	r.ResourceRollbacks.WithLabelValues(resource).Inc()
}

// SetQueueDepth records the current length of a queue.
func (r *Registry) SetQueueDepth(queue string, n int) {
	if r == nil {
		return
	}
	r.QueueDepth.WithLabelValues(queue).Set(float64(n))
}

// ObserveStage records how long a patient spent in stage.
func (r *Registry) ObserveStage(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// SetActiveWorkers records the number of busy workers in pool.
func (r *Registry) SetActiveWorkers(pool string, n int) {
	if r == nil {
		return
	}
	r.WorkerPoolActive.WithLabelValues(pool).Set(float64(n))
}

// WorkerForced counts a forcibly terminated diagnosis worker.
func (r *Registry) WorkerForced() {
	if r == nil {
		return
	}
	r.ForcedTerminations.Inc()
}

// PatientRegistered counts a registration with its priority label.
func (r *Registry) PatientRegistered(priority string) {
	if r == nil {
		return
	}
	r.PatientsRegistered.WithLabelValues(priority).Inc()
}

// PatientDischarged counts a discharge and records its system time.
func (r *Registry) PatientDischarged(systemTime time.Duration) {
	if r == nil {
		return
	}
	r.PatientsDischarged.Inc()
	r.SystemTime.Observe(systemTime.Seconds())
}

// PatientLost counts a patient dropped at stage.
func (r *Registry) PatientLost(stage string) {
	if r == nil {
		return
	}
	r.PatientsLost.WithLabelValues(stage).Inc()
}
