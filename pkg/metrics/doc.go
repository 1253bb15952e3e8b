// Package metrics provides Prometheus instrumentation for the patient-flow pipeline.
//
// A Registry groups every metric the pipeline exports: resource pool usage and
// wait times, queue depths, per-stage durations, patient outcome counters and
// shutdown events. Components accept a *Registry and treat a nil registry as
// "metrics disabled", so tests and library users pay nothing unless they opt in.
//
// # Quick Start
//
//	reg := prometheus.NewRegistry()
//	m := metrics.NewRegistry(reg)
//
//	doctors, _ := resource.New("doctors", 5)
//	pool := resource.WithMetrics(doctors, m)
//
// Then expose metrics via HTTP:
//
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
//
// # Metric names
//
// All metrics live under the "patientflow" namespace (overridable through
// Config.Namespace):
//
//	patientflow_resource_in_use{resource}
//	patientflow_resource_waiting{resource}
//	patientflow_resource_wait_duration_seconds{resource}
//	patientflow_resource_rollbacks_total{resource}
//	patientflow_queue_depth{queue}
//	patientflow_stage_duration_seconds{stage}
//	patientflow_patients_registered_total{priority}
//	patientflow_patients_discharged_total
//	patientflow_patients_lost_total{stage}
//	patientflow_patient_system_time_seconds
//	patientflow_workerpool_active_workers{pool}
//	patientflow_diagnosis_forced_terminations_total
package metrics
