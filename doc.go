/*
Package patientflow simulates a four-stage hospital pipeline running patients
through registration, diagnosis, resource allocation and discharge under a
fixed number of doctors and beds.

Building blocks (pkg/):
  - resource: counting pools for doctors and beds with usage statistics
  - queue: FIFO or priority ordered stage queues with Join/TaskDone
  - workerpool: bounded worker set used by registration
  - metrics: Prometheus instrumentation shared by every stage

Pipeline (internal/):
  - patient: the patient record and its linear status machine
  - stage: the four stages and the diagnosis worker pool
  - simulation: the orchestrator, collection loop and shutdown sequence
  - report, progress: final and periodic reporting

Example usage:

	import (
		"github.com/vnykmshr/patientflow/internal/simulation"
	)

	cfg := simulation.DefaultConfig()
	cfg.Patients = 10

	sim, err := simulation.New(cfg)
	if err != nil {
		return err
	}
	report, err := sim.Run(ctx)

The hospital-sim command wires everything from HOSPITAL_* environment
variables. See cmd/hospital-sim.
*/
package patientflow
