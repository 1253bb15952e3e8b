// Package simulation wires the pipeline stages into a single run.
//
// A run registers every patient on a bounded worker pool while a collection
// loop waits on the diagnosis outcome queue and starts one allocation task per
// diagnosed patient. The loop ends after exactly one outcome per patient, lost
// or diagnosed. Teardown then runs in a fixed order: gather the allocation
// tasks, drain the discharge queue, stop the discharge loop, send one stop
// message per diagnosis worker and join them under a shared deadline, forcing
// termination of any worker still running.
package simulation
