// Package stage implements the four pipeline stages.
//
// Registration runs on a bounded worker pool and stamps each patient before
// putting an encoded copy on the diagnosis queue. Diagnosis runs on isolated
// workers that only see encoded records and answer every work item with
// exactly one outcome. Allocation runs one task per diagnosed patient,
// acquiring a doctor and then a bed, and rolls back whatever it holds when a
// step fails. Discharge is a single consumer that releases the resources
// recorded on the patient and folds its system time into the statistics.
//
// Stages never share a record: ownership passes with the record when it is
// put on the next queue.
package stage
