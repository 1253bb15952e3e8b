// Package validation provides the checks used when building run configuration
// and the pipeline's resource pools and queues.
//
// Every failed check returns a *errors.ValidationError naming the module and
// field, so callers can surface a single consistent message.
package validation
