// Package fault defines the error vocabulary shared by every analysis stage.
//
// Errors come in two severities. A run-fatal error means the descriptors
// handed to the engine cannot be trusted (unknown block ids, ambiguous task
// roots) and the whole run is aborted. A task-fatal error means one task hit
// a structural contradiction or an unsupported pattern; the task is skipped
// and the remaining tasks continue.
//
// Values that cannot be resolved statically (loop bounds, strides) are not
// errors at all; they travel as dimension.Undetermined.
package fault
