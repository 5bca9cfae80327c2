// Package state defines the run state passed between pipeline steps.
//
// A State is an open-ended mapping from field name to value. It always
// carries "run_id" and "target"; everything else is owned by the step
// implementations that read and write it. The pipeline never interprets
// step fields, it only clones, forwards and persists them.
//
// Ownership of a State moves from step to step: exactly one step works on a
// given value at a time. Clone produces an independent deep copy so that a
// failing step's partial mutations can be discarded.
package state
