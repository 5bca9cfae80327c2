// Package pipeline executes compiled playbooks against a run state.
//
// The Executor walks a playbook.Plan from its entry step to the terminal,
// one step at a time. Every step goes through the same wrapper: the
// observer is told the step started, the implementation is resolved from a
// registry and invoked with a private copy of the state, the outcome is
// reported, and a checkpoint is written. Failures of individual steps are
// recorded in the state's "errors" list and never stop the walk.
//
// The walk only stops early when the context is cancelled. The step that
// was next in line is then recorded as interrupted and the partial state
// is checkpointed, so that the run can be resumed.
//
// BatchRunner drives several independent runs with bounded concurrency
// using errgroup.
package pipeline
