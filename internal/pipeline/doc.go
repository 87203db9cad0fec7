// Package pipeline drives an episode through research, compose, and voice.
//
// The Controller owns every state transition of a run. Stages only compute;
// the controller checks that the predecessor's output exists and that the run
// is still live before each stage, persists the stage's allowed side effect
// together with the step change, and records completion, failure, or
// cancellation. All transitions go through conditional store updates, so a run
// that reached a terminal state never moves again no matter how cancel, fail,
// and advance interleave.
//
// Runs execute on a ports.RunExecutor. Cancellation is advisory: the store
// is marked first and the executor is asked to stop the in-flight stage. A
// stage interrupted that way is not a failure.
package pipeline
