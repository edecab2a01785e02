// Package engine runs test runs and deployments as supervised asynchronous jobs.
//
// A job record is created in PENDING by the Dispatcher, which then launches the
// pluggable Runner in its own goroutine and returns immediately. Every status
// change goes through the StateMachine, which serializes writes per job and
// persists them with a compare-and-set on the stored status, so a cancellation
// racing a completion resolves to whichever transition lands first. The
// Registry tracks the cancellation token of every in-flight job and the
// RollbackResolver reverts a deployed version to the previous known-good one.
//
// Callers are expected to have authorized the request before reaching the engine.
package engine
