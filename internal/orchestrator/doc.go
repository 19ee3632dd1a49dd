// Package orchestrator runs batches of generation jobs against a backend.
//
// Each submitted batch becomes a task with its own worker goroutine. The
// worker processes the batch's items strictly in order: it clones the loaded
// template, injects the item's prompt, seed, dimensions and reference images,
// submits the job and waits for it to finish before moving on. Per-item
// failures are recorded on the task and do not stop the batch.
//
// Cancellation is cooperative. Cancel marks the task and interrupts the job
// running on the backend; the worker observes the mark before starting its
// next item, so an in-flight item always runs to its own completion or
// timeout.
package orchestrator
