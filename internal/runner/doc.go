// Package runner contains the batch scheduler and the top-level recovery
// loop around it.
//
// The Scheduler owns the one live browser session, walks accounts in batches,
// and absorbs failures at the lowest layer able to make progress: a dead
// session is replaced in place, a failed account is isolated from its batch,
// a failed batch is retried once and then abandoned. The Runner wraps whole
// scheduler runs in a bounded retry loop with escalating backoff and holds
// the run lock so two invocations never share the progress files.
package runner
