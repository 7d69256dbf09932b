// Package health decides when the browser session is due for a restart.
//
// The Monitor is a pure policy object: it tracks elapsed time and operation
// count since the last reset, optionally consults a resident-memory probe,
// and answers ShouldRestart. It never restarts anything itself; the batch
// scheduler consults it between operations and performs the replacement.
package health
