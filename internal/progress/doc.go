// Package progress persists run state between invocations.
//
// Two snapshot files live in the state directory: the progress file records
// which accounts finished or failed plus the batch cursor, and the backup
// file holds every row collected so far. Both are written atomically (temp
// file then rename) after every account so a crash at any point leaves a
// resumable pair on disk.
package progress
