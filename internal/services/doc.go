// Package services defines shared utilities consumed by the fetch pipeline
// and the batch runner.
//
// Key responsibilities:
//   - Context helpers that stamp account names, batch indices, and run
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that tag failures with the
//     recovery category the runner should apply (restart session, retry in
//     place, fail the account, abort the run).
//   - The closed classification function that maps raw driver error text onto
//     those categories so session-death detection stays testable without a
//     live browser.
package services
