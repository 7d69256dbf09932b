// Package report defines the core data model shared across the pipeline:
// portal accounts, calendar date ranges, and hourly occupancy rows.
//
// Values constructed here are treated as immutable inputs by the runner; the
// only mutable aggregate is CollectedData, which the scheduler owns
// exclusively for the duration of a run.
package report
