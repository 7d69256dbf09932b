// Package portal drives the Parkonect reporting pages: account discovery
// from the report dropdown and per-day occupancy report fetches.
//
// The Fetcher performs exactly one generation attempt per call and classifies
// failures, leaving retry policy to the batch scheduler.
package portal
