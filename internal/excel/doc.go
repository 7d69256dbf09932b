// Package excel writes collected occupancy rows into the report workbook,
// one sheet per account. Sheet names are sanitized to Excel's rules and an
// account's existing sheet is replaced rather than duplicated, so rerunning
// a month refreshes the workbook in place.
package excel
