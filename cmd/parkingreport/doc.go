// Command parkingreport collects monthly occupancy reports from the
// Parkonect portal into an Excel workbook, with resumable progress and
// optional email notification.
package main
