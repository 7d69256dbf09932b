package report

import (
	"fmt"
	"strings"
	"time"
)

// Account identifies one client entity in the portal's account dropdown. ID is
// the opaque option value submitted with report requests; Name is the
// human-readable label used for sheet naming and progress tracking.
type Account struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Row is one hourly bucket of a single account's occupancy report.
//
// NetMovement and Occupancy are reported by the portal, not derived locally;
// older portal revisions omit both columns entirely.
type Row struct {
	Date              string `json:"date"`
	StartTime         string `json:"start_time"`
	EndTime           string `json:"end_time"`
	Entries           int    `json:"entries"`
	Exits             int    `json:"exits"`
	ManualAdjustments int    `json:"manual_adjustments"`
	NetMovement       int    `json:"net_movement"`
	Occupancy         int    `json:"occupancy"`
}

// Date is a single calendar day in the portal's MM/DD/YYYY convention.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// String renders the date the way the portal's date fields expect it.
func (d Date) String() string {
	return fmt.Sprintf("%02d/%02d/%04d", int(d.Month), d.Day, d.Year)
}

// DateRange expands (year, month, startDay, endDay) into an inclusive ordered
// sequence of days. Zero startDay means the 1st; zero endDay means the last
// day of the month. Out-of-range days are clipped to the month's real length.
func DateRange(year int, month time.Month, startDay, endDay int) ([]Date, error) {
	if month < time.January || month > time.December {
		return nil, fmt.Errorf("month %d out of range", month)
	}
	last := daysIn(year, month)
	if startDay <= 0 {
		startDay = 1
	}
	if endDay <= 0 || endDay > last {
		endDay = last
	}
	if startDay > last {
		startDay = last
	}
	if startDay > endDay {
		return nil, fmt.Errorf("start day %d after end day %d", startDay, endDay)
	}
	dates := make([]Date, 0, endDay-startDay+1)
	for day := startDay; day <= endDay; day++ {
		dates = append(dates, Date{Year: year, Month: month, Day: day})
	}
	return dates, nil
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// CollectedData maps account names to the full ordered row sequence gathered
// so far. Replace swaps an account's rows wholesale, which is the reprocess
// semantic: a re-attempted account never accumulates duplicates.
type CollectedData map[string][]Row

// Replace stores rows for the named account, discarding any prior sequence.
func (c CollectedData) Replace(account string, rows []Row) {
	c[strings.TrimSpace(account)] = rows
}

// Rows returns the rows collected for the named account.
func (c CollectedData) Rows(account string) []Row {
	return c[strings.TrimSpace(account)]
}

// Clone produces a deep copy, used when handing snapshots to persistence.
func (c CollectedData) Clone() CollectedData {
	out := make(CollectedData, len(c))
	for name, rows := range c {
		cp := make([]Row, len(rows))
		copy(cp, rows)
		out[name] = cp
	}
	return out
}
