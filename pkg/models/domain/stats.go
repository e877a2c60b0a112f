package domain

import "time"

// DayStats is the outcome of processing one calendar day across all services.
// It is built by the day processor and read-only afterwards.
type DayStats struct {
	Date               string
	Records            map[string]int
	SuccessfulServices int
	FailedServices     int
	Succeeded          []string
	Failed             []string
	Duration           time.Duration
}

// NewDayStats returns an empty stats holder for the given ISO date.
func NewDayStats(date string) *DayStats {
	return &DayStats{
		Date:      date,
		Records:   make(map[string]int),
		Succeeded: make([]string, 0),
		Failed:    make([]string, 0),
	}
}

// TotalRecords sums the per-service record counts.
func (s *DayStats) TotalRecords() int {
	total := 0
	for _, n := range s.Records {
		total += n
	}
	return total
}

// ServiceTotals aggregates one service's results across a whole run.
type ServiceTotals struct {
	Records   int
	Successes int
	Failures  int
}

// RunSummary is the final report for a backfill or standard-mode execution.
type RunSummary struct {
	RunID              string
	DaysProcessed      int
	TotalDuration      time.Duration
	TotalRecords       int
	SuccessfulServices int
	FailedServices     int
	ServiceBreakdown   map[string]ServiceTotals
	Days               []*DayStats
}

// FailedDays lists the dates that finished with at least one failed service.
func (s *RunSummary) FailedDays() []string {
	var days []string
	for _, d := range s.Days {
		if d.FailedServices > 0 {
			days = append(days, d.Date)
		}
	}
	return days
}
