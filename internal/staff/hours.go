package staff

import (
	"context"
	"errors"
	"math"
	"time"

	"tableside/internal/domain"
)

// EntryHours computes worked hours for one day: end minus start minus break.
// A shift ending at or before its start wraps past midnight.
func EntryHours(start, end string, breakMins int) (float64, error) {
	sm, err := parseClock(start)
	if err != nil {
		return 0, err
	}
	em, err := parseClock(end)
	if err != nil {
		return 0, err
	}
	if em <= sm {
		em += 24 * 60
	}
	mins := em - sm - breakMins
	if mins < 0 {
		mins = 0
	}
	return math.Round(float64(mins)/60*100) / 100, nil
}

func parseClock(v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, errors.New("clock time must be HH:MM")
	}
	return t.Hour()*60 + t.Minute(), nil
}

// WeekStart returns the Monday that opens the week containing d.
func WeekStart(d time.Time) time.Time {
	d = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

const regularWeekHours = 40

// WeekTotals splits a Monday-based week of entries into regular and overtime
// hours, counting only accepted work days toward the 40-hour threshold.
func WeekTotals(entries []domain.TimesheetEntry, anyDay time.Time) domain.WeeklyTotals {
	start := WeekStart(anyDay)
	end := start.AddDate(0, 0, 7)
	totals := domain.WeeklyTotals{Counts: map[string]int{}}
	for _, e := range entries {
		d, err := time.Parse("2006-01-02", e.Date)
		if err != nil || d.Before(start) || !d.Before(end) {
			continue
		}
		if e.Status != "Accepted" {
			continue
		}
		totals.Counts[e.DayType]++
		if e.DayType == "Work" {
			totals.Total += e.Hours
		}
	}
	totals.Total = math.Round(totals.Total*100) / 100
	totals.Regular = math.Min(totals.Total, regularWeekHours)
	totals.Overtime = math.Max(0, math.Round((totals.Total-regularWeekHours)*100)/100)
	return totals
}

// overtimeHours buckets work entries into Monday weeks and sums the hours
// above the 40-hour line, over entries whose date passes the filter.
func overtimeHours(entries []domain.TimesheetEntry, include func(time.Time) bool) float64 {
	weeks := map[string]float64{}
	for _, e := range entries {
		if e.DayType != "Work" {
			continue
		}
		d, err := time.Parse("2006-01-02", e.Date)
		if err != nil || !include(d) {
			continue
		}
		weeks[WeekStart(d).Format("2006-01-02")] += e.Hours
	}
	var ot float64
	for _, wh := range weeks {
		ot += math.Max(0, wh-regularWeekHours)
	}
	return math.Round(ot*100) / 100
}

// WeekTotalsFor loads an employee's entries and summarizes the week
// containing anyDay.
func (s Service) WeekTotalsFor(ctx context.Context, employeeID string, anyDay time.Time) (domain.WeeklyTotals, error) {
	entries, err := s.Repo.ListTimesheets(ctx, employeeID, "")
	if err != nil {
		return domain.WeeklyTotals{}, err
	}
	return WeekTotals(entries, anyDay), nil
}
