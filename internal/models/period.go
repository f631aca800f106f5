package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Period is a single (year, calendar month) filing period.
type Period struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
}

// String renders the period as YYYY-MM.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Before orders periods chronologically.
func (p Period) Before(other Period) bool {
	if p.Year != other.Year {
		return p.Year < other.Year
	}
	return p.Month < other.Month
}

// PeriodSet is the set of target periods for a reconciliation window.
type PeriodSet map[Period]struct{}

// Contains reports membership of a period in the set.
func (ps PeriodSet) Contains(p Period) bool {
	_, ok := ps[p]
	return ok
}

// ContainsDate reports whether a date falls in any target period. A nil
// date is never in period.
func (ps PeriodSet) ContainsDate(t *time.Time) bool {
	if t == nil {
		return false
	}
	return ps.Contains(Period{Year: t.Year(), Month: t.Month()})
}

// PeriodKind selects how a reconciliation window is specified.
type PeriodKind string

const (
	PeriodMonthly    PeriodKind = "MONTHLY"
	PeriodQuarterly  PeriodKind = "QUARTERLY"
	PeriodFiscalYear PeriodKind = "FY"
)

// quarterMonths maps fiscal quarters to calendar months. Quarters are
// aligned to the April-start Indian fiscal year.
var quarterMonths = map[string][]time.Month{
	"Q1": {time.April, time.May, time.June},
	"Q2": {time.July, time.August, time.September},
	"Q3": {time.October, time.November, time.December},
	"Q4": {time.January, time.February, time.March},
}

// PeriodSpec describes the requested reconciliation window: a single
// month, a fiscal quarter, or a whole fiscal year. FYStartYear is the
// calendar year in which the fiscal year begins (April of Y through
// March of Y+1).
type PeriodSpec struct {
	Kind        PeriodKind `json:"kind"`
	FYStartYear int        `json:"fy_start_year"`
	Month       time.Month `json:"month,omitempty"`
	Quarter     string     `json:"quarter,omitempty"`
}

// Validate checks that the spec describes a resolvable window.
func (s PeriodSpec) Validate() error {
	if s.FYStartYear < 2017 || s.FYStartYear > 2100 {
		return fmt.Errorf("fiscal year start %d out of range", s.FYStartYear)
	}
	switch s.Kind {
	case PeriodMonthly:
		if s.Month < time.January || s.Month > time.December {
			return fmt.Errorf("invalid month %d", s.Month)
		}
	case PeriodQuarterly:
		if _, ok := quarterMonths[strings.ToUpper(s.Quarter)]; !ok {
			return fmt.Errorf("invalid quarter %q", s.Quarter)
		}
	case PeriodFiscalYear:
	default:
		return fmt.Errorf("invalid period kind %q", s.Kind)
	}
	return nil
}

// calendarYear maps a fiscal-year month to its calendar year: April
// through December fall in the start year, January through March in the
// following year.
func (s PeriodSpec) calendarYear(m time.Month) int {
	if m >= time.April {
		return s.FYStartYear
	}
	return s.FYStartYear + 1
}

// Expand resolves the spec to its ordered list of target periods.
func (s PeriodSpec) Expand() ([]Period, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	var periods []Period
	switch s.Kind {
	case PeriodMonthly:
		periods = []Period{{Year: s.calendarYear(s.Month), Month: s.Month}}
	case PeriodQuarterly:
		for _, m := range quarterMonths[strings.ToUpper(s.Quarter)] {
			periods = append(periods, Period{Year: s.calendarYear(m), Month: m})
		}
	case PeriodFiscalYear:
		for m := time.April; m <= time.December; m++ {
			periods = append(periods, Period{Year: s.FYStartYear, Month: m})
		}
		for m := time.January; m <= time.March; m++ {
			periods = append(periods, Period{Year: s.FYStartYear + 1, Month: m})
		}
	}

	sort.Slice(periods, func(i, j int) bool { return periods[i].Before(periods[j]) })
	return periods, nil
}

// TargetSet resolves the spec into a membership set for period filtering.
func (s PeriodSpec) TargetSet() (PeriodSet, error) {
	periods, err := s.Expand()
	if err != nil {
		return nil, err
	}
	set := make(PeriodSet, len(periods))
	for _, p := range periods {
		set[p] = struct{}{}
	}
	return set, nil
}

// Label renders a human-readable window description for report headers.
func (s PeriodSpec) Label() string {
	fy := fmt.Sprintf("%d-%d", s.FYStartYear, s.FYStartYear+1)
	switch s.Kind {
	case PeriodMonthly:
		return fmt.Sprintf("FY %s - %s", fy, s.Month.String())
	case PeriodQuarterly:
		return fmt.Sprintf("FY %s - %s", fy, strings.ToUpper(s.Quarter))
	default:
		return fmt.Sprintf("FY %s - Entire Year", fy)
	}
}
