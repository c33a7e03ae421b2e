package services

import (
	"field-visit-service/internal/domain"
	"time"
)

// Allocate splits [start, end) into local calendar days and, for each day,
// counts minutes inside the schedule's normal hours versus overtime.
//
// Minutes are counted on the local wall clock at minute resolution (seconds
// are truncated). A day with no configured intervals is entirely overtime.
// An empty or reversed range yields an empty map.
func Allocate(start, end time.Time, schedule domain.WeeklySchedule) map[domain.Date]domain.MinuteAllocation {
	out := make(map[domain.Date]domain.MinuteAllocation)
	if !end.After(start) {
		return out
	}

	loc := schedule.Loc()
	start = start.In(loc)
	end = end.In(loc)

	cursor := start
	for cursor.Before(end) {
		day := domain.DateOf(cursor, loc)
		nextMidnight := day.Start(loc).AddDate(0, 0, 1)

		segEnd := end
		endMin := minuteOfDay(end)
		if !end.Before(nextMidnight) {
			segEnd = nextMidnight
			endMin = domain.MinutesPerDay
		}
		startMin := minuteOfDay(cursor)

		if endMin > startMin {
			total := endMin - startMin
			normal := domain.MinutesOverlap(startMin, endMin, schedule.NormalIntervals(cursor.Weekday()))
			out[day] = out[day].Add(domain.MinuteAllocation{
				Total:    total,
				Normal:   normal,
				Overtime: total - normal,
			})
		}

		cursor = segEnd
	}

	return out
}

// AllocateTotal sums Allocate over all days.
func AllocateTotal(start, end time.Time, schedule domain.WeeklySchedule) domain.MinuteAllocation {
	var total domain.MinuteAllocation
	for _, a := range Allocate(start, end, schedule) {
		total = total.Add(a)
	}
	return total
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// Aggregate allocates every record's travel leg [DepartedAt, ArrivedAt) and
// work interval [ArrivedAt, CompletedAt) and folds them into per-user and
// per-day totals. The visit itself is counted on the local date of
// CompletedAt. Only integer sums are involved, so the result does not depend
// on record order.
func Aggregate(records []domain.CompletedVisitRecord, schedule domain.WeeklySchedule) *domain.Summary {
	summary := domain.NewSummary()
	for _, rec := range records {
		for _, day := range RecordContributions(rec, schedule) {
			summary.AddDay(rec.UserID, day)
		}
	}
	return summary
}

// RecordContributions returns the per-day share of a single record.
func RecordContributions(rec domain.CompletedVisitRecord, schedule domain.WeeklySchedule) []domain.DaySummary {
	days := make(map[domain.Date]*domain.DaySummary)
	day := func(d domain.Date) *domain.DaySummary {
		s, ok := days[d]
		if !ok {
			s = &domain.DaySummary{Date: d}
			days[d] = s
		}
		return s
	}

	if rec.DepartedAt != nil {
		for d, a := range Allocate(*rec.DepartedAt, rec.ArrivedAt, schedule) {
			s := day(d)
			s.Travel = s.Travel.Add(a)
			s.Combined = s.Combined.Add(a)
		}
	}
	for d, a := range Allocate(rec.ArrivedAt, rec.CompletedAt, schedule) {
		s := day(d)
		s.Work = s.Work.Add(a)
		s.Combined = s.Combined.Add(a)
	}
	day(domain.DateOf(rec.CompletedAt, schedule.Loc())).CompletedVisits++

	out := make([]domain.DaySummary, 0, len(days))
	for _, s := range days {
		out = append(out, *s)
	}
	return out
}
