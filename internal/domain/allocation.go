package domain

// MinuteAllocation splits a number of minutes into normal hours and overtime.
// Total == Normal + Overtime always holds.
type MinuteAllocation struct {
	Total    int `json:"total_minutes"`
	Normal   int `json:"normal_minutes"`
	Overtime int `json:"overtime_minutes"`
}

// Add returns the field-wise sum of two allocations.
func (a MinuteAllocation) Add(b MinuteAllocation) MinuteAllocation {
	return MinuteAllocation{
		Total:    a.Total + b.Total,
		Normal:   a.Normal + b.Normal,
		Overtime: a.Overtime + b.Overtime,
	}
}

// DaySummary aggregates one calendar date.
type DaySummary struct {
	Date            Date             `json:"date"`
	Travel          MinuteAllocation `json:"travel"`
	Work            MinuteAllocation `json:"work"`
	Combined        MinuteAllocation `json:"combined"`
	CompletedVisits int              `json:"completed_visits"`
}

func (d *DaySummary) merge(o DaySummary) {
	d.Travel = d.Travel.Add(o.Travel)
	d.Work = d.Work.Add(o.Work)
	d.Combined = d.Combined.Add(o.Combined)
	d.CompletedVisits += o.CompletedVisits
}

// UserSummary aggregates one user's days.
type UserSummary struct {
	UserID          string               `json:"user_id"`
	Days            map[Date]*DaySummary `json:"days"`
	Total           MinuteAllocation     `json:"total"`
	CompletedVisits int                  `json:"completed_visits"`
}

// Day returns the summary for date, creating it if needed.
func (u *UserSummary) Day(date Date) *DaySummary {
	if u.Days == nil {
		u.Days = make(map[Date]*DaySummary)
	}
	d, ok := u.Days[date]
	if !ok {
		d = &DaySummary{Date: date}
		u.Days[date] = d
	}
	return d
}

// Summary is the read-only report derived from the Work Ledger.
type Summary struct {
	Users map[string]*UserSummary `json:"users"`
	Days  map[Date]*DaySummary    `json:"days"`
}

// NewSummary returns an empty summary ready for accumulation.
func NewSummary() *Summary {
	return &Summary{
		Users: make(map[string]*UserSummary),
		Days:  make(map[Date]*DaySummary),
	}
}

// User returns the summary for userID, creating it if needed.
func (s *Summary) User(userID string) *UserSummary {
	u, ok := s.Users[userID]
	if !ok {
		u = &UserSummary{UserID: userID, Days: make(map[Date]*DaySummary)}
		s.Users[userID] = u
	}
	return u
}

// AddDay folds a per-user day contribution into the user and global views.
func (s *Summary) AddDay(userID string, contribution DaySummary) {
	u := s.User(userID)
	u.Day(contribution.Date).merge(contribution)
	u.Total = u.Total.Add(contribution.Combined)
	u.CompletedVisits += contribution.CompletedVisits

	d, ok := s.Days[contribution.Date]
	if !ok {
		d = &DaySummary{Date: contribution.Date}
		s.Days[contribution.Date] = d
	}
	d.merge(contribution)
}

// Clip returns a summary holding only the days in [from, to], both
// inclusive. User totals are recomputed from the kept days.
func (s *Summary) Clip(from, to Date) *Summary {
	out := NewSummary()
	for userID, u := range s.Users {
		for date, d := range u.Days {
			if date.Before(from) || to.Before(date) {
				continue
			}
			out.AddDay(userID, *d)
		}
	}
	return out
}
