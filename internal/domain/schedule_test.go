package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDefaultScheduleIsValid(t *testing.T) {
	s := DefaultSchedule()
	if err := s.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := s.NormalIntervals(time.Sunday); len(got) != 0 {
		t.Fatalf("sunday intervals = %v, want none", got)
	}
	if got := s.NormalIntervals(time.Saturday); len(got) != 1 || got[0].End != 14*60 {
		t.Fatalf("saturday intervals = %v", got)
	}
}

func TestScheduleValidateRejectsBadInterval(t *testing.T) {
	s := WeeklySchedule{Days: map[time.Weekday][]MinuteInterval{
		time.Monday: {{Start: 600, End: 500}},
	}}
	if err := s.Validate(); err == nil {
		t.Fatal("expected error for reversed interval")
	}
}

func TestDateTextRoundTripAsMapKey(t *testing.T) {
	in := map[Date]int{{Year: 2026, Month: time.March, Day: 3}: 7}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"2026-03-03":7}` {
		t.Fatalf("json = %s", b)
	}

	var out map[Date]int
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out[Date{Year: 2026, Month: time.March, Day: 3}] != 7 {
		t.Fatalf("round trip lost value: %v", out)
	}
}
