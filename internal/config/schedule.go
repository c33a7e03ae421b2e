package config

import (
	"errors"
	"field-visit-service/internal/domain"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// scheduleFile is the YAML layout of the normal-hours schedule:
//
//	timezone: America/Phoenix
//	monday: ["09:00-12:00", "13:00-18:00"]
//	saturday: ["09:00-14:00"]
//
// Omitted weekdays have no normal hours.
type scheduleFile struct {
	Timezone  string   `yaml:"timezone"`
	Monday    []string `yaml:"monday"`
	Tuesday   []string `yaml:"tuesday"`
	Wednesday []string `yaml:"wednesday"`
	Thursday  []string `yaml:"thursday"`
	Friday    []string `yaml:"friday"`
	Saturday  []string `yaml:"saturday"`
	Sunday    []string `yaml:"sunday"`
}

// LoadSchedule reads the weekly schedule from path. An empty path or a
// missing file yields the default schedule. The file's timezone wins over
// tz; tz applies when the file names none.
func LoadSchedule(path, tz string) (domain.WeeklySchedule, error) {
	loc, err := loadLocation(tz)
	if err != nil {
		return domain.WeeklySchedule{}, fmt.Errorf("load schedule: %w", err)
	}

	if strings.TrimSpace(path) == "" {
		s := domain.DefaultSchedule()
		s.Location = loc
		return s, nil
	}

	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		s := domain.DefaultSchedule()
		s.Location = loc
		return s, nil
	}
	if err != nil {
		return domain.WeeklySchedule{}, fmt.Errorf("load schedule: read %q: %w", path, err)
	}

	return ParseSchedule(b, loc)
}

// ParseSchedule decodes a YAML schedule. loc is used when the document has
// no timezone of its own.
func ParseSchedule(b []byte, loc *time.Location) (domain.WeeklySchedule, error) {
	var f scheduleFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return domain.WeeklySchedule{}, fmt.Errorf("parse schedule: %w", err)
	}

	if f.Timezone != "" {
		l, err := loadLocation(f.Timezone)
		if err != nil {
			return domain.WeeklySchedule{}, fmt.Errorf("parse schedule: %w", err)
		}
		loc = l
	}

	s := domain.WeeklySchedule{Days: make(map[time.Weekday][]domain.MinuteInterval), Location: loc}
	days := map[time.Weekday][]string{
		time.Monday:    f.Monday,
		time.Tuesday:   f.Tuesday,
		time.Wednesday: f.Wednesday,
		time.Thursday:  f.Thursday,
		time.Friday:    f.Friday,
		time.Saturday:  f.Saturday,
		time.Sunday:    f.Sunday,
	}
	for day, ranges := range days {
		for _, raw := range ranges {
			iv, err := parseInterval(raw)
			if err != nil {
				return domain.WeeklySchedule{}, fmt.Errorf("parse schedule: %s: %w", day, err)
			}
			s.Days[day] = append(s.Days[day], iv)
		}
	}

	if err := s.Validate(); err != nil {
		return domain.WeeklySchedule{}, fmt.Errorf("parse schedule: %w", err)
	}
	return s, nil
}

// parseInterval parses "HH:MM-HH:MM". "24:00" is accepted as an end bound.
func parseInterval(raw string) (domain.MinuteInterval, error) {
	from, to, ok := strings.Cut(strings.TrimSpace(raw), "-")
	if !ok {
		return domain.MinuteInterval{}, fmt.Errorf("interval %q: want HH:MM-HH:MM", raw)
	}

	start, err := parseClock(from)
	if err != nil {
		return domain.MinuteInterval{}, fmt.Errorf("interval %q: %w", raw, err)
	}
	end, err := parseClock(to)
	if err != nil {
		return domain.MinuteInterval{}, fmt.Errorf("interval %q: %w", raw, err)
	}
	return domain.MinuteInterval{Start: start, End: end}, nil
}

func parseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("time %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("time %q: hour: %w", s, err)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("time %q: minute: %w", s, err)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("time %q: out of range", s)
	}
	return h*60 + m, nil
}

func loadLocation(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", name, err)
	}
	return loc, nil
}
