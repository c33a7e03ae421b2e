package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "STATUS_BACKEND", "GEOFENCE_RADIUS_METERS", "LOCAL_DEBOUNCE", "POSITION_PUSH_INTERVAL", "TIMEZONE", "REDIS_DB"} {
		t.Setenv(k, "")
	}

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if cfg.Port != "8080" || cfg.StatusBackend != BackendRedis {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.GeofenceRadiusMeters != 100 {
		t.Fatalf("radius = %v, want 100", cfg.GeofenceRadiusMeters)
	}
	if cfg.LocalDebounce != 500*time.Millisecond || cfg.PositionPushInterval != 15*time.Second {
		t.Fatalf("durations = %v/%v", cfg.LocalDebounce, cfg.PositionPushInterval)
	}
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"GEOFENCE_RADIUS_METERS", "-5"},
		{"LOCAL_DEBOUNCE", "soon"},
		{"STATUS_BACKEND", "mongo"},
		{"TIMEZONE", "Mars/Olympus"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := FromEnv(); err == nil {
				t.Fatalf("%s=%s: expected error", tt.key, tt.value)
			}
		})
	}
}

func TestFromEnvPostgresNeedsURL(t *testing.T) {
	t.Setenv("STATUS_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/fieldvisit")
	if _, err := FromEnv(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseSchedule(t *testing.T) {
	doc := []byte(`
timezone: America/Phoenix
monday: ["09:00-12:00", "13:00-18:00"]
saturday: ["09:00-14:00"]
sunday: ["22:00-24:00"]
`)

	s, err := ParseSchedule(doc, time.UTC)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s.Loc().String() != "America/Phoenix" {
		t.Fatalf("location = %s, want America/Phoenix", s.Loc())
	}
	mon := s.NormalIntervals(time.Monday)
	if len(mon) != 2 || mon[0].Start != 540 || mon[0].End != 720 || mon[1].Start != 780 || mon[1].End != 1080 {
		t.Fatalf("monday = %+v", mon)
	}
	if sun := s.NormalIntervals(time.Sunday); len(sun) != 1 || sun[0].End != 1440 {
		t.Fatalf("sunday = %+v", sun)
	}
	if tue := s.NormalIntervals(time.Tuesday); len(tue) != 0 {
		t.Fatalf("tuesday = %+v, want none", tue)
	}
}

func TestParseScheduleRejectsBadIntervals(t *testing.T) {
	for _, doc := range []string{
		`monday: ["09:00"]`,
		`monday: ["18:00-09:00"]`,
		`monday: ["09:00-25:00"]`,
		`monday: ["9h-10h"]`,
		`timezone: Nowhere/Land`,
	} {
		if _, err := ParseSchedule([]byte(doc), time.UTC); err == nil {
			t.Fatalf("%s: expected error", doc)
		}
	}
}

func TestLoadScheduleMissingFileUsesDefault(t *testing.T) {
	s, err := LoadSchedule(filepath.Join(t.TempDir(), "none.yaml"), "America/Phoenix")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Loc().String() != "America/Phoenix" {
		t.Fatalf("location = %s", s.Loc())
	}
	if got := s.NormalIntervals(time.Saturday); len(got) != 1 || got[0].End != 14*60 {
		t.Fatalf("saturday = %+v, want default 09:00-14:00", got)
	}

	path := filepath.Join(t.TempDir(), "hours.yaml")
	if err := os.WriteFile(path, []byte(`friday: ["08:00-16:00"]`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err = LoadSchedule(path, "")
	if err != nil {
		t.Fatalf("load file: %v", err)
	}
	if got := s.NormalIntervals(time.Friday); len(got) != 1 || got[0].Start != 480 {
		t.Fatalf("friday = %+v", got)
	}
	if s.Loc() != time.UTC {
		t.Fatalf("location = %s, want UTC", s.Loc())
	}
}
