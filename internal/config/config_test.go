package config

import "testing"

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DATAPORTAL_URL", "https://cloudnet.fmi.fi")
	t.Setenv("STORAGE_SERVICE_URL", "https://storage.example")
	t.Setenv("FREEZE_AFTER_DAYS", "30")
	t.Setenv("PID_SERVICE_TEST_ENV", "1")

	c := LoadFromEnv()
	if c.DataportalURL != "https://cloudnet.fmi.fi" {
		t.Errorf("DataportalURL = %q", c.DataportalURL)
	}
	if c.FreezeAfterDays != 30 {
		t.Errorf("FreezeAfterDays = %d, want 30", c.FreezeAfterDays)
	}
	if c.IsProduction {
		t.Error("PID_SERVICE_TEST_ENV set, IsProduction should be false")
	}
	if Get() != c {
		t.Error("LoadFromEnv should install the loaded config globally")
	}
}

func TestDefaults(t *testing.T) {
	c := defaults()
	if c.FreezeAfterDays != 15 || c.FreezeModelAfterDays != 3 {
		t.Errorf("freeze defaults = %d/%d, want 15/3", c.FreezeAfterDays, c.FreezeModelAfterDays)
	}
	if c.MaxRetries <= 0 || c.HTTPTimeout <= 0 {
		t.Error("client defaults must be positive")
	}
	if !c.ChecksumTolerant {
		t.Error("checksum mismatches default to warning-only")
	}
}

func TestBadFreezeDaysFallsBackToDefault(t *testing.T) {
	t.Setenv("FREEZE_AFTER_DAYS", "soon")
	c := LoadFromEnv()
	if c.FreezeAfterDays != 15 {
		t.Errorf("FreezeAfterDays = %d, want default 15", c.FreezeAfterDays)
	}
}
