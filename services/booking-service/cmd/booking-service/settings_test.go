package main

import (
	"testing"
	"time"
)

func TestLoadSettingsDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("CLINIC_CONFIG_FILE", "clinics.yaml")
	s, err := loadSettings()
	if err != nil {
		t.Fatalf("loadSettings: %v", err)
	}
	if s.HTTPPort != "8083" || s.GRPCPort != "9083" || s.LockWait != 2*time.Second || s.RateLimit != 120 {
		t.Fatalf("unexpected defaults %+v", s)
	}
}

func TestLoadSettingsNeedsReferenceSource(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("CLINIC_CONFIG_FILE", "")
	if _, err := loadSettings(); err == nil {
		t.Fatal("expected an error without DATABASE_URL or CLINIC_CONFIG_FILE")
	}
}

func TestLoadSettingsLockTimeoutMillis(t *testing.T) {
	t.Setenv("CLINIC_CONFIG_FILE", "clinics.yaml")
	t.Setenv("BOOKING_LOCK_TIMEOUT", "500")
	s, err := loadSettings()
	if err != nil {
		t.Fatalf("loadSettings: %v", err)
	}
	if s.LockWait != 500*time.Millisecond {
		t.Fatalf("expected 500ms, got %s", s.LockWait)
	}
}
