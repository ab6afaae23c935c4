package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDurationAcceptsMillisAndGoSyntax(t *testing.T) {
	t.Setenv("LOCK_TIMEOUT", "750")
	d, err := Duration("LOCK_TIMEOUT", time.Second)
	if err != nil {
		t.Fatalf("Duration: %v", err)
	}
	if d != 750*time.Millisecond {
		t.Fatalf("expected 750ms, got %s", d)
	}

	t.Setenv("LOCK_TIMEOUT", "2s")
	d, err = Duration("LOCK_TIMEOUT", time.Second)
	if err != nil || d != 2*time.Second {
		t.Fatalf("expected 2s, got %s (err=%v)", d, err)
	}

	t.Setenv("LOCK_TIMEOUT", "soon")
	if _, err := Duration("LOCK_TIMEOUT", time.Second); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestPortRejectsOutOfRange(t *testing.T) {
	t.Setenv("PORT", "70000")
	if _, err := Port("PORT", "8083"); err == nil {
		t.Fatal("expected error for port 70000")
	}
}

func TestLoadDotEnvKeepsExistingValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("CLINICBOOK_A=from-file\nCLINICBOOK_B=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("CLINICBOOK_A", "from-env")
	t.Cleanup(func() { _ = os.Unsetenv("CLINICBOOK_B") })

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := String("CLINICBOOK_A", ""); got != "from-env" {
		t.Fatalf("expected env value to win, got %q", got)
	}
	if got := String("CLINICBOOK_B", ""); got != "from-file" {
		t.Fatalf("expected file value, got %q", got)
	}
}
