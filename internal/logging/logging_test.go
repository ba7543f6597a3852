package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewLoggerDev(t *testing.T) {
	logger, err := NewLogger(BuildTypeDev)
	if err != nil {
		t.Fatal(err)
	}
	logger.Named("test").Debugw("hello", "key", "value")
}

func TestNewLoggerReleaseWritesFile(t *testing.T) {
	t.Chdir(t.TempDir())

	logger, err := NewLogger(BuildTypeRelease)
	if err != nil {
		t.Fatal(err)
	}
	logger.Infow("release line", "session", "s1")
	logger.Sync()

	data, err := os.ReadFile(filepath.Join(LogDirectory, LogFilename))
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Fatal("expected log output in file")
	}
}

func TestRotate(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	latest := filepath.Join(dir, LogFilename)
	stale := filepath.Join(dir, "player-latest-run-20200101-000000.log")
	keep := filepath.Join(dir, "notes.txt")
	for _, p := range []string{latest, stale, keep} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	old := now.Add(-30 * 24 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(keep, old, old); err != nil {
		t.Fatal(err)
	}

	if err := rotate(dir, now); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(latest); !os.IsNotExist(err) {
		t.Fatal("latest log should have been renamed")
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatal("stale rotated log should have been removed")
	}
	if _, err := os.Stat(keep); err != nil {
		t.Fatal("non-log files must be left alone")
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "player-latest-run-*.log"))
	if len(matches) != 1 {
		t.Fatalf("expected one rotated log, got %v", matches)
	}
}
