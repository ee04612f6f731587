package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewDefaultsToInfo(t *testing.T) {
	log, err := New(Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if log.GetLevel() != logrus.InfoLevel {
		t.Errorf("level = %v, want info", log.GetLevel())
	}
}

func TestNewParsesLevel(t *testing.T) {
	log, err := New(Options{Level: "debug"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if log.GetLevel() != logrus.DebugLevel {
		t.Errorf("level = %v, want debug", log.GetLevel())
	}
}

func TestNewBadLevelFallsBack(t *testing.T) {
	log, err := New(Options{Level: "shouty"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if log.GetLevel() != logrus.InfoLevel {
		t.Errorf("level = %v, want info fallback", log.GetLevel())
	}
}

func TestNewWritesToFile(t *testing.T) {
	dir := t.TempDir()
	log, err := New(Options{Dir: dir})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Info("hello from test")

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d log files, want 1", len(entries))
	}
	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "hello from test") {
		t.Errorf("log file missing message: %q", data)
	}
}

func TestForComponent(t *testing.T) {
	entry := ForComponent(Discard(), "coordinator")
	if entry.Data["component"] != "coordinator" {
		t.Errorf("component field = %v, want coordinator", entry.Data["component"])
	}
}
