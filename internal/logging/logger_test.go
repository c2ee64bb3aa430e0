package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "chatsyncd.log")
	logger, err := New(path, "test", Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Debug("hidden")
	logger.Info("hello")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	line := string(data)
	if !strings.Contains(line, `"msg":"hello"`) {
		t.Errorf("log line %q missing msg", line)
	}
	if !strings.Contains(line, `"profile":"test"`) {
		t.Errorf("log line %q missing profile field", line)
	}
	if strings.Contains(line, "hidden") {
		t.Errorf("debug entry written at default level: %q", line)
	}
}

func TestNewHonorsLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatsyncd.log")
	logger, err := New(path, "test", Options{Level: "debug"})
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug("verbose")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"msg":"verbose"`) {
		t.Errorf("debug entry missing: %q", data)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "x.log"), "test", Options{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
}
