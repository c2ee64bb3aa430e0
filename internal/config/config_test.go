package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := &Config{
		DefaultProfile: "work",
		Media:          Media{CacheCapacity: 42, URLTTL: 2 * time.Minute},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultProfile != "work" {
		t.Errorf("DefaultProfile = %q, want %q", loaded.DefaultProfile, "work")
	}
	if loaded.Media.CacheCapacity != 42 {
		t.Errorf("Media.CacheCapacity = %d, want 42", loaded.Media.CacheCapacity)
	}
	if loaded.Media.URLTTL != 2*time.Minute {
		t.Errorf("Media.URLTTL = %v, want 2m", loaded.Media.URLTTL)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestResolveDefaults(t *testing.T) {
	cfg, err := Resolve(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cfg.Media.CacheCapacity != 100 {
		t.Errorf("Media.CacheCapacity = %d, want default 100", cfg.Media.CacheCapacity)
	}
	if cfg.Provider.PageSize != 30 {
		t.Errorf("Provider.PageSize = %d, want default 30", cfg.Provider.PageSize)
	}
	if cfg.Provider.Mode != "local" {
		t.Errorf("Provider.Mode = %q, want local", cfg.Provider.Mode)
	}
	if cfg.Log.Level != "info" || cfg.Log.Quiet {
		t.Errorf("Log = %+v, want info and not quiet", cfg.Log)
	}
}

func TestResolveFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`
default_profile = "home"

[directory]
base_url = "http://directory.internal"

[media]
cache_capacity = 10
url_ttl = "90s"
`), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CHATSYNC_DIRECTORY_URL", "http://override:9090")

	cfg, err := Resolve(path)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cfg.DefaultProfile != "home" {
		t.Errorf("DefaultProfile = %q, want home", cfg.DefaultProfile)
	}
	if cfg.Directory.BaseURL != "http://override:9090" {
		t.Errorf("Directory.BaseURL = %q, want env override", cfg.Directory.BaseURL)
	}
	if cfg.Media.CacheCapacity != 10 {
		t.Errorf("Media.CacheCapacity = %d, want 10 from file", cfg.Media.CacheCapacity)
	}
	if cfg.Media.URLTTL != 90*time.Second {
		t.Errorf("Media.URLTTL = %v, want 90s", cfg.Media.URLTTL)
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, &Config{DefaultProfile: "main"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
