package config

import (
	"path/filepath"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := &Config{
		BackendURL:     "https://campus.peerflex.app",
		AnonKey:        "anon-key-123",
		DefaultProfile: "school",
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.BackendURL != cfg.BackendURL {
		t.Errorf("backend_url = %q, want %q", loaded.BackendURL, cfg.BackendURL)
	}
	if loaded.DefaultProfile != "school" {
		t.Errorf("default_profile = %q, want school", loaded.DefaultProfile)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
