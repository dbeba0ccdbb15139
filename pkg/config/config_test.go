package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	defer os.Chdir(wd)
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ledger.OverlapWindowMs != 15000 {
		t.Errorf("expected default overlap window 15000, got %d", cfg.Ledger.OverlapWindowMs)
	}
	if cfg.Ledger.PruneThreshold != 2000 {
		t.Errorf("expected default prune threshold 2000, got %d", cfg.Ledger.PruneThreshold)
	}
	if cfg.Notes.CycleInterval != 10*time.Second {
		t.Errorf("expected default cycle interval 10s, got %s", cfg.Notes.CycleInterval)
	}
	if len(cfg.Notes.TriggerPhrases) == 0 {
		t.Error("expected default trigger phrases to be populated")
	}
	if cfg.Providers.ConnectTimeout != 5*time.Second {
		t.Errorf("expected default connect timeout 5s, got %s", cfg.Providers.ConnectTimeout)
	}
	if cfg.Providers.ReadTimeout != 60*time.Second {
		t.Errorf("expected default read timeout 60s, got %s", cfg.Providers.ReadTimeout)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	defer os.Chdir(wd)
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	yaml := []byte("ledger:\n  overlap_window_ms: 20000\nnotes:\n  cycle_interval: 5s\n")
	if err := os.WriteFile(filepath.Join(dir, "meetloop.yaml"), yaml, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ledger.OverlapWindowMs != 20000 {
		t.Errorf("expected overridden overlap window 20000, got %d", cfg.Ledger.OverlapWindowMs)
	}
	if cfg.Notes.CycleInterval != 5*time.Second {
		t.Errorf("expected overridden cycle interval 5s, got %s", cfg.Notes.CycleInterval)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	defer os.Chdir(wd)
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	t.Setenv("MEETLOOP_PROVIDERS_STT_BACKEND", "deepgram")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Providers.STTBackend != "deepgram" {
		t.Errorf("expected env override deepgram, got %s", cfg.Providers.STTBackend)
	}
}
