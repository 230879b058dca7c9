package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveThenLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "anirec.yaml")
	cfg := Default()
	cfg.Account.Username = "someone"
	cfg.Model.Epochs = 42
	cfg.AniList.Timeout = 3 * time.Second
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Account.Username != "someone" || got.Model.Epochs != 42 || got.AniList.Timeout != 3*time.Second {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Lists.Training != "Completed" || got.Lists.Inference != "Planning" {
		t.Fatalf("list defaults lost: %+v", got.Lists)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ANIREC_ACCOUNT_USERNAME", "envuser")
	t.Setenv("ANIREC_MODEL_HIDDEN_UNITS", "64")
	t.Setenv("ANIREC_EVALUATION_TOLERANCE", "5")
	t.Setenv("ANILIST_TOKEN", "secret")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Account.Username != "envuser" || cfg.Model.HiddenUnits != 64 || cfg.Evaluation.Tolerance != 5 {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.AniList.Token != "secret" {
		t.Fatalf("token not resolved from env")
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anirec.yaml")
	body := "account:\n  username: filed\nmodel:\n  learning_algorithm: sgd\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Model.Algorithm != "sgd" || cfg.Model.BatchSize != 32 || cfg.AniList.Endpoint == "" {
		t.Fatalf("unexpected config %+v", cfg.Model)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anirec.yaml")
	if err := os.WriteFile(path, []byte("model:\n  backend: external\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("external backend without binary path should be rejected")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("missing file should be an error")
	}
}

func TestSaveEmptyPath(t *testing.T) {
	if err := Save("", Default()); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestEnvKey(t *testing.T) {
	if got := envKey("ANIREC_ANILIST_MAX_ATTEMPTS"); got != "anilist.max_attempts" {
		t.Fatalf("envKey = %q", got)
	}
}
