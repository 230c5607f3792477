package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "notes:\n  path: /tmp/mynotes\n  trash_retention_days: 7\neditor:\n  base_font_pt: 16\n  ui_scale: 1.5\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := Load(path, cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Notes.Path != "/tmp/mynotes" || cfg.Notes.TrashRetentionDays != 7 {
		t.Fatalf("notes config not applied: %+v", cfg.Notes)
	}
	if cfg.Editor.BaseFontPt != 16 || cfg.Editor.UIScale != 1.5 {
		t.Fatalf("editor config not applied: %+v", cfg.Editor)
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("NOTES_DIR", "/srv/notes")
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("notes:\n  path: ${NOTES_DIR}\n  trash_retention_days: 14\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := Load(path, cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Notes.Path != "/srv/notes" {
		t.Fatalf("environment not expanded: %q", cfg.Notes.Path)
	}
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := Load(filepath.Join(t.TempDir(), "absent.yaml"), cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Notes.Path != "./notes" {
		t.Fatalf("defaults lost: %+v", cfg.Notes)
	}
}

func TestValidationRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("notes:\n  path: /x\n  trash_retention_days: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := NewDefaultConfig()
	err := Load(path, cfg)
	if err == nil || !strings.Contains(err.Error(), "validation") {
		t.Fatalf("want validation error, got %v", err)
	}
}

func TestEncryptionRequiresPassword(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Sketch.Encrypt = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("encryption without password must not validate")
	}
	cfg.Sketch.Password = "hunter2"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("password set but still invalid: %v", err)
	}
}
