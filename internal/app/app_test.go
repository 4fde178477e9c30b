package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveDataDir_Configured(t *testing.T) {
	got, err := resolveDataDir("/var/lib/docrag")
	if err != nil {
		t.Fatalf("resolveDataDir() error = %v", err)
	}
	if got != "/var/lib/docrag" {
		t.Errorf("resolveDataDir() = %q, want %q", got, "/var/lib/docrag")
	}
}

func TestResolveDataDir_Default(t *testing.T) {
	got, err := resolveDataDir("")
	if err != nil {
		t.Fatalf("resolveDataDir() error = %v", err)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(home, ".docrag", "data")
	if got != want {
		t.Errorf("resolveDataDir() = %q, want %q", got, want)
	}
}
