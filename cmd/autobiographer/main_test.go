package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Haraven/autobiographical-exercise/internal/store"
	"github.com/Haraven/autobiographical-exercise/tests/testutil"
)

func TestRunInitWritesConfigOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	var stdout, stderr bytes.Buffer

	if err := run([]string{"--config", path, "init"}, &stdout, &stderr); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config not written: %v", err)
	}

	err := run([]string{"-c", path, "init"}, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("second init: %v", err)
	}
}

func TestRunStatus(t *testing.T) {
	dir := t.TempDir()
	pairingsPath := filepath.Join(dir, "pairings.json")
	rosterPath := filepath.Join(dir, "registered-users.json")

	if err := store.NewJSONStore(pairingsPath).Flush(context.Background(), testutil.SamplePairings()); err != nil {
		t.Fatalf("seeding pairings: %v", err)
	}
	if err := os.WriteFile(rosterPath, []byte(`["a@x", "b@x", "c@x"]`), 0o644); err != nil {
		t.Fatalf("writing roster: %v", err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	config := fmt.Sprintf("paths:\n  pairings: %s\n  roster: %s\nmailbox:\n  username: exchange@example.com\n",
		pairingsPath, rosterPath)
	if err := os.WriteFile(configPath, []byte(config), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	var stdout, stderr bytes.Buffer
	if err := run([]string{"--config", configPath, "status"}, &stdout, &stderr); err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(stdout.String(), "2 pairings: 1 awaiting feedback, 1 closed") {
		t.Errorf("unexpected status output:\n%s", stdout.String())
	}
}

func TestRunStatusRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("poll_interval: 1m\n"), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	var stdout, stderr bytes.Buffer
	if err := run([]string{"--config", path, "status"}, &stdout, &stderr); err == nil {
		t.Fatal("expected a validation error for a config without an account")
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run([]string{"--config", filepath.Join(t.TempDir(), "c.yaml"), "frobnicate"}, &stdout, &stderr)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(stderr.String(), "Usage: autobiographer") {
		t.Errorf("usage not printed: %q", stderr.String())
	}
}

func TestRunHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := run([]string{"--help"}, &stdout, &stderr); err != nil {
		t.Fatalf("--help: %v", err)
	}
	if !strings.Contains(stderr.String(), "--once") {
		t.Errorf("flags not listed: %q", stderr.String())
	}
}
