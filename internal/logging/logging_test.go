package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesConsoleAndFile(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "autobiographer.log")

	root, closeLog, err := New(Options{Level: "debug", File: path, Console: &console, NoColor: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger := For(root, ComponentRouter)
	logger.Info().Int("pairings", 3).Msg("Initialized submission router")
	if err := closeLog(); err != nil {
		t.Fatalf("closing log: %v", err)
	}

	if !strings.Contains(console.String(), "Initialized submission router") {
		t.Errorf("console output missing message: %q", console.String())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	for _, want := range []string{`"component":"router"`, `"pairings":3`, `"level":"info"`} {
		if !bytes.Contains(data, []byte(want)) {
			t.Errorf("log file missing %s: %s", want, data)
		}
	}
}

func TestNewRotatesPreviousRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "autobiographer.log")
	if err := os.WriteFile(path, []byte("previous run\n"), 0o644); err != nil {
		t.Fatalf("seeding log file: %v", err)
	}

	root, closeLog, err := New(Options{File: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	root.Info().Msg("fresh run")
	if err := closeLog(); err != nil {
		t.Fatalf("closing log: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if bytes.Contains(data, []byte("previous run")) {
		t.Errorf("previous run was not rotated away: %s", data)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading log dir: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("expected the log and one backup, found %d files", len(entries))
	}
}

func TestNewFiltersByLevel(t *testing.T) {
	var console bytes.Buffer
	root, _, err := New(Options{Level: "warn", Console: &console, NoColor: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	root.Info().Msg("hidden")
	root.Warn().Msg("shown")

	if strings.Contains(console.String(), "hidden") || !strings.Contains(console.String(), "shown") {
		t.Errorf("unexpected console output: %q", console.String())
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, _, err := New(Options{Level: "loud"}); err == nil {
		t.Fatal("expected an error for an unknown level")
	}
}
