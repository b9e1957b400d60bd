package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[program]
payload = "build/main.abc"
doabc = true
entry = "com.example::main"
args = ["1", "two"]

[limits]
max_call_depth = 64
instruction_budget = 100000
gc_threshold = 512
strict_stack = false

[log]
verbosity = 3
file = "avm.log"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Program.Payload != "build/main.abc" {
		t.Errorf("payload = %q, want build/main.abc", m.Program.Payload)
	}
	if !m.Program.DoABC {
		t.Error("doabc = false, want true")
	}
	if m.Program.Entry != "com.example::main" {
		t.Errorf("entry = %q, want com.example::main", m.Program.Entry)
	}
	if len(m.Program.Args) != 2 || m.Program.Args[1] != "two" {
		t.Errorf("args = %v, want [1 two]", m.Program.Args)
	}
	if m.Limits.MaxCallDepth != 64 {
		t.Errorf("max_call_depth = %d, want 64", m.Limits.MaxCallDepth)
	}
	if m.Limits.InstructionBudget != 100000 {
		t.Errorf("instruction_budget = %d, want 100000", m.Limits.InstructionBudget)
	}
	if m.Limits.GCThreshold != 512 {
		t.Errorf("gc_threshold = %d, want 512", m.Limits.GCThreshold)
	}
	if m.Limits.StrictStack {
		t.Error("strict_stack = true, want false")
	}
	if m.Log.Verbosity != 3 {
		t.Errorf("verbosity = %d, want 3", m.Log.Verbosity)
	}
	if got, want := m.PayloadPath(), filepath.Join(m.Dir, "build", "main.abc"); got != want {
		t.Errorf("PayloadPath() = %q, want %q", got, want)
	}
	if got, want := m.LogFilePath(), filepath.Join(m.Dir, "avm.log"); got != want {
		t.Errorf("LogFilePath() = %q, want %q", got, want)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[program]
payload = "main.abc"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	def := Default()
	if m.Limits != def.Limits {
		t.Errorf("limits = %+v, want defaults %+v", m.Limits, def.Limits)
	}
	if m.Log.Verbosity != 1 {
		t.Errorf("default verbosity = %d, want 1", m.Log.Verbosity)
	}
	if m.LogFilePath() != "" {
		t.Errorf("LogFilePath() = %q, want empty", m.LogFilePath())
	}
}

func TestLoadManifestRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"syntax", "[program\n"},
		{"negative depth", "[limits]\nmax_call_depth = -1\n"},
		{"negative budget", "[limits]\ninstruction_budget = -5\n"},
		{"bad entry", "[program]\nentry = \"com.example::\"\n"},
		{"wrong type", "[limits]\nstrict_stack = \"yes\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeManifest(t, dir, tt.content)
			if _, err := Load(dir); err == nil {
				t.Error("Load succeeded, want an error")
			}
		})
	}
}

func TestFindAndLoad(t *testing.T) {
	// Create nested directory structure
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, dir, `[program]
entry = "found"
`)

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Program.Entry != "found" {
		t.Errorf("entry = %q, want found", m.Program.Entry)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no avm.toml exists")
	}
}

func TestPayloadPathAbsolute(t *testing.T) {
	m := &Manifest{Dir: "/app", Program: Program{Payload: "/data/x.abc"}}
	if got := m.PayloadPath(); got != "/data/x.abc" {
		t.Errorf("PayloadPath() = %q, want /data/x.abc", got)
	}
	m.Program.Payload = ""
	if got := m.PayloadPath(); got != "" {
		t.Errorf("PayloadPath() = %q, want empty", got)
	}
}

func TestSplitEntry(t *testing.T) {
	tests := []struct {
		input      string
		pkg, local string
	}{
		{"main", "", "main"},
		{"com.example::main", "com.example", "main"},
		{"com.example.main", "com.example", "main"},
		{"::main", "", "main"},
		{"Point.$init", "Point", "$init"},
		{"_private", "", "_private"},
	}
	for _, tc := range tests {
		pkg, local, err := SplitEntry(tc.input)
		if err != nil {
			t.Errorf("SplitEntry(%q) error: %v", tc.input, err)
			continue
		}
		if pkg != tc.pkg || local != tc.local {
			t.Errorf("SplitEntry(%q) = %q, %q; want %q, %q", tc.input, pkg, local, tc.pkg, tc.local)
		}
	}

	for _, bad := range []string{"", "com.example::", "com..main", "1st", "a b", "pkg::a-b", ".main"} {
		if _, _, err := SplitEntry(bad); !errors.Is(err, ErrEntry) {
			t.Errorf("SplitEntry(%q) error = %v, want ErrEntry", bad, err)
		}
	}
}
