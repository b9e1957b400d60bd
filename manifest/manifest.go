// Package manifest handles avm.toml run configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file searched for by FindAndLoad.
const FileName = "avm.toml"

// Manifest represents an avm.toml configuration.
type Manifest struct {
	Program Program `toml:"program"`
	Limits  Limits  `toml:"limits"`
	Log     Log     `toml:"log"`

	// Dir is the directory containing the avm.toml file (set at load time).
	Dir string `toml:"-"`
}

// Program names the payload and what to run in it.
type Program struct {
	Payload string   `toml:"payload"`
	DoABC   bool     `toml:"doabc"`
	Entry   string   `toml:"entry"`
	Args    []string `toml:"args"`
}

// Limits bounds execution.
type Limits struct {
	MaxCallDepth      int   `toml:"max_call_depth"`
	InstructionBudget int64 `toml:"instruction_budget"`
	GCThreshold       int   `toml:"gc_threshold"`
	StrictStack       bool  `toml:"strict_stack"`
}

// Log configures logging.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns the configuration used when no avm.toml exists.
func Default() *Manifest {
	return &Manifest{
		Limits: Limits{
			MaxCallDepth: 256,
			GCThreshold:  4096,
			StrictStack:  true,
		},
		Log: Log{Verbosity: 1},
	}
}

// Load parses an avm.toml file from the given directory. Keys missing from
// the file keep their Default values.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m := Default()
	if err := toml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	if m.Limits.MaxCallDepth < 0 {
		return nil, fmt.Errorf("%s: max_call_depth must not be negative", path)
	}
	if m.Limits.InstructionBudget < 0 {
		return nil, fmt.Errorf("%s: instruction_budget must not be negative", path)
	}
	if m.Program.Entry != "" {
		if _, _, err := SplitEntry(m.Program.Entry); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return m, nil
}

// FindAndLoad walks up from startDir to find an avm.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// PayloadPath returns the payload path resolved against the manifest
// directory, or "" when none is configured.
func (m *Manifest) PayloadPath() string {
	if m.Program.Payload == "" {
		return ""
	}
	if filepath.IsAbs(m.Program.Payload) || m.Dir == "" {
		return m.Program.Payload
	}
	return filepath.Join(m.Dir, m.Program.Payload)
}

// LogFilePath returns the log file resolved against the manifest
// directory, or "" for standard error.
func (m *Manifest) LogFilePath() string {
	if m.Log.File == "" || filepath.IsAbs(m.Log.File) || m.Dir == "" {
		return m.Log.File
	}
	return filepath.Join(m.Dir, m.Log.File)
}
