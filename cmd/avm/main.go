// avm CLI - loads an ABC payload and runs it
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/avm2/abc"
	"github.com/chazu/avm2/inspect"
	"github.com/chazu/avm2/manifest"
	"github.com/chazu/avm2/vm"
)

var log = commonlog.GetLogger("avm2.cli")

// verbosity counts repeated -v flags; -vv counts twice.
type verbosity int

func (v *verbosity) String() string { return strconv.Itoa(int(*v)) }

func (v *verbosity) Set(s string) error {
	on, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	if on {
		*v++
	}
	return nil
}

func (v *verbosity) IsBoolFlag() bool { return true }

type options struct {
	config  string
	doabc   bool
	entry   string
	dump    bool
	summary string
	budget  int64
	verbose int
	args    []string
}

func main() {
	var opts options
	var v, vv verbosity
	flag.StringVar(&opts.config, "config", "", "Path to avm.toml (default: search upward from the working directory)")
	flag.BoolVar(&opts.doabc, "doabc", false, "Payload is a DoABC tag body rather than a bare ABC file")
	flag.StringVar(&opts.entry, "m", "", "Qualified entry to call (e.g. 'main', 'com.example::main', 'App.start')")
	flag.BoolVar(&opts.dump, "dump", false, "Print the disassembly of every method body")
	flag.StringVar(&opts.summary, "summary", "", "Write a canonical CBOR summary of the program to `file`")
	flag.Int64Var(&opts.budget, "budget", -1, "Instruction budget per call (0 = unlimited, default from avm.toml)")
	flag.Var(&v, "v", "Verbose output (repeatable)")
	flag.Var(&vv, "vv", "Very verbose output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: avm [options] [payload.abc [args...]]\n\n")
		fmt.Fprintf(os.Stderr, "Loads an ABC payload and runs its entry point.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  avm game.abc                    # Run the last script's initializer\n")
		fmt.Fprintf(os.Stderr, "  avm -m main game.abc 1 2        # Call main with two string arguments\n")
		fmt.Fprintf(os.Stderr, "  avm -doabc -dump tag.bin        # Disassemble a DoABC tag body\n")
		fmt.Fprintf(os.Stderr, "  avm -summary out.cbor game.abc  # Write a program summary\n")
		fmt.Fprintf(os.Stderr, "\nWithout a payload argument, [program] payload from avm.toml is used.\n")
	}
	flag.Parse()
	opts.verbose = int(v) + 2*int(vv)
	opts.args = flag.Args()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, opts, os.Stdout)
	stop()
	os.Exit(code)
}

// run executes one invocation and returns the process exit code.
func run(ctx context.Context, opts options, stdout io.Writer) int {
	m, err := loadManifest(opts.config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	verbose := m.Log.Verbosity
	if opts.verbose > 0 {
		verbose += opts.verbose
	}
	var logPath *string
	if path := m.LogFilePath(); path != "" {
		logPath = &path
	}
	commonlog.Configure(verbose, logPath)

	payloadPath := m.PayloadPath()
	args := m.Program.Args
	if len(opts.args) > 0 {
		payloadPath = opts.args[0]
		if len(opts.args) > 1 {
			args = opts.args[1:]
		}
	}
	if payloadPath == "" {
		fmt.Fprintf(os.Stderr, "Error: no payload given and none configured in %s\n", manifest.FileName)
		return 2
	}

	p, payload, err := loadProgram(payloadPath, opts.doabc || m.Program.DoABC)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	log.Infof("loaded %s: %d methods, %d classes, %d scripts (program %s)",
		payloadPath, len(p.Methods), len(p.Classes), len(p.Scripts), p.ID)

	if opts.dump {
		if err := dump(stdout, p); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}
	if opts.summary != "" {
		data, err := inspect.Marshal(inspect.Summarize(p, payload))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		if err := os.WriteFile(opts.summary, data, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing summary: %v\n", err)
			return 1
		}
		log.Infof("wrote summary to %s (%d bytes)", opts.summary, len(data))
	}

	entry := opts.entry
	if entry == "" {
		entry = m.Program.Entry
	}
	// Inspection-only invocations don't run anything unless asked to.
	if (opts.dump || opts.summary != "") && opts.entry == "" {
		return 0
	}
	if entry != "" {
		if _, _, err := manifest.SplitEntry(entry); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 2
		}
	}

	machine := vm.New(p, vmOptions(m, opts.budget, stdout))
	var result vm.Value
	if entry != "" {
		argv := make([]vm.Value, len(args))
		for i, a := range args {
			argv[i] = vm.String(a)
		}
		log.Debugf("calling %s with %d arguments", entry, len(argv))
		result, err = machine.CallMethodContext(ctx, entry, vm.Undefined, argv...)
	} else {
		result, err = machine.RunEntryPointContext(ctx)
	}
	if err != nil {
		reportError(err)
		return 1
	}

	if !result.IsUndefined() {
		s, err := machine.ToString(result)
		if err != nil {
			reportError(err)
			return 1
		}
		fmt.Fprintln(stdout, s)
	}
	stats := machine.HeapStats()
	log.Debugf("heap: %d live objects", stats.Live)
	return 0
}

func loadManifest(config string) (*manifest.Manifest, error) {
	if config != "" {
		dir := config
		if filepath.Base(config) == manifest.FileName {
			dir = filepath.Dir(config)
		}
		return manifest.Load(dir)
	}
	m, err := manifest.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = manifest.Default()
	}
	return m, nil
}

// loadProgram reads and links the payload. It also returns the raw ABC
// bytes, after any DoABC header has been stripped.
func loadProgram(path string, doabc bool) (*vm.Program, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot read payload: %w", err)
	}
	if doabc {
		flags, name, payload, err := abc.SplitDoABC(data)
		if err != nil {
			return nil, nil, err
		}
		log.Debugf("DoABC tag %q flags=%#x", name, flags)
		data = payload
	}
	p, err := vm.Load(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, data, nil
}

func vmOptions(m *manifest.Manifest, budget int64, trace io.Writer) vm.Options {
	opts := vm.DefaultOptions()
	opts.MaxCallDepth = m.Limits.MaxCallDepth
	opts.InstructionBudget = m.Limits.InstructionBudget
	opts.GCThreshold = m.Limits.GCThreshold
	opts.StrictStack = m.Limits.StrictStack
	if budget >= 0 {
		opts.InstructionBudget = budget
	}
	opts.Trace = trace
	return opts
}

func dump(w io.Writer, p *vm.Program) error {
	for _, m := range p.Methods {
		if m.Body == nil {
			continue
		}
		text, err := abc.DisassembleBody(p.File, m.Body)
		fmt.Fprintf(w, "; %s\n%s\n\n", m, text)
		if err != nil {
			return fmt.Errorf("%s: %w", m, err)
		}
	}
	return nil
}

func reportError(err error) {
	var thrown *vm.ThrownError
	if errors.As(err, &thrown) {
		fmt.Fprintf(os.Stderr, "Error: %s\n", thrown.Message)
		for _, frame := range thrown.Stack {
			fmt.Fprintf(os.Stderr, "    at %s\n", frame)
		}
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}
