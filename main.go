// altac-codegen turns one or more detailed program trees (§1: the JSON
// interchange format a lexer/parser/semantic-analysis frontend would
// produce) into a native object file via LLVM IR.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/alta-lang/altac-codegen/diag"
	"github.com/alta-lang/altac-codegen/driver"
	"github.com/alta-lang/altac-codegen/progress"
	"github.com/alta-lang/altac-codegen/tree"
)

const version = "0.1.0"

// multiFlag collects repeated -f/--file occurrences, one detailed-tree file
// per independently-compilable root.
type multiFlag []string

func (m *multiFlag) String() string     { return fmt.Sprint([]string(*m)) }
func (m *multiFlag) Set(v string) error { *m = append(*m, v); return nil }

func printUsage() {
	_, _ = fmt.Fprintf(os.Stderr, `altac-codegen v%s

USAGE:
    %s -f tree.json [-f tree2.json ...] -o output.o [OPTIONS]

DESCRIPTION:
    Compiles one or more detailed program trees (the JSON interchange
    format produced by an out-of-scope frontend) into a native object
    file via LLVM IR.

OPTIONS:
    -f, --file <path>       A detailed-tree JSON file for one root (repeatable)
    -o, --output <path>     Output object file path (default a.o)
    -d, --debug             Enable debug codegen (no optimisation, -O0 at emission)
    -i, --interactive       Show an interactive Bubble Tea progress display
    --emit-ir               Keep the intermediate .ll textual IR alongside the object file
    --emit-bitcode          Also emit a .bc bitcode file (best-effort)
    --target <triple>       Override the target triple (default: host)
    -v, --version           Show version information
    -h, --help              Show this help message

EXAMPLES:
    %s -f main.tree.json -o main.o
    %s -f a.tree.json -f b.tree.json -o out.o -i
`, version, os.Args[0], os.Args[0], os.Args[0])
}

func main() {
	os.Exit(run())
}

func run() int {
	flag.Usage = printUsage

	var files multiFlag
	flag.Var(&files, "file", "A detailed-tree JSON file for one root (repeatable)")
	flag.Var(&files, "f", "A detailed-tree JSON file for one root (repeatable)")

	outputFlag := flag.String("output", "a.o", "Output object file path")
	flag.StringVar(outputFlag, "o", "a.o", "Output object file path")

	debugFlag := flag.Bool("debug", false, "Enable debug codegen")
	flag.BoolVar(debugFlag, "d", false, "Enable debug codegen")

	interactiveFlag := flag.Bool("interactive", false, "Show an interactive progress display")
	flag.BoolVar(interactiveFlag, "i", false, "Show an interactive progress display")

	emitIRFlag := flag.Bool("emit-ir", false, "Keep the intermediate .ll file")
	emitBitcodeFlag := flag.Bool("emit-bitcode", false, "Also emit a .bc bitcode file")
	targetFlag := flag.String("target", "", "Override the target triple")

	versionFlag := flag.Bool("version", false, "Show version information")
	flag.BoolVar(versionFlag, "v", false, "Show version information")

	flag.Parse()

	if *versionFlag {
		fmt.Printf("altac-codegen v%s\n", version)
		return 0
	}

	if len(files) == 0 {
		printUsage()
		return 2
	}

	log := newLogger(*debugFlag)
	defer func() { _ = log.Sync() }()

	roots, err := loadRoots(files)
	if err != nil {
		log.Errorw("failed to load tree files", "error", err)
		return 1
	}

	moduleName := "module"
	if len(files) > 0 {
		moduleName = files[0]
	}

	cfg := driver.Config{
		Debug:        *debugFlag,
		TargetTriple: *targetFlag,
		OutputPath:   *outputFlag,
		EmitIR:       *emitIRFlag,
		EmitBitcode:  *emitBitcodeFlag,
		Interactive:  *interactiveFlag,
	}
	d := driver.New(moduleName, cfg, log)

	var uiDone chan error
	if cfg.Interactive {
		prog := progress.New()
		d.Progress = prog.Callback()
		uiDone = make(chan error, 1)
		go func() { uiDone <- prog.Wait() }()
	}

	runErr := d.Run(roots)

	if uiDone != nil {
		// The driver has already emitted its final PhaseDone/PhaseFailed
		// event by the time Run returns, so the UI goroutine is on its way
		// out; wait for it so the final frame is actually drawn before the
		// process exits.
		if err := <-uiDone; err != nil {
			log.Errorw("progress display exited with an error", "error", err)
		}
	}

	if runErr != nil {
		printDiagnostic(runErr)
		return exitCodeFor(runErr)
	}

	return 0
}

func newLogger(debug bool) *zap.SugaredLogger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	l, err := cfg.Build()
	if err != nil {
		// zap's own constructors fail only on malformed config; fall back
		// to a no-op logger rather than crash the compiler over logging.
		l = zap.NewNop()
	}
	return l.Sugar()
}

func loadRoots(files []string) ([]*tree.Root, error) {
	roots := make([]*tree.Root, 0, len(files))
	for _, path := range files {
		root, err := loadRoot(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		roots = append(roots, root)
	}
	return roots, nil
}

func loadRoot(path string) (*tree.Root, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return tree.Load(f)
}

// printDiagnostic prints one error per line: severity, subsystem code,
// position, and summary, per §7's user-visible-behaviour rule. The code
// generator only raises structured errors; this is the driver-adjacent
// layer responsible for printing them.
func printDiagnostic(err error) {
	if de, ok := err.(*diag.Error); ok {
		_, _ = fmt.Fprintln(os.Stderr, de.Error())
		if de.Detail != "" {
			_, _ = fmt.Fprintln(os.Stderr, de.Detail)
		}
		return
	}
	_, _ = fmt.Fprintln(os.Stderr, err.Error())
}

// exitCodeFor maps a driver error to the process exit codes in §6: 0 ok
// (never reached here), non-zero on IR verification failure or on
// object-file emission failure. Every failure path the driver reports is
// fatal, so this is always 1; it stays a named function so the mapping has
// one place to grow if a future caller needs finer-grained codes.
func exitCodeFor(err error) int {
	return 1
}
