package driver

import (
	"go.uber.org/zap"

	"github.com/alta-lang/altac-codegen/compiler"
	"github.com/alta-lang/altac-codegen/diag"
	"github.com/alta-lang/altac-codegen/irgen"
	"github.com/alta-lang/altac-codegen/tree"
)

// Driver owns one compilation's worth of state: the shared irgen.Context
// and Compiler (§5: "the IR module and its global tables... are mutated
// exclusively by the compiler instance"), plus structured logging and an
// optional progress callback.
type Driver struct {
	Config Config
	Log    *zap.SugaredLogger

	// Progress, if non-nil, is called synchronously for every Event this
	// Run emits. The driver never imports package progress itself — the
	// CLI wires a progress.Program's channel-feeding callback in here when
	// Config.Interactive is set (SPEC_FULL.md §4.9).
	Progress func(Event)

	IR       *irgen.Context
	Compiler *compiler.Compiler
}

// New creates a Driver for a fresh compilation of moduleName, wiring a
// Compiler against a brand-new irgen.Context — never shared with another
// Driver, per §9's note that two compilations in the same process must not
// share caches.
func New(moduleName string, cfg Config, log *zap.SugaredLogger) *Driver {
	ctx := irgen.NewContext(moduleName)
	if cfg.TargetTriple == "" {
		cfg.TargetTriple = hostTriple()
	}
	if cfg.CPU == "" {
		cfg.CPU = hostCPU()
	}
	ctx.Module.TargetTriple = cfg.TargetTriple

	return &Driver{
		Config:   cfg,
		Log:      log,
		IR:       ctx,
		Compiler: compiler.New(ctx, log),
	}
}

func (d *Driver) emit(e Event) {
	if d.Progress != nil {
		d.Progress(e)
	}
}

// Run compiles every root in dependency order, finalises the module
// initialiser, verifies the resulting module, and emits its artifacts to
// Config.OutputPath, per §4.9. It returns the first diagnostic raised by
// any stage; the caller (the CLI) is responsible for mapping that to the
// process exit codes named in §6.
func (d *Driver) Run(roots []*tree.Root) error {
	order, err := topoSort(roots)
	if err != nil {
		d.emit(Event{Phase: PhaseFailed, Err: err})
		return err
	}

	total := len(order)
	for i, root := range order {
		d.emit(Event{Phase: PhaseCompilingRoot, RootID: root.ID, Index: i, Total: total})
		if d.Log != nil {
			d.Log.Infow("compiling root", "root", root.ID, "index", i, "total", total)
		}
		if err := d.Compiler.CompileRoot(root); err != nil {
			wrapped := wrapRootError(root.ID, err)
			d.emit(Event{Phase: PhaseFailed, RootID: root.ID, Err: wrapped})
			if d.Log != nil {
				d.Log.Errorw("root compilation failed", "root", root.ID, "error", wrapped)
			}
			return wrapped
		}
		d.emit(Event{Phase: PhaseRootDone, RootID: root.ID, Index: i, Total: total})
	}

	d.emit(Event{Phase: PhaseFinalizingModuleInit})
	if _, ok := d.Compiler.ModuleInitFunc(); ok {
		finished := d.Compiler.FinishModuleInit()
		registerGlobalCtor(d.IR, finished, ModuleInitPriority)
	}

	emitMapping(d.IR)

	d.emit(Event{Phase: PhaseVerifying})
	if err := verifyModule(d.IR.Module); err != nil {
		wrapped := diag.New(diag.SubsystemDriver, diag.Position{}, "module verification failed: %s", err)
		d.emit(Event{Phase: PhaseFailed, Err: wrapped})
		if d.Log != nil {
			d.Log.Errorw("module verification failed", "error", err)
		}
		return wrapped
	}

	d.emit(Event{Phase: PhaseEmitting, Detail: d.Config.OutputPath})
	if err := emitArtifacts(d.IR.Module, d.Config); err != nil {
		wrapped := diag.New(diag.SubsystemDriver, diag.Position{}, "object emission failed: %s", err)
		d.emit(Event{Phase: PhaseFailed, Err: wrapped})
		if d.Log != nil {
			d.Log.Errorw("object emission failed", "error", err)
		}
		return wrapped
	}

	d.emit(Event{Phase: PhaseDone, Detail: d.Config.OutputPath})
	if d.Log != nil {
		d.Log.Infow("compilation complete", "output", d.Config.OutputPath)
	}
	return nil
}

func wrapRootError(rootID string, err error) error {
	if de, ok := err.(*diag.Error); ok {
		return de
	}
	return diag.New(diag.SubsystemDriver, diag.Position{}, "root %q: %s", rootID, err)
}
