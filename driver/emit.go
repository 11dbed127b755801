package driver

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/llir/llvm/ir"
)

// emitArtifacts writes m's textual IR to a .ll file next to cfg.OutputPath,
// then shells out to the system LLVM toolchain to produce (optionally) a
// .bc bitcode file and the final native object file, per §4.9 / §6 ("Emit
// both a bitcode and a textual disassembly file (best-effort; ignore
// bitcode failure) and the final object file (fatal on failure)").
//
// github.com/llir/llvm only builds an in-memory IR graph and renders it as
// text (*ir.Module).String() — it has no cgo linkage to LLVM's C++
// verifier or object-emission backend, so turning that text into bitcode
// or a native object is necessarily an external-process step; see
// DESIGN.md for why this is the one place in the module that reaches for
// os/exec instead of a library.
func emitArtifacts(m *ir.Module, cfg Config) error {
	irText := m.String()

	ext := filepath.Ext(cfg.OutputPath)
	base := strings.TrimSuffix(cfg.OutputPath, ext)
	llPath := base + ".ll"

	if err := os.WriteFile(llPath, []byte(irText), 0o644); err != nil {
		return fmt.Errorf("driver: writing IR disassembly: %w", err)
	}
	if !cfg.EmitIR {
		defer os.Remove(llPath)
	}

	if cfg.EmitBitcode {
		bcPath := base + ".bc"
		if err := runTool("llvm-as", "-o", bcPath, llPath); err != nil {
			// Best-effort per §4.9: a bitcode-assembly failure (e.g. no
			// llvm-as on PATH) never fails the overall compilation.
			_ = err
		}
	}

	llcArgs := []string{"-filetype=obj", "-o", cfg.OutputPath, llPath}
	if cfg.TargetTriple != "" {
		llcArgs = append(llcArgs, "-mtriple="+cfg.TargetTriple)
	}
	if cfg.CPU != "" {
		llcArgs = append(llcArgs, "-mcpu="+cfg.CPU)
	}
	if cfg.CPUFeatures != "" {
		llcArgs = append(llcArgs, "-mattr="+cfg.CPUFeatures)
	}
	if cfg.Debug {
		llcArgs = append(llcArgs, "-O0")
	}
	if err := runTool("llc", llcArgs...); err != nil {
		return fmt.Errorf("driver: emitting object file: %w", err)
	}
	return nil
}

func runTool(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
