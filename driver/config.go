// Package driver implements the Module Driver (§4.9): the component that
// iterates a compilation's root trees in dependency order, hands each to
// the Node Compiler, finalises the module initialiser, verifies the
// resulting module, and emits the object file (plus optional bitcode and
// textual disassembly) named in Config.OutputPath. It is the only package
// in this module that shells out to an external tool (§10: `os/exec` to
// `llc`), because github.com/llir/llvm is a pure-Go IR *builder* with no
// linkage to LLVM's own verifier or object-emission backend.
package driver

import "runtime"

// Config carries everything the Module Driver needs from its caller,
// corresponding to §6's Configuration table plus the expansion's emission
// controls (SPEC_FULL.md §3 "Config model").
type Config struct {
	// Debug selects CodeGenLevelNone; otherwise the emitted object uses the
	// default optimisation level of whatever backend Emit shells out to.
	Debug bool
	// TargetTriple is set on the module as given, without normalisation;
	// empty means the host triple (hostTriple).
	TargetTriple string
	// CPU is the target CPU name; empty means "generic" (hostCPU), not the
	// host's own CPU.
	CPU string
	// CPUFeatures is the target feature string; empty passes no feature
	// string to the backend, so its defaults for CPU apply.
	CPUFeatures string

	// OutputPath is the path of the final object file.
	OutputPath string
	// EmitIR additionally writes a textual .ll disassembly alongside OutputPath.
	EmitIR bool
	// EmitBitcode additionally writes a .bc bitcode file alongside OutputPath
	// (best-effort: failure here does not fail the overall compilation, §4.9).
	EmitBitcode bool
	// Interactive is read only by the CLI (main), to decide whether to wire
	// a Progress callback into a progress.Program; the driver itself never
	// imports package progress.
	Interactive bool
}

// hostTriple returns a plausible default LLVM target triple for the host
// Go is running on, used when Config.TargetTriple is empty (§6: "defaults
// to host triple").
func hostTriple() string {
	arch := goArchToLLVM(runtime.GOARCH)
	switch runtime.GOOS {
	case "linux":
		return arch + "-unknown-linux-gnu"
	case "darwin":
		return arch + "-apple-darwin"
	case "windows":
		return arch + "-pc-windows-msvc"
	case "freebsd":
		return arch + "-unknown-freebsd"
	default:
		return arch + "-unknown-unknown"
	}
}

func goArchToLLVM(arch string) string {
	switch arch {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	case "386":
		return "i386"
	case "arm":
		return "armv7"
	default:
		return arch
	}
}

func hostCPU() string {
	return "generic"
}
