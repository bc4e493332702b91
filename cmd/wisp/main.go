// Command wisp is the CLI entry point: run a script file, disassemble
// one without running it, or start the interactive REPL.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kristofer/wisp/internal/replshell"
	"github.com/kristofer/wisp/internal/wlog"
	"github.com/kristofer/wisp/pkg/bytecode"
	"github.com/kristofer/wisp/pkg/compiler"
	"github.com/kristofer/wisp/pkg/value"
	"github.com/kristofer/wisp/pkg/vm"
)

// Exit codes, exact per the CLI surface: 0 success, 65 compile error,
// 70 runtime error, 74 I/O error reading the source file, 66 too many
// arguments.
const (
	exitOK           = 0
	exitCompileError = 65
	exitRuntimeError = 70
	exitIOError      = 74
	exitUsageError   = 66
)

var trace bool

func main() {
	root := &cobra.Command{
		Use:           "wisp [path]",
		Short:         "wisp is a small Lox-family scripting language",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wlog.SetTrace(trace)
			if len(args) == 0 {
				return replshell.Run()
			}
			return runFile(args[0])
		},
	}
	root.PersistentFlags().BoolVar(&trace, "trace", false, "enable VM instruction tracing")

	disasm := &cobra.Command{
		Use:   "disasm <path>",
		Short: "compile a source file and print its disassembly without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return disasmFile(args[0])
		},
	}
	root.AddCommand(disasm)

	if err := root.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUsageError)
	}
}

// exitError carries a specific process exit code alongside an error
// cobra can still print through its normal error path.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func runFile(path string) error {
	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[error] %s\n", err)
		return &exitError{code: exitIOError, err: err}
	}

	rt := vm.New()
	if err := vm.Interpret(string(source), rt); err != nil {
		var ierr *vm.InterpretError
		if errors.As(err, &ierr) {
			switch ierr.Kind {
			case vm.CompileError:
				return &exitError{code: exitCompileError, err: ierr}
			case vm.RuntimeError:
				return &exitError{code: exitRuntimeError, err: ierr}
			}
		}
		return &exitError{code: exitRuntimeError, err: err}
	}
	return nil
}

func disasmFile(path string) error {
	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[error] %s\n", err)
		return &exitError{code: exitIOError, err: err}
	}

	heap := value.NewHeap()
	chunk, err := compiler.Compile(string(source), heap)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[compile error] %s\n", err)
		return &exitError{code: exitCompileError, err: err}
	}

	fmt.Print(bytecode.Disassemble(chunk, heap, path))
	return nil
}
