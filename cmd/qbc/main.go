// Command qbc is a minimal driver wiring lexer -> parser -> sema ->
// codegen -> target into one pipeline, for local testing and --dump-ir
// inspection. It intentionally does not implement include-file inlining,
// multi-file argument parsing, or colorized diagnostic rendering; those
// remain an external driver's job.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/klauspost/asmfmt"
	"github.com/spf13/cobra"

	"github.com/parisxmas/esp32basic/internal/ast"
	"github.com/parisxmas/esp32basic/internal/codegen"
	"github.com/parisxmas/esp32basic/internal/diag"
	"github.com/parisxmas/esp32basic/internal/ir"
	"github.com/parisxmas/esp32basic/internal/parser"
	"github.com/parisxmas/esp32basic/internal/sema"
	"github.com/parisxmas/esp32basic/internal/target"
)

var (
	outputPath string
	targetName string
	dumpIR     bool
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "qbc <file.bas>",
	Short: "Compile a BASIC source file to a RISC-V object file",
	Args:  cobra.ExactArgs(1),
	RunE:  runCompile,
}

func init() {
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "a.o", "output object file path")
	rootCmd.Flags().StringVarP(&targetName, "target", "T", "riscv32-unknown-none-elf", "target triple (riscv32-unknown-none-elf, host)")
	rootCmd.Flags().BoolVar(&dumpIR, "dump-ir", false, "print the lowered IR module instead of emitting an object file")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log pass-boundary timing to stderr")
}

func runCompile(cmd *cobra.Command, args []string) error {
	src, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("qbc: %w", err)
	}

	r := diag.New()
	if verbose {
		r.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	}
	ctx := context.Background()

	var prog *ast.Program
	if perr := r.Pass(ctx, "parse", len(src), func() error {
		p, err := parser.Parse(0, src)
		if err != nil {
			return err
		}
		prog = p
		return nil
	}); perr != nil {
		return fmt.Errorf("qbc: %w", perr)
	}

	var info *sema.Info
	if aerr := r.Pass(ctx, "analyze", len(prog.TopLevel), func() error {
		var errs []error
		info, errs = sema.Analyze(prog)
		if len(errs) > 0 {
			return joinErrors(errs)
		}
		return nil
	}); aerr != nil {
		return fmt.Errorf("qbc: %w", aerr)
	}

	var mod *ir.Module
	if cerr := r.Pass(ctx, "codegen", len(prog.Subs)+len(prog.Functions)+1, func() error {
		m, errs := codegen.Compile(prog, info)
		if len(errs) > 0 {
			return joinErrors(errs)
		}
		mod = m
		return nil
	}); cerr != nil {
		return fmt.Errorf("qbc: %w", cerr)
	}

	if dumpIR {
		text := mod.Dump()
		if out, ferr := asmfmt.Format([]byte(text)); ferr == nil {
			text = string(out)
		}
		// asmfmt may reject Dump()'s text outright since it isn't Go
		// source; the unformatted text is still useful on stdout.
		fmt.Print(text)
		return nil
	}

	triple, terr := target.Lookup(targetName)
	if terr != nil {
		return fmt.Errorf("qbc: %w", terr)
	}

	var obj []byte
	if lerr := r.Pass(ctx, "lower", len(mod.Funcs), func() error {
		o, err := target.Lower(mod, triple)
		if err != nil {
			return err
		}
		obj = o
		return nil
	}); lerr != nil {
		return fmt.Errorf("qbc: %w", lerr)
	}

	if werr := os.WriteFile(outputPath, obj, 0o644); werr != nil {
		return fmt.Errorf("qbc: %w", werr)
	}
	return nil
}

func joinErrors(errs []error) error {
	msg := fmt.Sprintf("%d error(s):\n", len(errs))
	for _, e := range errs {
		msg += "  " + e.Error() + "\n"
	}
	return fmt.Errorf("%s", msg)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
