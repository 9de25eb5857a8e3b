package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunCompileDumpIR(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "hello.bas")
	if err := os.WriteFile(src, []byte("PRINT \"hi\"\n"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	dumpIR = true
	targetName = "riscv32-unknown-none-elf"
	defer func() { dumpIR = false }()

	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w
	err := rootCmd.RunE(rootCmd, []string{src})
	w.Close()
	os.Stdout = old
	if err != nil {
		t.Fatalf("runCompile: %v", err)
	}

	buf := make([]byte, 4096)
	n, _ := r.Read(buf)
	out := string(buf[:n])
	if !strings.Contains(out, "main") {
		t.Fatalf("expected --dump-ir output to mention the main function, got %q", out)
	}
}

func TestRunCompileUnknownTargetFails(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "hello.bas")
	if err := os.WriteFile(src, []byte("PRINT 1\n"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	dumpIR = false
	targetName = "bogus-triple"
	defer func() { targetName = "riscv32-unknown-none-elf" }()

	if err := rootCmd.RunE(rootCmd, []string{src}); err == nil {
		t.Fatal("expected an error for an unknown target triple")
	}
}

func TestRunCompileMissingFileFails(t *testing.T) {
	dumpIR = false
	if err := rootCmd.RunE(rootCmd, []string{"/does/not/exist.bas"}); err == nil {
		t.Fatal("expected an error for a missing source file")
	}
}
