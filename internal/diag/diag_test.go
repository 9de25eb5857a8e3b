package diag

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/parisxmas/esp32basic/internal/span"
)

func TestReporterAccumulatesInOrder(t *testing.T) {
	r := New()
	r.Error(span.Span{File: 0, Start: 1, End: 2}, "bad token %q", "@")
	r.Warning(span.Span{File: 0, Start: 3, End: 4}, "unused variable %q", "X")

	diags := r.Diagnostics()
	if len(diags) != 2 {
		t.Fatalf("expected 2 diagnostics, got %d", len(diags))
	}
	if diags[0].Severity != SeverityError || diags[1].Severity != SeverityWarning {
		t.Fatal("expected error then warning in emission order")
	}
	if !r.HasErrors() {
		t.Fatal("expected HasErrors to be true")
	}
}

func TestReporterNoErrorsWhenOnlyWarnings(t *testing.T) {
	r := New()
	r.Warning(span.Span{}, "cosmetic")
	if r.HasErrors() {
		t.Fatal("expected HasErrors to be false with only a warning recorded")
	}
}

func TestPassRunsWithoutLoggerInstalled(t *testing.T) {
	r := New()
	ran := false
	err := r.Pass(context.Background(), "lex", 3, func() error {
		ran = true
		return nil
	})
	if err != nil || !ran {
		t.Fatal("expected Pass to run fn and return nil with no logger installed")
	}
}

func TestPassPropagatesError(t *testing.T) {
	r := New().WithLogger(slog.Default())
	want := errors.New("boom")
	err := r.Pass(context.Background(), "parse", 0, func() error {
		return want
	})
	if err != want {
		t.Fatalf("expected Pass to propagate the stage error, got %v", err)
	}
}
