// Package diag collects compiler diagnostics without ever writing to
// stderr itself — rendering them is the driver's job, not the core's.
package diag

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/parisxmas/esp32basic/internal/span"
)

// Severity distinguishes a hard failure from an advisory note.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// Diagnostic is one accumulated finding, addressable back to source text
// through the span.Map the driver already holds.
type Diagnostic struct {
	Severity Severity
	Span     span.Span
	Message  string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s: %s", d.Span, d.Severity, d.Message)
}

// Reporter accumulates diagnostics across the lex/parse/analyze/codegen
// pipeline. It carries an optional *slog.Logger (installed with
// WithLogger) purely for pass-boundary timing — the accumulated
// Diagnostic slice itself is the only thing the driver ever renders to
// the user.
type Reporter struct {
	diags  []Diagnostic
	logger *slog.Logger
}

// New returns an empty Reporter with no logger attached.
func New() *Reporter {
	return &Reporter{}
}

// WithLogger installs a *slog.Logger used for pass-timing logs. A nil
// logger is treated as "no logging" rather than falling back to
// slog.Default, so a driver that never calls WithLogger gets silence.
func (r *Reporter) WithLogger(l *slog.Logger) *Reporter {
	r.logger = l
	return r
}

func (r *Reporter) Error(sp span.Span, format string, args ...interface{}) {
	r.diags = append(r.diags, Diagnostic{Severity: SeverityError, Span: sp, Message: fmt.Sprintf(format, args...)})
}

func (r *Reporter) Warning(sp span.Span, format string, args ...interface{}) {
	r.diags = append(r.diags, Diagnostic{Severity: SeverityWarning, Span: sp, Message: fmt.Sprintf(format, args...)})
}

// Diagnostics returns the accumulated diagnostics in emission order.
func (r *Reporter) Diagnostics() []Diagnostic {
	return r.diags
}

// HasErrors reports whether any SeverityError diagnostic was recorded.
func (r *Reporter) HasErrors() bool {
	for _, d := range r.diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Pass times a single pipeline stage (lex, parse, analyze, codegen,
// lower) and logs its duration and an item count through the installed
// logger, grounded on benoit-pereira-da-silva/textual's Slog processor
// (label plus index/err attributes rather than a formatted string).
// Logging is a no-op if no logger was installed via WithLogger.
func (r *Reporter) Pass(ctx context.Context, label string, items int, fn func() error) error {
	start := time.Now()
	err := fn()
	if r.logger == nil {
		return err
	}
	elapsed := time.Since(start)
	if err != nil {
		r.logger.ErrorContext(ctx, label, "err", err, "items", items, "elapsed", elapsed)
		return err
	}
	r.logger.InfoContext(ctx, label, "items", items, "elapsed", elapsed)
	return err
}
