package lsp

import (
	"context"
	"strings"

	"fortio.org/safecast"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"gpuc/internal/driver"
	diag "gpuc/internal/errors"
	"gpuc/internal/nir"
	"gpuc/internal/target"
	"gpuc/internal/variant"
)

// Diagnose parses src and compiles it for c with the default variant,
// returning every problem found. A program that does not parse is not
// compiled.
func Diagnose(ctx context.Context, c *target.Compiler, path, src string) []protocol.Diagnostic {
	prog, err := nir.Parse(path, src)
	if err != nil {
		return ConvertCompilerErrors(driver.SourceErrors(err), "gpuc-parser")
	}
	if c == nil {
		return []protocol.Diagnostic{}
	}

	results, err := driver.CompileVariants(ctx, c, variant.NewShader(prog), nil, driver.Options{Jobs: 1})
	if err != nil {
		log.Warningf("compile of %s: %s", path, err)
		return []protocol.Diagnostic{}
	}

	var errs []diag.CompilerError
	for _, res := range results {
		if res.Diagnostic != nil {
			errs = append(errs, *res.Diagnostic)
		}
	}
	return ConvertCompilerErrors(errs, "gpuc-compiler")
}

// ConvertCompilerErrors transforms compiler errors into LSP diagnostics for
// IDE display. Errors without a line are shown on the first line.
func ConvertCompilerErrors(errs []diag.CompilerError, source string) []protocol.Diagnostic {
	diagnostics := []protocol.Diagnostic{}

	for _, e := range errs {
		line := max(e.Position.Line-1, 0)   // Convert to 0-based indexing
		col := max(e.Position.Column-1, 0) // Convert to 0-based indexing
		length := e.Length
		if length == 0 {
			length = 1
		}

		severity := protocol.DiagnosticSeverityError
		if diag.IsWarning(e.Code) {
			severity = protocol.DiagnosticSeverityWarning
		}

		message := e.Message
		if len(e.Suggestions) > 0 {
			message += " (" + strings.Join(e.Suggestions, "; ") + ")"
		}

		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range: protocol.Range{
				Start: position(line, col),
				End:   position(line, col+length),
			},
			Severity: &severity,
			Code:     &protocol.IntegerOrString{Value: e.Code},
			Source:   ptrString(source),
			Message:  message,
		})
	}

	return diagnostics
}

func position(line, col int) protocol.Position {
	l, err := safecast.Conv[uint32](line)
	if err != nil {
		l = 0
	}
	c, err := safecast.Conv[uint32](col)
	if err != nil {
		c = 0
	}
	return protocol.Position{Line: l, Character: c}
}

func ptrString(s string) *string {
	return &s
}
