package driver

import (
	"errors"

	"gpuc/grammar"
	diag "gpuc/internal/errors"
	"gpuc/internal/nir"
)

// SourceErrors converts the error returned by nir.Parse into compiler
// errors. Syntax errors stop the parser, so there is at most one; build
// errors are all reported.
func SourceErrors(err error) []diag.CompilerError {
	if err == nil {
		return nil
	}

	if line, column, message, ok := grammar.ErrorPosition(err); ok {
		return []diag.CompilerError{diag.SyntaxError(message, diag.Position{Line: line, Column: column})}
	}

	var buildErrs nir.BuildErrors
	if errors.As(err, &buildErrs) {
		out := make([]diag.CompilerError, 0, len(buildErrs))
		for _, be := range buildErrs {
			out = append(out, buildError(be))
		}
		return out
	}

	var be *nir.BuildError
	if errors.As(err, &be) {
		return []diag.CompilerError{buildError(be)}
	}

	return []diag.CompilerError{diag.BuildError(err.Error(), diag.Position{Line: 1, Column: 1})}
}

func buildError(be *nir.BuildError) diag.CompilerError {
	pos := diag.Position{Line: be.Line, Column: be.Column}
	if be.UnknownOp != "" {
		return diag.UnknownOperation(be.UnknownOp, pos, nir.KnownOps())
	}
	return diag.BuildError(be.Message, pos)
}
