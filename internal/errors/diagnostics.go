package errors

import (
	"fmt"
	"strings"
)

// DiagnosticBuilder provides a fluent interface for creating diagnostics
type DiagnosticBuilder struct {
	err CompilerError
}

// NewDiagnostic creates a new error builder
func NewDiagnostic(code, message string, pos Position) *DiagnosticBuilder {
	return &DiagnosticBuilder{
		err: CompilerError{
			Level:    Error,
			Code:     code,
			Message:  message,
			Position: pos,
			Length:   1,
		},
	}
}

// WithLength sets the length of the error span
func (b *DiagnosticBuilder) WithLength(length int) *DiagnosticBuilder {
	b.err.Length = length
	return b
}

// WithSuggestion adds a suggestion to the error
func (b *DiagnosticBuilder) WithSuggestion(message string) *DiagnosticBuilder {
	b.err.Suggestions = append(b.err.Suggestions, message)
	return b
}

// WithNote adds a note to the error
func (b *DiagnosticBuilder) WithNote(note string) *DiagnosticBuilder {
	b.err.Notes = append(b.err.Notes, note)
	return b
}

// WithHelp adds help text to the error
func (b *DiagnosticBuilder) WithHelp(help string) *DiagnosticBuilder {
	b.err.HelpText = help
	return b
}

// Build returns the completed compiler error
func (b *DiagnosticBuilder) Build() CompilerError {
	return b.err
}

// SyntaxError reports text the grammar rejected
func SyntaxError(message string, pos Position) CompilerError {
	return NewDiagnostic(ErrorSyntax, message, pos).Build()
}

// BuildError reports a malformed but parseable program
func BuildError(message string, pos Position) CompilerError {
	return NewDiagnostic(ErrorBuild, message, pos).Build()
}

// UnknownOperation reports an operation name outside the instruction set,
// suggesting close matches from known
func UnknownOperation(name string, pos Position, known []string) CompilerError {
	builder := NewDiagnostic(ErrorUnknownOperation, fmt.Sprintf("unknown operation '%s'", name), pos).
		WithLength(len(name))

	similar := findSimilarNames(name, known)
	switch len(similar) {
	case 0:
		builder = builder.WithHelp("run 'gpuc ops' to list the instruction set")
	case 1:
		builder = builder.WithSuggestion(fmt.Sprintf("did you mean '%s'?", similar[0]))
	default:
		builder = builder.WithSuggestion(fmt.Sprintf("did you mean one of: '%s'?", strings.Join(similar, "', '")))
	}
	return builder.Build()
}

// Fatal wraps a fatal backend error raised while translating the
// instruction on line (0 when it has no source line)
func Fatal(code, message string, line int) CompilerError {
	builder := NewDiagnostic(code, message, Position{Line: line, Column: 1})
	if desc := GetErrorDescription(code); desc != "Unknown error code" {
		builder = builder.WithNote(desc)
	}
	if line == 0 {
		builder = builder.WithHelp("the error was raised outside of any source instruction")
	}
	return builder.Build()
}

// findSimilarNames finds names similar to target using Levenshtein distance
func findSimilarNames(target string, candidates []string) []string {
	var similar []string
	maxDistance := len(target)/3 + 1

	for _, candidate := range candidates {
		if candidate != target && levenshteinDistance(target, candidate) <= maxDistance {
			similar = append(similar, candidate)
		}
	}

	return similar
}

// levenshteinDistance calculates the edit distance between two strings
func levenshteinDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}

	return prev[len(b)]
}
