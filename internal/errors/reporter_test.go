package errors

import (
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func init() {
	color.NoColor = true
}

func TestErrorReporter(t *testing.T) {
	source := `shader fragment {
  function main entry {
    block b0 {
      %1 = vec1 32 fadd %0, %0;
    }
  }
}`

	reporter := NewErrorReporter("test.nir", source)

	err := UnknownOperation("fadd2", Position{Line: 4, Column: 20}, []string{"fadd", "fmul", "load_const"})
	formatted := reporter.FormatError(err)

	assert.Contains(t, formatted, "error["+ErrorUnknownOperation+"]")
	assert.Contains(t, formatted, "unknown operation 'fadd2'")
	assert.Contains(t, formatted, "test.nir:4:20")
	assert.Contains(t, formatted, "did you mean 'fadd'")
	// line before and after are shown
	assert.Contains(t, formatted, "block b0 {")
	assert.Contains(t, formatted, "    }")
}

func TestUnknownOperationSuggestions(t *testing.T) {
	pos := Position{Line: 1, Column: 5}

	err := UnknownOperation("fmull", pos, []string{"fmul", "imul", "fadd"})
	assert.Equal(t, ErrorUnknownOperation, err.Code)
	assert.Len(t, err.Suggestions, 1)
	assert.Contains(t, err.Suggestions[0], "did you mean one of: 'fmul', 'imul'")

	err = UnknownOperation("texelfetch", pos, []string{"fmul"})
	assert.Empty(t, err.Suggestions)
	assert.Contains(t, err.HelpText, "gpuc ops")
}

func TestFatalWithoutLine(t *testing.T) {
	reporter := NewErrorReporter("prog.nir", "x")

	err := Fatal(ErrorBadAlignment, "bad alignment 5", 0)
	assert.Equal(t, Position{Line: 0, Column: 1}, err.Position)
	assert.Equal(t, []string{GetErrorDescription(ErrorBadAlignment)}, err.Notes)

	formatted := reporter.FormatError(err)
	assert.Contains(t, formatted, "error[E1006]: bad alignment 5")
	assert.Contains(t, formatted, "--> prog.nir\n")
	assert.Contains(t, formatted, "outside of any source instruction")
	assert.Equal(t, "error[E1006]: bad alignment 5", err.Error())
}

func TestCompilerErrorString(t *testing.T) {
	err := SyntaxError("unexpected token", Position{Line: 3, Column: 7})
	assert.Equal(t, "3:7: error[E0100]: unexpected token", err.Error())
}

func TestErrorMarkerCreation(t *testing.T) {
	line := "%1 = vec1 32 fadd %0, %0;"
	reporter := NewErrorReporter("test.nir", line)

	marker := reporter.createMarker(line, 14, 4, Error)

	spaces := strings.Count(marker, " ")
	assert.Equal(t, 13, spaces)
	carets := strings.Count(marker, "^")
	assert.Equal(t, 4, carets)
}

func TestErrorMarkerWideAndTabs(t *testing.T) {
	reporter := NewErrorReporter("test.nir", "")

	// each CJK rune takes two cells
	assert.Equal(t, "    ^", reporter.createMarker("名前 fadd", 3, 1, Error))
	assert.Equal(t, "\t ^", reporter.createMarker("\t%0 x", 3, 1, Error))
	assert.Equal(t, "    ^", reporter.createMarker("ab", 5, 1, Error))
}

func TestFormatAnnotatedDump(t *testing.T) {
	dump := "block b0 {\n  %1 = vec1 32 load_reg %0;\n  // error: bogus reg: r0\n}\n"
	out := FormatAnnotatedDump("fatal error in fragment shader", dump)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Len(t, lines, 5)
	assert.Equal(t, "fatal error in fragment shader", lines[0])
	assert.Equal(t, "│ block b0 {", lines[1])
	assert.Equal(t, "  // error: bogus reg: r0", lines[3])
}

func TestErrorCategories(t *testing.T) {
	assert.Equal(t, "Parser", GetErrorCategory(ErrorSyntax))
	assert.Equal(t, "Program", GetErrorCategory(ErrorUnknownOperation))
	assert.Equal(t, "Backend", GetErrorCategory(ErrorUnknownArray))
	assert.Equal(t, "Context", GetErrorCategory(ErrorAllocation))
	assert.Equal(t, "Warning", GetErrorCategory("W0001"))

	assert.True(t, IsFatal(ErrorCollectBounds))
	assert.False(t, IsFatal(ErrorAllocation))
	assert.False(t, IsWarning(ErrorInternal))
	assert.Equal(t, "Unknown error code", GetErrorDescription("E9999"))
}

func TestLevenshteinDistance(t *testing.T) {
	assert.Equal(t, 0, levenshteinDistance("fadd", "fadd"))
	assert.Equal(t, 1, levenshteinDistance("fadd", "iadd"))
	assert.Equal(t, 1, levenshteinDistance("fadd", "fad"))
	assert.Equal(t, 4, levenshteinDistance("fadd", ""))
	assert.Equal(t, 3, levenshteinDistance("kitten", "sitting"))
}
