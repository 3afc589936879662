package grammar

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/fatih/color"
)

var nirParser = participle.MustBuild[File](
	participle.Lexer(NIRLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.Unquote("String"),
	participle.UseLookahead(3),
)

// ParseString parses a textual program held in memory
func ParseString(filename, source string) (*File, error) {
	return nirParser.ParseString(filename, source)
}

func ParseFile(path string) (*File, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return ParseString(path, string(source))
}

// ErrorPosition extracts the position of a participle error. ok is false
// for errors that did not come from the parser.
func ErrorPosition(err error) (line, column int, message string, ok bool) {
	var pe participle.Error
	if !errors.As(err, &pe) {
		return 0, 0, "", false
	}
	pos := pe.Position()
	return pos.Line, pos.Column, pe.Message(), true
}

// FormatParseError renders a caret-style parse error message.
func FormatParseError(src string, err error) string {
	var out strings.Builder
	line, column, message, ok := ErrorPosition(err)
	if !ok {
		out.WriteString(color.RedString("Unexpected error: %s", err))
		out.WriteString("\n")
		return out.String()
	}

	lines := strings.Split(src, "\n")
	if line <= 0 || line > len(lines) {
		out.WriteString(color.RedString("Syntax error at unknown location: %s", err))
		out.WriteString("\n")
		return out.String()
	}

	caret := strings.Repeat(" ", max(column-1, 0)) + "^"

	out.WriteString(color.RedString("Syntax error at line %d, column %d:", line, column))
	out.WriteString("\n")
	out.WriteString(lines[line-1])
	out.WriteString("\n")
	out.WriteString(color.HiRedString(caret))
	out.WriteString("\n")
	out.WriteString(fmt.Sprintf("→ %s\n", message))
	return out.String()
}
