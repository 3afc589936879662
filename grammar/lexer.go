package grammar

import (
	"github.com/alecthomas/participle/v2/lexer"
)

var NIRLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		// Comments
		{"Comment", `//[^\n]*`, nil},

		// Quoted shader names
		{"String", `"[^"]*"`, nil},

		// SSA value references (%12)
		{"SSA", `%[0-9]+`, nil},

		// Numeric literals (float before int)
		{"Float", `[-+]?[0-9]+\.[0-9]+([eE][-+]?[0-9]+)?`, nil},
		{"Int", `[-+]?(0x[0-9a-fA-F]+|[0-9]+)`, nil},

		// Keywords, opcodes, block labels, swizzles
		{"Ident", `[a-zA-Z_][a-zA-Z0-9_]*`, nil},

		// Punctuation
		{"Punctuation", `[{}()\[\],;=:.]`, nil},

		// Whitespace
		{"Whitespace", `[ \t\r\n]+`, nil},
	},
})
