package lsp

import (
	"fortio.org/safecast"
	"github.com/alecthomas/participle/v2/lexer"

	"gpuc/grammar"
	"gpuc/internal/nir"
)

// SemanticToken represents a single LSP semantic token entry
// Line and StartChar are 0-based positions
// TokenType is an index into the semanticTokenTypes array
// TokenModifiers is a bitmask based on semanticTokenModifiers
type SemanticToken struct {
	Line           uint32
	StartChar      uint32
	Length         uint32
	TokenType      int // index into semanticTokenTypes
	TokenModifiers int // bitmask
}

var keywords = map[string]bool{
	"shader":   true,
	"function": true,
	"entry":    true,
	"block":    true,
	"loop":     true,
	"continue": true,
	"br":       true,
	"br_if":    true,
	"ret":      true,
}

// words after which an identifier names a block
var labelPrefixes = map[string]bool{
	"loop":     true,
	"continue": true,
	"br":       true,
	"br_if":    true,
}

// collectSemanticTokens classifies the tokens of a source program. Lexing
// stops at the first invalid character; everything before it is kept.
func collectSemanticTokens(filename, src string) []SemanticToken {
	lex, err := grammar.NIRLexer.LexString(filename, src)
	if err != nil {
		return nil
	}
	symbols := grammar.NIRLexer.Symbols()

	var toks []lexer.Token
	for {
		tok, err := lex.Next()
		if err != nil || tok.EOF() {
			break
		}
		if tok.Type == symbols["Whitespace"] {
			continue
		}
		toks = append(toks, tok)
	}

	var tokens []SemanticToken
	for i, tok := range toks {
		var prev, next lexer.Token
		if i > 0 {
			prev = toks[i-1]
		}
		if i+1 < len(toks) {
			next = toks[i+1]
		}

		switch tok.Type {
		case symbols["Comment"]:
			tokens = append(tokens, makeToken(tok, "comment", 0)...)
		case symbols["String"]:
			tokens = append(tokens, makeToken(tok, "string", 0)...)
		case symbols["Int"], symbols["Float"]:
			tokens = append(tokens, makeToken(tok, "number", 0)...)
		case symbols["SSA"]:
			decl := 0
			if next.Value == "=" {
				decl = 1
			}
			tokens = append(tokens, makeToken(tok, "variable", decl)...)
		case symbols["Ident"]:
			tokens = append(tokens, classifyIdent(tok, prev, next)...)
		}
	}
	return tokens
}

func classifyIdent(tok, prev, next lexer.Token) []SemanticToken {
	switch {
	case prev.Value == "shader":
		return makeToken(tok, "type", 0)
	case prev.Value == "function":
		return makeToken(tok, "function", 1)
	case prev.Value == "block":
		return makeToken(tok, "namespace", 1)
	case next.Value == "=":
		return makeToken(tok, "property", 0)
	case labelPrefixes[prev.Value], prev.Value == ",", next.Value == ":":
		return makeToken(tok, "namespace", 0)
	case prev.Value == ".":
		return makeToken(tok, "modifier", 0)
	case prev.Value == "=" && isVecType(tok.Value):
		return makeToken(tok, "type", 0)
	case keywords[tok.Value]:
		return makeToken(tok, "keyword", 0)
	case nir.Op(tok.Value).Known():
		return makeToken(tok, "function", 0)
	}
	return nil
}

func isVecType(name string) bool {
	return len(name) == 4 && name[:3] == "vec" && name[3] >= '1' && name[3] <= '4'
}

// makeToken creates a semantic token for a lexer token
func makeToken(tok lexer.Token, tokenType string, declModifier int) []SemanticToken {
	if tok.Value == "" {
		return nil
	}
	line, err1 := safecast.Conv[uint32](tok.Pos.Line - 1)
	char, err2 := safecast.Conv[uint32](tok.Pos.Column - 1)
	length, err3 := safecast.Conv[uint32](len([]rune(tok.Value)))
	if err1 != nil || err2 != nil || err3 != nil {
		return nil
	}

	return []SemanticToken{{
		Line:           line, // LSP uses 0-based line numbers
		StartChar:      char, // LSP uses 0-based column numbers
		Length:         length,
		TokenType:      indexOf(tokenType, SemanticTokenTypes),
		TokenModifiers: declModifier << indexOf("declaration", SemanticTokenModifiers),
	}}
}

// encodeSemanticTokens packs tokens into the LSP wire format (delta-line,
// delta-start compression)
func encodeSemanticTokens(tokens []SemanticToken) []uint32 {
	var data []uint32
	var prevLine, prevStart uint32

	for _, token := range tokens {
		deltaLine := token.Line - prevLine
		var deltaStart uint32
		if deltaLine == 0 {
			deltaStart = token.StartChar - prevStart
		} else {
			deltaStart = token.StartChar
		}

		data = append(data, deltaLine, deltaStart, token.Length, uint32(token.TokenType), uint32(token.TokenModifiers))

		prevLine = token.Line
		prevStart = token.StartChar
	}
	return data
}

// indexOf returns the index of a string in a slice, or 0 if not found
func indexOf(target string, list []string) int {
	for i, v := range list {
		if v == target {
			return i
		}
	}
	return 0 // Default to first token type if not found
}
