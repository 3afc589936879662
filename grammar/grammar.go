package grammar

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// File is a textual source program:
//
//	shader fragment "blit" textures=1 {
//	  function main entry {
//	    block b0 {
//	      %0 = vec4 32 load_input [base=0];
//	      store_output %0 [base=0];
//	      ret;
//	    }
//	  }
//	}
type File struct {
	Pos     lexer.Position
	Shaders []*Shader `@@*`
}

type Shader struct {
	Pos       lexer.Position
	EndPos    lexer.Position
	Stage     string      `"shader" @Ident`
	Name      string      `@String?`
	Props     []*Property `@@*`
	Functions []*Function `"{" @@* "}"`
}

type Property struct {
	Pos   lexer.Position
	Key   string `@Ident "="`
	Value string `@Int`
}

type Function struct {
	Pos   lexer.Position
	Name  string          `"function" @Ident`
	Entry bool            `@"entry"?`
	Items []*FunctionItem `"{" @@* "}"`
}

type FunctionItem struct {
	Block *Block `  @@`
	Loop  *Loop  `| @@`
}

type Block struct {
	Pos    lexer.Position
	Label  string   `"block" @Ident "{"`
	Instrs []*Instr `@@* "}"`
}

// Loop names the header and continue blocks of a loop region
type Loop struct {
	Pos      lexer.Position
	Header   string `"loop" @Ident`
	Continue string `"continue" @Ident ";"`
}

type Instr struct {
	Pos      lexer.Position
	Dest     *Dest      `@@?`
	Op       string     `@Ident`
	Consts   []string   `( "(" @(Int | Float) ( "," @(Int | Float) )* ")" )?`
	Operands []*Operand `( @@ ( "," @@ )* )?`
	Indices  []*Index   `( "[" @@ ( "," @@ )* "]" )? ";"`
}

// Dest is "%N = vecK BITS"
type Dest struct {
	Pos  lexer.Position
	Name string `@SSA "="`
	Type string `@Ident`
	Bits string `@Int`
}

type Operand struct {
	Pos   lexer.Position
	Pred  *PredSrc `  @@`
	Value *SSASrc  `| @@`
	Block string   `| @Ident`
}

// PredSrc is a phi source "b1:%3"
type PredSrc struct {
	Block string  `@Ident ":"`
	Value *SSASrc `@@`
}

type SSASrc struct {
	Name    string `@SSA`
	Swizzle string `( "." @Ident )?`
}

type Index struct {
	Pos   lexer.Position
	Key   string `@Ident "="`
	Value string `@Int`
}
