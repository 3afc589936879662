package nir

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"fortio.org/safecast"
	"github.com/alecthomas/participle/v2/lexer"

	"gpuc/grammar"
)

type grammarPos = lexer.Position

// BuildError is a problem found while lowering the parsed text into a Shader
type BuildError struct {
	Line    int
	Column  int
	Message string
	// UnknownOp is the operation name when the error is an unknown operation
	UnknownOp string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
}

// BuildErrors is every problem found by one Build call
type BuildErrors []*BuildError

func (e BuildErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "\n")
}

// Builder converts a parsed program into a Shader
type Builder struct {
	shader *Shader

	// per-function state
	blocks map[string]*Block
	defs   map[DefID]*Def

	errs BuildErrors
}

// NewBuilder creates a new builder
func NewBuilder() *Builder {
	return &Builder{}
}

// FromAST builds the first shader of a parsed file
func FromAST(file *grammar.File) (*Shader, error) {
	if file == nil || len(file.Shaders) == 0 {
		return nil, fmt.Errorf("no shader in input")
	}
	return NewBuilder().Build(file.Shaders[0])
}

// Parse is grammar.ParseString followed by FromAST
func Parse(filename, source string) (*Shader, error) {
	file, err := grammar.ParseString(filename, source)
	if err != nil {
		return nil, err
	}
	return FromAST(file)
}

// Build converts one parsed shader. All problems are collected and
// returned joined; the shader is only returned when there are none.
func (b *Builder) Build(node *grammar.Shader) (*Shader, error) {
	stage, err := ParseStage(node.Stage)
	if err != nil {
		return nil, &BuildError{Line: node.Pos.Line, Column: node.Pos.Column, Message: err.Error()}
	}

	b.shader = &Shader{Name: node.Name, Stage: stage}
	b.defs = make(map[DefID]*Def)

	for _, prop := range node.Props {
		v := b.parseInt(prop.Value, prop.Pos.Line, prop.Pos.Column)
		switch prop.Key {
		case "textures":
			b.shader.Info.NumTextures = int(v)
		case "internal":
			b.shader.Info.Internal = v != 0
		default:
			b.errorf(prop.Pos.Line, prop.Pos.Column, "unknown shader property %q", prop.Key)
		}
	}

	// First pass: create every def so forward references (phis) resolve
	maxID := DefID(-1)
	for _, fn := range node.Functions {
		for _, item := range fn.Items {
			if item.Block == nil {
				continue
			}
			for _, in := range item.Block.Instrs {
				if in.Dest == nil {
					continue
				}
				d := b.declareDef(in.Dest)
				if d != nil && d.ID > maxID {
					maxID = d.ID
				}
			}
		}
	}
	b.shader.ReserveDefs(maxID + 1)

	// Second pass: functions
	for _, fn := range node.Functions {
		b.shader.Functions = append(b.shader.Functions, b.buildFunction(fn))
	}

	if len(b.errs) > 0 {
		return nil, b.errs
	}
	return b.shader, nil
}

func (b *Builder) declareDef(dest *grammar.Dest) *Def {
	id, err := strconv.Atoi(strings.TrimPrefix(dest.Name, "%"))
	if err != nil {
		b.errorf(dest.Pos.Line, dest.Pos.Column, "bad value name %s", dest.Name)
		return nil
	}
	if _, dup := b.defs[DefID(id)]; dup {
		b.errorf(dest.Pos.Line, dest.Pos.Column, "value %s defined twice", dest.Name)
		return nil
	}
	n, ok := vectorWidth(dest.Type)
	if !ok {
		b.errorf(dest.Pos.Line, dest.Pos.Column, "bad value type %q", dest.Type)
		return nil
	}
	bits := int(b.parseInt(dest.Bits, dest.Pos.Line, dest.Pos.Column))
	switch bits {
	case 1, 8, 16, 32, 64:
	default:
		b.errorf(dest.Pos.Line, dest.Pos.Column, "bad bit size %d", bits)
		return nil
	}
	d := &Def{ID: DefID(id), NumComponents: n, BitSize: bits}
	b.defs[d.ID] = d
	return d
}

func vectorWidth(name string) (int, bool) {
	switch name {
	case "vec1":
		return 1, true
	case "vec2":
		return 2, true
	case "vec3":
		return 3, true
	case "vec4":
		return 4, true
	}
	return 0, false
}

func (b *Builder) buildFunction(node *grammar.Function) *Function {
	fn := &Function{Name: node.Name, EntryPoint: node.Entry}
	b.blocks = make(map[string]*Block)

	for _, item := range node.Items {
		if item.Block == nil {
			continue
		}
		if _, dup := b.blocks[item.Block.Label]; dup {
			b.errorf(item.Block.Pos.Line, item.Block.Pos.Column, "block %s defined twice", item.Block.Label)
			continue
		}
		blk := &Block{Index: len(fn.Blocks), Label: item.Block.Label, Func: fn}
		b.blocks[blk.Label] = blk
		fn.Blocks = append(fn.Blocks, blk)
	}

	for _, item := range node.Items {
		switch {
		case item.Block != nil:
			b.buildBlock(item.Block)
		case item.Loop != nil:
			header := b.lookupBlock(item.Loop.Header, item.Loop.Pos)
			cont := b.lookupBlock(item.Loop.Continue, item.Loop.Pos)
			if header != nil && cont != nil {
				fn.Loops = append(fn.Loops, &Loop{Header: header, Continue: cont})
			}
		}
	}

	// Blocks without an explicit terminator fall through to the next one
	for i, blk := range fn.Blocks {
		if blk.Term != nil {
			continue
		}
		if i+1 < len(fn.Blocks) {
			blk.Term = &Terminator{Kind: TermJump, Targets: []*Block{fn.Blocks[i+1]}}
		} else {
			blk.Term = &Terminator{Kind: TermReturn}
		}
	}
	for _, blk := range fn.Blocks {
		for _, t := range blk.Term.Targets {
			blk.Succs = append(blk.Succs, t)
			t.Preds = append(t.Preds, blk)
		}
	}

	return fn
}

func (b *Builder) lookupBlock(label string, pos grammarPos) *Block {
	blk, ok := b.blocks[label]
	if !ok {
		b.errorf(pos.Line, pos.Column, "unknown block %s", label)
	}
	return blk
}

func (b *Builder) buildBlock(node *grammar.Block) {
	blk := b.blocks[node.Label]
	for _, in := range node.Instrs {
		if blk.Term != nil {
			b.errorf(in.Pos.Line, in.Pos.Column, "instruction after terminator in block %s", blk.Label)
			return
		}
		switch in.Op {
		case "ret":
			blk.Term = &Terminator{Kind: TermReturn}
			continue
		case "br":
			if len(in.Operands) != 1 || in.Operands[0].Block == "" {
				b.errorf(in.Pos.Line, in.Pos.Column, "br takes one block operand")
				continue
			}
			if t := b.lookupBlock(in.Operands[0].Block, in.Pos); t != nil {
				blk.Term = &Terminator{Kind: TermJump, Targets: []*Block{t}}
			}
			continue
		case "br_if":
			if len(in.Operands) != 3 || in.Operands[0].Value == nil {
				b.errorf(in.Pos.Line, in.Pos.Column, "br_if takes a condition and two blocks")
				continue
			}
			cond := b.buildSrc(in.Operands[0].Value, in.Pos)
			then := b.lookupBlock(in.Operands[1].Block, in.Pos)
			els := b.lookupBlock(in.Operands[2].Block, in.Pos)
			if then != nil && els != nil {
				blk.Term = &Terminator{Kind: TermBranch, Cond: cond, Targets: []*Block{then, els}}
			}
			continue
		}
		if instr := b.buildInstr(in); instr != nil {
			blk.Append(instr)
		}
	}
}

func (b *Builder) buildInstr(node *grammar.Instr) *Instr {
	op := Op(node.Op)
	if !op.Known() {
		b.errorf(node.Pos.Line, node.Pos.Column, "unknown operation %q", node.Op)
		b.errs[len(b.errs)-1].UnknownOp = node.Op
		return nil
	}

	instr := b.shader.NewInstr(op)
	instr.Line = node.Pos.Line

	if node.Dest != nil {
		id, _ := strconv.Atoi(strings.TrimPrefix(node.Dest.Name, "%"))
		d, ok := b.defs[DefID(id)]
		if !ok {
			return nil // already reported
		}
		d.Parent = instr
		instr.Def = d
	}

	for _, operand := range node.Operands {
		switch {
		case operand.Pred != nil:
			pred := b.lookupBlock(operand.Pred.Block, operand.Pos)
			instr.Srcs = append(instr.Srcs, b.buildSrc(operand.Pred.Value, operand.Pos))
			instr.PhiPreds = append(instr.PhiPreds, pred)
		case operand.Value != nil:
			instr.Srcs = append(instr.Srcs, b.buildSrc(operand.Value, operand.Pos))
		default:
			b.errorf(operand.Pos.Line, operand.Pos.Column, "unexpected block operand %s", operand.Block)
		}
	}

	if want := op.NumSrcs(); want >= 0 && len(instr.Srcs) != want {
		b.errorf(node.Pos.Line, node.Pos.Column, "%s takes %d sources, got %d", op, want, len(instr.Srcs))
	}

	bits := 32
	if instr.Def != nil {
		bits = instr.Def.BitSize
	}
	for _, c := range node.Consts {
		instr.Consts = append(instr.Consts, b.parseConst(c, bits, node.Pos))
	}
	if op == OpLoadConst && instr.Def != nil && len(instr.Consts) != instr.Def.NumComponents {
		b.errorf(node.Pos.Line, node.Pos.Column, "load_const needs %d values, got %d",
			instr.Def.NumComponents, len(instr.Consts))
	}

	for _, idx := range node.Indices {
		b.setIndex(instr, idx)
	}
	if instr.Def == nil && !op.HasSideEffects() {
		b.errorf(node.Pos.Line, node.Pos.Column, "%s needs a destination", op)
	}

	return instr
}

func (b *Builder) setIndex(instr *Instr, idx *grammar.Index) {
	v := b.parseInt(idx.Value, idx.Pos.Line, idx.Pos.Column)
	switch idx.Key {
	case "base":
		instr.Indices.Base = int(v)
	case "wrmask":
		m, err := safecast.Conv[uint8](v)
		if err != nil || m > 0xf {
			b.errorf(idx.Pos.Line, idx.Pos.Column, "write mask %d out of range", v)
			return
		}
		instr.Indices.WriteMask = m
	case "num_components":
		instr.Indices.NumComponents = int(v)
	case "num_array_elems":
		instr.Indices.NumArrayElems = int(v)
	case "bit_size":
		instr.Indices.BitSize = int(v)
	case "texture":
		instr.Indices.Texture = int(v)
	case "sampler":
		instr.Indices.Sampler = int(v)
	case "binding":
		instr.Indices.Binding = int(v)
	case "var":
		instr.Indices.Var = int(v)
	case "input":
		instr.Indices.Input = int(v)
	default:
		b.errorf(idx.Pos.Line, idx.Pos.Column, "unknown index %q", idx.Key)
	}
}

func (b *Builder) buildSrc(node *grammar.SSASrc, pos grammarPos) Src {
	id, err := strconv.Atoi(strings.TrimPrefix(node.Name, "%"))
	if err != nil {
		b.errorf(pos.Line, pos.Column, "bad value name %s", node.Name)
		return Src{}
	}
	d, ok := b.defs[DefID(id)]
	if !ok {
		b.errorf(pos.Line, pos.Column, "undefined value %s", node.Name)
		return Src{}
	}
	src := SrcFor(d)
	if node.Swizzle != "" {
		sw, ok := parseSwizzle(node.Swizzle)
		if !ok {
			b.errorf(pos.Line, pos.Column, "bad swizzle .%s", node.Swizzle)
			return src
		}
		src.Swizzle = sw
	}
	return src
}

func parseSwizzle(s string) ([4]uint8, bool) {
	var sw [4]uint8
	if len(s) == 0 || len(s) > 4 {
		return sw, false
	}
	for i := 0; i < 4; i++ {
		c := s[min(i, len(s)-1)]
		switch c {
		case 'x', 'r':
			sw[i] = 0
		case 'y', 'g':
			sw[i] = 1
		case 'z', 'b':
			sw[i] = 2
		case 'w', 'a':
			sw[i] = 3
		default:
			return sw, false
		}
	}
	return sw, true
}

func (b *Builder) parseInt(s string, line, col int) int64 {
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		b.errorf(line, col, "bad integer %q", s)
	}
	return v
}

// parseConst turns a literal into the bit pattern stored by load_const.
// Float literals are only accepted for 32-bit constants.
func (b *Builder) parseConst(s string, bits int, pos grammarPos) uint64 {
	if strings.ContainsAny(s, ".eE") && !strings.HasPrefix(s, "0x") {
		f, err := strconv.ParseFloat(s, 32)
		if err != nil || bits != 32 {
			b.errorf(pos.Line, pos.Column, "bad %d-bit float constant %q", bits, s)
			return 0
		}
		return uint64(math.Float32bits(float32(f)))
	}
	if strings.HasPrefix(s, "-") {
		v, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			b.errorf(pos.Line, pos.Column, "bad constant %q", s)
		}
		return uint64(v) & bitMask(bits)
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "+"), 0, 64)
	if err != nil {
		b.errorf(pos.Line, pos.Column, "bad constant %q", s)
	}
	return v & bitMask(bits)
}

func bitMask(bits int) uint64 {
	if bits >= 64 {
		return math.MaxUint64
	}
	return (uint64(1) << bits) - 1
}

func (b *Builder) errorf(line, col int, format string, args ...any) {
	b.errs = append(b.errs, &BuildError{Line: line, Column: col, Message: fmt.Sprintf(format, args...)})
}
