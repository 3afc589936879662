package nir

import (
	"fmt"
	"strings"
)

// Source program types consumed by the backend.
// The program is in SSA form: every Def has exactly one producing Instr,
// blocks form a CFG per function and loops are described by header and
// continue blocks.

// Stage identifies the pipeline stage a shader runs in
type Stage int

const (
	StageVertex Stage = iota
	StageTessCtrl
	StageTessEval
	StageGeometry
	StageFragment
	StageCompute
)

var stageNames = [...]string{
	StageVertex:   "vertex",
	StageTessCtrl: "tess_ctrl",
	StageTessEval: "tess_eval",
	StageGeometry: "geometry",
	StageFragment: "fragment",
	StageCompute:  "compute",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// ParseStage maps a stage name (or its usual short form) to a Stage
func ParseStage(name string) (Stage, error) {
	switch strings.ToLower(name) {
	case "vertex", "vs", "vert":
		return StageVertex, nil
	case "tess_ctrl", "tcs":
		return StageTessCtrl, nil
	case "tess_eval", "tes":
		return StageTessEval, nil
	case "geometry", "gs", "geom":
		return StageGeometry, nil
	case "fragment", "fs", "frag":
		return StageFragment, nil
	case "compute", "cs", "comp":
		return StageCompute, nil
	}
	return 0, fmt.Errorf("unknown shader stage %q", name)
}

// Info carries shader-wide metadata
type Info struct {
	NumTextures int
	Internal    bool
}

// Shader is a complete source program
type Shader struct {
	Name      string
	Stage     Stage
	Info      Info
	Functions []*Function

	nextDef DefID
	nextIdx int
}

// Function is a CFG of basic blocks. Blocks[0] is the start block.
type Function struct {
	Name       string
	EntryPoint bool
	Blocks     []*Block
	Loops      []*Loop
}

// Loop records the header and continue target of a loop region
type Loop struct {
	Header   *Block
	Continue *Block
}

// Block is a straight-line sequence of instructions followed by a terminator
type Block struct {
	Index  int
	Label  string
	Instrs []*Instr
	Term   *Terminator
	Preds  []*Block
	Succs  []*Block
	Func   *Function
}

// TermKind distinguishes block terminators
type TermKind int

const (
	TermReturn TermKind = iota
	TermJump
	TermBranch
)

// Terminator ends a block. Branch uses Cond and Targets[0]/[1] as then/else.
type Terminator struct {
	Kind    TermKind
	Cond    Src
	Targets []*Block
}

// DefID uniquely identifies an SSA definition within a Shader
type DefID int

// Def is an SSA value
type Def struct {
	ID            DefID
	NumComponents int
	BitSize       int
	Parent        *Instr
}

func (d *Def) String() string { return fmt.Sprintf("%%%d", d.ID) }

// Src is a use of a Def. Swizzle selects the component read for each
// channel of the consuming operation.
type Src struct {
	SSA     *Def
	Swizzle [4]uint8
}

// IdentitySwizzle is the .xyzw swizzle
var IdentitySwizzle = [4]uint8{0, 1, 2, 3}

// SrcFor returns an identity-swizzled source of d
func SrcFor(d *Def) Src {
	return Src{SSA: d, Swizzle: IdentitySwizzle}
}

// Component returns the component of the underlying Def read for channel i
func (s Src) Component(i int) int {
	if i < 4 {
		return int(s.Swizzle[i])
	}
	return i
}

// Compose returns the source reached by reading through s with an outer
// swizzle. Used when a use of a copy is rewritten to the copy's source.
func (s Src) Compose(outer [4]uint8) Src {
	var sw [4]uint8
	for i := range sw {
		sw[i] = s.Swizzle[outer[i]&3]
	}
	return Src{SSA: s.SSA, Swizzle: sw}
}

// Indices are the constant operands of intrinsics
type Indices struct {
	Base          int
	WriteMask     uint8
	NumComponents int
	NumArrayElems int
	BitSize       int
	Texture       int
	Sampler       int
	Binding       int
	Var           int
	Input         int
}

// Instr is a single source-program operation
type Instr struct {
	Index   int
	Op      Op
	Def     *Def
	Srcs    []Src
	Consts  []uint64
	Indices Indices
	// PhiPreds holds the predecessor block for each phi source
	PhiPreds []*Block
	Block    *Block
	// Line is the source line the instruction was parsed from, 0 if built
	Line int
}

// HasDef reports whether the instruction produces a value
func (i *Instr) HasDef() bool { return i.Def != nil }

// EntryPoint returns the shader's entry function or nil
func (s *Shader) EntryPoint() *Function {
	for _, fn := range s.Functions {
		if fn.EntryPoint {
			return fn
		}
	}
	if len(s.Functions) == 1 {
		return s.Functions[0]
	}
	return nil
}

// NewDef allocates a fresh SSA definition
func (s *Shader) NewDef(numComponents, bitSize int) *Def {
	d := &Def{ID: s.nextDef, NumComponents: numComponents, BitSize: bitSize}
	s.nextDef++
	return d
}

// ReserveDefs makes sure later NewDef calls never reuse ids below n
func (s *Shader) ReserveDefs(n DefID) {
	if n > s.nextDef {
		s.nextDef = n
	}
}

// NewInstr creates an unattached instruction with a fresh index
func (s *Shader) NewInstr(op Op) *Instr {
	instr := &Instr{Index: s.nextIdx, Op: op}
	s.nextIdx++
	return instr
}

// Append adds instr at the end of block b
func (b *Block) Append(instr *Instr) {
	instr.Block = b
	b.Instrs = append(b.Instrs, instr)
}

// InsertBefore inserts instr ahead of pos in b
func (b *Block) InsertBefore(pos *Instr, instr *Instr) {
	instr.Block = b
	for i, cur := range b.Instrs {
		if cur == pos {
			b.Instrs = append(b.Instrs[:i], append([]*Instr{instr}, b.Instrs[i:]...)...)
			return
		}
	}
	b.Instrs = append(b.Instrs, instr)
}

// Remove deletes instr from its block
func (b *Block) Remove(instr *Instr) {
	for i, cur := range b.Instrs {
		if cur == instr {
			b.Instrs = append(b.Instrs[:i], b.Instrs[i+1:]...)
			instr.Block = nil
			return
		}
	}
}

// ForEachInstr visits every instruction of every function in program order
func (s *Shader) ForEachInstr(fn func(*Instr)) {
	for _, f := range s.Functions {
		for _, b := range f.Blocks {
			for _, instr := range b.Instrs {
				fn(instr)
			}
		}
	}
}

// CountInstrs returns the flat instruction count of a function
func (f *Function) CountInstrs() int {
	n := 0
	for _, b := range f.Blocks {
		n += len(b.Instrs)
	}
	return n
}

// LoopForContinue returns the loop whose continue target is b
func (f *Function) LoopForContinue(b *Block) *Loop {
	for _, l := range f.Loops {
		if l.Continue == b {
			return l
		}
	}
	return nil
}
