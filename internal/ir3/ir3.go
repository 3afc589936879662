package ir3

// Machine IR for the Adreno shader backend.
// Instructions live in a paged arena owned by Shader and are referred to
// by Ref handles. A Ref stays valid for the lifetime of the Shader and
// pointer identity of the *Instruction it resolves to never changes.

import "fmt"

// Ref is a handle to an instruction in a Shader. The zero Ref is nil.
type Ref uint32

// NoRef is the nil instruction handle
const NoRef Ref = 0

// Opc is a machine opcode
type Opc int

const (
	OpcNop Opc = iota

	// cat0: flow control
	OpcBr
	OpcKill

	// cat1: moves and conversions
	OpcMov

	// cat2
	OpcAddF
	OpcMulF
	OpcAbsnegF
	OpcAddU
	OpcSubU
	OpcMullU
	OpcAbsnegS
	OpcShlB
	OpcAndB
	OpcCmpsS
	OpcCmpsF

	// cat3
	OpcMadF16
	OpcMadF32
	OpcMadshM16
	OpcSelB16
	OpcSelB32

	// cat5: texture
	OpcSam

	// cat6: memory
	OpcLdc
	OpcLdgb
	OpcStgb
	OpcLdib
	OpcStib

	// meta instructions, never encoded
	OpcMetaInput
	OpcMetaSplit
	OpcMetaCollect
	OpcMetaPhi
	OpcMetaTexPrefetch
)

var opcNames = map[Opc]string{
	OpcNop:             "nop",
	OpcBr:              "br",
	OpcKill:            "kill",
	OpcMov:             "mov",
	OpcAddF:            "add.f",
	OpcMulF:            "mul.f",
	OpcAbsnegF:         "absneg.f",
	OpcAddU:            "add.u",
	OpcSubU:            "sub.u",
	OpcMullU:           "mull.u",
	OpcAbsnegS:         "absneg.s",
	OpcShlB:            "shl.b",
	OpcAndB:            "and.b",
	OpcCmpsS:           "cmps.s",
	OpcCmpsF:           "cmps.f",
	OpcMadF16:          "mad.f16",
	OpcMadF32:          "mad.f32",
	OpcMadshM16:        "madsh.m16",
	OpcSelB16:          "sel.b16",
	OpcSelB32:          "sel.b32",
	OpcSam:             "sam",
	OpcLdc:             "ldc",
	OpcLdgb:            "ldgb",
	OpcStgb:            "stgb",
	OpcLdib:            "ldib",
	OpcStib:            "stib",
	OpcMetaInput:       "meta:input",
	OpcMetaSplit:       "meta:split",
	OpcMetaCollect:     "meta:collect",
	OpcMetaPhi:         "meta:phi",
	OpcMetaTexPrefetch: "meta:tex_prefetch",
}

func (o Opc) String() string {
	if name, ok := opcNames[o]; ok {
		return name
	}
	return fmt.Sprintf("opc(%d)", int(o))
}

// Cat returns the encoding category of the opcode, -1 for meta opcodes
func (o Opc) Cat() int {
	switch {
	case o <= OpcKill:
		return 0
	case o == OpcMov:
		return 1
	case o <= OpcCmpsF:
		return 2
	case o <= OpcSelB32:
		return 3
	case o == OpcSam:
		return 5
	case o <= OpcStib:
		return 6
	}
	return -1
}

// IsMeta reports whether the opcode is a pseudo instruction
func (o Opc) IsMeta() bool { return o.Cat() < 0 }

// Type is an operand type of moves, conversions and memory access
type Type uint8

const (
	TypeF16 Type = iota
	TypeF32
	TypeU16
	TypeU32
	TypeS16
	TypeS32
	TypeU8
	TypeS8
)

var typeNames = [...]string{
	TypeF16: "f16", TypeF32: "f32",
	TypeU16: "u16", TypeU32: "u32",
	TypeS16: "s16", TypeS32: "s32",
	TypeU8: "u8", TypeS8: "s8",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// Size returns the width of the type in bits
func (t Type) Size() int {
	switch t {
	case TypeF32, TypeU32, TypeS32:
		return 32
	case TypeU8, TypeS8:
		return 8
	}
	return 16
}

// IsHalf reports whether the type occupies a half register
func (t Type) IsHalf() bool { return t.Size() < 32 }

// Half returns the 16-bit variant of t
func (t Type) Half() Type {
	switch t {
	case TypeF32:
		return TypeF16
	case TypeU32:
		return TypeU16
	case TypeS32:
		return TypeS16
	}
	return t
}

// Full returns the 32-bit variant of t
func (t Type) Full() Type {
	switch t {
	case TypeF16:
		return TypeF32
	case TypeU16, TypeU8:
		return TypeU32
	case TypeS16, TypeS8:
		return TypeS32
	}
	return t
}

// RegFlags describe a register operand
type RegFlags uint32

const (
	RegConst RegFlags = 1 << iota
	RegImmed
	RegHalf
	RegShared
	RegRelativ
	RegArray
	RegSSA
	RegFNeg
	RegSNeg
)

var regFlagNames = []struct {
	flag RegFlags
	name string
}{
	{RegConst, "const"},
	{RegImmed, "immed"},
	{RegHalf, "half"},
	{RegShared, "shared"},
	{RegRelativ, "relativ"},
	{RegArray, "array"},
	{RegSSA, "ssa"},
	{RegFNeg, "fneg"},
	{RegSNeg, "sneg"},
}

func (f RegFlags) String() string {
	s := ""
	for _, n := range regFlagNames {
		if f&n.flag != 0 {
			if s != "" {
				s += "|"
			}
			s += n.name
		}
	}
	return s
}

// Barrier classes order array accesses against each other
type Barrier uint8

const (
	BarrierArrayR Barrier = 1 << iota
	BarrierArrayW
	BarrierBufferR
	BarrierBufferW
)

// Cond is the comparison of a cmps instruction
type Cond uint8

const (
	CondLT Cond = iota
	CondLE
	CondGT
	CondGE
	CondEQ
	CondNE
)

var condNames = [...]string{"lt", "le", "gt", "ge", "eq", "ne"}

func (c Cond) String() string {
	if int(c) < len(condNames) {
		return condNames[c]
	}
	return fmt.Sprintf("cond(%d)", int(c))
}

// Fixed register numbers
const (
	RegA0 = 61
	RegP0 = 62
)

// RegID packs a register number and component
func RegID(num, comp int) uint16 {
	return uint16(num<<2 | comp)
}

// InvalidReg marks a register without a physical number
var InvalidReg = RegID(63, 0)

var (
	// A0X is the relative addressing register a0.x
	A0X = RegID(RegA0, 0)
	// A1X is the constant-file base register a1.x
	A1X = RegID(RegA0, 1)
	// P0X is the predicate register p0.x
	P0X = RegID(RegP0, 0)
)

// ArrayRef locates an array element accessed by a register
type ArrayRef struct {
	ID     int
	Offset int
	Base   uint16
}

// MaskOf returns the write mask of n consecutive components
func MaskOf(n int) uint32 {
	if n >= 32 {
		return ^uint32(0)
	}
	return uint32(1)<<n - 1
}

// Register is a source or destination operand
type Register struct {
	Flags  RegFlags
	Num    uint16
	Wrmask uint32
	Size   int
	// Instr is the instruction owning this register
	Instr Ref
	// Def is the instruction producing an SSA source
	Def   Ref
	Array ArrayRef
	Iim   uint32
	// Tied marks a destination and the source carrying its previous value
	Tied bool
}

// Has reports whether all of flags are set
func (r *Register) Has(flags RegFlags) bool { return r.Flags&flags == flags }

// Instruction is one machine instruction
type Instruction struct {
	ID    int
	Opc   Opc
	Block *Block
	Dsts  []*Register
	Srcs  []*Register

	BarrierClass    Barrier
	BarrierConflict Barrier

	Cat1 struct {
		SrcType Type
		DstType Type
	}
	Cat2 struct {
		Condition Cond
	}
	Cat5 struct {
		Tex  int
		Samp int
		Type Type
	}
	Cat6 struct {
		Type   Type
		IBO    int
		NumVal int
	}
	Split struct {
		Off int
	}
	Input struct {
		Base int
	}
	Prefetch struct {
		Input int
	}

	// Address is the producer of the address register used for indirect access
	Address Ref

	ref Ref
}

// Ref returns the handle of the instruction
func (i *Instruction) Ref() Ref { return i.ref }

// Dst returns the first destination
func (i *Instruction) Dst() *Register {
	if len(i.Dsts) == 0 {
		return nil
	}
	return i.Dsts[0]
}

// IsHalf reports whether the instruction writes a half register
func (i *Instruction) IsHalf() bool {
	d := i.Dst()
	return d != nil && d.Flags&RegHalf != 0
}

// Block is a machine basic block
type Block struct {
	Index  int
	Shader *Shader
	Instrs []Ref
	// Keeps are instructions that must survive dead code elimination
	Keeps     []Ref
	Preds     []*Block
	Succs     []*Block
	Condition Ref
	// Label is the name of the source block, for printing
	Label string
}

// Array is a register array: a contiguous, non-SSA register range
type Array struct {
	ID     int
	Length int
	Half   bool
	// Decl identifies the source declaration of the array
	Decl int
	// LastWrite is the most recent store to the array
	LastWrite Ref
}

const pageSize = 256

// Shader is the machine program under construction
type Shader struct {
	pages [][]Instruction
	count int

	Blocks  []*Block
	Arrays  []*Array
	Inputs  []Ref
	Outputs []Ref
	// A0Users and A1Users are the instructions addressed through a0.x/a1.x
	A0Users []Ref
	A1Users []Ref
}

// NewShader creates an empty machine program
func NewShader() *Shader {
	return &Shader{}
}

// Instr resolves a handle. It returns nil for NoRef.
func (s *Shader) Instr(r Ref) *Instruction {
	if r == NoRef {
		return nil
	}
	idx := int(r) - 1
	if idx >= s.count {
		panic(fmt.Sprintf("ir3: dangling instruction ref %d", r))
	}
	return &s.pages[idx/pageSize][idx%pageSize]
}

// Count returns the number of instructions ever created
func (s *Shader) Count() int { return s.count }

// ForEachInstr visits every created instruction in creation order
func (s *Shader) ForEachInstr(fn func(*Instruction)) {
	for i := 0; i < s.count; i++ {
		fn(&s.pages[i/pageSize][i%pageSize])
	}
}

func (s *Shader) alloc() *Instruction {
	if s.count%pageSize == 0 {
		s.pages = append(s.pages, make([]Instruction, 0, pageSize))
	}
	page := &s.pages[len(s.pages)-1]
	*page = append(*page, Instruction{})
	s.count++
	instr := &(*page)[len(*page)-1]
	instr.ref = Ref(s.count)
	instr.ID = s.count
	return instr
}

// NewBlock appends an empty block
func (s *Shader) NewBlock(label string) *Block {
	b := &Block{Index: len(s.Blocks), Shader: s, Label: label}
	s.Blocks = append(s.Blocks, b)
	return b
}

// AddSucc links b to succ in both directions
func (b *Block) AddSucc(succ *Block) {
	b.Succs = append(b.Succs, succ)
	succ.Preds = append(succ.Preds, b)
}

// Keep marks instr as live regardless of uses
func (b *Block) Keep(instr *Instruction) {
	b.Keeps = append(b.Keeps, instr.ref)
}

// IsKept reports whether r is on the block keep list
func (b *Block) IsKept(r Ref) bool {
	for _, k := range b.Keeps {
		if k == r {
			return true
		}
	}
	return false
}

// SetAddress records the address register producer of instr and adds it
// to the users of that register
func (s *Shader) SetAddress(instr *Instruction, addr *Instruction) {
	instr.Address = addr.ref
	if addr.Dst().Num == A0X {
		s.A0Users = append(s.A0Users, instr.ref)
	} else {
		s.A1Users = append(s.A1Users, instr.ref)
	}
}
