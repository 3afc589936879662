package ir3

// Instruction construction helpers. They mirror the hardware instruction
// forms: each helper appends a new instruction to the block and returns it.

// Create appends a new instruction with room for the given operand counts
func (b *Block) Create(opc Opc, ndst, nsrc int) *Instruction {
	instr := b.Shader.alloc()
	instr.Opc = opc
	instr.Block = b
	instr.Dsts = make([]*Register, 0, ndst)
	instr.Srcs = make([]*Register, 0, nsrc)
	b.Instrs = append(b.Instrs, instr.ref)
	return instr
}

// DstCreate adds a destination register
func (i *Instruction) DstCreate(num uint16, flags RegFlags) *Register {
	reg := &Register{Num: num, Flags: flags, Wrmask: 1, Instr: i.ref}
	i.Dsts = append(i.Dsts, reg)
	return reg
}

// SrcCreate adds a source register
func (i *Instruction) SrcCreate(num uint16, flags RegFlags) *Register {
	reg := &Register{Num: num, Flags: flags, Wrmask: 1}
	i.Srcs = append(i.Srcs, reg)
	return reg
}

// SSADst adds an SSA destination owned by i
func (i *Instruction) SSADst() *Register {
	return i.DstCreate(InvalidReg, RegSSA)
}

// SSASrc adds a source reading the first destination of src. The source
// is half if src writes a half register.
func (i *Instruction) SSASrc(src *Instruction, flags RegFlags) *Register {
	d := src.Dst()
	if d.Flags&RegHalf != 0 {
		flags |= RegHalf
	}
	reg := i.SrcCreate(InvalidReg, RegSSA|flags)
	reg.Def = src.ref
	reg.Wrmask = d.Wrmask
	return reg
}

func halfFlag(t Type) RegFlags {
	if t.IsHalf() {
		return RegHalf
	}
	return 0
}

// Immed creates a move of an immediate value of the given type
func (b *Block) Immed(val uint32, typ Type) *Instruction {
	mov := b.Create(OpcMov, 1, 1)
	mov.Cat1.SrcType = typ
	mov.Cat1.DstType = typ
	mov.SSADst().Flags |= halfFlag(typ)
	mov.SrcCreate(0, RegImmed|halfFlag(typ)).Iim = val
	return mov
}

// Mov copies src. Array-valued sources are read as array elements.
func (b *Block) Mov(src *Instruction, typ Type) *Instruction {
	mov := b.Create(OpcMov, 1, 1)
	mov.SSADst().Flags |= halfFlag(typ)
	d := src.Dst()
	if d.Flags&RegArray != 0 {
		reg := mov.SSASrc(src, RegArray)
		reg.Array = d.Array
	} else {
		mov.SSASrc(src, d.Flags&RegShared)
	}
	mov.Cat1.SrcType = typ
	mov.Cat1.DstType = typ
	return mov
}

// Cov converts src between types
func (b *Block) Cov(src *Instruction, from, to Type) *Instruction {
	cov := b.Create(OpcMov, 1, 1)
	cov.SSADst().Flags |= halfFlag(to)
	cov.SSASrc(src, 0)
	cov.Cat1.SrcType = from
	cov.Cat1.DstType = to
	return cov
}

// Binop creates a two-source ALU instruction. The destination is full
// precision until the caller narrows it.
func (b *Block) Binop(opc Opc, a *Instruction, aflags RegFlags, c *Instruction, cflags RegFlags) *Instruction {
	instr := b.Create(opc, 1, 2)
	instr.SSADst()
	instr.SSASrc(a, aflags)
	instr.SSASrc(c, cflags)
	return instr
}

// Triop creates a three-source ALU instruction
func (b *Block) Triop(opc Opc, a *Instruction, aflags RegFlags, c *Instruction, cflags RegFlags,
	d *Instruction, dflags RegFlags) *Instruction {
	instr := b.Create(opc, 1, 3)
	instr.SSADst()
	instr.SSASrc(a, aflags)
	instr.SSASrc(c, cflags)
	instr.SSASrc(d, dflags)
	return instr
}

// Unop creates a one-source ALU instruction
func (b *Block) Unop(opc Opc, a *Instruction, aflags RegFlags) *Instruction {
	instr := b.Create(opc, 1, 1)
	instr.SSADst()
	instr.SSASrc(a, aflags)
	return instr
}

// ShlB shifts a left by c
func (b *Block) ShlB(a, c *Instruction) *Instruction { return b.Binop(OpcShlB, a, 0, c, 0) }

// MullU multiplies the low 16 bits of a and c
func (b *Block) MullU(a, c *Instruction) *Instruction { return b.Binop(OpcMullU, a, 0, c, 0) }

// CmpsS compares a and c as signed integers
func (b *Block) CmpsS(a, c *Instruction, cond Cond) *Instruction {
	instr := b.Binop(OpcCmpsS, a, 0, c, 0)
	instr.Cat2.Condition = cond
	return instr
}

// Collect joins scalar values into a vector. Elements must agree on the
// half and shared flags; callers are expected to check.
func (b *Block) Collect(elems []*Instruction, flags RegFlags) *Instruction {
	collect := b.Create(OpcMetaCollect, 1, len(elems))
	dst := collect.SSADst()
	dst.Flags |= flags
	for _, e := range elems {
		collect.SSASrc(e, flags)
	}
	dst.Wrmask = MaskOf(len(elems))
	return collect
}

// Split extracts component off of src
func (b *Block) Split(src *Instruction, off int, flags RegFlags) *Instruction {
	split := b.Create(OpcMetaSplit, 1, 1)
	split.SSADst().Flags |= flags
	split.SSASrc(src, flags)
	split.Split.Off = off
	return split
}

func cat3Half(o Opc) Opc {
	switch o {
	case OpcMadF32:
		return OpcMadF16
	case OpcSelB32:
		return OpcSelB16
	}
	return o
}

func cat3Full(o Opc) Opc {
	switch o {
	case OpcMadF16:
		return OpcMadF32
	case OpcSelB16:
		return OpcSelB32
	}
	return o
}

// SetDstType switches the destination of instr between full and half
// precision, adjusting the type carried by the opcode
func SetDstType(instr *Instruction, half bool) {
	d := instr.Dst()
	if half {
		d.Flags |= RegHalf
	} else {
		d.Flags &^= RegHalf
	}
	switch instr.Opc.Cat() {
	case 1:
		if half {
			instr.Cat1.DstType = instr.Cat1.DstType.Half()
		} else {
			instr.Cat1.DstType = instr.Cat1.DstType.Full()
		}
	case 5:
		if half {
			instr.Cat5.Type = instr.Cat5.Type.Half()
		} else {
			instr.Cat5.Type = instr.Cat5.Type.Full()
		}
	}
}

// FixupSrcType makes the source type of instr agree with the precision
// of its first source
func FixupSrcType(instr *Instruction) {
	if len(instr.Srcs) == 0 {
		return
	}
	half := instr.Srcs[0].Flags&RegHalf != 0
	switch instr.Opc.Cat() {
	case 1:
		if half {
			instr.Cat1.SrcType = instr.Cat1.SrcType.Half()
		} else {
			instr.Cat1.SrcType = instr.Cat1.SrcType.Full()
		}
	case 3:
		if half {
			instr.Opc = cat3Half(instr.Opc)
		} else {
			instr.Opc = cat3Full(instr.Opc)
		}
	}
}

// SetLastArray ties an extra source to the array destination dst of
// instr that reads the value left by the previous write
func SetLastArray(instr *Instruction, dst *Register, last Ref) *Register {
	reg := *dst
	reg.Def = last
	reg.Instr = NoRef
	reg.Tied = true
	dst.Tied = true
	src := &reg
	instr.Srcs = append(instr.Srcs, src)
	return src
}
