package compiler

import (
	diag "gpuc/internal/errors"
	"gpuc/internal/ir3"
)

func createAddr0(b *ir3.Block, src *ir3.Instruction, align int) *ir3.Instruction {
	instr := b.Cov(src, ir3.TypeU32, ir3.TypeS16)

	switch align {
	case 1:
		// src *= 1
	case 2:
		// src <<= 1
		instr = b.ShlB(instr, b.Immed(1, ir3.TypeS16))
	case 3:
		instr = b.MullU(instr, b.Immed(3, ir3.TypeS16))
	case 4:
		// src <<= 2
		instr = b.ShlB(instr, b.Immed(2, ir3.TypeS16))
	}

	instr.Dst().Flags |= ir3.RegHalf

	instr = b.Mov(instr, ir3.TypeS16)
	instr.Dst().Num = ir3.A0X
	return instr
}

// Addr0 returns the a0.x value for indexing with src scaled by align
// (1 to 4). The sequence is built once per source and alignment.
func (ctx *Context) Addr0(src ir3.Ref, align int) ir3.Ref {
	ctx.check()
	idx := align - 1
	if idx < 0 || idx >= len(ctx.addr0) {
		ctx.fatalf(diag.ErrorBadAlignment, "bad address alignment %d", align)
	}

	if ctx.addr0[idx] == nil {
		ctx.addr0[idx] = make(map[ir3.Ref]ir3.Ref)
	} else if addr, ok := ctx.addr0[idx][src]; ok {
		return addr
	}

	s := ctx.instr(src)
	if s == nil {
		ctx.fatalf(diag.ErrorUndefinedValue, "address from a missing value")
	}
	addr := createAddr0(ctx.Block, s, align).Ref()
	ctx.addr0[idx][src] = addr
	return addr
}

// Addr1 returns the a1.x value holding constVal, built once per value
func (ctx *Context) Addr1(constVal uint16) ir3.Ref {
	ctx.check()
	if addr, ok := ctx.addr1[constVal]; ok {
		return addr
	}

	b := ctx.Block
	instr := b.Mov(b.Immed(uint32(constVal), ir3.TypeU16), ir3.TypeU16)
	instr.Dst().Num = ir3.A1X
	ctx.addr1[constVal] = instr.Ref()
	return instr.Ref()
}

// Predicate writes src != 0 into p0.x. Only cmps can write p0.x. Each
// call builds a new comparison.
func (ctx *Context) Predicate(src ir3.Ref) ir3.Ref {
	ctx.check()
	s := ctx.instr(src)
	if s == nil {
		ctx.fatalf(diag.ErrorUndefinedValue, "predicate from a missing value")
	}

	b := ctx.Block
	typ := ir3.TypeU32
	if s.IsHalf() {
		typ = ir3.TypeU16
	}
	zero := b.Immed(0, typ)
	cond := b.CmpsS(s, zero, ir3.CondNE)

	cond.Dst().Num = ir3.P0X
	cond.Dst().Flags &^= ir3.RegSSA
	return cond.Ref()
}

// SelCond returns cond converted to the width of the values a select
// chooses between. Conversions are shared between selects.
func (ctx *Context) SelCond(cond ir3.Ref, half bool) ir3.Ref {
	ctx.check()
	c := ctx.instr(cond)
	if c == nil {
		ctx.fatalf(diag.ErrorUndefinedValue, "select condition has no producer")
	}
	if c.IsHalf() == half {
		return cond
	}
	if conv, ok := ctx.selCond[cond]; ok {
		return conv
	}

	var conv *ir3.Instruction
	if c.IsHalf() {
		conv = ctx.Block.Cov(c, ir3.TypeU16, ir3.TypeU32)
	} else {
		conv = ctx.Block.Cov(c, ir3.TypeU32, ir3.TypeU16)
	}
	ctx.selCond[cond] = conv.Ref()
	return conv.Ref()
}
