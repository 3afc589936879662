package compiler

import (
	diag "gpuc/internal/errors"
	"gpuc/internal/ir3"
	"gpuc/internal/nir"
)

// NewDst registers n producer slots for def and opens the destination
// batch. The caller fills the slots and closes the batch with PutDst.
func (ctx *Context) NewDst(def *nir.Def, n int) []ir3.Ref {
	ctx.check()
	if ctx.lastDstOpen {
		ctx.fatalf(diag.ErrorBatchProtocol, "destination %s started while %%%d is still open", def, ctx.lastDstDef)
	}
	value := ctx.DstSSA(def, n)
	ctx.lastDst = value
	ctx.lastDstDef = def.ID
	ctx.lastDstOpen = true
	return value
}

// DstSSA registers n producer slots for def without opening a batch
func (ctx *Context) DstSSA(def *nir.Def, n int) []ir3.Ref {
	ctx.check()
	if _, ok := ctx.defs[def.ID]; ok {
		ctx.fatalf(diag.ErrorDuplicateDefinition, "value %s defined twice", def)
	}
	value := make([]ir3.Ref, n)
	ctx.defs[def.ID] = value
	return value
}

// Src returns the producer slots of the value read by src
func (ctx *Context) Src(src nir.Src) []ir3.Ref {
	ctx.check()
	if src.SSA == nil {
		ctx.fatalf(diag.ErrorUndefinedValue, "source without a value")
	}
	value, ok := ctx.defs[src.SSA.ID]
	if !ok {
		ctx.fatalf(diag.ErrorUndefinedValue, "undefined value %s", src.SSA)
	}
	return value
}

// SrcChannel returns the producer of channel ch of src, following its
// swizzle
func (ctx *Context) SrcChannel(src nir.Src, ch int) *ir3.Instruction {
	value := ctx.Src(src)
	comp := src.Component(ch)
	if comp >= len(value) || value[comp] == ir3.NoRef {
		ctx.fatalf(diag.ErrorUndefinedValue, "component %d of %s has no producer", comp, src.SSA)
	}
	return ctx.instr(value[comp])
}

// PutDst closes the destination batch of def. Shared register results
// get a copy into a private register. Values of 16 bits or less are
// narrowed, including the input of split producers.
func (ctx *Context) PutDst(def *nir.Def) {
	ctx.check()
	if !ctx.lastDstOpen {
		ctx.fatalf(diag.ErrorBatchProtocol, "destination %s finished but none was started", def)
	}
	if def.ID != ctx.lastDstDef {
		ctx.fatalf(diag.ErrorBatchProtocol, "destination %s finished while %%%d is open", def, ctx.lastDstDef)
	}

	for i, r := range ctx.lastDst {
		if r == ir3.NoRef {
			continue
		}
		if instr := ctx.instr(r); instr.Dst().Flags&ir3.RegShared != 0 {
			ctx.lastDst[i] = ctx.Block.Mov(instr, ir3.TypeU32).Ref()
		}
	}

	if ctx.bitsize(def.BitSize) <= 16 {
		for _, r := range ctx.lastDst {
			if r == ir3.NoRef {
				continue
			}
			instr := ctx.instr(r)
			ir3.SetDstType(instr, true)
			ir3.FixupSrcType(instr)
			if instr.Opc == ir3.OpcMetaSplit {
				src := ctx.instr(instr.Srcs[0].Def)
				ir3.SetDstType(src, true)
				ir3.FixupSrcType(src)
				instr.Srcs[0].Flags |= ir3.RegHalf
			}
		}
	}

	ctx.lastDst = nil
	ctx.lastDstOpen = false
}
