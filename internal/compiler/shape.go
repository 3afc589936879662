package compiler

import (
	diag "gpuc/internal/errors"
	"gpuc/internal/ir3"
)

// maxCollect is the widest value a write mask can describe
const maxCollect = 32

func destFlags(instr *ir3.Instruction) ir3.RegFlags {
	return instr.Dst().Flags & (ir3.RegHalf | ir3.RegShared)
}

// Collect joins the values in arr into one vector value. It returns
// NoRef for an empty arr.
func (ctx *Context) Collect(b *ir3.Block, arr []ir3.Ref) ir3.Ref {
	ctx.check()
	if len(arr) == 0 {
		return ir3.NoRef
	}
	if len(arr) > maxCollect {
		ctx.fatalf(diag.ErrorCollectBounds, "cannot collect %d values", len(arr))
	}

	first := ctx.instr(arr[0])
	if first == nil {
		ctx.fatalf(diag.ErrorUndefinedValue, "collect element 0 has no producer")
	}
	flags := destFlags(first)

	elems := make([]*ir3.Instruction, len(arr))
	for i, r := range arr {
		elem := ctx.instr(r)
		if elem == nil {
			ctx.fatalf(diag.ErrorUndefinedValue, "collect element %d has no producer", i)
		}

		// arrays are register allocated as a whole, elements of
		// different arrays are not contiguous
		if elem.Dst().Flags&ir3.RegArray != 0 {
			typ := ir3.TypeU32
			if flags&ir3.RegHalf != 0 {
				typ = ir3.TypeU16
			}
			elem = b.Mov(elem, typ)
		}

		if got := destFlags(elem); got != flags {
			ctx.fatalf(diag.ErrorRegisterClass, "collect element %d is %q, element 0 is %q", i, got, flags)
		}
		elems[i] = elem
	}

	return b.Collect(elems, flags).Ref()
}

// SplitDst fills dst with the components [base, base+n) of src. Only the
// components written by src are stored, packed at the front of dst.
func (ctx *Context) SplitDst(b *ir3.Block, dst []ir3.Ref, src ir3.Ref, base, n int) {
	ctx.check()
	s := ctx.instr(src)
	if s == nil {
		ctx.fatalf(diag.ErrorUndefinedValue, "split of a missing value")
	}

	// inputs always get a split
	if n == 1 && s.Dst().Wrmask == 0x1 && s.Opc != ir3.OpcMetaInput {
		dst[0] = src
		return
	}

	if s.Opc == ir3.OpcMetaCollect {
		if base+n > len(s.Srcs) {
			ctx.fatalf(diag.ErrorCollectBounds, "split of components %d..%d from a collect of %d",
				base, base+n-1, len(s.Srcs))
		}
		for i := 0; i < n; i++ {
			dst[i] = s.Srcs[i+base].Def
		}
		return
	}

	flags := destFlags(s)
	wrmask := s.Dst().Wrmask
	for i, j := 0, 0; i < n; i++ {
		split := b.Split(s, i+base, flags)
		if wrmask&(1<<(i+base)) != 0 {
			dst[j] = split.Ref()
			j++
		}
	}
}
