package compiler

import (
	"fortio.org/safecast"

	diag "gpuc/internal/errors"
	"gpuc/internal/ir3"
	"gpuc/internal/nir"
)

// DeclareArray creates the register array of a decl_reg instruction.
// A non-array register is an array of length 1.
func (ctx *Context) DeclareArray(decl *nir.Instr) *ir3.Array {
	ctx.check()
	ctx.numArrays++
	arr := &ir3.Array{
		ID:     ctx.numArrays,
		Length: decl.Indices.NumComponents * max(1, decl.Indices.NumArrayElems),
		Half:   ctx.bitsize(decl.Indices.BitSize) <= 16,
	}
	if arr.Length <= 0 {
		ctx.fatalf(diag.ErrorZeroLengthArray, "array declared with %d components", decl.Indices.NumComponents)
	}
	if decl.Def != nil {
		arr.Decl = int(decl.Def.ID)
	}
	ctx.IR.Arrays = append(ctx.IR.Arrays, arr)
	return arr
}

// Array returns the array declared by the instruction defining def
func (ctx *Context) Array(def nir.DefID) *ir3.Array {
	ctx.check()
	for _, arr := range ctx.IR.Arrays {
		if arr.Decl == int(def) {
			return arr
		}
	}
	ctx.fatalf(diag.ErrorUnknownArray, "bogus reg: r%d", def)
	return nil
}

func arrayType(arr *ir3.Array) (ir3.Type, ir3.RegFlags) {
	if arr.Half {
		return ir3.TypeU16, ir3.RegHalf
	}
	return ir3.TypeU32, 0
}

// lastWriteInBlock returns the last store to arr if it is in block b
func (ctx *Context) lastWriteInBlock(arr *ir3.Array, b *ir3.Block) ir3.Ref {
	if last := ctx.instr(arr.LastWrite); last != nil && last.Block == b {
		return arr.LastWrite
	}
	return ir3.NoRef
}

// ArrayLoad reads element n of arr. The access is relative to a0.x when
// address is set.
func (ctx *Context) ArrayLoad(arr *ir3.Array, n int, address ir3.Ref) ir3.Ref {
	ctx.check()
	b := ctx.Block
	typ, flags := arrayType(arr)

	mov := b.Create(ir3.OpcMov, 1, 1)
	mov.Cat1.SrcType = typ
	mov.Cat1.DstType = typ
	mov.BarrierClass = ir3.BarrierArrayR
	mov.BarrierConflict = ir3.BarrierArrayW
	mov.SSADst().Flags |= flags

	srcFlags := ir3.RegArray | flags
	if address != ir3.NoRef {
		srcFlags |= ir3.RegRelativ
	}
	src := mov.SrcCreate(0, srcFlags)
	src.Def = ctx.lastWriteInBlock(arr, b)
	src.Size = arr.Length
	src.Array = ir3.ArrayRef{ID: arr.ID, Offset: n, Base: ir3.InvalidReg}

	if address != ir3.NoRef {
		ctx.IR.SetAddress(mov, ctx.instr(address))
	}
	return mov.Ref()
}

// ArrayStore writes src to element n of arr. Stores are always kept: a
// store may only be read by an earlier block through a loop back edge.
func (ctx *Context) ArrayStore(arr *ir3.Array, n int, src, address ir3.Ref) {
	ctx.check()
	b := ctx.Block
	typ, flags := arrayType(arr)

	value := ctx.instr(src)
	if value == nil {
		ctx.fatalf(diag.ErrorUndefinedValue, "store of a missing value to array %d", arr.ID)
	}

	mov := b.Create(ir3.OpcMov, 1, 2)
	mov.Cat1.SrcType = typ
	mov.Cat1.DstType = typ
	mov.BarrierClass = ir3.BarrierArrayW
	mov.BarrierConflict = ir3.BarrierArrayR | ir3.BarrierArrayW

	dstFlags := ir3.RegSSA | ir3.RegArray | flags
	if address != ir3.NoRef {
		dstFlags |= ir3.RegRelativ
	}
	dst := mov.DstCreate(0, dstFlags)
	dst.Size = arr.Length
	dst.Array = ir3.ArrayRef{ID: arr.ID, Offset: n, Base: ir3.InvalidReg}
	mov.SrcCreate(0, ir3.RegSSA|flags).Def = src

	if last := ctx.lastWriteInBlock(arr, b); last != ir3.NoRef {
		ir3.SetLastArray(mov, dst, last)
	}

	if address != ir3.NoRef {
		ctx.IR.SetAddress(mov, ctx.instr(address))
	}

	arr.LastWrite = mov.Ref()
	b.Keep(mov)
}

// elementIndex computes the flat element of component comp of a
// register access, failing if it falls outside arr
func (ctx *Context) elementIndex(arr *ir3.Array, base, ncomp, comp int) int {
	n := base*ncomp + comp
	if n < 0 || n >= arr.Length {
		ctx.fatalf(diag.ErrorUnknownArray, "element %d outside array %d of length %d", n, arr.ID, arr.Length)
	}
	return n
}

func (ctx *Context) immedIndex(v int) uint16 {
	n, err := safecast.Conv[uint16](v)
	if err != nil {
		ctx.fatalf(diag.ErrorUnsupported, "index %d: %v", v, err)
	}
	return n
}
