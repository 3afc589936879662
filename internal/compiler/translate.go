package compiler

import (
	"math"
	"math/bits"

	"fortio.org/safecast"

	diag "gpuc/internal/errors"
	"gpuc/internal/ir3"
	"gpuc/internal/nir"
)

// pendingPhi is a phi whose sources are filled in once every block has
// been translated
type pendingPhi struct {
	instr *nir.Instr
	value []ir3.Ref
}

// Translate emits the machine program for the entry point of the context's
// source program. A fatal error during the walk is returned as a
// *FatalError and leaves the machine program incomplete.
func Translate(ctx *Context) (sh *ir3.Shader, err error) {
	defer ctx.Recover(&err)
	ctx.check()

	fn := ctx.S.EntryPoint()
	for _, nb := range fn.Blocks {
		ctx.blocks[nb] = ctx.IR.NewBlock(nb.Label)
	}
	for _, l := range fn.Loops {
		ctx.continueBlocks[l] = ctx.blocks[l.Continue]
	}
	for _, nb := range fn.Blocks {
		b := ctx.blocks[nb]
		for _, succ := range nb.Succs {
			b.AddSucc(ctx.blocks[succ])
		}
	}

	var phis []pendingPhi
	for _, nb := range fn.Blocks {
		ctx.Block = ctx.blocks[nb]
		for _, instr := range nb.Instrs {
			ctx.SetCurrent(instr)
			if instr.Op == nir.OpPhi {
				phis = append(phis, pendingPhi{instr: instr, value: ctx.emitPhi(instr)})
				continue
			}
			ctx.emitInstr(instr)
		}
		ctx.SetCurrent(nil)
		ctx.emitTerm(nb.Term)
	}

	for _, p := range phis {
		ctx.SetCurrent(p.instr)
		ctx.resolvePhi(p)
	}
	ctx.SetCurrent(nil)

	if verr := ir3.Validate(ctx.IR); verr != nil {
		ctx.fatalf(diag.ErrorInvalidProgram, "invalid machine program: %v", verr)
	}

	ctx.Variant.NumSamplerPrefetch = ctx.numPrefetch
	if ctx.Compiler.Debug(ctx.Stage, ctx.S.Info.Internal) {
		log.Infof("ir3 for %s shader %s:\n%s", ctx.Stage, ctx.Name, ir3.Print(ctx.IR))
	}
	return ctx.IR, nil
}

func (ctx *Context) emitInstr(instr *nir.Instr) {
	switch instr.Op {
	case nir.OpLoadConst:
		ctx.emitLoadConst(instr)
	case nir.OpUndef:
		ctx.emitUndef(instr)
	case nir.OpLoadInput, nir.OpLoadInterpolatedInput:
		ctx.emitLoadInput(instr)
	case nir.OpStoreOutput:
		ctx.emitStoreOutput(instr)
	case nir.OpLoadUniform:
		ctx.emitLoadUniform(instr)
	case nir.OpLoadUBO:
		ctx.emitLoadUBO(instr)
	case nir.OpLoadSSBO:
		ctx.emitLoadSSBO(instr)
	case nir.OpStoreSSBO:
		ctx.emitStoreSSBO(instr)
	case nir.OpDeclReg:
		ctx.DeclareArray(instr)
	case nir.OpLoadReg, nir.OpLoadRegIndirect:
		ctx.emitLoadReg(instr)
	case nir.OpStoreReg, nir.OpStoreRegIndirect:
		ctx.emitStoreReg(instr)
	case nir.OpDiscard, nir.OpDiscardIf:
		ctx.emitDiscard(instr)
	case nir.OpTex:
		ctx.emitTex(instr, instr.Indices.Texture, instr.Indices.Sampler)
	case nir.OpTexPrefetch:
		ctx.emitTexPrefetch(instr)
	case nir.OpImageLoad:
		ctx.emitImageLoad(instr)
	default:
		if instr.Op.IsALU() {
			ctx.emitALU(instr)
			return
		}
		ctx.fatalf(diag.ErrorUnsupported, "unsupported instruction %s", instr.Op)
	}
}

// movType is the untyped move for values of the given bit size
func (ctx *Context) movType(bitSize int) ir3.Type {
	if ctx.bitsize(bitSize) <= 16 {
		return ir3.TypeU16
	}
	return ir3.TypeU32
}

func (ctx *Context) immedValue(v uint64) uint32 {
	n, err := safecast.Conv[uint32](v)
	if err != nil {
		ctx.fatalf(diag.ErrorUnsupported, "constant 0x%x does not fit a register", v)
	}
	return n
}

func (ctx *Context) emitLoadConst(instr *nir.Instr) {
	def := instr.Def
	typ := ctx.movType(def.BitSize)
	value := ctx.DstSSA(def, def.NumComponents)
	for i := range value {
		value[i] = ctx.Block.Immed(ctx.immedValue(instr.Consts[i]), typ).Ref()
	}
}

func (ctx *Context) emitUndef(instr *nir.Instr) {
	def := instr.Def
	typ := ctx.movType(def.BitSize)
	value := ctx.DstSSA(def, def.NumComponents)
	for i := range value {
		value[i] = ctx.Block.Immed(0, typ).Ref()
	}
}

func (ctx *Context) emitLoadInput(instr *nir.Instr) {
	def := instr.Def
	n := def.NumComponents
	b := ctx.Block

	in := b.Create(ir3.OpcMetaInput, 1, 0)
	in.SSADst().Wrmask = ir3.MaskOf(n)
	in.Input.Base = instr.Indices.Base
	ctx.IR.Inputs = append(ctx.IR.Inputs, in.Ref())

	value := ctx.NewDst(def, n)
	ctx.SplitDst(b, value, in.Ref(), 0, n)
	ctx.PutDst(def)
}

// channels returns the producers of the first n channels of src
func (ctx *Context) channels(src nir.Src, n int) []ir3.Ref {
	refs := make([]ir3.Ref, n)
	for i := range refs {
		refs[i] = ctx.SrcChannel(src, i).Ref()
	}
	return refs
}

// writtenComponents is the component count covered by a write mask, all
// of src when the mask is empty
func writtenComponents(src nir.Src, wrmask uint8) int {
	if wrmask == 0 {
		return src.SSA.NumComponents
	}
	return bits.Len8(wrmask)
}

func (ctx *Context) emitStoreOutput(instr *nir.Instr) {
	b := ctx.Block
	src := instr.Srcs[0]
	out := ctx.Collect(b, ctx.channels(src, writtenComponents(src, instr.Indices.WriteMask)))
	ctx.IR.Outputs = append(ctx.IR.Outputs, out)
	b.Keep(ctx.instr(out))
}

func (ctx *Context) emitLoadUniform(instr *nir.Instr) {
	def := instr.Def
	b := ctx.Block

	typ, flags := ir3.TypeF32, ir3.RegFlags(0)
	if ctx.bitsize(def.BitSize) <= 16 {
		typ, flags = ir3.TypeF16, ir3.RegHalf
	}

	idx := instr.Indices.Base
	addr := ir3.NoRef
	if len(instr.Srcs) > 0 {
		if off, ok := nir.ConstValue(instr.Srcs[0], 0); ok {
			o, err := safecast.Conv[int](off)
			if err != nil {
				ctx.fatalf(diag.ErrorUnsupported, "uniform offset 0x%x: %v", off, err)
			}
			idx += o
		} else {
			addr = ctx.Addr0(ctx.SrcChannel(instr.Srcs[0], 0).Ref(), 1)
		}
	}

	value := ctx.NewDst(def, def.NumComponents)
	for i := range value {
		mov := b.Create(ir3.OpcMov, 1, 1)
		mov.Cat1.SrcType = typ
		mov.Cat1.DstType = typ
		mov.SSADst().Flags |= flags
		if addr == ir3.NoRef {
			mov.SrcCreate(ctx.immedIndex(idx+i), ir3.RegConst|flags)
		} else {
			src := mov.SrcCreate(0, ir3.RegConst|ir3.RegRelativ|flags)
			src.Array.Offset = idx + i
			ctx.IR.SetAddress(mov, ctx.instr(addr))
		}
		value[i] = mov.Ref()
	}
	ctx.PutDst(def)
}

func (ctx *Context) emitLoadUBO(instr *nir.Instr) {
	def := instr.Def
	n := def.NumComponents
	b := ctx.Block

	addr := ctx.Addr1(ctx.immedIndex(instr.Indices.Binding))
	offset := ctx.SrcChannel(instr.Srcs[0], 0)

	ldc := b.Create(ir3.OpcLdc, 1, 1)
	ldc.SSADst().Wrmask = ir3.MaskOf(n)
	ldc.SSASrc(offset, 0)
	ldc.Cat6.Type = ir3.TypeU32
	ldc.Cat6.NumVal = n
	ctx.IR.SetAddress(ldc, ctx.instr(addr))

	value := ctx.NewDst(def, n)
	ctx.SplitDst(b, value, ldc.Ref(), 0, n)
	ctx.PutDst(def)
}

func (ctx *Context) bufferIndex(instr *nir.Instr) int {
	if ctx.Funcs == nil {
		ctx.fatalf(diag.ErrorMissingCapability, "%s needs a4xx or newer, target is a%dxx",
			instr.Op, ctx.Compiler.Gen)
	}
	ibo := instr.Indices.Binding
	if ibo < 0 {
		ctx.fatalf(diag.ErrorUnsupported, "bad buffer binding %d", ibo)
	}
	return ibo
}

func (ctx *Context) emitLoadSSBO(instr *nir.Instr) {
	def := instr.Def
	n := def.NumComponents
	b := ctx.Block

	ibo := ctx.bufferIndex(instr)
	ld := ctx.Funcs.LoadSSBO(b, ibo, ctx.SrcChannel(instr.Srcs[0], 0), n)

	value := ctx.NewDst(def, n)
	ctx.SplitDst(b, value, ld.Ref(), 0, n)
	ctx.PutDst(def)
}

func (ctx *Context) emitStoreSSBO(instr *nir.Instr) {
	b := ctx.Block
	ibo := ctx.bufferIndex(instr)

	src := instr.Srcs[0]
	n := writtenComponents(src, instr.Indices.WriteMask)
	value := ctx.instr(ctx.Collect(b, ctx.channels(src, n)))
	offset := ctx.SrcChannel(instr.Srcs[1], 0)
	ctx.Funcs.StoreSSBO(b, ibo, value, offset, n)
}

func (ctx *Context) emitLoadReg(instr *nir.Instr) {
	def := instr.Def
	ncomp := def.NumComponents
	arr := ctx.Array(instr.Srcs[0].SSA.ID)

	addr := ir3.NoRef
	if instr.Op == nir.OpLoadRegIndirect {
		addr = ctx.Addr0(ctx.SrcChannel(instr.Srcs[1], 0).Ref(), ncomp)
	}

	value := ctx.NewDst(def, ncomp)
	for i := range value {
		n := ctx.elementIndex(arr, instr.Indices.Base, ncomp, i)
		value[i] = ctx.ArrayLoad(arr, n, addr)
	}
	ctx.PutDst(def)
}

func (ctx *Context) emitStoreReg(instr *nir.Instr) {
	src := instr.Srcs[0]
	arr := ctx.Array(instr.Srcs[1].SSA.ID)
	ncomp := src.SSA.NumComponents

	addr := ir3.NoRef
	if instr.Op == nir.OpStoreRegIndirect {
		addr = ctx.Addr0(ctx.SrcChannel(instr.Srcs[2], 0).Ref(), ncomp)
	}

	wrmask := uint32(instr.Indices.WriteMask)
	if wrmask == 0 {
		wrmask = ir3.MaskOf(ncomp)
	}

	for i := 0; i < ncomp; i++ {
		if wrmask&(1<<i) == 0 {
			continue
		}
		value := ctx.SrcChannel(src, i).Ref()
		n := ctx.elementIndex(arr, instr.Indices.Base, ncomp, i)
		ctx.ArrayStore(arr, n, value, addr)
	}
}

func (ctx *Context) emitDiscard(instr *nir.Instr) {
	b := ctx.Block

	var cond ir3.Ref
	if instr.Op == nir.OpDiscardIf {
		cond = ctx.SrcChannel(instr.Srcs[0], 0).Ref()
	} else {
		cond = b.Immed(1, ir3.TypeU32).Ref()
	}

	pred := ctx.instr(ctx.Predicate(cond))
	kill := b.Create(ir3.OpcKill, 0, 1)
	kill.SSASrc(pred, 0).Num = ir3.P0X
	b.Keep(kill)
}

func (ctx *Context) emitTerm(term *nir.Terminator) {
	if term == nil || term.Kind != nir.TermBranch {
		return
	}
	b := ctx.Block
	pred := ctx.instr(ctx.Predicate(ctx.SrcChannel(term.Cond, 0).Ref()))
	br := b.Create(ir3.OpcBr, 0, 1)
	br.SSASrc(pred, 0).Num = ir3.P0X
	b.Condition = pred.Ref()
}

func (ctx *Context) emitPhi(instr *nir.Instr) []ir3.Ref {
	def := instr.Def
	value := ctx.NewDst(def, def.NumComponents)
	for i := range value {
		phi := ctx.Block.Create(ir3.OpcMetaPhi, 1, len(instr.Srcs))
		phi.SSADst()
		value[i] = phi.Ref()
	}
	ctx.PutDst(def)
	return value
}

func (ctx *Context) resolvePhi(p pendingPhi) {
	for c, r := range p.value {
		phi := ctx.instr(r)
		for _, src := range p.instr.Srcs {
			phi.SSASrc(ctx.SrcChannel(src, c), 0)
		}
	}
}

func (ctx *Context) createSam(b *ir3.Block, coord *ir3.Instruction, tex, samp int) *ir3.Instruction {
	sam := b.Create(ir3.OpcSam, 1, 1)
	sam.SSADst().Wrmask = 0xf
	sam.SSASrc(coord, 0)
	sam.Cat5.Tex = tex
	sam.Cat5.Samp = samp
	sam.Cat5.Type = ir3.TypeF32
	return sam
}

func (ctx *Context) emitTex(instr *nir.Instr, tex, samp int) {
	if len(instr.Srcs) == 0 {
		ctx.fatalf(diag.ErrorUnsupported, "%s without a coordinate", instr.Op)
	}
	if tex < 0 || samp < 0 {
		ctx.fatalf(diag.ErrorUnsupported, "bad texture %d or sampler %d", tex, samp)
	}
	def := instr.Def
	b := ctx.Block

	coord := instr.Srcs[0]
	coll := ctx.instr(ctx.Collect(b, ctx.channels(coord, coord.SSA.NumComponents)))
	sam := ctx.createSam(b, coll, tex, samp)

	comps := make([]ir3.Ref, 4)
	ctx.SplitDst(b, comps, sam.Ref(), 0, 4)

	// sRGB ASTC formats need a second fetch for a linear alpha
	if ctx.ASTCSRGB&(1<<tex) != 0 {
		alpha := make([]ir3.Ref, 4)
		ctx.SplitDst(b, alpha, ctx.createSam(b, coll, tex+16, samp).Ref(), 0, 4)
		comps[3] = alpha[3]
	}

	if ctx.Compiler.Gen == 4 && tex < len(ctx.SamplerSwizzles) {
		comps = ctx.swizzleTex(comps, ctx.SamplerSwizzles[tex], def)
	}

	value := ctx.NewDst(def, def.NumComponents)
	copy(value, comps)
	ctx.PutDst(def)
}

// swizzleTex applies a sampler swizzle: 3 bits per channel, 0-3 select a
// channel, 4 is zero and 5 is one. An empty swizzle is the identity.
func (ctx *Context) swizzleTex(comps []ir3.Ref, swizzle uint16, def *nir.Def) []ir3.Ref {
	if swizzle == 0 {
		return comps
	}
	one := uint32(math.Float32bits(1))
	typ := ir3.TypeU32
	if ctx.bitsize(def.BitSize) <= 16 {
		one, typ = 0x3c00, ir3.TypeU16
	}

	out := make([]ir3.Ref, len(comps))
	for i := range out {
		switch sw := int(swizzle>>(3*i)) & 0x7; sw {
		case 0, 1, 2, 3:
			out[i] = comps[sw]
		case 4:
			out[i] = ctx.Block.Immed(0, typ).Ref()
		case 5:
			out[i] = ctx.Block.Immed(one, typ).Ref()
		default:
			ctx.fatalf(diag.ErrorUnsupported, "bad sampler swizzle %d for channel %d", sw, i)
		}
	}
	return out
}

func (ctx *Context) emitTexPrefetch(instr *nir.Instr) {
	if ctx.numPrefetch >= ctx.PrefetchLimit {
		ctx.emitTex(instr, instr.Indices.Texture, instr.Indices.Sampler)
		return
	}
	def := instr.Def
	b := ctx.Block

	pf := b.Create(ir3.OpcMetaTexPrefetch, 1, 0)
	pf.SSADst().Wrmask = 0xf
	pf.Prefetch.Input = instr.Indices.Input
	pf.Cat5.Tex = instr.Indices.Texture
	pf.Cat5.Samp = instr.Indices.Sampler
	pf.Cat5.Type = ir3.TypeF32
	ctx.numPrefetch++

	value := ctx.NewDst(def, def.NumComponents)
	ctx.SplitDst(b, value, pf.Ref(), 0, def.NumComponents)
	ctx.PutDst(def)
}

func (ctx *Context) emitImageLoad(instr *nir.Instr) {
	tex, err := ctx.ImageMapping.ImageToTex(instr.Indices.Texture)
	if err != nil {
		ctx.fatalf(diag.ErrorUnsupported, "%v", err)
	}
	ctx.emitTex(instr, tex, tex)
}

func (ctx *Context) emitALU(instr *nir.Instr) {
	def := instr.Def
	b := ctx.Block
	typ := ctx.movType(def.BitSize)

	value := ctx.NewDst(def, def.NumComponents)
	for c := range value {
		src := func(i int) *ir3.Instruction { return ctx.SrcChannel(instr.Srcs[i], c) }

		var out *ir3.Instruction
		switch instr.Op {
		case nir.OpMov:
			out = b.Mov(src(0), typ)
		case nir.OpVec2, nir.OpVec3, nir.OpVec4:
			out = b.Mov(ctx.SrcChannel(instr.Srcs[c], 0), typ)
		case nir.OpFAdd:
			out = b.Binop(ir3.OpcAddF, src(0), 0, src(1), 0)
		case nir.OpFMul:
			out = b.Binop(ir3.OpcMulF, src(0), 0, src(1), 0)
		case nir.OpFFma:
			out = b.Triop(ir3.OpcMadF32, src(0), 0, src(1), 0, src(2), 0)
		case nir.OpFNeg:
			out = b.Unop(ir3.OpcAbsnegF, src(0), ir3.RegFNeg)
		case nir.OpIAdd:
			out = b.Binop(ir3.OpcAddU, src(0), 0, src(1), 0)
		case nir.OpISub:
			out = b.Binop(ir3.OpcSubU, src(0), 0, src(1), 0)
		case nir.OpIMul, nir.OpUMulLow:
			out = b.MullU(src(0), src(1))
		case nir.OpINeg:
			out = b.Unop(ir3.OpcAbsnegS, src(0), ir3.RegSNeg)
		case nir.OpB2I32:
			// booleans are already 0 or 1
			out = b.Mov(src(0), ir3.TypeU32)
		case nir.OpIShl:
			out = b.ShlB(src(0), src(1))
		case nir.OpIEq:
			out = b.CmpsS(src(0), src(1), ir3.CondEQ)
		case nir.OpINe:
			out = b.CmpsS(src(0), src(1), ir3.CondNE)
		case nir.OpIMadshMix16:
			out = b.Triop(ir3.OpcMadshM16, src(0), 0, src(1), 0, src(2), 0)
		case nir.OpBCSel:
			a, other := src(1), src(2)
			cond := ctx.instr(ctx.SelCond(src(0).Ref(), a.IsHalf()))
			out = b.Triop(ir3.OpcSelB32, a, 0, cond, 0, other, 0)
		default:
			ctx.fatalf(diag.ErrorUnsupported, "unsupported ALU operation %s", instr.Op)
		}
		value[c] = out.Ref()
	}
	ctx.PutDst(def)
}
