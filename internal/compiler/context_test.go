package compiler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	diag "gpuc/internal/errors"
	"gpuc/internal/ir3"
	"gpuc/internal/nir"
	"gpuc/internal/target"
	"gpuc/internal/variant"
)

func wrapMain(stage, body string) string {
	return "shader " + stage + " {\n function main entry {\n  block b0 {\n" + body + "\n  }\n }\n}"
}

const trivial = `
      %0 = vec1 32 load_const (0);
      store_output %0 [base=0];`

func initContext(t *testing.T, gen int, v *variant.Variant, src string, opts ...target.Option) *Context {
	t.Helper()
	prog, err := nir.Parse("test.nir", src)
	require.NoError(t, err)
	c, err := target.New(gen, opts...)
	require.NoError(t, err)
	if v == nil {
		v = variant.Default()
	}
	ctx, err := Init(c, variant.NewShader(prog), v)
	require.NoError(t, err)
	return ctx
}

// coreContext returns a context with an empty machine block to emit into
func coreContext(t *testing.T) *Context {
	t.Helper()
	ctx := initContext(t, 6, nil, wrapMain("vertex", trivial))
	ctx.Block = ctx.IR.NewBlock("test")
	return ctx
}

// fatalCode runs fn and returns the code of the fatal error it raised
func fatalCode(t *testing.T, ctx *Context, fn func(*Context)) string {
	t.Helper()
	err := Run(ctx, fn)
	fe, ok := AsFatal(err)
	require.True(t, ok, "expected a fatal error, got %v", err)
	assert.Same(t, fe, ctx.Err())
	return fe.Code
}

func def(id nir.DefID, n, bits int) *nir.Def {
	return &nir.Def{ID: id, NumComponents: n, BitSize: bits}
}

func declReg(id nir.DefID, ncomp, elems, bits int) *nir.Instr {
	return &nir.Instr{
		Op:      nir.OpDeclReg,
		Def:     def(id, 1, 32),
		Indices: nir.Indices{NumComponents: ncomp, NumArrayElems: elems, BitSize: bits},
	}
}

func TestInitRejectsMissingInputs(t *testing.T) {
	c, err := target.New(6)
	require.NoError(t, err)

	_, err = Init(c, nil, variant.Default())
	assert.True(t, errors.Is(err, ErrAllocation))

	_, err = Init(nil, &variant.Shader{NIR: &nir.Shader{}}, variant.Default())
	assert.True(t, errors.Is(err, ErrAllocation))

	_, err = Init(c, &variant.Shader{Name: "empty", NIR: &nir.Shader{}}, variant.Default())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAllocation))
	assert.Contains(t, err.Error(), "no entry point")
}

func TestInitLeavesSourceUntouched(t *testing.T) {
	src := wrapMain("vertex", `
      %0 = vec1 32 load_input [base=0];
      %1 = vec1 32 imul %0, %0;
      store_output %1 [base=0];`)
	prog, err := nir.Parse("test.nir", src)
	require.NoError(t, err)
	before := nir.Print(prog)

	c, err := target.New(6)
	require.NoError(t, err)
	ctx, err := Init(c, variant.NewShader(prog), variant.Default())
	require.NoError(t, err)

	assert.Equal(t, before, nir.Print(prog))
	assert.NotEqual(t, before, nir.Print(ctx.S), "the private copy is lowered")
}

func TestInitCleanupRunsOnlyAfterIMulLowering(t *testing.T) {
	ctx := initContext(t, 6, nil, wrapMain("vertex", trivial))
	assert.Zero(t, ctx.CleanupRounds)

	ctx = initContext(t, 6, nil, wrapMain("vertex", `
      %0 = vec1 32 load_input [base=0];
      %1 = vec1 32 imul %0, %0;
      store_output %1 [base=0];`))
	assert.GreaterOrEqual(t, ctx.CleanupRounds, 1)
}

func TestInitTextureStatePerGeneration(t *testing.T) {
	v := variant.Default()
	v.Key.VASTCSRGB = 0x1
	v.Key.FASTCSRGB = 0x2
	v.Key.VSamplerSwizzles[0] = 0x11
	v.Key.FSamplerSwizzles[0] = 0x22
	v.Key.VSamples = 3
	v.Key.FSamples = 5

	ctx := initContext(t, 4, v, wrapMain("fragment", trivial))
	assert.Equal(t, uint16(0x2), ctx.ASTCSRGB)
	assert.Equal(t, uint16(0x22), ctx.SamplerSwizzles[0])
	assert.Zero(t, ctx.Samples)

	ctx = initContext(t, 4, v, wrapMain("vertex", trivial))
	assert.Equal(t, uint16(0x1), ctx.ASTCSRGB)
	assert.Equal(t, uint16(0x11), ctx.SamplerSwizzles[0])

	ctx = initContext(t, 3, v, wrapMain("fragment", trivial))
	assert.Equal(t, uint32(5), ctx.Samples)
	assert.Zero(t, ctx.ASTCSRGB)
	assert.Nil(t, ctx.Funcs)

	ctx = initContext(t, 6, v, wrapMain("fragment", trivial))
	assert.Zero(t, ctx.ASTCSRGB)
	assert.Zero(t, ctx.Samples)
	assert.NotNil(t, ctx.Funcs)
}

func TestInitPrefetchLimit(t *testing.T) {
	ctx := initContext(t, 6, nil, wrapMain("fragment", trivial))
	assert.Equal(t, 2, ctx.PrefetchLimit)

	ctx = initContext(t, 6, nil, wrapMain("fragment", trivial),
		target.WithPrefetchThresholds(target.PrefetchThresholds{Small: 1, Medium: 5}))
	assert.Equal(t, 3, ctx.PrefetchLimit)

	ctx = initContext(t, 6, nil, wrapMain("fragment", trivial),
		target.WithPrefetchThresholds(target.PrefetchThresholds{Small: 0, Medium: 0}))
	assert.Equal(t, target.MaxSamplerPrefetch, ctx.PrefetchLimit)

	ctx = initContext(t, 6, nil, wrapMain("vertex", trivial))
	assert.Zero(t, ctx.PrefetchLimit)
}

func TestFreeIsIdempotent(t *testing.T) {
	ctx := coreContext(t)
	ctx.Free()
	ctx.Free()

	assert.Equal(t, diag.ErrorInternal, fatalOnFreed(t, ctx))
}

func fatalOnFreed(t *testing.T, ctx *Context) string {
	t.Helper()
	err := Run(ctx, func(ctx *Context) { ctx.Addr1(0) })
	fe, ok := AsFatal(err)
	require.True(t, ok)
	return fe.Code
}

func TestRunRepanicsForeignValues(t *testing.T) {
	ctx := coreContext(t)
	assert.PanicsWithValue(t, "boom", func() {
		_ = Run(ctx, func(*Context) { panic("boom") })
	})
	assert.NoError(t, Run(ctx, func(*Context) {}))
}

func TestErrorfIsInternal(t *testing.T) {
	ctx := coreContext(t)
	code := fatalCode(t, ctx, func(ctx *Context) { ctx.Errorf("bad state %d", 3) })
	assert.Equal(t, diag.ErrorInternal, code)
	assert.Equal(t, "E1099: bad state 3", ctx.Err().Error())
}

func TestSrcBeforeDefIsFatal(t *testing.T) {
	ctx := coreContext(t)
	code := fatalCode(t, ctx, func(ctx *Context) {
		ctx.Src(nir.SrcFor(def(99, 1, 32)))
	})
	assert.Equal(t, diag.ErrorUndefinedValue, code)
}

func TestFatalAnnotatesCurrentInstruction(t *testing.T) {
	ctx := coreContext(t)
	cur := ctx.S.EntryPoint().Blocks[0].Instrs[1]
	ctx.SetCurrent(cur)

	err := Run(ctx, func(ctx *Context) { ctx.Src(nir.SrcFor(def(99, 1, 32))) })
	fe, ok := AsFatal(err)
	require.True(t, ok)
	assert.Same(t, cur, fe.Instr)
	assert.Contains(t, fe.Dump, "store_output %0;\n")
	assert.Contains(t, fe.Dump, "// error: undefined value %99")

	d := fe.Diagnostic()
	assert.Equal(t, diag.ErrorUndefinedValue, d.Code)
	assert.Equal(t, cur.Line, d.Position.Line)
}

func TestDuplicateDefinitionIsFatal(t *testing.T) {
	ctx := coreContext(t)
	code := fatalCode(t, ctx, func(ctx *Context) {
		d := def(50, 1, 32)
		ctx.DstSSA(d, 1)
		ctx.DstSSA(d, 1)
	})
	assert.Equal(t, diag.ErrorDuplicateDefinition, code)
}

func TestDstBatchIsExclusive(t *testing.T) {
	tests := []struct {
		name string
		fn   func(ctx *Context)
	}{
		{"nested batch", func(ctx *Context) {
			ctx.NewDst(def(50, 1, 32), 1)
			ctx.NewDst(def(51, 1, 32), 1)
		}},
		{"finish without start", func(ctx *Context) {
			ctx.PutDst(def(50, 1, 32))
		}},
		{"finish other value", func(ctx *Context) {
			ctx.NewDst(def(50, 1, 32), 1)
			ctx.PutDst(def(51, 1, 32))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := coreContext(t)
			assert.Equal(t, diag.ErrorBatchProtocol, fatalCode(t, ctx, tt.fn))
		})
	}
}

func TestDstBatchSequence(t *testing.T) {
	ctx := coreContext(t)
	require.NoError(t, Run(ctx, func(ctx *Context) {
		for id := nir.DefID(50); id < 53; id++ {
			d := def(id, 1, 32)
			value := ctx.NewDst(d, 1)
			value[0] = ctx.Block.Immed(uint32(id), ir3.TypeU32).Ref()
			ctx.PutDst(d)
		}
	}))

	value := ctx.Src(nir.SrcFor(def(51, 1, 32)))
	require.Len(t, value, 1)
	assert.Equal(t, uint32(51), ctx.instr(value[0]).Srcs[0].Iim)
}

func TestPutDstCopiesSharedResults(t *testing.T) {
	ctx := coreContext(t)
	d := def(50, 1, 32)

	var shared *ir3.Instruction
	require.NoError(t, Run(ctx, func(ctx *Context) {
		value := ctx.NewDst(d, 1)
		shared = ctx.Block.Immed(7, ir3.TypeU32)
		shared.Dst().Flags |= ir3.RegShared
		value[0] = shared.Ref()
		ctx.PutDst(d)
	}))

	got := ctx.instr(ctx.Src(nir.SrcFor(d))[0])
	assert.NotSame(t, shared, got)
	assert.Equal(t, ir3.OpcMov, got.Opc)
	assert.Equal(t, ir3.TypeU32, got.Cat1.DstType)
	assert.Equal(t, shared.Ref(), got.Srcs[0].Def)
	assert.Zero(t, got.Dst().Flags&ir3.RegShared)
}

func TestPutDstNarrowsSmallValues(t *testing.T) {
	ctx := coreContext(t)
	d := def(50, 1, 8)

	var mov *ir3.Instruction
	require.NoError(t, Run(ctx, func(ctx *Context) {
		value := ctx.NewDst(d, 1)
		mov = ctx.Block.Mov(ctx.Block.Immed(3, ir3.TypeU32), ir3.TypeU32)
		value[0] = mov.Ref()
		ctx.PutDst(d)
	}))

	assert.True(t, mov.IsHalf())
	assert.Equal(t, ir3.TypeU16, mov.Cat1.DstType)
	assert.Equal(t, ir3.TypeU32, mov.Cat1.SrcType, "the source is still full")
}

func TestPutDstNarrowsSplitSources(t *testing.T) {
	ctx := coreContext(t)
	d := def(50, 2, 16)

	var in *ir3.Instruction
	var value []ir3.Ref
	require.NoError(t, Run(ctx, func(ctx *Context) {
		in = ctx.Block.Create(ir3.OpcMetaInput, 1, 0)
		in.SSADst().Wrmask = 0x3
		value = ctx.NewDst(d, 2)
		ctx.SplitDst(ctx.Block, value, in.Ref(), 0, 2)
		ctx.PutDst(d)
	}))

	assert.True(t, in.IsHalf())
	for i, r := range value {
		split := ctx.instr(r)
		require.Equal(t, ir3.OpcMetaSplit, split.Opc)
		assert.Equal(t, i, split.Split.Off)
		assert.True(t, split.IsHalf())
		assert.True(t, split.Srcs[0].Has(ir3.RegHalf))
	}
}

func TestBooleansUseTargetWidth(t *testing.T) {
	ctx := coreContext(t)
	d := def(50, 1, 1)

	var cmp *ir3.Instruction
	require.NoError(t, Run(ctx, func(ctx *Context) {
		value := ctx.NewDst(d, 1)
		imm := ctx.Block.Immed(1, ir3.TypeU32)
		cmp = ctx.Block.CmpsS(imm, imm, ir3.CondEQ)
		value[0] = cmp.Ref()
		ctx.PutDst(d)
	}))
	assert.False(t, cmp.IsHalf())
}

func immeds(ctx *Context, n int, typ ir3.Type) []ir3.Ref {
	refs := make([]ir3.Ref, n)
	for i := range refs {
		refs[i] = ctx.Block.Immed(uint32(i), typ).Ref()
	}
	return refs
}

func TestCollectSplitRoundTrip(t *testing.T) {
	ctx := coreContext(t)
	elems := immeds(ctx, 4, ir3.TypeU32)

	var collect ir3.Ref
	all := make([]ir3.Ref, 4)
	mid := make([]ir3.Ref, 2)
	var before, after int
	require.NoError(t, Run(ctx, func(ctx *Context) {
		collect = ctx.Collect(ctx.Block, elems)
		before = countInstrs(ctx)
		ctx.SplitDst(ctx.Block, all, collect, 0, 4)
		ctx.SplitDst(ctx.Block, mid, collect, 1, 2)
		after = countInstrs(ctx)
	}))
	assert.Equal(t, before, after, "splitting a collect emits nothing")

	c := ctx.instr(collect)
	assert.Equal(t, ir3.OpcMetaCollect, c.Opc)
	assert.Equal(t, uint32(0xf), c.Dst().Wrmask)
	require.Len(t, c.Srcs, 4)
	for i, s := range c.Srcs {
		assert.Equal(t, elems[i], s.Def)
	}
	assert.Equal(t, elems, all, "splitting a collect reuses its sources")
	assert.Equal(t, elems[1:3], mid)
}

func TestCollectWideValues(t *testing.T) {
	ctx := coreContext(t)
	elems := immeds(ctx, 12, ir3.TypeU32)

	var collect ir3.Ref
	tail := make([]ir3.Ref, 3)
	require.NoError(t, Run(ctx, func(ctx *Context) {
		collect = ctx.Collect(ctx.Block, elems)
		ctx.SplitDst(ctx.Block, tail, collect, 9, 3)
	}))

	assert.Equal(t, uint32(0xfff), ctx.instr(collect).Dst().Wrmask)
	assert.Equal(t, elems[9:], tail)
	assert.NoError(t, ir3.Validate(ctx.IR))
}

func TestCollectEdgeCases(t *testing.T) {
	ctx := coreContext(t)
	require.NoError(t, Run(ctx, func(ctx *Context) {
		assert.Equal(t, ir3.NoRef, ctx.Collect(ctx.Block, nil))
	}))

	ctx = coreContext(t)
	mixed := append(immeds(ctx, 1, ir3.TypeU32), immeds(ctx, 1, ir3.TypeU16)...)
	assert.Equal(t, diag.ErrorRegisterClass, fatalCode(t, ctx, func(ctx *Context) {
		ctx.Collect(ctx.Block, mixed)
	}))

	ctx = coreContext(t)
	wide := immeds(ctx, 33, ir3.TypeU32)
	assert.Equal(t, diag.ErrorCollectBounds, fatalCode(t, ctx, func(ctx *Context) {
		ctx.Collect(ctx.Block, wide)
	}))

	ctx = coreContext(t)
	pair := immeds(ctx, 2, ir3.TypeU32)
	assert.Equal(t, diag.ErrorCollectBounds, fatalCode(t, ctx, func(ctx *Context) {
		collect := ctx.Collect(ctx.Block, pair)
		ctx.SplitDst(ctx.Block, make([]ir3.Ref, 2), collect, 1, 2)
	}))
}

func TestCollectMovesArrayElements(t *testing.T) {
	ctx := coreContext(t)

	var collect *ir3.Instruction
	var store ir3.Ref
	require.NoError(t, Run(ctx, func(ctx *Context) {
		arr := ctx.DeclareArray(declReg(60, 1, 2, 32))
		imm := immeds(ctx, 1, ir3.TypeU32)[0]
		ctx.ArrayStore(arr, 1, imm, ir3.NoRef)
		store = arr.LastWrite
		collect = ctx.instr(ctx.Collect(ctx.Block, []ir3.Ref{store, imm}))
	}))

	mov := ctx.instr(collect.Srcs[0].Def)
	require.NotNil(t, mov)
	assert.Equal(t, ir3.OpcMov, mov.Opc)
	assert.Equal(t, store, mov.Srcs[0].Def)
	assert.True(t, mov.Srcs[0].Has(ir3.RegArray))
	assert.Equal(t, 1, mov.Srcs[0].Array.Offset)
}

func TestSplitDst(t *testing.T) {
	t.Run("single component aliases", func(t *testing.T) {
		ctx := coreContext(t)
		imm := immeds(ctx, 1, ir3.TypeU32)[0]
		dst := make([]ir3.Ref, 1)
		before := countInstrs(ctx)
		require.NoError(t, Run(ctx, func(ctx *Context) { ctx.SplitDst(ctx.Block, dst, imm, 0, 1) }))
		assert.Equal(t, imm, dst[0])
		assert.Equal(t, before, countInstrs(ctx), "no split is emitted")
	})

	t.Run("inputs always split", func(t *testing.T) {
		ctx := coreContext(t)
		in := ctx.Block.Create(ir3.OpcMetaInput, 1, 0)
		in.SSADst()
		dst := make([]ir3.Ref, 1)
		require.NoError(t, Run(ctx, func(ctx *Context) { ctx.SplitDst(ctx.Block, dst, in.Ref(), 0, 1) }))
		split := ctx.instr(dst[0])
		assert.Equal(t, ir3.OpcMetaSplit, split.Opc)
		assert.Equal(t, in.Ref(), split.Srcs[0].Def)
	})

	t.Run("sparse results are packed", func(t *testing.T) {
		ctx := coreContext(t)
		sam := ctx.Block.Create(ir3.OpcSam, 1, 0)
		sam.SSADst().Wrmask = 0x5
		dst := make([]ir3.Ref, 4)
		require.NoError(t, Run(ctx, func(ctx *Context) { ctx.SplitDst(ctx.Block, dst, sam.Ref(), 0, 4) }))

		assert.Equal(t, 0, ctx.instr(dst[0]).Split.Off)
		assert.Equal(t, 2, ctx.instr(dst[1]).Split.Off)
		assert.Equal(t, ir3.NoRef, dst[2])
		assert.Equal(t, ir3.NoRef, dst[3])
	})
}

func countInstrs(ctx *Context) int {
	return len(ctx.Block.Instrs)
}

func TestAddr0(t *testing.T) {
	tests := []struct {
		align int
		count int
		opc   ir3.Opc
	}{
		{1, 2, ir3.OpcMov},
		{2, 4, ir3.OpcShlB},
		{3, 4, ir3.OpcMullU},
		{4, 4, ir3.OpcShlB},
	}
	for _, tt := range tests {
		ctx := coreContext(t)
		src := immeds(ctx, 1, ir3.TypeU32)[0]
		start := countInstrs(ctx)

		var a, again ir3.Ref
		require.NoError(t, Run(ctx, func(ctx *Context) {
			a = ctx.Addr0(src, tt.align)
			again = ctx.Addr0(src, tt.align)
		}))
		assert.Equal(t, a, again, "align %d is cached", tt.align)
		assert.Equal(t, tt.count, countInstrs(ctx)-start, "align %d", tt.align)

		mov := ctx.instr(a)
		assert.Equal(t, ir3.A0X, mov.Dst().Num)
		assert.Equal(t, ir3.TypeS16, mov.Cat1.DstType)

		stride := ctx.instr(mov.Srcs[0].Def)
		assert.Equal(t, tt.opc, stride.Opc, "align %d", tt.align)
		assert.True(t, stride.IsHalf())
	}
}

func TestAddr0CachePerAlignment(t *testing.T) {
	ctx := coreContext(t)
	src := immeds(ctx, 2, ir3.TypeU32)

	var a, b, c ir3.Ref
	require.NoError(t, Run(ctx, func(ctx *Context) {
		a = ctx.Addr0(src[0], 2)
		b = ctx.Addr0(src[0], 4)
		c = ctx.Addr0(src[1], 2)
	}))
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestAddr0BadAlignment(t *testing.T) {
	for _, align := range []int{0, 5} {
		ctx := coreContext(t)
		src := immeds(ctx, 1, ir3.TypeU32)[0]
		assert.Equal(t, diag.ErrorBadAlignment, fatalCode(t, ctx, func(ctx *Context) {
			ctx.Addr0(src, align)
		}))
	}
}

func TestAddr1(t *testing.T) {
	ctx := coreContext(t)

	var a, b, c ir3.Ref
	require.NoError(t, Run(ctx, func(ctx *Context) {
		a = ctx.Addr1(3)
		b = ctx.Addr1(3)
		c = ctx.Addr1(4)
	}))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	mov := ctx.instr(a)
	assert.Equal(t, ir3.A1X, mov.Dst().Num)
	assert.Equal(t, ir3.TypeU16, mov.Cat1.DstType)
	assert.Equal(t, uint32(3), ctx.instr(mov.Srcs[0].Def).Srcs[0].Iim)
}

func TestPredicate(t *testing.T) {
	ctx := coreContext(t)
	full := immeds(ctx, 1, ir3.TypeU32)[0]
	half := immeds(ctx, 1, ir3.TypeU16)[0]

	var a, b, h ir3.Ref
	require.NoError(t, Run(ctx, func(ctx *Context) {
		a = ctx.Predicate(full)
		b = ctx.Predicate(full)
		h = ctx.Predicate(half)
	}))
	assert.NotEqual(t, a, b, "predicates are not shared")

	cmp := ctx.instr(a)
	assert.Equal(t, ir3.OpcCmpsS, cmp.Opc)
	assert.Equal(t, ir3.CondNE, cmp.Cat2.Condition)
	assert.Equal(t, ir3.P0X, cmp.Dst().Num)
	assert.Zero(t, cmp.Dst().Flags&ir3.RegSSA)
	assert.Equal(t, ir3.TypeU32, ctx.instr(cmp.Srcs[1].Def).Cat1.DstType)
	assert.Equal(t, ir3.TypeU16, ctx.instr(ctx.instr(h).Srcs[1].Def).Cat1.DstType)
}

func TestSelCond(t *testing.T) {
	ctx := coreContext(t)
	cond := immeds(ctx, 1, ir3.TypeU32)[0]

	var same, a, b ir3.Ref
	require.NoError(t, Run(ctx, func(ctx *Context) {
		same = ctx.SelCond(cond, false)
		a = ctx.SelCond(cond, true)
		b = ctx.SelCond(cond, true)
	}))
	assert.Equal(t, cond, same)
	assert.Equal(t, a, b)
	cov := ctx.instr(a)
	assert.Equal(t, ir3.TypeU32, cov.Cat1.SrcType)
	assert.Equal(t, ir3.TypeU16, cov.Cat1.DstType)
}

func TestDeclareArray(t *testing.T) {
	tests := []struct {
		ncomp, elems, bits int
		length             int
		half               bool
	}{
		{1, 0, 32, 1, false},
		{4, 0, 32, 4, false},
		{2, 3, 16, 6, true},
		{1, 1, 1, 1, false},
	}
	ctx := coreContext(t)
	for i, tt := range tests {
		var arr *ir3.Array
		require.NoError(t, Run(ctx, func(ctx *Context) {
			arr = ctx.DeclareArray(declReg(nir.DefID(60+i), tt.ncomp, tt.elems, tt.bits))
		}))
		assert.Equal(t, i+1, arr.ID)
		assert.Equal(t, tt.length, arr.Length)
		assert.Equal(t, tt.half, arr.Half)
	}

	var found *ir3.Array
	require.NoError(t, Run(ctx, func(ctx *Context) { found = ctx.Array(62) }))
	assert.Equal(t, 3, found.ID)
}

func TestArrayErrors(t *testing.T) {
	ctx := coreContext(t)
	assert.Equal(t, diag.ErrorZeroLengthArray, fatalCode(t, ctx, func(ctx *Context) {
		ctx.DeclareArray(declReg(60, 0, 4, 32))
	}))

	ctx = coreContext(t)
	assert.Equal(t, diag.ErrorUnknownArray, fatalCode(t, ctx, func(ctx *Context) {
		ctx.Array(42)
	}))
	assert.Contains(t, ctx.Err().Error(), "bogus reg: r42")
}

func TestStoreRegWithoutProducerIsFatal(t *testing.T) {
	ctx := coreContext(t)
	val := def(70, 2, 32)
	decl := declReg(60, 2, 1, 32)

	var arr *ir3.Array
	assert.Equal(t, diag.ErrorUndefinedValue, fatalCode(t, ctx, func(ctx *Context) {
		arr = ctx.DeclareArray(decl)
		ctx.DstSSA(val, 2)[0] = immeds(ctx, 1, ir3.TypeU32)[0]
		ctx.emitStoreReg(&nir.Instr{
			Op:      nir.OpStoreReg,
			Srcs:    []nir.Src{nir.SrcFor(val), nir.SrcFor(decl.Def)},
			Indices: nir.Indices{WriteMask: 0x3},
		})
	}))
	assert.Contains(t, ctx.Err().Error(), "component 1")
	assert.NotEqual(t, ir3.NoRef, arr.LastWrite, "the first component is stored before the failure")
}

func TestArrayAccessSameBlock(t *testing.T) {
	ctx := coreContext(t)
	vals := immeds(ctx, 2, ir3.TypeU32)

	var arr *ir3.Array
	var first, second ir3.Ref
	var load *ir3.Instruction
	require.NoError(t, Run(ctx, func(ctx *Context) {
		arr = ctx.DeclareArray(declReg(60, 1, 4, 32))
		ctx.ArrayStore(arr, 0, vals[0], ir3.NoRef)
		first = arr.LastWrite
		ctx.ArrayStore(arr, 1, vals[1], ir3.NoRef)
		second = arr.LastWrite
		load = ctx.instr(ctx.ArrayLoad(arr, 0, ir3.NoRef))
	}))

	s1, s2 := ctx.instr(first), ctx.instr(second)
	assert.Len(t, s1.Srcs, 1, "no earlier write to link")
	require.Len(t, s2.Srcs, 2)
	assert.Equal(t, first, s2.Srcs[1].Def)
	assert.True(t, s2.Srcs[1].Tied)
	assert.True(t, s2.Dst().Tied)
	assert.Equal(t, vals[1], s2.Srcs[0].Def)

	assert.Equal(t, ir3.BarrierArrayW, s2.BarrierClass)
	assert.Equal(t, ir3.BarrierArrayR|ir3.BarrierArrayW, s2.BarrierConflict)
	assert.True(t, s2.Dst().Has(ir3.RegArray|ir3.RegSSA))
	assert.Equal(t, 4, s2.Dst().Size)
	assert.True(t, ctx.Block.IsKept(first))
	assert.True(t, ctx.Block.IsKept(second))

	assert.Equal(t, second, load.Srcs[0].Def)
	assert.Equal(t, ir3.BarrierArrayR, load.BarrierClass)
	assert.Equal(t, ir3.BarrierArrayW, load.BarrierConflict)
	assert.Equal(t, ir3.ArrayRef{ID: arr.ID, Offset: 0, Base: ir3.InvalidReg}, load.Srcs[0].Array)
	assert.False(t, ctx.Block.IsKept(load.Ref()))
}

func TestArrayAccessAcrossBlocks(t *testing.T) {
	ctx := coreContext(t)
	vals := immeds(ctx, 2, ir3.TypeU32)

	var load, store *ir3.Instruction
	require.NoError(t, Run(ctx, func(ctx *Context) {
		arr := ctx.DeclareArray(declReg(60, 1, 4, 32))
		ctx.ArrayStore(arr, 0, vals[0], ir3.NoRef)

		ctx.Block = ctx.IR.NewBlock("next")
		load = ctx.instr(ctx.ArrayLoad(arr, 0, ir3.NoRef))
		ctx.ArrayStore(arr, 0, vals[1], ir3.NoRef)
		store = ctx.instr(arr.LastWrite)
	}))

	assert.Equal(t, ir3.NoRef, load.Srcs[0].Def)
	assert.Len(t, store.Srcs, 1)
	assert.False(t, store.Dst().Tied)
}

func TestArrayRelativeAccess(t *testing.T) {
	ctx := coreContext(t)
	vals := immeds(ctx, 2, ir3.TypeU16)

	var load, store *ir3.Instruction
	require.NoError(t, Run(ctx, func(ctx *Context) {
		arr := ctx.DeclareArray(declReg(60, 2, 2, 16))
		addr := ctx.Addr0(vals[0], 2)
		ctx.ArrayStore(arr, 1, vals[1], addr)
		store = ctx.instr(arr.LastWrite)
		load = ctx.instr(ctx.ArrayLoad(arr, 1, addr))
	}))

	assert.True(t, store.Dst().Has(ir3.RegRelativ|ir3.RegArray|ir3.RegHalf))
	assert.True(t, load.Srcs[0].Has(ir3.RegRelativ|ir3.RegArray|ir3.RegHalf))
	assert.True(t, load.IsHalf())
	assert.Equal(t, ir3.TypeU16, load.Cat1.DstType)
	assert.Equal(t, store.Address, load.Address)
	assert.Equal(t, []ir3.Ref{store.Ref(), load.Ref()}, ctx.IR.A0Users)
}
