package nir

// This file contains the cleanup passes run on the cloned program before
// translation. They are deliberately small: the program arrives already
// optimized, these passes only clean up after backend-specific lowering.

import (
	"fmt"
	"math"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("gpuc.nir")

// MaxCleanupRounds bounds RunUntilFixedPoint
const MaxCleanupRounds = 64

// Pass represents a single program transformation
type Pass interface {
	Name() string
	Apply(shader *Shader) bool // Returns true if changes were made
	Description() string
}

// Pipeline manages a sequence of passes
type Pipeline struct {
	passes []Pass
}

// NewPipeline creates a pipeline running passes in order
func NewPipeline(passes ...Pass) *Pipeline {
	p := &Pipeline{}
	for _, pass := range passes {
		p.AddPass(pass)
	}
	return p
}

// NewCleanupPipeline returns the passes repeated until convergence before
// translation. LowerIMul is run once ahead of it.
func NewCleanupPipeline() *Pipeline {
	return NewPipeline(
		&Algebraic{},
		&CopyPropVars{},
		&DeadWriteVars{},
		&DeadCodeElimination{},
		&ConstantFolding{},
	)
}

// AddPass adds a pass to the pipeline
func (p *Pipeline) AddPass(pass Pass) {
	p.passes = append(p.passes, pass)
}

// Passes returns the passes in execution order
func (p *Pipeline) Passes() []Pass {
	return p.passes
}

// Run executes every pass once and reports whether any made progress
func (p *Pipeline) Run(shader *Shader) bool {
	progress := false
	for _, pass := range p.passes {
		changed := pass.Apply(shader)
		log.Debugf("%s: changed=%t", pass.Name(), changed)
		if changed {
			progress = true
		}
	}
	return progress
}

// RunUntilFixedPoint repeats Run until a round makes no progress and
// returns the number of rounds executed. The first round always runs.
func (p *Pipeline) RunUntilFixedPoint(shader *Shader, maxRounds int) (int, error) {
	for round := 1; round <= maxRounds; round++ {
		if !p.Run(shader) {
			return round, nil
		}
	}
	return maxRounds, fmt.Errorf("cleanup did not converge after %d rounds", maxRounds)
}

func forEachALU(shader *Shader, fn func(instr *Instr) bool) bool {
	changed := false
	for _, f := range shader.Functions {
		for _, b := range f.Blocks {
			// copy: fn may insert instructions
			instrs := append([]*Instr(nil), b.Instrs...)
			for _, instr := range instrs {
				if instr.Block == nil || !instr.Op.IsALU() || instr.Def == nil {
					continue
				}
				if fn(instr) {
					changed = true
				}
			}
		}
	}
	return changed
}

// LowerIMul expands 32-bit integer multiplies into the 16x16 multiply
// sequence supported by the hardware
type LowerIMul struct{}

func (l *LowerIMul) Name() string {
	return "Lower IMul"
}

func (l *LowerIMul) Description() string {
	return "Expands 32-bit imul into umul_low + two imadsh_mix16"
}

func (l *LowerIMul) Apply(shader *Shader) bool {
	return forEachALU(shader, func(instr *Instr) bool {
		if instr.Op != OpIMul || instr.Def.BitSize != 32 {
			return false
		}
		a, b := instr.Srcs[0], instr.Srcs[1]
		n := instr.Def.NumComponents

		lo := shader.NewInstr(OpUMulLow)
		lo.Def = shader.NewDef(n, 32)
		lo.Def.Parent = lo
		lo.Srcs = []Src{a, b}
		lo.Line = instr.Line
		instr.Block.InsertBefore(instr, lo)

		mix := shader.NewInstr(OpIMadshMix16)
		mix.Def = shader.NewDef(n, 32)
		mix.Def.Parent = mix
		mix.Srcs = []Src{b, a, SrcFor(lo.Def)}
		mix.Line = instr.Line
		instr.Block.InsertBefore(instr, mix)

		instr.Op = OpIMadshMix16
		instr.Srcs = []Src{a, b, SrcFor(mix.Def)}
		return true
	})
}

// Algebraic applies identity simplifications and unfuses ffma
type Algebraic struct{}

func (a *Algebraic) Name() string {
	return "Algebraic"
}

func (a *Algebraic) Description() string {
	return "Removes identity operations and splits ffma into fmul+fadd"
}

func (a *Algebraic) Apply(shader *Shader) bool {
	return forEachALU(shader, func(instr *Instr) bool {
		n := instr.Def.NumComponents
		bits := instr.Def.BitSize
		isConst := func(i int, v uint64) bool {
			c, ok := UniformConst(instr.Srcs[i], n)
			return ok && c == v
		}

		switch instr.Op {
		case OpIAdd:
			if isConst(1, 0) {
				return shader.RewriteUses(instr.Def, instr.Srcs[0])
			}
			if isConst(0, 0) {
				return shader.RewriteUses(instr.Def, instr.Srcs[1])
			}
		case OpISub, OpIShl:
			if isConst(1, 0) {
				return shader.RewriteUses(instr.Def, instr.Srcs[0])
			}
		case OpIMul:
			if isConst(1, 1) {
				return shader.RewriteUses(instr.Def, instr.Srcs[0])
			}
			if isConst(0, 1) {
				return shader.RewriteUses(instr.Def, instr.Srcs[1])
			}
		case OpFMul:
			one, ok := floatOne(bits)
			if ok && isConst(1, one) {
				return shader.RewriteUses(instr.Def, instr.Srcs[0])
			}
			if ok && isConst(0, one) {
				return shader.RewriteUses(instr.Def, instr.Srcs[1])
			}
		case OpINeg, OpFNeg:
			inner := instr.Srcs[0].SSA.Parent
			if inner != nil && inner.Op == instr.Op {
				return shader.RewriteUses(instr.Def, inner.Srcs[0].Compose(instr.Srcs[0].Swizzle))
			}
		case OpBCSel:
			if c, ok := UniformConst(instr.Srcs[0], n); ok {
				if c != 0 {
					return shader.RewriteUses(instr.Def, instr.Srcs[1])
				}
				return shader.RewriteUses(instr.Def, instr.Srcs[2])
			}
		case OpFFma:
			mul := shader.NewInstr(OpFMul)
			mul.Def = shader.NewDef(n, bits)
			mul.Def.Parent = mul
			mul.Srcs = []Src{instr.Srcs[0], instr.Srcs[1]}
			mul.Line = instr.Line
			instr.Block.InsertBefore(instr, mul)

			instr.Op = OpFAdd
			instr.Srcs = []Src{SrcFor(mul.Def), instr.Srcs[2]}
			return true
		}
		return false
	})
}

func floatOne(bits int) (uint64, bool) {
	switch bits {
	case 32:
		return uint64(math.Float32bits(1.0)), true
	case 16:
		return 0x3c00, true
	}
	return 0, false
}

// AlgebraicLate re-fuses fmul+fadd pairs into ffma
type AlgebraicLate struct{}

func (a *AlgebraicLate) Name() string {
	return "Algebraic Late"
}

func (a *AlgebraicLate) Description() string {
	return "Fuses fadd(fmul(a, b), c) into ffma(a, b, c) when the fmul has no other use"
}

func (a *AlgebraicLate) Apply(shader *Shader) bool {
	uses := shader.UseCounts()
	return forEachALU(shader, func(instr *Instr) bool {
		if instr.Op != OpFAdd {
			return false
		}
		for i := 0; i < 2; i++ {
			mulSrc := instr.Srcs[i]
			mul := mulSrc.SSA.Parent
			if mul == nil || mul.Op != OpFMul || uses[mul.Def] != 1 ||
				mul.Def.BitSize != instr.Def.BitSize {
				continue
			}
			addend := instr.Srcs[1-i]
			instr.Op = OpFFma
			instr.Srcs = []Src{
				mul.Srcs[0].Compose(mulSrc.Swizzle),
				mul.Srcs[1].Compose(mulSrc.Swizzle),
				addend,
			}
			uses[mul.Def] = 0
			return true
		}
		return false
	})
}

// CopyPropVars forwards copies: mov results and block-local variable
// stores to the loads that follow them
type CopyPropVars struct{}

func (c *CopyPropVars) Name() string {
	return "Copy Propagation"
}

func (c *CopyPropVars) Description() string {
	return "Replaces uses of mov results and reloaded variables with their source values"
}

func (c *CopyPropVars) Apply(shader *Shader) bool {
	changed := false
	for _, fn := range shader.Functions {
		for _, b := range fn.Blocks {
			stored := make(map[int]Src)
			for _, instr := range b.Instrs {
				switch instr.Op {
				case OpMov:
					if shader.RewriteUses(instr.Def, instr.Srcs[0]) {
						changed = true
					}
				case OpStoreVar:
					stored[instr.Indices.Var] = instr.Srcs[0]
				case OpLoadVar:
					src, ok := stored[instr.Indices.Var]
					if ok && src.SSA.NumComponents >= instr.Def.NumComponents {
						if shader.RewriteUses(instr.Def, src) {
							changed = true
						}
					}
				}
			}
		}
	}
	return changed
}

// DeadWriteVars removes variable stores overwritten later in the same
// block without an intervening load
type DeadWriteVars struct{}

func (d *DeadWriteVars) Name() string {
	return "Dead Write Elimination"
}

func (d *DeadWriteVars) Description() string {
	return "Removes variable stores that are overwritten before being read"
}

func (d *DeadWriteVars) Apply(shader *Shader) bool {
	changed := false
	for _, fn := range shader.Functions {
		for _, b := range fn.Blocks {
			overwritten := make(map[int]bool)
			var dead []*Instr
			for i := len(b.Instrs) - 1; i >= 0; i-- {
				instr := b.Instrs[i]
				switch instr.Op {
				case OpLoadVar:
					delete(overwritten, instr.Indices.Var)
				case OpStoreVar:
					if overwritten[instr.Indices.Var] {
						dead = append(dead, instr)
					} else {
						overwritten[instr.Indices.Var] = true
					}
				}
			}
			for _, instr := range dead {
				b.Remove(instr)
				changed = true
			}
		}
	}
	return changed
}

// DeadCodeElimination removes instructions whose results are never used
type DeadCodeElimination struct{}

func (dce *DeadCodeElimination) Name() string {
	return "Dead Code Elimination"
}

func (dce *DeadCodeElimination) Description() string {
	return "Removes instructions without side effects whose results are unused"
}

func (dce *DeadCodeElimination) Apply(shader *Shader) bool {
	changed := false
	for {
		uses := shader.UseCounts()
		removed := false
		for _, fn := range shader.Functions {
			for _, b := range fn.Blocks {
				kept := b.Instrs[:0]
				for _, instr := range b.Instrs {
					if dce.shouldKeepInstruction(instr, uses) {
						kept = append(kept, instr)
					} else {
						instr.Block = nil
						removed = true
					}
				}
				b.Instrs = kept
			}
		}
		if !removed {
			return changed
		}
		changed = true
	}
}

func (dce *DeadCodeElimination) shouldKeepInstruction(instr *Instr, uses map[*Def]int) bool {
	if instr.Op.HasSideEffects() {
		return true
	}
	if instr.Def == nil {
		return true // Conservative: keep unknown instructions
	}
	return uses[instr.Def] > 0
}

// ConstantFolding evaluates ALU operations on constants at compile time
type ConstantFolding struct{}

func (cf *ConstantFolding) Name() string {
	return "Constant Folding"
}

func (cf *ConstantFolding) Description() string {
	return "Evaluates constant expressions at compile time and replaces with load_const"
}

func (cf *ConstantFolding) Apply(shader *Shader) bool {
	return forEachALU(shader, func(instr *Instr) bool {
		n := instr.Def.NumComponents
		values := make([]uint64, n)
		for ch := 0; ch < n; ch++ {
			if instr.Op.IsVec() {
				v, ok := ConstValue(instr.Srcs[ch], 0)
				if !ok {
					return false
				}
				values[ch] = v
				continue
			}
			var operands [3]uint64
			for i, src := range instr.Srcs {
				v, ok := ConstValue(src, ch)
				if !ok {
					return false
				}
				operands[i] = v
			}
			v, ok := evalALU(instr.Op, instr.Def.BitSize, operands)
			if !ok {
				return false
			}
			values[ch] = v
		}

		instr.Op = OpLoadConst
		instr.Srcs = nil
		instr.Consts = values
		return true
	})
}

func evalALU(op Op, bits int, s [3]uint64) (uint64, bool) {
	mask := bitMask(bits)
	// comparisons write 1 for true, as cmps.s does
	truth := func(b bool) uint64 {
		if b {
			return 1
		}
		return 0
	}
	f32 := func(v uint64) float32 { return math.Float32frombits(uint32(v)) }
	fbits := func(f float32) uint64 { return uint64(math.Float32bits(f)) }

	switch op {
	case OpMov:
		return s[0] & mask, true
	case OpIAdd:
		return (s[0] + s[1]) & mask, true
	case OpISub:
		return (s[0] - s[1]) & mask, true
	case OpIMul:
		return (s[0] * s[1]) & mask, true
	case OpINeg:
		return (-s[0]) & mask, true
	case OpIShl:
		return (s[0] << (s[1] % uint64(max(bits, 1)))) & mask, true
	case OpIEq:
		return truth(s[0] == s[1]), true
	case OpINe:
		return truth(s[0] != s[1]), true
	case OpB2I32:
		if s[0] != 0 {
			return 1, true
		}
		return 0, true
	case OpBCSel:
		if s[0] != 0 {
			return s[1] & mask, true
		}
		return s[2] & mask, true
	case OpUMulLow:
		return ((s[0] & 0xffff) * (s[1] & 0xffff)) & mask, true
	case OpIMadshMix16:
		hi := int64(int32(uint32(s[0]))) >> 16
		lo := int64(int16(uint16(s[1])))
		return (uint64(hi*lo)<<16 + s[2]) & mask, true
	}

	if bits != 32 {
		return 0, false
	}
	switch op {
	case OpFAdd:
		return fbits(f32(s[0]) + f32(s[1])), true
	case OpFMul:
		return fbits(f32(s[0]) * f32(s[1])), true
	case OpFFma:
		return fbits(f32(s[0])*f32(s[1]) + f32(s[2])), true
	case OpFNeg:
		return fbits(-f32(s[0])), true
	}
	return 0, false
}

// LowerTexPrefetch turns fragment-shader texture fetches whose coordinate
// is a varying read in the start block into prefetches that the hardware
// issues before the shader starts. The coordinate source is kept for
// fetches that end up over the prefetch limit.
type LowerTexPrefetch struct{}

// MaxPrefetchTextureIndex bounds the texture/sampler ids a prefetch can encode
const MaxPrefetchTextureIndex = 15

func (l *LowerTexPrefetch) Name() string {
	return "Lower Tex Prefetch"
}

func (l *LowerTexPrefetch) Description() string {
	return "Converts eligible fragment texture samples into tex_prefetch"
}

func (l *LowerTexPrefetch) Apply(shader *Shader) bool {
	if shader.Stage != StageFragment {
		return false
	}
	fn := shader.EntryPoint()
	if fn == nil || len(fn.Blocks) == 0 {
		return false
	}
	changed := false
	for _, instr := range fn.Blocks[0].Instrs {
		if instr.Op != OpTex || len(instr.Srcs) != 1 {
			continue
		}
		coord := instr.Srcs[0].SSA.Parent
		if coord == nil || coord.Block != fn.Blocks[0] ||
			(coord.Op != OpLoadInterpolatedInput && coord.Op != OpLoadInput) {
			continue
		}
		if instr.Indices.Texture > MaxPrefetchTextureIndex || instr.Indices.Sampler > MaxPrefetchTextureIndex {
			continue
		}
		instr.Op = OpTexPrefetch
		instr.Indices.Input = coord.Indices.Base
		changed = true
	}
	return changed
}

// LowerPhisToScalar splits vector phis into one phi per component joined
// by a vecN
type LowerPhisToScalar struct{}

func (l *LowerPhisToScalar) Name() string {
	return "Lower Phis To Scalar"
}

func (l *LowerPhisToScalar) Description() string {
	return "Splits multi-component phis into scalar phis"
}

func (l *LowerPhisToScalar) Apply(shader *Shader) bool {
	changed := false
	for _, fn := range shader.Functions {
		for _, b := range fn.Blocks {
			var vectors []*Instr
			lastPhi := -1
			for i, instr := range b.Instrs {
				if instr.Op != OpPhi {
					continue
				}
				lastPhi = i
				if instr.Def.NumComponents > 1 {
					vectors = append(vectors, instr)
				}
			}
			if len(vectors) == 0 {
				continue
			}

			var scalars, vecs []*Instr
			for _, phi := range vectors {
				n := phi.Def.NumComponents
				vec := shader.NewInstr(VecOp(n))
				vec.Def = shader.NewDef(n, phi.Def.BitSize)
				vec.Def.Parent = vec
				vec.Line = phi.Line
				for c := 0; c < n; c++ {
					s := shader.NewInstr(OpPhi)
					s.Def = shader.NewDef(1, phi.Def.BitSize)
					s.Def.Parent = s
					s.Line = phi.Line
					for _, src := range phi.Srcs {
						comp := uint8(src.Component(c))
						s.Srcs = append(s.Srcs, Src{SSA: src.SSA, Swizzle: [4]uint8{comp, comp, comp, comp}})
					}
					s.PhiPreds = append([]*Block(nil), phi.PhiPreds...)
					scalars = append(scalars, s)
					vec.Srcs = append(vec.Srcs, SrcFor(s.Def))
				}
				vecs = append(vecs, vec)
				shader.RewriteUses(phi.Def, SrcFor(vec.Def))
			}

			// phis first, then the vecs, then the rest of the block
			rest := append([]*Instr(nil), b.Instrs[lastPhi+1:]...)
			var phis []*Instr
			for _, instr := range b.Instrs[:lastPhi+1] {
				if instr.Op == OpPhi && instr.Def.NumComponents > 1 {
					instr.Block = nil
					continue
				}
				phis = append(phis, instr)
			}
			b.Instrs = nil
			for _, group := range [][]*Instr{phis, scalars, vecs, rest} {
				for _, instr := range group {
					b.Append(instr)
				}
			}
			changed = true
		}
	}
	return changed
}

// LowerVariant folds variant-key dependent system values into constants
type LowerVariant struct {
	Samples    uint32
	UCPEnables uint8
}

func (l *LowerVariant) Name() string {
	return "Lower Variant"
}

func (l *LowerVariant) Description() string {
	return "Replaces sample count and clip plane mask reads with key constants"
}

func (l *LowerVariant) Apply(shader *Shader) bool {
	changed := false
	shader.ForEachInstr(func(instr *Instr) {
		var v uint64
		switch instr.Op {
		case OpLoadSampleCount:
			if l.Samples == 0 {
				return
			}
			v = uint64(l.Samples)
		case OpLoadUserClipPlaneMask:
			v = uint64(l.UCPEnables)
		default:
			return
		}
		instr.Op = OpLoadConst
		instr.Consts = make([]uint64, instr.Def.NumComponents)
		for i := range instr.Consts {
			instr.Consts[i] = v & bitMask(instr.Def.BitSize)
		}
		changed = true
	})
	return changed
}
