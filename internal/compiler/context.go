package compiler

import (
	"fmt"

	"github.com/tliron/commonlog"

	diag "gpuc/internal/errors"
	"gpuc/internal/ir3"
	"gpuc/internal/nir"
	"gpuc/internal/target"
	"gpuc/internal/variant"
)

var log = commonlog.GetLogger("gpuc.compiler")

// Context holds the state of one variant compile: the cleaned up source
// program, the machine program being built and the lookup tables
// connecting the two. A Context is used by a single goroutine.
type Context struct {
	Compiler *target.Compiler
	Funcs    target.Funcs
	Variant  *variant.Variant
	Stage    nir.Stage
	Name     string

	// S is the private copy of the source program
	S *nir.Shader
	// IR is the machine program
	IR *ir3.Shader
	// Block is the machine block instructions are emitted into
	Block *ir3.Block

	curInstr *nir.Instr

	defs           map[nir.DefID][]ir3.Ref
	blocks         map[*nir.Block]*ir3.Block
	continueBlocks map[*nir.Loop]*ir3.Block

	addr0   [4]map[ir3.Ref]ir3.Ref
	addr1   map[uint16]ir3.Ref
	selCond map[ir3.Ref]ir3.Ref

	numArrays int

	// open destination batch
	lastDst     []ir3.Ref
	lastDstDef  nir.DefID
	lastDstOpen bool

	// Texture state picked from the variant key for this generation and stage
	SamplerSwizzles [variant.NumSamplers]uint16
	ASTCSRGB        uint16
	Samples         uint32

	// PrefetchLimit is the number of texture prefetches allowed, fragment only
	PrefetchLimit int
	numPrefetch   int
	ImageMapping  *variant.ImageMapping
	// CleanupRounds is the number of cleanup rounds run during Init
	CleanupRounds int

	err   *FatalError
	freed bool
}

// Init prepares the compile of variant v of shader sh for target c. The
// source program is cloned and cleaned up; sh is left untouched.
func Init(c *target.Compiler, sh *variant.Shader, v *variant.Variant) (*Context, error) {
	if c == nil || sh == nil || sh.NIR == nil || v == nil {
		return nil, fmt.Errorf("%w: missing compiler, shader or variant", ErrAllocation)
	}

	ctx := &Context{
		Compiler: c,
		Variant:  v,
		Stage:    sh.NIR.Stage,
		Name:     sh.Name,
		IR:       ir3.NewShader(),

		defs:           make(map[nir.DefID][]ir3.Ref),
		blocks:         make(map[*nir.Block]*ir3.Block),
		continueBlocks: make(map[*nir.Loop]*ir3.Block),
		addr1:          make(map[uint16]ir3.Ref),
		selCond:        make(map[ir3.Ref]ir3.Ref),
	}

	switch c.Gen {
	case 4:
		switch ctx.Stage {
		case nir.StageVertex:
			ctx.ASTCSRGB = v.Key.VASTCSRGB
			ctx.SamplerSwizzles = v.Key.VSamplerSwizzles
		case nir.StageFragment, nir.StageCompute:
			ctx.ASTCSRGB = v.Key.FASTCSRGB
			ctx.SamplerSwizzles = v.Key.FSamplerSwizzles
		}
	case 3:
		switch ctx.Stage {
		case nir.StageVertex:
			ctx.Samples = v.Key.VSamples
		case nir.StageFragment:
			ctx.Samples = v.Key.FSamples
		}
	}

	ctx.Funcs = c.Funcs()

	ctx.S = sh.NIR.Clone()
	fn := ctx.S.EntryPoint()
	if fn == nil {
		return nil, fmt.Errorf("%w: shader %q has no entry point", ErrAllocation, sh.Name)
	}

	(&nir.LowerVariant{Samples: v.Samples, UCPEnables: v.Key.UCPEnables}).Apply(ctx.S)

	// imul is lowered as late as possible; the cleanup loop then gets a
	// chance at the result
	if (&nir.LowerIMul{}).Apply(ctx.S) {
		rounds, err := nir.NewCleanupPipeline().RunUntilFixedPoint(ctx.S, nir.MaxCleanupRounds)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAllocation, err)
		}
		ctx.CleanupRounds = rounds

		// Algebraic unfuses ffma, fuse again
		(&nir.AlgebraicLate{}).Apply(ctx.S)
		(&nir.DeadCodeElimination{}).Apply(ctx.S)
	}

	if ctx.Stage == nir.StageFragment && c.HasFSTexPrefetch {
		(&nir.LowerTexPrefetch{}).Apply(ctx.S)
	}

	(&nir.LowerPhisToScalar{}).Apply(ctx.S)

	if ctx.Stage == nir.StageFragment {
		ctx.PrefetchLimit = c.Prefetch.Limit(fn.CountInstrs(), c.MaxSamplerPrefetch)
	}

	if c.Debug(ctx.Stage, ctx.S.Info.Internal) {
		log.Infof("NIR (final form) for %s shader %s:\n%s", ctx.Stage, ctx.Name, nir.Print(ctx.S))
	}

	ctx.ImageMapping = &v.ImageMapping
	ctx.ImageMapping.Init(ctx.S.Info.NumTextures)

	return ctx, nil
}

// Free releases everything owned by the context. Calling it again is a
// no-op; any other use afterwards is a fatal error.
func (ctx *Context) Free() {
	if ctx.freed {
		return
	}
	ctx.freed = true
	ctx.S = nil
	ctx.IR = nil
	ctx.Block = nil
	ctx.curInstr = nil
	ctx.defs = nil
	ctx.blocks = nil
	ctx.continueBlocks = nil
	ctx.addr0 = [4]map[ir3.Ref]ir3.Ref{}
	ctx.addr1 = nil
	ctx.selCond = nil
	ctx.lastDst = nil
	ctx.lastDstOpen = false
}

func (ctx *Context) check() {
	if ctx.freed {
		panic(&FatalError{Code: diag.ErrorInternal, Message: "use of a freed compile context"})
	}
}

// instr resolves a handle of the machine program
func (ctx *Context) instr(r ir3.Ref) *ir3.Instruction {
	return ctx.IR.Instr(r)
}

// SetCurrent records the source instruction being translated so fatal
// errors can point at it
func (ctx *Context) SetCurrent(instr *nir.Instr) {
	ctx.curInstr = instr
}

// BlockFor returns the machine block of a source block
func (ctx *Context) BlockFor(b *nir.Block) *ir3.Block {
	ctx.check()
	return ctx.blocks[b]
}

// ContinueBlock returns the machine block a loop continues in
func (ctx *Context) ContinueBlock(l *nir.Loop) *ir3.Block {
	ctx.check()
	return ctx.continueBlocks[l]
}

// bitsize maps source bit sizes to register widths. Booleans use the
// target's boolean width.
func (ctx *Context) bitsize(bits int) int {
	if bits == 1 {
		return ctx.Compiler.BoolBits
	}
	return bits
}
