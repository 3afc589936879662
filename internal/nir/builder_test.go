package nir

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, src string) *Shader {
	t.Helper()
	sh, err := Parse("test.nir", src)
	require.NoError(t, err)
	return sh
}

const vecAdd = `shader fragment "add" {
  function main entry {
    block b0 {
      %0 = vec4 32 load_input [base=0];
      %1 = vec4 32 load_input [base=1];
      %2 = vec4 32 fadd %0, %1;
      store_output %2 [base=0];
    }
  }
}`

func TestBuildVecAdd(t *testing.T) {
	sh := mustParse(t, vecAdd)

	assert.Equal(t, "add", sh.Name)
	assert.Equal(t, StageFragment, sh.Stage)

	fn := sh.EntryPoint()
	require.NotNil(t, fn)
	require.Len(t, fn.Blocks, 1)

	b := fn.Blocks[0]
	require.Len(t, b.Instrs, 4)
	require.NotNil(t, b.Term)
	assert.Equal(t, TermReturn, b.Term.Kind)

	add := b.Instrs[2]
	assert.Equal(t, OpFAdd, add.Op)
	assert.Equal(t, 4, add.Def.NumComponents)
	assert.Equal(t, 32, add.Def.BitSize)
	assert.Same(t, add, add.Def.Parent)
	assert.Same(t, b.Instrs[0].Def, add.Srcs[0].SSA)
	assert.Equal(t, IdentitySwizzle, add.Srcs[1].Swizzle)
	assert.Equal(t, 1, b.Instrs[1].Indices.Base)
	assert.Equal(t, 6, add.Line)
}

func TestBuildSwizzleAndConstants(t *testing.T) {
	sh := mustParse(t, `shader vertex {
  function main entry {
    block b0 {
      %0 = vec3 32 load_const (1.0, -1, 0x10);
      %1 = vec2 16 load_const (-1, 3);
      %2 = vec4 32 fmul %0.zy, %0.x;
      store_output %2 [base=0, wrmask=0x3];
    }
  }
}`)
	instrs := sh.EntryPoint().Blocks[0].Instrs
	assert.Equal(t, []uint64{uint64(math.Float32bits(1.0)), 0xffffffff, 0x10}, instrs[0].Consts)
	assert.Equal(t, []uint64{0xffff, 3}, instrs[1].Consts)
	assert.Equal(t, [4]uint8{2, 1, 1, 1}, instrs[2].Srcs[0].Swizzle)
	assert.Equal(t, [4]uint8{0, 0, 0, 0}, instrs[2].Srcs[1].Swizzle)
	assert.Equal(t, uint8(0x3), instrs[3].Indices.WriteMask)
}

func TestBuildControlFlow(t *testing.T) {
	sh := mustParse(t, `shader compute {
  function main entry {
    block b0 {
      %0 = vec1 32 load_const (0);
    }
    block b1 {
      %1 = vec1 32 phi b0:%0, b2:%3;
      %2 = vec1 1 ine %1, %0;
      br_if %2, b2, b3;
    }
    block b2 {
      %3 = vec1 32 iadd %1, %1;
      br b1;
    }
    block b3 {
    }
    loop b1 continue b2;
  }
}`)
	fn := sh.EntryPoint()
	require.Len(t, fn.Blocks, 4)
	b0, b1, b2, b3 := fn.Blocks[0], fn.Blocks[1], fn.Blocks[2], fn.Blocks[3]

	assert.Equal(t, TermJump, b0.Term.Kind, "fallthrough becomes a jump")
	assert.Equal(t, []*Block{b1}, b0.Succs)
	assert.Equal(t, TermBranch, b1.Term.Kind)
	assert.Same(t, b1.Instrs[1].Def, b1.Term.Cond.SSA)
	assert.Equal(t, []*Block{b2, b3}, b1.Succs)
	assert.ElementsMatch(t, []*Block{b0, b2}, b1.Preds)
	assert.Equal(t, TermReturn, b3.Term.Kind)

	phi := b1.Instrs[0]
	assert.Equal(t, []*Block{b0, b2}, phi.PhiPreds)
	assert.Same(t, b2.Instrs[0].Def, phi.Srcs[1].SSA, "phi may reference a later def")

	require.Len(t, fn.Loops, 1)
	assert.Same(t, b1, fn.Loops[0].Header)
	assert.Same(t, fn.Loops[0], fn.LoopForContinue(b2))
	assert.Nil(t, fn.LoopForContinue(b3))
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"undefined value", `%1 = vec1 32 mov %7;`, "undefined value %7"},
		{"unknown op", `%1 = vec1 32 frobnicate;`, `unknown operation "frobnicate"`},
		{"duplicate def", `%1 = vec1 32 load_const (0); %1 = vec1 32 load_const (1);`, "defined twice"},
		{"bad bit size", `%1 = vec1 7 load_const (0);`, "bad bit size 7"},
		{"source count", `%1 = vec1 32 load_const (0); %2 = vec1 32 fadd %1;`, "fadd takes 2 sources, got 1"},
		{"const count", `%1 = vec2 32 load_const (0);`, "load_const needs 2 values, got 1"},
		{"missing dest", `load_const (0);`, "load_const needs a destination"},
		{"wrmask range", `%1 = vec1 32 load_const (0); store_output %1 [wrmask=16];`, "write mask 16 out of range"},
		{"unknown index", `%1 = vec1 32 load_const (0); store_output %1 [colour=1];`, `unknown index "colour"`},
		{"after terminator", `ret; %1 = vec1 32 load_const (0);`, "instruction after terminator"},
		{"unknown block", `br b9;`, "unknown block b9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := "shader vertex {\n function main entry {\n  block b0 {\n" + tt.body + "\n  }\n }\n}"
			_, err := Parse("err.nir", src)
			require.Error(t, err)

			var errs BuildErrors
			require.True(t, errors.As(err, &errs))
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, 4, errs[0].Line)
		})
	}
}

func TestBuildUnknownStage(t *testing.T) {
	_, err := Parse("stage.nir", `shader raygen { function main entry { block b0 { } } }`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown shader stage "raygen"`)
}

func TestParseStage(t *testing.T) {
	for name, want := range map[string]Stage{
		"vs": StageVertex, "fragment": StageFragment, "FS": StageFragment,
		"comp": StageCompute, "tcs": StageTessCtrl, "gs": StageGeometry,
	} {
		got, err := ParseStage(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	assert.Equal(t, "tess_eval", StageTessEval.String())
	assert.Equal(t, "stage(42)", Stage(42).String())
}

func TestNewDefAfterParse(t *testing.T) {
	sh := mustParse(t, vecAdd)
	d := sh.NewDef(1, 32)
	assert.Equal(t, DefID(3), d.ID, "fresh defs never collide with parsed ids")
}

func TestClone(t *testing.T) {
	sh := mustParse(t, `shader compute {
  function main entry {
    block b0 {
      %0 = vec1 32 load_const (0);
      %1 = vec1 1 ieq %0, %0;
      br_if %1, b1, b2;
    }
    block b1 {
      br b0;
    }
    block b2 {
      ret;
    }
    loop b0 continue b1;
  }
}`)
	c := sh.Clone()
	require.Equal(t, Print(sh), Print(c))

	orig := sh.EntryPoint()
	dup := c.EntryPoint()
	assert.NotSame(t, orig.Blocks[0], dup.Blocks[0])
	assert.NotSame(t, orig.Blocks[0].Instrs[0].Def, dup.Blocks[0].Instrs[0].Def)
	assert.Same(t, dup.Blocks[0].Instrs[0].Def, dup.Blocks[0].Instrs[1].Srcs[0].SSA)
	assert.Same(t, dup.Blocks[0].Instrs[1].Def, dup.Blocks[0].Term.Cond.SSA)
	assert.Same(t, dup.Blocks[1], dup.Loops[0].Continue)
	assert.Same(t, dup.Blocks[0], dup.Blocks[1].Succs[0])

	// mutating the copy leaves the original alone
	dup.Blocks[0].Instrs[0].Consts[0] = 7
	assert.Equal(t, uint64(0), orig.Blocks[0].Instrs[0].Consts[0])
}
