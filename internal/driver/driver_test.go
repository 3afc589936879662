package driver

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	diag "gpuc/internal/errors"
	"gpuc/internal/ir3"
	"gpuc/internal/nir"
	"gpuc/internal/target"
	"gpuc/internal/variant"
)

const sampleCount = `shader fragment "count" {
 function main entry {
  block b0 {
      %0 = vec1 32 load_sample_count;
      store_output %0 [base=0];
  }
 }
}`

func newCompiler(t *testing.T) *target.Compiler {
	t.Helper()
	c, err := target.New(6)
	require.NoError(t, err)
	return c
}

func withSamples(name string, samples uint32) *variant.Variant {
	v := variant.Default()
	v.Name = name
	v.Samples = samples
	return v
}

func TestCompileVariantsKeepsOrder(t *testing.T) {
	prog, err := ParseSource("count.nir", sampleCount, Options{})
	require.NoError(t, err)

	variants := []*variant.Variant{
		withSamples("msaa4", 4),
		withSamples("unknown", 0),
		withSamples("msaa2", 2),
	}
	results, err := CompileVariants(context.Background(), newCompiler(t), variant.NewShader(prog), variants, Options{Jobs: 2})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "msaa4", results[0].Variant)
	assert.False(t, results[0].Failed())
	assert.Contains(t, results[0].Listing, "mov")

	assert.Equal(t, "unknown", results[1].Variant)
	require.True(t, results[1].Failed())
	require.NotNil(t, results[1].Diagnostic)
	assert.Equal(t, diag.ErrorUnsupported, results[1].Diagnostic.Code)
	assert.Equal(t, 4, results[1].Diagnostic.Position.Line)
	assert.Contains(t, results[1].Dump, "// error: unsupported instruction load_sample_count")
	assert.Empty(t, results[1].Listing)

	assert.Equal(t, "msaa2", results[2].Variant)
	assert.False(t, results[2].Failed())

	err = Errors(results)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "variant unknown")
	assert.NotContains(t, err.Error(), "msaa4")
}

func TestCompileVariantsDoesNotTouchInputs(t *testing.T) {
	prog, err := ParseSource("count.nir", sampleCount, Options{})
	require.NoError(t, err)
	before := nir.Print(prog)

	v := withSamples("msaa4", 4)
	_, err = CompileVariants(context.Background(), newCompiler(t), variant.NewShader(prog), []*variant.Variant{v}, Options{})
	require.NoError(t, err)

	assert.Equal(t, before, nir.Print(prog))
	assert.Zero(t, v.NumSamplerPrefetch)
	assert.Equal(t, uint32(4), v.Samples)
}

func TestCompileVariantsDefaultVariant(t *testing.T) {
	prog, err := ParseSource("count.nir", sampleCount, Options{})
	require.NoError(t, err)

	results, err := CompileVariants(context.Background(), newCompiler(t), variant.NewShader(prog), nil, Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "default", results[0].Variant)
	assert.True(t, results[0].Failed())
}

func TestCompileVariantsCancelled(t *testing.T) {
	prog, err := ParseSource("count.nir", sampleCount, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = CompileVariants(ctx, newCompiler(t), variant.NewShader(prog), []*variant.Variant{withSamples("a", 4)}, Options{Jobs: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompileVariantsSnapshot(t *testing.T) {
	prog, err := ParseSource("count.nir", sampleCount, Options{})
	require.NoError(t, err)

	results, err := CompileVariants(context.Background(), newCompiler(t), variant.NewShader(prog),
		[]*variant.Variant{withSamples("msaa4", 4)}, Options{Snapshot: true})
	require.NoError(t, err)
	require.False(t, results[0].Failed())
	require.NotEmpty(t, results[0].Snapshot)

	snap, err := ir3.DecodeSnapshot(bytes.NewReader(results[0].Snapshot))
	require.NoError(t, err)
	assert.Len(t, snap.Blocks, 1)
	assert.Len(t, snap.Outputs, 1)
}

func TestParseSourceStageOverride(t *testing.T) {
	prog, err := ParseSource("count.nir", sampleCount, Options{Stage: "vs"})
	require.NoError(t, err)
	assert.Equal(t, nir.StageVertex, prog.Stage)

	_, err = ParseSource("count.nir", sampleCount, Options{Stage: "pixel"})
	assert.ErrorContains(t, err, `unknown shader stage "pixel"`)
}

func TestCompileFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "count.nir")
	require.NoError(t, os.WriteFile(path, []byte(sampleCount), 0o644))

	results, err := CompileFile(context.Background(), newCompiler(t), path,
		[]*variant.Variant{withSamples("msaa4", 4)}, Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NoError(t, Errors(results))

	_, err = CompileFile(context.Background(), newCompiler(t), filepath.Join(t.TempDir(), "missing.nir"), nil, Options{})
	assert.ErrorContains(t, err, "failed to read file")
}

func TestSourceErrors(t *testing.T) {
	_, err := ParseSource("bad.nir", "shader fragment {\n function main entry {\n  block b0 {\n   %0 = ;\n", Options{})
	errs := SourceErrors(err)
	require.Len(t, errs, 1)
	assert.Equal(t, diag.ErrorSyntax, errs[0].Code)
	assert.Equal(t, 4, errs[0].Position.Line)

	_, err = ParseSource("typo.nir", `shader vertex {
 function main entry {
  block b0 {
   %0 = vec1 32 fadd_x %1, %1;
  }
 }
}`, Options{})
	errs = SourceErrors(err)
	require.NotEmpty(t, errs)
	assert.Equal(t, diag.ErrorUnknownOperation, errs[0].Code)
	assert.Equal(t, 4, errs[0].Position.Line)
	require.Len(t, errs[0].Suggestions, 1)
	assert.Contains(t, errs[0].Suggestions[0], "'fadd'")

	errs = SourceErrors(assert.AnError)
	require.Len(t, errs, 1)
	assert.Equal(t, diag.ErrorBuild, errs[0].Code)

	assert.Nil(t, SourceErrors(nil))
}
