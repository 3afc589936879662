package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"gpuc/internal/ir3"
)

const sampleCount = `shader fragment "count" {
 function main entry {
  block b0 {
   %0 = vec1 32 load_sample_count;
   store_output %0 [base=0];
  }
 }
}`

const variants = `[target]
gen = 5

[[variant]]
name = "msaa4"
samples = 4

[[variant]]
name = "msaa2"
samples = 2
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// run executes the CLI with every compile flag reset to its default
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	for _, name := range []string{"gen", "stage", "variant", "emit", "output", "jobs", "debug", "no-prefetch"} {
		f := compileCmd.Flags().Lookup(name)
		require.NoError(t, f.Value.Set(f.DefValue))
		f.Changed = false
	}

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(append([]string{"--color", "off"}, args...))
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestCompileVariantsFromConfig(t *testing.T) {
	src := writeFile(t, "count.nir", sampleCount)
	cfg := writeFile(t, "variants.toml", variants)

	stdout, _, err := run(t, "compile", src, "--variant", cfg)
	require.NoError(t, err)
	assert.Contains(t, stdout, "; variant msaa4\n")
	assert.Contains(t, stdout, "; variant msaa2\n")
	assert.Contains(t, stdout, "outputs:")
}

func TestCompileReportsFatalError(t *testing.T) {
	src := writeFile(t, "count.nir", sampleCount)

	stdout, stderr, err := run(t, "compile", src)
	require.Error(t, err)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "unsupported instruction load_sample_count")
	assert.Contains(t, stderr, "// error: unsupported instruction load_sample_count")
	assert.Contains(t, stderr, "1 of 1 variants failed")
}

func TestCompileReportsParseError(t *testing.T) {
	src := writeFile(t, "bad.nir", "shader fragment {\n function main entry {\n  block b0 {\n   %0 = ;\n")

	_, stderr, err := run(t, "compile", src)
	require.Error(t, err)
	assert.Contains(t, stderr, "Syntax error at line 4")
}

func TestCompileEmitNIR(t *testing.T) {
	src := writeFile(t, "count.nir", sampleCount)

	stdout, _, err := run(t, "compile", src, "--emit", "nir", "--stage", "vertex")
	require.NoError(t, err)
	assert.Contains(t, stdout, "shader vertex")
	assert.Contains(t, stdout, "load_sample_count")
}

func TestCompileEmitMsgpackToFile(t *testing.T) {
	src := writeFile(t, "count.nir", sampleCount)
	cfg := writeFile(t, "variants.toml", variants)
	out := filepath.Join(t.TempDir(), "count.ir3")

	_, stderr, err := run(t, "compile", src, "--variant", cfg, "--emit", "msgpack", "-o", out, "--jobs", "1")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Compiled 2 variants")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	for i := 0; i < 2; i++ {
		var snap ir3.Snapshot
		require.NoError(t, dec.Decode(&snap))
		assert.Len(t, snap.Outputs, 1)
	}
}

func TestCompileRejectsBadFlags(t *testing.T) {
	src := writeFile(t, "count.nir", sampleCount)

	_, _, err := run(t, "compile", src, "--emit", "elf")
	assert.ErrorContains(t, err, `unknown --emit value "elf"`)

	_, _, err = run(t, "compile", src, "--gen", "9")
	assert.Error(t, err)
}

func TestUseColor(t *testing.T) {
	on, err := useColor("on")
	require.NoError(t, err)
	assert.True(t, on)

	on, err = useColor("OFF")
	require.NoError(t, err)
	assert.False(t, on)

	_, err = useColor("sometimes")
	assert.ErrorContains(t, err, "invalid --color value")
}

func TestOpsListsInstructionSet(t *testing.T) {
	stdout, _, err := run(t, "ops")
	require.NoError(t, err)
	assert.Contains(t, stdout, "fadd")
	assert.Contains(t, stdout, "store_output")
}
