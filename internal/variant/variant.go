package variant

import (
	"gpuc/internal/nir"
)

// NumSamplers is the number of samplers a key carries swizzles for
const NumSamplers = 16

// Key holds the pipeline state a shader variant is specialized for
type Key struct {
	// UCPEnables is the mask of enabled user clip planes
	UCPEnables uint8

	// Per stage texture state: ASTC formats sampled as sRGB and the
	// swizzle to apply to each sampler's result (a4xx)
	VASTCSRGB        uint16
	VSamplerSwizzles [NumSamplers]uint16
	FASTCSRGB        uint16
	FSamplerSwizzles [NumSamplers]uint16

	// Per stage mask of multisampled samplers (a3xx)
	VSamples uint32
	FSamples uint32
}

// Variant is one specialization of a shader. A Variant must not be
// shared between concurrent compiles.
type Variant struct {
	Name string
	Key  Key
	// Samples is the rasterization sample count, 0 if unknown
	Samples uint32

	ImageMapping ImageMapping
	// NumSamplerPrefetch is the number of texture prefetches emitted by
	// the last compile
	NumSamplerPrefetch int
}

// Shader is a source program together with its name
type Shader struct {
	Name string
	NIR  *nir.Shader
}

// NewShader wraps a parsed program
func NewShader(prog *nir.Shader) *Shader {
	return &Shader{Name: prog.Name, NIR: prog}
}

// Default returns the variant compiled when no configuration is given
func Default() *Variant {
	return &Variant{Name: "default"}
}

// Clone returns a copy of v that can be handed to another compile
func (v *Variant) Clone() *Variant {
	c := *v
	return &c
}
