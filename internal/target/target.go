package target

import (
	"fmt"

	"gpuc/internal/nir"
)

// MaxSamplerPrefetch is the hardware limit of texture prefetches per
// fragment shader
const MaxSamplerPrefetch = 4

// PrefetchThresholds picks how many texture prefetches a fragment shader
// may issue from its instruction count
type PrefetchThresholds struct {
	// Small shaders (fewer instructions than Small) get 2 prefetches
	Small int
	// Medium shaders (fewer instructions than Medium) get 3
	Medium int
}

// DefaultPrefetchThresholds are the thresholds used unless overridden
var DefaultPrefetchThresholds = PrefetchThresholds{Small: 50, Medium: 70}

// Limit returns the number of prefetches allowed for a shader of
// instrCount instructions
func (t PrefetchThresholds) Limit(instrCount, maxPrefetch int) int {
	switch {
	case instrCount < t.Small:
		return 2
	case instrCount < t.Medium:
		return 3
	}
	return maxPrefetch
}

// Compiler describes one GPU generation. It is immutable once built and
// may be shared between concurrent compiles.
type Compiler struct {
	Gen   int
	GPUID int

	HasFSTexPrefetch   bool
	MaxSamplerPrefetch int
	// BoolBits is the width of booleans produced by comparisons
	BoolBits int

	Prefetch PrefetchThresholds

	debugStages   map[nir.Stage]bool
	debugInternal bool
}

type genInfo struct {
	gpuID            int
	hasFSTexPrefetch bool
}

var generations = map[int]genInfo{
	3: {gpuID: 320},
	4: {gpuID: 420},
	5: {gpuID: 530},
	6: {gpuID: 630, hasFSTexPrefetch: true},
	7: {gpuID: 730, hasFSTexPrefetch: true},
}

// Option configures a Compiler
type Option func(*Compiler)

// WithPrefetchThresholds overrides DefaultPrefetchThresholds
func WithPrefetchThresholds(t PrefetchThresholds) Option {
	return func(c *Compiler) { c.Prefetch = t }
}

// WithTexPrefetch overrides the generation's fragment prefetch support
func WithTexPrefetch(enabled bool) Option {
	return func(c *Compiler) { c.HasFSTexPrefetch = enabled }
}

// WithDebug enables the final source dump for the given stages
func WithDebug(stages ...nir.Stage) Option {
	return func(c *Compiler) {
		for _, s := range stages {
			c.debugStages[s] = true
		}
	}
}

// WithDebugInternal extends debug dumps to internal shaders
func WithDebugInternal() Option {
	return func(c *Compiler) { c.debugInternal = true }
}

// New returns the description of GPU generation gen
func New(gen int, opts ...Option) (*Compiler, error) {
	info, ok := generations[gen]
	if !ok {
		return nil, fmt.Errorf("unsupported GPU generation a%dxx", gen)
	}
	c := &Compiler{
		Gen:                gen,
		GPUID:              info.gpuID,
		HasFSTexPrefetch:   info.hasFSTexPrefetch,
		MaxSamplerPrefetch: MaxSamplerPrefetch,
		BoolBits:           32,
		Prefetch:           DefaultPrefetchThresholds,
		debugStages:        make(map[nir.Stage]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.Prefetch.Small > c.Prefetch.Medium {
		return nil, fmt.Errorf("prefetch thresholds out of order: small %d > medium %d",
			c.Prefetch.Small, c.Prefetch.Medium)
	}
	return c, nil
}

// Generations lists the supported generations in ascending order
func Generations() []int {
	return []int{3, 4, 5, 6, 7}
}

// Debug reports whether shaders of stage should be dumped
func (c *Compiler) Debug(stage nir.Stage, internal bool) bool {
	if internal && !c.debugInternal {
		return false
	}
	return c.debugStages[stage]
}

// Funcs returns the memory access table for the generation, nil before a4xx
func (c *Compiler) Funcs() Funcs {
	switch {
	case c.Gen >= 6:
		return A6xxFuncs{}
	case c.Gen >= 4:
		return A4xxFuncs{}
	}
	return nil
}
