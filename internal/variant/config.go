package variant

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is a variant configuration file
type Config struct {
	// Gen is the GPU generation from [target], 0 when not given
	Gen      int
	Variants []*Variant
}

type fileConfig struct {
	Target  targetConfig    `toml:"target"`
	Variant []variantConfig `toml:"variant"`
}

type targetConfig struct {
	Gen int `toml:"gen"`
}

type variantConfig struct {
	Name    string    `toml:"name"`
	Samples uint32    `toml:"samples"`
	Key     keyConfig `toml:"key"`
}

type keyConfig struct {
	UCPEnables       uint8    `toml:"ucp_enables"`
	VASTCSRGB        uint16   `toml:"vastc_srgb"`
	VSamplerSwizzles []uint16 `toml:"vsampler_swizzles"`
	FASTCSRGB        uint16   `toml:"fastc_srgb"`
	FSamplerSwizzles []uint16 `toml:"fsampler_swizzles"`
	VSamples         uint32   `toml:"vsamples"`
	FSamples         uint32   `toml:"fsamples"`
}

// LoadFile reads a variant configuration
func LoadFile(path string) (*Config, error) {
	var cfg fileConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	return fromFile(path, cfg, meta)
}

// Decode parses a variant configuration held in memory
func Decode(name, data string) (*Config, error) {
	var cfg fileConfig
	meta, err := toml.Decode(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", name, err)
	}
	return fromFile(name, cfg, meta)
}

func fromFile(path string, cfg fileConfig, meta toml.MetaData) (*Config, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if !meta.IsDefined("variant") || len(cfg.Variant) == 0 {
		return nil, fmt.Errorf("%s: missing [[variant]]", path)
	}

	out := &Config{}
	if meta.IsDefined("target", "gen") {
		out.Gen = cfg.Target.Gen
	}

	seen := make(map[string]bool)
	for i, vc := range cfg.Variant {
		name := strings.TrimSpace(vc.Name)
		if name == "" {
			return nil, fmt.Errorf("%s: [[variant]] #%d: missing name", path, i+1)
		}
		if seen[name] {
			return nil, fmt.Errorf("%s: duplicate variant %q", path, name)
		}
		seen[name] = true

		v := &Variant{Name: name, Samples: vc.Samples}
		k := vc.Key
		v.Key = Key{
			UCPEnables: k.UCPEnables,
			VASTCSRGB:  k.VASTCSRGB,
			FASTCSRGB:  k.FASTCSRGB,
			VSamples:   k.VSamples,
			FSamples:   k.FSamples,
		}
		if err := copySwizzles(&v.Key.VSamplerSwizzles, k.VSamplerSwizzles); err != nil {
			return nil, fmt.Errorf("%s: variant %q: vsampler_swizzles: %w", path, name, err)
		}
		if err := copySwizzles(&v.Key.FSamplerSwizzles, k.FSamplerSwizzles); err != nil {
			return nil, fmt.Errorf("%s: variant %q: fsampler_swizzles: %w", path, name, err)
		}
		out.Variants = append(out.Variants, v)
	}
	return out, nil
}

func copySwizzles(dst *[NumSamplers]uint16, src []uint16) error {
	if len(src) > NumSamplers {
		return fmt.Errorf("%d entries, at most %d samplers", len(src), NumSamplers)
	}
	copy(dst[:], src)
	return nil
}
