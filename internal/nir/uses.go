package nir

// UseCounts returns how many times each def is read, including reads by
// block terminators
func (s *Shader) UseCounts() map[*Def]int {
	uses := make(map[*Def]int)
	for _, fn := range s.Functions {
		for _, b := range fn.Blocks {
			for _, instr := range b.Instrs {
				for _, src := range instr.Srcs {
					if src.SSA != nil {
						uses[src.SSA]++
					}
				}
			}
			if b.Term != nil && b.Term.Cond.SSA != nil {
				uses[b.Term.Cond.SSA]++
			}
		}
	}
	return uses
}

// RewriteUses replaces every read of old with repl, composing swizzles so
// that each channel still reads the same logical component
func (s *Shader) RewriteUses(old *Def, repl Src) bool {
	changed := false
	rewrite := func(src *Src) {
		if src.SSA != old {
			return
		}
		*src = repl.Compose(src.Swizzle)
		changed = true
	}
	for _, fn := range s.Functions {
		for _, b := range fn.Blocks {
			for _, instr := range b.Instrs {
				for i := range instr.Srcs {
					rewrite(&instr.Srcs[i])
				}
			}
			if b.Term != nil {
				rewrite(&b.Term.Cond)
			}
		}
	}
	return changed
}

// ConstValue returns the constant read by channel ch of src when src is
// produced by load_const
func ConstValue(src Src, ch int) (uint64, bool) {
	if src.SSA == nil || src.SSA.Parent == nil || src.SSA.Parent.Op != OpLoadConst {
		return 0, false
	}
	c := src.Component(ch)
	consts := src.SSA.Parent.Consts
	if c >= len(consts) {
		return 0, false
	}
	return consts[c], true
}

// UniformConst reports whether every channel of src in [0,n) reads the
// same constant, and returns it
func UniformConst(src Src, n int) (uint64, bool) {
	v, ok := ConstValue(src, 0)
	if !ok {
		return 0, false
	}
	for ch := 1; ch < n; ch++ {
		w, ok := ConstValue(src, ch)
		if !ok || w != v {
			return 0, false
		}
	}
	return v, true
}
