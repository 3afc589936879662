package nir

// Clone returns a deep copy of the shader. Defs, instructions and blocks
// of the copy are distinct objects with the same ids, so tables keyed by
// pointer on the copy never alias the original.
func (s *Shader) Clone() *Shader {
	c := &Shader{
		Name:    s.Name,
		Stage:   s.Stage,
		Info:    s.Info,
		nextDef: s.nextDef,
		nextIdx: s.nextIdx,
	}

	defs := make(map[*Def]*Def)
	blocks := make(map[*Block]*Block)

	mapDef := func(d *Def) *Def {
		if d == nil {
			return nil
		}
		if nd, ok := defs[d]; ok {
			return nd
		}
		nd := &Def{ID: d.ID, NumComponents: d.NumComponents, BitSize: d.BitSize}
		defs[d] = nd
		return nd
	}
	mapSrc := func(src Src) Src {
		return Src{SSA: mapDef(src.SSA), Swizzle: src.Swizzle}
	}

	for _, fn := range s.Functions {
		nf := &Function{Name: fn.Name, EntryPoint: fn.EntryPoint}
		for _, b := range fn.Blocks {
			nb := &Block{Index: b.Index, Label: b.Label, Func: nf}
			blocks[b] = nb
			nf.Blocks = append(nf.Blocks, nb)
		}
		c.Functions = append(c.Functions, nf)
	}

	for _, fn := range s.Functions {
		for _, b := range fn.Blocks {
			nb := blocks[b]
			for _, p := range b.Preds {
				nb.Preds = append(nb.Preds, blocks[p])
			}
			for _, succ := range b.Succs {
				nb.Succs = append(nb.Succs, blocks[succ])
			}
			for _, instr := range b.Instrs {
				ni := &Instr{
					Index:   instr.Index,
					Op:      instr.Op,
					Indices: instr.Indices,
					Line:    instr.Line,
				}
				if instr.Def != nil {
					ni.Def = mapDef(instr.Def)
					ni.Def.Parent = ni
				}
				for _, src := range instr.Srcs {
					ni.Srcs = append(ni.Srcs, mapSrc(src))
				}
				if len(instr.Consts) > 0 {
					ni.Consts = append([]uint64(nil), instr.Consts...)
				}
				for _, p := range instr.PhiPreds {
					ni.PhiPreds = append(ni.PhiPreds, blocks[p])
				}
				nb.Append(ni)
			}
			if b.Term != nil {
				nt := &Terminator{Kind: b.Term.Kind}
				if b.Term.Cond.SSA != nil {
					nt.Cond = mapSrc(b.Term.Cond)
				}
				for _, t := range b.Term.Targets {
					nt.Targets = append(nt.Targets, blocks[t])
				}
				nb.Term = nt
			}
		}
	}

	for i, fn := range s.Functions {
		for _, l := range fn.Loops {
			c.Functions[i].Loops = append(c.Functions[i].Loops, &Loop{
				Header:   blocks[l.Header],
				Continue: blocks[l.Continue],
			})
		}
	}

	return c
}
