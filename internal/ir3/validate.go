package ir3

import (
	"errors"
	"fmt"
)

// ValidationError describes one malformed instruction
type ValidationError struct {
	Instr   Ref
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("instruction %%%d: %s", e.Instr, e.Message)
}

// Validate checks structural properties of a finished machine program.
// All problems are returned joined.
func Validate(sh *Shader) error {
	var errs []error
	report := func(instr *Instruction, format string, args ...any) {
		errs = append(errs, &ValidationError{Instr: instr.ref, Message: fmt.Sprintf(format, args...)})
	}

	arrays := make(map[int]*Array, len(sh.Arrays))
	for _, a := range sh.Arrays {
		arrays[a.ID] = a
	}

	for _, b := range sh.Blocks {
		for _, r := range b.Instrs {
			instr := sh.Instr(r)
			if instr.Block != b {
				report(instr, "listed in block%d but owned by another block", b.Index)
			}

			for _, d := range instr.Dsts {
				validateArrayReg(d, arrays, instr, report)
				if d.Flags&RegSSA != 0 && d.Num == P0X {
					report(instr, "predicate register written as SSA")
				}
			}

			for i, s := range instr.Srcs {
				validateArrayReg(s, arrays, instr, report)
				if s.Flags&RegSSA == 0 || s.Flags&RegArray != 0 {
					continue
				}
				def := sh.Instr(s.Def)
				if def == nil {
					report(instr, "source %d has no producer", i)
					continue
				}
				if len(def.Dsts) == 0 {
					report(instr, "source %d reads %s which has no destination", i, refName(def))
				}
			}

			if instr.Opc == OpcMetaCollect {
				want := MaskOf(len(instr.Srcs))
				if instr.Dst().Wrmask != want {
					report(instr, "collect of %d values has wrmask 0x%x", len(instr.Srcs), instr.Dst().Wrmask)
				}
			}

			if instr.Address != NoRef {
				addr := sh.Instr(instr.Address)
				if n := addr.Dst().Num; n != A0X && n != A1X {
					report(instr, "address producer %s does not write a0.x or a1.x", refName(addr))
				}
			}
		}
	}
	return errors.Join(errs...)
}

func validateArrayReg(r *Register, arrays map[int]*Array, instr *Instruction,
	report func(*Instruction, string, ...any)) {
	if r.Flags&RegArray == 0 {
		return
	}
	arr, ok := arrays[r.Array.ID]
	if r.Array.ID <= 0 || !ok {
		report(instr, "array register refers to unknown array %d", r.Array.ID)
		return
	}
	if r.Flags&RegRelativ == 0 && (r.Array.Offset < 0 || r.Array.Offset >= arr.Length) {
		report(instr, "array offset %d outside array %d of length %d", r.Array.Offset, arr.ID, arr.Length)
	}
}
