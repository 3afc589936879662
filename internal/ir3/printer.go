package ir3

import (
	"fmt"
	"strings"
)

// Printer renders a machine program as a listing
type Printer struct {
	indent int
	output strings.Builder
	shader *Shader
}

// NewPrinter creates a new listing printer
func NewPrinter(sh *Shader) *Printer {
	return &Printer{indent: 0, shader: sh}
}

// Print returns the listing of a machine program
func Print(sh *Shader) string {
	p := NewPrinter(sh)
	p.printShader()
	return p.output.String()
}

func (p *Printer) writeIndent() {
	for i := 0; i < p.indent; i++ {
		p.output.WriteString("  ")
	}
}

func (p *Printer) writeLine(format string, args ...interface{}) {
	p.writeIndent()
	p.output.WriteString(fmt.Sprintf(format, args...))
	p.output.WriteString("\n")
}

func (p *Printer) printShader() {
	for _, arr := range p.shader.Arrays {
		half := ""
		if arr.Half {
			half = " half"
		}
		p.writeLine("array %d: length=%d%s", arr.ID, arr.Length, half)
	}
	for _, b := range p.shader.Blocks {
		p.printBlock(b)
	}
	if len(p.shader.Outputs) > 0 {
		outs := make([]string, len(p.shader.Outputs))
		for i, r := range p.shader.Outputs {
			outs[i] = refName(p.shader.Instr(r))
		}
		p.writeLine("outputs: %s", strings.Join(outs, ", "))
	}
}

func (p *Printer) printBlock(b *Block) {
	label := ""
	if b.Label != "" {
		label = " (" + b.Label + ")"
	}
	p.writeLine("block%d%s:", b.Index, label)
	p.indent++
	for _, r := range b.Instrs {
		instr := p.shader.Instr(r)
		line := FormatInstruction(instr)
		if b.IsKept(r) {
			line += " [keep]"
		}
		p.writeLine("%s", line)
	}
	if len(b.Succs) > 0 {
		succs := make([]string, len(b.Succs))
		for i, s := range b.Succs {
			succs[i] = fmt.Sprintf("block%d", s.Index)
		}
		cond := ""
		if b.Condition != NoRef {
			cond = " if " + refName(p.shader.Instr(b.Condition))
		}
		p.writeLine("-> %s%s", strings.Join(succs, ", "), cond)
	}
	p.indent--
}

func refName(instr *Instruction) string {
	if instr == nil {
		return "_"
	}
	if d := instr.Dst(); d != nil && isFixed(d.Num) {
		return fixedRegName(d.Num)
	}
	return fmt.Sprintf("%%%d", instr.ref)
}

func isFixed(num uint16) bool {
	return num == A0X || num == A1X || num == P0X
}

func fixedRegName(num uint16) string {
	const comps = "xyzw"
	n, c := num>>2, num&3
	switch n {
	case RegA0:
		return fmt.Sprintf("a%d.x", c)
	case RegP0:
		return "p0." + string(comps[c])
	}
	return fmt.Sprintf("r%d.%c", n, comps[c])
}

// FormatInstruction renders a single instruction
func FormatInstruction(instr *Instruction) string {
	var sb strings.Builder

	if len(instr.Dsts) > 0 {
		dsts := make([]string, len(instr.Dsts))
		for i, d := range instr.Dsts {
			dsts[i] = formatReg(d, instr, true)
		}
		sb.WriteString(strings.Join(dsts, ", "))
		sb.WriteString(" = ")
	}

	sb.WriteString(instr.Opc.String())
	switch {
	case instr.Opc == OpcMov:
		sb.WriteString("." + instr.Cat1.SrcType.String() + instr.Cat1.DstType.String())
	case instr.Opc == OpcCmpsS || instr.Opc == OpcCmpsF:
		sb.WriteString("." + instr.Cat2.Condition.String())
	case instr.Opc.Cat() == 6:
		sb.WriteString("." + instr.Cat6.Type.String())
	}

	if len(instr.Srcs) > 0 {
		srcs := make([]string, len(instr.Srcs))
		for i, s := range instr.Srcs {
			srcs[i] = formatReg(s, instr, false)
		}
		sb.WriteString(" " + strings.Join(srcs, ", "))
	}

	var attrs []string
	switch instr.Opc {
	case OpcMetaSplit:
		attrs = append(attrs, fmt.Sprintf("off=%d", instr.Split.Off))
	case OpcMetaInput:
		attrs = append(attrs, fmt.Sprintf("base=%d", instr.Input.Base))
	case OpcMetaTexPrefetch:
		attrs = append(attrs, fmt.Sprintf("input=%d", instr.Prefetch.Input))
	}
	if instr.Opc == OpcSam || instr.Opc == OpcMetaTexPrefetch {
		attrs = append(attrs, fmt.Sprintf("tex=%d", instr.Cat5.Tex), fmt.Sprintf("samp=%d", instr.Cat5.Samp))
	}
	if instr.Opc.Cat() == 6 && instr.Opc != OpcLdc {
		attrs = append(attrs, fmt.Sprintf("ibo=%d", instr.Cat6.IBO))
	}
	if instr.Address != NoRef {
		attrs = append(attrs, "addr="+refName(instr.Block.Shader.Instr(instr.Address)))
	}
	if instr.BarrierClass != 0 {
		attrs = append(attrs, "barrier="+formatBarrier(instr.BarrierClass)+"/"+formatBarrier(instr.BarrierConflict))
	}
	if d := instr.Dst(); d != nil && d.Wrmask > 1 {
		attrs = append(attrs, fmt.Sprintf("wrmask=0x%x", d.Wrmask))
	}
	if len(attrs) > 0 {
		sb.WriteString(" (" + strings.Join(attrs, ", ") + ")")
	}
	return sb.String()
}

func formatBarrier(b Barrier) string {
	var parts []string
	if b&BarrierArrayR != 0 {
		parts = append(parts, "ar")
	}
	if b&BarrierArrayW != 0 {
		parts = append(parts, "aw")
	}
	if b&BarrierBufferR != 0 {
		parts = append(parts, "br")
	}
	if b&BarrierBufferW != 0 {
		parts = append(parts, "bw")
	}
	return strings.Join(parts, "|")
}

func formatReg(r *Register, instr *Instruction, dst bool) string {
	var sb strings.Builder
	if r.Flags&RegFNeg != 0 || r.Flags&RegSNeg != 0 {
		sb.WriteString("-")
	}
	if r.Flags&RegHalf != 0 {
		sb.WriteString("h")
	}
	switch {
	case r.Flags&RegImmed != 0:
		sb.WriteString(fmt.Sprintf("(0x%x)", r.Iim))
	case r.Flags&RegConst != 0:
		if r.Flags&RegRelativ != 0 {
			sb.WriteString(fmt.Sprintf("c<a0.x + %d>", r.Num))
		} else {
			sb.WriteString(fmt.Sprintf("c%d.%c", r.Num>>2, "xyzw"[r.Num&3]))
		}
	case r.Flags&RegArray != 0:
		if r.Flags&RegRelativ != 0 {
			sb.WriteString(fmt.Sprintf("arr[id=%d, a0.x + %d, size=%d]", r.Array.ID, r.Array.Offset, r.Size))
		} else {
			sb.WriteString(fmt.Sprintf("arr[id=%d, offset=%d, size=%d]", r.Array.ID, r.Array.Offset, r.Size))
		}
		if !dst && r.Def != NoRef {
			sb.WriteString(fmt.Sprintf("<-%%%d", r.Def))
		}
	case dst && isFixed(r.Num):
		sb.WriteString(fixedRegName(r.Num))
	case r.Flags&RegSSA != 0:
		if dst {
			sb.WriteString(fmt.Sprintf("%%%d", instr.ref))
		} else {
			sb.WriteString(fmt.Sprintf("%%%d", r.Def))
		}
	default:
		sb.WriteString(fixedRegName(r.Num))
	}
	return sb.String()
}
