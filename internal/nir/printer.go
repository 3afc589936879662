package nir

import (
	"fmt"
	"sort"
	"strings"
)

// Printer renders a Shader in the textual form accepted by the grammar
// package, optionally annotating instructions with messages.
type Printer struct {
	indent      int
	output      strings.Builder
	annotations map[*Instr]string
}

// NewPrinter creates a new source program printer
func NewPrinter() *Printer {
	return &Printer{indent: 0}
}

// Print returns the string representation of a shader
func Print(shader *Shader) string {
	p := NewPrinter()
	p.printShader(shader)
	return p.output.String()
}

// PrintAnnotated prints the shader with an error line under each
// annotated instruction
func PrintAnnotated(shader *Shader, annotations map[*Instr]string) string {
	p := NewPrinter()
	p.annotations = annotations
	p.printShader(shader)
	return p.output.String()
}

// Helper methods

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

func (p *Printer) printShader(shader *Shader) {
	header := "shader " + shader.Stage.String()
	if shader.Name != "" {
		header += fmt.Sprintf(" %q", shader.Name)
	}
	if shader.Info.NumTextures > 0 {
		header += fmt.Sprintf(" textures=%d", shader.Info.NumTextures)
	}
	if shader.Info.Internal {
		header += " internal=1"
	}
	p.writeLine("%s {", header)
	p.indent++
	for _, fn := range shader.Functions {
		p.printFunction(fn)
	}
	p.indent--
	p.writeLine("}")
}

func (p *Printer) printFunction(fn *Function) {
	entry := ""
	if fn.EntryPoint {
		entry = " entry"
	}
	p.writeLine("function %s%s {", fn.Name, entry)
	p.indent++
	for _, b := range fn.Blocks {
		p.printBlock(b)
	}
	for _, l := range fn.Loops {
		p.writeLine("loop %s continue %s;", l.Header.Label, l.Continue.Label)
	}
	p.indent--
	p.writeLine("}")
}

func (p *Printer) printBlock(b *Block) {
	p.writeLine("block %s {", b.Label)
	p.indent++
	for _, instr := range b.Instrs {
		p.writeLine("%s", FormatInstr(instr))
		if msg, ok := p.annotations[instr]; ok {
			p.writeLine("// error: %s", msg)
		}
	}
	if b.Term != nil {
		p.writeLine("%s", formatTerm(b.Term))
	}
	p.indent--
	p.writeLine("}")
}

// FormatInstr renders one instruction on a single line
func FormatInstr(instr *Instr) string {
	var sb strings.Builder
	if instr.Def != nil {
		sb.WriteString(fmt.Sprintf("%s = vec%d %d ", instr.Def, instr.Def.NumComponents, instr.Def.BitSize))
	}
	sb.WriteString(string(instr.Op))

	if len(instr.Consts) > 0 {
		vals := make([]string, len(instr.Consts))
		for i, c := range instr.Consts {
			vals[i] = formatConst(c)
		}
		sb.WriteString(" (" + strings.Join(vals, ", ") + ")")
	}

	if len(instr.Srcs) > 0 {
		srcs := make([]string, len(instr.Srcs))
		for i, src := range instr.Srcs {
			s := formatSrc(src, srcWidth(instr, i))
			if i < len(instr.PhiPreds) && instr.PhiPreds[i] != nil {
				s = instr.PhiPreds[i].Label + ":" + s
			}
			srcs[i] = s
		}
		sb.WriteString(" " + strings.Join(srcs, ", "))
	}

	if idx := formatIndices(instr.Indices); idx != "" {
		sb.WriteString(" [" + idx + "]")
	}
	sb.WriteString(";")
	return sb.String()
}

func formatTerm(t *Terminator) string {
	switch t.Kind {
	case TermJump:
		return fmt.Sprintf("br %s;", t.Targets[0].Label)
	case TermBranch:
		return fmt.Sprintf("br_if %s, %s, %s;", formatSrc(t.Cond, 1), t.Targets[0].Label, t.Targets[1].Label)
	default:
		return "ret;"
	}
}

// srcWidth is the number of channels of source i an instruction reads
func srcWidth(instr *Instr, i int) int {
	if instr.Op.IsVec() {
		return 1
	}
	if instr.Op.IsALU() && instr.Def != nil {
		return instr.Def.NumComponents
	}
	if instr.Srcs[i].SSA != nil {
		return instr.Srcs[i].SSA.NumComponents
	}
	return 1
}

func formatSrc(src Src, width int) string {
	if src.SSA == nil {
		return "%?"
	}
	if width <= 0 {
		width = 1
	}
	identity := width == src.SSA.NumComponents
	for i := 0; i < width && identity; i++ {
		identity = int(src.Swizzle[i]) == i
	}
	if identity {
		return src.SSA.String()
	}
	const comps = "xyzw"
	var sw strings.Builder
	for i := 0; i < width && i < 4; i++ {
		sw.WriteByte(comps[src.Swizzle[i]&3])
	}
	return src.SSA.String() + "." + sw.String()
}

func formatConst(c uint64) string {
	if c > 0xffff {
		return fmt.Sprintf("0x%x", c)
	}
	return fmt.Sprintf("%d", c)
}

func formatIndices(idx Indices) string {
	fields := map[string]int{}
	if idx.Base != 0 {
		fields["base"] = idx.Base
	}
	if idx.WriteMask != 0 {
		fields["wrmask"] = int(idx.WriteMask)
	}
	if idx.NumComponents != 0 {
		fields["num_components"] = idx.NumComponents
	}
	if idx.NumArrayElems != 0 {
		fields["num_array_elems"] = idx.NumArrayElems
	}
	if idx.BitSize != 0 {
		fields["bit_size"] = idx.BitSize
	}
	if idx.Texture != 0 {
		fields["texture"] = idx.Texture
	}
	if idx.Sampler != 0 {
		fields["sampler"] = idx.Sampler
	}
	if idx.Binding != 0 {
		fields["binding"] = idx.Binding
	}
	if idx.Var != 0 {
		fields["var"] = idx.Var
	}
	if idx.Input != 0 {
		fields["input"] = idx.Input
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, fields[k])
	}
	return strings.Join(parts, ", ")
}
