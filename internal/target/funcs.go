package target

import (
	"fmt"

	"fortio.org/safecast"

	"gpuc/internal/ir3"
)

// Funcs emits the generation specific forms of storage buffer access.
// Offsets are in dwords. Stores are added to the block keep list.
type Funcs interface {
	Name() string
	LoadSSBO(b *ir3.Block, ibo int, offset *ir3.Instruction, ncomp int) *ir3.Instruction
	StoreSSBO(b *ir3.Block, ibo int, value, offset *ir3.Instruction, ncomp int) *ir3.Instruction
}

// A4xxFuncs uses the global buffer instructions, addressed by both a
// byte and a dword offset
type A4xxFuncs struct{}

func (A4xxFuncs) Name() string { return "a4xx" }

func (A4xxFuncs) LoadSSBO(b *ir3.Block, ibo int, offset *ir3.Instruction, ncomp int) *ir3.Instruction {
	byteOffset := b.ShlB(offset, b.Immed(2, ir3.TypeU32))
	ldgb := b.Create(ir3.OpcLdgb, 1, 3)
	ldgb.SSADst().Wrmask = wrmask(ncomp)
	ldgb.SSASrc(b.Immed(iboImmed(ibo), ir3.TypeU32), 0)
	ldgb.SSASrc(byteOffset, 0)
	ldgb.SSASrc(offset, 0)
	setMemory(ldgb, ibo, ncomp, ir3.BarrierBufferR, ir3.BarrierBufferW)
	return ldgb
}

func (A4xxFuncs) StoreSSBO(b *ir3.Block, ibo int, value, offset *ir3.Instruction, ncomp int) *ir3.Instruction {
	byteOffset := b.ShlB(offset, b.Immed(2, ir3.TypeU32))
	stgb := b.Create(ir3.OpcStgb, 0, 4)
	stgb.SSASrc(b.Immed(iboImmed(ibo), ir3.TypeU32), 0)
	stgb.SSASrc(byteOffset, 0)
	stgb.SSASrc(offset, 0)
	stgb.SSASrc(value, 0)
	setMemory(stgb, ibo, ncomp, ir3.BarrierBufferW, ir3.BarrierBufferR|ir3.BarrierBufferW)
	b.Keep(stgb)
	return stgb
}

// A6xxFuncs uses the unified image/buffer instructions
type A6xxFuncs struct{}

func (A6xxFuncs) Name() string { return "a6xx" }

func (A6xxFuncs) LoadSSBO(b *ir3.Block, ibo int, offset *ir3.Instruction, ncomp int) *ir3.Instruction {
	ldib := b.Create(ir3.OpcLdib, 1, 2)
	ldib.SSADst().Wrmask = wrmask(ncomp)
	ldib.SSASrc(b.Immed(iboImmed(ibo), ir3.TypeU32), 0)
	ldib.SSASrc(offset, 0)
	setMemory(ldib, ibo, ncomp, ir3.BarrierBufferR, ir3.BarrierBufferW)
	return ldib
}

func (A6xxFuncs) StoreSSBO(b *ir3.Block, ibo int, value, offset *ir3.Instruction, ncomp int) *ir3.Instruction {
	stib := b.Create(ir3.OpcStib, 0, 3)
	stib.SSASrc(b.Immed(iboImmed(ibo), ir3.TypeU32), 0)
	stib.SSASrc(offset, 0)
	stib.SSASrc(value, 0)
	setMemory(stib, ibo, ncomp, ir3.BarrierBufferW, ir3.BarrierBufferR|ir3.BarrierBufferW)
	b.Keep(stib)
	return stib
}

func setMemory(instr *ir3.Instruction, ibo, ncomp int, class, conflict ir3.Barrier) {
	instr.Cat6.Type = ir3.TypeU32
	instr.Cat6.IBO = ibo
	instr.Cat6.NumVal = ncomp
	instr.BarrierClass = class
	instr.BarrierConflict = conflict
}

// Callers validate ibo and ncomp, out of range values are a bug
func iboImmed(ibo int) uint32 {
	v, err := safecast.Conv[uint32](ibo)
	if err != nil {
		panic(fmt.Sprintf("target: buffer index %d: %v", ibo, err))
	}
	return v
}

func wrmask(n int) uint32 {
	v, err := safecast.Conv[uint32](1<<n - 1)
	if err != nil {
		panic(fmt.Sprintf("target: %d components: %v", n, err))
	}
	return v
}
