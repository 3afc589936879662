package nir

import "sort"

// Op names a source-program operation. ALU ops are per-component and
// take their width from the destination; intrinsics carry Indices.
type Op string

const (
	OpLoadConst Op = "load_const"
	OpUndef     Op = "undef"
	OpPhi       Op = "phi"

	// ALU
	OpMov         Op = "mov"
	OpFAdd        Op = "fadd"
	OpFMul        Op = "fmul"
	OpFFma        Op = "ffma"
	OpFNeg        Op = "fneg"
	OpIAdd        Op = "iadd"
	OpISub        Op = "isub"
	OpIMul        Op = "imul"
	OpINeg        Op = "ineg"
	OpIShl        Op = "ishl"
	OpIEq         Op = "ieq"
	OpINe         Op = "ine"
	OpB2I32       Op = "b2i32"
	OpBCSel       Op = "bcsel"
	OpUMulLow     Op = "umul_low"
	OpIMadshMix16 Op = "imadsh_mix16"
	OpVec2        Op = "vec2"
	OpVec3        Op = "vec3"
	OpVec4        Op = "vec4"

	// Intrinsics
	OpLoadInput             Op = "load_input"
	OpLoadInterpolatedInput Op = "load_interpolated_input"
	OpStoreOutput           Op = "store_output"
	OpLoadUniform           Op = "load_uniform"
	OpLoadUBO               Op = "load_ubo"
	OpLoadSSBO              Op = "load_ssbo"
	OpStoreSSBO             Op = "store_ssbo"
	OpDeclReg               Op = "decl_reg"
	OpLoadReg               Op = "load_reg"
	OpLoadRegIndirect       Op = "load_reg_indirect"
	OpStoreReg              Op = "store_reg"
	OpStoreRegIndirect      Op = "store_reg_indirect"
	OpLoadVar               Op = "load_var"
	OpStoreVar              Op = "store_var"
	OpDiscard               Op = "discard"
	OpDiscardIf             Op = "discard_if"
	OpLoadSampleCount       Op = "load_sample_count"
	OpLoadUserClipPlaneMask Op = "load_user_clip_plane_enables"
	OpTex                   Op = "tex"
	OpTexPrefetch           Op = "tex_prefetch"
	OpImageLoad             Op = "image_load"
)

type opInfo struct {
	alu        bool
	numSrcs    int // -1 when variable
	sideEffect bool
}

var opTable = map[Op]opInfo{
	OpLoadConst: {numSrcs: 0},
	OpUndef:     {numSrcs: 0},
	OpPhi:       {numSrcs: -1},

	OpMov:         {alu: true, numSrcs: 1},
	OpFAdd:        {alu: true, numSrcs: 2},
	OpFMul:        {alu: true, numSrcs: 2},
	OpFFma:        {alu: true, numSrcs: 3},
	OpFNeg:        {alu: true, numSrcs: 1},
	OpIAdd:        {alu: true, numSrcs: 2},
	OpISub:        {alu: true, numSrcs: 2},
	OpIMul:        {alu: true, numSrcs: 2},
	OpINeg:        {alu: true, numSrcs: 1},
	OpIShl:        {alu: true, numSrcs: 2},
	OpIEq:         {alu: true, numSrcs: 2},
	OpINe:         {alu: true, numSrcs: 2},
	OpB2I32:       {alu: true, numSrcs: 1},
	OpBCSel:       {alu: true, numSrcs: 3},
	OpUMulLow:     {alu: true, numSrcs: 2},
	OpIMadshMix16: {alu: true, numSrcs: 3},
	OpVec2:        {alu: true, numSrcs: 2},
	OpVec3:        {alu: true, numSrcs: 3},
	OpVec4:        {alu: true, numSrcs: 4},

	OpLoadInput:             {numSrcs: 0},
	OpLoadInterpolatedInput: {numSrcs: 0},
	OpStoreOutput:           {numSrcs: 1, sideEffect: true},
	OpLoadUniform:           {numSrcs: -1},
	OpLoadUBO:               {numSrcs: 1},
	OpLoadSSBO:              {numSrcs: 1},
	OpStoreSSBO:             {numSrcs: 2, sideEffect: true},
	OpDeclReg:               {numSrcs: 0},
	OpLoadReg:               {numSrcs: 1},
	OpLoadRegIndirect:       {numSrcs: 2},
	OpStoreReg:              {numSrcs: 2, sideEffect: true},
	OpStoreRegIndirect:      {numSrcs: 3, sideEffect: true},
	OpLoadVar:               {numSrcs: 0},
	OpStoreVar:              {numSrcs: 1, sideEffect: true},
	OpDiscard:               {numSrcs: 0, sideEffect: true},
	OpDiscardIf:             {numSrcs: 1, sideEffect: true},
	OpLoadSampleCount:       {numSrcs: 0},
	OpLoadUserClipPlaneMask: {numSrcs: 0},
	OpTex:                   {numSrcs: -1},
	OpTexPrefetch:           {numSrcs: 1},
	OpImageLoad:             {numSrcs: 1},
}

// Known reports whether op is part of the instruction set
func (op Op) Known() bool {
	_, ok := opTable[op]
	return ok
}

// KnownOps returns every operation name in sorted order
func KnownOps() []string {
	names := make([]string, 0, len(opTable))
	for op := range opTable {
		names = append(names, string(op))
	}
	sort.Strings(names)
	return names
}

// IsALU reports whether op is a per-component ALU operation
func (op Op) IsALU() bool { return opTable[op].alu }

// HasSideEffects reports whether an instruction must be kept even when
// its result is unused
func (op Op) HasSideEffects() bool { return opTable[op].sideEffect }

// NumSrcs returns the fixed source count of op, or -1 if it varies
func (op Op) NumSrcs() int {
	info, ok := opTable[op]
	if !ok {
		return -1
	}
	return info.numSrcs
}

// IsVec reports whether op is one of the vecN constructors
func (op Op) IsVec() bool {
	return op == OpVec2 || op == OpVec3 || op == OpVec4
}

// VecOp returns the vecN constructor for n components
func VecOp(n int) Op {
	switch n {
	case 2:
		return OpVec2
	case 3:
		return OpVec3
	case 4:
		return OpVec4
	}
	return OpMov
}
