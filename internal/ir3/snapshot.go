package ir3

import (
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Current schema version - increment when Snapshot format changes
const snapshotSchemaVersion uint16 = 1

// Snapshot is a flattened, serializable view of a Shader. Handles are
// kept as plain integers so a snapshot can be compared across runs.
type Snapshot struct {
	Schema uint16

	Blocks  []SnapshotBlock
	Instrs  []SnapshotInstr
	Arrays  []SnapshotArray
	Outputs []uint32
	A0Users []uint32
	A1Users []uint32
}

type SnapshotBlock struct {
	Index     int
	Label     string
	Instrs    []uint32
	Keeps     []uint32
	Succs     []int
	Condition uint32
}

type SnapshotInstr struct {
	Ref             uint32
	Opc             string
	Block           int
	Dsts            []SnapshotReg
	Srcs            []SnapshotReg
	BarrierClass    uint8
	BarrierConflict uint8
	SrcType         string `msgpack:",omitempty"`
	DstType         string `msgpack:",omitempty"`
	Condition       string `msgpack:",omitempty"`
	SplitOff        int    `msgpack:",omitempty"`
	Address         uint32 `msgpack:",omitempty"`
}

type SnapshotReg struct {
	Flags       uint32
	Num         uint16
	Wrmask      uint32
	Size        int    `msgpack:",omitempty"`
	Def         uint32 `msgpack:",omitempty"`
	ArrayID     int    `msgpack:",omitempty"`
	ArrayOffset int    `msgpack:",omitempty"`
	Iim         uint32 `msgpack:",omitempty"`
	Tied        bool   `msgpack:",omitempty"`
}

type SnapshotArray struct {
	ID        int
	Length    int
	Half      bool
	LastWrite uint32
}

func refs(rs []Ref) []uint32 {
	out := make([]uint32, len(rs))
	for i, r := range rs {
		out[i] = uint32(r)
	}
	return out
}

func snapshotReg(r *Register) SnapshotReg {
	return SnapshotReg{
		Flags:       uint32(r.Flags),
		Num:         r.Num,
		Wrmask:      r.Wrmask,
		Size:        r.Size,
		Def:         uint32(r.Def),
		ArrayID:     r.Array.ID,
		ArrayOffset: r.Array.Offset,
		Iim:         r.Iim,
		Tied:        r.Tied,
	}
}

// TakeSnapshot flattens sh
func TakeSnapshot(sh *Shader) *Snapshot {
	snap := &Snapshot{
		Schema:  snapshotSchemaVersion,
		Outputs: refs(sh.Outputs),
		A0Users: refs(sh.A0Users),
		A1Users: refs(sh.A1Users),
	}
	for _, b := range sh.Blocks {
		sb := SnapshotBlock{
			Index:     b.Index,
			Label:     b.Label,
			Instrs:    refs(b.Instrs),
			Keeps:     refs(b.Keeps),
			Condition: uint32(b.Condition),
		}
		for _, s := range b.Succs {
			sb.Succs = append(sb.Succs, s.Index)
		}
		snap.Blocks = append(snap.Blocks, sb)
	}
	for _, b := range sh.Blocks {
		for _, r := range b.Instrs {
			instr := sh.Instr(r)
			si := SnapshotInstr{
				Ref:             uint32(r),
				Opc:             instr.Opc.String(),
				Block:           b.Index,
				BarrierClass:    uint8(instr.BarrierClass),
				BarrierConflict: uint8(instr.BarrierConflict),
				SplitOff:        instr.Split.Off,
				Address:         uint32(instr.Address),
			}
			if instr.Opc == OpcMov {
				si.SrcType = instr.Cat1.SrcType.String()
				si.DstType = instr.Cat1.DstType.String()
			}
			if instr.Opc == OpcCmpsS || instr.Opc == OpcCmpsF {
				si.Condition = instr.Cat2.Condition.String()
			}
			for _, d := range instr.Dsts {
				si.Dsts = append(si.Dsts, snapshotReg(d))
			}
			for _, s := range instr.Srcs {
				si.Srcs = append(si.Srcs, snapshotReg(s))
			}
			snap.Instrs = append(snap.Instrs, si)
		}
	}
	for _, a := range sh.Arrays {
		snap.Arrays = append(snap.Arrays, SnapshotArray{
			ID:        a.ID,
			Length:    a.Length,
			Half:      a.Half,
			LastWrite: uint32(a.LastWrite),
		})
	}
	return snap
}

// EncodeSnapshot writes the msgpack encoding of a snapshot of sh
func EncodeSnapshot(w io.Writer, sh *Shader) error {
	enc := msgpack.NewEncoder(w)
	if err := enc.Encode(TakeSnapshot(sh)); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}

// DecodeSnapshot reads a snapshot written by EncodeSnapshot
func DecodeSnapshot(r io.Reader) (*Snapshot, error) {
	var snap Snapshot
	dec := msgpack.NewDecoder(r)
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Schema != snapshotSchemaVersion {
		return nil, fmt.Errorf("snapshot schema %d, want %d", snap.Schema, snapshotSchemaVersion)
	}
	return &snap, nil
}
