// Package backend implements the architecture-neutral intermediate
// representation and code generator shared by the amd64 and arm64 backends.
//
// The pipeline is: a frontend builds up an Assembler (this package), a
// per-ISA splitter legalizes it (backend/amd64, backend/arm64), a
// architecture-neutral linear-scan allocator assigns physical registers
// (AllocRegs, in this package), and a per-ISA emitter walks the result to
// produce machine code. Each stage consumes the Assembler it is given and
// produces a fresh one; nothing is read after being handed to the next stage.
package backend

import (
	"fmt"

	"github.com/gojit/nanojit/value"
)

// Reg is a physical register reference. The interpretation of RegNo is
// architecture-specific (backend/amd64, backend/arm64 each define their own
// register tables over this same shape).
type Reg struct {
	RegNo   uint8
	NumBits uint8
}

func (r Reg) String() string {
	return fmt.Sprintf("Reg%d(%d)", r.NumBits, r.RegNo)
}

// MemBase is the base of a Mem operand: either a physical register number or
// the index of a still-unallocated instruction output in the producing
// Assembler.
type MemBase struct {
	// IsInsnOut selects which field is meaningful.
	IsInsnOut bool
	Reg       uint8
	InsnOut   int
}

func baseReg(no uint8) MemBase       { return MemBase{Reg: no} }
func baseInsnOut(idx int) MemBase    { return MemBase{IsInsnOut: true, InsnOut: idx} }
func (b MemBase) String() string {
	if b.IsInsnOut {
		return fmt.Sprintf("Out(%d)", b.InsnOut)
	}
	return fmt.Sprintf("Reg(%d)", b.Reg)
}

// Mem is a base-plus-displacement memory operand. Addresses are always
// 64-bit, so a Mem built from an InsnOut base may only reference a 64-bit
// producing instruction; see MemOpnd.
type Mem struct {
	Base    MemBase
	Disp    int32
	NumBits uint8
}

func (m Mem) String() string {
	sign := ""
	if m.Disp > 0 {
		sign = fmt.Sprintf(" + %d", m.Disp)
	} else if m.Disp < 0 {
		sign = fmt.Sprintf(" - %d", -m.Disp)
	}
	return fmt.Sprintf("Mem%d[%s%s]", m.NumBits, m.Base, sign)
}

// OpndKind discriminates the Opnd sum type.
type OpndKind int

const (
	OpndNone OpndKind = iota
	OpndValue
	OpndImm
	OpndUImm
	OpndReg
	OpndMem
	OpndInsnOut
)

// Opnd is an operand to an IR instruction. Exactly one field is meaningful,
// selected by Kind; this mirrors the original Rust Opnd enum as a tagged
// struct because Go has no sum types.
type Opnd struct {
	Kind OpndKind

	// OpndValue
	Val value.Value

	// OpndImm
	Imm int64
	// OpndUImm
	UImm uint64

	// OpndReg
	Reg Reg

	// OpndMem
	Mem Mem

	// OpndInsnOut
	InsnOutIdx     int
	InsnOutNumBits uint8
}

// None is the placeholder operand for instructions with no output.
var None = Opnd{Kind: OpndNone}

// ImmOpnd builds a raw signed immediate operand.
func ImmOpnd(v int64) Opnd { return Opnd{Kind: OpndImm, Imm: v} }

// UImmOpnd builds a raw unsigned immediate operand.
func UImmOpnd(v uint64) Opnd { return Opnd{Kind: OpndUImm, UImm: v} }

// ValueOpnd wraps a dynamic-language runtime value as an immediate operand.
// The value may be GC-movable; see value.Value.HeapObjectP.
func ValueOpnd(v value.Value) Opnd { return Opnd{Kind: OpndValue, Val: v} }

// RegOpnd builds a physical register operand.
func RegOpnd(r Reg) Opnd { return Opnd{Kind: OpndReg, Reg: r} }

// ConstPtr wraps a raw address as an unsigned immediate, for direct code/function
// pointers that don't need GC tracking.
func ConstPtr(addr uintptr) Opnd { return UImmOpnd(uint64(addr)) }

// ImmFromInt32 and friends provide the numeric-width conversions spec.md §4.1
// asks for from the host's signed/unsigned integer widths.
func ImmFromInt32(v int32) Opnd   { return ImmOpnd(int64(v)) }
func ImmFromInt64(v int64) Opnd   { return ImmOpnd(v) }
func UImmFromUint32(v uint32) Opnd { return UImmOpnd(uint64(v)) }
func UImmFromUint64(v uint64) Opnd { return UImmOpnd(v) }
func UImmFromUSize(v uint) Opnd    { return UImmOpnd(uint64(v)) }

// MemOpnd builds a memory operand relative to a register or instruction-output
// base. Panics if base is not 64-bit, matching the original's assert (a
// memory base narrower than a pointer is a frontend bug, not a runtime
// condition a caller recovers from).
func MemOpnd(numBits uint8, base Opnd, disp int32) Opnd {
	switch base.Kind {
	case OpndReg:
		if base.Reg.NumBits != 64 {
			panic("memory operand with non-64-bit register base")
		}
		return Opnd{Kind: OpndMem, Mem: Mem{Base: baseReg(base.Reg.RegNo), Disp: disp, NumBits: numBits}}
	case OpndInsnOut:
		if base.InsnOutNumBits != 64 {
			panic("memory operand with non-64-bit instruction-output base")
		}
		return Opnd{Kind: OpndMem, Mem: Mem{Base: baseInsnOut(base.InsnOutIdx), Disp: disp, NumBits: numBits}}
	default:
		panic("memory operand with non-register base")
	}
}

// IsSome reports whether the operand carries a value (i.e. is not None).
func (o Opnd) IsSome() bool { return o.Kind != OpndNone }

// UnwrapReg panics unless the operand is a register; used where the caller
// has already established (e.g. post register-allocation) that it must be.
func (o Opnd) UnwrapReg() Reg {
	if o.Kind != OpndReg {
		panic(fmt.Sprintf("trying to unwrap %v into reg", o))
	}
	return o.Reg
}

// RmNumBits returns the bit width of a Reg, Mem or InsnOut operand. Panics for
// operand kinds with no intrinsic width (None, Imm, UImm, Value) -- callers
// are expected to have already resolved those through splitting/allocation.
func (o Opnd) RmNumBits() uint8 {
	switch o.Kind {
	case OpndReg:
		return o.Reg.NumBits
	case OpndMem:
		return o.Mem.NumBits
	case OpndInsnOut:
		return o.InsnOutNumBits
	default:
		panic(fmt.Sprintf("RmNumBits on operand kind with no width: %v", o))
	}
}

// MapIndex rewrites InsnOut references (directly, or as a Mem base) through a
// remap table built while draining one Assembler into another. Any other
// operand kind is returned unchanged.
func (o Opnd) MapIndex(indices []int) Opnd {
	switch o.Kind {
	case OpndInsnOut:
		o.InsnOutIdx = indices[o.InsnOutIdx]
		return o
	case OpndMem:
		if o.Mem.Base.IsInsnOut {
			o.Mem.Base.InsnOut = indices[o.Mem.Base.InsnOut]
		}
		return o
	default:
		return o
	}
}

func (o Opnd) String() string {
	switch o.Kind {
	case OpndNone:
		return "None"
	case OpndValue:
		return fmt.Sprintf("Value(%v)", o.Val)
	case OpndInsnOut:
		return fmt.Sprintf("Out%d(%d)", o.InsnOutNumBits, o.InsnOutIdx)
	case OpndImm:
		return fmt.Sprintf("%x_i64", o.Imm)
	case OpndUImm:
		return fmt.Sprintf("%x_u64", o.UImm)
	case OpndMem:
		return o.Mem.String()
	case OpndReg:
		return o.Reg.String()
	default:
		return "?"
	}
}

// matchNumBits computes the common operand width for an instruction: the
// first nonzero NumBits among Reg/Mem/InsnOut operands, defaulting to 64 when
// none carry a width, per spec.md §3's "Absence of any sized operand defaults
// the output width to 64". Panics on a width mismatch -- this is the
// "operand width mismatch" program error of spec.md §7, detected at push
// time, and by construction never recoverable by the caller at this point.
func matchNumBits(opnds []Opnd) uint8 {
	var bits uint8
	for _, o := range opnds {
		var w uint8
		switch o.Kind {
		case OpndReg:
			w = o.Reg.NumBits
		case OpndMem:
			w = o.Mem.NumBits
		case OpndInsnOut:
			w = o.InsnOutNumBits
		default:
			continue
		}
		if bits == 0 {
			bits = w
		} else if bits != w {
			panic("operands of incompatible sizes")
		}
	}
	if bits == 0 {
		bits = 64
	}
	return bits
}
