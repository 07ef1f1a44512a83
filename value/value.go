// Package value models the dynamic-language runtime value the backend
// embeds directly into generated code as immediates (spec.md §3, §6.3).
//
// There is no teacher or pack analog for this type -- wazero hosts
// WebAssembly numeric values, not a GC'd dynamic-language object model -- so
// it is implemented directly on the standard library; see DESIGN.md.
package value

import "fmt"

// Value is an opaque 64-bit tagged runtime value, as produced by the
// embedding language's runtime. The backend never interprets its bits; it
// only needs to know whether the bit pattern names a heap object that the
// garbage collector may relocate (in which case any code embedding it must
// be recorded so the collector can patch it after a move) and whether the
// raw bit pattern itself fits in a sign-extended 32-bit immediate.
type Value struct {
	raw uint64
}

// FromRaw wraps a raw tagged bit pattern.
func FromRaw(raw uint64) Value { return Value{raw: raw} }

// AsU64 returns the raw tagged bit pattern.
func (v Value) AsU64() uint64 { return v.raw }

// AsI64 returns the raw tagged bit pattern reinterpreted as signed.
func (v Value) AsI64() int64 { return int64(v.raw) }

// HeapObjectP reports whether this value's bit pattern points at a
// GC-managed heap object, as opposed to an immediate/special constant
// encoded entirely in the 64 bits. Heap pointers are word-aligned (low three
// bits clear) and nonzero; immediates always set at least one low bit, and
// the zero-valued special constant (False) is carved out explicitly so it
// never gets mistaken for a null heap pointer.
func (v Value) HeapObjectP() bool {
	return v.raw != 0 && v.raw&0x7 == 0 && !v.SpecialConstP()
}

// SpecialConstP reports whether this value is one of the handful of
// singleton constants (nil/true/false/undef-equivalents) that never move and
// so never need GC-offset tracking even though they are not numeric
// immediates.
func (v Value) SpecialConstP() bool {
	switch v.raw {
	case specialConstNil, specialConstTrue, specialConstFalse, specialConstUndef:
		return true
	default:
		return false
	}
}

// FitsInI32 reports whether the raw bit pattern sign-extends cleanly from a
// 32-bit immediate, the same test the x86 splitter/emitter apply to raw
// Opnd.Imm/UImm values before deciding whether a value needs 64-bit
// materialization through a scratch register.
func (v Value) FitsInI32() bool {
	i := v.AsI64()
	return i >= -(1<<31) && i < (1<<31)
}

func (v Value) String() string {
	return fmt.Sprintf("Value(0x%x)", v.raw)
}

const (
	specialConstNil   uint64 = 0x04
	specialConstFalse uint64 = 0x00
	specialConstTrue  uint64 = 0x14
	specialConstUndef uint64 = 0x24
)

// Nil, True, False and Undef are the well-known special constants.
var (
	Nil   = Value{raw: specialConstNil}
	True  = Value{raw: specialConstTrue}
	False = Value{raw: specialConstFalse}
	Undef = Value{raw: specialConstUndef}
)
