// Package asm implements the architecture-neutral "code buffer" collaborator
// spec.md §6.2 describes: an append-only, page-aware, mmap-backed byte
// buffer with label bookkeeping, used by the per-ISA encoders in asm/amd64
// and asm/arm64. Grounded on the teacher's internal/asm/buffer.go
// (CodeSegment/Buffer), extended with the label table, backpatch queue and
// page-retry bookkeeping spec.md's emitter (backend §4.7) requires.
package asm

import (
	"fmt"
	"unsafe"

	"github.com/gojit/nanojit/internal/platform"
)

// addrOf returns the address of a mapped buffer's backing storage, for
// embedding as a direct code/data pointer in generated code. Empty buffers
// have no valid address.
func addrOf(buf []byte) uintptr {
	if len(buf) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&buf[0]))
}

// label is one label's bookkeeping: its resolved position once defined, and
// the set of not-yet-patched references to it recorded before that.
type label struct {
	name     string
	pos      int // -1 until DefineLabel
	refs     []labelRef
}

// labelRef records a pending reference to a label: the byte offset in the
// buffer where a relative displacement must be patched in once the label is
// defined, and the width of that displacement field. The displacement is
// always relative to the end of the patched field.
type labelRef struct {
	patchPos int
	width    int // 1 or 4 bytes
}

// CodeSegment is a single page-aligned, executable mmap'd region. Mirrors
// the teacher's CodeSegment in internal/asm/buffer.go.
type CodeSegment struct {
	buf []byte
}

// Map allocates a fresh size-byte executable region.
func (s *CodeSegment) Map(size int) error {
	b, err := platform.MmapCodeSegment(size)
	if err != nil {
		return err
	}
	s.buf = b
	return nil
}

// Unmap releases the region.
func (s *CodeSegment) Unmap() error {
	if s.buf == nil {
		return nil
	}
	err := platform.MunmapCodeSegment(s.buf)
	s.buf = nil
	return err
}

// Addr returns the base address of the mapped region as a stable integer,
// valid for embedding as a direct code pointer in other generated code.
func (s *CodeSegment) Addr() uintptr { return addrOf(s.buf) }

// Size reports the capacity of the mapped region in bytes.
func (s *CodeSegment) Size() int { return len(s.buf) }

// CodeBuffer is an append-only cursor over a growable sequence of
// CodeSegments, with label tracking and page-boundary bookkeeping
// (HasDroppedBytes/DropBytesToNextPage/NextPage, grounded on
// backend/x86_64/mod.rs's cb.has_dropped_bytes/cb.next_page). The emitters
// in backend/amd64 and backend/arm64 do not call the page-boundary methods.
type CodeBuffer struct {
	segments    []*CodeSegment
	pageSize    int
	write       int // absolute write cursor, in bytes, from the start of segment 0
	dropped     bool
	labels      []*label
	byName      map[string]int
}

// NewCodeBuffer allocates an initial pageSize-rounded segment.
func NewCodeBuffer(initialSize int) (*CodeBuffer, error) {
	pageSize := platform.PageSize()
	size := roundUp(initialSize, pageSize)
	seg := &CodeSegment{}
	if err := seg.Map(size); err != nil {
		return nil, err
	}
	return &CodeBuffer{segments: []*CodeSegment{seg}, pageSize: pageSize, byName: map[string]int{}}, nil
}

func roundUp(n, mult int) int {
	if n%mult == 0 {
		return n
	}
	return (n/mult + 1) * mult
}

// Close releases all underlying mappings.
func (cb *CodeBuffer) Close() error {
	var firstErr error
	for _, seg := range cb.segments {
		if err := seg.Unmap(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Pos returns the current write cursor.
func (cb *CodeBuffer) Pos() int { return cb.write }

// Bytes returns the bytes written so far as a single contiguous slice of the
// first segment. Growth (see ensure) copies everything written so far into a
// fresh, larger mapping that replaces that segment, so it always holds all
// written bytes.
func (cb *CodeBuffer) Bytes() []byte {
	if len(cb.segments) == 0 {
		return nil
	}
	return cb.segments[0].buf[:cb.write]
}

// WriteByte appends a single byte.
func (cb *CodeBuffer) WriteByte(b byte) {
	cb.ensure(1)
	cb.segments[0].buf[cb.write] = b
	cb.write++
}

// Write appends an arbitrary byte slice.
func (cb *CodeBuffer) Write(p []byte) {
	cb.ensure(len(p))
	copy(cb.segments[0].buf[cb.write:], p)
	cb.write += len(p)
}

// WriteUint32 appends v little-endian.
func (cb *CodeBuffer) WriteUint32(v uint32) {
	cb.Write([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}

// WriteUint64 appends v little-endian.
func (cb *CodeBuffer) WriteUint64(v uint64) {
	cb.WriteUint32(uint32(v))
	cb.WriteUint32(uint32(v >> 32))
}

func (cb *CodeBuffer) ensure(n int) {
	if cb.write+n <= len(cb.segments[0].buf) {
		return
	}
	newSize := roundUp(len(cb.segments[0].buf)+n, cb.pageSize) * 2
	fresh := &CodeSegment{}
	if err := fresh.Map(newSize); err != nil {
		panic(fmt.Sprintf("asm: failed to grow code buffer: %v", err))
	}
	copy(fresh.buf, cb.segments[0].buf[:cb.write])
	old := cb.segments[0]
	cb.segments[0] = fresh
	_ = old.Unmap()
}

// PageStartPos returns the byte offset of the start of the page containing
// the current write cursor.
func (cb *CodeBuffer) PageStartPos() int {
	return (cb.write / cb.pageSize) * cb.pageSize
}

// HasDroppedBytes reports whether DropBytesToNextPage has been called since
// the flag was last cleared (by NextPage or ClearDroppedBytes). Ordinary
// writes never set it: they grow the buffer instead.
func (cb *CodeBuffer) HasDroppedBytes() bool { return cb.dropped }

// DropBytesToNextPage moves the write cursor forward to the start of the
// next page and marks the buffer as having dropped bytes, so a caller can
// retry the instruction that triggered the overrun from a clean page start.
func (cb *CodeBuffer) DropBytesToNextPage() {
	next := cb.PageStartPos() + cb.pageSize
	cb.write = next
	cb.dropped = true
}

// NextPage advances the cursor to the next page boundary unconditionally,
// clearing the dropped-bytes flag, and returns the gap (in bytes) that was
// skipped. It writes nothing into the gap; no connecting jump is emitted.
func (cb *CodeBuffer) NextPage() int {
	before := cb.write
	next := cb.PageStartPos() + cb.pageSize
	cb.write = next
	cb.dropped = false
	return next - before
}

// ClearDroppedBytes resets the dropped-bytes flag once the emitter has
// successfully retried the write that triggered it.
func (cb *CodeBuffer) ClearDroppedBytes() { cb.dropped = false }

// --- Labels -----------------------------------------------------------------

// NewLabel allocates a fresh, as-yet-undefined label.
func (cb *CodeBuffer) NewLabel(name string) int {
	idx := len(cb.labels)
	cb.labels = append(cb.labels, &label{name: name, pos: -1})
	cb.byName[name] = idx
	return idx
}

// DefineLabel marks labelIdx's definition site as the current write cursor
// and resolves every reference recorded against it so far.
func (cb *CodeBuffer) DefineLabel(labelIdx int) {
	l := cb.labels[labelIdx]
	if l.pos != -1 {
		panic(fmt.Sprintf("asm: label %q defined twice", l.name))
	}
	l.pos = cb.write
	for _, ref := range l.refs {
		cb.patch(ref, l.pos)
	}
	l.refs = nil
}

// ReferenceLabel records a pending relative-displacement reference to
// labelIdx at the given patch position and field width (1 or 4 bytes),
// relative to the end of the patched field. If the label is already defined
// the displacement is patched in immediately.
func (cb *CodeBuffer) ReferenceLabel(labelIdx, patchPos, width int) {
	l := cb.labels[labelIdx]
	ref := labelRef{patchPos: patchPos, width: width}
	if l.pos != -1 {
		cb.patch(ref, l.pos)
		return
	}
	l.refs = append(l.refs, ref)
}

func (cb *CodeBuffer) patch(ref labelRef, targetPos int) {
	fieldEnd := ref.patchPos + ref.width
	disp := int64(targetPos - fieldEnd)
	buf := cb.segments[0].buf
	switch ref.width {
	case 1:
		if disp < -128 || disp > 127 {
			panic("asm: label displacement does not fit in 8 bits")
		}
		buf[ref.patchPos] = byte(int8(disp))
	case 4:
		if disp < -(1<<31) || disp >= (1<<31) {
			panic("asm: label displacement does not fit in 32 bits")
		}
		v := uint32(int32(disp))
		buf[ref.patchPos] = byte(v)
		buf[ref.patchPos+1] = byte(v >> 8)
		buf[ref.patchPos+2] = byte(v >> 16)
		buf[ref.patchPos+3] = byte(v >> 24)
	default:
		panic("asm: unsupported label displacement width")
	}
}

// LabelState is an opaque snapshot of label definitions and pending
// references, used by the emitter to roll back label bookkeeping when a
// page-boundary retry discards a partially-written instruction (spec.md
// §4.7's "GetLabelState/SetLabelState" round trip).
type LabelState struct {
	positions []int
	refs      [][]labelRef
}

// GetLabelState snapshots the current label table.
func (cb *CodeBuffer) GetLabelState() LabelState {
	st := LabelState{positions: make([]int, len(cb.labels)), refs: make([][]labelRef, len(cb.labels))}
	for i, l := range cb.labels {
		st.positions[i] = l.pos
		st.refs[i] = append([]labelRef(nil), l.refs...)
	}
	return st
}

// SetLabelState restores a previously captured snapshot.
func (cb *CodeBuffer) SetLabelState(st LabelState) {
	for i, l := range cb.labels {
		if i < len(st.positions) {
			l.pos = st.positions[i]
			l.refs = append([]labelRef(nil), st.refs[i]...)
		}
	}
}

// ClearLabels discards all label bookkeeping, for reuse of a CodeBuffer
// across independent compilations.
func (cb *CodeBuffer) ClearLabels() {
	cb.labels = nil
	cb.byName = map[string]int{}
}

// GCOffsets accumulates byte offsets of embedded, GC-movable heap value
// immediates, handed back to the caller alongside the generated code so the
// embedding runtime's collector can find and patch them after a compaction
// (spec.md §6.3).
type GCOffsets struct {
	Offsets []uint32
}

func (g *GCOffsets) Add(offset int) { g.Offsets = append(g.Offsets, uint32(offset)) }
