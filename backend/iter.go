package backend

// DrainingIterator walks the instructions of a source Assembler exactly
// once, in order, while building up a fresh destination Assembler. As each
// source instruction is pushed onto the destination, its index there may
// differ from its index in the source (splitting can expand one source
// instruction into several destination ones), so the iterator maintains an
// index remap table and exposes MapOpnd/MapInsnIndex to rewrite later
// references accordingly. Mirrors backend/ir.rs's AssemblerDrainingIterator.
type DrainingIterator struct {
	src     *Assembler
	pos     int
	indices []int // indices[i] = destination index that source instruction i ended up at
}

// NewDrainingIterator returns an iterator over src. indices is sized to
// len(src.Insns) and filled in as MapInsnIndex records each source
// instruction's destination index.
func NewDrainingIterator(src *Assembler) *DrainingIterator {
	return &DrainingIterator{src: src, indices: make([]int, len(src.Insns))}
}

// Len reports how many source instructions remain.
func (it *DrainingIterator) Len() int { return len(it.src.Insns) - it.pos }

// Pos reports how many source instructions NextUnmapped/NextMapped have
// returned so far, i.e. one past the source index of the instruction
// currently being processed by the splitter.
func (it *DrainingIterator) Pos() int { return it.pos }

// MapInsnIndex records that the source instruction currently being processed
// (the one last returned by NextUnmapped) ends up at destIdx in the
// destination Assembler.
func (it *DrainingIterator) MapInsnIndex(destIdx int) {
	it.indices[it.pos-1] = destIdx
}

// MapOpnd rewrites o's InsnOut references (direct or via a Mem base) through
// the remap table built so far. Only valid for operands referencing
// already-visited source instructions.
func (it *DrainingIterator) MapOpnd(o Opnd) Opnd { return o.MapIndex(it.indices) }

// MapTarget rewrites a Target's label index; labels are not remapped (label
// identity is stable across splitting), so this is currently an identity
// passthrough kept for symmetry with MapOpnd and future label remapping.
func (it *DrainingIterator) MapTarget(t Target) Target { return t }

// NextUnmapped returns the next source instruction without advancing the
// remap bookkeeping for operands it references (the caller is expected to
// call MapOpnd itself on the instruction's own operands before pushing,
// since map_index requires the referenced instructions already be mapped).
func (it *DrainingIterator) NextUnmapped() (*Insn, bool) {
	if it.pos >= len(it.src.Insns) {
		return nil, false
	}
	insn := it.src.Insns[it.pos]
	it.pos++
	return insn, true
}

// NextMapped returns the next source instruction with its operands already
// rewritten through the remap table, for the common case where a splitter
// pass re-pushes an instruction unchanged apart from operand remapping.
func (it *DrainingIterator) NextMapped() (*Insn, bool) {
	insn, ok := it.NextUnmapped()
	if !ok {
		return nil, false
	}
	mapped := &Insn{Op: insn.Op, Text: insn.Text, Target: it.MapTarget(insn.Target), PosMark: insn.PosMark}
	mapped.Opnds = make([]Opnd, len(insn.Opnds))
	for i, o := range insn.Opnds {
		mapped.Opnds[i] = it.MapOpnd(o)
	}
	return mapped, true
}

// LookbackIterator provides random access backwards over an Assembler's
// already-built instruction list, used by splitter passes that need to
// inspect an operand's producing instruction without a separate liveness
// pass. Mirrors backend/ir.rs's AssemblerLookbackIterator.
type LookbackIterator struct {
	asm *Assembler
	pos int
}

// NewLookbackIterator returns an iterator starting before the first
// instruction of asm.
func NewLookbackIterator(asm *Assembler) *LookbackIterator {
	return &LookbackIterator{asm: asm, pos: -1}
}

// NextUnmapped advances to and returns the next instruction.
func (it *LookbackIterator) NextUnmapped() (*Insn, bool) {
	it.pos++
	if it.pos >= len(it.asm.Insns) {
		return nil, false
	}
	return it.asm.Insns[it.pos], true
}

// Get returns the instruction at absolute index idx, or nil if out of range.
func (it *LookbackIterator) Get(idx int) *Insn {
	if idx < 0 || idx >= len(it.asm.Insns) {
		return nil
	}
	return it.asm.Insns[idx]
}

// GetRelative returns the instruction offset by delta from the current
// position (GetRelative(0) is the current instruction, GetRelative(-1) the
// previous one).
func (it *LookbackIterator) GetRelative(delta int) *Insn { return it.Get(it.pos + delta) }

// GetPrevious is shorthand for GetRelative(-1).
func (it *LookbackIterator) GetPrevious() *Insn { return it.GetRelative(-1) }

// GetNext is shorthand for GetRelative(1).
func (it *LookbackIterator) GetNext() *Insn { return it.GetRelative(1) }

// LiveRangeEnd returns the index of the last instruction that reads idx's
// output, per the source Assembler's precomputed live ranges.
func (it *LookbackIterator) LiveRangeEnd(idx int) int { return it.asm.LiveRanges[idx] }
