package amd64

import "github.com/gojit/nanojit/backend"

const aluOpMaxImm = int64(1)<<31 - 1
const aluOpMinImm = -(int64(1) << 31)

func isMemLike(o backend.Opnd) bool { return o.Kind == backend.OpndMem }

// isRegLike reports whether o is a bare physical register operand (e.g. a
// frontend-named register like EC/CFP/SP), as distinct from an InsnOut,
// whose destructive-overwrite safety is instead governed by stillLivePast.
// A bare register is never exclusively owned by the instruction reading it,
// so it must always be copied before being clobbered in place.
func isRegLike(o backend.Opnd) bool {
	return o.Kind == backend.OpndReg
}

func isImmLike(o backend.Opnd) bool {
	return o.Kind == backend.OpndImm || o.Kind == backend.OpndUImm || o.Kind == backend.OpndValue
}

func fitsSigned32(o backend.Opnd) bool {
	switch o.Kind {
	case backend.OpndImm:
		return o.Imm >= aluOpMinImm && o.Imm <= aluOpMaxImm
	case backend.OpndUImm:
		return o.UImm <= uint64(aluOpMaxImm)
	case backend.OpndValue:
		return o.Val.FitsInI32()
	default:
		return true
	}
}

// stillLivePast reports whether the source instruction producing o (an
// InsnOut operand) has at least one more read after idx -- i.e. overwriting
// its register destructively at idx would clobber a value still needed.
func stillLivePast(src *backend.Assembler, o backend.Opnd, idx int) bool {
	if o.Kind != backend.OpndInsnOut {
		return false
	}
	return src.LiveRanges[o.InsnOutIdx] > idx
}

var aluOps = map[backend.Op]bool{
	backend.OpAdd: true, backend.OpSub: true, backend.OpAnd: true,
	backend.OpOr: true, backend.OpXor: true,
}

var shiftOps = map[backend.Op]bool{
	backend.OpLShift: true, backend.OpRShift: true, backend.OpURShift: true,
}

var cselOps = map[backend.Op]bool{
	backend.OpCSelZ: true, backend.OpCSelNZ: true, backend.OpCSelE: true, backend.OpCSelNE: true,
	backend.OpCSelL: true, backend.OpCSelLE: true, backend.OpCSelG: true, backend.OpCSelGE: true,
}

// Split legalizes src for x86-64 emission: every instruction's operands end
// up satisfying the encodable (reg,reg)/(reg,mem)/(reg,imm32) shapes real
// x86 ALU/mov/cmp/test/cmov encodings require, at the cost of inserting
// extra Load/Mov instructions ahead of anything that doesn't already fit.
// Mirrors x86_split in backend/x86_64/mod.rs. Must run before AllocRegs.
func Split(src *backend.Assembler) *backend.Assembler {
	dst := backend.NewAssembler()
	it := backend.NewDrainingIterator(src)

	for {
		insn, ok := it.NextUnmapped()
		if !ok {
			break
		}
		switch {
		case aluOps[insn.Op]:
			splitTwoOperandDestructive(dst, it, src, insn)

		case shiftOps[insn.Op]:
			splitTwoOperandDestructive(dst, it, src, insn)

		case insn.Op == backend.OpCmp || insn.Op == backend.OpTest:
			left := it.MapOpnd(insn.Opnds[0])
			right := it.MapOpnd(insn.Opnds[1])
			if isMemLike(left) && isMemLike(right) {
				right = loadTemp(dst, right)
			}
			pushPassthrough(dst, it, insn.Op, insn.Text, []backend.Opnd{left, right}, insn.Target, insn.PosMark)

		case insn.Op == backend.OpMov:
			dest := it.MapOpnd(insn.Opnds[0])
			src2 := it.MapOpnd(insn.Opnds[1])
			if isMemLike(dest) && isMemLike(src2) {
				src2 = loadTemp(dst, src2)
			} else if isMemLike(dest) && isImmLike(src2) && !fitsSigned32(src2) {
				src2 = loadTemp(dst, src2)
			}
			pushPassthrough(dst, it, backend.OpMov, insn.Text, []backend.Opnd{dest, src2}, insn.Target, insn.PosMark)

		case insn.Op == backend.OpNot:
			opnd := it.MapOpnd(insn.Opnds[0])
			if isMemLike(opnd) || isRegLike(opnd) || stillLivePast(src, insn.Opnds[0], posOf(it)) {
				opnd = loadTemp(dst, opnd)
			}
			pushPassthrough(dst, it, backend.OpNot, insn.Text, []backend.Opnd{opnd}, insn.Target, insn.PosMark)

		case cselOps[insn.Op]:
			truthy := it.MapOpnd(insn.Opnds[0])
			falsy := it.MapOpnd(insn.Opnds[1])
			if isImmLike(truthy) || stillLivePast(src, insn.Opnds[0], posOf(it)) {
				truthy = loadTemp(dst, truthy)
			}
			if isImmLike(falsy) {
				falsy = loadTemp(dst, falsy)
			}
			pushPassthrough(dst, it, insn.Op, insn.Text, []backend.Opnd{truthy, falsy}, insn.Target, insn.PosMark)

		case insn.Op == backend.OpCCall:
			fnPtr := it.MapOpnd(insn.Opnds[0])
			for i := 1; i < len(insn.Opnds); i++ {
				arg := it.MapOpnd(insn.Opnds[i])
				if i-1 >= len(CArgOpnds) {
					panic("amd64: too many ccall arguments for available argument registers")
				}
				dst.LoadInto(CArgOpnds[i-1], arg)
			}
			out := dst.CCall(fnPtr)
			it.MapInsnIndex(out.InsnOutIdx)

		default:
			pushPassthrough(dst, it, insn.Op, insn.Text, mapAll(it, insn.Opnds), insn.Target, insn.PosMark)
		}
	}

	return dst
}

// posOf returns the index of the source instruction the iterator just
// consumed (NextUnmapped already advanced its internal cursor).
func posOf(it *backend.DrainingIterator) int { return it.Pos() - 1 }

func mapAll(it *backend.DrainingIterator, opnds []backend.Opnd) []backend.Opnd {
	out := make([]backend.Opnd, len(opnds))
	for i, o := range opnds {
		out[i] = it.MapOpnd(o)
	}
	return out
}

func pushPassthrough(dst *backend.Assembler, it *backend.DrainingIterator, op backend.Op, text string, opnds []backend.Opnd, target backend.Target, posMark backend.PosMarkerFn) {
	out := dst.Push(op, text, opnds, target, posMark)
	if out.Kind == backend.OpndInsnOut {
		it.MapInsnIndex(out.InsnOutIdx)
	} else {
		it.MapInsnIndex(len(dst.Insns) - 1)
	}
}

// loadTemp materializes opnd into a fresh temporary via a Load instruction,
// for operands that can't be used directly in their original position.
func loadTemp(dst *backend.Assembler, opnd backend.Opnd) backend.Opnd {
	return dst.Load(opnd)
}

// splitTwoOperandDestructive applies the shared ALU/shift legalization rule:
// the destination is always the left operand, overwritten in place by the
// real machine instruction, so the left operand must end up in a register
// that is safe to clobber. A bare Reg left operand (e.g. a frontend-named
// register like EC/CFP) is never safe to clobber outright -- it belongs to
// the caller, not this instruction -- so it is always loaded into a fresh
// temporary first, matching x86_64/mod.rs's
// `(Opnd::Mem(_) | Opnd::Reg(_), _) => *left = asm.load(*left)` match arm; an
// InsnOut left is only safe to reuse in place when its live range ends here.
func splitTwoOperandDestructive(dst *backend.Assembler, it *backend.DrainingIterator, src *backend.Assembler, insn *backend.Insn) {
	idx := posOf(it)
	left := it.MapOpnd(insn.Opnds[0])
	right := it.MapOpnd(insn.Opnds[1])

	needsLoad := false
	if isMemLike(left) && (isMemLike(right) || isImmLike(right)) {
		needsLoad = true
	}
	if isRegLike(left) {
		needsLoad = true
	}
	if stillLivePast(src, insn.Opnds[0], idx) {
		needsLoad = true
	}
	if needsLoad {
		left = loadTemp(dst, left)
	}
	pushPassthrough(dst, it, insn.Op, insn.Text, []backend.Opnd{left, right}, insn.Target, insn.PosMark)
}
