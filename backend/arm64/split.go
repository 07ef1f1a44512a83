package arm64

import "github.com/gojit/nanojit/backend"

// AArch64 is a load-store architecture: ALU/compare/select instructions
// only ever operate on registers (plus a narrow immediate form), unlike
// x86-64's memory-operand ALU forms. The splitter is correspondingly
// simpler than backend/amd64's: any Mem operand, and any immediate that
// doesn't fit the 12-bit ALU immediate field, is pre-loaded into a register
// before the instruction that needs it.

func needsLoadARM(o backend.Opnd) bool {
	switch o.Kind {
	case backend.OpndMem:
		return true
	case backend.OpndImm:
		return o.Imm < 0 || o.Imm > Imm12Max
	case backend.OpndUImm:
		return o.UImm > Imm12Max
	case backend.OpndValue:
		return true // every Value is materialized via Load, heap object or not
	default:
		return false
	}
}

var aluOps = map[backend.Op]bool{
	backend.OpAdd: true, backend.OpSub: true, backend.OpAnd: true,
	backend.OpOr: true, backend.OpXor: true,
	backend.OpLShift: true, backend.OpRShift: true, backend.OpURShift: true,
}

var cselOps = map[backend.Op]bool{
	backend.OpCSelZ: true, backend.OpCSelNZ: true, backend.OpCSelE: true, backend.OpCSelNE: true,
	backend.OpCSelL: true, backend.OpCSelLE: true, backend.OpCSelG: true, backend.OpCSelGE: true,
}

// Split legalizes src for AArch64 emission. Must run before AllocRegs.
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
			left := loadDestructiveLeft(dst, it.MapOpnd(insn.Opnds[0]))
			right := loadIfNeeded(dst, it.MapOpnd(insn.Opnds[1]))
			pushPassthrough(dst, it, insn.Op, insn.Text, []backend.Opnd{left, right}, insn.Target, insn.PosMark)

		case insn.Op == backend.OpNot:
			opnd := loadDestructiveLeft(dst, it.MapOpnd(insn.Opnds[0]))
			pushPassthrough(dst, it, insn.Op, insn.Text, []backend.Opnd{opnd}, insn.Target, insn.PosMark)

		case insn.Op == backend.OpCmp || insn.Op == backend.OpTest:
			left := loadIfNeeded(dst, it.MapOpnd(insn.Opnds[0]))
			right := loadIfNeeded(dst, it.MapOpnd(insn.Opnds[1]))
			pushPassthrough(dst, it, insn.Op, insn.Text, []backend.Opnd{left, right}, insn.Target, insn.PosMark)

		case insn.Op == backend.OpMov:
			dest := it.MapOpnd(insn.Opnds[0])
			source := it.MapOpnd(insn.Opnds[1])
			if source.Kind == backend.OpndMem {
				source = dst.Load(source)
			}
			pushPassthrough(dst, it, backend.OpMov, insn.Text, []backend.Opnd{dest, source}, insn.Target, insn.PosMark)

		case cselOps[insn.Op]:
			truthy := loadIfNeeded(dst, it.MapOpnd(insn.Opnds[0]))
			falsy := loadIfNeeded(dst, it.MapOpnd(insn.Opnds[1]))
			pushPassthrough(dst, it, insn.Op, insn.Text, []backend.Opnd{truthy, falsy}, insn.Target, insn.PosMark)

		case insn.Op == backend.OpCCall:
			fnPtr := it.MapOpnd(insn.Opnds[0])
			for i := 1; i < len(insn.Opnds); i++ {
				arg := it.MapOpnd(insn.Opnds[i])
				if i-1 >= len(CArgOpnds) {
					panic("arm64: too many ccall arguments for available argument registers")
				}
				dst.LoadInto(CArgOpnds[i-1], arg)
			}
			out := dst.CCall(fnPtr)
			it.MapInsnIndex(out.InsnOutIdx)

		default:
			opnds := make([]backend.Opnd, len(insn.Opnds))
			for i, o := range insn.Opnds {
				opnds[i] = it.MapOpnd(o)
			}
			pushPassthrough(dst, it, insn.Op, insn.Text, opnds, insn.Target, insn.PosMark)
		}
	}

	return dst
}

func loadIfNeeded(dst *backend.Assembler, o backend.Opnd) backend.Opnd {
	if needsLoadARM(o) {
		return dst.Load(o)
	}
	return o
}

// loadDestructiveLeft applies to the left operand of ALU/Not ops, whose
// Encoder methods write their result into the same register the left operand
// occupies (spec.md §4.7's 2-operand Add/Sub/... calls). A bare Reg operand
// here (e.g. a frontend-named register like EC/CFP) is never safe to
// clobber in place -- it belongs to the caller, not this instruction -- so
// it is always loaded into a fresh temporary first, on top of needsLoadARM's
// ordinary mem/out-of-range-immediate checks.
func loadDestructiveLeft(dst *backend.Assembler, o backend.Opnd) backend.Opnd {
	if o.Kind == backend.OpndReg || needsLoadARM(o) {
		return dst.Load(o)
	}
	return o
}

func pushPassthrough(dst *backend.Assembler, it *backend.DrainingIterator, op backend.Op, text string, opnds []backend.Opnd, target backend.Target, posMark backend.PosMarkerFn) {
	out := dst.Push(op, text, opnds, target, posMark)
	if out.Kind == backend.OpndInsnOut {
		it.MapInsnIndex(out.InsnOutIdx)
	} else {
		it.MapInsnIndex(len(dst.Insns) - 1)
	}
}
