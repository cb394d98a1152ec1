package ladtext

import (
	"fmt"
	"strconv"
	"strings"

	"mcplc/internal/device"
	"mcplc/internal/ladder"
)

// Render turns a compiled program back into its text form, one instruction
// per line; an END line appears only where p itself contains END. The
// output is a valid input to Parse, and
// Parse(Render(p)) reproduces p's instruction list exactly — the other half
// of the bijection Parse enforces.
func Render(p *ladder.Program) string {
	var b strings.Builder
	for _, inst := range p.Instructions {
		switch inst.Op {
		case ladder.OpLD, ladder.OpLDI, ladder.OpAND, ladder.OpANI,
			ladder.OpOR, ladder.OpORI, ladder.OpOUT, ladder.OpSET,
			ladder.OpRST, ladder.OpPLS, ladder.OpPLF:
			fmt.Fprintf(&b, "%s %s\n", inst.Op, renderOperand(inst.Operand))

		case ladder.OpANB, ladder.OpORB, ladder.OpMPS, ladder.OpMRD, ladder.OpMPP, ladder.OpEND:
			fmt.Fprintf(&b, "%s\n", inst.Op)

		case ladder.OpOUTT, ladder.OpOUTC:
			n := inst.TimerNo
			if inst.Op == ladder.OpOUTC {
				n = inst.CounterNo
			}
			fmt.Fprintf(&b, "%s %d K%d\n", inst.Op, n, inst.Preset)

		case ladder.OpRSTT:
			fmt.Fprintf(&b, "%s %d\n", inst.Op, inst.TimerNo)
		case ladder.OpRSTC:
			fmt.Fprintf(&b, "%s %d\n", inst.Op, inst.CounterNo)

		case ladder.OpMOV:
			fmt.Fprintf(&b, "MOV %s %s\n", renderOperand(inst.Src1), renderOperand(inst.Dst))

		case ladder.OpADD, ladder.OpSUB, ladder.OpMUL, ladder.OpDIV:
			fmt.Fprintf(&b, "%s %s %s %s\n", inst.Op,
				renderOperand(inst.Src1), renderOperand(inst.Src2), renderOperand(inst.Dst))
		}
	}
	return b.String()
}

func renderOperand(op ladder.Operand) string {
	if op.IsConst {
		return "K" + strconv.Itoa(int(op.Const))
	}
	def, ok := device.LookupClass(op.Class)
	if ok && def.Radix == device.RadixHex {
		return fmt.Sprintf("%s%X", op.Class, op.Head)
	}
	return fmt.Sprintf("%s%d", op.Class, op.Head)
}
