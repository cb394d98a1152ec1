// Package ladtext parses and renders the line-oriented GX-Works-style text
// form of a ladder program, as a strict bijection with ladder.Program's
// programmatic builder: every mnemonic the builder exposes is recognized
// here, and nothing else is.
package ladtext

import (
	"fmt"
	"strconv"
	"strings"

	"mcplc/internal/device"
	"mcplc/internal/ladder"
)

// Parse consumes a full text program and returns the compiled instruction
// list, or a *ladder.LadderParseError aggregating every malformed line —
// never a partial program.
func Parse(text string, name string) (*ladder.Program, error) {
	prog := ladder.NewProgram(name)
	var perr ladder.LadderParseError

	lines := strings.Split(text, "\n")
	for i, raw := range lines {
		lineNo := i + 1
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "//") {
			continue
		}
		upper := strings.ToUpper(line)
		if strings.HasPrefix(upper, "NETWORK") || strings.HasPrefix(upper, "COMMENT") {
			continue // section/annotation markers carry no instruction
		}

		fields := strings.Fields(line)
		mnemonic := strings.ToUpper(fields[0])
		operands := fields[1:]

		if err := apply(prog, mnemonic, operands); err != nil {
			perr.Errors = append(perr.Errors, ladder.LineError{
				Line:   lineNo,
				Token:  mnemonic,
				Reason: err.Error(),
			})
		}
	}

	if len(perr.Errors) > 0 {
		return nil, &perr
	}
	return prog, nil
}

// apply dispatches one instruction line's mnemonic+operands onto prog. This
// switch is the bijection: every case here has a matching Program builder
// method, and every Program builder method has a case here.
func apply(prog *ladder.Program, mnemonic string, operands []string) error {
	need := func(n int) error {
		if len(operands) != n {
			return fmt.Errorf("%s expects %d operand(s), got %d", mnemonic, n, len(operands))
		}
		return nil
	}

	switch mnemonic {
	case "LD", "LDI", "AND", "ANI", "OR", "ORI", "OUT", "SET", "RST", "PLS", "PLF":
		if err := need(1); err != nil {
			return err
		}
		d, err := parseDevice(operands[0])
		if err != nil {
			return err
		}
		switch mnemonic {
		case "LD":
			prog.LD(d)
		case "LDI":
			prog.LDI(d)
		case "AND":
			prog.AND(d)
		case "ANI":
			prog.ANI(d)
		case "OR":
			prog.OR(d)
		case "ORI":
			prog.ORI(d)
		case "OUT":
			prog.OUT(d)
		case "SET":
			prog.SET(d)
		case "RST":
			prog.RST(d)
		case "PLS":
			prog.PLS(d)
		case "PLF":
			prog.PLF(d)
		}

	case "ANB":
		if err := need(0); err != nil {
			return err
		}
		prog.ANB()
	case "ORB":
		if err := need(0); err != nil {
			return err
		}
		prog.ORB()
	case "MPS":
		if err := need(0); err != nil {
			return err
		}
		prog.MPS()
	case "MRD":
		if err := need(0); err != nil {
			return err
		}
		prog.MRD()
	case "MPP":
		if err := need(0); err != nil {
			return err
		}
		prog.MPP()

	case "OUT_T", "OUT_C":
		if err := need(2); err != nil {
			return err
		}
		n, err := strconv.Atoi(operands[0])
		if err != nil {
			return fmt.Errorf("%s: invalid number %q", mnemonic, operands[0])
		}
		k, err := parseImmediate(operands[1])
		if err != nil {
			return err
		}
		if mnemonic == "OUT_T" {
			prog.OUTT(n, int(k))
		} else {
			prog.OUTC(n, int(k))
		}

	case "RST_T", "RST_C":
		if err := need(1); err != nil {
			return err
		}
		n, err := strconv.Atoi(operands[0])
		if err != nil {
			return fmt.Errorf("%s: invalid number %q", mnemonic, operands[0])
		}
		if mnemonic == "RST_T" {
			prog.RSTT(n)
		} else {
			prog.RSTC(n)
		}

	case "MOV":
		if err := need(2); err != nil {
			return err
		}
		src, err := parseOperand(operands[0])
		if err != nil {
			return err
		}
		dst, err := parseDevice(operands[1])
		if err != nil {
			return err
		}
		prog.MOV(src, dst)

	case "ADD", "SUB", "MUL", "DIV":
		if err := need(3); err != nil {
			return err
		}
		a, err := parseOperand(operands[0])
		if err != nil {
			return err
		}
		b, err := parseOperand(operands[1])
		if err != nil {
			return err
		}
		dst, err := parseDevice(operands[2])
		if err != nil {
			return err
		}
		switch mnemonic {
		case "ADD":
			prog.ADD(a, b, dst)
		case "SUB":
			prog.SUB(a, b, dst)
		case "MUL":
			prog.MUL(a, b, dst)
		case "DIV":
			prog.DIV(a, b, dst)
		}

	case "END":
		if err := need(0); err != nil {
			return err
		}
		prog.END()

	default:
		return fmt.Errorf("unrecognized mnemonic %q", mnemonic)
	}
	return nil
}

// ParseDeviceRef parses a single device reference like "D0" or "TC3" into
// its class and head number, for callers (the client CLI) that need one
// device operand without building a whole program.
func ParseDeviceRef(tok string) (device.Class, int, error) {
	op, err := parseDevice(tok)
	if err != nil {
		return "", 0, err
	}
	return op.Class, op.Head, nil
}

// parseOperand accepts either a device reference or a K/H immediate —
// the grammar for MOV/ADD/SUB/MUL/DIV's value operands.
func parseOperand(tok string) (ladder.Operand, error) {
	u := strings.ToUpper(tok)
	if strings.HasPrefix(u, "K") || strings.HasPrefix(u, "H") {
		v, err := parseImmediate(tok)
		if err != nil {
			return ladder.Operand{}, err
		}
		return ladder.K(v), nil
	}
	return parseDevice(tok)
}

// parseImmediate accepts K<decimal> or H<hex>, both signed 16-bit.
func parseImmediate(tok string) (int16, error) {
	u := strings.ToUpper(strings.TrimSpace(tok))
	switch {
	case strings.HasPrefix(u, "K"):
		v, err := strconv.ParseInt(u[1:], 10, 16)
		if err != nil {
			return 0, fmt.Errorf("malformed K-immediate %q", tok)
		}
		return int16(v), nil
	case strings.HasPrefix(u, "H"):
		v, err := strconv.ParseInt(u[1:], 16, 32)
		if err != nil {
			return 0, fmt.Errorf("malformed H-immediate %q", tok)
		}
		return int16(v), nil
	default:
		return 0, fmt.Errorf("expected K or H immediate, got %q", tok)
	}
}

// twoLetterClasses lists the device classes whose text prefix is two
// letters, checked before the one-letter classes to avoid e.g. "T" being
// mistaken for a one-letter match against "TC".
var twoLetterClasses = []device.Class{
	device.ClassTC, device.ClassTS, device.ClassCC, device.ClassCS,
	device.ClassSM, device.ClassSB, device.ClassTN, device.ClassCN,
	device.ClassSD, device.ClassSW, device.ClassZR,
}

// parseDevice accepts a device reference like "X0", "M100", "TC3", "D12",
// "ZR1000" — a class prefix followed by a head number in that class's
// radix.
func parseDevice(tok string) (ladder.Operand, error) {
	u := strings.ToUpper(strings.TrimSpace(tok))

	for _, c := range twoLetterClasses {
		p := string(c)
		if strings.HasPrefix(u, p) {
			return finishDevice(c, u[len(p):], tok)
		}
	}
	if len(u) < 2 {
		return ladder.Operand{}, fmt.Errorf("malformed device reference %q", tok)
	}
	c := device.Class(u[:1])
	if _, ok := device.LookupClass(c); ok {
		return finishDevice(c, u[1:], tok)
	}
	return ladder.Operand{}, fmt.Errorf("unknown device class in %q", tok)
}

func finishDevice(c device.Class, addr string, tok string) (ladder.Operand, error) {
	def, ok := device.LookupClass(c)
	if !ok {
		return ladder.Operand{}, fmt.Errorf("unknown device class %q", c)
	}
	base := 10
	if def.Radix == device.RadixHex {
		base = 16
	}
	head, err := strconv.ParseInt(addr, base, 32)
	if err != nil || head < 0 {
		return ladder.Operand{}, fmt.Errorf("malformed address in device reference %q", tok)
	}
	return ladder.Dev(c, int(head)), nil
}
