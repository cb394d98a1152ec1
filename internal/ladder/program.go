package ladder

// Program is an ordered, compiled instruction list plus a name used in logs
// and in rendering it back to text (see the ladtext subpackage).
type Program struct {
	Name         string
	Instructions []Instruction
}

// NewProgram starts an empty, named program.
func NewProgram(name string) *Program {
	return &Program{Name: name}
}

func (p *Program) append(i Instruction) *Program {
	p.Instructions = append(p.Instructions, i)
	return p
}

func (p *Program) LD(d Operand) *Program  { return p.append(Instruction{Op: OpLD, Operand: d}) }
func (p *Program) LDI(d Operand) *Program { return p.append(Instruction{Op: OpLDI, Operand: d}) }
func (p *Program) AND(d Operand) *Program { return p.append(Instruction{Op: OpAND, Operand: d}) }
func (p *Program) ANI(d Operand) *Program { return p.append(Instruction{Op: OpANI, Operand: d}) }
func (p *Program) OR(d Operand) *Program  { return p.append(Instruction{Op: OpOR, Operand: d}) }
func (p *Program) ORI(d Operand) *Program { return p.append(Instruction{Op: OpORI, Operand: d}) }

func (p *Program) ANB() *Program { return p.append(Instruction{Op: OpANB}) }
func (p *Program) ORB() *Program { return p.append(Instruction{Op: OpORB}) }
func (p *Program) MPS() *Program { return p.append(Instruction{Op: OpMPS}) }
func (p *Program) MRD() *Program { return p.append(Instruction{Op: OpMRD}) }
func (p *Program) MPP() *Program { return p.append(Instruction{Op: OpMPP}) }

func (p *Program) OUT(d Operand) *Program { return p.append(Instruction{Op: OpOUT, Operand: d}) }
func (p *Program) SET(d Operand) *Program { return p.append(Instruction{Op: OpSET, Operand: d}) }
func (p *Program) RST(d Operand) *Program { return p.append(Instruction{Op: OpRST, Operand: d}) }
func (p *Program) PLS(d Operand) *Program { return p.append(Instruction{Op: OpPLS, Operand: d}) }
func (p *Program) PLF(d Operand) *Program { return p.append(Instruction{Op: OpPLF, Operand: d}) }

func (p *Program) OUTT(timerNo, preset int) *Program {
	return p.append(Instruction{Op: OpOUTT, TimerNo: timerNo, Preset: preset})
}
func (p *Program) OUTC(counterNo, preset int) *Program {
	return p.append(Instruction{Op: OpOUTC, CounterNo: counterNo, Preset: preset})
}
func (p *Program) RSTT(timerNo int) *Program   { return p.append(Instruction{Op: OpRSTT, TimerNo: timerNo}) }
func (p *Program) RSTC(counterNo int) *Program { return p.append(Instruction{Op: OpRSTC, CounterNo: counterNo}) }

func (p *Program) MOV(src, dst Operand) *Program {
	return p.append(Instruction{Op: OpMOV, Src1: src, Dst: dst})
}
func (p *Program) ADD(a, b, dst Operand) *Program {
	return p.append(Instruction{Op: OpADD, Src1: a, Src2: b, Dst: dst})
}
func (p *Program) SUB(a, b, dst Operand) *Program {
	return p.append(Instruction{Op: OpSUB, Src1: a, Src2: b, Dst: dst})
}
func (p *Program) MUL(a, b, dst Operand) *Program {
	return p.append(Instruction{Op: OpMUL, Src1: a, Src2: b, Dst: dst})
}
func (p *Program) DIV(a, b, dst Operand) *Program {
	return p.append(Instruction{Op: OpDIV, Src1: a, Src2: b, Dst: dst})
}

func (p *Program) END() *Program { return p.append(Instruction{Op: OpEND}) }
