package ladder

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"mcplc/internal/cpumode"
	"mcplc/internal/device"
)

// runState is the engine's atomic.Int32-backed lifecycle, the same
// CompareAndSwap pattern used for connection-handling lifecycles elsewhere
// in this module.
type runState int32

const (
	stateStopped runState = iota
	stateStarting
	stateRunning
	stateStopping
)

// diagnosticClass/diagnosticHead is the SM-style bit the engine raises on a
// runtime fault (currently: division by zero) instead of panicking.
const (
	diagnosticClass = device.ClassSM
	diagnosticHead  = 1
)

type timerState struct {
	elapsedMs int
}

type counterState struct {
	count    int
	prevAcc  bool
}

// Engine runs one loaded Program on a periodic scan cycle against a shared
// device.Memory, and is driven concurrently by MC remote-control commands
// through mode.
type Engine struct {
	mem        *device.Memory
	mode       *cpumode.Cell
	logger     *zap.Logger
	scanPeriod time.Duration

	mu      sync.Mutex // guards program replace, only permitted while Stopped
	program *Program

	state  atomic.Int32
	cancel context.CancelFunc
	done   chan struct{}

	scanCount atomic.Uint64

	timers    map[int]*timerState
	counters  map[int]*counterState
	pulsePrev []bool // PLS/PLF previous-acc cache, indexed by instruction index
}

// NewEngine builds an engine bound to mem and mode, initially Stopped with
// no program loaded.
func NewEngine(mem *device.Memory, mode *cpumode.Cell, scanPeriod time.Duration, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		mem:        mem,
		mode:       mode,
		logger:     logger.With(zap.String("component", "ladder")),
		scanPeriod: scanPeriod,
		timers:     make(map[int]*timerState),
		counters:   make(map[int]*counterState),
	}
}

// Load installs a new program. Only valid while the engine is Stopped, per
// the "hot-swap only when stopped" ownership rule.
func (e *Engine) Load(p *Program) error {
	if runState(e.state.Load()) != stateStopped {
		return &LadderRuntimeError{Detail: "cannot load a program while the engine is running"}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.program = p
	e.pulsePrev = make([]bool, len(p.Instructions))
	e.timers = make(map[int]*timerState)
	e.counters = make(map[int]*counterState)
	return nil
}

// Start transitions Stopped -> Running and spawns the scan goroutine.
func (e *Engine) Start() error {
	if !e.state.CompareAndSwap(int32(stateStopped), int32(stateStarting)) {
		return nil // already running or mid-transition; idempotent
	}
	e.mu.Lock()
	prog := e.program
	e.mu.Unlock()
	if prog == nil {
		e.state.Store(int32(stateStopped))
		return &LadderRuntimeError{Detail: "no program loaded"}
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	e.mode.Set(cpumode.Run)
	e.state.Store(int32(stateRunning))
	e.logger.Info("engine started", zap.String("program", prog.Name))

	go e.scanLoop(ctx, prog)
	return nil
}

// Stop signals the scan goroutine to stop at its next instruction boundary
// and waits, bounded by a timeout, for it to exit.
func (e *Engine) Stop() error {
	if !e.state.CompareAndSwap(int32(stateRunning), int32(stateStopping)) {
		return nil
	}
	e.cancel()
	select {
	case <-e.done:
	case <-time.After(2 * time.Second):
	}
	e.state.Store(int32(stateStopped))
	e.logger.Info("engine stopped")
	return nil
}

// Reset stops the engine if running, clears device memory, resets the
// engine's own private timer/counter/pulse state, and returns CPU mode to
// STOP.
func (e *Engine) Reset() {
	_ = e.Stop()
	e.mem.ResetAll()
	e.mu.Lock()
	if e.program != nil {
		e.pulsePrev = make([]bool, len(e.program.Instructions))
	}
	e.timers = make(map[int]*timerState)
	e.counters = make(map[int]*counterState)
	e.mu.Unlock()
	e.mode.Set(cpumode.Stop)
}

// ScanCount reports how many scans have completed, for metrics/tests.
func (e *Engine) ScanCount() uint64 { return e.scanCount.Load() }

// EngineState is the engine's exported lifecycle state, for status reporting
// outside the package (internal/metrics, cmd/mcmock).
type EngineState int32

const (
	EngineStopped EngineState = EngineState(stateStopped)
	EngineStarting EngineState = EngineState(stateStarting)
	EngineRunning EngineState = EngineState(stateRunning)
	EngineStopping EngineState = EngineState(stateStopping)
)

func (s EngineState) String() string {
	switch s {
	case EngineStarting:
		return "starting"
	case EngineRunning:
		return "running"
	case EngineStopping:
		return "stopping"
	default:
		return "stopped"
	}
}

// State reports the engine's current lifecycle state.
func (e *Engine) State() EngineState { return EngineState(e.state.Load()) }

func (e *Engine) scanLoop(ctx context.Context, prog *Program) {
	defer close(e.done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		start := time.Now()
		e.executeScan(prog)
		e.scanCount.Add(1)

		elapsed := time.Since(start)
		remaining := e.scanPeriod - elapsed
		if remaining <= 0 {
			continue // overran: next scan starts immediately, no drift makeup
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(remaining):
		}
	}
}

// executeScan runs prog once, start to END, as a stack-based interpreter:
// acc holds the current rung result, blockStack the completed blocks that
// ANB/ORB combine, and branchStack the MPS/MRD/MPP saves. A Stop in
// progress ends the scan at the next instruction boundary.
func (e *Engine) executeScan(prog *Program) {
	var acc bool
	var blockStack, branchStack []bool
	startOfRung := true
	scanMs := int(e.scanPeriod / time.Millisecond)

	for idx, inst := range prog.Instructions {
		if runState(e.state.Load()) == stateStopping {
			return
		}
		switch inst.Op {
		case OpLD:
			if !startOfRung {
				blockStack = append(blockStack, acc)
			}
			acc = e.getBit(inst.Operand)
			startOfRung = false
		case OpLDI:
			if !startOfRung {
				blockStack = append(blockStack, acc)
			}
			acc = !e.getBit(inst.Operand)
			startOfRung = false
		case OpAND:
			acc = acc && e.getBit(inst.Operand)
		case OpANI:
			acc = acc && !e.getBit(inst.Operand)
		case OpOR:
			acc = acc || e.getBit(inst.Operand)
		case OpORI:
			acc = acc || !e.getBit(inst.Operand)
		case OpANB:
			if n := len(blockStack); n > 0 {
				b := blockStack[n-1]
				blockStack = blockStack[:n-1]
				acc = b && acc
			}
		case OpORB:
			if n := len(blockStack); n > 0 {
				b := blockStack[n-1]
				blockStack = blockStack[:n-1]
				acc = b || acc
			}
		case OpMPS:
			branchStack = append(branchStack, acc)
		case OpMRD:
			if n := len(branchStack); n > 0 {
				acc = branchStack[n-1]
			}
		case OpMPP:
			if n := len(branchStack); n > 0 {
				acc = branchStack[n-1]
				branchStack = branchStack[:n-1]
			}

		case OpOUT:
			e.setBit(inst.Operand, acc)
			startOfRung = true
		case OpSET:
			if acc {
				e.setBit(inst.Operand, true)
			}
			startOfRung = true
		case OpRST:
			if acc {
				e.resetDevice(inst.Operand)
			}
			startOfRung = true
		case OpPLS:
			prev := e.pulsePrev[idx]
			e.setBit(inst.Operand, acc && !prev)
			e.pulsePrev[idx] = acc
			startOfRung = true
		case OpPLF:
			prev := e.pulsePrev[idx]
			e.setBit(inst.Operand, !acc && prev)
			e.pulsePrev[idx] = acc
			startOfRung = true

		case OpOUTT:
			e.execTimer(inst.TimerNo, inst.Preset, acc, scanMs)
			startOfRung = true
		case OpOUTC:
			e.execCounter(inst.CounterNo, inst.Preset, acc)
			startOfRung = true
		case OpRSTT:
			if acc {
				e.resetTimer(inst.TimerNo)
			}
			startOfRung = true
		case OpRSTC:
			if acc {
				e.resetCounter(inst.CounterNo)
			}
			startOfRung = true

		case OpMOV:
			if acc {
				e.setWord(inst.Dst, e.getValue(inst.Src1))
			}
			startOfRung = true
		case OpADD:
			if acc {
				e.execArith(inst, func(a, b int32) int32 { return a + b })
			}
			startOfRung = true
		case OpSUB:
			if acc {
				e.execArith(inst, func(a, b int32) int32 { return a - b })
			}
			startOfRung = true
		case OpMUL:
			if acc {
				e.execArith(inst, func(a, b int32) int32 { return a * b })
			}
			startOfRung = true
		case OpDIV:
			if acc {
				e.execDiv(inst)
			}
			startOfRung = true

		case OpEND:
			return
		}
	}
}

func (e *Engine) getBit(op Operand) bool {
	v, err := e.mem.ReadBit(op.Class, op.Head)
	if err != nil {
		e.raiseDiagnostic()
		return false
	}
	return v
}

func (e *Engine) setBit(op Operand, v bool) {
	if err := e.mem.WriteBit(op.Class, op.Head, v); err != nil {
		e.raiseDiagnostic()
	}
}

func (e *Engine) getValue(op Operand) int16 {
	if op.IsConst {
		return op.Const
	}
	v, err := e.mem.ReadWord(op.Class, op.Head)
	if err != nil {
		e.raiseDiagnostic()
		return 0
	}
	return int16(v)
}

func (e *Engine) setWord(op Operand, v int16) {
	if err := e.mem.WriteWord(op.Class, op.Head, uint16(v)); err != nil {
		e.raiseDiagnostic()
	}
}

// resetDevice implements RST's timer/counter special case: clearing a
// timer/counter bit device also clears its paired current-value word.
func (e *Engine) resetDevice(op Operand) {
	e.setBit(op, false)
	switch op.Class {
	case device.ClassTC, device.ClassTS:
		e.resetTimer(op.Head)
	case device.ClassCC, device.ClassCS:
		e.resetCounter(op.Head)
	}
}

func (e *Engine) execTimer(n, presetUnits int, acc bool, scanMs int) {
	st := e.timers[n]
	if st == nil {
		st = &timerState{}
		e.timers[n] = st
	}
	presetMs := presetUnits * 100

	if acc {
		st.elapsedMs += scanMs
		contact := st.elapsedMs >= presetMs
		if contact {
			st.elapsedMs = presetMs
		}
		e.setWord(Dev(device.ClassTN, n), int16(st.elapsedMs/100))
		e.setBit(Dev(device.ClassTS, n), true)
		e.setBit(Dev(device.ClassTC, n), contact)
	} else {
		st.elapsedMs = 0
		e.setWord(Dev(device.ClassTN, n), 0)
		e.setBit(Dev(device.ClassTS, n), false)
		e.setBit(Dev(device.ClassTC, n), false)
	}
}

func (e *Engine) execCounter(n, preset int, acc bool) {
	st := e.counters[n]
	if st == nil {
		st = &counterState{}
		e.counters[n] = st
	}

	if acc && !st.prevAcc && st.count < preset {
		st.count++
	}
	st.prevAcc = acc

	contact := st.count >= preset
	e.setWord(Dev(device.ClassCN, n), int16(st.count))
	e.setBit(Dev(device.ClassCS, n), acc)
	e.setBit(Dev(device.ClassCC, n), contact)
}

func (e *Engine) resetTimer(n int) {
	delete(e.timers, n)
	e.setWord(Dev(device.ClassTN, n), 0)
	e.setBit(Dev(device.ClassTC, n), false)
	e.setBit(Dev(device.ClassTS, n), false)
}

func (e *Engine) resetCounter(n int) {
	delete(e.counters, n)
	e.setWord(Dev(device.ClassCN, n), 0)
	e.setBit(Dev(device.ClassCC, n), false)
	e.setBit(Dev(device.ClassCS, n), false)
}

func (e *Engine) execArith(inst Instruction, op func(int32, int32) int32) {
	a := int32(e.getValue(inst.Src1))
	b := int32(e.getValue(inst.Src2))
	e.setWord(inst.Dst, int16(op(a, b)))
}

func (e *Engine) execDiv(inst Instruction) {
	a := e.getValue(inst.Src1)
	b := e.getValue(inst.Src2)
	if b == 0 {
		e.raiseDiagnostic()
		return // destination preserved
	}
	e.setWord(inst.Dst, a/b)
}

func (e *Engine) raiseDiagnostic() {
	_ = e.mem.WriteBit(diagnosticClass, diagnosticHead, true)
}
