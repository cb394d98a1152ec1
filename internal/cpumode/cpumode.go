// Package cpumode holds the PLC's global run-mode cell, shared by reference
// between the MC dispatcher and the ladder engine.
package cpumode

import "sync/atomic"

// Mode is the CPU's operating mode.
type Mode int32

const (
	Stop Mode = iota
	Run
	Pause
	Reset
)

func (m Mode) String() string {
	switch m {
	case Run:
		return "RUN"
	case Pause:
		return "PAUSE"
	case Reset:
		return "RESET"
	default:
		return "STOP"
	}
}

// Cell is an atomic-valued holder for the current mode. Zero value is STOP,
// matching the PLC's initial state.
type Cell struct {
	v atomic.Int32
}

// NewCell returns a cell initialized to STOP.
func NewCell() *Cell {
	c := &Cell{}
	c.v.Store(int32(Stop))
	return c
}

// Get reads the current mode.
func (c *Cell) Get() Mode {
	return Mode(c.v.Load())
}

// Set unconditionally stores a new mode.
func (c *Cell) Set(m Mode) {
	c.v.Store(int32(m))
}
