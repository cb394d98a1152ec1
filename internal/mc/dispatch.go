package mc

import (
	"mcplc/internal/cpumode"
	"mcplc/internal/device"
)

// CPUModel is the model-name string the mock reports for CPU Model Name
// reads. Real CPUs return a model-specific string; the mock always reports
// the same one since it isn't emulating a particular hardware SKU.
const CPUModel = "Q06UDVCPU"

// Dispatcher executes decoded requests against a Device Memory and a shared
// CPU-mode cell, producing replies (including error replies carrying an end
// code) rather than Go errors for every recoverable failure.
type Dispatcher struct {
	Memory *device.Memory
	Mode   *cpumode.Cell
	// ResetAll is called on Remote RESET, after which Mode is set to STOP.
	// Kept as a field (not a direct call to Memory.ResetAll) so the ladder
	// engine's own reset hook (clearing its private timer/counter state)
	// can be wired in alongside the device-memory clear.
	ResetAll func()
	// OnRun is called on Remote RUN, after Mode is set to RUN. Wired to the
	// ladder engine's Start, so a remote RUN actually resumes scanning
	// instead of just flipping the mode cell.
	OnRun func()
	// OnStop is called on Remote STOP, after Mode is set to STOP. Wired to
	// the ladder engine's Stop.
	OnStop func()
	// OnPause is called on Remote PAUSE, after Mode is set to PAUSE. Wired
	// to the ladder engine's Stop — the engine has no separate paused-but-
	// resumable state, so PAUSE halts the scan loop the same way STOP does.
	OnPause func()
}

// Handle executes req and returns the reply to send back, with the same
// family/correlation fields as the request. It never returns a non-nil
// error for a recoverable condition — those surface as a reply with a
// non-zero end code.
func (d *Dispatcher) Handle(req *Request) *Reply {
	rep := &Reply{
		Family:            req.Family,
		SerialNo:          req.SerialNo,
		NetworkNo:         req.NetworkNo,
		PCNo:              req.PCNo,
		DestModuleIO:      req.DestModuleIO,
		DestModuleStation: req.DestModuleStation,
	}

	switch {
	case req.Command == CmdBatchRead && req.Subcommand == SubWord:
		words, err := d.Memory.ReadWords(req.Address.Class, int(req.Address.Head), int(req.Count))
		if err != nil {
			rep.EndCode = endCodeFromDeviceErr(err).EndCode()
			return rep
		}
		rep.ReadWords = words

	case req.Command == CmdBatchRead && req.Subcommand == SubBit:
		bits, err := d.Memory.ReadBits(req.Address.Class, int(req.Address.Head), int(req.Count))
		if err != nil {
			rep.EndCode = endCodeFromDeviceErr(err).EndCode()
			return rep
		}
		rep.ReadBits = bits

	case req.Command == CmdBatchWrite && req.Subcommand == SubWord:
		if err := d.Memory.WriteWords(req.Address.Class, int(req.Address.Head), req.WriteWords); err != nil {
			rep.EndCode = endCodeFromDeviceErr(err).EndCode()
			return rep
		}

	case req.Command == CmdBatchWrite && req.Subcommand == SubBit:
		if err := d.Memory.WriteBits(req.Address.Class, int(req.Address.Head), req.WriteBits); err != nil {
			rep.EndCode = endCodeFromDeviceErr(err).EndCode()
			return rep
		}

	case req.Command == CmdCPUModel:
		rep.CPUModel = CPUModel

	case req.Command == CmdRemoteRun:
		d.Mode.Set(cpumode.Run)
		if d.OnRun != nil {
			d.OnRun()
		}

	case req.Command == CmdRemoteStop:
		d.Mode.Set(cpumode.Stop)
		if d.OnStop != nil {
			d.OnStop()
		}

	case req.Command == CmdRemotePause:
		d.Mode.Set(cpumode.Pause)
		if d.OnPause != nil {
			d.OnPause()
		}

	case req.Command == CmdRemoteReset:
		if d.ResetAll != nil {
			d.ResetAll()
		}
		d.Memory.ResetAll()
		d.Mode.Set(cpumode.Stop)

	default:
		rep.EndCode = EndInvalidCommand
		return rep
	}

	rep.EndCode = EndOK
	return rep
}
