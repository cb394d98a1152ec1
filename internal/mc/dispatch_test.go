package mc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcplc/internal/cpumode"
	"mcplc/internal/device"
)

func newDispatcher() *Dispatcher {
	return &Dispatcher{
		Memory: device.NewMemory(device.SeriesQ),
		Mode:   cpumode.NewCell(),
	}
}

func TestDispatch_ReadD0AfterWrite(t *testing.T) {
	d := newDispatcher()

	write := &Request{Command: CmdBatchWrite, Subcommand: SubWord, Address: Address{Class: device.ClassD, Head: 0}, Count: 1, WriteWords: []uint16{1234}}
	rep := d.Handle(write)
	require.Equal(t, uint16(EndOK), rep.EndCode)

	read := &Request{Command: CmdBatchRead, Subcommand: SubWord, Address: Address{Class: device.ClassD, Head: 0}, Count: 1}
	rep = d.Handle(read)
	require.Equal(t, uint16(EndOK), rep.EndCode)
	assert.Equal(t, []uint16{1234}, rep.ReadWords)
}

func TestDispatch_BitPackScenario(t *testing.T) {
	d := newDispatcher()

	write := &Request{Command: CmdBatchWrite, Subcommand: SubBit, Address: Address{Class: device.ClassM, Head: 0}, Count: 4, WriteBits: []bool{true, false, true, true}}
	require.Equal(t, uint16(EndOK), d.Handle(write).EndCode)

	read := &Request{Command: CmdBatchRead, Subcommand: SubBit, Address: Address{Class: device.ClassM, Head: 0}, Count: 4}
	rep := d.Handle(read)
	require.Equal(t, uint16(EndOK), rep.EndCode)
	assert.Equal(t, []bool{true, false, true, true}, rep.ReadBits)
	assert.Equal(t, []byte{0x10, 0x11}, packBits(rep.ReadBits))
}

func TestDispatch_BadAddressRangeOverflow(t *testing.T) {
	d := newDispatcher()

	// D's Q-series max head is 12287; starting a read there that overruns
	// the address space must surface end code 0xC056.
	read := &Request{Command: CmdBatchRead, Subcommand: SubWord, Address: Address{Class: device.ClassD, Head: 12280}, Count: 16}
	rep := d.Handle(read)
	assert.Equal(t, EndRangeOverflow, rep.EndCode)
}

func TestDispatch_HeadAloneOutOfRange(t *testing.T) {
	d := newDispatcher()

	read := &Request{Command: CmdBatchRead, Subcommand: SubWord, Address: Address{Class: device.ClassD, Head: 99999}, Count: 1}
	rep := d.Handle(read)
	assert.Equal(t, EndAddressOutOfRange, rep.EndCode)
}

func TestDispatch_CPUModel(t *testing.T) {
	d := newDispatcher()
	rep := d.Handle(&Request{Command: CmdCPUModel})
	require.Equal(t, uint16(EndOK), rep.EndCode)
	assert.Equal(t, CPUModel, rep.CPUModel)
}

func TestDispatch_RemoteControl(t *testing.T) {
	d := newDispatcher()

	d.Handle(&Request{Command: CmdRemoteRun})
	assert.Equal(t, cpumode.Run, d.Mode.Get())

	d.Handle(&Request{Command: CmdRemoteStop})
	assert.Equal(t, cpumode.Stop, d.Mode.Get())

	require.NoError(t, d.Memory.WriteWord(device.ClassD, 0, 99))
	d.Handle(&Request{Command: CmdRemoteReset})
	assert.Equal(t, cpumode.Stop, d.Mode.Get())
	v, err := d.Memory.ReadWord(device.ClassD, 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), v)
}

func TestDispatch_InvalidCommand(t *testing.T) {
	d := newDispatcher()
	rep := d.Handle(&Request{Command: 0xFFFF})
	assert.Equal(t, EndInvalidCommand, rep.EndCode)
}
