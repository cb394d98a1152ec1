// Package mc implements the wire codec for Mitsubishi's MELSEC Communication
// protocol: frame encode/decode for the 3E and 4E families, the device-code
// table, and end-code mapping.
package mc

import (
	"encoding/binary"
	"fmt"

	"mcplc/internal/device"
)

// Family distinguishes the two supported frame layouts.
type Family int

const (
	Family3E Family = iota
	Family4E
)

func (f Family) String() string {
	if f == Family4E {
		return "4E"
	}
	return "3E"
}

// FamilyForSeries derives the wire family from the PLC series: Q speaks 3E,
// iQ-R speaks 4E. There is no independent frame-family flag.
func FamilyForSeries(s device.Series) Family {
	if s == device.SeriesIQR {
		return Family4E
	}
	return Family3E
}

// Fixed header lengths, header subheader being the first two bytes of each.
const (
	HeaderLen3E = 9
	HeaderLen4E = 13
)

// HeaderLen returns the fixed prefix length (subheader through the
// data-length field) for the given family.
func (f Family) HeaderLen() int {
	if f == Family4E {
		return HeaderLen4E
	}
	return HeaderLen3E
}

// Subheader magic values, request and reply, as read little-endian from a
// frame's first two bytes. The wire carries the subheader high byte first
// (a 3E request starts 50 00), so each constant is the byte-swapped form of
// the conventional 0x5000/0xD000/0x5400/0xD400 magic.
const (
	Subheader3EReq uint16 = 0x0050
	Subheader3ERep uint16 = 0x00D0
	Subheader4EReq uint16 = 0x0054
	Subheader4ERep uint16 = 0x00D4
)

// Command/subcommand pairs this codec supports.
const (
	CmdBatchRead    uint16 = 0x0401
	CmdBatchWrite   uint16 = 0x1401
	CmdCPUModel     uint16 = 0x0101
	CmdRemoteStop   uint16 = 0x1001
	CmdRemoteRun    uint16 = 0x1002
	CmdRemotePause  uint16 = 0x1003
	CmdRemoteReset  uint16 = 0x1006

	SubWord uint16 = 0x0001
	SubBit  uint16 = 0x0003
	SubNone uint16 = 0x0000
)

// End codes. 0x0000 is success; the rest map 1:1 to the error kinds in
// errors.go.
const (
	EndOK                  uint16 = 0x0000
	EndAddressOutOfRange   uint16 = 0xC050
	EndPointCountError     uint16 = 0xC051
	EndRangeOverflow       uint16 = 0xC056
	EndInvalidCommand      uint16 = 0xC059
	EndInvalidDevice       uint16 = 0xC05C
	EndFrameLengthMismatch uint16 = 0xC061
)

// PeekDataLength reads the request/response data-length field out of a
// frame's fixed header. It sits at the last two bytes of the header prefix
// in both families, so the helper needs no family-specific branch beyond
// picking the offset.
func PeekDataLength(header []byte, f Family) (uint16, error) {
	n := f.HeaderLen()
	if len(header) < n {
		return 0, fmt.Errorf("%w: header too short: got %d want %d", ErrProtocol, len(header), n)
	}
	return binary.LittleEndian.Uint16(header[n-2 : n]), nil
}

// Address is a decoded device reference: class and head number.
type Address struct {
	Class device.Class
	Head  uint32
}

// Request is a decoded MC request frame, independent of wire family.
type Request struct {
	Family             Family
	SerialNo           uint16 // 4E only; zero for 3E
	NetworkNo          byte
	PCNo               byte
	DestModuleIO       uint16
	DestModuleStation  byte
	MonitoringTimer    uint16
	Command            uint16
	Subcommand         uint16
	Address            Address
	Count              uint16   // point count for batch ops
	WriteWords         []uint16 // payload for batch word write
	WriteBits          []bool   // payload for batch bit write
}

// Reply is a decoded/encoded MC reply frame, independent of wire family.
type Reply struct {
	Family            Family
	SerialNo          uint16
	NetworkNo         byte
	PCNo              byte
	DestModuleIO      uint16
	DestModuleStation byte
	EndCode           uint16
	ReadWords         []uint16
	ReadBits          []bool
	CPUModel          string
}
