package mc

import (
	"encoding/binary"
	"fmt"

	"mcplc/internal/device"
)

// packBits packs bits two-per-byte, high nibble first, zero-padding an odd
// final bit.
func packBits(bits []bool) []byte {
	out := make([]byte, (len(bits)+1)/2)
	for i, b := range bits {
		if !b {
			continue
		}
		if i%2 == 0 {
			out[i/2] |= 0x10
		} else {
			out[i/2] |= 0x01
		}
	}
	return out
}

// unpackBits reverses packBits for exactly count bits.
func unpackBits(data []byte, count int) []bool {
	out := make([]bool, count)
	for i := 0; i < count; i++ {
		byt := data[i/2]
		if i%2 == 0 {
			out[i] = byt&0x10 != 0
		} else {
			out[i] = byt&0x01 != 0
		}
	}
	return out
}

// encodeAddress writes a device reference in the wire width for f.
func encodeAddress(addr Address, f Family) ([]byte, error) {
	def, ok := device.LookupClass(addr.Class)
	if !ok {
		return nil, &InvalidDevice{Detail: fmt.Sprintf("unknown class %s", addr.Class)}
	}
	buf := make([]byte, 4, 6)
	buf[0] = byte(addr.Head)
	buf[1] = byte(addr.Head >> 8)
	buf[2] = byte(addr.Head >> 16)
	if f == Family4E {
		buf[3] = 0x00 // reserved
		buf = append(buf, byte(def.Code3E), 0x00)
		return buf, nil
	}
	buf[3] = def.Code3E
	return buf, nil
}

// decodeAddress reads a device reference in the wire width for f.
func decodeAddress(data []byte, f Family) (Address, int, error) {
	n := 4
	if f == Family4E {
		n = 6
	}
	if len(data) < n {
		return Address{}, 0, &ProtocolError{Detail: "truncated address field"}
	}
	head := uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16
	var code byte
	if f == Family4E {
		code = data[4] // low byte of the zero-extended 2-byte code
	} else {
		code = data[3]
	}
	class, _, ok := device.ClassByCode3E(code)
	if !ok {
		return Address{}, 0, &InvalidDevice{Detail: fmt.Sprintf("unknown device code 0x%02X", code)}
	}
	return Address{Class: class, Head: head}, n, nil
}

// EncodeRequest serializes a decoded request back to wire bytes.
func EncodeRequest(req *Request) ([]byte, error) {
	var payload []byte
	payload = append(payload, byte(req.Command), byte(req.Command>>8))
	payload = append(payload, byte(req.Subcommand), byte(req.Subcommand>>8))

	switch req.Command {
	case CmdBatchRead:
		addr, err := encodeAddress(req.Address, req.Family)
		if err != nil {
			return nil, err
		}
		payload = append(payload, addr...)
		payload = append(payload, byte(req.Count), byte(req.Count>>8))
	case CmdBatchWrite:
		addr, err := encodeAddress(req.Address, req.Family)
		if err != nil {
			return nil, err
		}
		payload = append(payload, addr...)
		payload = append(payload, byte(req.Count), byte(req.Count>>8))
		if req.Subcommand == SubBit {
			payload = append(payload, packBits(req.WriteBits)...)
		} else {
			for _, w := range req.WriteWords {
				payload = append(payload, byte(w), byte(w>>8))
			}
		}
	case CmdCPUModel, CmdRemoteStop, CmdRemoteRun, CmdRemotePause, CmdRemoteReset:
		// no further payload
	default:
		return nil, &InvalidCommand{Command: req.Command, Subcommand: req.Subcommand}
	}

	dataLen := 2 /*monitoring timer*/ + len(payload)

	var out []byte
	if req.Family == Family4E {
		out = make([]byte, 0, HeaderLen4E+dataLen)
		out = append16(out, Subheader4EReq)
		out = append16(out, req.SerialNo)
		out = append16(out, 0x0000) // reserved
	} else {
		out = make([]byte, 0, HeaderLen3E+dataLen)
		out = append16(out, Subheader3EReq)
	}
	out = append(out, req.NetworkNo, req.PCNo)
	out = append16(out, req.DestModuleIO)
	out = append(out, req.DestModuleStation)
	out = append16(out, uint16(dataLen))
	out = append16(out, req.MonitoringTimer)
	out = append(out, payload...)
	return out, nil
}

// DecodeRequest parses a full request frame (header + data) already
// identified as family f by its subheader.
func DecodeRequest(buf []byte, f Family) (*Request, error) {
	n := f.HeaderLen()
	if len(buf) < n {
		return nil, &ProtocolError{Detail: "frame shorter than fixed header"}
	}
	sub := binary.LittleEndian.Uint16(buf[0:2])
	wantReq := Subheader3EReq
	if f == Family4E {
		wantReq = Subheader4EReq
	}
	if sub != wantReq {
		return nil, &ProtocolError{Detail: fmt.Sprintf("unexpected subheader 0x%04X", sub)}
	}

	req := &Request{Family: f}
	off := 2
	if f == Family4E {
		req.SerialNo = binary.LittleEndian.Uint16(buf[off:])
		off += 2
		off += 2 // reserved
	}
	req.NetworkNo = buf[off]
	req.PCNo = buf[off+1]
	req.DestModuleIO = binary.LittleEndian.Uint16(buf[off+2:])
	req.DestModuleStation = buf[off+4]
	off += 5
	dataLen := binary.LittleEndian.Uint16(buf[off:])
	off += 2

	data := buf[off:]
	if int(dataLen) != len(data) {
		return nil, &FrameLengthMismatch{Declared: int(dataLen), Actual: len(data)}
	}
	if len(data) < 6 {
		return nil, &ProtocolError{Detail: "data field too short for monitoring timer + command"}
	}
	req.MonitoringTimer = binary.LittleEndian.Uint16(data[0:2])
	req.Command = binary.LittleEndian.Uint16(data[2:4])
	req.Subcommand = binary.LittleEndian.Uint16(data[4:6])
	body := data[6:]

	switch req.Command {
	case CmdBatchRead:
		addr, n, err := decodeAddress(body, f)
		if err != nil {
			return nil, err
		}
		if len(body) < n+2 {
			return nil, &ProtocolError{Detail: "truncated batch read payload"}
		}
		req.Address = addr
		req.Count = binary.LittleEndian.Uint16(body[n:])
	case CmdBatchWrite:
		addr, n, err := decodeAddress(body, f)
		if err != nil {
			return nil, err
		}
		if len(body) < n+2 {
			return nil, &ProtocolError{Detail: "truncated batch write payload"}
		}
		req.Address = addr
		req.Count = binary.LittleEndian.Uint16(body[n:])
		rest := body[n+2:]
		if req.Subcommand == SubBit {
			need := (int(req.Count) + 1) / 2
			if len(rest) < need {
				return nil, &ProtocolError{Detail: "truncated bit write data"}
			}
			req.WriteBits = unpackBits(rest, int(req.Count))
		} else {
			need := int(req.Count) * 2
			if len(rest) < need {
				return nil, &ProtocolError{Detail: "truncated word write data"}
			}
			req.WriteWords = make([]uint16, req.Count)
			for i := range req.WriteWords {
				req.WriteWords[i] = binary.LittleEndian.Uint16(rest[i*2:])
			}
		}
	case CmdCPUModel, CmdRemoteStop, CmdRemoteRun, CmdRemotePause, CmdRemoteReset:
		// no payload expected
	default:
		return nil, &InvalidCommand{Command: req.Command, Subcommand: req.Subcommand}
	}
	return req, nil
}

// EncodeReply serializes a decoded reply back to wire bytes.
func EncodeReply(rep *Reply) []byte {
	var payload []byte
	payload = append16(payload, rep.EndCode)

	if rep.EndCode == EndOK {
		switch {
		case rep.CPUModel != "":
			name := make([]byte, 16)
			copy(name, []byte(rep.CPUModel))
			for i := len(rep.CPUModel); i < 16; i++ {
				name[i] = ' '
			}
			payload = append(payload, name...)
			payload = append16(payload, 0x0000) // model code, unused by the mock
		case rep.ReadBits != nil:
			payload = append(payload, packBits(rep.ReadBits)...)
		case rep.ReadWords != nil:
			for _, w := range rep.ReadWords {
				payload = append16(payload, w)
			}
		}
	} else if rep.Family == Family4E {
		payload = append16(payload, 0x0000) // abort error info, zero for the mock
	}

	dataLen := len(payload)

	var out []byte
	if rep.Family == Family4E {
		out = make([]byte, 0, HeaderLen4E+dataLen)
		out = append16(out, Subheader4ERep)
		out = append16(out, rep.SerialNo)
		out = append16(out, 0x0000)
	} else {
		out = make([]byte, 0, HeaderLen3E+dataLen)
		out = append16(out, Subheader3ERep)
	}
	out = append(out, rep.NetworkNo, rep.PCNo)
	out = append16(out, rep.DestModuleIO)
	out = append(out, rep.DestModuleStation)
	out = append16(out, uint16(dataLen))
	out = append(out, payload...)
	return out
}

// DecodeReply parses a full reply frame for the request that produced it,
// so the caller must supply the command/subcommand/count context needed to
// know how to interpret the success payload.
func DecodeReply(buf []byte, f Family, req *Request) (*Reply, error) {
	n := f.HeaderLen()
	if len(buf) < n {
		return nil, &ProtocolError{Detail: "reply shorter than fixed header"}
	}
	sub := binary.LittleEndian.Uint16(buf[0:2])
	wantRep := Subheader3ERep
	if f == Family4E {
		wantRep = Subheader4ERep
	}
	if sub != wantRep {
		return nil, &ProtocolError{Detail: fmt.Sprintf("unexpected reply subheader 0x%04X", sub)}
	}

	rep := &Reply{Family: f}
	off := 2
	if f == Family4E {
		rep.SerialNo = binary.LittleEndian.Uint16(buf[off:])
		off += 2
		off += 2
	}
	rep.NetworkNo = buf[off]
	rep.PCNo = buf[off+1]
	rep.DestModuleIO = binary.LittleEndian.Uint16(buf[off+2:])
	rep.DestModuleStation = buf[off+4]
	off += 5
	dataLen := binary.LittleEndian.Uint16(buf[off:])
	off += 2

	data := buf[off:]
	if int(dataLen) != len(data) {
		return nil, &FrameLengthMismatch{Declared: int(dataLen), Actual: len(data)}
	}
	if len(data) < 2 {
		return nil, &ProtocolError{Detail: "reply data too short for end code"}
	}
	rep.EndCode = binary.LittleEndian.Uint16(data[0:2])
	body := data[2:]

	if rep.EndCode != EndOK {
		return rep, nil
	}
	if req == nil {
		return rep, nil
	}
	switch req.Command {
	case CmdCPUModel:
		end := 16
		if len(body) < end {
			end = len(body)
		}
		rep.CPUModel = trimModelName(body[:end])
	case CmdBatchRead:
		if req.Subcommand == SubBit {
			rep.ReadBits = unpackBits(body, int(req.Count))
		} else {
			words := make([]uint16, req.Count)
			for i := range words {
				words[i] = binary.LittleEndian.Uint16(body[i*2:])
			}
			rep.ReadWords = words
		}
	}
	return rep, nil
}

func trimModelName(b []byte) string {
	i := len(b)
	for i > 0 && b[i-1] == ' ' {
		i--
	}
	return string(b[:i])
}

func append16(b []byte, v uint16) []byte {
	return append(b, byte(v), byte(v>>8))
}
