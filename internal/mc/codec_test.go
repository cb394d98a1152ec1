package mc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcplc/internal/device"
)

func TestCodec_BatchReadWordRoundTrip3E(t *testing.T) {
	req := &Request{
		Family:            Family3E,
		NetworkNo:         0,
		PCNo:              0xFF,
		DestModuleIO:      0x03FF,
		DestModuleStation: 0,
		MonitoringTimer:   0x0010,
		Command:           CmdBatchRead,
		Subcommand:        SubWord,
		Address:           Address{Class: device.ClassD, Head: 0},
		Count:             1,
	}
	buf, err := EncodeRequest(req)
	require.NoError(t, err)

	// Matches the worked example in the reference wire-protocol doc.
	assert.Equal(t, []byte{
		0x50, 0x00, 0x00, 0xFF, 0xFF, 0x03, 0x00, 0x0C, 0x00,
		0x10, 0x00, 0x01, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0xA8, 0x01, 0x00,
	}, buf)

	decoded, err := DecodeRequest(buf, Family3E)
	require.NoError(t, err)
	assert.Equal(t, req.Command, decoded.Command)
	assert.Equal(t, req.Subcommand, decoded.Subcommand)
	assert.Equal(t, req.Address, decoded.Address)
	assert.Equal(t, req.Count, decoded.Count)
}

func TestCodec_BatchReadWordRoundTrip4E(t *testing.T) {
	req := &Request{
		Family:          Family4E,
		SerialNo:        42,
		PCNo:            0xFF,
		DestModuleIO:    0x03FF,
		MonitoringTimer: 4,
		Command:         CmdBatchRead,
		Subcommand:      SubWord,
		Address:         Address{Class: device.ClassD, Head: 10},
		Count:           3,
	}
	buf, err := EncodeRequest(req)
	require.NoError(t, err)

	decoded, err := DecodeRequest(buf, Family4E)
	require.NoError(t, err)
	assert.Equal(t, req.SerialNo, decoded.SerialNo)
	assert.Equal(t, req.Address, decoded.Address)
	assert.Equal(t, req.Count, decoded.Count)
}

func TestCodec_BatchWriteBitRoundTrip(t *testing.T) {
	req := &Request{
		Family:      Family3E,
		Command:     CmdBatchWrite,
		Subcommand:  SubBit,
		Address:     Address{Class: device.ClassM, Head: 0},
		Count:       4,
		WriteBits:   []bool{true, false, true, true},
	}
	buf, err := EncodeRequest(req)
	require.NoError(t, err)

	decoded, err := DecodeRequest(buf, Family3E)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true, true}, decoded.WriteBits)
}

func TestCodec_BitPackLayout(t *testing.T) {
	// Scenario 2: write M0..M3 = [1,0,1,1], read 4 bits, expect 0x10 0x11.
	packed := packBits([]bool{true, false, true, true})
	assert.Equal(t, []byte{0x10, 0x11}, packed)

	packed = packBits([]bool{true, false, true, true, true})
	assert.Equal(t, []byte{0x10, 0x11, 0x10}, packed)
}

func TestCodec_ReplyRoundTripSuccess(t *testing.T) {
	rep := &Reply{Family: Family3E, ReadWords: []uint16{1234}}
	buf := EncodeReply(rep)

	req := &Request{Command: CmdBatchRead, Subcommand: SubWord, Count: 1}
	decoded, err := DecodeReply(buf, Family3E, req)
	require.NoError(t, err)
	assert.Equal(t, uint16(EndOK), decoded.EndCode)
	assert.Equal(t, []uint16{1234}, decoded.ReadWords)
}

func TestCodec_ReplyRoundTripFailure4E(t *testing.T) {
	rep := &Reply{Family: Family4E, SerialNo: 7, EndCode: EndRangeOverflow}
	buf := EncodeReply(rep)

	decoded, err := DecodeReply(buf, Family4E, nil)
	require.NoError(t, err)
	assert.Equal(t, uint16(7), decoded.SerialNo)
	assert.Equal(t, EndRangeOverflow, decoded.EndCode)
}

func TestCodec_FrameLengthMismatch(t *testing.T) {
	buf := []byte{0x50, 0x00, 0x00, 0xFF, 0xFF, 0x03, 0x00, 0xFF, 0x00, 0x10, 0x00, 0x01, 0x04}
	_, err := DecodeRequest(buf, Family3E)
	var mismatch *FrameLengthMismatch
	require.ErrorAs(t, err, &mismatch)
}

func TestCodec_UnknownSubheaderIsProtocolError(t *testing.T) {
	buf := make([]byte, HeaderLen3E)
	_, err := DecodeRequest(buf, Family3E)
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
}

func TestFamilyForSeries(t *testing.T) {
	assert.Equal(t, Family3E, FamilyForSeries(device.SeriesQ))
	assert.Equal(t, Family4E, FamilyForSeries(device.SeriesIQR))
}

func TestPeekDataLength(t *testing.T) {
	req := &Request{Family: Family3E, Command: CmdBatchRead, Subcommand: SubWord, Address: Address{Class: device.ClassD, Head: 0}, Count: 1}
	buf, err := EncodeRequest(req)
	require.NoError(t, err)

	n, err := PeekDataLength(buf[:HeaderLen3E], Family3E)
	require.NoError(t, err)
	assert.Equal(t, uint16(len(buf)-HeaderLen3E), n)
}
