package mcclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcplc/internal/device"
	"mcplc/internal/mc"
)

func TestClient_NotConnectedReturnsConnectionClosed(t *testing.T) {
	c := NewClient("127.0.0.1", 0, device.SeriesQ)
	assert.False(t, c.Connected())

	_, err := c.ReadWord(device.ClassD, 0)
	require.Error(t, err)
	_, ok := err.(*mc.ConnectionClosed)
	assert.True(t, ok, "expected *mc.ConnectionClosed, got %T", err)
}

func TestClient_DisconnectIsIdempotent(t *testing.T) {
	c := NewClient("127.0.0.1", 0, device.SeriesQ)
	c.Disconnect()
	c.Disconnect()
	assert.False(t, c.Connected())
}

func TestClient_DefaultsMatchReferenceClient(t *testing.T) {
	c := NewClient("127.0.0.1", 5000, device.SeriesQ)
	assert.Equal(t, byte(0xFF), c.pcNo)
	assert.Equal(t, uint16(0x03FF), c.destModuleIO)
	assert.Equal(t, mc.Family3E, c.family)
}

func TestClient_IQRSeriesSelectsFamily4E(t *testing.T) {
	c := NewClient("127.0.0.1", 5000, device.SeriesIQR)
	assert.Equal(t, mc.Family4E, c.family)
}

func TestClient_WithOptionsOverrideDefaults(t *testing.T) {
	c := NewClient("127.0.0.1", 5000, device.SeriesQ,
		WithCorrelation(1, 0x02, 0x0400, 3),
		WithMonitoringTimer(0x0020),
	)
	assert.Equal(t, byte(1), c.networkNo)
	assert.Equal(t, byte(0x02), c.pcNo)
	assert.Equal(t, uint16(0x0400), c.destModuleIO)
	assert.Equal(t, byte(3), c.destModuleStation)
	assert.Equal(t, uint16(0x0020), c.monitoringTimer)
}

func TestPLCError_Error(t *testing.T) {
	err := &PLCError{Command: mc.CmdBatchRead, Subcommand: mc.SubWord, EndCode: mc.EndAddressOutOfRange}
	assert.Contains(t, err.Error(), "0xC050")
}

func TestClient_NextSerialIncrements(t *testing.T) {
	c := NewClient("127.0.0.1", 5000, device.SeriesQ)
	first := c.nextSerial()
	second := c.nextSerial()
	assert.Equal(t, first+1, second)
}
