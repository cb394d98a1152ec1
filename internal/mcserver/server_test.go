package mcserver

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcplc/internal/cpumode"
	"mcplc/internal/device"
	"mcplc/internal/mc"
)

func newTestDispatcher() *mc.Dispatcher {
	return &mc.Dispatcher{
		Memory:   device.NewMemory(device.SeriesQ),
		Mode:     cpumode.NewCell(),
		ResetAll: func() {},
	}
}

func TestServer_StartStopLifecycle(t *testing.T) {
	srv := NewServer("127.0.0.1:0", mc.Family3E, newTestDispatcher())
	require.NoError(t, srv.Start(context.Background()))
	assert.Equal(t, StateRunning, srv.State())

	require.NoError(t, srv.Stop())
	assert.Equal(t, StateStopped, srv.State())
}

func TestServer_RawFrameRoundTrip(t *testing.T) {
	srv := NewServer("127.0.0.1:0", mc.Family3E, newTestDispatcher())
	require.NoError(t, srv.Start(context.Background()))
	defer srv.Stop()

	conn, err := net.DialTimeout("tcp", srv.Addr().String(), 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	req := &mc.Request{
		Family:            mc.Family3E,
		PCNo:              0xFF,
		DestModuleIO:      0x03FF,
		MonitoringTimer:   0x0010,
		Command:           mc.CmdBatchRead,
		Subcommand:        mc.SubWord,
		Address:           mc.Address{Class: device.ClassD, Head: 0},
		Count:             1,
	}
	out, err := mc.EncodeRequest(req)
	require.NoError(t, err)

	_, err = conn.Write(out)
	require.NoError(t, err)

	header := make([]byte, mc.HeaderLen3E)
	_, err = readFull(conn, header)
	require.NoError(t, err)
	dataLen := binary.LittleEndian.Uint16(header[mc.HeaderLen3E-2:])
	body := make([]byte, dataLen)
	_, err = readFull(conn, body)
	require.NoError(t, err)

	rep, err := mc.DecodeReply(append(header, body...), mc.Family3E, req)
	require.NoError(t, err)
	assert.Equal(t, mc.EndOK, rep.EndCode)
	require.Len(t, rep.ReadWords, 1)
	assert.Equal(t, uint16(0), rep.ReadWords[0])
}

func TestServer_MalformedFrameClosesConnection(t *testing.T) {
	srv := NewServer("127.0.0.1:0", mc.Family3E, newTestDispatcher())
	require.NoError(t, srv.Start(context.Background()))
	defer srv.Stop()

	conn, err := net.DialTimeout("tcp", srv.Addr().String(), 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	// Wrong subheader magic: unparseable, no end code possible.
	garbage := make([]byte, mc.HeaderLen3E)
	binary.LittleEndian.PutUint16(garbage[0:], 0xFFFF)
	_, err = conn.Write(garbage)
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	assert.Error(t, err, "server closes the connection on an unparseable header")
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
