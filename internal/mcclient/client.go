// Package mcclient implements the MC protocol client side: a persistent
// TCP connection that frames requests, serializes a per-call serial number,
// and decodes replies into typed results or typed errors.
package mcclient

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"mcplc/internal/device"
	"mcplc/internal/mc"
)

// PLCError wraps a non-OK MC end code returned by a live PLC/mock, so
// callers can errors.As to recover the numeric code.
type PLCError struct {
	Command, Subcommand uint16
	EndCode              uint16
}

func (e *PLCError) Error() string {
	return fmt.Sprintf("mcclient: PLC returned end code 0x%04X for command 0x%04X/0x%04X",
		e.EndCode, e.Command, e.Subcommand)
}

// Option configures a Client at construction.
type Option func(*Client)

// WithTimeout sets the per-call socket deadline. Default 3s, matching the
// original reference client's ConnectionConfig.timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithCorrelation overrides the network/PC/module-IO/station fields echoed
// on every frame. Defaults match the worked wire example: network 0, PC
// 0xFF, module IO 0x03FF, station 0.
func WithCorrelation(networkNo, pcNo byte, destModuleIO uint16, destModuleStation byte) Option {
	return func(c *Client) {
		c.networkNo, c.pcNo, c.destModuleIO, c.destModuleStation = networkNo, pcNo, destModuleIO, destModuleStation
	}
}

// WithMonitoringTimer sets the MC monitoring-timer field, in 250ms units.
func WithMonitoringTimer(units uint16) Option {
	return func(c *Client) { c.monitoringTimer = units }
}

// Client is a persistent-connection MC protocol client bound to one series
// (and thus one wire family).
type Client struct {
	host   string
	port   int
	series device.Series
	family mc.Family

	timeout           time.Duration
	networkNo         byte
	pcNo              byte
	destModuleIO      uint16
	destModuleStation byte
	monitoringTimer   uint16

	mu       sync.Mutex
	conn     net.Conn
	serialNo uint16
}

// NewClient builds a client for host:port, talking the wire family implied
// by series.
func NewClient(host string, port int, series device.Series, opts ...Option) *Client {
	c := &Client{
		host:              host,
		port:              port,
		series:            series,
		family:            mc.FamilyForSeries(series),
		timeout:           3 * time.Second,
		pcNo:              0xFF,
		destModuleIO:      0x03FF,
		monitoringTimer:   0x0010,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connected reports whether the client currently holds an open socket.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Connect opens the TCP connection. A no-op if already connected.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}
	addr := fmt.Sprintf("%s:%d", c.host, c.port)
	conn, err := net.DialTimeout("tcp", addr, c.timeout)
	if err != nil {
		return fmt.Errorf("mcclient: connect %s: %w", addr, err)
	}
	c.conn = conn
	return nil
}

// Disconnect closes the socket, if open.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) nextSerial() uint16 {
	c.serialNo++
	return c.serialNo
}

// doRequest sends req and returns the decoded reply, or a typed error:
// *mc.ConnectionClosed if the socket isn't open or drops mid-call,
// *mc.Timeout on a deadline exceeded, *PLCError on a non-OK end code.
func (c *Client) doRequest(req *mc.Request) (*mc.Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, &mc.ConnectionClosed{Detail: "not connected"}
	}

	req.Family = c.family
	req.SerialNo = c.nextSerial()
	req.NetworkNo = c.networkNo
	req.PCNo = c.pcNo
	req.DestModuleIO = c.destModuleIO
	req.DestModuleStation = c.destModuleStation
	req.MonitoringTimer = c.monitoringTimer

	out, err := mc.EncodeRequest(req)
	if err != nil {
		return nil, fmt.Errorf("mcclient: encode request: %w", err)
	}

	deadline := time.Now().Add(c.timeout)
	_ = c.conn.SetDeadline(deadline)

	if _, err := c.conn.Write(out); err != nil {
		c.closeLocked()
		if isTimeout(err) {
			return nil, &mc.Timeout{Detail: "write deadline exceeded"}
		}
		return nil, &mc.ConnectionClosed{Detail: err.Error()}
	}

	header := make([]byte, c.family.HeaderLen())
	if _, err := io.ReadFull(c.conn, header); err != nil {
		c.closeLocked()
		if isTimeout(err) {
			return nil, &mc.Timeout{Detail: "read deadline exceeded"}
		}
		return nil, &mc.ConnectionClosed{Detail: err.Error()}
	}
	dataLen, err := mc.PeekDataLength(header, c.family)
	if err != nil {
		c.closeLocked()
		return nil, fmt.Errorf("mcclient: %w", err)
	}
	body := make([]byte, dataLen)
	if len(body) > 0 {
		if _, err := io.ReadFull(c.conn, body); err != nil {
			c.closeLocked()
			if isTimeout(err) {
				return nil, &mc.Timeout{Detail: "read deadline exceeded"}
			}
			return nil, &mc.ConnectionClosed{Detail: err.Error()}
		}
	}

	rep, err := mc.DecodeReply(append(header, body...), c.family, req)
	if err != nil {
		return nil, fmt.Errorf("mcclient: decode reply: %w", err)
	}
	if rep.EndCode != mc.EndOK {
		return nil, &PLCError{Command: req.Command, Subcommand: req.Subcommand, EndCode: rep.EndCode}
	}
	return rep, nil
}

func (c *Client) closeLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// ReadWord reads a single word device.
func (c *Client) ReadWord(class device.Class, head int) (uint16, error) {
	words, err := c.ReadWords(class, head, 1)
	if err != nil {
		return 0, err
	}
	return words[0], nil
}

// ReadWords reads count consecutive word devices starting at head.
func (c *Client) ReadWords(class device.Class, head, count int) ([]uint16, error) {
	rep, err := c.doRequest(&mc.Request{
		Command:    mc.CmdBatchRead,
		Subcommand: mc.SubWord,
		Address:    mc.Address{Class: class, Head: uint32(head)},
		Count:      uint16(count),
	})
	if err != nil {
		return nil, err
	}
	return rep.ReadWords, nil
}

// WriteWord writes a single word device.
func (c *Client) WriteWord(class device.Class, head int, value uint16) error {
	return c.WriteWords(class, head, []uint16{value})
}

// WriteWords writes consecutive word devices starting at head.
func (c *Client) WriteWords(class device.Class, head int, values []uint16) error {
	_, err := c.doRequest(&mc.Request{
		Command:    mc.CmdBatchWrite,
		Subcommand: mc.SubWord,
		Address:    mc.Address{Class: class, Head: uint32(head)},
		Count:      uint16(len(values)),
		WriteWords: values,
	})
	return err
}

// ReadBit reads a single bit device.
func (c *Client) ReadBit(class device.Class, head int) (bool, error) {
	bits, err := c.ReadBits(class, head, 1)
	if err != nil {
		return false, err
	}
	return bits[0], nil
}

// ReadBits reads count consecutive bit devices starting at head.
func (c *Client) ReadBits(class device.Class, head, count int) ([]bool, error) {
	rep, err := c.doRequest(&mc.Request{
		Command:    mc.CmdBatchRead,
		Subcommand: mc.SubBit,
		Address:    mc.Address{Class: class, Head: uint32(head)},
		Count:      uint16(count),
	})
	if err != nil {
		return nil, err
	}
	return rep.ReadBits, nil
}

// WriteBit writes a single bit device.
func (c *Client) WriteBit(class device.Class, head int, value bool) error {
	return c.WriteBits(class, head, []bool{value})
}

// WriteBits writes consecutive bit devices starting at head.
func (c *Client) WriteBits(class device.Class, head int, values []bool) error {
	_, err := c.doRequest(&mc.Request{
		Command:    mc.CmdBatchWrite,
		Subcommand: mc.SubBit,
		Address:    mc.Address{Class: class, Head: uint32(head)},
		Count:      uint16(len(values)),
		WriteBits:  values,
	})
	return err
}

// ReadCPUModel reads the PLC's CPU model-name string.
func (c *Client) ReadCPUModel() (string, error) {
	rep, err := c.doRequest(&mc.Request{Command: mc.CmdCPUModel, Subcommand: mc.SubNone})
	if err != nil {
		return "", err
	}
	return rep.CPUModel, nil
}

// RemoteRun issues the remote RUN command.
func (c *Client) RemoteRun() error {
	_, err := c.doRequest(&mc.Request{Command: mc.CmdRemoteRun, Subcommand: mc.SubNone})
	return err
}

// RemoteStop issues the remote STOP command.
func (c *Client) RemoteStop() error {
	_, err := c.doRequest(&mc.Request{Command: mc.CmdRemoteStop, Subcommand: mc.SubNone})
	return err
}

// RemotePause issues the remote PAUSE command.
func (c *Client) RemotePause() error {
	_, err := c.doRequest(&mc.Request{Command: mc.CmdRemotePause, Subcommand: mc.SubNone})
	return err
}

// RemoteReset issues the remote RESET command.
func (c *Client) RemoteReset() error {
	_, err := c.doRequest(&mc.Request{Command: mc.CmdRemoteReset, Subcommand: mc.SubNone})
	return err
}

// TestConnection pings the PLC by reading D0, the same probe the reference
// client uses, swallowing any error into a bool.
func (c *Client) TestConnection() bool {
	_, err := c.ReadWord(device.ClassD, 0)
	return err == nil
}
