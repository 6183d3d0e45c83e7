package inverter

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goburrow/modbus"
)

// Link is a register transport to the inverter. A link is connected, read
// and closed within a single poll.
type Link interface {
	Connect() error
	ReadInputRegisters(start, count uint16) ([]uint16, error)
	ReadHoldingRegisters(start, count uint16) ([]uint16, error)
	Close() error
}

type modbusHandler interface {
	modbus.ClientHandler
	Connect() error
	Close() error
}

// ModbusLink implements Link over Modbus RTU (a serial device path) or Modbus
// TCP (an address of the form tcp://host:port).
type ModbusLink struct {
	Address  string
	BaudRate int
	SlaveID  byte
	Timeout  time.Duration

	handler modbusHandler
	client  modbus.Client
}

var errNotConnected = errors.New("modbus link not connected")

func (m *ModbusLink) newHandler() modbusHandler {
	if addr, ok := strings.CutPrefix(m.Address, "tcp://"); ok {
		h := modbus.NewTCPClientHandler(addr)
		h.Timeout = m.Timeout
		h.SlaveId = m.SlaveID
		return h
	}
	h := modbus.NewRTUClientHandler(m.Address)
	h.BaudRate = m.BaudRate
	h.DataBits = 8
	h.Parity = "N"
	h.StopBits = 1
	h.SlaveId = m.SlaveID
	h.Timeout = m.Timeout
	return h
}

// Connect opens the serial port or TCP connection.
func (m *ModbusLink) Connect() error {
	h := m.newHandler()
	if err := h.Connect(); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", m.Address, err)
	}
	m.handler = h
	m.client = modbus.NewClient(h)
	return nil
}

// ReadInputRegisters reads count input registers (function 0x04).
func (m *ModbusLink) ReadInputRegisters(start, count uint16) ([]uint16, error) {
	if m.client == nil {
		return nil, errNotConnected
	}
	b, err := m.client.ReadInputRegisters(start, count)
	if err != nil {
		return nil, err
	}
	return bytesToWords(b), nil
}

// ReadHoldingRegisters reads count holding registers (function 0x03).
func (m *ModbusLink) ReadHoldingRegisters(start, count uint16) ([]uint16, error) {
	if m.client == nil {
		return nil, errNotConnected
	}
	b, err := m.client.ReadHoldingRegisters(start, count)
	if err != nil {
		return nil, err
	}
	return bytesToWords(b), nil
}

// Close releases the connection. It is safe to call when not connected.
func (m *ModbusLink) Close() error {
	if m.handler == nil {
		return nil
	}
	err := m.handler.Close()
	m.handler = nil
	m.client = nil
	return err
}

// bytesToWords converts a big-endian register payload into words. A trailing
// odd byte is dropped.
func bytesToWords(b []byte) []uint16 {
	words := make([]uint16, len(b)/2)
	for i := range words {
		words[i] = binary.BigEndian.Uint16(b[2*i:])
	}
	return words
}
