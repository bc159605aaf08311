package serialmux

import (
	"fmt"
	"io"

	"go.bug.st/serial"
)

// SerialPorter is the part of a serial port the mux uses. MockPort and
// serial.Port implement it.
type SerialPorter interface {
	io.ReadWriteCloser
}

// NewRealSerialMux opens the receiver at path.
func NewRealSerialMux(path string, opts PortOptions) (*SerialMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s at %s: %w", path, opts, err)
	}
	return NewSerialMux[serial.Port](port), nil
}

// ListPorts returns the serial ports present on this machine.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}
