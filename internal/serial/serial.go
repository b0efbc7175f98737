package serial

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// Default settings of the updater's debug UART.
const (
	DefaultBaudRate = 115200
	pollTimeout     = 100 * time.Millisecond
)

// Port wraps the serial port the device prints its diagnostics on.
type Port struct {
	port     serial.Port
	portName string
	baudRate int
}

// Open opens a serial port with the specified baud rate, 8N1, no flow
// control.
func Open(portName string, baudRate int) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open port %s: %w", portName, err)
	}

	if err := port.SetReadTimeout(pollTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	return &Port{
		port:     port,
		portName: portName,
		baudRate: baudRate,
	}, nil
}

// Close closes the serial port.
func (p *Port) Close() error {
	if p.port != nil {
		return p.port.Close()
	}
	return nil
}

// Read reads data from the serial port.
func (p *Port) Read(buf []byte) (int, error) {
	return p.port.Read(buf)
}

// Flush discards any buffered input.
func (p *Port) Flush() error {
	return p.port.ResetInputBuffer()
}

// ResetRTS pulses RTS, which resets boards that wire it to RUN.
func (p *Port) ResetRTS() error {
	if err := p.port.SetRTS(true); err != nil {
		return err
	}
	time.Sleep(100 * time.Millisecond)
	return p.port.SetRTS(false)
}

// Copy forwards everything received to w until stop is closed or the port
// fails.
func (p *Port) Copy(w io.Writer, stop <-chan struct{}) error {
	return copyUntil(w, p, stop)
}

// copyUntil polls r, which returns (0, nil) on a read timeout.
func copyUntil(w io.Writer, r io.Reader, stop <-chan struct{}) error {
	buf := make([]byte, 256)
	for {
		select {
		case <-stop:
			return nil
		default:
		}

		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// PortName returns the port name.
func (p *Port) PortName() string {
	return p.portName
}

// BaudRate returns the current baud rate.
func (p *Port) BaudRate() int {
	return p.baudRate
}

// ListPorts returns a list of available serial ports.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, err
	}
	return ports, nil
}
