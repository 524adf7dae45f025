package channel

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// DefaultBaudRate is what the boot ROM UART expects out of reset.
const DefaultBaudRate = 115200

// UART is a serial port channel to the target. The boot ROM speaks
// 115200 8N1 with no flow control.
type UART struct {
	f      serial.Port
	name   string
	closed bool
}

// OpenUART opens the serial port portName configured for the boot ROM.
func OpenUART(portName string) (*UART, error) {
	f, err := serial.Open(portName, &serial.Mode{
		BaudRate: DefaultBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("uart: failed to open %s: %w", portName, err)
	}

	u := &UART{f: f, name: portName}
	if err = u.SetReadTimeout(500 * time.Millisecond); err != nil {
		f.Close()
		return nil, err
	}
	return u, nil
}

func (u *UART) Kind() Kind { return KindUART }

func (u *UART) SetReadTimeout(d time.Duration) error {
	if err := u.f.SetReadTimeout(d); err != nil {
		return fmt.Errorf("uart: set read timeout: %w", err)
	}
	return nil
}

// Read returns (0, nil) when the port's read timeout expires with no
// data, which ReadFull turns into a *TimeoutError.
func (u *UART) Read(p []byte) (int, error) {
	if u.closed {
		return 0, ErrClosed
	}
	n, err := u.f.Read(p)
	if err != nil {
		return n, &DisconnectedError{Cause: err}
	}
	return n, nil
}

func (u *UART) Write(p []byte) (int, error) {
	if u.closed {
		return 0, ErrClosed
	}
	n, err := u.f.Write(p)
	if err != nil {
		return n, &DisconnectedError{Cause: err}
	}
	return n, nil
}

func (u *UART) Close() error {
	if u.closed {
		return nil
	}
	u.closed = true
	if err := u.f.Close(); err != nil {
		return fmt.Errorf("uart: could not close %s: %w", u.name, err)
	}
	return nil
}
