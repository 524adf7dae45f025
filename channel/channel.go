package channel

import (
	"io"
	"time"
)

// Kind identifies the physical link variant. The RAM kernel firmware
// distinguishes the two when queuing responses, so the session layer
// needs to know which one it is speaking over.
type Kind int

const (
	KindUART Kind = 0
	KindUSB  Kind = 1
)

func (k Kind) String() string {
	switch k {
	case KindUART:
		return "uart"
	case KindUSB:
		return "usb"
	default:
		return "unknown"
	}
}

// Channel is a point-to-point byte stream to the target processor.
// Read may return fewer bytes than requested only when the read timeout
// window expires; a timed-out Read returns (0, nil) once the internal
// buffer is drained. Disconnects surface as *DisconnectedError.
//
// A Channel is exclusively owned by one protocol engine at a time and
// is not safe for concurrent use.
type Channel interface {
	io.ReadWriteCloser

	// SetReadTimeout bounds every subsequent blocking read.
	SetReadTimeout(d time.Duration) error

	// Kind reports the link variant (UART or USB).
	Kind() Kind
}

// ReadFull reads exactly len(buf) bytes from c, looping over short
// reads. A zero-byte read means the timeout window expired and yields
// a *TimeoutError carrying how far we got.
func ReadFull(c Channel, buf []byte) error {
	o := 0
	for o < len(buf) {
		n, err := c.Read(buf[o:])
		if err != nil {
			return err
		}
		if n <= 0 {
			return &TimeoutError{Op: "read", Want: len(buf), Got: o}
		}
		o += n
	}
	return nil
}

// WriteFull writes all of buf to c, looping over short writes.
func WriteFull(c Channel, buf []byte) error {
	sent := 0
	for sent < len(buf) {
		n, err := c.Write(buf[sent:])
		if err != nil {
			return err
		}
		sent += n
	}
	return nil
}
