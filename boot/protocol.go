// Package boot implements the serial boot protocol exposed by the
// i.MX-class boot ROM over a UART or USB link: peek/poke of target
// memory, streaming an image into RAM, and handing control to it.
//
// The wire format is fixed by the chip's hardware interface: commands
// are zero-padded to exactly 16 bytes with big-endian fields, and the
// ROM answers with little-endian 32-bit status words.
package boot

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"mxflash/channel"
)

// Boot ROM command opcodes.
const (
	cmdReadMemory     uint16 = 0x0101
	cmdWriteMemory    uint16 = 0x0202
	cmdWriteFile      uint16 = 0x0404
	cmdGetStatus      uint16 = 0x0505
	cmdReenumerateUSB uint16 = 0x0909
)

// Width is a memory access width. The wire encoding happens to be the
// width in bits, so the values double as both.
type Width uint8

const (
	Width8  Width = 8
	Width16 Width = 16
	Width32 Width = 32
)

// Valid reports whether w is one of the three access widths the ROM
// understands.
func (w Width) Valid() bool {
	return w == Width8 || w == Width16 || w == Width32
}

// Bytes returns the width in bytes.
func (w Width) Bytes() int { return int(w) / 8 }

// FileType selects how the ROM treats a write-file payload.
type FileType uint8

const (
	// FileTypeApplication terminates the serial protocol and runs the
	// downloaded image.
	FileTypeApplication FileType = 0xAA
	// FileTypeCSF is a command sequence file (secure boot mode only).
	FileTypeCSF FileType = 0xCC
	// FileTypeDCD is a device configuration data table.
	FileTypeDCD FileType = 0xEE
)

// Acknowledge words.
const (
	// AckProductionPart acknowledges a command on production-security parts.
	AckProductionPart uint32 = 0x12343412
	// AckEngineeringPart acknowledges a command on engineering-security parts.
	AckEngineeringPart uint32 = 0x56787856
	// AckWriteSuccess follows the command ACK on a successful memory write.
	AckWriteSuccess uint32 = 0x128A8A12
)

// commandSize is the fixed frame size every command is padded to.
const commandSize = 16

// writeFileChunkSize bounds each link write while streaming an image.
const writeFileChunkSize = 1024

// Protocol drives the boot ROM command/response exchange over one
// exclusively owned channel. Operations are synchronous and must not
// be issued concurrently: the ROM is strictly half-duplex and only one
// command may be outstanding at a time.
type Protocol struct {
	ch channel.Channel
}

func NewProtocol(ch channel.Channel) *Protocol {
	return &Protocol{ch: ch}
}

// Channel returns the underlying link, e.g. for handing off to the
// RAM kernel session once the ROM protocol is done.
func (p *Protocol) Channel() channel.Channel { return p.ch }

func (p *Protocol) writeCommand(cmd []byte) error {
	frame := make([]byte, commandSize)
	copy(frame, cmd)
	return channel.WriteFull(p.ch, frame)
}

func (p *Protocol) readStatus(op string) (uint32, error) {
	var raw [4]byte
	if err := channel.ReadFull(p.ch, raw[:]); err != nil {
		var te *channel.TimeoutError
		if errors.As(err, &te) && te.Got > 0 {
			// A truncated status word is a framing problem, not a
			// quiet link.
			return 0, &MalformedResponseError{Op: op, Want: 4, Got: te.Got}
		}
		return 0, err
	}
	// Status words come back in CPU (little-endian) order.
	return binary.LittleEndian.Uint32(raw[:]), nil
}

func (p *Protocol) readAck(op string) error {
	status, err := p.readStatus(op)
	if err != nil {
		return err
	}
	if status != AckProductionPart && status != AckEngineeringPart {
		return &UnacknowledgedError{Op: op, Status: status}
	}
	return nil
}

// GetStatus queries and returns the ROM status word.
func (p *Protocol) GetStatus() (uint32, error) {
	cmd := make([]byte, 2)
	binary.BigEndian.PutUint16(cmd, cmdGetStatus)
	if err := p.writeCommand(cmd); err != nil {
		return 0, err
	}
	return p.readStatus("get status")
}

// ReadMemory reads count successive width-sized units starting at
// address and returns the raw bytes in target (little-endian) order.
func (p *Protocol) ReadMemory(address uint32, width Width, count uint32) ([]byte, error) {
	if !width.Valid() {
		return nil, fmt.Errorf("boot: invalid access width %d", width)
	}
	if count == 0 {
		return nil, fmt.Errorf("boot: read count must be non-zero")
	}

	cmd := make([]byte, 11)
	binary.BigEndian.PutUint16(cmd[0:], cmdReadMemory)
	binary.BigEndian.PutUint32(cmd[2:], address)
	cmd[6] = byte(width)
	binary.BigEndian.PutUint32(cmd[7:], count)
	if err := p.writeCommand(cmd); err != nil {
		return nil, err
	}

	if err := p.readAck("read memory"); err != nil {
		return nil, err
	}

	data := make([]byte, int(count)*width.Bytes())
	if err := channel.ReadFull(p.ch, data); err != nil {
		return nil, err
	}
	return data, nil
}

// ReadWord reads a single width-sized value from address.
func (p *Protocol) ReadWord(address uint32, width Width) (uint32, error) {
	data, err := p.ReadMemory(address, width, 1)
	if err != nil {
		return 0, err
	}
	switch width {
	case Width8:
		return uint32(data[0]), nil
	case Width16:
		return uint32(binary.LittleEndian.Uint16(data)), nil
	default:
		return binary.LittleEndian.Uint32(data), nil
	}
}

// WriteMemory writes a single width-sized value to address. It
// succeeds only on the explicit write-success acknowledgement; the ROM
// signals a failed write by not answering at all after the initial
// ACK, which surfaces here as an UnacknowledgedError.
func (p *Protocol) WriteMemory(address uint32, width Width, value uint32) error {
	if !width.Valid() {
		return fmt.Errorf("boot: invalid access width %d", width)
	}
	if width != Width32 && value>>(width) != 0 {
		return fmt.Errorf("boot: value 0x%X does not fit in %d bits", value, width)
	}

	cmd := make([]byte, 15)
	binary.BigEndian.PutUint16(cmd[0:], cmdWriteMemory)
	binary.BigEndian.PutUint32(cmd[2:], address)
	cmd[6] = byte(width)
	// 4 pad bytes, then the value right-aligned in a big-endian
	// 4-byte field regardless of width.
	binary.BigEndian.PutUint32(cmd[11:], value)
	if err := p.writeCommand(cmd); err != nil {
		return err
	}

	if err := p.readAck("write memory"); err != nil {
		return err
	}

	status, err := p.readStatus("write memory")
	if err != nil {
		if channel.IsTimeout(err) {
			// No second status word is how the ROM reports a failed write.
			return &UnacknowledgedError{Op: "write memory", Status: 0}
		}
		return err
	}
	if status != AckWriteSuccess {
		return &UnacknowledgedError{Op: "write memory", Status: status}
	}
	return nil
}

// WriteFile streams length bytes from r into target memory at address.
// The payload is chunked to the link's frame size; progress, if non-nil,
// is called after every chunk with the running byte count.
//
// Writing a FileTypeApplication image must be followed by CompleteBoot
// to transfer control to it.
func (p *Protocol) WriteFile(filetype FileType, address uint32, r io.Reader, length uint32, progress func(written, total uint32)) error {
	cmd := make([]byte, commandSize)
	binary.BigEndian.PutUint16(cmd[0:], cmdWriteFile)
	binary.BigEndian.PutUint32(cmd[2:], address)
	binary.BigEndian.PutUint32(cmd[7:], length)
	cmd[15] = byte(filetype)
	if err := p.writeCommand(cmd); err != nil {
		return err
	}

	if err := p.readAck("write file"); err != nil {
		return err
	}

	var written uint32
	buf := make([]byte, writeFileChunkSize)
	for written < length {
		want := uint32(len(buf))
		if remaining := length - written; remaining < want {
			want = remaining
		}
		n, err := io.ReadFull(r, buf[:want])
		if n == 0 {
			return fmt.Errorf("boot: write file: image stream ended early after %d of %d bytes: %w",
				written, length, err)
		}
		if werr := channel.WriteFull(p.ch, buf[:n]); werr != nil {
			return werr
		}
		written += uint32(n)
		if progress != nil {
			progress(written, length)
		}
	}
	return nil
}

// CompleteBoot finishes the serial protocol after writing an
// application image and lets the ROM transfer control to it. Control
// leaves the ROM, so success means only that the ROM reported protocol
// completion; there is no program-level confirmation.
func (p *Protocol) CompleteBoot() error {
	status, err := p.GetStatus()
	if err != nil {
		return err
	}
	if status != BootProtocolComplete {
		return &UnacknowledgedError{Op: "complete boot", Status: status}
	}
	return nil
}

// ReenumerateUSB forces the ROM to re-enumerate its USB PHY with the
// given 4-byte serial number.
func (p *Protocol) ReenumerateUSB(serial [4]byte) error {
	cmd := make([]byte, 13)
	binary.BigEndian.PutUint16(cmd[0:], cmdReenumerateUSB)
	copy(cmd[9:], serial[:])
	if err := p.writeCommand(cmd); err != nil {
		return err
	}

	var resp [4]byte
	if err := channel.ReadFull(p.ch, resp[:]); err != nil {
		return err
	}
	if resp != [4]byte{0x89, 0x23, 0x23, 0x89} {
		return &UnacknowledgedError{Op: "reenumerate usb", Status: binary.BigEndian.Uint32(resp[:])}
	}
	return nil
}
