// Package ramkernel speaks the command/response protocol exposed by a
// RAM kernel: a helper image loaded over the boot ROM protocol that
// knows how to identify, erase, program and dump the board's
// non-volatile flash.
//
// Commands are 16-byte big-endian frames opened by a magic half-word;
// responses are an 8-byte big-endian header (ack, checksum, length)
// optionally followed by a payload of length bytes.
package ramkernel

import (
	"encoding/binary"
	"fmt"

	"mxflash/channel"
)

// headerMagic opens every command frame.
const headerMagic uint16 = 0x0606

// Flash commands.
const (
	cmdFlashInitial     uint16 = 0x0001
	cmdFlashErase       uint16 = 0x0002
	cmdFlashDump        uint16 = 0x0003
	cmdFlashProgram     uint16 = 0x0004
	cmdFlashProgramUB   uint16 = 0x0005
	cmdFlashGetCapacity uint16 = 0x0006
)

// eFUSE commands. Fuse programming is out of scope for this client;
// the opcodes are kept for protocol completeness.
const (
	cmdFuseRead     uint16 = 0x0101
	cmdFuseSense    uint16 = 0x0102
	cmdFuseOverride uint16 = 0x0103
	cmdFuseProgram  uint16 = 0x0104
)

// Common commands.
const (
	cmdReset    uint16 = 0x0201
	cmdDownload uint16 = 0x0202
	cmdExecute  uint16 = 0x0203
	cmdGetVer   uint16 = 0x0204
)

// Acknowledgement codes carried in the response header.
const (
	ackSuccess uint16 = 0x0000
	// ackFlashPartly marks a partial response to a flash command;
	// further responses follow.
	ackFlashPartly uint16 = 0x0001
	// ackFlashErase is a per-block progress response during an erase.
	ackFlashErase uint16 = 0x0002
	// ackFlashVerify is a read-back verify response.
	ackFlashVerify uint16 = 0x0003
	ackFailed      uint16 = 0xFFFF
)

// Flash operation status codes reported in a failed ack.
const (
	flashOK              uint16 = 0
	flashErrorRead       uint16 = 100
	flashErrorECC        uint16 = 101
	flashErrorProg       uint16 = 102
	flashErrorErase      uint16 = 103
	flashErrorVerify     uint16 = 104
	flashErrorInit       uint16 = 105
	flashErrorOverAddr   uint16 = 106
	flashErrorPartErase  uint16 = 107
	flashErrorEOF        uint16 = 108
)

// ackString names an acknowledgement or flash status code.
func ackString(ack uint16) string {
	switch ack {
	case ackSuccess:
		return "success"
	case ackFlashPartly:
		return "partial flash response"
	case ackFlashErase:
		return "flash erase progress"
	case ackFlashVerify:
		return "flash verify response"
	case ackFailed:
		return "command failed"
	case flashErrorRead:
		return "flash read error"
	case flashErrorECC:
		return "flash ECC error"
	case flashErrorProg:
		return "flash program error"
	case flashErrorErase:
		return "flash erase error"
	case flashErrorVerify:
		return "flash verify error"
	case flashErrorInit:
		return "flash init error"
	case flashErrorOverAddr:
		return "flash address out of range"
	case flashErrorPartErase:
		return "flash partial erase error"
	case flashErrorEOF:
		return "flash end of device"
	default:
		return fmt.Sprintf("unknown ack 0x%04X", ack)
	}
}

// response is one decoded response header plus any payload read with it.
type response struct {
	Ack      uint16
	Checksum uint16
	Length   uint32
	Payload  []byte
}

// checksum is the 16-bit byte sum the kernel applies to dump payloads.
func checksum(buf []byte) uint16 {
	var sum uint16
	for _, b := range buf {
		sum += uint16(b)
	}
	return sum
}

// encodeCommand lays out one 16-byte command frame.
func encodeCommand(cmd uint16, address, param1, param2 uint32) []byte {
	frame := make([]byte, 16)
	binary.BigEndian.PutUint16(frame[0:], headerMagic)
	binary.BigEndian.PutUint16(frame[2:], cmd)
	binary.BigEndian.PutUint32(frame[4:], address)
	binary.BigEndian.PutUint32(frame[8:], param1)
	binary.BigEndian.PutUint32(frame[12:], param2)
	return frame
}

// readResponse reads the 8-byte response header and, when withPayload
// is set, the Length bytes of payload queued behind it.
func readResponse(ch channel.Channel, withPayload bool) (*response, error) {
	var hdr [8]byte
	if err := channel.ReadFull(ch, hdr[:]); err != nil {
		return nil, err
	}

	r := &response{
		Ack:      binary.BigEndian.Uint16(hdr[0:]),
		Checksum: binary.BigEndian.Uint16(hdr[2:]),
		Length:   binary.BigEndian.Uint32(hdr[4:]),
	}

	if withPayload && r.Length > 0 {
		r.Payload = make([]byte, r.Length)
		if err := channel.ReadFull(ch, r.Payload); err != nil {
			return nil, err
		}
	}
	return r, nil
}
