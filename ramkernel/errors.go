package ramkernel

import (
	"errors"
	"fmt"
)

var (
	// ErrNoKernelConfigured means a flash operation was attempted but
	// no RAM kernel image was ever loaded on this session.
	ErrNoKernelConfigured = errors.New("ramkernel: no RAM kernel configured for this board")

	// ErrStartupTimeout means the kernel never completed its start-up
	// handshake inside the configured window.
	ErrStartupTimeout = errors.New("ramkernel: kernel start-up handshake timed out")

	// ErrNotIdentified means a flash operation was attempted before a
	// successful Identify on this session.
	ErrNotIdentified = errors.New("ramkernel: flash not identified; call Identify first")

	// ErrSessionClosed means the session has been closed or reset and
	// can no longer accept commands.
	ErrSessionClosed = errors.New("ramkernel: session closed")
)

// CommandError reports a negative acknowledgement from the kernel.
type CommandError struct {
	Op  string
	Ack uint16
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("ramkernel: %s failed: %s (0x%04X)", e.Op, ackString(e.Ack), e.Ack)
}

// ChecksumError reports that a dump payload did not match the checksum
// the kernel computed on its side.
type ChecksumError struct {
	Expected uint16 // reported by the device
	Computed uint16 // computed on the host
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("ramkernel: payload checksum mismatch: device 0x%04X, host 0x%04X",
		e.Expected, e.Computed)
}

// EraseError reports a failed block erase.
type EraseError struct {
	Block uint32
	Ack   uint16
}

func (e *EraseError) Error() string {
	return fmt.Sprintf("ramkernel: erase block %d failed: %s (0x%04X)", e.Block, ackString(e.Ack), e.Ack)
}

// ProgramError reports a failed block program.
type ProgramError struct {
	Block uint32
	Ack   uint16
}

func (e *ProgramError) Error() string {
	return fmt.Sprintf("ramkernel: program block %d failed: %s (0x%04X)", e.Block, ackString(e.Ack), e.Ack)
}
