package flash

import (
	"errors"
	"fmt"
)

var (
	errZeroBlockSize = errors.New("geometry has zero block size")
	errShortRead     = errors.New("device returned fewer bytes than requested")
)

// EraseFailedError aborts a programming run at the named block. The
// run stops immediately so the caller never continues over a
// possibly-mixed erase state; it may be restarted at Block.
type EraseFailedError struct {
	Block uint32
	Err   error
}

func (e *EraseFailedError) Error() string {
	return fmt.Sprintf("flash: erase of block %d failed: %v", e.Block, e.Err)
}

func (e *EraseFailedError) Unwrap() error { return e.Err }

// ProgramFailedError aborts a programming run at the named block.
type ProgramFailedError struct {
	Block uint32
	Err   error
}

func (e *ProgramFailedError) Error() string {
	return fmt.Sprintf("flash: program of block %d failed: %v", e.Block, e.Err)
}

func (e *ProgramFailedError) Unwrap() error { return e.Err }

// VerifyMismatchError reports that the read-back of a programmed block
// differs from its payload, starting at Offset within the block. A
// verify failure usually indicates a hardware fault, so the run is
// never silently re-erased and re-programmed.
type VerifyMismatchError struct {
	Block  uint32
	Offset int
}

func (e *VerifyMismatchError) Error() string {
	return fmt.Sprintf("flash: verify mismatch in block %d at offset %d", e.Block, e.Offset)
}

// ReadFailedError aborts a dump at the named block; any partial data
// is discarded rather than returned.
type ReadFailedError struct {
	Block uint32
	Err   error
}

func (e *ReadFailedError) Error() string {
	return fmt.Sprintf("flash: read of block %d failed: %v", e.Block, e.Err)
}

func (e *ReadFailedError) Unwrap() error { return e.Err }
