package flash

import (
	"bytes"
	"log"

	"mxflash/ramkernel"
)

// Stage names the step of a programming run a progress report or
// failure refers to.
type Stage int

const (
	StageErase Stage = iota
	StageProgram
	StageVerify
)

func (s Stage) String() string {
	switch s {
	case StageErase:
		return "erase"
	case StageProgram:
		return "program"
	case StageVerify:
		return "verify"
	default:
		return "invalid"
	}
}

// Progress is called after each completed stage of each block with the
// count of finished blocks and the plan size.
type Progress func(stage Stage, block uint32, done, total int)

// Programmer writes an entire image to flash block by block:
// erase, program, read back, compare, in ascending block order. Out of
// order writes can corrupt wear-leveling and ECC metadata on
// NAND-class media, so the ordering is a correctness requirement, not
// a convenience.
type Programmer struct {
	Device   BlockDevice
	Geometry ramkernel.FlashGeometry
	Progress Progress
}

func (p *Programmer) report(stage Stage, block uint32, done, total int) {
	if p.Progress != nil {
		p.Progress(stage, block, done, total)
	}
}

// Run programs image to flash starting at start. Each planned block is
// erased, programmed (tail blocks zero-padded to a full block), and
// read back for a byte-for-byte compare. Any failure is terminal for
// the run and carries the block index (and first differing offset for
// verify) so the caller can resume from exactly there: erase+program
// on an already-erased block is idempotent by flash semantics, so
// restarting at the failed index is safe. Nothing is retried here;
// retry is caller policy.
func (p *Programmer) Run(image []byte, start uint32) error {
	plan, err := Plan(p.Geometry, start, uint32(len(image)))
	if err != nil {
		return err
	}

	bs := p.Geometry.BlockSize
	total := len(plan)
	log.Printf("flash: programming %d bytes at 0x%08X across %d blocks\n", len(image), start, total)

	for i, bw := range plan {
		payload := make([]byte, bs)
		copy(payload[bw.Pad:], image[bw.SourceOff:bw.SourceOff+bw.Length])

		if err := p.Device.EraseBlock(bw.Index); err != nil {
			return &EraseFailedError{Block: bw.Index, Err: err}
		}
		p.report(StageErase, bw.Index, i, total)

		if err := p.Device.ProgramBlock(bw.Index, payload); err != nil {
			return &ProgramFailedError{Block: bw.Index, Err: err}
		}
		p.report(StageProgram, bw.Index, i, total)

		got, err := p.Device.ReadBlock(bw.Index, uint32(len(payload)))
		if err != nil {
			return &ReadFailedError{Block: bw.Index, Err: err}
		}
		if off := firstDiff(payload, got); off >= 0 {
			return &VerifyMismatchError{Block: bw.Index, Offset: off}
		}
		p.report(StageVerify, bw.Index, i+1, total)
	}
	return nil
}

// firstDiff returns the first offset where want and got differ, or -1.
// A short read differs at its own length: the verify contract is that
// the read-back returns exactly the programmed length.
func firstDiff(want, got []byte) int {
	n := len(want)
	if len(got) < n {
		n = len(got)
	}
	for i := 0; i < n; i++ {
		if want[i] != got[i] {
			return i
		}
	}
	if len(want) != len(got) {
		return n
	}
	return -1
}

// Verify re-reads [start, start+len(image)) and compares it against
// image without writing anything, using the same block plan as Run.
func (p *Programmer) Verify(image []byte, start uint32) error {
	plan, err := Plan(p.Geometry, start, uint32(len(image)))
	if err != nil {
		return err
	}
	bs := p.Geometry.BlockSize

	for _, bw := range plan {
		payload := make([]byte, bs)
		copy(payload[bw.Pad:], image[bw.SourceOff:bw.SourceOff+bw.Length])

		got, err := p.Device.ReadBlock(bw.Index, uint32(len(payload)))
		if err != nil {
			return &ReadFailedError{Block: bw.Index, Err: err}
		}
		// Only the span the image occupies is compared; an unwritten
		// tail after a partial final block is still all zeroes from
		// programming, but a pre-existing tail beyond the image is the
		// board's business.
		lo := bw.Pad
		hi := bw.Pad + bw.Length
		if uint32(len(got)) < hi {
			return &VerifyMismatchError{Block: bw.Index, Offset: len(got)}
		}
		if !bytes.Equal(payload[lo:hi], got[lo:hi]) {
			off := int(lo) + firstDiff(payload[lo:hi], got[lo:hi])
			return &VerifyMismatchError{Block: bw.Index, Offset: off}
		}
	}
	return nil
}
