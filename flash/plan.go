// Package flash sequences whole-image programming and ranged dumps on
// top of a RAM kernel session, at erase-block granularity with
// erase-before-program and verify-after-program.
package flash

import (
	"fmt"

	"mxflash/ramkernel"
)

// BlockDevice is the slice of the kernel session the sequencers need.
// *ramkernel.Session satisfies it; tests substitute recording fakes.
type BlockDevice interface {
	EraseBlock(index uint32) error
	ProgramBlock(index uint32, data []byte) error
	ReadBlock(index uint32, length uint32) ([]byte, error)
}

// BlockWrite is one step of a programming plan: Length image bytes at
// SourceOff land in block Index behind Pad leading zero bytes.
type BlockWrite struct {
	Index     uint32
	SourceOff uint32
	Pad       uint32
	Length    uint32
}

// Plan schedules every block touched by [start, start+imageLen) once,
// in ascending index order. The plan is computed up front and consumed
// sequentially, which makes a failed run resumable at the failed
// block. Start addresses off a block boundary get a zero lead-in pad,
// since the device only programs from block bases.
func Plan(geo ramkernel.FlashGeometry, start uint32, imageLen uint32) ([]BlockWrite, error) {
	bs := geo.BlockSize
	if bs == 0 {
		return nil, fmt.Errorf("flash: geometry has zero block size")
	}
	if imageLen == 0 {
		return nil, fmt.Errorf("flash: image is empty")
	}
	if geo.TotalSize > 0 {
		if end := uint64(start) + uint64(imageLen); end > uint64(geo.TotalSize) {
			return nil, fmt.Errorf("flash: image [0x%08X, 0x%08X) exceeds device capacity %d",
				start, end, geo.TotalSize)
		}
	}

	var plan []BlockWrite
	var off uint32
	for off < imageLen {
		addr := start + off
		index := addr / bs
		inBlock := addr % bs

		length := bs - inBlock
		if remaining := imageLen - off; remaining < length {
			length = remaining
		}

		plan = append(plan, BlockWrite{
			Index:     index,
			SourceOff: off,
			Pad:       inBlock,
			Length:    length,
		})
		off += length
	}
	return plan, nil
}
