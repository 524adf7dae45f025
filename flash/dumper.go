package flash

import (
	"fmt"

	"mxflash/ramkernel"
)

// Dumper reads an arbitrary byte range out of flash. The range may
// start and end off block boundaries; whole covering blocks are read
// and sliced down to the exact span.
type Dumper struct {
	Device   BlockDevice
	Geometry ramkernel.FlashGeometry
}

// Dump returns exactly length bytes starting at addr. Ranges that
// overflow the 32-bit address space or run past the device capacity
// are rejected up front. A failed or short read of any covering block
// aborts the dump and discards all partial data: a caller cannot tell
// a short result from silently missing data, so nothing partial is
// ever returned.
func (d *Dumper) Dump(addr uint32, length uint32) ([]byte, error) {
	bs := d.Geometry.BlockSize
	if bs == 0 {
		return nil, &ReadFailedError{Block: 0, Err: errZeroBlockSize}
	}
	if length == 0 {
		return []byte{}, nil
	}

	end := uint64(addr) + uint64(length)
	if end > 1<<32 {
		return nil, fmt.Errorf("flash: dump [0x%08X, 0x%X) overflows the device address space", addr, end)
	}
	if d.Geometry.TotalSize > 0 && end > uint64(d.Geometry.TotalSize) {
		return nil, fmt.Errorf("flash: dump [0x%08X, 0x%X) exceeds device capacity %d",
			addr, end, d.Geometry.TotalSize)
	}

	out := make([]byte, 0, length)
	first := addr / bs
	last := uint32((end - 1) / uint64(bs))
	for i := first; i <= last; i++ {
		base := i * bs
		// Read from the block base through the end of the requested
		// span within this block.
		readEnd := uint64(base) + uint64(bs)
		if readEnd > end {
			readEnd = end
		}
		readLen := uint32(readEnd - uint64(base))

		data, err := d.Device.ReadBlock(i, readLen)
		if err != nil {
			return nil, &ReadFailedError{Block: i, Err: err}
		}
		if uint32(len(data)) < readLen {
			return nil, &ReadFailedError{Block: i, Err: errShortRead}
		}

		lo := uint32(0)
		if base < addr {
			lo = addr - base
		}
		out = append(out, data[lo:readLen]...)
	}
	return out, nil
}
