package main

import (
	"fmt"
	"io"
)

const hexBytesPerRow = 16

// writeHexDump renders data the way a bring-up engineer wants to see
// flash: address column, hex bytes, printable ASCII gutter.
func writeHexDump(w io.Writer, data []byte, startAddress uint32) {
	for off := 0; off < len(data); off += hexBytesPerRow {
		end := off + hexBytesPerRow
		if end > len(data) {
			end = len(data)
		}
		row := data[off:end]

		fmt.Fprintf(w, "%08x : ", startAddress+uint32(off))
		for _, b := range row {
			fmt.Fprintf(w, "%02x ", b)
		}
		for i := len(row); i < hexBytesPerRow; i++ {
			fmt.Fprint(w, "   ")
		}
		fmt.Fprint(w, "| ")
		for _, b := range row {
			if b >= 0x20 && b <= 0x7e {
				fmt.Fprintf(w, "%c", b)
			} else {
				fmt.Fprint(w, ".")
			}
		}
		fmt.Fprintln(w)
	}
}
