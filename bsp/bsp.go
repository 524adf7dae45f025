// Package bsp loads board support profiles: the per-board parameters
// (memory bounds, USB identifiers, RAM kernel origin) needed to drive
// the boot and flash protocols for a specific hardware design.
//
// The table is an INI file with one section per board:
//
//	[mx25_3stack]
//	description      = i.MX25 3-stack board
//	sdram_start      = 0x80000000
//	sdram_end        = 0x8FFFFFFF
//	ram_kernel_origin = 0x80004000
//	usb_vid          = 0x15a2
//	usb_pid          = 0x003a
//	ram_kernel_file  = ram_kernel_mx25.bin   ; optional
//	memory_init_file = mx25_init.txt         ; optional
//
// Integer values may be decimal or 0x-prefixed hexadecimal.
package bsp

import (
	"fmt"
	"strconv"

	"gopkg.in/ini.v1"
)

// Profile is the resolved board support information for one board.
// The protocol layers treat it as read-only input.
type Profile struct {
	Name        string
	Description string

	// SDRAMStart and SDRAMEnd bound main memory (inclusive).
	SDRAMStart uint32
	SDRAMEnd   uint32

	USBVID uint16
	USBPID uint16

	// RAMKernelOrigin is where the kernel image is linked to run;
	// typically SDRAMStart + 0x4000 for the stock linker scripts, but
	// custom designs may build it differently.
	RAMKernelOrigin uint32

	// RAMKernelFile and MemInitFile are optional paths; empty when the
	// board does not carry them.
	RAMKernelFile string
	MemInitFile   string
}

// ContainsSDRAM reports whether [addr, addr+length) lies entirely
// inside the profile's SDRAM window.
func (p Profile) ContainsSDRAM(addr uint32, length uint32) bool {
	if length == 0 {
		return addr >= p.SDRAMStart && addr <= p.SDRAMEnd
	}
	end := uint64(addr) + uint64(length) - 1
	return addr >= p.SDRAMStart && end <= uint64(p.SDRAMEnd)
}

func getUint(sec *ini.Section, key string, bits int) (uint64, error) {
	k, err := sec.GetKey(key)
	if err != nil {
		return 0, fmt.Errorf("bsp: board %q: missing %s", sec.Name(), key)
	}
	v, err := strconv.ParseUint(k.String(), 0, bits)
	if err != nil {
		return 0, fmt.Errorf("bsp: board %q: bad %s value %q", sec.Name(), key, k.String())
	}
	return v, nil
}

// LoadTable parses the board support table from source, which may be a
// file path, []byte, or io.Reader. Unknown keys are ignored so tables
// can carry extra tool-specific data.
func LoadTable(source interface{}) (map[string]Profile, error) {
	f, err := ini.Load(source)
	if err != nil {
		return nil, fmt.Errorf("bsp: load board support table: %w", err)
	}

	table := make(map[string]Profile)
	for _, sec := range f.Sections() {
		if sec.Name() == ini.DefaultSection {
			continue
		}

		p := Profile{
			Name:          sec.Name(),
			Description:   sec.Key("description").String(),
			RAMKernelFile: sec.Key("ram_kernel_file").String(),
			MemInitFile:   sec.Key("memory_init_file").String(),
		}

		start, err := getUint(sec, "sdram_start", 32)
		if err != nil {
			return nil, err
		}
		end, err := getUint(sec, "sdram_end", 32)
		if err != nil {
			return nil, err
		}
		origin, err := getUint(sec, "ram_kernel_origin", 32)
		if err != nil {
			return nil, err
		}
		vid, err := getUint(sec, "usb_vid", 16)
		if err != nil {
			return nil, err
		}
		pid, err := getUint(sec, "usb_pid", 16)
		if err != nil {
			return nil, err
		}

		if end <= start {
			return nil, fmt.Errorf("bsp: board %q: sdram_end 0x%08X not above sdram_start 0x%08X",
				sec.Name(), end, start)
		}

		p.SDRAMStart = uint32(start)
		p.SDRAMEnd = uint32(end)
		p.RAMKernelOrigin = uint32(origin)
		p.USBVID = uint16(vid)
		p.USBPID = uint16(pid)

		table[p.Name] = p
	}
	if len(table) == 0 {
		return nil, fmt.Errorf("bsp: board support table defines no boards")
	}
	return table, nil
}
