package bsp

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const sampleTable = `
[mx25_3stack]
description       = i.MX25 3-stack board
sdram_start       = 0x80000000
sdram_end         = 0x8FFFFFFF
ram_kernel_origin = 0x80004000
usb_vid           = 0x15a2
usb_pid           = 0x003a
ram_kernel_file   = ram_kernel_mx25.bin
memory_init_file  = mx25_init.txt

[mx31ads]
description       = i.MX31 ADS board
sdram_start       = 0x80000000
sdram_end         = 0x83FFFFFF
ram_kernel_origin = 0x80004000
usb_vid           = 0x15a2
usb_pid           = 0x0028
`

func TestLoadTable(t *testing.T) {
	table, err := LoadTable([]byte(sampleTable))
	if err != nil {
		t.Fatalf("LoadTable: %v", err)
	}
	if len(table) != 2 {
		t.Fatalf("boards = %d, want 2", len(table))
	}

	want := Profile{
		Name:            "mx25_3stack",
		Description:     "i.MX25 3-stack board",
		SDRAMStart:      0x80000000,
		SDRAMEnd:        0x8FFFFFFF,
		USBVID:          0x15a2,
		USBPID:          0x003a,
		RAMKernelOrigin: 0x80004000,
		RAMKernelFile:   "ram_kernel_mx25.bin",
		MemInitFile:     "mx25_init.txt",
	}
	if diff := cmp.Diff(want, table["mx25_3stack"]); diff != "" {
		t.Errorf("profile mismatch (-want +got):\n%s", diff)
	}

	// Optional file keys may be absent.
	mx31 := table["mx31ads"]
	if mx31.RAMKernelFile != "" || mx31.MemInitFile != "" {
		t.Errorf("mx31ads file paths = (%q, %q), want empty", mx31.RAMKernelFile, mx31.MemInitFile)
	}
}

func TestLoadTableErrors(t *testing.T) {
	cases := []struct {
		name  string
		table string
		want  string
	}{
		{
			"missing sdram_end",
			"[b]\nsdram_start = 0x80000000\nram_kernel_origin = 0x80004000\nusb_vid = 1\nusb_pid = 2\n",
			"missing sdram_end",
		},
		{
			"bad integer",
			"[b]\nsdram_start = fish\nsdram_end = 0x8FFFFFFF\nram_kernel_origin = 0x80004000\nusb_vid = 1\nusb_pid = 2\n",
			"bad sdram_start",
		},
		{
			"inverted sdram window",
			"[b]\nsdram_start = 0x90000000\nsdram_end = 0x80000000\nram_kernel_origin = 0x90004000\nusb_vid = 1\nusb_pid = 2\n",
			"sdram_end",
		},
		{
			"vid out of range",
			"[b]\nsdram_start = 0x80000000\nsdram_end = 0x8FFFFFFF\nram_kernel_origin = 0x80004000\nusb_vid = 0x10000\nusb_pid = 2\n",
			"bad usb_vid",
		},
		{
			"empty table",
			"; nothing here\n",
			"no boards",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadTable([]byte(tc.table))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %q, want substring %q", err, tc.want)
			}
		})
	}
}

func TestContainsSDRAM(t *testing.T) {
	p := Profile{SDRAMStart: 0x80000000, SDRAMEnd: 0x8FFFFFFF}

	cases := []struct {
		addr   uint32
		length uint32
		want   bool
	}{
		{0x80000000, 0x1000, true},
		{0x8FFFF000, 0x1000, true},
		{0x8FFFF000, 0x1001, false},
		{0x7FFFFFFF, 1, false},
		{0x90000000, 1, false},
		{0x80004000, 0, true},
	}
	for _, tc := range cases {
		if got := p.ContainsSDRAM(tc.addr, tc.length); got != tc.want {
			t.Errorf("ContainsSDRAM(0x%08X, %d) = %v, want %v", tc.addr, tc.length, got, tc.want)
		}
	}
}
