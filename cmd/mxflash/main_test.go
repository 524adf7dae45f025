package main

import (
	"testing"

	"mxflash/bsp"
)

func TestCheckSDRAM(t *testing.T) {
	profile := bsp.Profile{SDRAMStart: 0x80000000, SDRAMEnd: 0x8FFFFFFF}

	cases := []struct {
		name   string
		addr   uint32
		length uint32
		ok     bool
	}{
		{"inside", 0x80004000, 0x10000, true},
		{"fills window", 0x80000000, 0x10000000, true},
		{"below window", 0x7FFFF000, 0x1000, false},
		{"runs past end", 0x8FFFF000, 0x2000, false},
		{"wraps address space", 0xFFFFF000, 0x2000, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := checkSDRAM(profile, "image", tc.addr, tc.length)
			if (err == nil) != tc.ok {
				t.Errorf("checkSDRAM(0x%08X, 0x%X) err = %v, want ok=%v", tc.addr, tc.length, err, tc.ok)
			}
		})
	}
}

func TestParseVIDPID(t *testing.T) {
	profile := bsp.Profile{USBVID: 0x15a2, USBPID: 0x003a}

	vid, pid, err := parseVIDPID("", profile)
	if err != nil || vid != 0x15a2 || pid != 0x003a {
		t.Errorf("default = (%04x, %04x, %v)", vid, pid, err)
	}

	vid, pid, err = parseVIDPID("0x1234", profile)
	if err != nil || vid != 0x1234 || pid != 0x003a {
		t.Errorf("vid only = (%04x, %04x, %v)", vid, pid, err)
	}

	vid, pid, err = parseVIDPID("0x1234:0x5678", profile)
	if err != nil || vid != 0x1234 || pid != 0x5678 {
		t.Errorf("vid:pid = (%04x, %04x, %v)", vid, pid, err)
	}

	if _, _, err = parseVIDPID("fish", profile); err == nil {
		t.Error("expected error for bad VID")
	}
	if _, _, err = parseVIDPID("0x1234:fish", profile); err == nil {
		t.Error("expected error for bad PID")
	}
}
