// mxflash bootstraps an i.MX-class processor over its serial boot
// protocol: memory-controller init, application download, and RAM
// kernel driven flash programming and dumps.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.bug.st/serial/enumerator"

	"mxflash/boot"
	"mxflash/bsp"
	"mxflash/channel"
	"mxflash/flash"
	"mxflash/ramkernel"
)

// sramScratch is an internal-RAM word that is writable before the
// memory controller comes up, used for the initial link sanity check.
const sramScratch uint32 = 0x78001000

type options struct {
	table string
	board string

	serialPort string
	usbVIDPID  string

	initFile string

	applFile    string
	applAddress uint64

	kernelFile    string
	kernelAddress int64

	flashFile    string
	flashAddress uint64
	flashDump    uint64
	dumpOut      string
	blockSize    uint64
	verifyOnly   bool

	listPorts bool
}

func main() {
	log.SetFlags(0)

	var opts options
	flag.StringVar(&opts.table, "table", "bspinfo.conf", "board support table `file`")
	flag.StringVar(&opts.board, "b", "", "board support profile `name`")
	flag.StringVar(&opts.serialPort, "s", "", "use serial `port` instead of USB")
	flag.StringVar(&opts.usbVIDPID, "u", "", "override USB `vid[:pid]` from the board profile")
	flag.StringVar(&opts.initFile, "i", "", "memory initialization script `file`")
	flag.StringVar(&opts.applFile, "f", "", "application binary `file` to load and run")
	flag.Uint64Var(&opts.applAddress, "a", 0, "application start `address`")
	flag.StringVar(&opts.kernelFile, "k", "", "RAM kernel binary `file`")
	flag.Int64Var(&opts.kernelAddress, "ram-kernel-address", -1, "RAM kernel origin `address` (default from board profile)")
	flag.StringVar(&opts.flashFile, "flash-file", "", "program this `file` to flash")
	flag.Uint64Var(&opts.flashAddress, "flash-address", 0, "flash `address` for program/dump")
	flag.Uint64Var(&opts.flashDump, "flash-dump", 0, "dump `count` bytes of flash")
	flag.StringVar(&opts.dumpOut, "dump-out", "dump.bin", "write dumped flash to `file`")
	flag.Uint64Var(&opts.blockSize, "block-size", 0, "override flash erase block size in `bytes`")
	flag.BoolVar(&opts.verifyOnly, "verify-only", false, "compare flash against -flash-file without programming")
	flag.BoolVar(&opts.listPorts, "list-ports", false, "list detected serial ports and exit")
	flag.Parse()

	if opts.listPorts {
		if err := listPorts(); err != nil {
			log.Fatalf("mxflash: %v", err)
		}
		return
	}

	if opts.board == "" {
		log.Fatal("mxflash: no board selected; use -b (and see -table)")
	}
	if opts.serialPort != "" && opts.usbVIDPID != "" {
		log.Fatal("mxflash: cannot select both a serial port and a USB device")
	}
	if opts.applFile != "" && opts.applAddress == 0 {
		log.Fatal("mxflash: application file specified without -a address")
	}

	if err := run(&opts); err != nil {
		log.Fatalf("mxflash: %v", err)
	}
}

func listPorts() error {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("no serial ports found")
		return nil
	}
	for _, port := range ports {
		if port.IsUSB {
			fmt.Printf("%s\t(USB %s:%s serial %s)\n", port.Name, port.VID, port.PID, port.SerialNumber)
		} else {
			fmt.Println(port.Name)
		}
	}
	return nil
}

func parseVIDPID(s string, profile bsp.Profile) (vid, pid uint16, err error) {
	if s == "" {
		return profile.USBVID, profile.USBPID, nil
	}
	vidStr, pidStr, havePID := strings.Cut(s, ":")
	v, err := strconv.ParseUint(vidStr, 0, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("bad USB VID %q", vidStr)
	}
	vid = uint16(v)
	pid = profile.USBPID
	if havePID {
		p, err := strconv.ParseUint(pidStr, 0, 16)
		if err != nil {
			return 0, 0, fmt.Errorf("bad USB PID %q", pidStr)
		}
		pid = uint16(p)
	}
	return vid, pid, nil
}

type app struct {
	opts    *options
	profile bsp.Profile
	ch      channel.Channel
	usb     *channel.USB // nil on a UART link
	engine  *boot.Protocol
}

func run(opts *options) error {
	table, err := bsp.LoadTable(opts.table)
	if err != nil {
		return err
	}
	profile, ok := table[opts.board]
	if !ok {
		return fmt.Errorf("board %q not in %s", opts.board, opts.table)
	}
	log.Printf("selected board %q (%s)\n", profile.Name, profile.Description)
	log.Printf("memory range: 0x%08X - 0x%08X\n", profile.SDRAMStart, profile.SDRAMEnd)

	a := &app{opts: opts, profile: profile}

	if opts.serialPort != "" {
		uart, err := channel.OpenUART(opts.serialPort)
		if err != nil {
			return err
		}
		a.ch = uart
	} else {
		vid, pid, err := parseVIDPID(opts.usbVIDPID, profile)
		if err != nil {
			return err
		}
		usb, err := channel.OpenUSB(vid, pid)
		if err != nil {
			return err
		}
		a.ch = usb
		a.usb = usb
	}
	defer a.ch.Close()

	if err := a.ch.SetReadTimeout(2 * time.Second); err != nil {
		return err
	}
	a.engine = boot.NewProtocol(a.ch)

	status, err := a.engine.GetStatus()
	if err != nil {
		return fmt.Errorf("query boot status: %w", err)
	}
	log.Printf("boot status: %s\n", boot.StatusString(status))

	if err := a.memtest(); err != nil {
		return err
	}
	if err := a.memInitialize(); err != nil {
		return err
	}

	switch {
	case opts.kernelFile != "" || profile.RAMKernelFile != "":
		return a.runKernel()
	case opts.applFile != "":
		return a.runApplication()
	default:
		return nil
	}
}

// checkSDRAM rejects a load that would land outside the board's main
// memory window before any bytes move.
func checkSDRAM(profile bsp.Profile, what string, addr, length uint32) error {
	if !profile.ContainsSDRAM(addr, length) {
		return fmt.Errorf("%s [0x%08X, 0x%08X) outside SDRAM window 0x%08X - 0x%08X",
			what, addr, uint64(addr)+uint64(length), profile.SDRAMStart, profile.SDRAMEnd)
	}
	return nil
}

// memtest writes and reads back two patterns in internal SRAM to prove
// the link works before anything irreversible happens.
func (a *app) memtest() error {
	for _, pattern := range []uint32{0xBEEFDEAD, 0xBEEFCAFE} {
		if err := a.engine.WriteMemory(sramScratch, boot.Width32, pattern); err != nil {
			return fmt.Errorf("SRAM write check: %w", err)
		}
		check, err := a.engine.ReadWord(sramScratch, boot.Width32)
		if err != nil {
			return fmt.Errorf("SRAM write check: %w", err)
		}
		if check != pattern {
			return fmt.Errorf("SRAM write check failed: wrote 0x%08X, read 0x%08X", pattern, check)
		}
	}
	return nil
}

func (a *app) memInitialize() error {
	path := a.opts.initFile
	if path == "" {
		path = a.profile.MemInitFile
	}
	if path == "" {
		if a.opts.kernelFile != "" || a.profile.RAMKernelFile != "" {
			return fmt.Errorf("RAM kernel selected, but no memory initialization file")
		}
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	ops, err := boot.ParseInitScript(f)
	if err != nil {
		return err
	}
	return boot.RunInit(a.engine, ops)
}

// reinit re-attaches a USB link after the target re-enumerates. UART
// links are unaffected by the target rebooting, so there is nothing to
// do for them.
func (a *app) reinit() error {
	if a.usb == nil {
		return nil
	}
	// The PHY takes a few seconds to come back, longer through VM USB
	// passthrough; retry with a constant gap rather than failing on
	// the first probe.
	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(3*time.Second), 4)
	return backoff.Retry(a.usb.Reopen, bo)
}

func (a *app) runApplication() error {
	image, err := os.ReadFile(a.opts.applFile)
	if err != nil {
		return err
	}
	addr := uint32(a.opts.applAddress)
	if err := checkSDRAM(a.profile, "application", addr, uint32(len(image))); err != nil {
		return err
	}
	log.Printf("writing application %q to 0x%08X\n", a.opts.applFile, addr)

	err = a.engine.WriteFile(boot.FileTypeApplication, addr, bytes.NewReader(image),
		uint32(len(image)), loadProgress)
	if err != nil {
		return err
	}
	fmt.Println()
	if err := a.engine.CompleteBoot(); err != nil {
		return err
	}
	log.Println("application write/execute OK")
	return nil
}

func (a *app) runKernel() error {
	kernelPath := a.opts.kernelFile
	if kernelPath == "" {
		kernelPath = a.profile.RAMKernelFile
	}
	image, err := os.ReadFile(kernelPath)
	if err != nil {
		return err
	}

	origin := a.profile.RAMKernelOrigin
	if a.opts.kernelAddress >= 0 {
		origin = uint32(a.opts.kernelAddress)
		log.Printf("using user-specified RAM kernel origin 0x%08X\n", origin)
	}
	if err := checkSDRAM(a.profile, "RAM kernel", origin, uint32(len(image))); err != nil {
		return err
	}

	var sessOpts []ramkernel.Option
	if a.opts.blockSize > 0 {
		sessOpts = append(sessOpts, ramkernel.WithBlockSize(uint32(a.opts.blockSize)))
	}
	session := ramkernel.NewSession(a.ch, sessOpts...)

	loader := &ramkernel.Loader{
		Engine:   a.engine,
		Session:  session,
		Reinit:   a.reinit,
		Progress: loadProgress,
	}
	if err := loader.Load(image, origin); err != nil {
		return err
	}
	fmt.Println()

	geo, err := session.Identify()
	if err != nil {
		return err
	}
	log.Printf("flash capacity: %d KiB\n", geo.TotalSize/1024)

	defer func() {
		log.Println("resetting CPU")
		if err := session.Reset(); err != nil {
			log.Printf("reset: %v\n", err)
			return
		}
		if err := a.reinit(); err != nil {
			log.Printf("channel re-open after reset: %v\n", err)
			return
		}
		// Back in the ROM now; report what state it restarted in.
		if status, err := a.engine.GetStatus(); err == nil {
			log.Printf("boot status after reset: %s\n", boot.StatusString(status))
		}
	}()

	switch {
	case a.opts.flashFile != "" && a.opts.verifyOnly:
		return a.flashVerify(session, geo)
	case a.opts.flashFile != "":
		return a.flashProgram(session, geo)
	case a.opts.flashDump > 0:
		return a.flashDump(session, geo)
	default:
		return nil
	}
}

func (a *app) flashProgram(session *ramkernel.Session, geo ramkernel.FlashGeometry) error {
	image, err := os.ReadFile(a.opts.flashFile)
	if err != nil {
		return err
	}
	start := uint32(a.opts.flashAddress)
	log.Printf("programming %q (%d bytes) to flash at 0x%08X\n", a.opts.flashFile, len(image), start)

	prog := &flash.Programmer{
		Device:   session,
		Geometry: geo,
		Progress: func(stage flash.Stage, block uint32, done, total int) {
			fmt.Printf("\r%-7s block %-6d %d/%d", stage, block, done, total)
		},
	}
	if err := prog.Run(image, start); err != nil {
		fmt.Println()
		return err
	}
	fmt.Println()
	log.Println("flash program + verify OK")
	return nil
}

func (a *app) flashVerify(session *ramkernel.Session, geo ramkernel.FlashGeometry) error {
	image, err := os.ReadFile(a.opts.flashFile)
	if err != nil {
		return err
	}
	start := uint32(a.opts.flashAddress)
	log.Printf("verifying %q (%d bytes) against flash at 0x%08X\n", a.opts.flashFile, len(image), start)

	prog := &flash.Programmer{Device: session, Geometry: geo}
	if err := prog.Verify(image, start); err != nil {
		return err
	}
	log.Println("flash verify OK")
	return nil
}

func (a *app) flashDump(session *ramkernel.Session, geo ramkernel.FlashGeometry) error {
	addr := uint32(a.opts.flashAddress)
	count := uint32(a.opts.flashDump)
	log.Printf("dumping %d bytes of flash at 0x%08X\n", count, addr)

	dumper := &flash.Dumper{Device: session, Geometry: geo}
	data, err := dumper.Dump(addr, count)
	if err != nil {
		return err
	}

	writeHexDump(os.Stdout, data, addr)
	if a.opts.dumpOut != "" {
		if err := os.WriteFile(a.opts.dumpOut, data, 0644); err != nil {
			return err
		}
		log.Printf("wrote %d bytes to %s\n", len(data), a.opts.dumpOut)
	}
	return nil
}

func loadProgress(written, total uint32) {
	fmt.Printf("\r%d/%d B", written, total)
}
