package boot

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
)

// MemoryWriteOp is one directive from a memory-controller bring-up
// script: write Value to Address with the given access width.
type MemoryWriteOp struct {
	Line    int
	Address uint32
	Value   uint32
	Width   Width
}

// ParseError reports a malformed init script line.
type ParseError struct {
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("meminit: line %d: %s", e.Line, e.Reason)
}

// InitWriteError reports a protocol failure while replaying an init
// script. A partially initialized memory controller is unsafe to keep
// writing to, so the failing line aborts the whole sequence.
type InitWriteError struct {
	Line    int
	Address uint32
	Err     error
}

func (e *InitWriteError) Error() string {
	return fmt.Sprintf("meminit: line %d: write to 0x%08X failed: %v", e.Line, e.Address, e.Err)
}

func (e *InitWriteError) Unwrap() error { return e.Err }

// ParseInitScript reads a memory initialization script: one
// "<address> <value> <width-bits>" directive per line, integers in
// hex or decimal, with '#' comment lines and blank lines ignored.
func ParseInitScript(r io.Reader) ([]MemoryWriteOp, error) {
	var ops []MemoryWriteOp

	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, &ParseError{Line: lineno, Reason: fmt.Sprintf("expected 3 fields, got %d", len(fields))}
		}

		addr, err := strconv.ParseUint(fields[0], 0, 32)
		if err != nil {
			return nil, &ParseError{Line: lineno, Reason: fmt.Sprintf("bad address %q", fields[0])}
		}
		value, err := strconv.ParseUint(fields[1], 0, 32)
		if err != nil {
			return nil, &ParseError{Line: lineno, Reason: fmt.Sprintf("bad value %q", fields[1])}
		}
		widthBits, err := strconv.ParseUint(fields[2], 0, 8)
		if err != nil {
			return nil, &ParseError{Line: lineno, Reason: fmt.Sprintf("bad width %q", fields[2])}
		}

		width := Width(widthBits)
		if !width.Valid() {
			return nil, &ParseError{Line: lineno, Reason: fmt.Sprintf("width must be 8, 16 or 32, got %d", widthBits)}
		}
		if width != Width32 && value>>width != 0 {
			return nil, &ParseError{Line: lineno, Reason: fmt.Sprintf("value 0x%X does not fit in %d bits", value, width)}
		}

		ops = append(ops, MemoryWriteOp{
			Line:    lineno,
			Address: uint32(addr),
			Value:   uint32(value),
			Width:   width,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("meminit: read script: %w", err)
	}
	return ops, nil
}

// RunInit replays ops strictly in order through the boot protocol.
// The memory controller must be programmed before SDRAM is usable, so
// the first failed write aborts the remainder of the sequence.
func RunInit(p *Protocol, ops []MemoryWriteOp) error {
	for _, op := range ops {
		log.Printf("meminit: write 0x%08X to 0x%08X (width %d)\n", op.Value, op.Address, op.Width)
		if err := p.WriteMemory(op.Address, op.Width, op.Value); err != nil {
			return &InitWriteError{Line: op.Line, Address: op.Address, Err: err}
		}
	}
	return nil
}
