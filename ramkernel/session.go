package ramkernel

import (
	"fmt"
	"log"
	"time"

	"mxflash/channel"
)

// State tracks the kernel session lifecycle. Commands may only be
// issued while the session is Running, and flash operations
// additionally require a successful Identify.
type State int

const (
	StateNotLoaded State = iota
	StateLoaded
	StateRunning
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNotLoaded:
		return "not-loaded"
	case StateLoaded:
		return "loaded"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return "invalid"
	}
}

// FlashGeometry describes the flash device behind the RAM kernel, as
// reported at session start.
type FlashGeometry struct {
	// DeviceType is the part identifier reported by the kernel.
	DeviceType uint16
	// FlashModel is the kernel's human-readable flash model string.
	FlashModel string
	// BlockSize is the minimum erase granularity in bytes.
	BlockSize uint32
	// TotalSize is the device capacity in bytes.
	TotalSize uint32
}

// BlockCount returns the number of whole blocks on the device.
func (g FlashGeometry) BlockCount() uint32 {
	if g.BlockSize == 0 {
		return 0
	}
	return g.TotalSize / g.BlockSize
}

// Flash program payload formats.
const (
	flashFileFormatNormal uint32 = 0
	flashFileFormatNB0    uint32 = 1
	flashFileFormatOPS    uint32 = 2
)

// DefaultBlockSize is assumed when the board profile does not override
// it. The stock RAM kernel protocol has no block-size query; 128 KiB
// matches the NAND parts the stock kernels ship for.
const DefaultBlockSize = 0x20000

// Session owns one channel for the lifetime of a RAM kernel run and
// serializes every command over it. Only one command is ever
// outstanding; the protocol is strictly half-duplex.
type Session struct {
	ch    channel.Channel
	state State
	geo   *FlashGeometry

	blockSize        uint32
	readTimeout      time.Duration
	handshakeTimeout time.Duration
}

// Option configures a Session.
type Option func(*Session)

// WithBlockSize overrides the assumed erase block size in bytes.
func WithBlockSize(n uint32) Option {
	return func(s *Session) {
		if n > 0 {
			s.blockSize = n
		}
	}
}

// WithReadTimeout bounds each blocking response read. Erase and
// program acknowledgements can lag by seconds on large blocks.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.readTimeout = d
		}
	}
}

// WithHandshakeTimeout bounds the kernel start-up handshake window.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.handshakeTimeout = d
		}
	}
}

// NewSession wraps an already-open channel in a kernel session. The
// session starts NotLoaded; use a Loader to install and start the
// kernel.
func NewSession(ch channel.Channel, opts ...Option) *Session {
	s := &Session{
		ch:               ch,
		state:            StateNotLoaded,
		blockSize:        DefaultBlockSize,
		readTimeout:      10 * time.Second,
		handshakeTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current session state.
func (s *Session) State() State { return s.state }

// Geometry returns the flash geometry from the last successful
// Identify, or false if none has been performed.
func (s *Session) Geometry() (FlashGeometry, bool) {
	if s.geo == nil {
		return FlashGeometry{}, false
	}
	return *s.geo, true
}

func (s *Session) requireRunning() error {
	switch s.state {
	case StateRunning:
		return nil
	case StateNotLoaded:
		return ErrNoKernelConfigured
	case StateClosed:
		return ErrSessionClosed
	default:
		return fmt.Errorf("ramkernel: session is %s, not running", s.state)
	}
}

func (s *Session) requireIdentified() error {
	if err := s.requireRunning(); err != nil {
		return err
	}
	if s.geo == nil {
		return ErrNotIdentified
	}
	return nil
}

func (s *Session) send(cmd uint16, address, param1, param2 uint32) error {
	return channel.WriteFull(s.ch, encodeCommand(cmd, address, param1, param2))
}

// exchange sends one command and decodes its response, treating any
// ack other than success or a partial flash response as a failure.
func (s *Session) exchange(op string, cmd uint16, address, param1, param2 uint32, withPayload bool) (*response, error) {
	if err := s.send(cmd, address, param1, param2); err != nil {
		return nil, err
	}
	resp, err := readResponse(s.ch, withPayload)
	if err != nil {
		return nil, err
	}
	if resp.Ack != ackSuccess && resp.Ack != ackFlashPartly {
		return nil, &CommandError{Op: op, Ack: resp.Ack}
	}
	return resp, nil
}

// Identify initializes the kernel's flash subsystem and queries device
// type, flash model and capacity. It must be called once per session
// before any erase, program or read; the resulting geometry gates all
// of them.
func (s *Session) Identify() (FlashGeometry, error) {
	if err := s.requireRunning(); err != nil {
		return FlashGeometry{}, err
	}
	if err := s.ch.SetReadTimeout(s.readTimeout); err != nil {
		return FlashGeometry{}, err
	}

	// The flash subsystem must come up before anything else,
	// including the version query.
	if _, err := s.exchange("flash initial", cmdFlashInitial, 0, 0, 0, true); err != nil {
		return FlashGeometry{}, err
	}

	ver, err := s.exchange("get version", cmdGetVer, 0, 0, 0, true)
	if err != nil {
		return FlashGeometry{}, err
	}

	// Capacity comes back in the length field with no payload.
	capResp, err := s.exchange("get capacity", cmdFlashGetCapacity, 0, 0, 0, false)
	if err != nil {
		return FlashGeometry{}, err
	}

	geo := FlashGeometry{
		DeviceType: ver.Checksum,
		FlashModel: string(ver.Payload),
		BlockSize:  s.blockSize,
		TotalSize:  capResp.Length,
	}
	s.geo = &geo
	log.Printf("ramkernel: device 0x%04X, flash %q, block size %d, capacity %d bytes\n",
		geo.DeviceType, geo.FlashModel, geo.BlockSize, geo.TotalSize)
	return geo, nil
}

// EraseBlock erases exactly one block. The kernel streams a progress
// response per erased block before the final acknowledgement; a
// negative acknowledgement is reported up, never retried here.
func (s *Session) EraseBlock(index uint32) error {
	if err := s.requireIdentified(); err != nil {
		return err
	}
	if err := s.send(cmdFlashErase, index*s.geo.BlockSize, s.geo.BlockSize, 0); err != nil {
		return err
	}

	for {
		resp, err := readResponse(s.ch, false)
		if err != nil {
			return err
		}
		switch resp.Ack {
		case ackFlashErase:
			// Progress: checksum carries the block ordinal, length the
			// block size actually erased.
		case ackSuccess:
			return nil
		default:
			return &EraseError{Block: index, Ack: resp.Ack}
		}
	}
}

// ProgramBlock writes data starting at the block's base address. Data
// shorter than a block is zero-padded to block size: the kernel always
// programs at block granularity, so callers that need to preserve
// neighboring content within the block must pre-pad it themselves.
func (s *Session) ProgramBlock(index uint32, data []byte) error {
	if err := s.requireIdentified(); err != nil {
		return err
	}
	bs := s.geo.BlockSize
	if len(data) == 0 {
		return fmt.Errorf("ramkernel: program block %d: empty payload", index)
	}
	if uint32(len(data)) > bs {
		return fmt.Errorf("ramkernel: program block %d: payload %d exceeds block size %d",
			index, len(data), bs)
	}

	payload := data
	if uint32(len(data)) < bs {
		payload = make([]byte, bs)
		copy(payload, data)
	}

	if err := s.send(cmdFlashProgram, index*bs, uint32(len(payload)), flashFileFormatNormal); err != nil {
		return err
	}

	// The kernel acknowledges the request before any data moves.
	resp, err := readResponse(s.ch, false)
	if err != nil {
		return err
	}
	if resp.Ack != ackSuccess {
		return &ProgramError{Block: index, Ack: resp.Ack}
	}

	if err := channel.WriteFull(s.ch, payload); err != nil {
		return err
	}

	// Per-page progress responses carry partial write lengths until
	// the closing success.
	for {
		resp, err = readResponse(s.ch, false)
		if err != nil {
			return err
		}
		switch resp.Ack {
		case ackFlashPartly, ackFlashVerify:
			// keep consuming progress
		case ackSuccess:
			return nil
		default:
			return &ProgramError{Block: index, Ack: resp.Ack}
		}
	}
}

// ReadBlock reads up to length bytes from the block's base address.
// Every payload is checked against the kernel's 16-bit checksum.
func (s *Session) ReadBlock(index uint32, length uint32) ([]byte, error) {
	if err := s.requireIdentified(); err != nil {
		return nil, err
	}
	bs := s.geo.BlockSize
	if length == 0 || length > bs {
		return nil, fmt.Errorf("ramkernel: read block %d: length %d out of range (block size %d)",
			index, length, bs)
	}

	resp, err := s.exchange("flash dump", cmdFlashDump, index*bs, length, 0, true)
	if err != nil {
		return nil, err
	}
	if sum := checksum(resp.Payload); sum != resp.Checksum {
		return nil, &ChecksumError{Expected: resp.Checksum, Computed: sum}
	}

	data := resp.Payload
	for resp.Ack == ackFlashPartly && uint32(len(data)) < length {
		resp, err = readResponse(s.ch, true)
		if err != nil {
			return nil, err
		}
		if resp.Ack != ackSuccess && resp.Ack != ackFlashPartly {
			return nil, &CommandError{Op: "flash dump", Ack: resp.Ack}
		}
		if sum := checksum(resp.Payload); sum != resp.Checksum {
			return nil, &ChecksumError{Expected: resp.Checksum, Computed: sum}
		}
		data = append(data, resp.Payload...)
	}

	if uint32(len(data)) > length {
		data = data[:length]
	}
	return data, nil
}

// GetVer queries the kernel for the device type and flash model
// string.
func (s *Session) GetVer() (uint16, string, error) {
	if err := s.requireRunning(); err != nil {
		return 0, "", err
	}
	resp, err := s.exchange("get version", cmdGetVer, 0, 0, 0, true)
	if err != nil {
		return 0, "", err
	}
	return resp.Checksum, string(resp.Payload), nil
}

// Reset commands a CPU reset. No response follows: the kernel is gone
// once it acts on it, so the session transitions to Closed.
func (s *Session) Reset() error {
	if err := s.requireRunning(); err != nil {
		return err
	}
	if err := s.send(cmdReset, 0, 0, 0); err != nil {
		return err
	}
	s.state = StateClosed
	return nil
}

// Close marks the session closed. The channel itself belongs to the
// caller and is not touched.
func (s *Session) Close() {
	s.state = StateClosed
}
