package ramkernel

import (
	"bytes"
	"log"
	"time"

	"mxflash/boot"
	"mxflash/channel"
)

// handshakePollInterval bounds each individual probe read while
// waiting for the kernel to come up.
const handshakePollInterval = 500 * time.Millisecond

// Loader installs a RAM kernel image through the boot ROM protocol and
// brings the session up. The boot engine and the session share the
// same underlying link; the loader only sequences the hand-over.
type Loader struct {
	Engine  *boot.Protocol
	Session *Session

	// Reinit, if non-nil, is called between executing the kernel and
	// the start-up handshake. USB links need this: the PHY
	// re-enumerates when control leaves the ROM, so the host has to
	// re-attach before the kernel will answer.
	Reinit func() error

	// Progress, if non-nil, is called while streaming the image.
	Progress func(written, total uint32)
}

// Load deposits image at origin via the boot ROM, transfers control to
// it, and waits out the kernel's start-up handshake. On success the
// session transitions Loaded -> Running; if the kernel never answers
// inside the handshake window the session is Closed and
// ErrStartupTimeout is returned.
func (l *Loader) Load(image []byte, origin uint32) error {
	if len(image) == 0 {
		return ErrNoKernelConfigured
	}

	s := l.Session
	log.Printf("ramkernel: loading %d byte kernel at 0x%08X\n", len(image), origin)
	err := l.Engine.WriteFile(boot.FileTypeApplication, origin, bytes.NewReader(image),
		uint32(len(image)), l.Progress)
	if err != nil {
		return err
	}
	s.state = StateLoaded

	if err = l.Engine.CompleteBoot(); err != nil {
		s.state = StateClosed
		return err
	}

	if l.Reinit != nil {
		if err = l.Reinit(); err != nil {
			s.state = StateClosed
			return err
		}
	}

	if err = l.handshake(); err != nil {
		s.state = StateClosed
		return err
	}
	s.state = StateRunning
	log.Printf("ramkernel: kernel is up\n")
	return nil
}

// handshake probes the freshly started kernel with version queries
// until one is acknowledged or the window closes. The probe itself is
// an ordinary kernel command; the ROM no longer answers at this point,
// so any well-formed acknowledgement means the kernel owns the link.
func (l *Loader) handshake() error {
	s := l.Session
	if err := s.ch.SetReadTimeout(handshakePollInterval); err != nil {
		return err
	}

	deadline := time.Now().Add(s.handshakeTimeout)
	for {
		if err := s.send(cmdGetVer, 0, 0, 0); err != nil {
			return err
		}
		resp, err := readResponse(s.ch, true)
		if err == nil {
			if resp.Ack == ackSuccess {
				return nil
			}
			return &CommandError{Op: "startup handshake", Ack: resp.Ack}
		}
		if !channel.IsTimeout(err) {
			return err
		}
		if time.Now().After(deadline) {
			return ErrStartupTimeout
		}
	}
}
