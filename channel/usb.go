package channel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/gousb"
)

// USB is a bulk-endpoint channel to the target's boot ROM USB PHY.
// The ROM exposes one interface with a single bulk IN/OUT endpoint
// pair; reads arrive as max-packet-sized transfers which are buffered
// internally so callers see a plain byte stream.
type USB struct {
	vid, pid uint16

	ctx     *gousb.Context
	dev     *gousb.Device
	intf    *gousb.Interface
	done    func()
	in      *gousb.InEndpoint
	out     *gousb.OutEndpoint
	readBuf []byte

	readTimeout time.Duration
	closed      bool
}

// OpenUSB finds and claims the single device matching vid:pid.
func OpenUSB(vid, pid uint16) (*USB, error) {
	u := &USB{
		vid:         vid,
		pid:         pid,
		ctx:         gousb.NewContext(),
		readTimeout: time.Second,
	}
	if err := u.attach(); err != nil {
		u.ctx.Close()
		return nil, err
	}
	return u, nil
}

func (u *USB) attach() error {
	dev, err := u.ctx.OpenDeviceWithVIDPID(gousb.ID(u.vid), gousb.ID(u.pid))
	if err != nil {
		return fmt.Errorf("usb: open %04x:%04x: %w", u.vid, u.pid, err)
	}
	if dev == nil {
		return fmt.Errorf("usb: no device matching %04x:%04x; is it connected and in serial boot mode?", u.vid, u.pid)
	}

	// The ROM interface may be claimed by a kernel HID driver.
	if err = dev.SetAutoDetach(true); err != nil {
		dev.Close()
		return fmt.Errorf("usb: auto-detach: %w", err)
	}

	intf, done, err := dev.DefaultInterface()
	if err != nil {
		dev.Close()
		return fmt.Errorf("usb: claim default interface: %w", err)
	}

	var in *gousb.InEndpoint
	var out *gousb.OutEndpoint
	for _, ep := range intf.Setting.Endpoints {
		switch ep.Direction {
		case gousb.EndpointDirectionIn:
			if in == nil {
				in, err = intf.InEndpoint(ep.Number)
			}
		case gousb.EndpointDirectionOut:
			if out == nil {
				out, err = intf.OutEndpoint(ep.Number)
			}
		}
		if err != nil {
			break
		}
	}
	if err == nil && (in == nil || out == nil) {
		err = errors.New("usb: device has no bulk IN/OUT endpoint pair")
	}
	if err != nil {
		done()
		dev.Close()
		return err
	}

	u.dev = dev
	u.intf = intf
	u.done = done
	u.in = in
	u.out = out
	return nil
}

func (u *USB) detach() {
	if u.done != nil {
		u.done()
		u.done = nil
	}
	if u.dev != nil {
		u.dev.Close()
		u.dev = nil
	}
	u.intf = nil
	u.in = nil
	u.out = nil
}

// Reopen drops and re-claims the device. The boot ROM re-enumerates
// the USB PHY after executing an image or resetting the CPU, so the
// old handle goes stale and callers must re-attach before speaking the
// RAM kernel protocol. After a failed Reopen the channel reports
// *DisconnectedError until a retry succeeds.
func (u *USB) Reopen() error {
	if u.closed {
		return ErrClosed
	}
	u.detach()
	u.readBuf = nil
	return u.attach()
}

func (u *USB) Kind() Kind { return KindUSB }

func (u *USB) SetReadTimeout(d time.Duration) error {
	u.readTimeout = d
	return nil
}

// Read drains the internal packet buffer first, then waits up to the
// read timeout for one more IN transfer. A timed-out wait returns
// (0, nil) so ReadFull can report the exact shortfall.
func (u *USB) Read(p []byte) (int, error) {
	if u.closed {
		return 0, ErrClosed
	}
	if u.in == nil {
		// A failed Reopen leaves the device detached until the next
		// successful attach.
		return 0, &DisconnectedError{}
	}
	if len(u.readBuf) == 0 {
		pkt := make([]byte, u.in.Desc.MaxPacketSize)
		ctx, cancel := context.WithTimeout(context.Background(), u.readTimeout)
		n, err := u.in.ReadContext(ctx, pkt)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return 0, nil
			}
			return 0, &DisconnectedError{Cause: err}
		}
		u.readBuf = pkt[:n]
	}
	n := copy(p, u.readBuf)
	u.readBuf = u.readBuf[n:]
	return n, nil
}

func (u *USB) Write(p []byte) (int, error) {
	if u.closed {
		return 0, ErrClosed
	}
	if u.out == nil {
		return 0, &DisconnectedError{}
	}
	max := u.out.Desc.MaxPacketSize
	written := 0
	for written < len(p) {
		end := written + max
		if end > len(p) {
			end = len(p)
		}
		n, err := u.out.Write(p[written:end])
		written += n
		if err != nil {
			return written, &DisconnectedError{Cause: err}
		}
	}
	return written, nil
}

func (u *USB) Close() error {
	if u.closed {
		return nil
	}
	u.closed = true
	u.detach()
	return u.ctx.Close()
}
