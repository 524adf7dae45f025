package channel

import (
	"errors"
	"fmt"
)

// ErrClosed is returned for operations on a channel that has been
// closed by the caller.
var ErrClosed = errors.New("channel: closed")

// TimeoutError reports a bounded read that expired before the expected
// number of bytes arrived. The in-flight command is considered failed;
// the link itself remains usable.
type TimeoutError struct {
	Op   string
	Want int
	Got  int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("channel: %s timed out after %d of %d bytes", e.Op, e.Got, e.Want)
}

func (e *TimeoutError) Timeout() bool { return true }

// DisconnectedError reports that the target dropped off the link, for
// example after the CPU was reset or the USB interface re-enumerated.
type DisconnectedError struct {
	Cause error
}

func (e *DisconnectedError) Error() string {
	if e.Cause == nil {
		return "channel: device disconnected"
	}
	return fmt.Sprintf("channel: device disconnected: %v", e.Cause)
}

func (e *DisconnectedError) Unwrap() error { return e.Cause }

// IsTimeout reports whether err is (or wraps) a read timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
