package channel

import (
	"errors"
	"testing"
)

func TestUSBDetachedReadsDisconnected(t *testing.T) {
	// The state Reopen leaves behind when re-attach fails: open, but no
	// claimed endpoints. Reads and writes must fail as disconnected
	// instead of dereferencing the missing endpoints.
	u := &USB{}

	var derr *DisconnectedError
	if _, err := u.Read(make([]byte, 1)); !errors.As(err, &derr) {
		t.Errorf("Read on detached channel: err = %v, want *DisconnectedError", err)
	}
	if _, err := u.Write([]byte{1}); !errors.As(err, &derr) {
		t.Errorf("Write on detached channel: err = %v, want *DisconnectedError", err)
	}

	u.closed = true
	if _, err := u.Read(make([]byte, 1)); !errors.Is(err, ErrClosed) {
		t.Errorf("Read on closed channel: err = %v, want ErrClosed", err)
	}
	if err := u.Reopen(); !errors.Is(err, ErrClosed) {
		t.Errorf("Reopen on closed channel: err = %v, want ErrClosed", err)
	}
}
