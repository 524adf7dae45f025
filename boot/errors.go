package boot

import "fmt"

// MalformedResponseError reports a response that does not match the
// current command's contract: the wrong number of bytes arrived, or a
// status word nothing in the protocol defines. It usually means a link
// integrity problem or a protocol mismatch with the target ROM.
type MalformedResponseError struct {
	Op   string
	Want int
	Got  int
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("boot: %s: expected %d response bytes, got %d", e.Op, e.Want, e.Got)
}

// UnacknowledgedError reports that the ROM answered with a status word
// other than the acknowledgement the command requires.
type UnacknowledgedError struct {
	Op     string
	Status uint32
}

func (e *UnacknowledgedError) Error() string {
	return fmt.Sprintf("boot: %s: unexpected status 0x%08X instead of ACK", e.Op, e.Status)
}
