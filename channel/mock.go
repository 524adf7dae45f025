package channel

import "time"

// Mock is an in-memory channel for exercising protocol engines without
// hardware. Writes are captured in order; reads drain data queued by
// the test. An empty queue behaves like a read timeout.
type Mock struct {
	// Sent accumulates every Write call payload, in order.
	Sent [][]byte

	queue  []byte
	kind   Kind
	closed bool
}

func NewMock() *Mock {
	return &Mock{kind: KindUART}
}

// QueueData appends data to be returned by subsequent reads.
func (m *Mock) QueueData(data []byte) {
	m.queue = append(m.queue, data...)
}

// SentBytes returns everything written so far as one contiguous slice.
func (m *Mock) SentBytes() []byte {
	var all []byte
	for _, b := range m.Sent {
		all = append(all, b...)
	}
	return all
}

// Drained reports whether all queued response data has been consumed.
func (m *Mock) Drained() bool { return len(m.queue) == 0 }

func (m *Mock) SetKind(k Kind) { m.kind = k }

func (m *Mock) Kind() Kind { return m.kind }

func (m *Mock) SetReadTimeout(time.Duration) error { return nil }

func (m *Mock) Read(p []byte) (int, error) {
	if m.closed {
		return 0, ErrClosed
	}
	if len(m.queue) == 0 {
		// Nothing queued: behave like an expired read timeout.
		return 0, nil
	}
	n := copy(p, m.queue)
	m.queue = m.queue[n:]
	return n, nil
}

func (m *Mock) Write(p []byte) (int, error) {
	if m.closed {
		return 0, ErrClosed
	}
	cp := make([]byte, len(p))
	copy(cp, p)
	m.Sent = append(m.Sent, cp)
	return len(p), nil
}

func (m *Mock) Close() error {
	m.closed = true
	return nil
}
