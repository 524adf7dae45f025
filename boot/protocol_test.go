package boot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"mxflash/channel"
)

func queueStatus(m *channel.Mock, status uint32) {
	var raw [4]byte
	binary.LittleEndian.PutUint32(raw[:], status)
	m.QueueData(raw[:])
}

func queueAck(m *channel.Mock) {
	queueStatus(m, AckEngineeringPart)
}

// decodeWriteMemory pulls (address, width, value) back out of an
// encoded write-memory frame.
func decodeWriteMemory(t *testing.T, frame []byte) (uint32, Width, uint32) {
	t.Helper()
	if len(frame) != 16 {
		t.Fatalf("frame length = %d, want 16", len(frame))
	}
	if op := binary.BigEndian.Uint16(frame[0:]); op != cmdWriteMemory {
		t.Fatalf("opcode = 0x%04X, want 0x%04X", op, cmdWriteMemory)
	}
	addr := binary.BigEndian.Uint32(frame[2:])
	width := Width(frame[6])
	value := binary.BigEndian.Uint32(frame[11:])
	return addr, width, value
}

func TestStatusString(t *testing.T) {
	if got := StatusString(HABPassed); got != "successful operation complete" {
		t.Errorf("StatusString(HABPassed) = %q", got)
	}
	if got := StatusString(0x5643BEEF); got != "unknown code 0x5643beef" {
		t.Errorf("StatusString(unknown) = %q", got)
	}
}

func TestGetStatus(t *testing.T) {
	m := channel.NewMock()
	p := NewProtocol(m)

	queueStatus(m, 0xDEADBEEF)
	status, err := p.GetStatus()
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status != 0xDEADBEEF {
		t.Errorf("status = 0x%08X, want 0xDEADBEEF", status)
	}

	frame := m.Sent[0]
	if len(frame) != 16 {
		t.Errorf("command length = %d, want 16", len(frame))
	}
	if op := binary.BigEndian.Uint16(frame); op != cmdGetStatus {
		t.Errorf("opcode = 0x%04X, want 0x%04X", op, cmdGetStatus)
	}
}

func TestWriteMemoryRoundTrip(t *testing.T) {
	cases := []struct {
		addr  uint32
		width Width
		value uint32
	}{
		{0xB8001010, Width32, 0x00000004},
		{0x80000400, Width16, 0x1234},
		{0x78001000, Width8, 0xA5},
		{0xFFFFFFFC, Width32, 0xFFFFFFFF},
	}

	for _, tc := range cases {
		m := channel.NewMock()
		p := NewProtocol(m)
		queueAck(m)
		queueStatus(m, AckWriteSuccess)

		if err := p.WriteMemory(tc.addr, tc.width, tc.value); err != nil {
			t.Fatalf("WriteMemory(0x%08X, %d, 0x%X): %v", tc.addr, tc.width, tc.value, err)
		}

		addr, width, value := decodeWriteMemory(t, m.Sent[0])
		if addr != tc.addr || width != tc.width || value != tc.value {
			t.Errorf("decoded (0x%08X, %d, 0x%X), want (0x%08X, %d, 0x%X)",
				addr, width, value, tc.addr, tc.width, tc.value)
		}
	}
}

func TestWriteMemoryExactFrame(t *testing.T) {
	m := channel.NewMock()
	p := NewProtocol(m)
	queueAck(m)
	queueStatus(m, AckWriteSuccess)

	if err := p.WriteMemory(0xB8001010, Width32, 0x00000004); err != nil {
		t.Fatalf("WriteMemory: %v", err)
	}

	want := []byte{
		0x02, 0x02, // opcode
		0xB8, 0x00, 0x10, 0x10, // address
		0x20,                   // width
		0x00, 0x00, 0x00, 0x00, // pad
		0x00, 0x00, 0x00, 0x04, // value
		0x00, // frame pad
	}
	if !bytes.Equal(m.Sent[0], want) {
		t.Errorf("frame = % X, want % X", m.Sent[0], want)
	}
}

func TestWriteMemoryValueWidthValidation(t *testing.T) {
	m := channel.NewMock()
	p := NewProtocol(m)

	if err := p.WriteMemory(0, Width8, 0x100); err == nil {
		t.Error("expected error for 0x100 in 8 bits")
	}
	if err := p.WriteMemory(0, Width16, 0x10000); err == nil {
		t.Error("expected error for 0x10000 in 16 bits")
	}
	if err := p.WriteMemory(0, Width(24), 0); err == nil {
		t.Error("expected error for width 24")
	}
	if len(m.Sent) != 0 {
		t.Errorf("invalid commands reached the link: %d writes", len(m.Sent))
	}
}

func TestWriteMemoryUnacknowledged(t *testing.T) {
	m := channel.NewMock()
	p := NewProtocol(m)
	queueStatus(m, HABFailure)

	err := p.WriteMemory(0x80000000, Width32, 1)
	var uerr *UnacknowledgedError
	if !errors.As(err, &uerr) {
		t.Fatalf("err = %v, want *UnacknowledgedError", err)
	}
	if uerr.Status != HABFailure {
		t.Errorf("status = 0x%08X, want 0x%08X", uerr.Status, HABFailure)
	}
}

func TestWriteMemoryNoSuccessWord(t *testing.T) {
	// A write failure is signaled by silence after the initial ACK.
	m := channel.NewMock()
	p := NewProtocol(m)
	queueAck(m)

	err := p.WriteMemory(0x80000000, Width32, 1)
	var uerr *UnacknowledgedError
	if !errors.As(err, &uerr) {
		t.Fatalf("err = %v, want *UnacknowledgedError", err)
	}
}

func TestReadMemory(t *testing.T) {
	m := channel.NewMock()
	p := NewProtocol(m)
	queueAck(m)
	m.QueueData([]byte{0xAA, 0xBB})

	data, err := p.ReadMemory(0x80000400, Width16, 1)
	if err != nil {
		t.Fatalf("ReadMemory: %v", err)
	}
	if !bytes.Equal(data, []byte{0xAA, 0xBB}) {
		t.Errorf("data = % X, want AA BB", data)
	}

	frame := m.Sent[0]
	if op := binary.BigEndian.Uint16(frame); op != cmdReadMemory {
		t.Errorf("opcode = 0x%04X", op)
	}
	if addr := binary.BigEndian.Uint32(frame[2:]); addr != 0x80000400 {
		t.Errorf("address = 0x%08X", addr)
	}
	if frame[6] != 0x10 {
		t.Errorf("width byte = 0x%02X, want 0x10", frame[6])
	}
	if count := binary.BigEndian.Uint32(frame[7:]); count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestReadWordLittleEndian(t *testing.T) {
	m := channel.NewMock()
	p := NewProtocol(m)
	queueAck(m)
	m.QueueData([]byte{0xEF, 0xBE, 0xAD, 0xDE})

	v, err := p.ReadWord(0x78001000, Width32)
	if err != nil {
		t.Fatalf("ReadWord: %v", err)
	}
	if v != 0xDEADBEEF {
		t.Errorf("value = 0x%08X, want 0xDEADBEEF", v)
	}
}

func TestReadMemoryTimeout(t *testing.T) {
	m := channel.NewMock()
	p := NewProtocol(m)
	queueAck(m)
	// No data queued behind the ACK.

	_, err := p.ReadMemory(0x80000000, Width32, 4)
	if !channel.IsTimeout(err) {
		t.Fatalf("err = %v, want timeout", err)
	}
}

func TestReadMemoryShortStatus(t *testing.T) {
	m := channel.NewMock()
	p := NewProtocol(m)
	m.QueueData([]byte{0x56, 0x78}) // truncated status word

	_, err := p.ReadMemory(0x80000000, Width32, 1)
	var merr *MalformedResponseError
	if !errors.As(err, &merr) {
		t.Fatalf("err = %v, want *MalformedResponseError", err)
	}
	if merr.Got != 2 {
		t.Errorf("got = %d, want 2", merr.Got)
	}
}

func TestWriteFileChunking(t *testing.T) {
	m := channel.NewMock()
	p := NewProtocol(m)
	queueAck(m)

	image := make([]byte, 2500)
	for i := range image {
		image[i] = byte(i)
	}

	var progress []uint32
	err := p.WriteFile(FileTypeApplication, 0x80004000, bytes.NewReader(image),
		uint32(len(image)), func(written, total uint32) {
			progress = append(progress, written)
		})
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	// Command frame, then 1024+1024+452 byte chunks.
	wantLens := []int{16, 1024, 1024, 452}
	if len(m.Sent) != len(wantLens) {
		t.Fatalf("writes = %d, want %d", len(m.Sent), len(wantLens))
	}
	for i, want := range wantLens {
		if len(m.Sent[i]) != want {
			t.Errorf("write %d length = %d, want %d", i, len(m.Sent[i]), want)
		}
	}

	frame := m.Sent[0]
	if op := binary.BigEndian.Uint16(frame); op != cmdWriteFile {
		t.Errorf("opcode = 0x%04X", op)
	}
	if length := binary.BigEndian.Uint32(frame[7:]); length != 2500 {
		t.Errorf("length field = %d, want 2500", length)
	}
	if frame[15] != byte(FileTypeApplication) {
		t.Errorf("filetype = 0x%02X, want 0xAA", frame[15])
	}

	if !bytes.Equal(append(append(append([]byte{}, m.Sent[1]...), m.Sent[2]...), m.Sent[3]...), image) {
		t.Error("streamed payload does not match image")
	}
	if len(progress) != 3 || progress[2] != 2500 {
		t.Errorf("progress = %v", progress)
	}
}

func TestWriteFileShortStream(t *testing.T) {
	m := channel.NewMock()
	p := NewProtocol(m)
	queueAck(m)

	err := p.WriteFile(FileTypeApplication, 0, bytes.NewReader(make([]byte, 100)), 200, nil)
	if err == nil {
		t.Fatal("expected error for stream ending early")
	}
}

func TestCompleteBoot(t *testing.T) {
	m := channel.NewMock()
	p := NewProtocol(m)
	queueStatus(m, BootProtocolComplete)

	if err := p.CompleteBoot(); err != nil {
		t.Fatalf("CompleteBoot: %v", err)
	}

	m = channel.NewMock()
	p = NewProtocol(m)
	queueStatus(m, HABFailure)
	if err := p.CompleteBoot(); err == nil {
		t.Fatal("expected error for non-complete status")
	}
}
