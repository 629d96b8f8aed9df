package output

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sync"
	"testing"

	"github.com/zurustar/rolandseq/pkg/sequence"
	"github.com/zurustar/rolandseq/pkg/sysex"
	"gitlab.com/gomidi/midi/v2"
)

type recordingSink struct {
	msgs   []sequence.Message
	raw    [][]byte
	closed bool
	err    error
}

func (r *recordingSink) Send(msg sequence.Message) { r.msgs = append(r.msgs, msg) }
func (r *recordingSink) SendBytes(b []byte)        { r.raw = append(r.raw, b) }
func (r *recordingSink) Close() error {
	r.closed = true
	return r.err
}

func TestAllNotesOff(t *testing.T) {
	sink := &recordingSink{}
	AllNotesOff(sink)

	if len(sink.msgs) != 16 {
		t.Fatalf("expected 16 messages, got %d", len(sink.msgs))
	}
	for i, m := range sink.msgs {
		if m.Kind != sequence.ControlChange || m.Data1 != sequence.CCAllNotesOff || m.Channel != uint8(i) {
			t.Errorf("message %d: unexpected %v", i, m)
		}
	}
}

func TestMulti(t *testing.T) {
	closeErr := errors.New("device gone")
	a := &recordingSink{}
	b := &recordingSink{err: closeErr}
	m := Multi{a, b}

	m.Send(sequence.NewNoteOn(0, 60, 100))
	m.SendBytes([]byte{0x80, 60, 0})

	for _, s := range []*recordingSink{a, b} {
		if len(s.msgs) != 1 || len(s.raw) != 1 {
			t.Errorf("sink did not receive both messages: %+v", s)
		}
	}
	if err := m.Close(); !errors.Is(err, closeErr) {
		t.Errorf("expected joined close error, got %v", err)
	}
	if !a.closed || !b.closed {
		t.Error("every sink should be closed")
	}
}

type fakeDevice struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool
	fail   error
}

func (d *fakeDevice) send(msg midi.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return d.fail
	}
	d.sent = append(d.sent, append([]byte(nil), msg.Bytes()...))
	return nil
}

func (d *fakeDevice) close() error {
	d.closed = true
	return nil
}

func TestPort_DeliversInOrder(t *testing.T) {
	dev := &fakeDevice{}
	p := newPort("fake", dev.send, dev.close)

	p.Send(sequence.NewProgramChange(2, 7))
	p.SendBytes([]byte{0x92, 64, 90})
	sx, err := sysex.DataSet(sysex.DefaultDeviceID, sysex.ModelJDXi, [4]byte{0x18, 0x00, 0x20, 0x06}, 0x00)
	if err != nil {
		t.Fatalf("DataSet failed: %v", err)
	}
	p.SendSysEx(sx)

	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !dev.closed {
		t.Error("device not closed")
	}

	want := [][]byte{{0xC2, 7}, {0x92, 64, 90}, sx.Bytes()}
	if len(dev.sent) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(dev.sent))
	}
	for i := range want {
		if !bytes.Equal(dev.sent[i], want[i]) {
			t.Errorf("message %d: got % X, want % X", i, dev.sent[i], want[i])
		}
	}
}

func TestPort_ReportsErrors(t *testing.T) {
	var mu sync.Mutex
	var errs []error
	handler := WithErrorHandler(func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	})

	t.Run("send failure", func(t *testing.T) {
		errs = nil
		dev := &fakeDevice{fail: errors.New("unplugged")}
		p := newPort("fake", dev.send, dev.close, handler)
		p.Send(sequence.NewNoteOn(0, 60, 100))
		p.Close()
		if len(errs) != 1 {
			t.Errorf("expected 1 error, got %v", errs)
		}
	})

	t.Run("after close", func(t *testing.T) {
		errs = nil
		dev := &fakeDevice{}
		p := newPort("fake", dev.send, dev.close, handler)
		p.Close()
		p.Send(sequence.NewNoteOn(0, 60, 100))
		if len(errs) != 1 || !errors.Is(errs[0], ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", errs)
		}
		if err := p.Close(); err != nil {
			t.Errorf("second Close failed: %v", err)
		}
	})

	t.Run("queue full", func(t *testing.T) {
		errs = nil
		release := make(chan struct{})
		blocked := func(midi.Message) error {
			<-release
			return nil
		}
		p := newPort("slow", blocked, nil, handler, WithQueueSize(1))
		for i := 0; i < 4; i++ {
			p.Send(sequence.NewNoteOn(0, uint8(60+i), 100))
		}
		close(release)
		p.Close()

		mu.Lock()
		defer mu.Unlock()
		if len(errs) == 0 {
			t.Fatal("expected dropped messages to be reported")
		}
		for _, err := range errs {
			if !errors.Is(err, ErrQueueFull) {
				t.Errorf("unexpected error %v", err)
			}
		}
	})
}

type fakeSynth struct {
	calls [][4]int32
	level float32
}

func (f *fakeSynth) ProcessMidiMessage(channel, command, data1, data2 int32) {
	f.calls = append(f.calls, [4]int32{channel, command, data1, data2})
}

func (f *fakeSynth) Render(left, right []float32) {
	for i := range left {
		left[i] = f.level
		right[i] = -f.level * 4
	}
}

func TestSynth_TranslatesMessages(t *testing.T) {
	fs := &fakeSynth{}
	s := newSynth(fs)

	s.Send(sequence.NewNoteOn(3, 60, 100))
	s.Send(sequence.NewPitchBend(1, 0))
	s.Send(sequence.NewProgramChange(9, 25))
	s.Send(sequence.NewSysEx([]byte{0xF0, 0x41, 0xF7}))
	s.SendBytes([]byte{0xB0, 7, 80})

	want := [][4]int32{
		{3, 0x90, 60, 100},
		{1, 0xE0, 0x00, 0x40},
		{9, 0xC0, 25, 0},
		{0, 0xB0, 7, 80},
	}
	if len(fs.calls) != len(want) {
		t.Fatalf("expected %d calls, got %v", len(want), fs.calls)
	}
	for i := range want {
		if fs.calls[i] != want[i] {
			t.Errorf("call %d: got %v, want %v", i, fs.calls[i], want[i])
		}
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	s.Send(sequence.NewNoteOn(0, 60, 100))
	if len(fs.calls) != len(want) {
		t.Error("closed synth still processing messages")
	}
}

func TestSynthStream_Read(t *testing.T) {
	fs := &fakeSynth{level: 0.5}
	s := newSynth(fs)

	buf := make([]byte, 16)
	n, err := s.stream.Read(buf)
	if err != nil || n != 16 {
		t.Fatalf("Read = %d, %v", n, err)
	}
	l := int16(binary.LittleEndian.Uint16(buf[0:]))
	r := int16(binary.LittleEndian.Uint16(buf[2:]))
	if l != int16(0.5*32767) {
		t.Errorf("left sample %d", l)
	}
	if r != -32767 {
		t.Errorf("right sample not clamped: %d", r)
	}
	if s.Position() <= 0 {
		t.Error("position should advance after rendering")
	}

	s.Close()
	n, _ = s.stream.Read(buf)
	if n != 16 || !bytes.Equal(buf, make([]byte, 16)) {
		t.Error("stopped stream should render silence")
	}
}
