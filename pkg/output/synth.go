package output

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/sinshu/go-meltysynth/meltysynth"
	"github.com/zurustar/rolandseq/pkg/fileutil"
	"github.com/zurustar/rolandseq/pkg/sequence"
)

// SampleRate is the audio sample rate used for synthesis.
const SampleRate = 44100

// synthBufferSize keeps the audio player's latency near the worker interval.
const synthBufferSize = 60 * time.Millisecond

// ErrNoSoundFont is returned when no SoundFont file is provided.
var ErrNoSoundFont = errors.New("SoundFont file is required for software synthesis")

// ErrSoundFontNotFound is returned when the SoundFont file cannot be found.
var ErrSoundFontNotFound = errors.New("SoundFont file not found")

// synthesizer is the part of meltysynth.Synthesizer the stream drives.
type synthesizer interface {
	ProcessMidiMessage(channel int32, command int32, data1 int32, data2 int32)
	Render(left []float32, right []float32)
}

// synthStream implements io.Reader for Ebitengine/audio, rendering the
// synthesizer as 16-bit interleaved stereo. Messages and rendering happen on
// different goroutines so both go through mu.
type synthStream struct {
	synth       synthesizer
	sampleCount int64
	stopped     bool
	mu          sync.Mutex
}

func (s *synthStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		clear(p)
		return len(p), nil
	}

	samples := len(p) / 4
	if samples == 0 {
		return 0, nil
	}

	left := make([]float32, samples)
	right := make([]float32, samples)
	s.synth.Render(left, right)
	s.sampleCount += int64(samples)

	for i := range samples {
		l := int16(clamp(left[i], -1, 1) * 32767)
		r := int16(clamp(right[i], -1, 1) * 32767)
		binary.LittleEndian.PutUint16(p[i*4:], uint16(l))
		binary.LittleEndian.PutUint16(p[i*4+2:], uint16(r))
	}
	return samples * 4, nil
}

func (s *synthStream) process(b []byte) {
	if len(b) == 0 || b[0] < 0x80 || b[0] >= 0xF0 {
		// System messages, SysEx included, mean nothing to a SoundFont synth.
		return
	}
	var d1, d2 int32
	if len(b) > 1 {
		d1 = int32(b[1])
	}
	if len(b) > 2 {
		d2 = int32(b[2])
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.synth.ProcessMidiMessage(int32(b[0]&0x0F), int32(b[0]&0xF0), d1, d2)
}

func (s *synthStream) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Synth plays messages through a SoundFont synthesizer on the default
// audio device.
type Synth struct {
	stream *synthStream
	player *audio.Player
}

// LoadSoundFont reads and parses a SoundFont. The file name is matched
// case-insensitively within its directory.
func LoadSoundFont(path string) (*meltysynth.SoundFont, error) {
	if path == "" {
		return nil, ErrNoSoundFont
	}
	actual, err := fileutil.Resolve(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSoundFontNotFound, path)
	}
	data, err := os.ReadFile(actual)
	if err != nil {
		return nil, fmt.Errorf("failed to read SoundFont file: %w", err)
	}
	sf, err := meltysynth.NewSoundFont(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SoundFont: %w", err)
	}
	return sf, nil
}

// NewSynth loads the SoundFont at path and starts rendering. A nil audioCtx
// uses the process's current context, creating one when needed.
func NewSynth(soundFontPath string, audioCtx *audio.Context) (*Synth, error) {
	sf, err := LoadSoundFont(soundFontPath)
	if err != nil {
		return nil, err
	}

	settings := meltysynth.NewSynthesizerSettings(SampleRate)
	synth, err := meltysynth.NewSynthesizer(sf, settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesizer: %w", err)
	}

	if audioCtx == nil {
		audioCtx = audio.CurrentContext()
	}
	if audioCtx == nil {
		audioCtx = audio.NewContext(SampleRate)
	}

	s := newSynth(synth)
	player, err := audioCtx.NewPlayer(s.stream)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio player: %w", err)
	}
	player.SetBufferSize(synthBufferSize)
	player.Play()
	s.player = player
	return s, nil
}

func newSynth(synth synthesizer) *Synth {
	return &Synth{stream: &synthStream{synth: synth}}
}

// Send plays msg.
func (s *Synth) Send(msg sequence.Message) {
	s.stream.process(msg.Bytes())
}

// SendBytes plays raw wire bytes.
func (s *Synth) SendBytes(b []byte) {
	s.stream.process(b)
}

// Position returns how much audio has been rendered.
func (s *Synth) Position() time.Duration {
	s.stream.mu.Lock()
	defer s.stream.mu.Unlock()
	return time.Duration(s.stream.sampleCount) * time.Second / SampleRate
}

// Close silences the stream and closes the audio player.
func (s *Synth) Close() error {
	s.stream.stop()
	if s.player != nil {
		err := s.player.Close()
		s.player = nil
		return err
	}
	return nil
}
