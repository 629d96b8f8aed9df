package output

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/zurustar/rolandseq/pkg/logger"
	"github.com/zurustar/rolandseq/pkg/sequence"
	"github.com/zurustar/rolandseq/pkg/sysex"
	"gitlab.com/gomidi/midi/v2"
)

// DefaultQueueSize is the number of messages a Port buffers.
const DefaultQueueSize = 1024

// PortOption configures a Port.
type PortOption func(*Port)

// WithQueueSize sets the queue length.
func WithQueueSize(n int) PortOption {
	return func(p *Port) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// WithErrorHandler receives send failures and dropped messages. Without
// one they are logged.
func WithErrorHandler(fn func(error)) PortOption {
	return func(p *Port) { p.onError = fn }
}

// Port writes to a MIDI output port from its own goroutine.
type Port struct {
	name      string
	send      func(midi.Message) error
	closer    func() error
	queueSize int
	onError   func(error)
	log       *slog.Logger

	queue chan []byte
	done  chan struct{}

	mu     sync.Mutex
	closed bool
}

// ListPorts returns the names of the available output ports.
func ListPorts() []string {
	var names []string
	for _, port := range midi.GetOutPorts() {
		names = append(names, port.String())
	}
	return names
}

// OpenPort opens the first output port whose name contains name.
func OpenPort(name string, opts ...PortOption) (*Port, error) {
	out, err := midi.FindOutPort(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPortNotFound, name)
	}
	send, err := midi.SendTo(out)
	if err != nil {
		return nil, fmt.Errorf("failed to open MIDI port %s: %w", out.String(), err)
	}
	return newPort(out.String(), send, out.Close, opts...), nil
}

func newPort(name string, send func(midi.Message) error, closer func() error, opts ...PortOption) *Port {
	p := &Port{
		name:      name,
		send:      send,
		closer:    closer,
		queueSize: DefaultQueueSize,
		log:       logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.queue = make(chan []byte, p.queueSize)
	p.done = make(chan struct{})
	go p.run()
	return p
}

func (p *Port) run() {
	defer close(p.done)
	for b := range p.queue {
		if err := p.send(midi.Message(b)); err != nil {
			p.report(fmt.Errorf("failed to send to %s: %w", p.name, err))
		}
	}
}

func (p *Port) report(err error) {
	if p.onError != nil {
		p.onError(err)
		return
	}
	p.log.Warn("MIDI output error", "port", p.name, "error", err)
}

// Name returns the port name.
func (p *Port) Name() string {
	return p.name
}

// Send queues msg.
func (p *Port) Send(msg sequence.Message) {
	p.enqueue(msg.Bytes())
}

// SendBytes queues raw wire bytes. b is copied.
func (p *Port) SendBytes(b []byte) {
	p.enqueue(append([]byte(nil), b...))
}

// SendSysEx queues a Roland SysEx message.
func (p *Port) SendSysEx(m *sysex.Message) {
	p.enqueue(m.Bytes())
}

func (p *Port) enqueue(b []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		p.report(ErrClosed)
		return
	}
	select {
	case p.queue <- b:
	default:
		p.report(fmt.Errorf("%w: dropped % X", ErrQueueFull, b))
	}
}

// Close sends what is queued and closes the port.
func (p *Port) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	if p.closer != nil {
		return p.closer()
	}
	return nil
}
