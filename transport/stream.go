package transport

import (
	"errors"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// StreamPort adapts a blocking io.ReadWriteCloser to Port. A pump goroutine
// moves received bytes into a buffer so Available never blocks.
type StreamPort struct {
	name string
	rwc  io.ReadWriteCloser
	log  *zap.Logger

	mu      sync.Mutex
	buf     []byte
	err     error
	closed  bool
	timeout time.Duration

	avail chan struct{}
	done  chan struct{}
}

// NewStreamPort starts pumping rwc. The port owns rwc from now on.
func NewStreamPort(name string, rwc io.ReadWriteCloser, log *zap.Logger) *StreamPort {
	if log == nil {
		log = zap.NewNop()
	}
	p := &StreamPort{
		name:    name,
		rwc:     rwc,
		log:     log,
		timeout: -1,
		avail:   make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go p.pump()
	return p
}

// must run in a goroutine
func (p *StreamPort) pump() {
	defer close(p.done)

	b := make([]byte, 4096)
	for {
		n, err := p.rwc.Read(b)
		p.mu.Lock()
		if n > 0 {
			p.buf = append(p.buf, b[:n]...)
		}
		if err != nil {
			if p.closed || errors.Is(err, io.EOF) {
				err = ErrClosed
			}
			p.err = err
		}
		p.mu.Unlock()

		if n > 0 || err != nil {
			p.signal()
		}
		if err != nil {
			if !errors.Is(err, ErrClosed) {
				p.log.Warn("transport: read", zap.String("port", p.name), zap.Error(err))
			}
			return
		}
	}
}

func (p *StreamPort) signal() {
	select {
	case p.avail <- struct{}{}:
	default:
	}
}

func (p *StreamPort) Available() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.buf) == 0 && p.err != nil {
		return 0, p.err
	}
	return len(p.buf), nil
}

func (p *StreamPort) SetReadTimeout(d time.Duration) error {
	p.mu.Lock()
	p.timeout = d
	p.mu.Unlock()
	return nil
}

func (p *StreamPort) Read(b []byte) (int, error) {
	var deadline <-chan time.Time
	for {
		p.mu.Lock()
		if len(p.buf) > 0 {
			n := copy(b, p.buf)
			p.buf = append(p.buf[:0], p.buf[n:]...)
			p.mu.Unlock()
			return n, nil
		}
		if p.err != nil {
			err := p.err
			p.mu.Unlock()
			return 0, err
		}
		timeout := p.timeout
		p.mu.Unlock()

		if timeout == 0 {
			return 0, nil
		}
		if timeout > 0 && deadline == nil {
			deadline = time.After(timeout)
		}
		select {
		case <-p.avail:
		case <-deadline:
			return 0, nil
		}
	}
}

func (p *StreamPort) Write(b []byte) (int, error) {
	sent := 0
	for sent < len(b) {
		n, err := p.rwc.Write(b[sent:])
		if err != nil {
			return sent, err
		}
		sent += n
	}
	return sent, nil
}

// Close closes the underlying stream and waits for the pump to exit.
func (p *StreamPort) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	err := p.rwc.Close()
	<-p.done
	p.log.Debug("transport: closed", zap.String("port", p.name))
	return err
}
