// Package mock provides an in-memory stand-in for the test firmware so the
// host side can be exercised without a board attached.
package mock

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"mtu/packet"
	"mtu/rxstream"
)

// DefaultVersion is the ping response of a ROM in serial download mode.
var DefaultVersion = packet.PingResponse{Major: 1, Minor: 1, Bugfix: 0, Name: 'P'}

// Firmware decodes the frames written to it and answers them the way the
// target firmware does: text log lines, and for the pin test one binary
// waveform frame between mode markers.
type Firmware struct {
	// Silent drops ROM pings unanswered, as a board outside boot mode does.
	Silent  bool
	Version packet.PingResponse

	log *zap.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	out    []byte
	closed bool

	rx      []byte
	dec     packet.Decoder
	frames  []packet.Frame
	pings   int
	desyncs int
}

func NewFirmware(log *zap.Logger) *Firmware {
	if log == nil {
		log = zap.NewNop()
	}
	f := &Firmware{
		Version: DefaultVersion,
		log:     log,
	}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Read blocks until the firmware has output or is closed.
func (f *Firmware) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.out) == 0 && !f.closed {
		f.cond.Wait()
	}
	if len(f.out) == 0 {
		return 0, io.EOF
	}
	n := copy(p, f.out)
	f.out = append(f.out[:0], f.out[n:]...)
	return n, nil
}

func (f *Firmware) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, errors.New("mock: write on closed firmware")
	}

	f.rx = append(f.rx, p...)
	for len(f.rx) > 0 {
		if f.rx[0] == packet.PingRequest()[0] {
			if len(f.rx) < 2 {
				break
			}
			if f.rx[1] == packet.PingRequest()[1] {
				f.rx = f.rx[2:]
				f.ping()
				continue
			}
		}
		_, _ = f.dec.Write(f.rx)
		f.rx = f.rx[:0]
	}

	for {
		fr, ok, err := f.dec.Next()
		if err != nil {
			f.desyncs++
			f.log.Warn("mock: bad frame", zap.Error(err))
			f.printf("Bad packet\n")
			continue
		}
		if !ok {
			break
		}
		f.frames = append(f.frames, fr)
		f.handle(fr.Command)
	}

	if len(f.out) > 0 {
		f.cond.Broadcast()
	}
	return len(p), nil
}

func (f *Firmware) Close() error {
	f.mu.Lock()
	f.closed = true
	f.cond.Broadcast()
	f.mu.Unlock()
	return nil
}

func (f *Firmware) ping() {
	f.pings++
	if f.Silent {
		return
	}
	f.out = append(f.out, f.Version.Encode()...)
}

func (f *Firmware) printf(format string, a ...any) {
	f.out = append(f.out, fmt.Sprintf(format, a...)...)
}

// Samples returns the waveform frame the pin test reports; one bit walks
// across the sampled pins.
func Samples() []byte {
	s := make([]byte, rxstream.SamplesPerFrame)
	for i := range s {
		s[i] = 1 << (i % 8)
	}
	return s
}

func (f *Firmware) handle(cmd packet.Command) {
	switch c := cmd.(type) {
	case *packet.PinTest:
		f.printf("Pin test on FlexSPI%d\n", c.Conn.Instance)
		f.printf("%s", rxstream.MarkerBinary)
		f.out = append(f.out, Samples()...)
		f.printf("%s", rxstream.MarkerText)
	case *packet.ConfigSystem:
		f.printf("CPU clock: %dMHz, L1 cache: %t, prefetch: %t\n",
			c.Settings.CPUSpeedMHz, c.Settings.EnableL1Cache, c.Settings.EnablePrefetch)
		f.printf("Memory: %dKB at %dMHz\n", c.Properties.SizeKB, c.Settings.MemSpeedMHz)
		f.printf("System configured\n")
	case *packet.MemRegs:
		f.printf("Memory registers:\n")
		f.printf("  status: 0x00\n")
	case *packet.RwTest:
		f.printf("RW test: offset 0x%08x, length 0x%08x\n", c.Offset, c.Length)
		f.printf("RW test passed\n")
	case *packet.PerfTest:
		f.printf("Perf test: offset 0x%08x, length 0x%08x\n", c.Offset, c.Length)
	case *packet.StressTest:
		f.printf("Stress test: pattern 0x%08x, %d iterations\n", c.Pattern, c.Iterations)
	case *packet.Stop:
		f.printf("Test stopped\n")
	}
}

// Frames returns the frames received so far.
func (f *Firmware) Frames() []packet.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]packet.Frame(nil), f.frames...)
}

// Pings returns the number of ROM pings received.
func (f *Firmware) Pings() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pings
}

// Desyncs returns the number of times the frame decoder had to resynchronise.
func (f *Firmware) Desyncs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.desyncs
}

// Closed reports whether the host closed the port.
func (f *Firmware) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
