// Package session drives one connection to the test firmware: it opens the
// port, optionally probes the ROM bootloader, sends command frames and turns
// the received byte stream into events.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"mtu/mcu"
	"mtu/packet"
	"mtu/rxstream"
	"mtu/settings"
	"mtu/transport"
)

const (
	DefaultProbeRetries = 5
	DefaultProbeDelay   = 2 * time.Second
	DefaultProbeTimeout = 500 * time.Millisecond
	DefaultPollInterval = 10 * time.Millisecond
)

type Config struct {
	Target *mcu.Target
	Device transport.DeviceDescriptor

	// Open opens Device; transport.Open when nil.
	Open func(desc transport.DeviceDescriptor) (transport.Port, error)

	// ProbeBootloader pings the ROM before the session is considered
	// connected. When false the session is connected once the port opens.
	ProbeBootloader bool
	ProbeRetries    int
	ProbeDelay      time.Duration
	// ProbeTimeout bounds the wait for each ping response.
	ProbeTimeout time.Duration

	PollInterval time.Duration

	// ShowPackets emits an EventPacketSent for every frame written.
	ShowPackets bool

	MaxLines int

	Clock Clock
	Log   *zap.Logger
}

func (c *Config) setDefaults() {
	if c.Open == nil {
		c.Open = transport.Open
	}
	if c.ProbeRetries <= 0 {
		c.ProbeRetries = DefaultProbeRetries
	}
	if c.ProbeDelay <= 0 {
		c.ProbeDelay = DefaultProbeDelay
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Clock == nil {
		c.Clock = realClock{}
	}
	if c.Log == nil {
		c.Log = zap.NewNop()
	}
	if c.Device.Baud == 0 && c.Target != nil {
		c.Device.Baud = c.Target.DefaultBaud()
	}
}

type Session struct {
	cfg Config
	log *zap.Logger

	// ops serialises Connect, Run, Stop and Disconnect.
	ops sync.Mutex

	// mu guards the fields below; never held across port I/O.
	mu      sync.Mutex
	state   State
	port    transport.Port
	stop    chan struct{}
	done    chan struct{}
	version *packet.PingResponse
	running packet.CommandID

	writeMu sync.Mutex

	seq       atomic.Uint32
	bytesRead atomic.Uint64
	sent      atomic.Uint64

	rx *rxstream.Receiver

	subsMu  sync.Mutex
	subs    map[int]*subscriber
	nextSub int
}

func New(cfg Config) *Session {
	cfg.setDefaults()
	return &Session{
		cfg:  cfg,
		log:  cfg.Log,
		rx:   rxstream.NewReceiver(cfg.MaxLines),
		subs: make(map[int]*subscriber),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Target() *mcu.Target { return s.cfg.Target }

func (s *Session) Device() transport.DeviceDescriptor { return s.cfg.Device }

// Receiver exposes the receive parser state: log lines, waveform and mode.
func (s *Session) Receiver() *rxstream.Receiver { return s.rx }

// Version returns the ROM ping response of the last successful probe.
func (s *Session) Version() (packet.PingResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.version == nil {
		return packet.PingResponse{}, false
	}
	return *s.version, true
}

// Running returns the command id of the test in progress.
func (s *Session) Running() (packet.CommandID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running, s.state == TestRunning
}

// Stats returns the number of bytes received and frames sent.
func (s *Session) Stats() (bytesRead, framesSent uint64) {
	return s.bytesRead.Load(), s.sent.Load()
}

// setState must be called with mu held; the event is emitted by the caller
// after unlocking.
func (s *Session) setState(st State) Event {
	if s.state != st {
		s.log.Debug("session: state", zap.Stringer("from", s.state), zap.Stringer("to", st))
	}
	s.state = st
	return Event{Kind: EventStateChanged, State: st}
}

func (s *Session) transition(st State) {
	s.mu.Lock()
	ev := s.setState(st)
	s.mu.Unlock()
	s.emit(ev)
}

// Connect opens the port and, if configured, waits for the ROM bootloader to
// answer a ping. On failure the session is back in Disconnected.
func (s *Session) Connect(ctx context.Context) error {
	s.ops.Lock()
	defer s.ops.Unlock()

	desc := s.cfg.Device
	if t := s.cfg.Target; t != nil && desc.Baud != 0 && !t.SupportsBaud(desc.Baud) {
		return &settings.ConfigValidationError{
			Key:    "baud",
			Value:  desc.Baud,
			Reason: fmt.Sprintf("%s UART supports %v", t.Device, t.UARTBauds),
		}
	}

	s.mu.Lock()
	if s.state != Disconnected {
		st := s.state
		s.mu.Unlock()
		return &StateError{Op: "connect", State: st}
	}
	ev := s.setState(Connecting)
	s.mu.Unlock()
	s.emit(ev)

	s.log.Info("session: connect", zap.Stringer("device", desc), zap.Bool("probe", s.cfg.ProbeBootloader))

	port, err := s.cfg.Open(desc)
	if err != nil {
		cerr := &ConnectionError{
			Device: s.targetName(),
			Port:   desc.String(),
			Remedy: "Check that the port exists and no other program is using it.",
			Err:    err,
		}
		s.fail(cerr)
		return cerr
	}

	var version *packet.PingResponse
	if s.cfg.ProbeBootloader {
		var rsp packet.PingResponse
		rsp, err = s.probe(ctx, port)
		if err != nil {
			_ = port.Close()
			s.fail(err)
			return err
		}
		version = &rsp
	}

	s.rx.Reset()

	s.mu.Lock()
	s.port = port
	s.version = version
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	ev = s.setState(Connected)
	go s.poll(port, s.stop, s.done)
	s.mu.Unlock()
	s.emit(ev)

	s.log.Info("session: connected", zap.Stringer("device", desc))
	return nil
}

func (s *Session) targetName() string {
	if s.cfg.Target == nil {
		return "target"
	}
	return s.cfg.Target.Device
}

func (s *Session) fail(err error) {
	s.log.Warn("session: connect failed", zap.Error(err))
	s.emit(Event{Kind: EventError, Err: err})
	s.transition(Disconnected)
}

// Run sends a test command. A test already in progress is stopped first.
func (s *Session) Run(ctx context.Context, cmd packet.Command) error {
	if !cmd.IsTest() {
		return s.Stop()
	}

	s.ops.Lock()
	defer s.ops.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	switch st := s.State(); st {
	case Connected:
	case TestRunning:
		if err := s.stopTest(); err != nil {
			return err
		}
	default:
		return &StateError{Op: "run " + cmd.ID().String(), State: st}
	}

	if err := s.send(cmd); err != nil {
		return err
	}

	s.mu.Lock()
	s.running = cmd.ID()
	ev := s.setState(TestRunning)
	s.mu.Unlock()
	s.emit(ev)
	return nil
}

// Stop ends the running test. It does nothing when no test is running.
func (s *Session) Stop() error {
	s.ops.Lock()
	defer s.ops.Unlock()
	return s.stopTest()
}

func (s *Session) stopTest() error {
	s.mu.Lock()
	if s.state != TestRunning {
		s.mu.Unlock()
		return nil
	}
	ev := s.setState(Stopping)
	s.mu.Unlock()
	s.emit(ev)

	err := s.send(&packet.Stop{})

	s.mu.Lock()
	s.running = 0
	ev = s.setState(Connected)
	s.mu.Unlock()
	s.emit(ev)
	return err
}

// Complete marks the running test as finished without sending Stop.
func (s *Session) Complete() {
	s.mu.Lock()
	if s.state != TestRunning {
		s.mu.Unlock()
		return
	}
	s.running = 0
	ev := s.setState(Connected)
	s.mu.Unlock()
	s.emit(ev)
}

// Disconnect stops the receive loop, waits for it and closes the port.
func (s *Session) Disconnect() error {
	s.ops.Lock()
	defer s.ops.Unlock()
	return s.disconnect()
}

func (s *Session) disconnect() error {
	s.mu.Lock()
	if s.state == Disconnected {
		s.mu.Unlock()
		return nil
	}
	port, stop, done := s.port, s.stop, s.done
	s.port, s.stop, s.done = nil, nil, nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}

	var err error
	if port != nil {
		err = port.Close()
	}

	s.mu.Lock()
	s.running = 0
	ev := s.setState(Disconnected)
	s.mu.Unlock()
	s.emit(ev)

	s.log.Info("session: disconnected", zap.Stringer("device", s.cfg.Device))
	if err != nil {
		return fmt.Errorf("session: close port: %w", err)
	}
	return nil
}

func (s *Session) send(cmd packet.Command) error {
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()
	if port == nil {
		return &StateError{Op: "send " + cmd.ID().String(), State: Disconnected}
	}

	frame := packet.Encode(cmd, uint8(s.seq.Inc()))

	s.writeMu.Lock()
	_, err := port.Write(frame)
	s.writeMu.Unlock()
	if err != nil {
		err = fmt.Errorf("session: send %s: %w", cmd.ID(), err)
		s.emit(Event{Kind: EventError, Err: err})
		return err
	}
	s.sent.Inc()

	s.log.Debug("session: sent", zap.Stringer("cmd", cmd.ID()), zap.Int("size", len(frame)))
	if s.cfg.ShowPackets {
		s.emit(Event{Kind: EventPacketSent, Text: "Cmd Packet ->: " + packet.FormatHex(frame), Data: frame})
	}
	return nil
}
