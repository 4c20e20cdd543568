package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"mtu/mcu"
	"mtu/memmodel"
	"mtu/packet"
	"mtu/rxstream"
	"mtu/settings"
	"mtu/transport"
	"mtu/transport/mock"
	"mtu/util"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After advances the clock immediately.
func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func lookup(t *testing.T, device string) *mcu.Target {
	t.Helper()
	tgt, err := mcu.Lookup(device)
	if err != nil {
		t.Fatal(err)
	}
	return tgt
}

type fixture struct {
	fw    *mock.Firmware
	clock *fakeClock
	s     *Session
}

func newFixture(t *testing.T, device string, probe bool, tweak func(fw *mock.Firmware, cfg *Config)) *fixture {
	t.Helper()
	log := util.NewTestingLogger(t)
	f := &fixture{fw: mock.NewFirmware(log), clock: newFakeClock()}

	cfg := Config{
		Target:          lookup(t, device),
		Device:          transport.DeviceDescriptor{Driver: "mock", Port: mock.PortDefault},
		ProbeBootloader: probe,
		ProbeTimeout:    5 * time.Millisecond,
		PollInterval:    time.Millisecond,
		Clock:           f.clock,
		Log:             log,
		Open: func(desc transport.DeviceDescriptor) (transport.Port, error) {
			return mock.NewPort(f.fw, log), nil
		},
	}
	if tweak != nil {
		tweak(f.fw, &cfg)
	}
	f.s = New(cfg)
	t.Cleanup(func() { _ = f.s.Disconnect() })
	return f
}

func waitEvent(t *testing.T, ch <-chan Event, match func(Event) bool) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatal("event channel closed")
			}
			if match(ev) {
				return ev
			}
		case <-timeout:
			t.Fatal("timed out waiting for event")
		}
	}
}

func frameIDs(fw *mock.Firmware) []packet.CommandID {
	var ids []packet.CommandID
	for _, f := range fw.Frames() {
		ids = append(ids, f.Command.ID())
	}
	return ids
}

func TestConnect_ProbeExhausted(t *testing.T) {
	tests := []struct {
		device string
		remedy string
	}{
		{"iMXRT106x", "BMOD"},
		{"iMXRT117x", "BMOD"},
		{"iMXRT500", "ISP"},
	}
	for _, tt := range tests {
		t.Run(tt.device, func(t *testing.T) {
			f := newFixture(t, tt.device, true, func(fw *mock.Firmware, _ *Config) {
				fw.Silent = true
			})

			start := f.clock.Now()
			err := f.s.Connect(context.Background())

			var cerr *ConnectionError
			if !errors.As(err, &cerr) {
				t.Fatalf("Connect() error = %v, want *ConnectionError", err)
			}
			if cerr.Attempts != 5 || cerr.Kind() != "connection failed" {
				t.Fatalf("ConnectionError = %+v", cerr)
			}
			if !strings.Contains(cerr.Remedy, tt.remedy) {
				t.Fatalf("Remedy = %q, want mention of %s", cerr.Remedy, tt.remedy)
			}
			if got := f.fw.Pings(); got != 5 {
				t.Fatalf("pings = %d, want 5", got)
			}
			if elapsed := f.clock.Now().Sub(start); elapsed != 10*time.Second {
				t.Fatalf("elapsed = %v, want 10s", elapsed)
			}
			if st := f.s.State(); st != Disconnected {
				t.Fatalf("State() = %v, want disconnected", st)
			}
			if !f.fw.Closed() {
				t.Fatal("port left open after failed probe")
			}
		})
	}
}

func TestConnect_Probe(t *testing.T) {
	f := newFixture(t, "iMXRT106x", true, nil)
	events, cancel := f.s.Subscribe()
	defer cancel()

	if err := f.s.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if st := f.s.State(); st != Connected {
		t.Fatalf("State() = %v", st)
	}
	v, ok := f.s.Version()
	if !ok || v != mock.DefaultVersion {
		t.Fatalf("Version() = %v, %v", v, ok)
	}
	if len(f.clock.sleeps) != 0 {
		t.Fatalf("slept %v after a successful ping", f.clock.sleeps)
	}

	waitEvent(t, events, func(ev Event) bool { return ev.Kind == EventStateChanged && ev.State == Connecting })
	waitEvent(t, events, func(ev Event) bool { return ev.Kind == EventStateChanged && ev.State == Connected })
}

func TestConnect_Relaxed(t *testing.T) {
	f := newFixture(t, "iMXRT106x", false, func(fw *mock.Firmware, _ *Config) {
		fw.Silent = true
	})

	if err := f.s.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.fw.Pings() != 0 {
		t.Fatalf("relaxed connect pinged %d times", f.fw.Pings())
	}
	if _, ok := f.s.Version(); ok {
		t.Fatal("Version() set without probing")
	}

	var serr *StateError
	if err := f.s.Connect(context.Background()); !errors.As(err, &serr) {
		t.Fatalf("second Connect() error = %v, want *StateError", err)
	}
}

func TestConnect_OpenFails(t *testing.T) {
	f := newFixture(t, "iMXRT106x", true, func(_ *mock.Firmware, cfg *Config) {
		cfg.Open = func(transport.DeviceDescriptor) (transport.Port, error) {
			return nil, errors.New("port busy")
		}
	})

	err := f.s.Connect(context.Background())
	var cerr *ConnectionError
	if !errors.As(err, &cerr) || cerr.Attempts != 0 {
		t.Fatalf("Connect() error = %v", err)
	}
	if f.s.State() != Disconnected {
		t.Fatalf("State() = %v", f.s.State())
	}
}

func TestConnect_UnsupportedBaud(t *testing.T) {
	opened := false
	f := newFixture(t, "iMXRT106x", false, func(_ *mock.Firmware, cfg *Config) {
		cfg.Device.Baud = 250000
		open := cfg.Open
		cfg.Open = func(desc transport.DeviceDescriptor) (transport.Port, error) {
			opened = true
			return open(desc)
		}
	})
	events, cancel := f.s.Subscribe()
	defer cancel()

	err := f.s.Connect(context.Background())
	var cerr *settings.ConfigValidationError
	if !errors.As(err, &cerr) || cerr.Key != "baud" {
		t.Fatalf("Connect() error = %v, want baud ConfigValidationError", err)
	}
	if opened {
		t.Fatal("port must not be opened at an unsupported baud")
	}
	if f.s.State() != Disconnected {
		t.Fatalf("State() = %v", f.s.State())
	}
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %v", ev.Kind)
	default:
	}
}

func TestConnect_DefaultBaud(t *testing.T) {
	var got int
	f := newFixture(t, "iMXRT106x", false, func(_ *mock.Firmware, cfg *Config) {
		open := cfg.Open
		cfg.Open = func(desc transport.DeviceDescriptor) (transport.Port, error) {
			got = desc.Baud
			return open(desc)
		}
	})

	if err := f.s.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got != 115200 || f.s.Device().Baud != 115200 {
		t.Fatalf("opened at %d baud, want the fastest listed rate 115200", got)
	}
}

func TestConnect_Canceled(t *testing.T) {
	f := newFixture(t, "iMXRT106x", true, func(fw *mock.Firmware, _ *Config) {
		fw.Silent = true
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.s.Connect(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Connect() error = %v, want context.Canceled", err)
	}
	if f.s.State() != Disconnected {
		t.Fatalf("State() = %v", f.s.State())
	}
}

func TestStop_Idempotent(t *testing.T) {
	f := newFixture(t, "iMXRT106x", false, nil)
	if err := f.s.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	// nothing running: no frame
	if err := f.s.Stop(); err != nil {
		t.Fatal(err)
	}
	if ids := frameIDs(f.fw); len(ids) != 0 {
		t.Fatalf("Stop() while connected sent %v", ids)
	}

	if err := f.s.Run(context.Background(), &packet.RwTest{}); err != nil {
		t.Fatal(err)
	}
	if st := f.s.State(); st != TestRunning {
		t.Fatalf("State() = %v after Run", st)
	}
	if id, ok := f.s.Running(); !ok || id != packet.CmdRwTest {
		t.Fatalf("Running() = %v, %v", id, ok)
	}

	for i := 0; i < 3; i++ {
		if err := f.s.Stop(); err != nil {
			t.Fatal(err)
		}
		if st := f.s.State(); st != Connected {
			t.Fatalf("State() = %v after Stop", st)
		}
	}

	ids := frameIDs(f.fw)
	if len(ids) != 2 || ids[0] != packet.CmdRwTest || ids[1] != packet.CmdStop {
		t.Fatalf("frames = %v, want [RwTest Stop]", ids)
	}
}

func TestRun_StopsRunningTest(t *testing.T) {
	f := newFixture(t, "iMXRT106x", false, nil)
	if err := f.s.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := f.s.Run(context.Background(), &packet.RwTest{}); err != nil {
		t.Fatal(err)
	}
	if err := f.s.Run(context.Background(), &packet.PerfTest{}); err != nil {
		t.Fatal(err)
	}

	frames := f.fw.Frames()
	want := []packet.CommandID{packet.CmdRwTest, packet.CmdStop, packet.CmdPerfTest}
	if len(frames) != len(want) {
		t.Fatalf("frames = %v, want %v", frameIDs(f.fw), want)
	}
	for i, fr := range frames {
		if fr.Command.ID() != want[i] {
			t.Fatalf("frame %d = %v, want %v", i, fr.Command.ID(), want[i])
		}
		if i > 0 && fr.Seq != frames[i-1].Seq+1 {
			t.Fatalf("sequence numbers not increasing: %d after %d", fr.Seq, frames[i-1].Seq)
		}
	}

	// a Stop command passed to Run behaves like Stop
	if err := f.s.Run(context.Background(), &packet.Stop{}); err != nil {
		t.Fatal(err)
	}
	if f.s.State() != Connected {
		t.Fatalf("State() = %v", f.s.State())
	}
}

func TestRun_NotConnected(t *testing.T) {
	f := newFixture(t, "iMXRT106x", false, nil)

	err := f.s.Run(context.Background(), &packet.MemRegs{})
	var serr *StateError
	if !errors.As(err, &serr) || serr.State != Disconnected {
		t.Fatalf("Run() error = %v, want *StateError", err)
	}
}

func TestComplete(t *testing.T) {
	f := newFixture(t, "iMXRT106x", false, nil)
	if err := f.s.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.s.Complete()
	if f.s.State() != Connected {
		t.Fatalf("Complete() changed state to %v", f.s.State())
	}

	if err := f.s.Run(context.Background(), &packet.MemRegs{}); err != nil {
		t.Fatal(err)
	}
	f.s.Complete()
	if f.s.State() != Connected {
		t.Fatalf("State() = %v after Complete", f.s.State())
	}
	if ids := frameIDs(f.fw); len(ids) != 1 {
		t.Fatalf("Complete() sent frames: %v", ids)
	}
}

func TestEvents_LogAndPackets(t *testing.T) {
	f := newFixture(t, "iMXRT106x", false, func(_ *mock.Firmware, cfg *Config) {
		cfg.ShowPackets = true
	})
	events, cancel := f.s.Subscribe()
	defer cancel()

	if err := f.s.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := f.s.Run(context.Background(), &packet.RwTest{Range: packet.Range{Length: 0x100}}); err != nil {
		t.Fatal(err)
	}

	ev := waitEvent(t, events, func(ev Event) bool { return ev.Kind == EventPacketSent })
	if !strings.HasPrefix(ev.Text, "Cmd Packet ->: 0x4, 0x8, 0x0, 0x1, ") {
		t.Fatalf("packet event = %q", ev.Text)
	}
	waitEvent(t, events, func(ev Event) bool { return ev.Kind == EventLogLine && ev.Text == "RW test passed" })

	lines := f.s.Receiver().Lines()
	if len(lines) != 2 {
		t.Fatalf("Lines() = %q", lines)
	}
	if n, sent := f.s.Stats(); n == 0 || sent != 1 {
		t.Fatalf("Stats() = %d, %d", n, sent)
	}
}

func TestEvents_PinWaveform(t *testing.T) {
	f := newFixture(t, "iMXRT106x", false, nil)
	events, cancel := f.s.Subscribe()
	defer cancel()

	if err := f.s.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	cmd, err := NewPinTest(f.s.Target(), settings.Defaults())
	if err != nil {
		t.Fatal(err)
	}
	if err = f.s.Run(context.Background(), cmd); err != nil {
		t.Fatal(err)
	}

	waitEvent(t, events, func(ev Event) bool { return ev.Kind == EventModeChanged && ev.Mode == rxstream.ModeBinary })
	ev := waitEvent(t, events, func(ev Event) bool { return ev.Kind == EventWaveform })
	if ev.Waveform[0] != mock.Samples()[0] || ev.Waveform[99] != mock.Samples()[19] {
		t.Fatalf("waveform = %v", ev.Waveform)
	}
	waitEvent(t, events, func(ev Event) bool { return ev.Kind == EventModeChanged && ev.Mode == rxstream.ModeText })
}

func TestDisconnect(t *testing.T) {
	f := newFixture(t, "iMXRT106x", false, nil)
	if err := f.s.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := f.s.Run(context.Background(), &packet.StressTest{}); err != nil {
		t.Fatal(err)
	}

	if err := f.s.Disconnect(); err != nil {
		t.Fatal(err)
	}
	if f.s.State() != Disconnected || !f.fw.Closed() {
		t.Fatalf("State() = %v, closed = %v", f.s.State(), f.fw.Closed())
	}
	if err := f.s.Disconnect(); err != nil {
		t.Fatalf("second Disconnect() = %v", err)
	}
}

func TestConnectionLost(t *testing.T) {
	f := newFixture(t, "iMXRT106x", false, nil)
	events, cancel := f.s.Subscribe()
	defer cancel()

	if err := f.s.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	// remote end goes away
	_ = f.fw.Close()

	ev := waitEvent(t, events, func(ev Event) bool { return ev.Kind == EventError })
	if !errors.Is(ev.Err, transport.ErrClosed) {
		t.Fatalf("error event = %v", ev.Err)
	}
	waitEvent(t, events, func(ev Event) bool { return ev.Kind == EventStateChanged && ev.State == Disconnected })
}

func TestSubscribe_Cancel(t *testing.T) {
	f := newFixture(t, "iMXRT106x", false, nil)
	events, cancel := f.s.Subscribe()
	cancel()
	cancel()
	if _, ok := <-events; ok {
		t.Fatal("channel still open after cancel")
	}
}

func TestEmit_SlowSubscriberKeepsErrors(t *testing.T) {
	f := newFixture(t, "iMXRT106x", false, nil)
	events, cancel := f.s.Subscribe()
	defer cancel()

	for i := 0; i < subscriberBuffer; i++ {
		f.s.emit(Event{Kind: EventLogLine, Text: "fill"})
	}
	// buffer full: a log line is dropped, an error waits for room
	f.s.emit(Event{Kind: EventLogLine, Text: "dropped"})

	sent := make(chan struct{})
	go func() {
		f.s.emit(Event{Kind: EventError, Err: errors.New("lost link")})
		close(sent)
	}()

	var last Event
	for i := 0; i <= subscriberBuffer; i++ {
		select {
		case last = <-events:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d events", i)
		}
		if last.Text == "dropped" {
			t.Fatal("log line must be dropped when the buffer is full")
		}
	}
	if last.Kind != EventError || last.Err == nil || last.Err.Error() != "lost link" {
		t.Fatalf("last event = %+v, want the error", last)
	}
	<-sent
}

func TestEmit_CancelReleasesBlockedEmit(t *testing.T) {
	f := newFixture(t, "iMXRT106x", false, nil)
	_, cancel := f.s.Subscribe()

	for i := 0; i < subscriberBuffer; i++ {
		f.s.emit(Event{Kind: EventLogLine})
	}
	sent := make(chan struct{})
	go func() {
		f.s.emit(Event{Kind: EventStateChanged, State: Connected})
		close(sent)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-sent:
	case <-time.After(2 * time.Second):
		t.Fatal("emit still blocked after cancel")
	}
}

func TestNewConfigSystem(t *testing.T) {
	tgt := lookup(t, "iMXRT106x")
	lib := memmodel.NewLibrary(util.NewTestingLogger(t), memmodel.Builtin())
	model, err := lib.LoadPath(tgt.DefaultMemoryDevice)
	if err != nil {
		t.Fatal(err)
	}

	tool := settings.Defaults()
	tool.MCUDevice = mcu.IndexOf(tgt.Device)
	tool.MemChip, tool.MemType = tgt.DefaultMemoryDevice, model.DeviceClass.Code()
	tool.EnablePrefetch = false
	tool.MemSpeed = 133

	tool.CPUSpeedMHz = 601
	_, err = NewConfigSystem(tgt, model, tool)
	var cve *settings.ConfigValidationError
	if !errors.As(err, &cve) {
		t.Fatalf("NewConfigSystem(601 MHz) error = %v", err)
	}

	tool.CPUSpeedMHz = 600
	cmd, err := NewConfigSystem(tgt, model, tool)
	if err != nil {
		t.Fatal(err)
	}
	want := packet.Settings{CPUSpeedMHz: 600, EnableL1Cache: true, MemType: memmodel.QuadSPI.Code(), MemSpeedMHz: 133}
	if cmd.Settings != want {
		t.Fatalf("Settings = %+v, want %+v", cmd.Settings, want)
	}
	if cmd.Conn.Instance != 1 || cmd.Properties != model.Properties {
		t.Fatalf("ConfigSystem = %+v", cmd)
	}

	tool.MemType = memmodel.HyperRAM.Code()
	_, err = NewConfigSystem(tgt, model, tool)
	if !errors.As(err, &cve) || cve.Key != "memType" {
		t.Fatalf("NewConfigSystem(HyperRAM type, QuadSPI chip) error = %v", err)
	}

	tool.MemType = 200
	_, err = NewConfigSystem(tgt, model, tool)
	if !errors.As(err, &cve) || cve.Key != "memType" {
		t.Fatalf("NewConfigSystem(unknown type) error = %v", err)
	}
}

func TestConnection_BadSelection(t *testing.T) {
	tgt := lookup(t, "iMXRT106x")
	tool := settings.Defaults()
	tool.Conn = &mcu.ConnectionSelection{Instance: 9}
	if _, err := NewPinTest(tgt, tool); err == nil {
		t.Fatal("NewPinTest() accepted instance 9")
	}
}
