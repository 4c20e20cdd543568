package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"mtu/engine"
	"mtu/mcu"
	"mtu/memmodel"
	"mtu/packet"
	"mtu/rxstream"
	"mtu/session"
	"mtu/settings"
	"mtu/transport"
)

type runFlags struct {
	port        string
	baud        int
	target      string
	chip        string
	models      string
	cpu         int
	mem         string
	probe       bool
	showPackets bool
	tests       string
	offset      uint
	length      uint
	pattern     uint
	iterations  uint
	wait        time.Duration
	save        bool
}

// parseDevice accepts "<driver>:<port>" for any registered driver; anything
// else names a serial port.
func parseDevice(s string, baud int) transport.DeviceDescriptor {
	if i := strings.IndexByte(s, ':'); i > 0 {
		if _, ok := transport.DriverByName(s[:i]); ok {
			return transport.DeviceDescriptor{Driver: s[:i], Port: s[i+1:], Baud: baud}
		}
	}
	return transport.DeviceDescriptor{Driver: "serial", Port: s, Baud: baud}
}

// applyFlags stores the flag overrides in store. Only flags that were set
// on the command line are applied.
func applyFlags(store *settings.Store, fs *flag.FlagSet, f *runFlags) error {
	set := make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })

	if set["target"] {
		if err := store.SetTarget(f.target); err != nil {
			return err
		}
	}
	if set["cpu"] {
		tgt, err := store.Get().Target()
		if err != nil {
			return err
		}
		if err = store.SetCPUSpeed(tgt, f.cpu); err != nil {
			return err
		}
	}
	return store.Update(func(t *settings.Tool) error {
		if set["mem"] {
			mhz, err := settings.ParseSpeedMHz(f.mem)
			if err != nil {
				return &settings.ConfigValidationError{Key: "memSpeed", Value: f.mem, Reason: err.Error()}
			}
			t.MemSpeed = mhz
		}
		if set["chip"] {
			parts := strings.Split(strings.TrimSuffix(f.chip, ".json"), "/")
			if len(parts) != 3 {
				return &settings.ConfigValidationError{Key: "memChip", Value: f.chip, Reason: "want <vendor>/<deviceClass>/<chip>"}
			}
			class, err := memmodel.ParseDeviceClass(parts[1])
			if err != nil {
				return &settings.ConfigValidationError{Key: "memChip", Value: f.chip, Reason: err.Error()}
			}
			t.MemChip, t.MemType = strings.Join(parts, "/"), class.Code()
		}
		if set["probe"] {
			t.LoadFwEn = settings.Flag(f.probe)
		}
		if set["show-packets"] {
			t.CmdPacketShowEn = settings.Flag(f.showPackets)
		}
		if set["port"] {
			d := parseDevice(f.port, f.baud)
			t.Device = &d
		}
		return nil
	})
}

// buildTest turns a test name into its command.
func buildTest(name string, tgt *mcu.Target, lib *memmodel.Library, tool settings.Tool, f *runFlags) (packet.Command, error) {
	r := packet.Range{Offset: uint32(f.offset), Length: uint32(f.length)}
	switch name {
	case "pin":
		return session.NewPinTest(tgt, tool)
	case "config":
		model, err := lib.LoadPath(tool.MemChip)
		if err != nil {
			return nil, err
		}
		return session.NewConfigSystem(tgt, model, tool)
	case "regs":
		return &packet.MemRegs{}, nil
	case "rw":
		return &packet.RwTest{Range: r}, nil
	case "perf":
		return &packet.PerfTest{Range: r}, nil
	case "stress":
		return &packet.StressTest{Range: r, Pattern: uint32(f.pattern), Iterations: uint32(f.iterations)}, nil
	}
	return nil, fmt.Errorf("unknown test %q (want pin, config, regs, rw, perf or stress)", name)
}

// printer writes session events to out and keeps the pin waveforms.
type printer struct {
	out io.Writer

	mu     sync.Mutex
	frames []rxstream.Waveform
}

func (p *printer) printf(format string, a ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, a...)
}

func (p *printer) run(events <-chan session.Event, done chan<- struct{}) {
	defer close(done)
	for ev := range events {
		switch ev.Kind {
		case session.EventLogLine, session.EventPacketSent:
			p.printf("%s\n", ev.Text)
		case session.EventWaveform:
			p.mu.Lock()
			p.frames = append(p.frames, ev.Waveform)
			p.mu.Unlock()
		case session.EventError:
			p.printf("error: %s\n", engine.Classify(ev.Err))
		}
	}
}

func (p *printer) waveforms() []rxstream.Waveform {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]rxstream.Waveform(nil), p.frames...)
}

func cmdRun(ctx context.Context, args []string, out io.Writer, log *zap.Logger) error {
	f := &runFlags{}
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.StringVar(&f.port, "port", "", "port as <driver>:<port> or a serial port name; defaults to the saved port")
	fs.IntVar(&f.baud, "baud", 0, "serial baud rate; 0 uses the driver default")
	fs.StringVar(&f.target, "target", "", "MCU device, see the targets command")
	fs.StringVar(&f.chip, "chip", "", "chip model path <vendor>/<deviceClass>/<chip>")
	fs.StringVar(&f.models, "models", os.Getenv("MTU_MODEL_DIR"), "directory of extra chip models")
	fs.IntVar(&f.cpu, "cpu", 0, "CPU clock in MHz")
	fs.StringVar(&f.mem, "mem", "", "memory clock, e.g. 133MHz")
	fs.BoolVar(&f.probe, "probe", true, "ping the ROM bootloader before sending tests")
	fs.BoolVar(&f.showPackets, "show-packets", false, "echo every frame sent")
	fs.StringVar(&f.tests, "tests", "pin", "comma separated tests to run in order: pin, config, regs, rw, perf, stress")
	fs.UintVar(&f.offset, "offset", 0, "test range offset")
	fs.UintVar(&f.length, "length", 0, "test range length; 0 covers the whole device")
	fs.UintVar(&f.pattern, "pattern", 0xA5A5A5A5, "stress test pattern")
	fs.UintVar(&f.iterations, "iterations", 1, "stress test iterations; 0 runs until stopped")
	fs.DurationVar(&f.wait, "wait", 3*time.Second, "time to collect output of each test")
	fs.BoolVar(&f.save, "save", false, "save the settings given on the command line")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := settings.OpenDefault(log.Named("settings"))
	if err != nil {
		return err
	}
	if err = store.Load(); err != nil {
		log.Warn("run: saved settings rejected; using defaults", zap.Error(err))
	}
	if err = applyFlags(store, fs, f); err != nil {
		return err
	}
	if f.save {
		if err = store.Save(); err != nil {
			return err
		}
	}

	tool := store.Get()
	if tool.Device == nil {
		return fmt.Errorf("no port given; use -port (see the ports command)")
	}
	tgt, err := tool.Target()
	if err != nil {
		return err
	}

	lib := memmodel.DefaultLibrary(log.Named("memmodel"), f.models)
	var cmds []packet.Command
	for _, name := range strings.Split(f.tests, ",") {
		if name = strings.TrimSpace(name); name == "" {
			continue
		}
		cmd, err := buildTest(name, tgt, lib, tool, f)
		if err != nil {
			return err
		}
		cmds = append(cmds, cmd)
	}

	s := session.New(session.Config{
		Target:          tgt,
		Device:          *tool.Device,
		ProbeBootloader: bool(tool.LoadFwEn),
		ShowPackets:     bool(tool.CmdPacketShowEn),
		Log:             log.Named("session"),
	})
	events, cancel := s.Subscribe()
	p := &printer{out: out}
	done := make(chan struct{})
	go p.run(events, done)

	// finish closes the port and waits until every event has been printed:
	var once sync.Once
	finish := func() {
		once.Do(func() {
			if err := s.Disconnect(); err != nil {
				log.Warn("run: disconnect", zap.Error(err))
			}
			cancel()
			<-done
		})
	}
	defer finish()

	p.printf("connecting to %s on %s...\n", tgt.Device, tool.Device)
	if err = s.Connect(ctx); err != nil {
		return err
	}
	if v, ok := s.Version(); ok {
		p.printf("ROM version %s\n", v)
	}

	for _, cmd := range cmds {
		p.printf("== %s\n", cmd.ID())
		if err = s.Run(ctx, cmd); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
		case <-time.After(f.wait):
		}
		if err = s.Stop(); err != nil {
			return err
		}
		if ctx.Err() != nil {
			break
		}
	}

	// let the poll loop hand over what is still buffered:
	time.Sleep(2 * session.DefaultPollInterval)
	finish()

	if frames := p.waveforms(); len(frames) > 0 {
		fmt.Fprintf(out, "\n%d pin frames, last:\n", len(frames))
		printWaveform(out, frames[len(frames)-1])
		fmt.Fprintln(out, "\npin activity:")
		if err = printPinHistogram(out, frames, plotWidth(out)); err != nil {
			return err
		}
	}
	return nil
}
