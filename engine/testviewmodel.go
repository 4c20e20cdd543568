package engine

import (
	"context"
	"sync"

	"mtu/interfaces"
	"mtu/packet"
	"mtu/rxstream"
	"mtu/session"
	"mtu/settings"
)

const (
	maxTestLines   = 500
	maxTestPackets = 50
)

// TestViewModel runs tests on the connected session and collects its output.
type TestViewModel struct {
	commandMap

	root *ViewModel

	mu      sync.Mutex
	isDirty bool

	showPackets  bool
	loadFirmware bool

	state      session.State
	running    string
	lines      []string
	packets    []string
	lastPacket interfaces.HexBytes
	waveform   rxstream.Waveform
	mode       rxstream.Mode
	frames     uint64
}

type TestView struct {
	State   session.State `json:"state"`
	Running string        `json:"running,omitempty"`

	Lines      []string            `json:"lines"`
	Packets    []string            `json:"packets"`
	LastPacket interfaces.HexBytes `json:"lastPacket,omitempty"`

	Waveform []byte `json:"waveform"`
	Mode     string `json:"mode"`
	Frames   uint64 `json:"frames"`

	ShowPackets  bool `json:"showPackets"`
	LoadFirmware bool `json:"loadFirmware"`
}

func NewTestViewModel(root *ViewModel) *TestViewModel {
	v := &TestViewModel{root: root}

	// supported commands:
	v.commandMap = commandMap{
		"pinTest":      &PinTestCommand{v},
		"configSystem": &ConfigSystemCommand{v},
		"memRegs":      &RunCommand{v, func() packet.Command { return &packet.MemRegs{} }},
		"rwTest":       &RangeTestCommand{v, packet.CmdRwTest},
		"perfTest":     &RangeTestCommand{v, packet.CmdPerfTest},
		"stressTest":   &StressTestCommand{v},
		"stop":         &StopTestCommand{v},
		"complete":     &CompleteTestCommand{v},
		"setOptions":   &SetTestOptionsCommand{v},
		"clear":        &ClearTestCommand{v},
	}

	return v
}

func (v *TestViewModel) IsDirty() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.isDirty
}

func (v *TestViewModel) ClearDirty() {
	v.mu.Lock()
	v.isDirty = false
	v.mu.Unlock()
}

func (v *TestViewModel) MarkDirty() {
	v.mu.Lock()
	v.isDirty = true
	v.mu.Unlock()
}

func (v *TestViewModel) Update() {
	s := v.root.Session()

	v.mu.Lock()
	defer v.mu.Unlock()

	state, running := session.Disconnected, ""
	if s != nil {
		state = s.State()
		if id, ok := s.Running(); ok {
			running = id.String()
		}
	}
	if state != v.state || running != v.running {
		v.state, v.running = state, running
		v.isDirty = true
	}
}

func (v *TestViewModel) LoadConfiguration(tool settings.Tool) {
	v.mu.Lock()
	v.showPackets = bool(tool.CmdPacketShowEn)
	v.loadFirmware = bool(tool.LoadFwEn)
	v.isDirty = true
	v.mu.Unlock()
}

func (v *TestViewModel) SaveConfiguration(tool *settings.Tool) {
	v.mu.Lock()
	tool.CmdPacketShowEn = settings.Flag(v.showPackets)
	tool.LoadFwEn = settings.Flag(v.loadFirmware)
	v.mu.Unlock()
}

func (v *TestViewModel) ViewModel() interface{} {
	v.mu.Lock()
	defer v.mu.Unlock()

	return TestView{
		State:        v.state,
		Running:      v.running,
		Lines:        append([]string{}, v.lines...),
		Packets:      append([]string{}, v.packets...),
		LastPacket:   append(interfaces.HexBytes(nil), v.lastPacket...),
		Waveform:     append([]byte(nil), v.waveform[:]...),
		Mode:         v.mode.String(),
		Frames:       v.frames,
		ShowPackets:  v.showPackets,
		LoadFirmware: v.loadFirmware,
	}
}

func appendTail(list []string, s string, max int) []string {
	list = append(list, s)
	if len(list) > max {
		list = append(list[:0], list[len(list)-max:]...)
	}
	return list
}

// apply folds a session event into the view and reports whether it changed.
func (v *TestViewModel) apply(ev session.Event) bool {
	running := ""
	if ev.Kind == session.EventStateChanged {
		if s := v.root.Session(); s != nil {
			if id, ok := s.Running(); ok {
				running = id.String()
			}
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	switch ev.Kind {
	case session.EventStateChanged:
		v.state = ev.State
		v.running = running
	case session.EventPacketSent:
		v.packets = appendTail(v.packets, ev.Text, maxTestPackets)
		v.lastPacket = append(v.lastPacket[:0], ev.Data...)
	case session.EventLogLine:
		v.lines = appendTail(v.lines, ev.Text, maxTestLines)
	case session.EventWaveform:
		v.waveform = ev.Waveform
		v.frames++
	case session.EventModeChanged:
		v.mode = ev.Mode
	case session.EventError:
		if ev.Err == nil {
			return false
		}
		v.lines = appendTail(v.lines, "Error: "+Classify(ev.Err).String(), maxTestLines)
	default:
		return false
	}

	v.isDirty = true
	return true
}

func (v *TestViewModel) run(ctx context.Context, cmd packet.Command) error {
	return v.root.RunTest(ctx, cmd)
}

// Commands:

// RunCommand sends a command that takes no arguments.
type RunCommand struct {
	v   *TestViewModel
	build func() packet.Command
}

func (c *RunCommand) CreateArgs() interfaces.CommandArgs { return nil }

func (c *RunCommand) Execute(ctx context.Context, _ interfaces.CommandArgs) error {
	return c.v.run(ctx, c.build())
}

type PinTestCommand struct{ v *TestViewModel }

func (c *PinTestCommand) CreateArgs() interfaces.CommandArgs { return nil }

func (c *PinTestCommand) Execute(ctx context.Context, _ interfaces.CommandArgs) error {
	tool := c.v.root.Settings().Get()
	tgt, err := tool.Target()
	if err != nil {
		return err
	}
	cmd, err := session.NewPinTest(tgt, tool)
	if err != nil {
		c.v.root.setStatus(Classify(err).String())
		return err
	}
	return c.v.run(ctx, cmd)
}

type ConfigSystemCommand struct{ v *TestViewModel }

func (c *ConfigSystemCommand) CreateArgs() interfaces.CommandArgs { return nil }

func (c *ConfigSystemCommand) Execute(ctx context.Context, _ interfaces.CommandArgs) error {
	root := c.v.root
	tool := root.Settings().Get()
	tgt, err := tool.Target()
	if err != nil {
		return err
	}

	model, _, err := root.memoryViewModel.Model()
	if err == nil && model == nil {
		model, err = root.Library().LoadPath(tool.MemChip)
	}
	if err != nil {
		root.setStatus(Classify(err).String())
		return err
	}

	cmd, err := session.NewConfigSystem(tgt, model, tool)
	if err != nil {
		root.setStatus(Classify(err).String())
		return err
	}
	return c.v.run(ctx, cmd)
}

type RangeTestCommand struct {
	v  *TestViewModel
	id packet.CommandID
}
type RangeTestCommandArgs struct {
	Offset uint32 `json:"offset"`
	Length uint32 `json:"length"`
}

func (c *RangeTestCommand) CreateArgs() interfaces.CommandArgs { return &RangeTestCommandArgs{} }

func (c *RangeTestCommand) Execute(ctx context.Context, args interfaces.CommandArgs) error {
	a := args.(*RangeTestCommandArgs)
	r := packet.Range{Offset: a.Offset, Length: a.Length}
	if c.id == packet.CmdPerfTest {
		return c.v.run(ctx, &packet.PerfTest{Range: r})
	}
	return c.v.run(ctx, &packet.RwTest{Range: r})
}

type StressTestCommand struct{ v *TestViewModel }
type StressTestCommandArgs struct {
	Offset     uint32 `json:"offset"`
	Length     uint32 `json:"length"`
	Pattern    uint32 `json:"pattern"`
	Iterations uint32 `json:"iterations"`
}

func (c *StressTestCommand) CreateArgs() interfaces.CommandArgs { return &StressTestCommandArgs{} }

func (c *StressTestCommand) Execute(ctx context.Context, args interfaces.CommandArgs) error {
	a := args.(*StressTestCommandArgs)
	return c.v.run(ctx, &packet.StressTest{
		Range:      packet.Range{Offset: a.Offset, Length: a.Length},
		Pattern:    a.Pattern,
		Iterations: a.Iterations,
	})
}

type StopTestCommand struct{ v *TestViewModel }

func (c *StopTestCommand) CreateArgs() interfaces.CommandArgs { return nil }

func (c *StopTestCommand) Execute(_ context.Context, _ interfaces.CommandArgs) error {
	return c.v.root.StopTest()
}

type CompleteTestCommand struct{ v *TestViewModel }

func (c *CompleteTestCommand) CreateArgs() interfaces.CommandArgs { return nil }

func (c *CompleteTestCommand) Execute(_ context.Context, _ interfaces.CommandArgs) error {
	c.v.root.CompleteTest()
	return nil
}

type SetTestOptionsCommand struct{ v *TestViewModel }
type SetTestOptionsCommandArgs struct {
	ShowPackets  *bool `json:"showPackets,omitempty"`
	LoadFirmware *bool `json:"loadFirmware,omitempty"`
}

func (c *SetTestOptionsCommand) CreateArgs() interfaces.CommandArgs {
	return &SetTestOptionsCommandArgs{}
}

// Execute stores the options; they take effect on the next connection.
func (c *SetTestOptionsCommand) Execute(_ context.Context, args interfaces.CommandArgs) error {
	a := args.(*SetTestOptionsCommandArgs)
	v := c.v

	v.mu.Lock()
	if a.ShowPackets != nil {
		v.showPackets = *a.ShowPackets
	}
	if a.LoadFirmware != nil {
		v.loadFirmware = *a.LoadFirmware
	}
	v.isDirty = true
	v.mu.Unlock()

	v.root.NotifyViewOf("test", v)
	return v.root.SaveConfiguration()
}

type ClearTestCommand struct{ v *TestViewModel }

func (c *ClearTestCommand) CreateArgs() interfaces.CommandArgs { return nil }

func (c *ClearTestCommand) Execute(_ context.Context, _ interfaces.CommandArgs) error {
	v := c.v
	v.mu.Lock()
	v.lines, v.packets, v.lastPacket = nil, nil, nil
	v.waveform, v.frames = rxstream.Waveform{}, 0
	v.isDirty = true
	v.mu.Unlock()

	v.root.NotifyViewOf("test", v)
	return nil
}
