package engine

import (
	"context"
	"fmt"
	"sync"

	"mtu/interfaces"
	"mtu/mcu"
	"mtu/settings"
)

// TargetViewModel exposes the MCU selection, its clock and cache settings and
// the memory controller pin connection.
type TargetViewModel struct {
	commandMap

	root *ViewModel

	mu      sync.Mutex
	isDirty bool

	tool settings.Tool
}

type TargetView struct {
	Devices  []string `json:"devices"`
	Selected string   `json:"selected"`

	CPU    string `json:"cpu"`
	Board  string `json:"board"`
	Series string `json:"series"`

	MaxCPUFreqMHz  int  `json:"maxCpuFreqMHz"`
	CPUSpeedMHz    int  `json:"cpuSpeedMHz"`
	EnableL1Cache  bool `json:"enableL1Cache"`
	EnablePrefetch bool `json:"enablePrefetch"`

	UARTPins  string `json:"uartPins"`
	UARTBauds []int  `json:"uartBauds"`

	Connection ConnectionView `json:"connection"`
}

type ConnectionView struct {
	Instances int          `json:"instances"`
	Instance  int          `json:"instance"`
	Signals   []SignalView `json:"signals"`
	// Pins lists the pins in use, in wire order.
	Pins  []string `json:"pins"`
	Error string   `json:"error,omitempty"`
}

type SignalView struct {
	Signal   mcu.Signal      `json:"signal"`
	Options  []mcu.PinOption `json:"options"`
	Selected uint8           `json:"selected"`
}

func NewTargetViewModel(root *ViewModel) *TargetViewModel {
	v := &TargetViewModel{root: root}

	// supported commands:
	v.commandMap = commandMap{
		"select":        &SelectTargetCommand{v},
		"setCpuSpeed":   &SetCPUSpeedCommand{v},
		"setField":      &SetTargetFieldCommand{v},
		"setConnection": &SetConnectionCommand{v},
	}

	return v
}

func (v *TargetViewModel) IsDirty() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.isDirty
}

func (v *TargetViewModel) ClearDirty() {
	v.mu.Lock()
	v.isDirty = false
	v.mu.Unlock()
}

func (v *TargetViewModel) MarkDirty() {
	v.mu.Lock()
	v.isDirty = true
	v.mu.Unlock()
}

func (v *TargetViewModel) Update() {}

func (v *TargetViewModel) LoadConfiguration(tool settings.Tool) {
	v.mu.Lock()
	v.tool = tool
	v.isDirty = true
	v.mu.Unlock()
}

func (v *TargetViewModel) SaveConfiguration(tool *settings.Tool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	tool.MCUDevice = v.tool.MCUDevice
	tool.CPUSpeedMHz = v.tool.CPUSpeedMHz
	tool.EnableL1Cache = v.tool.EnableL1Cache
	tool.EnablePrefetch = v.tool.EnablePrefetch
	if v.tool.Conn != nil {
		c := *v.tool.Conn
		tool.Conn = &c
	} else {
		tool.Conn = nil
	}
}

func (v *TargetViewModel) ViewModel() interface{} {
	v.mu.Lock()
	tool := v.tool
	v.mu.Unlock()

	view := TargetView{
		Devices:        mcu.Devices(),
		CPUSpeedMHz:    tool.CPUSpeedMHz,
		EnableL1Cache:  bool(tool.EnableL1Cache),
		EnablePrefetch: bool(tool.EnablePrefetch),
	}

	tgt, err := tool.Target()
	if err != nil {
		view.Connection.Error = err.Error()
		return view
	}
	view.Selected = tgt.Device
	view.CPU = tgt.CPU
	view.Board = tgt.Board
	view.Series = tgt.Series.String()
	view.MaxCPUFreqMHz = tgt.MaxCPUFreqMHz
	view.UARTPins = tgt.UARTPins
	view.UARTBauds = tgt.UARTBauds
	view.Connection = connectionView(tgt, tool.Conn)
	return view
}

func connectionView(tgt *mcu.Target, conn *mcu.ConnectionSelection) (cv ConnectionView) {
	if tgt.Connections == nil {
		cv.Error = fmt.Sprintf("%s has no memory controller connection table", tgt.Device)
		return
	}

	sel := tgt.Connections.DefaultSelection()
	if conn != nil {
		sel = *conn
	}

	cv.Instances = tgt.Connections.Instances()
	cv.Instance = sel.Instance
	for _, sig := range mcu.Signals {
		cv.Signals = append(cv.Signals, SignalView{
			Signal:   sig,
			Options:  tgt.Connections.Options(sel.Instance, sig),
			Selected: sel.Code(sig),
		})
	}

	pins, err := tgt.Connections.Resolve(sel)
	if err != nil {
		cv.Error = err.Error()
		return
	}
	cv.Pins = pins
	return
}

// apply runs a store mutation and, when it is accepted, reloads the view from
// the store and persists it.
func (v *TargetViewModel) apply(mutate func(store *settings.Store) error) error {
	store := v.root.Settings()
	if err := mutate(store); err != nil {
		v.root.setStatus(Classify(err).String())
		return err
	}

	v.LoadConfiguration(store.Get())
	v.root.NotifyViewOf("target", v)
	return v.root.SaveConfiguration()
}

// Commands:

type SelectTargetCommand struct{ v *TargetViewModel }
type SelectTargetCommandArgs struct {
	Device string `json:"device"`
}

func (c *SelectTargetCommand) CreateArgs() interfaces.CommandArgs {
	return &SelectTargetCommandArgs{}
}

func (c *SelectTargetCommand) Execute(_ context.Context, args interfaces.CommandArgs) error {
	device := args.(*SelectTargetCommandArgs).Device
	if c.v.root.IsConnected() {
		return fmt.Errorf("cannot change target to %s while connected", device)
	}
	return c.v.apply(func(store *settings.Store) error {
		return store.SetTarget(device)
	})
}

type SetCPUSpeedCommand struct{ v *TargetViewModel }
type SetCPUSpeedCommandArgs struct {
	MHz int `json:"mhz"`
}

func (c *SetCPUSpeedCommand) CreateArgs() interfaces.CommandArgs {
	return &SetCPUSpeedCommandArgs{}
}

func (c *SetCPUSpeedCommand) Execute(_ context.Context, args interfaces.CommandArgs) error {
	mhz := args.(*SetCPUSpeedCommandArgs).MHz
	return c.v.apply(func(store *settings.Store) error {
		tgt, err := store.Get().Target()
		if err != nil {
			return err
		}
		return store.SetCPUSpeed(tgt, mhz)
	})
}

type SetTargetFieldCommand struct{ v *TargetViewModel }
type SetTargetFieldCommandArgs struct {
	EnableL1Cache  *bool `json:"enableL1Cache,omitempty"`
	EnablePrefetch *bool `json:"enablePrefetch,omitempty"`
}

func (c *SetTargetFieldCommand) CreateArgs() interfaces.CommandArgs {
	return &SetTargetFieldCommandArgs{}
}

func (c *SetTargetFieldCommand) Execute(_ context.Context, args interfaces.CommandArgs) error {
	f := args.(*SetTargetFieldCommandArgs)
	return c.v.apply(func(store *settings.Store) error {
		return store.Update(func(t *settings.Tool) error {
			if f.EnableL1Cache != nil {
				t.EnableL1Cache = settings.Flag(*f.EnableL1Cache)
			}
			if f.EnablePrefetch != nil {
				t.EnablePrefetch = settings.Flag(*f.EnablePrefetch)
			}
			return nil
		})
	})
}

type SetConnectionCommand struct{ v *TargetViewModel }
type SetConnectionCommandArgs struct {
	Instance int                  `json:"instance"`
	Codes    map[mcu.Signal]uint8 `json:"codes"`
}

func (c *SetConnectionCommand) CreateArgs() interfaces.CommandArgs {
	return &SetConnectionCommandArgs{}
}

func (c *SetConnectionCommand) Execute(_ context.Context, args interfaces.CommandArgs) error {
	a := args.(*SetConnectionCommandArgs)
	return c.v.apply(func(store *settings.Store) error {
		return store.Update(func(t *settings.Tool) error {
			tgt, err := t.Target()
			if err != nil {
				return err
			}
			if tgt.Connections == nil {
				return &settings.ConfigValidationError{Key: "conn", Value: a.Instance, Reason: "target has no connection table"}
			}

			// a new instance starts from its first options:
			sel := tgt.Connections.DefaultSelection()
			if t.Conn != nil && t.Conn.Instance == a.Instance {
				sel = *t.Conn
			}
			sel.Instance = a.Instance
			if sel.Codes == nil {
				sel.Codes = make(map[mcu.Signal]uint8, len(mcu.Signals))
			}
			if a.Instance != 1 && (t.Conn == nil || t.Conn.Instance != a.Instance) {
				for _, sig := range mcu.Signals {
					if opts := tgt.Connections.Options(a.Instance, sig); len(opts) > 0 {
						sel.Codes[sig] = opts[0].Code
					}
				}
			}
			for sig, code := range a.Codes {
				sel.Codes[sig] = code
			}
			t.Conn = &sel
			return nil
		})
	})
}
