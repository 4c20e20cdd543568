package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"mtu/interfaces"
	"mtu/session"
	"mtu/settings"
	"mtu/transport"
)

const detectInterval = 2 * time.Second

// DeviceViewModel lists the transport drivers, their ports and the
// connection state.
type DeviceViewModel struct {
	commandMap

	root *ViewModel

	mu      sync.Mutex
	isDirty bool

	drivers  []*DriverViewModel
	selected *transport.DeviceDescriptor

	state   session.State
	version string
}

// DeviceView is the JSON form of DeviceViewModel.
type DeviceView struct {
	Drivers     []DriverViewModel `json:"drivers"`
	IsConnected bool              `json:"isConnected"`
	State       session.State     `json:"state"`
	RomVersion  string            `json:"romVersion,omitempty"`
}

type DriverViewModel struct {
	namedDriver transport.NamedDriver

	Name string `json:"name"`

	DisplayName        string `json:"displayName"`
	DisplayDescription string `json:"displayDescription"`
	DisplayOrder       int    `json:"displayOrder"`

	Devices        []transport.DeviceDescriptor `json:"devices"`
	SelectedDevice string                       `json:"selectedDevice"`

	IsConnected bool `json:"isConnected"`
}

func NewDeviceViewModel(root *ViewModel) *DeviceViewModel {
	v := &DeviceViewModel{root: root}

	// supported commands:
	v.commandMap = commandMap{
		"connect":    &ConnectCommandExecutor{v},
		"disconnect": &DisconnectCommandExecutor{v},
		"detect":     &DetectCommandExecutor{v},
	}

	return v
}

func (v *DeviceViewModel) IsDirty() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.isDirty
}

func (v *DeviceViewModel) ClearDirty() {
	v.mu.Lock()
	v.isDirty = false
	v.mu.Unlock()
}

func (v *DeviceViewModel) MarkDirty() {
	v.mu.Lock()
	v.isDirty = true
	v.mu.Unlock()
}

func (v *DeviceViewModel) ViewModel() interface{} {
	v.mu.Lock()
	defer v.mu.Unlock()

	view := DeviceView{
		Drivers:     make([]DriverViewModel, len(v.drivers)),
		IsConnected: v.state != session.Disconnected,
		State:       v.state,
		RomVersion:  v.version,
	}
	for i, d := range v.drivers {
		view.Drivers[i] = *d
	}
	return view
}

func detect(nd transport.NamedDriver, log *zap.Logger) []transport.DeviceDescriptor {
	devices, err := nd.Driver.Detect()
	if err != nil {
		log.Warn("deviceviewmodel: detect", zap.String("driver", nd.Name), zap.Error(err))
		return []transport.DeviceDescriptor{}
	}
	return devices
}

func (v *DeviceViewModel) Init() {
	dvs := transport.Drivers()

	v.mu.Lock()
	v.drivers = make([]*DriverViewModel, len(dvs))
	for i, nd := range dvs {
		v.drivers[i] = &DriverViewModel{
			namedDriver:        nd,
			Name:               nd.Name,
			DisplayName:        nd.Driver.DisplayName(),
			DisplayDescription: nd.Driver.DisplayDescription(),
			DisplayOrder:       nd.Driver.DisplayOrder(),
			Devices:            detect(nd, v.root.log),
		}
	}
	v.isDirty = true
	v.mu.Unlock()

	// background goroutine to auto-detect new devices:
	go v.autoDetect()
}

// must run in a goroutine
func (v *DeviceViewModel) autoDetect() {
	t := time.NewTicker(detectInterval)
	defer t.Stop()

	for {
		select {
		case <-v.root.closed:
			return
		case <-t.C:
		}

		// don't need to auto-detect while already connected:
		if v.root.IsConnected() {
			continue
		}

		if v.Detect() {
			v.root.NotifyViewOf("device", v)
		}
	}
}

// Detect refreshes the device lists and reports whether any changed.
func (v *DeviceViewModel) Detect() bool {
	v.mu.Lock()
	drivers := append([]*DriverViewModel(nil), v.drivers...)
	v.mu.Unlock()

	needUpdate := false
	for _, dvm := range drivers {
		devices := detect(dvm.namedDriver, v.root.log)

		v.mu.Lock()
		replace := len(dvm.Devices) != len(devices)
		for i := 0; !replace && i < len(devices); i++ {
			if devices[i] != dvm.Devices[i] {
				replace = true
			}
		}
		if replace {
			dvm.Devices = devices
			v.isDirty = true
			needUpdate = true
		}
		v.mu.Unlock()
	}
	return needUpdate
}

func (v *DeviceViewModel) Update() {
	s := v.root.Session()

	v.mu.Lock()
	defer v.mu.Unlock()

	v.state, v.version = session.Disconnected, ""
	var connected transport.DeviceDescriptor
	if s != nil {
		v.state = s.State()
		connected = s.Device()
		if ver, ok := s.Version(); ok {
			v.version = ver.String()
		}
	}

	for _, dvm := range v.drivers {
		dvm.IsConnected = v.state != session.Disconnected && connected.Driver == dvm.Name
		switch {
		case dvm.IsConnected:
			dvm.SelectedDevice = connected.Port
		case v.selected != nil && v.selected.Driver == dvm.Name:
			dvm.SelectedDevice = v.selected.Port
		default:
			dvm.SelectedDevice = ""
		}
	}

	v.isDirty = true
}

func (v *DeviceViewModel) LoadConfiguration(tool settings.Tool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	// preselect only; connecting may need the board in boot mode first
	v.selected = tool.Device
}

func (v *DeviceViewModel) SaveConfiguration(tool *settings.Tool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.selected != nil {
		d := *v.selected
		tool.Device = &d
	}
}

func (v *DeviceViewModel) findDriver(name string) *DriverViewModel {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, dvm := range v.drivers {
		if dvm.Name == name {
			return dvm
		}
	}
	return nil
}

// Commands:

type ConnectCommandExecutor struct{ v *DeviceViewModel }
type ConnectCommandArgs struct {
	Driver string `json:"driver"`
	Port   string `json:"port"`
	Baud   int    `json:"baud"`
}

func (c *ConnectCommandExecutor) CreateArgs() interfaces.CommandArgs { return &ConnectCommandArgs{} }

func (c *ConnectCommandExecutor) Execute(ctx context.Context, args interfaces.CommandArgs) error {
	return c.v.Connect(ctx, args.(*ConnectCommandArgs))
}

func (v *DeviceViewModel) Connect(ctx context.Context, args *ConnectCommandArgs) error {
	dvm := v.findDriver(args.Driver)
	if dvm == nil {
		return fmt.Errorf("transport driver not found by name '%s'", args.Driver)
	}

	desc := transport.DeviceDescriptor{Driver: args.Driver, Port: args.Port, Baud: args.Baud}
	v.mu.Lock()
	for _, d := range dvm.Devices {
		if d.Port == args.Port {
			desc.DisplayName = d.DisplayName
			if desc.Baud == 0 {
				desc.Baud = d.Baud
			}
			break
		}
	}
	v.selected = &desc
	v.mu.Unlock()

	return v.root.DeviceConnected(ctx, desc)
}

type DisconnectCommandExecutor struct{ v *DeviceViewModel }

func (c *DisconnectCommandExecutor) CreateArgs() interfaces.CommandArgs { return nil }

func (c *DisconnectCommandExecutor) Execute(_ context.Context, _ interfaces.CommandArgs) error {
	return c.v.root.DeviceDisconnected()
}

type DetectCommandExecutor struct{ v *DeviceViewModel }

func (c *DetectCommandExecutor) CreateArgs() interfaces.CommandArgs { return nil }

func (c *DetectCommandExecutor) Execute(_ context.Context, _ interfaces.CommandArgs) error {
	if c.v.Detect() {
		c.v.root.NotifyViewOf("device", c.v)
	}
	return nil
}
