package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"mtu/interfaces"
	"mtu/lut"
	"mtu/memmodel"
	"mtu/settings"
)

// MemoryViewModel drives the vendor, device class and chip selection and
// shows the LUT generated for the selected chip.
type MemoryViewModel struct {
	commandMap

	root *ViewModel

	mu      sync.Mutex
	isDirty bool

	vendor   string
	class    string
	chip     string
	memSpeed int

	model *memmodel.Model
	table lut.Table
	err   error
}

type MemoryView struct {
	Vendors []string `json:"vendors"`
	Classes []string `json:"classes"`
	Chips   []string `json:"chips"`

	Vendor string `json:"vendor"`
	Class  string `json:"class"`
	Chip   string `json:"chip"`

	MemSpeedMHz int `json:"memSpeedMHz"`

	Properties *memmodel.Properties `json:"properties,omitempty"`
	Operations []string             `json:"operations,omitempty"`
	// LUT is the generated table as hex words, four per sequence.
	LUT []string `json:"lut,omitempty"`

	Error *Classification `json:"error,omitempty"`
}

func NewMemoryViewModel(root *ViewModel) *MemoryViewModel {
	v := &MemoryViewModel{root: root}

	// supported commands:
	v.commandMap = commandMap{
		"select":   &SelectChipCommand{v},
		"setSpeed": &SetMemSpeedCommand{v},
	}

	return v
}

func (v *MemoryViewModel) IsDirty() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.isDirty
}

func (v *MemoryViewModel) ClearDirty() {
	v.mu.Lock()
	v.isDirty = false
	v.mu.Unlock()
}

func (v *MemoryViewModel) MarkDirty() {
	v.mu.Lock()
	v.isDirty = true
	v.mu.Unlock()
}

func (v *MemoryViewModel) Update() {}

// Model returns the selected chip model and its LUT, or the error that
// prevented loading or generating them.
func (v *MemoryViewModel) Model() (*memmodel.Model, lut.Table, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.model, v.table, v.err
}

func (v *MemoryViewModel) LoadConfiguration(tool settings.Tool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.memSpeed = tool.MemSpeed
	v.vendor, v.class, v.chip = "", "", ""
	if parts := strings.Split(strings.TrimSuffix(tool.MemChip, ".json"), "/"); len(parts) == 3 {
		v.vendor, v.class, v.chip = parts[0], parts[1], parts[2]
	}
	v.reload()
}

func (v *MemoryViewModel) SaveConfiguration(tool *settings.Tool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	tool.MemSpeed = v.memSpeed
	if v.chip == "" {
		return
	}
	tool.MemChip = v.vendor + "/" + v.class + "/" + v.chip
	if c, err := memmodel.ParseDeviceClass(v.class); err == nil {
		tool.MemType = c.Code()
	}
}

// reload loads the selected model and generates its LUT. v.mu must be held.
func (v *MemoryViewModel) reload() {
	v.model, v.table, v.err = nil, lut.Table{}, nil
	v.isDirty = true
	if v.chip == "" {
		return
	}

	v.model, v.err = v.root.Library().Load(v.vendor, v.class, v.chip)
	if v.err != nil {
		return
	}
	v.table, v.err = lut.Generate(v.model)
	if v.err != nil {
		v.root.log.Warn("memoryviewmodel: generate", zap.String("chip", v.model.Path()), zap.Error(v.err))
	}
}

func (v *MemoryViewModel) ViewModel() interface{} {
	lib := v.root.Library()

	v.mu.Lock()
	defer v.mu.Unlock()

	view := MemoryView{
		Vendors:     lib.Vendors(),
		Vendor:      v.vendor,
		Class:       v.class,
		Chip:        v.chip,
		MemSpeedMHz: v.memSpeed,
	}
	if v.vendor != "" {
		view.Classes = lib.Classes(v.vendor)
	}
	if v.class != "" {
		view.Chips = lib.Chips(v.vendor, v.class)
	}
	if v.model != nil {
		props := v.model.Properties
		view.Properties = &props
		view.Operations = v.model.Operations()
	}
	if v.err != nil {
		c := Classify(v.err)
		view.Error = &c
	} else if v.model != nil {
		for _, w := range v.table.Words() {
			view.LUT = append(view.LUT, fmt.Sprintf("0x%08X", w))
		}
	}
	return view
}

// Commands:

type SelectChipCommand struct{ v *MemoryViewModel }
type SelectChipCommandArgs struct {
	Vendor string `json:"vendor"`
	Class  string `json:"class"`
	Chip   string `json:"chip"`
}

func (c *SelectChipCommand) CreateArgs() interfaces.CommandArgs {
	return &SelectChipCommandArgs{}
}

func (c *SelectChipCommand) Execute(_ context.Context, args interfaces.CommandArgs) error {
	a := args.(*SelectChipCommandArgs)
	return c.v.Select(a.Vendor, a.Class, a.Chip)
}

// Select narrows the cascade. A class the vendor does not offer is cleared,
// as is a chip the class does not list. A vendor with a single class gets it
// preselected. A chip is persisted only when its model loads.
func (v *MemoryViewModel) Select(vendor, class, chip string) error {
	lib := v.root.Library()

	classes := lib.Classes(vendor)
	if !contains(classes, class) {
		class, chip = "", ""
		if len(classes) == 1 {
			class = classes[0]
		}
	}
	if chip != "" && !contains(lib.Chips(vendor, class), chip) {
		chip = ""
	}

	v.mu.Lock()
	v.vendor, v.class, v.chip = vendor, class, chip
	v.reload()
	err := v.err
	v.mu.Unlock()

	v.root.NotifyViewOf("memory", v)
	if err != nil {
		v.root.setStatus(Classify(err).String())
		return err
	}
	if chip == "" {
		return nil
	}
	return v.root.SaveConfiguration()
}

type SetMemSpeedCommand struct{ v *MemoryViewModel }
type SetMemSpeedCommandArgs struct {
	// Speed is either "133MHz" or a bare number of MHz.
	Speed string `json:"speed"`
}

func (c *SetMemSpeedCommand) CreateArgs() interfaces.CommandArgs {
	return &SetMemSpeedCommandArgs{}
}

func (c *SetMemSpeedCommand) Execute(_ context.Context, args interfaces.CommandArgs) error {
	s := args.(*SetMemSpeedCommandArgs).Speed
	mhz, err := settings.ParseSpeedMHz(s)
	if err != nil {
		return err
	}

	v := c.v
	if err = v.root.Settings().Update(func(t *settings.Tool) error {
		t.MemSpeed = mhz
		return nil
	}); err != nil {
		v.root.setStatus(Classify(err).String())
		return err
	}

	v.mu.Lock()
	v.memSpeed = mhz
	v.isDirty = true
	v.mu.Unlock()

	v.root.NotifyViewOf("memory", v)
	return v.root.SaveConfiguration()
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
