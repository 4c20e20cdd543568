package mcu

import (
	"fmt"
	"sort"

	"go.uber.org/multierr"
)

type Series int

const (
	SeriesIMXRT10yy Series = iota
	SeriesIMXRT11yy
	SeriesIMXRTxxx
)

func (s Series) String() string {
	switch s {
	case SeriesIMXRT10yy:
		return "iMXRT10yy"
	case SeriesIMXRT11yy:
		return "iMXRT11yy"
	case SeriesIMXRTxxx:
		return "iMXRTxxx"
	}
	return fmt.Sprintf("Series(%d)", int(s))
}

// Peripheral bits of Target.Peripherals.
const (
	PeripheralUART   uint32 = 0x01
	PeripheralI2C    uint32 = 0x02
	PeripheralSPI    uint32 = 0x04
	PeripheralCAN    uint32 = 0x08
	PeripheralUSBHID uint32 = 0x10
)

// Target describes one supported MCU family. Targets are registered once at
// init time and must not be modified afterwards.
type Target struct {
	// Device is the identifier the tool uses to select this target (e.g. "iMXRT106x").
	Device string
	// Order is the position of the device in selection lists.
	Order int

	CPU    string
	Board  string
	Series Series

	MaxCPUFreqMHz int

	Peripherals uint32
	Commands    uint32

	UARTPins  string
	UARTBauds []int

	FirmwareLoadAddr  uint32
	FirmwareJumpAddr  uint32
	FirmwareInitialSP *uint32

	// DefaultMemoryDevice is the chip model path (<vendor>/<deviceClass>/<chip>)
	// preselected for this target.
	DefaultMemoryDevice string
	FlashBases          [2]*uint32
	SipFlash            bool

	// FlashRegion names the entry of Regions that maps the serial memory window.
	FlashRegion string

	Regions  map[string]MemoryRange
	Reserved map[string]AddressSpan

	Connections ConnectionTable
}

func u32(v uint32) *uint32 { return &v }

// RegionNames returns the region names in ascending base address order.
func (t *Target) RegionNames() []string {
	names := make([]string, 0, len(t.Regions))
	for name := range t.Regions {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ri, rj := t.Regions[names[i]], t.Regions[names[j]]
		if ri.Base() != rj.Base() {
			return ri.Base() < rj.Base()
		}
		return names[i] < names[j]
	})
	return names
}

// Region looks up a memory region by name.
func (t *Target) Region(name string) (MemoryRange, bool) {
	r, ok := t.Regions[name]
	return r, ok
}

// IsReserved reports whether addr falls into any reserved region.
func (t *Target) IsReserved(addr uint32) (string, bool) {
	for name, span := range t.Reserved {
		if span.Contains(addr) {
			return name, true
		}
	}
	return "", false
}

// SupportsBaud reports whether the UART baud rate is listed for this target.
func (t *Target) SupportsBaud(baud int) bool {
	for _, b := range t.UARTBauds {
		if b == baud {
			return true
		}
	}
	return false
}

// DefaultBaud is the fastest listed UART rate.
func (t *Target) DefaultBaud() int {
	best := 0
	for _, b := range t.UARTBauds {
		if b > best {
			best = b
		}
	}
	return best
}

// Validate checks the descriptor invariants and returns every violation found.
func (t *Target) Validate() (err error) {
	if t.Device == "" {
		err = multierr.Append(err, fmt.Errorf("mcu: target has no device identifier"))
	}
	if t.MaxCPUFreqMHz <= 0 {
		err = multierr.Append(err, fmt.Errorf("mcu: %s: max cpu frequency must be positive", t.Device))
	}
	if len(t.UARTBauds) == 0 {
		err = multierr.Append(err, fmt.Errorf("mcu: %s: no uart baud rates", t.Device))
	}
	for name, r := range t.Regions {
		if !r.IsValid() {
			err = multierr.Append(err, fmt.Errorf("mcu: %s: region '%s' is not constructed", t.Device, name))
		}
	}
	if t.FlashRegion != "" {
		if _, ok := t.Regions[t.FlashRegion]; !ok {
			err = multierr.Append(err, fmt.Errorf("mcu: %s: flash region '%s' not in memory regions", t.Device, t.FlashRegion))
		}
	}
	for name, span := range t.Reserved {
		if span.End < span.Start {
			err = multierr.Append(err, fmt.Errorf("mcu: %s: reserved region '%s' %s ends before it starts", t.Device, name, span))
		}
	}
	if t.Connections != nil {
		err = multierr.Append(err, t.Connections.validate(t.Device))
	}
	return
}
