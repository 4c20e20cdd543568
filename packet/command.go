package packet

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"mtu/lut"
	"mtu/mcu"
	"mtu/memmodel"
)

type CommandID uint8

const (
	CmdPinTest      CommandID = 0x01
	CmdConfigSystem CommandID = 0x02
	CmdMemRegs      CommandID = 0x03
	CmdRwTest       CommandID = 0x04
	CmdPerfTest     CommandID = 0x05
	CmdStressTest   CommandID = 0x06
	CmdStop         CommandID = 0x07
)

func (id CommandID) String() string {
	switch id {
	case CmdPinTest:
		return "PinTest"
	case CmdConfigSystem:
		return "ConfigSystem"
	case CmdMemRegs:
		return "MemRegs"
	case CmdRwTest:
		return "RwTest"
	case CmdPerfTest:
		return "PerfTest"
	case CmdStressTest:
		return "StressTest"
	case CmdStop:
		return "Stop"
	}
	return fmt.Sprintf("CommandID(0x%02x)", uint8(id))
}

const (
	connectionBlockSize = 12
	propertiesBlockSize = 24
	settingsBlockSize   = 12
	configSystemSize    = lut.WordCount*4 + propertiesBlockSize + settingsBlockSize + connectionBlockSize
	rangeBlockSize      = 8
	stressTestBlockSize = 16
)

// payloadSizes is the exact payload length the firmware expects per command.
var payloadSizes = map[CommandID]int{
	CmdPinTest:      connectionBlockSize,
	CmdConfigSystem: configSystemSize,
	CmdMemRegs:      0,
	CmdRwTest:       rangeBlockSize,
	CmdPerfTest:     rangeBlockSize,
	CmdStressTest:   stressTestBlockSize,
	CmdStop:         0,
}

// PayloadSize returns the payload length of id and whether id is known.
func PayloadSize(id CommandID) (int, bool) {
	n, ok := payloadSizes[id]
	return n, ok
}

// Command is one host to target request.
type Command interface {
	ID() CommandID
	// IsTest reports whether sending the command starts a test on the target.
	IsTest() bool

	marshal(buf *bytes.Buffer)
	unmarshal(r *bytes.Reader) error
}

// ConnectionBlock carries the controller instance and per-signal pin select codes.
type ConnectionBlock struct {
	Instance uint8
	Codes    [len(mcu.Signals)]uint8
}

// NewConnectionBlock flattens a connection selection in wire order.
func NewConnectionBlock(sel mcu.ConnectionSelection) ConnectionBlock {
	b := ConnectionBlock{Instance: uint8(sel.Instance)}
	for i, sig := range mcu.Signals {
		b.Codes[i] = sel.Code(sig)
	}
	return b
}

// Selection converts the block back to a connection selection.
func (b ConnectionBlock) Selection() mcu.ConnectionSelection {
	sel := mcu.ConnectionSelection{Instance: int(b.Instance), Codes: make(map[mcu.Signal]uint8, len(mcu.Signals))}
	for i, sig := range mcu.Signals {
		sel.Codes[sig] = b.Codes[i]
	}
	return sel
}

type connectionWire struct {
	Instance uint8
	Codes    [9]uint8
	_        [2]uint8
}

func (b ConnectionBlock) marshal(buf *bytes.Buffer) {
	w := connectionWire{Instance: b.Instance, Codes: b.Codes}
	_ = binary.Write(buf, binary.LittleEndian, &w)
}

func (b *ConnectionBlock) unmarshal(r *bytes.Reader) error {
	var w connectionWire
	if err := binary.Read(r, binary.LittleEndian, &w); err != nil {
		return err
	}
	b.Instance, b.Codes = w.Instance, w.Codes
	return nil
}

// Settings is the tool settings block of ConfigSystem.
type Settings struct {
	CPUSpeedMHz    uint32
	EnableL1Cache  bool
	EnablePrefetch bool
	MemType        uint8
	MemSpeedMHz    uint32
}

type settingsWire struct {
	CPUSpeedMHz    uint32
	EnableL1Cache  uint8
	EnablePrefetch uint8
	MemType        uint8
	_              uint8
	MemSpeedMHz    uint32
}

func b2u(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

type propertiesWire struct {
	SizeKB          uint32
	PageSize        uint32
	SectorSize      uint32
	BlockSize       uint32
	ReadDummyCycles uint8
	DDR             uint8
	DQSMode         uint8
	ColumnAddrWidth uint8
	CSHoldTime      uint8
	CSSetupTime     uint8
	DataValidTimeNs uint16
}

// PinTest toggles the selected FlexSPI pins so they can be probed.
type PinTest struct {
	Conn ConnectionBlock
}

func (c *PinTest) ID() CommandID { return CmdPinTest }
func (c *PinTest) IsTest() bool { return true }
func (c *PinTest) marshal(buf *bytes.Buffer) { c.Conn.marshal(buf) }
func (c *PinTest) unmarshal(r *bytes.Reader) error { return c.Conn.unmarshal(r) }

// ConfigSystem configures clocks, caches and the memory controller.
type ConfigSystem struct {
	LUT        lut.Table
	Properties memmodel.Properties
	Settings   Settings
	Conn       ConnectionBlock
}

func (c *ConfigSystem) ID() CommandID { return CmdConfigSystem }
func (c *ConfigSystem) IsTest() bool { return true }

func (c *ConfigSystem) marshal(buf *bytes.Buffer) {
	_ = binary.Write(buf, binary.LittleEndian, &c.LUT)

	p := c.Properties
	_ = binary.Write(buf, binary.LittleEndian, &propertiesWire{
		SizeKB:          p.SizeKB,
		PageSize:        p.PageSize,
		SectorSize:      p.SectorSize,
		BlockSize:       p.BlockSize,
		ReadDummyCycles: p.ReadDummyCycles,
		DDR:             b2u(p.DDR),
		DQSMode:         p.DQSMode,
		ColumnAddrWidth: p.ColumnAddrWidth,
		CSHoldTime:      p.CSHoldTime,
		CSSetupTime:     p.CSSetupTime,
		DataValidTimeNs: p.DataValidTimeNs,
	})

	s := c.Settings
	_ = binary.Write(buf, binary.LittleEndian, &settingsWire{
		CPUSpeedMHz:    s.CPUSpeedMHz,
		EnableL1Cache:  b2u(s.EnableL1Cache),
		EnablePrefetch: b2u(s.EnablePrefetch),
		MemType:        s.MemType,
		MemSpeedMHz:    s.MemSpeedMHz,
	})

	c.Conn.marshal(buf)
}

func (c *ConfigSystem) unmarshal(r *bytes.Reader) (err error) {
	if err = binary.Read(r, binary.LittleEndian, &c.LUT); err != nil {
		return
	}

	var p propertiesWire
	if err = binary.Read(r, binary.LittleEndian, &p); err != nil {
		return
	}
	c.Properties = memmodel.Properties{
		SizeKB:          p.SizeKB,
		PageSize:        p.PageSize,
		SectorSize:      p.SectorSize,
		BlockSize:       p.BlockSize,
		ReadDummyCycles: p.ReadDummyCycles,
		DDR:             p.DDR != 0,
		DQSMode:         p.DQSMode,
		ColumnAddrWidth: p.ColumnAddrWidth,
		CSHoldTime:      p.CSHoldTime,
		CSSetupTime:     p.CSSetupTime,
		DataValidTimeNs: p.DataValidTimeNs,
	}

	var s settingsWire
	if err = binary.Read(r, binary.LittleEndian, &s); err != nil {
		return
	}
	c.Settings = Settings{
		CPUSpeedMHz:    s.CPUSpeedMHz,
		EnableL1Cache:  s.EnableL1Cache != 0,
		EnablePrefetch: s.EnablePrefetch != 0,
		MemType:        s.MemType,
		MemSpeedMHz:    s.MemSpeedMHz,
	}

	return c.Conn.unmarshal(r)
}

// MemRegs asks the target to dump the memory device registers.
type MemRegs struct{}

func (c *MemRegs) ID() CommandID { return CmdMemRegs }
func (c *MemRegs) IsTest() bool { return true }
func (c *MemRegs) marshal(*bytes.Buffer) {}
func (c *MemRegs) unmarshal(*bytes.Reader) error { return nil }

// Range selects the part of the device a test covers. A zero Length means
// the whole device.
type Range struct {
	Offset uint32
	Length uint32
}

func (c *Range) marshal(buf *bytes.Buffer) {
	_ = binary.Write(buf, binary.LittleEndian, c)
}

func (c *Range) unmarshal(r *bytes.Reader) error {
	return binary.Read(r, binary.LittleEndian, c)
}

// RwTest writes and reads back a pattern over the range.
type RwTest struct {
	Range
}

func (c *RwTest) ID() CommandID { return CmdRwTest }
func (c *RwTest) IsTest() bool { return true }

// PerfTest measures read and write throughput over the range.
type PerfTest struct {
	Range
}

func (c *PerfTest) ID() CommandID { return CmdPerfTest }
func (c *PerfTest) IsTest() bool { return true }

// StressTest repeats pattern writes over the range Iterations times; zero
// iterations runs until stopped.
type StressTest struct {
	Range
	Pattern    uint32
	Iterations uint32
}

func (c *StressTest) ID() CommandID { return CmdStressTest }
func (c *StressTest) IsTest() bool { return true }

func (c *StressTest) marshal(buf *bytes.Buffer) {
	_ = binary.Write(buf, binary.LittleEndian, c)
}

func (c *StressTest) unmarshal(r *bytes.Reader) error {
	return binary.Read(r, binary.LittleEndian, c)
}

// Stop ends the running test.
type Stop struct{}

func (c *Stop) ID() CommandID { return CmdStop }
func (c *Stop) IsTest() bool { return false }
func (c *Stop) marshal(*bytes.Buffer) {}
func (c *Stop) unmarshal(*bytes.Reader) error { return nil }

func newCommand(id CommandID) Command {
	switch id {
	case CmdPinTest:
		return &PinTest{}
	case CmdConfigSystem:
		return &ConfigSystem{}
	case CmdMemRegs:
		return &MemRegs{}
	case CmdRwTest:
		return &RwTest{}
	case CmdPerfTest:
		return &PerfTest{}
	case CmdStressTest:
		return &StressTest{}
	case CmdStop:
		return &Stop{}
	}
	return nil
}
