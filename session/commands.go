package session

import (
	"fmt"

	"mtu/lut"
	"mtu/mcu"
	"mtu/memmodel"
	"mtu/packet"
	"mtu/settings"
)

// Connection returns the validated connection selection of tool, falling
// back to the target's default selection.
func Connection(tgt *mcu.Target, tool settings.Tool) (packet.ConnectionBlock, error) {
	if tgt.Connections == nil {
		return packet.ConnectionBlock{}, fmt.Errorf("session: %s has no memory controller connection table", tgt.Device)
	}
	sel := tgt.Connections.DefaultSelection()
	if tool.Conn != nil {
		sel = *tool.Conn
	}
	if _, err := tgt.Connections.Resolve(sel); err != nil {
		return packet.ConnectionBlock{}, &settings.ConfigValidationError{Key: "conn", Value: sel.Instance, Reason: err.Error()}
	}
	return packet.NewConnectionBlock(sel), nil
}

// NewPinTest builds the pin test command for the selected connection.
func NewPinTest(tgt *mcu.Target, tool settings.Tool) (*packet.PinTest, error) {
	conn, err := Connection(tgt, tool)
	if err != nil {
		return nil, err
	}
	return &packet.PinTest{Conn: conn}, nil
}

// NewConfigSystem generates the LUT of model and combines it with the tool
// settings. The CPU clock is checked against tgt.
func NewConfigSystem(tgt *mcu.Target, model *memmodel.Model, tool settings.Tool) (*packet.ConfigSystem, error) {
	if tool.CPUSpeedMHz <= 0 || tool.CPUSpeedMHz > tgt.MaxCPUFreqMHz {
		return nil, &settings.ConfigValidationError{
			Key:    "cpuSpeedMHz",
			Value:  tool.CPUSpeedMHz,
			Reason: fmt.Sprintf("must be within 1..%d MHz for %s", tgt.MaxCPUFreqMHz, tgt.Device),
		}
	}

	class, err := tool.MemClass()
	if err != nil {
		return nil, err
	}
	if class != model.DeviceClass {
		return nil, &settings.ConfigValidationError{
			Key:    "memType",
			Value:  class,
			Reason: fmt.Sprintf("does not match %s, a %s chip", model.Path(), model.DeviceClass),
		}
	}

	table, err := lut.Generate(model)
	if err != nil {
		return nil, err
	}
	conn, err := Connection(tgt, tool)
	if err != nil {
		return nil, err
	}

	return &packet.ConfigSystem{
		LUT:        table,
		Properties: model.Properties,
		Settings: packet.Settings{
			CPUSpeedMHz:    uint32(tool.CPUSpeedMHz),
			EnableL1Cache:  bool(tool.EnableL1Cache),
			EnablePrefetch: bool(tool.EnablePrefetch),
			MemType:        tool.MemType,
			MemSpeedMHz:    uint32(tool.MemSpeed),
		},
		Conn: conn,
	}, nil
}
