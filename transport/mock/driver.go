package mock

import (
	"go.uber.org/zap"

	"mtu/transport"
)

const driverName = "mock"

// Port names the driver understands.
const (
	PortDefault = "firmware"
	PortSilent  = "silent"
)

type Driver struct{}

func (d *Driver) DisplayOrder() int { return 1000 }

func (d *Driver) DisplayName() string { return "Mock" }

func (d *Driver) DisplayDescription() string {
	return "Simulated target firmware for trying out the tool"
}

func (d *Driver) Detect() ([]transport.DeviceDescriptor, error) {
	return []transport.DeviceDescriptor{
		{Driver: driverName, Port: PortDefault, DisplayName: "Mock firmware"},
		{Driver: driverName, Port: PortSilent, DisplayName: "Mock board (not in boot mode)"},
	}, nil
}

func (d *Driver) Open(desc transport.DeviceDescriptor) (transport.Port, error) {
	log := zap.L().Named("mock")
	fw := NewFirmware(log)
	fw.Silent = desc.Port == PortSilent
	return NewPort(fw, log), nil
}

// NewPort wraps fw as a transport.Port.
func NewPort(fw *Firmware, log *zap.Logger) transport.Port {
	return transport.NewStreamPort(driverName, fw, log)
}

func init() {
	transport.Register(driverName, &Driver{})
}
