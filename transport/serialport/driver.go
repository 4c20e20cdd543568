// Package serialport opens target UART links with go.bug.st/serial.
package serialport

import (
	"fmt"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"mtu/transport"
)

const driverName = "serial"

// DefaultBaud is used when a descriptor carries no rate; sessions fill in
// the fastest rate of the target first.
const DefaultBaud = 115200

type Driver struct{}

func (d *Driver) DisplayOrder() int { return 0 }

func (d *Driver) DisplayName() string { return "Serial" }

func (d *Driver) DisplayDescription() string {
	return "Connect to the target UART through a serial port"
}

func displayName(port *enumerator.PortDetails) string {
	if port.IsUSB {
		if port.Product != "" {
			return fmt.Sprintf("%s (%s)", port.Name, port.Product)
		}
		return fmt.Sprintf("%s (%s:%s)", port.Name, port.VID, port.PID)
	}
	return port.Name
}

func (d *Driver) Detect() (devices []transport.DeviceDescriptor, err error) {
	var ports []*enumerator.PortDetails

	ports, err = enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("serialport: detect: %w", err)
	}

	devices = make([]transport.DeviceDescriptor, 0, len(ports))
	for _, port := range ports {
		devices = append(devices, transport.DeviceDescriptor{
			Driver:      driverName,
			Port:        port.Name,
			DisplayName: displayName(port),
		})
	}
	return
}

func (d *Driver) Open(desc transport.DeviceDescriptor) (transport.Port, error) {
	if desc.Port == "" {
		return nil, fmt.Errorf("serialport: no port name given")
	}
	baud := desc.Baud
	if baud == 0 {
		baud = DefaultBaud
	}

	f, err := serial.Open(desc.Port, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("serialport: open %s: %w", desc.Port, err)
	}

	if err = f.ResetInputBuffer(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("serialport: reset input buffer: %w", err)
	}
	if err = f.ResetOutputBuffer(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("serialport: reset output buffer: %w", err)
	}

	log := zap.L().Named("serial")
	log.Info("serialport: opened", zap.String("port", desc.Port), zap.Int("baud", baud))
	return transport.NewStreamPort(desc.Port, f, log), nil
}

func init() {
	transport.Register(driverName, &Driver{})
}
