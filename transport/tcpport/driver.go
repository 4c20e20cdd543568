// Package tcpport reaches a target UART exposed over TCP by a serial bridge
// such as ser2net.
package tcpport

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"mtu/transport"
	"mtu/util"
)

const driverName = "tcp"

const dialTimeout = 5 * time.Second

type Driver struct {
	hosts []string
}

func NewDriver(hosts []string) *Driver {
	return &Driver{hosts: hosts}
}

func (d *Driver) DisplayOrder() int { return 1 }

func (d *Driver) DisplayName() string { return "TCP bridge" }

func (d *Driver) DisplayDescription() string {
	return "Connect to a target UART shared over TCP"
}

// Detect lists the configured bridge endpoints; it does not dial them.
func (d *Driver) Detect() ([]transport.DeviceDescriptor, error) {
	devices := make([]transport.DeviceDescriptor, 0, len(d.hosts))
	for _, h := range d.hosts {
		devices = append(devices, transport.DeviceDescriptor{
			Driver:      driverName,
			Port:        h,
			DisplayName: "tcp://" + h,
		})
	}
	return devices, nil
}

func (d *Driver) Open(desc transport.DeviceDescriptor) (transport.Port, error) {
	if _, _, err := net.SplitHostPort(desc.Port); err != nil {
		return nil, fmt.Errorf("tcpport: bad address %q: %w", desc.Port, err)
	}

	c, err := net.DialTimeout("tcp", desc.Port, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("tcpport: dial %s: %w", desc.Port, err)
	}
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}

	log := zap.L().Named("tcp")
	log.Info("tcpport: connected", zap.String("addr", desc.Port))
	return transport.NewStreamPort(desc.Port, c, log), nil
}

func init() {
	if util.IsTruthy(os.Getenv("MTU_TCP_DISABLE")) {
		return
	}

	// comma-delimited list of host:port pairs:
	var hosts []string
	for _, h := range strings.Split(os.Getenv("MTU_TCP_HOSTS"), ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}

	transport.Register(driverName, NewDriver(hosts))
}
