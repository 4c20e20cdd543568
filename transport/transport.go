// Package transport abstracts the byte stream between the host and the test
// firmware. Drivers register themselves by name at init time.
package transport

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

var ErrClosed = errors.New("transport: port closed")

// Port is a duplex byte stream to the target.
type Port interface {
	io.ReadWriteCloser

	// Available returns the number of bytes that can be read without blocking.
	Available() (int, error)

	// SetReadTimeout bounds how long Read waits for the first byte. A zero
	// timeout makes Read non-blocking, a negative one waits forever.
	SetReadTimeout(d time.Duration) error
}

// DeviceDescriptor identifies one openable port of a driver.
type DeviceDescriptor struct {
	Driver      string `json:"driver"`
	Port        string `json:"port"`
	Baud        int    `json:"baud,omitempty"`
	DisplayName string `json:"displayName"`
}

func (d DeviceDescriptor) String() string {
	if d.DisplayName != "" {
		return d.DisplayName
	}
	return d.Driver + ":" + d.Port
}

type Driver interface {
	DisplayOrder() int
	DisplayName() string
	DisplayDescription() string

	// Detect lists the ports this driver can currently open.
	Detect() ([]DeviceDescriptor, error)

	Open(desc DeviceDescriptor) (Port, error)
}

type NamedDriver struct {
	Name   string
	Driver Driver
}

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// Register makes a transport driver available by the provided name.
// If Register is called twice with the same name or if driver is nil,
// it panics.
func Register(name string, driver Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if driver == nil {
		panic("transport: Register driver is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("transport: Register called twice for driver " + name)
	}
	drivers[name] = driver
}

// Drivers returns the registered drivers sorted by display order.
func Drivers() []NamedDriver {
	driversMu.RLock()
	defer driversMu.RUnlock()
	list := make([]NamedDriver, 0, len(drivers))
	for name, d := range drivers {
		list = append(list, NamedDriver{Name: name, Driver: d})
	}
	sort.Slice(list, func(i, j int) bool {
		oi, oj := list[i].Driver.DisplayOrder(), list[j].Driver.DisplayOrder()
		if oi != oj {
			return oi < oj
		}
		return list[i].Name < list[j].Name
	})
	return list
}

func DriverByName(name string) (Driver, bool) {
	driversMu.RLock()
	d, ok := drivers[name]
	driversMu.RUnlock()
	return d, ok
}

// Open opens the port described by desc with its registered driver.
func Open(desc DeviceDescriptor) (Port, error) {
	d, ok := DriverByName(desc.Driver)
	if !ok {
		return nil, fmt.Errorf("transport: unknown driver %q (forgotten import?)", desc.Driver)
	}
	return d.Open(desc)
}
