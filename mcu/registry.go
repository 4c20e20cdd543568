package mcu

import (
	"fmt"
	"sort"
	"sync"
)

// UnknownTargetError is returned when no descriptor is registered for an identifier.
type UnknownTargetError struct {
	Device string
}

func (e *UnknownTargetError) Error() string {
	return fmt.Sprintf("mcu: unknown target %q", e.Device)
}

func (e *UnknownTargetError) Kind() string { return "unknown target" }

var (
	targetsMu sync.RWMutex
	targets   = make(map[string]*Target)
)

// Register makes a target descriptor available by its Device identifier.
// If Register is called twice with the same identifier, or if the descriptor
// is nil or invalid, it panics.
func Register(t *Target) {
	targetsMu.Lock()
	defer targetsMu.Unlock()
	if t == nil {
		panic("mcu: Register target is nil")
	}
	if err := t.Validate(); err != nil {
		panic(err)
	}
	if _, dup := targets[t.Device]; dup {
		panic("mcu: Register called twice for target " + t.Device)
	}
	targets[t.Device] = t
}

// Lookup resolves a target descriptor by its identifier.
func Lookup(device string) (*Target, error) {
	targetsMu.RLock()
	t, ok := targets[device]
	targetsMu.RUnlock()
	if !ok {
		return nil, &UnknownTargetError{Device: device}
	}
	return t, nil
}

// Targets returns all registered targets in selection order.
func Targets() []*Target {
	targetsMu.RLock()
	defer targetsMu.RUnlock()
	list := make([]*Target, 0, len(targets))
	for _, t := range targets {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Order != list[j].Order {
			return list[i].Order < list[j].Order
		}
		return list[i].Device < list[j].Device
	})
	return list
}

// Devices returns the identifiers of all registered targets in selection order.
func Devices() []string {
	list := Targets()
	names := make([]string, len(list))
	for i, t := range list {
		names[i] = t.Device
	}
	return names
}

// ByIndex resolves a target by its position in Devices(); the persisted
// tool settings store the selection this way.
func ByIndex(index int) (*Target, error) {
	list := Targets()
	if index < 0 || index >= len(list) {
		return nil, &UnknownTargetError{Device: fmt.Sprintf("#%d", index)}
	}
	return list[index], nil
}

// IndexOf returns the position of device in Devices(), or -1.
func IndexOf(device string) int {
	for i, name := range Devices() {
		if name == device {
			return i
		}
	}
	return -1
}
