package mcu

import (
	"fmt"

	"go.uber.org/multierr"
)

// Signal names one electrical signal group of a FlexSPI/XSPI controller.
type Signal string

const (
	SignalDataL4b Signal = "dataL4b"
	SignalDataH4b Signal = "dataH4b"
	SignalDataT8b Signal = "dataT8b"
	SignalSSB     Signal = "ssb"
	SignalSCLK    Signal = "sclk"
	SignalSCLKN   Signal = "sclkn"
	SignalDQS0    Signal = "dqs0"
	SignalDQS1    Signal = "dqs1"
	SignalRSTB    Signal = "rstb"
)

// Signals lists every signal in wire order.
var Signals = [...]Signal{
	SignalDataL4b,
	SignalDataH4b,
	SignalDataT8b,
	SignalSSB,
	SignalSCLK,
	SignalSCLKN,
	SignalDQS0,
	SignalDQS1,
	SignalRSTB,
}

// optional signals may be left unconnected ("None").
var optionalSignals = map[Signal]bool{
	SignalDataH4b: true,
	SignalDataT8b: true,
	SignalSCLKN:   true,
	SignalDQS0:    true,
	SignalDQS1:    true,
	SignalRSTB:    true,
}

// PinNone is the pin description of an unconnected optional signal.
const PinNone = "None"

// PinOption is one candidate pin assignment for a signal and the select code
// the firmware uses to configure it.
type PinOption struct {
	Pins string
	Code uint8
}

// ConnectionTable maps each signal to its candidate pin options, indexed by
// controller instance (index 0 is instance 1).
type ConnectionTable map[Signal][][]PinOption

// Instances returns the number of controller instances described by the table.
func (c ConnectionTable) Instances() int {
	return len(c[SignalSCLK])
}

// Options returns the pin options of signal for a 1-based instance.
func (c ConnectionTable) Options(instance int, signal Signal) []PinOption {
	perInstance, ok := c[signal]
	if !ok || instance < 1 || instance > len(perInstance) {
		return nil
	}
	return perInstance[instance-1]
}

func (c ConnectionTable) validate(device string) (err error) {
	n := c.Instances()
	if n == 0 {
		return fmt.Errorf("mcu: %s: connection table has no instances", device)
	}
	for _, sig := range Signals {
		perInstance, ok := c[sig]
		if !ok {
			err = multierr.Append(err, fmt.Errorf("mcu: %s: connection table missing signal %s", device, sig))
			continue
		}
		if len(perInstance) != n {
			err = multierr.Append(err, fmt.Errorf("mcu: %s: signal %s has %d instances, want %d", device, sig, len(perInstance), n))
		}
		for i, opts := range perInstance {
			if len(opts) == 0 {
				err = multierr.Append(err, fmt.Errorf("mcu: %s: signal %s instance %d has no pin options", device, sig, i+1))
			}
			seen := make(map[uint8]bool, len(opts))
			for _, o := range opts {
				if seen[o.Code] {
					err = multierr.Append(err, fmt.Errorf("mcu: %s: signal %s instance %d repeats code %d", device, sig, i+1, o.Code))
				}
				seen[o.Code] = true
			}
		}
	}
	return
}

// ConnectionSelection is the user's choice of controller instance and pin
// option per signal, persisted with the tool settings.
type ConnectionSelection struct {
	Instance int              `json:"instance"`
	Codes    map[Signal]uint8 `json:"codes"`
}

// DefaultSelection picks instance 1 and the first option of every signal.
func (c ConnectionTable) DefaultSelection() ConnectionSelection {
	sel := ConnectionSelection{Instance: 1, Codes: make(map[Signal]uint8, len(Signals))}
	for _, sig := range Signals {
		if opts := c.Options(1, sig); len(opts) > 0 {
			sel.Codes[sig] = opts[0].Code
		}
	}
	return sel
}

// Code returns the selected code for sig (0 when unset).
func (s ConnectionSelection) Code(sig Signal) uint8 {
	return s.Codes[sig]
}

// Resolve validates sel against the table and returns the pin description of
// every connected signal in wire order; unconnected optional signals are skipped.
func (c ConnectionTable) Resolve(sel ConnectionSelection) ([]string, error) {
	if sel.Instance < 1 || sel.Instance > c.Instances() {
		return nil, fmt.Errorf("mcu: controller instance %d out of range 1..%d", sel.Instance, c.Instances())
	}

	pins := make([]string, 0, len(Signals))
	for _, sig := range Signals {
		code, ok := sel.Codes[sig]
		if !ok {
			if optionalSignals[sig] {
				continue
			}
			return nil, fmt.Errorf("mcu: required signal %s has no selection", sig)
		}

		found := false
		for _, o := range c.Options(sel.Instance, sig) {
			if o.Code != code {
				continue
			}
			found = true
			if o.Pins != PinNone {
				pins = append(pins, o.Pins)
			} else if !optionalSignals[sig] {
				return nil, fmt.Errorf("mcu: required signal %s cannot be unconnected", sig)
			}
			break
		}
		if !found {
			return nil, fmt.Errorf("mcu: signal %s has no pin option with code %d on instance %d", sig, code, sel.Instance)
		}
	}

	return pins, nil
}
