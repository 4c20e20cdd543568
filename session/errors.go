package session

import (
	"fmt"

	"mtu/mcu"
)

// ConnectionError is returned by Connect when the port cannot be opened or
// the ROM bootloader never answers.
type ConnectionError struct {
	Device   string
	Port     string
	Attempts int
	// Remedy tells the user what to check on the board.
	Remedy string
	Err    error
}

func (e *ConnectionError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("session: no answer from %s on %s after %d pings: %v", e.Device, e.Port, e.Attempts, e.Err)
	}
	return fmt.Sprintf("session: cannot open %s: %v", e.Port, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Kind() string { return "connection failed" }

// remedyFor returns the boot strap advice for a target series.
func remedyFor(t *mcu.Target) string {
	if t == nil {
		return "Check the cable and that the board is powered."
	}
	switch t.Series {
	case mcu.SeriesIMXRT10yy, mcu.SeriesIMXRT11yy:
		return fmt.Sprintf("Make sure %s is in serial downloader mode: set BMOD[1:0] to 0b01 and reset the board.", t.Device)
	case mcu.SeriesIMXRTxxx:
		return fmt.Sprintf("Make sure %s boots to UART serial download: set the ISP[2:0] pins to 0b111 and reset the board.", t.Device)
	}
	return "Check the boot mode of the board and reset it."
}

// StateError is returned when an operation is not allowed in the current state.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("session: %s: not allowed while %s", e.Op, e.State)
}

func (e *StateError) Kind() string { return "invalid session state" }
