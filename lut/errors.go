package lut

import (
	"fmt"

	"mtu/memmodel"
)

// IncompleteModelError is returned when a chip model lacks an operation its
// device class requires. No table is produced.
type IncompleteModelError struct {
	Chip      string
	Class     memmodel.DeviceClass
	Operation string
	// Empty is set when the sequence is declared but encodes only STOP.
	Empty bool
}

func (e *IncompleteModelError) Error() string {
	if e.Empty {
		return fmt.Sprintf("lut: %s (%s) '%s' sequence is empty", e.Chip, e.Class, e.Operation)
	}
	return fmt.Sprintf("lut: %s (%s) has no '%s' sequence", e.Chip, e.Class, e.Operation)
}

func (e *IncompleteModelError) Kind() string { return "incomplete memory model" }

// LutOverflowError is returned when a sequence does not fit in its slot.
type LutOverflowError struct {
	Operation    string
	Instructions int
	Budget       int
}

func (e *LutOverflowError) Error() string {
	return fmt.Sprintf("lut: '%s' needs %d instructions, slot holds %d", e.Operation, e.Instructions, e.Budget)
}

func (e *LutOverflowError) Kind() string { return "LUT sequence overflow" }

// UnknownOperationError is returned for a sequence the slot convention of the
// device class has no place for.
type UnknownOperationError struct {
	Class     memmodel.DeviceClass
	Operation string
}

func (e *UnknownOperationError) Error() string {
	return fmt.Sprintf("lut: operation '%s' has no slot for %s devices", e.Operation, e.Class)
}

func (e *UnknownOperationError) Kind() string { return "incomplete memory model" }

// InvalidInstructionError is returned when an instruction cannot be encoded.
type InvalidInstructionError struct {
	Operation   string
	Index       int
	Instruction memmodel.Instruction
}

func (e *InvalidInstructionError) Error() string {
	return fmt.Sprintf("lut: '%s'[%d]: cannot encode %v", e.Operation, e.Index, e.Instruction)
}

func (e *InvalidInstructionError) Kind() string { return "invalid chip model" }
