package lut

import (
	"fmt"
	"strings"

	"mtu/memmodel"
)

const (
	SequenceCount           = 16
	WordsPerSequence        = 4
	InstructionsPerSequence = WordsPerSequence * 2
	WordCount               = SequenceCount * WordsPerSequence
)

// Table is the FlexSPI LUT: 16 sequences of 4 words each. Words not written
// by any sequence are zero, which encodes STOP.
type Table [WordCount]uint32

var padsCodes = map[uint8]uint16{1: 0, 2: 1, 4: 2, 8: 3}

// Encode packs one instruction into its 16-bit form: operand in bits 0-7,
// pad count code in bits 8-9, opcode in bits 10-15.
func Encode(in memmodel.Instruction) (uint16, error) {
	pads, ok := padsCodes[in.Pads]
	if !ok {
		return 0, fmt.Errorf("lut: invalid pad count %d", in.Pads)
	}
	if !in.Op.IsValid() {
		return 0, fmt.Errorf("lut: invalid opcode 0x%02x", uint8(in.Op))
	}
	return uint16(in.Operand) | pads<<8 | uint16(in.Op)<<10, nil
}

// Decode unpacks a 16-bit instruction.
func Decode(v uint16) memmodel.Instruction {
	return memmodel.Instruction{
		Op:      memmodel.Op(v >> 10),
		Pads:    uint8(1) << ((v >> 8) & 3),
		Operand: memmodel.Operand(v & 0xFF),
	}
}

// Generate builds the table using the slot convention of the model's device class.
func Generate(m *memmodel.Model) (Table, error) {
	if m.DeviceClass.IsRAM() {
		return GenerateRam(m)
	}
	return GenerateNor(m)
}

// GenerateNor builds the table using the NOR-like slot convention.
func GenerateNor(m *memmodel.Model) (Table, error) {
	return generate(m, NorSlots)
}

// GenerateRam builds the table using the RAM-like slot convention.
func GenerateRam(m *memmodel.Model) (Table, error) {
	return generate(m, RamSlots)
}

func generate(m *memmodel.Model, slots []Slot) (Table, error) {
	for _, s := range slots {
		if !s.Required {
			continue
		}
		if _, ok := m.Sequence(s.Operation); !ok {
			return Table{}, &IncompleteModelError{Chip: m.Chip, Class: m.DeviceClass, Operation: s.Operation}
		}
	}

	var t Table
	for _, seq := range m.Sequences {
		slot, ok := findSlot(slots, seq.Operation)
		if !ok {
			return Table{}, &UnknownOperationError{Class: m.DeviceClass, Operation: seq.Operation}
		}
		if len(seq.Instructions) > InstructionsPerSequence {
			return Table{}, &LutOverflowError{
				Operation:    seq.Operation,
				Instructions: len(seq.Instructions),
				Budget:       InstructionsPerSequence,
			}
		}

		base := slot.Index * WordsPerSequence
		for i, in := range seq.Instructions {
			v, err := Encode(in)
			if err != nil {
				return Table{}, &InvalidInstructionError{Operation: seq.Operation, Index: i, Instruction: in}
			}
			t[base+i/2] |= uint32(v) << (16 * (i % 2))
		}
	}

	// a required slot that encodes only STOP would stall the controller:
	for _, s := range slots {
		if s.Required && t.IsEmpty(s.Index) {
			return Table{}, &IncompleteModelError{Chip: m.Chip, Class: m.DeviceClass, Operation: s.Operation, Empty: true}
		}
	}

	return t, nil
}

// Words returns a copy of the table as a slice.
func (t Table) Words() []uint32 {
	w := make([]uint32, WordCount)
	copy(w, t[:])
	return w
}

// Sequence returns the four words of a sequence slot.
func (t Table) Sequence(slot int) (seq [WordsPerSequence]uint32) {
	if slot < 0 || slot >= SequenceCount {
		return
	}
	copy(seq[:], t[slot*WordsPerSequence:])
	return
}

// Instructions decodes a slot up to its first STOP.
func (t Table) Instructions(slot int) []memmodel.Instruction {
	seq := t.Sequence(slot)
	list := make([]memmodel.Instruction, 0, InstructionsPerSequence)
	for _, w := range seq {
		for _, half := range [2]uint16{uint16(w), uint16(w >> 16)} {
			in := Decode(half)
			if in.Op == memmodel.OpStop {
				return list
			}
			list = append(list, in)
		}
	}
	return list
}

// IsEmpty reports whether every word of slot encodes STOP.
func (t Table) IsEmpty(slot int) bool {
	for _, w := range t.Sequence(slot) {
		if w != 0 {
			return false
		}
	}
	return true
}

// String dumps the table one sequence per line.
func (t Table) String() string {
	sb := strings.Builder{}
	for s := 0; s < SequenceCount; s++ {
		seq := t.Sequence(s)
		fmt.Fprintf(&sb, "[%2d] %08X %08X %08X %08X\n", s, seq[0], seq[1], seq[2], seq[3])
	}
	return sb.String()
}
