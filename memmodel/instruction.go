package memmodel

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Op is a FlexSPI sequencer opcode. DDR variants have bit 5 set.
type Op uint8

const (
	OpStop      Op = 0x00
	OpCmd       Op = 0x01
	OpRaddr     Op = 0x02
	OpCaddr     Op = 0x03
	OpMode1     Op = 0x04
	OpMode2     Op = 0x05
	OpMode4     Op = 0x06
	OpMode8     Op = 0x07
	OpWrite     Op = 0x08
	OpRead      Op = 0x09
	OpLearn     Op = 0x0A
	OpDataSize  Op = 0x0B
	OpDummy     Op = 0x0C
	OpDummyRwds Op = 0x0D
	OpJmpOnCS   Op = 0x1F

	ddrFlag Op = 0x20
)

var opNames = map[Op]string{
	OpStop:      "STOP",
	OpCmd:       "CMD",
	OpRaddr:     "RADDR",
	OpCaddr:     "CADDR",
	OpMode1:     "MODE1",
	OpMode2:     "MODE2",
	OpMode4:     "MODE4",
	OpMode8:     "MODE8",
	OpWrite:     "WRITE",
	OpRead:      "READ",
	OpLearn:     "LEARN",
	OpDataSize:  "DATSZ",
	OpDummy:     "DUMMY",
	OpDummyRwds: "DUMMY_RWDS",
	OpJmpOnCS:   "JMP_ON_CS",
}

// DDR returns the double data rate variant of o.
func (o Op) DDR() Op {
	if o == OpStop || o == OpJmpOnCS {
		return o
	}
	return o | ddrFlag
}

func (o Op) IsDDR() bool { return o&ddrFlag != 0 && o != OpJmpOnCS }

func (o Op) base() Op {
	if o == OpJmpOnCS {
		return o
	}
	return o &^ ddrFlag
}

func (o Op) IsValid() bool {
	_, ok := opNames[o.base()]
	return ok
}

// Direction of data transfer of an instruction.
type Direction int

const (
	DirNone Direction = iota
	DirRead
	DirWrite
)

func (o Op) Direction() Direction {
	switch o.base() {
	case OpRead, OpLearn:
		return DirRead
	case OpWrite:
		return DirWrite
	}
	return DirNone
}

func (o Op) String() string {
	name, ok := opNames[o.base()]
	if !ok {
		return fmt.Sprintf("Op(0x%02x)", uint8(o))
	}
	if o == OpStop || o == OpJmpOnCS {
		return name
	}
	if o.IsDDR() {
		return name + "_DDR"
	}
	return name + "_SDR"
}

// ParseOp accepts "CMD_SDR", "READ_DDR", "STOP", "JMP_ON_CS"; a bare name
// without suffix means SDR.
func ParseOp(s string) (Op, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	ddr := false
	switch {
	case strings.HasSuffix(name, "_DDR"):
		ddr = true
		name = strings.TrimSuffix(name, "_DDR")
	case strings.HasSuffix(name, "_SDR"):
		name = strings.TrimSuffix(name, "_SDR")
	}
	for op, n := range opNames {
		if n == name {
			if ddr {
				return op.DDR(), nil
			}
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown opcode %q", s)
}

func (o Op) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

func (o *Op) UnmarshalJSON(j []byte) (err error) {
	var s string
	if err = json.Unmarshal(j, &s); err != nil {
		return
	}
	*o, err = ParseOp(s)
	return
}

// Operand is an instruction operand; in JSON it may be a number or a "0x" prefixed string.
type Operand uint8

func (v *Operand) UnmarshalJSON(j []byte) (err error) {
	var n uint8
	if err = json.Unmarshal(j, &n); err == nil {
		*v = Operand(n)
		return
	}

	var s string
	if err = json.Unmarshal(j, &s); err != nil {
		return fmt.Errorf("operand must be a number or a hex string: %s", j)
	}
	var u uint64
	u, err = strconv.ParseUint(s, 0, 8)
	if err != nil {
		return fmt.Errorf("operand %q: %w", s, err)
	}
	*v = Operand(u)
	return
}

func (v Operand) MarshalJSON() ([]byte, error) {
	return json.Marshal(fmt.Sprintf("0x%02X", uint8(v)))
}

// Instruction is one sequencer micro-instruction.
type Instruction struct {
	Op      Op      `json:"op"`
	Pads    uint8   `json:"pads"`
	Operand Operand `json:"operand"`
}

func (i Instruction) String() string {
	return fmt.Sprintf("%s/%d/0x%02X", i.Op, i.Pads, uint8(i.Operand))
}

// Sequence is the instruction list the chip declares for one named operation.
type Sequence struct {
	Operation    string        `json:"operation"`
	Instructions []Instruction `json:"instructions"`
}
