package memmodel

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Properties are the electrical and geometry properties the firmware needs to
// drive the chip.
type Properties struct {
	SizeKB          uint32 `json:"sizeKB"`
	PageSize        uint32 `json:"pageSize"`
	SectorSize      uint32 `json:"sectorSize"`
	BlockSize       uint32 `json:"blockSize"`
	ReadDummyCycles uint8  `json:"readDummyCycles"`
	DDR             bool   `json:"ddr"`
	DQSMode         uint8  `json:"dqsMode"`
	ColumnAddrWidth uint8  `json:"columnAddrWidth"`
	CSHoldTime      uint8  `json:"csHoldTime"`
	CSSetupTime     uint8  `json:"csSetupTime"`
	DataValidTimeNs uint16 `json:"dataValidTimeNs"`
}

// Model is the declarative description of one memory chip. Models are
// immutable once loaded.
type Model struct {
	Vendor      string      `json:"vendor"`
	DeviceClass DeviceClass `json:"deviceClass"`
	Chip        string      `json:"chip"`
	Properties  Properties  `json:"properties"`
	Sequences   []Sequence  `json:"sequences"`
}

// Path is the library path of the model: <vendor>/<deviceClass>/<chip>.json
func (m *Model) Path() string {
	return modelPath(m.Vendor, string(m.DeviceClass), m.Chip)
}

func modelPath(vendor, class, chip string) string {
	return vendor + "/" + class + "/" + chip + ".json"
}

// Sequence returns the instructions declared for operation.
func (m *Model) Sequence(operation string) ([]Instruction, bool) {
	for _, s := range m.Sequences {
		if s.Operation == operation {
			return s.Instructions, true
		}
	}
	return nil, false
}

// Operations lists the declared operation names in declaration order.
func (m *Model) Operations() []string {
	ops := make([]string, len(m.Sequences))
	for i, s := range m.Sequences {
		ops[i] = s.Operation
	}
	return ops
}

// SchemaError reports every problem found in a chip model document.
type SchemaError struct {
	Path string
	Err  error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("memmodel: %s: %v", e.Path, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

func (e *SchemaError) Kind() string { return "invalid chip model" }

// Problems returns the individual schema violations.
func (e *SchemaError) Problems() []error {
	return multierr.Errors(e.Err)
}

// Parse decodes and validates a chip model document. path is used for error
// reporting and, when non-empty, must agree with the vendor, class and chip
// named in the document.
func Parse(path string, data []byte) (*Model, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	m := &Model{}
	if err := dec.Decode(m); err != nil {
		return nil, &SchemaError{Path: path, Err: errors.Wrap(err, "decode")}
	}
	if dec.More() {
		return nil, &SchemaError{Path: path, Err: errors.New("trailing data after model object")}
	}

	if err := m.validate(path); err != nil {
		return nil, &SchemaError{Path: path, Err: err}
	}
	return m, nil
}

var validPads = map[uint8]bool{1: true, 2: true, 4: true, 8: true}

func (m *Model) validate(path string) (err error) {
	if m.Vendor == "" {
		err = multierr.Append(err, errors.New("vendor is required"))
	}
	if m.Chip == "" {
		err = multierr.Append(err, errors.New("chip is required"))
	}
	if !m.DeviceClass.IsValid() {
		err = multierr.Append(err, errors.Errorf("unknown deviceClass %q", m.DeviceClass))
	}
	if path != "" && m.Vendor != "" && m.Chip != "" && path != m.Path() {
		err = multierr.Append(err, errors.Errorf("document describes %s", m.Path()))
	}

	p := m.Properties
	if p.SizeKB == 0 {
		err = multierr.Append(err, errors.New("properties.sizeKB must be positive"))
	}
	if !m.DeviceClass.IsRAM() {
		if p.PageSize == 0 {
			err = multierr.Append(err, errors.New("properties.pageSize must be positive"))
		}
		if p.SectorSize == 0 {
			err = multierr.Append(err, errors.New("properties.sectorSize must be positive"))
		}
	}

	if len(m.Sequences) == 0 {
		err = multierr.Append(err, errors.New("no sequences declared"))
	}
	seen := make(map[string]bool, len(m.Sequences))
	for i, s := range m.Sequences {
		if s.Operation == "" {
			err = multierr.Append(err, errors.Errorf("sequences[%d]: operation is required", i))
			continue
		}
		if seen[s.Operation] {
			err = multierr.Append(err, errors.Errorf("sequences[%d]: operation %q declared twice", i, s.Operation))
		}
		seen[s.Operation] = true
		if len(s.Instructions) == 0 {
			err = multierr.Append(err, errors.Errorf("%s: no instructions", s.Operation))
		} else if s.Instructions[0].Op == OpStop {
			err = multierr.Append(err, errors.Errorf("%s: sequence starts with STOP", s.Operation))
		}
		for j, in := range s.Instructions {
			if !in.Op.IsValid() {
				err = multierr.Append(err, errors.Errorf("%s[%d]: invalid opcode 0x%02x", s.Operation, j, uint8(in.Op)))
			}
			if !validPads[in.Pads] {
				err = multierr.Append(err, errors.Errorf("%s[%d]: pads must be 1, 2, 4 or 8, got %d", s.Operation, j, in.Pads))
			}
		}
	}
	return
}
