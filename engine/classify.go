package engine

import (
	"errors"
	"fmt"
	"strings"

	"mtu/lut"
	"mtu/memmodel"
	"mtu/packet"
	"mtu/session"
	"mtu/settings"
)

// Classification is the user-facing rendering of an error.
type Classification struct {
	Kind    string   `json:"kind"`
	Message string   `json:"message"`
	Remedy  string   `json:"remedy,omitempty"`
	Details []string `json:"details,omitempty"`
}

func (c Classification) String() string {
	var sb strings.Builder
	if c.Kind != "" {
		sb.WriteString(c.Kind)
		sb.WriteString(": ")
	}
	sb.WriteString(c.Message)
	if c.Remedy != "" {
		sb.WriteString(". ")
		sb.WriteString(c.Remedy)
	}
	return sb.String()
}

type kinded interface {
	Kind() string
}

// Classify renders err for display. Errors carrying a Kind are named by it;
// anything else is reported as an unexpected error.
func Classify(err error) Classification {
	if err == nil {
		return Classification{}
	}

	var (
		connErr   *session.ConnectionError
		stateErr  *session.StateError
		cfgErr    *settings.ConfigValidationError
		incomp    *lut.IncompleteModelError
		overflow  *lut.LutOverflowError
		unknownOp *lut.UnknownOperationError
		desyncErr *packet.ProtocolDesyncError
		schemaErr *memmodel.SchemaError
		k         kinded
	)

	switch {
	case errors.As(err, &connErr):
		c := Classification{Kind: connErr.Kind(), Remedy: connErr.Remedy}
		if connErr.Attempts > 0 {
			c.Message = fmt.Sprintf("%s did not answer on %s after %d attempts", connErr.Device, connErr.Port, connErr.Attempts)
		} else {
			c.Message = fmt.Sprintf("cannot open %s: %v", connErr.Port, connErr.Err)
		}
		return c
	case errors.As(err, &stateErr):
		return Classification{
			Kind:    stateErr.Kind(),
			Message: fmt.Sprintf("cannot %s while %s", stateErr.Op, stateErr.State),
			Remedy:  "Connect to the board first.",
		}
	case errors.As(err, &cfgErr):
		return Classification{
			Kind:    cfgErr.Kind(),
			Message: fmt.Sprintf("%s=%v %s", cfgErr.Key, cfgErr.Value, cfgErr.Reason),
		}
	case errors.As(err, &incomp):
		if incomp.Empty {
			return Classification{
				Kind:    incomp.Kind(),
				Message: fmt.Sprintf("%s '%s' sequence encodes no instructions", incomp.Chip, incomp.Operation),
				Remedy:  fmt.Sprintf("Fill in the '%s' sequence of the chip model.", incomp.Operation),
			}
		}
		return Classification{
			Kind:    incomp.Kind(),
			Message: fmt.Sprintf("%s has no '%s' sequence", incomp.Chip, incomp.Operation),
			Remedy:  fmt.Sprintf("Add the '%s' sequence to the chip model.", incomp.Operation),
		}
	case errors.As(err, &unknownOp):
		return Classification{
			Kind:    unknownOp.Kind(),
			Message: fmt.Sprintf("'%s' is not a %s operation", unknownOp.Operation, unknownOp.Class),
			Remedy:  "Rename or remove the sequence in the chip model.",
		}
	case errors.As(err, &overflow):
		return Classification{
			Kind:    overflow.Kind(),
			Message: fmt.Sprintf("'%s' has %d instructions, the slot holds %d", overflow.Operation, overflow.Instructions, overflow.Budget),
			Remedy:  "Shorten the sequence in the chip model.",
		}
	case errors.As(err, &desyncErr):
		return Classification{
			Kind:    desyncErr.Kind(),
			Message: desyncErr.Reason,
			Remedy:  "Check the baud rate and reset the board.",
		}
	case errors.As(err, &schemaErr):
		c := Classification{Kind: schemaErr.Kind(), Message: schemaErr.Path}
		for _, p := range schemaErr.Problems() {
			c.Details = append(c.Details, p.Error())
		}
		if len(c.Details) > 0 {
			c.Message += ": " + strings.Join(c.Details, "; ")
		}
		return c
	case errors.As(err, &k):
		return Classification{Kind: k.Kind(), Message: err.Error()}
	}

	return Classification{Kind: "error", Message: err.Error()}
}
