package packet

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

const (
	HeaderSize  = 4
	TrailerSize = 2
)

// MaxFrameSize is the size of the largest frame, ConfigSystem.
const MaxFrameSize = HeaderSize + configSystemSize + TrailerSize

// ProtocolDesyncError reports bytes that do not form a valid frame.
type ProtocolDesyncError struct {
	Reason string
	// Skipped is the number of bytes a Decoder discarded to resynchronise.
	Skipped int
}

func (e *ProtocolDesyncError) Error() string {
	if e.Skipped > 0 {
		return fmt.Sprintf("packet: protocol desync: %s (skipped %d bytes)", e.Reason, e.Skipped)
	}
	return "packet: protocol desync: " + e.Reason
}

func (e *ProtocolDesyncError) Kind() string { return "protocol desync" }

func desync(format string, a ...any) *ProtocolDesyncError {
	return &ProtocolDesyncError{Reason: fmt.Sprintf(format, a...)}
}

// Encode serialises cmd into a complete frame:
//
//	[id u8][payload length u16][seq u8][payload][crc16 u16]
//
// with multi-byte fields little-endian and the CRC covering header and payload.
func Encode(cmd Command, seq uint8) []byte {
	payload := &bytes.Buffer{}
	cmd.marshal(payload)

	buf := &bytes.Buffer{}
	buf.Grow(HeaderSize + payload.Len() + TrailerSize)
	buf.WriteByte(byte(cmd.ID()))
	_ = binary.Write(buf, binary.LittleEndian, uint16(payload.Len()))
	buf.WriteByte(seq)
	buf.Write(payload.Bytes())

	crc := crc16(buf.Bytes())
	_ = binary.Write(buf, binary.LittleEndian, crc)
	return buf.Bytes()
}

// checkHeader validates the header fields of a frame prefix and returns the
// total frame length.
func checkHeader(hdr []byte) (CommandID, int, error) {
	id := CommandID(hdr[0])
	want, ok := payloadSizes[id]
	if !ok {
		return id, 0, desync("unknown command id 0x%02x", hdr[0])
	}
	n := int(binary.LittleEndian.Uint16(hdr[1:3]))
	if n != want {
		return id, 0, desync("%s payload length %d, want %d", id, n, want)
	}
	return id, HeaderSize + n + TrailerSize, nil
}

// Decode parses one complete frame.
func Decode(frame []byte) (Command, uint8, error) {
	if len(frame) < HeaderSize+TrailerSize {
		return nil, 0, desync("frame of %d bytes is too short", len(frame))
	}
	id, total, err := checkHeader(frame)
	if err != nil {
		return nil, 0, err
	}
	if len(frame) != total {
		return nil, 0, desync("%s frame length %d, want %d", id, len(frame), total)
	}

	body := frame[:total-TrailerSize]
	if got, want := binary.LittleEndian.Uint16(frame[total-TrailerSize:]), crc16(body); got != want {
		return nil, 0, desync("%s crc 0x%04x, want 0x%04x", id, got, want)
	}

	cmd := newCommand(id)
	if err = cmd.unmarshal(bytes.NewReader(body[HeaderSize:])); err != nil {
		return nil, 0, desync("%s payload: %v", id, err)
	}
	return cmd, frame[3], nil
}

// FormatHex renders bytes the way the packet log shows them: "0x5a, 0xa6".
func FormatHex(p []byte) string {
	sb := strings.Builder{}
	for i, b := range p {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("0x")
		sb.WriteString(strconv.FormatUint(uint64(b), 16))
	}
	return sb.String()
}
