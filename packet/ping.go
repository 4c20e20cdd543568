package packet

import (
	"encoding/binary"
	"fmt"
)

const (
	romStartByte     = 0x5A
	romPingCommand   = 0xA6
	romPingResponse  = 0xA7
	PingResponseSize = 10
)

// PingRequest returns the ROM bootloader ping.
func PingRequest() []byte {
	return []byte{romStartByte, romPingCommand}
}

// PingResponse is the version information the ROM answers a ping with.
type PingResponse struct {
	Major   uint8
	Minor   uint8
	Bugfix  uint8
	Name    byte
	Options uint16
}

func (r PingResponse) String() string {
	return fmt.Sprintf("%c%d.%d.%d options=0x%04x", r.Name, r.Major, r.Minor, r.Bugfix, r.Options)
}

// Encode renders the 10-byte ping response as the ROM sends it.
func (r PingResponse) Encode() []byte {
	b := []byte{romStartByte, romPingResponse, r.Bugfix, r.Minor, r.Major, r.Name, 0, 0, 0, 0}
	binary.LittleEndian.PutUint16(b[6:], r.Options)
	binary.LittleEndian.PutUint16(b[8:], crc16(b[:8]))
	return b
}

// ParsePingResponse validates a ping response.
func ParsePingResponse(b []byte) (PingResponse, error) {
	if len(b) != PingResponseSize {
		return PingResponse{}, desync("ping response of %d bytes, want %d", len(b), PingResponseSize)
	}
	if b[0] != romStartByte || b[1] != romPingResponse {
		return PingResponse{}, desync("ping response starts with 0x%02x 0x%02x", b[0], b[1])
	}
	if got, want := binary.LittleEndian.Uint16(b[8:]), crc16(b[:8]); got != want {
		return PingResponse{}, desync("ping response crc 0x%04x, want 0x%04x", got, want)
	}
	return PingResponse{
		Bugfix:  b[2],
		Minor:   b[3],
		Major:   b[4],
		Name:    b[5],
		Options: binary.LittleEndian.Uint16(b[6:]),
	}, nil
}
