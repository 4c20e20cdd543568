package memmodel

import "fmt"

// DeviceClass is the kind of serial memory a chip model describes.
type DeviceClass string

const (
	QuadSPI    DeviceClass = "QuadSPI"
	OctalSPI   DeviceClass = "OctalSPI"
	HyperFlash DeviceClass = "HyperFlash"
	PSRAM      DeviceClass = "PSRAM"
	HyperRAM   DeviceClass = "HyperRAM"
)

// Classes lists every device class in memory type code order.
var Classes = [...]DeviceClass{QuadSPI, OctalSPI, HyperFlash, PSRAM, HyperRAM}

// ParseDeviceClass accepts a device class name as it appears in model paths.
func ParseDeviceClass(s string) (DeviceClass, error) {
	for _, c := range Classes {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("memmodel: unknown device class %q", s)
}

// ClassByCode resolves the memory type code carried in ConfigSystem packets.
func ClassByCode(code uint8) (DeviceClass, error) {
	if int(code) >= len(Classes) {
		return "", fmt.Errorf("memmodel: unknown memory type code %d", code)
	}
	return Classes[code], nil
}

// Code is the memory type code the firmware understands. Unknown classes map
// to 0.
func (c DeviceClass) Code() uint8 {
	for i, k := range Classes {
		if k == c {
			return uint8(i)
		}
	}
	return 0
}

// IsRAM reports whether the class uses the RAM-like LUT slot convention.
func (c DeviceClass) IsRAM() bool {
	return c == PSRAM || c == HyperRAM
}

func (c DeviceClass) IsValid() bool {
	_, err := ParseDeviceClass(string(c))
	return err == nil
}
