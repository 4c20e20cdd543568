// Package settings persists the tool settings between runs.
package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"mtu/mcu"
	"mtu/memmodel"
	"mtu/transport"
)

// Flag is a boolean setting. Older settings files store flags as 0/1, so
// both numbers and JSON booleans are accepted; it is always written as a
// boolean.
type Flag bool

func (f *Flag) UnmarshalJSON(b []byte) error {
	switch string(bytes.TrimSpace(b)) {
	case "true", "1":
		*f = true
	case "false", "0", "null":
		*f = false
	default:
		return fmt.Errorf("settings: flag must be a boolean or 0/1, got %s", b)
	}
	return nil
}

// Tool holds every persisted tool setting.
type Tool struct {
	// MCUDevice is the index of the selected target in mcu.Devices().
	MCUDevice      int  `json:"mcuDevice"`
	CPUSpeedMHz    int  `json:"cpuSpeedMHz"`
	EnableL1Cache  Flag `json:"enableL1Cache"`
	EnablePrefetch Flag `json:"enablePrefetch"`
	// MemType is the device class code, see memmodel.Classes.
	MemType uint8 `json:"memType"`
	// MemSpeed is the memory clock in MHz.
	MemSpeed int `json:"memSpeed"`

	// LoadFwEn makes the session probe the ROM bootloader before use.
	LoadFwEn        Flag `json:"loadFwEn"`
	CmdPacketShowEn Flag `json:"cmdPacketShowEn"`

	Conn *mcu.ConnectionSelection `json:"conn,omitempty"`

	// MemChip is the chip model path (<vendor>/<deviceClass>/<chip>).
	MemChip string `json:"memChip,omitempty"`
	// Device is the transport endpoint used last.
	Device *transport.DeviceDescriptor `json:"device,omitempty"`
}

// Defaults returns the settings of a fresh install: the first registered
// target at its maximum CPU clock with caches on.
func Defaults() Tool {
	t := Tool{
		EnableL1Cache:  true,
		EnablePrefetch: true,
		MemType:        memmodel.QuadSPI.Code(),
		MemSpeed:       100,
		LoadFwEn:       true,
	}
	if tgt, err := mcu.ByIndex(0); err == nil {
		t.CPUSpeedMHz = tgt.MaxCPUFreqMHz
		t.MemChip = tgt.DefaultMemoryDevice
		if parts := strings.Split(tgt.DefaultMemoryDevice, "/"); len(parts) == 3 {
			if c, err := memmodel.ParseDeviceClass(parts[1]); err == nil {
				t.MemType = c.Code()
			}
		}
	}
	return t
}

func (t Tool) clone() Tool {
	if t.Conn != nil {
		c := *t.Conn
		c.Codes = make(map[mcu.Signal]uint8, len(t.Conn.Codes))
		for k, v := range t.Conn.Codes {
			c.Codes[k] = v
		}
		t.Conn = &c
	}
	if t.Device != nil {
		d := *t.Device
		t.Device = &d
	}
	return t
}

// Target resolves MCUDevice.
func (t Tool) Target() (*mcu.Target, error) {
	return mcu.ByIndex(t.MCUDevice)
}

// MemClass resolves MemType.
func (t Tool) MemClass() (memmodel.DeviceClass, error) {
	c, err := memmodel.ClassByCode(t.MemType)
	if err != nil {
		return "", &ConfigValidationError{Key: "memType", Value: t.MemType, Reason: err.Error()}
	}
	return c, nil
}

// Validate checks the settings against the selected target.
func (t Tool) Validate() error {
	tgt, err := t.Target()
	if err != nil {
		return &ConfigValidationError{Key: "mcuDevice", Value: t.MCUDevice, Reason: err.Error()}
	}
	if err = checkCPUSpeed(tgt, t.CPUSpeedMHz); err != nil {
		return err
	}
	if _, err = t.MemClass(); err != nil {
		return err
	}
	if t.MemSpeed <= 0 {
		return &ConfigValidationError{Key: "memSpeed", Value: t.MemSpeed, Reason: "must be positive"}
	}
	if t.Conn != nil && tgt.Connections != nil {
		if _, err = tgt.Connections.Resolve(*t.Conn); err != nil {
			return &ConfigValidationError{Key: "conn", Value: t.Conn.Instance, Reason: err.Error()}
		}
	}
	return nil
}

func checkCPUSpeed(tgt *mcu.Target, mhz int) error {
	if mhz <= 0 {
		return &ConfigValidationError{Key: "cpuSpeedMHz", Value: mhz, Reason: "must be positive"}
	}
	if mhz > tgt.MaxCPUFreqMHz {
		return &ConfigValidationError{
			Key:    "cpuSpeedMHz",
			Value:  mhz,
			Reason: fmt.Sprintf("cpu speed should not be more than max freq %d MHz of %s", tgt.MaxCPUFreqMHz, tgt.Device),
		}
	}
	return nil
}

// ParseSpeedMHz parses clock strings such as "133MHz" or "133".
func ParseSpeedMHz(s string) (int, error) {
	s = strings.TrimSpace(s)
	if i := strings.Index(strings.ToUpper(s), "MHZ"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	mhz, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("settings: bad speed %q: %w", s, err)
	}
	if mhz <= 0 {
		return 0, fmt.Errorf("settings: speed must be positive, got %d", mhz)
	}
	return mhz, nil
}

func decode(data []byte) (Tool, error) {
	t := Defaults()
	if err := json.Unmarshal(data, &t); err != nil {
		return Tool{}, err
	}
	return t, nil
}
