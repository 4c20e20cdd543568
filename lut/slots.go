package lut

// Slot is the sequence index the firmware expects an operation at.
type Slot struct {
	Operation string
	Index     int
	Required  bool
}

// NorSlots is the slot convention for QuadSPI, OctalSPI and HyperFlash devices.
var NorSlots = []Slot{
	{"read", 0, true},
	{"readStatus", 1, true},
	{"writeStatus", 2, false},
	{"writeEnable", 3, true},
	{"readId", 4, false},
	{"eraseSector", 5, true},
	{"enterQpi", 6, false},
	{"exitQpi", 7, false},
	{"eraseBlock", 8, false},
	{"pageProgram", 9, true},
	{"chipErase", 11, false},
	{"readSfdp", 13, false},
}

// RamSlots is the slot convention for PSRAM and HyperRAM devices.
var RamSlots = []Slot{
	{"read", 0, true},
	{"write", 1, true},
	{"readReg", 2, false},
	{"writeReg", 3, false},
	{"enterLowPower", 4, true},
	{"exitLowPower", 5, false},
	{"reset", 6, false},
}

func findSlot(slots []Slot, operation string) (Slot, bool) {
	for _, s := range slots {
		if s.Operation == operation {
			return s, true
		}
	}
	return Slot{}, false
}
