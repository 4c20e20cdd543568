package mcu

// pinOptions assigns select codes in declaration order.
func pinOptions(pins ...string) []PinOption {
	opts := make([]PinOption, len(pins))
	for i, p := range pins {
		opts[i] = PinOption{Pins: p, Code: uint8(i)}
	}
	return opts
}

func instances(perInstance ...[]PinOption) [][]PinOption {
	return perInstance
}

var uartBauds = []int{4800, 9600, 19200, 57600, 115200}

const defaultCommands = 0x5EFDF
