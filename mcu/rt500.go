package mcu

func init() {
	Register(&Target{
		Device:        "iMXRT500",
		Order:         0,
		CPU:           "MIMXRT595",
		Board:         "EVK",
		Series:        SeriesIMXRTxxx,
		MaxCPUFreqMHz: 200,

		Peripherals: PeripheralUART | PeripheralUSBHID,
		Commands:    defaultCommands,
		UARTPins:    "Flexcomm0 UART - PIO0[2:1]",
		UARTBauds:   uartBauds,

		FirmwareLoadAddr:  0x00080000,
		FirmwareJumpAddr:  0x00083175,
		FirmwareInitialSP: u32(0x20300000),

		DefaultMemoryDevice: "Macronix/OctalSPI/MX25UM51345G",
		FlashBases:          [2]*uint32{u32(0x08000000), nil},

		FlashRegion: "flash",
		Regions: map[string]MemoryRange{
			"sram":  MustMemoryRange(0x00000000, 0x480000, "state_mem0.dat", false, 0),
			"flash": MustMemoryRange(0x00000000, 0x20000000, "state_flash_mem.dat", true, 0x10000),
		},
		Reserved: map[string]AddressSpan{
			"sram": {Start: 0x20203800, End: 0x20207EF8},
		},

		Connections: ConnectionTable{
			SignalDataL4b: instances(
				pinOptions("PIO1_11~14 - FLEXSPI0A_DATA[3:0]"),
				pinOptions("PIO4_11~14 - FLEXSPI1A_DATA[3:0]"),
			),
			SignalDataH4b: instances(
				pinOptions(PinNone, "PIO2_17~18,22~23 - FLEXSPI0A_DATA[7:4]"),
				pinOptions(PinNone, "PIO4_15~18 - FLEXSPI1A_DATA[7:4]"),
			),
			SignalDataT8b: instances(
				pinOptions(PinNone),
				pinOptions(PinNone),
			),
			SignalSSB: instances(
				pinOptions("PIO1_19 - FLEXSPI0A_SS0_B", "PIO2_19 - FLEXSPI0A_SS1_B"),
				pinOptions("PIO4_19 - FLEXSPI1A_SS0_B"),
			),
			SignalSCLK: instances(
				pinOptions("PIO1_18 - FLEXSPI0A_SCLK"),
				pinOptions("PIO4_10 - FLEXSPI1A_SCLK"),
			),
			SignalSCLKN: instances(
				pinOptions(PinNone),
				pinOptions(PinNone),
			),
			SignalDQS0: instances(
				pinOptions(PinNone, "PIO1_28 - FLEXSPI0A_DQS"),
				pinOptions(PinNone, "PIO4_20 - FLEXSPI1A_DQS"),
			),
			SignalDQS1: instances(
				pinOptions(PinNone),
				pinOptions(PinNone),
			),
			SignalRSTB: instances(
				pinOptions(PinNone, "PIO4_5 - GPIO"),
				pinOptions(PinNone, "PIO4_21 - GPIO"),
			),
		},
	})
}
