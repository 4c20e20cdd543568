package mcu

func init() {
	Register(&Target{
		Device:        "iMXRT600",
		Order:         1,
		CPU:           "MIMXRT685",
		Board:         "EVK",
		Series:        SeriesIMXRTxxx,
		MaxCPUFreqMHz: 300,

		Peripherals: PeripheralUART | PeripheralUSBHID,
		Commands:    defaultCommands,
		UARTPins:    "Flexcomm0 UART - PIO0[2:1]",
		UARTBauds:   uartBauds,

		FirmwareLoadAddr:  0x00080000,
		FirmwareJumpAddr:  0x00083175,
		FirmwareInitialSP: u32(0x20200000),

		DefaultMemoryDevice: "Macronix/OctalSPI/MX25UM51345G",
		FlashBases:          [2]*uint32{u32(0x08000000), nil},

		FlashRegion: "flash",
		Regions: map[string]MemoryRange{
			"sram":  MustMemoryRange(0x00000000, 0x480000, "state_mem0.dat", false, 0),
			"flash": MustMemoryRange(0x00000000, 0x20000000, "state_flash_mem.dat", true, 0x10000),
		},
		Reserved: map[string]AddressSpan{
			"sram": {Start: 0x20103800, End: 0x20107EF8},
		},

		Connections: ConnectionTable{
			SignalDataL4b: instances(
				pinOptions("PIO1_20~23 - FLEXSPI_A_DATA[3:0]"),
			),
			SignalDataH4b: instances(
				pinOptions(PinNone, "PIO1_24~27 - FLEXSPI_A_DATA[7:4]"),
			),
			SignalDataT8b: instances(
				pinOptions(PinNone, "PIO1_11~14,PIO2_17~18,22~23 - FLEXSPI_B_DATA[7:0]"),
			),
			SignalSSB: instances(
				pinOptions("PIO1_19 - FLEXSPI_A_SS0_B", "PIO2_19 - FLEXSPI_B_SS0_B"),
			),
			SignalSCLK: instances(
				pinOptions("PIO1_18 - FLEXSPI_A_SCLK", "PIO1_29 - FLEXSPI_B_SCLK"),
			),
			SignalSCLKN: instances(
				pinOptions(PinNone),
			),
			SignalDQS0: instances(
				pinOptions(PinNone, "PIO1_28 - FLEXSPI_A_DQS"),
			),
			SignalDQS1: instances(
				pinOptions(PinNone, "PIO2_21 - FLEXSPI_B_DQS"),
			),
			SignalRSTB: instances(
				pinOptions(PinNone, "PIO2_12 - GPIO"),
			),
		},
	})
}
