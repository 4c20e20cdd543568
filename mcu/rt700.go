package mcu

func init() {
	Register(&Target{
		Device:        "iMXRT700",
		Order:         2,
		CPU:           "MIMXRT798",
		Board:         "EVK",
		Series:        SeriesIMXRTxxx,
		MaxCPUFreqMHz: 325,

		Peripherals: PeripheralUART | PeripheralUSBHID,
		Commands:    defaultCommands,
		UARTPins:    "LPUART0 - PIO0[31:30]",
		UARTBauds:   uartBauds,

		FirmwareLoadAddr:  0x00080000,
		FirmwareJumpAddr:  0x00080000,
		FirmwareInitialSP: u32(0x20080000),

		DefaultMemoryDevice: "Macronix/OctalSPI/MX25UM51345G",
		FlashBases:          [2]*uint32{u32(0x28000000), u32(0x08000000)},

		FlashRegion: "flash",
		Regions: map[string]MemoryRange{
			"sram":  MustMemoryRange(0x00000000, 0x780000, "state_mem0.dat", false, 0),
			"flash": MustMemoryRange(0x00000000, 0x20000000, "state_flash_mem.dat", true, 0x10000),
		},
		Reserved: map[string]AddressSpan{
			"sram": {Start: 0x20000000, End: 0x20007FFF},
		},

		Connections: ConnectionTable{
			SignalDataL4b: instances(
				pinOptions("PIO6_0~3 - XSPI0_DATA[3:0]"),
				pinOptions("PIO5_10~13 - XSPI1_DATA[3:0]"),
			),
			SignalDataH4b: instances(
				pinOptions(PinNone, "PIO6_4~7 - XSPI0_DATA[7:4]"),
				pinOptions(PinNone, "PIO5_14~17 - XSPI1_DATA[7:4]"),
			),
			SignalDataT8b: instances(
				pinOptions(PinNone),
				pinOptions(PinNone),
			),
			SignalSSB: instances(
				pinOptions("PIO6_9 - XSPI0_SS0_B", "PIO6_10 - XSPI0_SS1_B"),
				pinOptions("PIO5_18 - XSPI1_SS0_B"),
			),
			SignalSCLK: instances(
				pinOptions("PIO6_8 - XSPI0_SCLK"),
				pinOptions("PIO5_19 - XSPI1_SCLK"),
			),
			SignalSCLKN: instances(
				pinOptions(PinNone),
				pinOptions(PinNone),
			),
			SignalDQS0: instances(
				pinOptions(PinNone, "PIO6_11 - XSPI0_DQS"),
				pinOptions(PinNone, "PIO5_20 - XSPI1_DQS"),
			),
			SignalDQS1: instances(
				pinOptions(PinNone),
				pinOptions(PinNone),
			),
			SignalRSTB: instances(
				pinOptions(PinNone, "PIO6_12 - GPIO"),
				pinOptions(PinNone, "PIO5_21 - GPIO"),
			),
		},
	})
}
