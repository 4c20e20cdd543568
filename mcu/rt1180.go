package mcu

func init() {
	Register(&Target{
		Device:        "iMXRT118x",
		Order:         5,
		CPU:           "MIMXRT1189",
		Board:         "EVK",
		Series:        SeriesIMXRT11yy,
		MaxCPUFreqMHz: 800,

		Peripherals: PeripheralUART | PeripheralUSBHID,
		Commands:    defaultCommands,
		UARTPins:    "LPUART1 - GPIO_AON[09:08]",
		UARTBauds:   uartBauds,

		FirmwareLoadAddr: 0x00001e00,
		FirmwareJumpAddr: 0x00001e00,

		DefaultMemoryDevice: "Winbond/QuadSPI/W25Q128JV",
		FlashBases:          [2]*uint32{u32(0x28000000), u32(0x04000000)},

		FlashRegion: "flash",
		Regions: map[string]MemoryRange{
			"itcm":  MustMemoryRange(0x00000000, 0x40000, "state_mem0.dat", false, 0),
			"dtcm":  MustMemoryRange(0x20000000, 0x40000, "state_mem1.dat", false, 0),
			"ocram": MustMemoryRange(0x20480000, 0x100000, "state_mem2.dat", false, 0),
			"flash": MustMemoryRange(0x00000000, 0x20000000, "state_flash_mem.dat", true, 0x10000),
		},
		Reserved: map[string]AddressSpan{
			"ram": {Start: 0x20480000, End: 0x2048FFFF},
		},

		Connections: ConnectionTable{
			SignalDataL4b: instances(
				pinOptions("GPIO_SD_B2[11:08] - FLEXSPI1_A_DATA[3:0]"),
				pinOptions("GPIO_EMC_B1[35:32] - FLEXSPI2_A_DATA[3:0]"),
			),
			SignalDataH4b: instances(
				pinOptions(PinNone, "GPIO_SD_B2[03:00] - FLEXSPI1_A_DATA[7:4]"),
				pinOptions(PinNone, "GPIO_EMC_B1[39:36] - FLEXSPI2_A_DATA[7:4]"),
			),
			SignalDataT8b: instances(
				pinOptions(PinNone),
				pinOptions(PinNone),
			),
			SignalSSB: instances(
				pinOptions("GPIO_SD_B2_06 - FLEXSPI1_A_SS0_B"),
				pinOptions("GPIO_EMC_B1_30 - FLEXSPI2_A_SS0_B"),
			),
			SignalSCLK: instances(
				pinOptions("GPIO_SD_B2_07 - FLEXSPI1_A_SCLK"),
				pinOptions("GPIO_EMC_B1_29 - FLEXSPI2_A_SCLK"),
			),
			SignalSCLKN: instances(
				pinOptions(PinNone),
				pinOptions(PinNone),
			),
			SignalDQS0: instances(
				pinOptions(PinNone, "GPIO_SD_B2_05 - FLEXSPI1_A_DQS"),
				pinOptions(PinNone, "GPIO_EMC_B1_31 - FLEXSPI2_A_DQS"),
			),
			SignalDQS1: instances(
				pinOptions(PinNone),
				pinOptions(PinNone),
			),
			SignalRSTB: instances(
				pinOptions(PinNone, "GPIO_SD_B1_00 - GPIO"),
				pinOptions(PinNone),
			),
		},
	})
}
