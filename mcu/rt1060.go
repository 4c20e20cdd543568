package mcu

func init() {
	Register(&Target{
		Device:        "iMXRT106x",
		Order:         3,
		CPU:           "MIMXRT1062",
		Board:         "EVK",
		Series:        SeriesIMXRT10yy,
		MaxCPUFreqMHz: 600,

		Peripherals: PeripheralUART | PeripheralUSBHID,
		Commands:    defaultCommands,
		UARTPins:    "LPUART1 - GPIO_AD_B0[13:12]",
		UARTBauds:   uartBauds,

		FirmwareLoadAddr: 0x00001e00,
		FirmwareJumpAddr: 0x00001e00,

		DefaultMemoryDevice: "ISSI/QuadSPI/IS25LP064A",
		FlashBases:          [2]*uint32{u32(0x60000000), nil},

		FlashRegion: "flash",
		Regions: map[string]MemoryRange{
			"itcm":  MustMemoryRange(0x00000000, 0x80000, "state_mem0.dat", false, 0),
			"dtcm":  MustMemoryRange(0x20000000, 0x80000, "state_mem1.dat", false, 0),
			"ocram": MustMemoryRange(0x20200000, 0x100000, "state_mem2.dat", false, 0),
			"flash": MustMemoryRange(0x00000000, 0x20000000, "state_flash_mem.dat", true, 0x10000),
		},
		Reserved: map[string]AddressSpan{
			"ram": {Start: 0x20200000, End: 0x20207FFF},
		},

		Connections: ConnectionTable{
			SignalDataL4b: instances(
				pinOptions("GPIO_SD_B1[11:08] - FLEXSPIA_DATA[3:0]", "GPIO_SD_B1[03:00] - FLEXSPIB_DATA[3:0]"),
			),
			SignalDataH4b: instances(
				pinOptions(PinNone, "GPIO_SD_B1[03:00] - FLEXSPIA_DATA[7:4]"),
			),
			SignalDataT8b: instances(
				pinOptions(PinNone),
			),
			SignalSSB: instances(
				pinOptions("GPIO_SD_B1_06 - FLEXSPIA_SS0_B", "GPIO_SD_B0_00 - FLEXSPIA_SS1_B", "GPIO_SD_B1_04 - FLEXSPIB_SS0_B"),
			),
			SignalSCLK: instances(
				pinOptions("GPIO_SD_B1_07 - FLEXSPIA_SCLK", "GPIO_SD_B1_04 - FLEXSPIB_SCLK"),
			),
			SignalSCLKN: instances(
				pinOptions(PinNone, "GPIO_SD_B1_04 - FLEXSPIB_SCLK"),
			),
			SignalDQS0: instances(
				pinOptions(PinNone, "GPIO_SD_B1_05 - FLEXSPIA_DQS"),
			),
			SignalDQS1: instances(
				pinOptions(PinNone, "GPIO_SD_B0_05 - FLEXSPIB_DQS"),
			),
			SignalRSTB: instances(
				pinOptions(PinNone, "GPIO_AD_B1_09 - GPIO"),
			),
		},
	})
}
