package packet

import (
	"encoding/binary"
	"errors"
	"testing"

	"mtu/lut"
	"mtu/mcu"
	"mtu/memmodel"
	"mtu/util"
)

func TestCRC16(t *testing.T) {
	// CRC-16/XMODEM check value
	if got := crc16([]byte("123456789")); got != 0x31C3 {
		t.Fatalf("crc16 = %#04x", got)
	}
}

func TestEncode_Sizes(t *testing.T) {
	tests := []struct {
		cmd  Command
		size int
	}{
		{&PinTest{}, 12},
		{&ConfigSystem{}, 304},
		{&MemRegs{}, 0},
		{&RwTest{}, 8},
		{&PerfTest{}, 8},
		{&StressTest{}, 16},
		{&Stop{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.cmd.ID().String(), func(t *testing.T) {
			frame := Encode(tt.cmd, 7)
			if len(frame) != HeaderSize+tt.size+TrailerSize {
				t.Fatalf("frame is %d bytes", len(frame))
			}
			if CommandID(frame[0]) != tt.cmd.ID() {
				t.Fatal("command id")
			}
			if int(binary.LittleEndian.Uint16(frame[1:])) != tt.size {
				t.Fatal("length field")
			}
			if frame[3] != 7 {
				t.Fatal("sequence")
			}
		})
	}
}

func TestStopFrame(t *testing.T) {
	frame := Encode(&Stop{}, 0)
	want := []byte{0x07, 0x00, 0x00, 0x00}
	crc := crc16(want)
	want = append(want, byte(crc), byte(crc>>8))
	if string(frame) != string(want) {
		t.Fatalf("Encode(Stop) = %s, want %s", FormatHex(frame), FormatHex(want))
	}
}

func TestConfigSystem_RoundTrip(t *testing.T) {
	var table lut.Table
	for i := range table {
		table[i] = uint32(i) * 0x01010101
	}
	in := &ConfigSystem{
		LUT: table,
		Properties: memmodel.Properties{
			SizeKB:          8192,
			PageSize:        256,
			SectorSize:      65536,
			BlockSize:       65536,
			ReadDummyCycles: 6,
			DDR:             true,
			DQSMode:         1,
			ColumnAddrWidth: 3,
			CSHoldTime:      2,
			CSSetupTime:     4,
			DataValidTimeNs: 300,
		},
		Settings: Settings{
			CPUSpeedMHz:    600,
			EnableL1Cache:  true,
			EnablePrefetch: false,
			MemType:        memmodel.QuadSPI.Code(),
			MemSpeedMHz:    133,
		},
		Conn: ConnectionBlock{Instance: 1, Codes: [9]uint8{0, 1, 0, 2, 0, 0, 1, 0, 1}},
	}

	cmd, seq, err := Decode(Encode(in, 42))
	if err != nil {
		t.Fatal(err)
	}
	if seq != 42 {
		t.Fatalf("seq = %d", seq)
	}
	out, ok := cmd.(*ConfigSystem)
	if !ok {
		t.Fatalf("decoded %T", cmd)
	}
	if *out != *in {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", out.Settings, in.Settings)
	}
}

func TestRoundTrip_Commands(t *testing.T) {
	cmds := []Command{
		&PinTest{Conn: ConnectionBlock{Instance: 2, Codes: [9]uint8{1, 2, 3, 4, 5, 6, 7, 8, 9}}},
		&MemRegs{},
		&RwTest{Range{Offset: 0x1000, Length: 0x2000}},
		&PerfTest{Range{Length: 0x100000}},
		&StressTest{Range: Range{Offset: 4, Length: 8}, Pattern: 0xA5A5A5A5, Iterations: 10},
		&Stop{},
	}
	for _, in := range cmds {
		t.Run(in.ID().String(), func(t *testing.T) {
			out, _, err := Decode(Encode(in, 1))
			if err != nil {
				t.Fatal(err)
			}
			if out.ID() != in.ID() {
				t.Fatal("id")
			}
			switch v := in.(type) {
			case *PinTest:
				if *out.(*PinTest) != *v {
					t.Fatal("PinTest mismatch")
				}
			case *RwTest:
				if *out.(*RwTest) != *v {
					t.Fatal("RwTest mismatch")
				}
			case *PerfTest:
				if *out.(*PerfTest) != *v {
					t.Fatal("PerfTest mismatch")
				}
			case *StressTest:
				if *out.(*StressTest) != *v {
					t.Fatal("StressTest mismatch")
				}
			}
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	good := Encode(&RwTest{Range{Offset: 1, Length: 2}}, 3)

	badCRC := append([]byte(nil), good...)
	badCRC[5] ^= 0xFF

	badID := append([]byte(nil), good...)
	badID[0] = 0x55

	badLen := append([]byte(nil), good...)
	badLen[1] = 9

	tests := []struct {
		name  string
		frame []byte
	}{
		{"short", good[:3]},
		{"crc", badCRC},
		{"unknown id", badID},
		{"length", badLen},
		{"truncated", good[:len(good)-1]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode(tt.frame)
			var pde *ProtocolDesyncError
			if !errors.As(err, &pde) {
				t.Fatalf("expected ProtocolDesyncError, got %v", err)
			}
		})
	}
}

func TestDecoder_Resync(t *testing.T) {
	var d Decoder
	stop := Encode(&Stop{}, 1)
	rw := Encode(&RwTest{Range{Length: 16}}, 2)

	// garbage, a split frame, then a corrupted frame followed by a good one
	_, _ = d.Write([]byte{0xFF, 0xEE})
	_, _ = d.Write(stop[:3])

	var frames []Frame
	var desyncs int
	drain := func() {
		for {
			f, ok, err := d.Next()
			if err != nil {
				var pde *ProtocolDesyncError
				if !errors.As(err, &pde) || pde.Skipped == 0 {
					t.Fatalf("unexpected error %v", err)
				}
				desyncs++
				continue
			}
			if !ok {
				return
			}
			frames = append(frames, f)
		}
	}
	drain()
	_, _ = d.Write(stop[3:])
	drain()

	corrupt := append([]byte(nil), rw...)
	corrupt[len(corrupt)-1] ^= 0x01
	_, _ = d.Write(corrupt)
	_, _ = d.Write(rw)
	drain()

	if len(frames) != 2 {
		t.Fatalf("decoded %d frames", len(frames))
	}
	if frames[0].Command.ID() != CmdStop || frames[0].Seq != 1 {
		t.Fatalf("first frame %+v", frames[0])
	}
	if frames[1].Command.ID() != CmdRwTest || frames[1].Seq != 2 {
		t.Fatalf("second frame %+v", frames[1])
	}
	if desyncs < 2 {
		t.Fatalf("expected desync reports, got %d", desyncs)
	}
	if d.Buffered() != 0 {
		t.Fatalf("%d bytes left", d.Buffered())
	}
}

func TestPing(t *testing.T) {
	if FormatHex(PingRequest()) != "0x5a, 0xa6" {
		t.Fatal(FormatHex(PingRequest()))
	}
	in := PingResponse{Major: 2, Minor: 1, Bugfix: 0, Name: 'P', Options: 0x0102}
	out, err := ParsePingResponse(in.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Fatalf("got %v", out)
	}
	b := in.Encode()
	b[9] ^= 0xFF
	if _, err = ParsePingResponse(b); err == nil {
		t.Fatal("expected crc error")
	}
}

// iMXRT1062 with a 256B page / 64KB sector QuadSPI NOR, 600 MHz, L1 cache on, prefetch off.
func TestScenario_RT1062ConfigSystem(t *testing.T) {
	tgt, err := mcu.Lookup("iMXRT106x")
	if err != nil {
		t.Fatal(err)
	}
	if tgt.MaxCPUFreqMHz != 600 || tgt.FirmwareLoadAddr != 0x00001e00 {
		t.Fatal("unexpected RT1062 descriptor")
	}

	lib := memmodel.NewLibrary(util.NewTestingLogger(t), memmodel.Builtin())
	model, err := lib.LoadPath(tgt.DefaultMemoryDevice)
	if err != nil {
		t.Fatal(err)
	}
	if model.Properties.PageSize != 256 || model.Properties.SectorSize != 64*1024 {
		t.Fatalf("unexpected model geometry %+v", model.Properties)
	}
	table, err := lut.Generate(model)
	if err != nil {
		t.Fatal(err)
	}

	frame := Encode(&ConfigSystem{
		LUT:        table,
		Properties: model.Properties,
		Settings: Settings{
			CPUSpeedMHz:    600,
			EnableL1Cache:  true,
			EnablePrefetch: false,
			MemType:        model.DeviceClass.Code(),
			MemSpeedMHz:    133,
		},
		Conn: NewConnectionBlock(tgt.Connections.DefaultSelection()),
	}, 0)

	if CommandID(frame[0]) != CmdConfigSystem {
		t.Fatalf("command id 0x%02x", frame[0])
	}

	payload := frame[HeaderSize:]
	var embedded lut.Table
	for i := range embedded {
		embedded[i] = binary.LittleEndian.Uint32(payload[i*4:])
	}
	for _, s := range lut.NorSlots {
		if s.Required && embedded.IsEmpty(s.Index) {
			t.Errorf("required slot %s is STOP-only", s.Operation)
		}
	}

	settings := payload[lut.WordCount*4+propertiesBlockSize:]
	if binary.LittleEndian.Uint32(settings) != 600 || settings[4] != 1 || settings[5] != 0 {
		t.Fatalf("settings block % x", settings[:settingsBlockSize])
	}
}
