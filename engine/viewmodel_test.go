package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"mtu/interfaces"
	"mtu/lut"
	"mtu/memmodel"
	"mtu/packet"
	"mtu/session"
	"mtu/settings"
	"mtu/transport"
	"mtu/transport/mock"
	"mtu/util"
)

var (
	_ interfaces.Initializable = (*DeviceViewModel)(nil)
	_ interfaces.Updateable    = (*DeviceViewModel)(nil)
	_ interfaces.Updateable    = (*TargetViewModel)(nil)
	_ interfaces.Updateable    = (*MemoryViewModel)(nil)
	_ interfaces.Updateable    = (*TestViewModel)(nil)
	_ interfaces.Dirtyable     = (*DeviceViewModel)(nil)
	_ interfaces.Dirtyable     = (*TargetViewModel)(nil)
	_ interfaces.Dirtyable     = (*MemoryViewModel)(nil)
	_ interfaces.Dirtyable     = (*TestViewModel)(nil)
)

type recordingNotifier struct {
	mu    sync.Mutex
	views map[string]interface{}
}

func (n *recordingNotifier) NotifyView(view string, viewModel interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.views == nil {
		n.views = make(map[string]interface{})
	}
	n.views[view] = viewModel
}

func (n *recordingNotifier) get(view string) interface{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.views[view]
}

type testVM struct {
	vm    *ViewModel
	store *settings.Store

	mu sync.Mutex
	fw *mock.Firmware
}

func (f *testVM) firmware() *mock.Firmware {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fw
}

func newTestVM(t *testing.T) *testVM {
	t.Helper()
	log := util.NewTestingLogger(t)

	f := &testVM{store: settings.NewStore(filepath.Join(t.TempDir(), settings.FileName), log)}
	f.vm = NewViewModel(f.store, memmodel.NewLibrary(log, memmodel.Builtin()), log)
	f.vm.ProvidePortOpener(func(desc transport.DeviceDescriptor) (transport.Port, error) {
		fw := mock.NewFirmware(log)
		fw.Silent = desc.Port == mock.PortSilent
		f.mu.Lock()
		f.fw = fw
		f.mu.Unlock()
		return mock.NewPort(fw, log), nil
	})
	f.vm.Init()
	t.Cleanup(func() { _ = f.vm.Close() })
	return f
}

func (f *testVM) exec(t *testing.T, view, command, args string) error {
	t.Helper()
	ce, err := f.vm.CommandFor(view, command)
	if err != nil {
		t.Fatal(err)
	}

	a := ce.CreateArgs()
	if a != nil && args != "" {
		if err = json.Unmarshal([]byte(args), a); err != nil {
			t.Fatal(err)
		}
	}
	return ce.Execute(context.Background(), a)
}

func (f *testVM) mustExec(t *testing.T, view, command, args string) {
	t.Helper()
	if err := f.exec(t, view, command, args); err != nil {
		t.Fatalf("%s.%s: %v", view, command, err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestViewModel_Views(t *testing.T) {
	f := newTestVM(t)

	for _, view := range []string{"status", "device", "target", "memory", "test"} {
		if _, ok := f.vm.GetViewModel(view); !ok {
			t.Errorf("view %s missing", view)
		}
	}
	if _, err := f.vm.CommandFor("nope", "connect"); err == nil {
		t.Error("expected error for unknown view")
	}
	if _, err := f.vm.CommandFor("device", "nope"); err == nil {
		t.Error("expected error for unknown command")
	}
}

func TestViewModel_NotifyViewTo(t *testing.T) {
	f := newTestVM(t)

	n := &recordingNotifier{}
	f.vm.NotifyViewTo(n)

	dv, ok := n.get("device").(DeviceView)
	if !ok {
		t.Fatalf("device view = %T", n.get("device"))
	}
	found := false
	for _, d := range dv.Drivers {
		if d.Name == "mock" {
			found = len(d.Devices) == 2
		}
	}
	if !found {
		t.Fatalf("mock driver devices not listed: %+v", dv.Drivers)
	}
	if _, ok = n.get("target").(TargetView); !ok {
		t.Fatalf("target view = %T", n.get("target"))
	}
}

func TestViewModel_NotifyViewToAll(t *testing.T) {
	f := newTestVM(t)

	a, b := &recordingNotifier{}, &recordingNotifier{}
	f.vm.NotifyViewTo(interfaces.ViewNotifiers{a, b})

	for _, view := range []string{"device", "target", "memory", "test"} {
		if a.get(view) == nil || b.get(view) == nil {
			t.Errorf("view %q not sent to every notifier", view)
		}
	}
}

func TestDevice_ConnectDisconnect(t *testing.T) {
	f := newTestVM(t)

	f.mustExec(t, "device", "connect", `{"driver":"mock","port":"firmware"}`)
	if !f.vm.IsConnected() {
		t.Fatal("not connected")
	}
	if s := f.vm.Status(); !strings.HasPrefix(s, "Connected to iMXRT500") {
		t.Fatalf("status = %q", s)
	}
	if f.firmware().Pings() == 0 {
		t.Fatal("bootloader was not probed")
	}

	dv := f.vm.deviceViewModel.ViewModel().(DeviceView)
	if !dv.IsConnected || dv.State != session.Connected {
		t.Fatalf("device view = %+v", dv)
	}
	if dv.RomVersion == "" {
		t.Fatal("rom version missing")
	}

	// the endpoint is remembered:
	if d := f.store.Get().Device; d == nil || d.Port != mock.PortDefault {
		t.Fatalf("stored device = %+v", d)
	}

	f.mustExec(t, "device", "disconnect", "")
	if f.vm.IsConnected() {
		t.Fatal("still connected")
	}
	if !f.firmware().Closed() {
		t.Fatal("port not closed")
	}
}

func TestDevice_ConnectUnknownDriver(t *testing.T) {
	f := newTestVM(t)

	if err := f.exec(t, "device", "connect", `{"driver":"nope","port":"x"}`); err == nil {
		t.Fatal("expected error")
	}
}

func TestDevice_ConnectUnsupportedBaud(t *testing.T) {
	f := newTestVM(t)

	err := f.exec(t, "device", "connect", `{"driver":"mock","port":"firmware","baud":250000}`)
	var cerr *settings.ConfigValidationError
	if !errors.As(err, &cerr) || cerr.Key != "baud" {
		t.Fatalf("connect error = %v, want baud ConfigValidationError", err)
	}
	if f.vm.IsConnected() {
		t.Fatal("connected at an unsupported baud")
	}
	if f.firmware() != nil {
		t.Fatal("port was opened")
	}
	if s := f.vm.Status(); !strings.HasPrefix(s, "invalid configuration: baud=250000") {
		t.Fatalf("status = %q", s)
	}
}

func TestTarget_CPUSpeedBoundary(t *testing.T) {
	f := newTestVM(t)

	f.mustExec(t, "target", "select", `{"device":"iMXRT106x"}`)
	tv := f.vm.targetViewModel.ViewModel().(TargetView)
	if tv.Selected != "iMXRT106x" || tv.CPUSpeedMHz != 600 {
		t.Fatalf("target view = %+v", tv)
	}

	f.mustExec(t, "target", "setCpuSpeed", `{"mhz":528}`)
	if got := f.store.Get().CPUSpeedMHz; got != 528 {
		t.Fatalf("cpu speed = %d", got)
	}

	err := f.exec(t, "target", "setCpuSpeed", `{"mhz":601}`)
	var cve *settings.ConfigValidationError
	if !errors.As(err, &cve) {
		t.Fatalf("expected ConfigValidationError, got %v", err)
	}
	if got := f.store.Get().CPUSpeedMHz; got != 528 {
		t.Fatalf("cpu speed changed to %d", got)
	}
	if s := f.vm.Status(); !strings.HasPrefix(s, "invalid configuration") {
		t.Fatalf("status = %q", s)
	}
}

func TestTarget_Connection(t *testing.T) {
	f := newTestVM(t)

	f.mustExec(t, "target", "select", `{"device":"iMXRT106x"}`)
	tv := f.vm.targetViewModel.ViewModel().(TargetView)
	if tv.Connection.Error != "" || len(tv.Connection.Pins) == 0 {
		t.Fatalf("connection view = %+v", tv.Connection)
	}

	if err := f.exec(t, "target", "setConnection", `{"instance":99}`); err == nil {
		t.Fatal("expected error for bad instance")
	}
	if c := f.store.Get().Conn; c == nil || c.Instance != 1 {
		t.Fatalf("stored connection = %+v", c)
	}
}

func TestTarget_SelectWhileConnected(t *testing.T) {
	f := newTestVM(t)

	f.mustExec(t, "device", "connect", `{"driver":"mock","port":"firmware"}`)
	if err := f.exec(t, "target", "select", `{"device":"iMXRT106x"}`); err == nil {
		t.Fatal("expected error")
	}
}

func TestMemory_SelectCascade(t *testing.T) {
	f := newTestVM(t)

	f.mustExec(t, "memory", "select", `{"vendor":"ISSI","class":"QuadSPI","chip":"IS25LP064A"}`)
	mv := f.vm.memoryViewModel.ViewModel().(MemoryView)
	if mv.Error != nil {
		t.Fatalf("error = %+v", mv.Error)
	}
	if len(mv.LUT) != lut.WordCount {
		t.Fatalf("lut words = %d, want %d", len(mv.LUT), lut.WordCount)
	}
	if mv.Properties == nil || len(mv.Operations) == 0 {
		t.Fatalf("memory view = %+v", mv)
	}

	tool := f.store.Get()
	if tool.MemChip != "ISSI/QuadSPI/IS25LP064A" || tool.MemType != memmodel.QuadSPI.Code() {
		t.Fatalf("stored chip = %s type %d", tool.MemChip, tool.MemType)
	}

	// a vendor change drops a class the vendor does not offer:
	f.mustExec(t, "memory", "select", `{"vendor":"Macronix","class":"HyperRAM","chip":"IS66WVH8M8"}`)
	mv = f.vm.memoryViewModel.ViewModel().(MemoryView)
	if mv.Class != "OctalSPI" || mv.Chip != "" {
		t.Fatalf("cascade = %s/%s/%s", mv.Vendor, mv.Class, mv.Chip)
	}
	if f.store.Get().MemChip != "ISSI/QuadSPI/IS25LP064A" {
		t.Fatal("incomplete selection was persisted")
	}
}

func TestMemory_SetSpeed(t *testing.T) {
	f := newTestVM(t)

	f.mustExec(t, "memory", "setSpeed", `{"speed":"133MHz"}`)
	if got := f.store.Get().MemSpeed; got != 133 {
		t.Fatalf("mem speed = %d", got)
	}
	if err := f.exec(t, "memory", "setSpeed", `{"speed":"fast"}`); err == nil {
		t.Fatal("expected error")
	}
	if got := f.store.Get().MemSpeed; got != 133 {
		t.Fatalf("mem speed changed to %d", got)
	}
}

func TestTest_ConfigSystemAndStop(t *testing.T) {
	f := newTestVM(t)

	f.mustExec(t, "target", "select", `{"device":"iMXRT106x"}`)
	f.mustExec(t, "memory", "select", `{"vendor":"ISSI","class":"QuadSPI","chip":"IS25LP064A"}`)
	f.mustExec(t, "memory", "setSpeed", `{"speed":"133"}`)
	f.mustExec(t, "device", "connect", `{"driver":"mock","port":"firmware"}`)

	f.mustExec(t, "test", "configSystem", "")
	fw := f.firmware()
	waitFor(t, "ConfigSystem frame", func() bool { return len(fw.Frames()) == 1 })

	cs, ok := fw.Frames()[0].Command.(*packet.ConfigSystem)
	if !ok {
		t.Fatalf("frame = %T", fw.Frames()[0].Command)
	}
	if cs.Settings.CPUSpeedMHz != 600 || cs.Settings.MemSpeedMHz != 133 || cs.Settings.MemType != memmodel.QuadSPI.Code() {
		t.Fatalf("settings = %+v", cs.Settings)
	}

	waitFor(t, "configuration log line", func() bool {
		tv := f.vm.testViewModel.ViewModel().(TestView)
		for _, l := range tv.Lines {
			if strings.Contains(l, "System configured") {
				return true
			}
		}
		return false
	})

	waitFor(t, "running state", func() bool {
		tv := f.vm.testViewModel.ViewModel().(TestView)
		return tv.State == session.TestRunning && tv.Running == "ConfigSystem"
	})

	f.mustExec(t, "test", "stop", "")
	f.mustExec(t, "test", "stop", "")
	waitFor(t, "Stop frame", func() bool { return len(fw.Frames()) == 2 })
	if id := fw.Frames()[1].Command.ID(); id != packet.CmdStop {
		t.Fatalf("second frame = %v", id)
	}
}

func TestTest_RangeTests(t *testing.T) {
	f := newTestVM(t)
	f.mustExec(t, "device", "connect", `{"driver":"mock","port":"firmware"}`)

	f.mustExec(t, "test", "rwTest", `{"offset":4096,"length":256}`)
	f.mustExec(t, "test", "stressTest", `{"offset":0,"length":16,"pattern":305419896,"iterations":3}`)

	fw := f.firmware()
	waitFor(t, "frames", func() bool { return len(fw.Frames()) == 3 })

	want := []packet.CommandID{packet.CmdRwTest, packet.CmdStop, packet.CmdStressTest}
	for i, fr := range fw.Frames() {
		if fr.Command.ID() != want[i] {
			t.Fatalf("frame %d = %v, want %v", i, fr.Command.ID(), want[i])
		}
	}
	rw := fw.Frames()[0].Command.(*packet.RwTest)
	if rw.Offset != 4096 || rw.Length != 256 {
		t.Fatalf("rw range = %+v", rw.Range)
	}
	st := fw.Frames()[2].Command.(*packet.StressTest)
	if st.Pattern != 0x12345678 || st.Iterations != 3 {
		t.Fatalf("stress test = %+v", st)
	}

	f.mustExec(t, "test", "complete", "")
	if s := f.vm.Session(); s.State() != session.Connected {
		t.Fatalf("state = %s", s.State())
	}
}

func TestTest_NotConnected(t *testing.T) {
	f := newTestVM(t)

	err := f.exec(t, "test", "memRegs", "")
	var se *session.StateError
	if !errors.As(err, &se) {
		t.Fatalf("expected StateError, got %v", err)
	}
}

func TestTest_PinTestWaveform(t *testing.T) {
	f := newTestVM(t)
	f.mustExec(t, "device", "connect", `{"driver":"mock","port":"firmware"}`)
	f.mustExec(t, "test", "pinTest", "")

	waitFor(t, "waveform", func() bool {
		return f.vm.testViewModel.ViewModel().(TestView).Frames > 0
	})
	tv := f.vm.testViewModel.ViewModel().(TestView)
	if tv.Waveform[0] != mock.Samples()[0] {
		t.Fatalf("waveform[0] = %#x", tv.Waveform[0])
	}

	f.mustExec(t, "test", "clear", "")
	tv = f.vm.testViewModel.ViewModel().(TestView)
	if len(tv.Lines) != 0 || tv.Frames != 0 {
		t.Fatalf("not cleared: %+v", tv)
	}
}

func TestTest_SetOptions(t *testing.T) {
	f := newTestVM(t)

	f.mustExec(t, "test", "setOptions", `{"showPackets":true,"loadFirmware":false}`)
	tool := f.store.Get()
	if !tool.CmdPacketShowEn || tool.LoadFwEn {
		t.Fatalf("options = show %v load %v", tool.CmdPacketShowEn, tool.LoadFwEn)
	}

	// the next session echoes packets and skips the probe:
	f.mustExec(t, "device", "connect", `{"driver":"mock","port":"firmware"}`)
	if n := f.firmware().Pings(); n != 0 {
		t.Fatalf("pings = %d", n)
	}
	f.mustExec(t, "test", "memRegs", "")
	waitFor(t, "packet echo", func() bool {
		tv := f.vm.testViewModel.ViewModel().(TestView)
		return len(tv.Packets) == 1 && strings.HasPrefix(tv.Packets[0], "Cmd Packet ->: ")
	})
}

func TestViewModel_LoadConfiguration(t *testing.T) {
	log := util.NewTestingLogger(t)
	path := filepath.Join(t.TempDir(), settings.FileName)

	store := settings.NewStore(path, log)
	if err := store.SetTarget("iMXRT117x"); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(); err != nil {
		t.Fatal(err)
	}

	vm := NewViewModel(settings.NewStore(path, log), memmodel.NewLibrary(log, memmodel.Builtin()), log)
	vm.Init()
	defer vm.Close()

	tv := vm.targetViewModel.ViewModel().(TargetView)
	if tv.Selected != "iMXRT117x" || tv.CPUSpeedMHz != 1000 {
		t.Fatalf("target view = %s @ %d", tv.Selected, tv.CPUSpeedMHz)
	}
	if vm.IsConnected() {
		t.Fatal("loading settings must not connect")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		kind   string
		remedy string
	}{
		{
			name:   "connection",
			err:    fmt.Errorf("connect: %w", &session.ConnectionError{Device: "iMXRT106x", Port: "COM3", Attempts: 5, Remedy: "set BMOD", Err: errors.New("timeout")}),
			kind:   "connection failed",
			remedy: "set BMOD",
		},
		{
			name: "config",
			err:  &settings.ConfigValidationError{Key: "cpuSpeedMHz", Value: 601, Reason: "too fast"},
			kind: "invalid configuration",
		},
		{
			name:   "incomplete",
			err:    &lut.IncompleteModelError{Chip: "X", Class: memmodel.QuadSPI, Operation: "Read"},
			kind:   "incomplete memory model",
			remedy: "Add the 'Read' sequence to the chip model.",
		},
		{
			name: "overflow",
			err:  &lut.LutOverflowError{Operation: "Read", Instructions: 9, Budget: 8},
			kind: "LUT sequence overflow",
		},
		{
			name: "desync",
			err:  &packet.ProtocolDesyncError{Reason: "bad crc"},
			kind: "protocol desync",
		},
		{
			name: "state",
			err:  &session.StateError{Op: "run", State: session.Disconnected},
			kind: "invalid session state",
		},
		{
			name: "plain",
			err:  errors.New("boom"),
			kind: "error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.err)
			if c.Kind != tt.kind {
				t.Errorf("kind = %q, want %q", c.Kind, tt.kind)
			}
			if tt.remedy != "" && c.Remedy != tt.remedy {
				t.Errorf("remedy = %q, want %q", c.Remedy, tt.remedy)
			}
			if !strings.HasPrefix(c.String(), tt.kind+": ") {
				t.Errorf("string = %q", c.String())
			}
		})
	}

	if c := Classify(nil); c.Kind != "" {
		t.Errorf("nil classified as %+v", c)
	}
}
