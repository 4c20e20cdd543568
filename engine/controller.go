package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"mtu/mcu"
	"mtu/packet"
	"mtu/session"
	"mtu/transport"
)

// Session returns the current session or nil when not connected.
func (vm *ViewModel) Session() *session.Session {
	vm.sessMu.Lock()
	defer vm.sessMu.Unlock()
	return vm.sess
}

func (vm *ViewModel) IsConnected() bool {
	s := vm.Session()
	return s != nil && s.State() != session.Disconnected
}

func (vm *ViewModel) IsConnectedTo(desc transport.DeviceDescriptor) bool {
	s := vm.Session()
	if s == nil || s.State() == session.Disconnected {
		return false
	}
	d := s.Device()
	return d.Driver == desc.Driver && d.Port == desc.Port
}

// selectedTarget resolves the target chosen in the settings.
func (vm *ViewModel) selectedTarget() (*mcu.Target, error) {
	return vm.store.Get().Target()
}

// DeviceConnected opens a session to desc, replacing any existing session.
func (vm *ViewModel) DeviceConnected(ctx context.Context, desc transport.DeviceDescriptor) error {
	defer func() {
		vm.UpdateAndNotifyView()
		_ = vm.SaveConfiguration()
	}()

	if vm.IsConnectedTo(desc) {
		// no change
		return nil
	}
	if err := vm.DeviceDisconnected(); err != nil {
		vm.log.Warn("viewmodel: deviceConnected: close previous session", zap.Error(err))
	}

	tgt, err := vm.selectedTarget()
	if err != nil {
		vm.setStatus(Classify(err).String())
		return err
	}

	tool := vm.store.Get()
	cfg := session.Config{
		Target:          tgt,
		Device:          desc,
		Open:            vm.open,
		ProbeBootloader: bool(tool.LoadFwEn),
		ShowPackets:     bool(tool.CmdPacketShowEn),
		Log:             vm.log.Named("session"),
	}
	s := session.New(cfg)
	events, cancel := s.Subscribe()

	vm.setStatus(fmt.Sprintf("Connecting to %s on %s...", tgt.Device, desc))
	vm.log.Info("viewmodel: deviceConnected: open", zap.String("driver", desc.Driver), zap.String("port", desc.Port))

	done := make(chan struct{})
	go vm.pumpEvents(events, done)

	if err = s.Connect(ctx); err != nil {
		cancel()
		<-done
		vm.setStatus(Classify(err).String())
		return err
	}

	vm.sessMu.Lock()
	vm.sess = s
	vm.cancelEvents = cancel
	vm.eventsDone = done
	vm.sessMu.Unlock()

	if v, ok := s.Version(); ok {
		vm.setStatus(fmt.Sprintf("Connected to %s (ROM %s)", tgt.Device, v))
	} else {
		vm.setStatus(fmt.Sprintf("Connected to %s", tgt.Device))
	}
	return nil
}

// DeviceDisconnected ends the current session, if any.
func (vm *ViewModel) DeviceDisconnected() error {
	vm.sessMu.Lock()
	s, cancel, done := vm.sess, vm.cancelEvents, vm.eventsDone
	vm.sess, vm.cancelEvents, vm.eventsDone = nil, nil, nil
	vm.sessMu.Unlock()

	if s == nil {
		return nil
	}

	defer vm.UpdateAndNotifyView()

	vm.log.Info("viewmodel: deviceDisconnected: closing", zap.Stringer("device", s.Device()))
	err := s.Disconnect()
	cancel()
	<-done

	vm.setStatus("Disconnected")
	return err
}

// RunTest sends cmd on the current session.
func (vm *ViewModel) RunTest(ctx context.Context, cmd packet.Command) error {
	defer vm.UpdateAndNotifyView()

	s := vm.Session()
	if s == nil {
		err := &session.StateError{Op: "run " + cmd.ID().String(), State: session.Disconnected}
		vm.setStatus(Classify(err).String())
		return err
	}

	if err := s.Run(ctx, cmd); err != nil {
		vm.setStatus(Classify(err).String())
		return err
	}
	if cmd.IsTest() {
		vm.setStatus(fmt.Sprintf("Running %s", cmd.ID()))
	} else {
		vm.setStatus("Test stopped")
	}
	return nil
}

func (vm *ViewModel) StopTest() error {
	defer vm.UpdateAndNotifyView()

	s := vm.Session()
	if s == nil {
		return nil
	}
	if err := s.Stop(); err != nil {
		vm.setStatus(Classify(err).String())
		return err
	}
	vm.setStatus("Test stopped")
	return nil
}

func (vm *ViewModel) CompleteTest() {
	defer vm.UpdateAndNotifyView()

	if s := vm.Session(); s != nil {
		s.Complete()
	}
}

// pumpEvents forwards session events into the test view model until the
// subscription is cancelled. must run in a goroutine.
func (vm *ViewModel) pumpEvents(events <-chan session.Event, done chan<- struct{}) {
	defer close(done)

	for ev := range events {
		if ev.Kind == session.EventError {
			vm.setStatus(Classify(ev.Err).String())
		}

		if vm.testViewModel.apply(ev) {
			vm.NotifyViewOf("test", vm.testViewModel)
		}
		if ev.Kind == session.EventStateChanged {
			vm.deviceViewModel.Update()
			vm.NotifyViewOf("device", vm.deviceViewModel)
		}
	}
}
