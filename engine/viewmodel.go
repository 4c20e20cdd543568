package engine

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"mtu/interfaces"
	"mtu/memmodel"
	"mtu/session"
	"mtu/settings"
	"mtu/transport"
)

type ViewModel struct {
	log *zap.Logger

	store   *settings.Store
	library *memmodel.Library

	// open overrides transport.Open for new sessions.
	open func(desc transport.DeviceDescriptor) (transport.Port, error)

	// state:
	sessMu       sync.Mutex
	sess         *session.Session
	cancelEvents func()
	eventsDone   chan struct{}

	isLoadingConfig bool
	closed          chan struct{}

	// dependency that notifies view of updated view model:
	viewNotifier interfaces.ViewNotifier

	// View Models:
	viewModels     map[string]interface{}
	viewModelsLock sync.Mutex

	deviceViewModel *DeviceViewModel
	targetViewModel *TargetViewModel
	memoryViewModel *MemoryViewModel
	testViewModel   *TestViewModel
}

// NewViewModel creates the root view model. store and library are required.
func NewViewModel(store *settings.Store, library *memmodel.Library, log *zap.Logger) *ViewModel {
	if log == nil {
		log = zap.NewNop()
	}
	vm := &ViewModel{
		log:     log,
		store:   store,
		library: library,
		closed:  make(chan struct{}),
	}

	// instantiate each child view model:
	vm.deviceViewModel = NewDeviceViewModel(vm)
	vm.targetViewModel = NewTargetViewModel(vm)
	vm.memoryViewModel = NewMemoryViewModel(vm)
	vm.testViewModel = NewTestViewModel(vm)

	// assign unique names to each view for easy binding with html/js UI:
	vm.viewModels = map[string]interface{}{
		"status": "Not connected",
		"device": vm.deviceViewModel,
		"target": vm.targetViewModel,
		"memory": vm.memoryViewModel,
		"test":   vm.testViewModel,
	}

	return vm
}

// ProvidePortOpener makes new sessions open ports with open instead of the
// registered transport drivers.
func (vm *ViewModel) ProvidePortOpener(open func(desc transport.DeviceDescriptor) (transport.Port, error)) {
	vm.open = open
}

func (vm *ViewModel) Settings() *settings.Store { return vm.store }

func (vm *ViewModel) Library() *memmodel.Library { return vm.library }

func (vm *ViewModel) GetViewModel(view string) (interface{}, bool) {
	defer vm.viewModelsLock.Unlock()
	vm.viewModelsLock.Lock()

	viewModel, ok := vm.viewModels[view]
	if viewModeler, isModeler := viewModel.(interfaces.ViewModeler); isModeler {
		viewModel = viewModeler.ViewModel()
	}
	return viewModel, ok
}

// Views returns the names of all views.
func (vm *ViewModel) Views() []string {
	defer vm.viewModelsLock.Unlock()
	vm.viewModelsLock.Lock()

	views := make([]string, 0, len(vm.viewModels))
	for view := range vm.viewModels {
		views = append(views, view)
	}
	return views
}

func (vm *ViewModel) NotifyView(view string, model interface{}) {
	// allow model to customize the instance sent to the view:
	viewModel := model
	if viewModeler, ok := model.(interfaces.ViewModeler); ok {
		viewModel = viewModeler.ViewModel()
	}

	vm.viewModelsLock.Lock()
	if _, isModeler := vm.viewModels[view].(interfaces.ViewModeler); !isModeler {
		// plain values are cached for new websocket connections:
		vm.viewModels[view] = viewModel
	}
	vn := vm.viewNotifier
	vm.viewModelsLock.Unlock()

	// notify downstream if applicable:
	if vn == nil {
		return
	}
	vn.NotifyView(view, viewModel)
}

// initializes all view models:
func (vm *ViewModel) Init() {
	for _, model := range vm.models() {
		if i, ok := model.(interfaces.Initializable); ok {
			i.Init()
		}
	}

	if err := vm.LoadConfiguration(); err != nil {
		vm.setStatus(Classify(err).String())
	}
	vm.UpdateAndNotifyView()
}

// Close disconnects the session and stops background work.
func (vm *ViewModel) Close() error {
	select {
	case <-vm.closed:
		return nil
	default:
		close(vm.closed)
	}
	return vm.DeviceDisconnected()
}

func (vm *ViewModel) configurables() []interfaces.Configurable {
	return []interfaces.Configurable{
		vm.deviceViewModel,
		vm.targetViewModel,
		vm.memoryViewModel,
		vm.testViewModel,
	}
}

func (vm *ViewModel) LoadConfiguration() error {
	if vm.isLoadingConfig {
		return nil
	}

	defer func() {
		vm.isLoadingConfig = false
		vm.log.Info("viewmodel: loadConfiguration: loaded")
	}()
	vm.log.Info("viewmodel: loadConfiguration: loading...")
	vm.isLoadingConfig = true

	// a rejected file leaves the defaults in place; apply those anyway:
	err := vm.store.Load()
	if err != nil {
		vm.log.Warn("viewmodel: loadConfiguration", zap.Error(err))
	}

	tool := vm.store.Get()
	for _, c := range vm.configurables() {
		c.LoadConfiguration(tool)
	}
	return err
}

func (vm *ViewModel) SaveConfiguration() error {
	if vm.isLoadingConfig {
		return nil
	}

	vm.log.Debug("viewmodel: saveConfiguration: saving configuration...")
	err := vm.store.Update(func(tool *settings.Tool) error {
		for _, c := range vm.configurables() {
			c.SaveConfiguration(tool)
		}
		return nil
	})
	if err != nil {
		vm.log.Warn("viewmodel: saveConfiguration: settings rejected", zap.Error(err))
		return err
	}

	if err = vm.store.Save(); err != nil {
		vm.log.Warn("viewmodel: saveConfiguration", zap.Error(err))
		return err
	}
	return nil
}

func (vm *ViewModel) models() map[string]interface{} {
	defer vm.viewModelsLock.Unlock()
	vm.viewModelsLock.Lock()

	models := make(map[string]interface{}, len(vm.viewModels))
	for view, model := range vm.viewModels {
		models[view] = model
	}
	return models
}

// updates all view models:
func (vm *ViewModel) Update() {
	for _, model := range vm.models() {
		if i, ok := model.(interfaces.Updateable); ok {
			i.Update()
		}
	}
}

func (vm *ViewModel) NotifyViewTo(viewNotifier interfaces.ViewNotifier) {
	if viewNotifier == nil {
		return
	}

	// send all view models to this notifier regardless of dirty state:
	for view, model := range vm.models() {
		if viewModeler, ok := model.(interfaces.ViewModeler); ok {
			model = viewModeler.ViewModel()
		}
		viewNotifier.NotifyView(view, model)
	}
}

// updates all view models and notifies view:
func (vm *ViewModel) UpdateAndNotifyView() {
	for view, model := range vm.models() {
		if i, ok := model.(interfaces.Updateable); ok {
			i.Update()
		}
		vm.NotifyViewOf(view, model)
	}
}

func (vm *ViewModel) NotifyViewOf(view string, model interface{}) {
	dirtyable, isDirtyable := model.(interfaces.Dirtyable)
	if isDirtyable && !dirtyable.IsDirty() {
		return
	}

	vm.NotifyView(view, model)

	if isDirtyable {
		dirtyable.ClearDirty()
	}
}

// Implements ViewCommandHandler
func (vm *ViewModel) CommandFor(view, command string) (ce interfaces.Command, err error) {
	svm, ok := vm.models()[view]
	if !ok {
		return nil, fmt.Errorf("view=%s,cmd=%s: no view model found to handle command", view, command)
	}

	commandHandler, ok := svm.(interfaces.ViewModelCommandHandler)
	if !ok {
		return nil, fmt.Errorf("view=%s,cmd=%s: view model does not handle commands", view, command)
	}

	ce, err = commandHandler.CommandFor(command)
	if err != nil {
		err = fmt.Errorf("view=%s,cmd=%s: error from command handler: %w", view, command, err)
	}
	return
}

// Status returns the last status message.
func (vm *ViewModel) Status() string {
	s, _ := vm.GetViewModel("status")
	msg, _ := s.(string)
	return msg
}

func (vm *ViewModel) setStatus(msg string) {
	vm.log.Info("notify", zap.String("status", msg))
	vm.NotifyView("status", msg)
}

func (vm *ViewModel) ProvideViewNotifier(viewNotifier interfaces.ViewNotifier) {
	vm.viewModelsLock.Lock()
	vm.viewNotifier = viewNotifier
	vm.viewModelsLock.Unlock()
}

// commandMap implements ViewModelCommandHandler for child view models.
type commandMap map[string]interfaces.Command

func (m commandMap) CommandFor(command string) (ce interfaces.Command, err error) {
	var ok bool
	ce, ok = m[command]
	if !ok {
		err = fmt.Errorf("no command '%s' found", command)
	}
	return
}
