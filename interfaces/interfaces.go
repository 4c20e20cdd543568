package interfaces

import "context"

type CommandArgs interface{}

// ViewModeler allows a view model to provide a custom json.Marshal-able instance of itself to provide to the view
type ViewModeler interface {
	ViewModel() interface{}
}

// Initializable view models start background work (port detection) once
// the root view model is wired.
type Initializable interface {
	Init()
}

// Updateable view models refresh themselves from session state before a
// notification.
type Updateable interface {
	Update()
}

// Dirtyable view models are only re-sent to the view when marked dirty.
type Dirtyable interface {
	IsDirty() bool
	ClearDirty()
	MarkDirty()
}

// Command is a generic RPC command that can be requested for execution by the view with JSON arguments
type Command interface {
	// CreateArgs instantiates a JSON object that can be json.Unmarshal-ed into by the view to provide
	// named arguments for the command
	CreateArgs() CommandArgs
	// Execute executes the command given the arguments provided by the view; ctx bounds blocking
	// operations such as connecting to the target
	Execute(ctx context.Context, args CommandArgs) error
}

// ViewModelCommandHandler returns a Command for the current view - ViewModels implement this
type ViewModelCommandHandler interface {
	CommandFor(command string) (Command, error)
}

// ViewCommandHandler handles commands requested by the view - the root ViewModel implements this
type ViewCommandHandler interface {
	CommandFor(view, command string) (Command, error)

	NotifyViewTo(viewNotifier ViewNotifier)
}

// ViewNotifier notifies view of a modified view model:
type ViewNotifier interface {
	NotifyView(view string, viewModel interface{})
}

// ViewNotifiers fans a notification out to every notifier in the list.
type ViewNotifiers []ViewNotifier

func (n ViewNotifiers) NotifyView(view string, viewModel interface{}) {
	for _, vn := range n {
		vn.NotifyView(view, viewModel)
	}
}
