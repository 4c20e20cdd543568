package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"mtu/engine"
	"mtu/interfaces"
	"mtu/lut"
	"mtu/memmodel"
	"mtu/session"
	"mtu/settings"
)

// Views is the part of the root view model the service exposes.
type Views interface {
	interfaces.ViewCommandHandler
	GetViewModel(view string) (interface{}, bool)
	Views() []string
}

const watchBuffer = 64

// Server implements ControlServer over a Views and broadcasts view updates
// to every Watch stream. It is an interfaces.ViewNotifier.
type Server struct {
	views Views
	log   *zap.Logger

	mu       sync.Mutex
	watchers map[int]chan *structpb.Struct
	nextID   int
}

func NewServer(views Views, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		views:    views,
		log:      log,
		watchers: make(map[int]chan *structpb.Struct),
	}
}

// Serve registers the service on a new grpc.Server and serves lis until it
// fails or Stop is called on the returned server.
func (s *Server) Serve(lis net.Listener) (*grpc.Server, <-chan error) {
	gs := grpc.NewServer()
	RegisterControlServer(gs, s)

	errc := make(chan error, 1)
	go func() {
		s.log.Info("rpc: serving", zap.Stringer("addr", lis.Addr()))
		errc <- gs.Serve(lis)
	}()
	return gs, errc
}

// toValue converts a view model to a structpb value through its JSON form.
func toValue(model interface{}) (*structpb.Value, error) {
	b, err := json.Marshal(model)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err = json.Unmarshal(b, &generic); err != nil {
		return nil, err
	}
	return structpb.NewValue(generic)
}

func (s *Server) GetView(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	view := in.GetFields()[FieldView].GetStringValue()

	names := []string{view}
	if view == "" {
		names = s.views.Views()
	}

	out := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(names))}
	for _, name := range names {
		model, ok := s.views.GetViewModel(name)
		if !ok {
			return nil, status.Errorf(codes.NotFound, "no view '%s'", name)
		}
		v, err := toValue(model)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "view '%s': %v", name, err)
		}
		out.Fields[name] = v
	}
	return out, nil
}

func (s *Server) Execute(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.GetFields()
	view := fields[FieldView].GetStringValue()
	command := fields[FieldCommand].GetStringValue()

	ce, err := s.views.CommandFor(view, command)
	if err != nil {
		return nil, status.Error(codes.NotFound, err.Error())
	}

	args := ce.CreateArgs()
	if raw, ok := fields[FieldArgs]; ok && args != nil {
		var b []byte
		if b, err = json.Marshal(raw.AsInterface()); err == nil {
			err = json.Unmarshal(b, args)
		}
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "view=%s,cmd=%s: bad args: %v", view, command, err)
		}
	}

	s.log.Debug("rpc: execute", zap.String("view", view), zap.String("cmd", command))
	if err = ce.Execute(ctx, args); err != nil {
		return nil, status.Error(codeOf(err), engine.Classify(err).String())
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldStatus: structpb.NewStringValue("ok"),
	}}, nil
}

// codeOf maps domain errors to gRPC status codes.
func codeOf(err error) codes.Code {
	var (
		cfgErr    *settings.ConfigValidationError
		stateErr  *session.StateError
		connErr   *session.ConnectionError
		incomp    *lut.IncompleteModelError
		schemaErr *memmodel.SchemaError
		notFound  *memmodel.NotFoundError
	)
	switch {
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.As(err, &cfgErr):
		return codes.InvalidArgument
	case errors.As(err, &stateErr):
		return codes.FailedPrecondition
	case errors.As(err, &connErr):
		return codes.Unavailable
	case errors.As(err, &incomp), errors.As(err, &schemaErr):
		return codes.FailedPrecondition
	case errors.As(err, &notFound):
		return codes.NotFound
	}
	return codes.Unknown
}

func (s *Server) Watch(_ *emptypb.Empty, stream Control_WatchServer) error {
	ch := make(chan *structpb.Struct, watchBuffer)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.mu.Unlock()

	// send the current state of every view first:
	initial := &snapshot{s: s, ch: ch}
	s.views.NotifyViewTo(initial)

	s.mu.Lock()
	s.watchers[id] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}()

	s.log.Debug("rpc: watch started", zap.Int("id", id))
	for {
		select {
		case <-stream.Context().Done():
			s.log.Debug("rpc: watch ended", zap.Int("id", id))
			return nil
		case msg := <-ch:
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

func (s *Server) message(view string, viewModel interface{}) *structpb.Struct {
	v, err := toValue(viewModel)
	if err != nil {
		s.log.Warn("rpc: encode view", zap.String("view", view), zap.Error(err))
		return nil
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldView:  structpb.NewStringValue(view),
		FieldModel: v,
	}}
}

// NotifyView implements interfaces.ViewNotifier.
func (s *Server) NotifyView(view string, viewModel interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.watchers) == 0 {
		return
	}

	msg := s.message(view, viewModel)
	if msg == nil {
		return
	}
	for id, ch := range s.watchers {
		select {
		case ch <- msg:
		default:
			s.log.Warn("rpc: watcher too slow; dropping update", zap.Int("id", id), zap.String("view", view))
		}
	}
}

// snapshot queues the initial views of one watcher.
type snapshot struct {
	s  *Server
	ch chan *structpb.Struct
}

func (n *snapshot) NotifyView(view string, viewModel interface{}) {
	msg := n.s.message(view, viewModel)
	if msg == nil {
		return
	}
	select {
	case n.ch <- msg:
	default:
	}
}
