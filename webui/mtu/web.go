package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"

	"mtu/engine"
	"mtu/interfaces"
	"mtu/webui/dist"
)

const socketQueue = 64

type WebServer struct {
	listenAddr string
	log        *zap.Logger

	commandHandler interfaces.ViewCommandHandler

	mux *http.ServeMux

	socketsRw sync.RWMutex
	sockets   []*Socket
}

type Socket struct {
	ws   *WebServer
	req  *http.Request
	conn net.Conn

	// write channel:
	q      chan ViewModelUpdate
	closed chan struct{}
	once   sync.Once
}

type ViewModelUpdate struct {
	View      string      `json:"v"`
	ViewModel interface{} `json:"m"`
}

// NewWebServer serves the web UI and a websocket endpoint that carries view
// model updates to the UI and commands back to the engine.
func NewWebServer(listenAddr string, log *zap.Logger) *WebServer {
	s := &WebServer{
		listenAddr: listenAddr,
		log:        log,
		mux:        http.NewServeMux(),
		sockets:    make([]*Socket, 0, 2),
	}

	// handle websockets:
	s.mux.Handle("/ws/", http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(req, rw)
		if err != nil {
			s.log.Warn("web: upgrade", zap.Error(err))
			rw.WriteHeader(400)
			return
		}

		// create the Socket to handle bidirectional communication:
		socket := NewSocket(s, req, conn)
		s.appendSocket(socket)

		// start by sending all view models to this new socket:
		if s.commandHandler != nil {
			s.commandHandler.NotifyViewTo(socket)
		}
	}))

	// serve static content:
	s.mux.Handle("/", MaxAge(http.FileServer(http.FS(dist.Content))))

	return s
}

func (s *WebServer) Handler() http.Handler { return s.mux }

func (s *WebServer) appendSocket(socket *Socket) {
	s.socketsRw.Lock()
	defer s.socketsRw.Unlock()
	s.sockets = append(s.sockets, socket)
}

func (s *WebServer) removeSocket(k *Socket) {
	s.socketsRw.Lock()
	defer s.socketsRw.Unlock()

	for i, sk := range s.sockets {
		if sk == k {
			s.sockets = append(s.sockets[:i], s.sockets[i+1:]...)
			break
		}
	}
}

func (s *WebServer) Serve() error {
	// start server:
	return http.ListenAndServe(s.listenAddr, s.mux)
}

// NotifyView broadcasts the update to all connected websockets.
func (s *WebServer) NotifyView(view string, viewModel interface{}) {
	s.socketsRw.RLock()
	sockets := append([]*Socket(nil), s.sockets...)
	s.socketsRw.RUnlock()

	for _, k := range sockets {
		k.NotifyView(view, viewModel)
	}
}

func (s *WebServer) ProvideViewCommandHandler(commandHandler interfaces.ViewCommandHandler) {
	s.commandHandler = commandHandler
}

func NewSocket(s *WebServer, req *http.Request, conn net.Conn) *Socket {
	k := &Socket{
		ws:     s,
		req:    req,
		conn:   conn,
		q:      make(chan ViewModelUpdate, socketQueue),
		closed: make(chan struct{}),
	}

	go k.readHandler()
	go k.writeHandler()

	return k
}

func (k *Socket) NotifyView(view string, viewModel interface{}) {
	select {
	case k.q <- ViewModelUpdate{View: view, ViewModel: viewModel}:
	case <-k.closed:
	default:
		k.ws.log.Warn("web: socket too slow; dropping update", zap.String("view", view), zap.String("remote", k.req.RemoteAddr))
	}
}

func (k *Socket) close() {
	k.once.Do(func() {
		close(k.closed)
		_ = k.conn.Close()
	})
}

type CommandRequest struct {
	View    string          `json:"v"`
	Command string          `json:"c"`
	Args    json.RawMessage `json:"a"`
}

// execute runs one command request; failures are reported to this socket
// on the "error" view.
func (k *Socket) execute(creq *CommandRequest) {
	log := k.ws.log.With(zap.String("view", creq.View), zap.String("cmd", creq.Command))

	// command handler:
	if k.ws.commandHandler == nil {
		log.Error("web: no view command handler provided")
		return
	}

	ce, err := k.ws.commandHandler.CommandFor(creq.View, creq.Command)
	if err != nil {
		log.Warn("web: command", zap.Error(err))
		k.NotifyView("error", engine.Classify(err))
		return
	}

	// instantiate a specific args type for the command:
	args := ce.CreateArgs()
	if args != nil && len(creq.Args) > 0 {
		// deserialize json:
		if err = json.Unmarshal(creq.Args, args); err != nil {
			log.Warn("web: deserializing json command args", zap.Error(err))
			k.NotifyView("error", engine.Classify(err))
			return
		}
	}

	// execute the command:
	if err = ce.Execute(context.Background(), args); err != nil {
		log.Warn("web: command executor", zap.Error(err))
		k.NotifyView("error", engine.Classify(err))
	}
}

func (k *Socket) readHandler() {
	// the reader is in control of the lifetime of the socket:
	defer func() {
		k.close()

		// remove self from sockets array:
		k.ws.removeSocket(k)
	}()

	var (
		r       = wsutil.NewReader(k.conn, ws.StateServerSide)
		decoder = json.NewDecoder(r)
	)

	for {
		hdr, err := r.NextFrame()
		if err != nil {
			k.ws.log.Debug("web: reading next websocket frame", zap.Error(err))
			return
		}
		if hdr.OpCode == ws.OpClose {
			return
		}

		if hdr.OpCode == ws.OpText {
			// read a JSON command request:
			var creq CommandRequest
			if err = decoder.Decode(&creq); err != nil {
				k.ws.log.Warn("web: reading json command request", zap.Error(err))
				goto discard
			}

			// commands may block (connecting probes the bootloader) so keep reading:
			go k.execute(&creq)
		}

	discard:
		// the decoder may have buffered the end of the frame:
		decoder = json.NewDecoder(r)
		if err = r.Discard(); err != nil {
			k.ws.log.Warn("web: discard", zap.Error(err))
		}
	}
}

func (k *Socket) writeHandler() {
	var (
		w       = wsutil.NewWriter(k.conn, ws.StateServerSide, ws.OpText)
		encoder = json.NewEncoder(w)
	)

	// wait for ViewModelUpdates on the channel:
	for {
		var u ViewModelUpdate
		select {
		case <-k.closed:
			return
		case u = <-k.q:
		}

		var err error
		if err = encoder.Encode(&u); err != nil {
			k.ws.log.Warn("web: encode", zap.String("view", u.View), zap.Error(err))
			continue
		}
		if err = w.Flush(); err != nil {
			k.ws.log.Debug("web: flush", zap.Error(err))
			k.close()
			return
		}
	}
}
