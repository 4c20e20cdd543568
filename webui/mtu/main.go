package main

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/skratchdot/open-golang/open"
	"go.uber.org/zap"

	"mtu/engine"
	"mtu/interfaces"
	"mtu/memmodel"
	"mtu/rpc"
	"mtu/settings"
	"mtu/util"
)

// include these transport drivers:
import (
	_ "mtu/transport/mock"
	_ "mtu/transport/serialport"
	_ "mtu/transport/tcpport"
)

const (
	defaultListenPort = 27640
	defaultGRPCListen = "127.0.0.1:27641"
)

var (
	listenHost  string // hostname/ip to listen on for webserver
	listenPort  int    // port number to listen on for webserver
	browserHost string // hostname to send as part of URL to browser to connect to webserver
	browserUrl  string // full URL that is sent to browser (composed of browserHost:listenPort)
	logPath     string
	logFile     *os.File

	viewModel    *engine.ViewModel
	shutdownOnce sync.Once
)

// init is called first before all other package inits so it is best to set up log here:
func init() {
	ts := time.Now().Format("2006-01-02T15:04:05.000Z")
	ts = strings.ReplaceAll(ts, ":", "-")
	ts = strings.ReplaceAll(ts, ".", "-")
	logPath = filepath.Join(os.TempDir(), fmt.Sprintf("mtu-%s.log", ts))

	var err error
	logFile, err = os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not open log file '%s' for writing\n", logPath)
		logFile = nil
	}
}

func main() {
	defer func() {
		if err := recover(); err != nil {
			util.LogPanic(err)
			os.Exit(2)
		}
	}()

	log := util.NewPanicSafeLogger(logFile, util.IsTruthy(util.Getenv("MTU_DEBUG", "0"))).Logger
	if logFile != nil {
		log.Info("logging", zap.String("path", logPath))
	}

	// Parse env vars:
	listenHost = util.Getenv("MTU_WEB_LISTEN_HOST", "127.0.0.1")
	listenPort = util.GetenvInt("MTU_WEB_LISTEN_PORT", defaultListenPort)
	if listenPort <= 0 {
		listenPort = defaultListenPort
	}
	listenAddr := net.JoinHostPort(listenHost, strconv.Itoa(listenPort))

	browserHost = util.Getenv("MTU_WEB_BROWSER_HOST", "127.0.0.1")
	browserUrl = fmt.Sprintf("http://%s/", net.JoinHostPort(browserHost, strconv.Itoa(listenPort)))

	store, err := settings.OpenDefault(log.Named("settings"))
	if err != nil {
		log.Fatal("settings", zap.Error(err))
	}
	library := memmodel.DefaultLibrary(log.Named("memmodel"), util.Getenv("MTU_MODEL_DIR", ""))

	// construct our viewModel, web server and control service:
	viewModel = engine.NewViewModel(store, library, log.Named("engine"))
	webServer := NewWebServer(listenAddr, log.Named("web"))
	rpcServer := rpc.NewServer(viewModel, log.Named("rpc"))

	// inform viewModel of web server and vice versa:
	viewModel.ProvideViewNotifier(interfaces.ViewNotifiers{webServer, rpcServer})
	webServer.ProvideViewCommandHandler(viewModel)

	// start the web server:
	go func() {
		log.Fatal("web", zap.Error(webServer.Serve()))
	}()

	// start the control service unless disabled:
	if grpcAddr := util.Getenv("MTU_GRPC_LISTEN", defaultGRPCListen); grpcAddr != "off" {
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			log.Warn("rpc: listen", zap.String("addr", grpcAddr), zap.Error(err))
		} else {
			_, errc := rpcServer.Serve(lis)
			go func() {
				if err := <-errc; err != nil {
					log.Error("rpc", zap.Error(err))
				}
			}()
		}
	}

	// initialize viewModel now that all dependencies are set up:
	viewModel.Init()

	// start up a systray app (or just open web UI):
	createSystray()
}

// shutdown closes the session so the port is released before exit.
func shutdown() {
	shutdownOnce.Do(func() {
		if viewModel != nil {
			if err := viewModel.Close(); err != nil {
				zap.L().Warn("shutdown", zap.Error(err))
			}
		}
		_ = util.FlushLogger()
	})
}

func openWebUI() {
	if util.IsTruthy(util.Getenv("MTU_NO_BROWSER", "0")) {
		zap.L().Info("web ui", zap.String("url", browserUrl))
		return
	}
	if err := open.Start(browserUrl); err != nil {
		zap.L().Warn("open browser", zap.String("url", browserUrl), zap.Error(err))
	}
}
