package main

import (
	"os"
	"os/signal"
	"syscall"
)

func createSystray() {
	// just open the browser UI on startup:
	openWebUI()

	// run until interrupted:
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	shutdown()
}

