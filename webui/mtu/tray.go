//go:build !linux

package main

import (
	"github.com/getlantern/systray"
	"go.uber.org/zap"
)

func createSystray() {
	// Start up a systray:
	systray.Run(trayStart, trayExit)
}


func trayExit() {
	shutdown()
}

func trayStart() {
	// Set up the systray:
	systray.SetTitle("MTU")
	systray.SetTooltip("MTU - MCU memory test utility")
	mOpenWeb := systray.AddMenuItem("Web UI", "Opens the web UI in the default browser")
	mDisconnect := systray.AddMenuItem("Disconnect", "Closes the connection to the board")
	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "Quit")

	// Menu item click handler:
	go func() {
		for {
			select {
			case <-mOpenWeb.ClickedCh:
				openWebUI()
			case <-mDisconnect.ClickedCh:
				if err := viewModel.DeviceDisconnected(); err != nil {
					zap.L().Warn("tray: disconnect", zap.Error(err))
				}
			case <-mQuit.ClickedCh:
				zap.L().Info("tray: requesting quit")
				systray.Quit()
				return
			}
		}
	}()
}
