// Command mtu drives the memory test firmware from the command line.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"

	"go.uber.org/zap"

	"mtu/engine"
	"mtu/util"
)

// include these transport drivers:
import (
	_ "mtu/transport/mock"
	_ "mtu/transport/serialport"
	_ "mtu/transport/tcpport"
)

type command struct {
	usage string
	run   func(ctx context.Context, args []string, out io.Writer, log *zap.Logger) error
}

var commands = map[string]command{
	"targets": {"list supported MCUs", cmdTargets},
	"ports":   {"list ports of every transport driver", cmdPorts},
	"chips":   {"list memory chip models", cmdChips},
	"lut":     {"print the LUT generated for a chip model", cmdLUT},
	"run":     {"connect to a board and run tests", cmdRun},
	"remote":  {"talk to a running web UI over its control service", cmdRemote},
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "usage: %s <command> [flags]\n\ncommands:\n", os.Args[0])
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-8s %s\n", name, commands[name].usage)
	}
}

func main() {
	initConsole()

	log := util.NewPanicSafeLogger(nil, util.IsTruthy(util.Getenv("MTU_DEBUG", "0"))).Logger
	defer func() {
		if err := recover(); err != nil {
			util.LogPanic(err)
			os.Exit(2)
		}
	}()

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		usage(os.Stderr)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cmd.run(ctx, os.Args[2:], os.Stdout, log); err != nil {
		fmt.Fprintln(os.Stderr, engine.Classify(err))
		_ = util.FlushLogger()
		os.Exit(1)
	}
	_ = util.FlushLogger()
}
