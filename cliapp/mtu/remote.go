package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"mtu/rpc"
	"mtu/util"
)

const remoteUsage = `usage: mtu remote [-addr host:port] <action>

actions:
  view [name]                    print one view, or all views
  exec <view> <command> [json]   run a command, e.g. exec test rwTest '{"length":4096}'
  watch                          print view updates until interrupted`

func cmdRemote(ctx context.Context, args []string, out io.Writer, log *zap.Logger) error {
	fs := flag.NewFlagSet("remote", flag.ContinueOnError)
	addr := fs.String("addr", util.Getenv("MTU_GRPC_LISTEN", "127.0.0.1:27641"), "control service address")
	timeout := fs.Duration("timeout", 30*time.Second, "timeout for view and exec")
	fs.Usage = func() { fmt.Fprintln(fs.Output(), remoteUsage) }
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return flag.ErrHelp
	}

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	c, err := rpc.Dial(dialCtx, *addr)
	if err != nil {
		return err
	}
	defer c.Close()
	log.Debug("remote: dialed", zap.String("addr", *addr))

	switch rest[0] {
	case "view":
		name := ""
		if len(rest) > 1 {
			name = rest[1]
		}
		callCtx, cancel := context.WithTimeout(ctx, *timeout)
		defer cancel()
		b, err := c.View(callCtx, name)
		if err != nil {
			return err
		}
		return printJSON(out, b)

	case "exec":
		if len(rest) < 3 {
			fs.Usage()
			return flag.ErrHelp
		}
		var cmdArgs interface{}
		if len(rest) > 3 {
			if err = json.Unmarshal([]byte(rest[3]), &cmdArgs); err != nil {
				return fmt.Errorf("bad command args: %w", err)
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, *timeout)
		defer cancel()
		if err = c.Run(callCtx, rest[1], rest[2], cmdArgs); err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, "ok")
		return err

	case "watch":
		err = c.Follow(ctx, func(view string, model json.RawMessage) error {
			_, err := fmt.Fprintf(out, "%s %s\n", view, model)
			return err
		})
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	fs.Usage()
	return flag.ErrHelp
}

func printJSON(out io.Writer, b []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, b, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(out)
	return err
}
