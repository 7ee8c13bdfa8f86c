package main

import (
	"context"
	"fmt"
	"os"
	"time"

	cli "github.com/spf13/pflag"

	"chatty/internal/ipc"
)

func main() {
	socket := cli.StringP("socket", "s", ipc.SocketPath, "Control socket path")
	cli.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: chatty-ctl [--socket path] %s|%s\n", ipc.CmdStop, ipc.CmdReset)
		cli.PrintDefaults()
	}
	cli.Parse()

	cmd := ipc.CmdStop
	if cli.NArg() > 0 {
		cmd = cli.Arg(0)
	}
	if cmd != ipc.CmdStop && cmd != ipc.CmdReset {
		cli.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := ipc.SendCommand(ctx, *socket, cmd); err != nil {
		fmt.Println("chatty not running:", err)
		os.Exit(1)
	}
}
