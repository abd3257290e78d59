// Command zwave-client is an interactive websocket client for the gateway.
//
// Usage:
//
//	zwave-client [flags]
//
// Flags:
//
//	-server string   Server URL (default "ws://localhost:3000")
//	-discover        Find a server over mDNS instead of using -server
//
// The client prints every envelope the server sends and offers shorthand
// commands for the common operations; anything it does not recognize is sent
// as a raw command name. Type "help" at the prompt for the command list.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/zwave-js/zwave-js-server-go/pkg/discovery"
)

func main() {
	var (
		server   = flag.String("server", "ws://localhost:3000", "server URL")
		discover = flag.Bool("discover", false, "find a server over mDNS")
	)
	flag.Parse()

	url := *server
	if *discover {
		fmt.Println("Searching for servers...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		srv, err := discovery.FindFirst(ctx)
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "no server found: %v\n", err)
			os.Exit(1)
		}
		url = "ws://" + srv.Addr()
		fmt.Printf("Found %s (version %s, homeId %#x)\n", srv.Instance, srv.Info.ServerVersion, srv.Info.HomeID)
	}

	repl, err := newREPL(url)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer repl.Close()

	repl.Run()
}
