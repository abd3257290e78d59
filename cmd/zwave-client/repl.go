package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/uuid"

	"github.com/zwave-js/zwave-js-server-go/pkg/transport"
	"github.com/zwave-js/zwave-js-server-go/pkg/wire"
)

// repl is the interactive client loop. Inbound frames are printed from the
// connection's read goroutine through the readline writer, so they do not
// mangle the prompt.
type repl struct {
	rl   *readline.Instance
	conn *transport.Conn
}

func newREPL(url string) (*repl, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "zwave> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("creating readline: %w", err)
	}

	r := &repl{rl: rl}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, err := transport.Dial(ctx, url, r)
	if err != nil {
		rl.Close()
		return nil, err
	}
	r.conn = conn

	fmt.Fprintf(rl.Stdout(), "Connected to %s\n", url)
	return r, nil
}

// Close tears the client down.
func (r *repl) Close() {
	r.conn.Close()
	r.rl.Close()
}

// OnMessage implements transport.Handler.
func (r *repl) OnMessage(data []byte) {
	var peek struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &peek); err != nil {
		fmt.Fprintf(r.rl.Stdout(), "<- unparsable frame: %s\n", data)
		return
	}

	var pretty map[string]any
	if err := json.Unmarshal(data, &pretty); err == nil {
		if out, err := json.MarshalIndent(pretty, "   ", "  "); err == nil {
			fmt.Fprintf(r.rl.Stdout(), "<- %s %s\n", peek.Type, out)
			return
		}
	}
	fmt.Fprintf(r.rl.Stdout(), "<- %s\n", data)
}

// OnPong implements transport.Handler.
func (r *repl) OnPong() {}

// OnClose implements transport.Handler.
func (r *repl) OnClose(err error) {
	if err != nil {
		fmt.Fprintf(r.rl.Stdout(), "Connection lost: %v\n", err)
	} else {
		fmt.Fprintln(r.rl.Stdout(), "Connection closed")
	}
}

// Run reads commands until exit or EOF.
func (r *repl) Run() {
	r.printHelp()

	for {
		line, err := r.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		switch strings.ToLower(parts[0]) {
		case "help", "?":
			r.printHelp()

		case "quit", "exit", "q":
			return

		case "listen":
			r.send(wire.CommandStartListening, nil)

		case "schema":
			if len(parts) != 2 {
				fmt.Fprintln(r.rl.Stdout(), "usage: schema <version>")
				continue
			}
			v, err := strconv.Atoi(parts[1])
			if err != nil {
				fmt.Fprintf(r.rl.Stdout(), "not a number: %s\n", parts[1])
				continue
			}
			r.send(wire.CommandSetAPISchema, map[string]any{"schemaVersion": v})

		case "state":
			r.send("controller.get_state", nil)

		case "node":
			if len(parts) != 2 {
				fmt.Fprintln(r.rl.Stdout(), "usage: node <nodeId>")
				continue
			}
			r.sendWithNode("node.get_state", parts[1], nil)

		case "ping":
			if len(parts) != 2 {
				fmt.Fprintln(r.rl.Stdout(), "usage: ping <nodeId>")
				continue
			}
			r.sendWithNode("node.ping", parts[1], nil)

		case "get":
			if len(parts) != 3 {
				fmt.Fprintln(r.rl.Stdout(), "usage: get <nodeId> <valueId>")
				continue
			}
			r.sendWithNode("node.get_value", parts[1], map[string]any{"valueId": parts[2]})

		case "set":
			if len(parts) != 4 {
				fmt.Fprintln(r.rl.Stdout(), "usage: set <nodeId> <valueId> <json-value>")
				continue
			}
			var value any
			if err := json.Unmarshal([]byte(parts[3]), &value); err != nil {
				// Bare words become strings.
				value = parts[3]
			}
			r.sendWithNode("node.set_value", parts[1], map[string]any{"valueId": parts[2], "value": value})

		case "include":
			r.windowCommand("include", "inclusion", parts)

		case "exclude":
			r.windowCommand("exclude", "exclusion", parts)

		case "reset":
			r.send("driver.soft_reset", nil)

		default:
			// Anything else goes out verbatim as a command name.
			r.send(input, nil)
		}
	}
}

func (r *repl) windowCommand(name, kind string, parts []string) {
	if len(parts) != 2 || (parts[1] != "start" && parts[1] != "stop") {
		fmt.Fprintf(r.rl.Stdout(), "usage: %s start|stop\n", name)
		return
	}
	verb := "begin"
	if parts[1] == "stop" {
		verb = "stop"
	}
	r.send(fmt.Sprintf("controller.%s_%s", verb, kind), nil)
}

func (r *repl) sendWithNode(command, nodeID string, fields map[string]any) {
	id, err := strconv.Atoi(nodeID)
	if err != nil {
		fmt.Fprintf(r.rl.Stdout(), "not a node id: %s\n", nodeID)
		return
	}
	if fields == nil {
		fields = make(map[string]any)
	}
	fields["nodeId"] = id
	r.send(command, fields)
}

// send writes one command envelope with a fresh messageId.
func (r *repl) send(command string, fields map[string]any) {
	obj := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		obj[k] = v
	}
	obj["messageId"] = uuid.New().String()
	obj["command"] = command

	data, err := json.Marshal(obj)
	if err != nil {
		fmt.Fprintf(r.rl.Stdout(), "encoding failed: %v\n", err)
		return
	}
	if err := r.conn.Send(data); err != nil {
		fmt.Fprintf(r.rl.Stdout(), "send failed: %v\n", err)
		return
	}
	fmt.Fprintf(r.rl.Stdout(), "-> %s\n", command)
}

func (r *repl) printHelp() {
	fmt.Fprintln(r.rl.Stdout(), `
Commands:
  listen                         - start_listening handshake, stream events
  schema <version>               - pin the API schema version
  state                          - controller state
  node <nodeId>                  - node state
  ping <nodeId>                  - ping a node
  get <nodeId> <valueId>         - read a value
  set <nodeId> <valueId> <value> - write a value (JSON literal or bare word)
  include start|stop             - inclusion window
  exclude start|stop             - exclusion window
  reset                          - soft-reset the driver
  help                           - this help
  quit                           - exit

  Any other input is sent verbatim as a command name.`)
}
