// Package main is cccctl, a thin command-line client for exercising a
// running ccccd over its IPC transport. It is a smoke-test tool, not a
// user-facing front end: one op per invocation, raw JSON in and out.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cccc-dev/cccc/internal/config"
	"github.com/cccc-dev/cccc/internal/ipc"
	"github.com/cccc-dev/cccc/internal/storage"
)

func main() {
	op := flag.String("op", "ping", "daemon op to call")
	argsJSON := flag.String("args", "{}", "op args as a JSON object")
	by := flag.String("by", "user", "caller identity (user, or an actor_id)")
	timeout := flag.Duration("timeout", 5*time.Second, "dial and round-trip timeout")
	flag.Parse()

	var args map[string]any
	if err := json.Unmarshal([]byte(*argsJSON), &args); err != nil {
		fmt.Fprintf(os.Stderr, "cccctl: invalid -args JSON: %v\n", err)
		os.Exit(1)
	}
	if args == nil {
		args = map[string]any{}
	}
	args["by"] = *by

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cccctl: load config: %v\n", err)
		os.Exit(1)
	}
	paths := storage.New(cfg.Home)

	addr, err := storage.ReadAddr(paths)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cccctl: read addr file (is ccccd running?): %v\n", err)
		os.Exit(1)
	}

	network, dialAddr := "unix", addr.Path
	if addr.Transport == "tcp" {
		network, dialAddr = "tcp", fmt.Sprintf("%s:%d", addr.Host, addr.Port)
	}

	conn, err := net.DialTimeout(network, dialAddr, *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cccctl: dial %s %s: %v\n", network, dialAddr, err)
		os.Exit(1)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(*timeout))

	req := ipc.Request{Op: *op, Args: args, ID: uuid.NewString()}
	line, err := json.Marshal(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cccctl: marshal request: %v\n", err)
		os.Exit(1)
	}
	if _, err := conn.Write(append(line, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "cccctl: write request: %v\n", err)
		os.Exit(1)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)

	// A hijacked op (term_attach, events_stream) keeps streaming lines
	// after its ack; cccctl just echoes every line it receives until the
	// peer closes or the deadline hits.
	streaming := *op == "term_attach" || *op == "events_stream"
	for scanner.Scan() {
		raw := scanner.Text()
		var resp ipc.Response
		if err := json.Unmarshal([]byte(raw), &resp); err != nil {
			fmt.Println(raw)
			continue
		}
		printResponse(resp)
		if !streaming {
			return
		}
		_ = conn.SetDeadline(time.Now().Add(*timeout))
	}
	if err := scanner.Err(); err != nil && !strings.Contains(err.Error(), "i/o timeout") {
		fmt.Fprintf(os.Stderr, "cccctl: read response: %v\n", err)
		os.Exit(1)
	}
}

func printResponse(resp ipc.Response) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if resp.OK {
		_ = enc.Encode(resp.Result)
		return
	}
	_ = enc.Encode(resp.Error)
	if resp.Error != nil {
		os.Exit(1)
	}
}
