package ipc

import "time"

// DaemonInfo is the process-identity payload ping returns (spec §4.H
// "ping responds with {version, pid, ts, ipc_v:1, capabilities}").
type DaemonInfo struct {
	Version      string
	PID          int
	Capabilities []string
}

// RegisterCoreOps wires ping/shutdown (spec §6.1 "Daemon core" group).
// info is captured once at daemon start. The server, not the handler,
// is responsible for stopping its accept loop once the shutdown
// response has actually been written (spec §4.H "shutdown responds
// then triggers the accept loop's stop flag") — see Server.handleConn.
func RegisterCoreOps(d *Dispatcher, info DaemonInfo) {
	d.Register("ping", func(ctx *OpContext) (any, error) {
		return map[string]any{
			"version":      info.Version,
			"pid":          info.PID,
			"ts":           time.Now().UTC(),
			"ipc_v":        1,
			"capabilities": info.Capabilities,
		}, nil
	}, nil)

	d.Register("shutdown", func(ctx *OpContext) (any, error) {
		return map[string]any{"should_exit": true}, nil
	}, nil)
}
