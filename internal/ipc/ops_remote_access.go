package ipc

import "github.com/cccc-dev/cccc/internal/remoteaccess"

// RegisterRemoteAccessOps wires remote_access_* (spec §6.1 "Daemon
// core"; spec §5 "Shared resource policy": CCCC_WEB_TOKEN-style
// settings are "never transmitted back to clients in plain form").
// Mutations are user-only: there is no group context to resolve a
// foreman/peer role against for a daemon-wide setting.
func RegisterRemoteAccessOps(d *Dispatcher, store *remoteaccess.Store) {
	requireUser := RequireUser()

	d.Register("remote_access_status", func(ctx *OpContext) (any, error) {
		return store.Status()
	}, requireUser)

	d.Register("remote_access_set_flags", func(ctx *OpContext) (any, error) {
		var enabled, allowInsecure, allowLoopback *bool
		if v, ok := ctx.Args["enabled"].(bool); ok {
			enabled = &v
		}
		if v, ok := ctx.Args["allow_insecure"].(bool); ok {
			allowInsecure = &v
		}
		if v, ok := ctx.Args["allow_loopback"].(bool); ok {
			allowLoopback = &v
		}
		return store.SetFlags(enabled, allowInsecure, allowLoopback)
	}, requireUser)

	d.Register("remote_access_set_token", func(ctx *OpContext) (any, error) {
		return store.SetToken(ctx.Str("token"))
	}, requireUser)
}
