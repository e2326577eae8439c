package ipc

import (
	"net"

	"github.com/cccc-dev/cccc/internal/apperr"
)

// OpContext is what a handler receives for one request: the caller
// identity already resolved (spec §4.H "every mutating op takes by"),
// the raw args, and — for hijack ops only — the live connection.
type OpContext struct {
	By   string
	ID   string
	Args map[string]any
	Conn net.Conn
}

// Str returns a string arg, or "" if absent/wrong type.
func (c *OpContext) Str(key string) string {
	v, _ := c.Args[key].(string)
	return v
}

// StrRequired returns a string arg or a missing_group_id/invalid_request
// error when it is empty. Most ops require group_id; pass that key for
// the canonical error code, any other key falls back to invalid_request.
func (c *OpContext) StrRequired(key string) (string, error) {
	v := c.Str(key)
	if v != "" {
		return v, nil
	}
	if key == "group_id" {
		return "", apperr.New(apperr.MissingGroupID, "group_id is required", nil)
	}
	return "", apperr.Invalid(key + " is required")
}

// Bool returns a bool arg, defaulting to false.
func (c *OpContext) Bool(key string) bool {
	v, _ := c.Args[key].(bool)
	return v
}

// Int returns an int arg, defaulting to 0. JSON numbers decode as
// float64, so this coerces rather than type-asserting int directly.
func (c *OpContext) Int(key string) int {
	v, ok := c.Args[key].(float64)
	if !ok {
		return 0
	}
	return int(v)
}

// StrSlice returns a []string arg, coercing from the []any shape
// encoding/json produces.
func (c *OpContext) StrSlice(key string) []string {
	raw, ok := c.Args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// HandlerFunc implements one ordinary (non-hijacking) op.
type HandlerFunc func(ctx *OpContext) (any, error)

// HijackFunc implements an op that takes over the connection for
// streaming (term_attach, events_stream). It is responsible for
// writing its own response frames, including the initial ack, and for
// closing or returning control of ctx.Conn when done.
type HijackFunc func(ctx *OpContext) error

// Dispatcher is the op registry plus permission-checked dispatch.
type Dispatcher struct {
	handlers    map[string]HandlerFunc
	hijacks     map[string]HijackFunc
	permissions map[string]PermissionFunc

	// Trace, if set, wraps every ordinary handler invocation — e.g. to
	// emit a tracing span around op dispatch (spec's observability_get/
	// update op group). Optional and declared as a plain function value
	// rather than an otel type so this package stays decoupled from the
	// tracing SDK, the same way Broadcaster is a local interface instead
	// of an internal/broadcast import.
	Trace func(op string, fn HandlerFunc) HandlerFunc
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers:    make(map[string]HandlerFunc),
		hijacks:     make(map[string]HijackFunc),
		permissions: make(map[string]PermissionFunc),
	}
}

// Register adds an ordinary op handler, optionally gated by a
// permission check run before the handler executes.
func (d *Dispatcher) Register(op string, fn HandlerFunc, perm PermissionFunc) {
	d.handlers[op] = fn
	if perm != nil {
		d.permissions[op] = perm
	}
}

// RegisterHijack adds a stream-hijacking op handler.
func (d *Dispatcher) RegisterHijack(op string, fn HijackFunc, perm PermissionFunc) {
	d.hijacks[op] = fn
	if perm != nil {
		d.permissions[op] = perm
	}
}

// Dispatch runs one request to completion. hijacked reports whether
// the op took over ctx.Conn itself (in which case resp is the zero
// value and the caller's read loop must stop).
func (d *Dispatcher) Dispatch(req Request, ctx *OpContext) (resp Response, hijacked bool) {
	if req.Op == "" {
		return errResponse(req.ID, apperr.Invalid("op must not be empty")), false
	}

	if perm, ok := d.permissions[req.Op]; ok {
		if err := perm(ctx); err != nil {
			return errResponse(req.ID, err), false
		}
	}

	if hijack, ok := d.hijacks[req.Op]; ok {
		if err := hijack(ctx); err != nil {
			return errResponse(req.ID, err), false
		}
		return Response{}, true
	}

	fn, ok := d.handlers[req.Op]
	if !ok {
		return errResponse(req.ID, apperr.Invalid("unknown op: "+req.Op)), false
	}
	if d.Trace != nil {
		fn = d.Trace(req.Op, fn)
	}

	result, err := fn(ctx)
	if err != nil {
		return errResponse(req.ID, err), false
	}
	return okResponse(req.ID, result), false
}
