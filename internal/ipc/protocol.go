// Package ipc implements §4.H: the line-delimited JSON control plane,
// its op dispatch table, role-based permission enforcement, and the
// two ops (term_attach, events_stream) that hijack the connection into
// a stream.
package ipc

import "github.com/cccc-dev/cccc/internal/apperr"

// Request is one line of the wire protocol (spec §4.H / §6.1).
type Request struct {
	Op   string         `json:"op"`
	Args map[string]any `json:"args"`
	ID   string         `json:"id,omitempty"`
}

// ErrorBody is the error shape nested in a failed Response.
type ErrorBody struct {
	Code    apperr.Code    `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Response is one line of the wire protocol.
type Response struct {
	OK     bool       `json:"ok"`
	ID     string     `json:"id,omitempty"`
	Result any        `json:"result,omitempty"`
	Error  *ErrorBody `json:"error,omitempty"`
}

func okResponse(id string, result any) Response {
	return Response{OK: true, ID: id, Result: result}
}

func errResponse(id string, err error) Response {
	code, msg, details := apperr.AsResponse(err)
	return Response{OK: false, ID: id, Error: &ErrorBody{Code: code, Message: msg, Details: details}}
}
