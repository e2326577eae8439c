package group

import "github.com/cccc-dev/cccc/internal/apperr"

var errMultipleForemen = apperr.Invalid("a group may have at most one foreman")

func errDuplicateActorID(id string) error {
	return apperr.Invalid("duplicate actor id: " + id)
}

func errCustomRequiresCommand(id string) error {
	return apperr.Invalid("actor " + id + ": runtime=custom with runner=pty requires a non-empty command")
}

func errDuplicateScopeKey(key string) error {
	return apperr.Invalid("duplicate scope_key: " + key)
}

func errActiveScopeNotAttached(key string) error {
	return apperr.New(apperr.ScopeNotAttached, "active_scope_key does not resolve to an attached scope: "+key, nil)
}
