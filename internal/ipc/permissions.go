package ipc

import (
	"github.com/cccc-dev/cccc/internal/apperr"
	"github.com/cccc-dev/cccc/internal/group"
)

// PermissionFunc runs before a handler and returns a *apperr.Error (via
// apperr.Permission) to refuse the op (spec §4.H "enforces role-based
// permissions ... before persisting anything").
type PermissionFunc func(ctx *OpContext) error

// callerActor resolves the group and the caller's actor record (nil for
// by=="user" or an id with no matching actor).
func callerActor(groups *group.Store, ctx *OpContext) (*group.Group, *group.Actor, error) {
	groupID, err := ctx.StrRequired("group_id")
	if err != nil {
		return nil, nil, err
	}
	g, err := groups.Load(groupID)
	if err != nil {
		return nil, nil, err
	}
	return g, g.FindActor(ctx.By), nil
}

// RequireUserOrForeman gates ops like actor.add, group.settings_update
// (spec §4.H): only the human user or the group's foreman may call them.
func RequireUserOrForeman(groups *group.Store) PermissionFunc {
	return func(ctx *OpContext) error {
		if ctx.By == "user" {
			return nil
		}
		_, actor, err := callerActor(groups, ctx)
		if err != nil {
			return err
		}
		if actor != nil && actor.Role == group.RoleForeman {
			return nil
		}
		return apperr.Permission("requires user or foreman")
	}
}

// RequireSelfUserOrForeman gates actor.start/stop/restart: the user, the
// foreman, or the actor acting on itself.
func RequireSelfUserOrForeman(groups *group.Store) PermissionFunc {
	return func(ctx *OpContext) error {
		if ctx.By == "user" {
			return nil
		}
		if ctx.By == ctx.Str("actor_id") {
			return nil
		}
		_, actor, err := callerActor(groups, ctx)
		if err != nil {
			return err
		}
		if actor != nil && actor.Role == group.RoleForeman {
			return nil
		}
		return apperr.Permission("requires user, foreman, or the actor itself")
	}
}

// RequireRecipientSelf gates chat_ack: only the named recipient may ack
// their own obligation (spec §4.H "chat.ack must be performed by the
// recipient").
func RequireRecipientSelf() PermissionFunc {
	return func(ctx *OpContext) error {
		actorID, err := ctx.StrRequired("actor_id")
		if err != nil {
			return err
		}
		if ctx.By != actorID {
			return apperr.Permission("chat_ack must be performed by the recipient")
		}
		return nil
	}
}

// RequireUser gates daemon-core ops that take no group_id (spec §6.1
// "Daemon core", e.g. observability_get/update, remote_access_*): only
// the human user may call them, never an agent.
func RequireUser() PermissionFunc {
	return func(ctx *OpContext) error {
		if ctx.By != "user" {
			return apperr.Permission("requires user")
		}
		return nil
	}
}

// RequireDevMode gates the debug_* diagnostics group (spec §6.1
// "Diagnostics ... dev-mode gated"): refused outright unless the
// daemon was started with dev mode enabled, regardless of caller.
func RequireDevMode(enabled func() bool) PermissionFunc {
	return func(ctx *OpContext) error {
		if !enabled() {
			return apperr.Permission("debug ops require dev mode")
		}
		return nil
	}
}

// RequireAutomationManage gates group_automation_manage: foreman may
// manage group-scope rules; peers may only manage their own personal
// scope; agent (non-user, non-foreman) writes are restricted to the
// notify action kind (spec §4.H).
func RequireAutomationManage(groups *group.Store) PermissionFunc {
	return func(ctx *OpContext) error {
		if ctx.By == "user" {
			return nil
		}
		_, actor, err := callerActor(groups, ctx)
		if err != nil {
			return err
		}

		scope, _ := ctx.Args["scope"].(string)
		if actor != nil && actor.Role == group.RoleForeman {
			if scope == string(group.RuleScopePersonal) {
				if owner, _ := ctx.Args["owner_actor_id"].(string); owner != ctx.By {
					return apperr.Permission("foreman may only manage personal rules they own")
				}
			}
			return nil
		}

		if scope != string(group.RuleScopePersonal) {
			return apperr.Permission("peers and agents may only manage personal-scope rules")
		}
		if owner, _ := ctx.Args["owner_actor_id"].(string); owner != ctx.By {
			return apperr.Permission("may only manage your own personal rules")
		}

		if actionKind, ok := ctx.Args["action_kind"].(string); ok && actionKind != string(group.ActionNotify) {
			return apperr.Permission("agent-authored rules may only use the notify action")
		}
		return nil
	}
}
