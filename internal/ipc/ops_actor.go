package ipc

import (
	"os"
	"time"

	"github.com/cccc-dev/cccc/internal/apperr"
	"github.com/cccc-dev/cccc/internal/delivery"
	"github.com/cccc-dev/cccc/internal/group"
	"github.com/cccc-dev/cccc/internal/idgen"
	"github.com/cccc-dev/cccc/internal/ledger"
	"github.com/cccc-dev/cccc/internal/logging"
	"github.com/cccc-dev/cccc/internal/registry"
	"github.com/cccc-dev/cccc/internal/runner/headless"
	"github.com/cccc-dev/cccc/internal/runner/pty"
	"github.com/cccc-dev/cccc/internal/secrets"
	"github.com/cccc-dev/cccc/internal/storage"

	"go.uber.org/zap"
)

// ActorRuntime bundles the runner-side dependencies actor lifecycle ops
// need beyond group.Store/ledger.Store (spec §6.1 "Actors" group).
type ActorRuntime struct {
	Paths    storage.Paths
	Groups   *group.Store
	Ledger   *ledger.Store
	Secrets  *secrets.Store
	PTY      *pty.Supervisor
	Headless *headless.Registry
	Delivery *delivery.Pipeline
}

// RegisterActorOps wires actor_list/add/remove/update/start/stop/restart,
// actor_env_private_*, and actor_profile_* (spec §6.1 "Actors" group).
func RegisterActorOps(d *Dispatcher, rt ActorRuntime) {
	userOrForeman := RequireUserOrForeman(rt.Groups)
	selfUserOrForeman := RequireSelfUserOrForeman(rt.Groups)

	d.Register("actor_list", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		g, err := rt.Groups.Load(groupID)
		if err != nil {
			return nil, err
		}
		return g.Actors, nil
	}, nil)

	d.Register("actor_add", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		actorID, err := ctx.StrRequired("actor_id")
		if err != nil {
			return nil, err
		}
		role := ctx.Str("role")
		if role == "" {
			role = string(group.RolePeer)
		}

		a := group.Actor{
			ID:       actorID,
			Title:    ctx.Str("title"),
			Role:     group.Role(role),
			Runtime:  group.Runtime(ctx.Str("runtime")),
			Runner:   group.RunnerKind(ctx.Str("runner")),
			Command:  ctx.StrSlice("command"),
			Submit:   group.Submit(ctx.Str("submit")),
			Enabled:  true,
		}
		now := time.Now().UTC()
		a.CreatedAt, a.UpdatedAt = now, now

		g, err := rt.Groups.Mutate(groupID, func(g *group.Group) error {
			if g.FindActor(actorID) != nil {
				return apperr.Invalid("actor already exists: " + actorID)
			}
			g.Actors = append(g.Actors, a)
			return nil
		})
		if err != nil {
			return nil, err
		}
		if _, err := rt.Ledger.Append(groupID, ledger.Event{
			Kind: ledger.KindActorAdd, GroupID: groupID, By: ctx.By,
			Data: map[string]any{"actor_id": actorID},
		}); err != nil {
			return nil, err
		}
		return g, nil
	}, userOrForeman)

	d.Register("actor_update", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		actorID, err := ctx.StrRequired("actor_id")
		if err != nil {
			return nil, err
		}
		g, err := rt.Groups.Mutate(groupID, func(g *group.Group) error {
			a := g.FindActor(actorID)
			if a == nil {
				return apperr.NotFound(apperr.ActorNotFound, "actor not found: "+actorID)
			}
			if v, ok := ctx.Args["title"].(string); ok {
				a.Title = v
			}
			if v, ok := ctx.Args["submit"].(string); ok {
				a.Submit = group.Submit(v)
			}
			if v := ctx.StrSlice("command"); len(v) > 0 {
				a.Command = v
			}
			if v, ok := ctx.Args["enabled"].(bool); ok {
				a.Enabled = v
			}
			a.UpdatedAt = time.Now().UTC()
			return nil
		})
		if err != nil {
			return nil, err
		}
		if _, err := rt.Ledger.Append(groupID, ledger.Event{
			Kind: ledger.KindActorUpdate, GroupID: groupID, By: ctx.By,
			Data: map[string]any{"actor_id": actorID},
		}); err != nil {
			return nil, err
		}
		return g, nil
	}, userOrForeman)

	d.Register("actor_remove", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		actorID, err := ctx.StrRequired("actor_id")
		if err != nil {
			return nil, err
		}
		g, err := rt.Groups.Mutate(groupID, func(g *group.Group) error {
			if g.FindActor(actorID) == nil {
				return apperr.NotFound(apperr.ActorNotFound, "actor not found: "+actorID)
			}
			kept := g.Actors[:0]
			for _, a := range g.Actors {
				if a.ID != actorID {
					kept = append(kept, a)
				}
			}
			g.Actors = kept
			return nil
		})
		if err != nil {
			return nil, err
		}
		_ = rt.PTY.Stop(groupID, actorID, 5*time.Second)
		rt.Headless.Remove(groupID, actorID)
		if _, err := rt.Ledger.Append(groupID, ledger.Event{
			Kind: ledger.KindActorRemove, GroupID: groupID, By: ctx.By,
			Data: map[string]any{"actor_id": actorID},
		}); err != nil {
			return nil, err
		}
		return g, nil
	}, userOrForeman)

	d.Register("actor_start", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		actorID, err := ctx.StrRequired("actor_id")
		if err != nil {
			return nil, err
		}
		return startActor(rt, groupID, actorID, ctx.By)
	}, selfUserOrForeman)

	d.Register("actor_stop", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		actorID, err := ctx.StrRequired("actor_id")
		if err != nil {
			return nil, err
		}
		return stopActor(rt, groupID, actorID, ctx.By)
	}, selfUserOrForeman)

	d.Register("actor_restart", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		actorID, err := ctx.StrRequired("actor_id")
		if err != nil {
			return nil, err
		}
		if _, err := stopActor(rt, groupID, actorID, ctx.By); err != nil {
			return nil, err
		}
		return startActor(rt, groupID, actorID, ctx.By)
	}, selfUserOrForeman)

	d.Register("actor_env_private_get", func(ctx *OpContext) (any, error) {
		actorID, err := ctx.StrRequired("actor_id")
		if err != nil {
			return nil, err
		}
		values, err := rt.Secrets.GetActorSecrets(actorID)
		if err != nil {
			return nil, err
		}
		return secrets.MaskedPreview(values), nil
	}, userOrForeman)

	d.Register("actor_env_private_set", func(ctx *OpContext) (any, error) {
		actorID, err := ctx.StrRequired("actor_id")
		if err != nil {
			return nil, err
		}
		values := map[string]string{}
		if raw, ok := ctx.Args["values"].(map[string]any); ok {
			for k, v := range raw {
				if s, ok := v.(string); ok {
					values[k] = s
				}
			}
		}
		if err := rt.Secrets.SetActorSecrets(actorID, values); err != nil {
			return nil, err
		}
		return secrets.MaskedPreview(values), nil
	}, userOrForeman)

	registerActorProfileOps(d, rt, userOrForeman)
}

// registerActorProfileOps wires actor_profile_* (spec §6.1 "Actors"
// group, "CRUD + secret ops"; spec §3 "Actor Profile"). Profiles are a
// global resource with no group_id of their own, so creation/deletion/
// secret mutation is gated by RequireUser rather than a group-scoped
// permission; actor_profile_apply links a profile to one actor inside a
// group, so it reuses the ordinary user-or-foreman gate.
func registerActorProfileOps(d *Dispatcher, rt ActorRuntime, userOrForeman PermissionFunc) {
	requireUser := RequireUser()

	d.Register("actor_profile_list", func(ctx *OpContext) (any, error) {
		return rt.Secrets.ListProfiles()
	}, nil)

	d.Register("actor_profile_get", func(ctx *OpContext) (any, error) {
		profileID, err := ctx.StrRequired("profile_id")
		if err != nil {
			return nil, err
		}
		p, ok, err := rt.Secrets.GetProfile(profileID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.Invalid("profile not found: " + profileID)
		}
		return p, nil
	}, nil)

	d.Register("actor_profile_upsert", func(ctx *OpContext) (any, error) {
		profileID := ctx.Str("profile_id")
		if profileID == "" {
			profileID = idgen.Generic("profile")
		}
		p := secrets.Profile{
			ID:      profileID,
			Name:    ctx.Str("name"),
			Runtime: group.Runtime(ctx.Str("runtime")),
			Runner:  group.RunnerKind(ctx.Str("runner")),
			Command: ctx.StrSlice("command"),
			Submit:  group.Submit(ctx.Str("submit")),
		}
		return rt.Secrets.UpsertProfile(p)
	}, requireUser)

	d.Register("actor_profile_delete", func(ctx *OpContext) (any, error) {
		profileID, err := ctx.StrRequired("profile_id")
		if err != nil {
			return nil, err
		}
		if err := rt.Secrets.DeleteProfile(profileID); err != nil {
			return nil, err
		}
		return map[string]any{"profile_id": profileID}, nil
	}, requireUser)

	d.Register("actor_profile_secrets_get", func(ctx *OpContext) (any, error) {
		profileID, err := ctx.StrRequired("profile_id")
		if err != nil {
			return nil, err
		}
		values, err := rt.Secrets.GetProfileSecrets(profileID)
		if err != nil {
			return nil, err
		}
		return secrets.MaskedPreview(values), nil
	}, requireUser)

	d.Register("actor_profile_secrets_set", func(ctx *OpContext) (any, error) {
		profileID, err := ctx.StrRequired("profile_id")
		if err != nil {
			return nil, err
		}
		values := map[string]string{}
		if raw, ok := ctx.Args["values"].(map[string]any); ok {
			for k, v := range raw {
				if s, ok := v.(string); ok {
					values[k] = s
				}
			}
		}
		if err := rt.Secrets.SetProfileSecrets(profileID, values); err != nil {
			return nil, err
		}
		return secrets.MaskedPreview(values), nil
	}, requireUser)

	// actor_profile_apply links an actor to a profile (spec §3: "linked
	// actors record profile_revision_applied to detect drift and
	// re-apply before session start"). runtime/runner/command/submit are
	// taken over by the profile and actor.env is cleared so MergeEnv
	// sources private env only from the profile's own secret store.
	d.Register("actor_profile_apply", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		actorID, err := ctx.StrRequired("actor_id")
		if err != nil {
			return nil, err
		}
		profileID, err := ctx.StrRequired("profile_id")
		if err != nil {
			return nil, err
		}
		p, ok, err := rt.Secrets.GetProfile(profileID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.Invalid("profile not found: " + profileID)
		}

		g, err := rt.Groups.Mutate(groupID, func(g *group.Group) error {
			a := g.FindActor(actorID)
			if a == nil {
				return apperr.NotFound(apperr.ActorNotFound, "actor not found: "+actorID)
			}
			a.ProfileID = p.ID
			a.ProfileRevisionApplied = p.Revision
			a.Runtime = p.Runtime
			a.Runner = p.Runner
			a.Command = p.Command
			a.Submit = p.Submit
			a.Env = nil
			a.UpdatedAt = time.Now().UTC()
			return nil
		})
		if err != nil {
			return nil, err
		}
		if _, err := rt.Ledger.Append(groupID, ledger.Event{
			Kind: ledger.KindActorUpdate, GroupID: groupID, By: ctx.By,
			Data: map[string]any{"actor_id": actorID, "profile_id": p.ID, "profile_revision": p.Revision},
		}); err != nil {
			return nil, err
		}
		return g.FindActor(actorID), nil
	}, userOrForeman)
}

func startActor(rt ActorRuntime, groupID, actorID, by string) (*group.Actor, error) {
	g, err := rt.Groups.Load(groupID)
	if err != nil {
		return nil, err
	}
	a := g.FindActor(actorID)
	if a == nil {
		return nil, apperr.NotFound(apperr.ActorNotFound, "actor not found: "+actorID)
	}

	if rt.Delivery != nil {
		if err := rt.Delivery.ClearPreambleSent(groupID, actorID); err != nil {
			return nil, err
		}
	}

	switch a.Runner {
	case group.RunnerHeadless:
		rt.Headless.Start(groupID, actorID)
	default:
		priv, err := rt.Secrets.GetActorSecrets(actorID)
		if err != nil {
			return nil, err
		}
		env := secrets.MergeEnv(os.Environ(), a.Env, priv, groupID, actorID)
		sess, err := rt.PTY.Start(groupID, actorID, a.Runtime, pty.StartOptions{
			Command: a.Command,
			Env:     env,
		})
		if err != nil {
			return nil, err
		}
		if err := storage.WriteRunnerState(rt.Paths, groupID, "pty", actorID, sess.Pid(), sess.StartedAt); err != nil {
			return nil, err
		}
	}

	updated, err := rt.Groups.Mutate(groupID, func(g *group.Group) error {
		actor := g.FindActor(actorID)
		if actor == nil {
			return apperr.NotFound(apperr.ActorNotFound, "actor not found: "+actorID)
		}
		actor.Running = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if _, err := rt.Ledger.Append(groupID, ledger.Event{
		Kind: ledger.KindActorStart, GroupID: groupID, By: by,
		Data: map[string]any{"actor_id": actorID},
	}); err != nil {
		return nil, err
	}
	return updated.FindActor(actorID), nil
}

func stopActor(rt ActorRuntime, groupID, actorID, by string) (*group.Actor, error) {
	g, err := rt.Groups.Load(groupID)
	if err != nil {
		return nil, err
	}
	a := g.FindActor(actorID)
	if a == nil {
		return nil, apperr.NotFound(apperr.ActorNotFound, "actor not found: "+actorID)
	}

	switch a.Runner {
	case group.RunnerHeadless:
		rt.Headless.Stop(groupID, actorID)
	default:
		if err := rt.PTY.Stop(groupID, actorID, 5*time.Second); err != nil {
			return nil, err
		}
	}

	updated, err := rt.Groups.Mutate(groupID, func(g *group.Group) error {
		actor := g.FindActor(actorID)
		if actor == nil {
			return apperr.NotFound(apperr.ActorNotFound, "actor not found: "+actorID)
		}
		actor.Running = false
		return nil
	})
	if err != nil {
		return nil, err
	}
	if _, err := rt.Ledger.Append(groupID, ledger.Event{
		Kind: ledger.KindActorStop, GroupID: groupID, By: by,
		Data: map[string]any{"actor_id": actorID},
	}); err != nil {
		return nil, err
	}
	return updated.FindActor(actorID), nil
}

// ReconcileRunningActors re-launches every actor left `running=true`
// from a prior crash (spec §3 Lifecycle: "Running actors are
// reconciled at daemon start"). Called once at daemon startup, before
// the IPC transport starts serving. Failures for one actor are logged
// and don't stop reconciliation of the rest.
func ReconcileRunningActors(rt ActorRuntime, reg *registry.Registry, log *logging.Logger) (started int, err error) {
	entries, err := reg.List()
	if err != nil {
		return 0, err
	}
	for _, entry := range entries {
		g, loadErr := rt.Groups.Load(entry.GroupID)
		if loadErr != nil {
			if log != nil {
				log.Warn("reconcile: failed to load group", zap.String("group_id", entry.GroupID), zap.Error(loadErr))
			}
			continue
		}
		for _, a := range g.Actors {
			if !a.Enabled || !a.Running {
				continue
			}
			if _, startErr := startActor(rt, g.GroupID, a.ID, "daemon"); startErr != nil {
				if log != nil {
					log.Warn("reconcile: failed to restart actor",
						zap.String("group_id", g.GroupID), zap.String("actor_id", a.ID), zap.Error(startErr))
				}
				continue
			}
			started++
		}
	}
	return started, nil
}
