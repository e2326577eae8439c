package automation

import (
	"os"
	"time"

	"github.com/cccc-dev/cccc/internal/group"
	"github.com/cccc-dev/cccc/internal/ledger"
	"github.com/cccc-dev/cccc/internal/runner/headless"
	"github.com/cccc-dev/cccc/internal/runner/pty"
	"github.com/cccc-dev/cccc/internal/secrets"
)

// Runtime bundles the dependencies a group_state/actor_control rule
// action needs to actually carry out a start/stop/restart or state
// transition, independent of the IPC op layer (spec §4.I.6's action
// kinds reuse the same underlying primitives as the matching IPC ops,
// invoked directly rather than by a daemon-internal RPC loop-back).
type Runtime struct {
	Groups   *group.Store
	Ledger   *ledger.Store
	Secrets  *secrets.Store
	PTY      *pty.Supervisor
	Headless *headless.Registry
}

const stopGrace = 5 * time.Second

func startActorByRule(rt Runtime, groupID, actorID string) error {
	g, err := rt.Groups.Load(groupID)
	if err != nil {
		return err
	}
	a := g.FindActor(actorID)
	if a == nil {
		return nil
	}
	if a.Runner == group.RunnerHeadless {
		rt.Headless.Start(groupID, actorID)
	} else {
		priv, err := rt.Secrets.GetActorSecrets(actorID)
		if err != nil {
			priv = nil
		}
		env := secrets.MergeEnv(os.Environ(), a.Env, priv, groupID, actorID)
		if _, err := rt.PTY.Start(groupID, actorID, a.Runtime, pty.StartOptions{Command: a.Command, Env: env}); err != nil {
			return err
		}
	}
	_, err = rt.Groups.Mutate(groupID, func(g *group.Group) error {
		if actor := g.FindActor(actorID); actor != nil {
			actor.Running = true
		}
		return nil
	})
	if err != nil {
		return err
	}
	_, err = rt.Ledger.Append(groupID, ledger.Event{
		Kind: ledger.KindActorStart, GroupID: groupID, By: "automation",
		Data: map[string]any{"actor_id": actorID},
	})
	return err
}

func stopActorByRule(rt Runtime, groupID, actorID string) error {
	g, err := rt.Groups.Load(groupID)
	if err != nil {
		return err
	}
	a := g.FindActor(actorID)
	if a == nil {
		return nil
	}
	if a.Runner == group.RunnerHeadless {
		rt.Headless.Stop(groupID, actorID)
	} else if err := rt.PTY.Stop(groupID, actorID, stopGrace); err != nil {
		return err
	}
	_, err = rt.Groups.Mutate(groupID, func(g *group.Group) error {
		if actor := g.FindActor(actorID); actor != nil {
			actor.Running = false
		}
		return nil
	})
	if err != nil {
		return err
	}
	_, err = rt.Ledger.Append(groupID, ledger.Event{
		Kind: ledger.KindActorStop, GroupID: groupID, By: "automation",
		Data: map[string]any{"actor_id": actorID},
	})
	return err
}

// executeActorControl applies start/stop/restart to every resolved
// target, succeeding if at least one target succeeded (spec §4.I.6:
// a rule targeting a mixed roster should not fail outright because one
// actor is already in the requested state).
func executeActorControl(rt Runtime, g *group.Group, op group.ActorControlOp, targets []string) (bool, string) {
	actorIDs := resolveRecipients(g, targets)
	if len(actorIDs) == 0 {
		return false, "no actor targets resolved"
	}

	successCount := 0
	var lastErr string
	for _, aid := range actorIDs {
		var err error
		switch op {
		case group.ActorControlStart:
			err = startActorByRule(rt, g.GroupID, aid)
		case group.ActorControlStop:
			err = stopActorByRule(rt, g.GroupID, aid)
		case group.ActorControlRestart:
			_ = stopActorByRule(rt, g.GroupID, aid)
			err = startActorByRule(rt, g.GroupID, aid)
		default:
			return false, "unsupported actor operation: " + string(op)
		}
		if err != nil {
			lastErr = err.Error()
			continue
		}
		successCount++
	}

	if successCount > 0 {
		return true, ""
	}
	return false, lastErr
}

// executeGroupState applies a group_state rule action.
func executeGroupState(rt Runtime, groupID string, target group.State) (bool, string) {
	switch target {
	case group.StateActive, group.StateIdle, group.StatePaused:
	default:
		return false, "unsupported group state: " + string(target)
	}
	_, err := rt.Groups.Mutate(groupID, func(g *group.Group) error {
		g.State = target
		return nil
	})
	if err != nil {
		return false, err.Error()
	}
	return true, ""
}
