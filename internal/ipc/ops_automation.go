package ipc

import (
	"time"

	"github.com/cccc-dev/cccc/internal/apperr"
	"github.com/cccc-dev/cccc/internal/automation"
	"github.com/cccc-dev/cccc/internal/group"
	"github.com/cccc-dev/cccc/internal/idgen"
)

// RegisterAutomationOps wires group_automation_state/update/manage/
// reset_baseline (spec §6.1 "Automation" group, §4.I).
func RegisterAutomationOps(d *Dispatcher, groups *group.Store, auto *automation.Manager) {
	userOrForeman := RequireUserOrForeman(groups)
	manage := RequireAutomationManage(groups)

	d.Register("group_automation_state", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		g, err := groups.Load(groupID)
		if err != nil {
			return nil, err
		}
		st, err := auto.State(groupID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"settings": g.Automation, "runtime": st}, nil
	}, nil)

	d.Register("group_automation_update", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		g, err := groups.Mutate(groupID, func(g *group.Group) error {
			if v, ok := ctx.Args["version"].(float64); ok && int(v) != g.Automation.Version {
				return apperr.VersionConflictErr(int(v), g.Automation.Version)
			}
			applyAutomationSettingsPatch(&g.Automation, ctx.Args)
			g.Automation.Version++
			return nil
		})
		if err != nil {
			return nil, err
		}
		return g.Automation, nil
	}, userOrForeman)

	d.Register("group_automation_manage", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		action := ctx.Str("action")

		switch action {
		case "add", "update":
			r, err := ruleFromArgs(ctx, action)
			if err != nil {
				return nil, err
			}
			g, err := groups.Mutate(groupID, func(g *group.Group) error {
				if idx := findRuleIndex(g, r.ID); idx >= 0 {
					g.Automation.Rules[idx] = r
				} else {
					g.Automation.Rules = append(g.Automation.Rules, r)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
			return g.Automation, nil

		case "enable", "disable":
			ruleID, err := ctx.StrRequired("rule_id")
			if err != nil {
				return nil, err
			}
			g, err := groups.Mutate(groupID, func(g *group.Group) error {
				idx := findRuleIndex(g, ruleID)
				if idx < 0 {
					return apperr.Invalid("rule not found: " + ruleID)
				}
				g.Automation.Rules[idx].Enabled = action == "enable"
				return nil
			})
			if err != nil {
				return nil, err
			}
			return g.Automation, nil

		case "remove":
			ruleID, err := ctx.StrRequired("rule_id")
			if err != nil {
				return nil, err
			}
			g, err := groups.Mutate(groupID, func(g *group.Group) error {
				idx := findRuleIndex(g, ruleID)
				if idx < 0 {
					return apperr.Invalid("rule not found: " + ruleID)
				}
				g.Automation.Rules = append(g.Automation.Rules[:idx], g.Automation.Rules[idx+1:]...)
				return nil
			})
			if err != nil {
				return nil, err
			}
			return g.Automation, nil

		default:
			return nil, apperr.Invalid("action must be one of add, update, enable, disable, remove")
		}
	}, manage)

	d.Register("group_automation_reset_baseline", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		if err := auto.ResetBaseline(groupID); err != nil {
			return nil, err
		}
		return auto.State(groupID)
	}, userOrForeman)
}

// applyAutomationSettingsPatch copies every present timer/threshold key
// from args onto s, leaving absent keys untouched (same partial-update
// style as group_settings_update).
func applyAutomationSettingsPatch(s *group.AutomationSettings, args map[string]any) {
	intFields := map[string]*int{
		"reply_required_nudge_after_seconds": &s.ReplyRequiredNudgeAfterSeconds,
		"attention_ack_nudge_after_seconds":  &s.AttentionAckNudgeAfterSeconds,
		"unread_nudge_after_seconds":         &s.UnreadNudgeAfterSeconds,
		"nudge_digest_min_interval_seconds":  &s.NudgeDigestMinIntervalSeconds,
		"nudge_max_repeats_per_obligation":   &s.NudgeMaxRepeatsPerObligation,
		"nudge_escalate_after_repeats":       &s.NudgeEscalateAfterRepeats,
		"actor_idle_timeout_seconds":         &s.ActorIdleTimeoutSeconds,
		"keepalive_delay_seconds":            &s.KeepaliveDelaySeconds,
		"keepalive_max_per_actor":            &s.KeepaliveMaxPerActor,
		"silence_timeout_seconds":            &s.SilenceTimeoutSeconds,
		"help_nudge_interval_seconds":        &s.HelpNudgeIntervalSeconds,
		"help_nudge_min_messages":            &s.HelpNudgeMinMessages,
	}
	for key, field := range intFields {
		if v, ok := args[key].(float64); ok {
			*field = int(v)
		}
	}
	if raw, ok := args["snippets"].(map[string]any); ok {
		snippets := make(map[string]string, len(raw))
		for k, v := range raw {
			if s, ok := v.(string); ok {
				snippets[k] = s
			}
		}
		s.Snippets = snippets
	}
}

// ruleFromArgs builds a group.Rule from the flat op args (rather than a
// nested "rule" object) so RequireAutomationManage's permission check —
// which reads scope/owner_actor_id/action_kind directly off ctx.Args —
// sees the same values the rule itself is built from.
func ruleFromArgs(ctx *OpContext, action string) (group.Rule, error) {
	ruleID := ctx.Str("rule_id")
	if ruleID == "" {
		if action == "update" {
			return group.Rule{}, apperr.Invalid("rule_id is required")
		}
		ruleID = idgen.Generic("rule")
	}

	r := group.Rule{
		ID:           ruleID,
		Enabled:      ctx.Bool("enabled"),
		Scope:        group.RuleScope(ctx.Str("scope")),
		OwnerActorID: ctx.Str("owner_actor_id"),
		To:           ctx.StrSlice("to"),
		Trigger: group.Trigger{
			Kind:         group.TriggerKind(ctx.Str("trigger_kind")),
			EverySeconds: ctx.Int("every_seconds"),
			Cron:         ctx.Str("cron"),
			Timezone:     ctx.Str("timezone"),
		},
		Action: group.Action{
			Kind:       group.ActionKind(ctx.Str("action_kind")),
			SnippetRef: ctx.Str("snippet_ref"),
			Message:    ctx.Str("message"),
			State:      group.State(ctx.Str("state")),
			ControlOp:  group.ActorControlOp(ctx.Str("control_op")),
			Target:     ctx.Str("target"),
		},
	}
	if r.Scope == "" {
		return group.Rule{}, apperr.Invalid("scope is required")
	}
	if r.Action.Kind == "" {
		return group.Rule{}, apperr.Invalid("action_kind is required")
	}
	if at := ctx.Str("at"); at != "" {
		parsed, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return group.Rule{}, apperr.Invalid("at must be RFC3339: " + err.Error())
		}
		r.Trigger.At = parsed
	}
	return r, nil
}

func findRuleIndex(g *group.Group, ruleID string) int {
	for i := range g.Automation.Rules {
		if g.Automation.Rules[i].ID == ruleID {
			return i
		}
	}
	return -1
}
