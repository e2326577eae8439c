package automation

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cccc-dev/cccc/internal/group"
)

var snippetVarRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// SupportedSnippetVars lists the template variables a notify rule's
// message/snippet may reference (spec §4.I.6).
var SupportedSnippetVars = []string{"interval_minutes", "group_title", "actor_names", "scheduled_at"}

func renderSnippet(text string, ctx map[string]string) string {
	return snippetVarRe.ReplaceAllStringFunc(text, func(m string) string {
		key := strings.TrimSpace(snippetVarRe.FindStringSubmatch(m)[1])
		return ctx[key]
	})
}

func actorDisplayNames(g *group.Group) string {
	var names []string
	for _, a := range g.Actors {
		if !a.Enabled || a.ID == "user" {
			continue
		}
		if a.Title != "" {
			names = append(names, a.Title)
		} else {
			names = append(names, a.ID)
		}
	}
	return strings.Join(names, ", ")
}

// resolveRecipients expands @all/@foreman/@peers/<actor_id> tokens into
// a concrete, deduplicated, order-stable list of actor ids, excluding
// "user" (spec §4.E addressing, reused for rule "to"/actor_control
// "target" resolution).
func resolveRecipients(g *group.Group, tokens []string) []string {
	foreman := g.Foreman()
	var foremanID string
	if foreman != nil {
		foremanID = foreman.ID
	}

	selected := map[string]bool{}
	for _, tok := range tokens {
		t := strings.TrimSpace(tok)
		switch t {
		case "@all":
			for _, a := range g.Actors {
				if a.ID != "user" {
					selected[a.ID] = true
				}
			}
		case "@foreman":
			if foremanID != "" {
				selected[foremanID] = true
			}
		case "@peers":
			for _, a := range g.Actors {
				if a.ID != "user" && a.ID != foremanID {
					selected[a.ID] = true
				}
			}
		case "":
		default:
			if a := g.FindActor(t); a != nil && a.ID != "user" {
				selected[t] = true
			}
		}
	}

	var out []string
	for _, a := range g.Actors {
		if selected[a.ID] {
			out = append(out, a.ID)
		}
	}
	return out
}

// dueRule is one rule found due to fire during a tick, carrying
// whatever its trigger/action need to execute and to persist afterward.
type dueRule struct {
	rule        group.Rule
	triggerKind group.TriggerKind
	slotKey     string
	scheduledAt string

	// notify-action specifics
	rendered     string
	recipientIDs []string
}

func isoUTC(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// ruleDue evaluates one rule's trigger against now, returning the due
// descriptor (nil if not due) and whether persisted state changed.
func ruleDue(g *group.Group, r group.Rule, st *RuleState, now time.Time) (*dueRule, bool, error) {
	if !r.Enabled {
		return nil, false, nil
	}

	var slotKey, scheduledAt string
	intervalSeconds := 0

	switch r.Trigger.Kind {
	case group.TriggerInterval:
		intervalSeconds = r.Trigger.EverySeconds
		if intervalSeconds <= 0 {
			return nil, false, nil
		}
		if st.LastFiredAt.IsZero() {
			st.LastFiredAt = now
			return nil, true, nil
		}
		elapsed := now.Sub(st.LastFiredAt).Seconds()
		if elapsed < float64(intervalSeconds) {
			return nil, false, nil
		}
		scheduledAt = isoUTC(st.LastFiredAt.Add(time.Duration(intervalSeconds) * time.Second))

	case group.TriggerCron:
		tz := r.Trigger.Timezone
		if tz == "" {
			tz = "UTC"
		}
		spec, err := compileCron(r.Trigger.Cron)
		if err != nil {
			return nil, false, err
		}
		loc, err := time.LoadLocation(tz)
		if err != nil {
			loc = time.UTC
		}
		localNow := now.In(loc)
		slotLocal := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), localNow.Hour(), localNow.Minute(), 0, 0, loc)
		if !cronMatches(spec, slotLocal) {
			return nil, false, nil
		}
		slotUTC := slotLocal.UTC()
		slotKey = "cron:" + isoUTC(slotUTC)
		if st.LastSlotKey == slotKey {
			return nil, false, nil
		}
		st.LastSlotKey = slotKey
		scheduledAt = isoUTC(slotUTC)

	case group.TriggerAt:
		if r.Trigger.At.IsZero() {
			return nil, false, nil
		}
		if st.AtFired {
			return nil, false, nil
		}
		if now.Before(r.Trigger.At) {
			return nil, false, nil
		}
		slotKey = "at:" + isoUTC(r.Trigger.At)
		scheduledAt = isoUTC(r.Trigger.At)

	default:
		return nil, false, nil
	}

	due := &dueRule{rule: r, triggerKind: r.Trigger.Kind, slotKey: slotKey, scheduledAt: scheduledAt}

	if r.Action.Kind == group.ActionNotify {
		template := r.Action.Message
		snippetRef := r.Action.SnippetRef
		if snippetRef != "" {
			if s, ok := groupSnippet(g, snippetRef); ok {
				template = s
			}
		}
		template = strings.TrimSpace(template)
		if template == "" {
			return nil, true, nil
		}
		ctx := map[string]string{
			"interval_minutes": intervalMinutes(intervalSeconds),
			"group_title":      g.Title,
			"actor_names":      actorDisplayNames(g),
			"scheduled_at":     scheduledAt,
		}
		rendered := strings.TrimSpace(renderSnippet(template, ctx))
		if rendered == "" {
			return nil, true, nil
		}
		recipients := resolveRecipients(g, r.To)
		if len(recipients) == 0 {
			return nil, true, nil
		}
		due.rendered = rendered
		due.recipientIDs = recipients
	}

	return due, true, nil
}

func groupSnippet(g *group.Group, ref string) (string, bool) {
	s, ok := g.Automation.Snippets[ref]
	return s, ok
}

func intervalMinutes(seconds int) string {
	if seconds < 60 {
		return "0"
	}
	minutes := seconds / 60
	if minutes < 1 {
		minutes = 1
	}
	return strconv.Itoa(minutes)
}
