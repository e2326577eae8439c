package ipc

import "github.com/cccc-dev/cccc/internal/groupcontext"

// RegisterContextOps wires context_* (spec §6.1 "IM & misc" group,
// "group context editing"): each group's shared vision/sketch/
// milestones/tasks/notes/references/presence document. Left ungated
// like the chat ops (send/reply) — every actor routinely updates its
// own context entries as part of ordinary work, not just the user or
// foreman.
func RegisterContextOps(d *Dispatcher, store *groupcontext.Store) {
	d.Register("context_get", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		return store.Get(groupID, ctx.Bool("include_archived"))
	}, nil)

	d.Register("context_vision_update", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		vision, err := ctx.StrRequired("vision")
		if err != nil {
			return nil, err
		}
		return store.UpdateVision(groupID, vision)
	}, nil)

	d.Register("context_sketch_update", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		sketch, err := ctx.StrRequired("sketch")
		if err != nil {
			return nil, err
		}
		return store.UpdateSketch(groupID, sketch)
	}, nil)

	d.Register("context_milestone_create", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		name, err := ctx.StrRequired("name")
		if err != nil {
			return nil, err
		}
		description, err := ctx.StrRequired("description")
		if err != nil {
			return nil, err
		}
		return store.CreateMilestone(groupID, name, description, ctx.Str("status"))
	}, nil)

	d.Register("context_milestone_update", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		milestoneID, err := ctx.StrRequired("milestone_id")
		if err != nil {
			return nil, err
		}
		return store.UpdateMilestone(groupID, milestoneID, ctx.Str("name"), ctx.Str("description"), ctx.Str("status"))
	}, nil)

	d.Register("context_milestone_complete", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		milestoneID, err := ctx.StrRequired("milestone_id")
		if err != nil {
			return nil, err
		}
		outcomes, err := ctx.StrRequired("outcomes")
		if err != nil {
			return nil, err
		}
		return store.CompleteMilestone(groupID, milestoneID, outcomes)
	}, nil)

	d.Register("context_task_list", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		return store.TaskOrList(groupID, ctx.Str("task_id"), ctx.Bool("include_archived"))
	}, nil)

	d.Register("context_task_create", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		name, err := ctx.StrRequired("name")
		if err != nil {
			return nil, err
		}
		goal, err := ctx.StrRequired("goal")
		if err != nil {
			return nil, err
		}
		steps := parseTaskSteps(ctx.Args["steps"])
		return store.CreateTask(groupID, name, goal, steps, ctx.Str("milestone_id"), ctx.Str("assignee"))
	}, nil)

	d.Register("context_task_update", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		taskID, err := ctx.StrRequired("task_id")
		if err != nil {
			return nil, err
		}
		patch := groupcontext.TaskPatch{
			Status: ctx.Str("status"), Name: ctx.Str("name"), Goal: ctx.Str("goal"),
			Assignee: ctx.Str("assignee"), MilestoneID: ctx.Str("milestone_id"),
			StepID: ctx.Str("step_id"), StepStatus: ctx.Str("step_status"),
		}
		return store.UpdateTask(groupID, taskID, patch)
	}, nil)

	d.Register("context_note_add", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		content, err := ctx.StrRequired("content")
		if err != nil {
			return nil, err
		}
		return store.AddNote(groupID, content, ctx.By)
	}, nil)

	d.Register("context_note_update", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		noteID, err := ctx.StrRequired("note_id")
		if err != nil {
			return nil, err
		}
		return store.UpdateNote(groupID, noteID, ctx.Str("content"))
	}, nil)

	d.Register("context_note_remove", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		noteID, err := ctx.StrRequired("note_id")
		if err != nil {
			return nil, err
		}
		if err := store.RemoveNote(groupID, noteID); err != nil {
			return nil, err
		}
		return map[string]any{"note_id": noteID}, nil
	}, nil)

	d.Register("context_reference_add", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		url, err := ctx.StrRequired("url")
		if err != nil {
			return nil, err
		}
		note, err := ctx.StrRequired("note")
		if err != nil {
			return nil, err
		}
		return store.AddReference(groupID, url, note)
	}, nil)

	d.Register("context_reference_update", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		referenceID, err := ctx.StrRequired("reference_id")
		if err != nil {
			return nil, err
		}
		return store.UpdateReference(groupID, referenceID, ctx.Str("url"), ctx.Str("note"))
	}, nil)

	d.Register("context_reference_remove", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		referenceID, err := ctx.StrRequired("reference_id")
		if err != nil {
			return nil, err
		}
		if err := store.RemoveReference(groupID, referenceID); err != nil {
			return nil, err
		}
		return map[string]any{"reference_id": referenceID}, nil
	}, nil)

	d.Register("context_presence_get", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		return store.PresenceGet(groupID)
	}, nil)

	d.Register("context_presence_update", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		status, err := ctx.StrRequired("status")
		if err != nil {
			return nil, err
		}
		actorID := ctx.Str("agent_id")
		if actorID == "" {
			actorID = ctx.By
		}
		return store.PresenceUpdate(groupID, actorID, status)
	}, nil)

	d.Register("context_presence_clear", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		actorID := ctx.Str("agent_id")
		if actorID == "" {
			actorID = ctx.By
		}
		if err := store.PresenceClear(groupID, actorID); err != nil {
			return nil, err
		}
		return map[string]any{"agent_id": actorID}, nil
	}, nil)
}

func parseTaskSteps(raw any) []groupcontext.TaskStep {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]groupcontext.TaskStep, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		acceptance, _ := m["acceptance"].(string)
		out = append(out, groupcontext.TaskStep{Name: name, Acceptance: acceptance})
	}
	return out
}
