// Package groupcontext implements spec §6.1's "IM & misc" group's
// `context_*` ops ("group context editing"): each group's shared
// working memory — a one-sentence vision, a static execution sketch,
// coarse milestones, deliverable-sized tasks with step checklists,
// freeform notes, file/URL references, and per-actor presence status.
// It is editable state alongside the group's core fields
// (internal/group), not part of group.yaml itself, so a runaway
// context edit never risks corrupting actor/runner configuration.
package groupcontext

import (
	"fmt"
	"os"
	"time"

	"github.com/cccc-dev/cccc/internal/apperr"
	"github.com/cccc-dev/cccc/internal/group"
	"github.com/cccc-dev/cccc/internal/storage"
)

// Status values shared by milestones and tasks.
const (
	StatusPlanned  = "planned"
	StatusActive   = "active"
	StatusDone     = "done"
	StatusArchived = "archived"
)

// Step statuses.
const (
	StepPending    = "pending"
	StepInProgress = "in_progress"
	StepDone       = "done"
)

type Step struct {
	ID         string `yaml:"id" json:"id"`
	Name       string `yaml:"name" json:"name"`
	Acceptance string `yaml:"acceptance" json:"acceptance"`
	Status     string `yaml:"status" json:"status"`
}

type Task struct {
	ID          string    `yaml:"id" json:"id"`
	Name        string    `yaml:"name" json:"name"`
	Goal        string    `yaml:"goal" json:"goal"`
	Steps       []Step    `yaml:"steps" json:"steps"`
	MilestoneID string    `yaml:"milestone_id,omitempty" json:"milestone_id,omitempty"`
	Assignee    string    `yaml:"assignee,omitempty" json:"assignee,omitempty"`
	Status      string    `yaml:"status" json:"status"`
	CreatedAt   time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt   time.Time `yaml:"updated_at" json:"updated_at"`
}

type Milestone struct {
	ID          string    `yaml:"id" json:"id"`
	Name        string    `yaml:"name" json:"name"`
	Description string    `yaml:"description" json:"description"`
	Status      string    `yaml:"status" json:"status"`
	Outcomes    string    `yaml:"outcomes,omitempty" json:"outcomes,omitempty"`
	CreatedAt   time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt   time.Time `yaml:"updated_at" json:"updated_at"`
}

type Note struct {
	ID        string    `yaml:"id" json:"id"`
	Content   string    `yaml:"content" json:"content"`
	By        string    `yaml:"by" json:"by"`
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at" json:"updated_at"`
}

type Reference struct {
	ID  string `yaml:"id" json:"id"`
	URL string `yaml:"url" json:"url"`
	Note string `yaml:"note" json:"note"`
}

type Presence struct {
	Status    string    `yaml:"status" json:"status"`
	UpdatedAt time.Time `yaml:"updated_at" json:"updated_at"`
}

// Context is one group's full shared working memory (spec §6.1
// "context_* group context editing").
type Context struct {
	Vision     string              `yaml:"vision" json:"vision"`
	Sketch     string              `yaml:"sketch" json:"sketch"`
	Milestones []Milestone         `yaml:"milestones" json:"milestones"`
	Tasks      []Task              `yaml:"tasks" json:"tasks"`
	Notes      []Note              `yaml:"notes" json:"notes"`
	References []Reference         `yaml:"references" json:"references"`
	Presence   map[string]Presence `yaml:"presence" json:"presence"`

	nextMilestone int
	nextTask      int
	nextNote      int
	nextReference int
}

// Store persists Context documents, one per group, reusing the
// group.Store's per-group_id mutex so context edits serialise with
// group.yaml mutations the same way every other group-scoped write
// does (spec §5).
type Store struct {
	paths  storage.Paths
	groups *group.Store
}

func NewStore(paths storage.Paths, groups *group.Store) *Store {
	return &Store{paths: paths, groups: groups}
}

func (s *Store) load(groupID string) (*Context, error) {
	var c Context
	if err := storage.ReadYAML(s.paths.ContextYAML(groupID), &c); err != nil {
		if os.IsNotExist(err) {
			return &Context{Presence: map[string]Presence{}}, nil
		}
		return nil, apperr.Internal(err)
	}
	if c.Presence == nil {
		c.Presence = map[string]Presence{}
	}
	return &c, nil
}

func (s *Store) save(groupID string, c *Context) error {
	return storage.WriteYAMLAtomic(s.paths.ContextYAML(groupID), c, 0o644)
}

// Get returns the current context document, hiding archived milestones
// and tasks unless includeArchived is set (matching the original
// tool's "Archived milestones are hidden by default").
func (s *Store) Get(groupID string, includeArchived bool) (*Context, error) {
	c, err := s.load(groupID)
	if err != nil {
		return nil, err
	}
	if includeArchived {
		return c, nil
	}
	visible := *c
	visible.Milestones = filterArchived(c.Milestones, func(m Milestone) bool { return m.Status != StatusArchived })
	visible.Tasks = filterArchivedTasks(c.Tasks)
	return &visible, nil
}

func filterArchived(ms []Milestone, keep func(Milestone) bool) []Milestone {
	out := make([]Milestone, 0, len(ms))
	for _, m := range ms {
		if keep(m) {
			out = append(out, m)
		}
	}
	return out
}

func filterArchivedTasks(ts []Task) []Task {
	out := make([]Task, 0, len(ts))
	for _, t := range ts {
		if t.Status != StatusArchived {
			out = append(out, t)
		}
	}
	return out
}

// mutate loads, mutates under the group's lock, and saves. A non-nil
// error from fn (e.g. a failed id lookup) is returned and nothing is
// persisted.
func (s *Store) mutate(groupID string, fn func(c *Context) error) (*Context, error) {
	unlock := s.groups.Lock(groupID)
	defer unlock()

	c, err := s.load(groupID)
	if err != nil {
		return nil, err
	}
	if err := fn(c); err != nil {
		return nil, err
	}
	if err := s.save(groupID, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) UpdateVision(groupID, vision string) (*Context, error) {
	return s.mutate(groupID, func(c *Context) error {
		c.Vision = vision
		return nil
	})
}

func (s *Store) UpdateSketch(groupID, sketch string) (*Context, error) {
	return s.mutate(groupID, func(c *Context) error {
		c.Sketch = sketch
		return nil
	})
}

func (s *Store) CreateMilestone(groupID, name, description, status string) (Milestone, error) {
	if status == "" {
		status = StatusPlanned
	}
	var created Milestone
	_, err := s.mutate(groupID, func(c *Context) error {
		c.nextMilestone = len(c.Milestones) + 1
		now := time.Now().UTC()
		created = Milestone{
			ID: fmt.Sprintf("M%d", c.nextMilestone), Name: name, Description: description,
			Status: status, CreatedAt: now, UpdatedAt: now,
		}
		c.Milestones = append(c.Milestones, created)
		return nil
	})
	return created, err
}

func (s *Store) UpdateMilestone(groupID, milestoneID, name, description, status string) (Milestone, error) {
	var updated Milestone
	_, err := s.mutate(groupID, func(c *Context) error {
		idx := findMilestone(c.Milestones, milestoneID)
		if idx < 0 {
			return apperr.Invalid("milestone not found: " + milestoneID)
		}
		m := &c.Milestones[idx]
		if name != "" {
			m.Name = name
		}
		if description != "" {
			m.Description = description
		}
		if status != "" {
			m.Status = status
		}
		m.UpdatedAt = time.Now().UTC()
		updated = *m
		return nil
	})
	return updated, err
}

func (s *Store) CompleteMilestone(groupID, milestoneID, outcomes string) (Milestone, error) {
	var updated Milestone
	_, err := s.mutate(groupID, func(c *Context) error {
		idx := findMilestone(c.Milestones, milestoneID)
		if idx < 0 {
			return apperr.Invalid("milestone not found: " + milestoneID)
		}
		m := &c.Milestones[idx]
		m.Status = StatusDone
		m.Outcomes = outcomes
		m.UpdatedAt = time.Now().UTC()
		updated = *m
		return nil
	})
	return updated, err
}

func findMilestone(ms []Milestone, id string) int {
	for i, m := range ms {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// TaskStep describes one step in a new task (spec's 3-7 step checklist).
type TaskStep struct {
	Name       string
	Acceptance string
}

func (s *Store) CreateTask(groupID, name, goal string, steps []TaskStep, milestoneID, assignee string) (Task, error) {
	var created Task
	_, err := s.mutate(groupID, func(c *Context) error {
		c.nextTask = len(c.Tasks) + 1
		now := time.Now().UTC()
		stepRecords := make([]Step, 0, len(steps))
		for i, st := range steps {
			stepRecords = append(stepRecords, Step{
				ID: fmt.Sprintf("S%d", i+1), Name: st.Name, Acceptance: st.Acceptance, Status: StepPending,
			})
		}
		created = Task{
			ID: fmt.Sprintf("T%03d", c.nextTask), Name: name, Goal: goal, Steps: stepRecords,
			MilestoneID: milestoneID, Assignee: assignee, Status: StatusPlanned,
			CreatedAt: now, UpdatedAt: now,
		}
		c.Tasks = append(c.Tasks, created)
		return nil
	})
	return created, err
}

// TaskPatch carries optional field updates for UpdateTask; empty
// strings mean "leave unchanged" except where noted.
type TaskPatch struct {
	Status      string
	Name        string
	Goal        string
	Assignee    string
	MilestoneID string
	StepID      string
	StepStatus  string
}

func (s *Store) UpdateTask(groupID, taskID string, patch TaskPatch) (Task, error) {
	var updated Task
	_, err := s.mutate(groupID, func(c *Context) error {
		idx := findTask(c.Tasks, taskID)
		if idx < 0 {
			return apperr.Invalid("task not found: " + taskID)
		}
		t := &c.Tasks[idx]
		if patch.Status != "" {
			t.Status = patch.Status
		}
		if patch.Name != "" {
			t.Name = patch.Name
		}
		if patch.Goal != "" {
			t.Goal = patch.Goal
		}
		if patch.Assignee != "" {
			t.Assignee = patch.Assignee
		}
		if patch.MilestoneID != "" {
			t.MilestoneID = patch.MilestoneID
		}
		if patch.StepID != "" {
			sidx := findStep(t.Steps, patch.StepID)
			if sidx < 0 {
				return apperr.Invalid("step not found: " + patch.StepID)
			}
			if patch.StepStatus != "" {
				t.Steps[sidx].Status = patch.StepStatus
			}
		}
		t.UpdatedAt = time.Now().UTC()
		updated = *t
		return nil
	})
	return updated, err
}

func findTask(ts []Task, id string) int {
	for i, t := range ts {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func findStep(steps []Step, id string) int {
	for i, st := range steps {
		if st.ID == id {
			return i
		}
	}
	return -1
}

// TaskOrList returns one task (if taskID is set) or every non-archived
// task (spec's "list all tasks or get single task details").
func (s *Store) TaskOrList(groupID, taskID string, includeArchived bool) (any, error) {
	c, err := s.load(groupID)
	if err != nil {
		return nil, err
	}
	if taskID != "" {
		idx := findTask(c.Tasks, taskID)
		if idx < 0 {
			return nil, apperr.Invalid("task not found: " + taskID)
		}
		return c.Tasks[idx], nil
	}
	if includeArchived {
		return c.Tasks, nil
	}
	return filterArchivedTasks(c.Tasks), nil
}

func (s *Store) AddNote(groupID, content, by string) (Note, error) {
	var created Note
	_, err := s.mutate(groupID, func(c *Context) error {
		c.nextNote = len(c.Notes) + 1
		now := time.Now().UTC()
		created = Note{ID: fmt.Sprintf("N%03d", c.nextNote), Content: content, By: by, CreatedAt: now, UpdatedAt: now}
		c.Notes = append(c.Notes, created)
		return nil
	})
	return created, err
}

func (s *Store) UpdateNote(groupID, noteID, content string) (Note, error) {
	var updated Note
	_, err := s.mutate(groupID, func(c *Context) error {
		for i := range c.Notes {
			if c.Notes[i].ID == noteID {
				c.Notes[i].Content = content
				c.Notes[i].UpdatedAt = time.Now().UTC()
				updated = c.Notes[i]
				return nil
			}
		}
		return apperr.Invalid("note not found: " + noteID)
	})
	return updated, err
}

func (s *Store) RemoveNote(groupID, noteID string) error {
	_, err := s.mutate(groupID, func(c *Context) error {
		for i, n := range c.Notes {
			if n.ID == noteID {
				c.Notes = append(c.Notes[:i], c.Notes[i+1:]...)
				return nil
			}
		}
		return apperr.Invalid("note not found: " + noteID)
	})
	return err
}

func (s *Store) AddReference(groupID, url, note string) (Reference, error) {
	var created Reference
	_, err := s.mutate(groupID, func(c *Context) error {
		c.nextReference = len(c.References) + 1
		created = Reference{ID: fmt.Sprintf("R%03d", c.nextReference), URL: url, Note: note}
		c.References = append(c.References, created)
		return nil
	})
	return created, err
}

func (s *Store) UpdateReference(groupID, referenceID, url, note string) (Reference, error) {
	var updated Reference
	_, err := s.mutate(groupID, func(c *Context) error {
		for i := range c.References {
			if c.References[i].ID == referenceID {
				if url != "" {
					c.References[i].URL = url
				}
				if note != "" {
					c.References[i].Note = note
				}
				updated = c.References[i]
				return nil
			}
		}
		return apperr.Invalid("reference not found: " + referenceID)
	})
	return updated, err
}

func (s *Store) RemoveReference(groupID, referenceID string) error {
	_, err := s.mutate(groupID, func(c *Context) error {
		for i, r := range c.References {
			if r.ID == referenceID {
				c.References = append(c.References[:i], c.References[i+1:]...)
				return nil
			}
		}
		return apperr.Invalid("reference not found: " + referenceID)
	})
	return err
}

func (s *Store) PresenceGet(groupID string) (map[string]Presence, error) {
	c, err := s.load(groupID)
	if err != nil {
		return nil, err
	}
	return c.Presence, nil
}

func (s *Store) PresenceUpdate(groupID, actorID, status string) (Presence, error) {
	var updated Presence
	_, err := s.mutate(groupID, func(c *Context) error {
		updated = Presence{Status: status, UpdatedAt: time.Now().UTC()}
		c.Presence[actorID] = updated
		return nil
	})
	return updated, err
}

func (s *Store) PresenceClear(groupID, actorID string) error {
	_, err := s.mutate(groupID, func(c *Context) error {
		delete(c.Presence, actorID)
		return nil
	})
	return err
}
