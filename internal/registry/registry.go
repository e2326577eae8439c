// Package registry implements §4.B: the cross-group index that maps
// group ids to their on-disk directories, plus the single "active
// group" pointer used when a caller omits group_id.
package registry

import (
	"os"
	"sync"
	"time"

	"github.com/cccc-dev/cccc/internal/apperr"
	"github.com/cccc-dev/cccc/internal/group"
	"github.com/cccc-dev/cccc/internal/storage"
)

// Entry is one registry.json record.
type Entry struct {
	GroupID   string    `json:"group_id"`
	Dir       string    `json:"dir"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// file is the on-disk shape of registry.json.
type file struct {
	Groups map[string]Entry `json:"groups"`
}

// active is the on-disk shape of active.json.
type active struct {
	GroupID string `json:"group_id"`
}

// Registry guards registry.json and active.json with a single mutex;
// unlike group.Store there is exactly one of these per daemon, so no
// per-key mutex map is needed.
type Registry struct {
	paths storage.Paths
	mu    sync.Mutex
}

func New(paths storage.Paths) *Registry {
	return &Registry{paths: paths}
}

func (r *Registry) load() (file, error) {
	var f file
	err := storage.ReadJSON(r.paths.RegistryFile(), &f)
	if err != nil {
		if os.IsNotExist(err) {
			return file{Groups: map[string]Entry{}}, nil
		}
		return file{}, apperr.Internal(err)
	}
	if f.Groups == nil {
		f.Groups = map[string]Entry{}
	}
	return f, nil
}

func (r *Registry) save(f file) error {
	return storage.WriteJSONAtomic(r.paths.RegistryFile(), f, 0o644)
}

func (r *Registry) loadActive() (active, error) {
	var a active
	err := storage.ReadJSON(r.paths.ActiveFile(), &a)
	if err != nil {
		if os.IsNotExist(err) {
			return active{}, nil
		}
		return active{}, apperr.Internal(err)
	}
	return a, nil
}

func (r *Registry) saveActive(a active) error {
	return storage.WriteJSONAtomic(r.paths.ActiveFile(), a, 0o644)
}

// Register adds or updates a group's registry entry.
func (r *Registry) Register(e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := r.load()
	if err != nil {
		return err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	f.Groups[e.GroupID] = e
	return r.save(f)
}

// Unregister removes a group's registry entry and clears the active
// pointer if it referenced this group.
func (r *Registry) Unregister(groupID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := r.load()
	if err != nil {
		return err
	}
	delete(f.Groups, groupID)
	if err := r.save(f); err != nil {
		return err
	}

	a, err := r.loadActive()
	if err != nil {
		return err
	}
	if a.GroupID == groupID {
		return r.saveActive(active{})
	}
	return nil
}

// List returns every registered entry.
func (r *Registry) List() ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := r.load()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(f.Groups))
	for _, e := range f.Groups {
		out = append(out, e)
	}
	return out, nil
}

// Get looks up a single registry entry.
func (r *Registry) Get(groupID string) (Entry, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := r.load()
	if err != nil {
		return Entry{}, false, err
	}
	e, ok := f.Groups[groupID]
	return e, ok, nil
}

// Active returns the currently active group id, or "" if none is set.
func (r *Registry) Active() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, err := r.loadActive()
	if err != nil {
		return "", err
	}
	return a.GroupID, nil
}

// SetActive sets the active group pointer, requiring the group to be
// registered first.
func (r *Registry) SetActive(groupID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := r.load()
	if err != nil {
		return err
	}
	if _, ok := f.Groups[groupID]; !ok {
		return apperr.NotFound(apperr.GroupNotFound, "group not registered: "+groupID)
	}
	return r.saveActive(active{GroupID: groupID})
}

// ReconcileResult reports what Reconcile found.
type ReconcileResult struct {
	Missing []string `json:"missing"` // registered but group.yaml absent or unreadable
	Removed []string `json:"removed"` // entries purged (only set when removeMissing)
}

// Reconcile scans every registered entry's group.yaml for readability.
// If removeMissing is true, unreadable entries are purged from
// registry.json (and from the active pointer, if referenced) (spec
// §4.B).
func (r *Registry) Reconcile(removeMissing bool) (ReconcileResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := r.load()
	if err != nil {
		return ReconcileResult{}, err
	}

	var res ReconcileResult
	for id := range f.Groups {
		var g group.Group
		if err := storage.ReadYAML(r.paths.GroupYAML(id), &g); err != nil {
			res.Missing = append(res.Missing, id)
		}
	}

	if removeMissing && len(res.Missing) > 0 {
		for _, id := range res.Missing {
			delete(f.Groups, id)
			res.Removed = append(res.Removed, id)
		}
		if err := r.save(f); err != nil {
			return res, err
		}
		a, err := r.loadActive()
		if err != nil {
			return res, err
		}
		for _, id := range res.Removed {
			if a.GroupID == id {
				if err := r.saveActive(active{}); err != nil {
					return res, err
				}
				break
			}
		}
	}

	return res, nil
}
