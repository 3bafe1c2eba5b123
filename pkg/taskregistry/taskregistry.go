// Package taskregistry holds the live, in-memory view of every task
// configuration the aggregator currently serves. A single RWMutex
// protects the map; lookups on the request path take the read lock,
// and Refresh swaps in a freshly loaded snapshot under the write lock.
package taskregistry

import (
	"context"
	"fmt"
	"sync"

	"github.com/marmos91/dapagg/pkg/datastore"
	"github.com/marmos91/dapagg/pkg/ids"
	"github.com/marmos91/dapagg/pkg/taskparams"
	"github.com/marmos91/dapagg/pkg/vdaf"
)

// entry bundles a task's immutable parameters with the VDAF
// implementation its selector resolves to, so request handlers never
// pay dispatch cost twice.
type entry struct {
	params taskparams.TaskParameters
	vdaf   vdaf.VDAF
}

// Registry is the aggregator's hot task table.
type Registry struct {
	mu    sync.RWMutex
	tasks map[ids.TaskID]entry
	store datastore.Store
}

// New constructs an empty registry backed by store. Call Refresh at
// least once before serving traffic.
func New(store datastore.Store) *Registry {
	return &Registry{tasks: make(map[ids.TaskID]entry), store: store}
}

// Refresh reloads every task from the datastore and atomically
// replaces the in-memory table. A task deleted from the datastore
// between refreshes stops resolving as soon as Refresh returns.
func (r *Registry) Refresh(ctx context.Context) error {
	all, err := r.store.ListAllTasks(ctx)
	if err != nil {
		return fmt.Errorf("listing tasks: %w", err)
	}

	next := make(map[ids.TaskID]entry, len(all))
	for _, p := range all {
		v, err := vdaf.FromSelector(p.Vdaf)
		if err != nil {
			return fmt.Errorf("task %s: %w", p.TaskID, err)
		}
		next[p.TaskID] = entry{params: p, vdaf: v}
	}

	r.mu.Lock()
	r.tasks = next
	r.mu.Unlock()
	return nil
}

// Lookup returns a task's parameters and resolved VDAF, or false if
// the task id is not (or no longer) recognized.
func (r *Registry) Lookup(taskID ids.TaskID) (taskparams.TaskParameters, vdaf.VDAF, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tasks[taskID]
	return e.params, e.vdaf, ok
}

// Len reports how many tasks are currently loaded.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// Add registers a single task without a full Refresh, used after the
// admin API provisions a new task so it is servable immediately.
func (r *Registry) Add(p taskparams.TaskParameters) error {
	v, err := vdaf.FromSelector(p.Vdaf)
	if err != nil {
		return fmt.Errorf("task %s: %w", p.TaskID, err)
	}
	r.mu.Lock()
	r.tasks[p.TaskID] = entry{params: p, vdaf: v}
	r.mu.Unlock()
	return nil
}

// Remove drops a task from the hot table, used after the admin API
// deletes a task.
func (r *Registry) Remove(taskID ids.TaskID) {
	r.mu.Lock()
	delete(r.tasks, taskID)
	r.mu.Unlock()
}
