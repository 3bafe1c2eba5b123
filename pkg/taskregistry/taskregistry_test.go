package taskregistry

import (
	"context"
	"testing"
	"time"

	"github.com/marmos91/dapagg/pkg/datastore"
	"github.com/marmos91/dapagg/pkg/hpke"
	"github.com/marmos91/dapagg/pkg/ids"
	"github.com/marmos91/dapagg/pkg/taskparams"
)

type fakeStore struct {
	tasks []taskparams.TaskParameters
}

func (f *fakeStore) RunTx(ctx context.Context, name string, fn func(ctx context.Context, tx datastore.Tx) error) error {
	return nil
}
func (f *fakeStore) ListAllTasks(ctx context.Context) ([]taskparams.TaskParameters, error) {
	return f.tasks, nil
}
func (f *fakeStore) Close() error { return nil }

func newTask(t *testing.T) taskparams.TaskParameters {
	t.Helper()
	taskID, err := ids.NewTaskID()
	if err != nil {
		t.Fatal(err)
	}
	kp, err := hpke.GenerateKeyPair(1)
	if err != nil {
		t.Fatal(err)
	}
	return taskparams.TaskParameters{
		TaskID:              taskID,
		Vdaf:                taskparams.VdafSelector{Kind: taskparams.KindPrio3Count},
		Role:                taskparams.RoleLeader,
		TolerableClockSkew:  30 * time.Second,
		Recipient:           kp,
		CollectorHpkeConfig: kp.Config(),
	}
}

func TestRefreshLoadsTasks(t *testing.T) {
	task := newTask(t)
	reg := New(&fakeStore{tasks: []taskparams.TaskParameters{task}})

	if err := reg.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if reg.Len() != 1 {
		t.Fatalf("expected 1 task, got %d", reg.Len())
	}

	params, v, ok := reg.Lookup(task.TaskID)
	if !ok {
		t.Fatal("expected task to be found")
	}
	if params.TaskID != task.TaskID || v == nil {
		t.Fatal("lookup returned wrong task or nil vdaf")
	}
}

func TestRefreshDropsRemovedTasks(t *testing.T) {
	task := newTask(t)
	store := &fakeStore{tasks: []taskparams.TaskParameters{task}}
	reg := New(store)
	if err := reg.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	store.tasks = nil
	if err := reg.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, _, ok := reg.Lookup(task.TaskID); ok {
		t.Fatal("expected task to be dropped after refresh with empty store")
	}
}

func TestAddAndRemove(t *testing.T) {
	reg := New(&fakeStore{})
	task := newTask(t)

	if err := reg.Add(task); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, _, ok := reg.Lookup(task.TaskID); !ok {
		t.Fatal("expected task to be found after Add")
	}

	reg.Remove(task.TaskID)
	if _, _, ok := reg.Lookup(task.TaskID); ok {
		t.Fatal("expected task to be gone after Remove")
	}
}
