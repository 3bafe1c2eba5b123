package handlers

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/invopop/jsonschema"

	"github.com/marmos91/dapagg/pkg/clock"
	"github.com/marmos91/dapagg/pkg/datastore"
	"github.com/marmos91/dapagg/pkg/hpke"
	"github.com/marmos91/dapagg/pkg/ids"
	"github.com/marmos91/dapagg/pkg/taskparams"
	"github.com/marmos91/dapagg/pkg/taskregistry"
)

// TasksHandler implements the administrative task CRUD surface (§6.2).
// Task creation and deletion is plain CRUD over the datastore and the
// live registry, not a protocol invariant the engine tests against.
type TasksHandler struct {
	store    datastore.Store
	registry *taskregistry.Registry
	clock    clock.Clock
}

func NewTasksHandler(store datastore.Store, registry *taskregistry.Registry, clk clock.Clock) *TasksHandler {
	return &TasksHandler{store: store, registry: registry, clock: clk}
}

const taskIDsPageSize = 100

// vdafSelectorJSON is the JSON projection of taskparams.VdafSelector.
type vdafSelectorJSON struct {
	Kind         string `json:"kind" jsonschema:"required,enum=prio3count,enum=prio3sum,enum=prio3histogram,enum=prio3sumvec,enum=poplar1"`
	Bits         uint8  `json:"bits,omitempty"`
	Buckets      uint32 `json:"buckets,omitempty"`
	VectorLength uint32 `json:"vector_length,omitempty"`
	BitLength    uint16 `json:"bit_length,omitempty"`
}

func (v vdafSelectorJSON) toSelector() taskparams.VdafSelector {
	return taskparams.VdafSelector{
		Kind: taskparams.Kind(v.Kind), Bits: v.Bits, Buckets: v.Buckets,
		VectorLength: v.VectorLength, BitLength: v.BitLength,
	}
}

func vdafSelectorToJSON(v taskparams.VdafSelector) vdafSelectorJSON {
	return vdafSelectorJSON{Kind: string(v.Kind), Bits: v.Bits, Buckets: v.Buckets, VectorLength: v.VectorLength, BitLength: v.BitLength}
}

// createTaskRequest is the POST /tasks body. The server generates every
// secret (VDAF verify key, HPKE keypair, aggregator auth key); callers
// supply only a task's public parameters.
type createTaskRequest struct {
	LeaderEndpoint     string           `json:"leader_endpoint" jsonschema:"required,description=externally reachable base URL of the leader aggregator"`
	HelperEndpoint     string           `json:"helper_endpoint" jsonschema:"required,description=externally reachable base URL of the helper aggregator"`
	Role               string           `json:"role" jsonschema:"required,enum=leader,enum=helper"`
	Vdaf               vdafSelectorJSON `json:"vdaf" jsonschema:"required"`
	MinBatchSize       uint64           `json:"min_batch_size"`
	MaxBatchLifetime   string           `json:"max_batch_lifetime" jsonschema:"description=Go duration string, e.g. 24h"`
	BatchDuration      string           `json:"batch_duration" jsonschema:"description=Go duration string, e.g. 1h"`
	TolerableClockSkew string           `json:"tolerable_clock_skew" jsonschema:"description=Go duration string, e.g. 10s"`
}

// taskResponse is the JSON projection of a TaskParameters returned by
// the admin endpoints. AggregatorAuthKey is populated only on creation.
type taskResponse struct {
	TaskID             string           `json:"task_id"`
	LeaderEndpoint     string           `json:"leader_endpoint"`
	HelperEndpoint     string           `json:"helper_endpoint"`
	Role               string           `json:"role"`
	Vdaf               vdafSelectorJSON `json:"vdaf"`
	MinBatchSize       uint64           `json:"min_batch_size"`
	MaxBatchLifetime   string           `json:"max_batch_lifetime"`
	BatchDuration      string           `json:"batch_duration"`
	TolerableClockSkew string           `json:"tolerable_clock_skew"`
	HpkeConfigID       uint8            `json:"hpke_config_id"`
	AggregatorAuthKey  string           `json:"aggregator_auth_key,omitempty"`
}

func taskToResponse(p taskparams.TaskParameters) taskResponse {
	return taskResponse{
		TaskID: p.TaskID.String(), LeaderEndpoint: p.LeaderEndpoint, HelperEndpoint: p.HelperEndpoint,
		Role: string(p.Role), Vdaf: vdafSelectorToJSON(p.Vdaf), MinBatchSize: p.MinBatchSize,
		MaxBatchLifetime: p.MaxBatchLifetime.String(), BatchDuration: p.BatchDuration.String(),
		TolerableClockSkew: p.TolerableClockSkew.String(), HpkeConfigID: uint8(p.Recipient.Config().ID),
	}
}

// ListIDs handles GET /task_ids?pagination_token=<TaskId>.
func (h *TasksHandler) ListIDs(w http.ResponseWriter, r *http.Request) {
	var lowerBound *ids.TaskID
	if tok := r.URL.Query().Get("pagination_token"); tok != "" {
		id, err := ids.ParseTaskID(tok)
		if err != nil {
			BadRequest(w, "invalid pagination_token")
			return
		}
		lowerBound = &id
	}

	var taskIDs []ids.TaskID
	err := h.store.RunTx(r.Context(), "list_task_ids", func(ctx context.Context, tx datastore.Tx) error {
		var err error
		taskIDs, err = tx.GetTaskIDs(ctx, lowerBound, taskIDsPageSize)
		return err
	})
	if err != nil {
		InternalServerError(w, "listing task ids")
		return
	}

	resp := struct {
		TaskIDs         []string `json:"task_ids"`
		PaginationToken string   `json:"pagination_token,omitempty"`
	}{TaskIDs: make([]string, len(taskIDs))}
	for i, id := range taskIDs {
		resp.TaskIDs[i] = id.String()
	}
	if len(taskIDs) == taskIDsPageSize {
		resp.PaginationToken = taskIDs[len(taskIDs)-1].String()
	}
	writeJSON(w, http.StatusOK, okResponse(resp))
}

// Create handles POST /tasks.
func (h *TasksHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	role := taskparams.Role(req.Role)
	if role != taskparams.RoleLeader && role != taskparams.RoleHelper {
		BadRequest(w, "role must be leader or helper")
		return
	}

	maxBatchLifetime, err := time.ParseDuration(req.MaxBatchLifetime)
	if err != nil {
		BadRequest(w, "invalid max_batch_lifetime: "+err.Error())
		return
	}
	batchDuration, err := time.ParseDuration(req.BatchDuration)
	if err != nil {
		BadRequest(w, "invalid batch_duration: "+err.Error())
		return
	}
	tolerableClockSkew, err := time.ParseDuration(req.TolerableClockSkew)
	if err != nil {
		BadRequest(w, "invalid tolerable_clock_skew: "+err.Error())
		return
	}

	taskID, err := ids.NewTaskID()
	if err != nil {
		InternalServerError(w, "generating task id")
		return
	}
	verifyKey := make([]byte, 32)
	if _, err := rand.Read(verifyKey); err != nil {
		InternalServerError(w, "generating vdaf verify key")
		return
	}
	authKey := make([]byte, 32)
	if _, err := rand.Read(authKey); err != nil {
		InternalServerError(w, "generating aggregator auth key")
		return
	}
	keyPair, err := hpke.GenerateKeyPair(ids.HpkeConfigID(1))
	if err != nil {
		InternalServerError(w, "generating hpke keypair")
		return
	}

	params := taskparams.TaskParameters{
		TaskID: taskID, LeaderEndpoint: req.LeaderEndpoint, HelperEndpoint: req.HelperEndpoint,
		Vdaf: req.Vdaf.toSelector(), Role: role, VdafVerifyKey: verifyKey,
		MinBatchSize: req.MinBatchSize, MaxBatchLifetime: maxBatchLifetime, BatchDuration: batchDuration,
		TolerableClockSkew: tolerableClockSkew, CollectorHpkeConfig: keyPair.Config(),
		AggregatorAuthKey: authKey, Recipient: keyPair, CreatedAt: h.clock.Now(),
	}
	if err := params.Validate(); err != nil {
		BadRequest(w, err.Error())
		return
	}

	err = h.store.RunTx(r.Context(), "create_task", func(ctx context.Context, tx datastore.Tx) error {
		return tx.PutTask(ctx, params)
	})
	if err != nil {
		InternalServerError(w, "persisting task")
		return
	}
	if err := h.registry.Add(params); err != nil {
		InternalServerError(w, "registering task")
		return
	}

	resp := taskToResponse(params)
	resp.AggregatorAuthKey = base64.RawURLEncoding.EncodeToString(authKey)
	writeJSON(w, http.StatusCreated, okResponse(resp))
}

// Get handles GET /tasks/{taskID}.
func (h *TasksHandler) Get(w http.ResponseWriter, r *http.Request) {
	taskID, ok := parseTaskIDParam(w, r)
	if !ok {
		return
	}
	params, _, found := h.registry.Lookup(taskID)
	if !found {
		NotFound(w, "no task with this id")
		return
	}
	writeJSON(w, http.StatusOK, okResponse(taskToResponse(params)))
}

// Delete handles DELETE /tasks/{taskID}.
func (h *TasksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	taskID, ok := parseTaskIDParam(w, r)
	if !ok {
		return
	}
	err := h.store.RunTx(r.Context(), "delete_task", func(ctx context.Context, tx datastore.Tx) error {
		return tx.DeleteTask(ctx, taskID)
	})
	if err != nil {
		if se, ok := err.(*datastore.StoreError); ok && se.Kind == datastore.ErrMutationTargetNotFound {
			NotFound(w, "no task with this id")
			return
		}
		InternalServerError(w, "deleting task")
		return
	}
	h.registry.Remove(taskID)
	w.WriteHeader(http.StatusNoContent)
}

// Metrics handles GET /tasks/{taskID}/metrics.
func (h *TasksHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	taskID, ok := parseTaskIDParam(w, r)
	if !ok {
		return
	}
	var m *datastore.TaskMetrics
	err := h.store.RunTx(r.Context(), "task_metrics", func(ctx context.Context, tx datastore.Tx) error {
		var err error
		m, err = tx.GetTaskMetrics(ctx, taskID)
		return err
	})
	if err != nil {
		if se, ok := err.(*datastore.StoreError); ok && se.Kind == datastore.ErrNotFound {
			NotFound(w, "no task with this id")
			return
		}
		InternalServerError(w, "fetching task metrics")
		return
	}
	writeJSON(w, http.StatusOK, okResponse(m))
}

var taskSchema = jsonschema.Reflect(&createTaskRequest{})

// Schema handles GET /tasks/schema, for operator tooling that wants to
// validate a POST /tasks body client-side before sending it.
func (h *TasksHandler) Schema(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/schema+json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(taskSchema)
}

func parseTaskIDParam(w http.ResponseWriter, r *http.Request) (ids.TaskID, bool) {
	taskID, err := ids.ParseTaskID(chi.URLParam(r, "taskID"))
	if err != nil {
		BadRequest(w, "malformed task id")
		return ids.TaskID{}, false
	}
	return taskID, true
}
