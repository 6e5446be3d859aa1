package engine

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rendis/graphspace/internal/actions"
	"github.com/rendis/graphspace/internal/logging"
	"github.com/rendis/graphspace/internal/streaming"
	"github.com/rendis/graphspace/internal/telemetry"
	"github.com/rendis/graphspace/internal/validation"
	"github.com/rendis/graphspace/pkg/schema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultPoolSize bounds concurrent ExecuteAsync bodies.
const DefaultPoolSize = 8

// EventRecorder persists the action audit log. Satisfied by the store.
type EventRecorder interface {
	AppendActionEvent(ctx context.Context, ev *schema.ActionEvent) error
}

// Change describes one mutation of the live instance set.
type Change struct {
	Type     string                 // schema.EventInstance*
	Instance *schema.ActionInstance // copy
}

// Config wires an Engine. Registry and Validator are required.
type Config struct {
	Registry  actions.ActionRegistry
	Validator validation.Validator
	Hub       streaming.EventHub
	Recorder  EventRecorder
	Logger    *slog.Logger
	PoolSize  int
}

// Engine runs actions and owns the live instance set. Same-action singleton
// executions are serialized; repeatable executions run concurrently.
type Engine struct {
	registry  actions.ActionRegistry
	validator validation.Validator
	hub       streaming.EventHub
	recorder  EventRecorder
	logger    *slog.Logger
	pool      *WorkerPool
	tracer    trace.Tracer
	metrics   *engineMetrics

	locks *keyedMutex

	mu        sync.RWMutex
	instances []*schema.ActionInstance

	hooksMu  sync.RWMutex
	onChange []func(ctx context.Context, c Change)

	session configSession

	newID func() string
	now   func() time.Time
}

// New creates an Engine and subscribes it to registry unregistrations so
// instances of removed actions are dropped.
func New(cfg Config) *Engine {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultPoolSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	e := &Engine{
		registry:  cfg.Registry,
		validator: cfg.Validator,
		hub:       cfg.Hub,
		recorder:  cfg.Recorder,
		logger:    cfg.Logger,
		pool:      NewWorkerPool(cfg.PoolSize),
		tracer:    telemetry.Tracer("graphspace/engine"),
		metrics:   newEngineMetrics(),
		locks:     newKeyedMutex(),
		newID:     uuid.NewString,
		now:       func() time.Time { return time.Now().UTC() },
	}
	cfg.Registry.OnUnregister(e.dropAction)
	return e
}

// OnChange registers a hook fired after every instance-set mutation.
// Hooks run synchronously, outside engine locks.
func (e *Engine) OnChange(fn func(ctx context.Context, c Change)) {
	e.hooksMu.Lock()
	e.onChange = append(e.onChange, fn)
	e.hooksMu.Unlock()
}

// Execute runs actionID with params. Singleton actions reuse and overwrite
// their one instance; repeatable actions always append a new one. Errors
// raised by the action body are returned unchanged.
func (e *Engine) Execute(ctx context.Context, actionID string, params map[string]any) (*schema.ActionInstance, error) {
	ctx = logging.WithActionID(ctx, actionID)
	ctx, span := e.tracer.Start(ctx, "action.execute", trace.WithAttributes(attribute.String("action.id", actionID)))
	defer span.End()

	start := time.Now()
	inst, err := e.execute(ctx, actionID, params)
	e.metrics.record(ctx, "execute", actionID, start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.DebugContext(ctx, "action execution failed", slog.Any("error", err))
		return nil, err
	}
	span.SetAttributes(attribute.String("instance.id", inst.ID))
	return inst, nil
}

func (e *Engine) execute(ctx context.Context, actionID string, params map[string]any) (*schema.ActionInstance, error) {
	def, body, validated, err := e.prepare(ctx, actionID, params)
	if err != nil {
		return nil, err
	}

	if def.Kind == schema.ActionKindSingleton {
		unlock := e.locks.Lock(actionKey(actionID))
		defer unlock()

		if existing := e.firstOf(actionID); existing != nil {
			result, err := body(logging.WithInstanceID(ctx, existing.ID), validated)
			if err != nil {
				return nil, err
			}
			if updated := e.overwrite(existing.ID, result, validated); updated != nil {
				e.emit(ctx, schema.EventInstanceUpdated, updated)
				return updated, nil
			}
			// Removed while the body ran: keep the result as a fresh instance.
			return e.appendInstance(ctx, actionID, result, validated)
		}
	}

	result, err := body(ctx, validated)
	if err != nil {
		return nil, err
	}
	return e.appendInstance(ctx, actionID, result, validated)
}

// prepare resolves the action, re-checks its enabled predicate and
// validates params.
func (e *Engine) prepare(ctx context.Context, actionID string, params map[string]any) (schema.ActionDefinition, actions.RunFunc, map[string]any, error) {
	def, err := e.registry.Get(actionID)
	if err != nil {
		return def, nil, nil, err
	}

	enabled, err := e.registry.IsEnabled(ctx, actionID)
	if err != nil {
		if schema.IsCode(err, schema.ErrCodeNotFound) {
			return def, nil, nil, err
		}
		return def, nil, nil, schema.NewErrorf(schema.ErrCodeDisabled, "action %q predicate failed", actionID).
			WithAction(actionID).WithCause(err)
	}
	if !enabled {
		return def, nil, nil, schema.NewErrorf(schema.ErrCodeDisabled, "action %q is disabled", actionID).WithAction(actionID)
	}

	validated, err := e.validator.Validate(&def, params)
	if err != nil {
		return def, nil, nil, err
	}

	body, err := e.registry.Body(actionID)
	if err != nil {
		return def, nil, nil, err
	}
	return def, body, validated, nil
}

func (e *Engine) appendInstance(ctx context.Context, actionID string, result schema.Outcome, params map[string]any) (*schema.ActionInstance, error) {
	now := e.now()
	inst := &schema.ActionInstance{
		ID:        e.newID(),
		ActionID:  actionID,
		Result:    result,
		Params:    params,
		CreatedAt: now,
		UpdatedAt: now,
	}

	e.mu.Lock()
	// The unregister hook takes e.mu after the definition is gone, so checking
	// here keeps orphans out of the set.
	if _, err := e.registry.Get(actionID); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	e.instances = append(e.instances, inst)
	out := inst.Clone()
	e.mu.Unlock()

	e.metrics.instances(ctx, 1)
	e.emit(logging.WithInstanceID(ctx, out.ID), schema.EventInstanceCreated, out)
	return out, nil
}

func (e *Engine) overwrite(instanceID string, result schema.Outcome, params map[string]any) *schema.ActionInstance {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, inst := range e.instances {
		if inst.ID == instanceID {
			inst.Result = result
			inst.Params = params
			inst.UpdatedAt = e.now()
			return inst.Clone()
		}
	}
	return nil
}

// UpdateInstance re-runs the owning action's body for an existing instance
// and overwrites its result and params.
func (e *Engine) UpdateInstance(ctx context.Context, instanceID string, params map[string]any) (*schema.ActionInstance, error) {
	current, err := e.Instance(instanceID)
	if err != nil {
		return nil, err
	}
	actionID := current.ActionID

	ctx = logging.WithInstanceID(logging.WithActionID(ctx, actionID), instanceID)
	ctx, span := e.tracer.Start(ctx, "action.update", trace.WithAttributes(
		attribute.String("action.id", actionID),
		attribute.String("instance.id", instanceID),
	))
	defer span.End()

	start := time.Now()
	inst, err := e.update(ctx, current, params)
	e.metrics.record(ctx, "update", actionID, start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return inst, nil
}

func (e *Engine) update(ctx context.Context, current *schema.ActionInstance, params map[string]any) (*schema.ActionInstance, error) {
	def, body, validated, err := e.prepare(ctx, current.ActionID, params)
	if err != nil {
		return nil, err
	}

	key := instanceKey(current.ID)
	if def.Kind == schema.ActionKindSingleton {
		key = actionKey(def.ID)
	}
	unlock := e.locks.Lock(key)
	defer unlock()

	if _, err := e.Instance(current.ID); err != nil {
		return nil, err
	}

	result, err := body(ctx, validated)
	if err != nil {
		return nil, err
	}

	updated := e.overwrite(current.ID, result, validated)
	if updated == nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "instance %q was removed", current.ID)
	}
	e.emit(ctx, schema.EventInstanceUpdated, updated)
	return updated, nil
}

// RemoveInstance deletes an instance. Absent ids are ignored.
func (e *Engine) RemoveInstance(ctx context.Context, instanceID string) bool {
	e.mu.Lock()
	idx := slices.IndexFunc(e.instances, func(i *schema.ActionInstance) bool { return i.ID == instanceID })
	if idx < 0 {
		e.mu.Unlock()
		return false
	}
	removed := e.instances[idx]
	e.instances = slices.Delete(e.instances, idx, idx+1)
	e.mu.Unlock()

	e.metrics.instances(ctx, -1)
	e.emit(ctx, schema.EventInstanceRemoved, removed.Clone())
	return true
}

// dropAction removes every instance of actionID. Installed as the registry's
// unregister hook.
func (e *Engine) dropAction(actionID string) {
	e.mu.Lock()
	var removed []*schema.ActionInstance
	e.instances = slices.DeleteFunc(e.instances, func(i *schema.ActionInstance) bool {
		if i.ActionID == actionID {
			removed = append(removed, i)
			return true
		}
		return false
	})
	e.mu.Unlock()

	ctx := logging.WithActionID(context.Background(), actionID)
	e.metrics.instances(ctx, -int64(len(removed)))
	for _, inst := range removed {
		e.emit(ctx, schema.EventInstanceRemoved, inst.Clone())
	}
}

// Instances returns copies of all live instances in creation order.
func (e *Engine) Instances() []*schema.ActionInstance {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*schema.ActionInstance, len(e.instances))
	for i, inst := range e.instances {
		out[i] = inst.Clone()
	}
	return out
}

// Instance returns a copy of one instance.
func (e *Engine) Instance(id string) (*schema.ActionInstance, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, inst := range e.instances {
		if inst.ID == id {
			return inst.Clone(), nil
		}
	}
	return nil, schema.NewErrorf(schema.ErrCodeNotFound, "instance %q not found", id)
}

// InstancesOf returns the live instances of actionID in creation order.
func (e *Engine) InstancesOf(actionID string) []*schema.ActionInstance {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*schema.ActionInstance, 0)
	for _, inst := range e.instances {
		if inst.ActionID == actionID {
			out = append(out, inst.Clone())
		}
	}
	return out
}

// Outcomes returns the result of every live instance in creation order.
func (e *Engine) Outcomes() []schema.Outcome {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]schema.Outcome, len(e.instances))
	for i, inst := range e.instances {
		out[i] = inst.Result
	}
	return out
}

func (e *Engine) firstOf(actionID string) *schema.ActionInstance {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, inst := range e.instances {
		if inst.ActionID == actionID {
			return inst.Clone()
		}
	}
	return nil
}

// Result is delivered by ExecuteAsync.
type Result struct {
	Instance *schema.ActionInstance
	Err      error
}

// ExecuteAsync runs Execute on the worker pool. The body never observes the
// caller's cancellation; ctx only bounds waiting for a pool slot.
func (e *Engine) ExecuteAsync(ctx context.Context, actionID string, params map[string]any) (<-chan Result, error) {
	out := make(chan Result, 1)
	err := e.pool.Submit(ctx, func(ctx context.Context) error {
		inst, err := e.Execute(context.WithoutCancel(ctx), actionID, params)
		out <- Result{Instance: inst, Err: err}
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PoolStats reports the async worker pool counters.
func (e *Engine) PoolStats() PoolStats {
	return e.pool.Stats()
}

// Close waits for async executions to finish.
func (e *Engine) Close() {
	e.pool.Shutdown()
}

func (e *Engine) emit(ctx context.Context, typ string, inst *schema.ActionInstance) {
	e.hooksMu.RLock()
	hooks := slices.Clone(e.onChange)
	e.hooksMu.RUnlock()
	for _, h := range hooks {
		h(ctx, Change{Type: typ, Instance: inst})
	}

	if e.hub != nil {
		ev := streaming.StreamEvent{
			Type:       typ,
			ActionID:   inst.ActionID,
			InstanceID: inst.ID,
			Payload:    inst,
		}
		if err := e.hub.Publish(context.WithoutCancel(ctx), ev); err != nil {
			e.logger.WarnContext(ctx, "publish instance event", slog.String("type", typ), slog.Any("error", err))
		}
	}

	if e.recorder != nil {
		ev := &schema.ActionEvent{
			Type:       typ,
			ActionID:   inst.ActionID,
			InstanceID: inst.ID,
			Params:     inst.Params,
			CreatedAt:  e.now(),
		}
		if err := e.recorder.AppendActionEvent(context.WithoutCancel(ctx), ev); err != nil {
			e.logger.WarnContext(ctx, "record action event", slog.String("type", typ), slog.Any("error", err))
		}
	}
}
