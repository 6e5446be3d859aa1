package workspace

import (
	"context"
	"log/slog"

	"github.com/rendis/graphspace/internal/streaming"
	"github.com/rendis/graphspace/pkg/schema"
)

// configRun carries the finishing call's context into a session callback and
// the execution result back out. Only set while configMu is held.
type configRun struct {
	ctx  context.Context
	inst *schema.ActionInstance
	err  error
}

// Configure opens a configuration session for actionID, replacing any
// pending one. Finishing it runs the action with the collected parameters.
func (w *Workspace) Configure(ctx context.Context, actionID string) error {
	if _, err := w.registry.Get(actionID); err != nil {
		return err
	}

	w.configMu.Lock()
	w.engine.StartConfiguring(actionID, func(params map[string]any) {
		run := w.configRun
		if run == nil {
			run = &configRun{ctx: context.Background()}
		}
		run.inst, run.err = w.engine.Execute(run.ctx, actionID, params)
		if run.err != nil {
			w.logger.WarnContext(run.ctx, "configured execution failed",
				slog.String("action_id", actionID), slog.Any("error", run.err))
		}
	})
	w.configMu.Unlock()

	w.publish(ctx, streaming.StreamEvent{Type: schema.EventConfigurationStarted, ActionID: actionID})
	return nil
}

// FinishConfiguration resolves the pending session with params and returns
// the instance the execution produced. ok is false when nothing was pending.
func (w *Workspace) FinishConfiguration(ctx context.Context, params map[string]any) (inst *schema.ActionInstance, ok bool, err error) {
	w.configMu.Lock()
	actionID, _ := w.engine.PendingConfiguration()
	run := &configRun{ctx: ctx}
	w.configRun = run
	ok = w.engine.FinishConfiguring(params)
	w.configRun = nil
	w.configMu.Unlock()

	if !ok {
		return nil, false, nil
	}
	ev := streaming.StreamEvent{Type: schema.EventConfigurationFinished, ActionID: actionID}
	if run.inst != nil {
		ev.InstanceID = run.inst.ID
	}
	w.publish(ctx, ev)
	return run.inst, true, run.err
}

// CancelConfiguration drops the pending session. It reports whether one was
// pending.
func (w *Workspace) CancelConfiguration(ctx context.Context) bool {
	w.configMu.Lock()
	actionID, pending := w.engine.PendingConfiguration()
	w.engine.CancelConfiguring()
	w.configMu.Unlock()

	if pending {
		w.publish(ctx, streaming.StreamEvent{Type: schema.EventConfigurationCancelled, ActionID: actionID})
	}
	return pending
}

// PendingConfiguration returns the action awaiting parameters, if any.
func (w *Workspace) PendingConfiguration() (string, bool) {
	return w.engine.PendingConfiguration()
}
