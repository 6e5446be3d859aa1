package engine

import "sync"

// configSession is the single pending "collect parameters for action X"
// request. Starting a new one replaces the old; nothing queues.
type configSession struct {
	mu         sync.Mutex
	actionID   string
	onComplete func(params map[string]any)
}

// StartConfiguring opens a configuration session for actionID. A pending
// session is discarded and its callback never runs.
func (e *Engine) StartConfiguring(actionID string, onComplete func(params map[string]any)) {
	s := &e.session
	s.mu.Lock()
	s.actionID = actionID
	s.onComplete = onComplete
	s.mu.Unlock()
}

// FinishConfiguring resolves the pending session with params. The session is
// cleared before the callback runs, so the callback may start a new one.
// Returns false when no session was pending.
func (e *Engine) FinishConfiguring(params map[string]any) bool {
	s := &e.session
	s.mu.Lock()
	cb := s.onComplete
	pending := s.actionID != "" || cb != nil
	s.actionID = ""
	s.onComplete = nil
	s.mu.Unlock()

	if !pending {
		return false
	}
	if cb != nil {
		cb(params)
	}
	return true
}

// CancelConfiguring drops the pending session without invoking it.
func (e *Engine) CancelConfiguring() {
	s := &e.session
	s.mu.Lock()
	s.actionID = ""
	s.onComplete = nil
	s.mu.Unlock()
}

// PendingConfiguration returns the action id awaiting parameters, if any.
func (e *Engine) PendingConfiguration() (string, bool) {
	s := &e.session
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.actionID, s.actionID != ""
}
