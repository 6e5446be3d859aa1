package layout

import (
	"context"
	"slices"
	"sync"

	"github.com/rendis/graphspace/pkg/schema"
)

// Applier runs a layout pass and merges the result into the graph.
// Satisfied by graph.Store.
type Applier interface {
	ApplyLayout(ctx context.Context, opts Options) error
}

// Controller tracks the active algorithm, the merged options and the
// history of successful passes.
type Controller struct {
	applier Applier

	run sync.Mutex // one pass at a time

	mu      sync.RWMutex
	current Algorithm
	options Options
	history []Algorithm
	running bool
	lastErr error
}

// NewController creates a Controller with the default fcose options.
func NewController(applier Applier) *Controller {
	return &Controller{
		applier: applier,
		current: AlgorithmFcose,
		options: DefaultOptions(),
	}
}

// Apply switches to algorithm (if non-empty), merges patch into the current
// options and runs a pass. Successful passes are appended to the history.
func (c *Controller) Apply(ctx context.Context, algorithm Algorithm, patch OptionsPatch) error {
	return c.apply(ctx, algorithm, patch, true)
}

func (c *Controller) apply(ctx context.Context, algorithm Algorithm, patch OptionsPatch, record bool) error {
	if algorithm != "" && !algorithm.Valid() {
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown layout algorithm %q", algorithm)
	}

	c.run.Lock()
	defer c.run.Unlock()

	c.mu.Lock()
	if algorithm != "" {
		c.current = algorithm
	}
	c.options = c.options.Merge(patch)
	opts := c.options
	opts.Algorithm = c.current
	c.running = true
	c.lastErr = nil
	c.mu.Unlock()

	err := c.applier.ApplyLayout(ctx, opts)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	if err != nil {
		c.lastErr = err
		return err
	}
	if record {
		c.history = append(c.history, opts.Algorithm)
	}
	return nil
}

// SetOptions merges patch without running a pass.
func (c *Controller) SetOptions(patch OptionsPatch) {
	c.mu.Lock()
	c.options = c.options.Merge(patch)
	c.mu.Unlock()
}

// Reset restores the default options and reruns the current algorithm.
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	c.options = DefaultOptions()
	c.mu.Unlock()
	return c.Apply(ctx, "", OptionsPatch{})
}

// Undo reapplies the entry before the latest one and, once that pass
// succeeds, drops the latest entry. A failed pass leaves the history intact.
// With fewer than two entries it does nothing and reports false.
func (c *Controller) Undo(ctx context.Context) (bool, error) {
	c.mu.RLock()
	n := len(c.history)
	if n < 2 {
		c.mu.RUnlock()
		return false, nil
	}
	previous := c.history[n-2]
	c.mu.RUnlock()

	if err := c.apply(ctx, previous, OptionsPatch{}, false); err != nil {
		return false, err
	}

	c.mu.Lock()
	if len(c.history) > 1 {
		c.history = c.history[:len(c.history)-1]
	}
	c.mu.Unlock()
	return true, nil
}

// ClearHistory forgets all recorded passes.
func (c *Controller) ClearHistory() {
	c.mu.Lock()
	c.history = nil
	c.mu.Unlock()
}

func (c *Controller) Current() Algorithm {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

func (c *Controller) Options() Options {
	c.mu.RLock()
	defer c.mu.RUnlock()
	opts := c.options
	opts.Algorithm = c.current
	return opts
}

func (c *Controller) History() []Algorithm {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.history)
}

func (c *Controller) Running() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

func (c *Controller) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}
