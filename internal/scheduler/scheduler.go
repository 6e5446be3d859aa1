package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/graphspace/internal/store"
	"github.com/rendis/graphspace/pkg/schema"
)

// Source is the graph being autosaved. Satisfied by *graph.Store.
type Source interface {
	Name() string
	Loaded() bool
	Revision() uint64
	Counts() (nodes, edges int)
	Export(format string) ([]byte, error)
}

// Sink receives snapshots. Satisfied by *store.LibSQLStore.
type Sink interface {
	SaveSnapshot(ctx context.Context, snap *store.Snapshot) error
	PruneSnapshots(ctx context.Context, name string, keep int) (int64, error)
}

// Config controls the autosave schedule.
type Config struct {
	Cron   string        // 5-field cron expression, e.g. "*/5 * * * *"
	Format string        // export format, json or dot
	Keep   int           // snapshots retained per graph name; 0 keeps all
	Tick   time.Duration // how often the schedule is checked
}

// Autosaver snapshots the graph on a cron schedule when it changed since the last save.
type Autosaver struct {
	source   Source
	sink     Sink
	schedule cron.Schedule
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	saveMu    sync.Mutex
	saved     uint64
	savedName string
	next      time.Time
}

// NewAutosaver parses the schedule and returns a stopped Autosaver.
func NewAutosaver(src Source, sink Sink, cfg Config, logger *slog.Logger) (*Autosaver, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched, err := parser.Parse(cfg.Cron)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid autosave schedule %q", cfg.Cron).WithCause(err)
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}
	if cfg.Tick <= 0 {
		cfg.Tick = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Autosaver{
		source:   src,
		sink:     sink,
		schedule: sched,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Start launches the background loop.
func (a *Autosaver) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.done != nil {
		a.mu.Unlock()
		return fmt.Errorf("autosave already started")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	a.mu.Unlock()

	a.saveMu.Lock()
	a.next = a.schedule.Next(a.now())
	a.saveMu.Unlock()

	go a.loop(loopCtx)
	a.logger.Info("autosave started", slog.String("schedule", a.cfg.Cron))
	return nil
}

// Run blocks until ctx is cancelled. Used under an errgroup.
func (a *Autosaver) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return a.Stop()
}

func (a *Autosaver) loop(ctx context.Context) {
	defer close(a.done)

	ticker := time.NewTicker(a.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

// tick saves when the schedule is due.
func (a *Autosaver) tick(ctx context.Context) {
	now := a.now()
	a.saveMu.Lock()
	due := !a.next.After(now)
	if due {
		a.next = a.schedule.Next(now)
	}
	a.saveMu.Unlock()
	if !due {
		return
	}
	if _, err := a.SaveNow(ctx); err != nil {
		a.logger.Error("autosave failed", slog.String("error", err.Error()))
	}
}

// SaveNow writes a snapshot if the graph is loaded and changed since the last
// save. It reports whether a snapshot was written.
func (a *Autosaver) SaveNow(ctx context.Context) (bool, error) {
	a.saveMu.Lock()
	defer a.saveMu.Unlock()

	if !a.source.Loaded() {
		return false, nil
	}
	name := a.source.Name()
	rev := a.source.Revision()
	if rev == a.saved && name == a.savedName {
		return false, nil
	}

	content, err := a.source.Export(a.cfg.Format)
	if err != nil {
		return false, err
	}
	nodes, edges := a.source.Counts()
	snap := &store.Snapshot{
		Name:      name,
		Format:    a.cfg.Format,
		Content:   string(content),
		NodeCount: nodes,
		EdgeCount: edges,
		SavedAt:   a.now(),
	}
	if err := a.sink.SaveSnapshot(ctx, snap); err != nil {
		return false, err
	}
	a.saved, a.savedName = rev, name

	if a.cfg.Keep > 0 {
		if n, err := a.sink.PruneSnapshots(ctx, name, a.cfg.Keep); err != nil {
			a.logger.Warn("prune snapshots failed", slog.String("graph", name), slog.String("error", err.Error()))
		} else if n > 0 {
			a.logger.Debug("pruned snapshots", slog.String("graph", name), slog.Int64("count", n))
		}
	}

	a.logger.Info("graph autosaved",
		slog.String("graph", name),
		slog.Int64("snapshot_id", snap.ID),
		slog.Uint64("revision", rev),
	)
	return true, nil
}

// NextRun returns when the schedule next fires.
func (a *Autosaver) NextRun() time.Time {
	a.saveMu.Lock()
	defer a.saveMu.Unlock()
	return a.next
}

// Stop shuts down the loop and waits for it to exit.
func (a *Autosaver) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel == nil {
		return nil
	}
	a.cancel()
	<-a.done
	a.cancel = nil
	a.done = nil

	a.logger.Info("autosave stopped")
	return nil
}
