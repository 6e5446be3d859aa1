// Package settings holds workspace preferences and persists them as
// key/value pairs. Settings feed action predicates.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/rendis/graphspace/pkg/schema"
)

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

const (
	MinFontSize     = 8
	MaxFontSize     = 32
	MinSidebarWidth = 200
	MaxSidebarWidth = 500
)

var (
	sidebarTabs      = []string{"search", "info", "settings", "file"}
	sidebarPositions = []string{"left", "right"}
)

// Settings are the workspace preferences. JSON names double as persistence keys.
type Settings struct {
	FontSize        int    `json:"fontSize"`
	FontFamily      string `json:"fontFamily"`
	ShowLineNumbers bool   `json:"showLineNumbers"`
	Theme           Theme  `json:"theme"`
	SidebarWidth    int    `json:"sidebarWidth"`
	SidebarTab      string `json:"sidebarTab"`
	SidebarPosition string `json:"sidebarPosition"`
}

func Defaults() Settings {
	return Settings{
		FontSize:        14,
		FontFamily:      "monospace",
		ShowLineNumbers: true,
		Theme:           ThemeLight,
		SidebarWidth:    256,
		SidebarTab:      "search",
		SidebarPosition: "left",
	}
}

// Map returns s as a generic map, the shape predicates see.
func (s Settings) Map() map[string]any {
	raw, _ := json.Marshal(s)
	out := map[string]any{}
	_ = json.Unmarshal(raw, &out)
	return out
}

// normalize clamps the sidebar width and rejects out-of-range values.
func (s *Settings) normalize() error {
	if s.FontSize < MinFontSize || s.FontSize > MaxFontSize {
		return schema.NewErrorf(schema.ErrCodeValidation, "fontSize must be between %d and %d", MinFontSize, MaxFontSize)
	}
	if s.FontFamily == "" {
		return schema.NewError(schema.ErrCodeValidation, "fontFamily is empty")
	}
	if s.Theme != ThemeLight && s.Theme != ThemeDark {
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown theme %q", s.Theme)
	}
	if !slices.Contains(sidebarTabs, s.SidebarTab) {
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown sidebar tab %q", s.SidebarTab)
	}
	if !slices.Contains(sidebarPositions, s.SidebarPosition) {
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown sidebar position %q", s.SidebarPosition)
	}
	s.SidebarWidth = min(max(s.SidebarWidth, MinSidebarWidth), MaxSidebarWidth)
	return nil
}

// Persister stores raw JSON values by setting key.
type Persister interface {
	LoadSettings(ctx context.Context) (map[string]string, error)
	SaveSettings(ctx context.Context, values map[string]string) error
}

// Store is the live settings object.
type Store struct {
	persister Persister
	logger    *slog.Logger

	mu  sync.RWMutex
	cur Settings

	hooksMu  sync.RWMutex
	onChange []func(ctx context.Context, s Settings)
}

// New creates a store holding the defaults. persister may be nil.
func New(persister Persister, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{persister: persister, logger: logger, cur: Defaults()}
}

// OnChange registers a hook fired after every successful update.
func (s *Store) OnChange(fn func(ctx context.Context, st Settings)) {
	s.hooksMu.Lock()
	s.onChange = append(s.onChange, fn)
	s.hooksMu.Unlock()
}

// Load merges persisted values over the defaults. Values that no longer
// decode or validate are skipped with a warning.
func (s *Store) Load(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	values, err := s.persister.LoadSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	next := Defaults()
	for k, raw := range values {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			s.logger.WarnContext(ctx, "skipping unreadable setting", slog.String("key", k), slog.Any("error", err))
			continue
		}
		candidate, err := merge(next, map[string]any{k: v})
		if err != nil {
			s.logger.WarnContext(ctx, "skipping invalid setting", slog.String("key", k), slog.Any("error", err))
			continue
		}
		next = candidate
	}

	s.mu.Lock()
	s.cur = next
	s.mu.Unlock()
	return nil
}

// Get returns the current settings.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Update merges patch (keys are the JSON names) and persists the result.
// Unknown keys and invalid values fail with VALIDATION_ERROR and change nothing.
func (s *Store) Update(ctx context.Context, patch map[string]any) (Settings, error) {
	s.mu.Lock()
	next, err := merge(s.cur, patch)
	if err != nil {
		s.mu.Unlock()
		return s.Get(), err
	}
	s.cur = next
	s.mu.Unlock()

	return next, s.commit(ctx, next)
}

// Reset restores and persists the defaults.
func (s *Store) Reset(ctx context.Context) (Settings, error) {
	next := Defaults()
	s.mu.Lock()
	s.cur = next
	s.mu.Unlock()
	return next, s.commit(ctx, next)
}

// ToggleTheme flips between light and dark.
func (s *Store) ToggleTheme(ctx context.Context) (Settings, error) {
	s.mu.Lock()
	next := s.cur
	if next.Theme == ThemeDark {
		next.Theme = ThemeLight
	} else {
		next.Theme = ThemeDark
	}
	s.cur = next
	s.mu.Unlock()
	return next, s.commit(ctx, next)
}

// commit notifies hooks, then persists. A persistence failure is returned
// but the in-memory value stands.
func (s *Store) commit(ctx context.Context, st Settings) error {
	s.hooksMu.RLock()
	hooks := slices.Clone(s.onChange)
	s.hooksMu.RUnlock()
	for _, h := range hooks {
		h(ctx, st)
	}

	if s.persister == nil {
		return nil
	}
	values := make(map[string]string)
	for k, v := range st.Map() {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode setting %s: %w", k, err)
		}
		values[k] = string(raw)
	}
	if err := s.persister.SaveSettings(ctx, values); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist settings", slog.Any("error", err))
		return err
	}
	return nil
}

func merge(cur Settings, patch map[string]any) (Settings, error) {
	base := cur.Map()
	for k, v := range patch {
		if _, ok := base[k]; !ok {
			return cur, schema.NewErrorf(schema.ErrCodeValidation, "unknown setting %q", k)
		}
		base[k] = v
	}

	raw, err := json.Marshal(base)
	if err != nil {
		return cur, schema.NewError(schema.ErrCodeValidation, "invalid settings").WithCause(err)
	}
	var next Settings
	if err := json.Unmarshal(raw, &next); err != nil {
		return cur, schema.NewError(schema.ErrCodeValidation, "invalid settings").WithCause(err)
	}
	if err := next.normalize(); err != nil {
		return cur, err
	}
	return next, nil
}
