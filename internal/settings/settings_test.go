package settings

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rendis/graphspace/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memPersister struct {
	mu     sync.Mutex
	values map[string]string
	err    error
}

func (m *memPersister) LoadSettings(context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out, nil
}

func (m *memPersister) SaveSettings(_ context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.values == nil {
		m.values = map[string]string{}
	}
	for k, v := range values {
		m.values[k] = v
	}
	return nil
}

func TestDefaults(t *testing.T) {
	s := New(nil, nil)
	got := s.Get()
	assert.Equal(t, 14, got.FontSize)
	assert.Equal(t, "monospace", got.FontFamily)
	assert.True(t, got.ShowLineNumbers)
	assert.Equal(t, ThemeLight, got.Theme)
	assert.Equal(t, 256, got.SidebarWidth)
}

func TestUpdate(t *testing.T) {
	s := New(nil, nil)
	got, err := s.Update(context.Background(), map[string]any{"fontSize": 18.0, "showLineNumbers": false})
	require.NoError(t, err)
	assert.Equal(t, 18, got.FontSize)
	assert.False(t, got.ShowLineNumbers)
	assert.Equal(t, "monospace", got.FontFamily)
}

func TestUpdate_Rejects(t *testing.T) {
	s := New(nil, nil)
	ctx := context.Background()
	for name, patch := range map[string]map[string]any{
		"unknown key":  {"colour": "red"},
		"font too big": {"fontSize": 99},
		"wrong type":   {"fontSize": "big"},
		"bad theme":    {"theme": "solarized"},
		"bad tab":      {"sidebarTab": "graphs"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := s.Update(ctx, patch)
			assert.True(t, schema.IsCode(err, schema.ErrCodeValidation), "got %v", err)
			assert.Equal(t, Defaults(), s.Get())
		})
	}
}

func TestSidebarWidthIsClamped(t *testing.T) {
	s := New(nil, nil)
	got, err := s.Update(context.Background(), map[string]any{"sidebarWidth": 50})
	require.NoError(t, err)
	assert.Equal(t, MinSidebarWidth, got.SidebarWidth)

	got, err = s.Update(context.Background(), map[string]any{"sidebarWidth": 9000})
	require.NoError(t, err)
	assert.Equal(t, MaxSidebarWidth, got.SidebarWidth)
}

func TestToggleThemeAndReset(t *testing.T) {
	s := New(nil, nil)
	ctx := context.Background()

	got, err := s.ToggleTheme(ctx)
	require.NoError(t, err)
	assert.Equal(t, ThemeDark, got.Theme)
	got, err = s.ToggleTheme(ctx)
	require.NoError(t, err)
	assert.Equal(t, ThemeLight, got.Theme)

	_, err = s.Update(ctx, map[string]any{"fontFamily": "serif"})
	require.NoError(t, err)
	got, err = s.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), got)
}

func TestPersistAndReload(t *testing.T) {
	p := &memPersister{}
	ctx := context.Background()

	s := New(p, nil)
	_, err := s.Update(ctx, map[string]any{"fontSize": 20, "theme": "dark"})
	require.NoError(t, err)
	assert.Equal(t, "20", p.values["fontSize"])
	assert.Equal(t, `"dark"`, p.values["theme"])

	reopened := New(p, nil)
	require.NoError(t, reopened.Load(ctx))
	assert.Equal(t, 20, reopened.Get().FontSize)
	assert.Equal(t, ThemeDark, reopened.Get().Theme)
}

func TestLoadSkipsBadValues(t *testing.T) {
	p := &memPersister{values: map[string]string{
		"fontSize":   "{",
		"fontFamily": `"serif"`,
		"theme":      `"neon"`,
		"retired":    `true`,
	}}
	s := New(p, nil)
	require.NoError(t, s.Load(context.Background()))

	got := s.Get()
	assert.Equal(t, 14, got.FontSize)
	assert.Equal(t, "serif", got.FontFamily)
	assert.Equal(t, ThemeLight, got.Theme)
}

func TestPersistFailureKeepsValue(t *testing.T) {
	boom := errors.New("disk full")
	s := New(&memPersister{err: boom}, nil)

	got, err := s.Update(context.Background(), map[string]any{"fontSize": 16})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 16, got.FontSize)
	assert.Equal(t, 16, s.Get().FontSize)
}

func TestOnChangeAndMap(t *testing.T) {
	s := New(nil, nil)
	var seen []Theme
	s.OnChange(func(_ context.Context, st Settings) { seen = append(seen, st.Theme) })

	_, err := s.ToggleTheme(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Theme{ThemeDark}, seen)

	m := s.Get().Map()
	assert.Equal(t, "dark", m["theme"])
	assert.Equal(t, 14.0, m["fontSize"])
}
