package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/graphspace/pkg/schema"
)

func TestAppendActionEvent_AssignsIncreasingIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var last int64
	for i := 0; i < 5; i++ {
		ev := &schema.ActionEvent{Type: schema.EventInstanceCreated, ActionID: "filter.name"}
		require.NoError(t, s.AppendActionEvent(ctx, ev))
		assert.Greater(t, ev.ID, last)
		assert.False(t, ev.CreatedAt.IsZero())
		last = ev.ID
	}
}

func TestAppendActionEvent_RequiresTypeAndAction(t *testing.T) {
	s := newTestStore(t)
	err := s.AppendActionEvent(context.Background(), &schema.ActionEvent{ActionID: "x"})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestListActionEvents_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	inst := uuid.New().String()

	seed := []*schema.ActionEvent{
		{Type: schema.EventInstanceCreated, ActionID: "filter.name", InstanceID: inst, Params: map[string]any{"pattern": "A*"}},
		{Type: schema.EventInstanceUpdated, ActionID: "filter.name", InstanceID: inst, Params: map[string]any{"pattern": "B*"}},
		{Type: schema.EventInstanceCreated, ActionID: "layout.apply"},
		{Type: schema.EventInstanceRemoved, ActionID: "filter.name", InstanceID: inst},
	}
	for _, ev := range seed {
		require.NoError(t, s.AppendActionEvent(ctx, ev))
	}

	all, err := s.ListActionEvents(ctx, EventFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "A*", all[0].Params["pattern"])
	assert.Empty(t, all[2].InstanceID)
	assert.Nil(t, all[3].Params)

	byAction, err := s.ListActionEvents(ctx, EventFilter{ActionID: "filter.name"})
	require.NoError(t, err)
	assert.Len(t, byAction, 3)

	byType, err := s.ListActionEvents(ctx, EventFilter{Type: schema.EventInstanceCreated})
	require.NoError(t, err)
	assert.Len(t, byType, 2)

	after, err := s.ListActionEvents(ctx, EventFilter{AfterID: all[1].ID, Limit: 1})
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, all[2].ID, after[0].ID)
}

func TestEventLog_HistoryAndCounts(t *testing.T) {
	s := newTestStore(t)
	el := NewEventLog(s)
	ctx := context.Background()
	inst := uuid.New().String()

	require.NoError(t, el.AppendActionEvent(ctx, &schema.ActionEvent{Type: schema.EventInstanceCreated, ActionID: "search.nodes", InstanceID: inst}))
	require.NoError(t, el.AppendActionEvent(ctx, &schema.ActionEvent{Type: schema.EventInstanceCreated, ActionID: "search.nodes", InstanceID: uuid.New().String()}))
	require.NoError(t, el.AppendActionEvent(ctx, &schema.ActionEvent{Type: schema.EventInstanceRemoved, ActionID: "search.nodes", InstanceID: inst}))
	require.NoError(t, el.AppendActionEvent(ctx, &schema.ActionEvent{Type: schema.EventInstanceCreated, ActionID: "layout.apply"}))

	history, err := el.InstanceHistory(ctx, inst)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, schema.EventInstanceCreated, history[0].Type)
	assert.Equal(t, schema.EventInstanceRemoved, history[1].Type)

	counts, err := el.ActionCounts(ctx, schema.EventInstanceCreated, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"search.nodes": 2, "layout.apply": 1}, counts)

	tail, err := el.Tail(ctx, history[0].ID, 10)
	require.NoError(t, err)
	assert.Len(t, tail, 3)
}

func TestAppendActionEvent_Concurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.AppendActionEvent(ctx, &schema.ActionEvent{Type: schema.EventInstanceCreated, ActionID: "graph.query"}))
		}()
	}
	wg.Wait()

	events, err := s.ListActionEvents(ctx, EventFilter{ActionID: "graph.query"})
	require.NoError(t, err)
	assert.Len(t, events, 20)
}
