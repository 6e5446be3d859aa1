package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfiguring_FinishInvokesCallback(t *testing.T) {
	var e Engine
	var got map[string]any
	e.StartConfiguring("font-size", func(p map[string]any) { got = p })

	id, ok := e.PendingConfiguration()
	assert.True(t, ok)
	assert.Equal(t, "font-size", id)

	assert.True(t, e.FinishConfiguring(map[string]any{"fontSize": 18}))
	assert.Equal(t, 18, got["fontSize"])

	_, ok = e.PendingConfiguration()
	assert.False(t, ok)
}

func TestConfiguring_NewSessionReplacesPending(t *testing.T) {
	var e Engine
	firstCalled := false
	secondCalled := false
	e.StartConfiguring("a", func(map[string]any) { firstCalled = true })
	e.StartConfiguring("b", func(map[string]any) { secondCalled = true })

	e.FinishConfiguring(nil)
	assert.False(t, firstCalled)
	assert.True(t, secondCalled)
}

func TestConfiguring_CallbackMayStartNewSession(t *testing.T) {
	var e Engine
	nestedCalled := false
	e.StartConfiguring("parent", func(map[string]any) {
		e.StartConfiguring("child", func(map[string]any) { nestedCalled = true })
	})

	assert.True(t, e.FinishConfiguring(nil))
	id, ok := e.PendingConfiguration()
	assert.True(t, ok, "re-entrant session survives")
	assert.Equal(t, "child", id)

	assert.True(t, e.FinishConfiguring(nil))
	assert.True(t, nestedCalled)
}

func TestConfiguring_Cancel(t *testing.T) {
	var e Engine
	called := false
	e.StartConfiguring("a", func(map[string]any) { called = true })
	e.CancelConfiguring()

	assert.False(t, e.FinishConfiguring(nil))
	assert.False(t, called)
}

func TestKeyedMutex_ReleasesEntries(t *testing.T) {
	k := newKeyedMutex()
	unlockA := k.Lock(actionKey("a"))
	unlockB := k.Lock(instanceKey("a"))
	assert.Equal(t, 2, k.size())
	unlockA()
	unlockB()
	assert.Equal(t, 0, k.size())
}
