// Unless explicitly stated otherwise all files in this repository are
// licensed under the Apache License Version 2.0.
// Copyright 2026 PromptGrimoire contributors.

package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func TestRegisterDoesNotBroadcast(t *testing.T) {
	tr := New("doc1")
	calls := 0
	tr.Listen(func(e Event) { calls++ })

	tr.Register("conn-a", "Alice", "#ff0000")

	assert.Zero(t, calls)
	assert.Equal(t, 1, tr.Count())
}

func TestSetCursorBroadcasts(t *testing.T) {
	tr := New("doc1")
	tr.Register("conn-a", "Alice", "#ff0000")

	var got Event
	tr.Listen(func(e Event) { got = e })

	row, ok := tr.SetCursor("conn-a", intPtr(12))
	require.True(t, ok)
	require.NotNil(t, row.CursorChar)
	assert.Equal(t, 12, *row.CursorChar)
	assert.Equal(t, EventCursor, got.Kind)
}

func TestSetCursorUnknownClientIsNoOp(t *testing.T) {
	tr := New("doc1")
	_, ok := tr.SetCursor("ghost", intPtr(0))
	assert.False(t, ok)
}

func TestSetSelectionClearsWithNil(t *testing.T) {
	tr := New("doc1")
	tr.Register("conn-a", "Alice", "#ff0000")
	tr.SetSelection("conn-a", intPtr(0), intPtr(10))

	row, ok := tr.SetSelection("conn-a", nil, nil)
	require.True(t, ok)
	assert.Nil(t, row.SelectionFrom)
	assert.Nil(t, row.SelectionTo)
}

func TestRemoveWithoutRegisterIsSilentlyIgnored(t *testing.T) {
	tr := New("doc1")
	calls := 0
	tr.Listen(func(e Event) { calls++ })

	tr.Remove("never-registered")

	assert.Zero(t, calls)
}

func TestRemoveDropsRowAndBroadcasts(t *testing.T) {
	tr := New("doc1")
	tr.Register("conn-a", "Alice", "#ff0000")

	var got Event
	tr.Listen(func(e Event) { got = e })
	tr.Remove("conn-a")

	assert.Equal(t, EventLeave, got.Kind)
	assert.Zero(t, tr.Count())
}

func TestPresenceIsolatedPerDocument(t *testing.T) {
	docA := New("doc-a")
	docB := New("doc-b")

	docA.Register("conn-a", "Alice", "#ff0000")
	assert.Equal(t, 1, docA.Count())
	assert.Zero(t, docB.Count())
}
