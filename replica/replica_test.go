// Unless explicitly stated otherwise all files in this repository are
// licensed under the Apache License Version 2.0.
// Copyright 2026 PromptGrimoire contributors.

package replica

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MQFacultyOfArts/promptgrimoire-ace/crdt"
)

func TestAddHighlightPublishesToSubscribers(t *testing.T) {
	r := New("doc1")
	var got Update
	r.Subscribe(func(u Update) { got = u })

	_, err := r.AddHighlight("conn-a", 0, 5, "tag", "hello", "Alice", "", "")
	require.NoError(t, err)

	assert.Equal(t, "doc1", got.DocumentID)
	assert.Equal(t, "conn-a", got.OriginConn)
	assert.NotEmpty(t, got.Op.Highlight.ID)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	r := New("doc1")
	calls := 0
	unsub := r.Subscribe(func(u Update) { calls++ })
	unsub()

	_, err := r.AddHighlight("conn-a", 0, 5, "tag", "hello", "Alice", "", "")
	require.NoError(t, err)
	assert.Zero(t, calls)
}

func TestApplyRemotePublishesOnlyWhenChanged(t *testing.T) {
	r := New("doc1")
	op, err := r.AddHighlight("conn-a", 0, 5, "tag", "hello", "Alice", "", "")
	require.NoError(t, err)

	calls := 0
	r.Subscribe(func(u Update) { calls++ })

	changed, err := r.ApplyRemote(op, "conn-b")
	require.NoError(t, err)
	assert.False(t, changed, "re-applying the same op is a no-op")
	assert.Zero(t, calls)
}

func TestDeleteCommentResolvesIndexLocally(t *testing.T) {
	r := New("doc1")
	op, _ := r.AddHighlight("conn-a", 0, 5, "tag", "hello", "Alice", "", "")
	_, _ = r.AddComment("conn-a", op.Highlight.ID, "Alice", "hi", "")

	delOp, found := r.DeleteComment("conn-a", op.Highlight.ID, 0)
	require.True(t, found)
	assert.NotEmpty(t, delOp.CommentID, "deletion must carry a stable comment id, not the index")
}

func TestApplyRemoteUpdateDecodesAndMerges(t *testing.T) {
	src := New("doc1")
	op, _ := src.AddHighlight("conn-a", 0, 5, "tag", "hello", "Alice", "", "")
	blob := crdt.MarshalOps(nil, []crdt.Op{op})

	dst := New("doc1")
	calls := 0
	dst.Subscribe(func(u Update) { calls++ })

	changed, err := dst.ApplyRemoteUpdate(blob, "conn-b")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 1, calls)
	assert.Len(t, dst.Document().Highlights(), 1)
}

func TestApplyRemoteUpdateRejectsGarbage(t *testing.T) {
	dst := New("doc1")
	_, err := dst.ApplyRemoteUpdate([]byte{0xff, 0xff, 0xff}, "conn-b")
	assert.Error(t, err)
}

func TestRegisterAndUnregisterClientDoNotPublish(t *testing.T) {
	r := New("doc1")
	calls := 0
	r.Subscribe(func(u Update) { calls++ })

	r.RegisterClient("conn-a", "Alice", "#fff")
	r.UnregisterClient("conn-a")

	assert.Zero(t, calls)
	assert.Empty(t, r.Document().ClientMeta())
}

func TestCloneRebindsDocumentIDAndDropsSubscribers(t *testing.T) {
	src := New("doc1")
	calls := 0
	src.Subscribe(func(u Update) { calls++ })

	op, err := src.AddHighlight("conn-a", 0, 5, "tag", "hello", "Alice", "", "")
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	cloned := src.Clone("doc2", nil)
	assert.Equal(t, "doc2", cloned.DocumentID())

	highlights := cloned.Document().Highlights()
	require.Len(t, highlights, 1)
	assert.NotEqual(t, op.Highlight.ID, highlights[0].ID, "cloning renews highlight ids")
	assert.Equal(t, "hello", highlights[0].Text)

	// the clone starts with no subscribers of its own and must not reach
	// the source's.
	_, err = cloned.AddHighlight("conn-b", 6, 10, "tag", "more", "Bob", "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "mutating the clone must not publish to the source's subscribers")
}

func TestNewFromSnapshotRestoresState(t *testing.T) {
	src := New("doc1")
	op, _ := src.AddHighlight("conn-a", 0, 5, "tag", "hello", "Alice", "", "")
	snap := src.Document().Snapshot()

	r, err := NewFromSnapshot("doc1", snap)
	require.NoError(t, err)
	h, ok := r.Document().Highlight(op.Highlight.ID)
	require.True(t, ok)
	assert.Equal(t, "hello", h.Text)
}
