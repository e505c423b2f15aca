// Unless explicitly stated otherwise all files in this repository are
// licensed under the Apache License Version 2.0.
// Copyright 2026 PromptGrimoire contributors.

package persistence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MQFacultyOfArts/promptgrimoire-ace/replica"
)

type recordingLoader struct {
	mu    sync.Mutex
	saves []SaveMeta
	err   error
}

func (l *recordingLoader) Save(ctx context.Context, documentID string, blob []byte, meta SaveMeta) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.saves = append(l.saves, meta)
	return nil
}

func (l *recordingLoader) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.saves)
}

func TestMutationSchedulesFlushAfterQuietInterval(t *testing.T) {
	loader := &recordingLoader{}
	m := New(loader, 20*time.Millisecond)
	r := replica.New("doc1")
	m.Observe(r)

	_, _ = r.AddHighlight("conn-a", 0, 5, "tag", "hi", "Alice", "", "")
	assert.Zero(t, loader.count())

	require.Eventually(t, func() bool { return loader.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, loader.saves[0].HighlightCount)
	assert.Equal(t, "conn-a", loader.saves[0].LastEditor)
}

func TestRapidMutationsDebounceToOneFlush(t *testing.T) {
	loader := &recordingLoader{}
	m := New(loader, 40*time.Millisecond)
	r := replica.New("doc1")
	m.Observe(r)

	_, _ = r.AddHighlight("conn-a", 0, 5, "tag", "hi", "Alice", "", "")
	time.Sleep(15 * time.Millisecond)
	_, _ = r.AddHighlight("conn-a", 6, 10, "tag", "more", "Alice", "", "")

	require.Eventually(t, func() bool { return loader.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, loader.saves[0].HighlightCount)
}

func TestForceFlushCancelsDebounceAndFlushesImmediately(t *testing.T) {
	loader := &recordingLoader{}
	m := New(loader, time.Hour)
	r := replica.New("doc1")
	m.Observe(r)

	_, _ = r.AddHighlight("conn-a", 0, 5, "tag", "hi", "Alice", "", "")
	m.ForceFlush("doc1")

	assert.Equal(t, 1, loader.count())
	assert.False(t, m.IsDirtyOrFlushing("doc1"))
}

func TestForceFlushOnCleanDocumentIsNoOp(t *testing.T) {
	loader := &recordingLoader{}
	m := New(loader, time.Hour)
	r := replica.New("doc1")
	m.Observe(r)

	m.ForceFlush("doc1")
	assert.Zero(t, loader.count())
}

func TestSaveFailureLeavesDocumentDirtyAndRetries(t *testing.T) {
	loader := &recordingLoader{err: errors.New("disk full")}
	m := New(loader, 10*time.Millisecond)
	r := replica.New("doc1")
	m.Observe(r)

	_, _ = r.AddHighlight("conn-a", 0, 5, "tag", "hi", "Alice", "", "")
	time.Sleep(30 * time.Millisecond)

	assert.True(t, m.IsDirtyOrFlushing("doc1"))
}

func TestShutdownFlushesEveryDirtyDocument(t *testing.T) {
	loader := &recordingLoader{}
	m := New(loader, time.Hour)
	r1 := replica.New("doc1")
	r2 := replica.New("doc2")
	m.Observe(r1)
	m.Observe(r2)

	_, _ = r1.AddHighlight("conn-a", 0, 5, "tag", "hi", "Alice", "", "")
	_, _ = r2.AddHighlight("conn-b", 0, 5, "tag", "hi", "Bob", "", "")

	m.Shutdown(context.Background(), nil)
	assert.Equal(t, 2, loader.count())
}

type fakeSnapshotSource struct{ snapshots map[string][]byte }

func (f fakeSnapshotSource) SnapshotAll() map[string][]byte { return f.snapshots }

func TestShutdownFallsBackToSnapshotForUnobservedDocuments(t *testing.T) {
	loader := &recordingLoader{}
	m := New(loader, time.Hour)
	r := replica.New("doc1")
	m.Observe(r)
	_, _ = r.AddHighlight("conn-a", 0, 5, "tag", "hi", "Alice", "", "")

	snapshots := fakeSnapshotSource{snapshots: map[string][]byte{
		"doc1": []byte("ignored, doc1 is already tracked"),
		"doc2": []byte("doc2 snapshot"),
	}}
	m.Shutdown(context.Background(), snapshots)

	assert.Equal(t, 2, loader.count(), "doc1's dirty flush plus doc2's fallback save")
}
