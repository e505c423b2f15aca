// Unless explicitly stated otherwise all files in this repository are
// licensed under the Apache License Version 2.0.
// Copyright 2026 PromptGrimoire contributors.

package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLoader struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	loadErr error
	calls   int
}

func (f *fakeLoader) Load(ctx context.Context, documentID string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.loadErr != nil {
		return nil, false, f.loadErr
	}
	b, ok := f.blobs[documentID]
	return b, ok, nil
}

func TestGetOrCreateSeedsEmptyWhenNilLoader(t *testing.T) {
	s := New(nil)
	r, err := s.GetOrCreate(context.Background(), "doc1")
	require.NoError(t, err)
	assert.Empty(t, r.Document().Highlights())
}

func TestGetOrCreateColdLoadsFromStateLoader(t *testing.T) {
	seed := New(nil)
	seeded, _ := seed.GetOrCreate(context.Background(), "doc1")
	_, _ = seeded.AddHighlight("conn-a", 0, 5, "tag", "hi", "Alice", "", "")
	blob := seeded.Document().Snapshot()

	loader := &fakeLoader{blobs: map[string][]byte{"doc1": blob}}
	s := New(loader)
	r, err := s.GetOrCreate(context.Background(), "doc1")
	require.NoError(t, err)
	assert.Len(t, r.Document().Highlights(), 1)
}

func TestGetOrCreateReturnsSameInstanceConcurrently(t *testing.T) {
	s := New(nil)
	const n = 20
	results := make([]*struct{ ptr interface{} }, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := s.GetOrCreate(context.Background(), "doc1")
			require.NoError(t, err)
			results[i] = &struct{ ptr interface{} }{ptr: r}
		}()
	}
	wg.Wait()
	first := results[0].ptr
	for _, r := range results {
		assert.Same(t, first, r.ptr)
	}
}

func TestGetOrCreatePropagatesLoadError(t *testing.T) {
	loader := &fakeLoader{loadErr: errors.New("boom")}
	s := New(loader)
	_, err := s.GetOrCreate(context.Background(), "doc1")
	assert.Error(t, err)
}

func TestPeekDoesNotCreate(t *testing.T) {
	s := New(nil)
	_, ok := s.Peek("doc1")
	assert.False(t, ok)

	_, _ = s.GetOrCreate(context.Background(), "doc1")
	_, ok = s.Peek("doc1")
	assert.True(t, ok)
}

func TestConsiderEvictionSkipsWhenDirty(t *testing.T) {
	s := New(nil)
	_, _ = s.GetOrCreate(context.Background(), "doc1")

	assert.False(t, s.ConsiderEviction("doc1", func(string) bool { return true }))
	_, ok := s.Peek("doc1")
	assert.True(t, ok, "dirty replica must not be evicted")

	assert.True(t, s.ConsiderEviction("doc1", func(string) bool { return false }))
	_, ok = s.Peek("doc1")
	assert.False(t, ok)
}

func TestStartSweepEvictsIdleReplicas(t *testing.T) {
	s := New(nil, WithSweepInterval(5*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, _ = s.GetOrCreate(context.Background(), "doc1")
	s.StartSweep(ctx, func(string) bool { return false })

	require.Eventually(t, func() bool {
		_, ok := s.Peek("doc1")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestStartSweepIsNoOpWithoutInterval(t *testing.T) {
	s := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, _ = s.GetOrCreate(context.Background(), "doc1")
	s.StartSweep(ctx, func(string) bool { return false })

	time.Sleep(20 * time.Millisecond)
	_, ok := s.Peek("doc1")
	assert.True(t, ok, "sweep must not run without WithSweepInterval")
}

func TestSnapshotAllIncludesEveryLiveReplica(t *testing.T) {
	s := New(nil)
	_, _ = s.GetOrCreate(context.Background(), "doc1")
	_, _ = s.GetOrCreate(context.Background(), "doc2")

	snaps := s.SnapshotAll()
	assert.Len(t, snaps, 2)
	assert.Contains(t, snaps, "doc1")
	assert.Contains(t, snaps, "doc2")
}
