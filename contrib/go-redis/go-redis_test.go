// Unless explicitly stated otherwise all files in this repository are
// licensed under the Apache License Version 2.0.
// Copyright 2026 PromptGrimoire contributors.

package goredis

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	if _, ok := os.LookupEnv("INTEGRATION"); !ok {
		fmt.Println("--- SKIP: to enable integration tests, set the INTEGRATION environment variable")
		os.Exit(0)
	}
	os.Exit(m.Run())
}

type countingCatalogue struct {
	mu    sync.Mutex
	calls int
	names map[string]string
}

func (c *countingCatalogue) Resolve(tagID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if name, ok := c.names[tagID]; ok {
		return name, nil
	}
	return "", fmt.Errorf("unknown tag %s", tagID)
}

func newTestClient(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	require.NoError(t, client.FlushDB(context.Background()).Err())
	return client
}

func TestResolveCachesAfterFirstLookup(t *testing.T) {
	client := newTestClient(t)
	inner := &countingCatalogue{names: map[string]string{"tag-a": "Jurisdiction"}}
	cached := New(client, inner, time.Minute)

	name, err := cached.Resolve("tag-a")
	require.NoError(t, err)
	assert.Equal(t, "Jurisdiction", name)

	name, err = cached.Resolve("tag-a")
	require.NoError(t, err)
	assert.Equal(t, "Jurisdiction", name)

	inner.mu.Lock()
	calls := inner.calls
	inner.mu.Unlock()
	assert.Equal(t, 1, calls, "second Resolve should be served from cache")
}

func TestInvalidateForcesNextLookupThrough(t *testing.T) {
	client := newTestClient(t)
	inner := &countingCatalogue{names: map[string]string{"tag-a": "Jurisdiction"}}
	cached := New(client, inner, time.Minute)

	_, err := cached.Resolve("tag-a")
	require.NoError(t, err)
	require.NoError(t, cached.Invalidate("tag-a"))

	_, err = cached.Resolve("tag-a")
	require.NoError(t, err)

	inner.mu.Lock()
	calls := inner.calls
	inner.mu.Unlock()
	assert.Equal(t, 2, calls)
}

func TestResolveErrorFromInnerIsNotCached(t *testing.T) {
	client := newTestClient(t)
	inner := &countingCatalogue{names: map[string]string{}}
	cached := New(client, inner, time.Minute)

	_, err := cached.Resolve("missing")
	assert.Error(t, err)
}
