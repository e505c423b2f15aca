// Unless explicitly stated otherwise all files in this repository are
// licensed under the Apache License Version 2.0.
// Copyright 2026 PromptGrimoire contributors.

// Package goredis decorates any spans.TagCatalogue with a read-through
// cache keyed "tagcat:<tag_id>", via github.com/redis/go-redis/v9. It is
// purely a performance layer: cache misses fall through to the wrapped
// catalogue, and nothing here participates in CRDT replication (spec.md
// §14's "single logical replica" non-goal stays intact).
package goredis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MQFacultyOfArts/promptgrimoire-ace/internal/log"
)

// Catalogue is the minimal collaborator this package caches. It matches
// spans.TagCatalogue's shape exactly (not imported directly, to avoid a
// spans -> contrib -> spans dependency cycle anyone adding a sibling
// contrib package could introduce).
type Catalogue interface {
	Resolve(tagID string) (string, error)
}

const keyPrefix = "tagcat:"

// CachedCatalogue wraps a Catalogue with a read-through Redis cache.
type CachedCatalogue struct {
	client *redis.Client
	inner  Catalogue
	ttl    time.Duration
}

// New wraps inner with a cache using the given TTL. ttl <= 0 means entries
// never expire.
func New(client *redis.Client, inner Catalogue, ttl time.Duration) *CachedCatalogue {
	return &CachedCatalogue{client: client, inner: inner, ttl: ttl}
}

// Resolve implements spans.TagCatalogue: check the cache, fall through to
// inner on a miss, and populate the cache before returning.
func (c *CachedCatalogue) Resolve(tagID string) (string, error) {
	ctx := context.Background()
	key := keyPrefix + tagID

	name, err := c.client.Get(ctx, key).Result()
	if err == nil {
		return name, nil
	}
	if !errors.Is(err, redis.Nil) {
		log.Warn("contrib/go-redis: cache read failed for %s, falling through: %v", tagID, err)
	}

	name, err = c.inner.Resolve(tagID)
	if err != nil {
		return "", err
	}

	if setErr := c.client.Set(ctx, key, name, c.ttl).Err(); setErr != nil {
		log.Warn("contrib/go-redis: cache write failed for %s: %v", tagID, setErr)
	}
	return name, nil
}

// Invalidate evicts a cached entry, for callers that rename a tag and need
// the new display name to take effect immediately rather than waiting out
// the TTL.
func (c *CachedCatalogue) Invalidate(tagID string) error {
	if err := c.client.Del(context.Background(), keyPrefix+tagID).Err(); err != nil {
		return fmt.Errorf("contrib/go-redis: invalidate %s: %w", tagID, err)
	}
	return nil
}
