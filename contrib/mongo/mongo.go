// Unless explicitly stated otherwise all files in this repository are
// licensed under the Apache License Version 2.0.
// Copyright 2026 PromptGrimoire contributors.

// Package mongo implements a spans.TagCatalogue backed by a MongoDB "tags"
// collection, via go.mongodb.org/mongo-driver, in the same
// client.Database(...).Collection(...) shape the teacher's own
// contrib/mongodb packages wrap.
package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultCollection is the collection name used unless overridden with
// WithCollection. Documents are expected to have the shape
// {_id: "<tag-id>", display_name: "<name>"}.
const DefaultCollection = "tags"

// Catalogue resolves tag ids to display names from a MongoDB collection. It
// satisfies spans.TagCatalogue.
type Catalogue struct {
	collection *mongo.Collection
}

// Option configures a Catalogue.
type Option func(*catalogueConfig)

type catalogueConfig struct {
	collection string
}

// WithCollection overrides the collection name (default DefaultCollection).
func WithCollection(name string) Option {
	return func(c *catalogueConfig) { c.collection = name }
}

// New wraps an existing database handle.
func New(db *mongo.Database, opts ...Option) *Catalogue {
	cfg := catalogueConfig{collection: DefaultCollection}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Catalogue{collection: db.Collection(cfg.collection)}
}

// Connect dials uri and wraps dbName, in the same Connect-does-both-steps
// convenience shape as contrib/jackc/pgx.Connect.
func Connect(ctx context.Context, uri, dbName string, opts ...Option) (*Catalogue, func(context.Context) error, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("contrib/mongo: connect: %w", err)
	}
	return New(client.Database(dbName), opts...), client.Disconnect, nil
}

type tagDocument struct {
	ID          string `bson:"_id"`
	DisplayName string `bson:"display_name"`
}

// Resolve implements spans.TagCatalogue.
func (c *Catalogue) Resolve(tagID string) (string, error) {
	ctx := context.Background()
	var doc tagDocument
	err := c.collection.FindOne(ctx, bson.M{"_id": tagID}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return "", fmt.Errorf("contrib/mongo: tag %s not found", tagID)
		}
		return "", fmt.Errorf("contrib/mongo: resolve %s: %w", tagID, err)
	}
	return doc.DisplayName, nil
}

// ResolveAll resolves many tag ids in one round trip, for the Highlight
// Span Compiler's bulk pre-resolution step (Compile itself takes an
// already-resolved map to stay pure).
func (c *Catalogue) ResolveAll(ctx context.Context, tagIDs []string) (map[string]string, error) {
	cur, err := c.collection.Find(ctx, bson.M{"_id": bson.M{"$in": tagIDs}})
	if err != nil {
		return nil, fmt.Errorf("contrib/mongo: resolve-all: %w", err)
	}
	defer cur.Close(ctx)

	names := make(map[string]string, len(tagIDs))
	for cur.Next(ctx) {
		var doc tagDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("contrib/mongo: decode tag: %w", err)
		}
		names[doc.ID] = doc.DisplayName
	}
	return names, cur.Err()
}
