// Unless explicitly stated otherwise all files in this repository are
// licensed under the Apache License Version 2.0.
// Copyright 2026 PromptGrimoire contributors.

// Package ace wires the Replica Store, Fan-out Router, Presence Tracker,
// and Persistence Manager into a single Engine, the top-level type a host
// process imports. Construction follows the teacher's
// tracer.Start(opts ...StartOption) shape: a slice of functional options
// over an internal config, resolved once at New.
package ace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MQFacultyOfArts/promptgrimoire-ace/crdt"
	"github.com/MQFacultyOfArts/promptgrimoire-ace/internal/globalconfig"
	"github.com/MQFacultyOfArts/promptgrimoire-ace/internal/log"
	"github.com/MQFacultyOfArts/promptgrimoire-ace/persistence"
	"github.com/MQFacultyOfArts/promptgrimoire-ace/router"
	"github.com/MQFacultyOfArts/promptgrimoire-ace/spans"
	"github.com/MQFacultyOfArts/promptgrimoire-ace/store"
)

// ErrNoStorage is returned by New when no Storage collaborator was
// supplied via WithStorage; the engine cannot cold-load or persist
// documents without one.
var ErrNoStorage = errors.New("ace: no Storage configured, call WithStorage")

// Storage is the single collaborator a host wires to satisfy both the
// Replica Store's cold-load path and the Persistence Manager's flush path
// (spec.md §3). contrib/jackc/pgx.Loader implements this.
type Storage interface {
	store.StateLoader
	persistence.StateLoader
}

// Option configures an Engine at construction.
type Option func(*config)

type config struct {
	storage          Storage
	catalogue        spans.TagCatalogue
	quietInterval    time.Duration
	maxDocumentBytes int64
	sweepInterval    time.Duration
	logger           log.Logger
	errorHandler     func(error)
}

func defaults() *config {
	return &config{
		quietInterval:    globalconfig.QuietInterval(),
		maxDocumentBytes: globalconfig.MaxDocumentSize(),
		errorHandler:     func(error) {},
	}
}

// WithStorage supplies the persistence collaborator (required).
func WithStorage(s Storage) Option {
	return func(c *config) { c.storage = s }
}

// WithTagCatalogue supplies the tag-display-name resolver used by Export
// and SearchText.
func WithTagCatalogue(cat spans.TagCatalogue) Option {
	return func(c *config) { c.catalogue = cat }
}

// WithQuietInterval overrides the persistence debounce interval (spec.md
// §4.6; default from globalconfig.QuietInterval, itself 5s per spec.md §6).
func WithQuietInterval(d time.Duration) Option {
	return func(c *config) { c.quietInterval = d }
}

// WithMaxDocumentBytes overrides the maximum document size for ingestion
// (spec.md §6). New publishes the value through
// globalconfig.MaxDocumentSize; the Engine's own methods do not check any
// input against it.
func WithMaxDocumentBytes(n int64) Option {
	return func(c *config) { c.maxDocumentBytes = n }
}

// WithLogger installs a custom logging backend (spec.md §11, "Logging").
func WithLogger(l log.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithSweepInterval enables the Replica Store's periodic idle-replica
// sweep (SPEC_FULL.md §13), supplementing the explicit eviction that runs
// on every last-disconnect. Off by default.
func WithSweepInterval(d time.Duration) Option {
	return func(c *config) { c.sweepInterval = d }
}

// WithErrorHandler installs the engine's error-reporting callback
// (SPEC_FULL.md §13's supplemented error-reporting hook, since no metrics
// system is otherwise discussed). It receives Join failures, ApplyUpdate
// failures, and TagCatalogue resolution failures. Persistence save
// failures and CRDT self-repair are logged through internal/log and do
// not reach it.
func WithErrorHandler(fn func(error)) Option {
	return func(c *config) { c.errorHandler = fn }
}

// Engine is the top-level handle a host process holds: one per running
// server, shared across every document and connection.
type Engine struct {
	store     *store.Store
	persist   *persistence.Manager
	router    *router.Router
	catalogue spans.TagCatalogue
	onError   func(error)

	stopSweep context.CancelFunc
}

// New constructs an Engine. WithStorage is required; every other option
// has a sensible default.
func New(opts ...Option) (*Engine, error) {
	cfg := defaults()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.storage == nil {
		return nil, ErrNoStorage
	}

	if cfg.logger != nil {
		log.UseLogger(cfg.logger)
	}
	globalconfig.SetQuietInterval(cfg.quietInterval)
	globalconfig.SetMaxDocumentSize(cfg.maxDocumentBytes)

	var storeOpts []store.Option
	if cfg.sweepInterval > 0 {
		storeOpts = append(storeOpts, store.WithSweepInterval(cfg.sweepInterval))
	}
	s := store.New(cfg.storage, storeOpts...)
	p := persistence.New(cfg.storage, cfg.quietInterval)
	r := router.New(s, p, s)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	s.StartSweep(sweepCtx, p.IsDirtyOrFlushing)

	return &Engine{store: s, persist: p, router: r, catalogue: cfg.catalogue, onError: cfg.errorHandler, stopSweep: stopSweep}, nil
}

// Join implements the join protocol (spec.md §4.4) for a newly connected
// client, returning its server-minted client id.
func (e *Engine) Join(ctx context.Context, documentID string, conn router.Connection, displayName, color string) (string, error) {
	clientID, err := e.router.Join(ctx, documentID, conn, displayName, color)
	if err != nil {
		e.onError(fmt.Errorf("ace: join %s: %w", documentID, err))
	}
	return clientID, err
}

// ApplyUpdate applies a client-originated CRDT update blob.
func (e *Engine) ApplyUpdate(documentID, clientID string, updateBytes []byte) error {
	if err := e.router.ApplyUpdate(documentID, clientID, updateBytes); err != nil {
		e.onError(fmt.Errorf("ace: apply update %s/%s: %w", documentID, clientID, err))
		return err
	}
	return nil
}

// SetCursor and SetSelection forward presence updates from a client.
func (e *Engine) SetCursor(documentID, clientID string, charIndex *int) {
	e.router.SetCursor(documentID, clientID, charIndex)
}

func (e *Engine) SetSelection(documentID, clientID string, startChar, endChar *int) {
	e.router.SetSelection(documentID, clientID, startChar, endChar)
}

// Leave implements the leave protocol (spec.md §4.4).
func (e *Engine) Leave(documentID, clientID string) {
	e.router.Leave(documentID, clientID)
}

// Shutdown force-flushes every dirty document and blocks until each flush
// completes or ctx is cancelled (spec.md §4.6, "Shutdown").
func (e *Engine) Shutdown(ctx context.Context) {
	e.stopSweep()
	e.persist.Shutdown(ctx, e.store)
}

// Export compiles documentID's highlights over rawHTML into display spans
// (spec.md §4.8). colors maps a highlight's tag to a colour identifier,
// supplied by the host alongside rawHTML since neither is part of the
// replica's own state. Export resolves tag display names once per unique
// tag via the configured TagCatalogue before calling the pure compiler.
func (e *Engine) Export(documentID, rawHTML string, colors map[string]string) ([]spans.Span, error) {
	r, ok := e.store.Peek(documentID)
	if !ok {
		return nil, fmt.Errorf("ace: export %s: document not loaded", documentID)
	}
	doc := r.Document()
	highlights := doc.Highlights()

	tagNames, err := e.resolveTagNames(highlights)
	if err != nil {
		return nil, err
	}

	return spans.Compile(rawHTML, highlights, doc.Comments, colors, tagNames)
}

// SearchText flattens documentID's highlights, comments, and resolved tag
// names into a single searchable string (SPEC_FULL.md §13).
func (e *Engine) SearchText(documentID string) (string, error) {
	r, ok := e.store.Peek(documentID)
	if !ok {
		return "", fmt.Errorf("ace: search-text %s: document not loaded", documentID)
	}
	doc := r.Document()
	highlights := doc.Highlights()

	tagNames, err := e.resolveTagNames(highlights)
	if err != nil {
		return "", err
	}
	return spans.SearchText(highlights, doc.Comments, tagNames), nil
}

func (e *Engine) resolveTagNames(highlights []crdt.Highlight) (map[string]string, error) {
	tagNames := make(map[string]string)
	if e.catalogue == nil {
		return tagNames, nil
	}
	seen := make(map[string]bool)
	for _, h := range highlights {
		if seen[h.Tag] {
			continue
		}
		seen[h.Tag] = true
		name, err := e.catalogue.Resolve(h.Tag)
		if err != nil {
			e.onError(fmt.Errorf("ace: resolve tag %s: %w", h.Tag, err))
			continue
		}
		tagNames[h.Tag] = name
	}
	return tagNames, nil
}
