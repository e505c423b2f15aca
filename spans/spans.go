// Unless explicitly stated otherwise all files in this repository are
// licensed under the Apache License Version 2.0.
// Copyright 2026 PromptGrimoire contributors.

// Package spans implements the Highlight Span Compiler (spec.md §4.8): the
// export-side read path that flattens a document's highlights into a
// sequence of block-respecting display spans, tiered by overlap depth and
// annotated with margin-note payloads. Compile is pure: the same HTML,
// highlights, colour map, and tag display names always produce the same
// output.
package spans

import (
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/MQFacultyOfArts/promptgrimoire-ace/crdt"
	"github.com/MQFacultyOfArts/promptgrimoire-ace/walker"
)

// TagCatalogue resolves a tag id to its display name. Implementations live
// under contrib/ (e.g. a MongoDB-backed catalogue, optionally wrapped in a
// read-through Redis cache). Compile itself never calls Resolve: callers
// resolve tag names ahead of time so the compiler stays a pure function of
// its inputs.
type TagCatalogue interface {
	Resolve(tagID string) (string, error)
}

// Annotation is the margin-note payload attached to the last emitted span of
// a highlight (spec.md §4.8, step 4).
type Annotation struct {
	Author         string
	TagDisplayName string
	ParaRef        string
	CreatedAt      string
	Comments       []string
}

// Span is one emitted, block-respecting display span (spec.md §4.8). Tiers
// and HighlightIDs are parallel slices ordered by tier index ("nesting
// order is stable"); Colors is parallel to both.
type Span struct {
	StartChar int
	EndChar   int

	HighlightIDs []string
	Tiers        []int
	Colors       []string

	// OverlapClass is "single", "double", or "many" per the three
	// underline tiers (spec.md §4.8, step 5).
	OverlapClass string

	// Annotation is set only on the last span of a highlight.
	Annotation *Annotation
}

// OverlapClass classifies an overlap count into one of the three underline
// tiers the client renders at distinct thicknesses.
func OverlapClass(overlapping int) string {
	switch {
	case overlapping <= 1:
		return "single"
	case overlapping == 2:
		return "double"
	default:
		return "many"
	}
}

// Compile transforms highlights over rawHTML into block-respecting display
// spans. commentsOf may be nil (no comments attached). colors maps a
// highlight's tag to a colour identifier; tagNames maps it to a display
// name; both must already be resolved (see TagCatalogue) to keep Compile
// pure. Highlights outside the document's character range are the caller's
// responsibility; Compile does not validate against rawHTML's length.
func Compile(rawHTML string, highlights []crdt.Highlight, commentsOf func(highlightID string) []crdt.Comment, colors map[string]string, tagNames map[string]string) ([]Span, error) {
	if len(highlights) == 0 {
		return nil, nil
	}

	cuts, err := blockCutPoints(rawHTML)
	if err != nil {
		return nil, err
	}

	sorted := append([]crdt.Highlight(nil), highlights...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].StartChar != sorted[j].StartChar {
			return sorted[i].StartChar < sorted[j].StartChar
		}
		return sorted[i].EndChar < sorted[j].EndChar
	})

	tiers := assignTiers(sorted)

	boundarySet := make(map[int]bool, len(sorted)*2+len(cuts))
	for _, h := range sorted {
		boundarySet[h.StartChar] = true
		boundarySet[h.EndChar] = true
	}
	for c := range cuts {
		boundarySet[c] = true
	}
	bounds := make([]int, 0, len(boundarySet))
	for b := range boundarySet {
		bounds = append(bounds, b)
	}
	sort.Ints(bounds)

	var out []Span
	lastSpanIdx := make(map[string]int, len(sorted))
	for i := 0; i+1 < len(bounds); i++ {
		lo, hi := bounds[i], bounds[i+1]
		if hi <= lo {
			continue
		}
		var active []crdt.Highlight
		for _, h := range sorted {
			if h.StartChar <= lo && h.EndChar >= hi {
				active = append(active, h)
			}
		}
		if len(active) == 0 {
			continue
		}
		sort.Slice(active, func(i, j int) bool { return tiers[active[i].ID] < tiers[active[j].ID] })

		sp := Span{StartChar: lo, EndChar: hi, OverlapClass: OverlapClass(len(active))}
		for _, h := range active {
			sp.HighlightIDs = append(sp.HighlightIDs, h.ID)
			sp.Tiers = append(sp.Tiers, tiers[h.ID])
			sp.Colors = append(sp.Colors, colors[h.Tag])
		}
		out = append(out, sp)
		idx := len(out) - 1
		for _, h := range active {
			lastSpanIdx[h.ID] = idx
		}
	}

	for _, h := range sorted {
		idx, ok := lastSpanIdx[h.ID]
		if !ok {
			continue
		}
		var comments []string
		if commentsOf != nil {
			for _, c := range commentsOf(h.ID) {
				comments = append(comments, c.Text)
			}
		}
		out[idx].Annotation = &Annotation{
			Author:         h.Author,
			TagDisplayName: tagNames[h.Tag],
			ParaRef:        h.ParaRef,
			CreatedAt:      h.CreatedAt,
			Comments:       comments,
		}
	}
	return out, nil
}

// assignTiers is the "meeting rooms" interval-scheduling allocation: each
// highlight, in start order, reuses the lowest-numbered tier freed by a
// highlight that has already ended, or takes a fresh tier if none is free.
func assignTiers(sorted []crdt.Highlight) map[string]int {
	type active struct {
		end  int
		tier int
	}
	tiers := make(map[string]int, len(sorted))
	var live []active
	var free []int
	next := 0

	for _, h := range sorted {
		remaining := live[:0]
		for _, a := range live {
			if a.end <= h.StartChar {
				free = append(free, a.tier)
			} else {
				remaining = append(remaining, a)
			}
		}
		live = remaining

		var tier int
		if len(free) > 0 {
			sort.Ints(free)
			tier = free[0]
			free = free[1:]
		} else {
			tier = next
			next++
		}
		tiers[h.ID] = tier
		live = append(live, active{end: h.EndChar, tier: tier})
	}
	return tiers
}

// SearchText flattens a document's highlight text, comment text, and
// resolved tag display names into one searchable string, for the
// out-of-scope full-text indexer to consume through a read-only snapshot.
// tagNames must already be resolved, for the same purity reason as Compile.
func SearchText(highlights []crdt.Highlight, commentsOf func(highlightID string) []crdt.Comment, tagNames map[string]string) string {
	sorted := append([]crdt.Highlight(nil), highlights...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].StartChar != sorted[j].StartChar {
			return sorted[i].StartChar < sorted[j].StartChar
		}
		return sorted[i].ID < sorted[j].ID
	})

	var b strings.Builder
	for _, h := range sorted {
		b.WriteString(h.Text)
		b.WriteByte('\n')
		if name := tagNames[h.Tag]; name != "" {
			b.WriteString(name)
			b.WriteByte('\n')
		}
		if commentsOf == nil {
			continue
		}
		for _, c := range commentsOf(h.ID) {
			b.WriteString(c.Text)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// containerTags mirrors the Paragraph Map Builder's block-boundary
// definition (package paramap); it is duplicated rather than exported
// because the compiler needs block *end* offsets too, not just numbered
// block starts, and must count empty blocks as real boundaries.
var containerTags = map[string]bool{
	"p": true, "blockquote": true, "pre": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// blockCutPoints walks rawHTML once and returns every char offset at which
// a highlight span must not cross: the start and end of every
// paragraph-bearing block, honouring the blockquote-wraps-single-p
// delegation rule, plus every br-br pseudo-paragraph boundary inside a <p>
// (spec.md §4.8, step 3: "no emitted span crosses a block boundary").
func blockCutPoints(rawHTML string) (map[int]bool, error) {
	nodes, err := walker.Parse(rawHTML)
	if err != nil {
		return nil, err
	}
	w := &cutWalker{cuts: make(map[int]bool)}
	for _, n := range nodes {
		w.walk(n)
	}
	return w.cuts, nil
}

type cutWalker struct {
	charPos int
	cuts    map[int]bool
}

func (w *cutWalker) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.charPos += utf8.RuneCountInString(n.Data)
	case html.ElementNode:
		tag := strings.ToLower(n.Data)
		if containerTags[tag] {
			if tag == "blockquote" && wrapsSingleP(n) {
				w.walkChildren(n)
				return
			}
			if tag == "p" {
				w.walkParagraph(n)
				return
			}
			start := w.charPos
			w.walkChildren(n)
			w.cuts[start] = true
			w.cuts[w.charPos] = true
			return
		}
		w.walkChildren(n)
	default:
		w.walkChildren(n)
	}
}

func (w *cutWalker) walkChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
}

// walkParagraph cuts a <p> at its own boundary and at every br-br pseudo-
// paragraph split within it (direct children only), matching paramap's
// numbering segmentation.
func (w *cutWalker) walkParagraph(p *html.Node) {
	start := w.charPos
	w.cuts[start] = true

	children := make([]*html.Node, 0)
	for c := p.FirstChild; c != nil; c = c.NextSibling {
		children = append(children, c)
	}

	i := 0
	for i < len(children) {
		c := children[i]
		if c.Type == html.ElementNode && strings.ToLower(c.Data) == "br" {
			j := i + 1
			for j < len(children) && children[j].Type == html.TextNode && strings.TrimSpace(children[j].Data) == "" {
				j++
			}
			if j < len(children) && children[j].Type == html.ElementNode && strings.ToLower(children[j].Data) == "br" {
				for k := i; k <= j; k++ {
					w.walkInline(children[k])
				}
				w.cuts[w.charPos] = true
				i = j + 1
				continue
			}
		}
		w.walkInline(c)
		i++
	}
	w.cuts[w.charPos] = true
}

func (w *cutWalker) walkInline(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.charPos += utf8.RuneCountInString(n.Data)
	case html.ElementNode:
		w.walkChildren(n)
	}
}

func wrapsSingleP(n *html.Node) bool {
	var onlyElem *html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode && strings.TrimSpace(c.Data) == "" {
			continue
		}
		if c.Type != html.ElementNode {
			return false
		}
		if onlyElem != nil {
			return false
		}
		onlyElem = c
	}
	return onlyElem != nil && strings.ToLower(onlyElem.Data) == "p"
}
