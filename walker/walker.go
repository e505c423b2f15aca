// Unless explicitly stated otherwise all files in this repository are
// licensed under the Apache License Version 2.0.
// Copyright 2026 PromptGrimoire contributors.

// Package walker implements the Text Walker (spec.md §4.1): a deterministic
// HTML-to-character-sequence extractor that is the ground truth every
// highlight range is measured against. The server-side implementation here
// must produce character offsets identical to the browser-side walker the
// UI ships; both extract text-node contents depth-first with no separators
// injected at element boundaries.
package walker

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Parse parses an HTML fragment the same way the rest of the engine does:
// lenient, no errors surfaced for malformed markup (spec.md §4.1,
// "Failure"), wrapped in an implicit <body> context so bare fragments like
// "<p>...</p><p>...</p>" parse as siblings instead of being rejected.
func Parse(rawHTML string) ([]*html.Node, error) {
	context := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(rawHTML), context)
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

// Extract parses rawHTML and returns both its character sequence and the
// parsed fragment nodes, so a caller that also needs the tree can re-walk
// it instead of re-parsing. The Paragraph Map Builder and the Highlight
// Span Compiler call Parse themselves.
func Extract(rawHTML string) (text string, nodes []*html.Node, err error) {
	nodes, err = Parse(rawHTML)
	if err != nil {
		return "", nil, err
	}
	var b strings.Builder
	for _, n := range nodes {
		walk(n, &b)
	}
	return b.String(), nodes, nil
}

// Text returns only the character sequence, discarding the parsed tree.
func Text(rawHTML string) (string, error) {
	text, _, err := Extract(rawHTML)
	return text, err
}

// Len returns len([]rune(Text(rawHTML))); offsets throughout the engine are
// code-point offsets, not byte offsets (spec.md §4.1, "a sequence of
// characters (code points)").
func Len(rawHTML string) (int, error) {
	text, err := Text(rawHTML)
	if err != nil {
		return 0, err
	}
	return len([]rune(text)), nil
}

func walk(n *html.Node, b *strings.Builder) {
	if n == nil {
		return
	}
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
	case html.ElementNode, html.DocumentNode:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, b)
		}
	}
}
