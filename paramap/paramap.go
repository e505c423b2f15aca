// Unless explicitly stated otherwise all files in this repository are
// licensed under the Apache License Version 2.0.
// Copyright 2026 PromptGrimoire contributors.

// Package paramap implements the Paragraph Map Builder (spec.md §4.2): a
// pass over the same HTML tree the Text Walker extracts from, producing a
// char-offset -> paragraph-number map and (optionally) a copy of the tree
// with data-para attributes injected for display and export parity.
package paramap

import (
	"bytes"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/MQFacultyOfArts/promptgrimoire-ace/walker"
)

// Mode is the numbering strategy selected for a document.
type Mode int

const (
	// AutoNumber assigns sequential integers to discourse-level blocks.
	AutoNumber Mode = iota
	// SourceNumber reads numbers from <li value="N"> inside an <ol>,
	// typical of legal documents such as Australian court judgments.
	SourceNumber
)

var containerTags = map[string]bool{
	"p": true, "blockquote": true, "pre": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// Map is the char-offset -> paragraph-number mapping for one document,
// plus its numbering mode.
type Map struct {
	Mode    Mode
	offsets []int
	numbers map[int]int
}

// Lookup returns the paragraph number at a given char offset, or false if
// no paragraph precedes it.
func (m *Map) Lookup(charOffset int) (int, bool) {
	idx := sort.Search(len(m.offsets), func(i int) bool { return m.offsets[i] > charOffset })
	if idx == 0 {
		return 0, false
	}
	n := m.numbers[m.offsets[idx-1]]
	return n, true
}

// LookupParaRef implements spec.md §4.2's lookup_para_ref: "" if no
// paragraph precedes start_char, "[N]" if start and end share a paragraph,
// "[N]-[M]" otherwise.
func (m *Map) LookupParaRef(startChar, endChar int) string {
	start, ok := m.Lookup(startChar)
	if !ok {
		return ""
	}
	end, ok := m.Lookup(endChar)
	if !ok || end == start {
		return "[" + strconv.Itoa(start) + "]"
	}
	return "[" + strconv.Itoa(start) + "]-[" + strconv.Itoa(end) + "]"
}

// Offsets returns the sorted offset keys, for property tests that check
// every key is a valid index into the Text Walker's output.
func (m *Map) Offsets() []int {
	return append([]int(nil), m.offsets...)
}

// DetectMode classifies rawHTML as source-numbered if it contains two or
// more <li value="..."> elements anywhere under an <ol>, auto-numbered
// otherwise.
func DetectMode(rawHTML string) (Mode, error) {
	nodes, err := walker.Parse(rawHTML)
	if err != nil {
		return AutoNumber, err
	}
	count := 0
	var visit func(n *html.Node, inOL bool)
	visit = func(n *html.Node, inOL bool) {
		if n.Type == html.ElementNode {
			if n.DataAtom == atom.Ol || strings.EqualFold(n.Data, "ol") {
				inOL = true
			}
			if (n.DataAtom == atom.Li || strings.EqualFold(n.Data, "li")) && inOL && attr(n, "value") != "" {
				count++
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c, inOL)
		}
	}
	for _, n := range nodes {
		visit(n, false)
	}
	if count >= 2 {
		return SourceNumber, nil
	}
	return AutoNumber, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// Build walks rawHTML once, producing the char-offset map and a rendered
// copy of the HTML with data-para attributes injected.
func Build(rawHTML string) (*Map, string, error) {
	mode, err := DetectMode(rawHTML)
	if err != nil {
		return nil, "", err
	}
	nodes, err := walker.Parse(rawHTML)
	if err != nil {
		return nil, "", err
	}

	b := &builder{
		mode:    mode,
		numbers: make(map[int]int),
	}
	for _, n := range nodes {
		b.walk(n, false)
	}

	m := &Map{Mode: mode, numbers: b.numbers}
	for off := range b.numbers {
		m.offsets = append(m.offsets, off)
	}
	sort.Ints(m.offsets)

	var out bytes.Buffer
	for _, n := range nodes {
		if err := html.Render(&out, n); err != nil {
			return nil, "", err
		}
	}
	return m, out.String(), nil
}

type builder struct {
	mode    Mode
	charPos int
	next    int // last auto-number assigned; 0 before the first
	numbers map[int]int
}

func (b *builder) assign(offset int) int {
	b.next++
	b.numbers[offset] = b.next
	return b.next
}

// walk performs the same depth-first traversal as the Text Walker,
// additionally recognising paragraph-bearing blocks and, in source mode,
// numbered <li> elements. inOL tracks whether we are currently inside an
// <ol>, since source numbering only honours <li value> under <ol>.
func (b *builder) walk(n *html.Node, inOL bool) {
	switch n.Type {
	case html.TextNode:
		b.charPos += utf8.RuneCountInString(n.Data)
		return
	case html.ElementNode:
		tag := strings.ToLower(n.Data)
		if tag == "ol" {
			inOL = true
		}

		if b.mode == SourceNumber {
			if tag == "li" && inOL {
				if v := attr(n, "value"); v != "" {
					if num, err := strconv.Atoi(v); err == nil {
						start := b.charPos
						if hasNonWhitespaceText(n) {
							b.numbers[start] = num
							setAttr(n, "data-para", strconv.Itoa(num))
						}
					}
				}
			}
			b.walkChildren(n, inOL)
			return
		}

		if containerTags[tag] {
			if tag == "blockquote" && wrapsSingleP(n) {
				b.walkChildren(n, inOL)
				return
			}
			if tag == "p" {
				b.walkParagraph(n)
				return
			}
			start := b.charPos
			b.walkChildren(n, inOL)
			if hasNonWhitespaceTextBetween(start, b.charPos, n) {
				num := b.assign(start)
				setAttr(n, "data-para", strconv.Itoa(num))
			}
			return
		}

		b.walkChildren(n, inOL)
		return
	default:
		b.walkChildren(n, inOL)
	}
}

func (b *builder) walkChildren(n *html.Node, inOL bool) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.walk(c, inOL)
	}
}

// walkParagraph handles a <p> element, splitting it into pseudo-paragraphs
// at <br><br> boundaries (direct children only; spec.md §4.2).
func (b *builder) walkParagraph(p *html.Node) {
	type segment struct {
		start int
		nodes []*html.Node
	}
	var segments []segment
	cur := segment{start: b.charPos}

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
				// br-br boundary: walk the separator nodes (both brs and
				// the whitespace between) for char accounting, then start
				// a new segment after the second br.
				for k := i; k <= j; k++ {
					b.walkInline(children[k])
				}
				segments = append(segments, cur)
				cur = segment{start: b.charPos}
				i = j + 1
				continue
			}
		}
		cur.nodes = append(cur.nodes, c)
		b.walkInline(c)
		i++
	}
	segments = append(segments, cur)

	for idx, seg := range segments {
		if !segmentHasNonWhitespaceText(seg.nodes) {
			continue
		}
		num := b.assign(seg.start)
		if idx == 0 {
			setAttr(p, "data-para", strconv.Itoa(num))
			continue
		}
		span := &html.Node{Type: html.ElementNode, Data: "span", DataAtom: atom.Span}
		setAttr(span, "data-para", strconv.Itoa(num))
		for _, child := range seg.nodes {
			p.RemoveChild(child)
			span.AppendChild(child)
		}
		p.AppendChild(span)
	}
}

// walkInline advances char accounting for a node that is not itself a
// paragraph container (used while scanning a <p>'s direct children).
func (b *builder) walkInline(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.charPos += utf8.RuneCountInString(n.Data)
	case html.ElementNode:
		b.walkChildren(n, false)
	}
}

func hasNonWhitespaceText(n *html.Node) bool {
	return segmentHasNonWhitespaceText([]*html.Node{n})
}

func segmentHasNonWhitespaceText(nodes []*html.Node) bool {
	for _, n := range nodes {
		if nodeHasNonWhitespaceText(n) {
			return true
		}
	}
	return false
}

func nodeHasNonWhitespaceText(n *html.Node) bool {
	if n.Type == html.TextNode {
		return strings.TrimSpace(n.Data) != ""
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if nodeHasNonWhitespaceText(c) {
			return true
		}
	}
	return false
}

// hasNonWhitespaceTextBetween reports whether the container n produced any
// non-whitespace text while charPos advanced from start to end. Used for
// non-<p> containers where we don't track per-node text directly.
func hasNonWhitespaceTextBetween(start, end int, n *html.Node) bool {
	if end <= start {
		return false
	}
	return nodeHasNonWhitespaceText(n)
}

// wrapsSingleP reports whether n's only element child (ignoring
// whitespace-only text nodes) is a single <p>.
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
