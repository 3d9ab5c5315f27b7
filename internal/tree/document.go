package tree

import (
	"sort"
	"strings"

	"golang.org/x/net/html"

	"github.com/elisoncampos/reactive-views-sub000/internal/types"
)

// Document is scanned markup together with its component forest. It is owned
// by one transform call.
type Document struct {
	// Roots are the markers without a marker ancestor, in document order
	Roots []*types.TreeNode
	// HasNesting is true when any marker has a marker ancestor
	HasNesting bool

	source   string
	full     bool
	markers  []*Marker
	nodes    map[*types.TreeNode]*Marker
	replaced map[*Marker]bool
	edits    []edit
	appended []*html.Node
	appendAt int
}

// edit swaps source[start:end] for node.
type edit struct {
	start, end int
	marker     *Marker
	node       *html.Node
}

// Depth is the depth of the deepest root, 0 when there are no markers.
func (d *Document) Depth() int {
	return types.ForestDepth(d.Roots)
}

// Full reports whether the markup was a complete HTML document.
func (d *Document) Full() bool {
	return d.full
}

// Markers returns every marker in source order.
func (d *Document) Markers() []*Marker {
	return d.markers
}

// Marker returns the source marker of a tree node.
func (d *Document) Marker(t *types.TreeNode) *Marker {
	return d.nodes[t]
}

// Flatten returns every tree node in document order, roots and descendants.
func (d *Document) Flatten() []*types.TreeNode {
	var all []*types.TreeNode
	for _, r := range d.Roots {
		r.Walk(func(n *types.TreeNode) { all = append(all, n) })
	}
	return all
}

// Replace swaps the markup of a tree node for replacement. A node already
// replaced, or inside a replaced ancestor, is ignored. Replacing an ancestor
// drops earlier replacements of its descendants.
func (d *Document) Replace(t *types.TreeNode, replacement *html.Node) bool {
	m := d.nodes[t]
	if m == nil || d.replaced[m] {
		return false
	}
	for _, e := range d.edits {
		if e.start <= m.Start && m.End <= e.end {
			return false
		}
	}

	kept := d.edits[:0]
	for _, e := range d.edits {
		if m.Start <= e.start && e.end <= m.End {
			continue
		}
		kept = append(kept, e)
	}
	d.edits = append(kept, edit{start: m.Start, end: m.End, marker: m, node: replacement})
	d.replaced[m] = true
	return true
}

// Append adds nodes at the end of <body>, or at the end of the document when
// there is no body.
func (d *Document) Append(nodes ...*html.Node) {
	d.appended = append(d.appended, nodes...)
}

// Render splices replacements and appended nodes into the original markup.
// Everything outside replaced markers is copied byte for byte, except that
// self-closing markers are written out with an explicit end tag.
func (d *Document) Render() (string, error) {
	edits := make([]edit, len(d.edits))
	copy(edits, d.edits)
	sort.Slice(edits, func(i, j int) bool { return edits[i].start < edits[j].start })

	var b strings.Builder
	b.Grow(len(d.source) + 256)

	pos := 0
	appended := len(d.appended) == 0
	flush := func() error {
		at := max(d.appendAt, pos)
		b.WriteString(d.expand(pos, at))
		pos = at
		for _, n := range d.appended {
			if err := html.Render(&b, n); err != nil {
				return err
			}
		}
		appended = true
		return nil
	}

	for _, e := range edits {
		if !appended && d.appendAt <= e.start {
			if err := flush(); err != nil {
				return "", err
			}
		}
		b.WriteString(d.expand(pos, e.start))
		if err := html.Render(&b, e.node); err != nil {
			return "", err
		}
		pos = e.end
	}
	if !appended {
		if err := flush(); err != nil {
			return "", err
		}
	}
	b.WriteString(d.expand(pos, len(d.source)))
	return b.String(), nil
}

// expand returns source[start:end] with self-closing markers written as a
// start and end tag pair.
func (d *Document) expand(start, end int) string {
	if start >= end {
		return ""
	}
	var b strings.Builder
	pos := start
	for _, m := range d.markers {
		if m.Start >= end {
			break
		}
		if !m.SelfClosing || m.Start < pos || m.End > end {
			continue
		}
		b.WriteString(d.source[pos:m.Start])
		b.WriteString(m.StartTag)
		b.WriteString("</" + m.Name + ">")
		pos = m.End
	}
	b.WriteString(d.source[pos:end])
	return b.String()
}
