// Package tree finds component markers in markup and builds the forest of
// component nodes the orchestrator dispatches on.
package tree

import (
	"context"
	"strings"

	"github.com/elisoncampos/reactive-views-sub000/internal/errors"
	"github.com/elisoncampos/reactive-views-sub000/internal/logging"
	"github.com/elisoncampos/reactive-views-sub000/internal/props"
	"github.com/elisoncampos/reactive-views-sub000/internal/types"
)

// DefaultMaxDepth is the nesting depth above which a warning is logged.
const DefaultMaxDepth = 3

// SpecFunc builds the ComponentSpec for a marker.
type SpecFunc func(m *Marker) types.ComponentSpec

// Options configures a Builder.
type Options struct {
	Predicate Predicate
	// Spec builds specs; AttributeSpec when nil
	Spec     SpecFunc
	MaxDepth int
	Logger   logging.Logger
}

// Builder turns markup into a Document.
type Builder struct {
	predicate Predicate
	spec      SpecFunc
	maxDepth  int
	logger    logging.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(opts Options) *Builder {
	b := &Builder{
		predicate: opts.Predicate,
		spec:      opts.Spec,
		maxDepth:  opts.MaxDepth,
		logger:    opts.Logger,
	}
	if b.predicate == nil {
		b.predicate = DefaultPredicate
	}
	if b.spec == nil {
		b.spec = AttributeSpec
	}
	if b.maxDepth <= 0 {
		b.maxDepth = DefaultMaxDepth
	}
	if b.logger == nil {
		b.logger = logging.NewNopLogger()
	}
	b.logger = b.logger.WithComponent("tree_builder")
	return b
}

// AttributeSpec builds a spec whose props are the marker's parsed attributes.
func AttributeSpec(m *Marker) types.ComponentSpec {
	return types.ComponentSpec{Name: m.Name, Props: AttributeProps(m)}
}

// AttributeProps parses every marker attribute into a typed value.
func AttributeProps(m *Marker) *props.Map {
	p := props.NewMap()
	for _, a := range m.Attrs {
		p.Set(a.Name, props.ParseAttribute(a.Value, a.HasValue))
	}
	return p
}

// HasMarkers reports whether markup contains any component marker, without
// parsing it.
func (b *Builder) HasMarkers(markup string) bool {
	return hasMarker(markup, b.predicate)
}

// Build scans markup and builds the component forest. The markup itself is
// kept as is; replacements are spliced in by offset when rendering.
func (b *Builder) Build(ctx context.Context, markup string) (*Document, error) {
	res, err := scan(markup, b.predicate)
	if err != nil {
		return nil, errors.NewInternalError(errors.ErrCodeInternalError, "tokenizing markup", err)
	}

	doc := &Document{
		source:   markup,
		full:     isFullDocument(markup),
		markers:  res.markers,
		appendAt: res.appendAt,
		nodes:    make(map[*types.TreeNode]*Marker),
		replaced: make(map[*Marker]bool),
	}

	for _, m := range res.markers {
		if m.parent == nil {
			doc.Roots = append(doc.Roots, b.node(doc, m))
		}
	}
	for _, r := range doc.Roots {
		if len(r.Children) > 0 {
			doc.HasNesting = true
			break
		}
	}

	if depth := doc.Depth(); depth > b.maxDepth {
		b.logger.Warn(ctx, nil, "Component nesting exceeds configured depth",
			"depth", depth,
			"max_depth", b.maxDepth)
	}

	return doc, nil
}

func (b *Builder) node(doc *Document, m *Marker) *types.TreeNode {
	t := &types.TreeNode{Spec: b.spec(m)}
	doc.nodes[t] = m

	for _, c := range m.children {
		t.Children = append(t.Children, b.node(doc, c))
	}
	for _, s := range m.literals {
		t.LiteralChildren = append(t.LiteralChildren, doc.expand(s.start, s.end))
	}
	return t
}

func isFullDocument(markup string) bool {
	head := strings.TrimSpace(markup)
	if len(head) > 16 {
		head = head[:16]
	}
	head = strings.ToLower(head)
	return strings.HasPrefix(head, "<!doctype") || strings.HasPrefix(head, "<html")
}
