// Package types provides common type definitions shared by the tree builder,
// the render client and the orchestrator. It exists to avoid circular
// dependencies between those packages.
package types

import (
	"strings"

	"github.com/elisoncampos/reactive-views-sub000/internal/props"
)

// ComponentSpec describes one component marker found in a document. It is
// built once during tree construction and not modified afterwards.
type ComponentSpec struct {
	// Name is the original-case component name (e.g. "ProductCard")
	Name string
	// Path is the resolved source file, empty when resolution failed
	Path string
	// Props are the ordered props sent to the backend
	Props *props.Map
}

// Resolved reports whether a source file was found for the component.
func (s ComponentSpec) Resolved() bool {
	return s.Path != ""
}

// HasProps reports whether the component carries at least one prop.
func (s ComponentSpec) HasProps() bool {
	return s.Props.Len() > 0
}

// TreeNode is a component marker with its nested component markers. Plain
// markup between them is kept as literal fragments, not as tree structure.
type TreeNode struct {
	Spec            ComponentSpec
	Children        []*TreeNode
	LiteralChildren []string
}

// Depth returns 1 + the deepest child depth.
func (n *TreeNode) Depth() int {
	if n == nil {
		return 0
	}
	deepest := 0
	for _, child := range n.Children {
		if d := child.Depth(); d > deepest {
			deepest = d
		}
	}
	return deepest + 1
}

// Walk visits n and its descendants depth-first in document order.
func (n *TreeNode) Walk(fn func(*TreeNode)) {
	if n == nil {
		return
	}
	fn(n)
	for _, child := range n.Children {
		child.Walk(fn)
	}
}

// Unresolved returns the names of every node in the subtree without a path.
func (n *TreeNode) Unresolved() []string {
	var names []string
	n.Walk(func(node *TreeNode) {
		if !node.Spec.Resolved() {
			names = append(names, node.Spec.Name)
		}
	})
	return names
}

// LiteralHTML concatenates the literal children into one markup string.
func (n *TreeNode) LiteralHTML() string {
	return strings.Join(n.LiteralChildren, "")
}

// ForestDepth returns the depth of the deepest root, 0 for an empty forest.
func ForestDepth(roots []*TreeNode) int {
	deepest := 0
	for _, root := range roots {
		if d := root.Depth(); d > deepest {
			deepest = d
		}
	}
	return deepest
}

// RenderResult is the outcome of rendering one ComponentSpec: either HTML or
// an error, never both.
type RenderResult struct {
	HTML string
	Err  error
}

// HTMLResult wraps successfully rendered markup.
func HTMLResult(html string) RenderResult {
	return RenderResult{HTML: html}
}

// ErrorResult wraps a failure.
func ErrorResult(err error) RenderResult {
	return RenderResult{Err: err}
}

// OK reports whether the render succeeded.
func (r RenderResult) OK() bool {
	return r.Err == nil
}
