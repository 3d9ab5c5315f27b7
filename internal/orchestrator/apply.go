package orchestrator

import (
	stderrors "errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/elisoncampos/reactive-views-sub000/internal/errors"
	"github.com/elisoncampos/reactive-views-sub000/internal/types"
)

// Island markup attributes read by the client-side hydration runtime.
const (
	AttrIsland      = "data-island"
	AttrIslandError = "data-island-error"
	AttrIslandProps = "data-island-props"
)

type replacement struct {
	node      *types.TreeNode
	container *html.Node
}

// apply replaces every root with its island container and appends the props
// artifacts. The full plan is built before the document is touched.
func (p *pass) apply() (string, []Island, error) {
	plan := make([]replacement, 0, len(p.doc.Roots))
	islands := make([]Island, 0, len(p.doc.Roots))
	var artifacts []*html.Node

	for _, root := range p.doc.Roots {
		id := p.o.opts.NewID()
		result, ok := p.results[root]
		if !ok {
			result = types.ErrorResult(errors.NewInternalError(errors.ErrCodeInternalError, "component was not dispatched", nil))
		}

		if !result.OK() {
			p.collector.Add(errors.RenderFailure{Component: root.Spec.Name, IslandID: id, Err: result.Err})
		}

		plan = append(plan, replacement{node: root, container: p.container(id, root, result)})
		islands = append(islands, Island{ID: id, Name: root.Spec.Name, OK: result.OK()})

		// failed islands keep their props so the client can retry the render
		if root.Spec.HasProps() {
			script, err := propsScript(id, root)
			if err != nil {
				return "", nil, err
			}
			artifacts = append(artifacts, script)
		}
	}

	for _, r := range plan {
		p.doc.Replace(r.node, r.container)
	}
	p.doc.Append(artifacts...)

	out, err := p.doc.Render()
	if err != nil {
		return "", nil, errors.WrapInternal(err, errors.ErrCodeInternalError, "rendering document")
	}
	return out, islands, nil
}

func (p *pass) container(id string, node *types.TreeNode, result types.RenderResult) *html.Node {
	div := &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
		Attr: []html.Attribute{
			{Key: "id", Val: id},
			{Key: AttrIsland, Val: node.Spec.Name},
		},
	}

	if result.OK() {
		div.AppendChild(&html.Node{Type: html.RawNode, Data: result.HTML})
		return div
	}

	div.Attr = append(div.Attr, html.Attribute{Key: AttrIslandError, Val: "true"})
	if p.o.opts.DetailedErrors {
		div.AppendChild(diagnostic(node.Spec.Name, result.Err))
	}
	return div
}

// diagnostic is the development placeholder: the component name, the error
// and any backend stack. Text nodes are escaped on render.
func diagnostic(component string, err error) *html.Node {
	pre := &html.Node{
		Type:     html.ElementNode,
		Data:     "pre",
		DataAtom: atom.Pre,
		Attr:     []html.Attribute{{Key: "class", Val: "rv-error"}},
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s failed to render", component)

	var ve *errors.ViewError
	if stderrors.As(err, &ve) {
		fmt.Fprintf(&b, " (%s)", ve.Type)
	}
	b.WriteString(": ")
	b.WriteString(errors.UserMessage(err))
	if ve != nil && ve.Stack != "" {
		b.WriteString("\n\n")
		b.WriteString(ve.Stack)
	}

	pre.AppendChild(&html.Node{Type: html.TextNode, Data: b.String()})
	return pre
}

// propsScript serialises a component's props for hydration.
func propsScript(id string, node *types.TreeNode) (*html.Node, error) {
	data, err := node.Spec.Props.MarshalJSON()
	if err != nil {
		return nil, errors.WrapInternal(err, errors.ErrCodeInternalError, "encoding props").
			WithComponent(node.Spec.Name)
	}

	script := &html.Node{
		Type:     html.ElementNode,
		Data:     "script",
		DataAtom: atom.Script,
		Attr: []html.Attribute{
			{Key: "type", Val: "application/json"},
			{Key: AttrIslandProps, Val: id},
		},
	}
	script.AppendChild(&html.Node{Type: html.TextNode, Data: escapeScript(string(data))})
	return script, nil
}

// escapeScript keeps a JSON payload from closing its script element.
func escapeScript(s string) string {
	return strings.ReplaceAll(s, "</", `<\/`)
}
