package orchestrator

import (
	"context"
	"strings"

	"github.com/elisoncampos/reactive-views-sub000/internal/client"
	"github.com/elisoncampos/reactive-views-sub000/internal/errors"
	"github.com/elisoncampos/reactive-views-sub000/internal/tree"
	"github.com/elisoncampos/reactive-views-sub000/internal/types"
)

// pass is the state of one transform call.
type pass struct {
	o         *Orchestrator
	doc       *tree.Document
	strategy  Strategy
	backend   *client.Client
	results   map[*types.TreeNode]types.RenderResult
	collector *errors.ErrorCollector
}

// client acquires the render client on first use, so documents served
// entirely from cache or failing resolution never start the backend.
func (p *pass) client(ctx context.Context) (*client.Client, error) {
	if p.backend != nil {
		return p.backend, nil
	}
	if p.o.opts.Backend == nil {
		return nil, errors.NewSupervisionError(errors.ErrCodeConfigInvalid, "no rendering backend configured", nil)
	}
	c, err := p.o.opts.Backend.Client(ctx)
	if err != nil {
		return nil, err
	}
	p.backend = c
	return c, nil
}

// dispatch fills p.results for every root. Only failing to reach the backend
// at all is returned; component failures become error results.
func (p *pass) dispatch(ctx context.Context) error {
	pending := p.fromCache()
	if len(pending) == 0 {
		return nil
	}

	switch p.strategy {
	case StrategyTree:
		return p.renderTrees(ctx, pending)
	case StrategyBatch:
		return p.renderBatch(ctx, pending)
	default:
		return p.renderEach(ctx, pending)
	}
}

// fromCache fills cached results and returns the roots still to render.
func (p *pass) fromCache() []*types.TreeNode {
	if p.o.cache == nil {
		return p.doc.Roots
	}

	var pending []*types.TreeNode
	for _, root := range p.doc.Roots {
		if !root.Spec.Resolved() {
			pending = append(pending, root)
			continue
		}
		key, ok := cacheKey(p.strategy, root)
		if !ok {
			pending = append(pending, root)
			continue
		}
		v, hit := p.o.cache.Read(key)
		p.o.metrics.ObserveCacheLookup(hit)
		if html, isString := v.(string); hit && isString {
			p.results[root] = types.HTMLResult(html)
			continue
		}
		pending = append(pending, root)
	}
	return pending
}

func (p *pass) record(ctx context.Context, node *types.TreeNode, result types.RenderResult) {
	p.results[node] = result
	p.o.metrics.ObserveRender(p.strategy.String(), result.Err)

	if !result.OK() {
		p.o.logger.Debug(ctx, "Component render failed",
			"component", node.Spec.Name,
			"strategy", p.strategy.String(),
			"error", result.Err.Error(),
			"cause", errors.GetRootCause(result.Err).Error(),
			"context", errors.GetErrorContext(result.Err))
		return
	}
	if p.o.cache == nil {
		return
	}
	if key, ok := cacheKey(p.strategy, node); ok {
		p.o.cache.Write(key, result.HTML, p.o.opts.CacheTTL)
	}
}

// renderTrees sends each root with its whole subtree as one call. Any
// unresolved component in a subtree fails that root without a call.
func (p *pass) renderTrees(ctx context.Context, roots []*types.TreeNode) error {
	for _, root := range roots {
		if missing := root.Unresolved(); len(missing) > 0 {
			err := errors.NewResolutionError(missing[0]).
				WithContext("unresolved", missing).
				WithContext("root", root.Spec.Name)
			p.record(ctx, root, types.ErrorResult(err))
			continue
		}

		c, err := p.client(ctx)
		if err != nil {
			return err
		}
		html, err := c.RenderTree(ctx, root)
		if err != nil {
			p.record(ctx, root, types.ErrorResult(err))
			continue
		}
		p.record(ctx, root, types.HTMLResult(html))
	}
	return nil
}

// renderBatch sends every resolved root in one call. A transport or protocol
// failure of the call as a whole falls back to one call per component; any
// other error fails each component of the batch.
func (p *pass) renderBatch(ctx context.Context, roots []*types.TreeNode) error {
	resolved := p.rejectUnresolved(ctx, roots)
	if len(resolved) == 0 {
		return nil
	}

	c, err := p.client(ctx)
	if err != nil {
		return err
	}

	specs := make([]types.ComponentSpec, len(resolved))
	for i, node := range resolved {
		specs[i] = node.Spec
	}

	results, err := c.BatchRender(ctx, specs)
	switch {
	case err == nil:
	case batchFallback(err):
		p.o.metrics.IncBatchFallback()
		p.o.logger.Warn(ctx, err, "Batch render failed, rendering components individually",
			"components", len(specs),
			"names", specNames(specs))
		return p.renderResolved(ctx, c, resolved)
	default:
		for _, node := range resolved {
			p.record(ctx, node, types.ErrorResult(err))
		}
		return nil
	}

	for i, node := range resolved {
		p.record(ctx, node, results[i])
	}
	return nil
}

// batchFallback reports whether a failed batch call is worth retrying one
// component at a time.
func batchFallback(err error) bool {
	return errors.IsTransport(err) || errors.IsProtocol(err)
}

// renderEach renders roots one call at a time in document order.
func (p *pass) renderEach(ctx context.Context, roots []*types.TreeNode) error {
	resolved := p.rejectUnresolved(ctx, roots)
	if len(resolved) == 0 {
		return nil
	}
	c, err := p.client(ctx)
	if err != nil {
		return err
	}
	return p.renderResolved(ctx, c, resolved)
}

func (p *pass) renderResolved(ctx context.Context, c *client.Client, nodes []*types.TreeNode) error {
	for _, node := range nodes {
		html, err := c.Render(ctx, node.Spec)
		if err != nil {
			p.record(ctx, node, types.ErrorResult(err))
			continue
		}
		p.record(ctx, node, types.HTMLResult(html))
	}
	return nil
}

// rejectUnresolved records a resolution error for every root without a path
// and returns the others in order.
func (p *pass) rejectUnresolved(ctx context.Context, roots []*types.TreeNode) []*types.TreeNode {
	resolved := make([]*types.TreeNode, 0, len(roots))
	for _, root := range roots {
		if root.Spec.Resolved() {
			resolved = append(resolved, root)
			continue
		}
		p.record(ctx, root, types.ErrorResult(errors.NewResolutionError(root.Spec.Name)))
	}
	return resolved
}

func specNames(specs []types.ComponentSpec) string {
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	return strings.Join(names, ",")
}
