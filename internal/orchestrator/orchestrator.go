// Package orchestrator turns markup containing component markers into markup
// containing rendered islands. It picks a dispatch strategy per document,
// drives the render client and reconciles results back into the document.
package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/elisoncampos/reactive-views-sub000/internal/cache"
	"github.com/elisoncampos/reactive-views-sub000/internal/client"
	"github.com/elisoncampos/reactive-views-sub000/internal/errors"
	"github.com/elisoncampos/reactive-views-sub000/internal/logging"
	"github.com/elisoncampos/reactive-views-sub000/internal/monitoring"
	"github.com/elisoncampos/reactive-views-sub000/internal/props"
	"github.com/elisoncampos/reactive-views-sub000/internal/tree"
	"github.com/elisoncampos/reactive-views-sub000/internal/types"
	"github.com/elisoncampos/reactive-views-sub000/internal/watcher"
)

// Strategy is the way one document's components reach the backend.
type Strategy int

const (
	StrategyNone Strategy = iota
	StrategyTree
	StrategyBatch
	StrategyIndividual
)

func (s Strategy) String() string {
	switch s {
	case StrategyTree:
		return "tree"
	case StrategyBatch:
		return "batch"
	case StrategyIndividual:
		return "individual"
	default:
		return "none"
	}
}

// Backend hands out the render client, starting the backend when needed.
// *client.Provider implements it.
type Backend interface {
	Client(ctx context.Context) (*client.Client, error)
}

// Resolver maps a component name to a source file.
type Resolver interface {
	Resolve(name string, roots []string) (string, bool)
}

const renderPrefix = "render:"

// Options configures an Orchestrator.
type Options struct {
	Backend     Backend
	Resolver    Resolver
	SearchPaths []string

	BatchEnabled bool
	TreeEnabled  bool
	MaxDepth     int
	// Predicate decides which tags are markers; tree.DefaultPredicate when nil
	Predicate tree.Predicate

	// DetailedErrors shows the failure inside the placeholder instead of an
	// empty container
	DetailedErrors bool

	// Cache stores successful renders; nil disables caching
	Cache    cache.Store
	CacheTTL time.Duration

	// NewID generates island ids; random UUIDs when nil
	NewID func() string

	Logger  logging.Logger
	Metrics *monitoring.Metrics
}

// Orchestrator transforms documents. It is safe for concurrent use; each
// Transform call owns its own document.
type Orchestrator struct {
	opts    Options
	cache   *cache.NamespacedStore
	logger  logging.Logger
	metrics *monitoring.Metrics
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	if opts.Predicate == nil {
		opts.Predicate = tree.DefaultPredicate
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return "rv-" + uuid.NewString() }
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	o := &Orchestrator{
		opts:    opts,
		logger:  logger.WithComponent("orchestrator"),
		metrics: opts.Metrics,
	}
	if opts.Cache != nil {
		o.cache = cache.Namespaced(opts.Cache, renderPrefix)
	}
	return o
}

// Island describes one root marker after apply.
type Island struct {
	ID   string
	Name string
	OK   bool
}

// Report summarises one transform.
type Report struct {
	Strategy Strategy
	Islands  []Island
	Failures []errors.RenderFailure
	// Err is set when the document was returned unchanged because of a
	// failure outside any single component
	Err error
}

// Transform renders every component marker in markup and returns the
// resulting markup. It never fails: when the document cannot be processed
// the original markup is returned and the failure logged.
func (o *Orchestrator) Transform(ctx context.Context, markup string, req Request) string {
	out, _ := o.TransformReport(ctx, markup, req)
	return out
}

// TransformReport is Transform with a summary of what happened.
func (o *Orchestrator) TransformReport(ctx context.Context, markup string, req Request) (string, *Report) {
	report := &Report{}
	perf := logging.StartOperation(o.logger, "transform")

	builder := o.builder(req)
	if !builder.HasMarkers(markup) {
		o.metrics.ObserveTransform(StrategyNone.String(), perf.Elapsed())
		return markup, report
	}

	doc, err := builder.Build(ctx, markup)
	if err != nil {
		return o.abandon(ctx, perf, markup, report, err, "Failed to parse markup")
	}
	if len(doc.Roots) == 0 {
		o.metrics.ObserveTransform(StrategyNone.String(), perf.Elapsed())
		return markup, report
	}

	p := &pass{
		o:         o,
		doc:       doc,
		results:   make(map[*types.TreeNode]types.RenderResult, len(doc.Roots)),
		collector: errors.NewErrorCollector(),
	}
	p.strategy = o.selectStrategy(doc)
	report.Strategy = p.strategy

	if err := p.dispatch(ctx); err != nil {
		return o.abandon(ctx, perf, markup, report, err, "Rendering backend unavailable")
	}

	out, islands, err := p.apply()
	if err != nil {
		return o.abandon(ctx, perf, markup, report, err, "Failed to render document")
	}
	report.Islands = islands
	report.Failures = p.collector.Failures()

	if p.collector.HasErrors() {
		o.logger.Warn(ctx, nil, "Some components failed to render",
			"strategy", p.strategy.String(),
			"failed", p.collector.Components(),
			"summary", p.collector.Summary())
	}

	o.metrics.ObserveTransform(p.strategy.String(), perf.Elapsed())
	perf.End(ctx,
		"strategy", p.strategy.String(),
		"components", len(doc.Roots),
		"failures", p.collector.Count())
	return out, report
}

// HandleChanges is a watcher.ChangeHandler that drops every cached render
// once component sources change.
func (o *Orchestrator) HandleChanges(events []watcher.ChangeEvent) error {
	if o.cache == nil || len(events) == 0 {
		return nil
	}
	o.cache.Clear()
	o.logger.Debug(context.Background(), "Component sources changed, render cache cleared",
		"path", events[0].Path, "events", len(events))
	return nil
}

// abandon returns markup unchanged. A backend that may come back is a warning;
// anything else is logged as a failed transform.
func (o *Orchestrator) abandon(ctx context.Context, perf *logging.PerfLogger, markup string, report *Report, err error, msg string) (string, *Report) {
	if errors.IsRecoverable(err) {
		perf.Warn(ctx, err, msg, "strategy", report.Strategy.String(), "duration_ms", perf.Elapsed().Milliseconds())
	} else {
		perf.EndWithError(ctx, err, "strategy", report.Strategy.String(), "reason", msg)
	}
	report.Err = err
	return markup, report
}

func (o *Orchestrator) builder(req Request) *tree.Builder {
	return tree.NewBuilder(tree.Options{
		Predicate: o.opts.Predicate,
		MaxDepth:  o.opts.MaxDepth,
		Logger:    o.logger,
		Spec: func(m *tree.Marker) types.ComponentSpec {
			spec := types.ComponentSpec{
				Name:  m.Name,
				Props: buildProps(m.Name, tree.AttributeProps(m), req),
			}
			if o.opts.Resolver != nil {
				spec.Path, _ = o.opts.Resolver.Resolve(m.Name, o.opts.SearchPaths)
			}
			return spec
		},
	})
}

// selectStrategy picks tree for nested documents when enabled, then batch,
// then one call per component.
func (o *Orchestrator) selectStrategy(doc *tree.Document) Strategy {
	switch {
	case doc.HasNesting && o.opts.TreeEnabled:
		return StrategyTree
	case o.opts.BatchEnabled:
		return StrategyBatch
	default:
		return StrategyIndividual
	}
}

// cacheKey identifies a render by component path and props. Tree renders hash
// the whole subtree.
func cacheKey(strategy Strategy, node *types.TreeNode) (string, bool) {
	if strategy == StrategyTree {
		hash, ok := cache.HashProps(cacheTree(node))
		return cache.Key("tree", node.Spec.Path, hash), ok
	}
	hash, ok := cache.HashProps(node.Spec.Props)
	return cache.Key("flat", node.Spec.Path, hash), ok
}

type treeKey struct {
	Path     string     `json:"p"`
	Props    *props.Map `json:"a"`
	Children []treeKey  `json:"c"`
	HTML     string     `json:"h"`
}

func cacheTree(node *types.TreeNode) treeKey {
	k := treeKey{Path: node.Spec.Path, Props: node.Spec.Props, HTML: node.LiteralHTML()}
	for _, child := range node.Children {
		k.Children = append(k.Children, cacheTree(child))
	}
	return k
}
