//go:build property

package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/elisoncampos/reactive-views-sub000/internal/client"
)

func TestTransformProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(2468)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	plain := gen.SliceOf(gen.OneConstOf(
		"<p>", "</p>", "<div class=\"a\">", "</div>", "text", " ", "&amp;", "<br/>",
		"<DIV>", "<SPAN id=x>", "<!-- <Card/> -->", "<ul><li>", "</td>", "<my-el>",
	))

	properties.Property("markup without markers is returned unchanged", prop.ForAll(
		func(parts []string) bool {
			o := New(Options{BatchEnabled: true, TreeEnabled: true})
			doc := strings.Join(parts, "")
			return o.Transform(context.Background(), doc, Request{}) == doc
		},
		plain,
	))

	properties.Property("flat documents issue exactly one batch call", prop.ForAll(
		func(n int) bool {
			backend, srv := newFakeBackend(t)
			o := newOrchestrator(t, srv, nil)

			var b strings.Builder
			for i := 0; i < n; i++ {
				fmt.Fprintf(&b, "<section><Item%d idx=\"%d\"/></section>", i, i)
			}
			_, report := o.TransformReport(context.Background(), b.String(), Request{})
			return backend.count(client.PathBatchRender) == 1 &&
				backend.total() == 1 &&
				len(report.Islands) == n
		},
		gen.IntRange(2, 40),
	))

	properties.Property("each nested root issues exactly one tree call", prop.ForAll(
		func(roots int) bool {
			backend, srv := newFakeBackend(t)
			o := newOrchestrator(t, srv, nil)

			var b strings.Builder
			for i := 0; i < roots; i++ {
				fmt.Fprintf(&b, "<Outer%d><p>x</p><Inner/></Outer%d>", i, i)
			}
			_, report := o.TransformReport(context.Background(), b.String(), Request{})
			return report.Strategy == StrategyTree &&
				backend.count(client.PathRenderTree) == roots &&
				backend.total() == roots
		},
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t)
}
