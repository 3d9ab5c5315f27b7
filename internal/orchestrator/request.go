package orchestrator

import (
	"github.com/elisoncampos/reactive-views-sub000/internal/props"
)

// Request carries the host engine's per-request data for one transform.
type Request struct {
	// Data is the host data available to components as props
	Data map[string]any
	// Selector picks which Data keys each component receives; every key when
	// nil
	Selector PropSelector
}

// Selection is the set of host data keys a component receives. All sends
// every key. With All unset, Keys lists the keys to send and an empty Keys
// means the component takes no host data at all.
type Selection struct {
	All  bool
	Keys []string
}

// PropSelector decides which host data a component receives.
type PropSelector interface {
	Select(component string) Selection
}

// SelectorFunc adapts a function to PropSelector.
type SelectorFunc func(component string) Selection

func (f SelectorFunc) Select(component string) Selection {
	return f(component)
}

// SelectAll sends every host data key to every component.
var SelectAll = SelectorFunc(func(string) Selection { return Selection{All: true} })

// SelectNone sends no host data; components only see their attributes.
var SelectNone = SelectorFunc(func(string) Selection { return Selection{} })

// SelectKeys builds a selector from a per-component key list. Components
// missing from the map receive no host data.
func SelectKeys(keys map[string][]string) PropSelector {
	return SelectorFunc(func(component string) Selection {
		return Selection{Keys: keys[component]}
	})
}

// buildProps selects host data for component and overlays the marker's
// attribute props, which win on conflicts.
func buildProps(component string, attrs *props.Map, req Request) *props.Map {
	selector := req.Selector
	if selector == nil {
		selector = SelectAll
	}

	out := props.NewMap()
	if len(req.Data) > 0 {
		sel := selector.Select(component)
		switch {
		case sel.All:
			out.Merge(props.MapFromAny(req.Data))
		default:
			for _, k := range sel.Keys {
				if v, ok := req.Data[k]; ok {
					out.Set(k, props.FromAny(v))
				}
			}
		}
	}
	out.Merge(attrs)
	return out
}
