package resolver

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/elisoncampos/reactive-views-sub000/internal/errors"
)

// ErrNotFound is returned by a Source that has nothing for a name.
var ErrNotFound = stderrors.New("component source not found")

// Source is the extension point a host engine registers to serve component
// source by logical name.
type Source interface {
	Lookup(name string) ([]byte, error)
}

// FileSource serves component source from disk through a Resolver.
type FileSource struct {
	Resolver *Resolver
	Roots    []string
}

var _ Source = (*FileSource)(nil)

// Lookup returns the source bytes of the component. A name without a
// matching file yields an error satisfying errors.Is(err, ErrNotFound).
func (s *FileSource) Lookup(name string) ([]byte, error) {
	path, ok := s.Resolver.Resolve(name, s.Roots)
	if !ok {
		err := errors.NewResolutionError(name)
		err.Cause = ErrNotFound
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

// SourceFunc adapts a function to Source.
type SourceFunc func(name string) ([]byte, error)

func (f SourceFunc) Lookup(name string) ([]byte, error) {
	return f(name)
}
