// Package resolver maps component names to source files using naming
// convention variants and an ordered list of search roots.
package resolver

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/elisoncampos/reactive-views-sub000/internal/cache"
	"github.com/elisoncampos/reactive-views-sub000/internal/logging"
	"github.com/elisoncampos/reactive-views-sub000/internal/watcher"
)

// DefaultExtensions is the extension priority used when none is configured.
var DefaultExtensions = []string{".tsx", ".jsx", ".ts", ".js"}

const memoPrefix = "resolve:"

// Resolver finds component source files. It is safe for concurrent use; the
// filesystem is only read.
type Resolver struct {
	extensions []string
	memo       *cache.NamespacedStore
	logger     logging.Logger
}

// Options configures a Resolver.
type Options struct {
	// Extensions in priority order; DefaultExtensions when empty
	Extensions []string
	// Store backs the memo; a private MemoryStore when nil
	Store  cache.Store
	Logger logging.Logger
}

// New creates a Resolver.
func New(opts Options) *Resolver {
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	store := opts.Store
	if store == nil {
		store = cache.NewMemoryStore()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &Resolver{
		extensions: append([]string(nil), exts...),
		memo:       cache.Namespaced(store, memoPrefix),
		logger:     logger.WithComponent("resolver"),
	}
}

// Extensions returns the extension priority list.
func (r *Resolver) Extensions() []string {
	return append([]string(nil), r.extensions...)
}

// Resolve returns the first file matching name under roots. For each root in
// order, each naming variant in order and each extension in order it checks
// root/variant.ext, then root/variant/index.ext, then root/**/variant.ext.
func (r *Resolver) Resolve(name string, roots []string) (string, bool) {
	if name == "" || len(roots) == 0 {
		return "", false
	}

	key := cache.Key(name, strings.Join(roots, "|"))
	if v, ok := r.memo.Read(key); ok {
		if path, _ := v.(string); isFile(path) {
			return path, true
		}
		r.memo.Delete(key)
	}

	path, ok := r.search(name, roots)
	if ok {
		r.memo.Write(key, path, 0)
		r.logger.Debug(context.Background(), "Resolved component", "name", name, "path", path)
	}
	return path, ok
}

func (r *Resolver) search(name string, roots []string) (string, bool) {
	variants := Variants(name)

	for _, root := range roots {
		var index map[string]string // base name → first path in walk order

		for _, variant := range variants {
			for _, ext := range r.extensions {
				file := variant + ext

				if direct := filepath.Join(root, file); isFile(direct) {
					return direct, true
				}
				if idx := filepath.Join(root, variant, "index"+ext); isFile(idx) {
					return idx, true
				}

				if index == nil {
					index = indexTree(root)
				}
				if found, ok := index[file]; ok {
					return found, true
				}
			}
		}
	}

	return "", false
}

// indexTree walks root in lexical order and records the first path seen for
// each file name. node_modules and dot-directories are skipped.
func indexTree(root string) map[string]string {
	index := make(map[string]string)
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if name := d.Name(); path != root && (name == "node_modules" || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if _, seen := index[d.Name()]; !seen {
			index[d.Name()] = path
		}
		return nil
	})
	return index
}

func isFile(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Invalidate drops every memoised resolution.
func (r *Resolver) Invalidate() {
	r.memo.Clear()
}

// HandleChanges is a watcher.ChangeHandler that invalidates the memo on any
// change under the search roots.
func (r *Resolver) HandleChanges(events []watcher.ChangeEvent) error {
	if len(events) == 0 {
		return nil
	}
	r.Invalidate()
	r.logger.Debug(context.Background(), "Component tree changed, resolution memo cleared",
		"path", events[0].Path, "event", events[0].Type.String(), "events", len(events))
	return nil
}

// Watch starts a file watcher on roots that keeps the memo fresh. Extra
// handlers run on the same debounced batches. The watcher stops when ctx is
// done or Stop is called on it.
func (r *Resolver) Watch(ctx context.Context, roots []string, debounce time.Duration, handlers ...watcher.ChangeHandler) (*watcher.FileWatcher, error) {
	fw, err := watcher.NewFileWatcher(debounce, r.logger)
	if err != nil {
		return nil, err
	}

	fw.AddFilter(watcher.NoNodeModulesFilter)
	fw.AddFilter(watcher.NoGitFilter)
	fw.AddFilter(watcher.ExtensionFilter(r.extensions...))
	fw.AddHandler(r.HandleChanges)
	for _, h := range handlers {
		fw.AddHandler(h)
	}

	for _, root := range roots {
		if err := fw.AddRecursive(root); err != nil {
			_ = fw.Stop()
			return nil, err
		}
	}

	if err := fw.Start(ctx); err != nil {
		_ = fw.Stop()
		return nil, err
	}

	go func() {
		<-ctx.Done()
		_ = fw.Stop()
	}()

	return fw, nil
}
