package condition

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"
)

// Leaf is a single predicate over the local installation.
type Leaf interface {
	Kind() string
	Met(env Env) bool
}

// Env is what leaves are evaluated against.
type Env struct {
	// BaseDir resolves relative paths, normally the application directory.
	BaseDir string
	// LocalPath is the owning task's local path, used by leaves that omit one.
	LocalPath string
	// Versions reads file versions. Nil means MetadataVersionProber.
	Versions VersionProber
	// OSBits reports the bitness of the running OS. Nil means platform.OSBits.
	OSBits func() (int, error)
}

// Resolve returns the absolute path a leaf should inspect.
func (e Env) Resolve(leafPath string) string {
	path := leafPath
	if path == "" {
		path = e.LocalPath
	}
	if path == "" {
		return ""
	}
	if filepath.IsAbs(path) || e.BaseDir == "" {
		return path
	}
	return filepath.Join(e.BaseDir, path)
}

// Factory builds a leaf from the attributes of its feed element.
type Factory func(attrs map[string]string) (Leaf, error)

// Registry maps feed element names to leaf factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry with every built-in leaf registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(KindFileExists, newFileExists)
	r.MustRegister(KindFileVersion, newFileVersion)
	r.MustRegister(KindFileSize, newFileSize)
	r.MustRegister(KindFileChecksum, newFileChecksum)
	r.MustRegister(KindFileDate, newFileDate)
	r.MustRegister(KindOS, newOS)
	return r
}

// Register adds a factory for name.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" {
		return fmt.Errorf("condition name is required")
	}
	if f == nil {
		return fmt.Errorf("condition %s: factory is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("condition %s already registered", name)
	}
	r.factories[name] = f
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(name string, f Factory) {
	if err := r.Register(name, f); err != nil {
		panic(err)
	}
}

// Build creates the leaf registered under name.
func (r *Registry) Build(name string, attrs map[string]string) (Leaf, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown condition %q", name)
	}
	leaf, err := f(attrs)
	if err != nil {
		return nil, fmt.Errorf("condition %s: %w", name, err)
	}
	return leaf, nil
}

// Names lists registered element names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
