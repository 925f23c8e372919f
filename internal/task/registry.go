package task

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Feed element names of the built-in task kinds.
const (
	KindFileUpdate   = "FileUpdateTask"
	KindFileUpdateEx = "FileUpdateExTask"
	KindRegistry     = "RegistryTask"
)

// Factory returns a new, unconfigured task.
type Factory func() Task

// Registry maps task kinds and their aliases to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	aliases   map[string]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		aliases:   make(map[string]string),
	}
}

// DefaultRegistry returns a registry holding every built-in task kind.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(KindFileUpdate, func() Task { return &FileUpdateTask{} })
	r.MustRegister(KindFileUpdateEx, func() Task { return &FileUpdateExTask{} }, "fileUpdateEx")
	r.MustRegister(KindRegistry, func() Task { return &RegistryTask{} })
	return r
}

// Register adds a factory for kind, reachable under any of aliases too.
func (r *Registry) Register(kind string, f Factory, aliases ...string) error {
	if kind == "" {
		return fmt.Errorf("task kind is required")
	}
	if f == nil {
		return fmt.Errorf("task %s: factory is nil", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("task %s already registered", kind)
	}
	for _, alias := range aliases {
		if _, exists := r.aliases[strings.ToLower(alias)]; exists {
			return fmt.Errorf("task alias %s already registered", alias)
		}
	}
	r.factories[kind] = f
	r.aliases[strings.ToLower(kind)] = kind
	for _, alias := range aliases {
		r.aliases[strings.ToLower(alias)] = kind
	}
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(kind string, f Factory, aliases ...string) {
	if err := r.Register(kind, f, aliases...); err != nil {
		panic(err)
	}
}

// New returns a fresh task for a kind or alias.
func (r *Registry) New(name string) (Task, error) {
	r.mu.RLock()
	kind, ok := r.aliases[strings.ToLower(name)]
	var f Factory
	if ok {
		f = r.factories[kind]
	}
	r.mu.RUnlock()
	if f == nil {
		return nil, fmt.Errorf("unknown task kind %q", name)
	}
	return f(), nil
}

// Build returns a task of the given kind configured from feed attributes.
func (r *Registry) Build(name string, attrs map[string]string) (Task, error) {
	t, err := r.New(name)
	if err != nil {
		return nil, err
	}
	if err := t.Configure(attrs); err != nil {
		return nil, fmt.Errorf("task %s: %w", name, err)
	}
	return t, nil
}

// Kinds lists the registered canonical kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for kind := range r.factories {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// Envelope is the serialized form of a task inside the transfer object.
type Envelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Marshal wraps tasks in envelopes, preserving order.
func (r *Registry) Marshal(tasks []Task) ([]Envelope, error) {
	envelopes := make([]Envelope, 0, len(tasks))
	for _, t := range tasks {
		data, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("marshal task %s: %w", t.ID(), err)
		}
		envelopes = append(envelopes, Envelope{Kind: t.Kind(), Data: data})
	}
	return envelopes, nil
}

// Unmarshal rebuilds tasks from envelopes, preserving order.
func (r *Registry) Unmarshal(envelopes []Envelope) ([]Task, error) {
	tasks := make([]Task, 0, len(envelopes))
	for i, env := range envelopes {
		t, err := r.New(env.Kind)
		if err != nil {
			return nil, fmt.Errorf("task %d: %w", i, err)
		}
		if err := json.Unmarshal(env.Data, t); err != nil {
			return nil, fmt.Errorf("task %d (%s): %w", i, env.Kind, err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}
