package filestore

import "sync"

// MemoryBackend is an in-process fake Backend for tests: no disk I/O, plain
// maps guarded by a mutex.
type MemoryBackend struct {
	mu         sync.Mutex
	groups     map[string]bool
	datasets   map[string]DatasetSpec
	attributes map[string]any
	rows       map[string][]any
	links      map[string]string
	resolved   map[string]string
	closed     bool
}

// NewMemoryBackend returns a ready-to-use MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		groups:     make(map[string]bool),
		datasets:   make(map[string]DatasetSpec),
		attributes: make(map[string]any),
		rows:       make(map[string][]any),
		links:      make(map[string]string),
		resolved:   make(map[string]string),
	}
}

func (m *MemoryBackend) CreateGroup(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[normalizePath(path)] = true
	return nil
}

func (m *MemoryBackend) CreateDataset(path string, spec DatasetSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := normalizePath(path)
	m.datasets[p] = spec
	m.rows[p] = nil
	return nil
}

func (m *MemoryBackend) WriteAttribute(path, name string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attributes[normalizePath(path)+"\x00"+name] = value
	return nil
}

func (m *MemoryBackend) SetInitialValue(path string, value any) error {
	_, err := m.AppendRow(path, value)
	return err
}

func (m *MemoryBackend) AppendRow(path string, value any) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := normalizePath(path)
	m.rows[p] = append(m.rows[p], value)
	return int64(len(m.rows[p]) - 1), nil
}

func (m *MemoryBackend) CreateLink(path, target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[normalizePath(path)] = target
	return nil
}

func (m *MemoryBackend) Finalize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for linkPath, target := range m.links {
		m.resolved[linkPath] = resolveTarget(linkPath, target)
	}
	return nil
}

func (m *MemoryBackend) ResolveLink(path string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	target, ok := m.resolved[normalizePath(path)]
	return target, ok
}

func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Rows returns a copy of the rows written to a dataset, for test assertions.
func (m *MemoryBackend) Rows(path string) []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	src := m.rows[normalizePath(path)]
	out := make([]any, len(src))
	copy(out, src)
	return out
}

// HasGroup reports whether a group was created at path.
func (m *MemoryBackend) HasGroup(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.groups[normalizePath(path)]
}

// Attribute returns an attribute value written at path, if any.
func (m *MemoryBackend) Attribute(path, name string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.attributes[normalizePath(path)+"\x00"+name]
	return v, ok
}

// Closed reports whether Close has been called.
func (m *MemoryBackend) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
