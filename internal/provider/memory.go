package provider

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Interceptor is called before every MemoryProvider operation. Returning a
// non-nil error fails that operation. Used by tests to inject rate limits.
type Interceptor func(op, key string) error

// MemoryProvider is an in-process Provider backed by a map. It is safe for
// concurrent use and is the fake used across the engine's tests; it also
// serves offline dry-runs.
type MemoryProvider struct {
	mu        sync.RWMutex
	projects  map[string]string                // projectID -> name
	files     map[string]map[string]RemoteFile // projectID -> name -> file
	intercept Interceptor
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		projects: make(map[string]string),
		files:    make(map[string]map[string]RemoteFile),
	}
}

// SetInterceptor installs a fault-injection hook. Pass nil to clear.
func (m *MemoryProvider) SetInterceptor(fn Interceptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intercept = fn
}

// AddProject registers a project and returns its id.
func (m *MemoryProvider) AddProject(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	m.projects[id] = name
	m.files[id] = make(map[string]RemoteFile)
	return id
}

// Seed places a file directly into a project, bypassing the Provider surface.
func (m *MemoryProvider) Seed(projectID, name string, content []byte) RemoteFile {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := RemoteFile{
		ID:        uuid.NewString(),
		Name:      name,
		Content:   append([]byte(nil), content...),
		CreatedAt: time.Now(),
	}
	if m.files[projectID] == nil {
		m.files[projectID] = make(map[string]RemoteFile)
	}
	m.files[projectID][name] = f
	return f
}

func (m *MemoryProvider) check(op, key string) error {
	m.mu.RLock()
	fn := m.intercept
	m.mu.RUnlock()
	if fn != nil {
		return fn(op, key)
	}
	return nil
}

func (m *MemoryProvider) ListProjects(_ context.Context, _ string) ([]RemoteProject, error) {
	if err := m.check("list_projects", ""); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	projects := make([]RemoteProject, 0, len(m.projects))
	for id, name := range m.projects {
		projects = append(projects, RemoteProject{ID: id, Name: name})
	}
	return projects, nil
}

func (m *MemoryProvider) ListFiles(_ context.Context, _, projectID string) ([]RemoteFile, error) {
	if err := m.check("list_files", projectID); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	proj, ok := m.files[projectID]
	if !ok {
		return nil, ErrProjectNotFound
	}
	files := make([]RemoteFile, 0, len(proj))
	for _, f := range proj {
		files = append(files, f)
	}
	return files, nil
}

func (m *MemoryProvider) UploadFile(_ context.Context, _, projectID, name string, content []byte) (*RemoteFile, error) {
	if err := m.check("upload", name); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	proj, ok := m.files[projectID]
	if !ok {
		return nil, ErrProjectNotFound
	}
	f := RemoteFile{
		ID:        uuid.NewString(),
		Name:      name,
		Content:   append([]byte(nil), content...),
		CreatedAt: time.Now(),
	}
	// re-upload replaces content but keeps the provider handle
	if prev, exists := proj[name]; exists {
		f.ID = prev.ID
		f.CreatedAt = prev.CreatedAt
	}
	proj[name] = f
	return &f, nil
}

func (m *MemoryProvider) DeleteFile(_ context.Context, _, projectID, fileID string) error {
	if err := m.check("delete", fileID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	proj, ok := m.files[projectID]
	if !ok {
		return ErrProjectNotFound
	}
	for name, f := range proj {
		if f.ID == fileID {
			delete(proj, name)
			return nil
		}
	}
	return ErrFileNotFound
}

func (m *MemoryProvider) GetFileContent(_ context.Context, _, projectID, name string) ([]byte, error) {
	if err := m.check("get_content", name); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	proj, ok := m.files[projectID]
	if !ok {
		return nil, ErrProjectNotFound
	}
	f, ok := proj[name]
	if !ok {
		return nil, ErrFileNotFound
	}
	return append([]byte(nil), f.Content...), nil
}
