package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is a Store held in process memory. It is safe for concurrent use.
type Memory struct {
	mu        sync.RWMutex
	projects  map[string]Project
	templates map[string]PromptTemplate
	runs      []RunRecord
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		projects:  make(map[string]Project),
		templates: make(map[string]PromptTemplate),
	}
}

func (m *Memory) ListProjects(ctx context.Context) ([]Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Project, 0, len(m.projects))
	for _, p := range m.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *Memory) GetProject(ctx context.Context, id string) (Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.projects[id]
	if !ok {
		return Project{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) CreateProject(ctx context.Context, p Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[p.ID] = p
	return nil
}

func (m *Memory) UpdateProject(ctx context.Context, p Project) (Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.projects[p.ID]
	if !ok {
		return Project{}, ErrNotFound
	}
	cur.Name = p.Name
	cur.Description = p.Description
	cur.APIConfig = p.APIConfig
	cur.PromptTemplate = p.PromptTemplate
	cur.UpdatedAt = p.UpdatedAt
	m.projects[p.ID] = cur
	return cur, nil
}

func (m *Memory) DeleteProject(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.projects[id]; !ok {
		return ErrNotFound
	}
	delete(m.projects, id)
	return nil
}

func (m *Memory) ListTemplates(ctx context.Context) ([]PromptTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]PromptTemplate, 0, len(m.templates))
	for _, t := range m.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *Memory) GetTemplate(ctx context.Context, id string) (PromptTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.templates[id]
	if !ok {
		return PromptTemplate{}, ErrNotFound
	}
	return t, nil
}

func (m *Memory) CreateTemplate(ctx context.Context, t PromptTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[t.ID] = t
	return nil
}

func (m *Memory) UpdateTemplate(ctx context.Context, t PromptTemplate) (PromptTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.templates[t.ID]
	if !ok {
		return PromptTemplate{}, ErrNotFound
	}
	cur.Name = t.Name
	cur.Description = t.Description
	cur.Content = t.Content
	cur.UpdatedAt = t.UpdatedAt
	m.templates[t.ID] = cur
	return cur, nil
}

func (m *Memory) DeleteTemplate(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.templates[id]; !ok {
		return ErrNotFound
	}
	delete(m.templates, id)
	return nil
}

func (m *Memory) InsertRun(ctx context.Context, r RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, r)
	return nil
}

func (m *Memory) ListRuns(ctx context.Context, projectID string) ([]RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]RunRecord, 0, len(m.runs))
	for _, r := range m.runs {
		if projectID == "" || r.ProjectID == projectID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) PurgeRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.runs[:0]
	var purged int64
	for _, r := range m.runs {
		if r.CreatedAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, r)
	}
	m.runs = kept
	return purged, nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
