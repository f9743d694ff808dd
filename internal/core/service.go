package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/promptfactory/internal/config"
	"github.com/JonMunkholm/promptfactory/internal/llm"
	"github.com/JonMunkholm/promptfactory/internal/store"
)

// DefaultTemplateName names a template created without one.
const DefaultTemplateName = "New template"

// Service ties the store to the processing engine. It is the entry point
// for the web handlers and holds no per-request state.
type Service struct {
	store    store.Store
	dispatch config.DispatchConfig
	limiter  *RunLimiter
	observer RunObserver

	clientOpts []llm.Option
	now        func() time.Time
	newID      func() string
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithObserver reports streaming events and finished runs to o.
func WithObserver(o RunObserver) ServiceOption {
	return func(s *Service) { s.observer = o }
}

// WithClientOptions passes options to every completion client the service builds.
func WithClientOptions(opts ...llm.Option) ServiceOption {
	return func(s *Service) { s.clientOpts = append(s.clientOpts, opts...) }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator replaces the UUID generator used for new rows and runs.
func WithIDGenerator(fn func() string) ServiceOption {
	return func(s *Service) { s.newID = fn }
}

// NewService creates a Service over st using the dispatch and run settings of cfg.
func NewService(st store.Store, cfg *config.Config, opts ...ServiceOption) *Service {
	s := &Service{
		store:    st,
		dispatch: cfg.Dispatch,
		limiter:  NewRunLimiter(cfg.Run.MaxConcurrent, cfg.Run.MaxWaitTime),
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping checks the store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// RunLimiterStatus returns the run queue snapshot.
func (s *Service) RunLimiterStatus() RunLimiterStatus {
	return s.limiter.Status()
}

// WaitForRuns blocks until every admitted run has finished or ctx is done.
func (s *Service) WaitForRuns(ctx context.Context) error {
	return s.limiter.Drain(ctx)
}

// llmDefaults are the completion settings a project falls back to.
func (s *Service) llmDefaults() llm.Defaults {
	d := llm.StandardDefaults
	if s.dispatch.Model != "" {
		d.Model = s.dispatch.Model
	}
	d.Temperature = s.dispatch.Temperature
	if s.dispatch.MaxTokens > 0 {
		d.MaxTokens = s.dispatch.MaxTokens
	}
	if s.dispatch.RequestTimeout > 0 {
		d.Timeout = s.dispatch.RequestTimeout
	}
	return d
}

// ---------------------------------------------------------------------------
// Projects
// ---------------------------------------------------------------------------

// ProjectInput is the editable part of a project.
type ProjectInput struct {
	Name           string       `json:"name"`
	Description    string       `json:"description"`
	APIConfig      llm.Settings `json:"api_config"`
	PromptTemplate string       `json:"prompt_template"`
}

func (in ProjectInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return requiredField("name")
	}
	if in.APIConfig.Endpoint() == "" {
		return requiredField("api_config.api_url")
	}
	return nil
}

// ListProjects returns all projects, most recently updated first.
func (s *Service) ListProjects(ctx context.Context) ([]store.Project, error) {
	return s.store.ListProjects(ctx)
}

// GetProject returns one project or ErrProjectNotFound.
func (s *Service) GetProject(ctx context.Context, id string) (store.Project, error) {
	p, err := s.store.GetProject(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return store.Project{}, ErrProjectNotFound
	}
	return p, err
}

// CreateProject validates in and stores it under a new ID.
func (s *Service) CreateProject(ctx context.Context, in ProjectInput) (store.Project, error) {
	if err := in.validate(); err != nil {
		return store.Project{}, err
	}

	now := s.now().UTC()
	p := store.Project{
		ID:             s.newID(),
		Name:           strings.TrimSpace(in.Name),
		Description:    in.Description,
		APIConfig:      in.APIConfig,
		PromptTemplate: in.PromptTemplate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateProject(ctx, p); err != nil {
		return store.Project{}, err
	}
	return p, nil
}

// UpdateProject replaces the editable fields of project id.
func (s *Service) UpdateProject(ctx context.Context, id string, in ProjectInput) (store.Project, error) {
	if err := in.validate(); err != nil {
		return store.Project{}, err
	}

	p, err := s.store.UpdateProject(ctx, store.Project{
		ID:             id,
		Name:           strings.TrimSpace(in.Name),
		Description:    in.Description,
		APIConfig:      in.APIConfig,
		PromptTemplate: in.PromptTemplate,
		UpdatedAt:      s.now().UTC(),
	})
	if errors.Is(err, store.ErrNotFound) {
		return store.Project{}, ErrProjectNotFound
	}
	return p, err
}

// DeleteProject removes project id. Its run records are kept.
func (s *Service) DeleteProject(ctx context.Context, id string) error {
	err := s.store.DeleteProject(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrProjectNotFound
	}
	return err
}

// ---------------------------------------------------------------------------
// Prompt templates
// ---------------------------------------------------------------------------

// TemplateInput is the editable part of a prompt template.
type TemplateInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Content     string `json:"content"`
}

// ListTemplates returns the template library, most recently updated first.
func (s *Service) ListTemplates(ctx context.Context) ([]store.PromptTemplate, error) {
	return s.store.ListTemplates(ctx)
}

// GetTemplate returns one template or ErrTemplateNotFound.
func (s *Service) GetTemplate(ctx context.Context, id string) (store.PromptTemplate, error) {
	t, err := s.store.GetTemplate(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return store.PromptTemplate{}, ErrTemplateNotFound
	}
	return t, err
}

// CreateTemplate stores a new template. A blank name becomes DefaultTemplateName.
func (s *Service) CreateTemplate(ctx context.Context, in TemplateInput) (store.PromptTemplate, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = DefaultTemplateName
	}

	now := s.now().UTC()
	t := store.PromptTemplate{
		ID:          s.newID(),
		Name:        name,
		Description: in.Description,
		Content:     in.Content,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateTemplate(ctx, t); err != nil {
		return store.PromptTemplate{}, err
	}
	return t, nil
}

// UpdateTemplate replaces the fields of template id. The name may not be blank.
func (s *Service) UpdateTemplate(ctx context.Context, id string, in TemplateInput) (store.PromptTemplate, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return store.PromptTemplate{}, requiredField("name")
	}

	t, err := s.store.UpdateTemplate(ctx, store.PromptTemplate{
		ID:          id,
		Name:        name,
		Description: in.Description,
		Content:     in.Content,
		UpdatedAt:   s.now().UTC(),
	})
	if errors.Is(err, store.ErrNotFound) {
		return store.PromptTemplate{}, ErrTemplateNotFound
	}
	return t, err
}

// DeleteTemplate removes template id.
func (s *Service) DeleteTemplate(ctx context.Context, id string) error {
	err := s.store.DeleteTemplate(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrTemplateNotFound
	}
	return err
}

// ---------------------------------------------------------------------------
// Run records
// ---------------------------------------------------------------------------

// ListRuns returns run records newest first, for one project or for all when
// projectID is empty.
func (s *Service) ListRuns(ctx context.Context, projectID string) ([]store.RunRecord, error) {
	return s.store.ListRuns(ctx, projectID)
}

func (s *Service) recordRun(ctx context.Context, sum RunSummary) error {
	err := s.store.InsertRun(ctx, store.RunRecord{
		ID:           sum.RunID,
		ProjectID:    sum.ProjectID,
		FileName:     sum.FileName,
		Mode:         sum.Mode,
		TotalLines:   sum.Total,
		SuccessCount: sum.Success,
		ErrorCount:   sum.Error,
		Status:       sum.Status,
		CreatedAt:    sum.FinishedAt,
	})
	if err != nil {
		return fmt.Errorf("record run %s: %w", sum.RunID, err)
	}
	return nil
}
