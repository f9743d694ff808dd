// Package store persists projects, the prompt template library, and run
// summaries.
//
// Three backends share one interface: PostgreSQL through a pgx pool, SQLite
// through go-sqlite3 (the single-file deployment), and an in-memory store for
// tests and demos. Open picks one from the database URL scheme.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/promptfactory/internal/config"
	"github.com/JonMunkholm/promptfactory/internal/llm"
)

// ErrNotFound is returned when a row with the given ID does not exist.
var ErrNotFound = errors.New("not found")

// Project is a named API configuration plus its default prompt template.
type Project struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Description    string       `json:"description"`
	APIConfig      llm.Settings `json:"api_config"`
	PromptTemplate string       `json:"prompt_template"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// PromptTemplate is an entry of the shared template library.
type PromptTemplate struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Run statuses.
const (
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// RunRecord is the stored summary of one processing run.
type RunRecord struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id"`
	FileName     string    `json:"file_name"`
	Mode         string    `json:"mode"`
	TotalLines   int       `json:"total_lines"`
	SuccessCount int       `json:"success_count"`
	ErrorCount   int       `json:"error_count"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store is the persistence boundary. List methods return newest first:
// projects and templates by updated_at, runs by created_at.
type Store interface {
	ListProjects(ctx context.Context) ([]Project, error)
	GetProject(ctx context.Context, id string) (Project, error)
	CreateProject(ctx context.Context, p Project) error
	// UpdateProject replaces the mutable fields and updated_at of p.ID and
	// returns the stored row.
	UpdateProject(ctx context.Context, p Project) (Project, error)
	DeleteProject(ctx context.Context, id string) error

	ListTemplates(ctx context.Context) ([]PromptTemplate, error)
	GetTemplate(ctx context.Context, id string) (PromptTemplate, error)
	CreateTemplate(ctx context.Context, t PromptTemplate) error
	UpdateTemplate(ctx context.Context, t PromptTemplate) (PromptTemplate, error)
	DeleteTemplate(ctx context.Context, id string) error

	InsertRun(ctx context.Context, r RunRecord) error
	// ListRuns returns runs of one project, or of all projects when
	// projectID is empty.
	ListRuns(ctx context.Context, projectID string) ([]RunRecord, error)
	// PurgeRuns deletes runs created before cutoff and returns how many.
	PurgeRuns(ctx context.Context, cutoff time.Time) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// Backend names reported by Kind.
const (
	KindPostgres = "postgres"
	KindSQLite   = "sqlite"
	KindMemory   = "memory"
)

// Kind returns the backend a database URL selects.
func Kind(url string) (string, error) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return KindPostgres, nil
	case strings.HasPrefix(url, "sqlite://"), strings.HasPrefix(url, "file:"):
		return KindSQLite, nil
	case strings.HasPrefix(url, "memory://"):
		return KindMemory, nil
	default:
		return "", fmt.Errorf("unsupported database URL scheme in %q (want postgres://, sqlite://, file: or memory://)", redact(url))
	}
}

// Open connects to the backend selected by cfg.URL and creates the schema.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	kind, err := Kind(cfg.URL)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindPostgres:
		return OpenPostgres(ctx, cfg)
	case KindSQLite:
		return OpenSQLite(ctx, sqlitePath(cfg.URL))
	default:
		return NewMemory(), nil
	}
}

// sqlitePath turns sqlite://path into a go-sqlite3 DSN. file: URLs pass through.
func sqlitePath(url string) string {
	if strings.HasPrefix(url, "file:") {
		return url
	}
	return strings.TrimPrefix(url, "sqlite://")
}

// redact hides the password of a connection URL.
func redact(url string) string {
	at := strings.LastIndex(url, "@")
	scheme := strings.Index(url, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return url
	}
	userinfo := url[scheme+3 : at]
	if colon := strings.Index(userinfo, ":"); colon >= 0 {
		return url[:scheme+3] + userinfo[:colon] + ":***" + url[at:]
	}
	return url
}
