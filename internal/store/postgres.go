package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/promptfactory/internal/config"
)

// Postgres is a Store backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects a pool configured from cfg, pings it and creates the schema.
func OpenPostgres(ctx context.Context, cfg config.DatabaseConfig) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Postgres{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgres wraps an existing pool. The schema is assumed to exist.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) migrate(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

const projectColumns = `id, name, description, api_config, prompt_template, created_at, updated_at`

func scanPGProject(row pgx.Row) (Project, error) {
	var (
		p   Project
		cfg []byte
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &cfg, &p.PromptTemplate, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Project{}, ErrNotFound
		}
		return Project{}, err
	}
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &p.APIConfig); err != nil {
			return Project{}, fmt.Errorf("decode api_config of project %s: %w", p.ID, err)
		}
	}
	return p, nil
}

func (s *Postgres) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects := []Project{}
	for rows.Next() {
		p, err := scanPGProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (s *Postgres) GetProject(ctx context.Context, id string) (Project, error) {
	p, err := scanPGProject(s.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Project{}, fmt.Errorf("get project: %w", err)
	}
	return p, err
}

func (s *Postgres) CreateProject(ctx context.Context, p Project) error {
	cfg, err := json.Marshal(p.APIConfig)
	if err != nil {
		return fmt.Errorf("marshal api_config: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO projects (id, name, description, api_config, prompt_template, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.Name, p.Description, cfg, p.PromptTemplate, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

func (s *Postgres) UpdateProject(ctx context.Context, p Project) (Project, error) {
	cfg, err := json.Marshal(p.APIConfig)
	if err != nil {
		return Project{}, fmt.Errorf("marshal api_config: %w", err)
	}
	updated, err := scanPGProject(s.pool.QueryRow(ctx, `
		UPDATE projects
		SET name = $2, description = $3, api_config = $4, prompt_template = $5, updated_at = $6
		WHERE id = $1
		RETURNING `+projectColumns,
		p.ID, p.Name, p.Description, cfg, p.PromptTemplate, p.UpdatedAt))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Project{}, fmt.Errorf("update project: %w", err)
	}
	return updated, err
}

func (s *Postgres) DeleteProject(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const templateColumns = `id, name, description, content, created_at, updated_at`

func scanPGTemplate(row pgx.Row) (PromptTemplate, error) {
	var t PromptTemplate
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Content, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PromptTemplate{}, ErrNotFound
		}
		return PromptTemplate{}, err
	}
	return t, nil
}

func (s *Postgres) ListTemplates(ctx context.Context) ([]PromptTemplate, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+templateColumns+` FROM prompt_templates ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	templates := []PromptTemplate{}
	for rows.Next() {
		t, err := scanPGTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

func (s *Postgres) GetTemplate(ctx context.Context, id string) (PromptTemplate, error) {
	t, err := scanPGTemplate(s.pool.QueryRow(ctx, `SELECT `+templateColumns+` FROM prompt_templates WHERE id = $1`, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return PromptTemplate{}, fmt.Errorf("get template: %w", err)
	}
	return t, err
}

func (s *Postgres) CreateTemplate(ctx context.Context, t PromptTemplate) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO prompt_templates (id, name, description, content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.Name, t.Description, t.Content, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

func (s *Postgres) UpdateTemplate(ctx context.Context, t PromptTemplate) (PromptTemplate, error) {
	updated, err := scanPGTemplate(s.pool.QueryRow(ctx, `
		UPDATE prompt_templates
		SET name = $2, description = $3, content = $4, updated_at = $5
		WHERE id = $1
		RETURNING `+templateColumns,
		t.ID, t.Name, t.Description, t.Content, t.UpdatedAt))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return PromptTemplate{}, fmt.Errorf("update template: %w", err)
	}
	return updated, err
}

func (s *Postgres) DeleteTemplate(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM prompt_templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) InsertRun(ctx context.Context, r RunRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO processing_records
			(id, project_id, file_name, mode, total_lines, success_count, error_count, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, r.ProjectID, r.FileName, r.Mode, r.TotalLines, r.SuccessCount, r.ErrorCount, r.Status, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *Postgres) ListRuns(ctx context.Context, projectID string) ([]RunRecord, error) {
	query := `
		SELECT id, project_id, file_name, mode, total_lines, success_count, error_count, status, created_at
		FROM processing_records`
	var args []any
	if projectID != "" {
		query += ` WHERE project_id = $1`
		args = append(args, projectID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []RunRecord{}
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.FileName, &r.Mode, &r.TotalLines,
			&r.SuccessCount, &r.ErrorCount, &r.Status, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *Postgres) PurgeRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM processing_records WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}
