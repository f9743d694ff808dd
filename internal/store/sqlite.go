package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// sqliteTime is fixed-width so stored timestamps sort as text.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

// SQLite is a Store backed by a single SQLite database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at dsn and creates the schema.
func OpenSQLite(ctx context.Context, dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLite{db: db}
	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return s, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTime)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTime, s)
	if err != nil {
		// Rows written by other tools may use RFC 3339 or SQLite's CURRENT_TIMESTAMP.
		if t, err2 := time.Parse(time.RFC3339Nano, s); err2 == nil {
			return t, nil
		}
		if t, err2 := time.Parse("2006-01-02 15:04:05", s); err2 == nil {
			return t, nil
		}
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLiteProject(row scanner) (Project, error) {
	var (
		p                Project
		cfg              string
		created, updated string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &cfg, &p.PromptTemplate, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Project{}, ErrNotFound
		}
		return Project{}, err
	}
	if cfg != "" {
		if err := json.Unmarshal([]byte(cfg), &p.APIConfig); err != nil {
			return Project{}, fmt.Errorf("decode api_config of project %s: %w", p.ID, err)
		}
	}
	var err error
	if p.CreatedAt, err = parseTime(created); err != nil {
		return Project{}, err
	}
	if p.UpdatedAt, err = parseTime(updated); err != nil {
		return Project{}, err
	}
	return p, nil
}

func (s *SQLite) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects := []Project{}
	for rows.Next() {
		p, err := scanSQLiteProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (s *SQLite) GetProject(ctx context.Context, id string) (Project, error) {
	p, err := scanSQLiteProject(s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Project{}, fmt.Errorf("get project: %w", err)
	}
	return p, err
}

func (s *SQLite) CreateProject(ctx context.Context, p Project) error {
	cfg, err := json.Marshal(p.APIConfig)
	if err != nil {
		return fmt.Errorf("marshal api_config: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, description, api_config, prompt_template, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, string(cfg), p.PromptTemplate, formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

func (s *SQLite) UpdateProject(ctx context.Context, p Project) (Project, error) {
	cfg, err := json.Marshal(p.APIConfig)
	if err != nil {
		return Project{}, fmt.Errorf("marshal api_config: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE projects
		SET name = ?, description = ?, api_config = ?, prompt_template = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, p.Description, string(cfg), p.PromptTemplate, formatTime(p.UpdatedAt), p.ID)
	if err != nil {
		return Project{}, fmt.Errorf("update project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Project{}, ErrNotFound
	}
	return s.GetProject(ctx, p.ID)
}

func (s *SQLite) DeleteProject(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "projects", id)
}

func scanSQLiteTemplate(row scanner) (PromptTemplate, error) {
	var (
		t                PromptTemplate
		created, updated string
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Content, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PromptTemplate{}, ErrNotFound
		}
		return PromptTemplate{}, err
	}
	var err error
	if t.CreatedAt, err = parseTime(created); err != nil {
		return PromptTemplate{}, err
	}
	if t.UpdatedAt, err = parseTime(updated); err != nil {
		return PromptTemplate{}, err
	}
	return t, nil
}

func (s *SQLite) ListTemplates(ctx context.Context) ([]PromptTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+templateColumns+` FROM prompt_templates ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	templates := []PromptTemplate{}
	for rows.Next() {
		t, err := scanSQLiteTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

func (s *SQLite) GetTemplate(ctx context.Context, id string) (PromptTemplate, error) {
	t, err := scanSQLiteTemplate(s.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM prompt_templates WHERE id = ?`, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return PromptTemplate{}, fmt.Errorf("get template: %w", err)
	}
	return t, err
}

func (s *SQLite) CreateTemplate(ctx context.Context, t PromptTemplate) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prompt_templates (id, name, description, content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Description, t.Content, formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

func (s *SQLite) UpdateTemplate(ctx context.Context, t PromptTemplate) (PromptTemplate, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE prompt_templates
		SET name = ?, description = ?, content = ?, updated_at = ?
		WHERE id = ?`,
		t.Name, t.Description, t.Content, formatTime(t.UpdatedAt), t.ID)
	if err != nil {
		return PromptTemplate{}, fmt.Errorf("update template: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return PromptTemplate{}, ErrNotFound
	}
	return s.GetTemplate(ctx, t.ID)
}

func (s *SQLite) DeleteTemplate(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "prompt_templates", id)
}

// deleteByID deletes one row from a fixed table name.
func (s *SQLite) deleteByID(ctx context.Context, table, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) InsertRun(ctx context.Context, r RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processing_records
			(id, project_id, file_name, mode, total_lines, success_count, error_count, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ProjectID, r.FileName, r.Mode, r.TotalLines, r.SuccessCount, r.ErrorCount, r.Status, formatTime(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *SQLite) ListRuns(ctx context.Context, projectID string) ([]RunRecord, error) {
	query := `
		SELECT id, project_id, file_name, mode, total_lines, success_count, error_count, status, created_at
		FROM processing_records`
	var args []any
	if projectID != "" {
		query += ` WHERE project_id = ?`
		args = append(args, projectID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []RunRecord{}
	for rows.Next() {
		var (
			r       RunRecord
			created string
		)
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.FileName, &r.Mode, &r.TotalLines,
			&r.SuccessCount, &r.ErrorCount, &r.Status, &created); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *SQLite) PurgeRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM processing_records WHERE created_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge runs: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
