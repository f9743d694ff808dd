package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/JonMunkholm/promptfactory/internal/core"
	"github.com/JonMunkholm/promptfactory/internal/web/templates"
)

// maxJSONBody caps API request bodies other than dataset uploads.
const maxJSONBody = 1 << 20

// decodeJSON reads a JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return &core.ValidationError{Field: "body", Message: "request body is empty", Err: err}
		}
		return &core.ValidationError{Field: "body", Message: "malformed request body: " + err.Error(), Err: err}
	}
	return nil
}

// handleHealth reports whether the store answers.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.service.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRunQueue reports run limiter occupancy.
func (s *Server) handleRunQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.RunLimiterStatus())
}

// handleListRuns lists processing records, optionally for one project.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.service.ListRuns(r.Context(), r.URL.Query().Get("project_id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleDashboard renders the management page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	projects, err := s.service.ListProjects(ctx)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	library, err := s.service.ListTemplates(ctx)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	// The page still renders without run history.
	runs, err := s.service.ListRuns(ctx, "")
	if err != nil {
		s.logger(r).Warn("dashboard: list runs", "error", err)
	}

	data := templates.DashboardData{}
	names := make(map[string]string, len(projects))
	for _, p := range projects {
		names[p.ID] = p.Name
		data.Projects = append(data.Projects, templates.ProjectCard{
			ID:             p.ID,
			Name:           p.Name,
			Description:    p.Description,
			Endpoint:       p.APIConfig.Endpoint(),
			Model:          p.APIConfig.ModelName,
			PromptTemplate: p.PromptTemplate,
			UpdatedAt:      p.UpdatedAt,
		})
	}
	for _, t := range library {
		data.Templates = append(data.Templates, templates.TemplateCard{
			ID: t.ID, Name: t.Name, Description: t.Description, Content: t.Content,
		})
	}
	const recentRuns = 20
	for i, run := range runs {
		if i == recentRuns {
			break
		}
		data.Runs = append(data.Runs, templates.RunRow{
			ID:          run.ID,
			ProjectName: names[run.ProjectID],
			FileName:    run.FileName,
			Mode:        run.Mode,
			Status:      run.Status,
			Total:       run.TotalLines,
			Success:     run.SuccessCount,
			Errors:      run.ErrorCount,
			CreatedAt:   run.CreatedAt,
		})
	}
	q := s.service.RunLimiterStatus()
	data.Queue = templates.RunQueue{Active: q.Active, Waiting: q.Waiting, MaxConcurrent: q.MaxConcurrent}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.Dashboard(data).Render(ctx, w); err != nil {
		s.logger(r).Error("render dashboard", "error", err)
	}
}
