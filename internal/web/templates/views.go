// Package templates renders the HTML views of the management dashboard.
package templates

import (
	"time"
)

// ProjectCard is one project on the dashboard.
type ProjectCard struct {
	ID             string
	Name           string
	Description    string
	Endpoint       string
	Model          string
	PromptTemplate string
	UpdatedAt      time.Time
}

// TemplateCard is one entry of the prompt template library.
type TemplateCard struct {
	ID          string
	Name        string
	Description string
	Content     string
}

// RunRow is one processing record.
type RunRow struct {
	ID          string
	ProjectName string
	FileName    string
	Mode        string
	Status      string
	Total       int
	Success     int
	Errors      int
	CreatedAt   time.Time
}

// RunQueue mirrors the run limiter snapshot.
type RunQueue struct {
	Active        int
	Waiting       int
	MaxConcurrent int
}

// DashboardData is everything the dashboard page shows.
type DashboardData struct {
	Projects  []ProjectCard
	Templates []TemplateCard
	Runs      []RunRow
	Queue     RunQueue
}
