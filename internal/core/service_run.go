package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/JonMunkholm/promptfactory/internal/llm"
	"github.com/JonMunkholm/promptfactory/internal/logging"
	"github.com/JonMunkholm/promptfactory/internal/store"
)

// Run modes, stored on each run record.
const (
	ModeBatch  = "batch"
	ModeStream = "stream"
)

// RunOptions are the per-run parameters of a processing request.
type RunOptions struct {
	FileName string
	// Template overrides the project's stored prompt template when set.
	Template string
	// ResultField is the key replies are written to; the configured default when empty.
	ResultField string
	// Workers is the requested concurrency, clamped to between one and the
	// configured ceiling. Nil uses the configured default.
	Workers *int
	// Encoding names the dataset charset; UTF-8 when empty.
	Encoding string
}

type preparedRun struct {
	id      string
	project store.Project
	opts    RunOptions
	proc    *Processor
	workers int
	input   io.Reader
	raw     *CountingReader
	logger  *slog.Logger
	started time.Time
}

// prepareRun resolves everything a run needs before any record is read, so
// configuration errors surface before a response starts streaming.
func (s *Service) prepareRun(ctx context.Context, projectID string, input io.Reader, opts RunOptions) (*preparedRun, error) {
	project, err := s.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	template := opts.Template
	if strings.TrimSpace(template) == "" {
		template = project.PromptTemplate
	}
	field := strings.TrimSpace(opts.ResultField)
	if field == "" {
		field = s.dispatch.ResultField
	}

	runID := s.newID()
	logger := logging.WithFields(ctx, "run_id", runID, "project_id", project.ID)
	if ip := ClientIPFromContext(ctx); ip != "" {
		logger = logger.With("client_ip", ip)
	}

	client, err := s.newClient(project.APIConfig, logger)
	if err != nil {
		return nil, err
	}
	proc, err := NewProcessor(template, field, client)
	if err != nil {
		return nil, err
	}
	raw := NewCountingReader(input)
	reader, err := NewInputReader(raw, opts.Encoding)
	if err != nil {
		return nil, err
	}

	return &preparedRun{
		id:      runID,
		project: project,
		opts:    opts,
		proc:    proc,
		workers: ResolveWorkers(opts.Workers, s.dispatch.DefaultWorkers, s.dispatch.MaxWorkers),
		input:   reader,
		raw:     raw,
		logger:  logger,
		started: s.now().UTC(),
	}, nil
}

func (s *Service) newClient(settings llm.Settings, logger *slog.Logger) (*llm.Client, error) {
	cfg, err := settings.Config(s.llmDefaults())
	if err != nil {
		return nil, &ValidationError{
			Field:   "api_config",
			Message: fmt.Sprintf("resolve api config: %v", err),
			Err:     err,
		}
	}
	opts := append([]llm.Option{llm.WithLogger(logger)}, s.clientOpts...)
	return llm.NewClient(cfg, opts...)
}

// ProcessBatch runs every record of input through the project's endpoint and
// returns all results once the last call finished. Any malformed line rejects
// the whole dataset before a call is made.
func (s *Service) ProcessBatch(ctx context.Context, projectID string, input io.Reader, opts RunOptions) (BatchOutcome, error) {
	run, err := s.prepareRun(ctx, projectID, input, opts)
	if err != nil {
		return BatchOutcome{}, err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return BatchOutcome{}, err
	}
	defer s.limiter.Release()

	records, err := DecodeStrict(run.input)
	if err != nil {
		return BatchOutcome{}, err
	}
	if len(records) == 0 {
		return BatchOutcome{}, ErrNoValidRecords
	}

	run.logger.Info("batch run started",
		"file", opts.FileName,
		"records", len(records),
		"workers", run.workers,
		"result_field", run.proc.ResultField(),
	)

	outcome := NewDispatcher(run.workers).Collect(ctx, records, run.proc)
	outcome.RunID = run.id
	s.finishRun(ctx, run, ModeBatch, outcome, nil)
	return outcome, nil
}

// ProcessStream runs input like ProcessBatch but reports to sink as results
// arrive. Malformed lines become parse_error events instead of failing the
// run. Errors returned before the first event mean nothing was sent.
func (s *Service) ProcessStream(ctx context.Context, projectID string, input io.Reader, opts RunOptions, sink Sink) (BatchOutcome, error) {
	run, err := s.prepareRun(ctx, projectID, input, opts)
	if err != nil {
		return BatchOutcome{}, err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return BatchOutcome{}, err
	}
	defer s.limiter.Release()

	if s.observer != nil {
		sink = MultiSink{sink, ObserverSink(ctx, run.id, s.observer)}
	}

	run.logger.Info("stream run started",
		"file", opts.FileName,
		"workers", run.workers,
		"result_field", run.proc.ResultField(),
	)

	emitter := &Emitter{Dispatcher: NewDispatcher(run.workers), Logger: run.logger}
	outcome, runErr := emitter.Run(ctx, run.id, run.input, run.proc, sink)
	outcome.RunID = run.id
	s.finishRun(ctx, run, ModeStream, outcome, runErr)
	return outcome, runErr
}

// finishRun persists the run summary and tells the observer. Bookkeeping
// failures are logged; the results already produced are still returned.
func (s *Service) finishRun(ctx context.Context, run *preparedRun, mode string, outcome BatchOutcome, runErr error) {
	status := store.RunCompleted
	if runErr != nil {
		status = store.RunFailed
	}

	sum := RunSummary{
		RunID:      run.id,
		ProjectID:  run.project.ID,
		FileName:   run.opts.FileName,
		Mode:       mode,
		Status:     status,
		Total:      outcome.Total,
		Success:    outcome.Success,
		Error:      outcome.Errors,
		StartedAt:  run.started,
		FinishedAt: s.now().UTC(),
	}

	if err := s.recordRun(context.WithoutCancel(ctx), sum); err != nil {
		run.logger.Error("failed to record run", "error", err)
	}
	if s.observer != nil {
		s.observer.ObserveCompleted(ctx, sum)
	}

	attrs := []any{
		"mode", mode,
		"status", status,
		"total", sum.Total,
		"success", sum.Success,
		"errors", sum.Error,
		"bytes", run.raw.BytesRead,
		"duration_ms", sum.FinishedAt.Sub(sum.StartedAt).Milliseconds(),
	}
	if runErr != nil {
		run.logger.Warn("run failed", append(attrs, "error", runErr)...)
		return
	}
	run.logger.Info("run finished", attrs...)
}

// ---------------------------------------------------------------------------
// Test prompt
// ---------------------------------------------------------------------------

// TestPromptInput is a single-record dry run against a project's endpoint.
type TestPromptInput struct {
	ProjectID      string          `json:"project_id"`
	PromptTemplate string          `json:"prompt_template"`
	TestData       json.RawMessage `json:"test_data"`
}

// TestPromptResult reports the rendered prompt and the call outcome.
type TestPromptResult struct {
	Success        bool   `json:"success"`
	Response       string `json:"response,omitempty"`
	Error          string `json:"error,omitempty"`
	RenderedPrompt string `json:"rendered_prompt"`
}

func missingParameter(field string) error {
	return &ValidationError{Field: field, Message: "missing required parameter: " + field}
}

// TestPrompt renders in.PromptTemplate against in.TestData and makes one
// call. Input and lookup problems are returned as errors; a failed call is
// reported in the result.
func (s *Service) TestPrompt(ctx context.Context, in TestPromptInput) (TestPromptResult, error) {
	switch {
	case strings.TrimSpace(in.ProjectID) == "":
		return TestPromptResult{}, missingParameter("project_id")
	case strings.TrimSpace(in.PromptTemplate) == "":
		return TestPromptResult{}, missingParameter("prompt_template")
	case isEmptyJSON(in.TestData):
		return TestPromptResult{}, missingParameter("test_data")
	}

	rec, err := ParseRecord(0, in.TestData)
	if err != nil {
		return TestPromptResult{}, &ValidationError{Field: "test_data", Message: "test_data must be a JSON object"}
	}

	project, err := s.GetProject(ctx, in.ProjectID)
	if err != nil {
		return TestPromptResult{}, err
	}

	result := TestPromptResult{RenderedPrompt: Render(in.PromptTemplate, rec)}
	logger := logging.WithFields(ctx, "project_id", project.ID)

	client, err := s.newClient(project.APIConfig, logger)
	if err != nil {
		result.Error = err.Error()
		return result, nil
	}

	out, err := client.Complete(ctx, result.RenderedPrompt)
	if err != nil {
		logger.Info("test prompt failed", "error", err)
		result.Error = err.Error()
		return result, nil
	}
	result.Success = true
	result.Response = out
	return result, nil
}

// isEmptyJSON reports whether raw is absent, null or an empty object.
func isEmptyJSON(raw json.RawMessage) bool {
	switch strings.TrimSpace(string(raw)) {
	case "", "null", "{}":
		return true
	}
	return false
}
