package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/promptfactory/internal/core"
	"github.com/JonMunkholm/promptfactory/internal/logging"
)

// multipartMemory is how much of an upload is buffered in memory before
// spilling to a temporary file.
const multipartMemory = 8 << 20

var (
	errNoFile       = errors.New("no file provided")
	errFileTooLarge = errors.New("file too large")
)

// upload is a parsed dataset upload.
type upload struct {
	file multipart.File
	opts core.RunOptions
	form *multipart.Form
}

func (u *upload) close() {
	u.file.Close()
	u.form.RemoveAll()
}

// readUpload parses the multipart form of a processing request.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Run.MaxUploadSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			return nil, fmt.Errorf("%w: limit is %d bytes", errFileTooLarge, s.cfg.Run.MaxUploadSize)
		}
		return nil, &core.ValidationError{Field: "file", Message: "invalid multipart form: " + err.Error(), Err: err}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		r.MultipartForm.RemoveAll()
		return nil, errNoFile
	}
	if header.Filename == "" {
		file.Close()
		r.MultipartForm.RemoveAll()
		return nil, errNoFile
	}

	opts := core.RunOptions{
		FileName:    header.Filename,
		Template:    r.FormValue("prompt_template"),
		ResultField: r.FormValue("result_field_name"),
		Encoding:    r.FormValue("encoding"),
	}
	if raw := strings.TrimSpace(r.FormValue("max_workers")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			file.Close()
			r.MultipartForm.RemoveAll()
			return nil, &core.ValidationError{Field: "max_workers", Message: "max_workers must be an integer", Err: err}
		}
		opts.Workers = &n
	}
	return &upload{file: file, opts: opts, form: r.MultipartForm}, nil
}

// runContext detaches a run from the client connection. A run that started
// finishes and is recorded even when the client goes away.
func runContext(r *http.Request) context.Context {
	return context.WithoutCancel(withRequestMetadata(r.Context(), r))
}

// processResponse is the body of a finished batch run.
type processResponse struct {
	RecordID      string        `json:"record_id"`
	ProcessedData []core.Record `json:"processed_data"`
	TotalLines    int           `json:"total_lines"`
	SuccessCount  int           `json:"success_count"`
	ErrorCount    int           `json:"error_count"`
}

// handleProcess runs a dataset and answers with every processed record.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	up, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer up.close()

	outcome, err := s.service.ProcessBatch(runContext(r), chi.URLParam(r, "id"), up.file, up.opts)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, processResponse{
		RecordID:      outcome.RunID,
		ProcessedData: outcome.Records(),
		TotalLines:    outcome.Total,
		SuccessCount:  outcome.Success,
		ErrorCount:    outcome.Errors,
	})
}

// handleProcessStream runs a dataset and streams its events as SSE.
func (s *Server) handleProcessStream(w http.ResponseWriter, r *http.Request) {
	up, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer up.close()

	sink := newSSESink(w)
	_, err = s.service.ProcessStream(runContext(r), chi.URLParam(r, "id"), up.file, up.opts, sink)
	if err != nil && !sink.Started() {
		s.respondError(w, r, err)
	}
}

// handleTestPrompt renders a template against one record and calls the
// project's endpoint once.
func (s *Server) handleTestPrompt(w http.ResponseWriter, r *http.Request) {
	var in core.TestPromptInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	result, err := s.service.TestPrompt(withRequestMetadata(r.Context(), r), in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) logger(r *http.Request) *slog.Logger {
	return logging.FromContext(r.Context())
}
