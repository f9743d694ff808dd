package core

// error_messages.go maps technical errors to user-facing messages with codes
// that can be quoted to support.
//
// # Error Codes Reference
//
// Dataset errors (DEC001-DEC099):
//
//	DEC001 - Line is JSON but not an object       ("expected a json object")
//	DEC002 - Line is not valid JSON               ("invalid json")
//	DEC003 - Dataset has no usable line           ("no valid json records")
//	DEC004 - Charset label not recognised         ("unsupported encoding")
//
// Configuration errors (CFG001-CFG099):
//
//	CFG001 - Project has no API URL               ("api url is not configured")
//	CFG002 - API URL is not absolute http(s)      ("invalid api url")
//	CFG003 - Prompt template is empty             ("prompt template is empty")
//	CFG004 - Numeric API setting out of range     ("must be positive")
//
// Upstream errors (UPS001-UPS099):
//
//	UPS001 - Call exceeded its timeout            ("request timeout")
//	UPS002 - Credentials rejected                 ("http 401", "http 403")
//	UPS003 - Upstream throttled the call          ("http 429")
//	UPS004 - Any other non-2xx answer             ("upstream returned http")
//	UPS005 - Endpoint unreachable                 ("request failed")
//	UPS006 - Answer has no usable content         ("malformed response")
//
// Run errors (RUN001-RUN099):
//
//	RUN001 - Run slots exhausted                  ("too many runs")
//	RUN002 - Client went away                     ("context canceled")
//	RUN003 - Run exceeded its deadline            ("context deadline exceeded")
//
// Project and template errors (PRJ001-PRJ099):
//
//	PRJ001 - Project id unknown                   ("project not found")
//	PRJ002 - Template id unknown                  ("template not found")
//	PRJ003 - Name missing                         ("name is required")
//	PRJ004 - API URL missing on save              ("api_config.api_url is required")
//	PRJ005 - Test prompt input incomplete         ("missing required parameter")
//
// File errors (FILE001-FILE099):
//
//	FILE001 - Upload over the size limit          ("file too large", "request body too large")
//	FILE002 - No file part in the form            ("no file provided")
//
// Storage errors (DB001-DB099):
//
//	DB001 - Database unreachable                  ("connection refused")
//	DB002 - SQLite busy                           ("database is locked")
//	DB003 - Duplicate id                          ("duplicate key", "unique constraint")
//
// Rate limiting (RATE001):
//
//	RATE001 - Too many requests from this client  ("rate limit")
//
// ERR000 is the fallback. Patterns are matched case-insensitively with
// strings.Contains and the first match wins, so specific patterns come first.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Dataset
	{"expected a json object", UserMessage{"A dataset line is not a JSON object", "Put one JSON object on each line", "DEC001"}},
	{"invalid json", UserMessage{"A dataset line is not valid JSON", "Fix the line reported in the message or remove it", "DEC002"}},
	{"no valid json records", UserMessage{"The dataset has no valid records", "Upload a JSONL file with one JSON object per line", "DEC003"}},
	{"unsupported encoding", UserMessage{"The file encoding is not supported", "Use utf-8, gbk, gb18030, big5, windows-1251 or latin1", "DEC004"}},

	// Configuration
	{"api url is not configured", UserMessage{"The project has no API URL", "Set api_url in the project's API configuration", "CFG001"}},
	{"invalid api url", UserMessage{"The API URL is not valid", "Use an absolute http:// or https:// URL", "CFG002"}},
	{"prompt template is empty", UserMessage{"No prompt template was provided", "Enter a template or save one on the project", "CFG003"}},
	{"must be positive", UserMessage{"An API setting is out of range", "Check timeout and max_tokens in the API configuration", "CFG004"}},

	// Upstream
	{"request timeout", UserMessage{"The model API did not answer in time", "Raise the timeout or try again later", "UPS001"}},
	{"http 401", UserMessage{"The model API rejected the credentials", "Check the API key or token", "UPS002"}},
	{"http 403", UserMessage{"The model API rejected the credentials", "Check the API key or token", "UPS002"}},
	{"http 429", UserMessage{"The model API is throttling requests", "Lower max_workers or try again later", "UPS003"}},
	{"upstream returned http", UserMessage{"The model API returned an error", "Check the response body in the message", "UPS004"}},
	{"request failed", UserMessage{"The model API could not be reached", "Check the API URL and network access", "UPS005"}},
	{"malformed response", UserMessage{"The model API answer had no content", "Check that the endpoint speaks the chat completions format", "UPS006"}},

	// Runs
	{"too many runs", UserMessage{"The server is busy with other runs", "Please wait a moment and try again", "RUN001"}},
	{"context canceled", UserMessage{"The run was cancelled", "Start the run again", "RUN002"}},
	{"context deadline exceeded", UserMessage{"The run timed out", "Try a smaller dataset or try again later", "RUN003"}},

	// Projects and templates
	{"project not found", UserMessage{"Project not found", "Refresh the project list", "PRJ001"}},
	{"template not found", UserMessage{"Template not found", "Refresh the template list", "PRJ002"}},
	{"name is required", UserMessage{"A name is required", "Enter a name", "PRJ003"}},
	{"api_config.api_url is required", UserMessage{"An API URL is required", "Enter the completion endpoint URL", "PRJ004"}},
	{"missing required parameter", UserMessage{"The request is missing a parameter", "Send project_id, prompt_template and test_data", "PRJ005"}},

	// Files
	{"file too large", UserMessage{"The file exceeds the upload limit", "Split the dataset into smaller files", "FILE001"}},
	{"request body too large", UserMessage{"The file exceeds the upload limit", "Split the dataset into smaller files", "FILE001"}},
	{"no file provided", UserMessage{"No file was selected", "Choose a JSONL file to upload", "FILE002"}},

	// Storage
	{"connection refused", UserMessage{"Unable to connect to the database", "Please try again in a few moments", "DB001"}},
	{"database is locked", UserMessage{"The database is busy", "Please try again", "DB002"}},
	{"duplicate key", UserMessage{"A record with this ID already exists", "Please try again", "DB003"}},
	{"unique constraint", UserMessage{"A record with this ID already exists", "Please try again", "DB003"}},

	// Rate limiting
	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
}

// defaultMessage is returned when no pattern matches.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// A nil error yields the zero UserMessage.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err. It returns nil for a nil error.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
