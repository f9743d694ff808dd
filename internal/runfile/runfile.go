// Package runfile loads the YAML files promptctl uses to describe a local
// run: where to send prompts, how to authenticate, and which template to use.
//
//	endpoint: https://api.example.com/v1/chat/completions
//	model: gpt-4
//	auth:
//	  bearer: ${OPENAI_API_KEY}
//	temperature: 0.2
//	timeout: 45s
//	template_file: prompts/summarize.txt
//	result_field: summary
//	workers: 8
//
// String values of endpoint and auth are expanded against the environment.
package runfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/promptfactory/internal/llm"
)

// File is a decoded run file.
type File struct {
	Endpoint     string        `yaml:"endpoint"`
	Model        string        `yaml:"model"`
	Auth         Auth          `yaml:"auth"`
	Temperature  *float64      `yaml:"temperature"`
	MaxTokens    int           `yaml:"max_tokens"`
	VerifyTLS    *bool         `yaml:"verify_tls"`
	Timeout      time.Duration `yaml:"timeout"`
	Template     string        `yaml:"template"`
	TemplateFile string        `yaml:"template_file"`
	ResultField  string        `yaml:"result_field"`
	Workers      *int          `yaml:"workers"`
	Encoding     string        `yaml:"encoding"`

	// dir resolves a relative template_file.
	dir string
}

// Auth selects at most one credential style.
type Auth struct {
	Bearer string  `yaml:"bearer"`
	Header *Header `yaml:"header"`
	Raw    string  `yaml:"raw"`
}

// Header sends Value in the named header (X-Auth-Token when Name is empty).
type Header struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// Load reads and decodes the run file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run file: %w", err)
	}
	f, err := Parse(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes a run file. Unknown keys are rejected. dir is the base for a
// relative template_file.
func Parse(data []byte, dir string) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse run file: %w", err)
	}
	f.dir = dir

	f.Endpoint = os.ExpandEnv(f.Endpoint)
	f.Auth.Bearer = os.ExpandEnv(f.Auth.Bearer)
	f.Auth.Raw = os.ExpandEnv(f.Auth.Raw)
	if f.Auth.Header != nil {
		f.Auth.Header.Value = os.ExpandEnv(f.Auth.Header.Value)
	}

	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) validate() error {
	var errs []string

	set := 0
	if f.Auth.Bearer != "" {
		set++
	}
	if f.Auth.Header != nil {
		set++
		if f.Auth.Header.Value == "" {
			errs = append(errs, "auth.header.value is required")
		}
	}
	if f.Auth.Raw != "" {
		set++
	}
	if set > 1 {
		errs = append(errs, "auth: set only one of bearer, header, raw")
	}

	if f.Template != "" && f.TemplateFile != "" {
		errs = append(errs, "set only one of template, template_file")
	}
	if f.Workers != nil && *f.Workers < 1 {
		errs = append(errs, fmt.Sprintf("workers must be positive, got %d", *f.Workers))
	}
	if f.Timeout < 0 {
		errs = append(errs, fmt.Sprintf("timeout must not be negative, got %s", f.Timeout))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid run file:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Credential returns the configured auth variant.
func (f *File) Credential() llm.Auth {
	switch {
	case f.Auth.Bearer != "":
		return llm.BearerAuth{Token: f.Auth.Bearer}
	case f.Auth.Header != nil:
		return llm.HeaderAuth{Name: f.Auth.Header.Name, Value: f.Auth.Header.Value}
	case f.Auth.Raw != "":
		return llm.RawAuth{Value: f.Auth.Raw}
	default:
		return llm.NoAuth{}
	}
}

// LLMConfig resolves the endpoint settings against d.
func (f *File) LLMConfig(d llm.Defaults) (llm.Config, error) {
	if strings.TrimSpace(f.Endpoint) == "" {
		return llm.Config{}, llm.ErrMissingEndpoint
	}

	cfg := llm.Config{
		Endpoint:    strings.TrimSpace(f.Endpoint),
		Model:       d.Model,
		Auth:        f.Credential(),
		Temperature: d.Temperature,
		MaxTokens:   d.MaxTokens,
		VerifyTLS:   true,
		Timeout:     d.Timeout,
	}
	if f.Model != "" {
		cfg.Model = f.Model
	}
	if f.Temperature != nil {
		cfg.Temperature = *f.Temperature
	}
	if f.MaxTokens > 0 {
		cfg.MaxTokens = f.MaxTokens
	}
	if f.VerifyTLS != nil {
		cfg.VerifyTLS = *f.VerifyTLS
	}
	if f.Timeout > 0 {
		cfg.Timeout = f.Timeout
	}

	if err := cfg.Validate(); err != nil {
		return llm.Config{}, err
	}
	return cfg, nil
}

// PromptTemplate returns the inline template or the contents of template_file.
// It returns "" when neither is set.
func (f *File) PromptTemplate() (string, error) {
	if f.TemplateFile == "" {
		return f.Template, nil
	}
	path := f.TemplateFile
	if !filepath.IsAbs(path) && f.dir != "" {
		path = filepath.Join(f.dir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read template file: %w", err)
	}
	return string(data), nil
}
