package core

import (
	"context"
	"strings"
)

// ErrorMarker prefixes the result field of a record whose call failed.
const ErrorMarker = "error: "

// DefaultResultField is the key model output is written to when none is given.
const DefaultResultField = "response"

// Completer sends one prompt to a model and returns its reply.
// *llm.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// ItemResult is the outcome of processing one record.
type ItemResult struct {
	// Line is the source line of the record.
	Line int
	// Record is a copy of the input with the result field set.
	Record Record
	// Output is the model reply. Empty when Err is set.
	Output string
	// Err is the failure of the external call, if any.
	Err error
}

// OK reports whether the call succeeded.
func (r ItemResult) OK() bool {
	return r.Err == nil
}

// Status is "success" or "error".
func (r ItemResult) Status() string {
	if r.Err != nil {
		return "error"
	}
	return "success"
}

// ErrorText returns the error message, or "" on success.
func (r ItemResult) ErrorText() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// RecordProcessor turns one record into one result. Implementations must be
// safe for concurrent use.
type RecordProcessor interface {
	Process(ctx context.Context, rec Record) ItemResult
}

// Processor renders a template against each record and sends it to a Completer.
type Processor struct {
	template    string
	resultField string
	completer   Completer
}

// NewProcessor returns a processor writing replies to resultField
// (DefaultResultField when empty).
func NewProcessor(template, resultField string, c Completer) (*Processor, error) {
	if strings.TrimSpace(template) == "" {
		return nil, ErrEmptyTemplate
	}
	resultField = strings.TrimSpace(resultField)
	if resultField == "" {
		resultField = DefaultResultField
	}
	return &Processor{template: template, resultField: resultField, completer: c}, nil
}

// ResultField returns the key replies are written to.
func (p *Processor) ResultField() string {
	return p.resultField
}

// Prompt renders the template for rec.
func (p *Processor) Prompt(rec Record) string {
	return Render(p.template, rec)
}

// Process renders, calls, and records the reply or the error in the result
// field. It never fails as a whole: errors are carried in the result.
func (p *Processor) Process(ctx context.Context, rec Record) ItemResult {
	out, err := p.completer.Complete(ctx, p.Prompt(rec))
	if err != nil {
		return ItemResult{
			Line:   rec.Line,
			Record: rec.With(p.resultField, ErrorMarker+err.Error()),
			Err:    err,
		}
	}
	return ItemResult{
		Line:   rec.Line,
		Record: rec.With(p.resultField, out),
		Output: out,
	}
}
