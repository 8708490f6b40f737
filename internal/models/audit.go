package models

import "fmt"

const (
	// DefaultQuery is used when an audit request carries no query.
	DefaultQuery = "Analyze this project."
	// DefaultInstruction is used when an audit request carries no instruction.
	DefaultInstruction = "You are a helpful AI assistant. Analyze the provided document and extract the requested information in JSON format."
)

// AuditRequest pairs the literal question with the persona / output-shape directive.
// SystemPrompt is accepted as an alias of Instruction for older clients.
type AuditRequest struct {
	Query        string `json:"query"`
	Instruction  string `json:"instruction,omitempty"`
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// Normalize fills defaults and folds SystemPrompt into Instruction.
func (r *AuditRequest) Normalize() {
	if r.Instruction == "" {
		r.Instruction = r.SystemPrompt
	}
	r.SystemPrompt = ""
	if r.Query == "" {
		r.Query = DefaultQuery
	}
	if r.Instruction == "" {
		r.Instruction = DefaultInstruction
	}
}

// Validate rejects requests that are too large to be sensible prompts.
func (r *AuditRequest) Validate(maxLen int) error {
	if maxLen > 0 && len(r.Query)+len(r.Instruction) > maxLen {
		return fmt.Errorf("request too large: %d bytes (max %d)", len(r.Query)+len(r.Instruction), maxLen)
	}
	return nil
}

// AuditResult is the JSON object produced for an audit. Its keys are decided at
// runtime by the instruction, so it is kept untyped.
type AuditResult map[string]any

// FallbackKey is the key under which unparseable model output is returned.
const FallbackKey = "analysis_result"

// IsFallback reports whether the result is the wrapped-text fallback shape.
func (r AuditResult) IsFallback() bool {
	if len(r) != 1 {
		return false
	}
	_, ok := r[FallbackKey].(string)
	return ok
}
