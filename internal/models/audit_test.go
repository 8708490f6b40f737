package models

import "testing"

func TestAuditRequest_Normalize(t *testing.T) {
	tests := []struct {
		name            string
		req             AuditRequest
		wantQuery       string
		wantInstruction string
	}{
		{"defaults", AuditRequest{}, DefaultQuery, DefaultInstruction},
		{"system prompt alias", AuditRequest{Query: "q", SystemPrompt: "extract budget"}, "q", "extract budget"},
		{"instruction wins over alias", AuditRequest{Query: "q", Instruction: "a", SystemPrompt: "b"}, "q", "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			req.Normalize()
			if req.Query != tt.wantQuery {
				t.Errorf("Query = %q, want %q", req.Query, tt.wantQuery)
			}
			if req.Instruction != tt.wantInstruction {
				t.Errorf("Instruction = %q, want %q", req.Instruction, tt.wantInstruction)
			}
			if req.SystemPrompt != "" {
				t.Error("SystemPrompt should be cleared")
			}
		})
	}
}

func TestAuditRequest_Validate(t *testing.T) {
	req := AuditRequest{Query: "12345", Instruction: "67890"}
	if err := req.Validate(0); err != nil {
		t.Errorf("no limit: %v", err)
	}
	if err := req.Validate(10); err != nil {
		t.Errorf("at limit: %v", err)
	}
	if err := req.Validate(9); err == nil {
		t.Error("expected error over limit")
	}
}

func TestAuditResult_IsFallback(t *testing.T) {
	if !(AuditResult{FallbackKey: "raw"}).IsFallback() {
		t.Error("expected fallback")
	}
	if (AuditResult{"summary": "x"}).IsFallback() {
		t.Error("summary is not fallback")
	}
	if (AuditResult{FallbackKey: "raw", "budget": 1}).IsFallback() {
		t.Error("extra keys are not fallback")
	}
}
