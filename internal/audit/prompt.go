package audit

import (
	"fmt"
	"strings"

	"github.com/hyperjump/kansa/internal/models"
)

const systemTemplate = `You are an expert AI Auditor.

USER INSTRUCTIONS:
%s

STRICT OUTPUT RULES:
1. Output ONLY a valid JSON object.
2. Use the exact field names requested in the User Instructions as JSON keys (e.g., if asked for 'budget', create a "budget" key).
3. If multiple fields are requested, ensure they are SEPARATE keys in the JSON. Do NOT combine them.
4. If the user requested a summary without specifying fields, use "summary" as the key.
5. Do NOT include markdown formatting (no ` + "```" + `json).
6. Do NOT include introductory text.`

const userTemplate = `Context information is below:

--- START OF CONTEXT ---
%s
--- END OF CONTEXT ---

User Query: %s

Based on the context above, please answer the user query and return the result in JSON format.`

// SystemPrompt renders the auditor persona with instruction and the output rules.
func SystemPrompt(instruction string) string {
	return fmt.Sprintf(systemTemplate, instruction)
}

// UserPrompt renders the delimited context followed by the query.
func UserPrompt(contextText, query string) string {
	return fmt.Sprintf(userTemplate, contextText, query)
}

// RetrievalKey combines query and instruction into the text used for search.
func RetrievalKey(query, instruction string) string {
	return query + "\n\nContext to look for: " + instruction
}

// JoinContext concatenates chunk contents in retrieval order.
func JoinContext(chunks []*models.Chunk) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, c.Content)
	}
	return strings.Join(parts, "\n\n")
}
