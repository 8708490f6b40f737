// Package cli formats Kansa results for the terminal.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperjump/kansa/internal/models"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, OutputJSON:
		return OutputFormat(s), nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteAuditResult writes an audit result to w. Text output lists the keys in
// sorted order; nested values are printed as indented JSON.
func WriteAuditResult(w io.Writer, result models.AuditResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, result)
	}
	if result.IsFallback() {
		fmt.Fprintln(w, "(model did not return JSON)")
		fmt.Fprintln(w, result[models.FallbackKey])
		return nil
	}
	keys := make([]string, 0, len(result))
	for k := range result {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := result[k].(type) {
		case string:
			fmt.Fprintf(w, "%s: %s\n", k, v)
		case nil:
			fmt.Fprintf(w, "%s: null\n", k)
		case map[string]any, []any:
			b, err := json.MarshalIndent(v, "  ", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s:\n  %s\n", k, b)
		default:
			fmt.Fprintf(w, "%s: %v\n", k, v)
		}
	}
	return nil
}

// WriteStatus writes a service status report to w.
func WriteStatus(w io.Writer, status *models.Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}
	idx := status.Index
	fmt.Fprintf(w, "chunks:             %d   # chunks in the vector index\n", idx.Chunks)
	fmt.Fprintf(w, "sources:            %d   # distinct documents\n", idx.Sources)
	fmt.Fprintf(w, "loaded:             %t\n", idx.Loaded)
	if status.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d   # vector store + uploads on disk\n", *status.DiskUsageBytes)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "# configuration")
	fmt.Fprintf(w, "backend:            %s\n", idx.Backend)
	if idx.EmbeddingModel != "" {
		fmt.Fprintf(w, "embedding_model:    %s\n", idx.EmbeddingModel)
	}
	if idx.Dimensions > 0 {
		fmt.Fprintf(w, "embedding_dims:     %d\n", idx.Dimensions)
	}
	llm := status.LLM
	if llm == "" {
		llm = "(none)"
	}
	fmt.Fprintf(w, "llm:                %s\n", llm)
	fmt.Fprintf(w, "retrieval:          k=%d fetch_k=%d lambda=%.2f\n",
		status.Retrieval.K, status.Retrieval.FetchK, status.Retrieval.Lambda)
	fmt.Fprintf(w, "chunking:           size=%d overlap=%d mode=%s\n",
		status.Ingest.ChunkSize, status.Ingest.ChunkOverlap, status.Ingest.Mode)
	if idx.Dir != "" {
		fmt.Fprintf(w, "vector_store_path:  %s\n", idx.Dir)
	}
	if len(status.Inbox) > 0 {
		fmt.Fprintf(w, "inbox:              %s\n", strings.Join(status.Inbox, ", "))
	}
	return nil
}
