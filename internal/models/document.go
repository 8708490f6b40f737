// Package models defines the core data structures shared by ingestion, retrieval and auditing.
package models

// Chunk is a bounded span of document text prepared for independent retrieval.
type Chunk struct {
	ID         string `json:"id"`
	Content    string `json:"content"`
	Source     string `json:"source"`
	Page       int    `json:"page"`
	TotalPages int    `json:"total_pages"`
	ChunkIndex int    `json:"chunk_index"`
}

// Page is the extracted text of one page (or page-like unit) of a document.
// Number is 1-based.
type Page struct {
	Number int
	Text   string
}
