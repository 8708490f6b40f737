// Package config provides configuration loading and structs for the kansa service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Vector    VectorConfig    `yaml:"vector"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Index     IndexConfig     `yaml:"index"`
	LLM       LLMConfig       `yaml:"llm"`
	Inbox     InboxConfig     `yaml:"inbox"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// MaxUploadMB bounds the multipart body accepted by /upload.
	MaxUploadMB int `yaml:"max_upload_mb"`
	// MaxRequestBytes bounds query plus instruction on /audit.
	MaxRequestBytes int      `yaml:"max_request_bytes"`
	CORSOrigins     []string `yaml:"cors_origins"`
}

// StorageConfig holds paths for uploaded documents and the persisted vector index.
type StorageConfig struct {
	VectorStorePath string `yaml:"vector_store_path"`
	DataDir         string `yaml:"data_dir"`
}

// EmbeddingConfig selects and configures the embedding model.
type EmbeddingConfig struct {
	// Provider is one of onnx, openai, hash.
	Provider   string `yaml:"provider"`
	ModelName  string `yaml:"model_name"`
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
}

// VectorConfig selects the vector index backend.
type VectorConfig struct {
	// IndexType is memory or chromem.
	IndexType string `yaml:"index_type"`
}

// IngestConfig holds chunking settings, measured in characters.
type IngestConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// RetrievalConfig holds maximum-marginal-relevance settings.
type RetrievalConfig struct {
	K      int     `yaml:"k"`
	FetchK int     `yaml:"fetch_k"`
	Lambda float64 `yaml:"lambda"`
}

// IndexConfig controls how new uploads change the index.
type IndexConfig struct {
	// Mode is replace (each upload rebuilds the index) or append.
	Mode string `yaml:"mode"`
}

// Index modes.
const (
	ModeReplace = "replace"
	ModeAppend  = "append"
)

// LLMConfig configures the language model client.
type LLMConfig struct {
	// Provider is bedrock or openai.
	Provider  string        `yaml:"provider"`
	ModelID   string        `yaml:"model_id"`
	Region    string        `yaml:"region"`
	Timeout   time.Duration `yaml:"timeout"`
	MaxTokens int           `yaml:"max_tokens"`
	OpenAI    OpenAIConfig  `yaml:"openai"`
}

// OpenAIConfig holds OpenAI (or compatible) API settings, shared by the LLM
// client and the openai embedding provider.
type OpenAIConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	EmbeddingModel string `yaml:"embedding_model"`
}

// InboxConfig holds watched inbox directories whose new files are ingested.
type InboxConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *InboxConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path, applies environment overrides
// and defaults, and expands paths. An empty path yields the defaults with paths
// relative to the working directory.
//
// The file is decoded onto Default(), so keys it omits keep their defaults and
// keys it sets, including an explicit 0, win.
func Load(path string) (*Config, error) {
	cfg := Default()
	configDir := "."
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		configDir = filepath.Dir(path)
	}

	ApplyEnv(cfg)
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	cfg.Storage.VectorStorePath = expandPath(cfg.Storage.VectorStorePath, configDir)
	cfg.Storage.DataDir = expandPath(cfg.Storage.DataDir, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	for i := range cfg.Inbox.Directories {
		cfg.Inbox.Directories[i] = expandPath(cfg.Inbox.Directories[i], configDir)
	}

	return cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate rejects settings no component can work with.
func Validate(cfg *Config) error {
	if cfg.Ingest.ChunkOverlap >= cfg.Ingest.ChunkSize {
		return fmt.Errorf("ingest.chunk_overlap (%d) must be smaller than ingest.chunk_size (%d)",
			cfg.Ingest.ChunkOverlap, cfg.Ingest.ChunkSize)
	}
	if cfg.Retrieval.Lambda < 0 || cfg.Retrieval.Lambda > 1 {
		return fmt.Errorf("retrieval.lambda must be in [0, 1], got %v", cfg.Retrieval.Lambda)
	}
	switch cfg.Index.Mode {
	case ModeReplace, ModeAppend:
	default:
		return fmt.Errorf("index.mode must be %q or %q, got %q", ModeReplace, ModeAppend, cfg.Index.Mode)
	}
	switch cfg.Vector.IndexType {
	case "memory", "chromem":
	default:
		return fmt.Errorf("unknown vector.index_type %q", cfg.Vector.IndexType)
	}
	return nil
}

// expandPath converts a path to absolute. Relative paths (including "./x" and
// bare names like "data") are relative to configDir; "~/" is the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
		return path
	}
	if abs, err := filepath.Abs(filepath.Join(configDir, path)); err == nil {
		return abs
	}
	return filepath.Join(configDir, path)
}
