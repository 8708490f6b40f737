package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables already set are left alone. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg with the environment variables the service has
// always honoured. Unset or empty variables leave the file values untouched.
func ApplyEnv(cfg *Config) {
	set := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set("DATA_DIR", &cfg.Storage.DataDir)
	set("VECTOR_DB_PATH", &cfg.Storage.VectorStorePath)
	set("EMBEDDING_MODEL_NAME", &cfg.Embedding.ModelName)
	set("EMBEDDING_PROVIDER", &cfg.Embedding.Provider)
	set("LLM_PROVIDER", &cfg.LLM.Provider)
	set("LLM_MODEL_ID", &cfg.LLM.ModelID)
	set("AWS_REGION", &cfg.LLM.Region)
	set("OPENAI_API_KEY", &cfg.LLM.OpenAI.APIKey)
	set("OPENAI_BASE_URL", &cfg.LLM.OpenAI.BaseURL)
}
