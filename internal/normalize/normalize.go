// Package normalize turns raw language-model output into a JSON object.
package normalize

import (
	"encoding/json"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kansa/internal/models"
	"github.com/hyperjump/kansa/pkg/utils"
)

var (
	jsonFence  = regexp.MustCompile("```json\\s*")
	plainFence = regexp.MustCompile("```\\s*")
)

type options struct {
	logger *zap.Logger
}

// Option configures JSON.
type Option func(*options)

// WithLogger logs fallbacks at debug level.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// JSON extracts the first balanced JSON object from raw, ignoring markdown
// code fences and any text around the object. When no object can be parsed
// it returns {"analysis_result": raw} with raw unchanged. It never fails.
func JSON(raw string, opts ...Option) models.AuditResult {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := utils.OrNop(o.logger)

	text := jsonFence.ReplaceAllString(raw, "")
	text = plainFence.ReplaceAllString(text, "")

	obj, ok := firstObject(text)
	if !ok {
		logger.Debug("no JSON object in model output", zap.String("output", utils.Preview(raw, 200)))
		return fallback(raw)
	}
	var result map[string]any
	if err := json.Unmarshal([]byte(obj), &result); err != nil {
		logger.Debug("model output is not valid JSON",
			zap.Error(err),
			zap.String("output", utils.Preview(raw, 200)))
		return fallback(raw)
	}
	if result == nil {
		return fallback(raw)
	}
	return models.AuditResult(result)
}

func fallback(raw string) models.AuditResult {
	return models.AuditResult{models.FallbackKey: raw}
}

// firstObject returns the substring from the first '{' to its matching '}'.
// Braces inside JSON strings do not count.
func firstObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
