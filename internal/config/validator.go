package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// memorySchema constrains the memory section. Weight bounds mirror what the
// search engine clamps to, so a bad config fails loudly instead of silently
// being rescaled.
const memorySchema = `{
	"type": "object",
	"properties": {
		"enabled": {"type": "boolean"},
		"session_memory": {"type": "boolean"},
		"sources": {
			"type": "array",
			"items": {"enum": ["notes", "conversation"]}
		},
		"main_session_key": {"type": "string"},
		"cross_session": {"type": "boolean"},
		"db_path": {"type": "string"},
		"vector_weight": {"type": "number", "minimum": 0, "maximum": 1},
		"text_weight": {"type": "number", "minimum": 0, "maximum": 1},
		"min_score": {"type": "number", "minimum": 0, "maximum": 1},
		"max_results": {"type": "integer", "minimum": 1},
		"candidate_multiplier": {"type": "integer", "minimum": 1},
		"queue_size": {"type": "integer", "minimum": 0},
		"watch": {"type": "boolean"},
		"embedding": {
			"type": "object",
			"properties": {
				"provider": {"enum": ["", "auto", "local", "openai", "gemini", "none"]},
				"fallback": {"enum": ["", "auto", "local", "openai", "gemini", "none"]}
			}
		},
		"retention": {
			"type": "object",
			"properties": {
				"enabled": {"type": "boolean"},
				"schedule": {"type": "string"},
				"max_age_days": {"type": "integer", "minimum": 1}
			}
		}
	}
}`

// Validate checks a loaded configuration.
func Validate(cfg *Config) error {
	doc, err := json.Marshal(cfg.Memory)
	if err != nil {
		return fmt.Errorf("failed to marshal memory config: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(memorySchema),
		gojsonschema.NewBytesLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return fmt.Errorf("invalid memory config: %s", strings.Join(problems, "; "))
	}

	if cfg.Gateway.Enabled && cfg.Gateway.SharedSecret == "" {
		return fmt.Errorf("gateway requires a shared secret when enabled")
	}

	return nil
}
