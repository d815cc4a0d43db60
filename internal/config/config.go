package config

import "path/filepath"

// Config is the main Nara configuration.
type Config struct {
	// DataDir holds the index database, logs and session transcripts.
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// WorkspacePath is the note-corpus root.
	WorkspacePath string `json:"workspace_path" mapstructure:"workspace_path"`

	Memory  MemoryConfig  `json:"memory" mapstructure:"memory"`
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// MemoryConfig configures the memory subsystem.
type MemoryConfig struct {
	// Enabled gates memory search entirely.
	Enabled bool `json:"enabled" mapstructure:"enabled"`
	// SessionMemory gates conversation transcript indexing.
	SessionMemory bool `json:"session_memory" mapstructure:"session_memory"`
	// Sources lists active corpora: "notes", "conversation".
	Sources []string `json:"sources" mapstructure:"sources"`
	// MainSessionKey marks the primary conversation.
	MainSessionKey string `json:"main_session_key" mapstructure:"main_session_key"`
	// CrossSession allows queries to surface other sessions' transcripts.
	CrossSession bool `json:"cross_session" mapstructure:"cross_session"`

	DBPath string `json:"db_path" mapstructure:"db_path"`

	VectorWeight        float64 `json:"vector_weight" mapstructure:"vector_weight"`
	TextWeight          float64 `json:"text_weight" mapstructure:"text_weight"`
	MinScore            float64 `json:"min_score" mapstructure:"min_score"`
	MaxResults          int     `json:"max_results" mapstructure:"max_results"`
	CandidateMultiplier int     `json:"candidate_multiplier" mapstructure:"candidate_multiplier"`

	// QueueSize bounds the transcript ingest queue.
	QueueSize int `json:"queue_size" mapstructure:"queue_size"`
	// Watch enables the filesystem watcher that warms the index.
	Watch bool `json:"watch" mapstructure:"watch"`

	Embedding EmbeddingConfig `json:"embedding" mapstructure:"embedding"`
	Retention RetentionConfig `json:"retention" mapstructure:"retention"`
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	// Provider is one of auto, local, openai, gemini, none.
	Provider string `json:"provider" mapstructure:"provider"`
	// Fallback is tried when the explicit provider does not resolve.
	Fallback string `json:"fallback" mapstructure:"fallback"`
	// LocalModel is a remote model identifier or local file path; the local
	// provider resolves only when it is declared.
	LocalModel string `json:"local_model" mapstructure:"local_model"`

	OpenAIAPIKey  string `json:"openai_api_key" mapstructure:"openai_api_key"`
	OpenAIBaseURL string `json:"openai_base_url" mapstructure:"openai_base_url"`
	OpenAIModel   string `json:"openai_model" mapstructure:"openai_model"`

	GeminiAPIKey  string `json:"gemini_api_key" mapstructure:"gemini_api_key"`
	GeminiBaseURL string `json:"gemini_base_url" mapstructure:"gemini_base_url"`
	GeminiModel   string `json:"gemini_model" mapstructure:"gemini_model"`
}

// RetentionConfig configures the transcript retention janitor.
type RetentionConfig struct {
	Enabled    bool   `json:"enabled" mapstructure:"enabled"`
	Schedule   string `json:"schedule" mapstructure:"schedule"`
	MaxAgeDays int    `json:"max_age_days" mapstructure:"max_age_days"`
}

// GatewayConfig configures the websocket gateway.
type GatewayConfig struct {
	Enabled      bool   `json:"enabled" mapstructure:"enabled"`
	Host         string `json:"host" mapstructure:"host"`
	Port         int    `json:"port" mapstructure:"port"`
	SharedSecret string `json:"shared_secret" mapstructure:"shared_secret"`
}

// LoggingConfig configures logging output.
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns a config with default values. Paths that depend on
// the data directory are filled by the loader once DataDir is known.
func DefaultConfig() *Config {
	return &Config{
		Memory: MemoryConfig{
			Enabled:        true,
			SessionMemory:  true,
			Sources:        []string{"notes", "conversation"},
			MainSessionKey: "main",
			VectorWeight:   0.7,
			TextWeight:     0.3,
			MinScore:       0.05,
			MaxResults:     8,

			CandidateMultiplier: 4,
			QueueSize:           64,
			Watch:               false,
			Embedding: EmbeddingConfig{
				Provider: "auto",
			},
			Retention: RetentionConfig{
				Enabled:    false,
				Schedule:   "@daily",
				MaxAgeDays: 90,
			},
		},
		Gateway: GatewayConfig{
			Host: "127.0.0.1",
			Port: 8790,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
	}
}

// FillDerivedPaths resolves paths that default relative to the data dir.
func (c *Config) FillDerivedPaths() {
	if c.Memory.DBPath == "" && c.DataDir != "" {
		c.Memory.DBPath = filepath.Join(c.DataDir, "memory.db")
	}
	if c.Logging.File == "" && c.DataDir != "" {
		c.Logging.File = filepath.Join(c.DataDir, "nara.log")
	}
}
