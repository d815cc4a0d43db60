package cli

import (
	"fmt"
	"time"

	"github.com/naralabs/nara/internal/config"
	"github.com/naralabs/nara/internal/logger"
	"github.com/naralabs/nara/pkg/memory"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "nara",
	Short: "Nara - conversational assistant with semantic memory",
	Long: `Nara is a personal conversational assistant whose responses are
augmented by a private, file- and conversation-backed semantic memory.
It indexes long-term and daily notes alongside conversation transcripts
and answers hybrid vector/lexical retrieval queries over them.`,
	Version: version,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.nara/nara.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// runtime bundles what every subcommand needs.
type runtime struct {
	cfg     *config.Config
	log     *logger.Logger
	service *memory.Service
}

func (r *runtime) close() {
	if r.service != nil {
		r.service.Close()
	}
	if r.log != nil {
		r.log.Close()
	}
}

func buildRuntime() (*runtime, error) {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	log, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return nil, err
	}

	zl := log.Zerolog()

	provider := memory.ResolveProvider(memory.ProviderConfig{
		Provider:      cfg.Memory.Embedding.Provider,
		Fallback:      cfg.Memory.Embedding.Fallback,
		LocalModel:    cfg.Memory.Embedding.LocalModel,
		OpenAIAPIKey:  cfg.Memory.Embedding.OpenAIAPIKey,
		OpenAIBaseURL: cfg.Memory.Embedding.OpenAIBaseURL,
		OpenAIModel:   cfg.Memory.Embedding.OpenAIModel,
		GeminiAPIKey:  cfg.Memory.Embedding.GeminiAPIKey,
		GeminiBaseURL: cfg.Memory.Embedding.GeminiBaseURL,
		GeminiModel:   cfg.Memory.Embedding.GeminiModel,
	}, zl)

	service, err := memory.NewService(memory.Config{
		Workspace:           cfg.WorkspacePath,
		DBPath:              cfg.Memory.DBPath,
		Enabled:             cfg.Memory.Enabled,
		SessionMemory:       cfg.Memory.SessionMemory,
		Sources:             parseSources(cfg.Memory.Sources),
		MainSessionKey:      cfg.Memory.MainSessionKey,
		CrossSession:        cfg.Memory.CrossSession,
		VectorWeight:        cfg.Memory.VectorWeight,
		TextWeight:          cfg.Memory.TextWeight,
		MinScore:            cfg.Memory.MinScore,
		MaxResults:          cfg.Memory.MaxResults,
		CandidateMultiplier: cfg.Memory.CandidateMultiplier,
		QueueSize:           cfg.Memory.QueueSize,
		Provider:            provider,
		Logger:              zl,
	})
	if err != nil {
		log.Close()
		return nil, err
	}

	return &runtime{cfg: cfg, log: log, service: service}, nil
}

func parseSources(names []string) []memory.Source {
	var sources []memory.Source
	for _, name := range names {
		source, err := memory.ParseSource(name)
		if err != nil {
			continue
		}
		sources = append(sources, source)
	}
	return sources
}

func buildRetention(r *runtime) (*memory.Retention, error) {
	if !r.cfg.Memory.Retention.Enabled {
		return nil, nil
	}
	return memory.NewRetention(r.service.Store(), memory.RetentionConfig{
		Schedule: r.cfg.Memory.Retention.Schedule,
		MaxAge:   time.Duration(r.cfg.Memory.Retention.MaxAgeDays) * 24 * time.Hour,
	}, r.log.Zerolog())
}

func formatScore(score float64) string {
	return fmt.Sprintf("%.3f", score)
}
