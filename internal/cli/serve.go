package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/naralabs/nara/internal/tracing"
	"github.com/naralabs/nara/pkg/gateway"
	"github.com/naralabs/nara/pkg/memory"
	"github.com/naralabs/nara/pkg/session"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the memory gateway",
	Long: `Starts the websocket gateway exposing memory.search, memory.record and
session.append, along with the filesystem watcher and the transcript
retention janitor when they are enabled in the configuration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		if !rt.cfg.Gateway.Enabled {
			return fmt.Errorf("gateway is disabled in configuration")
		}

		if err := tracing.InitOpenTelemetry("nara"); err != nil {
			return err
		}
		defer tracing.ShutdownOpenTelemetry(context.Background())

		if rt.cfg.Memory.Watch {
			if err := rt.service.StartWatcher(); err != nil {
				return fmt.Errorf("failed to start watcher: %w", err)
			}
		}

		sessions, err := session.New(filepath.Join(rt.cfg.DataDir, "sessions"), rt.log.Zerolog())
		if err != nil {
			return err
		}
		// Every appended message flows into the memory ingest queue; ingestion
		// never blocks the append path.
		sessions.Subscribe(func(event session.AppendEvent) {
			rt.service.EnqueueTranscriptMessage(memory.TranscriptMessage{
				SessionKey:  event.SessionKey,
				SessionFile: event.SessionFile,
				Content:     event.Message.Content,
			})
		})

		retention, err := buildRetention(rt)
		if err != nil {
			return err
		}
		if retention != nil {
			if err := retention.Start(); err != nil {
				return err
			}
			defer retention.Stop()
		}

		server, err := gateway.NewServer(gateway.Config{
			Host:         rt.cfg.Gateway.Host,
			Port:         rt.cfg.Gateway.Port,
			SharedSecret: rt.cfg.Gateway.SharedSecret,
			Memory:       rt.service,
			Sessions:     sessions,
			Logger:       rt.log.Zerolog(),
		})
		if err != nil {
			return err
		}

		errCh := make(chan error, 1)
		go func() { errCh <- server.Start() }()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return err
		case <-sigCh:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Stop(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
