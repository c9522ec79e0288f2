package main

import (
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/config"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/control"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/creative"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/daemon"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/dlq"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/fingerprint"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/logging"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/queue"
	scoring "github.com/alokickstudios-coder/Alokickflow-sub003/internal/services/creative"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/services/entitlements"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/services/transcribe"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/worker"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the QC daemon: scheduler, workers, and control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return err
			}

			d, err := bootstrapDaemon(cfg, logger)
			if err != nil {
				return err
			}
			defer d.Close()

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := d.Start(runCtx); err != nil {
				return err
			}
			logger.Info("daemon started",
				logging.String("queue_db", cfg.DatabasePath()),
				logging.String("api_bind", cfg.Paths.APIBind))
			<-runCtx.Done()
			d.Stop()
			return nil
		},
	}
}

// bootstrapDaemon wires the full service graph from configuration.
func bootstrapDaemon(cfg *config.Config, logger *slog.Logger) (*daemon.Daemon, error) {
	store, err := queue.Open(cfg)
	if err != nil {
		return nil, err
	}

	dlqStore, err := dlq.NewStore(store.DB(), cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	dlqService := dlq.NewService(dlqStore, store, logger)

	scorer := scoring.NewClient(scoring.Config{
		APIKey:         cfg.Creative.APIKey,
		BaseURL:        cfg.Creative.BaseURL,
		Model:          cfg.Creative.Model,
		SecondaryModel: cfg.Creative.SecondaryModel,
		TimeoutSeconds: cfg.Creative.TimeoutSeconds,
	})

	transcribeCfg := transcribe.Config{}
	if cfg.Transcription.Enabled {
		transcribeCfg = transcribe.Config{
			APIKey:         cfg.Transcription.APIKey,
			BaseURL:        cfg.Transcription.BaseURL,
			Model:          cfg.Transcription.Model,
			TimeoutSeconds: cfg.Transcription.TimeoutSeconds,
			MaxMediaBytes:  cfg.Transcription.MaxMediaBytes,
		}
	}
	transcriber := transcribe.NewClient(transcribeCfg)

	resolver := entitlements.NewConfigResolver(cfg)
	engine, err := creative.NewEngine(store, scorer, transcriber, resolver, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	processor := worker.NewProcessor(cfg, store, dlqStore, worker.UnconfiguredAnalyzer{}, engine, resolver, logger)
	trigger := worker.NewTrigger()
	controlSvc := control.NewService(store, processor, trigger, logger)
	fingerprints := fingerprint.NewService(store, logger)

	d, err := daemon.New(cfg, store, controlSvc, dlqService, fingerprints, processor, trigger, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	return d, nil
}
