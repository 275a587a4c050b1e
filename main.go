package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type flagOptions struct {
	configPath   string
	addr         string
	databaseURL  string
	maxRecords   int
	maxSizeBytes int64
}

func newRootCommand() *cobra.Command {
	opts := &flagOptions{}
	cmd := &cobra.Command{
		Use:           "people-service",
		Short:         "REST API over a capped people collection",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(opts.configPath)
			if err != nil {
				return err
			}
			// Флаги имеют приоритет над файлом и окружением
			if cmd.Flags().Changed("addr") {
				cfg.HTTPAddr = opts.addr
			}
			if cmd.Flags().Changed("database-url") {
				cfg.DatabaseURL = opts.databaseURL
			}
			if cmd.Flags().Changed("max-records") {
				cfg.MaxRecords = opts.maxRecords
			}
			if cmd.Flags().Changed("max-size-bytes") {
				cfg.MaxSizeBytes = opts.maxSizeBytes
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", os.Getenv("PEOPLE_CONFIG"), "path to YAML config file")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "http listen address")
	cmd.Flags().StringVar(&opts.databaseURL, "database-url", "", "postgres://..., sqlite:<path> or memory:")
	cmd.Flags().IntVar(&opts.maxRecords, "max-records", 0, "maximum number of people kept")
	cmd.Flags().Int64Var(&opts.maxSizeBytes, "max-size-bytes", 0, "maximum serialized size of the collection")
	return cmd
}

func run(ctx context.Context, cfg *Config) error {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)
	log.Info().Msg("starting people-service")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := InitTracing(ctx, cfg.TraceStdout)
	if err != nil {
		return err
	}

	// Хранилище создаётся один раз и передаётся обработчикам явно
	st, err := OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if stats, err := st.Stats(ctx); err != nil {
		log.Error().Err(err).Msg("failed to read collection stats")
	} else {
		log.Info().
			Str("database", cfg.DatabaseName).
			Str("collection", cfg.Collection).
			Int("count", stats.Count).
			Int64("bytes", stats.Bytes).
			Int("max_records", cfg.MaxRecords).
			Int64("max_size_bytes", cfg.MaxSizeBytes).
			Msg("collection ready")
	}

	srv := StartHTTPServer(cfg, st)
	StartConsumer(ctx, cfg, st)

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("tracing shutdown")
	}
	return nil
}

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("people-service failed")
	}
}
