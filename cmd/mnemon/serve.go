package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/mnemonlabs/mnemon"
	"github.com/mnemonlabs/mnemon/internal/config"
	"github.com/mnemonlabs/mnemon/observer"
	"github.com/mnemonlabs/mnemon/preset"
	"github.com/mnemonlabs/mnemon/provider/openaichat"
	"github.com/mnemonlabs/mnemon/provider/openaiembed"
	"github.com/mnemonlabs/mnemon/server"
	"github.com/mnemonlabs/mnemon/store/postgres"
	"github.com/mnemonlabs/mnemon/store/sqlite"
	"github.com/mnemonlabs/mnemon/tokenizer"
)

func serveCmd() *cobra.Command {
	var (
		host      string
		port      int
		enableTel bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the agent HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), host, port, enableTel)
		},
	}
	cmd.Flags().StringVar(&host, "host", "localhost", "listen host")
	cmd.Flags().IntVar(&port, "port", 8283, "listen port")
	cmd.Flags().BoolVar(&enableTel, "otel", false, "export traces and metrics via OTLP")
	return cmd
}

func runServe(ctx context.Context, host string, port int, enableTel bool) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	tracer := mnemon.NopTracer()
	if enableTel {
		_, shutdown, err := observer.Init(ctx)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(sctx)
		}()
		tracer = observer.NewTracer()
	}

	store := sqlite.New(cfg.MetadataStorage.Path, sqlite.WithLogger(logger))
	defer store.Close()
	if err := store.Init(ctx); err != nil {
		return err
	}
	metadata := sqlite.NewMetadataStore(store.DB())

	var pgStore *postgres.Store
	if cfg.RecallStorage.Type == config.StoragePostgres || cfg.ArchivalStorage.Type == config.StoragePostgres {
		uri := cfg.RecallStorage.URI
		if uri == "" {
			uri = cfg.ArchivalStorage.URI
		}
		pool, err := pgxpool.New(ctx, uri)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
		pgStore = postgres.New(pool, postgres.WithEmbeddingDimension(cfg.Embedding.EmbeddingDim))
		if err := pgStore.Init(ctx); err != nil {
			return err
		}
	}

	recallFor := func(agentID uuid.UUID) mnemon.RecallMemory {
		if cfg.RecallStorage.Type == config.StoragePostgres {
			return postgres.NewRecallStore(pgStore.Pool(), agentID)
		}
		return sqlite.NewRecallStore(store.DB(), agentID)
	}
	passagesFor := func(agentID uuid.UUID) mnemon.PassageStore {
		if cfg.ArchivalStorage.Type == config.StoragePostgres {
			return postgres.NewPassageStore(pgStore.Pool(), agentID)
		}
		return sqlite.NewPassageStore(store.DB(), agentID)
	}
	restore := func(ctx context.Context, ids []uuid.UUID) ([]mnemon.Message, error) {
		if cfg.RecallStorage.Type == config.StoragePostgres {
			return postgres.NewRecallStore(pgStore.Pool(), uuid.Nil).GetMessages(ctx, ids)
		}
		return sqlite.NewRecallStore(store.DB(), uuid.Nil).GetMessages(ctx, ids)
	}

	apiKey := config.APIKey()
	chat := mnemon.NewRetryProvider(
		openaichat.New(apiKey, cfg.Model.ModelEndpoint, cfg.Model.Model,
			openaichat.WithLogger(logger)),
		logger)
	embed := openaiembed.New(apiKey, cfg.Embedding.EmbeddingEndpoint, cfg.Embedding.EmbeddingModel)

	var counter mnemon.TokenCounter
	if tk, err := tokenizer.ForModel(cfg.Model.Model); err == nil {
		counter = tk
	} else {
		logger.Warn("tokenizer unavailable, using heuristic estimates", "error", err)
		counter = mnemon.EstimateCounter{}
	}

	srv, err := server.New(server.Deps{
		Provider: chat,
		Embedder: embed,
		Metadata: metadata,
		Recall:   recallFor,
		Passages: passagesFor,
		Restore:  restore,
		Counter:  counter,
		Tracer:   tracer,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	p := presetDefaults(cfg)
	addr := fmt.Sprintf("%s:%d", host, port)
	logger.Info("listening", "addr", addr)
	return http.ListenAndServe(addr, srv.Handler(p))
}

func presetDefaults(cfg *config.Config) server.Defaults {
	p := preset.Default()
	if cfg.Persona != "" {
		p.Persona = cfg.Persona
	}
	if cfg.Human != "" {
		p.Human = cfg.Human
	}
	if cfg.Preset != "" {
		p.Name = cfg.Preset
	}
	return server.Defaults{
		Preset:    p.Name,
		System:    p.System,
		Persona:   p.Persona,
		Human:     p.Human,
		LLM:       cfg.Model,
		Embedding: cfg.Embedding,
	}
}
