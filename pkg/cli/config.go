package cli

import (
	"context"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/llbmem/pkg/adapter"
	"github.com/m-mizutani/llbmem/pkg/engine"
	"github.com/m-mizutani/llbmem/pkg/interfaces"
	"github.com/m-mizutani/llbmem/pkg/model"
	"github.com/m-mizutani/llbmem/pkg/repository"
	"github.com/m-mizutani/llbmem/pkg/usecase/memory"
	"github.com/m-mizutani/llbmem/pkg/usecase/truthbase"
	"github.com/m-mizutani/llbmem/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// config holds configuration values
type config struct {
	configPath string
	baseDir    string
	logLevel   string

	// Vector index backend
	project  string
	database string

	// Gemini
	geminiProject  string
	geminiLocation string
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to YAML configuration file",
			Sources:     cli.EnvVars("LLBMEM_CONFIG"),
			Destination: &cfg.configPath,
		},
		&cli.StringFlag{
			Name:        "base-dir",
			Aliases:     []string{"b"},
			Usage:       "Base directory for the memory store",
			Sources:     cli.EnvVars("LLBMEM_BASE_DIR"),
			Destination: &cfg.baseDir,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("LLBMEM_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID for the Firestore vector index",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini embeddings and generation",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
	}
}

// buildEngine assembles the engine from the resolved configuration: Gemini
// embedders when a Gemini project is given, the deterministic local embedder
// otherwise; a Firestore vector index with in-process failover when a project
// is given, the in-process index alone otherwise.
func buildEngine(ctx context.Context, cfg *config) (*engine.Engine, context.Context, error) {
	logger := logging.New(cfg.logLevel, os.Stderr)
	logging.SetDefault(logger)
	ctx = logging.With(ctx, logger)

	ec := model.DefaultConfig()
	if cfg.configPath != "" {
		loaded, err := model.LoadConfig(cfg.configPath)
		if err != nil {
			return nil, ctx, err
		}
		ec = loaded
	}
	if cfg.baseDir != "" {
		ec.BaseDir = cfg.baseDir
	}
	if ec.BaseDir == "" {
		return nil, ctx, goerr.New("base directory is required (--base-dir or config)")
	}

	var memEmbedder, truthEmbedder interfaces.Embedder
	var gen interfaces.GenerateClient
	if cfg.geminiProject != "" {
		mem, err := adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation,
			adapter.WithEmbeddingModel(ec.Embedding.Model),
			adapter.WithEmbeddingDimension(ec.Embedding.MemoryDimension),
			adapter.WithMaxEmbedTokens(ec.Embedding.MaxTokens))
		if err != nil {
			return nil, ctx, err
		}
		truth, err := adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation,
			adapter.WithEmbeddingModel(ec.Embedding.Model),
			adapter.WithEmbeddingDimension(ec.Embedding.Dimension),
			adapter.WithMaxEmbedTokens(ec.Embedding.MaxTokens))
		if err != nil {
			return nil, ctx, err
		}
		memEmbedder, truthEmbedder, gen = mem, truth, truth
	} else {
		memEmbedder = adapter.NewLocalEmbedder(ec.Embedding.MemoryDimension,
			adapter.WithLocalMaxTokens(ec.Embedding.MaxTokens))
		truthEmbedder = adapter.NewLocalEmbedder(ec.Embedding.Dimension,
			adapter.WithLocalMaxTokens(ec.Embedding.MaxTokens))
	}

	var vectors interfaces.VectorIndex = adapter.NewChromemIndex()
	if cfg.project != "" && !ec.Fallback {
		primary, err := adapter.NewFirestoreIndex(ctx, cfg.project, cfg.database)
		if err != nil {
			return nil, ctx, err
		}
		vectors = adapter.NewFailoverIndex(primary, vectors)
	}

	blobs, err := repository.NewBlobStore(ec.BaseDir, ec.Storage.CacheMaxBytes)
	if err != nil {
		return nil, ctx, err
	}
	indexes, err := repository.NewIndexStore(ec.BaseDir, ec.Storage.CheckpointEvery)
	if err != nil {
		return nil, ctx, err
	}

	mgr := memory.New(memEmbedder, vectors, blobs, indexes, ec)
	truth, err := truthbase.New(truthEmbedder, vectors, ec)
	if err != nil {
		return nil, ctx, err
	}

	var opts []engine.Option
	if gen != nil {
		opts = append(opts, engine.WithGenerateClient(gen))
	}
	eng := engine.New(mgr, truth, opts...)
	if err := eng.Initialize(ctx); err != nil {
		return nil, ctx, err
	}
	return eng, ctx, nil
}
