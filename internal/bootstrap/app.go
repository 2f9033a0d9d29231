package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"orgrag/internal/ai"
	"orgrag/internal/app"
	"orgrag/internal/cache"
	"orgrag/internal/config"
	"orgrag/internal/embedding"
	"orgrag/internal/model"
	"orgrag/internal/pkg/logging"
	mysqlClient "orgrag/internal/platform/mysql"
	rabbitmqClient "orgrag/internal/platform/rabbitmq"
	redisClient "orgrag/internal/platform/redis"
	"orgrag/internal/repository"
	"orgrag/internal/vectorstore"
	"orgrag/internal/worker"
)

// App owns every long-lived resource. Backends are chosen here once, from
// configuration, and handed to the services.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	MySQL       *gorm.DB
	Redis       *redis.Client
	MQConn      *amqp.Connection
	VectorStore *vectorstore.Adapter

	AuthService         *app.AuthService
	OrganizationService *app.OrganizationService
	ChatService         *app.ChatService
	DocumentService     *app.DocumentService
	TurnIndexWorker     *worker.TurnIndexWorker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	logger := logging.New(cfg.App.LogLevel, cfg.App.LogFormat)

	a := &App{Config: cfg, Logger: logger, StartedAt: time.Now()}
	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	logger.Info("application ready",
		"llm_provider", cfg.LLM.Provider,
		"embedding_provider", cfg.Embedding.Provider,
		"vector_backend", cfg.VectorStore.Backend,
	)
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config
	var err error

	a.MySQL, err = mysqlClient.New(ctx, cfg.MySQLDSN(),
		&model.Organization{}, &model.User{}, &model.Chat{}, &model.Message{}, &model.Document{})
	if err != nil {
		return err
	}

	a.Redis, err = redisClient.New(ctx, redisClient.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return err
	}

	a.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.TurnIndexQueue)
	if err != nil {
		return err
	}

	generator, err := ai.NewGenerator(ai.GeneratorConfig{
		Provider:  cfg.LLM.Provider,
		BaseURL:   cfg.LLM.BaseURL,
		APIKey:    cfg.LLM.APIKey,
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
		Timeout:   cfg.LLM.Timeout(),
	})
	if err != nil {
		return fmt.Errorf("build generator failed: %w", err)
	}

	embedBackend, err := ai.NewEmbedder(ai.EmbedderConfig{
		Provider: cfg.Embedding.Provider,
		BaseURL:  cfg.Embedding.BaseURL,
		APIKey:   cfg.Embedding.APIKey,
		Model:    cfg.Embedding.Model,
	})
	if err != nil {
		return fmt.Errorf("build embedder failed: %w", err)
	}
	gateway := embedding.NewGateway(embedBackend, embedding.Config{
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		MaxChars:   cfg.Embedding.MaxChars,
		Timeout:    cfg.Embedding.Timeout(),
		CacheSize:  cfg.Embedding.CacheSize,
	}, a.Logger.With("component", "embedding"))

	backend, err := vectorstore.NewBackend(vectorstore.BackendConfig{
		Backend:      cfg.VectorStore.Backend,
		QdrantURL:    cfg.VectorStore.QdrantURL,
		QdrantAPIKey: cfg.VectorStore.QdrantAPIKey,
		HNSWM:        cfg.VectorStore.HNSWM,
		HNSWEfSearch: cfg.VectorStore.HNSWEfSearch,

		HNSWDir:           cfg.VectorStore.HNSWDir,
		HNSWFlushInterval: cfg.VectorStore.HNSWFlushInterval(),
		Logger:            a.Logger.With("component", "vectorstore"),
	})
	if err != nil {
		return fmt.Errorf("build vector backend failed: %w", err)
	}
	a.VectorStore = vectorstore.NewAdapter(backend, vectorstore.AdapterConfig{
		UpsertBatchSize: cfg.VectorStore.UpsertBatchSize,
		UpsertPause:     cfg.VectorStore.UpsertPause(),
		MaxQueryK:       cfg.VectorStore.MaxQueryK,
	}, a.Logger.With("component", "vectorstore"))

	userRepo := repository.NewUserRepository(a.MySQL)
	orgRepo := repository.NewOrganizationRepository(a.MySQL)
	chatRepo := repository.NewChatRepository(a.MySQL)
	messageRepo := repository.NewMessageRepository(a.MySQL)
	documentRepo := repository.NewDocumentRepository(a.MySQL)

	historyCache := cache.NewHistoryCache(
		a.Redis,
		time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)
	publisher := rabbitmqClient.NewTurnPublisher(a.MQConn, cfg.RabbitMQ.TurnIndexQueue)

	a.OrganizationService = app.NewOrganizationService(orgRepo)
	a.AuthService = app.NewAuthService(
		userRepo,
		orgRepo,
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute,
	)
	a.ChatService = app.NewChatService(
		chatRepo,
		messageRepo,
		app.NewRetriever(gateway, a.VectorStore, a.Logger.With("component", "retriever")),
		generator,
		publisher,
		historyCache,
		app.ChatConfig{
			ContextK:     cfg.Chat.ContextK,
			TitleChars:   cfg.Chat.TitleChars,
			HistoryLimit: cfg.Chat.HistoryLimit,
			SystemPrompt: cfg.LLM.SystemPrompt,
		},
		a.Logger.With("component", "chat"),
	)
	a.DocumentService = app.NewDocumentService(
		documentRepo,
		gateway,
		a.VectorStore,
		generator,
		app.IngestConfig{
			MaxFileBytes:      cfg.Ingest.MaxFileBytes,
			ChunkSize:         cfg.Ingest.ChunkSize,
			ChunkOverlap:      cfg.Ingest.ChunkOverlap,
			BatchSize:         cfg.Ingest.BatchSize,
			BatchPause:        cfg.Ingest.BatchPause(),
			QAMaxFileBytes:    cfg.Ingest.QAMaxFileBytes,
			QAContextChunks:   cfg.Ingest.QAContextChunks,
			TableRowsPerChunk: cfg.Ingest.TableRowsPerChunk,
		},
		a.Logger.With("component", "ingest"),
	)

	a.TurnIndexWorker = worker.NewTurnIndexWorker(a.MQConn, cfg.RabbitMQ.TurnIndexQueue, gateway, a.VectorStore, a.Logger)
	if err := a.TurnIndexWorker.Start(ctx); err != nil {
		return fmt.Errorf("start turn index worker failed: %w", err)
	}
	return nil
}

func (a *App) Close() error {
	var closeErr error
	if a.TurnIndexWorker != nil {
		a.TurnIndexWorker.Close()
	}
	if a.VectorStore != nil {
		if err := a.VectorStore.Close(); err != nil {
			a.Logger.Error("close vector store failed", "err", err)
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil && !a.MQConn.IsClosed() {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
