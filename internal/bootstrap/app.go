package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"gopherai-assistant/internal/ai"
	"gopherai-assistant/internal/app"
	"gopherai-assistant/internal/cache"
	"gopherai-assistant/internal/config"
	mongoClient "gopherai-assistant/internal/platform/mongo"
	mysqlClient "gopherai-assistant/internal/platform/mysql"
	rabbitmqClient "gopherai-assistant/internal/platform/rabbitmq"
	redisClient "gopherai-assistant/internal/platform/redis"
	"gopherai-assistant/internal/repository"
	"gopherai-assistant/internal/store"
	"gopherai-assistant/internal/worker"
)

// Repository is a store backend the service can health-check and close.
type Repository interface {
	store.Repository
	Ping(ctx context.Context) error
	Close() error
}

type App struct {
	Config *config.Config
	Logger *zap.Logger

	Repo       Repository
	Redis      redis.UniversalClient
	MQConn     *amqp.Connection
	Publisher  *rabbitmqClient.ChangePublisher
	ChangeFeed *worker.ChangeFeedWorker

	Store      *store.Store
	Gateway    app.Gateway
	Sessions   *app.SessionService
	Assistants *app.Registry

	StartedAt time.Time
}

func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		Config:    cfg,
		Logger:    logger,
		StartedAt: time.Now(),
	}

	repo, err := OpenRepository(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Repo = repo

	storeOpts := store.Options{
		Logger: logger.Named("store"),
	}

	if cfg.Redis.Addr != "" {
		redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.Redis = redisCli
		storeOpts.Cache = cache.NewHistoryCache(redisCli, cfg.HistoryTTL(), cfg.HistoryDirtyTTL())
	}

	if cfg.RabbitMQ.URL != "" {
		mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.ChangeExchange)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.MQConn = mqConn
		a.Publisher = rabbitmqClient.NewChangePublisher(mqConn, cfg.RabbitMQ.ChangeExchange)
		storeOpts.Publisher = a.Publisher
	}

	a.Store = store.New(repo, storeOpts)

	if a.MQConn != nil {
		a.ChangeFeed = worker.NewChangeFeedWorker(a.MQConn, a.Store, cfg.RabbitMQ.ChangeExchange, logger.Named("change_feed"))
		if err := a.ChangeFeed.Start(ctx); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("start change feed worker failed: %w", err)
		}
	}

	a.Gateway = NewGateway(cfg, logger)
	a.Sessions = app.NewSessionService(cfg.Auth.JWTSecret, cfg.JWTExpiration())
	a.Assistants = app.NewRegistry(cfg.App.ID, a.Gateway, a.Store, cfg.AssistantIdleTTL(), logger.Named("assistant"))

	logger.Info("application initialized",
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.Bool("redis_cache", a.Redis != nil),
		zap.Bool("change_feed", a.MQConn != nil),
		zap.String("instance_id", a.Store.InstanceID()),
	)
	return a, nil
}

// NewGateway builds the provider client selected by llm.provider.
func NewGateway(cfg *config.Config, logger *zap.Logger) app.Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	clientCfg := ai.ClientConfig{
		BaseURL:        cfg.LLM.BaseURL,
		APIKey:         cfg.LLM.APIKey,
		Model:          cfg.LLM.Model,
		RequestTimeout: cfg.LLMRequestTimeout(),
		MaxAttempts:    cfg.LLM.MaxAttempts,
		BaseDelay:      cfg.LLMBaseDelay(),
		RateLimit:      cfg.LLM.RateLimit,
		RateBurst:      cfg.LLM.RateBurst,
	}
	if cfg.LLM.Provider == config.ProviderOpenAI {
		return ai.NewOpenAICompatibleClient(clientCfg, logger.Named("gateway"))
	}
	return ai.NewGeminiClient(clientCfg, logger.Named("gateway"))
}

// OpenRepository connects the configured storage driver and prepares its schema.
func OpenRepository(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Repository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Storage.Driver {
	case config.DriverMySQL:
		db, err := mysqlClient.New(ctx, mysqlClient.Options{
			DSN:          cfg.MySQLDSN(),
			MaxIdleConns: cfg.MySQL.MaxIdleConns,
			MaxOpenConns: cfg.MySQL.MaxOpenConns,
			Verbose:      cfg.App.Env == "dev",
		})
		if err != nil {
			return nil, err
		}
		repo := repository.NewInteractionRepository(db)
		if err := repo.Migrate(); err != nil {
			_ = repo.Close()
			return nil, err
		}
		return repo, nil

	case config.DriverSQLite:
		return repository.OpenSQLite(cfg.SQLite.Path)

	case config.DriverMongo:
		client, err := mongoClient.New(ctx, cfg.Mongo.URI, cfg.Mongo.MaxPoolSize)
		if err != nil {
			return nil, err
		}
		repo := repository.NewMongoRepository(client, cfg.Mongo.Database)
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = repo.Close()
			return nil, err
		}
		return repo, nil

	case config.DriverMemory:
		logger.Warn("memory storage driver selected, history is lost on restart")
		return repository.NewMemoryRepository(), nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

func (a *App) Close() error {
	var errs []error
	if a.Assistants != nil {
		a.Assistants.Close()
	}
	if a.ChangeFeed != nil {
		a.ChangeFeed.Close()
	}
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.MQConn != nil && !a.MQConn.IsClosed() {
		if err := a.MQConn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Repo != nil {
		if err := a.Repo.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
