package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"MultiModel-Chat/internal/api"
	"MultiModel-Chat/internal/config"
	"MultiModel-Chat/internal/conversation"
	"MultiModel-Chat/internal/executor"
	"MultiModel-Chat/internal/llm/openai"
	"MultiModel-Chat/internal/observability/metrics"
	"MultiModel-Chat/internal/transcript"
	"MultiModel-Chat/pkg/logger"
)

// main 是多模型对话守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("multichatd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	// .env 不存在时忽略。
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("加载 .env 失败: %w", err)
	}

	cfg, err := config.Load(os.Getenv(config.EnvConfigPath))
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.Logging); err != nil {
		return err
	}
	defer logger.Sync()
	appLog := logger.Named("multichatd")

	if len(cfg.MissingEnv) > 0 {
		appLog.Warn("default endpoint environment incomplete", "missing", cfg.MissingEnv)
	}

	archive, err := openArchive(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer archive.Close()

	publisher, err := openPublisher(cfg.Events)
	if err != nil {
		return err
	}
	defer publisher.Close()

	runner := executor.NewPythonRunner(executor.Config{
		PythonExecutable: cfg.Executor.PythonExecutable,
		WorkDir:          cfg.Executor.WorkDir,
		DefaultTimeout:   cfg.Executor.DefaultTimeout,
		CPUSeconds:       cfg.Executor.CPUSeconds,
		MemoryMB:         cfg.Executor.MemoryMB,
		FileSizeMB:       cfg.Executor.FileSizeMB,
		OpenFiles:        cfg.Executor.OpenFiles,
		MaxOutputKB:      cfg.Executor.MaxOutputKB,
	})
	if !runner.Available() {
		appLog.Warn("python interpreter not found, code execution will report errors",
			"python_executable", cfg.Executor.PythonExecutable)
	}

	llmClient := openai.NewClient(openai.Config{Timeout: cfg.Conversation.QueryTimeout})

	orch := conversation.New(llmClient, runner, cfg.DefaultEndpoints(),
		conversation.WithPacer(buildPacer(cfg.Conversation)),
		conversation.WithCodeTimeout(cfg.Executor.DefaultTimeout),
		conversation.WithContextLimit(cfg.Conversation.ContextLimit),
		conversation.WithDefaultMaxTurns(cfg.Conversation.MaxTurns),
		conversation.WithArchive(archive),
		conversation.WithPublisher(publisher),
	)

	server := api.NewServer(api.Config{
		Address:           cfg.Server.Address,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
		CodeTimeout:       cfg.Executor.DefaultTimeout,
		Conversations:     orch,
		Runner:            runner,
		Archive:           archive,
		DefaultEndpoints:  orch.DefaultEndpoints(),
		MissingEnv:        cfg.MissingEnv,
	})

	if cfg.Metrics.Address != "" {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Metrics.Address); err != nil && !errors.Is(err, context.Canceled) {
				appLog.Error("metrics server stopped", "error", err)
			}
		}()
	}

	appLog.Info("multichatd starting",
		"address", cfg.Server.Address,
		"endpoints", len(cfg.Endpoints),
		"storage", cfg.Storage.Driver,
		"events", cfg.Events.Driver,
		"pacing", cfg.Conversation.Pacing,
	)
	return server.Start(ctx)
}

func buildPacer(cfg config.ConversationConfig) conversation.Pacer {
	switch cfg.Pacing {
	case "token_bucket":
		return conversation.NewTokenBucketPacer(cfg.PacingDelay, cfg.PacingBurst)
	case "none":
		return conversation.NoPacer{}
	default:
		return conversation.FixedPacer{Delay: cfg.PacingDelay}
	}
}

func openArchive(ctx context.Context, cfg config.StorageConfig) (transcript.Store, error) {
	switch cfg.Driver {
	case "file":
		return transcript.NewFileStore(transcript.FileStoreConfig{
			Dir:        cfg.File.Dir,
			MaxSizeMB:  cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
		})
	case "mysql":
		return transcript.NewMySQLStore(ctx, transcript.MySQLConfig{
			DSN:             cfg.MySQL.DSN,
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
		})
	case "redis":
		return transcript.NewRedisStore(ctx, transcript.RedisConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Prefix:    cfg.Redis.Prefix,
			TTL:       cfg.Redis.TTL,
			MaxRecent: cfg.Redis.MaxRecent,
		})
	case "memory", "":
		return transcript.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("未知的存储驱动: %s", cfg.Driver)
	}
}

func openPublisher(cfg config.EventsConfig) (transcript.Publisher, error) {
	switch cfg.Driver {
	case "rabbitmq":
		publisher, err := transcript.NewRabbitMQPublisher(transcript.RabbitMQConfig{
			URL:     cfg.RabbitMQ.URL,
			Queue:   cfg.RabbitMQ.Queue,
			Durable: cfg.RabbitMQ.Durable,
		})
		if err != nil {
			return nil, err
		}
		logger.L().Info("conversation events enabled", "queue", cfg.RabbitMQ.Queue)
		return publisher, nil
	case "none", "":
		return transcript.NoopPublisher{}, nil
	default:
		return nil, fmt.Errorf("未知的事件驱动: %s", cfg.Driver)
	}
}
