package app

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/Astemirdum/library-circulation/library/config"
	"github.com/Astemirdum/library-circulation/library/internal/handler"
	"github.com/Astemirdum/library-circulation/library/internal/model"
	"github.com/Astemirdum/library-circulation/library/internal/repository"
	"github.com/Astemirdum/library-circulation/library/internal/server"
	"github.com/Astemirdum/library-circulation/library/internal/service"
	"github.com/Astemirdum/library-circulation/library/migrations"
	cb "github.com/Astemirdum/library-circulation/pkg/circuit_breaker"
	"github.com/Astemirdum/library-circulation/pkg/kafka"
	"github.com/Astemirdum/library-circulation/pkg/logger"
	"github.com/Astemirdum/library-circulation/pkg/mailer"
	"github.com/Astemirdum/library-circulation/pkg/postgres"
	"github.com/Astemirdum/library-circulation/pkg/ratelimit"
)

const shutdownTimeout = 5 * time.Second

type components struct {
	db       *pgxpool.Pool
	enqueuer *kafka.Enqueuer
	redis    *redis.Client
	svc      *service.Service
}

func (c *components) Close(log *zap.Logger) {
	if c.enqueuer != nil {
		if err := c.enqueuer.Close(); err != nil {
			log.Error("kafka producer close", zap.Error(err))
		}
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			log.Error("redis close", zap.Error(err))
		}
	}
	if c.db != nil {
		c.db.Close()
	}
}

func build(ctx context.Context, cfg config.Config, log *zap.Logger) (*components, error) {
	c := &components{}
	db, err := postgres.NewPostgresDB(ctx, &cfg.Database, migrations.MigrationFiles)
	if err != nil {
		return nil, errors.Wrap(err, "db init")
	}
	c.db = db
	repo, err := repository.NewRepository(db, log)
	if err != nil {
		c.Close(log)
		return nil, errors.Wrap(err, "repository")
	}

	producer, err := kafka.NewProducer(cfg.Kafka)
	if err != nil {
		c.Close(log)
		return nil, errors.Wrap(err, "kafka producer")
	}
	c.enqueuer = kafka.NewEnqueuer(producer)

	c.redis = ratelimit.NewRedisClient(cfg.Redis)
	limiter, err := ratelimit.NewFixedWindowLimiter(c.redis, "library:verify", cfg.Redis.Attempts, cfg.Redis.Window)
	if err != nil {
		c.Close(log)
		return nil, errors.Wrap(err, "verify limiter")
	}

	workflow := cfg.Workflow
	workflow.Debug = cfg.Log.LogLevel == zapcore.DebugLevel
	sender := mailer.NewSMTPSender(cfg.SMTP, cb.New(cfg.Breaker))

	c.svc = service.NewService(repo, c.enqueuer, log,
		service.WithConfig(workflow),
		service.WithLimiter(limiter),
		service.WithSender(sender),
	)
	return c, nil
}

func Run(cfg config.Config) error {
	log := logger.NewLogger(cfg.Log, "library")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := build(ctx, cfg, log)
	if err != nil {
		log.Error("init", zap.Error(err))
		return err
	}
	defer c.Close(log)

	consumer, err := kafka.NewConsumer(cfg.Kafka, kafka.MailerConsumerGroup)
	if err != nil {
		log.Error("kafka.NewConsumer", zap.Error(err))
		return err
	}
	retryConsumer, err := kafka.NewConsumer(cfg.Kafka, kafka.MailerRetryConsumerGroup)
	if err != nil {
		log.Error("kafka.NewConsumer retry", zap.Error(err))
		return err
	}

	h := handler.New(c.svc, log)
	srv := server.NewServer(cfg.Server, h.NewRouter())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server start ON: ",
			zap.String("addr",
				net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)))
		return srv.Run()
	})
	g.Go(func() error {
		return kafka.Consume(gctx, consumer, handler.NewEmailConsumer(c.svc.DeliverEmail, log), log, kafka.EmailTopic)
	})
	g.Go(func() error {
		return kafka.Consume(gctx, retryConsumer, handler.NewEmailConsumer(c.svc.DeliverEmail, log), log, kafka.EmailRetryTopic)
	})
	g.Go(func() error {
		runSweeper(gctx, c.svc, cfg.Workflow.SweepInterval, log)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Debug("Graceful shutdown", zap.Error(context.Cause(gctx)))

		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Stop(closeCtx); err != nil {
			log.Error("srv.Stop", zap.Error(err))
		}
		return nil
	})

	err = g.Wait()
	log.Info("Graceful shutdown finished")
	return err
}

func runSweeper(ctx context.Context, svc *service.Service, interval time.Duration, log *zap.Logger) {
	if interval <= 0 {
		log.Info("sweeper disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.Sweep(ctx); err != nil {
				log.Error("sweep", zap.Error(err))
			}
		}
	}
}

// Sweep runs one reconciliation pass outside the server process.
func Sweep(ctx context.Context, cfg config.Config) (model.SweepReport, error) {
	log := logger.NewLogger(cfg.Log, "librarian")
	c, err := build(ctx, cfg, log)
	if err != nil {
		return model.SweepReport{}, err
	}
	defer c.Close(log)
	return c.svc.Sweep(ctx)
}

// Migrate applies the embedded migrations and exits.
func Migrate(ctx context.Context, cfg config.Config) error {
	db, err := postgres.NewPostgresDB(ctx, &cfg.Database, migrations.MigrationFiles)
	if err != nil {
		return errors.Wrap(err, "migrate")
	}
	db.Close()
	return nil
}
