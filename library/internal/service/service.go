package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Astemirdum/library-circulation/library/internal/model"
	libraryRepo "github.com/Astemirdum/library-circulation/library/internal/repository"
	"github.com/Astemirdum/library-circulation/pkg/mailer"
)

//go:generate go run github.com/golang/mock/mockgen -source=service.go -destination=mocks/mock.go

type Enqueuer interface {
	Enqueue(topic string, v any) error
}

type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type Sender interface {
	Send(ctx context.Context, msg mailer.Message) error
}

type Config struct {
	BaseURL          string        `envconfig:"BASE_URL" default:"http://localhost:8080"`
	TestEmail        string        `envconfig:"TEST_EMAIL"`
	Debug            bool          `envconfig:"-"`
	SweepInterval    time.Duration `envconfig:"SWEEP_INTERVAL" default:"10m"`
	EmailMaxAttempts int           `envconfig:"EMAIL_MAX_ATTEMPTS" default:"5"`
	EmailBackoff     time.Duration `envconfig:"EMAIL_BACKOFF" default:"5s"`
	EmailMaxBackoff  time.Duration `envconfig:"EMAIL_MAX_BACKOFF" default:"2m"`
}

type Service struct {
	log      *zap.Logger
	repo     libraryRepo.Repository
	enqueuer Enqueuer
	limiter  Limiter
	sender   Sender
	cfg      Config
	now      func() time.Time
	newCode  func() string
}

type Option func(*Service)

func WithConfig(cfg Config) Option {
	return func(s *Service) { s.cfg = cfg }
}

func WithLimiter(l Limiter) Option {
	return func(s *Service) { s.limiter = l }
}

func WithSender(sender Sender) Option {
	return func(s *Service) { s.sender = sender }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithCodeGenerator(gen func() string) Option {
	return func(s *Service) { s.newCode = gen }
}

func NewService(repo libraryRepo.Repository, enqueuer Enqueuer, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		log:      log.Named("service"),
		repo:     repo,
		enqueuer: enqueuer,
		cfg: Config{
			EmailMaxAttempts: 5,
			EmailBackoff:     5 * time.Second,
			EmailMaxBackoff:  2 * time.Minute,
		},
		now:     func() time.Time { return time.Now().UTC() },
		newCode: generateCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) settings(ctx context.Context, repo libraryRepo.Repository) model.Settings {
	kv, err := repo.GetSettings(ctx)
	if err != nil {
		s.log.Warn("settings unavailable, using defaults", zap.Error(err))
		return model.DefaultSettings()
	}
	settings, err := model.ParseSettings(kv)
	if err != nil {
		s.log.Warn("settings invalid, using defaults", zap.Error(err))
	}
	return settings
}

// outbox collects side effects that are published only after commit.
type outbox struct {
	emails []model.EmailJob
	events []model.CirculationEvent
}
