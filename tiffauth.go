// Package tiffauth wires the authentication client together: challenge
// dispatch, token validation, session persistence and the expiry
// coordinator, assembled from a single configuration.
package tiffauth

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tiffinwaleofficial/student-app-sub003/adapters/backend"
	"github.com/tiffinwaleofficial/student-app-sub003/adapters/events"
	"github.com/tiffinwaleofficial/student-app-sub003/adapters/provider"
	"github.com/tiffinwaleofficial/student-app-sub003/adapters/storage"
	"github.com/tiffinwaleofficial/student-app-sub003/config"
	"github.com/tiffinwaleofficial/student-app-sub003/metrics"
	"github.com/tiffinwaleofficial/student-app-sub003/ports"
	"github.com/tiffinwaleofficial/student-app-sub003/service"
)

// System is the assembled authentication client. Construct one with New,
// call Start to attach the background workers, and Close on shutdown.
type System struct {
	cfg    *config.Config
	logger *slog.Logger
	cancel context.CancelFunc

	registry *prometheus.Registry
	metrics  *metrics.Metrics

	storage    ports.Storage
	redisStore *storage.RedisStorage
	publisher  message.Publisher
	subscriber message.Subscriber
	eventPub   ports.EventPublisher

	challenges  *service.ChallengeService
	validator   *service.TokenValidator
	sessions    *service.SessionStore
	coordinator *service.ExpiryCoordinator
	revalidator *service.Revalidator
	client      *service.Client
}

// New assembles a System from configuration. It validates the config,
// connects the selected storage and event drivers and builds every
// service, but starts no background work.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*System, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = NewLogger(cfg.Log.Level)
	}

	s := &System{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	s.metrics = metrics.New(s.registry)

	if err := s.setupStorage(ctx); err != nil {
		return nil, err
	}
	if err := s.setupEvents(); err != nil {
		s.closeStorage()
		return nil, err
	}

	prov := provider.NewHTTPProvider(cfg.Provider.BaseURL, cfg.Provider.APIKey, cfg.Provider.Timeout.Std())
	be := backend.NewHTTPBackend(cfg.Backend.BaseURL, cfg.Backend.Timeout.Std())

	s.validator = service.NewTokenValidator(s.storage, cfg.Session.VerdictCacheTTL.Std(), logger, s.metrics)
	s.challenges = service.NewChallengeService(prov, service.BypassConfig{
		Numbers: cfg.OTP.TestNumbers,
		Code:    cfg.OTP.TestCode,
	}, logger, s.metrics)
	s.sessions = service.NewSessionStore(be, s.storage, s.validator, logger, s.metrics)
	s.coordinator = service.NewExpiryCoordinator(s.sessions, s.subscriber, logger, s.metrics)
	s.eventPub = events.NewWatermillPublisher(s.publisher)

	if cfg.Session.RevalidateEnabled {
		s.revalidator = service.NewRevalidator(s.sessions, be, s.eventPub, cfg.Session.RevalidateInterval.Std(), logger, s.metrics)
	}

	s.client = service.NewClient(s.challenges, s.validator, s.sessions, be, cfg.OTP.ResendCooldown.Std(), logger)

	return s, nil
}

// Start restores the persisted session and attaches the expiry
// coordinator and the periodic revalidator. The background workers run on
// a derived context that Close cancels, so Close works no matter what the
// caller does with ctx.
func (s *System) Start(ctx context.Context) error {
	if err := s.sessions.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize session: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := s.coordinator.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("failed to start expiry coordinator: %w", err)
	}
	if s.revalidator != nil {
		s.revalidator.Start(runCtx)
	}
	s.cancel = cancel

	return nil
}

// Close stops the background workers and releases the storage and event
// connections. Safe to call whether or not Start ran.
func (s *System) Close() error {
	var errs []string

	if s.cancel != nil {
		s.cancel()
		if s.revalidator != nil {
			s.revalidator.Stop()
		}
		if err := s.subscriber.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		s.coordinator.Wait()
	}

	if err := s.publisher.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := s.closeStorage(); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("close: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Client returns the high level authentication facade
func (s *System) Client() *service.Client {
	return s.client
}

// Sessions returns the session store
func (s *System) Sessions() *service.SessionStore {
	return s.sessions
}

// Challenges returns the passcode challenge service
func (s *System) Challenges() *service.ChallengeService {
	return s.challenges
}

// Validator returns the token validator
func (s *System) Validator() *service.TokenValidator {
	return s.validator
}

// Events returns the expiry event publisher
func (s *System) Events() ports.EventPublisher {
	return s.eventPub
}

// Registry returns the metrics registry for scraping
func (s *System) Registry() *prometheus.Registry {
	return s.registry
}

func (s *System) setupStorage(ctx context.Context) error {
	switch s.cfg.Storage.Driver {
	case config.StorageDriverMemory:
		s.storage = storage.NewMemoryStorage()
	case config.StorageDriverRedis:
		rs, err := storage.NewRedisStorageFromURL(ctx, s.cfg.Storage.RedisURL, s.cfg.Storage.KeyPrefix)
		if err != nil {
			return fmt.Errorf("failed to connect storage: %w", err)
		}
		s.redisStore = rs
		s.storage = rs
	default:
		return fmt.Errorf("unknown storage driver %q", s.cfg.Storage.Driver)
	}
	return nil
}

func (s *System) setupEvents() error {
	switch s.cfg.Events.Driver {
	case config.EventsDriverChannel:
		bus := events.NewGoChannelBus(s.logger)
		s.publisher = bus
		s.subscriber = bus
	case config.EventsDriverRedis:
		// Validate guarantees the redis storage driver is selected here
		pub, err := events.NewRedisStreamPublisher(s.redisStore.Client(), s.logger)
		if err != nil {
			return fmt.Errorf("failed to create event publisher: %w", err)
		}
		sub, err := events.NewRedisStreamSubscriber(s.redisStore.Client(), s.cfg.Events.ConsumerGroup, s.logger)
		if err != nil {
			return fmt.Errorf("failed to create event subscriber: %w", err)
		}
		s.publisher = pub
		s.subscriber = sub
	default:
		return fmt.Errorf("unknown events driver %q", s.cfg.Events.Driver)
	}
	return nil
}

func (s *System) closeStorage() error {
	if s.redisStore != nil {
		return s.redisStore.Close()
	}
	return nil
}

// NewLogger builds a text slog logger at the given level
func NewLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
