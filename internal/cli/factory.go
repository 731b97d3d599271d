package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/config"
	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/adapters/file"
	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/adapters/postgres"
	"github.com/aretw0/parley/pkg/adapters/redis"
	"github.com/aretw0/parley/pkg/adapters/textnow"
	"github.com/aretw0/parley/pkg/adapters/twilio"
	"github.com/aretw0/parley/pkg/observability"
	"github.com/aretw0/parley/pkg/persistence/middleware"
	"github.com/aretw0/parley/pkg/phone"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
)

// Runtime is a started engine together with what it was built from.
type Runtime struct {
	Engine   *parley.Engine
	Config   *config.Config
	Logger   *slog.Logger
	Metrics  *observability.Metrics
	Registry *prometheus.Registry

	closers []func() error
}

// Close releases store connections.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	return errors.Join(errs...)
}

// NewLogger builds the application logger from the log section.
func NewLogger(cfg config.Log) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return logging.New(level, logging.Format(cfg.Format)), nil
}

// Build wires store, transport and engine from configuration and starts the
// engine. v is kept so a stale TextNow session can be re-read.
func Build(ctx context.Context, v *viper.Viper, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	rt := &Runtime{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
	}
	rt.Metrics = observability.NewMetrics(rt.Registry)

	// 1. Persistence
	store, locker, err := rt.openStore(ctx, cfg.Store)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	// 2. Transport
	transport, err := openTransport(v, cfg.Transport, logger)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	// 3. Engine
	opts := []parley.Option{
		parley.WithLogger(logger),
		parley.WithLifecycleHooks(rt.Metrics.Hooks()),
		parley.WithLifecycleHooks(observability.LogHooks(logger)),
		parley.WithNormalizer(phone.Normalizer{CountryCode: cfg.Phone.CountryCode, NationalLength: cfg.Phone.NationalLength}),
		parley.WithAllowlist(cfg.Ingest.Allowlist...),
		parley.WithDedupCapacity(cfg.Ingest.DedupCapacity),
		parley.WithPollInterval(cfg.Ingest.Interval),
	}
	if locker != nil {
		opts = append(opts, parley.WithLocker(locker))
	}
	rt.Engine = parley.New(store, transport, opts...)
	if err := rt.Engine.Start(ctx); err != nil {
		_ = rt.Close()
		return nil, err
	}

	// 4. Seed contacts
	if cfg.Contacts.Seed != "" {
		f, err := os.Open(cfg.Contacts.Seed)
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("open contact seed: %w", err)
		}
		defer f.Close()
		res, err := ImportContacts(ctx, rt.Engine, f)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		logger.Info("Contacts seeded", "added", len(res.Added), "skipped", len(res.Skipped))
	}
	return rt, nil
}

// openStore returns the middleware-wrapped store and, when enabled, a redis locker.
func (rt *Runtime) openStore(ctx context.Context, cfg config.Store) (ports.StateStore, ports.DistributedLocker, error) {
	var (
		store  ports.StateStore
		locker ports.DistributedLocker
	)
	switch cfg.Driver {
	case "memory":
		store = memory.NewStore()
	case "file":
		store = file.New(cfg.Dir)
	case "redis":
		rs := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, redis.WithPrefix(cfg.Redis.Prefix))
		if err := rs.Client().Ping(ctx).Err(); err != nil {
			_ = rs.Close()
			return nil, nil, fmt.Errorf("connect to redis %s: %w", cfg.Redis.Addr, err)
		}
		rt.closers = append(rt.closers, rs.Close)
		store = rs
		if cfg.Redis.Lock {
			locker = redis.NewLocker(rs.Client(), cfg.Redis.Prefix)
		}
	case "postgres":
		ps, err := postgres.Open(cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, err
		}
		rt.closers = append(rt.closers, ps.Close)
		store = ps
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}

	// Mask PII -> Encrypt -> Store
	var mws []middleware.Middleware
	if len(cfg.RedactPatterns) > 0 {
		pii, err := middleware.NewPIIMiddleware(cfg.RedactPatterns)
		if err != nil {
			return nil, nil, err
		}
		mws = append(mws, pii)
	}
	if cfg.EncryptionKey != "" {
		enc, err := encryption(cfg)
		if err != nil {
			return nil, nil, err
		}
		mws = append(mws, enc)
	}
	return middleware.Chain(store, mws...), locker, nil
}

func encryption(cfg config.Store) (middleware.Middleware, error) {
	active, err := middleware.DecodeKey(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("store.encryption_key: %w", err)
	}
	ec := middleware.EncryptionConfig{ActiveKey: active}
	for i, s := range cfg.FallbackKeys {
		k, err := middleware.DecodeKey(s)
		if err != nil {
			return nil, fmt.Errorf("store.fallback_keys[%d]: %w", i, err)
		}
		ec.FallbackKeys = append(ec.FallbackKeys, k)
	}
	return middleware.NewEncryptionMiddleware(ec)
}

func openTransport(v *viper.Viper, cfg config.Transport, logger *slog.Logger) (ports.MessageTransport, error) {
	switch cfg.Driver {
	case "memory":
		return memory.NewTransport(), nil
	case "textnow":
		creds := textnow.Credentials{
			Username:   cfg.TextNow.Username,
			ConnectSID: cfg.TextNow.ConnectSID,
			CSRF:       cfg.TextNow.CSRF,
		}
		return textnow.New(creds,
			textnow.WithBaseURL(cfg.TextNow.BaseURL),
			textnow.WithTimeout(cfg.TextNow.Timeout),
			textnow.WithLogger(logger),
			textnow.WithCredentialSource(reloadTextNow(v)),
		)
	case "twilio":
		return twilio.New(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.From,
			twilio.WithLogger(logger),
		)
	}
	return nil, fmt.Errorf("unknown transport driver %q", cfg.Driver)
}

// reloadTextNow re-reads .env and the config file so fresh browser cookies
// can be dropped in without a restart.
func reloadTextNow(v *viper.Viper) textnow.CredentialSource {
	return func(ctx context.Context) (textnow.Credentials, error) {
		if err := godotenv.Overload(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return textnow.Credentials{}, fmt.Errorf("reload .env: %w", err)
		}
		if v.ConfigFileUsed() != "" {
			if err := v.ReadInConfig(); err != nil {
				return textnow.Credentials{}, fmt.Errorf("reload config: %w", err)
			}
		}
		return textnow.Credentials{
			Username:   v.GetString("transport.textnow.username"),
			ConnectSID: v.GetString("transport.textnow.connect_sid"),
			CSRF:       v.GetString("transport.textnow.csrf"),
		}, nil
	}
}
