package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/agentdesk/agent"
	"github.com/hupe1980/agentdesk/config"
	"github.com/hupe1980/agentdesk/events"
	"github.com/hupe1980/agentdesk/flow"
	"github.com/hupe1980/agentdesk/internal/sqldb"
	"github.com/hupe1980/agentdesk/internal/tokens"
	"github.com/hupe1980/agentdesk/logging"
	"github.com/hupe1980/agentdesk/model"
	anthropicmodel "github.com/hupe1980/agentdesk/model/anthropic"
	openaimodel "github.com/hupe1980/agentdesk/model/openai"
	"github.com/hupe1980/agentdesk/ratelimit"
	"github.com/hupe1980/agentdesk/router"
	"github.com/hupe1980/agentdesk/runner"
	"github.com/hupe1980/agentdesk/server"
	"github.com/hupe1980/agentdesk/session"
	"github.com/hupe1980/agentdesk/store"
	"github.com/hupe1980/agentdesk/tool/commerce"
)

// app holds the wired service and everything that needs closing.
type app struct {
	server  *server.Server
	closers []func() error
}

// Close releases resources in reverse construction order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func build(ctx context.Context, cfg *config.Config, logger logging.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	entities, conversations, err := openStores(ctx, cfg.Storage, a)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.Seed {
		if err := store.Seed(ctx, entities); err != nil {
			return nil, fmt.Errorf("seed store: %w", err)
		}
		logger.Info("storage.seeded", "driver", cfg.Storage.Driver)
	}

	var profiles []byte
	if path := cfg.Agents.ProfilesPath; path != "" {
		if profiles, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("read agent profiles: %w", err)
		}
	}
	selector, err := agent.NewSelector(commerce.Toolsets(entities, entities, conversations), func(o *agent.SelectorOptions) {
		if profiles != nil {
			o.Profiles = profiles
		}
	})
	if err != nil {
		return nil, fmt.Errorf("build agent profiles: %w", err)
	}

	agentModel, err := newModel(cfg.Model, cfg.Model.Model)
	if err != nil {
		return nil, err
	}
	routerModel := agentModel
	if cfg.Router.Model != "" {
		if routerModel, err = newModel(cfg.Model, cfg.Router.Model); err != nil {
			return nil, err
		}
	}

	rt := router.New(routerModel, func(o *router.Options) {
		o.Logger = logger
		o.OrderIDFallback = cfg.Router.OrderIDFallback
		o.HistoryMessages = cfg.Router.HistoryMessages
	})

	fl := flow.New(agentModel, func(o *flow.Options) {
		o.Logger = logger
		o.MaxSteps = cfg.Flow.MaxSteps
		if cfg.Flow.FallbackMessage != "" {
			o.FallbackMessage = cfg.Flow.FallbackMessage
		}
		if cfg.Flow.UnknownOutcomeMessage != "" {
			o.UnknownOutcomeMessage = cfg.Flow.UnknownOutcomeMessage
		}
		if cfg.Flow.MaxHistoryTokens > 0 {
			counter := tokens.NewCounter(cfg.Model.Model)
			o.RequestProcessors = append(o.RequestProcessors, flow.NewHistoryProcessor(counter, cfg.Flow.MaxHistoryTokens, logger))
		}
	})

	publisher, err := newPublisher(cfg.Events, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, publisher.Close)

	run := runner.New(conversations, rt, selector, fl, func(o *runner.Options) {
		o.Logger = logger
		o.Publisher = publisher
		o.MaxConcurrentTurns = cfg.Flow.MaxConcurrentTurns
	})

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limitStore, err := newLimitStore(ctx, cfg.RateLimit, a)
		if err != nil {
			return nil, err
		}
		limiter = ratelimit.New(limitStore, func(o *ratelimit.Options) {
			o.Logger = logger
			o.Max = cfg.RateLimit.Max
			o.Window = cfg.RateLimit.Window
		})
	}

	a.server = server.New(run, conversations, func(o *server.Options) {
		o.Logger = logger
		o.Port = cfg.Server.Port
		o.DefaultUserID = cfg.Server.DefaultUserID
		o.RequestTimeout = cfg.Server.RequestTimeout
		o.Limiter = limiter
		o.Agents = selector.Names()
		o.ServiceName = cfg.Telemetry.ServiceName
	})
	return a, nil
}

func openStores(ctx context.Context, cfg config.StorageConfig, a *app) (store.Store, session.Store, error) {
	if cfg.Driver == "memory" {
		return store.NewMemoryStore(), session.NewMemoryStore(), nil
	}

	db, err := sqldb.Open(ctx, sqldb.Config{Driver: cfg.Driver, DSN: cfg.DSN})
	if err != nil {
		return nil, nil, err
	}
	a.closers = append(a.closers, db.Close)

	entities, err := store.NewSQLStore(ctx, db)
	if err != nil {
		return nil, nil, err
	}
	conversations, err := session.NewSQLStore(ctx, db)
	if err != nil {
		return nil, nil, err
	}
	return entities, conversations, nil
}

func newModel(cfg config.ModelConfig, name string) (model.Model, error) {
	switch cfg.Provider {
	case "openai":
		return openaimodel.NewModel(func(o *openaimodel.Options) {
			o.Model = name
			o.Temperature = cfg.Temperature
			o.MaxCompletionTokens = cfg.MaxTokens
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		}), nil
	case "anthropic":
		return anthropicmodel.NewModel(func(o *anthropicmodel.Options) {
			o.Model = anthropic.Model(name)
			o.Temperature = cfg.Temperature
			o.MaxTokens = cfg.MaxTokens
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		}), nil
	case "mock":
		return model.NewMockModel(name, "mock"), nil
	default:
		return nil, fmt.Errorf("unsupported model provider %q", cfg.Provider)
	}
}

func newPublisher(cfg config.EventsConfig, logger logging.Logger) (events.Publisher, error) {
	if cfg.Backend == "amqp" {
		p, err := events.NewAMQPPublisher(events.AMQPConfig{URL: cfg.URL, Exchange: cfg.Exchange, RoutingKey: cfg.RoutingKey})
		if err != nil {
			return nil, err
		}
		logger.Info("events.amqp.connected", "exchange", cfg.Exchange, "routing_key", cfg.RoutingKey)
		return p, nil
	}
	return events.NewLogPublisher(logger), nil
}

func newLimitStore(ctx context.Context, cfg config.RateLimitConfig, a *app) (ratelimit.Store, error) {
	if cfg.Backend == "redis" {
		s, err := ratelimit.NewRedisStore(ctx, ratelimit.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	}
	return ratelimit.NewMemoryStore(cfg.Capacity)
}
