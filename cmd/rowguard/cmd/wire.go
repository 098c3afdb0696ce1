package cmd

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/veridian-systems/rowguard/internal/config"
	"github.com/veridian-systems/rowguard/internal/handlers"
	"github.com/veridian-systems/rowguard/internal/logging"
	"github.com/veridian-systems/rowguard/internal/pipeline"
	"github.com/veridian-systems/rowguard/internal/repository"
	"github.com/veridian-systems/rowguard/internal/sink"
	"github.com/veridian-systems/rowguard/internal/source"
	"github.com/veridian-systems/rowguard/internal/state"
)

// deps is the wired object graph shared by serve and run.
type deps struct {
	coordinator *pipeline.Coordinator
	state       *state.Manager
	pinger      handlers.Pinger
	closers     []func()
}

func (d *deps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// buildDeps constructs sources, sink, state, and coordinator from config.
func buildDeps(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*deps, error) {
	d := &deps{}

	// Rule source.
	var rules source.RuleSource
	var repo *repository.PostgresRuleSource
	switch cfg.Sources.Rules.Type {
	case "file":
		if cfg.Sources.Rules.Path == "" {
			return nil, fmt.Errorf("sources.rules.path is required for the file rule source")
		}
		rules = source.NewFileRuleSource(cfg.Sources.Rules.Path)
	case "postgres":
		var err error
		repo, err = repository.NewPostgresRuleSource(ctx, cfg.Database.Postgres.ConnString())
		if err != nil {
			return nil, fmt.Errorf("connect rule store: %w", err)
		}
		d.closers = append(d.closers, repo.Close)
		rules = repo
		d.pinger = repo
	default:
		return nil, fmt.Errorf("unknown rule source type %q", cfg.Sources.Rules.Type)
	}

	// Violation sink.
	var writer sink.Writer
	switch cfg.Sink.Type {
	case "postgres":
		if repo == nil {
			return nil, fmt.Errorf("the postgres sink requires the postgres rule source")
		}
		writer = sink.NewPostgresWriter(repo.Pool())
	case "opensearch":
		w, err := sink.NewOpenSearchWriter(sink.OpenSearchConfig{
			URL:      cfg.Sink.OpenSearch.URL,
			Username: cfg.Sink.OpenSearch.Username,
			Password: cfg.Sink.OpenSearch.Password,
			Insecure: cfg.Sink.OpenSearch.Insecure,
			Index:    cfg.Sink.OpenSearch.Index,
		})
		if err != nil {
			d.close()
			return nil, fmt.Errorf("connect violation sink: %w", err)
		}
		writer = w
	default:
		d.close()
		return nil, fmt.Errorf("unknown sink type %q", cfg.Sink.Type)
	}

	// Run state.
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			d.close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		redisClient = redis.NewClient(opts)
		d.closers = append(d.closers, func() { _ = redisClient.Close() })
	}
	d.state = state.NewManager(redisClient, cfg.Redis.Enabled)

	records := source.NewFileRecordSource(cfg.Sources.Records.Dir)
	d.coordinator = pipeline.New(rules, records, writer, d.state, cfg.Pipeline, logger)
	return d, nil
}
