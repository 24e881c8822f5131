package main

import (
	"context"
	"fmt"

	"github.com/commutewatch/riskengine/internal/adapters/repository"
	"github.com/commutewatch/riskengine/internal/adapters/repository/mongostore"
	"github.com/commutewatch/riskengine/internal/adapters/repository/pgstore"
	"github.com/commutewatch/riskengine/internal/config"
	"github.com/commutewatch/riskengine/pkg/logger"
)

// stores holds the configured storage backends and how to release them.
type stores struct {
	reports repository.ReportStore
	routes  repository.RouteStore
	scores  repository.ScoreStore
	closers []func(context.Context) error
	log     logger.Logger
}

// openStores connects the report and score stores named by cfg.
func openStores(ctx context.Context, cfg *config.Config, log logger.Logger) (*stores, error) {
	st := &stores{log: log}

	switch cfg.ReportStore {
	case config.StoreMongo:
		m, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDB, log.Named("mongo"))
		if err != nil {
			return nil, fmt.Errorf("report store: %w", err)
		}
		st.reports, st.routes = m, m
		st.closers = append(st.closers, m.Close)
	default:
		mem := repository.NewMemoryReportStore()
		st.reports, st.routes = mem, mem
	}

	switch cfg.ScoreStore {
	case config.StorePostgres:
		pool, err := pgstore.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			st.Close(ctx)
			return nil, fmt.Errorf("score store: %w", err)
		}
		ps := pgstore.NewScoreStore(pool)
		if err := ps.EnsureSchema(ctx); err != nil {
			pool.Close()
			st.Close(ctx)
			return nil, fmt.Errorf("score store: %w", err)
		}
		st.scores = ps
		st.closers = append(st.closers, func(context.Context) error {
			pool.Close()
			return nil
		})
	default:
		st.scores = repository.NewMemoryScoreStore()
	}

	log.Info(ctx, "stores ready",
		logger.String("report_store", cfg.ReportStore),
		logger.String("score_store", cfg.ScoreStore))
	return st, nil
}

// Close releases backends in reverse order of opening.
func (s *stores) Close(ctx context.Context) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			s.log.Error(ctx, "store close failed", logger.Error(err))
		}
	}
	s.closers = nil
}
