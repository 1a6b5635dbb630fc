// Package app assembles the store and services shared by the dctwin binaries.
package app

import (
	"fmt"

	"go.uber.org/zap"

	"dctwin/internal/clock"
	"dctwin/internal/config"
	"dctwin/internal/core/anomaly"
	"dctwin/internal/core/lifecycle"
	"dctwin/internal/domain"
	"dctwin/internal/notify"
	"dctwin/internal/repository/sqlstore"
	"dctwin/internal/service"
)

// App holds the wired services
type App struct {
	Store     *sqlstore.Store
	Events    *service.EventBus
	Inventory *service.InventoryService
	Anomalies *service.AnomalyService
	Capacity  *service.CapacityService
}

// New opens the database, runs migrations and wires every service
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	store, err := sqlstore.Open(sqlstore.Options{
		Dialect:  sqlstore.Dialect(cfg.Database.Dialect),
		DSN:      cfg.Database.DSN,
		MaxConns: cfg.Database.MaxConns,
		MaxIdle:  cfg.Database.MaxIdle,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	notifier, err := newNotifier(cfg.Notifier, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	clk := clock.RealClock{}
	bus := service.NewEventBus()
	engine := lifecycle.NewEngine(store, clk, logger)
	detector := anomaly.NewDetector(cfg.Anomaly, clk)

	return &App{
		Store:     store,
		Events:    bus,
		Inventory: service.NewInventoryService(store, engine, bus, clk, logger),
		Anomalies: service.NewAnomalyService(store, detector, bus, notifier, clk, logger),
		Capacity:  service.NewCapacityService(store, cfg.Capacity, logger),
	}, nil
}

// newNotifier returns nil when no webhook URL is configured
func newNotifier(cfg config.NotifierConfig, logger *zap.Logger) (service.AnomalyNotifier, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	minSeverity, err := domain.ParseSeverity(cfg.MinSeverity)
	if err != nil {
		return nil, fmt.Errorf("notifier.min_severity: %w", err)
	}
	return notify.NewWebhook(notify.Options{
		URL:         cfg.URL,
		Token:       cfg.Token,
		MinSeverity: minSeverity,
		Timeout:     cfg.Timeout.Duration(),
		RetryCount:  cfg.RetryCount,
	}, logger), nil
}

// Close releases the database
func (a *App) Close() error {
	return a.Store.Close()
}
