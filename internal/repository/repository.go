package repository

import (
	"context"

	"dctwin/internal/domain"
)

// Store opens transactions over the inventory model
type Store interface {
	// WithTx runs fn in a read-write transaction with at least snapshot
	// isolation. The transaction commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// ReadSnapshot runs fn over a consistent read-only view
	ReadSnapshot(ctx context.Context, fn func(tx Tx) error) error

	// Close releases resources
	Close() error
}

// Tx defines inventory data access inside one transaction.
// Getters return (nil, nil) when the row does not exist.
type Tx interface {
	// Sites, rooms, racks
	GetSite(ctx context.Context, id string) (*domain.Site, error)
	ListSites(ctx context.Context) ([]domain.Site, error)
	InsertSite(ctx context.Context, site *domain.Site) error
	InsertRoom(ctx context.Context, room *domain.Room) error
	GetRack(ctx context.Context, id string) (*domain.Rack, error)
	InsertRack(ctx context.Context, rack *domain.Rack) error
	LoadScene(ctx context.Context, siteID string) (*domain.SceneModel, error)

	// Devices
	GetDevice(ctx context.Context, id string) (*domain.Device, error)
	ListRackDevices(ctx context.Context, rackID string) ([]domain.Device, error)
	ListSiteDevices(ctx context.Context, siteID string, activeOnly bool) ([]domain.Device, error)
	InsertDevice(ctx context.Context, device *domain.Device) error
	UpdateDevice(ctx context.Context, device *domain.Device) error

	// History (append-only)
	AppendHistory(ctx context.Context, entry *domain.EquipmentHistory) error
	ListDeviceHistory(ctx context.Context, deviceID string) ([]domain.EquipmentHistory, error)
	ListHistoryByIdempotencyKey(ctx context.Context, key string) ([]domain.EquipmentHistory, error)

	// Anomalies (insert-only, triage fields updatable)
	InsertAnomaly(ctx context.Context, anomaly *domain.Anomaly) (bool, error)
	GetAnomaly(ctx context.Context, id string) (*domain.Anomaly, error)
	ListAnomalies(ctx context.Context, siteID string, status domain.AnomalyStatus) ([]domain.Anomaly, error)
	UpdateAnomaly(ctx context.Context, anomaly *domain.Anomaly) error
}
