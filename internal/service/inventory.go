package service

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dctwin/internal/clock"
	"dctwin/internal/codec"
	"dctwin/internal/core/conflict"
	"dctwin/internal/core/lifecycle"
	"dctwin/internal/domain"
	"dctwin/internal/repository"
)

// InventoryService provides business logic for racks, devices and scenes
type InventoryService struct {
	store    repository.Store
	engine   *lifecycle.Engine
	eventBus *EventBus
	clock    clock.Clock
	logger   *zap.Logger
	newID    func() string
}

// NewInventoryService creates a new inventory service
func NewInventoryService(store repository.Store, engine *lifecycle.Engine, eventBus *EventBus, clk clock.Clock, logger *zap.Logger) *InventoryService {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InventoryService{
		store:    store,
		engine:   engine,
		eventBus: eventBus,
		clock:    clk,
		logger:   logger,
		newID:    uuid.NewString,
	}
}

// ImportResult summarizes an ingested scene
type ImportResult struct {
	SiteID      string `json:"site_id"`
	ChangeSetID string `json:"change_set_id"`
	Rooms       int    `json:"rooms"`
	Racks       int    `json:"racks"`
	Devices     int    `json:"devices"`
}

// MoveDevice applies a move and publishes the outcome
func (s *InventoryService) MoveDevice(ctx context.Context, req lifecycle.MoveRequest) (*lifecycle.MoveOutcome, error) {
	out, err := s.engine.Move(ctx, req)
	if err != nil {
		return nil, err
	}
	if out.Replayed {
		return out, nil
	}

	payload := map[string]string{
		"device_id":     out.Device.ID,
		"change_set_id": out.ChangeSetID,
		"move_type":     string(req.MoveType),
		"target_phase":  string(req.TargetPhase),
	}
	if out.NewDevice != nil {
		payload["new_device_id"] = out.NewDevice.ID
	}
	s.eventBus.Publish(Event{Type: EventDeviceMoved, Payload: payload})
	return out, nil
}

// DeleteDevice soft-deletes a device
func (s *InventoryService) DeleteDevice(ctx context.Context, deviceID, userID string) (*domain.Device, error) {
	device, err := s.engine.Delete(ctx, deviceID, userID)
	if err != nil {
		return nil, err
	}
	s.eventBus.Publish(Event{
		Type:    EventDeviceDeleted,
		Payload: map[string]string{"device_id": device.ID, "rack_id": device.RackID},
	})
	return device, nil
}

// DeviceHistory returns the audit trail of a device, including deactivated ones
func (s *InventoryService) DeviceHistory(ctx context.Context, deviceID string) ([]domain.EquipmentHistory, error) {
	var entries []domain.EquipmentHistory
	err := s.store.ReadSnapshot(ctx, func(tx repository.Tx) error {
		device, err := tx.GetDevice(ctx, deviceID)
		if err != nil {
			return err
		}
		if device == nil {
			return fmt.Errorf("%w: device %s", domain.ErrNotFound, deviceID)
		}
		entries, err = tx.ListDeviceHistory(ctx, deviceID)
		return err
	})
	if err != nil {
		return nil, domain.Internal("device history", err)
	}
	return entries, nil
}

// CheckPlacement previews conflicts for a candidate placement
func (s *InventoryService) CheckPlacement(ctx context.Context, p conflict.Placement) ([]domain.Device, error) {
	return s.engine.CheckPlacement(ctx, p)
}

// ListSites returns every site
func (s *InventoryService) ListSites(ctx context.Context) ([]domain.Site, error) {
	var sites []domain.Site
	err := s.store.ReadSnapshot(ctx, func(tx repository.Tx) error {
		var err error
		sites, err = tx.ListSites(ctx)
		return err
	})
	if err != nil {
		return nil, domain.Internal("list sites", err)
	}
	return sites, nil
}

// Scene loads a site. A non-empty phase filters devices to that phase's view.
func (s *InventoryService) Scene(ctx context.Context, siteID string, phase domain.Phase) (*domain.SceneModel, error) {
	if phase != "" && !phase.Valid() {
		return nil, fmt.Errorf("%w: unknown phase %q", domain.ErrValidation, phase)
	}

	var model *domain.SceneModel
	err := s.store.ReadSnapshot(ctx, func(tx repository.Tx) error {
		var err error
		model, err = tx.LoadScene(ctx, siteID)
		if err != nil {
			return err
		}
		if model == nil {
			return fmt.Errorf("%w: site %s", domain.ErrNotFound, siteID)
		}
		return nil
	})
	if err != nil {
		return nil, domain.Internal("load scene", err)
	}

	if phase != "" {
		return model.ForPhase(phase), nil
	}
	return model, nil
}

// ExportScene writes a site scene through the given exporter
func (s *InventoryService) ExportScene(ctx context.Context, siteID string, exporter codec.SceneExporter, w io.Writer) error {
	model, err := s.Scene(ctx, siteID, "")
	if err != nil {
		return err
	}
	return exporter.ExportScene(model, w)
}

// ImportScene ingests a new site with its rooms, racks and devices in one
// transaction. Devices without an id get a generated one.
func (s *InventoryService) ImportScene(ctx context.Context, model *domain.SceneModel, userID string) (*ImportResult, error) {
	if err := s.validateScene(model); err != nil {
		return nil, err
	}

	result := &ImportResult{
		SiteID:      model.Site.ID,
		ChangeSetID: s.newID(),
		Rooms:       len(model.Rooms),
		Racks:       len(model.Racks),
		Devices:     len(model.Devices),
	}

	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		existing, err := tx.GetSite(ctx, model.Site.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: site %s already exists", domain.ErrValidation, model.Site.ID)
		}

		if err := tx.InsertSite(ctx, &model.Site); err != nil {
			return err
		}
		for i := range model.Rooms {
			model.Rooms[i].SiteID = model.Site.ID
			if err := tx.InsertRoom(ctx, &model.Rooms[i]); err != nil {
				return err
			}
		}
		for i := range model.Racks {
			if err := tx.InsertRack(ctx, &model.Racks[i]); err != nil {
				return err
			}
		}

		now := s.clock.Now()
		for i := range model.Devices {
			d := &model.Devices[i]
			d.CreatedAt = now
			d.UpdatedAt = now
			if err := tx.InsertDevice(ctx, d); err != nil {
				return err
			}
			entry := domain.EquipmentHistory{
				ID:               s.newID(),
				DeviceID:         d.ID,
				DeviceName:       d.Name,
				ChangeSetID:      result.ChangeSetID,
				ModificationType: domain.ModificationIngest,
				IsApplied:        true,
				ToLocation:       d.Location(),
				StatusChange:     domain.StatusTransition("", d.Status4D),
				UserID:           userID,
				Timestamp:        now,
			}
			if err := tx.AppendHistory(ctx, &entry); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, domain.Internal("import scene", err)
	}

	s.logger.Info("scene imported",
		zap.String("site_id", result.SiteID),
		zap.Int("racks", result.Racks),
		zap.Int("devices", result.Devices),
	)
	s.eventBus.Publish(Event{Type: EventSceneImported, SiteID: result.SiteID, Payload: result})
	return result, nil
}

// validateScene checks references, ingestion statuses, rack bounds and the
// per-phase overlap invariant before anything is written.
func (s *InventoryService) validateScene(model *domain.SceneModel) error {
	if model == nil || model.Site.ID == "" {
		return fmt.Errorf("%w: scene has no site id", domain.ErrValidation)
	}

	rooms := make(map[string]bool, len(model.Rooms))
	for _, room := range model.Rooms {
		if room.ID == "" {
			return fmt.Errorf("%w: room without id", domain.ErrValidation)
		}
		if rooms[room.ID] {
			return fmt.Errorf("%w: duplicate room %s", domain.ErrValidation, room.ID)
		}
		rooms[room.ID] = true
	}

	racks := make(map[string]*domain.Rack, len(model.Racks))
	for i := range model.Racks {
		r := &model.Racks[i]
		switch {
		case r.ID == "":
			return fmt.Errorf("%w: rack without id in room %s", domain.ErrValidation, r.RoomID)
		case racks[r.ID] != nil:
			return fmt.Errorf("%w: duplicate rack %s", domain.ErrValidation, r.ID)
		case !rooms[r.RoomID]:
			return fmt.Errorf("%w: rack %s references unknown room %s", domain.ErrValidation, r.ID, r.RoomID)
		case r.UHeight < 1:
			return fmt.Errorf("%w: rack %s has height %d", domain.ErrValidation, r.ID, r.UHeight)
		}
		racks[r.ID] = r
	}

	seen := make(map[string]bool, len(model.Devices))
	for i := range model.Devices {
		d := &model.Devices[i]
		if d.ID == "" {
			d.ID = s.newID()
		}
		if seen[d.ID] {
			return fmt.Errorf("%w: duplicate device %s", domain.ErrValidation, d.ID)
		}
		seen[d.ID] = true

		if !domain.IngestionStatus(d.Status4D) {
			return fmt.Errorf("%w: device %s cannot be ingested as %q", domain.ErrValidation, d.ID, d.Status4D)
		}
		rack := racks[d.RackID]
		if rack == nil {
			return fmt.Errorf("%w: device %s references unknown rack %s", domain.ErrValidation, d.ID, d.RackID)
		}
		if err := conflict.CheckBounds(rack, conflict.Placement{RackID: rack.ID, UStart: d.UStart, UHeight: d.UHeight}); err != nil {
			return fmt.Errorf("device %s: %w", d.ID, err)
		}
	}

	for _, p := range domain.Phases {
		if pairs := conflict.FindOverlaps(model.Devices, p); len(pairs) > 0 {
			a, b := pairs[0][0], pairs[0][1]
			return &domain.ConflictError{RackID: a.RackID, Phase: p, Devices: []domain.Device{a, b}}
		}
	}
	return nil
}
