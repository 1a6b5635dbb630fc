package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dctwin/internal/clock"
	"dctwin/internal/core/anomaly"
	"dctwin/internal/domain"
	"dctwin/internal/report"
	"dctwin/internal/repository"
)

// AnomalyNotifier is told about freshly saved anomalies
type AnomalyNotifier interface {
	Notify(ctx context.Context, siteID string, anomalies []domain.Anomaly) error
}

// SaveResult reports how many anomalies a save call persisted
type SaveResult struct {
	Detected  int              `json:"detected"`
	Saved     int              `json:"saved"`
	Anomalies []domain.Anomaly `json:"anomalies"`
}

// AnomalyService reconciles verification scans with the canonical inventory
type AnomalyService struct {
	store    repository.Store
	detector *anomaly.Detector
	eventBus *EventBus
	notifier AnomalyNotifier
	clock    clock.Clock
	logger   *zap.Logger
	newID    func() string
}

// NewAnomalyService creates a new anomaly service. notifier may be nil.
func NewAnomalyService(store repository.Store, detector *anomaly.Detector, eventBus *EventBus, notifier AnomalyNotifier, clk clock.Clock, logger *zap.Logger) *AnomalyService {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnomalyService{
		store:    store,
		detector: detector,
		eventBus: eventBus,
		notifier: notifier,
		clock:    clk,
		logger:   logger,
		newID:    uuid.NewString,
	}
}

// Detect previews the anomalies a scan would raise. Nothing is written.
func (s *AnomalyService) Detect(ctx context.Context, siteID string, records []domain.VerificationRecord) ([]domain.Anomaly, error) {
	var devices []domain.Device
	err := s.store.ReadSnapshot(ctx, func(tx repository.Tx) error {
		site, err := tx.GetSite(ctx, siteID)
		if err != nil {
			return err
		}
		if site == nil {
			return fmt.Errorf("%w: site %s", domain.ErrNotFound, siteID)
		}
		devices, err = tx.ListSiteDevices(ctx, siteID, true)
		return err
	})
	if err != nil {
		return nil, domain.Internal("load site devices", err)
	}
	return s.detector.Detect(siteID, devices, records), nil
}

// Save persists anomalies insert-only. With an idempotency key, anomalies
// already saved under the same key are skipped; the result counts new rows only.
func (s *AnomalyService) Save(ctx context.Context, siteID string, anomalies []domain.Anomaly, idempotencyKey string) (*SaveResult, error) {
	result := &SaveResult{Detected: len(anomalies), Anomalies: make([]domain.Anomaly, 0, len(anomalies))}

	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		result.Saved = 0
		result.Anomalies = result.Anomalies[:0]

		now := s.clock.Now()
		ordinals := make(map[string]int)
		for _, a := range anomalies {
			if a.SiteID == "" {
				a.SiteID = siteID
			}
			if a.SiteID != siteID {
				return fmt.Errorf("%w: anomaly for site %s saved under %s", domain.ErrValidation, a.SiteID, siteID)
			}
			if a.ID == "" {
				a.ID = s.newID()
			}
			if a.Status == "" {
				a.Status = domain.AnomalyOpen
			}
			if a.CreatedAt.IsZero() {
				a.CreatedAt = now
			}
			a.UpdatedAt = a.CreatedAt
			a.Fingerprint = anomaly.Fingerprint(idempotencyKey, &a, ordinals[a.IdentityKey])
			ordinals[a.IdentityKey]++

			inserted, err := tx.InsertAnomaly(ctx, &a)
			if err != nil {
				return err
			}
			if inserted {
				result.Saved++
				result.Anomalies = append(result.Anomalies, a)
			}
		}
		return nil
	})
	if err != nil {
		return nil, domain.Internal("save anomalies", err)
	}

	s.logger.Info("anomalies saved",
		zap.String("site_id", siteID),
		zap.Int("detected", result.Detected),
		zap.Int("saved", result.Saved),
	)
	if result.Saved == 0 {
		return result, nil
	}

	s.eventBus.Publish(Event{
		Type:    EventAnomaliesSaved,
		SiteID:  siteID,
		Payload: map[string]int{"saved": result.Saved},
	})
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, siteID, result.Anomalies); err != nil {
			s.logger.Warn("anomaly notification failed", zap.String("site_id", siteID), zap.Error(err))
		}
	}
	return result, nil
}

// DetectAndSave runs detection and persists the result under idempotencyKey
func (s *AnomalyService) DetectAndSave(ctx context.Context, siteID string, records []domain.VerificationRecord, idempotencyKey string) (*SaveResult, error) {
	anomalies, err := s.Detect(ctx, siteID, records)
	if err != nil {
		return nil, err
	}
	result, err := s.Save(ctx, siteID, anomalies, idempotencyKey)
	if err != nil {
		return nil, err
	}
	s.eventBus.Publish(Event{
		Type:   EventScanReconciled,
		SiteID: siteID,
		Payload: map[string]int{
			"records":  len(records),
			"detected": result.Detected,
			"saved":    result.Saved,
		},
	})
	return result, nil
}

// List returns a site's saved anomalies. An empty status returns all of them.
func (s *AnomalyService) List(ctx context.Context, siteID string, status domain.AnomalyStatus) ([]domain.Anomaly, error) {
	if status != "" {
		if _, err := domain.ParseAnomalyStatus(string(status)); err != nil {
			return nil, err
		}
	}

	var anomalies []domain.Anomaly
	err := s.store.ReadSnapshot(ctx, func(tx repository.Tx) error {
		var err error
		anomalies, err = tx.ListAnomalies(ctx, siteID, status)
		return err
	})
	if err != nil {
		return nil, domain.Internal("list anomalies", err)
	}
	return anomalies, nil
}

// Update applies triage changes to one anomaly
func (s *AnomalyService) Update(ctx context.Context, id string, update domain.AnomalyUpdate) (*domain.Anomaly, error) {
	if update.Status != nil {
		if _, err := domain.ParseAnomalyStatus(string(*update.Status)); err != nil {
			return nil, err
		}
	}

	var updated *domain.Anomaly
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		a, err := tx.GetAnomaly(ctx, id)
		if err != nil {
			return err
		}
		if a == nil {
			return fmt.Errorf("%w: anomaly %s", domain.ErrNotFound, id)
		}
		if update.Status != nil {
			a.Status = *update.Status
		}
		if update.AssignedTo != nil {
			a.AssignedTo = *update.AssignedTo
		}
		if update.Notes != nil {
			a.Notes = *update.Notes
		}
		a.UpdatedAt = s.clock.Now()
		if err := tx.UpdateAnomaly(ctx, a); err != nil {
			return err
		}
		updated = a
		return nil
	})
	if err != nil {
		return nil, domain.Internal("update anomaly", err)
	}

	s.eventBus.Publish(Event{
		Type:    EventAnomalyUpdated,
		SiteID:  updated.SiteID,
		Payload: map[string]string{"anomaly_id": updated.ID, "status": string(updated.Status)},
	})
	return updated, nil
}

// Export renders a site's anomalies as an xlsx workbook
func (s *AnomalyService) Export(ctx context.Context, siteID string, status domain.AnomalyStatus) ([]byte, error) {
	anomalies, err := s.List(ctx, siteID, status)
	if err != nil {
		return nil, err
	}
	return report.AnomalyWorkbook(anomalies)
}
