package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"dctwin/internal/core/capacity"
	"dctwin/internal/domain"
	"dctwin/internal/repository"
)

// CapacityService searches sites for AI-ready rack blocks
type CapacityService struct {
	store  repository.Store
	opts   capacity.Options
	logger *zap.Logger
}

// NewCapacityService creates a new capacity service
func NewCapacityService(store repository.Store, opts capacity.Options, logger *zap.Logger) *CapacityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CapacityService{store: store, opts: opts, logger: logger}
}

// FindAIReadyCapacity returns the best block for the site in phase, or nil
// when no block qualifies.
func (s *CapacityService) FindAIReadyCapacity(ctx context.Context, siteID string, phase domain.Phase) (*capacity.Block, error) {
	if !phase.Valid() {
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

	block, err := capacity.Find(model, phase, s.opts)
	if err != nil {
		return nil, err
	}
	if block != nil {
		s.logger.Debug("capacity block found",
			zap.String("site_id", siteID),
			zap.String("room_id", block.RoomID),
			zap.Float64("score", block.Score),
		)
	}
	return block, nil
}
