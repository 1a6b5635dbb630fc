// Package lifecycle moves and retires devices under the phase state machine.
//
// Every operation runs its read-check-write sequence inside a single
// repository transaction: the device and target rack are loaded, the
// conflict detector runs against the rack contents read in that same
// transaction, and device rows plus their history entries are written
// together or not at all.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dctwin/internal/clock"
	"dctwin/internal/core/conflict"
	"dctwin/internal/domain"
	"dctwin/internal/repository"
)

// MoveType selects between mutating a device in place and forking it
type MoveType string

const (
	MoveModified       MoveType = "MODIFIED"
	MoveCreateProposed MoveType = "CREATE_PROPOSED"
)

// ParseMoveType validates a move type string
func ParseMoveType(s string) (MoveType, error) {
	switch mt := MoveType(s); mt {
	case MoveModified, MoveCreateProposed:
		return mt, nil
	}
	return "", fmt.Errorf("%w: unknown move type %q", domain.ErrValidation, s)
}

// MoveRequest describes a device move
type MoveRequest struct {
	DeviceID        string
	TargetRackID    string
	TargetUPosition int
	TargetPhase     domain.Phase
	MoveType        MoveType
	UserID          string
	Notes           string
	ScheduledDate   *time.Time
	// IdempotencyKey makes retries return the first outcome instead of moving twice
	IdempotencyKey string
}

// MoveOutcome is the result of a successful move
type MoveOutcome struct {
	Device      *domain.Device
	NewDevice   *domain.Device // set for CREATE_PROPOSED
	ChangeSetID string
	History     []domain.EquipmentHistory
	Replayed    bool
}

// Engine applies moves and deletes against a Store
type Engine struct {
	store  repository.Store
	clock  clock.Clock
	logger *zap.Logger
	newID  func() string
}

// NewEngine creates a lifecycle engine
func NewEngine(store repository.Store, clk clock.Clock, logger *zap.Logger) *Engine {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:  store,
		clock:  clk,
		logger: logger,
		newID:  uuid.NewString,
	}
}

func (r *MoveRequest) validate() error {
	if r.DeviceID == "" {
		return fmt.Errorf("%w: device id is required", domain.ErrValidation)
	}
	if r.TargetRackID == "" {
		return fmt.Errorf("%w: target rack id is required", domain.ErrValidation)
	}
	if !r.TargetPhase.Valid() {
		return fmt.Errorf("%w: unknown phase %q", domain.ErrValidation, r.TargetPhase)
	}
	if _, err := ParseMoveType(string(r.MoveType)); err != nil {
		return err
	}
	if r.TargetUPosition < 0 {
		return fmt.Errorf("%w: target U position %d is negative", domain.ErrValidation, r.TargetUPosition)
	}
	if r.MoveType == MoveCreateProposed {
		if _, err := domain.ProposedStatusFor(r.TargetPhase); err != nil {
			return err
		}
	}
	return nil
}

// resultStatus is the status the device at the target position ends up with
func (r *MoveRequest) resultStatus() domain.Status4D {
	if r.MoveType == MoveModified {
		return domain.StatusModified
	}
	s, _ := domain.ProposedStatusFor(r.TargetPhase)
	return s
}

// checkPhases returns the target phase followed by every other phase in which
// the moved device will be visible.
func (r *MoveRequest) checkPhases() []domain.Phase {
	phases := []domain.Phase{r.TargetPhase}
	for _, p := range r.resultStatus().VisibleIn() {
		if p != r.TargetPhase {
			phases = append(phases, p)
		}
	}
	return phases
}

// Move relocates a device. Collisions return a *domain.ConflictError and leave
// the store untouched.
func (e *Engine) Move(ctx context.Context, req MoveRequest) (*MoveOutcome, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var out *MoveOutcome
	err := e.store.WithTx(ctx, func(tx repository.Tx) error {
		if req.IdempotencyKey != "" {
			replayed, err := e.replay(ctx, tx, req)
			if err != nil {
				return err
			}
			if replayed != nil {
				out = replayed
				return nil
			}
		}

		device, err := tx.GetDevice(ctx, req.DeviceID)
		if err != nil {
			return err
		}
		if device == nil || !device.IsActive {
			return fmt.Errorf("%w: device %s", domain.ErrNotFound, req.DeviceID)
		}

		rack, err := tx.GetRack(ctx, req.TargetRackID)
		if err != nil {
			return err
		}
		if rack == nil {
			return fmt.Errorf("%w: rack %s", domain.ErrNotFound, req.TargetRackID)
		}

		occupants, err := tx.ListRackDevices(ctx, rack.ID)
		if err != nil {
			return err
		}

		placement := conflict.Placement{
			RackID:  rack.ID,
			UStart:  req.TargetUPosition,
			UHeight: device.UHeight,
			Phase:   req.TargetPhase,
		}
		if req.MoveType == MoveModified {
			placement.ExcludeDeviceID = device.ID
		}
		hits, err := conflict.DetectAcross(rack, occupants, placement, req.checkPhases())
		if err != nil {
			return err
		}
		if len(hits) > 0 {
			return &domain.ConflictError{RackID: rack.ID, Phase: req.TargetPhase, Devices: hits}
		}
		if req.MoveType == MoveCreateProposed {
			if err := checkRetiredSlot(ctx, tx, device); err != nil {
				return err
			}
		}

		switch req.MoveType {
		case MoveModified:
			out, err = e.applyModified(ctx, tx, req, device)
		case MoveCreateProposed:
			out, err = e.applyCreateProposed(ctx, tx, req, device)
		}
		return err
	})
	if err != nil {
		if domain.KindOf(err) == domain.KindConflict {
			e.logger.Info("move rejected by conflict",
				zap.String("device_id", req.DeviceID),
				zap.String("rack_id", req.TargetRackID),
				zap.Int("u_start", req.TargetUPosition),
				zap.String("phase", string(req.TargetPhase)),
			)
		}
		return nil, domain.Internal("move device", err)
	}

	if !out.Replayed {
		e.logger.Info("device moved",
			zap.String("device_id", req.DeviceID),
			zap.String("move_type", string(req.MoveType)),
			zap.String("phase", string(req.TargetPhase)),
			zap.String("change_set_id", out.ChangeSetID),
		)
	}
	return out, nil
}

// checkRetiredSlot verifies the original's own slot in every phase where the
// EXISTING_REMOVED status makes it newly visible. Forking a PROPOSED or FUTURE
// device surfaces it in AS_IS, where another device may already hold that slot.
func checkRetiredSlot(ctx context.Context, tx repository.Tx, original *domain.Device) error {
	var phases []domain.Phase
	for _, p := range domain.StatusExistingRemoved.VisibleIn() {
		if !p.Shows(original.Status4D) {
			phases = append(phases, p)
		}
	}
	if len(phases) == 0 {
		return nil
	}

	rack, err := tx.GetRack(ctx, original.RackID)
	if err != nil {
		return err
	}
	if rack == nil {
		return fmt.Errorf("%w: rack %s", domain.ErrNotFound, original.RackID)
	}
	occupants, err := tx.ListRackDevices(ctx, rack.ID)
	if err != nil {
		return err
	}

	placement := conflict.Placement{
		RackID:          rack.ID,
		UStart:          original.UStart,
		UHeight:         original.UHeight,
		ExcludeDeviceID: original.ID,
	}
	for _, phase := range phases {
		placement.Phase = phase
		hits, err := conflict.Detect(rack, occupants, placement)
		if err != nil {
			return err
		}
		if len(hits) > 0 {
			return &domain.ConflictError{RackID: rack.ID, Phase: phase, Devices: hits}
		}
	}
	return nil
}

func (e *Engine) applyModified(ctx context.Context, tx repository.Tx, req MoveRequest, device *domain.Device) (*MoveOutcome, error) {
	now := e.clock.Now()
	from := device.Location()
	prevStatus := device.Status4D

	device.RackID = req.TargetRackID
	device.UStart = req.TargetUPosition
	device.Status4D = domain.StatusModified
	device.UpdatedAt = now
	if err := tx.UpdateDevice(ctx, device); err != nil {
		return nil, err
	}

	changeSetID := e.newID()
	entry := e.historyEntry(req, device, changeSetID, now)
	entry.ModificationType = domain.ModificationMove
	entry.FromLocation = from
	entry.ToLocation = device.Location()
	entry.StatusChange = domain.StatusTransition(prevStatus, domain.StatusModified)
	if err := tx.AppendHistory(ctx, &entry); err != nil {
		return nil, err
	}

	return &MoveOutcome{
		Device:      device,
		ChangeSetID: changeSetID,
		History:     []domain.EquipmentHistory{entry},
	}, nil
}

func (e *Engine) applyCreateProposed(ctx context.Context, tx repository.Tx, req MoveRequest, original *domain.Device) (*MoveOutcome, error) {
	now := e.clock.Now()
	prevStatus := original.Status4D
	proposed := req.resultStatus()

	original.Status4D = domain.StatusExistingRemoved
	original.UpdatedAt = now
	if err := tx.UpdateDevice(ctx, original); err != nil {
		return nil, err
	}

	fork := &domain.Device{
		ID:                 e.newID(),
		Name:               original.Name,
		RackID:             req.TargetRackID,
		UStart:             req.TargetUPosition,
		UHeight:            original.UHeight,
		Status4D:           proposed,
		PowerKw:            original.PowerKw,
		LogicalEquipmentID: original.LogicalEquipmentID,
		DeviceTypeID:       original.DeviceTypeID,
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := tx.InsertDevice(ctx, fork); err != nil {
		return nil, err
	}

	changeSetID := e.newID()

	retire := e.historyEntry(req, original, changeSetID, now)
	retire.ModificationType = domain.ModificationRetire
	retire.FromLocation = original.Location()
	retire.ToLocation = fork.Location()
	retire.StatusChange = domain.StatusTransition(prevStatus, domain.StatusExistingRemoved)
	retire.Notes = joinNotes(req.Notes, "replaced by "+fork.ID)

	created := e.historyEntry(req, fork, changeSetID, now)
	created.ModificationType = domain.ModificationCreateProposed
	created.FromLocation = original.Location()
	created.ToLocation = fork.Location()
	created.StatusChange = domain.StatusTransition("", proposed)
	created.Notes = joinNotes(req.Notes, "forked from "+original.ID)

	for _, h := range []*domain.EquipmentHistory{&retire, &created} {
		if err := tx.AppendHistory(ctx, h); err != nil {
			return nil, err
		}
	}

	return &MoveOutcome{
		Device:      original,
		NewDevice:   fork,
		ChangeSetID: changeSetID,
		History:     []domain.EquipmentHistory{retire, created},
	}, nil
}

func (e *Engine) historyEntry(req MoveRequest, d *domain.Device, changeSetID string, now time.Time) domain.EquipmentHistory {
	return domain.EquipmentHistory{
		ID:             e.newID(),
		DeviceID:       d.ID,
		DeviceName:     d.Name,
		ChangeSetID:    changeSetID,
		TargetPhase:    req.TargetPhase,
		ScheduledDate:  req.ScheduledDate,
		IsApplied:      req.TargetPhase == domain.PhaseAsIs,
		Notes:          req.Notes,
		UserID:         req.UserID,
		IdempotencyKey: req.IdempotencyKey,
		Timestamp:      now,
	}
}

// replay rebuilds the outcome of an already-applied keyed request.
// It returns nil when the key has not been used.
func (e *Engine) replay(ctx context.Context, tx repository.Tx, req MoveRequest) (*MoveOutcome, error) {
	entries, err := tx.ListHistoryByIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil || len(entries) == 0 {
		return nil, err
	}

	out := &MoveOutcome{ChangeSetID: entries[0].ChangeSetID, History: entries, Replayed: true}
	for _, h := range entries {
		d, err := tx.GetDevice(ctx, h.DeviceID)
		if err != nil {
			return nil, err
		}
		if d == nil {
			return nil, fmt.Errorf("%w: device %s recorded under key %q", domain.ErrNotFound, h.DeviceID, req.IdempotencyKey)
		}
		switch h.ModificationType {
		case domain.ModificationCreateProposed:
			out.NewDevice = d
		default:
			out.Device = d
		}
	}
	if out.Device == nil || out.Device.ID != req.DeviceID {
		return nil, fmt.Errorf("%w: idempotency key %q was used for a different request", domain.ErrValidation, req.IdempotencyKey)
	}

	e.logger.Debug("replayed move",
		zap.String("idempotency_key", req.IdempotencyKey),
		zap.String("change_set_id", out.ChangeSetID),
	)
	return out, nil
}

// Delete soft-deletes a device and records the removal
func (e *Engine) Delete(ctx context.Context, deviceID, userID string) (*domain.Device, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("%w: device id is required", domain.ErrValidation)
	}

	var device *domain.Device
	err := e.store.WithTx(ctx, func(tx repository.Tx) error {
		d, err := tx.GetDevice(ctx, deviceID)
		if err != nil {
			return err
		}
		if d == nil || !d.IsActive {
			return fmt.Errorf("%w: device %s", domain.ErrNotFound, deviceID)
		}

		now := e.clock.Now()
		d.IsActive = false
		d.UpdatedAt = now
		if err := tx.UpdateDevice(ctx, d); err != nil {
			return err
		}

		entry := domain.EquipmentHistory{
			ID:               e.newID(),
			DeviceID:         d.ID,
			DeviceName:       d.Name,
			ChangeSetID:      e.newID(),
			ModificationType: domain.ModificationRemove,
			IsApplied:        true,
			FromLocation:     d.Location(),
			UserID:           userID,
			Timestamp:        now,
		}
		if err := tx.AppendHistory(ctx, &entry); err != nil {
			return err
		}
		device = d
		return nil
	})
	if err != nil {
		return nil, domain.Internal("delete device", err)
	}

	e.logger.Info("device deleted", zap.String("device_id", deviceID), zap.String("user_id", userID))
	return device, nil
}

// CheckPlacement previews the conflicts a placement would hit without writing anything
func (e *Engine) CheckPlacement(ctx context.Context, p conflict.Placement) ([]domain.Device, error) {
	if !p.Phase.Valid() {
		return nil, fmt.Errorf("%w: unknown phase %q", domain.ErrValidation, p.Phase)
	}

	var hits []domain.Device
	err := e.store.ReadSnapshot(ctx, func(tx repository.Tx) error {
		rack, err := tx.GetRack(ctx, p.RackID)
		if err != nil {
			return err
		}
		if rack == nil {
			return fmt.Errorf("%w: rack %s", domain.ErrNotFound, p.RackID)
		}
		occupants, err := tx.ListRackDevices(ctx, rack.ID)
		if err != nil {
			return err
		}
		hits, err = conflict.Detect(rack, occupants, p)
		return err
	})
	if err != nil {
		return nil, domain.Internal("check placement", err)
	}
	return hits, nil
}

func joinNotes(user, system string) string {
	if user == "" {
		return system
	}
	return user + "; " + system
}
