package sqlstore

import (
	"context"
	"fmt"

	"dctwin/internal/domain"
)

// ============================================================================
// Equipment history (append-only)
// ============================================================================

func (t *tx) AppendHistory(ctx context.Context, h *domain.EquipmentHistory) error {
	args, err := historyInsertArgs(h)
	if err != nil {
		return err
	}
	_, err = t.exec(ctx, `
		INSERT INTO equipment_history (`+historyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// ListDeviceHistory returns a device's audit trail oldest first
func (t *tx) ListDeviceHistory(ctx context.Context, deviceID string) ([]domain.EquipmentHistory, error) {
	return t.listHistory(ctx, `
		SELECT `+historyColumns+` FROM equipment_history
		WHERE device_id = ?
		ORDER BY created_at, id
	`, deviceID)
}

// ListHistoryByIdempotencyKey returns the entries written by one keyed request
func (t *tx) ListHistoryByIdempotencyKey(ctx context.Context, key string) ([]domain.EquipmentHistory, error) {
	return t.listHistory(ctx, `
		SELECT `+historyColumns+` FROM equipment_history
		WHERE idempotency_key = ?
		ORDER BY created_at, id
	`, key)
}

func (t *tx) listHistory(ctx context.Context, query string, args ...any) ([]domain.EquipmentHistory, error) {
	rows, err := t.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.EquipmentHistory, 0)
	for rows.Next() {
		var row historyRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		h, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		entries = append(entries, h)
	}
	return entries, rows.Err()
}
