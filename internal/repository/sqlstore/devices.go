package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"dctwin/internal/domain"
)

// ============================================================================
// Devices
// ============================================================================

func (t *tx) GetDevice(ctx context.Context, id string) (*domain.Device, error) {
	var row deviceRow
	err := t.queryRow(ctx, `SELECT `+deviceColumns+` FROM devices d WHERE d.id = ?`, id).Scan(row.scanArgs()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	d := row.toDomain()
	return &d, nil
}

// ListRackDevices returns every device in the rack, inactive ones included,
// ordered by U position.
func (t *tx) ListRackDevices(ctx context.Context, rackID string) ([]domain.Device, error) {
	return t.listDevices(ctx, `
		SELECT `+deviceColumns+` FROM devices d
		WHERE d.rack_id = ?
		ORDER BY d.u_start, d.id
	`, rackID)
}

func (t *tx) ListSiteDevices(ctx context.Context, siteID string, activeOnly bool) ([]domain.Device, error) {
	query := `
		SELECT ` + deviceColumns + ` FROM devices d
		JOIN racks r ON r.id = d.rack_id
		JOIN rooms rm ON rm.id = r.room_id
		WHERE rm.site_id = ?`
	args := []any{siteID}
	if activeOnly {
		query += ` AND d.is_active = ?`
		args = append(args, true)
	}
	query += ` ORDER BY d.id`
	return t.listDevices(ctx, query, args...)
}

func (t *tx) listDevices(ctx context.Context, query string, args ...any) ([]domain.Device, error) {
	rows, err := t.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	devices := make([]domain.Device, 0)
	for rows.Next() {
		var row deviceRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, row.toDomain())
	}
	return devices, rows.Err()
}

func (t *tx) InsertDevice(ctx context.Context, d *domain.Device) error {
	_, err := t.exec(ctx, `
		INSERT INTO devices (id, name, rack_id, u_start, u_height, status_4d, power_kw,
			logical_equipment_id, device_type_id, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, deviceInsertArgs(d)...)
	if err != nil {
		return fmt.Errorf("failed to insert device: %w", err)
	}
	return nil
}

// UpdateDevice overwrites the mutable columns of an existing device
func (t *tx) UpdateDevice(ctx context.Context, d *domain.Device) error {
	res, err := t.exec(ctx, `
		UPDATE devices SET
			name = ?, rack_id = ?, u_start = ?, u_height = ?, status_4d = ?, power_kw = ?,
			logical_equipment_id = ?, device_type_id = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`,
		d.Name, d.RackID, d.UStart, d.UHeight, string(d.Status4D), d.PowerKw,
		stringToNull(d.LogicalEquipmentID), stringToNull(d.DeviceTypeID), d.IsActive,
		d.UpdatedAt.UTC(), d.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update device: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: device %s", domain.ErrNotFound, d.ID)
	}
	return nil
}
