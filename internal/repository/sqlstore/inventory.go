package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"dctwin/internal/domain"
)

// ============================================================================
// Sites, rooms, racks
// ============================================================================

func (t *tx) GetSite(ctx context.Context, id string) (*domain.Site, error) {
	var s domain.Site
	err := t.queryRow(ctx, `SELECT id, name FROM sites WHERE id = ?`, id).Scan(&s.ID, &s.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get site: %w", err)
	}
	return &s, nil
}

func (t *tx) ListSites(ctx context.Context) ([]domain.Site, error) {
	rows, err := t.query(ctx, `SELECT id, name FROM sites ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	defer rows.Close()

	sites := make([]domain.Site, 0)
	for rows.Next() {
		var s domain.Site
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		sites = append(sites, s)
	}
	return sites, rows.Err()
}

func (t *tx) InsertSite(ctx context.Context, site *domain.Site) error {
	_, err := t.exec(ctx, `INSERT INTO sites (id, name) VALUES (?, ?)`, site.ID, site.Name)
	if err != nil {
		return fmt.Errorf("failed to insert site: %w", err)
	}
	return nil
}

func (t *tx) InsertRoom(ctx context.Context, room *domain.Room) error {
	_, err := t.exec(ctx, `INSERT INTO rooms (id, site_id, name) VALUES (?, ?, ?)`,
		room.ID, room.SiteID, room.Name)
	if err != nil {
		return fmt.Errorf("failed to insert room: %w", err)
	}
	return nil
}

const rackColumns = `r.id, r.room_id, r.name, r.u_height, r.power_kw_limit, r.current_power_kw`

func scanRack(sc interface{ Scan(...any) error }) (domain.Rack, error) {
	var r domain.Rack
	err := sc.Scan(&r.ID, &r.RoomID, &r.Name, &r.UHeight, &r.PowerKwLimit, &r.CurrentPowerKw)
	return r, err
}

func (t *tx) GetRack(ctx context.Context, id string) (*domain.Rack, error) {
	r, err := scanRack(t.queryRow(ctx, `SELECT `+rackColumns+` FROM racks r WHERE r.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rack: %w", err)
	}
	return &r, nil
}

func (t *tx) InsertRack(ctx context.Context, rack *domain.Rack) error {
	_, err := t.exec(ctx, `
		INSERT INTO racks (id, room_id, name, u_height, power_kw_limit, current_power_kw)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rack.ID, rack.RoomID, rack.Name, rack.UHeight, rack.PowerKwLimit, rack.CurrentPowerKw)
	if err != nil {
		return fmt.Errorf("failed to insert rack: %w", err)
	}
	return nil
}

// LoadScene reads the full rack/device graph of a site, inactive devices included.
// Returns (nil, nil) when the site does not exist.
func (t *tx) LoadScene(ctx context.Context, siteID string) (*domain.SceneModel, error) {
	site, err := t.GetSite(ctx, siteID)
	if err != nil || site == nil {
		return nil, err
	}
	scene := domain.NewSceneModel(*site)

	rows, err := t.query(ctx, `SELECT id, site_id, name FROM rooms WHERE site_id = ? ORDER BY id`, siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	for rows.Next() {
		var room domain.Room
		if err := rows.Scan(&room.ID, &room.SiteID, &room.Name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		scene.Rooms = append(scene.Rooms, room)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = t.query(ctx, `
		SELECT `+rackColumns+`
		FROM racks r JOIN rooms rm ON rm.id = r.room_id
		WHERE rm.site_id = ?
		ORDER BY r.id
	`, siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list racks: %w", err)
	}
	for rows.Next() {
		r, err := scanRack(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan rack: %w", err)
		}
		scene.Racks = append(scene.Racks, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	devices, err := t.ListSiteDevices(ctx, siteID, false)
	if err != nil {
		return nil, err
	}
	scene.Devices = devices
	return scene, nil
}
