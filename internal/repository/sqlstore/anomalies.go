package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"dctwin/internal/domain"
)

// ============================================================================
// Anomalies
// ============================================================================

// InsertAnomaly inserts a new anomaly. It reports false when a row with the
// same fingerprint already exists.
func (t *tx) InsertAnomaly(ctx context.Context, a *domain.Anomaly) (bool, error) {
	args, err := anomalyInsertArgs(a)
	if err != nil {
		return false, err
	}
	res, err := t.exec(ctx, `
		INSERT INTO anomalies (`+anomalyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (fingerprint) DO NOTHING
	`, args...)
	if err != nil {
		return false, fmt.Errorf("failed to insert anomaly: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

func (t *tx) GetAnomaly(ctx context.Context, id string) (*domain.Anomaly, error) {
	var row anomalyRow
	err := t.queryRow(ctx, `SELECT `+anomalyColumns+` FROM anomalies WHERE id = ?`, id).Scan(row.scanArgs()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get anomaly: %w", err)
	}
	a, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAnomalies returns a site's anomalies, optionally filtered by status
func (t *tx) ListAnomalies(ctx context.Context, siteID string, status domain.AnomalyStatus) ([]domain.Anomaly, error) {
	query := `SELECT ` + anomalyColumns + ` FROM anomalies WHERE site_id = ?`
	args := []any{siteID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at, id`

	rows, err := t.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list anomalies: %w", err)
	}
	defer rows.Close()

	anomalies := make([]domain.Anomaly, 0)
	for rows.Next() {
		var row anomalyRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan anomaly: %w", err)
		}
		a, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		anomalies = append(anomalies, a)
	}
	return anomalies, rows.Err()
}

// UpdateAnomaly writes the triage fields of an anomaly
func (t *tx) UpdateAnomaly(ctx context.Context, a *domain.Anomaly) error {
	res, err := t.exec(ctx, `
		UPDATE anomalies SET status = ?, assigned_to = ?, notes = ?, updated_at = ?
		WHERE id = ?
	`, string(a.Status), stringToNull(a.AssignedTo), stringToNull(a.Notes), a.UpdatedAt.UTC(), a.ID)
	if err != nil {
		return fmt.Errorf("failed to update anomaly: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: anomaly %s", domain.ErrNotFound, a.ID)
	}
	return nil
}
