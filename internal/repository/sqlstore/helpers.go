package sqlstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"dctwin/internal/domain"
)

// ============================================================================
// Null Type Conversion Helpers
// ============================================================================

// nullToString safely converts sql.NullString to string
func nullToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// nullToTimePtr safely converts sql.NullTime to *time.Time in UTC
func nullToTimePtr(nt sql.NullTime) *time.Time {
	if nt.Valid {
		t := nt.Time.UTC()
		return &t
	}
	return nil
}

// stringToNull safely converts string to sql.NullString
func stringToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// timePtrToNull safely converts *time.Time to sql.NullTime
func timePtrToNull(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// ============================================================================
// JSON Marshaling Helpers
// ============================================================================

// unmarshalJSONField safely unmarshals JSON from nullable string into target
func unmarshalJSONField(ns sql.NullString, target any) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), target)
}

// marshalToNull marshals v to a nullable JSON string.
// Nil values and empty maps/slices are stored as NULL.
func marshalToNull(v any) (sql.NullString, error) {
	switch val := v.(type) {
	case nil:
		return sql.NullString{}, nil
	case map[string]any:
		if len(val) == 0 {
			return sql.NullString{}, nil
		}
	case []string:
		if len(val) == 0 {
			return sql.NullString{}, nil
		}
	case *domain.Location:
		if val == nil {
			return sql.NullString{}, nil
		}
	}

	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// ============================================================================
// Row Scanners
// ============================================================================
//
// Column order must match between the *Columns constant, scanArgs() and any
// INSERT argument helper. Append new columns at the end of all three.

// deviceColumns is the SELECT column list for device queries (table alias d)
const deviceColumns = `d.id, d.name, d.rack_id, d.u_start, d.u_height, d.status_4d, d.power_kw,
	d.logical_equipment_id, d.device_type_id, d.is_active, d.created_at, d.updated_at`

// deviceRow holds all columns from a device query for scanning
type deviceRow struct {
	ID                 string
	Name               string
	RackID             string
	UStart             int
	UHeight            int
	Status             string
	PowerKw            float64
	LogicalEquipmentID sql.NullString
	DeviceTypeID       sql.NullString
	IsActive           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (r *deviceRow) scanArgs() []any {
	return []any{
		&r.ID,                 // 1
		&r.Name,               // 2
		&r.RackID,             // 3
		&r.UStart,             // 4
		&r.UHeight,            // 5
		&r.Status,             // 6
		&r.PowerKw,            // 7
		&r.LogicalEquipmentID, // 8
		&r.DeviceTypeID,       // 9
		&r.IsActive,           // 10
		&r.CreatedAt,          // 11
		&r.UpdatedAt,          // 12
	}
}

func (r *deviceRow) toDomain() domain.Device {
	return domain.Device{
		ID:                 r.ID,
		Name:               r.Name,
		RackID:             r.RackID,
		UStart:             r.UStart,
		UHeight:            r.UHeight,
		Status4D:           domain.Status4D(r.Status),
		PowerKw:            r.PowerKw,
		LogicalEquipmentID: nullToString(r.LogicalEquipmentID),
		DeviceTypeID:       nullToString(r.DeviceTypeID),
		IsActive:           r.IsActive,
		CreatedAt:          r.CreatedAt.UTC(),
		UpdatedAt:          r.UpdatedAt.UTC(),
	}
}

// deviceInsertArgs returns arguments in deviceColumns order
func deviceInsertArgs(d *domain.Device) []any {
	return []any{
		d.ID,
		d.Name,
		d.RackID,
		d.UStart,
		d.UHeight,
		string(d.Status4D),
		d.PowerKw,
		stringToNull(d.LogicalEquipmentID),
		stringToNull(d.DeviceTypeID),
		d.IsActive,
		d.CreatedAt.UTC(),
		d.UpdatedAt.UTC(),
	}
}

// historyColumns is the SELECT column list for history queries
const historyColumns = `id, device_id, device_name, change_set_id, modification_type, target_phase,
	scheduled_date, is_applied, from_location, to_location, status_change, notes,
	user_id, idempotency_key, created_at`

// historyRow holds all columns from a history query for scanning
type historyRow struct {
	ID               string
	DeviceID         string
	DeviceName       string
	ChangeSetID      string
	ModificationType string
	TargetPhase      sql.NullString
	ScheduledDate    sql.NullTime
	IsApplied        bool
	FromLocationJSON sql.NullString
	ToLocationJSON   sql.NullString
	StatusChange     sql.NullString
	Notes            sql.NullString
	UserID           string
	IdempotencyKey   sql.NullString
	CreatedAt        time.Time
}

func (r *historyRow) scanArgs() []any {
	return []any{
		&r.ID,               // 1
		&r.DeviceID,         // 2
		&r.DeviceName,       // 3
		&r.ChangeSetID,      // 4
		&r.ModificationType, // 5
		&r.TargetPhase,      // 6
		&r.ScheduledDate,    // 7
		&r.IsApplied,        // 8
		&r.FromLocationJSON, // 9
		&r.ToLocationJSON,   // 10
		&r.StatusChange,     // 11
		&r.Notes,            // 12
		&r.UserID,           // 13
		&r.IdempotencyKey,   // 14
		&r.CreatedAt,        // 15
	}
}

func (r *historyRow) toDomain() (domain.EquipmentHistory, error) {
	h := domain.EquipmentHistory{
		ID:               r.ID,
		DeviceID:         r.DeviceID,
		DeviceName:       r.DeviceName,
		ChangeSetID:      r.ChangeSetID,
		ModificationType: domain.ModificationType(r.ModificationType),
		TargetPhase:      domain.Phase(nullToString(r.TargetPhase)),
		ScheduledDate:    nullToTimePtr(r.ScheduledDate),
		IsApplied:        r.IsApplied,
		StatusChange:     nullToString(r.StatusChange),
		Notes:            nullToString(r.Notes),
		UserID:           r.UserID,
		IdempotencyKey:   nullToString(r.IdempotencyKey),
		Timestamp:        r.CreatedAt.UTC(),
	}

	if r.FromLocationJSON.Valid {
		h.FromLocation = &domain.Location{}
		if err := unmarshalJSONField(r.FromLocationJSON, h.FromLocation); err != nil {
			return h, fmt.Errorf("unmarshal from_location: %w", err)
		}
	}
	if r.ToLocationJSON.Valid {
		h.ToLocation = &domain.Location{}
		if err := unmarshalJSONField(r.ToLocationJSON, h.ToLocation); err != nil {
			return h, fmt.Errorf("unmarshal to_location: %w", err)
		}
	}
	return h, nil
}

// historyInsertArgs returns arguments in historyColumns order
func historyInsertArgs(h *domain.EquipmentHistory) ([]any, error) {
	from, err := marshalToNull(h.FromLocation)
	if err != nil {
		return nil, fmt.Errorf("marshal from_location: %w", err)
	}
	to, err := marshalToNull(h.ToLocation)
	if err != nil {
		return nil, fmt.Errorf("marshal to_location: %w", err)
	}

	return []any{
		h.ID,
		h.DeviceID,
		h.DeviceName,
		h.ChangeSetID,
		string(h.ModificationType),
		stringToNull(string(h.TargetPhase)),
		timePtrToNull(h.ScheduledDate),
		h.IsApplied,
		from,
		to,
		stringToNull(h.StatusChange),
		stringToNull(h.Notes),
		h.UserID,
		stringToNull(h.IdempotencyKey),
		h.Timestamp.UTC(),
	}, nil
}

// anomalyColumns is the SELECT column list for anomaly queries
const anomalyColumns = `id, site_id, anomaly_type, severity, status, assigned_to, notes, device_ids,
	identity_key, expected, observed, fingerprint, created_at, updated_at`

// anomalyRow holds all columns from an anomaly query for scanning
type anomalyRow struct {
	ID            string
	SiteID        string
	Type          string
	Severity      string
	Status        string
	AssignedTo    sql.NullString
	Notes         sql.NullString
	DeviceIDsJSON sql.NullString
	IdentityKey   string
	ExpectedJSON  sql.NullString
	ObservedJSON  sql.NullString
	Fingerprint   sql.NullString
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (r *anomalyRow) scanArgs() []any {
	return []any{
		&r.ID,            // 1
		&r.SiteID,        // 2
		&r.Type,          // 3
		&r.Severity,      // 4
		&r.Status,        // 5
		&r.AssignedTo,    // 6
		&r.Notes,         // 7
		&r.DeviceIDsJSON, // 8
		&r.IdentityKey,   // 9
		&r.ExpectedJSON,  // 10
		&r.ObservedJSON,  // 11
		&r.Fingerprint,   // 12
		&r.CreatedAt,     // 13
		&r.UpdatedAt,     // 14
	}
}

func (r *anomalyRow) toDomain() (domain.Anomaly, error) {
	a := domain.Anomaly{
		ID:          r.ID,
		SiteID:      r.SiteID,
		Type:        domain.AnomalyType(r.Type),
		Severity:    domain.Severity(r.Severity),
		Status:      domain.AnomalyStatus(r.Status),
		AssignedTo:  nullToString(r.AssignedTo),
		Notes:       nullToString(r.Notes),
		IdentityKey: r.IdentityKey,
		Fingerprint: nullToString(r.Fingerprint),
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
	if err := unmarshalJSONField(r.DeviceIDsJSON, &a.DeviceIDs); err != nil {
		return a, fmt.Errorf("unmarshal device_ids: %w", err)
	}
	if err := unmarshalJSONField(r.ExpectedJSON, &a.Expected); err != nil {
		return a, fmt.Errorf("unmarshal expected: %w", err)
	}
	if err := unmarshalJSONField(r.ObservedJSON, &a.Observed); err != nil {
		return a, fmt.Errorf("unmarshal observed: %w", err)
	}
	return a, nil
}

// anomalyInsertArgs returns arguments in anomalyColumns order
func anomalyInsertArgs(a *domain.Anomaly) ([]any, error) {
	deviceIDs, err := marshalToNull(a.DeviceIDs)
	if err != nil {
		return nil, fmt.Errorf("marshal device_ids: %w", err)
	}
	expected, err := marshalToNull(a.Expected)
	if err != nil {
		return nil, fmt.Errorf("marshal expected: %w", err)
	}
	observed, err := marshalToNull(a.Observed)
	if err != nil {
		return nil, fmt.Errorf("marshal observed: %w", err)
	}

	return []any{
		a.ID,
		a.SiteID,
		string(a.Type),
		string(a.Severity),
		string(a.Status),
		stringToNull(a.AssignedTo),
		stringToNull(a.Notes),
		deviceIDs,
		a.IdentityKey,
		expected,
		observed,
		stringToNull(a.Fingerprint),
		a.CreatedAt.UTC(),
		a.UpdatedAt.UTC(),
	}, nil
}
