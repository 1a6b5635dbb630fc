package codec

import (
	"fmt"
	"sort"

	"dctwin/internal/domain"
)

// sceneDocument is the nested on-disk shape of a site scene:
// site > rooms > racks > devices.
type sceneDocument struct {
	Site  domain.Site `yaml:"site" json:"site"`
	Rooms []roomDoc   `yaml:"rooms" json:"rooms"`
}

type roomDoc struct {
	ID    string    `yaml:"id" json:"id"`
	Name  string    `yaml:"name" json:"name"`
	Racks []rackDoc `yaml:"racks,omitempty" json:"racks,omitempty"`
}

type rackDoc struct {
	ID             string      `yaml:"id" json:"id"`
	Name           string      `yaml:"name" json:"name"`
	UHeight        int         `yaml:"u_height" json:"u_height"`
	PowerKwLimit   float64     `yaml:"power_kw_limit" json:"power_kw_limit"`
	CurrentPowerKw float64     `yaml:"current_power_kw,omitempty" json:"current_power_kw,omitempty"`
	Devices        []deviceDoc `yaml:"devices,omitempty" json:"devices,omitempty"`
}

type deviceDoc struct {
	ID                 string  `yaml:"id,omitempty" json:"id,omitempty"`
	Name               string  `yaml:"name" json:"name"`
	UStart             int     `yaml:"u_start" json:"u_start"`
	UHeight            int     `yaml:"u_height" json:"u_height"`
	Status4D           string  `yaml:"status_4d,omitempty" json:"status_4d,omitempty"`
	PowerKw            float64 `yaml:"power_kw,omitempty" json:"power_kw,omitempty"`
	LogicalEquipmentID string  `yaml:"logical_equipment_id,omitempty" json:"logical_equipment_id,omitempty"`
	DeviceTypeID       string  `yaml:"device_type_id,omitempty" json:"device_type_id,omitempty"`
	Inactive           bool    `yaml:"inactive,omitempty" json:"inactive,omitempty"`
}

// scanDocument is the on-disk shape of a verification scan
type scanDocument struct {
	SiteID  string                      `yaml:"site_id,omitempty" json:"site_id,omitempty"`
	Records []domain.VerificationRecord `yaml:"records" json:"records"`
}

// toModel flattens a parsed document. Devices without a status default to EXISTING_RETAINED.
func (doc *sceneDocument) toModel() (*domain.SceneModel, error) {
	if doc.Site.ID == "" {
		return nil, fmt.Errorf("%w: scene has no site id", domain.ErrValidation)
	}

	model := domain.NewSceneModel(doc.Site)
	for _, rd := range doc.Rooms {
		model.Rooms = append(model.Rooms, domain.Room{ID: rd.ID, SiteID: doc.Site.ID, Name: rd.Name})
		for _, kd := range rd.Racks {
			model.Racks = append(model.Racks, domain.Rack{
				ID:             kd.ID,
				RoomID:         rd.ID,
				Name:           kd.Name,
				UHeight:        kd.UHeight,
				PowerKwLimit:   kd.PowerKwLimit,
				CurrentPowerKw: kd.CurrentPowerKw,
			})
			for _, dd := range kd.Devices {
				status := domain.Status4D(dd.Status4D)
				if status == "" {
					status = domain.StatusExistingRetained
				}
				model.Devices = append(model.Devices, domain.Device{
					ID:                 dd.ID,
					Name:               dd.Name,
					RackID:             kd.ID,
					UStart:             dd.UStart,
					UHeight:            dd.UHeight,
					Status4D:           status,
					PowerKw:            dd.PowerKw,
					LogicalEquipmentID: dd.LogicalEquipmentID,
					DeviceTypeID:       dd.DeviceTypeID,
					IsActive:           !dd.Inactive,
				})
			}
		}
	}
	return model, nil
}

// fromModel nests a model for export. Rooms, racks and devices are ordered by
// id, devices within a rack by U position.
func fromModel(model *domain.SceneModel) *sceneDocument {
	doc := &sceneDocument{Site: model.Site, Rooms: make([]roomDoc, 0, len(model.Rooms))}

	devicesByRack := model.DevicesByRack()
	racksByRoom := make(map[string][]domain.Rack)
	for _, r := range model.Racks {
		racksByRoom[r.RoomID] = append(racksByRoom[r.RoomID], r)
	}

	rooms := append([]domain.Room(nil), model.Rooms...)
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })

	for _, room := range rooms {
		rd := roomDoc{ID: room.ID, Name: room.Name}
		racks := racksByRoom[room.ID]
		sort.Slice(racks, func(i, j int) bool { return racks[i].ID < racks[j].ID })

		for _, r := range racks {
			kd := rackDoc{
				ID:             r.ID,
				Name:           r.Name,
				UHeight:        r.UHeight,
				PowerKwLimit:   r.PowerKwLimit,
				CurrentPowerKw: r.CurrentPowerKw,
			}
			devices := devicesByRack[r.ID]
			sort.Slice(devices, func(i, j int) bool {
				if devices[i].UStart != devices[j].UStart {
					return devices[i].UStart < devices[j].UStart
				}
				return devices[i].ID < devices[j].ID
			})
			for _, d := range devices {
				kd.Devices = append(kd.Devices, deviceDoc{
					ID:                 d.ID,
					Name:               d.Name,
					UStart:             d.UStart,
					UHeight:            d.UHeight,
					Status4D:           string(d.Status4D),
					PowerKw:            d.PowerKw,
					LogicalEquipmentID: d.LogicalEquipmentID,
					DeviceTypeID:       d.DeviceTypeID,
					Inactive:           !d.IsActive,
				})
			}
			rd.Racks = append(rd.Racks, kd)
		}
		doc.Rooms = append(doc.Rooms, rd)
	}
	return doc
}

func validateScan(doc *scanDocument) ([]domain.VerificationRecord, error) {
	if err := ValidateRecords(doc.Records); err != nil {
		return nil, err
	}
	if doc.Records == nil {
		return []domain.VerificationRecord{}, nil
	}
	return doc.Records, nil
}

// ValidateRecords checks verification records that arrive outside a scan
// document, such as those embedded in an API request.
func ValidateRecords(records []domain.VerificationRecord) error {
	for i, rec := range records {
		if rec.LogicalEquipmentID == "" && rec.RackID == "" {
			return fmt.Errorf("%w: record %d has neither logical_equipment_id nor rack_id", domain.ErrValidation, i+1)
		}
		switch rec.Observed {
		case "", domain.ObservedPresent, domain.ObservedAbsent:
		default:
			return fmt.Errorf("%w: record %d has unknown observation %q", domain.ErrValidation, i+1, rec.Observed)
		}
	}
	return nil
}
