package domain

// SceneModel is the in-memory rack/device graph of one site
type SceneModel struct {
	Site    Site     `json:"site"`
	Rooms   []Room   `json:"rooms"`
	Racks   []Rack   `json:"racks"`
	Devices []Device `json:"devices"`
}

// NewSceneModel creates an empty scene for a site
func NewSceneModel(site Site) *SceneModel {
	return &SceneModel{
		Site:    site,
		Rooms:   make([]Room, 0),
		Racks:   make([]Rack, 0),
		Devices: make([]Device, 0),
	}
}

// DevicesByRack indexes devices by rack id
func (m *SceneModel) DevicesByRack() map[string][]Device {
	out := make(map[string][]Device, len(m.Racks))
	for _, d := range m.Devices {
		out[d.RackID] = append(out[d.RackID], d)
	}
	return out
}

// ActiveDevices returns the devices that have not been soft-deleted
func (m *SceneModel) ActiveDevices() []Device {
	out := make([]Device, 0, len(m.Devices))
	for _, d := range m.Devices {
		if d.IsActive {
			out = append(out, d)
		}
	}
	return out
}

// ForPhase returns a copy of the scene holding only devices visible in phase p
func (m *SceneModel) ForPhase(p Phase) *SceneModel {
	view := &SceneModel{
		Site:    m.Site,
		Rooms:   m.Rooms,
		Racks:   m.Racks,
		Devices: make([]Device, 0, len(m.Devices)),
	}
	for _, d := range m.Devices {
		if d.VisibleIn(p) {
			view.Devices = append(view.Devices, d)
		}
	}
	return view
}

// OccupiedU sums the height of devices visible in phase p
func OccupiedU(devices []Device, p Phase) int {
	total := 0
	for _, d := range devices {
		if d.VisibleIn(p) {
			total += d.UHeight
		}
	}
	return total
}
