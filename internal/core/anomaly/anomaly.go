// Package anomaly diffs a physical verification scan against the canonical
// inventory of a site and classifies every discrepancy.
//
// Detection is pure: it reads only its arguments and the injected clock, so a
// caller can preview the result before persisting it.
package anomaly

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"dctwin/internal/clock"
	"dctwin/internal/domain"
)

// Detector classifies scan discrepancies with a fixed severity policy
type Detector struct {
	policy SeverityPolicy
	clock  clock.Clock
}

// NewDetector creates a detector
func NewDetector(policy SeverityPolicy, clk clock.Clock) *Detector {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Detector{policy: policy, clock: clk}
}

// Policy returns the detector's severity thresholds
func (d *Detector) Policy() SeverityPolicy {
	return d.policy
}

// match pairs a canonical device with the scan record that identified it
type match struct {
	device *domain.Device
	record *domain.VerificationRecord
}

// Detect compares the scan records against the site's canonical devices.
// Inactive devices are ignored. The result is ordered by anomaly type, then
// identity key.
func (d *Detector) Detect(siteID string, devices []domain.Device, records []domain.VerificationRecord) []domain.Anomaly {
	now := d.clock.Now()

	canon := make([]domain.Device, 0, len(devices))
	for _, dev := range devices {
		if dev.IsActive {
			canon = append(canon, dev)
		}
	}
	sort.Slice(canon, func(i, j int) bool { return canon[i].ID < canon[j].ID })

	byKey := make(map[string][]int)
	byPosition := make(map[string][]int)
	for i := range canon {
		key := domain.DeviceIdentityKey(&canon[i])
		byKey[key] = append(byKey[key], i)
		pos := domain.PositionKey(canon[i].RackID, canon[i].UStart)
		byPosition[pos] = append(byPosition[pos], i)
	}

	matched := make([]bool, len(canon))
	seenKeys := make(map[string]bool)
	var matches []match
	var out []domain.Anomaly

	for i := range records {
		rec := &records[i]
		key := rec.IdentityKey()
		duplicate := seenKeys[key]
		seenKeys[key] = true

		idx := -1
		if !duplicate {
			idx = pick(canon, matched, byKey[key], rec)
			if idx < 0 && rec.LogicalEquipmentID == "" {
				idx = pick(canon, matched, byPosition[domain.PositionKey(rec.RackID, rec.UStart)], rec)
			}
		}

		if idx < 0 {
			if rec.Observation() == domain.ObservedPresent {
				out = append(out, d.unexpected(siteID, rec, duplicate))
			}
			continue
		}
		matched[idx] = true
		matches = append(matches, match{device: &canon[idx], record: rec})
	}

	for i := range canon {
		if !matched[i] && canon[i].Status4D.ExpectedPresence() == domain.PresenceExpected {
			out = append(out, d.missing(siteID, &canon[i]))
		}
	}

	for _, m := range matches {
		if a, ok := d.classify(siteID, m.device, m.record); ok {
			out = append(out, a)
		}
	}

	for i := range out {
		out[i].Status = domain.AnomalyOpen
		out[i].CreatedAt = now
		out[i].UpdatedAt = now
	}

	sort.SliceStable(out, func(i, j int) bool {
		if ri, rj := out[i].Type.Rank(), out[j].Type.Rank(); ri != rj {
			return ri < rj
		}
		return out[i].IdentityKey < out[j].IdentityKey
	})
	return out
}

// pick chooses among unmatched candidates, preferring the device at the
// recorded position and then the one expected to be installed.
func pick(canon []domain.Device, matched []bool, candidates []int, rec *domain.VerificationRecord) int {
	best, bestRank := -1, math.MaxInt
	for _, i := range candidates {
		if matched[i] {
			continue
		}
		rank := presenceRank(canon[i].Status4D.ExpectedPresence())
		if canon[i].RackID != rec.RackID || canon[i].UStart != rec.UStart {
			rank += 10
		}
		if rank < bestRank {
			best, bestRank = i, rank
		}
	}
	return best
}

func presenceRank(p domain.Presence) int {
	switch p {
	case domain.PresenceExpected:
		return 0
	case domain.PresenceEither:
		return 1
	}
	return 2
}

func (d *Detector) missing(siteID string, dev *domain.Device) domain.Anomaly {
	return domain.Anomaly{
		SiteID:      siteID,
		Type:        domain.AnomalyMissing,
		Severity:    d.policy.missing(dev.PowerKw),
		DeviceIDs:   []string{dev.ID},
		IdentityKey: domain.DeviceIdentityKey(dev),
		Expected:    deviceSnapshot(dev),
		Notes: fmt.Sprintf("expected %s at %s (%s, %.1f kW), observed nothing",
			dev.Name, dev.Location(), dev.Status4D, dev.PowerKw),
	}
}

func (d *Detector) unexpected(siteID string, rec *domain.VerificationRecord, duplicate bool) domain.Anomaly {
	note := fmt.Sprintf("expected nothing, observed %s", describeRecord(rec))
	if duplicate {
		note = fmt.Sprintf("expected one record for %s, observed another at %s", rec.IdentityKey(), recordLocation(rec))
	}
	return domain.Anomaly{
		SiteID:      siteID,
		Type:        domain.AnomalyUnexpected,
		Severity:    d.policy.unexpected(rec.PowerKw),
		IdentityKey: rec.IdentityKey(),
		Observed:    recordSnapshot(rec),
		Notes:       note,
	}
}

// classify checks a matched pair in order: status, then location, then attributes.
// The first check that fails decides the anomaly.
func (d *Detector) classify(siteID string, dev *domain.Device, rec *domain.VerificationRecord) (domain.Anomaly, bool) {
	a := domain.Anomaly{
		SiteID:      siteID,
		DeviceIDs:   []string{dev.ID},
		IdentityKey: domain.DeviceIdentityKey(dev),
		Expected:    deviceSnapshot(dev),
		Observed:    recordSnapshot(rec),
	}

	present := rec.Observation() == domain.ObservedPresent
	switch expected := dev.Status4D.ExpectedPresence(); {
	case expected == domain.PresenceExpected && !present:
		a.Type = domain.AnomalyStatusMismatch
		a.Severity = d.policy.status(true)
		a.Notes = fmt.Sprintf("expected %s installed at %s (%s), observed absent", dev.Name, dev.Location(), dev.Status4D)
		return a, true
	case expected == domain.PresenceAbsent && present:
		a.Type = domain.AnomalyStatusMismatch
		a.Severity = d.policy.status(false)
		a.Notes = fmt.Sprintf("expected %s not yet installed (%s), observed %s", dev.Name, dev.Status4D, describeRecord(rec))
		return a, true
	case !present:
		return a, false
	}

	rackChanged := rec.RackID != "" && rec.RackID != dev.RackID
	uChanged := rec.UStart > 0 && rec.UStart != dev.UStart
	if rackChanged || uChanged {
		a.Type = domain.AnomalyLocationMismatch
		a.Severity = d.policy.location(rackChanged)
		a.Notes = fmt.Sprintf("expected %s at %s, observed at %s", dev.Name, dev.Location(), recordLocation(rec))
		return a, true
	}

	var diffs []string
	shapeChanged := false
	if rec.DeviceTypeID != "" && rec.DeviceTypeID != dev.DeviceTypeID {
		diffs = append(diffs, fmt.Sprintf("type %q vs %q", dev.DeviceTypeID, rec.DeviceTypeID))
		shapeChanged = true
	}
	if rec.UHeight > 0 && rec.UHeight != dev.UHeight {
		diffs = append(diffs, fmt.Sprintf("height %dU vs %dU", dev.UHeight, rec.UHeight))
		shapeChanged = true
	}
	var powerDelta float64
	if rec.PowerKw != nil {
		if delta := *rec.PowerKw - dev.PowerKw; math.Abs(delta) > d.policy.PowerToleranceKw {
			powerDelta = delta
			diffs = append(diffs, fmt.Sprintf("power %.2f kW vs %.2f kW", dev.PowerKw, *rec.PowerKw))
		}
	}
	if len(diffs) == 0 {
		return a, false
	}

	a.Type = domain.AnomalyAttributeMismatch
	a.Severity = d.policy.attribute(powerDelta, shapeChanged)
	a.Notes = fmt.Sprintf("expected vs observed for %s: %s", dev.Name, strings.Join(diffs, "; "))
	return a, true
}

func deviceSnapshot(dev *domain.Device) map[string]any {
	m := map[string]any{
		"name":      dev.Name,
		"rack_id":   dev.RackID,
		"u_start":   dev.UStart,
		"u_height":  dev.UHeight,
		"status_4d": string(dev.Status4D),
		"power_kw":  dev.PowerKw,
	}
	if dev.DeviceTypeID != "" {
		m["device_type_id"] = dev.DeviceTypeID
	}
	if dev.LogicalEquipmentID != "" {
		m["logical_equipment_id"] = dev.LogicalEquipmentID
	}
	return m
}

func recordSnapshot(rec *domain.VerificationRecord) map[string]any {
	m := map[string]any{"observed": string(rec.Observation())}
	if rec.LogicalEquipmentID != "" {
		m["logical_equipment_id"] = rec.LogicalEquipmentID
	}
	if rec.RackID != "" {
		m["rack_id"] = rec.RackID
	}
	if rec.UStart > 0 {
		m["u_start"] = rec.UStart
	}
	if rec.UHeight > 0 {
		m["u_height"] = rec.UHeight
	}
	if rec.DeviceTypeID != "" {
		m["device_type_id"] = rec.DeviceTypeID
	}
	if rec.PowerKw != nil {
		m["power_kw"] = *rec.PowerKw
	}
	if rec.Serial != "" {
		m["serial"] = rec.Serial
	}
	return m
}

func recordLocation(rec *domain.VerificationRecord) string {
	if rec.RackID == "" {
		return "unknown position"
	}
	return (&domain.Location{RackID: rec.RackID, UStart: rec.UStart}).String()
}

func describeRecord(rec *domain.VerificationRecord) string {
	var b strings.Builder
	if rec.LogicalEquipmentID != "" {
		fmt.Fprintf(&b, "%s ", rec.LogicalEquipmentID)
	} else if rec.DeviceTypeID != "" {
		fmt.Fprintf(&b, "%s ", rec.DeviceTypeID)
	} else {
		b.WriteString("equipment ")
	}
	fmt.Fprintf(&b, "at %s", recordLocation(rec))
	if rec.PowerKw != nil {
		fmt.Fprintf(&b, " drawing %.1f kW", *rec.PowerKw)
	}
	return b.String()
}
