package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhaseShows(t *testing.T) {
	tests := []struct {
		status Status4D
		phases []Phase
	}{
		{StatusExistingRetained, []Phase{PhaseAsIs, PhaseToBe, PhaseFuture}},
		{StatusExistingRemoved, []Phase{PhaseAsIs}},
		{StatusModified, []Phase{PhaseAsIs, PhaseToBe, PhaseFuture}},
		{StatusProposed, []Phase{PhaseToBe, PhaseFuture}},
		{StatusFuture, []Phase{PhaseFuture}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.phases, tt.status.VisibleIn(), tt.status)
	}
	assert.Empty(t, Status4D("GONE").VisibleIn())
}

func TestParsePhaseAndStatus(t *testing.T) {
	p, err := ParsePhase("TO_BE")
	require.NoError(t, err)
	assert.Equal(t, PhaseToBe, p)

	_, err = ParsePhase("to_be")
	assert.ErrorIs(t, err, ErrValidation)

	s, err := ParseStatus4D("MODIFIED")
	require.NoError(t, err)
	assert.Equal(t, StatusModified, s)

	_, err = ParseStatus4D("")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestProposedStatusFor(t *testing.T) {
	s, err := ProposedStatusFor(PhaseToBe)
	require.NoError(t, err)
	assert.Equal(t, StatusProposed, s)

	s, err = ProposedStatusFor(PhaseFuture)
	require.NoError(t, err)
	assert.Equal(t, StatusFuture, s)

	_, err = ProposedStatusFor(PhaseAsIs)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestExpectedPresence(t *testing.T) {
	assert.Equal(t, PresenceExpected, StatusExistingRetained.ExpectedPresence())
	assert.Equal(t, PresenceExpected, StatusModified.ExpectedPresence())
	assert.Equal(t, PresenceAbsent, StatusProposed.ExpectedPresence())
	assert.Equal(t, PresenceAbsent, StatusFuture.ExpectedPresence())
	assert.Equal(t, PresenceEither, StatusExistingRemoved.ExpectedPresence())
}

func TestDeviceInterval(t *testing.T) {
	d := Device{UStart: 10, UHeight: 2, IsActive: true, Status4D: StatusProposed}

	assert.Equal(t, 12, d.UEnd())
	assert.True(t, d.Overlaps(11, 1))
	assert.True(t, d.Overlaps(5, 6))
	assert.False(t, d.Overlaps(12, 4), "top edge is exclusive")
	assert.False(t, d.Overlaps(8, 2))

	assert.True(t, d.VisibleIn(PhaseToBe))
	assert.False(t, d.VisibleIn(PhaseAsIs))
	d.IsActive = false
	assert.False(t, d.VisibleIn(PhaseToBe), "soft-deleted devices are never visible")
}

func TestSceneForPhase(t *testing.T) {
	m := NewSceneModel(Site{ID: "S1"})
	m.Racks = append(m.Racks, Rack{ID: "R1", UHeight: 42})
	m.Devices = append(m.Devices,
		Device{ID: "a", RackID: "R1", UStart: 1, UHeight: 2, Status4D: StatusExistingRetained, IsActive: true},
		Device{ID: "b", RackID: "R1", UStart: 1, UHeight: 4, Status4D: StatusExistingRemoved, IsActive: true},
		Device{ID: "c", RackID: "R1", UStart: 5, UHeight: 1, Status4D: StatusProposed, IsActive: true},
		Device{ID: "d", RackID: "R1", UStart: 9, UHeight: 1, Status4D: StatusExistingRetained, IsActive: false},
	)

	ids := func(v *SceneModel) []string {
		var out []string
		for _, d := range v.Devices {
			out = append(out, d.ID)
		}
		return out
	}
	assert.Equal(t, []string{"a", "b"}, ids(m.ForPhase(PhaseAsIs)))
	assert.Equal(t, []string{"a", "c"}, ids(m.ForPhase(PhaseToBe)))
	assert.Len(t, m.ActiveDevices(), 3)
	assert.Equal(t, 6, OccupiedU(m.Devices, PhaseAsIs))
	assert.Equal(t, 3, OccupiedU(m.Devices, PhaseToBe))
}

func TestErrorKinds(t *testing.T) {
	ce := &ConflictError{RackID: "R1", Phase: PhaseToBe, Devices: []Device{{ID: "d1"}, {ID: "d2"}}}
	assert.Equal(t, KindConflict, KindOf(ce))
	assert.Contains(t, ce.Error(), "rack R1 in TO_BE overlaps d1, d2")

	assert.Equal(t, KindNotFound, KindOf(fmt.Errorf("device x: %w", ErrNotFound)))
	assert.Equal(t, KindValidation, KindOf(fmt.Errorf("%w: bad", ErrValidation)))
	assert.Equal(t, KindInternal, KindOf(errors.New("disk full")))
	assert.Equal(t, ErrorKind(""), KindOf(nil))

	wrapped := Internal("list devices", errors.New("disk full"))
	assert.ErrorIs(t, wrapped, ErrInternal)
	assert.Contains(t, wrapped.Error(), "list devices")
	assert.Equal(t, ErrNotFound, Internal("get", ErrNotFound), "classified errors pass through")
	assert.NoError(t, Internal("noop", nil))
}

func TestLocationAndTransition(t *testing.T) {
	var missing *Location
	assert.Equal(t, "-", missing.String())
	assert.Equal(t, "R2/U7", (&Device{RackID: "R2", UStart: 7}).Location().String())

	assert.Equal(t, "", StatusTransition(StatusProposed, StatusProposed))
	assert.Equal(t, "PROPOSED", StatusTransition("", StatusProposed))
	assert.Equal(t, "EXISTING_RETAINED->MODIFIED", StatusTransition(StatusExistingRetained, StatusModified))
}
