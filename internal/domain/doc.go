// Package domain defines the core types of the data center digital twin.
//
// # Inventory
//
// A Site holds Rooms, a Room holds Racks, and a Rack holds Devices. A device
// occupies the half-open U interval [UStart, UStart+UHeight) and carries a
// Status4D lifecycle tag.
//
// # Phases
//
// Three planning phases (AS_IS, TO_BE, FUTURE) each show a fixed set of
// statuses. Phase.Shows and Status4D.VisibleIn are the single source of that
// mapping; soft-deleted devices are visible in no phase.
//
// # History and Anomalies
//
// EquipmentHistory is the append-only audit trail written by moves, deletes
// and imports. Anomaly records a classified difference between a
// VerificationRecord and the canonical inventory.
//
// # Errors
//
// Operations return errors wrapping ErrNotFound, ErrValidation, ErrConflict
// or ErrInternal. KindOf maps any error to its ErrorKind; a placement
// collision is a *ConflictError listing the blocking devices.
package domain
