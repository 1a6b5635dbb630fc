// Package capacity searches a site for the best contiguous block of racks to
// host an AI deployment.
package capacity

import (
	"fmt"
	"sort"

	"dctwin/internal/domain"
)

// Options tunes the block search
type Options struct {
	MinBlock         int     `yaml:"min_block"`
	MaxBlock         int     `yaml:"max_block"`
	MinAvgHeadroomKw float64 `yaml:"min_avg_headroom_kw"`
	PowerWeight      float64 `yaml:"power_weight"`
}

// DefaultOptions returns the standard search parameters: blocks of 3 to 6
// racks averaging at least 2 kW headroom, power weighted five times free space.
func DefaultOptions() Options {
	return Options{
		MinBlock:         3,
		MaxBlock:         6,
		MinAvgHeadroomKw: 2,
		PowerWeight:      5,
	}
}

// Block is a contiguous run of racks within one room
type Block struct {
	RoomID               string   `json:"roomId"`
	RackIDs              []string `json:"rackIds"`
	BlockSize            int      `json:"blockSize"`
	TotalFreeU           int      `json:"totalFreeU"`
	TotalPowerHeadroomKw float64  `json:"totalPowerHeadroomKw"`
	AvgHeadroomKw        float64  `json:"averageHeadroomKw"`
	Score                float64  `json:"score"`
	Summary              string   `json:"summary"`
}

// FindAIReadyCapacity returns the highest scoring block visible in phase, or
// nil when no window clears the power gate.
func FindAIReadyCapacity(model *domain.SceneModel, phase domain.Phase) (*Block, error) {
	return Find(model, phase, DefaultOptions())
}

// Find runs the block search with explicit options.
//
// Rooms are visited by id and racks within a room by name then id. Windows are
// enumerated by ascending size, then room, then start index, and a later window
// replaces the best only when it scores strictly higher.
func Find(model *domain.SceneModel, phase domain.Phase, opts Options) (*Block, error) {
	if !phase.Valid() {
		return nil, fmt.Errorf("%w: unknown phase %q", domain.ErrValidation, phase)
	}
	if opts.MinBlock < 1 || opts.MaxBlock < opts.MinBlock {
		return nil, fmt.Errorf("%w: invalid block size range %d..%d", domain.ErrValidation, opts.MinBlock, opts.MaxBlock)
	}

	rooms := racksByRoom(model)
	roomIDs := make([]string, 0, len(rooms))
	for id := range rooms {
		roomIDs = append(roomIDs, id)
	}
	sort.Strings(roomIDs)

	occupied := make(map[string]int)
	for _, d := range model.Devices {
		if d.VisibleIn(phase) {
			occupied[d.RackID] += d.UHeight
		}
	}

	var best *Block
	for size := opts.MinBlock; size <= opts.MaxBlock; size++ {
		for _, roomID := range roomIDs {
			racks := rooms[roomID]
			for start := 0; start+size <= len(racks); start++ {
				b := evaluate(roomID, racks[start:start+size], occupied, opts)
				if b == nil {
					continue
				}
				if best == nil || b.Score > best.Score {
					best = b
				}
			}
		}
	}

	if best != nil {
		best.Summary = fmt.Sprintf("%d contiguous racks in room %s (%s to %s): %dU free, %.1f kW headroom (avg %.1f kW/rack)",
			best.BlockSize, best.RoomID, best.RackIDs[0], best.RackIDs[len(best.RackIDs)-1],
			best.TotalFreeU, best.TotalPowerHeadroomKw, best.AvgHeadroomKw)
	}
	return best, nil
}

func racksByRoom(model *domain.SceneModel) map[string][]domain.Rack {
	rooms := make(map[string][]domain.Rack)
	for _, r := range model.Racks {
		rooms[r.RoomID] = append(rooms[r.RoomID], r)
	}
	for _, racks := range rooms {
		sort.Slice(racks, func(i, j int) bool {
			if racks[i].Name != racks[j].Name {
				return racks[i].Name < racks[j].Name
			}
			return racks[i].ID < racks[j].ID
		})
	}
	return rooms
}

// evaluate scores one window, returning nil when it fails the power gate
func evaluate(roomID string, window []domain.Rack, occupied map[string]int, opts Options) *Block {
	b := &Block{RoomID: roomID, BlockSize: len(window), RackIDs: make([]string, 0, len(window))}
	for i := range window {
		r := &window[i]
		b.RackIDs = append(b.RackIDs, r.ID)
		if free := r.UHeight - occupied[r.ID]; free > 0 {
			b.TotalFreeU += free
		}
		b.TotalPowerHeadroomKw += r.PowerHeadroomKw()
	}

	b.AvgHeadroomKw = b.TotalPowerHeadroomKw / float64(b.BlockSize)
	if b.AvgHeadroomKw < opts.MinAvgHeadroomKw {
		return nil
	}
	b.Score = float64(b.TotalFreeU) + b.TotalPowerHeadroomKw*opts.PowerWeight
	return b
}
