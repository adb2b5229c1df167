package wheel

import (
	"fmt"
	"math"

	"github.com/samber/lo"
)

// DefaultSlots is the production wheel: twelve 30-degree slots, reward slots
// interleaved with NO REWARD slots. Weights are relative, not normalized.
func DefaultSlots() []PrizeSlot {
	return []PrizeSlot{
		{Label: "FREE BURGER", AngleFrom: 330, AngleTo: 360, AngleCenter: 345, Weight: 0.05},
		{Label: NoRewardLabel, AngleFrom: 300, AngleTo: 330, AngleCenter: 315, Weight: 0.5},
		{Label: "20% OFF", AngleFrom: 270, AngleTo: 300, AngleCenter: 285, Weight: 0.1},
		{Label: NoRewardLabel, AngleFrom: 240, AngleTo: 270, AngleCenter: 255, Weight: 0.5},
		{Label: "10% OFF", AngleFrom: 210, AngleTo: 240, AngleCenter: 225, Weight: 0.15},
		{Label: NoRewardLabel, AngleFrom: 180, AngleTo: 210, AngleCenter: 195, Weight: 0.5},
		{Label: "30% OFF", AngleFrom: 150, AngleTo: 180, AngleCenter: 165, Weight: 0.05},
		{Label: NoRewardLabel, AngleFrom: 120, AngleTo: 150, AngleCenter: 135, Weight: 0.5},
		{Label: "20% OFF", AngleFrom: 90, AngleTo: 120, AngleCenter: 105, Weight: 0.1},
		{Label: NoRewardLabel, AngleFrom: 60, AngleTo: 90, AngleCenter: 75, Weight: 0.5},
		{Label: "10% OFF", AngleFrom: 30, AngleTo: 60, AngleCenter: 45, Weight: 0.15},
		{Label: NoRewardLabel, AngleFrom: 0, AngleTo: 30, AngleCenter: 15, Weight: 0.5},
	}
}

// Table is the immutable prize catalog plus its angle partition. Built once at
// process start; all methods are read-only.
type Table struct {
	slots      []PrizeSlot
	cumulative []float64
	total      float64
}

// NewTable validates the slot set and builds the cumulative weight index.
// Slots must partition [0, 360) with positive weights and non-empty labels.
func NewTable(slots []PrizeSlot) (*Table, error) {
	if len(slots) == 0 {
		return nil, fmt.Errorf("prize table requires at least one slot")
	}

	var covered float64
	wrapSlots := 0
	for i, s := range slots {
		if s.Label == "" {
			return nil, fmt.Errorf("slot %d: empty label", i)
		}
		if s.Weight <= 0 {
			return nil, fmt.Errorf("slot %d (%s): weight must be positive, got %v", i, s.Label, s.Weight)
		}
		if s.AngleFrom < 0 || s.AngleFrom >= 360 || s.AngleTo < 0 || s.AngleTo > 360 {
			return nil, fmt.Errorf("slot %d (%s): angle range [%v, %v) outside [0, 360)", i, s.Label, s.AngleFrom, s.AngleTo)
		}
		if s.AngleFrom > s.AngleTo {
			wrapSlots++
			covered += (360 - s.AngleFrom) + s.AngleTo
		} else if s.AngleFrom == s.AngleTo {
			return nil, fmt.Errorf("slot %d (%s): empty angle range", i, s.Label)
		} else {
			covered += s.AngleTo - s.AngleFrom
		}
	}
	if wrapSlots > 1 {
		return nil, fmt.Errorf("at most one wrap-around slot allowed, got %d", wrapSlots)
	}
	if math.Abs(covered-360) > 1e-9 {
		return nil, fmt.Errorf("slots cover %v degrees, want exactly 360", covered)
	}
	// Coverage of 360 degrees with no negative-size ranges implies the ranges
	// are disjoint only if no two slots contain the same angle; spot-check the
	// range starts, which is sufficient for half-open ranges.
	for i, s := range slots {
		owners := lo.CountBy(slots, func(o PrizeSlot) bool { return o.Contains(s.AngleFrom) })
		if owners != 1 {
			return nil, fmt.Errorf("angle %v (start of slot %d) matched by %d slots, want 1", s.AngleFrom, i, owners)
		}
	}

	t := &Table{
		slots:      make([]PrizeSlot, len(slots)),
		cumulative: make([]float64, len(slots)),
	}
	copy(t.slots, slots)
	for i, s := range t.slots {
		t.total += s.Weight
		t.cumulative[i] = t.total
	}
	return t, nil
}

// MustDefaultTable builds the compiled-in production table. Panics only on a
// programming error in DefaultSlots.
func MustDefaultTable() *Table {
	t, err := NewTable(DefaultSlots())
	if err != nil {
		panic(fmt.Sprintf("default prize table invalid: %v", err))
	}
	return t
}

// Slots returns a copy of the slot sequence.
func (t *Table) Slots() []PrizeSlot {
	out := make([]PrizeSlot, len(t.slots))
	copy(out, t.slots)
	return out
}

// TotalWeight returns the sum of all slot weights.
func (t *Table) TotalWeight() float64 {
	return t.total
}

// Labels returns the distinct outcome labels in slot order.
func (t *Table) Labels() []string {
	return lo.Uniq(lo.Map(t.slots, func(s PrizeSlot, _ int) string { return s.Label }))
}

// slotAt returns the slot whose cumulative weight range contains r, where r is
// drawn from [0, total). The scan is stable: on a boundary tie the lower slot
// wins.
func (t *Table) slotAt(r float64) PrizeSlot {
	for i, cum := range t.cumulative {
		if r <= cum {
			return t.slots[i]
		}
	}
	return t.slots[len(t.slots)-1]
}

// OutcomeForAngle maps a concrete rotation angle back to its slot. Total over
// [0, 360): an angle no slot claims (unreachable given the partition check)
// falls back to the first slot rather than failing.
func (t *Table) OutcomeForAngle(angle float64) PrizeSlot {
	angle = math.Mod(angle, 360)
	if angle < 0 {
		angle += 360
	}
	for _, s := range t.slots {
		if s.Contains(angle) {
			return s
		}
	}
	return t.slots[0]
}
