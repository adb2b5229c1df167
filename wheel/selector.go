package wheel

import "math"

// RandFloat64 yields a uniform draw in [0, 1). Satisfied by *math/rand.Rand;
// injected so draws are deterministic under test.
type RandFloat64 interface {
	Float64() float64
}

// Selector performs weighted random draws over a Table.
type Selector struct {
	table *Table
	rng   RandFloat64
}

// NewSelector builds a selector over the given table and random source.
func NewSelector(table *Table, rng RandFloat64) *Selector {
	return &Selector{table: table, rng: rng}
}

// SelectOutcome draws one slot, weighted by the table's relative weights.
// Pure apart from consuming the random source.
func (s *Selector) SelectOutcome() PrizeSlot {
	r := s.rng.Float64() * s.table.TotalWeight()
	return s.table.slotAt(r)
}

// SelectLanding draws a slot and a concrete landing angle uniformly inside it,
// so the presentation layer can animate the wheel to a plausible stop position.
// The angle always maps back to the drawn slot via OutcomeForAngle.
func (s *Selector) SelectLanding() (PrizeSlot, float64) {
	slot := s.SelectOutcome()
	return slot, s.angleWithin(slot)
}

// angleWithin picks an integral angle inside the slot's range, wrapping when
// the slot crosses 0.
func (s *Selector) angleWithin(slot PrizeSlot) float64 {
	span := slot.AngleTo - slot.AngleFrom
	if slot.AngleFrom > slot.AngleTo {
		span = (360 - slot.AngleFrom) + slot.AngleTo
	}
	angle := slot.AngleFrom + math.Floor(s.rng.Float64()*span)
	if angle >= 360 {
		angle -= 360
	}
	return angle
}
