package market

import (
	"sort"
	"time"
)

// Changes summarizes what a single Apply touched.
type Changes struct {
	Prices   int
	Drilling int
	Permits  bool
}

// Empty reports whether nothing was updated.
func (c Changes) Empty() bool { return c.Prices == 0 && c.Drilling == 0 && !c.Permits }

// Apply merges p into s. Quotes and drilling values are sticky: a field
// missing from p never clears what is stored. Permit summaries and the
// top-states list are replaced wholesale. Applying the same payload twice
// yields the same state apart from timestamps.
func (s *State) Apply(p *Payload, receivedAt time.Time) Changes {
	var ch Changes
	if p == nil {
		return ch
	}

	book := p.Prices
	if book == nil {
		book = &p.PriceBook
	}
	for _, i := range Instruments() {
		if s.applyQuote(i, book.entry(i), receivedAt) {
			ch.Prices++
		}
	}

	if di := p.DrillingIntelligence; di != nil {
		ch.Drilling = s.applyDrilling(di)
	}

	permits := p.WellPermits
	if di := p.DrillingIntelligence; di != nil && !di.WellPermits.absent() {
		permits = di.WellPermits
	}
	if !permits.absent() {
		s.applyPermits(permits, receivedAt)
		ch.Permits = true
	}
	return ch
}

func (b *PriceBook) entry(i Instrument) *PriceEntry {
	switch i {
	case Brent:
		if b.Oil != nil {
			return b.Oil.Brent
		}
	case WTI:
		if b.Oil != nil {
			return b.Oil.WTI
		}
	case NaturalGasUS:
		if b.NaturalGas != nil {
			return b.NaturalGas.US
		}
	case NaturalGasUK:
		if b.NaturalGas != nil {
			return b.NaturalGas.UK
		}
	}
	return nil
}

func (s *State) applyQuote(i Instrument, e *PriceEntry, at time.Time) bool {
	if e == nil {
		return false
	}
	v, ok := e.Value()
	if !ok {
		return false
	}
	q := &s.Prices[i]
	q.Value = &v
	if cp, ok := e.Change(); ok {
		q.ChangePercent = &cp
	}
	ts := at
	q.UpdatedAt = &ts
	return true
}

// Value resolves the quote's price: original before normalized, bare
// numbers before minor units.
func (e *PriceEntry) Value() (float64, bool) {
	if v, ok := e.OriginalPrice.Resolve(); ok {
		return v, true
	}
	return e.NormalizedPrice.Resolve()
}

// Change returns the 24h change percent, falling back to the legacy key
// when the primary one is absent or null. Non-finite values are rejected.
func (e *PriceEntry) Change() (float64, bool) {
	f := e.Change24h
	if !f.Present || f.Null {
		f = e.ChangeLegacy
	}
	return f.Finite()
}

func (s *State) applyDrilling(di *DrillingIntelligence) int {
	var n int
	set := func(m Metric, mv *MetricValue) {
		if mv == nil {
			return
		}
		if v, ok := mv.Value.Finite(); ok {
			s.Drilling[m].Value = &v
			n++
		}
	}
	if rc := di.RigCounts; rc != nil {
		set(USRigs, rc.US)
		set(CanadaRigs, rc.Canada)
		set(InternationalRigs, rc.International)
	}
	if fs := di.FracSpreads; fs != nil {
		set(PermianFrac, fs.Permian)
		set(EagleFordFrac, fs.EagleFord)
		set(BakkenFrac, fs.Bakken)
	}
	if duc := di.DUCWells; duc != nil {
		set(PermianDUC, duc.Permian)
		set(EagleFordDUC, duc.EagleFord)
		set(BakkenDUC, duc.Bakken)
	}
	return n
}

func (s *State) applyPermits(wp *WellPermitsBlock, at time.Time) {
	if !wp.Summary.Empty() {
		s.WellPermits.Summary = WellPermitsSummary{
			Total7d:      intPtr(wp.Summary.Total7d),
			Total30d:     intPtr(wp.Summary.Total30d),
			ActiveStates: intPtr(wp.Summary.ActiveStates),
		}
	}
	if len(wp.ByState) > 0 {
		s.WellPermits.TopStates = RankStates(wp.ByState)
	}
	if wp.LastUpdated != nil && *wp.LastUpdated != "" {
		s.WellPermits.LastUpdated = *wp.LastUpdated
	} else {
		s.WellPermits.LastUpdated = at.Format(time.RFC3339)
	}
}

// RankStates returns a new list sorted by Count7d descending. Equal counts
// keep their input order.
func RankStates(in []StateCount) []StateCount {
	out := make([]StateCount, len(in))
	copy(out, in)
	sort.SliceStable(out, func(a, b int) bool { return out[a].Count7d > out[b].Count7d })
	return out
}

func intPtr(f Float) *int64 {
	v, ok := f.Finite()
	if !ok {
		return nil
	}
	n := int64(v)
	return &n
}
