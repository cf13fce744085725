package market

import "time"

// Instrument identifies one tracked quote.
type Instrument int

const (
	Brent Instrument = iota
	WTI
	NaturalGasUS
	NaturalGasUK

	instrumentCount
)

var instrumentDefs = [instrumentCount]struct {
	key, label, unit, suffix string
}{
	Brent:        {"oil.brent", "Brent Crude", "$", ""},
	WTI:          {"oil.wti", "WTI Crude", "$", ""},
	NaturalGasUS: {"natural_gas.us", "US Natural Gas", "$", "/MMBtu"},
	NaturalGasUK: {"natural_gas.uk", "UK Natural Gas", "", "p/therm"},
}

// Instruments lists all tracked instruments in display order.
func Instruments() []Instrument {
	return []Instrument{Brent, WTI, NaturalGasUS, NaturalGasUK}
}

func (i Instrument) String() string { return instrumentDefs[i].key }
func (i Instrument) Label() string  { return instrumentDefs[i].label }

// Unit returns the currency prefix and unit suffix used when printing.
func (i Instrument) Unit() (prefix, suffix string) {
	return instrumentDefs[i].unit, instrumentDefs[i].suffix
}

// Metric identifies one drilling-intelligence counter.
type Metric int

const (
	USRigs Metric = iota
	CanadaRigs
	InternationalRigs
	PermianFrac
	EagleFordFrac
	BakkenFrac
	PermianDUC
	EagleFordDUC
	BakkenDUC

	metricCount
)

var metricDefs = [metricCount]struct{ key, label string }{
	USRigs:            {"rig_counts.us_rigs", "US Rig Count"},
	CanadaRigs:        {"rig_counts.canada_rigs", "Canada Rigs"},
	InternationalRigs: {"rig_counts.international_rigs", "Intl Rigs"},
	PermianFrac:       {"frac_spreads.permian", "Permian Frac"},
	EagleFordFrac:     {"frac_spreads.eagle_ford", "Eagle Ford Frac"},
	BakkenFrac:        {"frac_spreads.bakken", "Bakken Frac"},
	PermianDUC:        {"duc_wells.permian", "Permian DUC"},
	EagleFordDUC:      {"duc_wells.eagle_ford", "Eagle Ford DUC"},
	BakkenDUC:         {"duc_wells.bakken", "Bakken DUC"},
}

func (m Metric) String() string { return metricDefs[m].key }

// PriceQuote is the latest known quote for an instrument.
// Pointer fields are never mutated in place, only replaced.
type PriceQuote struct {
	Instrument    string     `json:"instrument"`
	Value         *float64   `json:"value"`
	ChangePercent *float64   `json:"change_percent"`
	UpdatedAt     *time.Time `json:"updated_at"`
}

// DrillingMetric is the latest value of a drilling counter.
type DrillingMetric struct {
	Key   string   `json:"key"`
	Label string   `json:"label"`
	Value *float64 `json:"value"`
}

// WellPermitsSummary is replaced as a whole by every summary block.
type WellPermitsSummary struct {
	Total7d      *int64 `json:"total_7d"`
	Total30d     *int64 `json:"total_30d"`
	ActiveStates *int64 `json:"active_states"`
}

type StateCount struct {
	State   string `json:"state"`
	Count7d int64  `json:"count_7d"`
}

type WellPermits struct {
	Summary     WellPermitsSummary `json:"summary"`
	TopStates   []StateCount       `json:"top_states"`
	LastUpdated string             `json:"last_updated,omitempty"`
}

// State holds everything known about the market. It is plain data;
// Store adds locking.
type State struct {
	Prices      [instrumentCount]PriceQuote `json:"prices"`
	Drilling    [metricCount]DrillingMetric `json:"drilling"`
	WellPermits WellPermits                 `json:"well_permits"`
}

// NewState returns an empty state with instrument keys and metric labels set.
func NewState() State {
	var s State
	for i := range s.Prices {
		s.Prices[i].Instrument = instrumentDefs[i].key
	}
	for m := range s.Drilling {
		s.Drilling[m].Key = metricDefs[m].key
		s.Drilling[m].Label = metricDefs[m].label
	}
	return s
}

// Quote returns the quote for i.
func (s *State) Quote(i Instrument) PriceQuote { return s.Prices[i] }

// Metric returns the drilling metric m.
func (s *State) Metric(m Metric) DrillingMetric { return s.Drilling[m] }

// HasDrilling reports whether any drilling metric has a value.
func (s *State) HasDrilling() bool {
	for _, d := range s.Drilling {
		if d.Value != nil {
			return true
		}
	}
	return false
}

// LastUpdate returns the most recent quote timestamp, if any.
func (s *State) LastUpdate() (time.Time, bool) {
	var last time.Time
	for _, q := range s.Prices {
		if q.UpdatedAt != nil && q.UpdatedAt.After(last) {
			last = *q.UpdatedAt
		}
	}
	return last, !last.IsZero()
}

// Clone returns a copy that shares no mutable memory with s.
func (s *State) Clone() State {
	c := *s
	if s.WellPermits.TopStates != nil {
		c.WellPermits.TopStates = make([]StateCount, len(s.WellPermits.TopStates))
		copy(c.WellPermits.TopStates, s.WellPermits.TopStates)
	}
	return c
}
