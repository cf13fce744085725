package market

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Payload is one market-data update. The welcome snapshot nests quotes
// under "prices"; streamed updates may carry oil/natural_gas at the top.
//
// Decoding is lenient per branch: a block or quote that arrives with the
// wrong JSON type is treated as absent and the rest of the update still
// applies.
type Payload struct {
	Prices *PriceBook `json:"prices"`
	PriceBook
	DrillingIntelligence *DrillingIntelligence `json:"drilling_intelligence"`
	WellPermits          *WellPermitsBlock     `json:"well_permits"`
}

func (p *Payload) UnmarshalJSON(b []byte) error {
	type plain Payload
	var v plain
	if _, err := decodeObject(b, &v); err != nil {
		return err
	}
	// "prices":"n/a" still allocates the pointer; it must read as absent
	if v.Prices != nil {
		var keys struct {
			Prices json.RawMessage `json:"prices"`
		}
		_ = json.Unmarshal(b, &keys)
		if !isObject(keys.Prices) {
			v.Prices = nil
		}
	}
	*p = Payload(v)
	return nil
}

// PriceBook groups the tracked quotes by commodity.
type PriceBook struct {
	Oil        *OilPrices `json:"oil"`
	NaturalGas *GasPrices `json:"natural_gas"`
}

type OilPrices struct {
	Brent *PriceEntry `json:"brent"`
	WTI   *PriceEntry `json:"wti"`
}

func (o *OilPrices) UnmarshalJSON(b []byte) error {
	type plain OilPrices
	var v plain
	_, err := decodeObject(b, &v)
	*o = OilPrices(v)
	return err
}

type GasPrices struct {
	US *PriceEntry `json:"us"`
	UK *PriceEntry `json:"uk"`
}

func (g *GasPrices) UnmarshalJSON(b []byte) error {
	type plain GasPrices
	var v plain
	_, err := decodeObject(b, &v)
	*g = GasPrices(v)
	return err
}

// PriceEntry is the wire shape of a single quote. A non-object entry
// decodes to the zero value, which resolves to no price.
type PriceEntry struct {
	OriginalPrice   Amount `json:"original_price"`
	NormalizedPrice Amount `json:"normalized_price"`
	Change24h       Float  `json:"change_24h_percent"`
	ChangeLegacy    Float  `json:"change_percent"`
}

func (e *PriceEntry) UnmarshalJSON(b []byte) error {
	type plain PriceEntry
	var v plain
	_, err := decodeObject(b, &v)
	*e = PriceEntry(v)
	return err
}

// DrillingIntelligence carries rig, frac and DUC counts plus permits.
type DrillingIntelligence struct {
	RigCounts   *RigCounts        `json:"rig_counts"`
	FracSpreads *BasinMetrics     `json:"frac_spreads"`
	DUCWells    *BasinMetrics     `json:"duc_wells"`
	WellPermits *WellPermitsBlock `json:"well_permits"`
}

func (d *DrillingIntelligence) UnmarshalJSON(b []byte) error {
	type plain DrillingIntelligence
	var v plain
	_, err := decodeObject(b, &v)
	*d = DrillingIntelligence(v)
	return err
}

type MetricValue struct {
	Value Float `json:"value"`
}

func (m *MetricValue) UnmarshalJSON(b []byte) error {
	type plain MetricValue
	var v plain
	_, err := decodeObject(b, &v)
	*m = MetricValue(v)
	return err
}

type RigCounts struct {
	US            *MetricValue `json:"us_rigs"`
	Canada        *MetricValue `json:"canada_rigs"`
	International *MetricValue `json:"international_rigs"`
}

func (r *RigCounts) UnmarshalJSON(b []byte) error {
	type plain RigCounts
	var v plain
	_, err := decodeObject(b, &v)
	*r = RigCounts(v)
	return err
}

type BasinMetrics struct {
	Permian   *MetricValue `json:"permian"`
	EagleFord *MetricValue `json:"eagle_ford"`
	Bakken    *MetricValue `json:"bakken"`
}

func (m *BasinMetrics) UnmarshalJSON(b []byte) error {
	type plain BasinMetrics
	var v plain
	_, err := decodeObject(b, &v)
	*m = BasinMetrics(v)
	return err
}

// WellPermitsBlock is the permits aggregate as sent by the server.
type WellPermitsBlock struct {
	Summary     *PermitSummary `json:"summary"`
	ByState     StateCounts    `json:"by_state"`
	LastUpdated *string        `json:"last_updated"`

	mistyped bool
}

func (w *WellPermitsBlock) UnmarshalJSON(b []byte) error {
	type plain WellPermitsBlock
	var v plain
	ok, err := decodeObject(b, &v)
	*w = WellPermitsBlock(v)
	w.mistyped = !ok
	return err
}

// absent reports a missing block or one that was not a JSON object.
func (w *WellPermitsBlock) absent() bool { return w == nil || w.mistyped }

// PermitSummary records how many keys the object had, since an empty
// summary object leaves the stored summary alone.
type PermitSummary struct {
	Total7d      Float `json:"total_permits_7d"`
	Total30d     Float `json:"total_permits_30d"`
	ActiveStates Float `json:"active_states"`

	keys int
}

func (s *PermitSummary) UnmarshalJSON(b []byte) error {
	*s = PermitSummary{}
	var raw map[string]json.RawMessage
	if ok, err := decodeObject(b, &raw); !ok || err != nil {
		return err
	}
	type plain PermitSummary
	var p plain
	if _, err := decodeObject(b, &p); err != nil {
		return err
	}
	*s = PermitSummary(p)
	s.keys = len(raw)
	return nil
}

// Empty reports whether the summary object had no keys.
func (s *PermitSummary) Empty() bool { return s == nil || s.keys == 0 }

// StateCounts is the by_state object in the order the keys were sent.
// A by_state that is not an object decodes as empty; a state entry that is
// not an object counts as zero, the same as null.
type StateCounts []StateCount

func (sc *StateCounts) UnmarshalJSON(b []byte) error {
	*sc = nil
	if !isObject(b) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	if _, err := dec.Token(); err != nil { // {
		return err
	}
	out := StateCounts{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		state, _ := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("by_state[%s]: %w", state, err)
		}
		var entry struct {
			Count7d Float `json:"count_7d"`
		}
		if _, err := decodeObject(raw, &entry); err != nil {
			return fmt.Errorf("by_state[%s]: %w", state, err)
		}
		var count int64
		if v, ok := entry.Count7d.Finite(); ok {
			count = int64(v)
		}
		out = append(out, StateCount{State: state, Count7d: count})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*sc = out
	return nil
}

// decodeObject unmarshals b into v only when b is a JSON object and
// reports whether it was. Type mismatches below v are skipped by
// encoding/json field by field, so they are not errors here.
func decodeObject(b []byte, v interface{}) (bool, error) {
	if !isObject(b) {
		return false, nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) {
			return true, nil
		}
		return true, err
	}
	return true, nil
}

func isObject(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) > 0 && b[0] == '{'
}

// DecodePayload parses a payload object.
func DecodePayload(raw []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("market: decode payload: %w", err)
	}
	return &p, nil
}

// HasPrices reports whether the payload carries a "prices" object.
func (p *Payload) HasPrices() bool { return p != nil && p.Prices != nil }

// DecodeUpdate picks the payload of a streamed update. A nested "data"
// object wins when it carries prices; otherwise the message itself is used.
func DecodeUpdate(message []byte) (*Payload, error) {
	if m := bytes.TrimSpace(message); len(m) == 0 || bytes.Equal(m, []byte("null")) {
		return &Payload{}, nil
	}
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(message, &env); err != nil {
		return nil, fmt.Errorf("market: decode update: %w", err)
	}
	if data := env.Data; isObject(data) {
		if p, err := DecodePayload(data); err == nil && p.HasPrices() {
			return p, nil
		}
	}
	return DecodePayload(message)
}
