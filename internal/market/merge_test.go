package market

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func mustDecode(t *testing.T, raw string) *Payload {
	t.Helper()
	p, err := DecodePayload([]byte(raw))
	require.NoError(t, err)
	return p
}

func value(t *testing.T, v *float64) float64 {
	t.Helper()
	require.NotNil(t, v)
	return *v
}

func TestApply_StickyPrices(t *testing.T) {
	s := NewState()
	s.Apply(mustDecode(t, `{"prices":{"oil":{"brent":{"original_price":80,"change_24h_percent":1.5}}}}`), t0)
	s.Apply(mustDecode(t, `{"prices":{"oil":{"wti":{"original_price":70}}}}`), t0.Add(time.Second))

	assert.Equal(t, 80.0, value(t, s.Quote(Brent).Value))
	assert.Equal(t, 1.5, value(t, s.Quote(Brent).ChangePercent))
	assert.Equal(t, 70.0, value(t, s.Quote(WTI).Value))
	assert.Nil(t, s.Quote(NaturalGasUS).Value)
}

func TestApply_ChangePercentSticky(t *testing.T) {
	s := NewState()
	s.Apply(mustDecode(t, `{"oil":{"brent":{"original_price":80,"change_24h_percent":-2.25}}}`), t0)
	s.Apply(mustDecode(t, `{"oil":{"brent":{"original_price":81}}}`), t0)

	assert.Equal(t, 81.0, value(t, s.Quote(Brent).Value))
	assert.Equal(t, -2.25, value(t, s.Quote(Brent).ChangePercent))
}

func TestApply_RejectsNonFiniteChange(t *testing.T) {
	s := NewState()
	s.Apply(mustDecode(t, `{"oil":{"brent":{"original_price":80,"change_24h_percent":3}}}`), t0)

	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		p := &Payload{PriceBook: PriceBook{Oil: &OilPrices{Brent: &PriceEntry{
			OriginalPrice: NewAmount(82),
			Change24h:     NewFloat(bad),
		}}}}
		s.Apply(p, t0)
		assert.Equal(t, 82.0, value(t, s.Quote(Brent).Value))
		assert.Equal(t, 3.0, value(t, s.Quote(Brent).ChangePercent), "change %v must be rejected", bad)
	}
}

func TestApply_ChangeLegacyAlias(t *testing.T) {
	s := NewState()
	s.Apply(mustDecode(t, `{"oil":{"wti":{"original_price":70,"change_percent":0.4}}}`), t0)
	assert.Equal(t, 0.4, value(t, s.Quote(WTI).ChangePercent))

	s.Apply(mustDecode(t, `{"oil":{"wti":{"original_price":70,"change_24h_percent":null,"change_percent":0.9}}}`), t0)
	assert.Equal(t, 0.9, value(t, s.Quote(WTI).ChangePercent))
}

func TestApply_ValuePrecedence(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want float64
	}{
		{"original number", `{"original_price":80.5,"normalized_price":13.9}`, 80.5},
		{"original cents", `{"original_price":{"cents":7234,"currency_iso":"USD"},"normalized_price":1}`, 72.34},
		{"normalized number", `{"original_price":null,"normalized_price":13.9}`, 13.9},
		{"normalized cents", `{"normalized_price":{"cents":345}}`, 3.45},
		{"string original ignored", `{"original_price":"80","normalized_price":{"cents":100}}`, 1.00},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := NewState()
			s.Apply(mustDecode(t, `{"prices":{"natural_gas":{"us":`+c.raw+`}}}`), t0)
			assert.Equal(t, c.want, value(t, s.Quote(NaturalGasUS).Value))
		})
	}
}

func TestApply_UnresolvableValueLeavesQuote(t *testing.T) {
	s := NewState()
	s.Apply(mustDecode(t, `{"oil":{"brent":{"original_price":80,"change_24h_percent":1}}}`), t0)
	ch := s.Apply(mustDecode(t, `{"oil":{"brent":{"original_price":{"currency_iso":"USD"},"change_24h_percent":9}}}`), t0.Add(time.Minute))

	assert.Equal(t, 0, ch.Prices)
	q := s.Quote(Brent)
	assert.Equal(t, 80.0, value(t, q.Value))
	assert.Equal(t, 1.0, value(t, q.ChangePercent))
	assert.Equal(t, t0, *q.UpdatedAt)
}

func TestApply_Drilling(t *testing.T) {
	s := NewState()
	ch := s.Apply(mustDecode(t, `{"drilling_intelligence":{
		"rig_counts":{"us_rigs":{"value":583},"canada_rigs":{"value":null}},
		"frac_spreads":{"permian":{"value":96}},
		"duc_wells":{"bakken":{"value":410}}
	}}`), t0)
	assert.Equal(t, 3, ch.Drilling)

	s.Apply(mustDecode(t, `{"drilling_intelligence":{"rig_counts":{"us_rigs":{}, "international_rigs":{"value":912}}}}`), t0)

	assert.Equal(t, 583.0, value(t, s.Metric(USRigs).Value))
	assert.Nil(t, s.Metric(CanadaRigs).Value)
	assert.Equal(t, 912.0, value(t, s.Metric(InternationalRigs).Value))
	assert.Equal(t, 96.0, value(t, s.Metric(PermianFrac).Value))
	assert.Equal(t, 410.0, value(t, s.Metric(BakkenDUC).Value))
	assert.Equal(t, "US Rig Count", s.Metric(USRigs).Label)
	assert.Equal(t, "Eagle Ford DUC", s.Metric(EagleFordDUC).Label)
	assert.True(t, s.HasDrilling())
}

func TestApply_WellPermits(t *testing.T) {
	s := NewState()
	s.Apply(mustDecode(t, `{"drilling_intelligence":{"well_permits":{
		"summary":{"total_permits_7d":120,"total_permits_30d":480,"active_states":12},
		"by_state":{"TX":{"count_7d":50},"ND":{"count_7d":10},"NM":{"count_7d":50},"OK":null,"CO":{"count_7d":10}},
		"last_updated":"2026-03-01T11:00:00Z"
	}}}`), t0)

	wp := s.WellPermits
	assert.Equal(t, int64(120), *wp.Summary.Total7d)
	assert.Equal(t, int64(480), *wp.Summary.Total30d)
	assert.Equal(t, int64(12), *wp.Summary.ActiveStates)
	assert.Equal(t, []StateCount{
		{"TX", 50}, {"NM", 50}, {"ND", 10}, {"CO", 10}, {"OK", 0},
	}, wp.TopStates)
	assert.Equal(t, "2026-03-01T11:00:00Z", wp.LastUpdated)

	// summary replaced wholesale, top states untouched when by_state absent
	s.Apply(mustDecode(t, `{"well_permits":{"summary":{"total_permits_7d":7}}}`), t0)
	assert.Equal(t, int64(7), *s.WellPermits.Summary.Total7d)
	assert.Nil(t, s.WellPermits.Summary.Total30d)
	assert.Nil(t, s.WellPermits.Summary.ActiveStates)
	assert.Len(t, s.WellPermits.TopStates, 5)
	assert.Equal(t, t0.Format(time.RFC3339), s.WellPermits.LastUpdated)

	// empty blocks change nothing but the stamp
	s.Apply(mustDecode(t, `{"well_permits":{"summary":{},"by_state":{}}}`), t0)
	assert.Equal(t, int64(7), *s.WellPermits.Summary.Total7d)
	assert.Len(t, s.WellPermits.TopStates, 5)

	// new by_state replaces the list entirely
	s.Apply(mustDecode(t, `{"well_permits":{"by_state":{"WY":{"count_7d":3}}}}`), t0)
	assert.Equal(t, []StateCount{{"WY", 3}}, s.WellPermits.TopStates)
}

func TestApply_Idempotent(t *testing.T) {
	raw := `{"prices":{"oil":{"brent":{"original_price":{"cents":8050},"change_24h_percent":0.5}}},
		"drilling_intelligence":{"rig_counts":{"us_rigs":{"value":583}},
		"well_permits":{"summary":{"total_permits_7d":1},"by_state":{"TX":{"count_7d":1}}}}}`

	once := NewState()
	once.Apply(mustDecode(t, raw), t0)
	twice := NewState()
	twice.Apply(mustDecode(t, raw), t0)
	twice.Apply(mustDecode(t, raw), t0)

	assert.Equal(t, once, twice)
}

func TestRankStates_StableDescending(t *testing.T) {
	in := []StateCount{{"A", 1}, {"B", 3}, {"C", 1}, {"D", 3}, {"E", 2}}
	out := RankStates(in)
	assert.Equal(t, []StateCount{{"B", 3}, {"D", 3}, {"E", 2}, {"A", 1}, {"C", 1}}, out)
	assert.Equal(t, "A", in[0].State, "input must not be reordered")
}

func TestDecodeUpdate_PrefersDataWithPrices(t *testing.T) {
	p, err := DecodeUpdate([]byte(`{"type":"price_update","data":{"prices":{"oil":{"wti":{"original_price":71}}}}}`))
	require.NoError(t, err)
	s := NewState()
	s.Apply(p, t0)
	assert.Equal(t, 71.0, value(t, s.Quote(WTI).Value))

	p, err = DecodeUpdate([]byte(`{"type":"price_update","data":{"note":"x"},"prices":{"oil":{"wti":{"original_price":72}}}}`))
	require.NoError(t, err)
	s.Apply(p, t0)
	assert.Equal(t, 72.0, value(t, s.Quote(WTI).Value))
}

func TestDecodeUpdate_EmptyMessage(t *testing.T) {
	for _, raw := range []string{"", "null", "  "} {
		p, err := DecodeUpdate([]byte(raw))
		require.NoError(t, err, "raw %q", raw)
		s := NewState()
		assert.True(t, s.Apply(p, t0).Empty())
	}
}

func TestDecodePayload_Error(t *testing.T) {
	_, err := DecodePayload([]byte(`{"prices":`))
	assert.Error(t, err)
}

func TestDecodeUpdate_MistypedBranchKeepsTheRest(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"quote is a string", `{"prices":{"oil":{"brent":{"original_price":80.5},"wti":"n/a"}}}`},
		{"commodity is a number", `{"prices":{"oil":{"brent":{"original_price":80.5}},"natural_gas":7}}`},
		{"state entry is a number", `{"prices":{"oil":{"brent":{"original_price":80.5}}},
			"drilling_intelligence":{"well_permits":{"by_state":{"TX":5,"NM":{"count_7d":3}}}}}`},
		{"drilling metric is a string", `{"prices":{"oil":{"brent":{"original_price":80.5}}},
			"drilling_intelligence":{"rig_counts":{"us_rigs":"soon","canada_rigs":{"value":180}}}}`},
		{"last_updated is a number", `{"prices":{"oil":{"brent":{"original_price":80.5}}},
			"well_permits":{"summary":{"total_permits_7d":9},"last_updated":5}}`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p, err := DecodeUpdate([]byte(c.raw))
			require.NoError(t, err)
			s := NewState()
			s.Apply(p, t0)
			assert.Equal(t, 80.5, value(t, s.Quote(Brent).Value))
			assert.Nil(t, s.Quote(WTI).Value)
		})
	}
}

func TestApply_MistypedBlocksAreAbsent(t *testing.T) {
	s := NewState()
	s.Apply(mustDecode(t, `{"drilling_intelligence":{"rig_counts":{"canada_rigs":{"value":180}},
		"well_permits":{"by_state":{"TX":5,"NM":{"count_7d":3}}}}}`), t0)
	assert.Equal(t, 180.0, value(t, s.Metric(CanadaRigs).Value))
	assert.Equal(t, []StateCount{{"NM", 3}, {"TX", 0}}, s.WellPermits.TopStates)
	stamp := s.WellPermits.LastUpdated

	ch := s.Apply(mustDecode(t, `{"prices":"n/a","well_permits":"n/a","drilling_intelligence":[1]}`), t0.Add(time.Hour))
	assert.True(t, ch.Empty())
	assert.Equal(t, stamp, s.WellPermits.LastUpdated)
	assert.Len(t, s.WellPermits.TopStates, 2)
	assert.False(t, mustDecode(t, `{"prices":"n/a"}`).HasPrices())

	// by_state that is not an object leaves the ranked list alone
	s.Apply(mustDecode(t, `{"well_permits":{"by_state":"none"}}`), t0)
	assert.Len(t, s.WellPermits.TopStates, 2)
}

func TestCloneIsIndependent(t *testing.T) {
	s := NewState()
	s.Apply(mustDecode(t, `{"well_permits":{"by_state":{"TX":{"count_7d":5}}}}`), t0)
	c := s.Clone()
	c.WellPermits.TopStates[0].Count7d = 99
	assert.Equal(t, int64(5), s.WellPermits.TopStates[0].Count7d)
}
