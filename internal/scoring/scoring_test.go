package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/walletrisk/internal/features"
)

func vec(id string, set map[features.Feature]float64) features.Vector {
	v := features.Vector{WalletID: id}
	for f, x := range set {
		v.Values[f] = x
	}
	return v
}

func TestDefaultComponents_WeightsSumToOne(t *testing.T) {
	c := DefaultComponents()

	assert.Equal(t, 1.0, c.TotalWeight())
	assert.NoError(t, c.Validate())
}

func TestComponents_Validate(t *testing.T) {
	tests := []struct {
		name  string
		comps Components
	}{
		{"empty", Components{}},
		{"bad sum", Components{{Name: "a", Weight: 0.5}}},
		{"negative", Components{{Name: "a", Weight: -1}, {Name: "b", Weight: 2}}},
		{"duplicate", Components{{Name: "a", Weight: 0.5}, {Name: "a", Weight: 0.5}}},
		{"unnamed", Components{{Weight: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.comps.Validate())
		})
	}
}

func TestNewCustomScorer_RejectsInvalid(t *testing.T) {
	_, err := NewCustomScorer(Components{{Name: "a", Weight: 0.3}}, nil)
	assert.Error(t, err)
}

func TestComponents_Reweight(t *testing.T) {
	base := DefaultComponents()

	got, err := base.Reweight(map[string]float64{"volumeRisk": 0.30, "diversityRisk": 0.10})
	require.NoError(t, err)
	assert.InDelta(t, 0.30, got[0].Weight, 1e-12)
	assert.InDelta(t, 0.10, got[4].Weight, 1e-12)
	assert.InDelta(t, 0.20, base[0].Weight, 1e-12, "original table is untouched")

	_, err = base.Reweight(map[string]float64{"volumeRisk": 0.5})
	assert.ErrorContains(t, err, "sum")

	_, err = base.Reweight(map[string]float64{"gasRisk": 0})
	assert.ErrorContains(t, err, "unknown")
}

func TestNewCustomScorer_Weights(t *testing.T) {
	comps, err := DefaultComponents().Reweight(map[string]float64{"volumeRisk": 0.30, "diversityRisk": 0.10})
	require.NoError(t, err)
	s, err := NewCustomScorer(comps, DefaultBoosts())
	require.NoError(t, err)

	w := s.Weights()
	assert.Len(t, w, 5)
	assert.InDelta(t, 0.30, w["volumeRisk"], 1e-12)
	assert.InDelta(t, 0.25, w["behavioralRisk"], 1e-12)
}

func TestScore_EmptyTable(t *testing.T) {
	assert.Empty(t, NewScorer().Score(features.NewTable(nil)))
}

func TestScore_SingleZeroValueWallet(t *testing.T) {
	table := features.NewTable([]features.Vector{
		vec("0xa", map[features.Feature]float64{
			features.TotalTransactions:    1,
			features.ZeroValueRatio:       1,
			features.ActivitySpanDays:     1,
			features.TransactionFrequency: 1,
		}),
	})

	scored := NewScorer().Score(table)

	require.Len(t, scored, 1)
	assert.Equal(t, 0.0, scored[0].BaseRiskScore)
	assert.Equal(t, 0.0, scored[0].Contributions["technicalRisk"])
	assert.Empty(t, scored[0].Boosts)
}

func TestScore_ErrorAndZeroValueBoostsCompound(t *testing.T) {
	table := features.NewTable([]features.Vector{
		vec("0xa", map[features.Feature]float64{features.ErrorRate: 0.5, features.ZeroValueRatio: 1}),
		vec("0xb", nil),
	})

	scored := NewScorer().Score(table)

	require.Len(t, scored, 2)
	technical := 0.20 / 3
	assert.InDelta(t, technical, scored[0].Contributions["technicalRisk"], 1e-12)
	assert.InDelta(t, technical*1.3*1.2*1000, scored[0].BaseRiskScore, 1e-9)
	assert.Equal(t, []string{"highErrorRate", "zeroValueHeavy"}, scored[0].Boosts)
	assert.Equal(t, 0.0, scored[1].BaseRiskScore)
}

func TestScore_ClampsAtMax(t *testing.T) {
	high := features.Vector{WalletID: "0xa"}
	for i := range high.Values {
		high.Values[i] = 10
	}
	table := features.NewTable([]features.Vector{high, {WalletID: "0xb"}})

	scored := NewScorer().Score(table)

	assert.Equal(t, MaxScore, scored[0].BaseRiskScore)
	assert.Len(t, scored[0].Boosts, 3)
}

func TestScore_Idempotent(t *testing.T) {
	table := features.NewTable([]features.Vector{
		vec("0xa", map[features.Feature]float64{features.TotalTransactions: 10, features.UniqueSenders: 3}),
		vec("0xb", map[features.Feature]float64{features.TotalTransactions: 2, features.AvgGasUsed: 50000}),
		vec("0xc", map[features.Feature]float64{features.TotalTransactions: 5, features.ErrorRate: 0.2}),
	})
	s := NewScorer()

	first := s.Score(table)
	second := s.Score(table)

	assert.Equal(t, first, second)
	assert.Equal(t, 10.0, table.Vectors[0].Values[features.TotalTransactions])
}

func TestScore_IgnoresAbsentColumns(t *testing.T) {
	table := &features.Table{
		Columns: []features.Feature{features.ErrorRate},
		Vectors: []features.Vector{
			vec("0xa", map[features.Feature]float64{features.ErrorRate: 0.05, features.ZeroValueRatio: 1}),
			vec("0xb", map[features.Feature]float64{features.ErrorRate: 0.01}),
		},
	}

	scored := NewScorer().Score(table)

	assert.InDelta(t, 0.20*1.3*1000, scored[0].BaseRiskScore, 1e-9)
	assert.Equal(t, []string{"highErrorRate"}, scored[0].Boosts)
	assert.Equal(t, 0.0, scored[0].Contributions["volumeRisk"])
}

func TestMinMaxScale(t *testing.T) {
	table := features.NewTable([]features.Vector{
		vec("0xa", map[features.Feature]float64{features.TotalTransactions: 1, features.ValueStd: 7}),
		vec("0xb", map[features.Feature]float64{features.TotalTransactions: 3, features.ValueStd: 7}),
		vec("0xc", map[features.Feature]float64{features.TotalTransactions: 2, features.ValueStd: 7}),
	})

	scaled := MinMaxScale(table)

	assert.Equal(t, 0.0, scaled[0][features.TotalTransactions])
	assert.Equal(t, 1.0, scaled[1][features.TotalTransactions])
	assert.Equal(t, 0.5, scaled[2][features.TotalTransactions])
	assert.Equal(t, 0.0, scaled[1][features.ValueStd])
}

func TestFinalScore(t *testing.T) {
	tests := []struct {
		name    string
		base    float64
		anomaly bool
		adj     float64
		want    float64
	}{
		{"plain", 400, false, 1, 400},
		{"anomaly and cluster", 400, true, 1.2, 720},
		{"clamped", 900, true, 1, 1000},
		{"half rounds to even down", 2.5, false, 1, 2},
		{"half rounds to even up", 3.5, false, 1, 4},
		{"zero", 0, true, 3, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FinalScore(tt.base, tt.anomaly, tt.adj))
		})
	}
}

func TestCombine(t *testing.T) {
	refined := []Refined{
		{Scored: Scored{Vector: features.Vector{WalletID: "0xa"}, BaseRiskScore: 600}, IsAnomaly: true, ClusterRiskAdjustment: 1},
		{Scored: Scored{Vector: features.Vector{WalletID: "0xb"}, BaseRiskScore: 100}, ClusterRiskAdjustment: 0.5},
	}

	final := Combine(refined)

	require.Len(t, final, 2)
	assert.Equal(t, 900.0, final[0].FinalRiskScore)
	assert.Equal(t, BandCritical, final[0].Band)
	assert.Equal(t, 600.0, final[0].BaseRiskScore)
	assert.Equal(t, 50.0, final[1].FinalRiskScore)
	assert.Equal(t, BandLow, final[1].Band)
}

func TestBandFor(t *testing.T) {
	assert.Equal(t, BandLow, BandFor(249))
	assert.Equal(t, BandMedium, BandFor(250))
	assert.Equal(t, BandHigh, BandFor(500))
	assert.Equal(t, BandCritical, BandFor(750))
	assert.Equal(t, BandCritical, BandFor(1000))
}
