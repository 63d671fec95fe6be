// Package scoring turns wallet feature tables into bounded risk scores.
//
// The base scorer is a deterministic weighted model over min-max scaled
// features. The combiner blends the base score with the refinement signals
// (anomaly flag and cluster adjustment) into the final 0-1000 score.
//
// Each stage produces its own record type that embeds the previous stage's
// record by value, so later stages never rewrite earlier results.
package scoring

import (
	"fmt"
	"math"

	"github.com/mbd888/walletrisk/internal/features"
)

// Score bounds.
const (
	ScoreScale = 1000.0
	MaxScore   = 1000.0
	MinScore   = 0.0
)

// Component is a named group of features contributing a weighted share of
// the base score.
type Component struct {
	Name     string
	Features []features.Feature
	Weight   float64
}

// Components is an ordered set of risk components.
type Components []Component

// DefaultComponents returns the standard component table.
func DefaultComponents() Components {
	return Components{
		{
			Name:     "volumeRisk",
			Features: []features.Feature{features.TotalTransactions, features.TotalValueSent, features.MaxTransactionValue},
			Weight:   0.20,
		},
		{
			Name:     "behavioralRisk",
			Features: []features.Feature{features.SendReceiveRatio, features.RecipientConcentration, features.TransactionFrequency},
			Weight:   0.25,
		},
		{
			Name:     "technicalRisk",
			Features: []features.Feature{features.AvgGasUsed, features.TotalGasCost, features.ErrorRate},
			Weight:   0.20,
		},
		{
			Name:     "temporalRisk",
			Features: []features.Feature{features.AvgTimeBetweenTxnsHr},
			Weight:   0.15,
		},
		{
			Name:     "diversityRisk",
			Features: []features.Feature{features.UniqueRecipients, features.UniqueSenders, features.UniqueFunctions, features.ContractComplexity},
			Weight:   0.20,
		},
	}
}

// TotalWeight sums the component weights in order.
func (c Components) TotalWeight() float64 {
	total := 0.0
	for _, comp := range c {
		total += comp.Weight
	}
	return total
}

// Validate checks that weights are non-negative and sum to 1.
func (c Components) Validate() error {
	if len(c) == 0 {
		return fmt.Errorf("no risk components configured")
	}
	seen := make(map[string]bool, len(c))
	for _, comp := range c {
		if comp.Name == "" {
			return fmt.Errorf("risk component with empty name")
		}
		if seen[comp.Name] {
			return fmt.Errorf("duplicate risk component %q", comp.Name)
		}
		seen[comp.Name] = true
		if comp.Weight < 0 || math.IsNaN(comp.Weight) {
			return fmt.Errorf("risk component %q has invalid weight %v", comp.Name, comp.Weight)
		}
	}
	if total := c.TotalWeight(); math.Abs(total-1) > 1e-9 {
		return fmt.Errorf("risk component weights sum to %v, want 1", total)
	}
	return nil
}

// Reweight returns a copy of c with the named weights replaced. Unknown
// names are an error; the result must still validate.
func (c Components) Reweight(weights map[string]float64) (Components, error) {
	for name := range weights {
		if !c.has(name) {
			return nil, fmt.Errorf("unknown risk component %q", name)
		}
	}
	out := make(Components, len(c))
	copy(out, c)
	for i := range out {
		if w, ok := weights[out[i].Name]; ok {
			out[i].Weight = w
		}
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c Components) has(name string) bool {
	for _, comp := range c {
		if comp.Name == name {
			return true
		}
	}
	return false
}

// Boost multiplies the base score when a scaled feature exceeds a threshold.
type Boost struct {
	Name       string
	Feature    features.Feature
	Threshold  float64
	Multiplier float64
}

// DefaultBoosts returns the boost rules in application order.
func DefaultBoosts() []Boost {
	return []Boost{
		{Name: "highErrorRate", Feature: features.ErrorRate, Threshold: 0.1, Multiplier: 1.3},
		{Name: "zeroValueHeavy", Feature: features.ZeroValueRatio, Threshold: 0.5, Multiplier: 1.2},
		{Name: "highFrequency", Feature: features.TransactionFrequency, Threshold: 0.95, Multiplier: 1.4},
	}
}

// Scored is a wallet with its base risk score.
type Scored struct {
	features.Vector

	BaseRiskScore float64
	// Contributions holds each component's weighted share before boosts.
	Contributions map[string]float64
	// Boosts lists the names of boosts that fired, in application order.
	Boosts []string
}

// Refined adds the refinement signals to a scored wallet.
type Refined struct {
	Scored

	IsAnomaly             bool
	AnomalyScore          float64
	Cluster               int
	ClusterRiskAdjustment float64
}

// Final is a wallet with its blended score.
type Final struct {
	Refined

	FinalRiskScore float64
	Band           Band
}
