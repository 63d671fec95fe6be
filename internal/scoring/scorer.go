package scoring

import (
	"github.com/mbd888/walletrisk/internal/features"
)

// Scorer computes base risk scores relative to the scored population.
type Scorer struct {
	components Components
	boosts     []Boost
}

// NewScorer creates a scorer with the default components and boosts.
func NewScorer() *Scorer {
	return &Scorer{components: DefaultComponents(), boosts: DefaultBoosts()}
}

// NewCustomScorer creates a scorer with custom rules.
func NewCustomScorer(components Components, boosts []Boost) (*Scorer, error) {
	if err := components.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{components: components, boosts: boosts}, nil
}

// Weights returns the component weights by name.
func (s *Scorer) Weights() map[string]float64 {
	out := make(map[string]float64, len(s.components))
	for _, comp := range s.components {
		out[comp.Name] = comp.Weight
	}
	return out
}

// Score assigns a base score in [0, 1000] to every wallet in t. Features are
// min-max scaled over the whole table, so scores are only comparable within
// one table. Columns t does not carry are ignored. Score does not modify t.
func (s *Scorer) Score(t *features.Table) []Scored {
	if t.Len() == 0 {
		return nil
	}

	scaled := MinMaxScale(t)
	out := make([]Scored, len(t.Vectors))
	for i, v := range t.Vectors {
		row := scaled[i]
		contrib := make(map[string]float64, len(s.components))
		base := 0.0
		for _, comp := range s.components {
			sum, n := 0.0, 0
			for _, f := range comp.Features {
				if t.Has(f) {
					sum += row[f]
					n++
				}
			}
			c := 0.0
			if n > 0 {
				c = sum / float64(n) * comp.Weight
			}
			contrib[comp.Name] = c
			base += c
		}

		var fired []string
		for _, b := range s.boosts {
			if t.Has(b.Feature) && row[b.Feature] > b.Threshold {
				base *= b.Multiplier
				fired = append(fired, b.Name)
			}
		}

		base *= ScoreScale
		if base > MaxScore {
			base = MaxScore
		}

		out[i] = Scored{
			Vector:        v,
			BaseRiskScore: base,
			Contributions: contrib,
			Boosts:        fired,
		}
	}
	return out
}

// MinMaxScale scales every column t carries to [0, 1] over the population.
// Non-finite values count as 0 and a constant column scales to 0.
func MinMaxScale(t *features.Table) []features.Values {
	out := make([]features.Values, len(t.Vectors))
	for _, f := range t.Columns {
		lo, hi := 0.0, 0.0
		for i, v := range t.Vectors {
			x := features.Finite(v.Values[f])
			if i == 0 || x < lo {
				lo = x
			}
			if i == 0 || x > hi {
				hi = x
			}
		}
		span := hi - lo
		for i, v := range t.Vectors {
			if span > 0 {
				out[i][f] = (features.Finite(v.Values[f]) - lo) / span
			}
		}
	}
	return out
}
