package scoring

import (
	"fmt"

	"github.com/pbaille/mushroom/internal/codec"
	"github.com/pbaille/mushroom/internal/domain"
)

// OdorRule predicts from odor alone: almond, anise and odorless specimens
// are edible, everything else poisonous. Enough for local runs and tests.
type OdorRule struct {
	edible map[float64]bool
}

// NewOdorRule builds the rule from the codec tables
func NewOdorRule() (*OdorRule, error) {
	r := &OdorRule{edible: make(map[float64]bool)}
	for _, label := range []string{"Almond", "Anise", "None"} {
		code, err := codec.Encode(domain.Odor, label)
		if err != nil {
			return nil, fmt.Errorf("odor rule: %w", err)
		}
		r.edible[float64(code)] = true
	}
	return r, nil
}

// Predict labels each row "e" or "p"
func (r *OdorRule) Predict(rows [][]float64) ([]string, error) {
	out := make([]string, len(rows))
	for i, row := range rows {
		if len(row) != domain.NumFeatures {
			return nil, fmt.Errorf("row %d: expected %d features, got %d", i, domain.NumFeatures, len(row))
		}
		if r.edible[row[0]] {
			out[i] = "e"
		} else {
			out[i] = domain.PoisonousLabel
		}
	}
	return out, nil
}
