// Package codec maps specimen labels to the integer codes the model was
// trained on. The tables must change only together with the model.
package codec

import (
	"errors"
	"fmt"

	"github.com/pbaille/mushroom/internal/domain"
)

// ErrUnknownLabel is matched by errors.Is on any UnknownLabelError
var ErrUnknownLabel = errors.New("unknown label")

// UnknownLabelError reports a label outside a category's fixed table
type UnknownLabelError struct {
	Category domain.Category
	Label    string
}

func (e *UnknownLabelError) Error() string {
	return fmt.Sprintf("unknown label %q for %s", e.Label, e.Category)
}

func (e *UnknownLabelError) Unwrap() error { return ErrUnknownLabel }

type entry struct {
	label string
	code  domain.Code
}

var tables = [domain.NumFeatures][]entry{
	domain.Odor: {
		{"Almond", 0}, {"Anise", 3}, {"Creosote", 1}, {"Fishy", 8}, {"Foul", 2},
		{"Musty", 4}, {"None", 5}, {"Pungent", 6}, {"Spicy", 7},
	},
	domain.SporePrintColor: {
		{"Black", 2}, {"Brown", 3}, {"Buff", 0}, {"Chocolate", 1}, {"Green", 5},
		{"Orange", 4}, {"Purple", 6}, {"White", 7}, {"Yellow", 8},
	},
	domain.GillColor: {
		{"Black", 4}, {"Brown", 5}, {"Gray", 2}, {"Pink", 7}, {"White", 10}, {"Chocolate", 3},
		{"Purple", 9}, {"Red", 8}, {"Buff", 0}, {"Green", 1}, {"Yellow", 11}, {"Orange", 6},
	},
	domain.RingType: {
		{"Pendant", 4}, {"Evanescent", 0}, {"Large", 2}, {"Flaring", 1}, {"None", 3},
	},
	domain.StalkSurfaceAboveRing: {
		{"Smooth", 2}, {"Fibrous", 0}, {"Silky", 1}, {"Scaly", 3},
	},
}

// Encode returns the code for label within category
func Encode(c domain.Category, label string) (domain.Code, error) {
	if c < 0 || int(c) >= domain.NumFeatures {
		return 0, fmt.Errorf("encode: invalid category %d", int(c))
	}
	for _, e := range tables[c] {
		if e.label == label {
			return e.code, nil
		}
	}
	return 0, &UnknownLabelError{Category: c, Label: label}
}

// Labels returns the category's labels in display order
func Labels(c domain.Category) []string {
	if c < 0 || int(c) >= domain.NumFeatures {
		return nil
	}
	out := make([]string, len(tables[c]))
	for i, e := range tables[c] {
		out[i] = e.label
	}
	return out
}

// EncodeSelection builds the feature vector in canonical category order
func EncodeSelection(sel domain.Selection) (domain.FeatureVector, error) {
	var vec domain.FeatureVector
	for i, c := range domain.Categories {
		code, err := Encode(c, sel.Get(c))
		if err != nil {
			return domain.FeatureVector{}, err
		}
		vec[i] = code
	}
	return vec, nil
}
