package domain

import (
	"fmt"
	"strings"
)

// Category identifies one of the five specimen features sent to the model
type Category int

const (
	Odor Category = iota
	SporePrintColor
	GillColor
	RingType
	StalkSurfaceAboveRing
)

// NumFeatures is the width of a FeatureVector
const NumFeatures = 5

// Categories lists every category in canonical wire order
var Categories = [NumFeatures]Category{Odor, SporePrintColor, GillColor, RingType, StalkSurfaceAboveRing}

var categoryKeys = [NumFeatures]string{
	"odor",
	"spore-print-color",
	"gill-color",
	"ring-type",
	"stalk-surface-above-ring",
}

var categoryTitles = [NumFeatures]string{
	"Odor",
	"Spore Print Color",
	"Gill Color",
	"Ring Type",
	"Stalk Surface Above Ring",
}

// String returns the hyphenated key used in requests and flags
func (c Category) String() string {
	if c < 0 || int(c) >= NumFeatures {
		return fmt.Sprintf("category(%d)", int(c))
	}
	return categoryKeys[c]
}

// Title returns the human readable name for form labels
func (c Category) Title() string {
	if c < 0 || int(c) >= NumFeatures {
		return c.String()
	}
	return categoryTitles[c]
}

// ParseCategory accepts the hyphenated key, with underscores tolerated
func ParseCategory(s string) (Category, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	for i, k := range categoryKeys {
		if k == key {
			return Category(i), nil
		}
	}
	return 0, fmt.Errorf("unknown category %q", s)
}

// Code is the integer the remote model expects for a label
type Code int

// FeatureVector holds one code per category, in canonical order
type FeatureVector [NumFeatures]Code

// Selection is the set of labels a user chose for a specimen
type Selection struct {
	Odor                  string `json:"odor"`
	SporePrintColor       string `json:"spore_print_color"`
	GillColor             string `json:"gill_color"`
	RingType              string `json:"ring_type"`
	StalkSurfaceAboveRing string `json:"stalk_surface_above_ring"`
}

// Get returns the label chosen for a category
func (s Selection) Get(c Category) string {
	switch c {
	case Odor:
		return s.Odor
	case SporePrintColor:
		return s.SporePrintColor
	case GillColor:
		return s.GillColor
	case RingType:
		return s.RingType
	case StalkSurfaceAboveRing:
		return s.StalkSurfaceAboveRing
	}
	return ""
}

// Set assigns the label for a category
func (s *Selection) Set(c Category, label string) {
	switch c {
	case Odor:
		s.Odor = label
	case SporePrintColor:
		s.SporePrintColor = label
	case GillColor:
		s.GillColor = label
	case RingType:
		s.RingType = label
	case StalkSurfaceAboveRing:
		s.StalkSurfaceAboveRing = label
	}
}

// SelectionFromMap builds a Selection from category keys in any order.
// Every category must be present exactly once.
func SelectionFromMap(m map[string]string) (Selection, error) {
	var sel Selection
	seen := make(map[Category]bool, NumFeatures)
	for k, v := range m {
		c, err := ParseCategory(k)
		if err != nil {
			return Selection{}, err
		}
		if seen[c] {
			return Selection{}, fmt.Errorf("duplicate category %q", c)
		}
		seen[c] = true
		sel.Set(c, v)
	}
	for _, c := range Categories {
		if !seen[c] {
			return Selection{}, fmt.Errorf("missing category %q", c)
		}
	}
	return sel, nil
}

// Verdict is the binary outcome of a classification
type Verdict int

const (
	Edible Verdict = iota
	Poisonous
)

// PoisonousLabel is the only model label that maps to Poisonous
const PoisonousLabel = "p"

// VerdictFromLabel maps a model label to a Verdict. Anything but "p" is edible.
func VerdictFromLabel(label string) Verdict {
	if label == PoisonousLabel {
		return Poisonous
	}
	return Edible
}

// String returns the persisted text form
func (v Verdict) String() string {
	if v == Poisonous {
		return "POISONOUS"
	}
	return "EDIBLE"
}

// Numeric returns 0 for edible and 1 for poisonous
func (v Verdict) Numeric() int {
	if v == Poisonous {
		return 1
	}
	return 0
}

// Color is the fixed hue used when rendering the verdict
func (v Verdict) Color() string {
	if v == Poisonous {
		return "#d32f2f"
	}
	return "#2e7d32"
}

// ParseVerdict reads the persisted text form
func ParseVerdict(s string) (Verdict, error) {
	switch s {
	case "EDIBLE":
		return Edible, nil
	case "POISONOUS":
		return Poisonous, nil
	}
	return Edible, fmt.Errorf("unknown verdict %q", s)
}

func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v *Verdict) UnmarshalText(b []byte) error {
	parsed, err := ParseVerdict(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// LogRecord is one completed classification as stored in the log
type LogRecord struct {
	Selection
	Result Verdict `json:"result"`
}
