// Package stats computes the statistics views over the classification log.
// Every function is pure and recomputed from the full record set on demand.
package stats

import (
	"errors"
	"sort"

	"github.com/pbaille/mushroom/internal/domain"
)

// ErrNoData is returned by every view when there are no records
var ErrNoData = errors.New("no data")

// DensityCell counts records sharing an odor and a verdict
type DensityCell struct {
	Odor    string         `json:"odor"`
	Verdict domain.Verdict `json:"result"`
	Count   int            `json:"count"`
}

// Share is one slice of the spore print composition
type Share struct {
	Label    string  `json:"spore_print_color"`
	Count    int     `json:"count"`
	Fraction float64 `json:"fraction"`
}

// Percent is Fraction scaled to 0-100
func (s Share) Percent() float64 {
	return s.Fraction * 100
}

// Leaf is a verdict under a ring type
type Leaf struct {
	Verdict domain.Verdict `json:"result"`
	Count   int            `json:"count"`
	Color   string         `json:"color"`
}

// Branch is a ring type with its verdict breakdown
type Branch struct {
	RingType string `json:"ring_type"`
	Count    int    `json:"count"`
	Children []Leaf `json:"children"`
}

// Path is one odor -> gill color -> verdict flow
type Path struct {
	Odor      string         `json:"odor"`
	GillColor string         `json:"gill_color"`
	Verdict   domain.Verdict `json:"result"`
	Color     int            `json:"color"`
	Count     int            `json:"count"`
}

// Views bundles all four views for rendering
type Views struct {
	Total       int           `json:"total"`
	Density     []DensityCell `json:"density"`
	Composition []Share       `json:"composition"`
	Hierarchy   []Branch      `json:"hierarchy"`
	Paths       []Path        `json:"paths"`
}

// Compute builds every view, or returns ErrNoData for an empty log
func Compute(records []domain.LogRecord) (*Views, error) {
	if len(records) == 0 {
		return nil, ErrNoData
	}
	var err error
	v := &Views{Total: len(records)}
	if v.Density, err = Density(records); err != nil {
		return nil, err
	}
	if v.Composition, err = Composition(records); err != nil {
		return nil, err
	}
	if v.Hierarchy, err = Hierarchy(records); err != nil {
		return nil, err
	}
	if v.Paths, err = Paths(records); err != nil {
		return nil, err
	}
	return v, nil
}

// Density counts records per (odor, verdict)
func Density(records []domain.LogRecord) ([]DensityCell, error) {
	if len(records) == 0 {
		return nil, ErrNoData
	}

	type key struct {
		odor    string
		verdict domain.Verdict
	}
	counts := make(map[key]int)
	for _, r := range records {
		counts[key{r.Odor, r.Result}]++
	}

	cells := make([]DensityCell, 0, len(counts))
	for k, n := range counts {
		cells = append(cells, DensityCell{Odor: k.odor, Verdict: k.verdict, Count: n})
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Odor != cells[j].Odor {
			return cells[i].Odor < cells[j].Odor
		}
		return cells[i].Verdict < cells[j].Verdict
	})
	return cells, nil
}

// Composition counts records per spore print color, largest first
func Composition(records []domain.LogRecord) ([]Share, error) {
	if len(records) == 0 {
		return nil, ErrNoData
	}

	counts := make(map[string]int)
	for _, r := range records {
		counts[r.SporePrintColor]++
	}

	total := float64(len(records))
	shares := make([]Share, 0, len(counts))
	for label, n := range counts {
		shares = append(shares, Share{Label: label, Count: n, Fraction: float64(n) / total})
	}
	sort.Slice(shares, func(i, j int) bool {
		if shares[i].Count != shares[j].Count {
			return shares[i].Count > shares[j].Count
		}
		return shares[i].Label < shares[j].Label
	})
	return shares, nil
}

// Hierarchy groups records by ring type, then verdict
func Hierarchy(records []domain.LogRecord) ([]Branch, error) {
	if len(records) == 0 {
		return nil, ErrNoData
	}

	counts := make(map[string]map[domain.Verdict]int)
	for _, r := range records {
		if counts[r.RingType] == nil {
			counts[r.RingType] = make(map[domain.Verdict]int)
		}
		counts[r.RingType][r.Result]++
	}

	branches := make([]Branch, 0, len(counts))
	for ring, byVerdict := range counts {
		b := Branch{RingType: ring}
		for _, v := range []domain.Verdict{domain.Edible, domain.Poisonous} {
			n := byVerdict[v]
			if n == 0 {
				continue
			}
			b.Count += n
			b.Children = append(b.Children, Leaf{Verdict: v, Count: n, Color: v.Color()})
		}
		branches = append(branches, b)
	}
	sort.Slice(branches, func(i, j int) bool { return branches[i].RingType < branches[j].RingType })
	return branches, nil
}

// Paths counts odor -> gill color -> verdict flows
func Paths(records []domain.LogRecord) ([]Path, error) {
	if len(records) == 0 {
		return nil, ErrNoData
	}

	type key struct {
		odor, gill string
		verdict    domain.Verdict
	}
	counts := make(map[key]int)
	for _, r := range records {
		counts[key{r.Odor, r.GillColor, r.Result}]++
	}

	paths := make([]Path, 0, len(counts))
	for k, n := range counts {
		paths = append(paths, Path{
			Odor:      k.odor,
			GillColor: k.gill,
			Verdict:   k.verdict,
			Color:     k.verdict.Numeric(),
			Count:     n,
		})
	}
	sort.Slice(paths, func(i, j int) bool {
		a, b := paths[i], paths[j]
		if a.Odor != b.Odor {
			return a.Odor < b.Odor
		}
		if a.GillColor != b.GillColor {
			return a.GillColor < b.GillColor
		}
		return a.Verdict < b.Verdict
	})
	return paths, nil
}
