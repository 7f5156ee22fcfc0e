package match

import (
	"sort"
	"strings"

	"github.com/trolleyctl/trolley/pkg/grocery"
)

// Hints narrow a query beyond its label.
type Hints struct {
	Brand string
	Size  string
}

type Weights struct {
	// NameWeight scales the name similarity, which lies in [0,1].
	NameWeight float64
	// ContainmentShare is the part of the similarity taken from query
	// token containment; the rest is Jaccard overlap.
	ContainmentShare   float64
	BrandBonus         float64
	SizeBonus          float64
	CategoryPenalty    float64
	MaxCategoryPenalty float64
	UnavailableFactor  float64
	// ConflictTokens mark a product as a different kind of thing when
	// they appear in its name but not in the query ("milk chocolate").
	ConflictTokens []string
}

func DefaultWeights() Weights {
	return Weights{
		NameWeight:         0.7,
		ContainmentShare:   0.6,
		BrandBonus:         0.2,
		SizeBonus:          0.1,
		CategoryPenalty:    0.25,
		MaxCategoryPenalty: 0.5,
		UnavailableFactor:  0.5,
		ConflictTokens: []string{
			"chocolate", "choc", "flavoured", "flavored", "powder", "powdered",
			"biscuit", "cookie", "bar", "cake", "chip", "cracker", "lolly",
			"iced", "coffee", "custard", "dessert", "sauce", "seasoning", "mix",
			"spread", "shampoo", "soap", "wash", "cat", "dog", "pet", "baby",
			"infant", "formula", "toddler", "candle", "scented",
		},
	}
}

// Scored is a candidate with its score and the signals behind it.
type Scored struct {
	Product    grocery.Product `json:"product"`
	Score      float64         `json:"score"`
	Similarity float64         `json:"similarity"`
	BrandMatch bool            `json:"brand_match"`
	SizeMatch  bool            `json:"size_match"`
	Conflicts  []string        `json:"conflicts,omitempty"`
}

// Rank scores every candidate against query and returns them best first.
// Ties go to products on special, then the lowest unit price, then the
// lowest stockcode, so the order is fully determined by the inputs.
func Rank(query string, hints Hints, candidates []grocery.Product, w Weights) []Scored {
	q := tokenSet(grocery.Tokens(query))
	conflicts := make(map[string]bool, len(w.ConflictTokens))
	for _, c := range w.ConflictTokens {
		conflicts[grocery.Singular(grocery.Fold(c))] = true
	}

	var hintSize Size
	hasHintSize := false
	if hints.Size != "" {
		hintSize, hasHintSize = ParseSize(hints.Size)
	}

	out := make([]Scored, 0, len(candidates))
	for _, p := range candidates {
		s := Scored{Product: p}
		name := tokenSet(grocery.Tokens(p.Name))
		s.Similarity = similarity(q, name, w.ContainmentShare)
		score := w.NameWeight * s.Similarity

		if hints.Brand != "" && brandMatches(hints.Brand, p) {
			s.BrandMatch = true
			score += w.BrandBonus
		}
		if hints.Size != "" && sizeMatches(hints.Size, hintSize, hasHintSize, p) {
			s.SizeMatch = true
			score += w.SizeBonus
		}

		for tok := range name {
			if conflicts[tok] && !q[tok] {
				s.Conflicts = append(s.Conflicts, tok)
			}
		}
		sort.Strings(s.Conflicts)
		penalty := float64(len(s.Conflicts)) * w.CategoryPenalty
		if w.MaxCategoryPenalty > 0 && penalty > w.MaxCategoryPenalty {
			penalty = w.MaxCategoryPenalty
		}
		score -= penalty

		if !p.Available {
			score *= w.UnavailableFactor
		}
		s.Score = clamp(score)
		out = append(out, s)
	}

	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func less(a, b Scored) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Product.OnSpecial != b.Product.OnSpecial {
		return a.Product.OnSpecial
	}
	ac, bc := a.Product.CupPrice, b.Product.CupPrice
	if !ac.Equal(bc) {
		// unknown unit prices sort last
		if ac.IsZero() {
			return false
		}
		if bc.IsZero() {
			return true
		}
		return ac.LessThan(bc)
	}
	return a.Product.Stockcode < b.Product.Stockcode
}

func tokenSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

// similarity blends how much of the query the name covers with the
// Jaccard overlap of the two token sets.
func similarity(q, name map[string]bool, containmentShare float64) float64 {
	if len(q) == 0 || len(name) == 0 {
		return 0
	}
	inter := 0
	for t := range q {
		if name[t] {
			inter++
		}
	}
	union := len(q) + len(name) - inter
	containment := float64(inter) / float64(len(q))
	jaccard := float64(inter) / float64(union)
	return containmentShare*containment + (1-containmentShare)*jaccard
}

// Jaccard is the token-set overlap of two labels.
func Jaccard(a, b string) float64 {
	return similarity(tokenSet(grocery.Tokens(a)), tokenSet(grocery.Tokens(b)), 0)
}

func brandMatches(hint string, p grocery.Product) bool {
	h := grocery.NormalizeLabel(hint)
	if h == "" {
		return false
	}
	if b := grocery.NormalizeLabel(p.Brand); b != "" && (b == h || strings.Contains(b, h) || strings.Contains(h, b)) {
		return true
	}
	return strings.Contains(" "+grocery.NormalizeLabel(p.Name)+" ", " "+h+" ")
}

func sizeMatches(hint string, hs Size, ok bool, p grocery.Product) bool {
	text := p.PackageSize
	if text == "" {
		text = p.Name
	}
	if ok {
		if ps, pok := ParseSize(text); pok {
			return hs.Same(ps)
		}
	}
	return grocery.Fold(strings.ReplaceAll(hint, " ", "")) == grocery.Fold(strings.ReplaceAll(p.PackageSize, " ", ""))
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
