package match

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

type Dimension int

const (
	Volume Dimension = iota + 1
	Mass
	Count
)

// Size is a package quantity in base units (ml, g or items).
type Size struct {
	Value     float64
	Dimension Dimension
}

var sizePattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(millilitres?|milliliters?|ml|litres?|liters?|lt|l|kilograms?|kilos?|kg|grams?|gm|g|pack|pk|each|ea)\b`)

var units = map[string]Size{
	"ml": {1, Volume}, "millilitre": {1, Volume}, "millilitres": {1, Volume}, "milliliter": {1, Volume}, "milliliters": {1, Volume},
	"l": {1000, Volume}, "lt": {1000, Volume}, "litre": {1000, Volume}, "litres": {1000, Volume}, "liter": {1000, Volume}, "liters": {1000, Volume},
	"g": {1, Mass}, "gm": {1, Mass}, "gram": {1, Mass}, "grams": {1, Mass},
	"kg": {1000, Mass}, "kilo": {1000, Mass}, "kilos": {1000, Mass}, "kilogram": {1000, Mass}, "kilograms": {1000, Mass},
	"pack": {1, Count}, "pk": {1, Count}, "each": {1, Count}, "ea": {1, Count},
}

// ParseSize extracts the first quantity from s, e.g. "2L", "2 litre" and
// "2000ml" all parse to 2000 ml.
func ParseSize(s string) (Size, bool) {
	m := sizePattern.FindStringSubmatch(strings.ToLower(s))
	if m == nil {
		return Size{}, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Size{}, false
	}
	u := units[m[2]]
	return Size{Value: v * u.Value, Dimension: u.Dimension}, true
}

// Same reports whether two sizes describe the same quantity.
func (s Size) Same(o Size) bool {
	if s.Dimension != o.Dimension {
		return false
	}
	return math.Abs(s.Value-o.Value) <= 0.005*math.Max(s.Value, o.Value)
}
