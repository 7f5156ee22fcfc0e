package grocery

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var irregularSingulars = map[string]string{
	"leaves":   "leaf",
	"loaves":   "loaf",
	"knives":   "knife",
	"halves":   "half",
	"children": "child",
	"mice":     "mouse",
	"geese":    "goose",
}

// Fold lowercases s and strips diacritics ("Crème" -> "creme").
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// Singular reduces an English plural to its singular form. Tokens carrying
// digits are left alone so sizes such as "2l" or "6pk" survive.
func Singular(word string) string {
	if w, ok := irregularSingulars[word]; ok {
		return w
	}
	if len(word) <= 3 || strings.ContainsAny(word, "0123456789") {
		return word
	}
	switch {
	case strings.HasSuffix(word, "ies") && len(word) > 4:
		return strings.TrimSuffix(word, "ies") + "y"
	case strings.HasSuffix(word, "oes"):
		return strings.TrimSuffix(word, "es")
	case strings.HasSuffix(word, "ches"), strings.HasSuffix(word, "shes"),
		strings.HasSuffix(word, "sses"), strings.HasSuffix(word, "xes"),
		strings.HasSuffix(word, "zes"):
		return strings.TrimSuffix(word, "es")
	case strings.HasSuffix(word, "ss"), strings.HasSuffix(word, "us"), strings.HasSuffix(word, "is"):
		return word
	case strings.HasSuffix(word, "s"):
		return strings.TrimSuffix(word, "s")
	}
	return word
}

// Tokens splits s into folded, singularized word tokens.
func Tokens(s string) []string {
	fields := strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".")
		if f == "" {
			continue
		}
		out = append(out, Singular(f))
	}
	return out
}

// NormalizeLabel is the key under which preferences and purchase
// history are stored: "Bananas " and "banana" map to the same label.
func NormalizeLabel(s string) string {
	return strings.Join(Tokens(s), " ")
}

var (
	leadingQty  = regexp.MustCompile(`^(\d+)\s*x?\s+(.+)$`)
	trailingQty = regexp.MustCompile(`^(.+?)\s+x\s*(\d+)$`)
)

// ParseItem splits a free-text list entry such as "2 eggs" or "milk x3"
// into its label and quantity. Quantity defaults to 1.
func ParseItem(s string) (label string, quantity int) {
	s = strings.Join(strings.Fields(s), " ")
	if m := leadingQty.FindStringSubmatch(s); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return strings.ToLower(m[2]), n
		}
	}
	if m := trailingQty.FindStringSubmatch(strings.ToLower(s)); m != nil {
		if n, err := strconv.Atoi(m[2]); err == nil && n > 0 {
			return m[1], n
		}
	}
	return strings.ToLower(s), 1
}
