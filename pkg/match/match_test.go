package match

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trolleyctl/trolley/pkg/grocery"
)

func prod(code int64, name string) grocery.Product {
	return grocery.Product{Stockcode: code, Name: name, Available: true}
}

func TestRankPenalisesCategoryConflict(t *testing.T) {
	candidates := []grocery.Product{
		prod(1, "Cadbury Dairy Milk Chocolate Block 180g"),
		prod(2, "Woolworths Full Cream Milk 2L"),
	}
	ranked := Rank("milk", Hints{}, candidates, DefaultWeights())
	require.Len(t, ranked, 2)
	assert.Equal(t, int64(2), ranked[0].Product.Stockcode)
	assert.InDelta(t, 0.476, ranked[0].Score, 1e-9)
	assert.Equal(t, []string{"chocolate"}, ranked[1].Conflicts)
	assert.Less(t, ranked[1].Score, 0.3)
}

func TestRankIsDeterministic(t *testing.T) {
	candidates := []grocery.Product{
		prod(30, "Pauls Full Cream Milk 2L"),
		prod(10, "a2 Milk Full Cream 2L"),
		prod(20, "Dairy Farmers Full Cream Milk 2L"),
	}
	first := Rank("full cream milk", Hints{}, candidates, DefaultWeights())
	for i := 0; i < 20; i++ {
		again := Rank("full cream milk", Hints{}, candidates, DefaultWeights())
		assert.Equal(t, first, again)
	}
}

func TestRankTieBreaks(t *testing.T) {
	special := prod(40, "Brand B Milk")
	special.OnSpecial = true
	cheap := prod(30, "Brand C Milk")
	cheap.CupPrice = decimal.RequireFromString("1.20")
	dear := prod(20, "Brand D Milk")
	dear.CupPrice = decimal.RequireFromString("1.90")
	unknown := prod(10, "Brand E Milk")

	ranked := Rank("milk", Hints{}, []grocery.Product{unknown, dear, cheap, special}, DefaultWeights())
	var order []int64
	for _, r := range ranked {
		order = append(order, r.Product.Stockcode)
	}
	assert.Equal(t, []int64{40, 30, 20, 10}, order)

	sameA, sameB := prod(7, "Brand F Milk"), prod(3, "Brand G Milk")
	ranked = Rank("milk", Hints{}, []grocery.Product{sameA, sameB}, DefaultWeights())
	assert.Equal(t, int64(3), ranked[0].Product.Stockcode)
}

func TestRankBrandAndSizeBonus(t *testing.T) {
	a2 := prod(1, "a2 Milk Full Cream 2L")
	a2.Brand = "a2 Milk"
	a2.PackageSize = "2L"
	small := prod(2, "a2 Milk Full Cream 1L")
	small.Brand = "a2 Milk"
	small.PackageSize = "1L"
	other := prod(3, "Pauls Full Cream Milk 2L")
	other.Brand = "Pauls"
	other.PackageSize = "2000ml"

	ranked := Rank("full cream milk", Hints{Brand: "a2", Size: "2 litre"}, []grocery.Product{other, small, a2}, DefaultWeights())
	require.Len(t, ranked, 3)
	assert.Equal(t, int64(1), ranked[0].Product.Stockcode)
	assert.True(t, ranked[0].BrandMatch)
	assert.True(t, ranked[0].SizeMatch)

	for _, r := range ranked {
		switch r.Product.Stockcode {
		case 2:
			assert.True(t, r.BrandMatch)
			assert.False(t, r.SizeMatch)
		case 3:
			assert.False(t, r.BrandMatch)
			assert.True(t, r.SizeMatch, "2000ml should equal 2 litre")
		}
	}
}

func TestRankUnavailableScaled(t *testing.T) {
	in := prod(1, "Bananas Cavendish")
	out := prod(2, "Bananas Cavendish")
	out.Available = false
	ranked := Rank("bananas", Hints{}, []grocery.Product{out, in}, DefaultWeights())
	require.Len(t, ranked, 2)
	assert.Equal(t, int64(1), ranked[0].Product.Stockcode)
	assert.InDelta(t, ranked[0].Score*0.5, ranked[1].Score, 1e-9)
}

func TestRankScoresClamped(t *testing.T) {
	w := DefaultWeights()
	w.NameWeight = 1
	w.BrandBonus = 0.5
	p := prod(1, "Milk")
	p.Brand = "Milk"
	ranked := Rank("milk", Hints{Brand: "milk"}, []grocery.Product{p, prod(2, "Chocolate Cake Bar Mix")}, w)
	for _, r := range ranked {
		assert.True(t, r.Score >= 0 && r.Score <= 1, "score %v out of range", r.Score)
	}
	assert.Equal(t, 1.0, ranked[0].Score)
	assert.Equal(t, 0.0, ranked[1].Score)
}

func TestRankEmptyQuery(t *testing.T) {
	ranked := Rank("", Hints{}, []grocery.Product{prod(1, "Milk")}, DefaultWeights())
	require.Len(t, ranked, 1)
	assert.Equal(t, 0.0, ranked[0].Score)
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want Size
		ok   bool
	}{
		{"2L", Size{2000, Volume}, true},
		{"2 litre", Size{2000, Volume}, true},
		{"2000ml", Size{2000, Volume}, true},
		{"1.5 Litres", Size{1500, Volume}, true},
		{"500g", Size{500, Mass}, true},
		{"1kg", Size{1000, Mass}, true},
		{"6 pack", Size{6, Count}, true},
		{"a2 Milk", Size{}, false},
		{"each", Size{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseSize(tt.in)
			if ok != tt.ok || math.Abs(got.Value-tt.want.Value) > 1e-9 || got.Dimension != tt.want.Dimension {
				t.Fatalf("ParseSize(%q) = (%+v, %v), want (%+v, %v)", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
	a, _ := ParseSize("1kg")
	b, _ := ParseSize("1L")
	if a.Same(b) {
		t.Fatalf("mass and volume must not compare equal")
	}
}

func TestJaccard(t *testing.T) {
	assert.Equal(t, 1.0, Jaccard("Bananas", "banana"))
	assert.InDelta(t, 1.0/3.0, Jaccard("full cream milk", "milk"), 1e-9)
	assert.Equal(t, 0.0, Jaccard("milk", "bread"))
}
