package resolver

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trolleyctl/trolley/pkg/catalog"
	"github.com/trolleyctl/trolley/pkg/grocery"
	"github.com/trolleyctl/trolley/pkg/match"
	"github.com/trolleyctl/trolley/pkg/storage"
	"github.com/trolleyctl/trolley/pkg/stores"
)

type fakeCatalog struct {
	products  map[int64]grocery.Product
	results   []grocery.Product
	searchErr error
	lookupErr error
	stale     bool
	searches  int
	lookups   int
}

func (f *fakeCatalog) Search(_ context.Context, q catalog.Query) (catalog.SearchResult, error) {
	f.searches++
	if f.searchErr != nil {
		return catalog.SearchResult{}, f.searchErr
	}
	return catalog.SearchResult{Query: q, Products: f.results, Stale: f.stale}, nil
}

func (f *fakeCatalog) Lookup(_ context.Context, code int64) (grocery.Product, error) {
	f.lookups++
	if f.lookupErr != nil {
		return grocery.Product{}, f.lookupErr
	}
	p, ok := f.products[code]
	if !ok {
		return grocery.Product{}, stores.Fail(stores.KindNotFound, "product", nil)
	}
	return p, nil
}

type memPrefs struct {
	mu    sync.Mutex
	prefs map[string]grocery.Preference
	saves int
}

func newMemPrefs(ps ...grocery.Preference) *memPrefs {
	m := &memPrefs{prefs: make(map[string]grocery.Preference)}
	for _, p := range ps {
		m.prefs[grocery.NormalizeLabel(p.Label)] = p
	}
	return m
}

func (m *memPrefs) GetPreference(_ context.Context, label string) (grocery.Preference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prefs[grocery.NormalizeLabel(label)]
	if !ok {
		return grocery.Preference{}, storage.ErrNotFound
	}
	return p, nil
}

func (m *memPrefs) ListPreferences(context.Context) ([]grocery.Preference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []grocery.Preference
	for _, p := range m.prefs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out, nil
}

func (m *memPrefs) SavePreference(_ context.Context, p grocery.Preference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.prefs[grocery.NormalizeLabel(p.Label)] = p
	return nil
}

func (m *memPrefs) DeletePreference(_ context.Context, label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.prefs[label]; !ok {
		return storage.ErrNotFound
	}
	delete(m.prefs, label)
	return nil
}

type recordingConfirmer struct {
	labels []string
}

func (c *recordingConfirmer) ConfirmItems(_ context.Context, label string, _ grocery.Product) (int, error) {
	c.labels = append(c.labels, label)
	return 1, nil
}

func product(code int64, name string) grocery.Product {
	return grocery.Product{Stockcode: code, Name: name, Price: decimal.RequireFromString("3.10"), Available: true}
}

// fixedScorer returns candidates in input order with the given scores.
func fixedScorer(scores ...float64) Scorer {
	return func(_ string, _ match.Hints, cands []grocery.Product) []match.Scored {
		out := make([]match.Scored, len(cands))
		for i, c := range cands {
			out[i] = match.Scored{Product: c, Score: scores[i]}
		}
		return out
	}
}

func TestFastPathSkipsSearch(t *testing.T) {
	milk := product(123456, "Woolworths Full Cream Milk 2L")
	cat := &fakeCatalog{products: map[int64]grocery.Product{123456: milk}}
	prefs := newMemPrefs(grocery.Preference{Label: "milk", Stockcode: 123456, Source: grocery.SourceExplicit, Confidence: 0.9})
	r := New(cat, prefs, DefaultConfig())

	res, err := r.Resolve(context.Background(), Request{Label: "Milk", Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, grocery.StatusAutoResolved, res.Status)
	assert.Equal(t, SourcePreference, res.Source)
	assert.Equal(t, int64(123456), res.Product.Stockcode)
	assert.Equal(t, 2, res.Quantity)
	assert.Zero(t, cat.searches)
	assert.Equal(t, 1, cat.lookups)
}

func TestSavePreferenceThenResolve(t *testing.T) {
	milk := product(123456, "Woolworths Full Cream Milk 2L")
	cat := &fakeCatalog{products: map[int64]grocery.Product{123456: milk}}
	prefs := newMemPrefs()
	confirmer := &recordingConfirmer{}
	r := New(cat, prefs, DefaultConfig(), WithConfirmer(confirmer))

	pref, err := r.SavePreference(context.Background(), "Milk", 123456)
	require.NoError(t, err)
	assert.Equal(t, grocery.SourceExplicit, pref.Source)
	assert.Equal(t, 0.9, pref.Confidence)
	assert.Equal(t, []string{"milk"}, confirmer.labels)

	res, err := r.Resolve(context.Background(), Request{Label: "milk"})
	require.NoError(t, err)
	assert.Equal(t, grocery.StatusAutoResolved, res.Status)
	assert.Equal(t, int64(123456), res.Product.Stockcode)
	assert.Zero(t, cat.searches)
}

func TestSavePreferenceRejectsUnknownProduct(t *testing.T) {
	cat := &fakeCatalog{products: map[int64]grocery.Product{}}
	prefs := newMemPrefs()
	r := New(cat, prefs, DefaultConfig())

	_, err := r.SavePreference(context.Background(), "milk", 42)
	assert.ErrorIs(t, err, stores.ErrNotFound)
	assert.Zero(t, prefs.saves)
}

func TestVanishedProductInvalidatesPreference(t *testing.T) {
	replacement := product(999, "Woolworths Full Cream Milk 2L")
	cat := &fakeCatalog{products: map[int64]grocery.Product{}, results: []grocery.Product{replacement}}
	prefs := newMemPrefs(grocery.Preference{Label: "milk", Stockcode: 123456, Source: grocery.SourceExplicit, Confidence: 0.9})
	r := New(cat, prefs, DefaultConfig())

	res, err := r.Resolve(context.Background(), Request{Label: "milk"})
	require.NoError(t, err)
	assert.Equal(t, 1, cat.searches)
	assert.Equal(t, SourceSearch, res.Source)
	assert.Equal(t, int64(999), res.Product.Stockcode)

	p, err := prefs.GetPreference(context.Background(), "milk")
	require.NoError(t, err)
	assert.Equal(t, int64(999), p.Stockcode, "old preference should be replaced by the inferred one")
	assert.Equal(t, grocery.SourceInferred, p.Source)
	assert.Equal(t, 0.3, p.Confidence)
}

func TestAmbiguousWritesNothing(t *testing.T) {
	cat := &fakeCatalog{results: []grocery.Product{
		product(1, "Chobani Greek Yoghurt Plain 907g"),
		product(2, "Jalna Greek Yoghurt Plain 1kg"),
	}}
	prefs := newMemPrefs()
	r := New(cat, prefs, DefaultConfig(), WithScorer(fixedScorer(0.81, 0.79)))

	res, err := r.Resolve(context.Background(), Request{Label: "yoghurt"})
	require.NoError(t, err)
	assert.Equal(t, grocery.StatusAmbiguous, res.Status)
	assert.Equal(t, OutcomeAmbiguous, res.Outcome)
	require.Len(t, res.Candidates, 2)
	assert.Equal(t, int64(1), res.Candidates[0].Product.Stockcode)
	assert.Equal(t, int64(2), res.Candidates[1].Product.Stockcode)
	assert.Nil(t, res.Product)
	assert.Zero(t, prefs.saves)
}

func TestAutoResolveThresholds(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		want   grocery.Status
	}{
		{"clear winner", []float64{0.8, 0.5}, grocery.StatusAutoResolved},
		{"exact margin", []float64{0.5, 0.4}, grocery.StatusAutoResolved},
		{"below min score", []float64{0.39, 0.0}, grocery.StatusAmbiguous},
		{"single candidate", []float64{0.45}, grocery.StatusAutoResolved},
		{"narrow margin", []float64{0.9, 0.85}, grocery.StatusAmbiguous},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var results []grocery.Product
			for i := range tt.scores {
				results = append(results, product(int64(i+1), "Item"))
			}
			cat := &fakeCatalog{results: results}
			r := New(cat, newMemPrefs(), DefaultConfig(), WithScorer(fixedScorer(tt.scores...)))
			res, err := r.Resolve(context.Background(), Request{Label: "item"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Status)
		})
	}
}

func TestInferredNeverOverwritesExplicit(t *testing.T) {
	cat := &fakeCatalog{
		products: map[int64]grocery.Product{},
		results:  []grocery.Product{product(2, "Bread")},
	}
	cfg := DefaultConfig()
	cfg.FastPathMinConfidence = 0.5
	explicit := grocery.Preference{Label: "bread", Stockcode: 1, Source: grocery.SourceExplicit, Confidence: 0.2}
	prefs := newMemPrefs(explicit)
	r := New(cat, prefs, cfg, WithScorer(fixedScorer(0.9)))

	res, err := r.Resolve(context.Background(), Request{Label: "bread"})
	require.NoError(t, err)
	assert.Equal(t, grocery.StatusAutoResolved, res.Status)
	assert.Zero(t, cat.lookups, "low-confidence preference should not take the fast path")

	got, _ := prefs.GetPreference(context.Background(), "bread")
	assert.Equal(t, explicit, got)
}

func TestNoMatch(t *testing.T) {
	cat := &fakeCatalog{}
	r := New(cat, newMemPrefs(), DefaultConfig())

	res, err := r.Resolve(context.Background(), Request{Label: "unobtainium"})
	require.NoError(t, err)
	assert.Equal(t, grocery.StatusUnresolved, res.Status)
	assert.Equal(t, OutcomeNoMatch, res.Outcome)
	assert.ErrorIs(t, res.Err(), ErrNoMatch)
}

func TestCatalogFailureLeavesItemUnresolved(t *testing.T) {
	cat := &fakeCatalog{searchErr: errors.Join(catalog.ErrUnavailable, stores.ErrTimeout)}
	r := New(cat, newMemPrefs(), DefaultConfig())

	res, err := r.Resolve(context.Background(), Request{Label: "milk"})
	require.Error(t, err)
	assert.ErrorIs(t, err, catalog.ErrUnavailable)
	assert.ErrorIs(t, err, stores.ErrTimeout)
	assert.Equal(t, grocery.StatusUnresolved, res.Status)
	assert.Equal(t, OutcomeFailed, res.Outcome)
}

func TestFastPathLookupFailure(t *testing.T) {
	cat := &fakeCatalog{lookupErr: stores.Fail(stores.KindAuthExpired, "product", nil)}
	prefs := newMemPrefs(grocery.Preference{Label: "milk", Stockcode: 123456, Source: grocery.SourceExplicit, Confidence: 0.9})
	r := New(cat, prefs, DefaultConfig())

	res, err := r.Resolve(context.Background(), Request{Label: "milk"})
	assert.ErrorIs(t, err, stores.ErrAuthExpired)
	assert.Equal(t, grocery.StatusUnresolved, res.Status)
	assert.Zero(t, cat.searches)
	_, perr := prefs.GetPreference(context.Background(), "milk")
	assert.NoError(t, perr, "preference must survive non-NotFound failures")
}

func TestFuzzyPreference(t *testing.T) {
	eggs := product(200100, "Woolworths 12 Extra Large Free Range Eggs 700g")
	cat := &fakeCatalog{products: map[int64]grocery.Product{200100: eggs}}
	prefs := newMemPrefs(grocery.Preference{Label: "free range eggs", Stockcode: 200100, Source: grocery.SourceExplicit, Confidence: 0.9})
	r := New(cat, prefs, DefaultConfig())

	res, err := r.Resolve(context.Background(), Request{Label: "large free-range eggs"})
	require.NoError(t, err)
	assert.Equal(t, SourcePreference, res.Source)
	assert.Zero(t, cat.searches)

	cfg := DefaultConfig()
	cfg.FuzzyPreferenceMin = 0
	r = New(&fakeCatalog{}, prefs, cfg)
	res, err = r.Resolve(context.Background(), Request{Label: "range eggs"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoMatch, res.Outcome)
}

func TestStaleSearchIsFlagged(t *testing.T) {
	cat := &fakeCatalog{results: []grocery.Product{product(1, "Bananas")}, stale: true}
	r := New(cat, newMemPrefs(), DefaultConfig(), WithScorer(fixedScorer(0.9)))

	res, err := r.Resolve(context.Background(), Request{Label: "bananas"})
	require.NoError(t, err)
	assert.True(t, res.Stale)
}

func TestResolveAllContinuesPastFailures(t *testing.T) {
	cat := &fakeCatalog{results: []grocery.Product{product(1, "Bananas")}}
	r := New(cat, newMemPrefs(), DefaultConfig(), WithScorer(fixedScorer(0.9)))

	out, err := r.ResolveAll(context.Background(), []Request{{Label: "bananas"}, {Label: "  "}, {Label: "bananas"}})
	require.Error(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, grocery.StatusAutoResolved, out[0].Status)
	assert.Equal(t, OutcomeFailed, out[1].Outcome)
	assert.Equal(t, grocery.StatusAutoResolved, out[2].Status)
}

func TestForget(t *testing.T) {
	prefs := newMemPrefs(grocery.Preference{Label: "milk", Stockcode: 1})
	r := New(&fakeCatalog{}, prefs, DefaultConfig())
	require.NoError(t, r.Forget(context.Background(), "Milk"))
	assert.ErrorIs(t, r.Forget(context.Background(), "milk"), storage.ErrNotFound)
}
