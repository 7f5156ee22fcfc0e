package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/trolleyctl/trolley/pkg/catalog"
	"github.com/trolleyctl/trolley/pkg/grocery"
	"github.com/trolleyctl/trolley/pkg/match"
	"github.com/trolleyctl/trolley/pkg/storage"
	"github.com/trolleyctl/trolley/pkg/stores"
)

// ErrNoMatch is reported when a search returned no candidates at all.
var ErrNoMatch = errors.New("no matching products")

// Catalog is the part of catalog.Layer the resolver needs.
type Catalog interface {
	Search(ctx context.Context, q catalog.Query) (catalog.SearchResult, error)
	Lookup(ctx context.Context, stockcode int64) (grocery.Product, error)
}

// PreferenceStore persists preferences by normalized label. Missing rows
// are reported as storage.ErrNotFound.
type PreferenceStore interface {
	GetPreference(ctx context.Context, label string) (grocery.Preference, error)
	ListPreferences(ctx context.Context) ([]grocery.Preference, error)
	SavePreference(ctx context.Context, p grocery.Preference) error
	DeletePreference(ctx context.Context, label string) error
}

// ItemConfirmer marks pending list items as user-confirmed once the user
// picks a product for their label.
type ItemConfirmer interface {
	ConfirmItems(ctx context.Context, label string, p grocery.Product) (int, error)
}

// Scorer ranks candidates best first.
type Scorer func(query string, hints match.Hints, candidates []grocery.Product) []match.Scored

type Config struct {
	MinScore      float64
	MinMargin     float64
	MaxCandidates int
	// ExplicitConfidence is stored for user choices, InferredConfidence
	// for confident automatic matches.
	ExplicitConfidence float64
	InferredConfidence float64
	// FastPathMinConfidence is the least confidence a preference needs to
	// skip searching.
	FastPathMinConfidence float64
	// FuzzyPreferenceMin is the token overlap a saved label needs to stand
	// in for a query without an exact preference. Zero disables it.
	FuzzyPreferenceMin float64
}

func DefaultConfig() Config {
	return Config{
		MinScore:              0.4,
		MinMargin:             0.1,
		MaxCandidates:         5,
		ExplicitConfidence:    0.9,
		InferredConfidence:    0.3,
		FastPathMinConfidence: 0,
		FuzzyPreferenceMin:    0.6,
	}
}

type Source string

const (
	SourcePreference Source = "preference"
	SourceSearch     Source = "search"
)

type Outcome string

const (
	OutcomeResolved  Outcome = "resolved"
	OutcomeAmbiguous Outcome = "ambiguous"
	OutcomeNoMatch   Outcome = "no-match"
	OutcomeFailed    Outcome = "failed"
)

// Request is one item to resolve.
type Request struct {
	Label    string
	Quantity int
	Brand    string
	Size     string
}

// Resolution is the outcome of resolving one Request.
type Resolution struct {
	Label      string              `json:"label"`
	Query      string              `json:"query"`
	Quantity   int                 `json:"quantity"`
	Status     grocery.Status      `json:"status"`
	Outcome    Outcome             `json:"outcome"`
	Source     Source              `json:"source,omitempty"`
	Product    *grocery.Product    `json:"product,omitempty"`
	Score      float64             `json:"score"`
	Candidates []match.Scored      `json:"candidates,omitempty"`
	Preference *grocery.Preference `json:"preference,omitempty"`
	// Stale is set when the candidates came from an expired cache entry.
	Stale bool `json:"stale"`
}

// Err returns ErrNoMatch for no-match outcomes and nil otherwise.
func (r Resolution) Err() error {
	if r.Outcome == OutcomeNoMatch {
		return ErrNoMatch
	}
	return nil
}

type Resolver struct {
	catalog   Catalog
	prefs     PreferenceStore
	confirmer ItemConfirmer
	score     Scorer
	cfg       Config
	log       catalog.Logger
	now       func() time.Time
}

type Option func(*Resolver)

func WithConfirmer(c ItemConfirmer) Option { return func(r *Resolver) { r.confirmer = c } }

func WithScorer(s Scorer) Option { return func(r *Resolver) { r.score = s } }

// WithWeights scores candidates with match.Rank under w.
func WithWeights(w match.Weights) Option {
	return func(r *Resolver) {
		r.score = func(q string, h match.Hints, c []grocery.Product) []match.Scored { return match.Rank(q, h, c, w) }
	}
}

func WithLogger(l catalog.Logger) Option { return func(r *Resolver) { r.log = l } }

func WithClock(now func() time.Time) Option { return func(r *Resolver) { r.now = now } }

func New(cat Catalog, prefs PreferenceStore, cfg Config, opts ...Option) *Resolver {
	r := &Resolver{
		catalog: cat,
		prefs:   prefs,
		cfg:     cfg,
		log:     catalog.NopLogger{},
		now:     time.Now,
	}
	WithWeights(match.DefaultWeights())(r)
	for _, o := range opts {
		o(r)
	}
	if r.cfg.MaxCandidates <= 0 {
		r.cfg.MaxCandidates = 5
	}
	return r
}

// Resolve maps a free-text item to a product. Catalog failures come back
// as an error alongside an unresolved Resolution.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Resolution, error) {
	label := grocery.NormalizeLabel(req.Label)
	if label == "" {
		return Resolution{Query: req.Label, Status: grocery.StatusUnresolved, Outcome: OutcomeFailed}, errors.New("empty item label")
	}
	qty := req.Quantity
	if qty < 1 {
		qty = 1
	}
	res := Resolution{Label: label, Query: req.Label, Quantity: qty, Status: grocery.StatusUnresolved}

	existing, hasExisting := r.exactPreference(ctx, label)
	done, err := r.fastPath(ctx, &res, existing, hasExisting)
	if err != nil {
		res.Outcome = OutcomeFailed
		return res, err
	}
	if done {
		return res, nil
	}
	if hasExisting {
		// may have been invalidated by the fast path
		existing, hasExisting = r.exactPreference(ctx, label)
	}

	result, err := r.catalog.Search(ctx, catalog.Query{Text: label, Brand: req.Brand, Size: req.Size})
	if err != nil {
		res.Outcome = OutcomeFailed
		return res, fmt.Errorf("resolve %q: %w", req.Label, err)
	}
	res.Stale = result.Stale
	if len(result.Products) == 0 {
		res.Outcome = OutcomeNoMatch
		return res, nil
	}

	ranked := r.score(label, match.Hints{Brand: req.Brand, Size: req.Size}, result.Products)
	top := ranked[0]
	next := 0.0
	if len(ranked) > 1 {
		next = ranked[1].Score
	}

	const eps = 1e-9
	if top.Score+eps >= r.cfg.MinScore && top.Score-next+eps >= r.cfg.MinMargin {
		p := top.Product
		res.Status = grocery.StatusAutoResolved
		res.Outcome = OutcomeResolved
		res.Source = SourceSearch
		res.Product = &p
		res.Score = top.Score
		res.Candidates = ranked[:1]
		r.recordInferred(ctx, label, p, existing, hasExisting)
		return res, nil
	}

	if len(ranked) > r.cfg.MaxCandidates {
		ranked = ranked[:r.cfg.MaxCandidates]
	}
	res.Status = grocery.StatusAmbiguous
	res.Outcome = OutcomeAmbiguous
	res.Source = SourceSearch
	res.Score = top.Score
	res.Candidates = ranked
	return res, nil
}

// fastPath resolves from a saved preference whose product still exists.
func (r *Resolver) fastPath(ctx context.Context, res *Resolution, pref grocery.Preference, ok bool) (bool, error) {
	if !ok {
		pref, ok = r.fuzzyPreference(ctx, res.Label)
	}
	if !ok || pref.Confidence < r.cfg.FastPathMinConfidence {
		return false, nil
	}

	p, err := r.catalog.Lookup(ctx, pref.Stockcode)
	if errors.Is(err, stores.ErrNotFound) {
		r.log.Infof("Product %d for %q is gone, forgetting preference", pref.Stockcode, pref.Label)
		if err := r.prefs.DeletePreference(ctx, pref.Label); err != nil && !errors.Is(err, storage.ErrNotFound) {
			r.log.Warnf("Could not delete preference %q: %v", pref.Label, err)
		}
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("resolve %q: %w", res.Query, err)
	}

	res.Status = grocery.StatusAutoResolved
	res.Outcome = OutcomeResolved
	res.Source = SourcePreference
	res.Product = &p
	res.Score = pref.Confidence
	res.Preference = &pref
	return true, nil
}

func (r *Resolver) exactPreference(ctx context.Context, label string) (grocery.Preference, bool) {
	p, err := r.prefs.GetPreference(ctx, label)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			r.log.Warnf("Could not read preference %q: %v", label, err)
		}
		return grocery.Preference{}, false
	}
	return p, true
}

func (r *Resolver) fuzzyPreference(ctx context.Context, label string) (grocery.Preference, bool) {
	if r.cfg.FuzzyPreferenceMin <= 0 {
		return grocery.Preference{}, false
	}
	all, err := r.prefs.ListPreferences(ctx)
	if err != nil {
		r.log.Warnf("Could not list preferences: %v", err)
		return grocery.Preference{}, false
	}
	type candidate struct {
		pref  grocery.Preference
		score float64
	}
	var cands []candidate
	for _, p := range all {
		if s := match.Jaccard(label, p.Label); s >= r.cfg.FuzzyPreferenceMin {
			cands = append(cands, candidate{p, s})
		}
	}
	if len(cands) == 0 {
		return grocery.Preference{}, false
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		if cands[i].pref.Confidence != cands[j].pref.Confidence {
			return cands[i].pref.Confidence > cands[j].pref.Confidence
		}
		return cands[i].pref.Label < cands[j].pref.Label
	})
	return cands[0].pref, true
}

// recordInferred remembers a confident automatic match. Explicit and
// purchase-backed preferences are never overwritten by a guess.
func (r *Resolver) recordInferred(ctx context.Context, label string, p grocery.Product, existing grocery.Preference, ok bool) {
	if ok && existing.Source != grocery.SourceInferred {
		return
	}
	pref := grocery.Preference{
		Label:       label,
		Stockcode:   p.Stockcode,
		ProductName: p.Name,
		Brand:       p.Brand,
		PackageSize: p.PackageSize,
		LastPrice:   p.Price,
		Source:      grocery.SourceInferred,
		Confidence:  r.cfg.InferredConfidence,
		UpdatedAt:   r.now(),
	}
	if err := r.prefs.SavePreference(ctx, pref); err != nil {
		r.log.Warnf("Could not save inferred preference %q: %v", label, err)
	}
}

// SavePreference records the user's explicit choice of stockcode for
// label after checking the product exists.
func (r *Resolver) SavePreference(ctx context.Context, label string, stockcode int64) (grocery.Preference, error) {
	norm := grocery.NormalizeLabel(label)
	if norm == "" {
		return grocery.Preference{}, errors.New("empty item label")
	}
	p, err := r.catalog.Lookup(ctx, stockcode)
	if err != nil {
		return grocery.Preference{}, fmt.Errorf("look up %d: %w", stockcode, err)
	}

	pref := grocery.Preference{
		Label:       norm,
		Stockcode:   p.Stockcode,
		ProductName: p.Name,
		Brand:       p.Brand,
		PackageSize: p.PackageSize,
		LastPrice:   p.Price,
		Source:      grocery.SourceExplicit,
		Confidence:  r.cfg.ExplicitConfidence,
		UpdatedAt:   r.now(),
	}
	if existing, ok := r.exactPreference(ctx, norm); ok && existing.Stockcode == p.Stockcode {
		pref.PurchaseCount = existing.PurchaseCount
		if existing.Confidence > pref.Confidence {
			pref.Confidence = existing.Confidence
		}
	}
	if err := r.prefs.SavePreference(ctx, pref); err != nil {
		return grocery.Preference{}, err
	}

	if r.confirmer != nil {
		n, err := r.confirmer.ConfirmItems(ctx, norm, p)
		if err != nil {
			r.log.Warnf("Could not confirm list items for %q: %v", norm, err)
		} else if n > 0 {
			r.log.Infof("Confirmed %d list item(s) for %q", n, norm)
		}
	}
	return pref, nil
}

// Forget deletes the preference for label.
func (r *Resolver) Forget(ctx context.Context, label string) error {
	return r.prefs.DeletePreference(ctx, grocery.NormalizeLabel(label))
}

// ResolveAll resolves each request in order. Failures are collected and
// do not stop the remaining items.
func (r *Resolver) ResolveAll(ctx context.Context, reqs []Request) ([]Resolution, error) {
	out := make([]Resolution, 0, len(reqs))
	var errs []error
	for _, req := range reqs {
		res, err := r.Resolve(ctx, req)
		if err != nil {
			errs = append(errs, err)
		}
		out = append(out, res)
		if ctx.Err() != nil {
			break
		}
	}
	return out, errors.Join(errs...)
}
