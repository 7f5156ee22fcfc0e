package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/trolleyctl/trolley/internal/utils"
	"github.com/trolleyctl/trolley/pkg/catalog"
	"github.com/trolleyctl/trolley/pkg/grocery"
	"github.com/trolleyctl/trolley/pkg/ledger"
	"github.com/trolleyctl/trolley/pkg/resolver"
	"github.com/trolleyctl/trolley/pkg/shopping"
	"github.com/trolleyctl/trolley/pkg/storage"
	"github.com/trolleyctl/trolley/pkg/stores"
	"github.com/trolleyctl/trolley/pkg/stores/danmurphys"
	"github.com/trolleyctl/trolley/pkg/stores/dev"
	"github.com/trolleyctl/trolley/pkg/stores/woolworths"
)

var (
	bold  = color.New(color.Bold).SprintFunc()
	green = color.New(color.FgGreen).SprintFunc()
	warn  = color.New(color.FgYellow).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
	faint = color.New(color.Faint).SprintFunc()
)

// app bundles the components a command works with.
type app struct {
	db       *storage.DB
	lock     *utils.DBLock
	catalog  *catalog.Layer
	resolver *resolver.Resolver
	ledger   *ledger.Ledger
	workflow *shopping.Workflow
}

// openApp opens the database and wires the store. write takes the
// database lock for the life of the command.
func openApp(cmd *cobra.Command, write bool) (*app, error) {
	dbPath, _ := cmd.Flags().GetString("dbpath")
	abs, err := utils.EnsureDBDir(dbPath)
	if err != nil {
		return nil, err
	}

	a := &app{}
	if write {
		if a.lock, err = utils.NewDBLock(abs); err != nil {
			return nil, err
		}
		if err := a.lock.Lock(); err != nil {
			return nil, err
		}
	}
	if a.db, err = storage.Open(abs); err != nil {
		a.close()
		return nil, err
	}

	provider, err := newProvider(cmd)
	if err != nil {
		a.close()
		return nil, err
	}
	a.catalog = catalog.New(provider,
		catalog.WithCache(a.db.SearchCache()),
		catalog.WithConfig(catalogConfig()),
		catalog.WithLogger(utils.Log),
	)
	a.resolver = resolver.New(a.catalog, a.db, resolverConfig(),
		resolver.WithConfirmer(a.db),
		resolver.WithLogger(utils.Log),
	)
	a.ledger = ledger.New(a.db, provider.Name(), ledger.WithLogger(utils.Log))
	a.workflow = shopping.New(shopping.Config{
		DB:          a.db,
		Resolver:    a.resolver,
		Cart:        a.catalog,
		Ledger:      a.ledger,
		Concurrency: viper.GetInt("cart.concurrency"),
		Log:         utils.Log,
	})
	return a, nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
	if a.lock != nil {
		if err := a.lock.Unlock(); err != nil {
			utils.Log.Warnf("%v", err)
		}
	}
}

func storeName(cmd *cobra.Command) string {
	name, _ := cmd.Flags().GetString("store")
	if name == "" {
		name = viper.GetString("store")
	}
	return strings.ToLower(strings.TrimSpace(name))
}

func newProvider(cmd *cobra.Command) (stores.Provider, error) {
	proxy, _ := cmd.Flags().GetString("proxy")
	retryMax := viper.GetInt("http.retrymax")

	var (
		p   stores.Provider
		err error
	)
	switch name := storeName(cmd); name {
	case "woolworths", "":
		p, err = woolworths.New(woolworths.Options{BaseURL: viper.GetString("woolworths.baseurl"), Proxy: proxy, RetryMax: retryMax})
	case "danmurphys":
		p, err = danmurphys.New(danmurphys.Options{
			BaseURL:     viper.GetString("danmurphys.baseurl"),
			HomepageURL: viper.GetString("danmurphys.homepage"),
			Proxy:       proxy,
			RetryMax:    retryMax,
		})
	case "dev":
		p = dev.NewProvider()
	default:
		return nil, fmt.Errorf("unknown store %q (want woolworths, danmurphys or dev)", name)
	}
	if err != nil {
		return nil, err
	}
	auth := stores.AuthConfig{
		Cookies: viper.GetString(p.Name() + ".cookies"),
		APIKey:  viper.GetString(p.Name() + ".apikey"),
		Proxy:   proxy,
	}
	if err := p.Authenticate(ctxOf(cmd), auth); err != nil {
		return nil, fmt.Errorf("%s auth failed: %w", p.Name(), err)
	}
	return p, nil
}

func catalogConfig() catalog.Config {
	cfg := catalog.DefaultConfig()
	if n := viper.GetInt("catalog.rate"); n > 0 {
		cfg.Rate = n
	}
	durations := map[string]*time.Duration{
		"catalog.period":      &cfg.Period,
		"catalog.timeout":     &cfg.Timeout,
		"catalog.searchttl":   &cfg.SearchTTL,
		"catalog.productttl":  &cfg.ProductTTL,
		"catalog.specialsttl": &cfg.SpecialsTTL,
		"catalog.stalebound":  &cfg.StaleBound,
	}
	for key, dst := range durations {
		if d := viper.GetDuration(key); d > 0 {
			*dst = d
		}
	}
	return cfg
}

func resolverConfig() resolver.Config {
	cfg := resolver.DefaultConfig()
	cfg.MinScore = viper.GetFloat64("match.minscore")
	cfg.MinMargin = viper.GetFloat64("match.minmargin")
	if n := viper.GetInt("match.maxcandidates"); n > 0 {
		cfg.MaxCandidates = n
	}
	return cfg
}

// guidance turns the failures users can act on into a next step.
func guidance(err error) string {
	var nf *notFoundHint
	switch {
	case errors.Is(err, stores.ErrAuthExpired):
		return warn("Your store session has expired. Update your cookies: trolley setup --cookies '<cookie header>'")
	case errors.Is(err, catalog.ErrUnavailable), errors.Is(err, stores.ErrTimeout), errors.Is(err, stores.ErrTransport):
		return warn("The store did not answer. Try again in a minute.")
	case errors.Is(err, stores.ErrUnsupported):
		return warn("This store does not support that. Use --store woolworths.")
	case errors.As(err, &nf):
		return warn(nf.hint)
	case errors.Is(err, resolver.ErrNoMatch):
		return warn("Nothing in the catalog matched. Try a more general name.")
	}
	return ""
}

// notFoundHint carries a specific suggestion for a missing record.
type notFoundHint struct {
	err  error
	hint string
}

func (e *notFoundHint) Error() string { return e.err.Error() }
func (e *notFoundHint) Unwrap() error { return e.err }

// findList resolves a list reference, defaulting to the newest active list.
func findList(cmd *cobra.Command, a *app, args []string) (grocery.List, error) {
	ref := ""
	if len(args) > 0 {
		ref = args[0]
	}
	l, err := a.db.FindList(ctxOf(cmd), ref)
	if errors.Is(err, storage.ErrNotFound) {
		if ref == "" {
			return l, &notFoundHint{err: fmt.Errorf("no active list: %w", err), hint: "Create one with: trolley list create <name> [items...]"}
		}
		return l, &notFoundHint{err: fmt.Errorf("list %q: %w", ref, err), hint: "See your lists with: trolley list ls"}
	}
	return l, err
}

func statusColor(s grocery.Status) string {
	switch s {
	case grocery.StatusAutoResolved, grocery.StatusUserConfirmed:
		return green(string(s))
	case grocery.StatusAmbiguous:
		return warn(string(s))
	default:
		return red(string(s))
	}
}

func productLine(p grocery.Product) string {
	s := fmt.Sprintf("%s (%d) %s", p.Name, p.Stockcode, utils.Money(p.Price))
	if p.OnSpecial {
		s += " " + green("special")
		if sv := p.Savings(); sv.IsPositive() {
			s += green(" save "+utils.Money(sv))
		}
	}
	if !p.Available {
		s += " " + red("unavailable")
	}
	return s
}

func ctxOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
