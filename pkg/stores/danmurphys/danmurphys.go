package danmurphys

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"github.com/trolleyctl/trolley/pkg/grocery"
	"github.com/trolleyctl/trolley/pkg/stores"
	"github.com/trolleyctl/trolley/pkg/whttp"
)

const (
	DefaultBaseURL     = "https://api.danmurphys.com.au"
	DefaultHomepageURL = "https://www.danmurphys.com.au"

	searchPath  = "/apis/ui/Search/products"
	productPath = "/apis/ui/Product/"

	defaultSort     = "Relevance"
	defaultPageSize = 20
)

type Options struct {
	BaseURL     string
	HomepageURL string
	Proxy       string
	RetryMax    int
}

// Provider searches the Dan Murphy's catalog. It has no cart support.
type Provider struct {
	baseURL  string
	homepage string

	mu           sync.Mutex
	client       *retryablehttp.Client
	bootstrapped bool
}

func New(opts Options) (*Provider, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.HomepageURL == "" {
		opts.HomepageURL = DefaultHomepageURL
	}
	client, err := whttp.NewClient(whttp.ClientOptions{Proxy: opts.Proxy, RetryMax: opts.RetryMax})
	if err != nil {
		return nil, err
	}
	return &Provider{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		homepage: strings.TrimRight(opts.HomepageURL, "/"),
		client:   client,
	}, nil
}

func (p *Provider) Name() string { return "danmurphys" }

// Authenticate is a no-op: the catalog is public.
func (p *Provider) Authenticate(ctx context.Context, cfg stores.AuthConfig) error { return nil }

func (p *Provider) session(ctx context.Context) *retryablehttp.Client {
	p.mu.Lock()
	client, done := p.client, p.bootstrapped
	p.bootstrapped = true
	p.mu.Unlock()
	if !done {
		_, _ = whttp.SendHTTPRequest(ctx, &whttp.WHTTPReq{URL: p.homepage + "/", Method: http.MethodGet}, client)
	}
	return client
}

func (p *Provider) do(ctx context.Context, op, method, path string, body []byte) (gjson.Result, error) {
	headers := []whttp.WHTTPHeader{
		{Name: "Accept", Value: "application/json, text/plain, */*"},
		{Name: "Origin", Value: p.homepage},
		{Name: "Referer", Value: p.homepage + "/search"},
	}
	if body != nil {
		headers = append(headers, whttp.WHTTPHeader{Name: "Content-Type", Value: "application/json"})
	}
	res, err := whttp.SendHTTPRequest(ctx, &whttp.WHTTPReq{URL: p.baseURL + path, Method: method, Headers: headers, Body: body}, p.session(ctx))
	if err != nil {
		p.mu.Lock()
		p.bootstrapped = false
		p.mu.Unlock()
		return gjson.Result{}, stores.Classify(op, err)
	}
	if kind, failed := stores.KindForStatus(res.StatusCode); failed {
		return gjson.Result{}, &stores.Error{Kind: kind, Op: op, StatusCode: res.StatusCode, Msg: res.HTTPTitle}
	}
	if res.IsHTML() || !gjson.Valid(res.BodyString) {
		return gjson.Result{}, &stores.Error{Kind: stores.KindTransport, Op: op, StatusCode: res.StatusCode, Msg: fmt.Sprintf("unexpected response %q", res.HTTPTitle)}
	}
	return gjson.Parse(res.BodyString), nil
}

func searchPayload(term string, pageSize int, sort string) ([]byte, error) {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if sort == "" {
		sort = defaultSort
	}
	body, err := sjson.SetRawBytes([]byte(`{}`), "Filters", []byte(`[]`))
	if err != nil {
		return nil, err
	}
	for _, kv := range []struct {
		path  string
		value interface{}
	}{
		{"SearchTerm", term},
		{"PageSize", pageSize},
		{"PageNumber", 1},
		{"SortType", sort},
		{"Location", "ListerFacet"},
		{"PageUrl", "/" + strings.ReplaceAll(strings.ToLower(term), " ", "-")},
	} {
		if body, err = sjson.SetBytes(body, kv.path, kv.value); err != nil {
			return nil, err
		}
	}
	return body, nil
}

func (p *Provider) Search(ctx context.Context, req stores.SearchRequest) ([]grocery.Product, error) {
	payload, err := searchPayload(req.Term, req.PageSize, req.Sort)
	if err != nil {
		return nil, err
	}
	doc, err := p.do(ctx, "search", http.MethodPost, searchPath, payload)
	if err != nil {
		return nil, err
	}
	var out []grocery.Product
	doc.Get("Products").ForEach(func(_, bundle gjson.Result) bool {
		bundle.Get("Products").ForEach(func(_, item gjson.Result) bool {
			if prod, ok := parseProduct(item); ok && (!req.SpecialsOnly || prod.OnSpecial) {
				out = append(out, prod)
			}
			return true
		})
		return true
	})
	return out, nil
}

func (p *Provider) ProductDetails(ctx context.Context, stockcode int64) (grocery.Product, error) {
	doc, err := p.do(ctx, "product", http.MethodGet, productPath+strconv.FormatInt(stockcode, 10), nil)
	if err != nil {
		return grocery.Product{}, err
	}
	raw := stores.First(doc, "Products.0", "Product")
	if !raw.Exists() {
		raw = doc
	}
	prod, ok := parseProduct(raw)
	if !ok {
		return grocery.Product{}, stores.Fail(stores.KindNotFound, "product", fmt.Errorf("stockcode %d", stockcode))
	}
	return prod, nil
}

func (p *Provider) Specials(ctx context.Context, limit int) ([]grocery.Product, error) {
	return p.Search(ctx, stores.SearchRequest{Term: "specials", PageSize: limit, SpecialsOnly: true})
}

func (p *Provider) AddToCart(context.Context, int64, int) error {
	return fmt.Errorf("danmurphys: %w", stores.ErrUnsupported)
}

func (p *Provider) Cart(context.Context) (grocery.CartSnapshot, error) {
	return grocery.CartSnapshot{}, fmt.Errorf("danmurphys: %w", stores.ErrUnsupported)
}

func detail(raw gjson.Result, name string) string {
	var out string
	raw.Get("AdditionalDetails").ForEach(func(_, d gjson.Result) bool {
		if strings.EqualFold(d.Get("Name").String(), name) {
			if v := d.Get("Value"); v.Type != gjson.True && v.Type != gjson.False {
				out = v.String()
			}
			return false
		}
		return true
	})
	return out
}

func parseProduct(raw gjson.Result) (grocery.Product, bool) {
	code, err := strconv.ParseInt(raw.Get("Stockcode").String(), 10, 64)
	if err != nil || code == 0 {
		return grocery.Product{}, false
	}
	p := grocery.Product{
		Stockcode:   code,
		Name:        stores.First(raw, "Title", "Name").String(),
		Brand:       raw.Get("Brand").String(),
		PackageSize: raw.Get("VolumeSize").String(),
		OnSpecial:   raw.Get("IsSpecial").Bool(),
		Available:   true,
		Description: stores.PlainText(detail(raw, "webdescriptionshort")),
		Store:       "danmurphys",
	}
	price := raw.Get("Price")
	if price.IsObject() {
		p.Price = stores.Decimal(price.Get("singleprice.Value"))
		if p.OnSpecial {
			p.WasPrice = stores.Decimal(price.Get("singleprice.BeforePromotion"))
		}
		if six := stores.Decimal(price.Get("inanysixprice.Value")); !six.IsZero() {
			p.CupPrice = six
			p.CupString = "$" + six.StringFixed(2) + " in any six"
		}
	} else {
		p.Price = stores.Decimal(price)
	}
	if v := raw.Get("IsAvailable"); v.Exists() && v.Type != gjson.Null {
		p.Available = v.Bool()
	}
	return p, true
}
