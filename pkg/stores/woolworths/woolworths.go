package woolworths

import (
	"context"
	"errors"
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
	DefaultBaseURL = "https://www.woolworths.com.au"

	searchPath        = "/apis/ui/Search/products"
	productPath       = "/apis/ui/product/detail/"
	trolleyUpdatePath = "/api/v3/ui/trolley/update"
	trolleyItemsPath  = "/api/v3/ui/trolley/items"

	defaultSort     = "TraderRelevance"
	defaultPageSize = 10
)

var errNoCookies = errors.New("woolworths cookies not configured, run: trolley setup --cookies '<cookie header>'")

type Options struct {
	BaseURL  string
	Proxy    string
	RetryMax int
}

// Provider talks to the Woolworths web API. Catalog calls need only the
// bot-manager cookies picked up from the homepage; cart calls also need
// the user's session cookies.
type Provider struct {
	baseURL string
	opts    Options

	mu           sync.Mutex
	client       *retryablehttp.Client
	cookies      string
	bootstrapped bool
}

func New(opts Options) (*Provider, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	client, err := whttp.NewClient(whttp.ClientOptions{Proxy: opts.Proxy, RetryMax: opts.RetryMax})
	if err != nil {
		return nil, err
	}
	return &Provider{baseURL: strings.TrimRight(opts.BaseURL, "/"), opts: opts, client: client}, nil
}

func (p *Provider) Name() string { return "woolworths" }

func (p *Provider) Authenticate(ctx context.Context, cfg stores.AuthConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cookies = strings.TrimSpace(cfg.Cookies)
	if cfg.Proxy != "" && cfg.Proxy != p.opts.Proxy {
		client, err := whttp.NewClient(whttp.ClientOptions{Proxy: cfg.Proxy, RetryMax: p.opts.RetryMax})
		if err != nil {
			return err
		}
		p.opts.Proxy = cfg.Proxy
		p.client = client
		p.bootstrapped = false
	}
	return nil
}

// session returns the client, hitting the homepage first on a new session
// so the bot manager hands out its cookies. Failures there are ignored.
func (p *Provider) session(ctx context.Context) *retryablehttp.Client {
	p.mu.Lock()
	client, done := p.client, p.bootstrapped
	p.bootstrapped = true
	p.mu.Unlock()
	if !done {
		_, _ = whttp.SendHTTPRequest(ctx, &whttp.WHTTPReq{URL: p.baseURL + "/", Method: http.MethodGet}, client)
	}
	return client
}

func (p *Provider) resetSession() {
	p.mu.Lock()
	p.bootstrapped = false
	p.mu.Unlock()
}

func (p *Provider) do(ctx context.Context, op, method, path string, body []byte, needAuth bool) (gjson.Result, error) {
	headers := []whttp.WHTTPHeader{
		{Name: "Accept", Value: "application/json, text/plain, */*"},
		{Name: "Origin", Value: p.baseURL},
		{Name: "Referer", Value: p.baseURL + "/shop/search/products"},
	}
	if body != nil {
		headers = append(headers, whttp.WHTTPHeader{Name: "Content-Type", Value: "application/json"})
	}
	if needAuth {
		p.mu.Lock()
		cookies := p.cookies
		p.mu.Unlock()
		if cookies == "" {
			return gjson.Result{}, stores.Fail(stores.KindAuthExpired, op, errNoCookies)
		}
		headers = append(headers, whttp.WHTTPHeader{Name: "Cookie", Value: cookies})
	}

	client := p.session(ctx)
	res, err := whttp.SendHTTPRequest(ctx, &whttp.WHTTPReq{URL: p.baseURL + path, Method: method, Headers: headers, Body: body}, client)
	if err != nil {
		p.resetSession()
		return gjson.Result{}, stores.Classify(op, err)
	}
	return decode(op, res)
}

func decode(op string, res *whttp.WHTTPRes) (gjson.Result, error) {
	if kind, failed := stores.KindForStatus(res.StatusCode); failed {
		return gjson.Result{}, &stores.Error{Kind: kind, Op: op, StatusCode: res.StatusCode, Msg: res.HTTPTitle}
	}
	if res.IsHTML() {
		return gjson.Result{}, &stores.Error{Kind: stores.KindTransport, Op: op, StatusCode: res.StatusCode, Msg: fmt.Sprintf("got HTML page %q instead of JSON", res.HTTPTitle)}
	}
	if !gjson.Valid(res.BodyString) {
		return gjson.Result{}, &stores.Error{Kind: stores.KindTransport, Op: op, StatusCode: res.StatusCode, Msg: "invalid JSON response"}
	}
	return gjson.Parse(res.BodyString), nil
}

func searchPayload(term string, pageSize int, sort string, specials bool) ([]byte, error) {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if sort == "" {
		sort = defaultSort
	}
	body := []byte(`{}`)
	var err error
	for _, kv := range []struct {
		path  string
		value interface{}
	}{
		{"SearchTerm", term},
		{"PageNumber", 1},
		{"PageSize", pageSize},
		{"SortType", sort},
		{"Location", ""},
		{"IsSpecial", specials},
	} {
		if body, err = sjson.SetBytes(body, kv.path, kv.value); err != nil {
			return nil, err
		}
	}
	return body, nil
}

func (p *Provider) search(ctx context.Context, op, term string, pageSize int, sort string, specials bool) ([]grocery.Product, error) {
	payload, err := searchPayload(term, pageSize, sort, specials)
	if err != nil {
		return nil, err
	}
	doc, err := p.do(ctx, op, http.MethodPost, searchPath, payload, false)
	if err != nil {
		return nil, err
	}
	var out []grocery.Product
	doc.Get("Products").ForEach(func(_, bundle gjson.Result) bool {
		bundle.Get("Products").ForEach(func(_, item gjson.Result) bool {
			if prod, ok := parseProduct(item); ok && (!specials || prod.OnSpecial) {
				out = append(out, prod)
			}
			return true
		})
		return true
	})
	return out, nil
}

func (p *Provider) Search(ctx context.Context, req stores.SearchRequest) ([]grocery.Product, error) {
	return p.search(ctx, "search", req.Term, req.PageSize, req.Sort, req.SpecialsOnly)
}

func (p *Provider) Specials(ctx context.Context, limit int) ([]grocery.Product, error) {
	return p.search(ctx, "specials", "", limit, defaultSort, true)
}

func (p *Provider) ProductDetails(ctx context.Context, stockcode int64) (grocery.Product, error) {
	doc, err := p.do(ctx, "product", http.MethodGet, productPath+strconv.FormatInt(stockcode, 10), nil, false)
	if err != nil {
		return grocery.Product{}, err
	}
	raw := doc.Get("Product")
	if !raw.Exists() || raw.Type == gjson.Null {
		raw = doc
	}
	prod, ok := parseProduct(raw)
	if !ok {
		return grocery.Product{}, stores.Fail(stores.KindNotFound, "product", fmt.Errorf("stockcode %d", stockcode))
	}
	return prod, nil
}

func (p *Provider) AddToCart(ctx context.Context, stockcode int64, quantity int) error {
	payload, err := sjson.SetBytes([]byte(`{}`), "Stockcode", stockcode)
	if err == nil {
		payload, err = sjson.SetBytes(payload, "Quantity", quantity)
	}
	if err != nil {
		return err
	}
	doc, err := p.do(ctx, "add to cart", http.MethodPost, trolleyUpdatePath, payload, true)
	if err != nil {
		return err
	}
	if errs := doc.Get("Errors"); errs.IsArray() && len(errs.Array()) > 0 {
		msg := stores.First(errs.Array()[0], "Message", "ErrorMessage").String()
		if msg == "" {
			msg = errs.Array()[0].String()
		}
		return &stores.Error{Kind: stores.KindTransport, Op: "add to cart", Msg: msg}
	}
	return nil
}

func (p *Provider) Cart(ctx context.Context) (grocery.CartSnapshot, error) {
	doc, err := p.do(ctx, "cart", http.MethodGet, trolleyItemsPath, nil, true)
	if err != nil {
		return grocery.CartSnapshot{}, err
	}
	return parseCart(doc), nil
}
