package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trolleyctl/trolley/internal/utils"
	"github.com/trolleyctl/trolley/pkg/catalog"
	"github.com/trolleyctl/trolley/pkg/grocery"
	"github.com/trolleyctl/trolley/pkg/ledger"
	"github.com/trolleyctl/trolley/pkg/resolver"
	"github.com/trolleyctl/trolley/pkg/shopping"
	"github.com/trolleyctl/trolley/pkg/storage"
	"github.com/trolleyctl/trolley/pkg/stores/dev"
)

type countingLock struct{ locks, unlocks int }

func (l *countingLock) Lock() error   { l.locks++; return nil }
func (l *countingLock) Unlock() error { l.unlocks++; return nil }

func newTestServer(t *testing.T, user, pass string) (*Server, *countingLock) {
	t.Helper()
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cat := catalog.New(dev.NewProvider(), catalog.WithLimiter(catalog.NewLimiter(100, time.Second)))
	res := resolver.New(cat, db, resolver.DefaultConfig(), resolver.WithConfirmer(db))
	led := ledger.New(db, cat.Store())
	lock := &countingLock{}
	return &Server{
		DB:       db,
		Resolver: res,
		Workflow: shopping.New(shopping.Config{DB: db, Resolver: res, Cart: cat, Ledger: led}),
		Ledger:   led,
		Lock:     lock,
		Username: user,
		Password: pass,
	}, lock
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestBasicAuth(t *testing.T) {
	s, _ := newTestServer(t, "me", "secret")
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/api/stats", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.SetBasicAuth("me", "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestResolveAndPreferences(t *testing.T) {
	s, lock := newTestServer(t, "", "")
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/resolve", resolveRequest{Items: []string{"6 bananas", "yoghurt"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out resolveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Resolutions, 2)
	assert.Equal(t, grocery.StatusAutoResolved, out.Resolutions[0].Status)
	assert.Equal(t, 6, out.Resolutions[0].Quantity)
	assert.Equal(t, grocery.StatusAmbiguous, out.Resolutions[1].Status)
	assert.Equal(t, 1, lock.locks)
	assert.Equal(t, 1, lock.unlocks)

	rec = do(t, h, http.MethodPut, "/api/preferences/yoghurt", map[string]int64{"stockcode": 400200})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPut, "/api/preferences/yoghurt", map[string]int64{"stockcode": 42})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/preferences", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var prefs []grocery.Preference
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prefs))
	require.Len(t, prefs, 2)

	rec = do(t, h, http.MethodDelete, "/api/preferences/yoghurt", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodDelete, "/api/preferences/yoghurt", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListsEndpoints(t *testing.T) {
	s, _ := newTestServer(t, "", "")
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/lists", map[string]interface{}{"name": "weekly", "items": []string{"bananas x6", "unobtainium"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Len(t, created.Items, 2)

	rec = do(t, h, http.MethodPost, "/api/lists/weekly/items", map[string]interface{}{"items": []string{"banana"}})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	require.Len(t, updated.Items, 2)
	assert.Equal(t, 7, updated.Items[0].Quantity)

	rec = do(t, h, http.MethodPost, "/api/lists/weekly/resolve", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rr struct {
		Resolved   int `json:"resolved"`
		Unresolved int `json:"unresolved"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rr))
	assert.Equal(t, 1, rr.Resolved)
	assert.Equal(t, 1, rr.Unresolved)

	rec = do(t, h, http.MethodGet, "/api/lists?status=active", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var lists []grocery.List
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lists))
	assert.Len(t, lists, 1)

	rec = do(t, h, http.MethodGet, "/api/lists/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrdersUsualAndSpending(t *testing.T) {
	s, _ := newTestServer(t, "", "")
	h := s.Handler()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Ledger.Record(ctx, 0, []grocery.OrderItem{{Label: "milk", Stockcode: 123456, ProductName: "Milk", Quantity: 1, UnitPrice: decimal.RequireFromString("3.10")}}, decimal.NullDecimal{}, "")
		require.NoError(t, err)
	}

	rec := do(t, h, http.MethodGet, "/api/orders?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var orders []grocery.OrderRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &orders))
	assert.Len(t, orders, 2)

	rec = do(t, h, http.MethodGet, "/api/usual", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var items []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "milk", items[0]["label"])

	rec = do(t, h, http.MethodGet, "/api/usual?exclude=milk", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/spending?days=7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sp ledger.Spending
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sp))
	assert.Equal(t, 3, sp.Orders)
}

func TestBadRequests(t *testing.T) {
	s, _ := newTestServer(t, "", "")
	h := s.Handler()

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/resolve", resolveRequest{}).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/lists", map[string]string{}).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPut, "/api/preferences/milk", map[string]int{}).Code)
}

// holderCount wraps a Locker and records how many callers held it at once.
type holderCount struct {
	inner  Locker
	active int32
	max    int32
}

func (h *holderCount) Lock() error {
	if err := h.inner.Lock(); err != nil {
		return err
	}
	n := atomic.AddInt32(&h.active, 1)
	for {
		m := atomic.LoadInt32(&h.max)
		if n <= m || atomic.CompareAndSwapInt32(&h.max, m, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return nil
}

func (h *holderCount) Unlock() error {
	atomic.AddInt32(&h.active, -1)
	return h.inner.Unlock()
}

func TestWritesAreSerialised(t *testing.T) {
	s, _ := newTestServer(t, "", "")
	dbLock, err := utils.NewDBLock(filepath.Join(t.TempDir(), "trolley.sqlite"))
	require.NoError(t, err)
	held := &holderCount{inner: dbLock}
	s.Lock = held
	h := s.Handler()

	var wg sync.WaitGroup
	codes := make([]int, 8)
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var buf bytes.Buffer
			json.NewEncoder(&buf).Encode(map[string]interface{}{"name": "list", "items": []string{"bananas"}})
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/lists", &buf))
			codes[i] = rec.Code
		}(i)
	}
	wg.Wait()

	for i, code := range codes {
		assert.Equal(t, http.StatusCreated, code, "request %d", i)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&held.max))
	assert.Zero(t, atomic.LoadInt32(&held.active))
}
