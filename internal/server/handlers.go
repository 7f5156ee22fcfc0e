package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/trolleyctl/trolley/pkg/catalog"
	"github.com/trolleyctl/trolley/pkg/grocery"
	"github.com/trolleyctl/trolley/pkg/resolver"
	"github.com/trolleyctl/trolley/pkg/storage"
	"github.com/trolleyctl/trolley/pkg/stores"
	"github.com/trolleyctl/trolley/pkg/usual"
)

const maxBodySize = 1 << 20

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return false
	}
	return true
}

// failure maps domain errors onto status codes.
func failure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, stores.ErrNotFound):
		httpError(w, http.StatusNotFound, "%v", err)
	case errors.Is(err, stores.ErrAuthExpired):
		httpError(w, http.StatusBadGateway, "store session expired, update your cookies: %v", err)
	case errors.Is(err, catalog.ErrUnavailable), errors.Is(err, stores.ErrTimeout), errors.Is(err, stores.ErrTransport):
		httpError(w, http.StatusBadGateway, "store unavailable, try again: %v", err)
	default:
		httpError(w, http.StatusInternalServerError, "%v", err)
	}
}

func intParam(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.DB.GetStats(r.Context())
	if err != nil {
		failure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type resolveRequest struct {
	Items []string `json:"items"`
	Brand string   `json:"brand"`
	Size  string   `json:"size"`
}

type resolveResponse struct {
	Resolutions []resolver.Resolution `json:"resolutions"`
	Errors      []string              `json:"errors,omitempty"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Items) == 0 {
		httpError(w, http.StatusBadRequest, "items is required")
		return
	}
	reqs := make([]resolver.Request, 0, len(req.Items))
	for _, it := range req.Items {
		label, qty := grocery.ParseItem(it)
		reqs = append(reqs, resolver.Request{Label: label, Quantity: qty, Brand: req.Brand, Size: req.Size})
	}
	out, err := s.Resolver.ResolveAll(r.Context(), reqs)
	resp := resolveResponse{Resolutions: out}
	if err != nil {
		resp.Errors = append(resp.Errors, err.Error())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := s.DB.ListPreferences(r.Context())
	if err != nil {
		failure(w, err)
		return
	}
	if prefs == nil {
		prefs = []grocery.Preference{}
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (s *Server) handleSavePreference(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Stockcode int64 `json:"stockcode"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Stockcode <= 0 {
		httpError(w, http.StatusBadRequest, "stockcode is required")
		return
	}
	pref, err := s.Resolver.SavePreference(r.Context(), chi.URLParam(r, "label"), req.Stockcode)
	if err != nil {
		failure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pref)
}

func (s *Server) handleForgetPreference(w http.ResponseWriter, r *http.Request) {
	if err := s.Resolver.Forget(r.Context(), chi.URLParam(r, "label")); err != nil {
		failure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUsual(w http.ResponseWriter, r *http.Request) {
	opts := usual.Options{
		MinFrequency: intParam(r, "min", 0),
		Lookback:     intParam(r, "lookback", 0),
		Exclude:      r.URL.Query()["exclude"],
	}
	items, err := usual.Usual(r.Context(), s.DB, opts)
	if err != nil {
		failure(w, err)
		return
	}
	if items == nil {
		items = []usual.Item{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if days := intParam(r, "days", 0); days > 0 {
		since = time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	}
	orders, err := s.Ledger.Orders(r.Context(), intParam(r, "limit", 20), since)
	if err != nil {
		failure(w, err)
		return
	}
	if orders == nil {
		orders = []grocery.OrderRecord{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func (s *Server) handleSpending(w http.ResponseWriter, r *http.Request) {
	sp, err := s.Ledger.Spending(r.Context(), intParam(r, "days", 30))
	if err != nil {
		failure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sp)
}

func (s *Server) handleLists(w http.ResponseWriter, r *http.Request) {
	lists, err := s.DB.ListLists(r.Context(), grocery.ListStatus(r.URL.Query().Get("status")), intParam(r, "limit", 50))
	if err != nil {
		failure(w, err)
		return
	}
	if lists == nil {
		lists = []grocery.List{}
	}
	writeJSON(w, http.StatusOK, lists)
}

type listResponse struct {
	List  grocery.List       `json:"list"`
	Items []grocery.ListItem `json:"items"`
}

func (s *Server) writeList(w http.ResponseWriter, r *http.Request, code int, id int64) {
	l, err := s.DB.GetList(r.Context(), id)
	if err != nil {
		failure(w, err)
		return
	}
	items, err := s.DB.ListItems(r.Context(), id)
	if err != nil {
		failure(w, err)
		return
	}
	if items == nil {
		items = []grocery.ListItem{}
	}
	writeJSON(w, code, listResponse{List: l, Items: items})
}

func (s *Server) handleCreateList(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string   `json:"name"`
		Items []string `json:"items"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Name == "" {
		httpError(w, http.StatusBadRequest, "name is required")
		return
	}
	l, _, err := s.Workflow.CreateList(r.Context(), req.Name, req.Items)
	if err != nil {
		failure(w, err)
		return
	}
	s.writeList(w, r, http.StatusCreated, l.ID)
}

func (s *Server) findList(w http.ResponseWriter, r *http.Request) (grocery.List, bool) {
	l, err := s.DB.FindList(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		failure(w, err)
		return grocery.List{}, false
	}
	return l, true
}

func (s *Server) handleGetList(w http.ResponseWriter, r *http.Request) {
	l, ok := s.findList(w, r)
	if !ok {
		return
	}
	s.writeList(w, r, http.StatusOK, l.ID)
}

func (s *Server) handleAddItems(w http.ResponseWriter, r *http.Request) {
	l, ok := s.findList(w, r)
	if !ok {
		return
	}
	var req struct {
		Items []string `json:"items"`
	}
	if !decode(w, r, &req) {
		return
	}
	if _, err := s.Workflow.AddItems(r.Context(), l.ID, req.Items); err != nil {
		failure(w, err)
		return
	}
	s.writeList(w, r, http.StatusOK, l.ID)
}

func (s *Server) handleResolveList(w http.ResponseWriter, r *http.Request) {
	l, ok := s.findList(w, r)
	if !ok {
		return
	}
	res, err := s.Workflow.ResolveList(r.Context(), l.ID, r.URL.Query().Get("force") == "true")
	if err != nil {
		failure(w, err)
		return
	}
	out := struct {
		List       grocery.List          `json:"list"`
		Resolved   int                   `json:"resolved"`
		Ambiguous  int                   `json:"ambiguous"`
		Unresolved int                   `json:"unresolved"`
		Items      []resolver.Resolution `json:"items"`
		Errors     []string              `json:"errors,omitempty"`
	}{List: res.List, Resolved: res.Resolved, Ambiguous: res.Ambiguous, Unresolved: res.Unresolved}
	for _, ir := range res.Items {
		if ir.Skipped {
			continue
		}
		out.Items = append(out.Items, ir.Resolution)
	}
	for _, e := range res.Errors {
		out.Errors = append(out.Errors, e.Error())
	}
	writeJSON(w, http.StatusOK, out)
}
