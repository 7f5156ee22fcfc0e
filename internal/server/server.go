package server

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/trolleyctl/trolley/internal/utils"
	"github.com/trolleyctl/trolley/pkg/ledger"
	"github.com/trolleyctl/trolley/pkg/resolver"
	"github.com/trolleyctl/trolley/pkg/shopping"
	"github.com/trolleyctl/trolley/pkg/storage"
)

// Locker guards writes that may race with CLI commands.
type Locker interface {
	Lock() error
	Unlock() error
}

type Server struct {
	DB       *storage.DB
	Resolver *resolver.Resolver
	Workflow *shopping.Workflow
	Ledger   *ledger.Ledger
	Lock     Locker // optional
	Username string
	Password string

	mu sync.Mutex // serialises writing handlers within this process
}

// Handler returns the JSON API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.basicAuth)

	r.Get("/api/stats", s.handleStats)
	r.Post("/api/resolve", s.writing(s.handleResolve))

	r.Get("/api/preferences", s.handlePreferences)
	r.Put("/api/preferences/{label}", s.writing(s.handleSavePreference))
	r.Delete("/api/preferences/{label}", s.writing(s.handleForgetPreference))

	r.Get("/api/usual", s.handleUsual)
	r.Get("/api/orders", s.handleOrders)
	r.Get("/api/spending", s.handleSpending)

	r.Get("/api/lists", s.handleLists)
	r.Post("/api/lists", s.writing(s.handleCreateList))
	r.Get("/api/lists/{ref}", s.handleGetList)
	r.Post("/api/lists/{ref}/items", s.writing(s.handleAddItems))
	r.Post("/api/lists/{ref}/resolve", s.writing(s.handleResolveList))
	return r
}

func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	utils.Log.Infof("Starting server on %s", addr)
	return srv.ListenAndServe()
}

func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Username == "" && s.Password == "" {
			next.ServeHTTP(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(user), []byte(s.Username)) != 1 || subtle.ConstantTimeCompare([]byte(pass), []byte(s.Password)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="trolley"`)
			httpError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writing holds the database lock around handlers that mutate state.
func (s *Server) writing(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.Lock == nil {
			next(w, r)
			return
		}
		if err := s.Lock.Lock(); err != nil {
			httpError(w, http.StatusServiceUnavailable, "database busy: %v", err)
			return
		}
		defer s.Lock.Unlock()
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		utils.Log.Debugf("Could not write response: %v", err)
	}
}

func httpError(w http.ResponseWriter, code int, format string, args ...interface{}) {
	writeJSON(w, code, map[string]interface{}{
		"error": fmt.Sprintf(format, args...),
	})
}
