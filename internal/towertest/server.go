// Package towertest runs an in-memory imitation of the Tower REST API for
// tests. It keeps one collection of records per resource kind, answers the
// list/detail/create/update/delete routes, and walks launched jobs through
// pending, running and a configurable final state.
package towertest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/rflorenc/tower-cli/internal/models"
)

// Prefix is the API root the fake serves.
const Prefix = "/api/v2/"

var ignoredParams = map[string]bool{"page": true, "page_size": true, "order_by": true}

// Server is a running fake API.
type Server struct {
	*httptest.Server

	// Username and Password, when set, are required as basic auth.
	Username string
	Password string
	// PageSize bounds list responses; 0 means unlimited.
	PageSize int
	// JobOutcome is the status a started job ends in.
	JobOutcome string
	// PasswordsNeeded is reported by GET /jobs/{id}/start/.
	PasswordsNeeded []string
	// Version is reported by /ping/.
	Version string

	mu          sync.Mutex
	collections map[string]map[int]models.Record
	nextID      map[string]int
	calls       map[string]int
	failures    map[string]int
	requestIDs  []string
	startBodies map[int]models.Record
}

// NewServer starts a fake API. Close it when done.
func NewServer() *Server {
	s := &Server{
		JobOutcome:  models.JobSuccessful,
		Version:     "3.8.6",
		collections: make(map[string]map[int]models.Record),
		nextID:      make(map[string]int),
		calls:       make(map[string]int),
		failures:    make(map[string]int),
		startBodies: make(map[int]models.Record),
	}
	s.Server = httptest.NewServer(s.router())
	return s
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestID)
	r.Use(s.basicAuth)

	r.Get("/api/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"description": "AWX REST API", "current_version": Prefix})
	})
	r.Route("/api/v2", func(r chi.Router) {
		r.Use(s.countAndFail)
		r.Get("/ping/", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]interface{}{"version": s.Version, "ha": false, "active_node": "towertest"})
		})
		r.Get("/me/", s.me)
		r.Get("/jobs/{id}/start/", s.startRequirements)
		r.Post("/jobs/{id}/start/", s.startJob)
		r.Get("/{kind}/", s.list)
		r.Post("/{kind}/", s.create)
		r.Get("/{kind}/{id}/", s.detail)
		r.Patch("/{kind}/{id}/", s.update)
		r.Delete("/{kind}/{id}/", s.remove)
	})
	return r
}

// me answers as the authenticated user, the way Tower lists itself as a
// one-result page.
func (s *Server) me(w http.ResponseWriter, _ *http.Request) {
	name := s.Username
	if name == "" {
		name = "admin"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":    1,
		"next":     nil,
		"previous": nil,
		"results":  []interface{}{map[string]interface{}{"id": 1, "username": name}},
	})
}

// Seed stores rec under kind and returns its new id.
func (s *Server) Seed(kind string, rec models.Record) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(kind, normalize(rec))
}

// Record returns a copy of the stored record.
func (s *Server) Record(kind string, id int) (models.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.collections[kind][id]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Records returns copies of every record of kind ordered by id.
func (s *Server) Records(kind string) []models.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(kind)
}

// Calls returns how many requests with method hit kind's routes.
func (s *Server) Calls(method, kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method+" "+kind]
}

// TotalCalls returns the number of requests made against kind.
func (s *Server) TotalCalls(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete} {
		n += s.calls[m+" "+kind]
	}
	return n
}

// Fail makes every method request on kind answer with status.
func (s *Server) Fail(method, kind string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+kind] = status
}

// RequestIDs returns the X-Request-Id of every request seen.
func (s *Server) RequestIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.requestIDs))
	copy(out, s.requestIDs)
	return out
}

// StartBody returns the body the job was started with.
func (s *Server) StartBody(id int) (models.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.startBodies[id]
	return b, ok
}

// Middleware

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.New().String()
		}
		s.mu.Lock()
		s.requestIDs = append(s.requestIDs, id)
		s.mu.Unlock()
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Username != "" {
			user, pass, ok := r.BasicAuth()
			if !ok || user != s.Username || pass != s.Password {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid username/password."})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// countAndFail runs after routing inside /api/v2 so the kind is known from
// the first path segment.
func (s *Server) countAndFail(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		kind := firstSegment(r.URL.Path)
		key := r.Method + " " + kind
		s.mu.Lock()
		s.calls[key]++
		status := s.failures[key]
		s.mu.Unlock()
		if status != 0 {
			writeJSON(w, status, map[string]string{"detail": http.StatusText(status)})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Handlers

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	query := r.URL.Query()

	s.mu.Lock()
	var matched []models.Record
	for _, rec := range s.sorted(kind) {
		if matchesQuery(rec, query) {
			matched = append(matched, rec)
		}
	}
	s.mu.Unlock()

	page := 1
	if p, err := strconv.Atoi(query.Get("page")); err == nil && p > 0 {
		page = p
	}
	results := matched
	var next interface{}
	if s.PageSize > 0 {
		start := (page - 1) * s.PageSize
		if start > len(matched) {
			start = len(matched)
		}
		end := start + s.PageSize
		if end < len(matched) {
			q := r.URL.Query()
			q.Set("page", strconv.Itoa(page+1))
			next = Prefix + kind + "/?" + q.Encode()
		} else {
			end = len(matched)
		}
		results = matched[start:end]
	}
	if results == nil {
		results = []models.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(matched),
		"next":     next,
		"previous": nil,
		"results":  results,
	})
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	body, ok := decodeBody(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range []string{"name", "username"} {
		v, ok := body[key]
		if !ok || kind == "jobs" {
			continue
		}
		for _, rec := range s.collections[kind] {
			if fmt.Sprint(rec[key]) == fmt.Sprint(v) {
				writeJSON(w, http.StatusBadRequest, map[string][]string{key: {"This field must be unique."}})
				return
			}
		}
	}
	if kind == "jobs" {
		body["status"] = models.JobNew
		body["failed"] = false
		body["elapsed"] = json.Number("0")
	}
	id := s.insert(kind, body)
	writeJSON(w, http.StatusCreated, s.collections[kind][id])
}

func (s *Server) detail(w http.ResponseWriter, r *http.Request) {
	s.withRecord(w, r, func(kind string, rec models.Record) {
		if kind == "jobs" {
			advanceJob(rec, s.JobOutcome)
		}
		writeJSON(w, http.StatusOK, rec)
	})
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeBody(w, r)
	if !ok {
		return
	}
	s.withRecord(w, r, func(_ string, rec models.Record) {
		for k, v := range body {
			if k != "id" {
				rec[k] = v
			}
		}
		writeJSON(w, http.StatusOK, rec)
	})
}

func (s *Server) remove(w http.ResponseWriter, r *http.Request) {
	s.withRecord(w, r, func(kind string, rec models.Record) {
		delete(s.collections[kind], rec.ID())
		w.WriteHeader(http.StatusNoContent)
	})
}

func (s *Server) startRequirements(w http.ResponseWriter, r *http.Request) {
	needed := s.PasswordsNeeded
	if needed == nil {
		needed = []string{}
	}
	s.withJob(w, r, func(rec models.Record) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"can_start":                 rec.String("status") == models.JobNew,
			"passwords_needed_to_start": needed,
		})
	})
}

func (s *Server) startJob(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeBody(w, r)
	if !ok {
		return
	}
	s.withJob(w, r, func(rec models.Record) {
		var missing []string
		for _, p := range s.PasswordsNeeded {
			if _, ok := body[p]; !ok {
				missing = append(missing, p)
			}
		}
		if len(missing) > 0 {
			writeJSON(w, http.StatusBadRequest, map[string][]string{"passwords_needed_to_start": missing})
			return
		}
		s.startBodies[rec.ID()] = body
		rec["status"] = models.JobPending
		w.WriteHeader(http.StatusAccepted)
	})
}

// withRecord runs fn with the record named by the route under the lock, or
// answers 404.
func (s *Server) withRecord(w http.ResponseWriter, r *http.Request, fn func(kind string, rec models.Record)) {
	kind := chi.URLParam(r, "kind")
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.collections[kind][id]
	if err != nil || !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	fn(kind, rec)
}

func (s *Server) withJob(w http.ResponseWriter, r *http.Request, fn func(rec models.Record)) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.collections["jobs"][id]
	if err != nil || !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	fn(rec)
}

// advanceJob moves a started job one step toward outcome per poll.
func advanceJob(rec models.Record, outcome string) {
	switch rec.String("status") {
	case models.JobPending:
		rec["status"] = models.JobRunning
	case models.JobRunning:
		rec["status"] = outcome
		rec["failed"] = outcome != models.JobSuccessful
		rec["elapsed"] = json.Number("4.2")
	}
}

// Helpers

func (s *Server) insert(kind string, rec models.Record) int {
	if s.collections[kind] == nil {
		s.collections[kind] = make(map[int]models.Record)
		s.nextID[kind] = 1
	}
	id := s.nextID[kind]
	s.nextID[kind]++
	rec["id"] = json.Number(strconv.Itoa(id))
	s.collections[kind][id] = rec
	return id
}

func (s *Server) sorted(kind string) []models.Record {
	ids := make([]int, 0, len(s.collections[kind]))
	for id := range s.collections[kind] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]models.Record, len(ids))
	for i, id := range ids {
		out[i] = s.collections[kind][id].Clone()
	}
	return out
}

func matchesQuery(rec models.Record, query map[string][]string) bool {
	for k, vs := range query {
		if ignoredParams[k] || len(vs) == 0 {
			continue
		}
		v, ok := rec[k]
		if !ok || fmt.Sprint(v) != vs[0] {
			return false
		}
	}
	return true
}

// normalize round-trips rec through JSON so stored values look like decoded
// API data.
func normalize(rec models.Record) models.Record {
	data, err := json.Marshal(rec)
	if err != nil {
		panic(err)
	}
	var out models.Record
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		panic(err)
	}
	return out
}

func decodeBody(w http.ResponseWriter, r *http.Request) (models.Record, bool) {
	body := models.Record{}
	if r.ContentLength == 0 {
		return body, true
	}
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "JSON parse error - " + err.Error()})
		return nil, false
	}
	return body, true
}

func firstSegment(path string) string {
	rest := strings.TrimPrefix(path, Prefix)
	if i := strings.Index(rest, "/"); i >= 0 {
		return rest[:i]
	}
	return rest
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
