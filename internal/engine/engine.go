// Package engine maps a resource schema onto the remote REST API.
//
// An Engine turns read, write and delete requests expressed as keyword maps
// into the smallest sequence of HTTP calls that reaches the desired state:
// at most one lookup followed by at most one mutating call. Errors from the
// transport are returned unmodified; the only swallowed failures are the
// not-found cases the caller opted out of.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/rflorenc/tower-cli/internal/apierr"
	"github.com/rflorenc/tower-cli/internal/models"
	"github.com/rflorenc/tower-cli/internal/platform"
)

// Transport performs one authenticated JSON request. *platform.Client
// satisfies it.
type Transport interface {
	Request(ctx context.Context, method, path string, query url.Values, body interface{}) (*platform.Response, error)
}

// Page is a list response: {count, next, previous, results}.
type Page struct {
	Count    int             `json:"count"`
	Next     *string         `json:"next"`
	Previous *string         `json:"previous"`
	Results  []models.Record `json:"results"`
}

// Result is the outcome of a write or delete. ID is omitted on delete.
type Result struct {
	Changed bool `json:"changed"`
	ID      int  `json:"id,omitempty"`
}

// Engine runs reconciliation operations for one resource kind.
type Engine struct {
	schema    *models.Schema
	transport Transport
	log       *log.Entry
}

// New binds schema to a transport.
func New(schema *models.Schema, transport Transport) *Engine {
	return &Engine{
		schema:    schema,
		transport: transport,
		log:       log.WithField("resource", schema.Name),
	}
}

// Schema returns the schema the engine is bound to.
func (e *Engine) Schema() *models.Schema { return e.schema }

// Read fetches records. With pk > 0 it fetches that record and wraps it as a
// one-element page; a missing record surfaces as NotFound from the transport
// and the fail flags are not consulted. Otherwise filters become query
// parameters of a list request.
func (e *Engine) Read(ctx context.Context, pk int, failOnNoResults, failOnMultipleResults bool, filters models.Record) (*Page, error) {
	if pk > 0 {
		rec, err := e.fetch(ctx, pk)
		if err != nil {
			return nil, err
		}
		return &Page{Count: 1, Results: []models.Record{rec}}, nil
	}

	resp, err := e.transport.Request(ctx, http.MethodGet, e.schema.Endpoint, Query(filters), nil)
	if err != nil {
		return nil, err
	}
	var page Page
	if err := resp.JSON(&page); err != nil {
		return nil, err
	}
	if failOnNoResults && page.Count == 0 {
		return nil, apierr.NotFound("The requested object could not be found.")
	}
	if failOnMultipleResults && page.Count >= 2 {
		return nil, apierr.MultipleResults("Expected one result, got %d. Possibly caused by not providing required fields. Please tighten your criteria.", page.Count)
	}
	return &page, nil
}

// Lookup finds the single record matching the unique fields present in
// filters. found is false only when no record matched and failOnMissing is
// false; a found record with failOnFound set is a Found error.
func (e *Engine) Lookup(ctx context.Context, failOnMissing, failOnFound bool, filters models.Record) (rec models.Record, found bool, err error) {
	criteria := e.uniqueCriteria(filters)
	if len(criteria) == 0 {
		return nil, false, apierr.BadRequest("Cannot reliably determine which record to act on. Include an ID or unique fields.")
	}

	page, err := e.Read(ctx, 0, true, true, criteria)
	if err == nil && len(page.Results) == 0 {
		err = apierr.NotFound("The requested object could not be found.")
	}
	if err != nil {
		if !failOnMissing && apierr.KindOf(err) == apierr.KindNotFound {
			e.log.WithField("criteria", criteria).Debug("no matching record")
			return nil, false, nil
		}
		return nil, false, err
	}

	rec = page.Results[0]
	if failOnFound {
		return nil, false, apierr.Found("A record matching %s already exists, and you requested a failure in that case.", describe(criteria))
	}
	return rec, true, nil
}

// Write creates or updates a record. Steps, in order: drop Unset values;
// resolve the target (fetch pk, or look it up by unique fields); on the create
// path check required fields; skip when a record exists and forceOnExists is
// false; skip when every given value already matches; otherwise POST or PATCH.
func (e *Engine) Write(ctx context.Context, pk int, createOnMissing, failOnFound, forceOnExists bool, fields models.Record) (*Result, error) {
	values := StripUnset(fields)
	derived, err := e.deriveImplicit(values)
	if err != nil {
		return nil, err
	}

	var existing models.Record
	if pk > 0 {
		existing, err = e.fetch(ctx, pk)
		if err != nil {
			return nil, err
		}
	} else {
		rec, found, err := e.Lookup(ctx, !createOnMissing, failOnFound, values)
		if err != nil {
			return nil, err
		}
		if found {
			existing = rec
			pk = rec.ID()
		}
	}

	if pk == 0 {
		if missing := e.missingRequired(values, derived); len(missing) > 0 {
			return nil, apierr.BadRequest("Missing required fields: %s", strings.Join(missing, ", "))
		}
	}

	entry := e.log.WithField("id", pk)
	if pk > 0 && !forceOnExists {
		entry.Debug("record exists, not overwriting")
		return &Result{Changed: false, ID: pk}, nil
	}
	if pk > 0 && Unchanged(existing, values) {
		entry.Debug("record already up to date")
		return &Result{Changed: false, ID: pk}, nil
	}

	var method, path string
	if pk > 0 {
		method, path = http.MethodPatch, e.schema.DetailPath(pk)
	} else {
		method, path = http.MethodPost, e.schema.Endpoint
	}
	resp, err := e.transport.Request(ctx, method, path, nil, values)
	if err != nil {
		return nil, err
	}
	var rec models.Record
	if err := resp.JSON(&rec); err != nil {
		return nil, err
	}
	entry.WithField("method", method).Debug("record written")
	return &Result{Changed: true, ID: rec.ID()}, nil
}

// Delete removes a record given by pk or by the unique fields of filters.
// Without failOnMissing a record that does not exist, or vanishes before the
// DELETE lands, yields {changed: false}.
func (e *Engine) Delete(ctx context.Context, pk int, failOnMissing bool, filters models.Record) (*Result, error) {
	if pk == 0 {
		rec, found, err := e.Lookup(ctx, failOnMissing, false, StripUnset(filters))
		if err != nil {
			return nil, err
		}
		if !found {
			return &Result{Changed: false}, nil
		}
		pk = rec.ID()
	}

	if _, err := e.transport.Request(ctx, http.MethodDelete, e.schema.DetailPath(pk), nil, nil); err != nil {
		if !failOnMissing && apierr.KindOf(err) == apierr.KindNotFound {
			e.log.WithField("id", pk).Debug("record already gone")
			return &Result{Changed: false}, nil
		}
		return nil, err
	}
	return &Result{Changed: true}, nil
}

// Get returns exactly one record, by pk or by filters.
func (e *Engine) Get(ctx context.Context, pk int, filters models.Record) (models.Record, error) {
	page, err := e.Read(ctx, pk, true, true, StripUnset(filters))
	if err != nil {
		return nil, err
	}
	if len(page.Results) == 0 {
		return nil, apierr.NotFound("The requested object could not be found.")
	}
	return page.Results[0], nil
}

// List returns one page of records matching filters.
func (e *Engine) List(ctx context.Context, filters models.Record) (*Page, error) {
	return e.Read(ctx, 0, false, false, StripUnset(filters))
}

// ListAll follows next links and returns every matching record in one page.
func (e *Engine) ListAll(ctx context.Context, filters models.Record) (*Page, error) {
	page, err := e.List(ctx, filters)
	if err != nil {
		return nil, err
	}
	all := &Page{Count: page.Count, Results: page.Results}
	next := page.Next
	for next != nil && *next != "" {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := e.transport.Request(ctx, http.MethodGet, *next, nil, nil)
		if err != nil {
			return nil, err
		}
		var p Page
		if err := resp.JSON(&p); err != nil {
			return nil, err
		}
		all.Results = append(all.Results, p.Results...)
		next = p.Next
	}
	return all, nil
}

// Create writes a new record, or leaves a matching one alone unless
// forceOnExists is set.
func (e *Engine) Create(ctx context.Context, failOnFound, forceOnExists bool, fields models.Record) (*Result, error) {
	return e.Write(ctx, 0, true, failOnFound, forceOnExists, fields)
}

// Modify updates the record given by pk, or found by unique fields.
func (e *Engine) Modify(ctx context.Context, pk int, createOnMissing bool, fields models.Record) (*Result, error) {
	return e.Write(ctx, pk, createOnMissing, false, true, fields)
}

func (e *Engine) fetch(ctx context.Context, pk int) (models.Record, error) {
	resp, err := e.transport.Request(ctx, http.MethodGet, e.schema.DetailPath(pk), nil, nil)
	if err != nil {
		return nil, err
	}
	var rec models.Record
	if err := resp.JSON(&rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (e *Engine) uniqueCriteria(filters models.Record) models.Record {
	criteria := models.Record{}
	for _, name := range e.schema.UniqueFields() {
		if v, ok := filters[name]; ok && !models.IsUnset(v) {
			criteria[name] = v
		}
	}
	return criteria
}

// deriveImplicit evaluates the formulas of implicit fields. Derived values
// satisfy the required check but are not sent.
func (e *Engine) deriveImplicit(values models.Record) (models.Record, error) {
	derived := models.Record{}
	for _, f := range e.schema.Fields() {
		if !f.Implicit || f.Formula == nil {
			continue
		}
		v, err := f.Formula(values)
		if err != nil {
			return nil, err
		}
		if v != nil {
			derived[f.Name] = v
		}
	}
	return derived, nil
}

func (e *Engine) missingRequired(values, derived models.Record) []string {
	var missing []string
	for _, name := range e.schema.RequiredFields() {
		if _, ok := values[name]; ok {
			continue
		}
		if _, ok := derived[name]; ok {
			continue
		}
		missing = append(missing, name)
	}
	return missing
}

// StripUnset returns a copy of fields without Unset values.
func StripUnset(fields models.Record) models.Record {
	out := make(models.Record, len(fields))
	for k, v := range fields {
		if !models.IsUnset(v) {
			out[k] = v
		}
	}
	return out
}

// Unchanged reports whether every key of values is present in existing with
// an equal value. Values compare by their JSON encoding, so 1 equals
// json.Number("1").
func Unchanged(existing, values models.Record) bool {
	if existing == nil {
		return false
	}
	for k, v := range values {
		cur, ok := existing[k]
		if !ok || !sameJSON(cur, v) {
			return false
		}
	}
	return true
}

func sameJSON(a, b interface{}) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ja) == string(jb)
}

// Query encodes filters as list query parameters, skipping Unset and nil.
func Query(filters models.Record) url.Values {
	q := url.Values{}
	for k, v := range filters {
		if v == nil || models.IsUnset(v) {
			continue
		}
		q.Set(k, fmt.Sprint(v))
	}
	return q
}

func describe(criteria models.Record) string {
	keys := make([]string, 0, len(criteria))
	for k := range criteria {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, criteria[k])
	}
	return strings.Join(parts, ", ")
}
