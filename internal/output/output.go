// Package output renders command results as JSON, a table or bare ids.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"

	"github.com/rflorenc/tower-cli/internal/engine"
	"github.com/rflorenc/tower-cli/internal/models"
)

// Mask replaces password values in tables.
const Mask = "********"

// Printer writes results to w in one format.
type Printer struct {
	w      io.Writer
	format string
}

// New creates a Printer. format is "json", "table" or "id".
func New(w io.Writer, format string) *Printer {
	return &Printer{w: w, format: format}
}

// Print renders v. schema, when given, orders keys and picks table columns.
func (p *Printer) Print(v interface{}, schema *models.Schema) error {
	switch t := v.(type) {
	case *engine.Result:
		if p.format == "id" {
			return p.ids([]int{t.ID})
		}
		return p.json(t)
	case models.JobStatus:
		return p.Print(t.Record(), nil)
	case models.Record:
		switch p.format {
		case "id":
			return p.ids([]int{t.ID()})
		case "table":
			return p.table([]models.Record{t}, schema)
		}
		return p.raw(OrderedJSON(t, schema))
	case *engine.Page:
		switch p.format {
		case "id":
			ids := make([]int, len(t.Results))
			for i, r := range t.Results {
				ids[i] = r.ID()
			}
			return p.ids(ids)
		case "table":
			return p.table(t.Results, schema)
		}
		return p.raw(pageJSON(t, schema))
	}
	return p.json(v)
}

func (p *Printer) json(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "encoding output")
	}
	return p.raw(data)
}

func (p *Printer) raw(data []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return errors.Wrap(err, "encoding output")
	}
	buf.WriteByte('\n')
	_, err := p.w.Write(buf.Bytes())
	return err
}

func (p *Printer) ids(ids []int) error {
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, err := fmt.Fprintln(p.w, id); err != nil {
			return err
		}
	}
	return nil
}

func (p *Printer) table(records []models.Record, schema *models.Schema) error {
	cols := Columns(records, schema)
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(cols, "\t"))
	dashes := make([]string, len(cols))
	for i, c := range cols {
		dashes[i] = strings.Repeat("-", len(c))
	}
	fmt.Fprintln(tw, strings.Join(dashes, "\t"))

	for _, r := range records {
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = cell(r, c, schema)
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// Columns picks table columns: id, then schema fields in declaration order
// that are neither implicit nor file contents. Without a schema every key
// present is used, sorted.
func Columns(records []models.Record, schema *models.Schema) []string {
	cols := []string{"id"}
	if schema != nil {
		for _, f := range schema.Fields() {
			if f.Implicit || f.Type == models.File || f.Name == "id" {
				continue
			}
			cols = append(cols, f.Name)
		}
		return cols
	}
	seen := map[string]bool{"id": true}
	var rest []string
	for _, r := range records {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				rest = append(rest, k)
			}
		}
	}
	sort.Strings(rest)
	return append(cols, rest...)
}

func cell(r models.Record, col string, schema *models.Schema) string {
	v, ok := r[col]
	if !ok || v == nil {
		return ""
	}
	if schema != nil {
		if f, ok := schema.Field(col); ok && f.Password && fmt.Sprint(v) != "" {
			return Mask
		}
	}
	switch t := v.(type) {
	case string:
		return t
	case map[string]interface{}, []interface{}:
		data, _ := json.Marshal(t)
		return string(data)
	}
	return fmt.Sprint(v)
}

// KeyOrder returns the keys of r with id first, then schema fields in
// declaration order, then the rest sorted.
func KeyOrder(r models.Record, schema *models.Schema) []string {
	keys := make([]string, 0, len(r))
	seen := make(map[string]bool, len(r))
	add := func(k string) {
		if _, ok := r[k]; ok && !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	add("id")
	if schema != nil {
		for _, f := range schema.Fields() {
			add(f.Name)
		}
	}
	var rest []string
	for k := range r {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

// OrderedJSON encodes r as a JSON object with keys in KeyOrder.
func OrderedJSON(r models.Record, schema *models.Schema) []byte {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range KeyOrder(r, schema) {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(k)
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(r[k])
		if err != nil {
			val = []byte("null")
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

func pageJSON(page *engine.Page, schema *models.Schema) []byte {
	var buf bytes.Buffer
	next, _ := json.Marshal(page.Next)
	prev, _ := json.Marshal(page.Previous)
	fmt.Fprintf(&buf, `{"count":%d,"next":%s,"previous":%s,"results":[`, page.Count, next, prev)
	for i, r := range page.Results {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(OrderedJSON(r, schema))
	}
	buf.WriteString("]}")
	return buf.Bytes()
}
