package resources

import (
	"context"
	"time"

	"github.com/rflorenc/tower-cli/internal/apierr"
	"github.com/rflorenc/tower-cli/internal/models"
)

// FieldUse says which schema fields a verb takes as flags.
type FieldUse int

const (
	FieldsNone FieldUse = iota
	// FieldsFilter exposes the filterable fields.
	FieldsFilter
	// FieldsWrite exposes the writable, non-implicit fields.
	FieldsWrite
)

// Handler runs one verb.
type Handler func(ctx context.Context, s *Service, k *Kind, req *Request) (interface{}, error)

// Verb is an entry of a kind's verb table.
type Verb struct {
	Name   string
	Help   string
	Fields FieldUse
	// PK is "optional", "required" or "" for verbs without a positional id.
	PK  string
	Run Handler
}

// Request carries the parsed arguments of one verb invocation. Values holds
// converted field flags, with models.Unset for flags not given.
type Request struct {
	PK     int
	Values models.Record

	FailOnFound     bool
	ForceOnExists   bool
	CreateOnMissing bool
	FailOnMissing   bool
	AllPages        bool

	// JobTemplate is an id or a models.RelatedRef naming the template.
	JobTemplate interface{}
	Monitor     bool
	Timeout     time.Duration
	Secrets     map[string]string
}

const (
	pkOptional = "optional"
	pkRequired = "required"
)

var (
	verbGet    = Verb{Name: "get", Help: "Return one and exactly one record.", Fields: FieldsFilter, PK: pkOptional, Run: runGet}
	verbList   = Verb{Name: "list", Help: "Return a list of records.", Fields: FieldsFilter, Run: runList}
	verbCreate = Verb{Name: "create", Help: "Create a record, unless a matching one exists.", Fields: FieldsWrite, Run: runCreate}
	verbModify = Verb{Name: "modify", Help: "Modify an existing record.", Fields: FieldsWrite, PK: pkOptional, Run: runModify}
	verbDelete = Verb{Name: "delete", Help: "Remove the given record.", Fields: FieldsFilter, PK: pkOptional, Run: runDelete}

	verbTemplateLaunch = Verb{Name: "launch", Help: "Launch a job based on this job template.", PK: pkRequired, Run: runTemplateLaunch}
	verbJobLaunch      = Verb{Name: "launch", Help: "Launch a new job based on a job template.", Run: runJobLaunch}
	verbStatus         = Verb{Name: "status", Help: "Print the current status of a job.", PK: pkRequired, Run: runStatus}
	verbMonitor        = Verb{Name: "monitor", Help: "Wait for a job to finish.", PK: pkRequired, Run: runMonitor}
)

func runGet(ctx context.Context, s *Service, k *Kind, req *Request) (interface{}, error) {
	if req.PK == 0 && !anySet(req.Values) {
		return nil, apierr.Usage("Must provide either a %s ID as an argument or filter flags to identify a %s.", k.Name, k.Name)
	}
	if err := checkTarget(k, req); err != nil {
		return nil, err
	}
	values, err := s.ResolveRelated(ctx, req.Values)
	if err != nil {
		return nil, err
	}
	return s.Engine(k.Schema).Get(ctx, req.PK, values)
}

func runList(ctx context.Context, s *Service, k *Kind, req *Request) (interface{}, error) {
	values, err := s.ResolveRelated(ctx, req.Values)
	if err != nil {
		return nil, err
	}
	e := s.Engine(k.Schema)
	if req.AllPages {
		return e.ListAll(ctx, values)
	}
	return e.List(ctx, values)
}

func runCreate(ctx context.Context, s *Service, k *Kind, req *Request) (interface{}, error) {
	values, err := WithDefaults(k.Schema, req.Values)
	if err != nil {
		return nil, err
	}
	if values, err = s.ResolveRelated(ctx, values); err != nil {
		return nil, err
	}
	return s.Engine(k.Schema).Create(ctx, req.FailOnFound, req.ForceOnExists, values)
}

func runModify(ctx context.Context, s *Service, k *Kind, req *Request) (interface{}, error) {
	values, err := s.ResolveRelated(ctx, req.Values)
	if err != nil {
		return nil, err
	}
	return s.Engine(k.Schema).Modify(ctx, req.PK, req.CreateOnMissing, values)
}

func runDelete(ctx context.Context, s *Service, k *Kind, req *Request) (interface{}, error) {
	if err := checkTarget(k, req); err != nil {
		return nil, err
	}
	values, err := s.ResolveRelated(ctx, req.Values)
	if err != nil {
		return nil, err
	}
	return s.Engine(k.Schema).Delete(ctx, req.PK, req.FailOnMissing, values)
}

func runTemplateLaunch(ctx context.Context, s *Service, _ *Kind, req *Request) (interface{}, error) {
	return s.Launch(ctx, req.PK, LaunchOptions{Monitor: req.Monitor, Timeout: req.Timeout, Secrets: req.Secrets})
}

func runJobLaunch(ctx context.Context, s *Service, _ *Kind, req *Request) (interface{}, error) {
	if req.JobTemplate == nil {
		return nil, apierr.Usage("--job-template is required.")
	}
	pk, err := s.resolveValue(ctx, req.JobTemplate)
	if err != nil {
		return nil, err
	}
	id, ok := pk.(int)
	if !ok || id <= 0 {
		return nil, apierr.Usage("invalid job template %v", req.JobTemplate)
	}
	return s.Launch(ctx, id, LaunchOptions{Monitor: req.Monitor, Timeout: req.Timeout, Secrets: req.Secrets})
}

func runStatus(ctx context.Context, s *Service, _ *Kind, req *Request) (interface{}, error) {
	return s.Status(ctx, req.PK)
}

func runMonitor(ctx context.Context, s *Service, _ *Kind, req *Request) (interface{}, error) {
	return s.Monitor(ctx, req.PK, req.Timeout)
}

// WithDefaults fills fields that were not given with their declared
// default. String defaults go through the field type, so a mapped choice
// default is sent as its API value.
func WithDefaults(schema *models.Schema, values models.Record) (models.Record, error) {
	out := values.Clone()
	for _, f := range schema.Fields() {
		if f.Default == nil || !f.Writable() {
			continue
		}
		if v, ok := out[f.Name]; ok && !models.IsUnset(v) {
			continue
		}
		def := f.Default
		if raw, ok := def.(string); ok {
			converted, err := f.Type.Convert(raw)
			if err != nil {
				return nil, apierr.Usage("default for %s: %v", f.Option(), err)
			}
			def = converted
		}
		out[f.Name] = def
	}
	return out, nil
}

// checkTarget rejects an ID combined with filters, which the lookup by ID
// would otherwise ignore.
func checkTarget(k *Kind, req *Request) error {
	if req.PK > 0 && anySet(req.Values) {
		return apierr.Usage("Provide either a %s ID or filter flags, not both.", k.Name)
	}
	return nil
}

func anySet(values models.Record) bool {
	for _, v := range values {
		if !models.IsUnset(v) {
			return true
		}
	}
	return false
}
