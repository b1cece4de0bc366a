package resources

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rflorenc/tower-cli/internal/apierr"
	"github.com/rflorenc/tower-cli/internal/engine"
	"github.com/rflorenc/tower-cli/internal/models"
)

// Default polling bounds for job monitoring.
const (
	DefaultPollMin = time.Second
	DefaultPollMax = 30 * time.Second
)

// Service runs verbs against one Transport.
type Service struct {
	transport engine.Transport
	secrets   SecretSource
	pollMin   time.Duration
	pollMax   time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option customizes a Service.
type Option func(*Service)

// WithSecrets sets where launch reads the passwords a job needs to start.
func WithSecrets(src SecretSource) Option {
	return func(s *Service) { s.secrets = src }
}

// WithPolling sets the monitor backoff bounds. Zero values keep the defaults.
func WithPolling(lo, hi time.Duration) Option {
	return func(s *Service) {
		if lo > 0 {
			s.pollMin = lo
		}
		if hi > 0 {
			s.pollMax = hi
		}
	}
}

// NewService creates a Service.
func NewService(transport engine.Transport, opts ...Option) *Service {
	s := &Service{
		transport: transport,
		secrets:   MapSecrets{},
		pollMin:   DefaultPollMin,
		pollMax:   DefaultPollMax,
		now:       time.Now,
		sleep:     sleepContext,
	}
	for _, o := range opts {
		o(s)
	}
	if s.pollMax < s.pollMin {
		s.pollMax = s.pollMin
	}
	return s
}

// Engine returns a reconciliation engine for schema.
func (s *Service) Engine(schema *models.Schema) *engine.Engine {
	return engine.New(schema, s.transport)
}

// Run dispatches verb on kind.
func (s *Service) Run(ctx context.Context, kind, verb string, req *Request) (interface{}, error) {
	k, ok := Lookup(kind)
	if !ok {
		return nil, apierr.Usage("unknown resource %q", kind)
	}
	v, ok := k.Verb(verb)
	if !ok {
		return nil, apierr.Usage("%s has no %q command", kind, verb)
	}
	if req == nil {
		req = &Request{}
	}
	if req.Values == nil {
		req.Values = models.Record{}
	}
	log.WithFields(log.Fields{"resource": kind, "verb": verb, "pk": req.PK}).Debug("running")
	return v.Run(ctx, s, k, req)
}

// ResolveRelated replaces every models.RelatedRef in values with the id of
// the record it names. Other values are copied unchanged.
func (s *Service) ResolveRelated(ctx context.Context, values models.Record) (models.Record, error) {
	out := make(models.Record, len(values))
	for k, v := range values {
		resolved, err := s.resolveValue(ctx, v)
		if err != nil {
			return nil, err
		}
		out[k] = resolved
	}
	return out, nil
}

func (s *Service) resolveValue(ctx context.Context, v interface{}) (interface{}, error) {
	ref, ok := v.(models.RelatedRef)
	if !ok {
		return v, nil
	}
	schema, ok := schemaFor(ref.Resource)
	if !ok {
		return nil, apierr.Usage("no resource named %q to resolve %s", ref.Resource, ref)
	}
	rec, err := s.Engine(schema).Get(ctx, 0, models.Record{ref.Criterion: ref.Value})
	switch apierr.KindOf(err) {
	case apierr.KindNotFound:
		return nil, apierr.NotFound("No %s with %s %q exists.", ref.Resource, ref.Criterion, ref.Value)
	case apierr.KindMultipleResults:
		return nil, apierr.MultipleResults("More than one %s has %s %q; use its ID instead.", ref.Resource, ref.Criterion, ref.Value)
	}
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"ref": ref.String(), "id": rec.ID()}).Debug("resolved related record")
	return rec.ID(), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
