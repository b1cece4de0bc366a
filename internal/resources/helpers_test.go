package resources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/rflorenc/tower-cli/internal/apierr"
	"github.com/rflorenc/tower-cli/internal/platform"
)

// scriptedJob answers GET /jobs/{id}/ with the next status of a script; the
// last status repeats.
type scriptedJob struct {
	statuses []string
	polls    int
}

func (s *scriptedJob) Request(ctx context.Context, method, path string, _ url.Values, _ interface{}) (*platform.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if method != http.MethodGet {
		return nil, apierr.BadRequest("unexpected %s %s", method, path)
	}
	i := s.polls
	if i >= len(s.statuses) {
		i = len(s.statuses) - 1
	}
	s.polls++
	status := s.statuses[i]
	body, err := json.Marshal(map[string]interface{}{
		"id":      9,
		"status":  status,
		"failed":  status == "failed",
		"elapsed": float64(s.polls),
	})
	if err != nil {
		return nil, err
	}
	return &platform.Response{Status: http.StatusOK, Body: body}, nil
}
