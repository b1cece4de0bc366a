package apierr

import (
	"errors"
	"fmt"
	"testing"

	pkgerrors "github.com/pkg/errors"
)

func TestErrorIs_MatchesKind(t *testing.T) {
	err := NotFound("The requested object could not be found.")
	if !errors.Is(err, ErrNotFound) {
		t.Error("errors.Is(NotFound, ErrNotFound) = false, want true")
	}
	if errors.Is(err, ErrMultipleResults) {
		t.Error("errors.Is(NotFound, ErrMultipleResults) = true, want false")
	}
}

func TestErrorIs_ThroughWrapping(t *testing.T) {
	base := New(KindAuth, "Invalid Tower authentication credentials.")
	wrapped := fmt.Errorf("listing users: %w", base)
	if !errors.Is(wrapped, ErrAuth) {
		t.Error("fmt wrapped error lost its kind")
	}
	wrapped = pkgerrors.Wrap(base, "GET /users/")
	if KindOf(wrapped) != KindAuth {
		t.Errorf("KindOf(pkg/errors wrap) = %v, want %v", KindOf(wrapped), KindAuth)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		expect int
	}{
		{"nil", nil, 0},
		{"plain", errors.New("boom"), 1},
		{"usage", Usage("bad flag"), 2},
		{"not found", NotFound("x"), 4},
		{"multiple", MultipleResults("x"), 5},
		{"server", &Error{Kind: KindServer}, 8},
		{"auth", &Error{Kind: KindAuth}, 16},
		{"forbidden", &Error{Kind: KindForbidden}, 17},
		{"found", Found("x"), 20},
		{"bad request", BadRequest("x"), 40},
		{"job failed", &Error{Kind: KindJobFailed}, 99},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExitCode(tc.err); got != tc.expect {
				t.Errorf("ExitCode(%v) = %d, want %d", tc.err, got, tc.expect)
			}
		})
	}
}

func TestExitCodes_Distinct(t *testing.T) {
	seen := make(map[int]Kind)
	for k := range kindNames {
		code := k.ExitCode()
		if other, dup := seen[code]; dup {
			t.Errorf("kinds %v and %v share exit code %d", k, other, code)
		}
		seen[code] = k
	}
}

func TestDetail(t *testing.T) {
	e := &Error{
		Kind:         KindBadRequest,
		Message:      "The Tower server claims it was sent a bad request.",
		Method:       "POST",
		URL:          "https://tower/api/v2/users/",
		Status:       400,
		RequestBody:  `{"username":""}`,
		ResponseBody: `{"username":["This field may not be blank."]}`,
	}
	got := e.Detail()
	want := "The Tower server claims it was sent a bad request.\n" +
		"  POST https://tower/api/v2/users/ (HTTP 400)\n" +
		"  request: {\"username\":\"\"}\n" +
		"  response: {\"username\":[\"This field may not be blank.\"]}"
	if got != want {
		t.Errorf("Detail() =\n%s\nwant\n%s", got, want)
	}

	local := BadRequest("missing fields")
	if local.Detail() != "missing fields" {
		t.Errorf("Detail() for local error = %q", local.Detail())
	}
}
