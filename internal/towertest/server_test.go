package towertest_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rflorenc/tower-cli/internal/apierr"
	"github.com/rflorenc/tower-cli/internal/engine"
	"github.com/rflorenc/tower-cli/internal/models"
	"github.com/rflorenc/tower-cli/internal/platform"
	"github.com/rflorenc/tower-cli/internal/towertest"
)

var users = models.MustSchema("user", "/users/",
	models.F("username", models.Unique()),
	models.F("email", models.Optional()),
)

func newClient(ts *towertest.Server, password string) *platform.Client {
	return platform.NewClient(&models.Connection{Host: ts.URL, Username: "admin", Password: password})
}

func TestEngineAgainstFake(t *testing.T) {
	ts := towertest.NewServer()
	defer ts.Close()
	ctx := context.Background()
	e := engine.New(users, newClient(ts, "password"))

	res, err := e.Create(ctx, false, false, models.Record{"username": "alice"})
	require.NoError(t, err)
	assert.Equal(t, &engine.Result{Changed: true, ID: 1}, res)
	assert.Equal(t, 1, ts.Calls(http.MethodPost, "users"))

	res, err = e.Create(ctx, false, false, models.Record{"username": "alice"})
	require.NoError(t, err)
	assert.Equal(t, &engine.Result{Changed: false, ID: 1}, res)
	assert.Equal(t, 1, ts.Calls(http.MethodPost, "users"))

	res, err = e.Modify(ctx, 1, false, models.Record{"email": "a@x.com"})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	rec, ok := ts.Record("users", 1)
	require.True(t, ok)
	assert.Equal(t, "a@x.com", rec["email"])
	assert.Equal(t, 1, ts.Calls(http.MethodPatch, "users"))

	res, err = e.Delete(ctx, 0, true, models.Record{"username": "alice"})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Empty(t, ts.Records("users"))
}

func TestPagination(t *testing.T) {
	ts := towertest.NewServer()
	defer ts.Close()
	ts.PageSize = 2
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		ts.Seed("users", models.Record{"username": name, "email": "same@x.com"})
	}
	e := engine.New(users, newClient(ts, ""))

	page, err := e.List(context.Background(), models.Record{"email": "same@x.com"})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Count)
	assert.Len(t, page.Results, 2)
	require.NotNil(t, page.Next)

	all, err := e.ListAll(context.Background(), models.Record{"email": "same@x.com"})
	require.NoError(t, err)
	require.Len(t, all.Results, 5)
	assert.Equal(t, "e", all.Results[4].String("username"))
	assert.Equal(t, 4, ts.Calls(http.MethodGet, "users"))
}

func TestBasicAuthRequired(t *testing.T) {
	ts := towertest.NewServer()
	defer ts.Close()
	ts.Username, ts.Password = "admin", "password"

	_, err := engine.New(users, newClient(ts, "wrong")).List(context.Background(), nil)
	assert.ErrorIs(t, err, apierr.ErrAuth)

	_, err = engine.New(users, newClient(ts, "password")).List(context.Background(), nil)
	assert.NoError(t, err)
}

func TestFailureInjection(t *testing.T) {
	ts := towertest.NewServer()
	defer ts.Close()
	ts.Fail(http.MethodPost, "users", http.StatusInternalServerError)

	_, err := engine.New(users, newClient(ts, "")).Create(context.Background(), false, false, models.Record{"username": "zed"})
	assert.ErrorIs(t, err, apierr.ErrServer)
	assert.Equal(t, apierr.KindServer.ExitCode(), apierr.ExitCode(err))
}

func TestDuplicateNameRejected(t *testing.T) {
	ts := towertest.NewServer()
	defer ts.Close()
	ts.Seed("users", models.Record{"username": "dup"})

	client := newClient(ts, "")
	_, err := client.Request(context.Background(), http.MethodPost, "users/", nil, map[string]string{"username": "dup"})
	require.ErrorIs(t, err, apierr.ErrBadRequest)
	var e *apierr.Error
	require.ErrorAs(t, err, &e)
	assert.Contains(t, e.ResponseBody, "must be unique")
}

func TestRequestIDsAreStable(t *testing.T) {
	ts := towertest.NewServer()
	defer ts.Close()
	client := newClient(ts, "")
	e := engine.New(users, client)

	_, err := e.Create(context.Background(), false, false, models.Record{"username": "rid"})
	require.NoError(t, err)
	ids := ts.RequestIDs()
	require.Len(t, ids, 2)
	for _, id := range ids {
		assert.Equal(t, client.RequestID(), id)
	}
}

func TestJobProgression(t *testing.T) {
	ts := towertest.NewServer()
	defer ts.Close()
	ts.JobOutcome = models.JobFailed
	ts.PasswordsNeeded = []string{"ssh_password"}
	id := ts.Seed("jobs", models.Record{"name": "j", "status": models.JobNew, "failed": false})
	client := newClient(ts, "")
	ctx := context.Background()

	var reqs struct {
		CanStart bool     `json:"can_start"`
		Needed   []string `json:"passwords_needed_to_start"`
	}
	require.NoError(t, client.GetJSON(ctx, "jobs/1/start/", nil, &reqs))
	assert.True(t, reqs.CanStart)
	assert.Equal(t, []string{"ssh_password"}, reqs.Needed)

	_, err := client.Request(ctx, http.MethodPost, "jobs/1/start/", nil, nil)
	assert.ErrorIs(t, err, apierr.ErrBadRequest)

	_, err = client.Request(ctx, http.MethodPost, "jobs/1/start/", nil, map[string]string{"ssh_password": "pw"})
	require.NoError(t, err)

	var statuses []string
	for i := 0; i < 3; i++ {
		var rec models.Record
		require.NoError(t, client.GetJSON(ctx, "jobs/1/", nil, &rec))
		statuses = append(statuses, rec.String("status"))
	}
	assert.Equal(t, []string{models.JobRunning, models.JobFailed, models.JobFailed}, statuses)
	rec, _ := ts.Record("jobs", id)
	assert.True(t, rec.Bool("failed"))
}

func TestDiscoveryAndPing(t *testing.T) {
	ts := towertest.NewServer()
	defer ts.Close()
	client := newClient(ts, "")

	prefix, err := client.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, towertest.Prefix, prefix)

	ping, err := client.Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "3.8.6", ping.Version)
}
