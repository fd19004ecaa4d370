package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipforge/internal/models"
	"clipforge/internal/repositories/sqlite"
)

// run executes a fresh command tree and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func sqliteURL(t *testing.T) (string, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ctl.db")
	return "sqlite:" + path, path
}

func TestRootCommandTree(t *testing.T) {
	root := NewRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "credits")
	assert.Contains(t, names, "jobs")
	assert.Contains(t, names, "gdrive-auth")

	jobs, _, err := root.Find([]string{"jobs"})
	require.NoError(t, err)
	var sub []string
	for _, c := range jobs.Commands() {
		sub = append(sub, c.Name())
	}
	assert.ElementsMatch(t, []string{"list", "get", "recover"}, sub)
}

func TestCreditsGrantAndShow(t *testing.T) {
	dbURL, _ := sqliteURL(t)

	out, err := run(t, "--database-url", dbURL, "credits", "grant", "own_1", "5")
	require.NoError(t, err)
	var granted map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &granted))
	assert.Equal(t, float64(5), granted["balance"])

	_, err = run(t, "--database-url", dbURL, "credits", "grant", "own_1", "2")
	require.NoError(t, err)

	out, err = run(t, "--database-url", dbURL, "credits", "show", "own_1")
	require.NoError(t, err)
	var shown map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, float64(7), shown["balance"])

	out, err = run(t, "--database-url", dbURL, "credits", "show", "own_nobody")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, float64(0), shown["balance"])
}

func TestCreditsGrantRejectsBadAmount(t *testing.T) {
	dbURL, _ := sqliteURL(t)

	tests := []struct {
		name string
		args []string
	}{
		{"zero", []string{"credits", "grant", "own_1", "0"}},
		{"negative", []string{"credits", "grant", "own_1", "-3"}},
		{"not a number", []string{"credits", "grant", "own_1", "lots"}},
		{"missing amount", []string{"credits", "grant", "own_1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, append([]string{"--database-url", dbURL}, tt.args...)...)
			assert.Error(t, err)
		})
	}
}

func TestMissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := run(t, "credits", "show", "own_1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database url is required")
}

func TestJobsListAndGet(t *testing.T) {
	dbURL, path := sqliteURL(t)

	db, err := sqlite.Open(path)
	require.NoError(t, err)
	jobs := sqlite.NewJobRepository(db)
	ctx := context.Background()
	for _, j := range []*models.Job{
		{ID: "job_1", OwnerID: "own_1", Kind: "video", SourceAssetRef: "ast_1", Status: models.JobQueued},
		{ID: "job_2", OwnerID: "own_1", Kind: "video", SourceAssetRef: "ast_1", Status: models.JobQueued},
		{ID: "job_3", OwnerID: "own_2", Kind: "video", SourceAssetRef: "ast_9", Status: models.JobQueued},
	} {
		require.NoError(t, jobs.Create(ctx, j))
	}
	_, err = jobs.Transition(ctx, "job_2", models.JobFailed, models.JobUpdate{ErrorDetail: "boom"})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	out, err := run(t, "--database-url", dbURL, "jobs", "list", "--owner", "own_1")
	require.NoError(t, err)
	var listed []models.Job
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	assert.Len(t, listed, 2)

	out, err = run(t, "--database-url", dbURL, "jobs", "list", "-o", "own_1", "-s", "failed")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "job_2", listed[0].ID)
	assert.Equal(t, "boom", listed[0].ErrorDetail)

	_, err = run(t, "--database-url", dbURL, "jobs", "list", "-o", "own_1", "-s", "exploded")
	assert.Error(t, err)

	_, err = run(t, "--database-url", dbURL, "jobs", "list")
	assert.Error(t, err, "owner flag is required")

	out, err = run(t, "--database-url", dbURL, "jobs", "get", "job_3")
	require.NoError(t, err)
	var job models.Job
	require.NoError(t, json.Unmarshal([]byte(out), &job))
	assert.Equal(t, "own_2", job.OwnerID)

	_, err = run(t, "--database-url", dbURL, "jobs", "get", "job_missing")
	assert.Error(t, err)
}

func TestRecoverRequiresRedis(t *testing.T) {
	dbURL, _ := sqliteURL(t)
	t.Setenv("ASSET_SIGNING_KEY", "secret")
	t.Setenv("RENDERER_HTTP_BASEURL", "http://renderer.local")
	t.Setenv("QUEUE_BACKEND", "memory")

	_, err := run(t, "--database-url", dbURL, "jobs", "recover")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QUEUE_BACKEND=redis")
}

func TestGDriveAuthRequiresClient(t *testing.T) {
	t.Setenv("GDRIVE_CLIENT_ID", "")
	t.Setenv("GDRIVE_CLIENT_SECRET", "")
	_, err := run(t, "gdrive-auth")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GDRIVE_CLIENT_ID")
}

func TestCallbackCode(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    string
		wantErr string
	}{
		{"ok", "?state=s1&code=abc", "abc", ""},
		{"wrong state", "?state=other&code=abc", "", "invalid state"},
		{"provider error", "?state=s1&error=access_denied", "", "access_denied"},
		{"no code", "?state=s1", "", "missing code"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/callback"+tt.query, nil)
			got, err := callbackCode(r, "s1")
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
