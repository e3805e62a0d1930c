//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"markbind/internal/app"
	"markbind/internal/config"
	internaldb "markbind/internal/db"
)

// testEnv is one in-process server over a SQLite file that outlives it.
type testEnv struct {
	Server *httptest.Server
	DBPath string
}

// setupHTTPServer wires the full application against dbPath, creating and
// migrating the database when needed. An empty dbPath uses a fresh temp file.
func setupHTTPServer(t *testing.T, dbPath string) *testEnv {
	t.Helper()
	if dbPath == "" {
		dbPath = filepath.Join(t.TempDir(), "markbind.sqlite")
	}

	writeDB, readDB, err := internaldb.OpenSQLitePair(dbPath, 4)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = writeDB.Close()
		_ = readDB.Close()
	})
	require.NoError(t, internaldb.RunMigrations(writeDB))

	a, err := app.New(context.Background(), app.Deps{
		Cfg: &config.Config{
			RateLimitRPS:       100,
			RateLimitBurst:     100,
			CORSAllowedOrigins: []string{"*"},
			SeedDemo:           true,
		},
		WriteDB: writeDB,
		ReadDB:  readDB,
		Logger:  slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)

	srv := httptest.NewServer(a.Router)
	t.Cleanup(srv.Close)
	return &testEnv{Server: srv, DBPath: dbPath}
}

// doRequest sends body as JSON when non-nil.
func doRequest(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close() //nolint:errcheck
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

// namedEntity is the shape shared by every primitive in a document body.
type namedEntity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	From *struct {
		Data string `json:"data"`
	} `json:"from,omitempty"`
}

type documentView struct {
	ID       string `json:"id"`
	Version  int64  `json:"version"`
	Document struct {
		Datasets map[string]namedEntity `json:"datasets"`
		Scales   map[string]namedEntity `json:"scales"`
		Marks    map[string]namedEntity `json:"marks"`
	} `json:"document"`
}

func byName(t *testing.T, entities map[string]namedEntity, name string) namedEntity {
	t.Helper()
	for _, e := range entities {
		if e.Name == name {
			return e
		}
	}
	require.Failf(t, "entity not found", "no entity named %q", name)
	return namedEntity{}
}
