package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"migratekit/internal/dbexec"
	"migratekit/internal/dialect"
	"migratekit/internal/flow"
	"migratekit/internal/fsio"
	"migratekit/internal/journal"
)

type stubDB struct {
	healthy bool
}

func (s *stubDB) Query(_ context.Context, stmt string, _ ...any) (dbexec.Result, error) {
	if !s.healthy {
		return dbexec.Result{}, errors.New("connection refused")
	}
	if strings.Contains(stmt, "sqlite_master") {
		return dbexec.Result{}, nil
	}
	return dbexec.Result{}, nil
}

func (s *stubDB) Exec(_ context.Context, _ string, _ ...any) (dbexec.Result, error) {
	return dbexec.Result{}, nil
}

func newTestServer(t *testing.T, db *stubDB, fs *fsio.Mem) *Server {
	t.Helper()
	d, err := dialect.New("sqlite")
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := flow.New(d, db, fs, "migrations", "migrations/meta/snapshot.json", "migrations/meta/journal.json", logger)
	return New(":0", engine, logger)
}

func TestHealthz(t *testing.T) {
	db := &stubDB{healthy: true}
	srv := newTestServer(t, db, fsio.NewMem())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHealthzUnhealthyDatabase(t *testing.T) {
	db := &stubDB{healthy: false}
	srv := newTestServer(t, db, fsio.NewMem())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "service_unhealthy", body.Error.Code)
}

func TestStatusEndpoint(t *testing.T) {
	fs := fsio.NewMem()
	require.NoError(t, fs.WriteFile("migrations/0001_users.sql", []byte("CREATE TABLE \"users\" (\"id\" text PRIMARY KEY);\n")))
	srv := newTestServer(t, &stubDB{healthy: true}, fs)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Applied []map[string]any `json:"applied"`
		Pending []string         `json:"pending"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body.Applied)
	assert.Equal(t, []string{"0001_users.sql"}, body.Pending)
}

func TestJournalEndpoint(t *testing.T) {
	fs := fsio.NewMem()
	ledger := journal.Journal{Migrations: []journal.Entry{{Name: "0001_init.sql", Description: "init"}}}
	require.NoError(t, journal.Save(fs, "migrations/meta/journal.json", ledger))
	require.NoError(t, fs.WriteFile("migrations/0001_other.sql", []byte("SELECT 1;\n")))

	srv := newTestServer(t, &stubDB{healthy: true}, fs)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/journal", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Version    int                 `json:"version"`
		Migrations []journal.Entry     `json:"migrations"`
		Collisions []journal.Collision `json:"collisions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, journal.Version, body.Version)
	require.Len(t, body.Migrations, 1)

	// 0001_init.sql in the ledger vs 0001_other.sql on disk.
	require.Len(t, body.Collisions, 1)
	assert.Equal(t, 1, body.Collisions[0].Sequence)
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestServer(t, &stubDB{healthy: true}, fsio.NewMem())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
