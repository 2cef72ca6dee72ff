package keys

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/patterm/internal/common"
	"github.com/dmitrijs2005/patterm/internal/server/models"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func exerciseRepository(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()

	_, err := repo.Get(ctx, "p1")
	assert.ErrorIs(t, err, common.ErrNotFound)

	first := &models.PatientKey{PatientID: "p1", Wrapped: []byte("wrapped-1"), CreatedAt: t0}
	require.NoError(t, repo.PutIfAbsent(ctx, first))

	second := &models.PatientKey{PatientID: "p1", Wrapped: []byte("wrapped-2"), CreatedAt: t0.Add(time.Hour)}
	assert.ErrorIs(t, repo.PutIfAbsent(ctx, second), common.ErrAlreadyExists)

	got, err := repo.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []byte("wrapped-1"), got.Wrapped, "existing key is never replaced")
	assert.True(t, t0.Equal(got.CreatedAt))

	require.NoError(t, repo.PutIfAbsent(ctx, &models.PatientKey{PatientID: "p2", Wrapped: []byte("w"), CreatedAt: t0}))
}

func TestMemoryRepository(t *testing.T) {
	repo := NewMemoryRepository()
	exerciseRepository(t, repo)

	got, err := repo.Get(context.Background(), "p1")
	require.NoError(t, err)
	got.Wrapped[0] = 'X'
	again, err := repo.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, byte('w'), again.Wrapped[0], "returned slices are copies")
}

func TestLevelDBRepository(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "keys")
	repo, err := OpenLevelDBRepository(dir)
	require.NoError(t, err)

	exerciseRepository(t, repo)
	require.NoError(t, repo.Close())

	repo, err = OpenLevelDBRepository(dir)
	require.NoError(t, err)
	defer repo.Close()

	got, err := repo.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, []byte("wrapped-1"), got.Wrapped, "survives reopen")
}

// fakeKV emulates the KV v2 data endpoints, including check-and-set.
type fakeKV struct {
	mu      sync.Mutex
	secrets map[string]map[string]any
}

func (f *fakeKV) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/v1/")
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		data, ok := f.secrets[path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":[]}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"data": data}})
	case http.MethodPut, http.MethodPost:
		var body struct {
			Options map[string]any `json:"options"`
			Data    map[string]any `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if _, exists := f.secrets[path]; exists && body.Options["cas"] == float64(0) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"errors":["check-and-set parameter did not match the current version"]}`))
			return
		}
		f.secrets[path] = body.Data
		_, _ = w.Write([]byte(`{"data":{"version":1}}`))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestHashicorpRepository(t *testing.T) {
	kv := &fakeKV{secrets: map[string]map[string]any{}}
	srv := httptest.NewServer(kv)
	t.Cleanup(srv.Close)

	client, err := NewHashicorpClient(srv.URL, "root")
	require.NoError(t, err)

	repo := NewHashicorpRepository(client, "/secret/", "patterm/keys")
	exerciseRepository(t, repo)

	_, stored := kv.secrets["secret/data/patterm/keys/p1"]
	assert.True(t, stored)
}

func TestHashicorpRepository_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"errors":["permission denied"]}`))
	}))
	t.Cleanup(srv.Close)

	client, err := NewHashicorpClient(srv.URL, "bad")
	require.NoError(t, err)
	repo := NewHashicorpRepository(client, "secret", "patterm/keys")

	err = repo.PutIfAbsent(context.Background(), &models.PatientKey{PatientID: "p1", Wrapped: []byte("w")})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrAlreadyExists)

	_, err = repo.Get(context.Background(), "p1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrNotFound)
}
