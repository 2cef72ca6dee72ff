package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/patterm/internal/common"
	"github.com/dmitrijs2005/patterm/internal/server/models"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func entry(seq int64) models.AuditEntry {
	return models.AuditEntry{
		Seq:        seq,
		PrevHash:   fmt.Sprintf("%064d", seq-1),
		ActorID:    "p1",
		Action:     "RecordRead",
		ResourceID: "p1",
		Timestamp:  t0.Add(time.Duration(seq) * time.Second),
		Outcome:    "success",
		Hash:       fmt.Sprintf("%064d", seq),
	}
}

func exerciseRepository(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()

	_, err := repo.Last(ctx)
	assert.ErrorIs(t, err, common.ErrNotFound)

	for seq := int64(1); seq <= 5; seq++ {
		require.NoError(t, repo.Append(ctx, entry(seq)))
	}

	assert.ErrorIs(t, repo.Append(ctx, entry(5)), common.ErrConflict, "sequence reuse")
	assert.ErrorIs(t, repo.Append(ctx, entry(7)), common.ErrConflict, "sequence gap")

	last, err := repo.Last(ctx)
	require.NoError(t, err)
	assert.Equal(t, entry(5), *last)

	got, err := repo.Range(ctx, 2, 4)
	require.NoError(t, err)
	assert.Equal(t, []models.AuditEntry{entry(2), entry(3), entry(4)}, got)

	got, err = repo.Range(ctx, 4, 100)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestMemoryRepository(t *testing.T) {
	exerciseRepository(t, NewMemoryRepository())
}

func TestFileRepository(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "log.jsonl")
	repo, err := OpenFileRepository(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	exerciseRepository(t, repo)
}

func TestFileRepository_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	ctx := context.Background()

	repo, err := OpenFileRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.Append(ctx, entry(1)))
	require.NoError(t, repo.Append(ctx, entry(2)))
	require.NoError(t, repo.Close())

	repo, err = OpenFileRepository(path)
	require.NoError(t, err)
	defer repo.Close()

	last, err := repo.Last(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), last.Seq)
	require.NoError(t, repo.Append(ctx, entry(3)))

	all, err := repo.Range(ctx, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []models.AuditEntry{entry(1), entry(2), entry(3)}, all)
}

func TestFileRepository_CutsPartialTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	ctx := context.Background()

	repo, err := OpenFileRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.Append(ctx, entry(1)))
	require.NoError(t, repo.Close())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString(`{"seq":2,"prev_ha`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	repo, err = OpenFileRepository(path)
	require.NoError(t, err)
	defer repo.Close()

	last, err := repo.Last(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), last.Seq)
	require.NoError(t, repo.Append(ctx, entry(2)))

	all, err := repo.Range(ctx, 1, 2)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestFileRepository_CorruptLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	ctx := context.Background()

	repo, err := OpenFileRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.Append(ctx, entry(1)))
	require.NoError(t, repo.Append(ctx, entry(2)))
	defer repo.Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[0] = '#'
	require.NoError(t, os.WriteFile(path, data, 0o600))

	_, err = repo.Range(ctx, 1, 2)
	assert.ErrorContains(t, err, "line 1")
}

// faultyFile fails the next write, sync or truncate it is told to.
type faultyFile struct {
	*os.File
	shortWrite  bool
	failSync    bool
	failTrunc   bool
	injectedErr error
}

func (f *faultyFile) Write(p []byte) (int, error) {
	if f.shortWrite {
		f.shortWrite = false
		n, _ := f.File.Write(p[:len(p)/2])
		return n, f.injectedErr
	}
	return f.File.Write(p)
}

func (f *faultyFile) Sync() error {
	if f.failSync {
		f.failSync = false
		return f.injectedErr
	}
	return f.File.Sync()
}

func (f *faultyFile) Truncate(size int64) error {
	if f.failTrunc {
		return f.injectedErr
	}
	return f.File.Truncate(size)
}

func openFaulty(t *testing.T) (*FileRepository, *faultyFile, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "log.jsonl")
	repo, err := OpenFileRepository(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	ff := &faultyFile{File: repo.f.(*os.File), injectedErr: fmt.Errorf("input/output error")}
	repo.f = ff
	return repo, ff, path
}

func TestFileRepository_FailedAppendLeavesNoTrace(t *testing.T) {
	tests := []struct {
		name   string
		inject func(f *faultyFile)
	}{
		{"short write", func(f *faultyFile) { f.shortWrite = true }},
		{"sync after full write", func(f *faultyFile) { f.failSync = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, ff, path := openFaulty(t)
			ctx := context.Background()
			require.NoError(t, repo.Append(ctx, entry(1)))

			tt.inject(ff)
			require.Error(t, repo.Append(ctx, entry(2)))

			last, err := repo.Last(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(1), last.Seq)

			all, err := repo.Range(ctx, 1, 10)
			require.NoError(t, err)
			assert.Equal(t, []models.AuditEntry{entry(1)}, all)

			require.NoError(t, repo.Append(ctx, entry(2)))
			require.NoError(t, repo.Append(ctx, entry(3)))
			require.NoError(t, repo.Close())

			reopened, err := OpenFileRepository(path)
			require.NoError(t, err)
			defer reopened.Close()

			all, err = reopened.Range(ctx, 1, 10)
			require.NoError(t, err)
			assert.Equal(t, []models.AuditEntry{entry(1), entry(2), entry(3)}, all)
		})
	}
}

func TestFileRepository_RefusesAppendsWhenRollbackFails(t *testing.T) {
	repo, ff, _ := openFaulty(t)
	ctx := context.Background()
	require.NoError(t, repo.Append(ctx, entry(1)))

	ff.failSync = true
	ff.failTrunc = true
	err := repo.Append(ctx, entry(2))
	require.ErrorIs(t, err, ErrLogBroken)

	ff.failTrunc = false
	assert.ErrorIs(t, repo.Append(ctx, entry(2)), ErrLogBroken)

	last, err := repo.Last(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), last.Seq)
}
