package blobs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/patterm/internal/common"
)

func exerciseRepository(t *testing.T, r Repository) {
	t.Helper()
	ctx := context.Background()

	_, err := r.Get(ctx, "p1")
	require.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, r.Put(ctx, "p1", []byte("first")))
	got, err := r.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), got)

	require.NoError(t, r.Put(ctx, "p1", []byte("second")))
	got, err = r.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)

	_, err = r.Get(ctx, "p2")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestMemoryRepository(t *testing.T) {
	exerciseRepository(t, NewMemoryRepository())
}

func TestMemoryRepository_CopiesData(t *testing.T) {
	r := NewMemoryRepository()
	data := []byte("abc")
	require.NoError(t, r.Put(context.Background(), "p1", data))
	data[0] = 'x'

	got, err := r.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}

func TestFilesystemRepository(t *testing.T) {
	r, err := NewFilesystemRepository(filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)
	exerciseRepository(t, r)
}

func TestFilesystemRepository_NoTempLeftovers(t *testing.T) {
	dir := t.TempDir()
	r, err := NewFilesystemRepository(dir)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, r.Put(context.Background(), "p1", []byte{byte(i)}))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "p1"+blobExt, entries[0].Name())
}

func TestFilesystemRepository_RejectsUnsafeIDs(t *testing.T) {
	r, err := NewFilesystemRepository(t.TempDir())
	require.NoError(t, err)

	for _, id := range []string{"", "../p1", "a/b", `a\b`, ".hidden"} {
		err := r.Put(context.Background(), id, []byte("x"))
		assert.ErrorIs(t, err, common.ErrValidation, id)

		_, err = r.Get(context.Background(), id)
		assert.ErrorIs(t, err, common.ErrValidation, id)
	}
}

type mockS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	getErr  error
}

func newMockS3() *mockS3 {
	return &mockS3{objects: make(map[string][]byte)}
}

func (m *mockS3) GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	b, ok := m.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (m *mockS3) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.putErr != nil {
		return nil, m.putErr
	}
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = b
	return &s3.PutObjectOutput{}, nil
}

func TestS3Repository(t *testing.T) {
	m := newMockS3()
	exerciseRepository(t, NewS3Repository(m, "vault", "dev/"))

	_, ok := m.objects["vault/dev/patients/p1"+blobExt]
	assert.True(t, ok)
}

func TestS3Repository_Errors(t *testing.T) {
	m := newMockS3()
	m.getErr = errors.New("boom")
	m.putErr = errors.New("boom")
	r := NewS3Repository(m, "vault", "")

	_, err := r.Get(context.Background(), "p1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrNotFound)

	err = r.Put(context.Background(), "p1", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3 put")
}

func TestNewS3Client(t *testing.T) {
	c, err := NewS3Client(context.Background(), S3Options{
		User:         "minio",
		Password:     "minio123",
		Region:       "us-east-1",
		BaseEndpoint: "http://localhost:9000",
	})
	require.NoError(t, err)

	o := c.Options()
	assert.True(t, o.UsePathStyle)
	assert.Equal(t, "http://localhost:9000", aws.ToString(o.BaseEndpoint))
	assert.Equal(t, "us-east-1", o.Region)
}
