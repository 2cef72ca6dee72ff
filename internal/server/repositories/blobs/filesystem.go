package blobs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/patterm/internal/common"
	"github.com/dmitrijs2005/patterm/internal/filex"
)

const blobExt = ".phv"

// FilesystemRepository keeps one file per patient under dir. Writes go to
// a temp file in the same directory which is fsynced and renamed over the
// old blob, so a crash leaves either the old or the new blob.
type FilesystemRepository struct {
	dir string
}

func NewFilesystemRepository(dir string) (*FilesystemRepository, error) {
	if err := filex.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &FilesystemRepository{dir: dir}, nil
}

func (r *FilesystemRepository) path(patientID string) (string, error) {
	if patientID == "" || strings.ContainsAny(patientID, `/\`) || strings.HasPrefix(patientID, ".") {
		return "", fmt.Errorf("invalid patient id %q: %w", patientID, common.ErrValidation)
	}
	return filepath.Join(r.dir, patientID+blobExt), nil
}

func (r *FilesystemRepository) Get(ctx context.Context, patientID string) ([]byte, error) {
	p, err := r.path(patientID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

func (r *FilesystemRepository) Put(ctx context.Context, patientID string, data []byte) error {
	p, err := r.path(patientID)
	if err != nil {
		return err
	}
	return filex.WriteFileAtomic(p, data)
}
