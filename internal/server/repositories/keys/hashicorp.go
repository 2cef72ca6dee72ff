package keys

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"

	"github.com/dmitrijs2005/patterm/internal/common"
	"github.com/dmitrijs2005/patterm/internal/server/models"
)

// HashicorpRepository stores wrapped keys in a HashiCorp Vault KV v2
// engine. Writes use check-and-set 0 so an existing key is never replaced.
type HashicorpRepository struct {
	client *api.Client
	mount  string
	prefix string
}

func NewHashicorpRepository(client *api.Client, mount, prefix string) *HashicorpRepository {
	return &HashicorpRepository{
		client: client,
		mount:  strings.Trim(mount, "/"),
		prefix: strings.Trim(prefix, "/"),
	}
}

// NewHashicorpClient builds a Vault API client for addr authenticated with
// token.
func NewHashicorpClient(addr, token string) (*api.Client, error) {
	cfg := api.DefaultConfig()
	cfg.Address = addr
	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}
	return client, nil
}

// dataPath is "<mount>/data/<prefix>/<patient>"; the data segment is part
// of the KV v2 API.
func (r *HashicorpRepository) dataPath(patientID string) string {
	return fmt.Sprintf("%s/data/%s/%s", r.mount, r.prefix, patientID)
}

func (r *HashicorpRepository) PutIfAbsent(ctx context.Context, k *models.PatientKey) error {
	data := map[string]any{
		"options": map[string]any{"cas": 0},
		"data": map[string]any{
			"wrapped":    base64.StdEncoding.EncodeToString(k.Wrapped),
			"created_at": k.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}

	_, err := r.client.Logical().WriteWithContext(ctx, r.dataPath(k.PatientID), data)
	if err != nil {
		if isCASMismatch(err) {
			return common.ErrAlreadyExists
		}
		return fmt.Errorf("vault write: %w", err)
	}
	return nil
}

func (r *HashicorpRepository) Get(ctx context.Context, patientID string) (*models.PatientKey, error) {
	secret, err := r.client.Logical().ReadWithContext(ctx, r.dataPath(patientID))
	if err != nil {
		return nil, fmt.Errorf("vault read: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, common.ErrNotFound
	}

	data, ok := secret.Data["data"].(map[string]any)
	if !ok {
		// a deleted KV v2 version reads back with data: null
		return nil, common.ErrNotFound
	}

	encoded, _ := data["wrapped"].(string)
	wrapped, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(wrapped) == 0 {
		return nil, fmt.Errorf("vault key for %s: invalid wrapped value", patientID)
	}

	k := &models.PatientKey{PatientID: patientID, Wrapped: wrapped}
	if ts, ok := data["created_at"].(string); ok {
		k.CreatedAt, _ = time.Parse(time.RFC3339Nano, ts)
	}
	return k, nil
}

func isCASMismatch(err error) bool {
	var respErr *api.ResponseError
	if !errors.As(err, &respErr) || respErr.StatusCode != http.StatusBadRequest {
		return false
	}
	for _, msg := range respErr.Errors {
		if strings.Contains(msg, "check-and-set") {
			return true
		}
	}
	return false
}
