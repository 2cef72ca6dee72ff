package consent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/patterm/internal/common"
	"github.com/dmitrijs2005/patterm/internal/server/models"
)

// RedisRepository keeps one hash per patient, field = facility id, value =
// JSON {granted, updated_at}. The index holds no patient data, so sharing it
// between server instances is safe.
type RedisRepository struct {
	client    redis.UniversalClient
	keyPrefix string
}

type redisValue struct {
	Granted   bool      `json:"granted"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewRedisRepository(client redis.UniversalClient, keyPrefix string) *RedisRepository {
	if keyPrefix == "" {
		keyPrefix = "patterm"
	}
	return &RedisRepository{client: client, keyPrefix: keyPrefix}
}

func (r *RedisRepository) key(patientID string) string {
	return r.keyPrefix + ":consent:" + patientID
}

func (r *RedisRepository) Set(ctx context.Context, s models.ConsentStatus) error {
	data, err := json.Marshal(redisValue{Granted: s.Granted, UpdatedAt: s.UpdatedAt})
	if err != nil {
		return err
	}
	if err := r.client.HSet(ctx, r.key(s.PatientID), s.FacilityID, data).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

func (r *RedisRepository) Get(ctx context.Context, patientID, facilityID string) (*models.ConsentStatus, error) {
	data, err := r.client.HGet(ctx, r.key(patientID), facilityID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("redis error: %w", err)
	}

	var v redisValue
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode consent %s/%s: %w", patientID, facilityID, err)
	}
	return &models.ConsentStatus{PatientID: patientID, FacilityID: facilityID, Granted: v.Granted, UpdatedAt: v.UpdatedAt}, nil
}

func (r *RedisRepository) List(ctx context.Context, patientID string) ([]models.ConsentStatus, error) {
	all, err := r.client.HGetAll(ctx, r.key(patientID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis error: %w", err)
	}

	out := make([]models.ConsentStatus, 0, len(all))
	for facilityID, data := range all {
		var v redisValue
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			return nil, fmt.Errorf("decode consent %s/%s: %w", patientID, facilityID, err)
		}
		out = append(out, models.ConsentStatus{PatientID: patientID, FacilityID: facilityID, Granted: v.Granted, UpdatedAt: v.UpdatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FacilityID < out[j].FacilityID })
	return out, nil
}
