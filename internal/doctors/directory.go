package doctors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/medibook/patient-portal/internal/availability"
	"github.com/medibook/patient-portal/internal/upstream"
	"github.com/medibook/patient-portal/pkg/logging"
	"github.com/redis/go-redis/v9"
)

const listCacheKey = "doctors:list"

// ErrNotFound is returned when no doctor has the requested id.
var ErrNotFound = errors.New("doctors: not found")

// Lister fetches the authoritative doctor list.
type Lister interface {
	ListDoctors(ctx context.Context) ([]upstream.DoctorRecord, error)
}

// Directory reads doctors through a short-lived Redis cache.
type Directory struct {
	source   Lister
	redis    *redis.Client
	ttl      time.Duration
	fallback availability.WorkingHours
	logger   *logging.Logger
}

// NewDirectory creates a directory. A nil redis client disables caching.
func NewDirectory(source Lister, redisClient *redis.Client, ttl time.Duration, logger *logging.Logger) *Directory {
	if logger == nil {
		logger = logging.Default()
	}
	return &Directory{
		source:   source,
		redis:    redisClient,
		ttl:      ttl,
		fallback: availability.DefaultWorkingHours(),
		logger:   logger,
	}
}

// WithWorkingHours sets the hours used for doctors whose record carries none.
func (d *Directory) WithWorkingHours(hours availability.WorkingHours) *Directory {
	if hours.Validate() == nil {
		d.fallback = hours
	}
	return d
}

// WorkingHours returns the configured default hours.
func (d *Directory) WorkingHours() availability.WorkingHours {
	return d.fallback
}

// List returns every doctor. Cache failures are logged and fall through to the backend.
func (d *Directory) List(ctx context.Context) ([]Doctor, error) {
	if cached, ok := d.cached(ctx); ok {
		return cached, nil
	}

	records, err := d.source.ListDoctors(ctx)
	if err != nil {
		return nil, fmt.Errorf("doctors: list: %w", err)
	}
	out := make([]Doctor, 0, len(records))
	for _, rec := range records {
		out = append(out, FromRecord(rec, d.fallback))
	}
	d.store(ctx, out)
	return out, nil
}

// Get returns a single doctor by id.
func (d *Directory) Get(ctx context.Context, id string) (Doctor, error) {
	all, err := d.List(ctx)
	if err != nil {
		return Doctor{}, err
	}
	for _, doc := range all {
		if doc.ID == id {
			return doc, nil
		}
	}
	return Doctor{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Invalidate drops the cached list so the next read goes to the backend.
func (d *Directory) Invalidate(ctx context.Context) error {
	if d.redis == nil {
		return nil
	}
	if err := d.redis.Del(ctx, listCacheKey).Err(); err != nil {
		return fmt.Errorf("doctors: invalidate cache: %w", err)
	}
	return nil
}

func (d *Directory) cached(ctx context.Context) ([]Doctor, bool) {
	if d.redis == nil || d.ttl <= 0 {
		return nil, false
	}
	data, err := d.redis.Get(ctx, listCacheKey).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		d.logger.Warn("doctor cache read failed", "error", err)
		return nil, false
	}
	var out []Doctor
	if err := json.Unmarshal(data, &out); err != nil {
		d.logger.Warn("doctor cache entry corrupt", "error", err)
		return nil, false
	}
	return out, true
}

func (d *Directory) store(ctx context.Context, doctors []Doctor) {
	if d.redis == nil || d.ttl <= 0 {
		return
	}
	data, err := json.Marshal(doctors)
	if err != nil {
		d.logger.Warn("failed to marshal doctor cache", "error", err)
		return
	}
	if err := d.redis.Set(ctx, listCacheKey, data, d.ttl).Err(); err != nil {
		d.logger.Warn("doctor cache write failed", "error", err)
	}
}
