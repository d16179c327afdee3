package records

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	domain "github.com/snapworth/snapworth/internal/domain/appraisal"
	"github.com/snapworth/snapworth/internal/domain/kv"
)

const (
	recordPrefix  = "appraisal:"
	counterPrefix = "counter:"
)

// Store implements the appraisal Repository over a kv.Store. Records are
// JSON snapshots keyed by id only; expiry is delegated to the backend TTL.
type Store struct {
	kv  kv.Store
	ttl time.Duration
}

func New(backend kv.Store, ttl time.Duration) *Store {
	return &Store{kv: backend, ttl: ttl}
}

var _ domain.Repository = (*Store)(nil)

func (s *Store) Save(ctx context.Context, a *domain.Appraisal) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", domain.ErrStorage, a.ID, err)
	}
	if err := s.kv.Set(ctx, recordPrefix+string(a.ID), data, s.ttl); err != nil {
		return fmt.Errorf("%w: write %s: %v", domain.ErrStorage, a.ID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id domain.AppraisalID) (*domain.Appraisal, error) {
	data, ok, err := s.kv.Get(ctx, recordPrefix+string(id))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrStorage, id, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	var a domain.Appraisal
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", domain.ErrStorage, id, err)
	}
	return &a, nil
}

func (s *Store) Bump(ctx context.Context, name string) error {
	_, err := s.kv.Increment(ctx, counterPrefix+name, 1)
	return err
}

func (s *Store) Count(ctx context.Context, name string) (int64, error) {
	return s.kv.Increment(ctx, counterPrefix+name, 0)
}
