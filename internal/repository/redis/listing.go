package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/bjamilk/campusmarket/internal/domain"
	"github.com/bjamilk/campusmarket/internal/repository"
	apperrors "github.com/bjamilk/campusmarket/pkg/errors"
)

// ListingStore implements repository.ListingStore for one kind on Redis.
// Each listing is a JSON string; a sorted set per kind indexes IDs by
// posted date.
type ListingStore struct {
	client redis.UniversalClient
	kind   domain.Kind
}

// NewListingStore creates a store for kind.
func NewListingStore(client redis.UniversalClient, kind domain.Kind) *ListingStore {
	return &ListingStore{client: client, kind: kind}
}

// NewRegistry builds a registry of Redis stores sharing client.
func NewRegistry(client redis.UniversalClient) *repository.Registry {
	return repository.NewRegistry(func(k domain.Kind) repository.ListingStore {
		return NewListingStore(client, k)
	})
}

func (s *ListingStore) key(id string) string {
	return fmt.Sprintf("listing:%s:%s", s.kind, id)
}

func (s *ListingStore) indexKey() string {
	return "listings:" + string(s.kind)
}

func (s *ListingStore) Create(ctx context.Context, l domain.Listing) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshal listing: %w", err)
	}

	key := s.key(l.ID)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("redis exists listing: %w", err)
		}
		if n > 0 {
			return apperrors.AlreadyExists("listing", "id", l.ID)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(l.PostedDate.UnixMilli()), Member: l.ID})
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return apperrors.AlreadyExists("listing", "id", l.ID)
	}
	return err
}

func (s *ListingStore) Get(ctx context.Context, id string) (*domain.Listing, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("listing", id)
		}
		return nil, fmt.Errorf("redis get listing: %w", err)
	}
	return decode(data)
}

func (s *ListingStore) List(ctx context.Context, filter repository.ListingFilter) ([]domain.Listing, int, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("redis list index: %w", err)
	}
	if len(ids) == 0 {
		return []domain.Listing{}, 0, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("redis mget listings: %w", err)
	}

	matched := make([]domain.Listing, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		l, err := decode([]byte(raw))
		if err != nil {
			return nil, 0, err
		}
		if filter.Matches(*l) {
			matched = append(matched, *l)
		}
	}

	start, end := filter.PageParams().Window(len(matched))
	return matched[start:end], len(matched), nil
}

// Replace writes l as expectedVersion+1 inside WATCH/MULTI so a concurrent
// writer aborts the transaction.
func (s *ListingStore) Replace(ctx context.Context, l domain.Listing, expectedVersion int64) error {
	if l.Kind != s.kind {
		return apperrors.NotFound("listing", l.ID)
	}
	key := s.key(l.ID)
	next := l.WithVersion(expectedVersion + 1)
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("marshal listing: %w", err)
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return apperrors.NotFound("listing", l.ID)
			}
			return fmt.Errorf("redis get listing: %w", err)
		}
		cur, err := decode(raw)
		if err != nil {
			return err
		}
		if cur.Version != expectedVersion {
			return repository.ErrStaleVersion(s.kind, l.ID, expectedVersion)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return repository.ErrStaleVersion(s.kind, l.ID, expectedVersion)
	}
	return err
}

func decode(data []byte) (*domain.Listing, error) {
	var l domain.Listing
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("unmarshal listing: %w", err)
	}
	if l.Reviews == nil {
		l.Reviews = []domain.Review{}
	}
	return &l, nil
}
