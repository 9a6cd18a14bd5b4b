package memory

import (
	"context"

	"github.com/bjamilk/campusmarket/internal/domain"
	"github.com/bjamilk/campusmarket/internal/repository"
	apperrors "github.com/bjamilk/campusmarket/pkg/errors"
)

// ListingStore implements repository.ListingStore in process memory.
type ListingStore struct {
	kind  domain.Kind
	items *Store[domain.Listing]
}

// NewListingStore creates an empty store for one kind.
func NewListingStore(kind domain.Kind) *ListingStore {
	return &ListingStore{kind: kind, items: NewStore[domain.Listing]()}
}

// NewRegistry builds a registry of in-memory stores.
func NewRegistry() *repository.Registry {
	return repository.NewRegistry(func(k domain.Kind) repository.ListingStore {
		return NewListingStore(k)
	})
}

func (s *ListingStore) Create(_ context.Context, l domain.Listing) error {
	if !s.items.Insert(l) {
		return apperrors.AlreadyExists("listing", "id", l.ID)
	}
	return nil
}

func (s *ListingStore) Get(_ context.Context, id string) (*domain.Listing, error) {
	l, ok := s.items.Get(id)
	if !ok {
		return nil, apperrors.NotFound("listing", id)
	}
	return &l, nil
}

func (s *ListingStore) List(_ context.Context, filter repository.ListingFilter) ([]domain.Listing, int, error) {
	all := s.items.Select(filter.Matches, func(a, b domain.Listing) bool {
		if a.PostedDate.Equal(b.PostedDate) {
			return a.ID < b.ID
		}
		return a.PostedDate.After(b.PostedDate)
	})

	start, end := filter.PageParams().Window(len(all))
	return all[start:end], len(all), nil
}

func (s *ListingStore) Replace(_ context.Context, l domain.Listing, expectedVersion int64) error {
	if l.Kind != s.kind {
		return apperrors.NotFound("listing", l.ID)
	}
	found, swapped := s.items.CompareAndSwap(l, expectedVersion)
	switch {
	case !found:
		return apperrors.NotFound("listing", l.ID)
	case !swapped:
		return repository.ErrStaleVersion(s.kind, l.ID, expectedVersion)
	}
	return nil
}
