package repository

import (
	"context"
	"fmt"

	"github.com/bjamilk/campusmarket/internal/domain"
	apperrors "github.com/bjamilk/campusmarket/pkg/errors"
	"github.com/bjamilk/campusmarket/pkg/pagination"
)

// ListingFilter narrows a List call. Nil flags match both values.
type ListingFilter struct {
	Reported *bool
	Closed   *bool
	Page     pagination.Params
}

// Matches reports whether l passes the reported/closed flags.
func (f ListingFilter) Matches(l domain.Listing) bool {
	if f.Reported != nil && l.IsReported != *f.Reported {
		return false
	}
	if f.Closed != nil && l.IsClosed != *f.Closed {
		return false
	}
	return true
}

// PageParams returns the page with defaults applied.
func (f ListingFilter) PageParams() pagination.Params {
	return pagination.Normalize(f.Page.Page, f.Page.PerPage)
}

// ListingStore holds the listings of one kind.
type ListingStore interface {
	// Create inserts a new listing. An existing ID yields ErrAlreadyExists.
	Create(ctx context.Context, l domain.Listing) error

	// Get returns the listing with the given ID or ErrNotFound.
	Get(ctx context.Context, id string) (*domain.Listing, error)

	// List returns one page of listings, newest first, and the total match count.
	List(ctx context.Context, filter ListingFilter) ([]domain.Listing, int, error)

	// Replace stores l if the stored version still equals expectedVersion,
	// writing it as expectedVersion+1. A stale version yields ErrConflict.
	Replace(ctx context.Context, l domain.Listing, expectedVersion int64) error
}

// Registry resolves the store for a listing kind.
type Registry struct {
	stores map[domain.Kind]ListingStore
}

// NewRegistry calls newStore once per known kind.
func NewRegistry(newStore func(domain.Kind) ListingStore) *Registry {
	r := &Registry{stores: make(map[domain.Kind]ListingStore)}
	for _, k := range domain.AllKinds() {
		r.stores[k] = newStore(k)
	}
	return r
}

// Store returns the store for kind.
func (r *Registry) Store(kind domain.Kind) (ListingStore, error) {
	s, ok := r.stores[kind]
	if !ok {
		return nil, apperrors.NotFound("listing kind", string(kind))
	}
	return s, nil
}

// ErrStaleVersion builds the conflict returned by Replace.
func ErrStaleVersion(kind domain.Kind, id string, expected int64) error {
	return apperrors.Conflict(fmt.Sprintf("%s listing %s changed since version %d", kind, id, expected))
}
