package store

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/nguyentranbao-ct/catalog-console/internal/catalogapi"
	"github.com/nguyentranbao-ct/catalog-console/internal/models"
	"github.com/nguyentranbao-ct/catalog-console/pkg/logger"
)

// Store owns the product collection of the current session. Local state
// only changes after the remote service confirmed the write.
type Store struct {
	client catalogapi.Client
	log    *zap.SugaredLogger

	mu       sync.RWMutex
	products []models.Product
	// A load may only replace the list if it was issued after everything
	// applied so far: loads with seq <= loadFloor are stale.
	loadIssued uint64
	loadFloor  uint64
}

func New(client catalogapi.Client) *Store {
	return &Store{
		client: client,
		log:    logger.MustNamed("store"),
	}
}

// Load replaces the local list with the remote one. On failure the previous
// list stays.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	s.loadIssued++
	seq := s.loadIssued
	s.mu.Unlock()

	products, err := s.client.ListProducts(ctx)
	if err != nil {
		s.log.Warnw("load products failed", "error", err)
		return fmt.Errorf("load products: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.loadFloor {
		s.log.Debugw("discarding stale product list", "seq", seq, "floor", s.loadFloor)
		return nil
	}
	s.loadFloor = seq
	s.products = products
	s.log.Infow("products loaded", "count", len(products))
	return nil
}

// Create sends draft and merges the product the service created. When the
// service answers without a body the list is re-fetched instead, so no id is
// ever made up locally.
func (s *Store) Create(ctx context.Context, draft models.ProductDraft) (*models.Product, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	created, err := s.client.CreateProduct(ctx, draft)
	if err != nil {
		s.log.Warnw("create product failed", "name", draft.Name, "error", err)
		return nil, fmt.Errorf("create product: %w", err)
	}
	if created == nil {
		if err := s.Load(ctx); err != nil {
			return nil, fmt.Errorf("refresh after create: %w", err)
		}
		return nil, nil
	}

	s.mu.Lock()
	s.upsertLocked(*created)
	s.mu.Unlock()
	s.log.Infow("product created", "id", created.ID, "name", created.Name)
	return created, nil
}

// Update sends draft for id, then re-fetches the product because the service
// owns derived fields.
func (s *Store) Update(ctx context.Context, id int64, draft models.ProductDraft) (*models.Product, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	if err := s.client.UpdateProduct(ctx, id, draft); err != nil {
		s.log.Warnw("update product failed", "id", id, "error", err)
		return nil, fmt.Errorf("update product %d: %w", id, err)
	}
	fresh, err := s.client.GetProduct(ctx, id)
	if err != nil {
		s.log.Warnw("refresh after update failed", "id", id, "error", err)
		return nil, fmt.Errorf("refresh product %d: %w", id, err)
	}

	s.mu.Lock()
	s.upsertLocked(*fresh)
	s.mu.Unlock()
	s.log.Infow("product updated", "id", id, "image", draft.HasImage())
	return fresh, nil
}

// Delete removes id remotely and, only then, locally. Deleting an id the
// service no longer knows yields a RemoteError matching models.ErrNotFound.
func (s *Store) Delete(ctx context.Context, id int64) error {
	if err := s.client.DeleteProduct(ctx, id); err != nil {
		s.log.Warnw("delete product failed", "id", id, "error", err)
		return fmt.Errorf("delete product %d: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.products {
		if p.ID == id {
			s.products = append(s.products[:i:i], s.products[i+1:]...)
			break
		}
	}
	s.loadFloor = s.loadIssued
	s.log.Infow("product deleted", "id", id)
	return nil
}

func (s *Store) Products() []models.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Product, len(s.products))
	copy(out, s.products)
	return out
}

func (s *Store) Get(id int64) (models.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.products {
		if p.ID == id {
			return p, true
		}
	}
	return models.Product{}, false
}

// Search filters by name or description, case-insensitively.
func (s *Store) Search(query string) []models.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Product, 0, len(s.products))
	for _, p := range s.products {
		if p.Matches(query) {
			out = append(out, p)
		}
	}
	return out
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.products)
}

// ImageURL returns a fresh address for the product image; call it again
// after every write.
func (s *Store) ImageURL(id int64) string {
	return s.client.ImageURL(id)
}

func (s *Store) upsertLocked(p models.Product) {
	s.loadFloor = s.loadIssued
	for i := range s.products {
		if s.products[i].ID == p.ID {
			next := make([]models.Product, len(s.products))
			copy(next, s.products)
			next[i] = p
			s.products = next
			return
		}
	}
	next := make([]models.Product, len(s.products), len(s.products)+1)
	copy(next, s.products)
	s.products = append(next, p)
}
