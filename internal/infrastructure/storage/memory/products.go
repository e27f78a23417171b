package memory

import (
	"bytes"
	"context"
	"sort"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/product"
)

var _ product.Reader = (*ProductRepo)(nil)

// ProductRepo implements product.Reader.
type ProductRepo struct {
	s *Store
}

// GetByID implements product.Reader.
func (r *ProductRepo) GetByID(_ context.Context, productID id.ID) (*product.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("GetByID"); err != nil {
		return nil, err
	}
	p, ok := r.s.data.products[productID]
	if !ok {
		return nil, apperror.NewNotFound("product", productID)
	}
	return &p, nil
}

// ListPage implements product.Reader.
func (r *ProductRepo) ListPage(_ context.Context, afterID id.ID, limit int) ([]product.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("ListPage"); err != nil {
		return nil, err
	}
	all := sortedProducts(r.s.data.products)
	var out []product.Product
	for _, p := range all {
		if bytes.Compare(p.ID[:], afterID[:]) <= 0 {
			continue
		}
		out = append(out, p)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// ListIDs implements product.Reader.
func (r *ProductRepo) ListIDs(_ context.Context) ([]id.ID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("ListIDs"); err != nil {
		return nil, err
	}
	all := sortedProducts(r.s.data.products)
	ids := make([]id.ID, len(all))
	for i, p := range all {
		ids[i] = p.ID
	}
	return ids, nil
}

func sortedProducts(m map[id.ID]product.Product) []product.Product {
	out := make([]product.Product, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out
}
