package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"inapppay/internal/models"
)

// StaticCatalogService answers product requests from a fixed list
type StaticCatalogService struct {
	Products []models.ProductDescriptor
	Err      error
}

// LoadCatalogFile reads a JSON array of product descriptors
func LoadCatalogFile(path string) (*StaticCatalogService, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	var products []models.ProductDescriptor
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return &StaticCatalogService{Products: products}, nil
}

func (s *StaticCatalogService) RequestProducts(ctx context.Context, ids []string) ([]models.ProductDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	var out []models.ProductDescriptor
	for _, p := range s.Products {
		if _, ok := wanted[p.ID]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}
