// Package catalog provides the user/pharmacy/mask lookups the ledger
// aggregator depends on, plus the pharmacy product search.
package catalog

import (
	"context"

	"github.com/pharmacymask/ledger-service/internal/model"
	"github.com/pharmacymask/ledger-service/internal/repo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Service answers catalog lookups.
type Service struct {
	repo repo.RepositoryInterface
	log  *zap.SugaredLogger
}

// NewService returns Service.
func NewService(r repo.RepositoryInterface, logger *zap.SugaredLogger) *Service {
	return &Service{repo: r, log: logger}
}

// ProductSearch filters PharmacyProducts. Empty slices and nil bounds
// mean "no filter".
type ProductSearch struct {
	IDs            []uint64
	PharmacyIDs    []uint64
	MaskIDs        []uint64
	ProductTypeIDs []uint64
	PriceFrom      *decimal.Decimal
	PriceTo        *decimal.Decimal
}

// Users lists users by ids and/or exact name.
func (s *Service) Users(ctx context.Context, ids []uint64, name string) ([]model.User, error) {
	return s.repo.UsersByOption(ctx, ids, name)
}

// Pharmacies lists pharmacies by ids and/or exact name.
func (s *Service) Pharmacies(ctx context.Context, ids []uint64, name string) ([]model.Pharmacy, error) {
	return s.repo.PharmaciesByOption(ctx, ids, name)
}

// Masks lists masks by ids and/or exact name.
func (s *Service) Masks(ctx context.Context, ids []uint64, name string) ([]model.Mask, error) {
	return s.repo.MasksByOption(ctx, ids, name)
}

// PharmacyProducts searches listed products, price range inclusive.
func (s *Service) PharmacyProducts(ctx context.Context, search ProductSearch) ([]model.PharmacyProduct, error) {
	return s.repo.PharmacyProductsByOption(ctx, repo.ProductOption{
		IDs:            search.IDs,
		PharmacyIDs:    search.PharmacyIDs,
		MaskIDs:        search.MaskIDs,
		ProductTypeIDs: search.ProductTypeIDs,
		PriceFrom:      search.PriceFrom,
		PriceTo:        search.PriceTo,
	})
}

// RenameMask updates a mask's display name.
func (s *Service) RenameMask(ctx context.Context, id uint64, name string) error {
	if err := s.repo.RenameMask(ctx, id, name); err != nil {
		return err
	}
	s.log.Infof("mask %d renamed to %q", id, name)
	return nil
}
