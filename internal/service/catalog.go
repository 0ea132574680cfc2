package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"paintstore/backend/internal/domain"
	"paintstore/backend/internal/store"
	"paintstore/backend/internal/xid"
)

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductRequest) (*domain.Product, error) {
	req.Company = strings.TrimSpace(req.Company)
	req.ProductName = strings.TrimSpace(req.ProductName)
	if err := s.check(req); err != nil {
		return nil, err
	}

	var created *domain.Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		created, err = tx.CreateProduct(ctx, domain.Product{
			ID:          xid.New("prod"),
			Company:     req.Company,
			ProductName: req.ProductName,
			CreatedAt:   s.now(),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, "product_create", "product", created.ID, fmt.Sprintf("company=%s,name=%s", created.Company, created.ProductName))
	return created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductRequest) (*domain.Product, error) {
	req.Company = strings.TrimSpace(req.Company)
	req.ProductName = strings.TrimSpace(req.ProductName)
	if err := s.check(req); err != nil {
		return nil, err
	}

	var updated *domain.Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		updated, err = tx.UpdateProduct(ctx, domain.Product{ID: id, Company: req.Company, ProductName: req.ProductName})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, "product_update", "product", id, fmt.Sprintf("company=%s,name=%s", updated.Company, updated.ProductName))
	return updated, nil
}

// DeleteProduct is refused while the product still has variants.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.DeleteProduct(ctx, id)
	})
	if err != nil {
		return err
	}
	s.committed(ctx, "product_delete", "product", id, "")
	return nil
}

func (s *Service) ListVariants(ctx context.Context, productID string) ([]domain.Variant, error) {
	return s.repo.ListVariants(ctx, productID)
}

func (s *Service) GetVariant(ctx context.Context, id string) (*domain.Variant, error) {
	return s.repo.GetVariant(ctx, id)
}

func (s *Service) CreateVariant(ctx context.Context, req domain.VariantRequest) (*domain.Variant, error) {
	req.PackingSize = strings.TrimSpace(req.PackingSize)
	if err := s.check(req); err != nil {
		return nil, err
	}
	if err := money("rate", req.Rate); err != nil {
		return nil, err
	}

	var created *domain.Variant
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetProduct(ctx, req.ProductID); errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: product %s does not exist", store.ErrValidation, req.ProductID)
		} else if err != nil {
			return err
		}
		var err error
		created, err = tx.CreateVariant(ctx, domain.Variant{
			ID:          xid.New("var"),
			ProductID:   req.ProductID,
			PackingSize: req.PackingSize,
			Rate:        req.Rate,
			CreatedAt:   s.now(),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, "variant_create", "variant", created.ID, fmt.Sprintf("product=%s,size=%s,rate=%s", created.ProductID, created.PackingSize, created.Rate.StringFixed(2)))
	return created, nil
}

func (s *Service) UpdateVariant(ctx context.Context, id string, req domain.VariantRequest) (*domain.Variant, error) {
	req.PackingSize = strings.TrimSpace(req.PackingSize)
	existing, err := s.repo.GetVariant(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.ProductID == "" {
		req.ProductID = existing.ProductID
	}
	if req.ProductID != existing.ProductID {
		return nil, fmt.Errorf("%w: a variant cannot move to another product", store.ErrValidation)
	}
	if err := s.check(req); err != nil {
		return nil, err
	}
	if err := money("rate", req.Rate); err != nil {
		return nil, err
	}

	var updated *domain.Variant
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		updated, err = tx.UpdateVariant(ctx, domain.Variant{ID: id, PackingSize: req.PackingSize, Rate: req.Rate})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, "variant_update", "variant", id, fmt.Sprintf("size=%s,rate=%s", updated.PackingSize, updated.Rate.StringFixed(2)))
	return updated, nil
}

// UpdateVariantRate changes the price list rate only. Existing sale items
// keep the rate they were sold at.
func (s *Service) UpdateVariantRate(ctx context.Context, id string, rate decimal.Decimal) (*domain.Variant, error) {
	if rate.IsNegative() {
		return nil, fmt.Errorf("%w: rate must not be negative", store.ErrValidation)
	}
	if err := money("rate", rate); err != nil {
		return nil, err
	}

	var updated *domain.Variant
	var previous decimal.Decimal
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		existing, err := tx.GetVariant(ctx, id)
		if err != nil {
			return err
		}
		previous = existing.Rate
		existing.Rate = rate
		updated, err = tx.UpdateVariant(ctx, *existing)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, "variant_rate_update", "variant", id, fmt.Sprintf("from=%s,to=%s", previous.StringFixed(2), rate.StringFixed(2)))
	return updated, nil
}

// BulkUpdateRates applies each update in its own unit of work so one bad
// row does not block the rest.
func (s *Service) BulkUpdateRates(ctx context.Context, updates []domain.RateUpdate) ([]domain.BulkResult, error) {
	if len(updates) == 0 {
		return nil, fmt.Errorf("%w: no rate updates given", store.ErrValidation)
	}
	results := make([]domain.BulkResult, 0, len(updates))
	for _, u := range updates {
		res := domain.BulkResult{ID: u.VariantID, Success: true}
		if _, err := s.UpdateVariantRate(ctx, u.VariantID, u.Rate); err != nil {
			res.Success = false
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	return results, nil
}

// DeleteVariant is refused while the variant still has colors.
func (s *Service) DeleteVariant(ctx context.Context, id string) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.DeleteVariant(ctx, id)
	})
	if err != nil {
		return err
	}
	s.committed(ctx, "variant_delete", "variant", id, "")
	return nil
}

func (s *Service) ListColors(ctx context.Context, variantID string, query string) ([]domain.Color, error) {
	return s.repo.ListColors(ctx, domain.ColorFilter{VariantID: variantID, Query: strings.TrimSpace(query)})
}

// ListStockUnits returns every color with its variant and product.
func (s *Service) ListStockUnits(ctx context.Context) ([]domain.StockUnit, error) {
	return s.repo.ListStockUnits(ctx)
}

func (s *Service) GetColor(ctx context.Context, id string) (*domain.Color, error) {
	return s.repo.GetColor(ctx, id)
}

// CreateColor creates the color with zero stock and books any opening
// quantity as a stock-in movement.
func (s *Service) CreateColor(ctx context.Context, req domain.ColorRequest) (*domain.Color, error) {
	req.ColorName = strings.TrimSpace(req.ColorName)
	req.ColorCode = strings.TrimSpace(req.ColorCode)
	if err := s.check(req); err != nil {
		return nil, err
	}

	var created *domain.Color
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetVariant(ctx, req.VariantID); errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: variant %s does not exist", store.ErrValidation, req.VariantID)
		} else if err != nil {
			return err
		}
		color, err := tx.CreateColor(ctx, domain.Color{
			ID:        xid.New("col"),
			VariantID: req.VariantID,
			ColorName: req.ColorName,
			ColorCode: req.ColorCode,
			CreatedAt: s.now(),
		})
		if err != nil {
			return err
		}
		if req.StockQuantity > 0 {
			color, err = tx.AdjustStock(ctx, domain.StockAdjustment{
				ColorID:     color.ID,
				Delta:       req.StockQuantity,
				Reason:      domain.MovementStockIn,
				ReferenceID: color.ID,
			})
			if err != nil {
				return err
			}
		}
		created = color
		return nil
	})
	if err != nil {
		return nil, err
	}

	if req.StockQuantity > 0 {
		s.metrics.StockAdjusted(domain.MovementStockIn)
	}
	s.committed(ctx, "color_create", "color", created.ID, fmt.Sprintf("variant=%s,name=%s,stock=%d", created.VariantID, created.ColorName, created.StockQuantity))
	return created, nil
}

// UpdateColor edits the name and code. Stock only moves through StockIn and
// sales.
func (s *Service) UpdateColor(ctx context.Context, id string, req domain.ColorUpdateRequest) (*domain.Color, error) {
	var updated *domain.Color
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		existing, err := tx.GetColor(ctx, id)
		if err != nil {
			return err
		}
		if req.ColorName != nil {
			name := strings.TrimSpace(*req.ColorName)
			if name == "" {
				return fmt.Errorf("%w: colorName is required", store.ErrValidation)
			}
			existing.ColorName = name
		}
		if req.ColorCode != nil {
			existing.ColorCode = strings.TrimSpace(*req.ColorCode)
		}
		updated, err = tx.UpdateColor(ctx, *existing)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, "color_update", "color", id, fmt.Sprintf("name=%s,code=%s", updated.ColorName, updated.ColorCode))
	return updated, nil
}

// DeleteColor is refused once any sale item references the color.
func (s *Service) DeleteColor(ctx context.Context, id string) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.DeleteColor(ctx, id)
	})
	if err != nil {
		return err
	}
	s.committed(ctx, "color_delete", "color", id, "")
	return nil
}

func (s *Service) StockIn(ctx context.Context, colorID string, req domain.StockInRequest) (*domain.Color, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be greater than zero", store.ErrValidation)
	}

	var updated *domain.Color
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		updated, err = tx.AdjustStock(ctx, domain.StockAdjustment{
			ColorID:     colorID,
			Delta:       req.Quantity,
			Reason:      domain.MovementStockIn,
			ReferenceID: strings.TrimSpace(req.Notes),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.StockAdjusted(domain.MovementStockIn)
	s.committed(ctx, "stock_in", "color", colorID, fmt.Sprintf("qty=%d,stock=%d,notes=%s", req.Quantity, updated.StockQuantity, req.Notes))
	return updated, nil
}

func (s *Service) BulkStockIn(ctx context.Context, reqs []domain.StockInRequest) ([]domain.BulkResult, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: no stock-in rows given", store.ErrValidation)
	}
	results := make([]domain.BulkResult, 0, len(reqs))
	for _, req := range reqs {
		res := domain.BulkResult{ID: req.ColorID, Success: true}
		if _, err := s.StockIn(ctx, req.ColorID, req); err != nil {
			res.Success = false
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *Service) ListStockMovements(ctx context.Context, colorID string, limit int) ([]domain.StockMovement, error) {
	if _, err := s.repo.GetColor(ctx, colorID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListStockMovements(ctx, colorID, limit)
}
