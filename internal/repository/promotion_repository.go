package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/storefront-discount-service/internal/model"
)

// PromotionRepository provides read access to promotion definitions.
type PromotionRepository struct {
	pool PoolInterface
}

// NewPromotionRepository creates a new PromotionRepository with the given pool.
func NewPromotionRepository(pool *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

// NewPromotionRepositoryWithPool creates a new PromotionRepository with a custom pool interface.
// This is primarily used for testing.
func NewPromotionRepositoryWithPool(pool PoolInterface) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

// GetByCode retrieves a promotion by its code.
// Returns nil, nil if the promotion is not found (service layer handles this).
func (r *PromotionRepository) GetByCode(ctx context.Context, code string) (*model.PromotionRule, error) {
	query := `SELECT code, is_automatic, type, value, COALESCE(currency_code, ''),
		active, starts_at, ends_at, usage_limit, used_count, min_subtotal, min_items
		FROM promotions WHERE code = $1`

	var rule model.PromotionRule
	var typ string
	err := r.pool.QueryRow(ctx, query, code).Scan(
		&rule.Code,
		&rule.IsAutomatic,
		&typ,
		&rule.ApplicationMethod.Value,
		&rule.ApplicationMethod.CurrencyCode,
		&rule.Active,
		&rule.StartsAt,
		&rule.EndsAt,
		&rule.UsageLimit,
		&rule.UsedCount,
		&rule.MinSubtotal,
		&rule.MinItems,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get promotion %s: %w", code, err)
	}
	rule.ApplicationMethod.Type = model.ApplicationType(typ)
	return &rule, nil
}
