package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/storefront-discount-service/internal/model"
	"github.com/fairyhunter13/storefront-discount-service/pkg/database"
)

// CartRepositoryInterface defines the interface for cart data access.
type CartRepositoryInterface interface {
	GetByID(ctx context.Context, id string) (*model.Cart, error)
	GetForUpdate(ctx context.Context, tx database.TxQuerier, id string) (*model.Cart, error)
	Create(ctx context.Context, cart *model.Cart) error
	RegionCurrency(ctx context.Context, regionID string) (string, error)
	ReplaceUserPromotions(ctx context.Context, tx database.TxQuerier, cartID string, codes []string) error
	MergeMetadata(ctx context.Context, tx database.TxQuerier, cartID string, patch map[string]any) error
	InsertItem(ctx context.Context, tx database.TxQuerier, cartID string, item *model.LineItem) error
}

// PromotionRepositoryInterface defines the interface for promotion data access.
type PromotionRepositoryInterface interface {
	GetByCode(ctx context.Context, code string) (*model.PromotionRule, error)
}

// TxBeginner defines the interface for beginning transactions.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// CommerceService is the local commerce backend: carts and promotions in PostgreSQL.
// Every cart mutation locks the cart row, so concurrent updates to one cart are serialised.
type CommerceService struct {
	pool          TxBeginner
	cartRepo      CartRepositoryInterface
	promotionRepo PromotionRepositoryInterface
	now           func() time.Time
}

// NewCommerceService creates a new CommerceService with the given pool and repositories.
func NewCommerceService(pool *pgxpool.Pool, cartRepo CartRepositoryInterface, promotionRepo PromotionRepositoryInterface) *CommerceService {
	return NewCommerceServiceWithTxBeginner(pool, cartRepo, promotionRepo)
}

// NewCommerceServiceWithTxBeginner creates a CommerceService with a custom TxBeginner.
// Primarily used for testing.
func NewCommerceServiceWithTxBeginner(pool TxBeginner, cartRepo CartRepositoryInterface, promotionRepo PromotionRepositoryInterface) *CommerceService {
	return &CommerceService{
		pool:          pool,
		cartRepo:      cartRepo,
		promotionRepo: promotionRepo,
		now:           time.Now,
	}
}

// RetrieveCart returns the cart, or nil, nil if it doesn't exist.
func (s *CommerceService) RetrieveCart(ctx context.Context, cartID string) (*model.Cart, error) {
	if _, err := uuid.Parse(cartID); err != nil {
		return nil, nil
	}
	cart, err := s.cartRepo.GetByID(ctx, cartID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	return cart, nil
}

// CreateOrGetCart returns the existing cart or creates an empty one in regionID.
func (s *CommerceService) CreateOrGetCart(ctx context.Context, cartID, regionID string) (*model.Cart, error) {
	if cartID != "" {
		cart, err := s.RetrieveCart(ctx, cartID)
		if err != nil {
			return nil, err
		}
		if cart != nil {
			return cart, nil
		}
	}

	currency, err := s.cartRepo.RegionCurrency(ctx, regionID)
	if err != nil {
		return nil, fmt.Errorf("region %s: %w", regionID, err)
	}

	cart := &model.Cart{
		ID:           uuid.NewString(),
		RegionID:     regionID,
		CurrencyCode: currency,
		Items:        []model.LineItem{},
		Promotions:   []model.Promotion{},
		Metadata:     map[string]any{},
		Subtotal:     decimal.Zero,
	}
	if err := s.cartRepo.Create(ctx, cart); err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}
	return cart, nil
}

// ApplyPromotionCodes replaces the cart's user-entered promotion codes with codes.
// Every code is validated first; one invalid code leaves the cart unchanged.
//
// Minimum-spend and minimum-item rules are only evaluated once the cart has
// items, so a code can be validated against an empty cart.
func (s *CommerceService) ApplyPromotionCodes(ctx context.Context, cartID string, codes []string) (*model.Cart, error) {
	if _, err := uuid.Parse(cartID); err != nil {
		return nil, ErrCartNotFound
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }() // Safe: no-op if committed

	// 1. Lock the cart row (SELECT FOR UPDATE)
	cart, err := s.cartRepo.GetForUpdate(ctx, tx, cartID)
	if err != nil {
		return nil, err
	}

	// 2. Validate every code against the locked cart
	normalized := normalizeCodes(codes)
	now := s.now()
	for _, code := range normalized {
		rule, err := s.promotionRepo.GetByCode(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("get promotion: %w", err)
		}
		if err := checkPromotion(rule, code, cart, now); err != nil {
			return nil, err
		}
	}

	// 3. Replace user-entered promotions
	if err := s.cartRepo.ReplaceUserPromotions(ctx, tx, cartID, normalized); err != nil {
		return nil, fmt.Errorf("replace promotions: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return s.cartRepo.GetByID(ctx, cartID)
}

// UpdateCartMetadata shallow-merges patch into the cart metadata. Nil values delete keys.
func (s *CommerceService) UpdateCartMetadata(ctx context.Context, cartID string, patch map[string]any) (*model.Cart, error) {
	if _, err := uuid.Parse(cartID); err != nil {
		return nil, ErrCartNotFound
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := s.cartRepo.GetForUpdate(ctx, tx, cartID); err != nil {
		return nil, err
	}
	if err := s.cartRepo.MergeMetadata(ctx, tx, cartID, patch); err != nil {
		return nil, fmt.Errorf("merge metadata: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return s.cartRepo.GetByID(ctx, cartID)
}

// LookupPromotion returns the value rule of a code that could be applied now.
// Cart-dependent requirements are not checked here.
func (s *CommerceService) LookupPromotion(ctx context.Context, code string) (*model.Promotion, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	rule, err := s.promotionRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("get promotion: %w", err)
	}
	if err := checkPromotion(rule, code, nil, s.now()); err != nil {
		return nil, err
	}
	promo := rule.Promotion
	return &promo, nil
}

// AddLineItem adds an item to the cart.
func (s *CommerceService) AddLineItem(ctx context.Context, cartID string, item model.LineItemInput) (*model.Cart, error) {
	if item.Quantity < 1 || strings.TrimSpace(item.VariantID) == "" || item.UnitPrice.IsNegative() {
		return nil, ErrInvalidRequest
	}
	if _, err := uuid.Parse(cartID); err != nil {
		return nil, ErrCartNotFound
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := s.cartRepo.GetForUpdate(ctx, tx, cartID); err != nil {
		return nil, err
	}
	li := &model.LineItem{
		ID:        uuid.NewString(),
		VariantID: item.VariantID,
		Title:     item.Title,
		Quantity:  item.Quantity,
		UnitPrice: item.UnitPrice,
	}
	if err := s.cartRepo.InsertItem(ctx, tx, cartID, li); err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return s.cartRepo.GetByID(ctx, cartID)
}

// checkPromotion validates rule for code. A nil cart skips cart requirements.
func checkPromotion(rule *model.PromotionRule, code string, cart *model.Cart, now time.Time) error {
	if rule == nil || rule.IsAutomatic || !rule.Active {
		return fmt.Errorf("%w: %s", ErrPromotionNotFound, code)
	}
	if rule.StartsAt != nil && now.Before(*rule.StartsAt) {
		return fmt.Errorf("%w: %s", ErrPromotionNotFound, code)
	}
	if rule.EndsAt != nil && !now.Before(*rule.EndsAt) {
		return fmt.Errorf("%w: %s", ErrPromotionExpired, code)
	}
	if rule.UsageLimit != nil && rule.UsedCount >= *rule.UsageLimit {
		return fmt.Errorf("%w: %s", ErrPromotionUsageLimit, code)
	}
	if cart.IsEmpty() {
		return nil
	}

	if rule.ApplicationMethod.Type == model.ApplicationFixed &&
		rule.ApplicationMethod.CurrencyCode != "" &&
		!strings.EqualFold(rule.ApplicationMethod.CurrencyCode, cart.CurrencyCode) {
		return fmt.Errorf("%w: %s is not valid in %s", ErrPromotionIneligible, code, cart.CurrencyCode)
	}
	if cart.Subtotal.LessThan(rule.MinSubtotal) {
		return fmt.Errorf("%w: %s needs a subtotal of %s", ErrPromotionIneligible, code, rule.MinSubtotal.StringFixed(2))
	}
	if itemCount(cart) < rule.MinItems {
		return fmt.Errorf("%w: %s needs %d items", ErrPromotionIneligible, code, rule.MinItems)
	}
	return nil
}

func itemCount(cart *model.Cart) int {
	n := 0
	for _, li := range cart.Items {
		n += li.Quantity
	}
	return n
}

// normalizeCodes uppercases, trims and de-duplicates codes, keeping order.
func normalizeCodes(codes []string) []string {
	out := make([]string, 0, len(codes))
	seen := make(map[string]bool, len(codes))
	for _, c := range codes {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
