package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/storefront-discount-service/internal/model"
	"github.com/fairyhunter13/storefront-discount-service/internal/service"
	"github.com/fairyhunter13/storefront-discount-service/pkg/database"
)

// PoolInterface defines the database operations needed by repositories.
// This allows for easier testing with mocks.
type PoolInterface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// CartRepository provides data access for carts, their line items and
// applied promotions using pgx.
type CartRepository struct {
	pool PoolInterface
}

// NewCartRepository creates a new CartRepository with the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// NewCartRepositoryWithPool creates a new CartRepository with a custom pool interface.
// This is primarily used for testing.
func NewCartRepositoryWithPool(pool PoolInterface) *CartRepository {
	return &CartRepository{pool: pool}
}

const cartColumns = `id::text, region_id, currency_code, metadata, created_at`

// GetByID retrieves a cart with its items and promotions.
// Returns nil, nil if the cart is not found.
func (r *CartRepository) GetByID(ctx context.Context, id string) (*model.Cart, error) {
	cart, err := r.load(ctx, r.pool, `SELECT `+cartColumns+` FROM carts WHERE id = $1`, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cart %s: %w", id, err)
	}
	return cart, nil
}

// GetForUpdate retrieves a cart with a row lock (SELECT FOR UPDATE).
// This locks the row until the transaction completes.
// Returns service.ErrCartNotFound if the cart doesn't exist.
func (r *CartRepository) GetForUpdate(ctx context.Context, tx database.TxQuerier, id string) (*model.Cart, error) {
	cart, err := r.load(ctx, tx, `SELECT `+cartColumns+` FROM carts WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, service.ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get cart for update %s: %w", id, err)
	}
	return cart, nil
}

func (r *CartRepository) load(ctx context.Context, q database.TxQuerier, query, id string) (*model.Cart, error) {
	var cart model.Cart
	err := q.QueryRow(ctx, query, id).Scan(
		&cart.ID,
		&cart.RegionID,
		&cart.CurrencyCode,
		&cart.Metadata,
		&cart.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if cart.Metadata == nil {
		cart.Metadata = map[string]any{}
	}

	if cart.Items, err = r.items(ctx, q, id); err != nil {
		return nil, err
	}
	if cart.Promotions, err = r.promotions(ctx, q, id); err != nil {
		return nil, err
	}

	cart.Subtotal = decimal.Zero
	for _, li := range cart.Items {
		cart.Subtotal = cart.Subtotal.Add(li.Total())
	}
	return &cart, nil
}

func (r *CartRepository) items(ctx context.Context, q database.TxQuerier, cartID string) ([]model.LineItem, error) {
	query := `SELECT id::text, variant_id, title, quantity, unit_price
		FROM cart_items WHERE cart_id = $1 ORDER BY created_at, id`

	rows, err := q.Query(ctx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("get items for cart: %w", err)
	}
	defer rows.Close()

	items := []model.LineItem{}
	for rows.Next() {
		var li model.LineItem
		if err := rows.Scan(&li.ID, &li.VariantID, &li.Title, &li.Quantity, &li.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, li)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart item rows: %w", err)
	}
	return items, nil
}

func (r *CartRepository) promotions(ctx context.Context, q database.TxQuerier, cartID string) ([]model.Promotion, error) {
	query := `SELECT p.code, p.is_automatic, p.type, p.value, COALESCE(p.currency_code, '')
		FROM cart_promotions cp
		JOIN promotions p ON p.code = cp.code
		WHERE cp.cart_id = $1
		ORDER BY p.is_automatic DESC, p.code`

	rows, err := q.Query(ctx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("get promotions for cart: %w", err)
	}
	defer rows.Close()

	promos := []model.Promotion{}
	for rows.Next() {
		var p model.Promotion
		var typ string
		if err := rows.Scan(&p.Code, &p.IsAutomatic, &typ, &p.ApplicationMethod.Value, &p.ApplicationMethod.CurrencyCode); err != nil {
			return nil, fmt.Errorf("scan cart promotion: %w", err)
		}
		p.ApplicationMethod.Type = model.ApplicationType(typ)
		promos = append(promos, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart promotion rows: %w", err)
	}
	return promos, nil
}

// RegionCurrency returns the currency of a region.
// Returns service.ErrRegionNotFound if the region doesn't exist.
func (r *CartRepository) RegionCurrency(ctx context.Context, regionID string) (string, error) {
	var currency string
	err := r.pool.QueryRow(ctx, `SELECT currency_code FROM regions WHERE id = $1`, regionID).Scan(&currency)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", service.ErrRegionNotFound
		}
		return "", fmt.Errorf("get region %s: %w", regionID, err)
	}
	return currency, nil
}

// Create inserts a new empty cart.
func (r *CartRepository) Create(ctx context.Context, cart *model.Cart) error {
	meta, err := json.Marshal(cart.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO carts (id, region_id, currency_code, metadata) VALUES ($1, $2, $3, $4::jsonb)`,
		cart.ID, cart.RegionID, cart.CurrencyCode, string(meta))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return service.ErrRegionNotFound
		}
		return fmt.Errorf("insert cart: %w", err)
	}
	return nil
}

// InsertItem adds a line item to a cart.
// Must be called within a transaction after locking the cart row.
func (r *CartRepository) InsertItem(ctx context.Context, tx database.TxQuerier, cartID string, item *model.LineItem) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO cart_items (id, cart_id, variant_id, title, quantity, unit_price) VALUES ($1, $2, $3, $4, $5, $6)`,
		item.ID, cartID, item.VariantID, item.Title, item.Quantity, item.UnitPrice.StringFixed(2))
	if err != nil {
		return fmt.Errorf("insert item into cart %s: %w", cartID, err)
	}
	return nil
}

// ReplaceUserPromotions replaces the non-automatic promotions of a cart with codes.
// Must be called within a transaction after locking the cart row.
func (r *CartRepository) ReplaceUserPromotions(ctx context.Context, tx database.TxQuerier, cartID string, codes []string) error {
	_, err := tx.Exec(ctx,
		`DELETE FROM cart_promotions cp
		USING promotions p
		WHERE cp.code = p.code AND cp.cart_id = $1 AND NOT p.is_automatic`,
		cartID)
	if err != nil {
		return fmt.Errorf("clear promotions for cart %s: %w", cartID, err)
	}

	for _, code := range codes {
		_, err := tx.Exec(ctx,
			`INSERT INTO cart_promotions (cart_id, code) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			cartID, code)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23503" {
				return fmt.Errorf("%w: %s", service.ErrPromotionNotFound, code)
			}
			return fmt.Errorf("add promotion %s to cart %s: %w", code, cartID, err)
		}
	}
	return nil
}

// MergeMetadata shallow-merges patch into the cart's metadata.
// Keys whose value is nil are removed.
func (r *CartRepository) MergeMetadata(ctx context.Context, tx database.TxQuerier, cartID string, patch map[string]any) error {
	set := map[string]any{}
	removed := []string{}
	for k, v := range patch {
		if v == nil {
			removed = append(removed, k)
			continue
		}
		set[k] = v
	}

	encoded, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE carts SET metadata = (metadata - $3::text[]) || $2::jsonb WHERE id = $1`,
		cartID, string(encoded), removed)
	if err != nil {
		return fmt.Errorf("update metadata for cart %s: %w", cartID, err)
	}
	return nil
}
