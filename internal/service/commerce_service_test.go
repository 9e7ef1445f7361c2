package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/storefront-discount-service/internal/discount"
	"github.com/fairyhunter13/storefront-discount-service/internal/model"
	"github.com/fairyhunter13/storefront-discount-service/pkg/database"
)

const testCartID = "0b6c1f0e-4f55-4a8b-9d65-5b0d1c2e3f40"

// mockCartRepository is a mock implementation of CartRepositoryInterface.
type mockCartRepository struct {
	getByIDFn               func(ctx context.Context, id string) (*model.Cart, error)
	getForUpdateFn          func(ctx context.Context, tx database.TxQuerier, id string) (*model.Cart, error)
	createFn                func(ctx context.Context, cart *model.Cart) error
	regionCurrencyFn        func(ctx context.Context, regionID string) (string, error)
	replaceUserPromotionsFn func(ctx context.Context, tx database.TxQuerier, cartID string, codes []string) error
	mergeMetadataFn         func(ctx context.Context, tx database.TxQuerier, cartID string, patch map[string]any) error
	insertItemFn            func(ctx context.Context, tx database.TxQuerier, cartID string, item *model.LineItem) error
}

func (m *mockCartRepository) GetByID(ctx context.Context, id string) (*model.Cart, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockCartRepository) GetForUpdate(ctx context.Context, tx database.TxQuerier, id string) (*model.Cart, error) {
	if m.getForUpdateFn != nil {
		return m.getForUpdateFn(ctx, tx, id)
	}
	return &model.Cart{ID: id}, nil
}

func (m *mockCartRepository) Create(ctx context.Context, cart *model.Cart) error {
	if m.createFn != nil {
		return m.createFn(ctx, cart)
	}
	return nil
}

func (m *mockCartRepository) RegionCurrency(ctx context.Context, regionID string) (string, error) {
	if m.regionCurrencyFn != nil {
		return m.regionCurrencyFn(ctx, regionID)
	}
	return "gbp", nil
}

func (m *mockCartRepository) ReplaceUserPromotions(ctx context.Context, tx database.TxQuerier, cartID string, codes []string) error {
	if m.replaceUserPromotionsFn != nil {
		return m.replaceUserPromotionsFn(ctx, tx, cartID, codes)
	}
	return nil
}

func (m *mockCartRepository) MergeMetadata(ctx context.Context, tx database.TxQuerier, cartID string, patch map[string]any) error {
	if m.mergeMetadataFn != nil {
		return m.mergeMetadataFn(ctx, tx, cartID, patch)
	}
	return nil
}

func (m *mockCartRepository) InsertItem(ctx context.Context, tx database.TxQuerier, cartID string, item *model.LineItem) error {
	if m.insertItemFn != nil {
		return m.insertItemFn(ctx, tx, cartID, item)
	}
	return nil
}

// mockPromotionRepository is a mock implementation of PromotionRepositoryInterface.
type mockPromotionRepository struct {
	rules map[string]*model.PromotionRule
	err   error
}

func (m *mockPromotionRepository) GetByCode(ctx context.Context, code string) (*model.PromotionRule, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.rules[code], nil
}

// mockTx is a mock implementation of pgx.Tx for testing transactions.
type mockTx struct {
	commitFn   func(ctx context.Context) error
	rollbackFn func(ctx context.Context) error
	committed  bool
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("nested transactions not supported")
}

func (m *mockTx) Commit(ctx context.Context) error {
	m.committed = true
	if m.commitFn != nil {
		return m.commitFn(ctx)
	}
	return nil
}

func (m *mockTx) Rollback(ctx context.Context) error {
	if m.rollbackFn != nil {
		return m.rollbackFn(ctx)
	}
	return nil
}

func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}

func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	return nil
}

func (m *mockTx) LargeObjects() pgx.LargeObjects {
	return pgx.LargeObjects{}
}

func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}

func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}

func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

func (m *mockTx) Conn() *pgx.Conn {
	return nil
}

// mockTxBeginner is a mock implementation of TxBeginner.
type mockTxBeginner struct {
	beginFn func(ctx context.Context) (pgx.Tx, error)
}

func (m *mockTxBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	if m.beginFn != nil {
		return m.beginFn(ctx)
	}
	return &mockTx{}, nil
}

func intPtr(i int) *int {
	return &i
}

func timePtr(t time.Time) *time.Time {
	return &t
}

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func testRules() map[string]*model.PromotionRule {
	return map[string]*model.PromotionRule{
		"SAVE10": {
			Promotion: model.Promotion{Code: "SAVE10", ApplicationMethod: model.ApplicationMethod{
				Type: model.ApplicationPercentage, Value: decimal.NewFromInt(10),
			}},
			Active: true,
		},
		"BIGSPEND": {
			Promotion: model.Promotion{Code: "BIGSPEND", ApplicationMethod: model.ApplicationMethod{
				Type: model.ApplicationFixed, Value: decimal.NewFromInt(15), CurrencyCode: "gbp",
			}},
			Active:      true,
			MinSubtotal: decimal.NewFromInt(100),
		},
		"OLD": {
			Promotion: model.Promotion{Code: "OLD"},
			Active:    true,
			EndsAt:    timePtr(testNow.Add(-time.Hour)),
		},
		"SOON": {
			Promotion: model.Promotion{Code: "SOON"},
			Active:    true,
			StartsAt:  timePtr(testNow.Add(time.Hour)),
		},
		"GONE": {
			Promotion:  model.Promotion{Code: "GONE"},
			Active:     true,
			UsageLimit: intPtr(5),
			UsedCount:  5,
		},
		"OFF": {
			Promotion: model.Promotion{Code: "OFF"},
		},
		"USD5": {
			Promotion: model.Promotion{Code: "USD5", ApplicationMethod: model.ApplicationMethod{
				Type: model.ApplicationFixed, Value: decimal.NewFromInt(5), CurrencyCode: "usd",
			}},
			Active: true,
		},
		"PAIR": {
			Promotion: model.Promotion{Code: "PAIR"},
			Active:    true,
			MinItems:  2,
		},
	}
}

func cartWithSubtotal(subtotal string, qty int) *model.Cart {
	price := decimal.RequireFromString(subtotal)
	return &model.Cart{
		ID:           testCartID,
		CurrencyCode: "gbp",
		Items:        []model.LineItem{{ID: "li_1", VariantID: "v1", Quantity: qty, UnitPrice: price.Div(decimal.NewFromInt(int64(qty)))}},
		Subtotal:     price,
	}
}

func newTestService(pool TxBeginner, carts *mockCartRepository) *CommerceService {
	svc := NewCommerceServiceWithTxBeginner(pool, carts, &mockPromotionRepository{rules: testRules()})
	svc.now = func() time.Time { return testNow }
	return svc
}

func TestCommerceService_RetrieveCart_InvalidIDIsMissing(t *testing.T) {
	called := false
	svc := newTestService(&mockTxBeginner{}, &mockCartRepository{
		getByIDFn: func(ctx context.Context, id string) (*model.Cart, error) {
			called = true
			return nil, nil
		},
	})

	cart, err := svc.RetrieveCart(context.Background(), "not-a-uuid")

	require.NoError(t, err)
	assert.Nil(t, cart)
	assert.False(t, called, "repository should not be queried with a malformed id")
}

func TestCommerceService_CreateOrGetCart_ReturnsExisting(t *testing.T) {
	existing := &model.Cart{ID: testCartID}
	svc := newTestService(&mockTxBeginner{}, &mockCartRepository{
		getByIDFn: func(ctx context.Context, id string) (*model.Cart, error) { return existing, nil },
		createFn: func(ctx context.Context, cart *model.Cart) error {
			t.Fatal("should not create a cart")
			return nil
		},
	})

	cart, err := svc.CreateOrGetCart(context.Background(), testCartID, "reg_gb")

	require.NoError(t, err)
	assert.Same(t, existing, cart)
}

func TestCommerceService_CreateOrGetCart_CreatesInRegion(t *testing.T) {
	var created *model.Cart
	svc := newTestService(&mockTxBeginner{}, &mockCartRepository{
		regionCurrencyFn: func(ctx context.Context, regionID string) (string, error) {
			assert.Equal(t, "reg_eu", regionID)
			return "eur", nil
		},
		createFn: func(ctx context.Context, cart *model.Cart) error {
			created = cart
			return nil
		},
	})

	cart, err := svc.CreateOrGetCart(context.Background(), "", "reg_eu")

	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Same(t, created, cart)
	assert.NotEmpty(t, cart.ID)
	assert.Equal(t, "eur", cart.CurrencyCode)
	assert.True(t, cart.IsEmpty())
	assert.Empty(t, cart.UserCodes())
}

func TestCommerceService_CreateOrGetCart_UnknownRegion(t *testing.T) {
	svc := newTestService(&mockTxBeginner{}, &mockCartRepository{
		regionCurrencyFn: func(ctx context.Context, regionID string) (string, error) {
			return "", ErrRegionNotFound
		},
	})

	_, err := svc.CreateOrGetCart(context.Background(), "", "reg_mars")

	assert.ErrorIs(t, err, ErrRegionNotFound)
}

func TestCommerceService_ApplyPromotionCodes_Success(t *testing.T) {
	tx := &mockTx{}
	var replaced []string
	final := &model.Cart{ID: testCartID, Promotions: []model.Promotion{{Code: "SAVE10"}}}
	svc := newTestService(&mockTxBeginner{beginFn: func(ctx context.Context) (pgx.Tx, error) { return tx, nil }},
		&mockCartRepository{
			getForUpdateFn: func(ctx context.Context, q database.TxQuerier, id string) (*model.Cart, error) {
				assert.Same(t, tx, q, "lock must run inside the transaction")
				return cartWithSubtotal("50.00", 1), nil
			},
			replaceUserPromotionsFn: func(ctx context.Context, q database.TxQuerier, cartID string, codes []string) error {
				replaced = codes
				return nil
			},
			getByIDFn: func(ctx context.Context, id string) (*model.Cart, error) { return final, nil },
		})

	cart, err := svc.ApplyPromotionCodes(context.Background(), testCartID, []string{" save10 ", "SAVE10"})

	require.NoError(t, err)
	assert.Same(t, final, cart)
	assert.Equal(t, []string{"SAVE10"}, replaced)
	assert.True(t, tx.committed)
}

func TestCommerceService_ApplyPromotionCodes_EmptyListClearsCodes(t *testing.T) {
	var replaced []string
	svc := newTestService(&mockTxBeginner{}, &mockCartRepository{
		replaceUserPromotionsFn: func(ctx context.Context, q database.TxQuerier, cartID string, codes []string) error {
			replaced = codes
			return nil
		},
	})

	_, err := svc.ApplyPromotionCodes(context.Background(), testCartID, nil)

	require.NoError(t, err)
	assert.NotNil(t, replaced)
	assert.Empty(t, replaced)
}

func TestCommerceService_ApplyPromotionCodes_RuleFailures(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		cart    *model.Cart
		wantErr error
		kind    error
	}{
		{"unknown", "NOPE", cartWithSubtotal("50", 1), ErrPromotionNotFound, discount.ErrNotFound},
		{"inactive", "OFF", cartWithSubtotal("50", 1), ErrPromotionNotFound, discount.ErrNotFound},
		{"not started", "SOON", cartWithSubtotal("50", 1), ErrPromotionNotFound, discount.ErrNotFound},
		{"expired", "OLD", cartWithSubtotal("50", 1), ErrPromotionExpired, discount.ErrNotFound},
		{"usage limit", "GONE", cartWithSubtotal("50", 1), ErrPromotionUsageLimit, discount.ErrUsageLimit},
		{"min subtotal", "BIGSPEND", cartWithSubtotal("50", 1), ErrPromotionIneligible, discount.ErrIneligible},
		{"min items", "PAIR", cartWithSubtotal("50", 1), ErrPromotionIneligible, discount.ErrIneligible},
		{"currency", "USD5", cartWithSubtotal("50", 1), ErrPromotionIneligible, discount.ErrIneligible},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := &mockTx{}
			replaceCalled := false
			svc := newTestService(&mockTxBeginner{beginFn: func(ctx context.Context) (pgx.Tx, error) { return tx, nil }},
				&mockCartRepository{
					getForUpdateFn: func(ctx context.Context, q database.TxQuerier, id string) (*model.Cart, error) {
						return tt.cart, nil
					},
					replaceUserPromotionsFn: func(ctx context.Context, q database.TxQuerier, cartID string, codes []string) error {
						replaceCalled = true
						return nil
					},
				})

			_, err := svc.ApplyPromotionCodes(context.Background(), testCartID, []string{tt.code})

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, tt.kind)
			assert.False(t, replaceCalled, "cart must stay unchanged")
			assert.False(t, tx.committed)
		})
	}
}

func TestCommerceService_ApplyPromotionCodes_EmptyCartSkipsCartRules(t *testing.T) {
	svc := newTestService(&mockTxBeginner{}, &mockCartRepository{
		getForUpdateFn: func(ctx context.Context, q database.TxQuerier, id string) (*model.Cart, error) {
			return &model.Cart{ID: id, CurrencyCode: "gbp"}, nil
		},
	})

	_, err := svc.ApplyPromotionCodes(context.Background(), testCartID, []string{"BIGSPEND", "PAIR", "USD5"})

	require.NoError(t, err)
}

func TestCommerceService_ApplyPromotionCodes_CartNotFound(t *testing.T) {
	svc := newTestService(&mockTxBeginner{}, &mockCartRepository{
		getForUpdateFn: func(ctx context.Context, q database.TxQuerier, id string) (*model.Cart, error) {
			return nil, ErrCartNotFound
		},
	})

	_, err := svc.ApplyPromotionCodes(context.Background(), testCartID, []string{"SAVE10"})
	assert.ErrorIs(t, err, discount.ErrCartUnavailable)

	_, err = svc.ApplyPromotionCodes(context.Background(), "bogus", []string{"SAVE10"})
	assert.ErrorIs(t, err, ErrCartNotFound)
}

func TestCommerceService_ApplyPromotionCodes_BeginError(t *testing.T) {
	svc := newTestService(&mockTxBeginner{beginFn: func(ctx context.Context) (pgx.Tx, error) {
		return nil, errors.New("pool exhausted")
	}}, &mockCartRepository{})

	_, err := svc.ApplyPromotionCodes(context.Background(), testCartID, []string{"SAVE10"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin tx")
}

func TestCommerceService_ApplyPromotionCodes_CommitError(t *testing.T) {
	commitErr := errors.New("serialization failure")
	tx := &mockTx{commitFn: func(ctx context.Context) error { return commitErr }}
	svc := newTestService(&mockTxBeginner{beginFn: func(ctx context.Context) (pgx.Tx, error) { return tx, nil }},
		&mockCartRepository{})

	_, err := svc.ApplyPromotionCodes(context.Background(), testCartID, []string{"SAVE10"})

	assert.ErrorIs(t, err, commitErr)
}

func TestCommerceService_UpdateCartMetadata(t *testing.T) {
	var gotPatch map[string]any
	tx := &mockTx{}
	svc := newTestService(&mockTxBeginner{beginFn: func(ctx context.Context) (pgx.Tx, error) { return tx, nil }},
		&mockCartRepository{
			mergeMetadataFn: func(ctx context.Context, q database.TxQuerier, cartID string, patch map[string]any) error {
				gotPatch = patch
				return nil
			},
			getByIDFn: func(ctx context.Context, id string) (*model.Cart, error) {
				return &model.Cart{ID: id, Metadata: map[string]any{}}, nil
			},
		})

	cart, err := svc.UpdateCartMetadata(context.Background(), testCartID, map[string]any{"pending_discount_code": nil})

	require.NoError(t, err)
	assert.Equal(t, testCartID, cart.ID)
	assert.Contains(t, gotPatch, "pending_discount_code")
	assert.True(t, tx.committed)
}

func TestCommerceService_LookupPromotion(t *testing.T) {
	svc := newTestService(&mockTxBeginner{}, &mockCartRepository{})

	promo, err := svc.LookupPromotion(context.Background(), "bigspend")
	require.NoError(t, err)
	assert.Equal(t, "BIGSPEND", promo.Code)
	assert.Equal(t, model.ApplicationFixed, promo.ApplicationMethod.Type)
	assert.True(t, decimal.NewFromInt(15).Equal(promo.ApplicationMethod.Value))

	_, err = svc.LookupPromotion(context.Background(), "OLD")
	assert.ErrorIs(t, err, ErrPromotionExpired)

	_, err = svc.LookupPromotion(context.Background(), "NOPE")
	assert.ErrorIs(t, err, discount.ErrNotFound)
}

func TestCommerceService_LookupPromotion_RepositoryError(t *testing.T) {
	repoErr := errors.New("database connection failed")
	svc := NewCommerceServiceWithTxBeginner(&mockTxBeginner{}, &mockCartRepository{}, &mockPromotionRepository{err: repoErr})

	_, err := svc.LookupPromotion(context.Background(), "SAVE10")

	assert.ErrorIs(t, err, repoErr)
}

func TestCommerceService_AddLineItem(t *testing.T) {
	var inserted *model.LineItem
	svc := newTestService(&mockTxBeginner{}, &mockCartRepository{
		insertItemFn: func(ctx context.Context, q database.TxQuerier, cartID string, item *model.LineItem) error {
			inserted = item
			return nil
		},
		getByIDFn: func(ctx context.Context, id string) (*model.Cart, error) {
			return &model.Cart{ID: id, Items: []model.LineItem{*inserted}}, nil
		},
	})

	cart, err := svc.AddLineItem(context.Background(), testCartID, model.LineItemInput{
		VariantID: "var_tee",
		Title:     "Tee",
		Quantity:  2,
		UnitPrice: decimal.RequireFromString("12.50"),
	})

	require.NoError(t, err)
	require.NotNil(t, inserted)
	assert.NotEmpty(t, inserted.ID)
	assert.Equal(t, "var_tee", inserted.VariantID)
	assert.False(t, cart.IsEmpty())
}

func TestCommerceService_AddLineItem_InvalidInput(t *testing.T) {
	svc := newTestService(&mockTxBeginner{}, &mockCartRepository{})

	_, err := svc.AddLineItem(context.Background(), testCartID, model.LineItemInput{VariantID: "v", Quantity: 0})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.AddLineItem(context.Background(), testCartID, model.LineItemInput{VariantID: " ", Quantity: 1})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestServiceErrors_ClassifyWithoutStringMatching(t *testing.T) {
	tests := []struct {
		err  error
		kind discount.Kind
	}{
		{ErrPromotionNotFound, discount.KindNotFound},
		{ErrPromotionExpired, discount.KindNotFound},
		{ErrPromotionIneligible, discount.KindIneligible},
		{ErrPromotionUsageLimit, discount.KindUsageLimit},
		{ErrCartNotFound, discount.KindCartUnavailable},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.kind, discount.Classify(tt.err).Kind, tt.err.Error())
	}
}
