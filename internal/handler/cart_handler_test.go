package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/storefront-discount-service/internal/discount"
	"github.com/fairyhunter13/storefront-discount-service/internal/model"
	"github.com/fairyhunter13/storefront-discount-service/internal/storefront"
)

func TestCartHandler_AddLineItem_NewCartAppliesPendingCode(t *testing.T) {
	var gotItem model.LineItemInput
	flow := &mockFlow{addItemFn: func(ctx context.Context, sess *storefront.Session, req storefront.Request, item model.LineItemInput) (*model.Cart, storefront.Outcome, error) {
		gotItem = item
		gen := sess.Store.StartApplying("SAVE10")
		sess.Store.ApplySuccess(gen, false, "Discount code SAVE10 applied.")
		cart := &model.Cart{
			ID:         "cart_new",
			Items:      []model.LineItem{{VariantID: item.VariantID, Quantity: item.Quantity, UnitPrice: item.UnitPrice}},
			Promotions: []model.Promotion{{Code: "SAVE10"}},
		}
		return cart, storefront.Outcome{State: sess.Store.Snapshot(), CartID: "cart_new"}, nil
	}}
	app, _ := setupDiscountTestApp(flow)

	resp, err := app.Test(postJSON("/api/cart/line-items", `{"variant_id":"variant_tee_m","quantity":2,"unit_price":"12.50"}`))
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, "variant_tee_m", gotItem.VariantID)
	assert.Equal(t, 2, gotItem.Quantity)
	assert.True(t, decimal.RequireFromString("12.50").Equal(gotItem.UnitPrice))

	cookie := findCookie(resp, CartCookie)
	require.NotNil(t, cookie)
	assert.Equal(t, "cart_new", cookie.Value)

	result := decodeDiscount(t, resp)
	cart := result["cart"].(map[string]any)
	assert.Equal(t, "cart_new", cart["id"])
	state := result["discount"].(map[string]any)["state"].(map[string]any)
	assert.Equal(t, true, state["is_applied"])
	assert.Equal(t, "SAVE10", state["last_code"])
}

func TestCartHandler_AddLineItem_ExistingCart(t *testing.T) {
	flow := &mockFlow{}
	app, _ := setupDiscountTestApp(flow)

	req := postJSON("/api/cart/line-items", `{"variant_id":"v1","quantity":1}`)
	req.AddCookie(&http.Cookie{Name: CartCookie, Value: "cart_1"})
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, "cart_1", flow.lastReq.CartID)
	assert.Nil(t, findCookie(resp, CartCookie), "cart cookie is only set for new carts")
}

func TestCartHandler_AddLineItem_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"missing variant", `{"quantity":1}`, "invalid request: variant_id is required"},
		{"blank variant", `{"variant_id":"  ","quantity":1}`, "invalid request: variant_id is required"},
		{"zero quantity", `{"variant_id":"v1","quantity":0}`, "invalid request: quantity must be between 1 and 1000"},
		{"huge quantity", `{"variant_id":"v1","quantity":1001}`, "invalid request: quantity must be between 1 and 1000"},
		{"negative price", `{"variant_id":"v1","quantity":1,"unit_price":"-1"}`, "invalid request: unit_price must not be negative"},
		{"bad body", `not json`, "invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flow := &mockFlow{addItemFn: func(ctx context.Context, sess *storefront.Session, req storefront.Request, item model.LineItemInput) (*model.Cart, storefront.Outcome, error) {
				t.Fatal("invalid items must not reach the flow")
				return nil, storefront.Outcome{}, nil
			}}
			app, _ := setupDiscountTestApp(flow)

			resp, err := app.Test(postJSON("/api/cart/line-items", tt.body))
			require.NoError(t, err)

			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.wantErr, decodeDiscount(t, resp)["error"])
		})
	}
}

func TestCartHandler_AddLineItem_BackendErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		wantErr string
	}{
		{"cart missing", fmt.Errorf("load cart: %w", discount.ErrCartUnavailable), fiber.StatusNotFound, discount.MsgCartUnavailable},
		{"backend down", fmt.Errorf("%w: connection refused", discount.ErrNetwork), fiber.StatusBadGateway, discount.MsgNetwork},
		{"unrecognised", errors.New("inventory service rejected the variant"), fiber.StatusUnprocessableEntity, "inventory service rejected the variant"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flow := &mockFlow{addItemFn: func(ctx context.Context, sess *storefront.Session, req storefront.Request, item model.LineItemInput) (*model.Cart, storefront.Outcome, error) {
				return nil, storefront.Outcome{}, tt.err
			}}
			app, _ := setupDiscountTestApp(flow)

			resp, err := app.Test(postJSON("/api/cart/line-items", `{"variant_id":"v1","quantity":1}`))
			require.NoError(t, err)

			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.wantErr, decodeDiscount(t, resp)["error"])
		})
	}
}
