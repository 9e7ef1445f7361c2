package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCart_HasCode(t *testing.T) {
	cart := &Cart{Promotions: []Promotion{
		{Code: "save10"},
		{Code: "FREESHIP", IsAutomatic: true},
	}}

	tests := []struct {
		name string
		code string
		want bool
	}{
		{"exact", "save10", true},
		{"different case", "SAVE10", true},
		{"surrounding whitespace", "  Save10 ", true},
		{"automatic promotion", "freeship", true},
		{"absent", "WELCOME5", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cart.HasCode(tt.code))
		})
	}
}

func TestCart_HasCode_NilCart(t *testing.T) {
	var cart *Cart
	assert.False(t, cart.HasCode("SAVE10"))
}
