package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaoyoufung/lmwn-swe-assignment/internal/domain/discount"
	"github.com/xiaoyoufung/lmwn-swe-assignment/internal/domain/money"
)

func TestNewLine(t *testing.T) {
	valid := LineParams{ID: "l1", ItemID: "steak", Name: "Ribeye Steak", Quantity: 2, UnitPrice: 3495}

	l, err := NewLine(valid)
	require.NoError(t, err)
	assert.Equal(t, money.Minor(6990), l.Subtotal())
	assert.Equal(t, money.Minor(0), l.Discount())
	assert.Equal(t, money.Minor(6990), l.Total())

	tests := []struct {
		name   string
		modify func(p *LineParams)
		field  string
	}{
		{name: "blank id", modify: func(p *LineParams) { p.ID = "" }, field: "line.id"},
		{name: "blank item", modify: func(p *LineParams) { p.ItemID = " " }, field: "line.itemId"},
		{name: "blank name", modify: func(p *LineParams) { p.Name = "" }, field: "line.name"},
		{name: "zero quantity", modify: func(p *LineParams) { p.Quantity = 0 }, field: "line.quantity"},
		{name: "negative price", modify: func(p *LineParams) { p.UnitPrice = -1 }, field: "line.unitPrice"},
		{name: "subtotal overflow", modify: func(p *LineParams) { p.Quantity, p.UnitPrice = 4, 1<<62 }, field: "line.subtotal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.modify(&p)
			_, err := NewLine(p)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}

	free := valid
	free.UnitPrice = 0
	_, err = NewLine(free)
	require.NoError(t, err, "complimentary items are allowed")
}

func TestLineQuantityChanges(t *testing.T) {
	l, err := NewLine(LineParams{ID: "l1", ItemID: "coffee", Name: "Coffee", Quantity: 2, UnitPrice: 350})
	require.NoError(t, err)

	up, err := l.IncreaseQuantity(3)
	require.NoError(t, err)
	assert.Equal(t, 5, up.Quantity())
	assert.Equal(t, 2, l.Quantity(), "receiver unchanged")
	assert.True(t, up.Equal(l))

	down, err := up.DecreaseQuantity(4)
	require.NoError(t, err)
	assert.Equal(t, 1, down.Quantity())

	_, err = down.DecreaseQuantity(1)
	require.ErrorIs(t, err, ErrValidation, "quantity never drops below one")

	_, err = l.IncreaseQuantity(0)
	require.ErrorIs(t, err, ErrValidation)
	_, err = l.DecreaseQuantity(-1)
	require.ErrorIs(t, err, ErrValidation)

	set, err := l.UpdateQuantity(7)
	require.NoError(t, err)
	assert.Equal(t, money.Minor(2450), set.Total())

	_, err = l.UpdateQuantity(0)
	require.ErrorIs(t, err, ErrValidation)

	pricey, err := NewLine(LineParams{ID: "l2", ItemID: "caviar", Name: "Caviar", Quantity: 1, UnitPrice: 1 << 62})
	require.NoError(t, err)
	_, err = pricey.IncreaseQuantity(3)
	require.ErrorIs(t, err, ErrValidation, "quantity that overflows the subtotal")
}

func TestAppliedDiscountValidation(t *testing.T) {
	base := AppliedDiscountParams{ID: "ad1", OrderID: "o1", DiscountID: "d1", Type: discount.Percent, Value: 20, Amount: 837}

	d, err := NewAppliedDiscount(base)
	require.NoError(t, err)
	assert.False(t, d.CreatedAt().IsZero())
	assert.Equal(t, money.Minor(837), d.Amount())

	stored := base
	stored.CreatedAt = testNow
	r, err := ReconstituteAppliedDiscount(stored)
	require.NoError(t, err)
	assert.Equal(t, testNow, r.CreatedAt())
	assert.True(t, r.Equal(d))

	tests := []struct {
		name   string
		modify func(p *AppliedDiscountParams)
	}{
		{name: "blank id", modify: func(p *AppliedDiscountParams) { p.ID = " " }},
		{name: "blank discount id", modify: func(p *AppliedDiscountParams) { p.DiscountID = "" }},
		{name: "percent over 100", modify: func(p *AppliedDiscountParams) { p.Value = 101 }},
		{name: "negative percent", modify: func(p *AppliedDiscountParams) { p.Value = -1 }},
		{name: "negative fixed", modify: func(p *AppliedDiscountParams) { p.Type = discount.Fixed; p.Value = -500 }},
		{name: "negative amount", modify: func(p *AppliedDiscountParams) { p.Amount = -1 }},
		{name: "unknown type", modify: func(p *AppliedDiscountParams) { p.Type = "BOGO" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.modify(&p)
			_, err := NewAppliedDiscount(p)
			require.ErrorIs(t, err, ErrValidation)

			_, err = ReconstituteAppliedDiscount(p)
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}
