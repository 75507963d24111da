package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCouponDiscount(t *testing.T) {
	tests := []struct {
		name   string
		coupon Coupon
		amount int64
		want   string
	}{
		{
			name:   "percentage",
			coupon: Coupon{DiscountType: DiscountTypePercentage, DiscountValue: decimal.NewFromInt(20)},
			amount: 500,
			want:   "100",
		},
		{
			name: "percentage capped by max discount",
			coupon: Coupon{
				DiscountType:  DiscountTypePercentage,
				DiscountValue: decimal.NewFromInt(20),
				MaxDiscount:   decimal.NewNullDecimal(decimal.NewFromInt(150)),
			},
			amount: 1000,
			want:   "150",
		},
		{
			name: "percentage under the cap",
			coupon: Coupon{
				DiscountType:  DiscountTypePercentage,
				DiscountValue: decimal.NewFromInt(10),
				MaxDiscount:   decimal.NewNullDecimal(decimal.NewFromInt(150)),
			},
			amount: 1000,
			want:   "100",
		},
		{
			name:   "fixed",
			coupon: Coupon{DiscountType: DiscountTypeFixed, DiscountValue: decimal.NewFromInt(50)},
			amount: 200,
			want:   "50",
		},
		{
			name:   "fixed clamped to amount",
			coupon: Coupon{DiscountType: DiscountTypeFixed, DiscountValue: decimal.NewFromInt(300)},
			amount: 200,
			want:   "200",
		},
		{
			name:   "unknown type",
			coupon: Coupon{DiscountType: "bogus", DiscountValue: decimal.NewFromInt(50)},
			amount: 200,
			want:   "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.coupon.Discount(decimal.NewFromInt(tt.amount))
			assert.Equal(t, tt.want, got.String())
		})
	}
}
