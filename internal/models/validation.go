package models

import "github.com/shopspring/decimal"

// ValidationResult is the outcome of checking a coupon against a candidate
// purchase. It is never persisted; a fresh one is computed per call.
type ValidationResult struct {
	IsValid        bool            `json:"is_valid"`
	Coupon         *Coupon         `json:"coupon,omitempty"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
	Message        string          `json:"message"`
}
