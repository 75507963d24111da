package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/membercore/coupon-service/internal/cache"
	"github.com/membercore/coupon-service/internal/models"
	"github.com/membercore/coupon-service/internal/repository"
	"github.com/membercore/coupon-service/internal/testutil"
)

type CouponServiceSuite struct {
	suite.Suite
	ctx      context.Context
	svc      *CouponService
	coupons  *testutil.InMemoryCouponStore
	settings *testutil.InMemorySettingsStore
}

func TestCouponService(t *testing.T) {
	suite.Run(t, new(CouponServiceSuite))
}

func (s *CouponServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.coupons = testutil.NewInMemoryCouponStore()
	s.settings = testutil.NewInMemorySettingsStore()
	s.svc = NewCouponService(s.coupons, s.settings, cache.NewCouponCache(time.Minute), zap.NewNop().Sugar())
}

func (s *CouponServiceSuite) seed(c models.Coupon) *models.Coupon {
	if c.DiscountType == "" {
		c.DiscountType = models.DiscountTypePercentage
	}
	c.IsActive = true
	created, err := s.coupons.Create(s.ctx, &c)
	s.Require().NoError(err)
	return created
}

func (s *CouponServiceSuite) disableCoupons() {
	s.svc.UpdateSettings(s.ctx, UpdateSettingsInput{IsEnabled: lo.ToPtr(false)})
}

func amount(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func (s *CouponServiceSuite) TestValidateDisabledSettings() {
	s.seed(models.Coupon{Code: "SAVE10", DiscountValue: decimal.NewFromInt(10)})
	s.disableCoupons()

	res := s.svc.Validate(s.ctx, "SAVE10", amount(100), 1)
	s.False(res.IsValid)
	s.Equal("Coupons are currently disabled.", res.Message)
	s.Equal("0", res.DiscountAmount.String())
	s.Equal("100", res.FinalAmount.String())
}

func (s *CouponServiceSuite) TestValidateUnknownCode() {
	res := s.svc.Validate(s.ctx, "NOPE", amount(100), 1)
	s.False(res.IsValid)
	s.Equal("Invalid coupon code.", res.Message)
	s.Equal("100", res.FinalAmount.String())
}

func (s *CouponServiceSuite) TestValidateInactiveCoupon() {
	created := s.seed(models.Coupon{Code: "OFF", DiscountValue: decimal.NewFromInt(10)})
	_, err := s.svc.Update(s.ctx, created.ID, UpdateCouponInput{IsActive: lo.ToPtr(false)})
	s.Require().NoError(err)

	res := s.svc.Validate(s.ctx, "OFF", amount(100), 1)
	s.False(res.IsValid)
	s.Equal("Invalid coupon code.", res.Message)
}

func (s *CouponServiceSuite) TestValidateNotYetActive() {
	tomorrow := time.Now().UTC().Add(24 * time.Hour)
	s.seed(models.Coupon{Code: "SOON", DiscountValue: decimal.NewFromInt(10), ValidFrom: &tomorrow})

	res := s.svc.Validate(s.ctx, "SOON", amount(100), 1)
	s.False(res.IsValid)
	s.Equal("Coupon is not yet active.", res.Message)
}

func (s *CouponServiceSuite) TestValidateExpired() {
	yesterday := time.Now().UTC().Add(-24 * time.Hour)
	s.seed(models.Coupon{Code: "LATE", DiscountValue: decimal.NewFromInt(10), ValidUntil: &yesterday})

	res := s.svc.Validate(s.ctx, "LATE", amount(100), 1)
	s.False(res.IsValid)
	s.Equal("Coupon has expired.", res.Message)
}

func (s *CouponServiceSuite) TestValidateUsageLimit() {
	s.seed(models.Coupon{Code: "FULL", DiscountValue: decimal.NewFromInt(10), UsageLimit: lo.ToPtr(5), UsedCount: 5})
	res := s.svc.Validate(s.ctx, "FULL", amount(100), 1)
	s.False(res.IsValid)
	s.Equal("Coupon usage limit reached.", res.Message)

	s.seed(models.Coupon{Code: "ROOM", DiscountValue: decimal.NewFromInt(10), UsageLimit: lo.ToPtr(5), UsedCount: 4})
	res = s.svc.Validate(s.ctx, "ROOM", amount(100), 1)
	s.True(res.IsValid)
}

func (s *CouponServiceSuite) TestValidateMinAmount() {
	s.seed(models.Coupon{
		Code:          "BIGSPEND",
		DiscountValue: decimal.NewFromInt(10),
		MinAmount:     decimal.NewNullDecimal(decimal.NewFromInt(500)),
	})

	res := s.svc.Validate(s.ctx, "BIGSPEND", amount(499), 1)
	s.False(res.IsValid)
	s.Contains(res.Message, "500")

	res = s.svc.Validate(s.ctx, "BIGSPEND", amount(500), 1)
	s.True(res.IsValid)
}

func (s *CouponServiceSuite) TestValidatePlanRestriction() {
	s.seed(models.Coupon{
		Code:            "PLANS",
		DiscountValue:   decimal.NewFromInt(10),
		ApplicablePlans: []int64{1, 2},
	})

	res := s.svc.Validate(s.ctx, "PLANS", amount(1000), 3)
	s.False(res.IsValid)
	s.Equal("Coupon not applicable for this plan.", res.Message)

	res = s.svc.Validate(s.ctx, "PLANS", amount(1000), 1)
	s.True(res.IsValid)
}

func (s *CouponServiceSuite) TestValidatePercentageWithCap() {
	s.seed(models.Coupon{
		Code:          "TWENTY",
		DiscountType:  models.DiscountTypePercentage,
		DiscountValue: decimal.NewFromInt(20),
		MaxDiscount:   decimal.NewNullDecimal(decimal.NewFromInt(150)),
	})

	res := s.svc.Validate(s.ctx, "TWENTY", amount(1000), 1)
	s.True(res.IsValid)
	s.Equal("150", res.DiscountAmount.String())
	s.Equal("850", res.FinalAmount.String())
	s.Equal("Coupon applied! You saved 150.", res.Message)
}

func (s *CouponServiceSuite) TestValidateFixedExceedingAmount() {
	s.seed(models.Coupon{
		Code:          "FLAT300",
		DiscountType:  models.DiscountTypeFixed,
		DiscountValue: decimal.NewFromInt(300),
	})

	res := s.svc.Validate(s.ctx, "FLAT300", amount(200), 1)
	s.True(res.IsValid)
	s.Equal("200", res.DiscountAmount.String())
	s.Equal("0", res.FinalAmount.String())
}

func (s *CouponServiceSuite) TestValidateMixedCaseCode() {
	s.seed(models.Coupon{Code: "UPPER", DiscountValue: decimal.NewFromInt(10)})

	res := s.svc.Validate(s.ctx, "  upper ", amount(100), 1)
	s.True(res.IsValid)
}

func (s *CouponServiceSuite) TestValidateDoesNotConsume() {
	created := s.seed(models.Coupon{Code: "LOOK", DiscountValue: decimal.NewFromInt(10), UsageLimit: lo.ToPtr(1)})

	s.svc.Validate(s.ctx, "LOOK", amount(100), 1)
	s.svc.Validate(s.ctx, "LOOK", amount(100), 1)

	got, err := s.coupons.GetByID(s.ctx, created.ID)
	s.Require().NoError(err)
	s.Equal(0, got.UsedCount)
}

func (s *CouponServiceSuite) TestValidateStoreFailure() {
	s.coupons.ForcedErr = errors.New("connection refused")

	res := s.svc.Validate(s.ctx, "ANY", amount(100), 1)
	s.False(res.IsValid)
	s.Equal("Error validating coupon", res.Message)
	s.Equal("100", res.FinalAmount.String())
}

func (s *CouponServiceSuite) TestCreateListDeleteRoundTrip() {
	created, err := s.svc.Create(s.ctx, &models.Coupon{
		Code:          "round10",
		DiscountType:  models.DiscountTypePercentage,
		DiscountValue: decimal.NewFromInt(10),
		IsActive:      true,
		UsedCount:     7, // must be reset on create
	})
	s.Require().NoError(err)
	s.Equal("ROUND10", created.Code)
	s.Equal(0, created.UsedCount)

	list, err := s.svc.List(s.ctx)
	s.Require().NoError(err)
	s.Len(list, 1)
	s.Equal(created.ID, list[0].ID)

	s.Require().NoError(s.svc.Delete(s.ctx, created.ID))

	list, err = s.svc.List(s.ctx)
	s.Require().NoError(err)
	s.Empty(list)
}

func (s *CouponServiceSuite) TestUpdatePartial() {
	created := s.seed(models.Coupon{
		Code:          "EDITME",
		Name:          "Before",
		DiscountValue: decimal.NewFromInt(10),
	})

	updated, err := s.svc.Update(s.ctx, created.ID, UpdateCouponInput{Name: lo.ToPtr("After")})
	s.Require().NoError(err)
	s.Equal("After", updated.Name)
	s.Equal("EDITME", updated.Code)
	s.True(updated.UpdatedAt.After(created.UpdatedAt) || updated.UpdatedAt.Equal(created.UpdatedAt))
	s.True(updated.DiscountValue.Equal(decimal.NewFromInt(10)))
}

func (s *CouponServiceSuite) TestUpdateUnknownID() {
	_, err := s.svc.Update(s.ctx, 404, UpdateCouponInput{Name: lo.ToPtr("x")})
	s.ErrorIs(err, repository.ErrNotFound)
}

func (s *CouponServiceSuite) TestUpdateInvalidatesCachedCode() {
	created := s.seed(models.Coupon{Code: "STALE", DiscountValue: decimal.NewFromInt(10)})

	// prime the cache
	s.True(s.svc.Validate(s.ctx, "STALE", amount(100), 1).IsValid)

	_, err := s.svc.Update(s.ctx, created.ID, UpdateCouponInput{IsActive: lo.ToPtr(false)})
	s.Require().NoError(err)

	res := s.svc.Validate(s.ctx, "STALE", amount(100), 1)
	s.False(res.IsValid)
	s.Equal("Invalid coupon code.", res.Message)
}

func (s *CouponServiceSuite) TestApplyIncrementsExactlyOnce() {
	created := s.seed(models.Coupon{Code: "ONCE", DiscountValue: decimal.NewFromInt(10)})

	applied, err := s.svc.Apply(s.ctx, created.ID)
	s.Require().NoError(err)
	s.Equal(1, applied.UsedCount)

	got, err := s.coupons.GetByID(s.ctx, created.ID)
	s.Require().NoError(err)
	s.Equal(1, got.UsedCount)
}

func (s *CouponServiceSuite) TestApplyUnknownID() {
	_, err := s.svc.Apply(s.ctx, 404)
	s.ErrorIs(err, repository.ErrNotFound)
}

func (s *CouponServiceSuite) TestApplyLimitExhaustedAtomically() {
	created := s.seed(models.Coupon{Code: "LAST", DiscountValue: decimal.NewFromInt(10), UsageLimit: lo.ToPtr(1)})

	_, err := s.svc.Apply(s.ctx, created.ID)
	s.Require().NoError(err)

	_, err = s.svc.Apply(s.ctx, created.ID)
	s.ErrorIs(err, repository.ErrLimitReached)
}

func (s *CouponServiceSuite) TestApplyConcurrentAtomic() {
	const n = 25
	created := s.seed(models.Coupon{Code: "RACE", DiscountValue: decimal.NewFromInt(10)})

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.svc.Apply(s.ctx, created.ID)
			s.NoError(err)
		}()
	}
	wg.Wait()

	got, err := s.coupons.GetByID(s.ctx, created.ID)
	s.Require().NoError(err)
	s.Equal(n, got.UsedCount)
}

// The read-then-write fallback is the documented degraded mode: a single
// caller still increments exactly once, but the exactly-N property of the
// atomic path is not guaranteed under concurrency, so only the sequential
// behavior is asserted here.
func (s *CouponServiceSuite) TestApplyFallbackSequential() {
	s.coupons.DisableAtomic = true
	created := s.seed(models.Coupon{Code: "DEGRADED", DiscountValue: decimal.NewFromInt(10), UsageLimit: lo.ToPtr(2)})

	applied, err := s.svc.Apply(s.ctx, created.ID)
	s.Require().NoError(err)
	s.Equal(1, applied.UsedCount)

	applied, err = s.svc.Apply(s.ctx, created.ID)
	s.Require().NoError(err)
	s.Equal(2, applied.UsedCount)

	_, err = s.svc.Apply(s.ctx, created.ID)
	s.ErrorIs(err, repository.ErrLimitReached)
}

func (s *CouponServiceSuite) TestRedeemConsumesSlot() {
	created := s.seed(models.Coupon{
		Code:          "TAKE",
		DiscountType:  models.DiscountTypeFixed,
		DiscountValue: decimal.NewFromInt(50),
	})

	res := s.svc.Redeem(s.ctx, "TAKE", amount(200), 1)
	s.True(res.IsValid)
	s.Equal("50", res.DiscountAmount.String())
	s.Equal("150", res.FinalAmount.String())

	got, err := s.coupons.GetByID(s.ctx, created.ID)
	s.Require().NoError(err)
	s.Equal(1, got.UsedCount)
}

func (s *CouponServiceSuite) TestRedeemRaceOnLastSlot() {
	s.seed(models.Coupon{Code: "FINAL", DiscountValue: decimal.NewFromInt(10), UsageLimit: lo.ToPtr(1)})

	results := make([]models.ValidationResult, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.svc.Redeem(s.ctx, "FINAL", amount(100), 1)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, r := range results {
		if r.IsValid {
			wins++
		} else {
			s.Equal("Coupon usage limit reached.", r.Message)
		}
	}
	s.Equal(1, wins)
}

func (s *CouponServiceSuite) TestApplicable() {
	yesterday := time.Now().UTC().Add(-24 * time.Hour)
	s.seed(models.Coupon{Code: "GOOD", DiscountValue: decimal.NewFromInt(10)})
	s.seed(models.Coupon{Code: "GONE", DiscountValue: decimal.NewFromInt(10), ValidUntil: &yesterday})
	s.seed(models.Coupon{Code: "OTHERPLAN", DiscountValue: decimal.NewFromInt(10), ApplicablePlans: []int64{9}})
	s.seed(models.Coupon{Code: "PRICY", DiscountValue: decimal.NewFromInt(10), MinAmount: decimal.NewNullDecimal(decimal.NewFromInt(5000))})

	codes, err := s.svc.Applicable(s.ctx, amount(1000), 1)
	s.Require().NoError(err)
	s.Equal([]string{"GOOD"}, codes)
}

func (s *CouponServiceSuite) TestApplicableDisabled() {
	s.seed(models.Coupon{Code: "GOOD", DiscountValue: decimal.NewFromInt(10)})
	s.disableCoupons()

	codes, err := s.svc.Applicable(s.ctx, amount(1000), 1)
	s.Require().NoError(err)
	s.Empty(codes)
}

func (s *CouponServiceSuite) TestSettingsRoundTrip() {
	settings, err := s.svc.GetSettings(s.ctx)
	s.Require().NoError(err)
	s.True(settings.IsEnabled)

	updated, err := s.svc.UpdateSettings(s.ctx, UpdateSettingsInput{
		IsEnabled:     lo.ToPtr(false),
		AllowStacking: lo.ToPtr(true),
	})
	s.Require().NoError(err)
	s.False(updated.IsEnabled)
	s.True(updated.AllowStacking)
}
