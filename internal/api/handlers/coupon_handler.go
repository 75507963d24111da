package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/membercore/coupon-service/internal/models"
	"github.com/membercore/coupon-service/internal/repository"
	"github.com/membercore/coupon-service/internal/service"
)

// --- Request / Response DTOs ---

type CreateCouponRequest struct {
	Code            string              `json:"code"`
	Name            string              `json:"name"`
	Description     string              `json:"description"`
	DiscountType    models.DiscountType `json:"discount_type"`
	DiscountValue   decimal.Decimal     `json:"discount_value"`
	MinAmount       decimal.NullDecimal `json:"min_amount"`
	MaxDiscount     decimal.NullDecimal `json:"max_discount"`
	UsageLimit      *int                `json:"usage_limit"`
	IsActive        *bool               `json:"is_active"`
	ValidFrom       *time.Time          `json:"valid_from"`
	ValidUntil      *time.Time          `json:"valid_until"`
	ApplicablePlans []int64             `json:"applicable_plans"`
}

type ValidateCouponRequest struct {
	Code   string          `json:"code"`
	Amount decimal.Decimal `json:"amount"`
	PlanID int             `json:"plan_id"`
}

type ApplicableResponse struct {
	ApplicableCoupons []string `json:"applicable_coupons"`
}

// envelope is the uniform shape for admin/CRUD responses.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// --- Handler struct & constructor ---

type CouponHandler struct {
	svc *service.CouponService
	log *zap.SugaredLogger
}

func NewCouponHandler(svc *service.CouponService, log *zap.SugaredLogger) *CouponHandler {
	return &CouponHandler{svc: svc, log: log}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *CouponHandler) writeStoreError(w http.ResponseWriter, err error, action string) {
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, envelope{Success: false, Message: "Coupon not found"})
		return
	}
	h.log.Errorw("store operation failed", "action", action, "error", err)
	writeJSON(w, http.StatusInternalServerError, envelope{Success: false, Message: "Failed to " + action})
}

func idParam(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "id"))
}

// --- Handlers ---

// ListCoupons handles GET /admin/coupons
func (h *CouponHandler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.svc.List(r.Context())
	if err != nil {
		h.writeStoreError(w, err, "list coupons")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: coupons})
}

// CreateCoupon handles POST /admin/coupons
func (h *CouponHandler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req CreateCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "Invalid request body"})
		return
	}
	if req.Code == "" {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "code is required"})
		return
	}
	if req.DiscountType != models.DiscountTypePercentage && req.DiscountType != models.DiscountTypeFixed {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "discount_type must be percentage or fixed"})
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	coupon := &models.Coupon{
		Code:            req.Code,
		Name:            req.Name,
		Description:     req.Description,
		DiscountType:    req.DiscountType,
		DiscountValue:   req.DiscountValue,
		MinAmount:       req.MinAmount,
		MaxDiscount:     req.MaxDiscount,
		UsageLimit:      req.UsageLimit,
		IsActive:        active,
		ValidFrom:       req.ValidFrom,
		ValidUntil:      req.ValidUntil,
		ApplicablePlans: req.ApplicablePlans,
	}

	created, err := h.svc.Create(r.Context(), coupon)
	if err != nil {
		h.writeStoreError(w, err, "create coupon")
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Data: created})
}

// UpdateCoupon handles PUT /admin/coupons/{id}
func (h *CouponHandler) UpdateCoupon(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "Invalid coupon id"})
		return
	}

	var in service.UpdateCouponInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "Invalid request body"})
		return
	}

	updated, err := h.svc.Update(r.Context(), id, in)
	if err != nil {
		h.writeStoreError(w, err, "update coupon")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: updated})
}

// DeleteCoupon handles DELETE /admin/coupons/{id}
func (h *CouponHandler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "Invalid coupon id"})
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.writeStoreError(w, err, "delete coupon")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true})
}

// ApplyCoupon handles POST /admin/coupons/{id}/apply
func (h *CouponHandler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "Invalid coupon id"})
		return
	}

	coupon, err := h.svc.Apply(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrLimitReached) {
			writeJSON(w, http.StatusConflict, envelope{Success: false, Message: "Coupon usage limit reached."})
			return
		}
		h.writeStoreError(w, err, "apply coupon")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: coupon})
}

// ValidateCoupon handles POST /coupons/validate. The result is always 200:
// a failed rule is a normal outcome, not an HTTP error.
func (h *CouponHandler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req ValidateCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "Invalid request body"})
		return
	}
	result := h.svc.Validate(r.Context(), req.Code, req.Amount, req.PlanID)
	writeJSON(w, http.StatusOK, result)
}

// RedeemCoupon handles POST /coupons/redeem
func (h *CouponHandler) RedeemCoupon(w http.ResponseWriter, r *http.Request) {
	var req ValidateCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "Invalid request body"})
		return
	}
	result := h.svc.Redeem(r.Context(), req.Code, req.Amount, req.PlanID)
	writeJSON(w, http.StatusOK, result)
}

// GetApplicableCoupons handles GET /coupons/applicable?amount=&plan_id=
func (h *CouponHandler) GetApplicableCoupons(w http.ResponseWriter, r *http.Request) {
	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "amount is required"})
		return
	}
	planID, _ := strconv.Atoi(r.URL.Query().Get("plan_id"))

	codes, err := h.svc.Applicable(r.Context(), amount, planID)
	if err != nil {
		h.writeStoreError(w, err, "list applicable coupons")
		return
	}
	writeJSON(w, http.StatusOK, ApplicableResponse{ApplicableCoupons: codes})
}

// GetSettings handles GET /admin/coupon-settings
func (h *CouponHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.svc.GetSettings(r.Context())
	if err != nil {
		h.writeStoreError(w, err, "load coupon settings")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: settings})
}

// UpdateSettings handles PUT /admin/coupon-settings
func (h *CouponHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateSettingsInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "Invalid request body"})
		return
	}
	updated, err := h.svc.UpdateSettings(r.Context(), in)
	if err != nil {
		h.writeStoreError(w, err, "update coupon settings")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: updated})
}
