package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/smrtstudy/internal/entitlement"
	"github.com/hitoshi/smrtstudy/internal/middleware"
)

// BillingServiceInterface は課金ハンドラーが必要とするサービスインターフェース。
type BillingServiceInterface interface {
	CheckFeatureAccess(ctx context.Context, userID, featureID string) entitlement.Access
	TrackFeatureUsage(ctx context.Context, userID, featureID string)
	StartCheckout(ctx context.Context, userID, productID, successURL string) (string, error)
	BillingPortalURL(ctx context.Context, userID, returnURL string) (string, error)
}

// BillingHandler は機能利用可否と課金フロー関連のHTTPハンドラー。
type BillingHandler struct {
	service BillingServiceInterface
}

// NewBillingHandler はBillingHandlerを生成する。
func NewBillingHandler(service BillingServiceInterface) *BillingHandler {
	return &BillingHandler{service: service}
}

type featureRequest struct {
	FeatureID string `json:"feature_id"`
}

type checkoutRequest struct {
	ProductID  string `json:"product_id"`
	SuccessURL string `json:"success_url"`
}

type checkoutResponse struct {
	CheckoutURL string `json:"checkout_url"`
}

type portalRequest struct {
	ReturnURL string `json:"return_url"`
}

type portalResponse struct {
	PortalURL string `json:"portal_url"`
}

// CheckFeature は機能の利用可否を返す。
// 判定に失敗した場合もエラーにはせず不許可として返る。
// POST /api/billing/check
func (h *BillingHandler) CheckFeature(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req featureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	access := h.service.CheckFeatureAccess(r.Context(), userID, req.FeatureID)
	writeJSON(w, http.StatusOK, access)
}

// TrackFeature は機能の使用量を記録する。
// 記録失敗はユーザー操作を妨げないため常に202を返す。
// POST /api/billing/track
func (h *BillingHandler) TrackFeature(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req featureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	h.service.TrackFeatureUsage(r.Context(), userID, req.FeatureID)
	w.WriteHeader(http.StatusAccepted)
}

// StartCheckout はプラン購入のチェックアウトURLを発行する。
// POST /api/billing/checkout
func (h *BillingHandler) StartCheckout(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	url, err := h.service.StartCheckout(r.Context(), userID, req.ProductID, req.SuccessURL)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, checkoutResponse{CheckoutURL: url})
}

// BillingPortal は契約管理ポータルのURLを発行する。
// POST /api/billing/portal
func (h *BillingHandler) BillingPortal(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req portalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	url, err := h.service.BillingPortalURL(r.Context(), userID, req.ReturnURL)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, portalResponse{PortalURL: url})
}
