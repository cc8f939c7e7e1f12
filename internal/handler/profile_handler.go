package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"path"

	"github.com/google/uuid"

	"github.com/hitoshi/smrtstudy/internal/middleware"
	"github.com/hitoshi/smrtstudy/internal/model"
	"github.com/hitoshi/smrtstudy/internal/profile"
	"github.com/hitoshi/smrtstudy/internal/storage"
)

// プロフィール画像アップロードの上限サイズ（5MB）
const maxProfileImageSize = 5 << 20

// profileImageTypes は受け付ける画像MIMEタイプと拡張子の対応。
var profileImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// ProfileServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	GetProfile(ctx context.Context, userID string) (*model.User, error)
	EditUserProfile(ctx context.Context, userID string, input profile.EditInput) (string, error)
	Withdraw(ctx context.Context, userID string) error
}

// ProfileHandler はプロフィール関連のHTTPハンドラー。
type ProfileHandler struct {
	service ProfileServiceInterface
	store   storage.ObjectStore
	cookie  CookieConfig
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(service ProfileServiceInterface, store storage.ObjectStore, cookie CookieConfig) *ProfileHandler {
	return &ProfileHandler{
		service: service,
		store:   store,
		cookie:  cookie,
	}
}

type editProfileRequest struct {
	Name            string `json:"name"`
	ImageKey        string `json:"image_key"`
	MarketingEmails bool   `json:"marketing_emails"`
}

type editProfileResponse struct {
	Result string `json:"result"`
}

type uploadImageResponse struct {
	ImageKey string `json:"image_key"`
	URL      string `json:"url"`
}

// GetProfile は現在のユーザーのプロフィールを返す。
// GET /api/profile
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	user, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// EditProfile はプロフィールを更新する。
// 結果コードはUIの遷移分岐に使われるためボディでも返す。
// PUT /api/profile
func (h *ProfileHandler) EditProfile(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	var req editProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	result, err := h.service.EditUserProfile(r.Context(), userID, profile.EditInput{
		Name:            req.Name,
		ImageKey:        req.ImageKey,
		MarketingEmails: req.MarketingEmails,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	switch result {
	case profile.EditResultSuccess:
		writeJSON(w, http.StatusOK, editProfileResponse{Result: result})
	case profile.EditResultUnauthorized:
		writeUnauthorized(w)
	case profile.EditResultInvalidImage:
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidImageError())
	default:
		slog.Error("unexpected profile edit result", slog.String("result", result))
		writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
			Code:     "INTERNAL_ERROR",
			Message:  "内部エラーが発生しました。",
			Category: "system",
			Action:   "しばらく待ってから再度お試しください。",
		})
	}
}

// UploadProfileImage はプロフィール画像を受け取りオブジェクトストアに保存する。
// 返却されたimage_keyをEditProfileのimage_keyに渡して反映する。
// POST /api/profile/image
func (h *ProfileHandler) UploadProfileImage(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxProfileImageSize)
	file, header, err := r.FormFile("image")
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidImageError())
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	ext, ok := profileImageTypes[contentType]
	if !ok {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidImageError())
		return
	}

	key := path.Join("profile-images", userID, uuid.NewString()+ext)
	if err := h.store.Save(r.Context(), key, contentType, file); err != nil {
		slog.Error("failed to save profile image",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, uploadImageResponse{
		ImageKey: key,
		URL:      h.store.Resolve(key),
	})
}

// Withdraw は退会処理を行いセッションCookieを破棄する。
// DELETE /api/users/me
func (h *ProfileHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	clearSessionCookie(w, h.cookie)
	w.WriteHeader(http.StatusNoContent)
}
