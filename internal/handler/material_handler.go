package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/smrtstudy/internal/middleware"
	"github.com/hitoshi/smrtstudy/internal/model"
)

// 教材ファイルアップロードの上限サイズ（25MB）
const maxMaterialUploadSize = 25 << 20

// MaterialServiceInterface は教材ハンドラーが必要とするサービスインターフェース。
type MaterialServiceInterface interface {
	ImportText(ctx context.Context, userID, title, text string) (*model.Material, error)
	ImportUpload(ctx context.Context, userID, title, fileName, mimeType string, size int64, r io.Reader) (*model.Material, error)
	ImportURL(ctx context.Context, userID, rawURL string) (*model.Material, error)
	Get(ctx context.Context, userID, materialID string) (*model.Material, error)
	List(ctx context.Context, userID string, cursor time.Time, limit int) ([]*model.Material, error)
}

// MaterialHandler は教材取り込み関連のHTTPハンドラー。
type MaterialHandler struct {
	service MaterialServiceInterface
}

// NewMaterialHandler はMaterialHandlerを生成する。
func NewMaterialHandler(service MaterialServiceInterface) *MaterialHandler {
	return &MaterialHandler{service: service}
}

type importTextRequest struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

type importURLRequest struct {
	URL string `json:"url"`
}

type materialResponse struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	SourceType     string    `json:"source_type"`
	SourceURL      string    `json:"source_url,omitempty"`
	ContentPreview string    `json:"content_preview"`
	WordCount      int       `json:"word_count"`
	Status         string    `json:"status"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	FileName       string    `json:"file_name,omitempty"`
	FileSize       int64     `json:"file_size,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func toMaterialResponse(m *model.Material) materialResponse {
	return materialResponse{
		ID:             m.ID,
		Title:          m.Title,
		Description:    m.Description,
		SourceType:     string(m.SourceType),
		SourceURL:      m.SourceURL,
		ContentPreview: m.ContentPreview,
		WordCount:      m.WordCount,
		Status:         string(m.Status),
		ErrorMessage:   m.ErrorMessage,
		FileName:       m.FileName,
		FileSize:       m.FileSize,
		CreatedAt:      m.CreatedAt,
	}
}

// ImportText は貼り付けテキストから教材を作成する。
// POST /api/materials/text
func (h *MaterialHandler) ImportText(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req importTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	material, err := h.service.ImportText(r.Context(), userID, req.Title, req.Text)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toMaterialResponse(material))
}

// ImportUpload はアップロードされたファイルから教材を作成する。
// multipart/form-dataのfileフィールドで受け取る。titleフィールドは任意。
// POST /api/materials/upload
func (h *MaterialHandler) ImportUpload(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxMaterialUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeInvalidRequest(w)
		return
	}
	defer file.Close()

	title := r.FormValue("title")
	mimeType := header.Header.Get("Content-Type")

	material, err := h.service.ImportUpload(r.Context(), userID, title, header.Filename, mimeType, header.Size, file)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toMaterialResponse(material))
}

// ImportURL はWebページのURLから教材を作成する。
// POST /api/materials/url
func (h *MaterialHandler) ImportURL(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req importURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	material, err := h.service.ImportURL(r.Context(), userID, req.URL)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toMaterialResponse(material))
}

// List は教材の一覧を新しい順で返す。
// GET /api/materials?cursor=xxx&limit=20
func (h *MaterialHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	cursor, limit := parseListQuery(r)
	materials, err := h.service.List(r.Context(), userID, cursor, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	items := make([]materialResponse, 0, len(materials))
	for _, m := range materials {
		items = append(items, toMaterialResponse(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"materials": items})
}

// Get は教材の詳細を返す。
// GET /api/materials/{materialID}
func (h *MaterialHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	materialID := chi.URLParam(r, "materialID")
	material, err := h.service.Get(r.Context(), userID, materialID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toMaterialResponse(material))
}
