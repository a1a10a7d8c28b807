package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/tripman/internal/middleware"
	"github.com/hitoshi/tripman/internal/search"
)

// SearchServiceInterface は検索ハンドラーが必要とするサービスインターフェース。
type SearchServiceInterface interface {
	Search(ctx context.Context, query, viewerID string) (*search.Result, error)
	Suggestions(ctx context.Context, query, viewerID string) (*search.Result, error)
}

// SearchHandler はユーザー・旅程横断検索のHTTPハンドラー。
type SearchHandler struct {
	service SearchServiceInterface
}

// NewSearchHandler はSearchHandlerを生成する。
func NewSearchHandler(service SearchServiceInterface) *SearchHandler {
	return &SearchHandler{service: service}
}

// Search はユーザーと公開旅程を横断検索する。
// GET /api/search?q=
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	viewerID, _ := middleware.UserIDFromContext(r.Context())

	result, err := h.service.Search(r.Context(), r.URL.Query().Get("q"), viewerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, result)
}

// Suggestions はタイプアヘッド用の検索候補を返す。
// GET /api/search/suggestions?q=
func (h *SearchHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	viewerID, _ := middleware.UserIDFromContext(r.Context())

	result, err := h.service.Suggestions(r.Context(), r.URL.Query().Get("q"), viewerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, result)
}
