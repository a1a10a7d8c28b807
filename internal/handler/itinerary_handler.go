package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/tripman/internal/itinerary"
	"github.com/hitoshi/tripman/internal/middleware"
	"github.com/hitoshi/tripman/internal/model"
)

// defaultFeedLimit はフィード・一覧系エンドポイントのデフォルト件数。
const defaultFeedLimit = 20

// ItineraryServiceInterface は旅程ハンドラーが必要とするサービスインターフェース。
type ItineraryServiceInterface interface {
	Create(ctx context.Context, userID string, input itinerary.Input) (*model.Itinerary, error)
	Get(ctx context.Context, id, viewerID string) (*model.Itinerary, error)
	Update(ctx context.Context, id, viewerID string, input itinerary.Input) (*model.Itinerary, error)
	Delete(ctx context.Context, id, viewerID string) error
	ListByUser(ctx context.Context, userID, viewerID string, limit int) ([]*model.ItinerarySummary, error)
	Feed(ctx context.Context, viewerID string, limit int) ([]*model.ItinerarySummary, error)

	CreateList(ctx context.Context, userID string, input itinerary.ListInput) (*model.ItineraryList, error)
	GetList(ctx context.Context, id, viewerID string) (*model.ItineraryList, error)
	UpdateList(ctx context.Context, id, viewerID string, input itinerary.ListInput) (*model.ItineraryList, error)
	DeleteList(ctx context.Context, id, viewerID string) error
	ListsByUser(ctx context.Context, userID, viewerID string) ([]*model.ItineraryList, error)
}

// ItineraryHandler は旅程と旅程リストのHTTPハンドラー。
type ItineraryHandler struct {
	service ItineraryServiceInterface
}

// NewItineraryHandler はItineraryHandlerを生成する。
func NewItineraryHandler(service ItineraryServiceInterface) *ItineraryHandler {
	return &ItineraryHandler{service: service}
}

// eventRequest は旅程保存リクエスト内のイベント。
type eventRequest struct {
	Title    string `json:"title"`
	Location string `json:"location"`
	Notes    string `json:"notes"`
	LinkURL  string `json:"linkUrl"`
}

// dayRequest は旅程保存リクエスト内の1日分。
type dayRequest struct {
	Events []eventRequest `json:"events"`
}

// itineraryRequest は旅程の作成・更新リクエストボディ。
// 日付は"2006-01-02"形式で指定する。
type itineraryRequest struct {
	Title       string       `json:"title"`
	Destination string       `json:"destination"`
	Description string       `json:"description"`
	StartDate   string       `json:"startDate"`
	EndDate     string       `json:"endDate"`
	IsPublic    bool         `json:"isPublic"`
	Days        []dayRequest `json:"days"`
}

// listRequest は旅程リストの作成・更新リクエストボディ。
type listRequest struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	ItineraryIDs []string `json:"itineraryIds"`
}

// toInput はリクエストボディをサービス入力に変換する。
func (req *itineraryRequest) toInput() (itinerary.Input, *model.APIError) {
	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		return itinerary.Input{}, model.NewInvalidInputError("開始日はYYYY-MM-DD形式で指定してください")
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		return itinerary.Input{}, model.NewInvalidInputError("終了日はYYYY-MM-DD形式で指定してください")
	}

	input := itinerary.Input{
		Title:       req.Title,
		Destination: req.Destination,
		Description: req.Description,
		StartDate:   start,
		EndDate:     end,
		IsPublic:    req.IsPublic,
	}

	for _, day := range req.Days {
		dayInput := itinerary.DayInput{}
		for _, event := range day.Events {
			dayInput.Events = append(dayInput.Events, itinerary.EventInput{
				Title:    event.Title,
				Location: event.Location,
				Notes:    event.Notes,
				LinkURL:  event.LinkURL,
			})
		}
		input.Days = append(input.Days, dayInput)
	}

	return input, nil
}

// Create は旅程を作成する。
// POST /api/itineraries
func (h *ItineraryHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req itineraryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("リクエストボディが不正です"))
		return
	}

	input, apiErr := req.toInput()
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	created, err := h.service.Create(r.Context(), userID, input)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, created)
}

// Get は旅程を取得する。
// GET /api/itineraries/{id}
// 公開旅程は未認証でも閲覧できる。
func (h *ItineraryHandler) Get(w http.ResponseWriter, r *http.Request) {
	viewerID, _ := middleware.UserIDFromContext(r.Context())

	found, err := h.service.Get(r.Context(), chi.URLParam(r, "id"), viewerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, found)
}

// Update は旅程を更新する。
// PUT /api/itineraries/{id}
func (h *ItineraryHandler) Update(w http.ResponseWriter, r *http.Request) {
	viewerID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req itineraryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("リクエストボディが不正です"))
		return
	}

	input, apiErr := req.toInput()
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	updated, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), viewerID, input)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, updated)
}

// Delete は旅程を削除する。
// DELETE /api/itineraries/{id}
func (h *ItineraryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	viewerID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id"), viewerID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListByUser はユーザーの旅程一覧を返す。
// GET /api/users/{id}/itineraries
// 非公開の旅程は本人が閲覧する場合のみ含まれる。
func (h *ItineraryHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	viewerID, _ := middleware.UserIDFromContext(r.Context())

	limit, apiErr := parseLimit(r, defaultFeedLimit)
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	summaries, err := h.service.ListByUser(r.Context(), chi.URLParam(r, "id"), viewerID, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, summaries)
}

// Feed はフォロー中ユーザーの公開旅程を新着順に返す。
// GET /api/feed
func (h *ItineraryHandler) Feed(w http.ResponseWriter, r *http.Request) {
	viewerID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	limit, apiErr := parseLimit(r, defaultFeedLimit)
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	summaries, err := h.service.Feed(r.Context(), viewerID, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, summaries)
}

// CreateList は旅程リストを作成する。
// POST /api/lists
func (h *ItineraryHandler) CreateList(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req listRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("リクエストボディが不正です"))
		return
	}

	created, err := h.service.CreateList(r.Context(), userID, itinerary.ListInput{
		Name:         req.Name,
		Description:  req.Description,
		ItineraryIDs: req.ItineraryIDs,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, created)
}

// GetList は旅程リストを取得する。
// GET /api/lists/{id}
func (h *ItineraryHandler) GetList(w http.ResponseWriter, r *http.Request) {
	viewerID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	found, err := h.service.GetList(r.Context(), chi.URLParam(r, "id"), viewerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, found)
}

// UpdateList は旅程リストを更新する。
// PUT /api/lists/{id}
func (h *ItineraryHandler) UpdateList(w http.ResponseWriter, r *http.Request) {
	viewerID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req listRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("リクエストボディが不正です"))
		return
	}

	updated, err := h.service.UpdateList(r.Context(), chi.URLParam(r, "id"), viewerID, itinerary.ListInput{
		Name:         req.Name,
		Description:  req.Description,
		ItineraryIDs: req.ItineraryIDs,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, updated)
}

// DeleteList は旅程リストを削除する。
// DELETE /api/lists/{id}
func (h *ItineraryHandler) DeleteList(w http.ResponseWriter, r *http.Request) {
	viewerID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if err := h.service.DeleteList(r.Context(), chi.URLParam(r, "id"), viewerID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListsByUser はユーザーの旅程リスト一覧を返す。本人のみ閲覧できる。
// GET /api/users/{id}/lists
func (h *ItineraryHandler) ListsByUser(w http.ResponseWriter, r *http.Request) {
	viewerID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	lists, err := h.service.ListsByUser(r.Context(), chi.URLParam(r, "id"), viewerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, lists)
}

// parseLimit はlimitクエリパラメータを解析する。
func parseLimit(r *http.Request, def int) (int, *model.APIError) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}

	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 1 || parsed > 100 {
		return 0, model.NewInvalidInputError("limitは1〜100で指定してください")
	}
	return parsed, nil
}
