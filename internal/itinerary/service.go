// Package itinerary は旅程と旅程リストのドメインロジックを提供する。
package itinerary

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/tripman/internal/model"
	"github.com/hitoshi/tripman/internal/repository"
)

// Sanitizer はユーザー入力のサニタイズインターフェース。
type Sanitizer interface {
	SanitizeRichText(raw string) string
	SanitizePlainText(raw string) string
}

// LinkPreviewer はイベントのリンクプレビュー取得インターフェース。
type LinkPreviewer interface {
	FetchTitle(ctx context.Context, rawURL string) (string, error)
}

// URLValidator はリンクURLの事前検証インターフェース。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// EventInput は旅程保存時のイベント入力。
type EventInput struct {
	Title    string
	Location string
	Notes    string
	LinkURL  string
}

// DayInput は旅程保存時の1日分の入力。
type DayInput struct {
	Events []EventInput
}

// Input は旅程の作成・更新入力。
type Input struct {
	Title       string
	Destination string
	Description string
	StartDate   time.Time
	EndDate     time.Time
	IsPublic    bool
	Days        []DayInput
}

// ListInput は旅程リストの作成・更新入力。
type ListInput struct {
	Name         string
	Description  string
	ItineraryIDs []string
}

// Service は旅程管理のサービス層。
// 保存時のサニタイズとリンクプレビュー取得、公開範囲の制御を行う。
type Service struct {
	itineraryRepo repository.ItineraryRepository
	listRepo      repository.ItineraryListRepository
	sanitizer     Sanitizer
	previewer     LinkPreviewer
	urlValidator  URLValidator
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	itineraryRepo repository.ItineraryRepository,
	listRepo repository.ItineraryListRepository,
	sanitizer Sanitizer,
	previewer LinkPreviewer,
	urlValidator URLValidator,
) *Service {
	return &Service{
		itineraryRepo: itineraryRepo,
		listRepo:      listRepo,
		sanitizer:     sanitizer,
		previewer:     previewer,
		urlValidator:  urlValidator,
	}
}

// Create は旅程を作成する。
// 入力はサニタイズされ、イベントのリンクURLは事前検証される。
// リンクプレビューの取得はベストエフォートで、失敗してもエラーにしない。
func (s *Service) Create(ctx context.Context, userID string, input Input) (*model.Itinerary, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	now := time.Now()
	it := &model.Itinerary{
		ID:          uuid.New().String(),
		UserID:      userID,
		Title:       s.sanitizer.SanitizePlainText(input.Title),
		Destination: s.sanitizer.SanitizePlainText(input.Destination),
		Description: s.sanitizer.SanitizeRichText(input.Description),
		StartDate:   input.StartDate,
		EndDate:     input.EndDate,
		IsPublic:    input.IsPublic,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	days, err := s.buildDays(ctx, it.ID, input.Days)
	if err != nil {
		return nil, err
	}
	it.Days = days

	if err := s.itineraryRepo.Create(ctx, it); err != nil {
		return nil, fmt.Errorf("旅程の作成に失敗しました: %w", err)
	}

	slog.Info("itinerary created",
		slog.String("itinerary_id", it.ID),
		slog.String("user_id", userID),
	)

	return it, nil
}

// Get は旅程を取得する。非公開の旅程は所有者のみ閲覧できる。
func (s *Service) Get(ctx context.Context, id, viewerID string) (*model.Itinerary, error) {
	it, err := s.itineraryRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("旅程の取得に失敗しました: %w", err)
	}
	if it == nil {
		return nil, model.NewItineraryNotFoundError(id)
	}

	if !it.IsPublic && it.UserID != viewerID {
		// 非公開の存在を漏らさないためnot foundとして扱う
		return nil, model.NewItineraryNotFoundError(id)
	}

	return it, nil
}

// Update は旅程を更新する。所有者のみ実行できる。
func (s *Service) Update(ctx context.Context, id, viewerID string, input Input) (*model.Itinerary, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	existing, err := s.itineraryRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("旅程の取得に失敗しました: %w", err)
	}
	if existing == nil {
		return nil, model.NewItineraryNotFoundError(id)
	}
	if existing.UserID != viewerID {
		return nil, model.NewForbiddenError()
	}

	existing.Title = s.sanitizer.SanitizePlainText(input.Title)
	existing.Destination = s.sanitizer.SanitizePlainText(input.Destination)
	existing.Description = s.sanitizer.SanitizeRichText(input.Description)
	existing.StartDate = input.StartDate
	existing.EndDate = input.EndDate
	existing.IsPublic = input.IsPublic

	days, err := s.buildDays(ctx, existing.ID, input.Days)
	if err != nil {
		return nil, err
	}
	existing.Days = days

	if err := s.itineraryRepo.Update(ctx, existing); err != nil {
		return nil, fmt.Errorf("旅程の更新に失敗しました: %w", err)
	}

	return existing, nil
}

// Delete は旅程を削除する。所有者のみ実行できる。
func (s *Service) Delete(ctx context.Context, id, viewerID string) error {
	existing, err := s.itineraryRepo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("旅程の取得に失敗しました: %w", err)
	}
	if existing == nil {
		return model.NewItineraryNotFoundError(id)
	}
	if existing.UserID != viewerID {
		return model.NewForbiddenError()
	}

	if err := s.itineraryRepo.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("旅程の削除に失敗しました: %w", err)
	}

	slog.Info("itinerary deleted",
		slog.String("itinerary_id", id),
		slog.String("user_id", viewerID),
	)

	return nil
}

// ListByUser はユーザーの旅程一覧を返す。
// 非公開の旅程は所有者が閲覧する場合のみ含める。
func (s *Service) ListByUser(ctx context.Context, userID, viewerID string, limit int) ([]*model.ItinerarySummary, error) {
	includePrivate := userID == viewerID

	summaries, err := s.itineraryRepo.ListByUser(ctx, userID, includePrivate, limit)
	if err != nil {
		return nil, fmt.Errorf("旅程一覧の取得に失敗しました: %w", err)
	}
	return summaries, nil
}

// Feed は閲覧者がフォローしているユーザーの公開旅程を新着順に返す。
func (s *Service) Feed(ctx context.Context, viewerID string, limit int) ([]*model.ItinerarySummary, error) {
	summaries, err := s.itineraryRepo.ListByFollowed(ctx, viewerID, limit)
	if err != nil {
		return nil, fmt.Errorf("フィードの取得に失敗しました: %w", err)
	}
	return summaries, nil
}

// CreateList は旅程リストを作成する。
func (s *Service) CreateList(ctx context.Context, userID string, input ListInput) (*model.ItineraryList, error) {
	if input.Name == "" {
		return nil, model.NewInvalidInputError("リスト名は必須です")
	}

	if err := s.validateListItems(ctx, userID, input.ItineraryIDs); err != nil {
		return nil, err
	}

	now := time.Now()
	list := &model.ItineraryList{
		ID:           uuid.New().String(),
		UserID:       userID,
		Name:         s.sanitizer.SanitizePlainText(input.Name),
		Description:  s.sanitizer.SanitizeRichText(input.Description),
		ItineraryIDs: input.ItineraryIDs,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.listRepo.Create(ctx, list); err != nil {
		return nil, fmt.Errorf("リストの作成に失敗しました: %w", err)
	}

	return list, nil
}

// GetList は旅程リストを取得する。所有者のみ閲覧できる。
func (s *Service) GetList(ctx context.Context, id, viewerID string) (*model.ItineraryList, error) {
	list, err := s.listRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("リストの取得に失敗しました: %w", err)
	}
	if list == nil {
		return nil, model.NewListNotFoundError(id)
	}
	if list.UserID != viewerID {
		return nil, model.NewListNotFoundError(id)
	}
	return list, nil
}

// UpdateList は旅程リストを更新する。所有者のみ実行できる。
func (s *Service) UpdateList(ctx context.Context, id, viewerID string, input ListInput) (*model.ItineraryList, error) {
	if input.Name == "" {
		return nil, model.NewInvalidInputError("リスト名は必須です")
	}

	existing, err := s.listRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("リストの取得に失敗しました: %w", err)
	}
	if existing == nil {
		return nil, model.NewListNotFoundError(id)
	}
	if existing.UserID != viewerID {
		return nil, model.NewForbiddenError()
	}

	if err := s.validateListItems(ctx, viewerID, input.ItineraryIDs); err != nil {
		return nil, err
	}

	existing.Name = s.sanitizer.SanitizePlainText(input.Name)
	existing.Description = s.sanitizer.SanitizeRichText(input.Description)
	existing.ItineraryIDs = input.ItineraryIDs

	if err := s.listRepo.Update(ctx, existing); err != nil {
		return nil, fmt.Errorf("リストの更新に失敗しました: %w", err)
	}

	return existing, nil
}

// DeleteList は旅程リストを削除する。所有者のみ実行できる。
func (s *Service) DeleteList(ctx context.Context, id, viewerID string) error {
	existing, err := s.listRepo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("リストの取得に失敗しました: %w", err)
	}
	if existing == nil {
		return model.NewListNotFoundError(id)
	}
	if existing.UserID != viewerID {
		return model.NewForbiddenError()
	}

	if err := s.listRepo.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("リストの削除に失敗しました: %w", err)
	}

	return nil
}

// ListsByUser はユーザーの旅程リスト一覧を返す。所有者のみ閲覧できる。
func (s *Service) ListsByUser(ctx context.Context, userID, viewerID string) ([]*model.ItineraryList, error) {
	if userID != viewerID {
		return nil, model.NewForbiddenError()
	}

	lists, err := s.listRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("リスト一覧の取得に失敗しました: %w", err)
	}
	return lists, nil
}

// buildDays は入力からdays/eventsを構築する。
// 日番号とイベントの表示順は入力順から採番する。
// リンクURLは事前検証し、プレビュータイトルをベストエフォートで取得する。
func (s *Service) buildDays(ctx context.Context, itineraryID string, inputs []DayInput) ([]model.Day, error) {
	days := make([]model.Day, 0, len(inputs))

	for i, dayInput := range inputs {
		day := model.Day{
			ID:          uuid.New().String(),
			ItineraryID: itineraryID,
			DayNumber:   i + 1,
		}

		for j, eventInput := range dayInput.Events {
			if eventInput.Title == "" {
				return nil, model.NewInvalidInputError(fmt.Sprintf("%d日目の予定%dにタイトルがありません", i+1, j+1))
			}

			event := model.Event{
				ID:       uuid.New().String(),
				DayID:    day.ID,
				Position: j,
				Title:    s.sanitizer.SanitizePlainText(eventInput.Title),
				Location: s.sanitizer.SanitizePlainText(eventInput.Location),
				Notes:    s.sanitizer.SanitizeRichText(eventInput.Notes),
			}

			if eventInput.LinkURL != "" {
				if err := s.urlValidator.ValidateURL(eventInput.LinkURL); err != nil {
					return nil, model.NewInvalidInputError(fmt.Sprintf("リンクURLが不正です: %v", err))
				}
				event.LinkURL = eventInput.LinkURL

				// プレビュー取得の失敗は保存を妨げない
				title, err := s.previewer.FetchTitle(ctx, eventInput.LinkURL)
				if err != nil {
					slog.Debug("link preview fetch failed",
						slog.String("url", eventInput.LinkURL),
						slog.String("error", err.Error()),
					)
				} else {
					event.LinkTitle = title
				}
			}

			day.Events = append(day.Events, event)
		}

		days = append(days, day)
	}

	return days, nil
}

// validateListItems はリストに追加する旅程が閲覧者のアクセス可能なものかを検証する。
func (s *Service) validateListItems(ctx context.Context, viewerID string, itineraryIDs []string) error {
	for _, id := range itineraryIDs {
		it, err := s.itineraryRepo.FindByID(ctx, id)
		if err != nil {
			return fmt.Errorf("旅程の取得に失敗しました: %w", err)
		}
		if it == nil {
			return model.NewItineraryNotFoundError(id)
		}
		if !it.IsPublic && it.UserID != viewerID {
			return model.NewItineraryNotFoundError(id)
		}
	}
	return nil
}

// validateInput は旅程入力の基本検証を行う。
func validateInput(input Input) error {
	if input.Title == "" {
		return model.NewInvalidInputError("タイトルは必須です")
	}
	if input.Destination == "" {
		return model.NewInvalidInputError("目的地は必須です")
	}
	if input.EndDate.Before(input.StartDate) {
		return model.NewInvalidInputError("終了日は開始日以降を指定してください")
	}
	return nil
}
