// Package search はユーザーと旅程の横断検索を提供する。
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/hitoshi/tripman/internal/model"
	"github.com/hitoshi/tripman/internal/repository"
)

// defaultLimit は1カテゴリあたりの検索結果上限。
const defaultLimit = 20

// suggestionLimit はタイプアヘッド候補の上限。入力のたびに呼ばれるため小さく抑える。
const suggestionLimit = 5

// Result はユーザーと旅程をまとめた検索結果。
type Result struct {
	Users       []*model.User             `json:"users"`
	Itineraries []*model.ItinerarySummary `json:"itineraries"`
}

// Service は横断検索のサービス層。
type Service struct {
	searchRepo repository.SearchRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(searchRepo repository.SearchRepository) *Service {
	return &Service{searchRepo: searchRepo}
}

// Search はクエリ文字列でユーザーと公開旅程を検索する。
// 空のクエリにはエラーを返す。一覧応答にメールアドレスは含めず、
// 閲覧者自身はユーザー結果から除外する。
func (s *Service) Search(ctx context.Context, query, viewerID string) (*Result, error) {
	return s.search(ctx, query, viewerID, defaultLimit)
}

// Suggestions はタイプアヘッド用の軽量検索を行う。
// 上限をsuggestionLimitに固定する以外はSearchと同じ。
func (s *Service) Suggestions(ctx context.Context, query, viewerID string) (*Result, error) {
	return s.search(ctx, query, viewerID, suggestionLimit)
}

func (s *Service) search(ctx context.Context, query, viewerID string, limit int) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, model.NewInvalidInputError("検索キーワードを入力してください")
	}

	users, err := s.searchRepo.SearchUsers(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("ユーザー検索に失敗しました: %w", err)
	}
	filtered := make([]*model.User, 0, len(users))
	for _, u := range users {
		if u.ID == viewerID {
			continue
		}
		u.Email = ""
		filtered = append(filtered, u)
	}

	itineraries, err := s.searchRepo.SearchItineraries(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("旅程検索に失敗しました: %w", err)
	}

	return &Result{
		Users:       filtered,
		Itineraries: itineraries,
	}, nil
}
