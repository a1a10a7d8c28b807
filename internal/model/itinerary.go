// Package model はドメインモデルを定義する。
package model

import "time"

// Itinerary は旅行のしおり（旅程）を表す。
// DescriptionはUGCのためサニタイズ済みの値のみ永続化する。
type Itinerary struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Title       string    `json:"title"`
	Destination string    `json:"destination"`
	Description string    `json:"description"`
	StartDate   time.Time `json:"startDate"`
	EndDate     time.Time `json:"endDate"`
	IsPublic    bool      `json:"isPublic"`
	Days        []Day     `json:"days,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Day は旅程内の1日を表す。DayNumberは1始まりの連番。
type Day struct {
	ID          string  `json:"id"`
	ItineraryID string  `json:"itineraryId"`
	DayNumber   int     `json:"dayNumber"`
	Events      []Event `json:"events,omitempty"`
}

// Event は1日の中の予定（訪問地、移動、食事等）を表す。
// Positionは日内での表示順。LinkTitleはLinkURLから
// サーバー側で取得したプレビュータイトル（取得失敗時は空）。
type Event struct {
	ID        string `json:"id"`
	DayID     string `json:"dayId"`
	Position  int    `json:"position"`
	Title     string `json:"title"`
	Location  string `json:"location"`
	Notes     string `json:"notes"`
	LinkURL   string `json:"linkUrl,omitempty"`
	LinkTitle string `json:"linkTitle,omitempty"`
}

// ItineraryList はユーザーが作成する旅程のコレクション（例: 「夏の候補」）。
type ItineraryList struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	ItineraryIDs []string  `json:"itineraryIds,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ItinerarySummary は一覧・検索用の旅程サマリ。Days抜きの軽量ビュー。
type ItinerarySummary struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Username    string    `json:"username"`
	Title       string    `json:"title"`
	Destination string    `json:"destination"`
	StartDate   time.Time `json:"startDate"`
	EndDate     time.Time `json:"endDate"`
	CreatedAt   time.Time `json:"createdAt"`
}
