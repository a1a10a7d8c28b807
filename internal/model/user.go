// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// FollowersとFollowingはfollowsテーブルから非正規化したカウンタで、
// フォロー操作と同一トランザクションで更新される。
// Emailは閲覧者が本人の場合のみAPIレスポンスに含まれる。
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Avatar    string    `json:"avatar"`
	Followers int       `json:"followers"`
	Following int       `json:"following"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// Credentials はログイン検証に必要な認証情報を表す。
// パスワードハッシュを含むため、APIレスポンスには決して含めない。
type Credentials struct {
	UserID       string
	Username     string
	PasswordHash string
}

// UserWithFollowStatus はユーザーに閲覧者視点のフォロー状態を付加したビュー。
// IsFollowingは「閲覧者→このユーザー」のエッジの有無を表し、
// 常に閲覧者スコープで計算される（未認証の閲覧者には提供しない）。
type UserWithFollowStatus struct {
	User
	IsFollowing bool `json:"isFollowing"`
}
