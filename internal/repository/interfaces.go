// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/tripman/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByUsername は指定ユーザー名のユーザーを取得する。見つからない場合はnilを返す。
	// 大文字小文字は区別しない。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// FindCredentials はユーザー名またはメールアドレスで認証情報を検索する。
	// byEmailがtrueの場合はメールアドレスで検索する。見つからない場合はnilを返す。
	FindCredentials(ctx context.Context, usernameOrEmail string, byEmail bool) (*model.Credentials, error)

	// FindEmail は指定IDのユーザーのメールアドレスを取得する。
	FindEmail(ctx context.Context, id string) (string, error)

	// Create はユーザーを作成する。ユーザー名またはメールアドレスが重複する場合は
	// ErrDuplicateUsername / ErrDuplicateEmail を返す。
	Create(ctx context.Context, user *model.User, passwordHash string) error

	// Update はユーザーのプロフィール（name, email, avatar）を更新する。
	Update(ctx context.Context, user *model.User) error

	// UpdateAvatar はユーザーのアバターURLのみを更新する。
	UpdateAvatar(ctx context.Context, id, avatarURL string) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するfollows、itinerariesはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error

	// List はname/usernameの部分一致でユーザーを検索する。
	// どちらも空の場合は新着順に返す。
	List(ctx context.Context, name, username string, limit int) ([]*model.User, error)

	// ListSuggested は閲覧者がまだフォローしていないユーザーを
	// フォロワー数の多い順に返す。閲覧者自身は含まない。
	ListSuggested(ctx context.Context, viewerID string, limit int) ([]*model.User, error)
}

// FollowRepository はフォローエッジと非正規化カウンタの永続化インターフェース。
// カウンタ更新はエッジ変更と同一トランザクションで行う。
type FollowRepository interface {
	// Follow は閲覧者→対象のフォローエッジを作成し、両者のカウンタを更新する。
	// 既にフォロー済みの場合は何もしない（冪等）。
	Follow(ctx context.Context, followerID, followeeID string) error

	// Unfollow はフォローエッジを削除し、両者のカウンタを更新する。
	// フォローしていない場合は何もしない（冪等）。
	Unfollow(ctx context.Context, followerID, followeeID string) error

	// IsFollowing は閲覧者→対象のエッジの有無を返す。
	IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error)

	// ListFollowers は対象ユーザーのフォロワー一覧を、
	// 閲覧者視点のisFollowingフラグ付きで返す。
	ListFollowers(ctx context.Context, userID, viewerID string) ([]*model.UserWithFollowStatus, error)

	// ListFollowing は対象ユーザーのフォロー中一覧を、
	// 閲覧者視点のisFollowingフラグ付きで返す。
	ListFollowing(ctx context.Context, userID, viewerID string) ([]*model.UserWithFollowStatus, error)
}

// ItineraryRepository は旅程データの永続化インターフェース。
type ItineraryRepository interface {
	// FindByID は指定IDの旅程をdays/events込みで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Itinerary, error)

	// Create は旅程をdays/events込みで同一トランザクションで作成する。
	Create(ctx context.Context, itinerary *model.Itinerary) error

	// Update は旅程をdays/events込みで置換更新する。
	Update(ctx context.Context, itinerary *model.Itinerary) error

	// DeleteByID は指定IDの旅程を削除する。days/eventsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error

	// ListByUser はユーザーの旅程サマリ一覧を新着順に返す。
	// includePrivateがfalseの場合は公開旅程のみを返す。
	ListByUser(ctx context.Context, userID string, includePrivate bool, limit int) ([]*model.ItinerarySummary, error)

	// ListByFollowed は閲覧者がフォローしているユーザーの公開旅程を新着順に返す。
	ListByFollowed(ctx context.Context, viewerID string, limit int) ([]*model.ItinerarySummary, error)
}

// ItineraryListRepository は旅程リストの永続化インターフェース。
type ItineraryListRepository interface {
	// FindByID は指定IDのリストを所属旅程ID込みで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.ItineraryList, error)

	// Create はリストを作成する。
	Create(ctx context.Context, list *model.ItineraryList) error

	// Update はリストの名前・説明・所属旅程を置換更新する。
	Update(ctx context.Context, list *model.ItineraryList) error

	// DeleteByID は指定IDのリストを削除する。
	DeleteByID(ctx context.Context, id string) error

	// ListByUser はユーザーのリスト一覧を新着順に返す。
	ListByUser(ctx context.Context, userID string) ([]*model.ItineraryList, error)
}

// SearchRepository は横断検索の読み取りインターフェース。
type SearchRepository interface {
	// SearchUsers はname/usernameの部分一致でユーザーを検索する。
	SearchUsers(ctx context.Context, query string, limit int) ([]*model.User, error)

	// SearchItineraries はtitle/destinationの部分一致で公開旅程を検索する。
	SearchItineraries(ctx context.Context, query string, limit int) ([]*model.ItinerarySummary, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
