// Package user はユーザープロフィールとソーシャルグラフのドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hitoshi/tripman/internal/model"
	"github.com/hitoshi/tripman/internal/repository"
	"github.com/hitoshi/tripman/internal/storage"
)

// AvatarStorage はアバター画像ストレージのインターフェース。
type AvatarStorage interface {
	Upload(ctx context.Context, userID string, reader io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, userID string) error
}

// Sanitizer はユーザー入力のサニタイズインターフェース。
type Sanitizer interface {
	SanitizePlainText(raw string) string
}

// FollowMetrics はフォロー操作のメトリクス記録インターフェース。
type FollowMetrics interface {
	RecordFollowMutation(action string)
}

// UpdateInput はプロフィール更新の入力。
type UpdateInput struct {
	Name  string
	Email string
}

// Service はユーザー管理のサービス層。
// プロフィール閲覧・更新、フォロー関係の操作、退会処理を提供する。
type Service struct {
	userRepo      repository.UserRepository
	followRepo    repository.FollowRepository
	avatarStore   AvatarStorage
	sanitizer     Sanitizer
	avatarMaxSize int64
	metrics       FollowMetrics // nilの場合は記録なし
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	followRepo repository.FollowRepository,
	avatarStore AvatarStorage,
	sanitizer Sanitizer,
	avatarMaxSize int64,
	metrics FollowMetrics,
) *Service {
	return &Service{
		userRepo:      userRepo,
		followRepo:    followRepo,
		avatarStore:   avatarStore,
		sanitizer:     sanitizer,
		avatarMaxSize: avatarMaxSize,
		metrics:       metrics,
	}
}

// GetProfile は指定されたIDまたはユーザー名のプロフィールを取得する。
// メールアドレスはincludeEmailが指定され、かつ閲覧者が本人の場合のみ含める。
// isFollowingは閲覧者視点のフォロー状態を反映する。
func (s *Service) GetProfile(ctx context.Context, idOrUsername, viewerID string, includeEmail bool) (*model.UserWithFollowStatus, error) {
	found, err := s.resolveUser(ctx, idOrUsername)
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, model.NewUserNotFoundError()
	}

	// メールアドレスは要求された場合でも本人のみに開示する
	if !includeEmail || found.ID != viewerID {
		found.Email = ""
	}

	result := &model.UserWithFollowStatus{User: *found}

	if viewerID != "" && viewerID != found.ID {
		following, err := s.followRepo.IsFollowing(ctx, viewerID, found.ID)
		if err != nil {
			return nil, fmt.Errorf("フォロー状態の取得に失敗しました: %w", err)
		}
		result.IsFollowing = following
	}

	return result, nil
}

// GetByID は指定IDのユーザーを取得する。本人向けのためメールアドレスを含む。
func (s *Service) GetByID(ctx context.Context, userID string) (*model.User, error) {
	found, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if found == nil {
		return nil, model.NewUserNotFoundError()
	}
	return found, nil
}

// UpdateProfile はプロフィールを更新する。本人のみ実行できる。
func (s *Service) UpdateProfile(ctx context.Context, targetID, viewerID string, input UpdateInput) (*model.User, error) {
	if targetID != viewerID {
		return nil, model.NewForbiddenError()
	}

	found, err := s.userRepo.FindByID(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if found == nil {
		return nil, model.NewUserNotFoundError()
	}

	if input.Name != "" {
		found.Name = s.sanitizer.SanitizePlainText(input.Name)
	}
	if input.Email != "" {
		found.Email = input.Email
	}

	if err := s.userRepo.Update(ctx, found); err != nil {
		if err == repository.ErrDuplicateEmail {
			return nil, model.NewDuplicateUserError("email")
		}
		return nil, fmt.Errorf("ユーザーの更新に失敗しました: %w", err)
	}

	return found, nil
}

// UploadAvatar はアバター画像を保存し、プロフィールのavatarを更新する。
// サイズと形式を検証し、公開URLを返す。
func (s *Service) UploadAvatar(ctx context.Context, userID string, reader io.Reader, size int64, contentType string) (string, error) {
	if !storage.AllowedContentType(contentType) {
		return "", model.NewInvalidAvatarError(contentType)
	}
	if size > s.avatarMaxSize {
		return "", model.NewAvatarTooLargeError(s.avatarMaxSize)
	}

	url, err := s.avatarStore.Upload(ctx, userID, reader, size, contentType)
	if err != nil {
		return "", fmt.Errorf("アバターの保存に失敗しました: %w", err)
	}

	if err := s.userRepo.UpdateAvatar(ctx, userID, url); err != nil {
		return "", fmt.Errorf("アバターURLの更新に失敗しました: %w", err)
	}

	slog.Info("avatar updated", slog.String("user_id", userID))

	return url, nil
}

// Withdraw はユーザーの退会処理を実行する。本人のみ実行できる。
// 削除順序: アバター画像 → user（+ CASCADE: follows, itineraries, itinerary_lists）
func (s *Service) Withdraw(ctx context.Context, targetID, viewerID string) error {
	if targetID != viewerID {
		return model.NewForbiddenError()
	}

	found, err := s.userRepo.FindByID(ctx, targetID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if found == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します", slog.String("user_id", targetID))

	// 1. アバター画像を削除（失敗しても退会は続行する）
	if s.avatarStore != nil {
		if err := s.avatarStore.Delete(ctx, targetID); err != nil {
			slog.Warn("failed to delete avatar on withdrawal",
				slog.String("user_id", targetID),
				slog.String("error", err.Error()),
			)
		}
	}

	// 2. ユーザーを削除（follows, itineraries, listsはCASCADE削除）
	if err := s.userRepo.DeleteByID(ctx, targetID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました", slog.String("user_id", targetID))

	return nil
}

// Follow は閲覧者が対象ユーザーをフォローする。
// 自分自身へのフォローはエラー。既にフォロー済みの場合は成功扱い（冪等）。
func (s *Service) Follow(ctx context.Context, viewerID, targetID string) error {
	if viewerID == targetID {
		return model.NewSelfFollowError()
	}

	target, err := s.userRepo.FindByID(ctx, targetID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if target == nil {
		return model.NewUserNotFoundError()
	}

	if err := s.followRepo.Follow(ctx, viewerID, targetID); err != nil {
		return fmt.Errorf("フォローに失敗しました: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordFollowMutation("follow")
	}

	slog.Info("user followed",
		slog.String("follower_id", viewerID),
		slog.String("followee_id", targetID),
	)

	return nil
}

// Unfollow は閲覧者が対象ユーザーのフォローを解除する。
// フォローしていない場合は成功扱い（冪等）。
func (s *Service) Unfollow(ctx context.Context, viewerID, targetID string) error {
	if viewerID == targetID {
		return model.NewSelfFollowError()
	}

	target, err := s.userRepo.FindByID(ctx, targetID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if target == nil {
		return model.NewUserNotFoundError()
	}

	if err := s.followRepo.Unfollow(ctx, viewerID, targetID); err != nil {
		return fmt.Errorf("フォロー解除に失敗しました: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordFollowMutation("unfollow")
	}

	slog.Info("user unfollowed",
		slog.String("follower_id", viewerID),
		slog.String("followee_id", targetID),
	)

	return nil
}

// IsFollowing は閲覧者が対象ユーザーをフォローしているかを返す。
func (s *Service) IsFollowing(ctx context.Context, viewerID, targetID string) (bool, error) {
	following, err := s.followRepo.IsFollowing(ctx, viewerID, targetID)
	if err != nil {
		return false, fmt.Errorf("フォロー状態の取得に失敗しました: %w", err)
	}
	return following, nil
}

// ListFollowers は対象ユーザーのフォロワー一覧を返す。
// メールアドレスは一覧には含めない。
func (s *Service) ListFollowers(ctx context.Context, idOrUsername, viewerID string) ([]*model.UserWithFollowStatus, error) {
	target, err := s.resolveUser(ctx, idOrUsername)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, model.NewUserNotFoundError()
	}

	followers, err := s.followRepo.ListFollowers(ctx, target.ID, viewerID)
	if err != nil {
		return nil, fmt.Errorf("フォロワー一覧の取得に失敗しました: %w", err)
	}

	stripEmails(followers)
	return followers, nil
}

// ListFollowing は対象ユーザーのフォロー中一覧を返す。
// メールアドレスは一覧には含めない。
func (s *Service) ListFollowing(ctx context.Context, idOrUsername, viewerID string) ([]*model.UserWithFollowStatus, error) {
	target, err := s.resolveUser(ctx, idOrUsername)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, model.NewUserNotFoundError()
	}

	following, err := s.followRepo.ListFollowing(ctx, target.ID, viewerID)
	if err != nil {
		return nil, fmt.Errorf("フォロー中一覧の取得に失敗しました: %w", err)
	}

	stripEmails(following)
	return following, nil
}

// ListUsers は公開ユーザーディレクトリを返す。
// nameまたはusernameの部分一致で絞り込める（両方指定時はnameを優先）。
func (s *Service) ListUsers(ctx context.Context, name, username string, limit int) ([]*model.User, error) {
	users, err := s.userRepo.List(ctx, name, username, limit)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}

	for _, u := range users {
		u.Email = ""
	}
	return users, nil
}

// ListSuggested は閲覧者へのおすすめユーザーを返す。
func (s *Service) ListSuggested(ctx context.Context, viewerID string, limit int) ([]*model.User, error) {
	users, err := s.userRepo.ListSuggested(ctx, viewerID, limit)
	if err != nil {
		return nil, fmt.Errorf("おすすめユーザーの取得に失敗しました: %w", err)
	}

	for _, u := range users {
		u.Email = ""
	}
	return users, nil
}

// resolveUser はUUID形式ならID、それ以外はユーザー名として検索する。
func (s *Service) resolveUser(ctx context.Context, idOrUsername string) (*model.User, error) {
	var found *model.User
	var err error

	if _, parseErr := uuid.Parse(idOrUsername); parseErr == nil {
		found, err = s.userRepo.FindByID(ctx, idOrUsername)
	} else {
		found, err = s.userRepo.FindByUsername(ctx, idOrUsername)
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	return found, nil
}

// stripEmails は一覧応答からメールアドレスを除去する。
func stripEmails(users []*model.UserWithFollowStatus) {
	for _, u := range users {
		u.Email = ""
	}
}
