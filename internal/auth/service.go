package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/tripman/internal/model"
	"github.com/hitoshi/tripman/internal/repository"
)

// ErrInvalidCredentials はユーザー名/パスワード不一致を表す。
// ユーザーの存在有無を呼び出し側に漏らさないため、両者を区別しない。
var ErrInvalidCredentials = errors.New("invalid credentials")

// TokenPair はログイン・リフレッシュ時に発行するトークンの組。
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// RegisterInput はユーザー登録の入力。
// Avatarは外部URLを指定でき、省略可能。
type RegisterInput struct {
	Name     string
	Username string
	Email    string
	Password string
	Avatar   string
}

// AvatarURLValidator は登録時の外部アバターURLの事前検証インターフェース。
type AvatarURLValidator interface {
	ValidateURL(rawURL string) error
}

// RefreshMetrics はトークン再発行のメトリクス記録インターフェース。
type RefreshMetrics interface {
	RecordRefreshIssued()
}

// Service はパスワード認証のビジネスロジックを提供する。
type Service struct {
	userRepo     repository.UserRepository
	tokens       *TokenService
	urlValidator AvatarURLValidator // nilの場合はアバターURL検証なし
	metrics      RefreshMetrics     // nilの場合は記録なし
}

// NewService はServiceを生成する。
func NewService(userRepo repository.UserRepository, tokens *TokenService, urlValidator AvatarURLValidator, metrics RefreshMetrics) *Service {
	return &Service{
		userRepo:     userRepo,
		tokens:       tokens,
		urlValidator: urlValidator,
		metrics:      metrics,
	}
}

// Register は新規ユーザーを作成する。パスワードはbcryptでハッシュ化して保存する。
// ユーザー名/メールアドレスの重複はrepositoryのセンチネルエラーをそのまま返す。
func (s *Service) Register(ctx context.Context, input RegisterInput) (*model.User, error) {
	// 外部アバターURLはSSRF対策の事前検証を通ったものだけを保存する
	if input.Avatar != "" && s.urlValidator != nil {
		if err := s.urlValidator.ValidateURL(input.Avatar); err != nil {
			return nil, model.NewInvalidInputError("アバターURLが不正です")
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &model.User{
		ID:        uuid.New().String(),
		Name:      input.Name,
		Username:  input.Username,
		Email:     input.Email,
		Avatar:    input.Avatar,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.userRepo.Create(ctx, user, string(hash)); err != nil {
		return nil, err
	}

	slog.Info("new user registered",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)

	return user, nil
}

// Login はユーザー名またはメールアドレスとパスワードで認証し、トークンを発行する。
// 識別子に@が含まれる場合はメールアドレスとして扱う。
// ユーザー不存在とパスワード不一致はどちらもErrInvalidCredentialsを返す。
func (s *Service) Login(ctx context.Context, identifier, password string) (*model.User, *TokenPair, error) {
	byEmail := strings.Contains(identifier, "@")

	creds, err := s.userRepo.FindCredentials(ctx, identifier, byEmail)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find credentials: %w", err)
	}
	if creds == nil {
		// タイミング差でユーザーの存在を推測されないよう、ダミー比較を行う
		bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		return nil, nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	user, err := s.userRepo.FindByID(ctx, creds.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := s.issuePair(user.ID, user.Username)
	if err != nil {
		return nil, nil, err
	}

	slog.Info("user logged in", slog.String("user_id", user.ID))

	return user, pair, nil
}

// Refresh はリフレッシュトークンを検証し、新しいトークンの組を発行する。
// トークンは両方とも再発行する（ローテーション）。
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokens.Verify(refreshToken, TokenKindRefresh)
	if err != nil {
		return nil, err
	}

	// 削除済みユーザーのトークンを無効化する
	user, err := s.userRepo.FindByID(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, ErrTokenInvalid
	}

	pair, err := s.issuePair(user.ID, user.Username)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordRefreshIssued()
	}

	slog.Info("session refreshed", slog.String("user_id", user.ID))

	return pair, nil
}

// VerifyAccessToken はアクセストークンを検証し、ユーザーIDを返す。
func (s *Service) VerifyAccessToken(tokenString string) (string, error) {
	claims, err := s.tokens.Verify(tokenString, TokenKindAccess)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (s *Service) issuePair(userID, username string) (*TokenPair, error) {
	access, err := s.tokens.IssueAccessToken(userID, username)
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}
	refresh, err := s.tokens.IssueRefreshToken(userID, username)
	if err != nil {
		return nil, fmt.Errorf("failed to issue refresh token: %w", err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// dummyHash はログイン時のタイミング攻撃対策に使う固定のbcryptハッシュ。
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"
