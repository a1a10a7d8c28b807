// Package auth はパスワード認証とJWTトークン管理を提供する。
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// トークン検証失敗を呼び出し側で区別するためのセンチネルエラー。
var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// TokenKind はアクセストークン/リフレッシュトークンの種別。
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// Claims はJWTに埋め込むクレーム。subにユーザーIDを格納する。
type Claims struct {
	Username string    `json:"username"`
	Kind     TokenKind `json:"kind"`
	jwt.RegisteredClaims
}

// TokenService はHS256署名のJWTを発行・検証する。
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenService はTokenServiceを生成する。
func NewTokenService(secret string, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// IssueAccessToken はアクセストークンを発行する。
func (s *TokenService) IssueAccessToken(userID, username string) (string, error) {
	return s.issue(userID, username, TokenKindAccess, s.accessTTL)
}

// IssueRefreshToken はリフレッシュトークンを発行する。
func (s *TokenService) IssueRefreshToken(userID, username string) (string, error) {
	return s.issue(userID, username, TokenKindRefresh, s.refreshTTL)
}

// AccessTTL はアクセストークンの有効期間を返す。Cookieの期限設定に使用する。
func (s *TokenService) AccessTTL() time.Duration {
	return s.accessTTL
}

// RefreshTTL はリフレッシュトークンの有効期間を返す。
func (s *TokenService) RefreshTTL() time.Duration {
	return s.refreshTTL
}

func (s *TokenService) issue(userID, username string, kind TokenKind, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Username: username,
		Kind:     kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// Verify はトークンを検証し、クレームを返す。
// 期限切れはErrTokenExpired、その他の検証失敗はErrTokenInvalidを返す。
// 種別が一致しないトークン（アクセス用の場所にリフレッシュ等）は無効とみなす。
func (s *TokenService) Verify(tokenString string, kind TokenKind) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	if claims.Kind != kind {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
