// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string `json:"code"`     // エラーコード
	Message  string `json:"message"`  // エラーメッセージ
	Category string `json:"category"` // カテゴリ: auth, validation, social, itinerary, system
	Action   string `json:"action"`   // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeDuplicateUser      = "DUPLICATE_USER"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeSelfFollow         = "SELF_FOLLOW"
	ErrCodeItineraryNotFound  = "ITINERARY_NOT_FOUND"
	ErrCodeListNotFound       = "LIST_NOT_FOUND"
	ErrCodeInvalidAvatar      = "INVALID_AVATAR"
	ErrCodeAvatarTooLarge     = "AVATAR_TOO_LARGE"
)

// NewInvalidInputError は入力検証エラーを生成する。
func NewInvalidInputError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInput,
		Message:  fmt.Sprintf("入力内容が正しくありません: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// ユーザーの存在有無を漏らさないよう、メッセージは固定とする。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "ユーザー名またはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてから再度お試しください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "自分のアカウントに対してのみ実行できます。",
	}
}

// NewDuplicateUserError はユーザー名またはメールアドレスの重複エラーを生成する。
func NewDuplicateUserError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateUser,
		Message:  fmt.Sprintf("この%sは既に使用されています。", field),
		Category: "validation",
		Action:   "別の値を指定して再度お試しください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "social",
		Action:   "ユーザーIDまたはユーザー名を確認してください。",
	}
}

// NewSelfFollowError は自分自身へのフォロー操作エラーを生成する。
func NewSelfFollowError() *APIError {
	return &APIError{
		Code:     ErrCodeSelfFollow,
		Message:  "自分自身をフォローすることはできません。",
		Category: "social",
		Action:   "他のユーザーを指定してください。",
	}
}

// NewItineraryNotFoundError は旅程が見つからない場合のエラーを生成する。
func NewItineraryNotFoundError(itineraryID string) *APIError {
	return &APIError{
		Code:     ErrCodeItineraryNotFound,
		Message:  fmt.Sprintf("指定された旅程が見つかりません: %s", itineraryID),
		Category: "itinerary",
		Action:   "旅程IDを確認してください。",
	}
}

// NewListNotFoundError は旅程リストが見つからない場合のエラーを生成する。
func NewListNotFoundError(listID string) *APIError {
	return &APIError{
		Code:     ErrCodeListNotFound,
		Message:  fmt.Sprintf("指定されたリストが見つかりません: %s", listID),
		Category: "itinerary",
		Action:   "リストIDを確認してください。",
	}
}

// NewInvalidAvatarError はアバター画像の形式エラーを生成する。
func NewInvalidAvatarError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAvatar,
		Message:  fmt.Sprintf("アバター画像が不正です: %s", reason),
		Category: "validation",
		Action:   "JPEGまたはPNG形式の画像を指定してください。",
	}
}

// NewAvatarTooLargeError はアバター画像のサイズ超過エラーを生成する。
func NewAvatarTooLargeError(maxBytes int64) *APIError {
	return &APIError{
		Code:     ErrCodeAvatarTooLarge,
		Message:  fmt.Sprintf("アバター画像のサイズが上限を超えています（上限: %dバイト）。", maxBytes),
		Category: "validation",
		Action:   "画像を縮小してから再度アップロードしてください。",
	}
}
