// Package client はtripmanサーバーに対する認証セッション付きのクライアントSDKを提供する。
// リクエストディスパッチャ（401時の自動リフレッシュと再送）、セッション状態、
// 楽観的フォロー状態のリコンサイルを含む。
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/hitoshi/tripman/internal/model"
)

var (
	// ErrSessionExpired はリフレッシュ失敗によりセッションが回復不能になったことを表す。
	// このエラーが返るとき、資格情報ポインタは既にクリアされログアウト処理が実行されている。
	ErrSessionExpired = errors.New("session expired")

	// ErrToggleInFlight は同一ターゲットへのフォロー切り替えが実行中であることを表す。
	ErrToggleInFlight = errors.New("follow toggle already in flight")

	// ErrSelfFollow は自分自身へのフォロー操作を表す。ネットワーク呼び出し前に拒否される。
	ErrSelfFollow = errors.New("cannot follow yourself")
)

// AuthError はログイン・登録時に資格情報が拒否されたことを表す。
// Messageにはサーバーのエラーメッセージをそのまま保持する。
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Message)
}

// readErrorMessage はサーバーの統一エラーボディからメッセージを取り出す。
// デコードできない場合はHTTPステータスから生成した汎用メッセージを返す。
func readErrorMessage(resp *http.Response) string {
	var apiErr model.APIError
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Message != "" {
		return apiErr.Message
	}
	return fmt.Sprintf("unexpected status %d", resp.StatusCode)
}

// isSuccess は2xxステータスかを判定する。
func isSuccess(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
