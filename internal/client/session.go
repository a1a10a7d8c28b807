package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/hitoshi/tripman/internal/model"
)

// Session は現在のログインユーザーを保持するセッション状態コンテナ。
// 状態の変更はRegister/Login/Logout/RefreshUserの4操作と、
// Clientの強制ログアウトパスからのみ行われる。
type Session struct {
	client *Client
	creds  CredentialStore

	mu        sync.RWMutex
	user      *model.User
	isLoading bool
}

// NewSession はSessionを生成する。isLoadingはRestoreが完了するまでtrue。
func NewSession(client *Client, creds CredentialStore) *Session {
	s := &Session{
		client:    client,
		creds:     creds,
		isLoading: true,
	}
	// ディスパッチャの強制ログアウト時にメモリ上のIdentityもクリアする
	client.AddSessionExpiredHandler(s.clearUser)
	return s
}

// User は現在のユーザーを返す。ログインしていない場合は(nil, false)。
func (s *Session) User() (*model.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user, s.user != nil
}

// IsLoading は起動時の復元処理中かを返す。
// trueになるのはRestore完了までの一度きりで、以降の操作では変化しない。
func (s *Session) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isLoading
}

// Restore は資格情報ポインタからセッションの復元を試みる。
// ポインタが存在しない場合は未ログインとして解決する。
// ポインタが古い場合（削除済みアカウント等）はポインタをクリアし、
// エラーを返さず未ログインとして解決する（ベストエフォート復元）。
func (s *Session) Restore(ctx context.Context) error {
	defer func() {
		s.mu.Lock()
		s.isLoading = false
		s.mu.Unlock()
	}()

	userID, err := s.creds.Load()
	if err != nil {
		return fmt.Errorf("failed to load credential pointer: %w", err)
	}
	if userID == "" {
		return nil
	}

	user, err := s.fetchUser(ctx, userID)
	if err != nil {
		// 復元失敗は意図的に飲み込む。ポインタをクリアして未ログインに解決する
		s.creds.Clear()
		s.clearUser()
		return nil
	}

	s.setUser(user)
	return nil
}

// Register は新規ユーザーを登録し、同じ資格情報で直ちにログインする。
// 登録成功後のログイン失敗はログインのエラーをそのまま返す
// （アカウントは存在するがセッションは確立されていない状態）。
func (s *Session) Register(ctx context.Context, name, username, email, password, avatar string) error {
	body := map[string]string{
		"name":     name,
		"username": username,
		"email":    email,
		"password": password,
		"avatar":   avatar,
	}

	// 認証エンドポイントの401は資格情報拒否でありトークン失効ではないため、
	// リフレッシュパスを持つDoではなくsendを使う
	resp, err := s.client.send(ctx, http.MethodPost, "/auth/register", mustMarshal(body))
	if err != nil {
		return fmt.Errorf("register request failed: %w", err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return &AuthError{Message: readErrorMessage(resp)}
	}

	// 登録は認証済み・不明な状態を残さない。常に直後にログインする
	return s.Login(ctx, username, password)
}

// Login はユーザー名またはメールアドレスとパスワードで認証する。
// 成功時はIdentityをメモリに保持し、ユーザーIDを資格情報ポインタに書き込む。
// 資格情報の拒否は*AuthErrorとしてサーバーのメッセージを保持して返す。
func (s *Session) Login(ctx context.Context, usernameOrEmail, password string) error {
	body := map[string]string{
		"usernameOrEmail": usernameOrEmail,
		"password":   password,
	}

	resp, err := s.client.send(ctx, http.MethodPost, "/auth/login", mustMarshal(body))
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return &AuthError{Message: readErrorMessage(resp)}
	}

	var user model.User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return fmt.Errorf("failed to decode login response: %w", err)
	}

	if err := s.creds.Save(user.ID); err != nil {
		return fmt.Errorf("failed to save credential pointer: %w", err)
	}
	s.setUser(&user)

	return nil
}

// Logout はセッションを終了する。サーバー呼び出しはベストエフォートで、
// セッションが存在しない場合でも安全に呼び出せる（冪等）。
func (s *Session) Logout(ctx context.Context) error {
	if resp, err := s.client.send(ctx, http.MethodPost, "/auth/logout", nil); err == nil {
		resp.Body.Close()
	}

	s.clearUser()
	if err := s.creds.Clear(); err != nil {
		return fmt.Errorf("failed to clear credential pointer: %w", err)
	}
	return nil
}

// RefreshUser は現在のユーザーをIDで再取得し、メモリ上のIdentityを丸ごと置き換える。
// フォロー操作等でカウンタが変化した後にサーバーの正の値へ合わせるために使う。
func (s *Session) RefreshUser(ctx context.Context) error {
	s.mu.RLock()
	user := s.user
	s.mu.RUnlock()
	if user == nil {
		return nil
	}

	fresh, err := s.fetchUser(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("failed to refresh user: %w", err)
	}

	s.setUser(fresh)
	return nil
}

// fetchUser はIDでユーザーを取得する。ディスパッチャ経由のため
// アクセストークン失効時はサイレントリフレッシュが働く。
// 本人のIdentityとして保持するためincludeEmailを指定する。
func (s *Session) fetchUser(ctx context.Context, userID string) (*model.User, error) {
	resp, err := s.client.Do(ctx, http.MethodGet, "/api/users/"+userID+"?includeEmail=true", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return nil, fmt.Errorf("fetch user rejected with status %d", resp.StatusCode)
	}

	var user model.User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode user response: %w", err)
	}
	return &user, nil
}

func (s *Session) setUser(user *model.User) {
	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
}

func (s *Session) clearUser() {
	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()
}

// mustMarshal はmap[string]stringのJSONエンコードを行う。この入力では失敗しない。
func mustMarshal(v map[string]string) []byte {
	data, _ := json.Marshal(v)
	return data
}
