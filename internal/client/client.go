package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"sync"
)

// errRefreshRejected はリフレッシュエンドポイントが非2xxで応答したことを表す。
// トランスポート層の失敗と区別し、終端パスへ入るのはこのエラーのみとする。
var errRefreshRejected = errors.New("refresh rejected")

// Config はClientの設定。
type Config struct {
	// BaseURL はサーバーのベースURL（例: http://localhost:8080）。
	BaseURL string
	// Credentials は資格情報ポインタの保存先。
	Credentials CredentialStore
	// HTTPClient は省略可能。nilの場合はCookieジャー付きのクライアントを生成する。
	HTTPClient *http.Client
	// OnSessionExpired はセッションが回復不能になったときに呼ばれるフック。
	// UIではログイン画面へのリダイレクトに相当する。省略可能。
	OnSessionExpired func()
}

// Client はセッション対応のリクエストディスパッチャ。
// 資格情報はCookieとして帯域外で送られる。401応答に対して
// ちょうど1回のサイレントリフレッシュとちょうど1回の再送を行う。
//
// 呼び出しごとの状態遷移:
//
//	Sending → (401) → Refreshing → Retrying → Done/Failed
//
// リフレッシュと再送はそれぞれ構造的に最大1回であり、ループしない。
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      CredentialStore

	// 同時に複数のリクエストが401を受けた場合、リフレッシュは1回に合流する
	refreshMu sync.Mutex
	inflight  *refreshCall

	handlerMu       sync.Mutex
	expiredHandlers []func()
}

// refreshCall は実行中のリフレッシュ呼び出し。待機者は完了と結果を共有する。
type refreshCall struct {
	done chan struct{}
	err  error
}

// New はClientを生成する。
func New(config Config) (*Client, error) {
	httpClient := config.HTTPClient
	if httpClient == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		httpClient = &http.Client{Jar: jar}
	}

	c := &Client{
		baseURL:    config.BaseURL,
		httpClient: httpClient,
		creds:      config.Credentials,
	}
	if config.OnSessionExpired != nil {
		c.expiredHandlers = append(c.expiredHandlers, config.OnSessionExpired)
	}
	return c, nil
}

// AddSessionExpiredHandler はセッション失効時に呼ばれるハンドラーを追加する。
// SessionがメモリIdentityのクリアを登録するために使う。
func (c *Client) AddSessionExpiredHandler(fn func()) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.expiredHandlers = append(c.expiredHandlers, fn)
}

// Do は認証付きリクエストを発行する。bodyがnil以外の場合はJSONとして送信する。
// 401応答を受けた場合は1回だけサイレントリフレッシュを試み、
// 成功すれば元のリクエストを同一条件で1回だけ再送する。
// リフレッシュが非2xxで拒否された場合のみ終端パス: 資格情報ポインタをクリアし、
// ログアウトを実行し、ErrSessionExpiredでラップしたエラーを返す。
// リフレッシュのトランスポート層の失敗やコンテキストのキャンセルは
// 副作用なしでそのまま呼び出し元へ伝播する。
// 再送後のレスポンスはステータスに関わらずそのまま返す。
func (c *Client) Do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	resp, err := c.send(ctx, method, path, payload)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	// アクセストークン失効。リフレッシュを試みる
	resp.Body.Close()

	if err := c.refreshSession(ctx); err != nil {
		// サーバーがリフレッシュを拒否したときだけセッションを終端する。
		// ネットワーク断やキャンセルではポインタもログアウトも触らない
		if !errors.Is(err, errRefreshRejected) {
			return nil, err
		}
		c.expireSession(ctx)
		return nil, fmt.Errorf("refresh failed: %w", ErrSessionExpired)
	}

	// 再送はちょうど1回。結果はそのまま返す
	return c.send(ctx, method, path, payload)
}

// send はリクエストを1回発行する。
func (c *Client) send(ctx context.Context, method, path string, payload []byte) (*http.Response, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// refreshSession はリフレッシュエンドポイントを呼び出す。
// 同時に複数の401が発生した場合、リフレッシュ呼び出しは1つに合流し、
// 全ての待機者が同じ結果を受け取る。
func (c *Client) refreshSession(ctx context.Context) error {
	c.refreshMu.Lock()
	if c.inflight != nil {
		call := c.inflight
		c.refreshMu.Unlock()
		select {
		case <-call.done:
			return call.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	call := &refreshCall{done: make(chan struct{})}
	c.inflight = call
	c.refreshMu.Unlock()

	call.err = c.doRefresh(ctx)

	c.refreshMu.Lock()
	c.inflight = nil
	c.refreshMu.Unlock()
	close(call.done)

	return call.err
}

// doRefresh はリフレッシュトークンCookieで新しいトークンの組を要求する。
func (c *Client) doRefresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/refresh-token", nil)
	if err != nil {
		return fmt.Errorf("failed to create refresh request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return fmt.Errorf("%w: status %d", errRefreshRejected, resp.StatusCode)
	}
	return nil
}

// expireSession はセッションを回復不能として扱う終端処理。
// 資格情報ポインタのクリア、ゲートウェイへのログアウト、
// 登録済みハンドラーの呼び出し（リダイレクト相当）を行う。
func (c *Client) expireSession(ctx context.Context) {
	if err := c.creds.Clear(); err != nil {
		slog.Warn("failed to clear credential store", slog.String("error", err.Error()))
	}

	// ログアウトはベストエフォート。Doを経由すると再びリフレッシュを試みるため直接送る
	if resp, err := c.send(ctx, http.MethodPost, "/auth/logout", nil); err == nil {
		resp.Body.Close()
	}

	c.handlerMu.Lock()
	handlers := make([]func(), len(c.expiredHandlers))
	copy(handlers, c.expiredHandlers)
	c.handlerMu.Unlock()

	for _, fn := range handlers {
		fn()
	}
}
