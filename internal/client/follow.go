package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/hitoshi/tripman/internal/model"
)

// FollowView はフォロー状態の表示ストレージを抽象化するインターフェース。
// プロトコル（スナップショット→楽観的更新→確定/ロールバック）と
// ストレージを分離し、描画なしでユニットテストできるようにする。
type FollowView interface {
	// FollowState はターゲットのフォロー中フラグとフォロワーカウンタを返す。
	FollowState(targetUserID string) (isFollowing bool, followers int)
	SetFollowState(targetUserID string, isFollowing bool, followers int)
}

// SessionState はリコンサイラが必要とするセッション操作。Sessionが実装する。
type SessionState interface {
	User() (*model.User, bool)
	RefreshUser(ctx context.Context) error
}

// FollowReconciler はフォロー関係の楽観的更新プロトコルを実装する。
// 即時の視覚的フィードバックを与えつつ、サーバーとの最終的な一貫性を保証する。
// 表示中のカウンタとフラグがサーバーより先行するのは
// 実行中のリクエスト1つ分の期間だけであり、恒久的に乖離することはない。
type FollowReconciler struct {
	client  *Client
	session SessionState
	view    FollowView

	// 同一ターゲットへの切り替えは直列化する。実行中の2回目はErrToggleInFlight
	mu       sync.Mutex
	inflight map[string]bool
}

// NewFollowReconciler はFollowReconcilerを生成する。
func NewFollowReconciler(client *Client, session SessionState, view FollowView) *FollowReconciler {
	return &FollowReconciler{
		client:   client,
		session:  session,
		view:     view,
		inflight: make(map[string]bool),
	}
}

// ToggleFollow はフォロー関係を切り替える。
//  1. 現在のフラグとターゲットのフォロワーカウンタをスナップショット。
//  2. フラグを反転しカウンタを±1（楽観的更新）。
//  3. フォロー/フォロー解除をサーバーへ送信。
//  4. 成功時はRefreshUserで閲覧者自身のfollowingカウンタを正の値に合わせる。
//  5. 失敗時はスナップショットを正確に復元し、エラーを返す（非致命的）。
//
// 自分自身へのフォローはネットワーク呼び出しなしでErrSelfFollowを返す。
// 同一ターゲットへの切り替えが実行中の場合はErrToggleInFlightを返す。
// 異なるターゲットへの切り替えは並行して実行できる。
func (r *FollowReconciler) ToggleFollow(ctx context.Context, targetUserID string, currentlyFollowing bool) error {
	if user, ok := r.session.User(); ok && user.ID == targetUserID {
		return ErrSelfFollow
	}

	r.mu.Lock()
	if r.inflight[targetUserID] {
		r.mu.Unlock()
		return ErrToggleInFlight
	}
	r.inflight[targetUserID] = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.inflight, targetUserID)
		r.mu.Unlock()
	}()

	// 1. スナップショット
	prevFollowing, prevFollowers := r.view.FollowState(targetUserID)

	// 2. 楽観的更新
	newFollowers := prevFollowers + 1
	if currentlyFollowing {
		newFollowers = prevFollowers - 1
	}
	r.view.SetFollowState(targetUserID, !currentlyFollowing, newFollowers)

	// 3. サーバー呼び出し
	method := http.MethodPost
	if currentlyFollowing {
		method = http.MethodDelete
	}

	resp, err := r.client.Do(ctx, method, "/api/users/"+targetUserID+"/follow", nil)
	if err != nil {
		// 5. ロールバック: スナップショットを正確に復元する
		r.view.SetFollowState(targetUserID, prevFollowing, prevFollowers)
		return fmt.Errorf("follow toggle failed: %w", err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		r.view.SetFollowState(targetUserID, prevFollowing, prevFollowers)
		return fmt.Errorf("follow toggle rejected: %s", readErrorMessage(resp))
	}

	// 4. 閲覧者自身のfollowingカウンタをサーバーの正の値に合わせる。
	// 切り替え自体は成功しているため、再取得の失敗で状態は巻き戻さない
	r.session.RefreshUser(ctx)

	return nil
}
