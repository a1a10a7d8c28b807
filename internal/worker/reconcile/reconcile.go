// Package reconcile はフォロワーカウンタのドリフト修復ジョブを提供する。
// usersテーブルのfollowers/followingは非正規化カウンタであり、
// 障害やバグでfollowsテーブルの実数とずれる可能性がある。
// このジョブが実数を再計算して修復するバックストップとなる。
package reconcile

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// RepairMetrics は修復件数のメトリクス記録インターフェース。
type RepairMetrics interface {
	RecordCounterRepair(count int)
}

// ReconcileJob はフォロワーカウンタの定期修復ジョブ。
// 冪等であり、ドリフトがない場合は何も更新しない。
type ReconcileJob struct {
	db      Executor
	logger  *slog.Logger
	metrics RepairMetrics // nilの場合は記録なし
}

// NewReconcileJob は新しいReconcileJobを生成する。
func NewReconcileJob(db Executor, logger *slog.Logger, metrics RepairMetrics) *ReconcileJob {
	return &ReconcileJob{
		db:      db,
		logger:  logger,
		metrics: metrics,
	}
}

// followersRepairQuery はfollowsテーブルの実数と異なる
// followersカウンタのみを更新する。
const followersRepairQuery = `
UPDATE users
SET followers = sub.actual
FROM (
	SELECT u.id, COUNT(f.follower_id) AS actual
	FROM users u
	LEFT JOIN follows f ON f.followee_id = u.id
	GROUP BY u.id
) sub
WHERE users.id = sub.id AND users.followers <> sub.actual`

const followingRepairQuery = `
UPDATE users
SET following = sub.actual
FROM (
	SELECT u.id, COUNT(f.followee_id) AS actual
	FROM users u
	LEFT JOIN follows f ON f.follower_id = u.id
	GROUP BY u.id
) sub
WHERE users.id = sub.id AND users.following <> sub.actual`

// Run はfollows実数と異なるカウンタを持つ全ユーザーを修復する。
// 戻り値は修復したカウンタの件数。
func (j *ReconcileJob) Run(ctx context.Context) (int64, error) {
	start := time.Now()

	followersRepaired, err := j.repair(ctx, followersRepairQuery)
	if err != nil {
		j.logger.Error("フォロワーカウンタの修復に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("フォロワーカウンタの修復に失敗: %w", err)
	}

	followingRepaired, err := j.repair(ctx, followingRepairQuery)
	if err != nil {
		j.logger.Error("フォロー中カウンタの修復に失敗しました",
			slog.String("error", err.Error()),
		)
		return followersRepaired, fmt.Errorf("フォロー中カウンタの修復に失敗: %w", err)
	}

	total := followersRepaired + followingRepaired
	if j.metrics != nil && total > 0 {
		j.metrics.RecordCounterRepair(int(total))
	}

	duration := time.Since(start)
	j.logger.Info("カウンタ修復ジョブが完了しました",
		slog.Int64("followers_repaired", followersRepaired),
		slog.Int64("following_repaired", followingRepaired),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return total, nil
}

func (j *ReconcileJob) repair(ctx context.Context, query string) (int64, error) {
	result, err := j.db.ExecContext(ctx, query)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// RunPeriodically は指定間隔でRunを繰り返し実行する。
// コンテキストのキャンセルで終了する。個々の実行エラーはログに残して継続する。
func (j *ReconcileJob) RunPeriodically(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("カウンタ修復ワーカーを停止します")
			return
		case <-ticker.C:
			if _, err := j.Run(ctx); err != nil {
				j.logger.Error("カウンタ修復の実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
