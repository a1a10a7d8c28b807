package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/tripman/internal/model"
)

// PostgresFollowRepo はPostgreSQLを使用したフォローリポジトリ。
// エッジの作成・削除と非正規化カウンタの更新を同一トランザクションで行う。
type PostgresFollowRepo struct {
	db *sql.DB
}

// NewPostgresFollowRepo はPostgresFollowRepoを生成する。
func NewPostgresFollowRepo(db *sql.DB) *PostgresFollowRepo {
	return &PostgresFollowRepo{db: db}
}

// Follow は閲覧者→対象のフォローエッジを作成し、両者のカウンタを更新する。
// 既にフォロー済みの場合は何もしない（冪等）。
func (r *PostgresFollowRepo) Follow(ctx context.Context, followerID, followeeID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO follows (follower_id, followee_id) VALUES ($1, $2)
		 ON CONFLICT (follower_id, followee_id) DO NOTHING`,
		followerID, followeeID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert follow edge: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	// エッジが新規作成された場合のみカウンタを更新する
	if rowsAffected == 1 {
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET following = following + 1, updated_at = now() WHERE id = $1`,
			followerID,
		); err != nil {
			return fmt.Errorf("failed to increment following count: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET followers = followers + 1, updated_at = now() WHERE id = $1`,
			followeeID,
		); err != nil {
			return fmt.Errorf("failed to increment followers count: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit follow transaction: %w", err)
	}

	return nil
}

// Unfollow はフォローエッジを削除し、両者のカウンタを更新する。
// フォローしていない場合は何もしない（冪等）。
func (r *PostgresFollowRepo) Unfollow(ctx context.Context, followerID, followeeID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`DELETE FROM follows WHERE follower_id = $1 AND followee_id = $2`,
		followerID, followeeID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete follow edge: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	// エッジが実際に削除された場合のみカウンタを更新する。
	// カウンタは0未満にならないようGREATESTで保護する。
	if rowsAffected == 1 {
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET following = GREATEST(following - 1, 0), updated_at = now() WHERE id = $1`,
			followerID,
		); err != nil {
			return fmt.Errorf("failed to decrement following count: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET followers = GREATEST(followers - 1, 0), updated_at = now() WHERE id = $1`,
			followeeID,
		); err != nil {
			return fmt.Errorf("failed to decrement followers count: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit unfollow transaction: %w", err)
	}

	return nil
}

// IsFollowing は閲覧者→対象のエッジの有無を返す。
func (r *PostgresFollowRepo) IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM follows WHERE follower_id = $1 AND followee_id = $2)`,
		followerID, followeeID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check follow edge: %w", err)
	}
	return exists, nil
}

// ListFollowers は対象ユーザーのフォロワー一覧を、
// 閲覧者視点のisFollowingフラグ付きで返す。
func (r *PostgresFollowRepo) ListFollowers(ctx context.Context, userID, viewerID string) ([]*model.UserWithFollowStatus, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT u.id, u.name, u.username, u.email, u.avatar, u.followers, u.following,
		        u.created_at, u.updated_at,
		        EXISTS (SELECT 1 FROM follows v WHERE v.follower_id = $2 AND v.followee_id = u.id)
		 FROM follows f
		 JOIN users u ON u.id = f.follower_id
		 WHERE f.followee_id = $1
		 ORDER BY f.created_at DESC`,
		userID, viewerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list followers: %w", err)
	}
	defer rows.Close()

	return scanUsersWithStatus(rows)
}

// ListFollowing は対象ユーザーのフォロー中一覧を、
// 閲覧者視点のisFollowingフラグ付きで返す。
func (r *PostgresFollowRepo) ListFollowing(ctx context.Context, userID, viewerID string) ([]*model.UserWithFollowStatus, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT u.id, u.name, u.username, u.email, u.avatar, u.followers, u.following,
		        u.created_at, u.updated_at,
		        EXISTS (SELECT 1 FROM follows v WHERE v.follower_id = $2 AND v.followee_id = u.id)
		 FROM follows f
		 JOIN users u ON u.id = f.followee_id
		 WHERE f.follower_id = $1
		 ORDER BY f.created_at DESC`,
		userID, viewerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list following: %w", err)
	}
	defer rows.Close()

	return scanUsersWithStatus(rows)
}

// scanUsersWithStatus は複数行をUserWithFollowStatusのスライスにスキャンする。
func scanUsersWithStatus(rows *sql.Rows) ([]*model.UserWithFollowStatus, error) {
	users := []*model.UserWithFollowStatus{}
	for rows.Next() {
		u := &model.UserWithFollowStatus{}
		if err := rows.Scan(
			&u.ID, &u.Name, &u.Username, &u.Email, &u.Avatar,
			&u.Followers, &u.Following, &u.CreatedAt, &u.UpdatedAt,
			&u.IsFollowing,
		); err != nil {
			return nil, fmt.Errorf("failed to scan follow row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate follow rows: %w", err)
	}
	return users, nil
}

// compile-time interface check
var _ FollowRepository = (*PostgresFollowRepo)(nil)
